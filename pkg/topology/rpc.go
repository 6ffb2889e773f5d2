package topology

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// replyToQueue is the broker's pseudo-queue for direct reply-to RPC, per
// spec.md §4.3: consuming from it without declaring it first yields
// correlated replies to whatever channel published with this replyTo.
const replyToQueue = "amq.rabbitmq.reply-to"

// rpcDispatcher multiplexes RPC replies delivered to a single direct
// reply-to consumer across concurrent callers, keyed by correlation ID.
// One dispatcher is installed per Exchange incarnation; it is torn down and
// recreated alongside the exchange's channel on every rebuild.
type rpcDispatcher struct {
	mu      sync.Mutex
	pending map[string]chan *Message
}

func newRPCDispatcher() *rpcDispatcher {
	return &rpcDispatcher{pending: make(map[string]chan *Message)}
}

// start launches the direct reply-to consumer loop. It returns once the
// initial Consume call succeeds; delivery dispatch continues on its own
// goroutine until deliveries closes (channel invalidated or canceled).
func (d *rpcDispatcher) start(ch *ChannelWrapper) error {
	deliveries, err := ch.consume(replyToQueue, "", ConsumerOptions{NoAck: true})
	if err != nil {
		return fmt.Errorf("topology: failed to start direct reply-to consumer: %w", err)
	}

	go func() {
		for delivery := range deliveries {
			d.dispatch(delivery)
		}
	}()

	return nil
}

func (d *rpcDispatcher) dispatch(delivery amqp.Delivery) {
	d.mu.Lock()
	reply, ok := d.pending[delivery.CorrelationId]
	if ok {
		delete(d.pending, delivery.CorrelationId)
	}
	d.mu.Unlock()

	if !ok {
		return
	}

	reply <- messageFromDelivery(delivery, nil)
	close(reply)
}

// await registers correlationID, sending request via send, and blocks for
// either the correlated reply or ctx's cancellation.
func (d *rpcDispatcher) await(ctx context.Context, correlationID string, send func() error) (*Message, error) {
	reply := make(chan *Message, 1)

	d.mu.Lock()
	d.pending[correlationID] = reply
	d.mu.Unlock()

	if err := send(); err != nil {
		d.mu.Lock()
		delete(d.pending, correlationID)
		d.mu.Unlock()

		return nil, err
	}

	select {
	case msg := <-reply:
		return msg, nil
	case <-ctx.Done():
		d.mu.Lock()
		delete(d.pending, correlationID)
		d.mu.Unlock()

		return nil, ctx.Err()
	}
}

func newCorrelationID() string {
	return uuid.NewString()
}
