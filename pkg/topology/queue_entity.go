package topology

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// ConsumerHandler processes one delivery. Its return value is only used
// when the delivery carries a replyTo (i.e. it is an RPC request): the
// returned value is wrapped into a Message (if not already one) and
// published back to the default exchange with routing key = replyTo,
// propagating the original correlation ID. A non-RPC delivery's return
// value is ignored. Ack/nack of the delivery remains the handler's own
// responsibility via Message.Ack/Nack.
type ConsumerHandler func(context.Context, *Message) (any, error)

// consumerState tracks the single active consumer on a Queue, if any. A
// Queue supports at most one active consumer incarnation at a time, matching
// the data model's "a queue's consumer is reinstalled on every rebuild"
// behavior.
type consumerState struct {
	tag     string
	handler ConsumerHandler
	opts    ConsumerOptions
	active  bool
}

// Queue is a declared AMQP queue, embedding node for the shared
// readiness/teardown machinery and adding consumer management, per
// spec.md §4.4.
type Queue struct {
	node

	opts QueueOptions

	consumerMu sync.Mutex
	consumer   *consumerState
}

func newQueue(name string, opts QueueOptions, conn *Connection) *Queue {
	return &Queue{
		node: newNode(name, conn),
		opts: opts,
	}
}

// initialize opens a fresh channel, asserts (or passively checks) the
// queue, applies Prefetch via Qos, and reinstalls the active consumer (if
// any) on the new channel. Called by the owning Connection on first
// declaration and on every rebuild.
func (q *Queue) initialize(ctx context.Context) error {
	ch, err := q.connection.newChannel(q.connection.logger())
	if err != nil {
		return err
	}

	latch := q.freshIncarnation(ch)

	if _, declErr := ch.declareQueue(ctx, q.name, q.opts); declErr != nil {
		wrapped := &AssertionFailedError{Kind: "queue", Name: q.name, Cause: declErr}
		q.connection.forgetQueue(q.name)
		latch.resolve(wrapped)

		return wrapped
	}

	if q.opts.Prefetch > 0 {
		if qosErr := ch.qos(q.opts.Prefetch); qosErr != nil {
			wrapped := &AssertionFailedError{Kind: "queue", Name: q.name, Cause: qosErr}
			q.connection.forgetQueue(q.name)
			latch.resolve(wrapped)

			return wrapped
		}
	}

	latch.resolve(nil)

	q.consumerMu.Lock()
	cs := q.consumer
	q.consumerMu.Unlock()

	if cs != nil && cs.active {
		if startErr := q.startConsumer(ctx, ch, cs); startErr != nil {
			return startErr
		}
	}

	return nil
}

func (q *Queue) delete(ctx context.Context) error {
	latch, alreadyInFlight := q.beginDeleting()
	if alreadyInFlight {
		return latch.wait(ctx)
	}

	var err error
	if !q.opts.NoCreate {
		if ch := q.channel(); ch != nil {
			err = ch.deleteQueue(q.name)
		}
	}

	q.connection.forgetQueue(q.name)
	q.connection.removeBindingsContaining(q.name)
	latch.resolve(err)

	return err
}

func (q *Queue) close(ctx context.Context) error {
	latch, alreadyInFlight := q.beginClosing()
	if alreadyInFlight {
		return latch.wait(ctx)
	}

	var err error
	if ch := q.channel(); ch != nil {
		err = ch.Close()
	}

	q.clearInitialized()
	latch.resolve(err)

	return err
}

// Prefetch updates the channel's Qos prefetch count. It takes effect on the
// current channel immediately, and is remembered for future rebuilds.
func (q *Queue) Prefetch(count int) error {
	q.opts.Prefetch = count

	ch := q.channel()
	if ch == nil {
		return nil
	}

	return ch.qos(count)
}

// Recover asks the broker to redeliver unacknowledged messages on this
// queue's channel.
func (q *Queue) Recover() error {
	ch := q.channel()
	if ch == nil {
		return nil
	}

	return ch.recover()
}

// ActivateConsumer installs handler as the queue's consumer, starting
// delivery on the current channel. At most one active consumer per queue is
// supported; a repeat call while one is already active is a no-op that
// returns nil without touching the existing subscription, per spec.md §4.4.
func (q *Queue) ActivateConsumer(ctx context.Context, opts ConsumerOptions, handler ConsumerHandler) error {
	if err := q.waitReady(ctx); err != nil {
		return err
	}

	q.consumerMu.Lock()
	if q.consumer != nil && q.consumer.active {
		q.consumerMu.Unlock()

		return nil
	}

	cs := &consumerState{
		handler: handler,
		opts:    opts,
		active:  true,
	}
	q.consumer = cs
	q.consumerMu.Unlock()

	ch := q.channel()
	if ch == nil {
		return fmt.Errorf("topology: queue %q has no open channel", q.name)
	}

	return q.startConsumer(ctx, ch, cs)
}

// ConsumerTag returns the current consumer's tag and whether one is active.
func (q *Queue) ConsumerTag() (string, bool) {
	q.consumerMu.Lock()
	defer q.consumerMu.Unlock()

	if q.consumer == nil || !q.consumer.active {
		return "", false
	}

	return q.consumer.tag, true
}

// startConsumer issues Consume on ch, minting a fresh consumer tag for this
// incarnation rather than reusing the one from a prior channel, per
// spec.md §4.1 step 3.
func (q *Queue) startConsumer(ctx context.Context, ch *ChannelWrapper, cs *consumerState) error {
	q.consumerMu.Lock()
	cs.tag = "topology-" + uuid.NewString()
	tag := cs.tag
	q.consumerMu.Unlock()

	deliveries, err := ch.consume(q.name, tag, cs.opts)
	if err != nil {
		return &ConsumerError{Queue: q.name, Cause: err}
	}

	go func() {
		for delivery := range deliveries {
			msg := messageFromDelivery(delivery, ch)
			q.dispatchDelivery(ctx, ch, cs, msg)
		}
	}()

	return nil
}

// dispatchDelivery invokes cs.handler and, if the delivery carries a
// replyTo, publishes the handler's return value back to the default
// exchange with routing key = replyTo, propagating the original
// correlationId — the RPC-reply half of spec.md §4.4's consumer wrapper. A
// callback error is logged, per spec.md §7's ConsumerError, and never
// nacks the delivery: ack/nack stays the handler's own responsibility.
func (q *Queue) dispatchDelivery(ctx context.Context, ch *ChannelWrapper, cs *consumerState, msg *Message) {
	result, err := cs.handler(ctx, msg)
	if err != nil {
		q.connection.logger().Error().Err(&ConsumerError{Queue: q.name, Cause: err}).Msg("topology: consumer callback failed")

		return
	}

	replyTo, _ := msg.Properties["replyTo"].(string)
	if replyTo == "" {
		return
	}

	reply, wrapErr := asReplyMessage(result)
	if wrapErr != nil {
		q.connection.logger().Error().Err(wrapErr).Str("queue", q.name).Msg("topology: failed to encode RPC reply")

		return
	}

	if corrID, ok := msg.Properties["correlationId"].(string); ok {
		reply.Properties["correlationId"] = corrID
	}

	if pubErr := ch.publish("", replyTo, reply.toPublishing()); pubErr != nil {
		q.connection.logger().Error().Err(pubErr).Str("queue", q.name).Msg("topology: failed to publish RPC reply")
	}
}

// asReplyMessage wraps an RPC handler's return value into a Message,
// passing an already-built Message through unchanged.
func asReplyMessage(v any) (*Message, error) {
	if m, ok := v.(*Message); ok {
		return m, nil
	}

	return NewMessage(v)
}

// StopConsumer cancels the active consumer, if any.
func (q *Queue) StopConsumer() error {
	q.consumerMu.Lock()
	cs := q.consumer
	if cs != nil {
		cs.active = false
	}
	q.consumer = nil
	q.consumerMu.Unlock()

	if cs == nil {
		return nil
	}

	ch := q.channel()
	if ch == nil {
		return nil
	}

	return ch.cancel(cs.tag)
}

// Bind declares a binding with this queue as the destination.
func (q *Queue) Bind(ctx context.Context, source *Exchange, pattern string, args Table) (*Binding, error) {
	return q.connection.bind(ctx, source, q, pattern, args)
}

// Unbind removes a previously declared binding.
func (q *Queue) Unbind(ctx context.Context, source *Exchange, pattern string) error {
	return q.connection.unbind(ctx, source, q, pattern)
}

// publishViaDefaultExchange implements Message.SendTo for a Queue
// destination: publish through the default (nameless) exchange with the
// queue's name as routing key, per spec.md's default-exchange convention.
func (q *Queue) publishViaDefaultExchange(ctx context.Context, msg *Message) error {
	if err := q.waitReady(ctx); err != nil {
		return err
	}

	ch := q.channel()
	if ch == nil {
		return fmt.Errorf("topology: queue %q has no open channel", q.name)
	}

	if err := ch.publish("", q.name, msg.toPublishing()); err != nil {
		q.connection.triggerRebuild(q.connection.currentGeneration(), err)

		if waitErr := q.waitReady(ctx); waitErr != nil {
			return waitErr
		}

		ch = q.channel()
		if ch == nil {
			return fmt.Errorf("topology: queue %q has no open channel", q.name)
		}

		if retryErr := ch.publish("", q.name, msg.toPublishing()); retryErr != nil {
			return &PublishFailedError{RoutingKey: q.name, Cause: retryErr}
		}
	}

	return nil
}
