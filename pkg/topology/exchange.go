package topology

import (
	"context"
	"fmt"
	"sync"
)

// Exchange is a declared AMQP exchange. It embeds node for the shared
// readiness/teardown machinery and adds publish and RPC behavior, per
// spec.md §4.3.
type Exchange struct {
	node

	kind string
	opts ExchangeOptions

	rpcMu sync.Mutex
	rpc   *rpcDispatcher
}

func newExchange(name, kind string, opts ExchangeOptions, conn *Connection) *Exchange {
	return &Exchange{
		node: newNode(name, conn),
		kind: kind,
		opts: opts,
	}
}

// initialize opens a fresh channel, installs the direct reply-to consumer,
// and asserts (or passively checks) the exchange. Called by the owning
// Connection on first declaration and on every rebuild.
func (e *Exchange) initialize(ctx context.Context) error {
	ch, err := e.connection.newChannel(e.logger())
	if err != nil {
		return err
	}

	latch := e.freshIncarnation(ch)

	dispatcher := newRPCDispatcher()
	if startErr := dispatcher.start(ch); startErr != nil {
		e.connection.forgetExchange(e.name)
		latch.resolve(startErr)

		return startErr
	}

	e.rpcMu.Lock()
	e.rpc = dispatcher
	e.rpcMu.Unlock()

	if declErr := ch.declareExchange(ctx, e.name, e.kind, e.opts); declErr != nil {
		wrapped := &AssertionFailedError{Kind: "exchange", Name: e.name, Cause: declErr}
		e.connection.forgetExchange(e.name)
		latch.resolve(wrapped)

		return wrapped
	}

	latch.resolve(nil)

	return nil
}

func (e *Exchange) logger() Logger {
	return e.connection.logger()
}

// delete tears down the exchange: deletes it from the broker (unless
// noCreate) and removes every binding that names it as source or
// destination.
func (e *Exchange) delete(ctx context.Context) error {
	latch, alreadyInFlight := e.beginDeleting()
	if alreadyInFlight {
		return latch.wait(ctx)
	}

	var err error
	if !e.opts.NoCreate {
		if ch := e.channel(); ch != nil {
			err = ch.deleteExchange(e.name)
		}
	}

	e.connection.forgetExchange(e.name)
	e.connection.removeBindingsContaining(e.name)
	latch.resolve(err)

	return err
}

// close releases the exchange's channel without deleting the exchange from
// the broker, per spec.md's close-vs-delete distinction.
func (e *Exchange) close(ctx context.Context) error {
	latch, alreadyInFlight := e.beginClosing()
	if alreadyInFlight {
		return latch.wait(ctx)
	}

	var err error
	if ch := e.channel(); ch != nil {
		err = ch.Close()
	}

	e.clearInitialized()
	latch.resolve(err)

	return err
}

// Send publishes msg to this exchange with routingKey, waiting for the
// exchange to be ready first.
func (e *Exchange) Send(ctx context.Context, msg *Message, routingKey string) error {
	return e.publish(ctx, msg, routingKey, true)
}

func (e *Exchange) publish(ctx context.Context, msg *Message, routingKey string, retry bool) error {
	if err := e.waitReady(ctx); err != nil {
		return err
	}

	ch := e.channel()
	if ch == nil {
		return fmt.Errorf("topology: exchange %q has no open channel", e.name)
	}

	if err := ch.publish(e.name, routingKey, msg.toPublishing()); err != nil {
		if !retry {
			return &PublishFailedError{Exchange: e.name, RoutingKey: routingKey, Cause: err}
		}

		e.connection.triggerRebuild(e.connection.currentGeneration(), err)

		if waitErr := e.waitReady(ctx); waitErr != nil {
			return waitErr
		}

		return e.publish(ctx, msg, routingKey, false)
	}

	return nil
}

// RPC publishes payload to this exchange with a fresh correlation ID and a
// replyTo of amq.rabbitmq.reply-to, and blocks for the correlated response
// or ctx's cancellation.
func (e *Exchange) RPC(ctx context.Context, payload any, routingKey string) (*Message, error) {
	if err := e.waitReady(ctx); err != nil {
		return nil, err
	}

	msg, err := NewMessage(payload)
	if err != nil {
		return nil, err
	}

	correlationID := newCorrelationID()
	msg.Properties["correlationId"] = correlationID
	msg.Properties["replyTo"] = replyToQueue

	ch := e.channel()
	if ch == nil {
		return nil, fmt.Errorf("topology: exchange %q has no open channel", e.name)
	}

	e.rpcMu.Lock()
	dispatcher := e.rpc
	e.rpcMu.Unlock()

	return dispatcher.await(ctx, correlationID, func() error {
		return ch.publish(e.name, routingKey, msg.toPublishing())
	})
}

// Bind declares a binding with this exchange as the source.
func (e *Exchange) Bind(ctx context.Context, destination Entity, pattern string, args Table) (*Binding, error) {
	return e.connection.bind(ctx, e, destination, pattern, args)
}

// Unbind removes a previously declared binding.
func (e *Exchange) Unbind(ctx context.Context, destination Entity, pattern string) error {
	return e.connection.unbind(ctx, e, destination, pattern)
}
