package topology

import (
	"context"
	"fmt"
	"sync"
)

// Binding links a source Exchange to a destination Entity (Exchange or
// Queue) via a routing pattern, per spec.md §4.5. Its identity is the
// (destination kind, destination name, source name, pattern) tuple, so the
// same source/pattern can fan out to many destinations and the registry can
// detect duplicates.
type Binding struct {
	mu sync.Mutex

	source      *Exchange
	destination Entity
	pattern     string
	args        Table

	connection *Connection

	initialized *latch
	deleting    *latch
}

// bindingID derives the registry key for a binding, discriminating queue
// and exchange destinations so an exchange and a queue with the same name
// never collide.
func bindingID(destination Entity, sourceName, pattern string) string {
	kind := "exchange"
	if _, ok := destination.(*Queue); ok {
		kind = "queue"
	}

	return fmt.Sprintf("%s:%s<-%s:%s", kind, destination.Name(), sourceName, pattern)
}

func newBinding(source *Exchange, destination Entity, pattern string, args Table, conn *Connection) (*Binding, error) {
	if source == nil {
		return nil, ErrInvalidBindingSource
	}

	switch destination.(type) {
	case *Queue, *Exchange:
	default:
		return nil, ErrInvalidBinding
	}

	return &Binding{
		source:      source,
		destination: destination,
		pattern:     pattern,
		args:        args,
		connection:  conn,
		initialized: newLatch(),
	}, nil
}

func (b *Binding) id() string {
	return bindingID(b.destination, b.source.Name(), b.pattern)
}

// initialize declares the binding on the broker, waiting first for both
// endpoints to be ready. Bindings are re-declared on every rebuild by the
// owning Connection, in the same order as initial declaration (exchanges,
// then queues, then bindings).
func (b *Binding) initialize(ctx context.Context) error {
	if err := b.source.waitReady(ctx); err != nil {
		b.resolveInitialized(err)

		return err
	}

	var destReady <-chan struct{}
	switch d := b.destination.(type) {
	case *Queue:
		destReady = d.Initialized()
	case *Exchange:
		destReady = d.Initialized()
	}

	select {
	case <-destReady:
	case <-ctx.Done():
		b.resolveInitialized(ctx.Err())

		return ctx.Err()
	}

	ch := b.destinationChannel()
	if ch == nil {
		err := fmt.Errorf("topology: binding destination %q has no open channel", b.destination.Name())
		b.resolveInitialized(err)

		return err
	}

	var err error
	switch b.destination.(type) {
	case *Queue:
		err = ch.bindQueue(b.destination.Name(), b.source.Name(), b.pattern, b.args)
	case *Exchange:
		err = ch.bindExchange(b.destination.Name(), b.source.Name(), b.pattern, b.args)
	}

	if err != nil {
		wrapped := &AssertionFailedError{Kind: "binding", Name: b.id(), Cause: err}
		b.connection.forgetBinding(b.id())
		b.resolveInitialized(wrapped)

		return wrapped
	}

	b.resolveInitialized(nil)

	return nil
}

func (b *Binding) destinationChannel() *ChannelWrapper {
	switch d := b.destination.(type) {
	case *Queue:
		return d.channel()
	case *Exchange:
		return d.channel()
	default:
		return nil
	}
}

func (b *Binding) resolveInitialized(err error) {
	b.mu.Lock()
	l := b.initialized
	b.mu.Unlock()

	if l != nil {
		l.resolve(err)
	}
}

// delete removes the binding from the broker, best-effort: if the
// destination's channel is already gone (connection down, entity deleted)
// it is treated as already-removed.
func (b *Binding) delete(ctx context.Context) error {
	b.mu.Lock()
	if b.deleting != nil {
		l := b.deleting
		b.mu.Unlock()

		return l.wait(ctx)
	}
	l := newLatch()
	b.deleting = l
	b.mu.Unlock()

	ch := b.destinationChannel()
	var err error
	if ch != nil {
		switch b.destination.(type) {
		case *Queue:
			err = ch.unbindQueue(b.destination.Name(), b.source.Name(), b.pattern, b.args)
		case *Exchange:
			err = ch.unbindExchange(b.destination.Name(), b.source.Name(), b.pattern, b.args)
		}
	}

	l.resolve(err)

	return err
}

// Initialized returns a channel closed once the binding's current
// incarnation has been declared (or failed).
func (b *Binding) Initialized() <-chan struct{} {
	b.mu.Lock()
	l := b.initialized
	b.mu.Unlock()

	if l == nil {
		closed := make(chan struct{})
		close(closed)

		return closed
	}

	return l.done
}
