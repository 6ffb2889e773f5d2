package topology

import (
	"context"
	"sync"
)

// latch is a one-shot readiness signal: it resolves exactly once, either to
// nil (ready) or to an error (the declaration that would have produced this
// incarnation failed). Replacing the latch wholesale on every rebuild is
// sound because new callers always read the current field value, while
// callers already waiting on a previous latch keep observing it to
// completion, per DESIGN NOTES §9.
type latch struct {
	done chan struct{}
	once sync.Once
	err  error
}

func newLatch() *latch {
	return &latch{done: make(chan struct{})}
}

// resolve fulfills the latch. Only the first call has any effect.
func (l *latch) resolve(err error) {
	l.once.Do(func() {
		l.err = err
		close(l.done)
	})
}

// wait blocks until the latch resolves or ctx is canceled.
func (l *latch) wait(ctx context.Context) error {
	select {
	case <-l.done:
		return l.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// isResolved reports whether the latch has already fired, without blocking.
func (l *latch) isResolved() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}
