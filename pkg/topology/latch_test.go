package topology

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLatch_WaitResolvesOnce(t *testing.T) {
	t.Parallel()

	l := newLatch()
	assert.False(t, l.isResolved())

	go func() {
		l.resolve(nil)
		l.resolve(errors.New("ignored: already resolved"))
	}()

	err := l.wait(context.Background())
	assert.NoError(t, err)
	assert.True(t, l.isResolved())
}

func TestLatch_WaitReturnsResolveError(t *testing.T) {
	t.Parallel()

	l := newLatch()
	wantErr := errors.New("assertion failed")
	l.resolve(wantErr)

	err := l.wait(context.Background())
	assert.ErrorIs(t, err, wantErr)
}

func TestLatch_WaitCanceledByContext(t *testing.T) {
	t.Parallel()

	l := newLatch()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := l.wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
