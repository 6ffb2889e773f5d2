package backoff_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/architeacher/amqp-topology/internal/config"
	"github.com/architeacher/amqp-topology/internal/shared/backoff"
)

func newStrategy() backoff.Exponential {
	return backoff.NewExponentialStrategy(config.BackoffConfig{
		BaseDelay:  100 * time.Millisecond,
		Multiplier: 2,
		Jitter:     0,
		MaxDelay:   2 * time.Second,
	})
}

func TestExponential_Backoff_FirstRetryIsBaseDelay(t *testing.T) {
	t.Parallel()

	s := newStrategy()

	require.Equal(t, 100*time.Millisecond, s.Backoff(0))
}

func TestExponential_Backoff_GrowsWithRetryCount(t *testing.T) {
	t.Parallel()

	s := newStrategy()

	require.Equal(t, 200*time.Millisecond, s.Backoff(1))
	require.Equal(t, 400*time.Millisecond, s.Backoff(2))
	require.Equal(t, 800*time.Millisecond, s.Backoff(3))
}

func TestExponential_Backoff_CapsAtMaxDelay(t *testing.T) {
	t.Parallel()

	s := newStrategy()

	require.Equal(t, 2*time.Second, s.Backoff(10))
}

func TestExponential_Backoff_JitterStaysWithinBounds(t *testing.T) {
	t.Parallel()

	s := backoff.NewExponentialStrategy(config.BackoffConfig{
		BaseDelay:  100 * time.Millisecond,
		Multiplier: 2,
		Jitter:     0.5,
		MaxDelay:   time.Second,
	})

	for i := 0; i < 50; i++ {
		d := s.Backoff(2)
		require.GreaterOrEqual(t, d, time.Duration(0))
		require.LessOrEqual(t, d, time.Second)
	}
}
