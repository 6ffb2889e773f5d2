// Package breaker adapts sony/gobreaker to topology.DialBreaker, wrapping
// broker dial attempts so a flapping connection trips the breaker instead of
// hammering the server with reconnects.
package breaker

import (
	"github.com/architeacher/amqp-topology/internal/config"
	"github.com/sony/gobreaker"
)

// DialBreaker wraps a gobreaker.CircuitBreaker so it satisfies
// topology.DialBreaker's Execute(func() error) error shape.
type DialBreaker struct {
	cb *gobreaker.CircuitBreaker
}

func New(cfg config.CircuitBreakerConfig) *DialBreaker {
	settings := gobreaker.Settings{
		Name:        "amqp-dial",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 2
		},
	}

	return &DialBreaker{cb: gobreaker.NewCircuitBreaker(settings)}
}

// Execute runs dial through the breaker. When the breaker is open it
// returns gobreaker.ErrOpenState without invoking dial.
func (b *DialBreaker) Execute(dial func() error) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, dial()
	})

	return err
}
