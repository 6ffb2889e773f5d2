package outbox

import (
	"context"
	"sync"
	"time"

	"github.com/architeacher/amqp-topology/internal/domain"
	"github.com/architeacher/amqp-topology/internal/infrastructure"
	"github.com/architeacher/amqp-topology/internal/ports"
	"github.com/architeacher/amqp-topology/internal/service"
)

// Ensure Processor implements the BackgroundProcessor interface.
var _ ports.BackgroundProcessor = (*Processor)(nil)

type Processor struct {
	svc          service.PublisherService
	logger       infrastructure.Logger
	pollInterval time.Duration
	batchSize    int
}

func NewProcessor(
	svc service.PublisherService,
	logger infrastructure.Logger,
	pollInterval time.Duration,
	batchSize int,
) *Processor {
	return &Processor{
		svc:          svc,
		logger:       logger,
		pollInterval: pollInterval,
		batchSize:    batchSize,
	}
}

func (p *Processor) Start(ctx context.Context) error {
	p.logger.Info().Msg("starting outbox processor")

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("outbox processor shutting down")

			return ctx.Err()

		case <-ticker.C:
			var wg sync.WaitGroup

			wg.Go(func() {
				if err := p.processPendingEvents(ctx); err != nil {
					p.logger.Error().Err(err).Msg("failed to process pending events")
				}
			})

			wg.Go(func() {
				if err := p.processRetryableEvents(ctx); err != nil {
					p.logger.Error().Err(err).Msg("failed to process retryable events")
				}
			})

			wg.Wait()
		}
	}
}

func (p *Processor) processPendingEvents(ctx context.Context) error {
	events, err := p.svc.FetchPendingEvents(ctx, p.batchSize)
	if err != nil {
		return err
	}

	if len(events) == 0 {
		return nil
	}

	p.logger.Debug().Int("count", len(events)).Msg("processing pending outbox events")

	p.publishAll(ctx, events, "pending")

	return nil
}

func (p *Processor) processRetryableEvents(ctx context.Context) error {
	events, err := p.svc.FetchRetryableEvents(ctx, p.batchSize)
	if err != nil {
		return err
	}

	if len(events) == 0 {
		return nil
	}

	p.logger.Debug().Int("count", len(events)).Msg("processing retryable outbox events")

	p.publishAll(ctx, events, "retryable")

	return nil
}

func (p *Processor) publishAll(ctx context.Context, events []*domain.OutboxEvent, class string) {
	var wg sync.WaitGroup

	for _, event := range events {
		wg.Go(func() {
			if _, err := p.svc.PublishEvent(ctx, event); err != nil {
				p.logger.Error().
					Err(err).
					Str("event_id", event.ID.String()).
					Str("class", class).
					Msg("failed to process event")
			}
		})
	}

	wg.Wait()
}
