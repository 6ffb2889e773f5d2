package service

import (
	"context"
	"fmt"
	"time"

	"github.com/architeacher/amqp-topology/internal/domain"
	"github.com/architeacher/amqp-topology/internal/infrastructure"
	"github.com/architeacher/amqp-topology/internal/ports"
	"github.com/architeacher/amqp-topology/internal/shared/backoff"
	"github.com/architeacher/amqp-topology/pkg/topology"
)

type (
	// PublisherService drains the outbox table and publishes its events to
	// the broker, moving each event through pending -> processing ->
	// published/failed.
	PublisherService interface {
		FetchPendingEvents(ctx context.Context, batchSize int) ([]*domain.OutboxEvent, error)
		FetchRetryableEvents(ctx context.Context, batchSize int) ([]*domain.OutboxEvent, error)
		PublishEvent(ctx context.Context, event *domain.OutboxEvent) (*domain.PublishOutboxEventResult, error)
	}

	// ExchangePublisher is the slice of *topology.Exchange this service
	// depends on, narrowed to a small interface so tests can substitute a
	// fake instead of declaring a real exchange against a broker.
	// *topology.Exchange satisfies it without any adaptation.
	ExchangePublisher interface {
		Send(ctx context.Context, msg *topology.Message, routingKey string) error
	}

	publisherService struct {
		outboxRepo      ports.OutboxRepository
		exchange        ExchangePublisher
		backoffStrategy backoff.Strategy
		logger          infrastructure.Logger
		metrics         infrastructure.Metrics
	}
)

func NewPublisherService(
	outboxRepo ports.OutboxRepository,
	exchange ExchangePublisher,
	backoffStrategy backoff.Strategy,
	logger infrastructure.Logger,
	metrics infrastructure.Metrics,
) PublisherService {
	return publisherService{
		outboxRepo:      outboxRepo,
		exchange:        exchange,
		backoffStrategy: backoffStrategy,
		logger:          logger,
		metrics:         metrics,
	}
}

func (s publisherService) FetchPendingEvents(ctx context.Context, batchSize int) ([]*domain.OutboxEvent, error) {
	return s.outboxRepo.FindPending(ctx, batchSize)
}

func (s publisherService) FetchRetryableEvents(ctx context.Context, batchSize int) ([]*domain.OutboxEvent, error) {
	return s.outboxRepo.FindRetryable(ctx, batchSize)
}

func (s publisherService) PublishEvent(ctx context.Context, event *domain.OutboxEvent) (*domain.PublishOutboxEventResult, error) {
	claimedEvent, err := s.outboxRepo.ClaimForProcessing(ctx, event.ID.String())
	if err != nil {
		s.logger.Debug().
			Str("event_id", event.ID.String()).
			Msg("failed to claim event for processing")

		return &domain.PublishOutboxEventResult{
			Published: false,
			Error:     fmt.Sprintf("failed to claim event: %v", err),
		}, nil
	}

	routingKey := routingKeyFor(claimedEvent)

	msg, err := topology.NewMessage(claimedEvent.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to build message: %w", err)
	}

	msg.Properties["correlationId"] = claimedEvent.AggregateID.String()

	if err := s.exchange.Send(ctx, msg, routingKey); err != nil {
		if handleErr := s.handlePublishFailure(ctx, claimedEvent, err); handleErr != nil {
			s.logger.Error().
				Err(handleErr).
				Str("event_id", claimedEvent.ID.String()).
				Msg("failed to handle publish failure")
		}

		s.logger.Debug().
			Str("event_id", claimedEvent.ID.String()).
			Msg("failed to publish event to exchange")

		return &domain.PublishOutboxEventResult{
			Published: false,
			Error:     fmt.Sprintf("failed to publish to exchange: %v", err),
		}, nil
	}

	if err := s.outboxRepo.MarkPublished(ctx, claimedEvent.ID.String()); err != nil {
		return &domain.PublishOutboxEventResult{
			Published: false,
			Error:     fmt.Sprintf("failed to mark as published: %v", err),
		}, nil
	}

	s.metrics.RecordOutboxEvent(ctx, true, string(claimedEvent.Priority))

	s.logger.Debug().
		Str("event_id", claimedEvent.ID.String()).
		Str("event_type", string(claimedEvent.EventType)).
		Str("routing_key", routingKey).
		Msg("successfully published outbox event")

	return &domain.PublishOutboxEventResult{Published: true}, nil
}

func (s publisherService) handlePublishFailure(ctx context.Context, event *domain.OutboxEvent, publishErr error) error {
	errorDetails := publishErr.Error()

	s.metrics.RecordOutboxEvent(ctx, false, string(event.Priority))

	if event.RetryCount >= event.MaxRetries {
		if err := s.outboxRepo.MarkPermanentlyFailed(ctx, event.ID.String(), errorDetails); err != nil {
			return fmt.Errorf("failed to mark event as permanently failed: %w", err)
		}

		s.logger.Warn().
			Str("event_id", event.ID.String()).
			Int("retry_count", event.RetryCount).
			Msg("event permanently failed after max retries")

		return nil
	}

	backoffDuration := s.backoffStrategy.Backoff(event.RetryCount)
	nextRetryAt := time.Now().Add(backoffDuration)

	if err := s.outboxRepo.MarkFailed(ctx, event.ID.String(), errorDetails, &nextRetryAt); err != nil {
		return fmt.Errorf("failed to mark event as failed: %w", err)
	}

	s.logger.Debug().
		Str("event_id", event.ID.String()).
		Int("retry_count", event.RetryCount+1).
		Time("next_retry_at", nextRetryAt).
		Msg("event scheduled for retry")

	return nil
}

// routingKeyFor prefers the routing key embedded in the message payload and
// falls back to the event type, keeping old rows without a MessagePayload
// routable.
func routingKeyFor(event *domain.OutboxEvent) string {
	if payload, ok := event.Payload.(domain.MessagePayload); ok && payload.RoutingKey != "" {
		return payload.RoutingKey
	}

	return string(event.EventType)
}
