package service

import (
	"context"
	"fmt"

	"github.com/architeacher/amqp-topology/internal/domain"
	"github.com/architeacher/amqp-topology/internal/infrastructure"
	"github.com/architeacher/amqp-topology/internal/ports"
	"github.com/architeacher/amqp-topology/pkg/topology"
)

type (
	// SubscriberService handles a delivered message on the consumer side:
	// it resolves the outbox event the message originated from and advances
	// its lifecycle to processed/completed.
	SubscriberService interface {
		ProcessMessage(ctx context.Context, aggregateID string, msg *topology.Message) (*domain.ProcessMessageResult, error)
	}

	subscriberService struct {
		outboxRepo ports.OutboxRepository
		logger     infrastructure.Logger
	}
)

func NewSubscriberService(
	outboxRepo ports.OutboxRepository,
	logger infrastructure.Logger,
) SubscriberService {
	return subscriberService{
		outboxRepo: outboxRepo,
		logger:     logger,
	}
}

func (s subscriberService) ProcessMessage(ctx context.Context, aggregateID string, msg *topology.Message) (*domain.ProcessMessageResult, error) {
	s.logger.Info().
		Str("aggregate_id", aggregateID).
		Msg("processing delivered message")

	outboxEvent, err := s.outboxRepo.GetByAggregateID(ctx, aggregateID)
	if err != nil {
		return &domain.ProcessMessageResult{
			Success:      false,
			ErrorCode:    "OUTBOX_ERROR",
			ErrorMessage: fmt.Sprintf("failed to get outbox event: %v", err),
		}, nil
	}

	if err := s.outboxRepo.MarkProcessed(ctx, outboxEvent.ID.String()); err != nil {
		return &domain.ProcessMessageResult{
			Success:      false,
			ErrorCode:    "OUTBOX_ERROR",
			ErrorMessage: fmt.Sprintf("failed to mark outbox event as processed: %v", err),
		}, nil
	}

	var body any
	if err := msg.Unmarshal(&body); err != nil {
		s.logger.Warn().Err(err).
			Str("aggregate_id", aggregateID).
			Msg("failed to unmarshal message body, continuing with raw content")
	}

	if err := s.outboxRepo.MarkCompleted(ctx, outboxEvent.ID.String()); err != nil {
		return &domain.ProcessMessageResult{
			Success:      false,
			ErrorCode:    "OUTBOX_ERROR",
			ErrorMessage: fmt.Sprintf("failed to mark outbox event as completed: %v", err),
		}, nil
	}

	s.logger.Info().
		Str("aggregate_id", aggregateID).
		Str("event_id", outboxEvent.ID.String()).
		Msg("successfully processed message")

	return &domain.ProcessMessageResult{Success: true}, nil
}
