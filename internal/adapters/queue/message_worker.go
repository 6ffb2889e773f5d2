package queue

import (
	"context"

	"github.com/architeacher/amqp-topology/internal/infrastructure"
	"github.com/architeacher/amqp-topology/internal/service"
	"github.com/architeacher/amqp-topology/pkg/topology"
)

// MessageWorker adapts SubscriberService to a topology.ConsumerHandler,
// acking on success and nacking with requeue on any processing failure.
type MessageWorker struct {
	svc    service.SubscriberService
	logger infrastructure.Logger
}

func NewMessageWorker(svc service.SubscriberService, logger infrastructure.Logger) *MessageWorker {
	return &MessageWorker{
		svc:    svc,
		logger: logger,
	}
}

// Handle satisfies topology.ConsumerHandler. The aggregate ID travels in the
// message's correlation ID header set by the publisher.
func (w *MessageWorker) Handle(ctx context.Context, msg *topology.Message) (any, error) {
	aggregateID, _ := msg.Properties["correlationId"].(string)

	result, err := w.svc.ProcessMessage(ctx, aggregateID, msg)
	if err != nil {
		w.logger.Error().Err(err).Str("aggregate_id", aggregateID).
			Msg("failed to process message")

		if nackErr := msg.Nack(false, true); nackErr != nil {
			w.logger.Error().Err(nackErr).Msg("failed to nack delivery")
		}

		return nil, err
	}

	if !result.Success {
		w.logger.Warn().
			Str("aggregate_id", aggregateID).
			Str("error_code", result.ErrorCode).
			Str("error_message", result.ErrorMessage).
			Msg("message processing completed with error")

		if nackErr := msg.Nack(false, true); nackErr != nil {
			w.logger.Error().Err(nackErr).Msg("failed to nack delivery")
		}

		return nil, nil
	}

	if ackErr := msg.Ack(false); ackErr != nil {
		w.logger.Error().Err(ackErr).Msg("failed to ack delivery")
	}

	return nil, nil
}
