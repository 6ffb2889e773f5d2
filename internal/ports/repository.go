//go:generate go tool github.com/maxbrunsfeld/counterfeiter/v6 -generate

package ports

import (
	"context"
	"time"

	"github.com/architeacher/amqp-topology/internal/domain"
	"github.com/jmoiron/sqlx"
)

//counterfeiter:generate -o ../mocks/outbox_repository.go . OutboxRepository
type (
	// OutboxRepository handles outbox events for reliable message delivery.
	OutboxRepository interface {
		// SaveInTx saves an outbox event within a transaction.
		SaveInTx(ctx context.Context, tx *sqlx.Tx, event *domain.OutboxEvent) error

		// FindPending finds pending outbox events ordered by priority and creation time.
		FindPending(ctx context.Context, limit int) ([]*domain.OutboxEvent, error)

		// FindRetryable finds failed events that are ready for retry.
		FindRetryable(ctx context.Context, limit int) ([]*domain.OutboxEvent, error)

		// ClaimForProcessing atomically claims an event for processing.
		ClaimForProcessing(ctx context.Context, eventID string) (*domain.OutboxEvent, error)

		// MarkPublished marks an event as successfully published.
		MarkPublished(ctx context.Context, eventID string) error

		// MarkProcessed marks when a subscriber starts processing the message.
		MarkProcessed(ctx context.Context, eventID string) error

		// MarkCompleted marks when a subscriber completes processing the message.
		MarkCompleted(ctx context.Context, eventID string) error

		// MarkFailed marks an event as failed with error details and retry timing.
		MarkFailed(ctx context.Context, eventID string, errorDetails string, nextRetryAt *time.Time) error

		// MarkPermanentlyFailed marks an event as permanently failed after max retries.
		MarkPermanentlyFailed(ctx context.Context, eventID string, errorDetails string) error

		// GetByAggregateID retrieves the most recent outbox event for an aggregate.
		GetByAggregateID(ctx context.Context, aggregateID string) (*domain.OutboxEvent, error)
	}
)
