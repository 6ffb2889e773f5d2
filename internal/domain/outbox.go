//go:generate go tool github.com/maxbrunsfeld/counterfeiter/v6 -generate

package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	OutboxStatusPending    OutboxStatus = "pending"
	OutboxStatusProcessing OutboxStatus = "processing"
	OutboxStatusPublished  OutboxStatus = "published"
	OutboxStatusFailed     OutboxStatus = "failed"

	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"

	OutboxEventTopologyMessage OutboxEventType = "topology.message"
	OutboxEventTopologyRetry   OutboxEventType = "topology.message.retry"
)

type (
	OutboxStatus    string
	Priority        string
	OutboxEventType string

	// OutboxEvent models a row in the outbox table: a message destined for
	// an exchange that must be published exactly once, relative to the
	// transaction that created it.
	OutboxEvent struct {
		ID            uuid.UUID       `json:"id"`
		AggregateID   uuid.UUID       `json:"aggregate_id"`
		AggregateType string          `json:"aggregate_type"`
		EventType     OutboxEventType `json:"event_type"`
		Priority      Priority        `json:"priority"`
		RetryCount    int             `json:"retry_count"`
		MaxRetries    int             `json:"max_retries"`
		Status        OutboxStatus    `json:"status"`
		Payload       any             `json:"payload"`
		ErrorDetails  *string         `json:"error_details,omitempty"`
		CreatedAt     time.Time       `json:"created_at"`
		StartedAt     *time.Time      `json:"started_at,omitempty"`
		PublishedAt   *time.Time      `json:"published_at,omitempty"`
		ProcessedAt   *time.Time      `json:"processed_at,omitempty"`
		CompletedAt   *time.Time      `json:"completed_at,omitempty"`
		NextRetryAt   *time.Time      `json:"next_retry_at,omitempty"`
	}

	// MessagePayload is the body carried by a topology.message outbox event,
	// routed to the configured exchange under RoutingKey.
	MessagePayload struct {
		RoutingKey string    `json:"routing_key"`
		Body       any       `json:"body"`
		Priority   Priority  `json:"priority"`
		CreatedAt  time.Time `json:"created_at"`
	}

	// ProcessMessageResult represents the result of handling a consumed
	// message on the subscriber side.
	ProcessMessageResult struct {
		Success      bool
		ErrorCode    string
		ErrorMessage string
	}

	// PublishOutboxEventResult represents the result of publishing an
	// outbox event to the broker.
	PublishOutboxEventResult struct {
		Published bool
		Error     string
	}
)

func (e *OutboxEvent) MarkPublished(publishedAt time.Time) error {
	if e.Status != OutboxStatusProcessing {
		return &InvalidStateTransitionError{
			From: string(e.Status),
			To:   string(OutboxStatusPublished),
		}
	}

	now := publishedAt
	e.Status = OutboxStatusPublished
	e.PublishedAt = &now

	return nil
}

func (e *OutboxEvent) MarkProcessed(processedAt time.Time) error {
	if e.Status != OutboxStatusPublished {
		return &InvalidStateTransitionError{
			From: string(e.Status),
			To:   "processed",
		}
	}

	now := processedAt
	e.ProcessedAt = &now

	return nil
}

func (e *OutboxEvent) MarkCompleted(completedAt time.Time) error {
	if e.ProcessedAt == nil {
		return &InvalidStateTransitionError{
			From: string(e.Status),
			To:   "completed",
		}
	}

	now := completedAt
	e.CompletedAt = &now

	return nil
}

func (e *OutboxEvent) MarkFailed(errorDetails string, nextRetryAt *time.Time) error {
	if e.RetryCount >= e.MaxRetries {
		return &MaxRetriesExceededError{
			EventID:    e.ID.String(),
			RetryCount: e.RetryCount,
			MaxRetries: e.MaxRetries,
		}
	}

	e.Status = OutboxStatusFailed
	e.ErrorDetails = &errorDetails
	e.NextRetryAt = nextRetryAt
	e.RetryCount++

	return nil
}

func (e *OutboxEvent) CanRetry() bool {
	return e.RetryCount < e.MaxRetries
}
