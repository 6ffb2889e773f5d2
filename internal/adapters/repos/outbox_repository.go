package repos

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/architeacher/amqp-topology/internal/domain"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const topologyOutboxTable = "topology_outbox_events"

var sqlBuilder = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var outboxColumns = []string{
	"id", "aggregate_id", "aggregate_type", "event_type", "priority",
	"retry_count", "max_retries", "status", "payload", "error_details",
	"created_at", "started_at", "published_at", "processed_at", "completed_at", "next_retry_at",
}

type (
	// OutboxRepository persists the events an Exchange has to publish at
	// least once, keyed by id; SaveInTx derives that id deterministically
	// when it is unset, so a retried save fails on the primary key rather
	// than adding a duplicate row.
	OutboxRepository struct {
		conn *sqlx.DB
	}

	outboxEventRow struct {
		ID            string     `db:"id"`
		AggregateID   string     `db:"aggregate_id"`
		AggregateType string     `db:"aggregate_type"`
		EventType     string     `db:"event_type"`
		Priority      string     `db:"priority"`
		RetryCount    int        `db:"retry_count"`
		MaxRetries    int        `db:"max_retries"`
		Status        string     `db:"status"`
		Payload       []byte     `db:"payload"`
		ErrorDetails  *string    `db:"error_details"`
		CreatedAt     time.Time  `db:"created_at"`
		StartedAt     *time.Time `db:"started_at"`
		PublishedAt   *time.Time `db:"published_at"`
		ProcessedAt   *time.Time `db:"processed_at"`
		CompletedAt   *time.Time `db:"completed_at"`
		NextRetryAt   *time.Time `db:"next_retry_at"`
	}
)

func NewOutboxRepository(db *sqlx.DB) *OutboxRepository {
	return &OutboxRepository{conn: db}
}

// SaveInTx inserts event inside the caller's transaction, deriving a
// deterministic id from aggregate/event/created_at when the caller didn't
// set one so a retried publish attempt collides on the primary key instead
// of double-inserting.
func (r *OutboxRepository) SaveInTx(ctx context.Context, tx *sqlx.Tx, event *domain.OutboxEvent) error {
	if event.ID == uuid.Nil {
		event.ID = deriveEventID(event)
	}

	payloadJSON, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("topology outbox: marshal payload: %w", err)
	}

	query, args, err := sqlBuilder.Insert(topologyOutboxTable).
		Columns("id", "aggregate_id", "aggregate_type", "event_type", "priority",
			"retry_count", "max_retries", "status", "payload", "created_at").
		Values(event.ID, event.AggregateID, event.AggregateType, event.EventType, event.Priority,
			event.RetryCount, event.MaxRetries, event.Status, payloadJSON, event.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("topology outbox: build insert: %w", err)
	}

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("topology outbox: insert event: %w", err)
	}

	return nil
}

func deriveEventID(event *domain.OutboxEvent) uuid.UUID {
	name := fmt.Sprintf("%s::%s::%d", event.AggregateID, event.EventType, event.CreatedAt.Unix())

	return uuid.NewSHA1(OutboxNamespace, []byte(name))
}

// FindPending returns pending events, highest priority and oldest first so
// an Exchange.Send backlog drains in the order it was produced.
func (r *OutboxRepository) FindPending(ctx context.Context, limit int) ([]*domain.OutboxEvent, error) {
	return r.query(ctx,
		sq.Eq{"status": domain.OutboxStatusPending},
		[]string{"priority DESC", "created_at ASC"},
		limit,
	)
}

// FindRetryable returns failed events whose backoff has elapsed and that
// haven't exhausted retry_count, ordered so the longest-waiting retry goes
// out first.
func (r *OutboxRepository) FindRetryable(ctx context.Context, limit int) ([]*domain.OutboxEvent, error) {
	return r.query(ctx,
		sq.And{
			sq.Eq{"status": domain.OutboxStatusFailed},
			sq.NotEq{"next_retry_at": nil},
			sq.Expr("next_retry_at <= NOW()"),
			sq.Expr("retry_count < max_retries"),
		},
		[]string{"next_retry_at ASC"},
		limit,
	)
}

func (r *OutboxRepository) query(ctx context.Context, criteria sq.Sqlizer, orderBy []string, limit int) ([]*domain.OutboxEvent, error) {
	query, args, err := sqlBuilder.Select(outboxColumns...).
		From(topologyOutboxTable).
		Where(criteria).
		OrderBy(orderBy...).
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("topology outbox: build select: %w", err)
	}

	var rows []outboxEventRow
	if err := r.conn.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("topology outbox: query events: %w", err)
	}

	events := make([]*domain.OutboxEvent, 0, len(rows))
	for _, row := range rows {
		event, err := r.toDomain(row)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}

	return events, nil
}

// ClaimForProcessing flips a pending-or-failed event to processing and
// returns the row as it stood at claim time, so two publishers racing the
// same poll tick can't both send it to the exchange.
func (r *OutboxRepository) ClaimForProcessing(ctx context.Context, eventID string) (*domain.OutboxEvent, error) {
	tx, err := r.conn.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("topology outbox: begin claim tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query, args, err := sqlBuilder.Update(topologyOutboxTable).
		Set("status", domain.OutboxStatusProcessing).
		Set("started_at", sq.Expr("NOW()")).
		Where(sq.And{
			sq.Eq{"id": eventID},
			sq.Or{sq.Eq{"status": domain.OutboxStatusPending}, sq.Eq{"status": domain.OutboxStatusFailed}},
		}).
		Suffix("RETURNING " + strings.Join(outboxColumns, ", ")).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("topology outbox: build claim: %w", err)
	}

	var row outboxEventRow
	if err := tx.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("topology outbox: event %s not pending or already claimed", eventID)
		}

		return nil, fmt.Errorf("topology outbox: claim event: %w", err)
	}

	event, err := r.toDomain(row)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("topology outbox: commit claim: %w", err)
	}

	return event, nil
}

// MarkPublished records that the exchange accepted the message.
func (r *OutboxRepository) MarkPublished(ctx context.Context, eventID string) error {
	return r.updateInTx(ctx, eventID, "mark published", func(b sq.UpdateBuilder) sq.UpdateBuilder {
		return b.Set("status", domain.OutboxStatusPublished).Set("published_at", sq.Expr("NOW()"))
	})
}

// MarkProcessed records when the subscriber side starts handling the
// delivery built from this event.
func (r *OutboxRepository) MarkProcessed(ctx context.Context, eventID string) error {
	return r.updateNoTx(ctx, eventID, "mark processed", func(b sq.UpdateBuilder) sq.UpdateBuilder {
		return b.Set("processed_at", sq.Expr("NOW()"))
	})
}

// MarkCompleted records when the subscriber side finishes handling the
// delivery, independent of ack/nack.
func (r *OutboxRepository) MarkCompleted(ctx context.Context, eventID string) error {
	return r.updateNoTx(ctx, eventID, "mark completed", func(b sq.UpdateBuilder) sq.UpdateBuilder {
		return b.Set("completed_at", sq.Expr("NOW()"))
	})
}

// MarkFailed records a failed publish attempt and schedules the next retry.
func (r *OutboxRepository) MarkFailed(ctx context.Context, eventID string, errorDetails string, nextRetryAt *time.Time) error {
	return r.updateInTx(ctx, eventID, "mark failed", func(b sq.UpdateBuilder) sq.UpdateBuilder {
		return b.
			Set("status", domain.OutboxStatusFailed).
			Set("retry_count", sq.Expr("retry_count + 1")).
			Set("error_details", errorDetails).
			Set("next_retry_at", nextRetryAt)
	})
}

// MarkPermanentlyFailed records that an event exhausted its retry budget;
// next_retry_at is cleared so it no longer surfaces from FindRetryable.
func (r *OutboxRepository) MarkPermanentlyFailed(ctx context.Context, eventID string, errorDetails string) error {
	return r.updateInTx(ctx, eventID, "mark permanently failed", func(b sq.UpdateBuilder) sq.UpdateBuilder {
		return b.
			Set("status", domain.OutboxStatusFailed).
			Set("error_details", errorDetails).
			Set("next_retry_at", nil)
	})
}

// updateInTx applies mutate to an UPDATE against eventID inside its own
// transaction, failing if no row matched. Used by the status transitions
// that must be atomic with the column they bump (e.g. retry_count).
func (r *OutboxRepository) updateInTx(ctx context.Context, eventID, action string, mutate func(sq.UpdateBuilder) sq.UpdateBuilder) error {
	tx, err := r.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("topology outbox: begin %s tx: %w", action, err)
	}
	defer func() { _ = tx.Rollback() }()

	query, args, err := mutate(sqlBuilder.Update(topologyOutboxTable)).Where(sq.Eq{"id": eventID}).ToSql()
	if err != nil {
		return fmt.Errorf("topology outbox: build %s: %w", action, err)
	}

	if err := execAndCheck(ctx, tx, query, args, eventID, action); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("topology outbox: commit %s: %w", action, err)
	}

	return nil
}

// updateNoTx applies mutate directly against the pool, for timestamp-only
// updates that don't need transactional atomicity with anything else.
func (r *OutboxRepository) updateNoTx(ctx context.Context, eventID, action string, mutate func(sq.UpdateBuilder) sq.UpdateBuilder) error {
	query, args, err := mutate(sqlBuilder.Update(topologyOutboxTable)).Where(sq.Eq{"id": eventID}).ToSql()
	if err != nil {
		return fmt.Errorf("topology outbox: build %s: %w", action, err)
	}

	return execAndCheck(ctx, r.conn, query, args, eventID, action)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func execAndCheck(ctx context.Context, x execer, query string, args []any, eventID, action string) error {
	result, err := x.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("topology outbox: %s: %w", action, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("topology outbox: %s rows affected: %w", action, err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("topology outbox: event %s not found for %s", eventID, action)
	}

	return nil
}

// GetByAggregateID returns the most recently created event for aggregateID,
// used by callers reconciling what was last queued for a given entity.
func (r *OutboxRepository) GetByAggregateID(ctx context.Context, aggregateID string) (*domain.OutboxEvent, error) {
	query, args, err := sqlBuilder.Select(outboxColumns...).
		From(topologyOutboxTable).
		Where(sq.Eq{"aggregate_id": aggregateID}).
		OrderBy("created_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("topology outbox: build lookup: %w", err)
	}

	var row outboxEventRow
	if err := r.conn.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("topology outbox: no event for aggregate %s", aggregateID)
		}

		return nil, fmt.Errorf("topology outbox: lookup event: %w", err)
	}

	return r.toDomain(row)
}

func (r *OutboxRepository) toDomain(row outboxEventRow) (*domain.OutboxEvent, error) {
	id, err := uuid.Parse(row.ID)
	if err != nil {
		return nil, fmt.Errorf("topology outbox: parse id: %w", err)
	}

	aggregateID, err := uuid.Parse(row.AggregateID)
	if err != nil {
		return nil, fmt.Errorf("topology outbox: parse aggregate_id: %w", err)
	}

	payload, err := unmarshalPayload(domain.OutboxEventType(row.EventType), row.Payload)
	if err != nil {
		return nil, fmt.Errorf("topology outbox: unmarshal payload: %w", err)
	}

	return &domain.OutboxEvent{
		ID:            id,
		AggregateID:   aggregateID,
		AggregateType: row.AggregateType,
		EventType:     domain.OutboxEventType(row.EventType),
		Priority:      domain.Priority(row.Priority),
		RetryCount:    row.RetryCount,
		MaxRetries:    row.MaxRetries,
		Status:        domain.OutboxStatus(row.Status),
		Payload:       payload,
		ErrorDetails:  row.ErrorDetails,
		CreatedAt:     row.CreatedAt,
		StartedAt:     row.StartedAt,
		PublishedAt:   row.PublishedAt,
		ProcessedAt:   row.ProcessedAt,
		CompletedAt:   row.CompletedAt,
		NextRetryAt:   row.NextRetryAt,
	}, nil
}

// unmarshalPayload decodes the stored JSON into a MessagePayload for the
// event types this package publishes, and into a bare any for anything
// else so a forward-compatible event type doesn't fail the whole scan.
func unmarshalPayload(eventType domain.OutboxEventType, payloadJSON []byte) (any, error) {
	switch eventType {
	case domain.OutboxEventTopologyMessage, domain.OutboxEventTopologyRetry:
		var payload domain.MessagePayload
		if err := json.Unmarshal(payloadJSON, &payload); err != nil {
			return nil, fmt.Errorf("decode MessagePayload: %w", err)
		}

		return payload, nil
	default:
		var payload any
		if err := json.Unmarshal(payloadJSON, &payload); err != nil {
			return nil, fmt.Errorf("decode generic payload: %w", err)
		}

		return payload, nil
	}
}

