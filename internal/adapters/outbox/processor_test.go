package outbox_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/architeacher/amqp-topology/internal/adapters/outbox"
	"github.com/architeacher/amqp-topology/internal/domain"
)

// fakePublisherService is a hand-rolled test double for service.PublisherService.
type fakePublisherService struct {
	pending        []*domain.OutboxEvent
	retryable      []*domain.OutboxEvent
	fetchErr       error
	publishCount   atomic.Int32
	publishErr     error
	publishResults func(*domain.OutboxEvent) *domain.PublishOutboxEventResult
}

func (f *fakePublisherService) FetchPendingEvents(context.Context, int) ([]*domain.OutboxEvent, error) {
	return f.pending, f.fetchErr
}

func (f *fakePublisherService) FetchRetryableEvents(context.Context, int) ([]*domain.OutboxEvent, error) {
	return f.retryable, f.fetchErr
}

func (f *fakePublisherService) PublishEvent(_ context.Context, event *domain.OutboxEvent) (*domain.PublishOutboxEventResult, error) {
	f.publishCount.Add(1)

	if f.publishResults != nil {
		return f.publishResults(event), nil
	}

	return &domain.PublishOutboxEventResult{Published: true}, f.publishErr
}

func newTestOutboxEvent() *domain.OutboxEvent {
	return &domain.OutboxEvent{ID: uuid.New(), Priority: domain.PriorityNormal}
}

func TestProcessor_Start_PublishesPendingAndRetryableEventsEachTick(t *testing.T) {
	t.Parallel()

	svc := &fakePublisherService{
		pending:   []*domain.OutboxEvent{newTestOutboxEvent(), newTestOutboxEvent()},
		retryable: []*domain.OutboxEvent{newTestOutboxEvent()},
	}
	processor := outbox.NewProcessor(svc, zerolog.Nop(), 5*time.Millisecond, 10)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := processor.Start(ctx)

	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.GreaterOrEqual(t, int(svc.publishCount.Load()), 3)
}

func TestProcessor_Start_StopsOnContextCancellation(t *testing.T) {
	t.Parallel()

	svc := &fakePublisherService{}
	processor := outbox.NewProcessor(svc, zerolog.Nop(), time.Hour, 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := processor.Start(ctx)

	require.ErrorIs(t, err, context.Canceled)
}

func TestProcessor_Start_ContinuesAfterFetchError(t *testing.T) {
	t.Parallel()

	svc := &fakePublisherService{fetchErr: errors.New("db unreachable")}
	processor := outbox.NewProcessor(svc, zerolog.Nop(), 5*time.Millisecond, 10)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Millisecond)
	defer cancel()

	err := processor.Start(ctx)

	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, int32(0), svc.publishCount.Load())
}
