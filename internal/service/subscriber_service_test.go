package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/architeacher/amqp-topology/internal/domain"
	"github.com/architeacher/amqp-topology/internal/service"
	"github.com/architeacher/amqp-topology/pkg/topology"
)

type subscriberFakeRepo struct {
	fakeOutboxRepo

	byAggregateEvent *domain.OutboxEvent
	byAggregateErr   error

	markProcessedErr error
	markCompletedErr error
}

func (f *subscriberFakeRepo) GetByAggregateID(context.Context, string) (*domain.OutboxEvent, error) {
	return f.byAggregateEvent, f.byAggregateErr
}

func (f *subscriberFakeRepo) MarkProcessed(context.Context, string) error {
	return f.markProcessedErr
}

func (f *subscriberFakeRepo) MarkCompleted(context.Context, string) error {
	return f.markCompletedErr
}

func TestSubscriberService_ProcessMessage_Success(t *testing.T) {
	t.Parallel()

	event := &domain.OutboxEvent{ID: uuid.New()}
	repo := &subscriberFakeRepo{byAggregateEvent: event}
	svc := service.NewSubscriberService(repo, zerolog.Nop())

	msg, err := topology.NewMessage(map[string]any{"ok": true})
	require.NoError(t, err)

	result, err := svc.ProcessMessage(t.Context(), "aggregate-1", msg)

	require.NoError(t, err)
	require.True(t, result.Success)
}

func TestSubscriberService_ProcessMessage_OutboxLookupFailure(t *testing.T) {
	t.Parallel()

	repo := &subscriberFakeRepo{byAggregateErr: errors.New("no such event")}
	svc := service.NewSubscriberService(repo, zerolog.Nop())

	msg, err := topology.NewMessage("plain text")
	require.NoError(t, err)

	result, err := svc.ProcessMessage(t.Context(), "missing", msg)

	require.NoError(t, err)
	require.False(t, result.Success)
	require.Equal(t, "OUTBOX_ERROR", result.ErrorCode)
}

func TestSubscriberService_ProcessMessage_MarkProcessedFailure(t *testing.T) {
	t.Parallel()

	event := &domain.OutboxEvent{ID: uuid.New()}
	repo := &subscriberFakeRepo{byAggregateEvent: event, markProcessedErr: errors.New("db down")}
	svc := service.NewSubscriberService(repo, zerolog.Nop())

	msg, err := topology.NewMessage("plain text")
	require.NoError(t, err)

	result, err := svc.ProcessMessage(t.Context(), "aggregate-1", msg)

	require.NoError(t, err)
	require.False(t, result.Success)
	require.Equal(t, "OUTBOX_ERROR", result.ErrorCode)
}

func TestSubscriberService_ProcessMessage_MarkCompletedFailure(t *testing.T) {
	t.Parallel()

	event := &domain.OutboxEvent{ID: uuid.New()}
	repo := &subscriberFakeRepo{byAggregateEvent: event, markCompletedErr: errors.New("db down")}
	svc := service.NewSubscriberService(repo, zerolog.Nop())

	msg, err := topology.NewMessage("plain text")
	require.NoError(t, err)

	result, err := svc.ProcessMessage(t.Context(), "aggregate-1", msg)

	require.NoError(t, err)
	require.False(t, result.Success)
}

func TestSubscriberService_ProcessMessage_SurvivesUnparsableBody(t *testing.T) {
	t.Parallel()

	event := &domain.OutboxEvent{ID: uuid.New()}
	repo := &subscriberFakeRepo{byAggregateEvent: event}
	svc := service.NewSubscriberService(repo, zerolog.Nop())

	msg := &topology.Message{Content: []byte("not json"), Properties: topology.Table{}}

	result, err := svc.ProcessMessage(t.Context(), "aggregate-1", msg)

	require.NoError(t, err)
	require.True(t, result.Success)
}
