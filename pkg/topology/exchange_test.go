package topology

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	amqp "github.com/rabbitmq/amqp091-go"
)

func newReadyExchange(t *testing.T, mockCh *MockAMQPChannel) (*Connection, *Exchange) {
	t.Helper()

	mockConn := newMockAMQPConnection()

	conn := NewConnection(Config{ReconnectStrategy: ReconnectStrategy{Retries: 1}})
	conn.dial = func(string, amqp.Config) (amqpConnection, error) { return mockConn, nil }
	conn.openChannel = func(amqpConnection) (amqpChannel, error) { return mockCh, nil }

	require.NoError(t, conn.Start(context.Background()))

	ex, err := conn.DeclareExchange(context.Background(), "orders", "topic", ExchangeOptions{Durable: true})
	require.NoError(t, err)

	return conn, ex
}

func TestExchange_Send(t *testing.T) {
	t.Parallel()

	mockCh := &MockAMQPChannel{}
	mockCh.On("ExchangeDeclare", "orders", "topic", true, false, false, false, amqp.Table(nil)).Return(nil)

	deliveries := make(chan amqp.Delivery)
	mockCh.On("Consume", replyToQueue, "", true, false, false, false, amqp.Table(nil)).
		Return((<-chan amqp.Delivery)(deliveries), nil)
	mockCh.On("Publish", "orders", "order.created", false, false, mock.AnythingOfType("amqp091.Publishing")).Return(nil)

	_, ex := newReadyExchange(t, mockCh)

	msg, err := NewMessage(map[string]any{"id": "1"})
	require.NoError(t, err)

	require.NoError(t, ex.Send(context.Background(), msg, "order.created"))
	mockCh.AssertExpectations(t)
}

func TestExchange_Send_RetriesAfterPublishFailureViaRebuild(t *testing.T) {
	t.Parallel()

	mockCh := &MockAMQPChannel{}
	mockCh.On("ExchangeDeclare", "orders", "topic", true, false, false, false, amqp.Table(nil)).Return(nil)

	deliveries := make(chan amqp.Delivery)
	mockCh.On("Consume", replyToQueue, "", true, false, false, false, amqp.Table(nil)).
		Return((<-chan amqp.Delivery)(deliveries), nil)

	conn, ex := newReadyExchange(t, mockCh)

	publishErr := errors.New("channel/connection is not open")

	mockCh.On("Publish", "orders", "order.created", false, false, mock.AnythingOfType("amqp091.Publishing")).
		Return(publishErr).Once()
	mockCh.On("Publish", "orders", "order.created", false, false, mock.AnythingOfType("amqp091.Publishing")).
		Return(nil).Once()

	// A rebuild redials; point the next dial at a fresh mock connection so
	// watch() can install a close-notify channel on it.
	mockConn2 := newMockAMQPConnection()
	conn.dial = func(string, amqp.Config) (amqpConnection, error) { return mockConn2, nil }

	msg, err := NewMessage("hi")
	require.NoError(t, err)

	require.NoError(t, ex.Send(context.Background(), msg, "order.created"))
	mockCh.AssertNumberOfCalls(t, "Publish", 2)
}

func TestExchange_RPC(t *testing.T) {
	t.Parallel()

	mockCh := &MockAMQPChannel{}
	mockCh.On("ExchangeDeclare", "rpc", "direct", false, false, false, false, amqp.Table(nil)).Return(nil)

	deliveries := make(chan amqp.Delivery, 1)
	mockCh.On("Consume", replyToQueue, "", true, false, false, false, amqp.Table(nil)).
		Return((<-chan amqp.Delivery)(deliveries), nil)

	mockConn := newMockAMQPConnection()
	conn := NewConnection(Config{ReconnectStrategy: ReconnectStrategy{Retries: 1}})
	conn.dial = func(string, amqp.Config) (amqpConnection, error) { return mockConn, nil }
	conn.openChannel = func(amqpConnection) (amqpChannel, error) { return mockCh, nil }
	require.NoError(t, conn.Start(context.Background()))

	ex, err := conn.DeclareExchange(context.Background(), "rpc", "direct", ExchangeOptions{})
	require.NoError(t, err)

	var capturedCorrelationID string
	mockCh.On("Publish", "rpc", "echo", false, false, mock.AnythingOfType("amqp091.Publishing")).
		Run(func(args mock.Arguments) {
			publishing := args.Get(4).(amqp.Publishing)
			capturedCorrelationID = publishing.CorrelationId

			deliveries <- amqp.Delivery{
				Body:          []byte(`{"ok":true}`),
				CorrelationId: publishing.CorrelationId,
			}
		}).
		Return(nil)

	resp, err := ex.RPC(context.Background(), map[string]any{"q": 1}, "echo")
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, resp.Unmarshal(&payload))
	assert.Equal(t, true, payload["ok"])
	assert.NotEmpty(t, capturedCorrelationID)
}

func TestExchange_RPC_ConcurrentCallsDisambiguatedByCorrelationID(t *testing.T) {
	t.Parallel()

	mockCh := &MockAMQPChannel{}
	mockCh.On("ExchangeDeclare", "rpc", "direct", false, false, false, false, amqp.Table(nil)).Return(nil)

	deliveries := make(chan amqp.Delivery, 2)
	mockCh.On("Consume", replyToQueue, "", true, false, false, false, amqp.Table(nil)).
		Return((<-chan amqp.Delivery)(deliveries), nil)

	mockConn := newMockAMQPConnection()
	conn := NewConnection(Config{ReconnectStrategy: ReconnectStrategy{Retries: 1}})
	conn.dial = func(string, amqp.Config) (amqpConnection, error) { return mockConn, nil }
	conn.openChannel = func(amqpConnection) (amqpChannel, error) { return mockCh, nil }
	require.NoError(t, conn.Start(context.Background()))

	ex, err := conn.DeclareExchange(context.Background(), "rpc", "direct", ExchangeOptions{})
	require.NoError(t, err)

	// Echo back the request body verbatim under the same correlation ID,
	// simulating an out-of-order-arriving RPC service.
	mockCh.On("Publish", "rpc", "echo", false, false, mock.AnythingOfType("amqp091.Publishing")).
		Run(func(args mock.Arguments) {
			publishing := args.Get(4).(amqp.Publishing)
			deliveries <- amqp.Delivery{Body: publishing.Body, CorrelationId: publishing.CorrelationId}
		}).
		Return(nil)

	type result struct {
		want int
		got  int
		err  error
	}

	results := make(chan result, 2)
	for _, q := range []int{1, 2} {
		q := q
		go func() {
			resp, err := ex.RPC(context.Background(), map[string]any{"q": q}, "echo")
			if err != nil {
				results <- result{want: q, err: err}

				return
			}

			var payload struct {
				Q int `json:"q"`
			}
			err = resp.Unmarshal(&payload)
			results <- result{want: q, got: payload.Q, err: err}
		}()
	}

	for i := 0; i < 2; i++ {
		r := <-results
		require.NoError(t, r.err)
		assert.Equal(t, r.want, r.got)
	}
}
