package topology

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	amqp "github.com/rabbitmq/amqp091-go"
)

func newReadyQueue(t *testing.T, mockCh *MockAMQPChannel, opts QueueOptions) (*Connection, *Queue) {
	t.Helper()

	mockConn := newMockAMQPConnection()

	conn := NewConnection(Config{ReconnectStrategy: ReconnectStrategy{Retries: 1}})
	conn.dial = func(string, amqp.Config) (amqpConnection, error) { return mockConn, nil }
	conn.openChannel = func(amqpConnection) (amqpChannel, error) { return mockCh, nil }

	require.NoError(t, conn.Start(context.Background()))

	q, err := conn.DeclareQueue(context.Background(), "orders.created", opts)
	require.NoError(t, err)

	return conn, q
}

func TestQueue_ActivateConsumer_InvokesHandlerPerDelivery(t *testing.T) {
	t.Parallel()

	mockCh := &MockAMQPChannel{}
	mockCh.On("QueueDeclare", "orders.created", false, false, false, false, amqp.Table{}).
		Return(amqp.Queue{Name: "orders.created"}, nil)

	deliveries := make(chan amqp.Delivery, 1)
	mockCh.On("Consume", "orders.created", mock.AnythingOfType("string"), false, false, false, false, amqp.Table(nil)).
		Return((<-chan amqp.Delivery)(deliveries), nil)

	_, q := newReadyQueue(t, mockCh, QueueOptions{})

	var mu sync.Mutex
	var gotBody string
	done := make(chan struct{})

	handler := func(_ context.Context, m *Message) (any, error) {
		mu.Lock()
		gotBody = string(m.Content)
		mu.Unlock()
		close(done)

		return nil, nil
	}

	require.NoError(t, q.ActivateConsumer(context.Background(), ConsumerOptions{}, handler))

	deliveries <- amqp.Delivery{Body: []byte("payload")}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler was not invoked")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "payload", gotBody)
}

func TestQueue_ActivateConsumer_Idempotent(t *testing.T) {
	t.Parallel()

	mockCh := &MockAMQPChannel{}
	mockCh.On("QueueDeclare", "orders.created", false, false, false, false, amqp.Table{}).
		Return(amqp.Queue{Name: "orders.created"}, nil)

	deliveries := make(chan amqp.Delivery, 1)
	mockCh.On("Consume", "orders.created", mock.AnythingOfType("string"), false, false, false, false, amqp.Table(nil)).
		Return((<-chan amqp.Delivery)(deliveries), nil)

	_, q := newReadyQueue(t, mockCh, QueueOptions{})

	noop := func(context.Context, *Message) (any, error) { return nil, nil }

	require.NoError(t, q.ActivateConsumer(context.Background(), ConsumerOptions{}, noop))
	tagBefore, ok := q.ConsumerTag()
	require.True(t, ok)

	require.NoError(t, q.ActivateConsumer(context.Background(), ConsumerOptions{}, noop))
	tagAfter, ok := q.ConsumerTag()
	require.True(t, ok)

	assert.Equal(t, tagBefore, tagAfter)
	mockCh.AssertNumberOfCalls(t, "Consume", 1)
}

func TestQueue_Consumer_RepliesToRPCRequest(t *testing.T) {
	t.Parallel()

	mockCh := &MockAMQPChannel{}
	mockCh.On("QueueDeclare", "rpc.requests", false, false, false, false, amqp.Table{}).
		Return(amqp.Queue{Name: "rpc.requests"}, nil)

	deliveries := make(chan amqp.Delivery, 1)
	mockCh.On("Consume", "rpc.requests", mock.AnythingOfType("string"), false, false, false, false, amqp.Table(nil)).
		Return((<-chan amqp.Delivery)(deliveries), nil)

	published := make(chan amqp.Publishing, 1)
	mockCh.On("Publish", "", "amq.rabbitmq.reply-to", false, false, mock.AnythingOfType("amqp091.Publishing")).
		Run(func(args mock.Arguments) {
			published <- args.Get(4).(amqp.Publishing)
		}).
		Return(nil)

	_, q := newReadyQueue(t, mockCh, QueueOptions{})

	handler := func(_ context.Context, m *Message) (any, error) {
		var req map[string]any
		if err := m.Unmarshal(&req); err != nil {
			return nil, err
		}

		return map[string]any{"echo": req}, nil
	}

	require.NoError(t, q.ActivateConsumer(context.Background(), ConsumerOptions{}, handler))

	deliveries <- amqp.Delivery{
		Body:          []byte(`{"q":1}`),
		ReplyTo:       replyToQueue,
		CorrelationId: "corr-1",
	}

	select {
	case p := <-published:
		assert.Equal(t, "corr-1", p.CorrelationId)
		assert.Contains(t, string(p.Body), `"q":1`)
	case <-time.After(time.Second):
		t.Fatal("expected a reply to be published")
	}
}

func TestQueue_Consumer_CallbackErrorIsLoggedNotNacked(t *testing.T) {
	t.Parallel()

	mockCh := &MockAMQPChannel{}
	mockCh.On("QueueDeclare", "orders.created", false, false, false, false, amqp.Table{}).
		Return(amqp.Queue{Name: "orders.created"}, nil)

	deliveries := make(chan amqp.Delivery, 1)
	mockCh.On("Consume", "orders.created", mock.AnythingOfType("string"), false, false, false, false, amqp.Table(nil)).
		Return((<-chan amqp.Delivery)(deliveries), nil)

	conn, q := newReadyQueue(t, mockCh, QueueOptions{})

	logged := make(chan struct{})
	logger := &MockLogger{}
	logger.On("Error").Run(func(mock.Arguments) { close(logged) }).Return(LogEvent(nopEvent{})).Once()
	conn.opts.logger = logger

	done := make(chan struct{})
	handler := func(context.Context, *Message) (any, error) {
		defer close(done)

		return nil, errors.New("boom")
	}

	ack := &recordingAcknowledger{}

	require.NoError(t, q.ActivateConsumer(context.Background(), ConsumerOptions{}, handler))
	deliveries <- amqp.Delivery{Body: []byte("x"), Acknowledger: ack}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler was not invoked")
	}

	select {
	case <-logged:
	case <-time.After(time.Second):
		t.Fatal("callback error was not logged")
	}

	assert.Zero(t, ack.nacks.Load())
	mockCh.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

// recordingAcknowledger counts Nack and Reject calls made on a delivery.
type recordingAcknowledger struct {
	nacks atomic.Int32
}

func (a *recordingAcknowledger) Ack(uint64, bool) error { return nil }

func (a *recordingAcknowledger) Nack(uint64, bool, bool) error {
	a.nacks.Add(1)

	return nil
}

func (a *recordingAcknowledger) Reject(uint64, bool) error {
	a.nacks.Add(1)

	return nil
}

func TestQueue_StopConsumer_Noop_WhenNoneActive(t *testing.T) {
	t.Parallel()

	mockCh := &MockAMQPChannel{}
	mockCh.On("QueueDeclare", "orders.created", false, false, false, false, amqp.Table{}).
		Return(amqp.Queue{Name: "orders.created"}, nil)

	_, q := newReadyQueue(t, mockCh, QueueOptions{})

	require.NoError(t, q.StopConsumer())
	mockCh.AssertNotCalled(t, "Cancel", mock.Anything, mock.Anything)
}

func TestQueue_StopConsumer_CancelsActiveConsumer(t *testing.T) {
	t.Parallel()

	mockCh := &MockAMQPChannel{}
	mockCh.On("QueueDeclare", "orders.created", false, false, false, false, amqp.Table{}).
		Return(amqp.Queue{Name: "orders.created"}, nil)

	deliveries := make(chan amqp.Delivery, 1)
	mockCh.On("Consume", "orders.created", mock.AnythingOfType("string"), false, false, false, false, amqp.Table(nil)).
		Return((<-chan amqp.Delivery)(deliveries), nil)
	mockCh.On("Cancel", mock.AnythingOfType("string"), false).Return(nil)

	_, q := newReadyQueue(t, mockCh, QueueOptions{})

	noop := func(context.Context, *Message) (any, error) { return nil, nil }
	require.NoError(t, q.ActivateConsumer(context.Background(), ConsumerOptions{}, noop))

	require.NoError(t, q.StopConsumer())
	mockCh.AssertExpectations(t)
}

func TestQueue_Prefetch_AppliesQosAndRemembersOption(t *testing.T) {
	t.Parallel()

	mockCh := &MockAMQPChannel{}
	mockCh.On("QueueDeclare", "orders.created", false, false, false, false, amqp.Table{}).
		Return(amqp.Queue{Name: "orders.created"}, nil)
	mockCh.On("Qos", 10, 0, false).Return(nil)

	_, q := newReadyQueue(t, mockCh, QueueOptions{})

	require.NoError(t, q.Prefetch(10))
	assert.Equal(t, 10, q.opts.Prefetch)
}

func TestQueue_Recover(t *testing.T) {
	t.Parallel()

	mockCh := &MockAMQPChannel{}
	mockCh.On("QueueDeclare", "orders.created", false, false, false, false, amqp.Table{}).
		Return(amqp.Queue{Name: "orders.created"}, nil)
	mockCh.On("Recover", true).Return(nil)

	_, q := newReadyQueue(t, mockCh, QueueOptions{})

	require.NoError(t, q.Recover())
	mockCh.AssertExpectations(t)
}
