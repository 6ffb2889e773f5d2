package topology

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	amqp "github.com/rabbitmq/amqp091-go"
)

func TestChannelWrapper_DeclareExchange(t *testing.T) {
	t.Parallel()

	mockCh := &MockAMQPChannel{}
	mockCh.On("ExchangeDeclare", "orders", "topic", true, false, false, false, amqp.Table(nil)).Return(nil)

	wrapper := newChannelWrapper(mockCh, nopLogger{})
	err := wrapper.declareExchange(context.Background(), "orders", "topic", ExchangeOptions{Durable: true})

	require.NoError(t, err)
	mockCh.AssertExpectations(t)
}

func TestChannelWrapper_DeclareExchange_Passive(t *testing.T) {
	t.Parallel()

	mockCh := &MockAMQPChannel{}
	mockCh.On("ExchangeDeclarePassive", "orders", "topic", true, false, false, false, amqp.Table(nil)).Return(nil)

	wrapper := newChannelWrapper(mockCh, nopLogger{})
	err := wrapper.declareExchange(context.Background(), "orders", "topic", ExchangeOptions{Durable: true, NoCreate: true})

	require.NoError(t, err)
	mockCh.AssertExpectations(t)
}

func TestChannelWrapper_DeclareExchange_AlternateExchange(t *testing.T) {
	t.Parallel()

	mockCh := &MockAMQPChannel{}
	mockCh.On("ExchangeDeclare", "orders", "topic", true, false, false, false,
		amqp.Table{"alternate-exchange": "orders.unrouted"}).Return(nil)

	wrapper := newChannelWrapper(mockCh, nopLogger{})
	err := wrapper.declareExchange(context.Background(), "orders", "topic",
		ExchangeOptions{Durable: true, AlternateExchange: "orders.unrouted"})

	require.NoError(t, err)
	mockCh.AssertExpectations(t)
}

func TestChannelWrapper_DeclareQueue_WithArguments(t *testing.T) {
	t.Parallel()

	mockCh := &MockAMQPChannel{}
	expected := amqp.Queue{Name: "orders.created"}
	mockCh.On("QueueDeclare", "orders.created", true, false, false, false,
		amqp.Table{"x-max-length": 1000}).Return(expected, nil)

	wrapper := newChannelWrapper(mockCh, nopLogger{})
	got, err := wrapper.declareQueue(context.Background(), "orders.created",
		QueueOptions{Durable: true, MaxLength: 1000})

	require.NoError(t, err)
	assert.Equal(t, expected, got)
	mockCh.AssertExpectations(t)
}

func TestChannelWrapper_Publish(t *testing.T) {
	t.Parallel()

	mockCh := &MockAMQPChannel{}
	mockCh.On("Publish", "orders", "order.created", false, false, mock.AnythingOfType("amqp091.Publishing")).Return(nil)

	wrapper := newChannelWrapper(mockCh, nopLogger{})
	err := wrapper.publish("orders", "order.created", amqp.Publishing{Body: []byte("hi")})

	require.NoError(t, err)
	mockCh.AssertExpectations(t)
}

func TestChannelWrapper_BindQueue(t *testing.T) {
	t.Parallel()

	mockCh := &MockAMQPChannel{}
	mockCh.On("QueueBind", "orders.created", "order.created.*", "orders", false, amqp.Table(nil)).Return(nil)

	wrapper := newChannelWrapper(mockCh, nopLogger{})
	err := wrapper.bindQueue("orders.created", "orders", "order.created.*", nil)

	require.NoError(t, err)
	mockCh.AssertExpectations(t)
}

func TestChannelWrapper_Qos_SkipsWhenNonPositive(t *testing.T) {
	t.Parallel()

	mockCh := &MockAMQPChannel{}
	wrapper := newChannelWrapper(mockCh, nopLogger{})

	require.NoError(t, wrapper.qos(0))
	mockCh.AssertNotCalled(t, "Qos", mock.Anything, mock.Anything, mock.Anything)
}

func TestChannelWrapper_Close(t *testing.T) {
	t.Parallel()

	mockCh := &MockAMQPChannel{}
	mockCh.On("Close").Return(nil)

	wrapper := newChannelWrapper(mockCh, nopLogger{})
	require.NoError(t, wrapper.Close())
	mockCh.AssertExpectations(t)
}
