package topology

import (
	"github.com/stretchr/testify/mock"

	amqp "github.com/rabbitmq/amqp091-go"
)

// MockAMQPChannel mocks amqpChannel for unit tests, in the teacher's
// testify/mock hand-rolled style.
type MockAMQPChannel struct {
	mock.Mock
}

func (m *MockAMQPChannel) Close() error {
	args := m.Called()

	return args.Error(0)
}

func (m *MockAMQPChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	callArgs := m.Called(name, kind, durable, autoDelete, internal, noWait, args)

	return callArgs.Error(0)
}

func (m *MockAMQPChannel) ExchangeDeclarePassive(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	callArgs := m.Called(name, kind, durable, autoDelete, internal, noWait, args)

	return callArgs.Error(0)
}

func (m *MockAMQPChannel) ExchangeDelete(name string, ifUnused, noWait bool) error {
	callArgs := m.Called(name, ifUnused, noWait)

	return callArgs.Error(0)
}

func (m *MockAMQPChannel) ExchangeBind(destination, key, source string, noWait bool, args amqp.Table) error {
	callArgs := m.Called(destination, key, source, noWait, args)

	return callArgs.Error(0)
}

func (m *MockAMQPChannel) ExchangeUnbind(destination, key, source string, noWait bool, args amqp.Table) error {
	callArgs := m.Called(destination, key, source, noWait, args)

	return callArgs.Error(0)
}

func (m *MockAMQPChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	callArgs := m.Called(name, durable, autoDelete, exclusive, noWait, args)

	return callArgs.Get(0).(amqp.Queue), callArgs.Error(1)
}

func (m *MockAMQPChannel) QueueDeclarePassive(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	callArgs := m.Called(name, durable, autoDelete, exclusive, noWait, args)

	return callArgs.Get(0).(amqp.Queue), callArgs.Error(1)
}

func (m *MockAMQPChannel) QueueDelete(name string, ifUnused, ifEmpty, noWait bool) (int, error) {
	callArgs := m.Called(name, ifUnused, ifEmpty, noWait)

	return callArgs.Int(0), callArgs.Error(1)
}

func (m *MockAMQPChannel) QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error {
	callArgs := m.Called(name, key, exchange, noWait, args)

	return callArgs.Error(0)
}

func (m *MockAMQPChannel) QueueUnbind(name, key, exchange string, args amqp.Table) error {
	callArgs := m.Called(name, key, exchange, args)

	return callArgs.Error(0)
}

func (m *MockAMQPChannel) Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	callArgs := m.Called(exchange, key, mandatory, immediate, msg)

	return callArgs.Error(0)
}

func (m *MockAMQPChannel) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	callArgs := m.Called(queue, consumer, autoAck, exclusive, noLocal, noWait, args)

	return callArgs.Get(0).(<-chan amqp.Delivery), callArgs.Error(1)
}

func (m *MockAMQPChannel) Cancel(consumer string, noWait bool) error {
	callArgs := m.Called(consumer, noWait)

	return callArgs.Error(0)
}

func (m *MockAMQPChannel) Qos(prefetchCount, prefetchSize int, global bool) error {
	callArgs := m.Called(prefetchCount, prefetchSize, global)

	return callArgs.Error(0)
}

func (m *MockAMQPChannel) Recover(requeue bool) error {
	callArgs := m.Called(requeue)

	return callArgs.Error(0)
}

func (m *MockAMQPChannel) NotifyClose(c chan *amqp.Error) chan *amqp.Error {
	args := m.Called(c)

	return args.Get(0).(chan *amqp.Error)
}

// MockAMQPConnection mocks amqpConnection.
type MockAMQPConnection struct {
	mock.Mock
}

func (m *MockAMQPConnection) Channel() (*amqp.Channel, error) {
	args := m.Called()

	ch, _ := args.Get(0).(*amqp.Channel)

	return ch, args.Error(1)
}

func (m *MockAMQPConnection) NotifyClose(c chan *amqp.Error) chan *amqp.Error {
	args := m.Called(c)

	return args.Get(0).(chan *amqp.Error)
}

func (m *MockAMQPConnection) Close() error {
	args := m.Called()

	return args.Error(0)
}

// MockLogger lets tests assert on Warn and Error log calls when the
// behavior under test is expected to log.
type MockLogger struct {
	mock.Mock
}

func (m *MockLogger) Info() LogEvent { return nopEvent{} }

func (m *MockLogger) Warn() LogEvent {
	args := m.Called()

	return args.Get(0).(LogEvent)
}

func (m *MockLogger) Error() LogEvent {
	args := m.Called()

	return args.Get(0).(LogEvent)
}

func (m *MockLogger) Debug() LogEvent { return nopEvent{} }
