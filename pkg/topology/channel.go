package topology

import (
	"context"
	"io"

	amqp "github.com/rabbitmq/amqp091-go"
)

// amqpChannel is the slice of amqp091-go.Channel this package depends on.
// Narrowing it (rather than depending on *amqp.Channel directly) is what
// lets unit tests substitute a mock instead of dialing a real broker.
//
//nolint:interfacebloat // mirrors the full surface the broker client exposes.
type amqpChannel interface {
	io.Closer

	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	ExchangeDeclarePassive(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	ExchangeDelete(name string, ifUnused, noWait bool) error
	ExchangeBind(destination, key, source string, noWait bool, args amqp.Table) error
	ExchangeUnbind(destination, key, source string, noWait bool, args amqp.Table) error

	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueDeclarePassive(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueDelete(name string, ifUnused, ifEmpty, noWait bool) (int, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	QueueUnbind(name, key, exchange string, args amqp.Table) error

	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Cancel(consumer string, noWait bool) error
	Qos(prefetchCount, prefetchSize int, global bool) error
	Recover(requeue bool) error

	NotifyClose(c chan *amqp.Error) chan *amqp.Error
}

// ChannelWrapper owns exactly one broker channel for the lifetime of a
// single incarnation of a Node, per the data model's "two nodes never share
// a channel" invariant. It is a thin, mockable seam around amqp091-go,
// adapted from the teacher's per-queue wrapper into a per-node one shared by
// both Exchange and Queue.
type ChannelWrapper struct {
	ch     amqpChannel
	logger Logger
}

func newChannelWrapper(ch amqpChannel, logger Logger) *ChannelWrapper {
	return &ChannelWrapper{ch: ch, logger: logger}
}

// Close closes the underlying broker channel.
func (w *ChannelWrapper) Close() error {
	if w.ch == nil {
		return nil
	}

	return w.ch.Close()
}

func (w *ChannelWrapper) declareExchange(_ context.Context, name, kind string, opts ExchangeOptions) error {
	args := amqp.Table(opts.Arguments)
	if opts.AlternateExchange != "" {
		if args == nil {
			args = amqp.Table{}
		}
		args["alternate-exchange"] = opts.AlternateExchange
	}

	if opts.NoCreate {
		return w.ch.ExchangeDeclarePassive(name, kind, opts.Durable, opts.AutoDelete, opts.Internal, false, args)
	}

	return w.ch.ExchangeDeclare(name, kind, opts.Durable, opts.AutoDelete, opts.Internal, false, args)
}

func (w *ChannelWrapper) deleteExchange(name string) error {
	return w.ch.ExchangeDelete(name, false, false)
}

func (w *ChannelWrapper) declareQueue(_ context.Context, name string, opts QueueOptions) (amqp.Queue, error) {
	args := amqp.Table(opts.toAMQPArguments())

	if opts.NoCreate {
		return w.ch.QueueDeclarePassive(name, opts.Durable, opts.AutoDelete, opts.Exclusive, false, args)
	}

	return w.ch.QueueDeclare(name, opts.Durable, opts.AutoDelete, opts.Exclusive, false, args)
}

func (w *ChannelWrapper) deleteQueue(name string) error {
	_, err := w.ch.QueueDelete(name, false, false, false)

	return err
}

func (w *ChannelWrapper) bindQueue(destination, source, pattern string, args Table) error {
	return w.ch.QueueBind(destination, pattern, source, false, amqp.Table(args))
}

func (w *ChannelWrapper) unbindQueue(destination, source, pattern string, args Table) error {
	return w.ch.QueueUnbind(destination, pattern, source, amqp.Table(args))
}

func (w *ChannelWrapper) bindExchange(destination, source, pattern string, args Table) error {
	return w.ch.ExchangeBind(destination, pattern, source, false, amqp.Table(args))
}

func (w *ChannelWrapper) unbindExchange(destination, source, pattern string, args Table) error {
	return w.ch.ExchangeUnbind(destination, pattern, source, amqp.Table(args))
}

func (w *ChannelWrapper) publish(exchange, routingKey string, publishing amqp.Publishing) error {
	return w.ch.Publish(exchange, routingKey, false, false, publishing)
}

func (w *ChannelWrapper) consume(queueName, consumerTag string, opts ConsumerOptions) (<-chan amqp.Delivery, error) {
	return w.ch.Consume(queueName, consumerTag, opts.NoAck, opts.Exclusive, opts.NoLocal, false, amqp.Table(opts.Arguments))
}

func (w *ChannelWrapper) cancel(consumerTag string) error {
	return w.ch.Cancel(consumerTag, false)
}

func (w *ChannelWrapper) qos(prefetch int) error {
	if prefetch <= 0 {
		return nil
	}

	return w.ch.Qos(prefetch, 0, false)
}

func (w *ChannelWrapper) recover() error {
	return w.ch.Recover(true)
}
