// Package topology manages AMQP 0-9-1 exchanges, queues, and bindings as a
// self-healing object graph rather than a one-shot declaration script.
//
// # Overview
//
// A Connection supervises a single broker connection: it dials, watches for
// unexpected closure, and on loss reconnects per a configurable
// ReconnectStrategy. Every Exchange and Queue declared through the
// Connection is rebuilt automatically after a reconnect, on a fresh
// channel: all exchanges first, then all queues, with no defined order
// among entities of the same kind. Bindings follow the
// same pattern, waiting for both their source and destination to be ready
// before asserting themselves on the broker.
//
// # Basic Usage
//
//	conn := topology.NewConnection(topology.Config{URL: "amqp://localhost:5672"})
//	if err := conn.Start(ctx); err != nil {
//		log.Fatal(err)
//	}
//	defer conn.Close(ctx)
//
//	exchange, err := conn.DeclareExchange(ctx, "orders", "topic", topology.ExchangeOptions{Durable: true})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	queue, err := conn.DeclareQueue(ctx, "orders.created", topology.QueueOptions{Durable: true})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	if _, err := queue.Bind(ctx, exchange, "order.created.*", nil); err != nil {
//		log.Fatal(err)
//	}
//
// Publishing and consuming:
//
//	msg, _ := topology.NewMessage(map[string]any{"orderId": "42"})
//	if err := exchange.Send(ctx, msg, "order.created.checkout"); err != nil {
//		log.Printf("publish failed: %v", err)
//	}
//
//	err = queue.ActivateConsumer(ctx, topology.ConsumerOptions{}, func(ctx context.Context, m *topology.Message) (any, error) {
//		var payload map[string]any
//		if err := m.Unmarshal(&payload); err != nil {
//			_ = m.Nack(false, false)
//			return nil, err
//		}
//
//		_ = m.Ack(false)
//		return nil, nil
//	})
//
// # Request/Reply
//
// Exchange.RPC publishes with a replyTo of amq.rabbitmq.reply-to and a
// fresh correlation ID, and blocks for the broker-delivered reply —
// no reply queue to declare or clean up.
//
// # Readiness
//
// Every Entity exposes Initialized(), Deleting(), and Closing() channels so
// callers can select on topology state transitions instead of polling.
// Connection.CompleteConfiguration blocks until every currently registered
// exchange, queue, and binding has finished declaring.
//
// # Logging
//
// The package defines a minimal Logger/LogEvent interface so it never forces
// a concrete logging framework on callers. A LoggerAdapter wraps a
// zerolog.Logger for callers that already standardize on it.
//
// # Dependencies
//
// This package depends on the official RabbitMQ AMQP client library,
// github.com/rabbitmq/amqp091-go, github.com/google/uuid for correlation
// and consumer-tag generation, and github.com/rs/zerolog for LoggerAdapter.
package topology
