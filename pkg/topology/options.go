package topology

import "time"

// Table is a free-form argument/property map passed through to amqp091-go
// opaquely, per spec's "keep them as opaque maps" guidance.
type Table map[string]any

// ExchangeOptions are the recognized fields for declareExchange, per the
// Node options in the data model: durable/autoDelete/arguments/noCreate
// plus the exchange-specific internal/alternateExchange.
type ExchangeOptions struct {
	Durable           bool
	AutoDelete        bool
	Internal          bool
	NoCreate          bool
	AlternateExchange string
	Arguments         Table
}

// QueueOptions are the recognized fields for declareQueue.
type QueueOptions struct {
	Durable            bool
	AutoDelete         bool
	Exclusive          bool
	NoCreate           bool
	MessageTTL         time.Duration
	Expires            time.Duration
	DeadLetterExchange string
	MaxLength          int
	Prefetch           int
	Arguments          Table
}

func (o QueueOptions) toAMQPArguments() Table {
	args := Table{}
	for k, v := range o.Arguments {
		args[k] = v
	}

	if o.MessageTTL > 0 {
		args["x-message-ttl"] = o.MessageTTL.Milliseconds()
	}

	if o.Expires > 0 {
		args["x-expires"] = o.Expires.Milliseconds()
	}

	if o.DeadLetterExchange != "" {
		args["x-dead-letter-exchange"] = o.DeadLetterExchange
	}

	if o.MaxLength > 0 {
		args["x-max-length"] = o.MaxLength
	}

	return args
}

// ConsumerOptions configures Queue.ActivateConsumer.
type ConsumerOptions struct {
	NoAck     bool
	Exclusive bool
	NoLocal   bool
	Arguments Table
}

// connectionOptions configure a Connection. connectionOptions are set by the
// ConnectionOption values passed to NewConnection.
type connectionOptions struct {
	logger  Logger
	breaker DialBreaker
}

// ConnectionOption configures optional Connection behavior.
type ConnectionOption func(*connectionOptions)

// WithLogger returns a ConnectionOption which sets the logger used for every
// entity owned by the connection.
func WithLogger(l Logger) ConnectionOption {
	return func(o *connectionOptions) {
		o.logger = l
	}
}

// WithDialBreaker returns a ConnectionOption which routes every dial attempt
// through b. This package depends only on the narrow DialBreaker interface
// so callers can supply a sony/gobreaker-backed implementation (or any
// other) without this package importing it directly.
func WithDialBreaker(b DialBreaker) ConnectionOption {
	return func(o *connectionOptions) {
		o.breaker = b
	}
}

func defaultConnectionOptions() connectionOptions {
	return connectionOptions{logger: nopLogger{}}
}
