package topology

import (
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultURL is used when Config.URL is empty, matching the documented
// default broker address.
const DefaultURL = "amqp://localhost:5672"

// SocketOptions carries opaque transport tuning forwarded to amqp091-go's
// Dial, standing in for the `socketOptions` bag from the external interface.
type SocketOptions struct {
	Heartbeat      time.Duration
	ConnectionName string
	ChannelMax     int
	FrameSize      int
}

func (o SocketOptions) toAMQPConfig() amqp.Config {
	cfg := amqp.Config{
		Heartbeat:  o.Heartbeat,
		ChannelMax: o.ChannelMax,
		FrameSize:  o.FrameSize,
	}

	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = 10 * time.Second
	}

	if o.ConnectionName != "" {
		cfg.Properties = amqp.NewConnectionProperties()
		cfg.Properties.SetClientConnectionName(o.ConnectionName)
	}

	return cfg
}

// ReconnectStrategy controls the connection supervisor's retry loop.
// Retries=0 means retry indefinitely, per spec.
type ReconnectStrategy struct {
	Retries  int
	Interval time.Duration
}

func (s ReconnectStrategy) interval() time.Duration {
	if s.Interval <= 0 {
		return time.Second
	}

	return s.Interval
}

// Config configures a Connection.
type Config struct {
	URL               string
	SocketOptions     SocketOptions
	ReconnectStrategy ReconnectStrategy
}

func (c Config) url() string {
	if c.URL == "" {
		return DefaultURL
	}

	return c.URL
}
