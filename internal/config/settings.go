package config

import (
	"time"
)

// Compile time variables are set by -ldflags.
var (
	ServiceVersion string
	CommitSHA      string
)

const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

type (
	ServiceConfig struct {
		AppConfig      AppConfig            `json:"app_config"`
		Logging        LoggingConfig        `json:"logging"`
		Telemetry      Telemetry            `json:"telemetry"`
		SecretStorage  SecretStorageConfig  `json:"secret_storage"`
		HTTPServer     HTTPServerConfig     `json:"http_server"`
		Storage        StorageConfig        `json:"storage"`
		Queue          QueueConfig          `json:"queue"`
		Outbox         OutboxConfig         `json:"outbox"`
		Backoff        BackoffConfig        `json:"backoff"`
		DialBreaker    CircuitBreakerConfig `json:"dial_breaker"`
	}

	AppConfig struct {
		ServiceName    string `envconfig:"APP_SERVICE_NAME" default:"amqp-topology" json:"service_name"`
		ServiceVersion string `envconfig:"APP_SERVICE_VERSION" default:"0.0.0" json:"service_version"`
		CommitSHA      string `envconfig:"APP_COMMIT_SHA" default:"unknown" json:"commit_sha"`
		Env            string `envconfig:"APP_ENVIRONMENT" default:"unknown" json:"env"`
	}

	LoggingConfig struct {
		Level     string          `envconfig:"LOGGING_LEVEL" default:"info" json:"level"`
		Format    string          `envconfig:"LOGGING_FORMAT" default:"json" json:"format"`
		AccessLog AccessLogConfig `json:"access_log"`
	}

	AccessLogConfig struct {
		Enabled         bool `envconfig:"ACCESS_LOG_ENABLED" default:"true" json:"enabled"`
		LogHealthChecks bool `envconfig:"ACCESS_LOG_HEALTH_CHECKS" default:"false" json:"log_health_checks"`
	}

	Telemetry struct {
		ExporterType string `envconfig:"OTEL_EXPORTER" default:"grpc" json:"exporter_type"`

		OtelGRPCHost       string `envconfig:"OTEL_HOST" json:"otel_grpc_host"`
		OtelGRPCPort       string `envconfig:"OTEL_PORT" default:"4317" json:"otel_grpc_port"`
		OtelProductCluster string `envconfig:"OTEL_PRODUCT_CLUSTER" json:"otel_product_cluster"`

		Metrics Metrics `json:"metrics"`
		Traces  Traces  `json:"traces"`
	}

	Metrics struct {
		Enabled bool `envconfig:"METRICS_ENABLED" default:"false" json:"enabled"`
	}

	Traces struct {
		Enabled      bool    `envconfig:"TRACES_ENABLED" default:"false" json:"enabled"`
		SamplerRatio float64 `envconfig:"TRACES_SAMPLER_RATIO" default:"1" json:"sampler_ratio"`
	}

	SecretStorageConfig struct {
		Enabled       bool          `envconfig:"VAULT_ENABLED" default:"false" json:"enabled"`
		Address       string        `envconfig:"VAULT_ADDRESS" default:"http://vault:8200" json:"address"`
		Token         string        `envconfig:"VAULT_TOKEN" default:"" json:"token,omitempty"`
		RoleID        string        `envconfig:"VAULT_ROLE_ID" default:"" json:"role_id,omitempty"`
		SecretID      string        `envconfig:"VAULT_SECRET_ID" default:"" json:"secret_id,omitempty"`
		AuthMethod    string        `envconfig:"VAULT_AUTH_METHOD" default:"token" json:"auth_method"`
		MountPath     string        `envconfig:"VAULT_MOUNT_PATH" default:"amqp-topology" json:"mount_path"`
		Namespace     string        `envconfig:"VAULT_NAMESPACE" default:"" json:"namespace,omitempty"`
		Timeout       time.Duration `envconfig:"VAULT_TIMEOUT" default:"30s" json:"timeout"`
		MaxRetries    int           `envconfig:"VAULT_MAX_RETRIES" default:"3" json:"max_retries"`
		TLSSkipVerify bool          `envconfig:"VAULT_TLS_SKIP_VERIFY" default:"false" json:"tls_skip_verify"`
		PollInterval  time.Duration `envconfig:"VAULT_POLL_INTERVAL" default:"24h" json:"poll_interval"`
	}

	HTTPServerConfig struct {
		Port            int           `envconfig:"HTTP_SERVER_PORT" default:"8088" json:"port"`
		Host            string        `envconfig:"HTTP_SERVER_HOST" default:"0.0.0.0" json:"host"`
		ReadTimeout     time.Duration `envconfig:"HTTP_SERVER_READ_TIMEOUT" default:"30s" json:"read_timeout"`
		WriteTimeout    time.Duration `envconfig:"HTTP_SERVER_WRITE_TIMEOUT" default:"30s" json:"write_timeout"`
		IdleTimeout     time.Duration `envconfig:"HTTP_SERVER_IDLE_TIMEOUT" default:"120s" json:"idle_timeout"`
		ShutdownTimeout time.Duration `envconfig:"HTTP_SERVER_SHUTDOWN_TIMEOUT" default:"30s" json:"shutdown_timeout"`
	}

	StorageConfig struct {
		Host            string        `envconfig:"POSTGRES_HOST" default:"postgres" json:"host"`
		Port            int           `envconfig:"POSTGRES_PORT" default:"5432" json:"port"`
		Database        string        `envconfig:"POSTGRES_DATABASE" default:"amqp_topology" json:"database"`
		Username        string        `envconfig:"POSTGRES_USERNAME" default:"postgres" json:"username"`
		Password        string        `envconfig:"POSTGRES_PASSWORD" default:"" json:"password,omitempty"`
		SSLMode         string        `envconfig:"POSTGRES_SSL_MODE" default:"disable" json:"ssl_mode"`
		MaxOpenConns    int           `envconfig:"POSTGRES_MAX_OPEN_CONNS" default:"25" json:"max_open_conns"`
		MaxIdleConns    int           `envconfig:"POSTGRES_MAX_IDLE_CONNS" default:"5" json:"max_idle_conns"`
		ConnMaxLifetime time.Duration `envconfig:"POSTGRES_CONN_MAX_LIFETIME" default:"5m" json:"conn_max_lifetime"`
		ConnMaxIdleTime time.Duration `envconfig:"POSTGRES_CONN_MAX_IDLE_TIME" default:"5m" json:"conn_max_idle_time"`
		ConnectTimeout  time.Duration `envconfig:"POSTGRES_CONNECT_TIMEOUT" default:"10s" json:"connect_timeout"`
		QueryTimeout    time.Duration `envconfig:"POSTGRES_QUERY_TIMEOUT" default:"30s" json:"query_timeout"`
	}

	// QueueConfig configures the broker connection and the demo topology
	// (one exchange, one work queue, one binding) the cmd/ services declare.
	QueueConfig struct {
		Host              string        `envconfig:"RABBITMQ_HOST" default:"rabbitmq" json:"host"`
		Port              int           `envconfig:"RABBITMQ_PORT" default:"5672" json:"port"`
		Username          string        `envconfig:"RABBITMQ_USERNAME" default:"admin" json:"username"`
		Password          string        `envconfig:"RABBITMQ_PASSWORD" default:"" json:"password,omitempty"`
		VirtualHost       string        `envconfig:"RABBITMQ_VIRTUAL_HOST" default:"/" json:"virtual_host"`
		ExchangeName      string        `envconfig:"RABBITMQ_EXCHANGE_NAME" default:"topology-events" json:"exchange_name"`
		ExchangeKind      string        `envconfig:"RABBITMQ_EXCHANGE_KIND" default:"topic" json:"exchange_kind"`
		RoutingKey        string        `envconfig:"RABBITMQ_ROUTING_KEY" default:"event.*" json:"routing_key"`
		QueueName         string        `envconfig:"RABBITMQ_QUEUE_NAME" default:"topology_events_queue" json:"queue_name"`
		ConnectTimeout    time.Duration `envconfig:"RABBITMQ_CONNECT_TIMEOUT" default:"10s" json:"connect_timeout"`
		Heartbeat         time.Duration `envconfig:"RABBITMQ_HEARTBEAT" default:"10s" json:"heartbeat"`
		PrefetchCount     int           `envconfig:"RABBITMQ_PREFETCH_COUNT" default:"10" json:"prefetch_count"`
		Durable           bool          `envconfig:"RABBITMQ_DURABLE" default:"true" json:"durable"`
		AutoDelete        bool          `envconfig:"RABBITMQ_AUTO_DELETE" default:"false" json:"auto_delete"`
		ReconnectRetries  int           `envconfig:"RABBITMQ_RECONNECT_RETRIES" default:"0" json:"reconnect_retries"`
		ReconnectInterval time.Duration `envconfig:"RABBITMQ_RECONNECT_INTERVAL" default:"2s" json:"reconnect_interval"`
	}

	OutboxConfig struct {
		PollInterval time.Duration        `envconfig:"OUTBOX_POLL_INTERVAL" default:"5s" json:"poll_interval"`
		BatchSize    int                  `envconfig:"OUTBOX_BATCH_SIZE" default:"10" json:"batch_size"`
		MaxRetries   MaxRetriesByPriority `json:"max_retries"`
	}

	MaxRetriesByPriority struct {
		Low    int `envconfig:"OUTBOX_MAX_RETRIES_LOW" default:"3" json:"low"`
		Normal int `envconfig:"OUTBOX_MAX_RETRIES_NORMAL" default:"5" json:"normal"`
		High   int `envconfig:"OUTBOX_MAX_RETRIES_HIGH" default:"7" json:"high"`
		Urgent int `envconfig:"OUTBOX_MAX_RETRIES_URGENT" default:"10" json:"urgent"`
	}

	BackoffConfig struct {
		// BaseDelay is the amount of time to backoff after the first failure.
		BaseDelay time.Duration `envconfig:"BACKOFF_BASE_DELAY" default:"1s" json:"base_delay"`
		// Multiplier is the factor with which to multiply backoffs after a
		// failed retry. Should ideally be greater than 1.
		Multiplier float64 `envconfig:"BACKOFF_MULTIPLIER" default:"1.6" json:"multiplier"`
		// Jitter is the factor with which backoffs are randomized.
		Jitter float64 `envconfig:"BACKOFF_JITTER" default:"0.2" json:"jitter"`
		// MaxDelay is the upper bound of backoff delay.
		MaxDelay time.Duration `envconfig:"BACKOFF_MAX_DELAY" default:"10s" json:"max_delay"`
	}

	CircuitBreakerConfig struct {
		MaxRequests uint32        `envconfig:"DIAL_BREAKER_MAX_REQUESTS" default:"3" json:"max_requests"`
		Interval    time.Duration `envconfig:"DIAL_BREAKER_INTERVAL" default:"10s" json:"interval"`
		Timeout     time.Duration `envconfig:"DIAL_BREAKER_TIMEOUT" default:"60s" json:"timeout"`
	}
)

func (c OutboxConfig) GetMaxRetriesForPriority(priority string) int {
	switch priority {
	case PriorityLow:
		return c.MaxRetries.Low
	case PriorityHigh:
		return c.MaxRetries.High
	case PriorityUrgent:
		return c.MaxRetries.Urgent
	default:
		return c.MaxRetries.Normal
	}
}
