//go:generate go tool github.com/maxbrunsfeld/counterfeiter/v6 -generate

package infrastructure

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/architeacher/amqp-topology/internal/config"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	metricsNamespace = "amqp_topology"
)

type (
	//counterfeiter:generate -o ../mocks/metrics.go . Metrics

	Metrics interface {
		RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration, requestSize, responseSize int64)
		RecordReconnect(ctx context.Context, success bool)
		RecordDeclaration(ctx context.Context, kind string, success bool)
		RecordRPCLatency(ctx context.Context, duration time.Duration, success bool)
		RecordOutboxEvent(ctx context.Context, success bool, priority string)
		Handler() http.Handler
		Shutdown(ctx context.Context) error
	}

	OTELMetrics struct {
		meterProvider *sdkmetric.MeterProvider
		meter         metric.Meter
		logger        Logger

		httpRequestTotal     metric.Int64Counter
		httpRequestDuration  metric.Float64Histogram
		httpRequestSize      metric.Int64Histogram
		httpResponseSize     metric.Int64Histogram
		reconnectTotal       metric.Int64Counter
		declarationTotal     metric.Int64Counter
		declarationErrTotal  metric.Int64Counter
		rpcRequestDuration   metric.Float64Histogram
		rpcErrorTotal        metric.Int64Counter
		outboxProcessedTotal metric.Int64Counter
		outboxErrorTotal     metric.Int64Counter
	}
)

func NewMetrics(ctx context.Context, cfg config.ServiceConfig, logger Logger) (Metrics, error) {
	if !cfg.Telemetry.Metrics.Enabled {
		logger.Info().Msg("metrics disabled, using NoOp implementation")

		return &NoOpMetrics{}, nil
	}

	return NewOTELMetrics(ctx, cfg, logger)
}

func NewOTELMetrics(ctx context.Context, cfg config.ServiceConfig, logger Logger) (*OTELMetrics, error) {
	endpoint := fmt.Sprintf("%s:%s", cfg.Telemetry.OtelGRPCHost, cfg.Telemetry.OtelGRPCPort)

	conn, err := grpc.NewClient(
		endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection to OTEL collector: %w", err)
	}

	exporter, err := otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP metric exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.AppConfig.ServiceName),
			semconv.ServiceVersionKey.String(cfg.AppConfig.ServiceVersion),
			semconv.ServiceInstanceIDKey.String(cfg.AppConfig.CommitSHA),
			semconv.DeploymentEnvironmentKey.String(cfg.AppConfig.Env),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
		sdkmetric.WithResource(res),
	)

	otel.SetMeterProvider(meterProvider)

	meter := meterProvider.Meter(
		metricsNamespace,
		metric.WithInstrumentationVersion(cfg.AppConfig.ServiceVersion),
	)

	logger.With().Str("component", "metrics")

	provider := &OTELMetrics{
		meterProvider: meterProvider,
		meter:         meter,
		logger:        logger,
	}

	if err := provider.initializeMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	logger.Info().
		Str("otel_endpoint", endpoint).
		Msg("OTEL metrics provider initialized successfully")

	return provider, nil
}

func (om *OTELMetrics) initializeMetrics() error {
	var err error

	om.httpRequestTotal, err = om.meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create http_requests_total counter: %w", err)
	}

	om.httpRequestDuration, err = om.meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create http_request_duration_seconds histogram: %w", err)
	}

	om.httpRequestSize, err = om.meter.Int64Histogram(
		"http_request_size_bytes",
		metric.WithDescription("HTTP request size in bytes"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return fmt.Errorf("failed to create http_request_size_bytes histogram: %w", err)
	}

	om.httpResponseSize, err = om.meter.Int64Histogram(
		"http_response_size_bytes",
		metric.WithDescription("HTTP response size in bytes"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return fmt.Errorf("failed to create http_response_size_bytes histogram: %w", err)
	}

	om.reconnectTotal, err = om.meter.Int64Counter(
		"connection_reconnects_total",
		metric.WithDescription("Total number of broker reconnect attempts"),
		metric.WithUnit("{reconnect}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create connection_reconnects_total counter: %w", err)
	}

	om.declarationTotal, err = om.meter.Int64Counter(
		"topology_declarations_total",
		metric.WithDescription("Total number of exchange/queue/binding declarations"),
		metric.WithUnit("{declaration}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create topology_declarations_total counter: %w", err)
	}

	om.declarationErrTotal, err = om.meter.Int64Counter(
		"topology_declaration_errors_total",
		metric.WithDescription("Total number of failed topology declarations"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create topology_declaration_errors_total counter: %w", err)
	}

	om.rpcRequestDuration, err = om.meter.Float64Histogram(
		"rpc_request_duration_seconds",
		metric.WithDescription("Direct-reply-to RPC round-trip duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create rpc_request_duration_seconds histogram: %w", err)
	}

	om.rpcErrorTotal, err = om.meter.Int64Counter(
		"rpc_errors_total",
		metric.WithDescription("Total number of failed RPC requests"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create rpc_errors_total counter: %w", err)
	}

	om.outboxProcessedTotal, err = om.meter.Int64Counter(
		"outbox_processed_total",
		metric.WithDescription("Total number of outbox events processed"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create outbox_processed_total counter: %w", err)
	}

	om.outboxErrorTotal, err = om.meter.Int64Counter(
		"outbox_errors_total",
		metric.WithDescription("Total number of outbox processing errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create outbox_errors_total counter: %w", err)
	}

	return nil
}

func (om *OTELMetrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration, requestSize, responseSize int64) {
	om.httpRequestTotal.Add(ctx, 1,
		metric.WithAttributes(
			HTTPMethodAttr(method),
			HTTPPathAttr(path),
			HTTPStatusCodeAttr(statusCode),
		),
	)

	om.httpRequestDuration.Record(ctx, duration.Seconds(),
		metric.WithAttributes(
			HTTPMethodAttr(method),
			HTTPPathAttr(path),
			HTTPStatusCodeAttr(statusCode),
		),
	)

	om.httpRequestSize.Record(ctx, requestSize,
		metric.WithAttributes(
			HTTPMethodAttr(method),
			HTTPPathAttr(path),
		),
	)

	om.httpResponseSize.Record(ctx, responseSize,
		metric.WithAttributes(
			HTTPMethodAttr(method),
			HTTPPathAttr(path),
			HTTPStatusCodeAttr(statusCode),
		),
	)
}

func (om *OTELMetrics) RecordReconnect(ctx context.Context, success bool) {
	status := "success"
	if !success {
		status = "error"
	}

	om.reconnectTotal.Add(ctx, 1, metric.WithAttributes(StatusAttr(status)))
}

func (om *OTELMetrics) RecordDeclaration(ctx context.Context, kind string, success bool) {
	om.declarationTotal.Add(ctx, 1, metric.WithAttributes(EntityKindAttr(kind)))

	if !success {
		om.declarationErrTotal.Add(ctx, 1, metric.WithAttributes(EntityKindAttr(kind)))
	}
}

func (om *OTELMetrics) RecordRPCLatency(ctx context.Context, duration time.Duration, success bool) {
	status := "success"
	if !success {
		status = "error"
	}

	om.rpcRequestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(StatusAttr(status)))

	if !success {
		om.rpcErrorTotal.Add(ctx, 1)
	}
}

func (om *OTELMetrics) RecordOutboxEvent(ctx context.Context, success bool, priority string) {
	if success {
		om.outboxProcessedTotal.Add(ctx, 1,
			metric.WithAttributes(
				PriorityAttr(priority),
			),
		)

		return
	}

	om.outboxErrorTotal.Add(ctx, 1,
		metric.WithAttributes(
			PriorityAttr(priority),
		),
	)
}

func (om *OTELMetrics) Handler() http.Handler {
	return promhttp.Handler()
}

func (om *OTELMetrics) Shutdown(ctx context.Context) error {
	if err := om.meterProvider.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown meter provider: %w", err)
	}

	return nil
}
