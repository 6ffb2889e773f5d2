// Package telemetry initializes the global OpenTelemetry tracer provider,
// grounded on the teacher's internal/runtime.WithTracing dependency option
// (internal/runtime/dependency_options.go), which calls an initGlobalTracing
// helper not present in the retrieved sources; this package reconstructs
// that helper's SDK wiring in the same idiom as the sibling
// internal/infrastructure/metrics.go OTEL setup (gRPC exporter dialed via
// google.golang.org/grpc, resource built from semconv service attributes).
package telemetry

import (
	"context"
	"fmt"

	"github.com/architeacher/amqp-topology/internal/config"
	"github.com/architeacher/amqp-topology/internal/infrastructure"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// ShutdownFunc flushes and stops the global tracer provider.
type ShutdownFunc func(context.Context) error

// InitGlobalTracing sets the global TracerProvider and propagator per cfg.
// When traces are disabled it installs the no-op provider and returns a
// no-op shutdown, mirroring NewMetrics' NoOp fallback in
// internal/infrastructure/metrics.go.
func InitGlobalTracing(ctx context.Context, cfg config.ServiceConfig, logger infrastructure.Logger) (ShutdownFunc, error) {
	if !cfg.Telemetry.Traces.Enabled {
		logger.Info().Msg("tracing disabled, using no-op tracer provider")

		otel.SetTracerProvider(noop.NewTracerProvider())

		return func(context.Context) error { return nil }, nil
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
		return nil, fmt.Errorf("telemetry: failed to create resource: %w", err)
	}

	exporter, err := newSpanExporter(ctx, cfg)
	if err != nil {
		return nil, err
	}

	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.Telemetry.Traces.SamplerRatio))),
	)

	otel.SetTracerProvider(tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info().
		Str("otel_exporter", cfg.Telemetry.ExporterType).
		Float64("sampler_ratio", cfg.Telemetry.Traces.SamplerRatio).
		Msg("global tracer provider initialized")

	return tracerProvider.Shutdown, nil
}

func newSpanExporter(ctx context.Context, cfg config.ServiceConfig) (sdktrace.SpanExporter, error) {
	if cfg.Telemetry.ExporterType == "stdout" {
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("telemetry: failed to create stdout span exporter: %w", err)
		}

		return exporter, nil
	}

	endpoint := fmt.Sprintf("%s:%s", cfg.Telemetry.OtelGRPCHost, cfg.Telemetry.OtelGRPCPort)

	conn, err := grpc.NewClient(endpoint, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("telemetry: failed to create gRPC connection to OTEL collector: %w", err)
	}

	exporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("telemetry: failed to create OTLP span exporter: %w", err)
	}

	return exporter, nil
}
