// Package httpserver exposes the demo services' health and metrics surface,
// grounded on the teacher's internal/runtime.initHTTPServer chi wiring
// (internal/runtime/deps.go), trimmed to the routes these services actually
// need: no generated request handlers, no auth, no rate limiting, since this
// repo's HTTP surface never accepts analyzed-page requests.
package httpserver

import (
	"fmt"
	"net"
	"net/http"

	"github.com/architeacher/amqp-topology/internal/adapters/middleware"
	"github.com/architeacher/amqp-topology/internal/config"
	"github.com/architeacher/amqp-topology/internal/infrastructure"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// New builds the health/readiness/metrics HTTP server for a demo service.
func New(
	cfg *config.ServiceConfig,
	logger infrastructure.Logger,
	metrics infrastructure.Metrics,
	checker DependencyChecker,
) *http.Server {
	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(chimiddleware.Timeout(cfg.HTTPServer.WriteTimeout))

	if cfg.Telemetry.Metrics.Enabled {
		router.Use(middleware.NewMetricsMiddleware(metrics).Middleware)
	}

	if cfg.Logging.AccessLog.Enabled {
		healthFilter := middleware.NewHealthCheckFilter(cfg.Logging.AccessLog.LogHealthChecks)
		accessLogger := middleware.NewAccessLogger(logger)

		router.Use(healthFilter.Middleware, accessLogger.Middleware)
	}

	health := NewHealthHandler(checker, cfg.AppConfig.ServiceName, cfg.AppConfig.ServiceVersion)

	router.Get("/healthz", health.Liveness)
	router.Get("/readyz", health.Readiness)
	router.Get("/health", health.Health)
	router.Handle("/metrics", metrics.Handler())

	var handler http.Handler = router
	if cfg.Telemetry.Traces.Enabled {
		handler = otelhttp.NewHandler(router, cfg.AppConfig.ServiceName+"-http")
	}

	return &http.Server{
		Addr:         net.JoinHostPort(cfg.HTTPServer.Host, fmt.Sprintf("%d", cfg.HTTPServer.Port)),
		Handler:      handler,
		ReadTimeout:  cfg.HTTPServer.ReadTimeout,
		WriteTimeout: cfg.HTTPServer.WriteTimeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}
}
