// Command outbox-publisher drains the outbox table and publishes each event
// through a topology.Connection, demonstrating the library's Exchange.Send
// retry-on-rebuild path under a real Postgres-backed outbox. Grounded on the
// teacher's internal/runtime.PublisherCtx build/start/wait/shutdown/cleanup
// lifecycle (internal/runtime/publisher.go).
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/architeacher/amqp-topology/internal/adapters/outbox"
	"github.com/architeacher/amqp-topology/internal/adapters/repos"
	"github.com/architeacher/amqp-topology/internal/breaker"
	"github.com/architeacher/amqp-topology/internal/config"
	"github.com/architeacher/amqp-topology/internal/httpserver"
	"github.com/architeacher/amqp-topology/internal/infrastructure"
	"github.com/architeacher/amqp-topology/internal/secrets"
	"github.com/architeacher/amqp-topology/internal/service"
	"github.com/architeacher/amqp-topology/internal/shared/backoff"
	"github.com/architeacher/amqp-topology/internal/telemetry"
	"github.com/architeacher/amqp-topology/pkg/topology"
)

type publisherCtx struct {
	cfg        *config.ServiceConfig
	logger     infrastructure.Logger
	metrics    infrastructure.Metrics
	storage    *infrastructure.Storage
	connection *topology.Connection
	httpServer *http.Server
	processor  *outbox.Processor

	tracerShutdown telemetry.ShutdownFunc

	shutdownChannel chan os.Signal
	ctx             context.Context
	cancelFunc      context.CancelFunc
}

func newPublisherCtx() *publisherCtx {
	return &publisherCtx{shutdownChannel: make(chan os.Signal, 1)}
}

func (c *publisherCtx) run() {
	c.build()
	c.start()
	c.wait()
	c.shutdown()
}

func (c *publisherCtx) build() {
	c.ctx, c.cancelFunc = context.WithCancel(context.Background())

	cfg, err := config.Init()
	if err != nil {
		panic(fmt.Errorf("failed to load configuration: %w", err))
	}
	c.cfg = cfg

	c.logger = infrastructure.New(cfg.Logging)

	tracerShutdown, err := telemetry.InitGlobalTracing(c.ctx, *cfg, c.logger)
	if err != nil {
		c.logger.Fatal().Err(err).Msg("failed to initialize tracing")
	}
	c.tracerShutdown = tracerShutdown

	secretsRepo, err := secrets.NewRepository(cfg.SecretStorage)
	if err != nil {
		c.logger.Fatal().Err(err).Msg("failed to build secrets repository")
	}

	if cfg.SecretStorage.Enabled {
		loader := config.NewLoader(cfg, secretsRepo, 0)

		version, err := loader.Load(c.ctx, secretsRepo, cfg)
		if err != nil {
			c.logger.Fatal().Err(err).Msg("failed to load secrets from vault")
		}

		loader.WatchConfigSignals(c.ctx)

		c.logger.Info().Msg("secrets loaded from vault")
		_ = version
	}

	c.metrics, err = infrastructure.NewMetrics(c.ctx, *cfg, c.logger)
	if err != nil {
		c.logger.Fatal().Err(err).Msg("failed to initialize metrics")
	}

	c.storage, err = infrastructure.NewStorage(cfg.Storage)
	if err != nil {
		c.logger.Fatal().Err(err).Msg("failed to initialize storage")
	}

	db, err := c.storage.GetDB()
	if err != nil {
		c.logger.Fatal().Err(err).Msg("failed to obtain database handle")
	}
	outboxRepo := repos.NewOutboxRepository(db)

	dialBreaker := breaker.New(cfg.DialBreaker)

	c.connection = topology.NewConnection(
		topology.Config{
			URL: fmt.Sprintf("amqp://%s:%s@%s:%d%s", cfg.Queue.Username, cfg.Queue.Password, cfg.Queue.Host, cfg.Queue.Port, cfg.Queue.VirtualHost),
			SocketOptions: topology.SocketOptions{
				Heartbeat:      cfg.Queue.Heartbeat,
				ConnectionName: cfg.AppConfig.ServiceName + "-publisher",
			},
			ReconnectStrategy: topology.ReconnectStrategy{
				Retries:  cfg.Queue.ReconnectRetries,
				Interval: cfg.Queue.ReconnectInterval,
			},
		},
		topology.WithLogger(topology.NewLoggerAdapter(c.logger)),
		topology.WithDialBreaker(dialBreaker),
	)

	connectCtx, cancel := context.WithTimeout(c.ctx, cfg.Queue.ConnectTimeout)
	defer cancel()

	if err := c.connection.Start(connectCtx); err != nil {
		c.logger.Fatal().Err(err).Msg("failed to connect to broker")
	}

	exchange, err := c.connection.DeclareExchange(c.ctx, cfg.Queue.ExchangeName, cfg.Queue.ExchangeKind, topology.ExchangeOptions{
		Durable:    cfg.Queue.Durable,
		AutoDelete: cfg.Queue.AutoDelete,
	})
	if err != nil {
		c.logger.Fatal().Err(err).Msg("failed to declare exchange")
	}

	backoffStrategy := backoff.NewExponentialStrategy(cfg.Backoff)
	publisherSvc := service.NewPublisherService(outboxRepo, exchange, backoffStrategy, c.logger, c.metrics)

	c.processor = outbox.NewProcessor(publisherSvc, c.logger, cfg.Outbox.PollInterval, cfg.Outbox.BatchSize)

	checker := httpserver.NewChecker(c.storage, c.connection)
	c.httpServer = httpserver.New(cfg, c.logger, c.metrics, checker)
}

func (c *publisherCtx) start() {
	c.logger.Info().Msg("starting outbox publisher service")

	go func() {
		if err := c.processor.Start(c.ctx); err != nil && !errors.Is(err, context.Canceled) {
			c.logger.Fatal().Err(err).Msg("outbox processor failed")
		}
	}()

	go func() {
		if err := c.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.logger.Fatal().Err(err).Msg("health server failed")
		}
	}()
}

func (c *publisherCtx) wait() {
	signal.Notify(c.shutdownChannel, syscall.SIGINT, syscall.SIGTERM)
	<-c.shutdownChannel
}

func (c *publisherCtx) shutdown() {
	c.logger.Info().Msg("received shutdown signal")
	defer c.cleanup()

	c.cancelFunc()
	c.logger.Info().Msg("outbox publisher service stopped")
}

func (c *publisherCtx) cleanup() {
	c.logger.Info().Msg("cleaning up resources...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), c.cfg.HTTPServer.ShutdownTimeout)
	defer cancel()

	if c.httpServer != nil {
		if err := c.httpServer.Shutdown(shutdownCtx); err != nil {
			c.logger.Error().Err(err).Msg("failed to shut down health server")
		}
	}

	if c.connection != nil {
		if err := c.connection.Close(shutdownCtx); err != nil {
			c.logger.Error().Err(err).Msg("failed to close topology connection")
		}
	}

	if c.metrics != nil {
		if err := c.metrics.Shutdown(shutdownCtx); err != nil {
			c.logger.Error().Err(err).Msg("failed to shut down metrics")
		}
	}

	if c.storage != nil {
		if err := c.storage.Close(); err != nil {
			c.logger.Error().Err(err).Msg("failed to close storage")
		}
	}

	if c.tracerShutdown != nil {
		if err := c.tracerShutdown(shutdownCtx); err != nil {
			c.logger.Error().Err(err).Msg("failed to shut down tracer provider")
		}
	}

	c.logger.Info().Msg("cleanup completed")
}

func main() {
	newPublisherCtx().run()
}
