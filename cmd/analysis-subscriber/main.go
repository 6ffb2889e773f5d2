// Command analysis-subscriber declares the demo topology (one topic
// exchange, one durable queue, one binding) and consumes from it, acking or
// nacking through topology.Message and replying to any RPC request carried
// on the delivery's replyTo. Grounded on the teacher's
// internal/runtime.SubscriberCtx lifecycle (internal/runtime/subscriber.go).
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/architeacher/amqp-topology/internal/adapters/queue"
	"github.com/architeacher/amqp-topology/internal/adapters/repos"
	"github.com/architeacher/amqp-topology/internal/breaker"
	"github.com/architeacher/amqp-topology/internal/config"
	"github.com/architeacher/amqp-topology/internal/httpserver"
	"github.com/architeacher/amqp-topology/internal/infrastructure"
	"github.com/architeacher/amqp-topology/internal/secrets"
	"github.com/architeacher/amqp-topology/internal/service"
	"github.com/architeacher/amqp-topology/internal/telemetry"
	"github.com/architeacher/amqp-topology/pkg/topology"
)

type subscriberCtx struct {
	cfg        *config.ServiceConfig
	logger     infrastructure.Logger
	metrics    infrastructure.Metrics
	storage    *infrastructure.Storage
	connection *topology.Connection
	queueTopo  *topology.Queue
	httpServer *http.Server
	worker     *queue.MessageWorker

	tracerShutdown telemetry.ShutdownFunc

	shutdownChannel chan os.Signal
	ctx             context.Context
	cancelFunc      context.CancelFunc
}

func newSubscriberCtx() *subscriberCtx {
	return &subscriberCtx{shutdownChannel: make(chan os.Signal, 1)}
}

func (c *subscriberCtx) run() {
	c.build()
	c.start()
	c.wait()
	c.shutdown()
}

func (c *subscriberCtx) build() {
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

		if _, err := loader.Load(c.ctx, secretsRepo, cfg); err != nil {
			c.logger.Fatal().Err(err).Msg("failed to load secrets from vault")
		}

		loader.WatchConfigSignals(c.ctx)
		c.logger.Info().Msg("secrets loaded from vault")
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
				ConnectionName: cfg.AppConfig.ServiceName + "-subscriber",
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

	if err := c.connection.DeclareTopology(c.ctx, topology.TopologySpec{
		Exchanges: []topology.ExchangeSpec{
			{Name: cfg.Queue.ExchangeName, Kind: cfg.Queue.ExchangeKind, Options: topology.ExchangeOptions{
				Durable:    cfg.Queue.Durable,
				AutoDelete: cfg.Queue.AutoDelete,
			}},
		},
		Queues: []topology.QueueSpec{
			{Name: cfg.Queue.QueueName, Options: topology.QueueOptions{
				Durable:    cfg.Queue.Durable,
				AutoDelete: cfg.Queue.AutoDelete,
				Prefetch:   cfg.Queue.PrefetchCount,
			}},
		},
		Bindings: []topology.BindingSpec{
			{Source: cfg.Queue.ExchangeName, Queue: cfg.Queue.QueueName, Pattern: cfg.Queue.RoutingKey},
		},
	}); err != nil {
		c.logger.Fatal().Err(err).Msg("failed to declare topology")
	}

	q, err := c.connection.DeclareQueue(c.ctx, cfg.Queue.QueueName, topology.QueueOptions{NoCreate: true})
	if err != nil {
		c.logger.Fatal().Err(err).Msg("failed to resolve queue")
	}
	c.queueTopo = q

	subscriberSvc := service.NewSubscriberService(outboxRepo, c.logger)
	c.worker = queue.NewMessageWorker(subscriberSvc, c.logger)

	checker := httpserver.NewChecker(c.storage, c.connection)
	c.httpServer = httpserver.New(cfg, c.logger, c.metrics, checker)
}

func (c *subscriberCtx) start() {
	c.logger.Info().
		Str("queue", c.cfg.Queue.QueueName).
		Msg("starting analysis subscriber service")

	if err := c.queueTopo.ActivateConsumer(c.ctx, topology.ConsumerOptions{}, c.worker.Handle); err != nil {
		c.logger.Fatal().Err(err).Msg("failed to activate consumer")
	}

	go func() {
		if err := c.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.logger.Fatal().Err(err).Msg("health server failed")
		}
	}()
}

func (c *subscriberCtx) wait() {
	signal.Notify(c.shutdownChannel, syscall.SIGINT, syscall.SIGTERM)
	<-c.shutdownChannel
}

func (c *subscriberCtx) shutdown() {
	c.logger.Info().Msg("received shutdown signal")
	defer c.cleanup()

	c.cancelFunc()
	c.logger.Info().Msg("analysis subscriber service stopped")
}

func (c *subscriberCtx) cleanup() {
	c.logger.Info().Msg("cleaning up resources...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), c.cfg.HTTPServer.ShutdownTimeout)
	defer cancel()

	if c.queueTopo != nil {
		if err := c.queueTopo.StopConsumer(); err != nil {
			c.logger.Error().Err(err).Msg("failed to stop consumer")
		}
	}

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
	newSubscriberCtx().run()
}
