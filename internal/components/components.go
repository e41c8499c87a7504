package components

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"hyperlocal/internal/api"
	"hyperlocal/internal/api/handlers/http/system"
	"hyperlocal/internal/config"
	"hyperlocal/internal/enrichment"
	"hyperlocal/internal/notify"
	"hyperlocal/internal/observability"
	"hyperlocal/internal/realtime"
	"hyperlocal/internal/redis"
	"hyperlocal/internal/service"
	"hyperlocal/internal/storage/memory"
	"hyperlocal/internal/storage/mongo"
	"hyperlocal/internal/storage/postgres"
	"hyperlocal/internal/workers"
	"hyperlocal/pkg/logger"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

type Components struct {
	logger     *slog.Logger
	HttpServer *api.Server
	Hub        *realtime.Hub
	Store      service.IncidentRepository
	Redis      *redis.Redis
	Sweeper    *workers.ExpirySweeper

	relay     *realtime.RelayedPublisher
	forwarder *notify.Forwarder
	sender    *notify.WebhookSender

	closeStore func()
	wg         sync.WaitGroup
}

func InitComponents(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Components, error) {
	clock := clockwork.NewRealClock()
	metrics := observability.NewMetrics()

	store, closeStore, err := OpenStore(ctx, cfg, clock, logger)
	if err != nil {
		return nil, err
	}

	c := &Components{
		logger:     logger,
		Store:      store,
		closeStore: closeStore,
	}
	checks := []system.Check{{Name: "store", Pinger: store}}

	var recent service.RecentCache
	var sweepCache workers.Invalidator
	if cfg.Redis.Enabled {
		logger.Info("Initializing Redis")
		redisClient, err := redis.NewRedis(ctx, cfg, logger)
		if err != nil {
			closeStore()
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
		c.Redis = redisClient
		checks = append(checks, system.Check{Name: "redis", Pinger: redisClient})

		cache := redis.NewRecentIncidentCache(redisClient, cfg.Redis.RecentCacheTTL)
		recent = cache
		sweepCache = cache
	}

	c.Hub = realtime.NewHub(cfg.Realtime.SessionBuffer, metrics, logger)
	transport := realtime.NewTransport(c.Hub, cfg.Realtime.PingInterval, logger)

	origin := uuid.NewString()
	var publisher service.Publisher = c.Hub.Topic(realtime.TopicIncidents)
	if c.Redis != nil {
		relay := redis.NewEventRelay(c.Redis, cfg.Redis.RelayChannel, logger)
		c.relay = realtime.NewRelayedPublisher(c.Hub.Topic(realtime.TopicIncidents), relay, origin, logger)
		publisher = c.relay
	}

	// WebhookEnabled implies Redis is enabled.
	if cfg.WebhookEnabled() {
		queue := redis.NewWebhookQueue(c.Redis.Client, redis.WebhookQueueKey)
		c.forwarder = notify.NewForwarder(c.Hub, queue, origin, clock, logger)
		c.sender = notify.NewWebhookSender(logger, cfg.Webhook.URL, queue).WithDepthGauge(metrics.WebhookQueueDepth)
	} else if cfg.Webhook.URL != "" && !cfg.Webhook.Disabled {
		logger.Warn("WEBHOOK_URL set but Redis is disabled; webhooks are off")
	}

	enricher := NewEnricher(cfg, metrics, logger)

	incidentSvc := service.NewIncidentService(store, enricher, publisher, recent, clock, metrics, logger)
	statsSvc := service.NewStatsService(store, c.Hub)
	srv := service.NewService(incidentSvc, statsSvc)

	c.Sweeper = workers.NewExpirySweeper(store, sweepCache, cfg.Expiry.TTL, cfg.Expiry.SweepInterval, clock, metrics, logger)

	c.HttpServer = api.NewServer(cfg, logger, srv, transport, checks...)
	logger.Info("Initialized server")

	return c, nil
}

// OpenSweepCache connects the recent-list cache for a one-shot sweep. The
// invalidator is nil when Redis is disabled.
func OpenSweepCache(ctx context.Context, cfg *config.Config, logger *slog.Logger) (workers.Invalidator, func(), error) {
	if !cfg.Redis.Enabled {
		return nil, func() {}, nil
	}
	r, err := redis.NewRedis(ctx, cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init redis: %w", err)
	}
	closeRedis := func() {
		if err := r.Close(); err != nil {
			logger.Error("Failed to close redis", slog.Any("error", err))
		}
	}
	return redis.NewRecentIncidentCache(r, cfg.Redis.RecentCacheTTL), closeRedis, nil
}

// NewEnricher wires the providers behind their TTL caches.
func NewEnricher(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) *enrichment.Enricher {
	capacity := uint64(cfg.Enrichment.CacheSize)

	var address enrichment.AddressResolver = enrichment.NewGeoapifyClient(cfg.Enrichment.GeoapifyKey, cfg.Enrichment.Timeout, logger)
	address = enrichment.NewCachedAddressResolver(address, cfg.Enrichment.AddressTTL, capacity, metrics)

	var weather enrichment.WeatherProvider = enrichment.NewOpenWeatherClient(cfg.Enrichment.OpenWeatherKey, cfg.Enrichment.Timeout, logger)
	weather = enrichment.NewCachedWeatherProvider(weather, cfg.Enrichment.WeatherTTL, capacity, metrics)

	return enrichment.NewEnricher(address, weather, cfg.Enrichment.Timeout, metrics, logger)
}

// OpenStore connects the configured engine. The returned func releases it.
func OpenStore(ctx context.Context, cfg *config.Config, clock clockwork.Clock, logger *slog.Logger) (service.IncidentRepository, func(), error) {
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		logger.Info("Initializing Postgres")
		pg, err := postgres.NewPostgres(ctx, cfg, logger)
		if err != nil {
			logger.Error("Failed to init postgres", slog.Any("error", err))
			return nil, nil, fmt.Errorf("failed to init postgres: %w", err)
		}
		return pg.Incidents, pg.Close, nil

	case config.DriverMongo:
		logger.Info("Initializing MongoDB")
		store, err := mongo.NewStore(ctx, cfg, logger)
		if err != nil {
			logger.Error("Failed to init mongo", slog.Any("error", err))
			return nil, nil, fmt.Errorf("failed to init mongo: %w", err)
		}
		return store, func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := store.Close(closeCtx); err != nil {
				logger.Error("Mongo disconnect failed", slog.Any("error", err))
			}
		}, nil

	case config.DriverMemory:
		logger.Warn("Using in-memory store; data is lost on restart")
		return memory.NewStore(clock, logger), func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

// Start launches the background workers. They stop when ctx is done.
func (c *Components) Start(ctx context.Context) {
	c.goWorker(func() { c.Sweeper.Run(ctx) })
	// open SSE streams would otherwise hold up server shutdown
	c.goWorker(func() {
		<-ctx.Done()
		c.Hub.Close()
	})

	if c.relay != nil {
		c.goWorker(func() {
			if err := c.relay.Run(ctx); err != nil && ctx.Err() == nil {
				c.logger.Error("event relay failed", slog.Any("error", err))
			}
		})
	}
	if c.forwarder != nil {
		c.goWorker(func() {
			if err := c.forwarder.Run(ctx); err != nil {
				c.logger.Error("webhook forwarder failed", slog.Any("error", err))
			}
		})
		c.goWorker(func() { c.sender.Run(ctx) })
	}
}

func (c *Components) goWorker(fn func()) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn()
	}()
}

func SetupLogger(env string) *slog.Logger {
	switch env {
	case "local":
		return logger.SetupPrettySlog()
	case "dev":
		return slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
				Level: slog.LevelDebug,
			}),
		)
	default:
		return slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
				Level: slog.LevelInfo,
			}),
		)
	}
}

// ShutdownAll waits for workers started by Start, then releases connections.
func (c *Components) ShutdownAll() {
	start := time.Now()
	c.logger.Info("Component shutdown started")

	c.Hub.Close()
	c.wg.Wait()
	c.closeStore()

	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			c.logger.Error("Redis close failed", slog.String("err", err.Error()))
		}
	}

	c.logger.Info("All components stopped",
		slog.Duration("latency", time.Since(start)))
}
