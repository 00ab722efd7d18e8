package dependency_container

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	appEmbedding "github.com/ya-paperswithcode/agentsearch/pkg/app/embedding"
	"github.com/ya-paperswithcode/agentsearch/pkg/app/planner"
	"github.com/ya-paperswithcode/agentsearch/pkg/app/ranking"
	appSearch "github.com/ya-paperswithcode/agentsearch/pkg/app/search"
	"github.com/ya-paperswithcode/agentsearch/pkg/config"
	domainEmbedding "github.com/ya-paperswithcode/agentsearch/pkg/domain/embedding"
	"github.com/ya-paperswithcode/agentsearch/pkg/domain/record"
	handlers "github.com/ya-paperswithcode/agentsearch/pkg/handlers/http"
	"github.com/ya-paperswithcode/agentsearch/pkg/infra/auth/jwt"
	"github.com/ya-paperswithcode/agentsearch/pkg/infra/cache"
	"github.com/ya-paperswithcode/agentsearch/pkg/infra/cache/channel"
	"github.com/ya-paperswithcode/agentsearch/pkg/infra/cache/event"
	"github.com/ya-paperswithcode/agentsearch/pkg/infra/cache/subscriber"
	"github.com/ya-paperswithcode/agentsearch/pkg/infra/embedding/factory"
	"github.com/ya-paperswithcode/agentsearch/pkg/infra/httpx"
	"github.com/ya-paperswithcode/agentsearch/pkg/infra/prometheus"
	"github.com/ya-paperswithcode/agentsearch/pkg/infra/providers"
	providersFactory "github.com/ya-paperswithcode/agentsearch/pkg/infra/providers/factory"
	"github.com/ya-paperswithcode/agentsearch/pkg/infra/repository"
	"github.com/ya-paperswithcode/agentsearch/pkg/infra/snapshot"
	"github.com/ya-paperswithcode/agentsearch/pkg/infra/telemetry"
	"github.com/ya-paperswithcode/agentsearch/pkg/server/middleware"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const (
	PlannerHeuristic  = "heuristic"
	CacheBackendRedis = "redis"
)

type Container struct {
	Instance            string
	Cache               cache.Client
	Records             record.Repository
	Kinds               map[record.Kind]*KindDeps
	Manager             appSearch.Manager
	Snapshots           *snapshot.FileStore
	HandlerTransport    *handlers.HandlerTransport
	MiddlewareTransport *middleware.Transport
	AdminMiddlewares    *middleware.Transport
	JWTManager          jwt.Manager
	RedisListener       cache.EventListener
	RedisPublisher      cache.EventPublisher
	TracerProvider      *sdktrace.TracerProvider

	closers []func() error
}

type ContainerDI struct {
	Cfg    *config.Config
	Logger *logrus.Logger
	// SkipWarmUp leaves the indexes empty. The offline builder fills them itself.
	SkipWarmUp bool
}

func NewContainer(ctx context.Context, di ContainerDI) (*Container, error) {
	cfg := di.Cfg
	c := &Container{
		Instance:       uuid.New().String(),
		RedisPublisher: cache.NewNoopEventPublisher(),
	}

	prometheus.Initialize(prometheus.MetricsConfig{
		EnableLatency:   cfg.Metrics.EnableLatency,
		EnablePerLayer:  cfg.Metrics.EnablePerLayer,
		EnableCacheHits: cfg.Metrics.EnableCacheHits,
	})

	if cfg.Tracing.Enabled {
		tp, err := telemetry.NewTracerProvider(cfg.Tracing, telemetry.DefaultExporterLocator(), di.Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracing: %w", err)
		}
		c.TracerProvider = tp
	}

	records, closeRecords, err := NewRecordRepository(ctx, cfg.Database, di.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize record store: %w", err)
	}
	c.Records = records
	c.closers = append(c.closers, closeRecords)

	var vectorRepo domainEmbedding.Repository
	if cfg.Redis.Enabled {
		cacheInstance, err := cache.NewClient(cache.Config{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TLS:      cfg.Redis.TLS,
		}, di.Logger)
		if err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("failed to initialize cache: %v", err)
		}
		c.Cache = cacheInstance
		c.closers = append(c.closers, cacheInstance.RedisClient().Close)
		vectorRepo = repository.NewRedisEmbeddingRepository(cacheInstance, 0)
		c.RedisPublisher = cache.NewRedisEventPublisher(cacheInstance, channel.IndexEvents)
		c.RedisListener = cache.NewRedisEventListener(di.Logger, cacheInstance, event.Registry)
	}

	// embedding services
	httpClient := httpx.NewFastHTTPClient(cfg.Embedding.Timeout)
	embeddingLocator := factory.NewServiceLocator(di.Logger, httpClient, cfg.Embedding)
	creator, err := embeddingLocator.GetService(cfg.Embedding.Provider)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	if cfg.Embedding.Provider != factory.HashingProvider {
		creator = factory.NewGuardedCreator(creator, httpx.NewCircuitBreaker(
			"embedding-"+cfg.Embedding.Provider,
			cfg.Search.BreakerTimeout,
			cfg.Search.BreakerFailure,
		))
	}
	modelVersion := domainEmbedding.VersionTag(cfg.Embedding.Provider, cfg.Embedding.Model, cfg.Embedding.Version)

	c.Snapshots = snapshot.NewFileStore(cfg.Embedding.SnapshotDir, di.Logger)
	c.Kinds, err = NewKindDeps(BackendsDI{
		Cfg:          cfg,
		Logger:       di.Logger,
		Creator:      creator,
		Records:      records,
		VectorRepo:   vectorRepo,
		Snapshots:    c.Snapshots,
		ModelVersion: modelVersion,
		Providers:    providersFactory.NewProviderLocator(),
	})
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	if !di.SkipWarmUp {
		if err := WarmUp(ctx, c.Kinds, c.Snapshots, cfg.Embedding.BuildOnStart, di.Logger); err != nil {
			_ = c.Close()
			return nil, err
		}
	}

	queryPlanner, err := NewPlanner(cfg.Planner, providersFactory.NewProviderLocator(), di.Logger)
	if err != nil {
		_ = c.Close()
		return nil, err
	}

	var responseCache cache.ResponseCache
	if cfg.Cache.Enabled {
		if cfg.Cache.Backend == CacheBackendRedis && c.Cache != nil {
			responseCache = cache.NewRedisResponseCache(c.Cache, cfg.Cache.TTL, di.Logger)
		} else {
			responseCache = cache.NewMemoryResponseCache(cfg.Cache.TTL)
		}
	}

	backends := make(map[record.Kind]appSearch.Backend, len(c.Kinds))
	indexers := make(map[record.Kind]appEmbedding.Indexer, len(c.Kinds))
	targets := make(map[record.Kind]subscriber.KindTarget, len(c.Kinds))
	for kind, d := range c.Kinds {
		backends[kind] = d.Backend
		indexers[kind] = d.Indexer
		targets[kind] = subscriber.KindTarget{Vectors: d.Store, Index: d.Index}
	}

	c.Manager = appSearch.NewManager(appSearch.ManagerDI{
		Backends:    backends,
		Records:     records,
		Planner:     queryPlanner,
		Cache:       responseCache,
		Config:      cfg.Search,
		MaxVariants: cfg.Planner.MaxVariants,
		Logger:      di.Logger,
	})

	// subscribers
	if c.RedisListener != nil {
		cache.RegisterEventSubscriber[event.RecordsIndexedEvent](c.RedisListener,
			subscriber.NewRecordsIndexedEventSubscriber(di.Logger, c.Instance, targets, responseCache))
		if responseCache != nil {
			cache.RegisterEventSubscriber[event.CacheInvalidatedEvent](c.RedisListener,
				subscriber.NewCacheInvalidatedEventSubscriber(di.Logger, c.Instance, responseCache))
		}
	}

	//middleware
	c.MiddlewareTransport = middleware.NewTransport(
		middleware.NewRequestIDMiddleware(),
		middleware.NewPanicRecoverMiddleware(di.Logger),
		middleware.NewCORSMiddleware(cfg.Server.AllowOrigins),
		middleware.NewMetricsMiddleware(di.Logger),
	)
	if cfg.Server.RateLimit.Enabled {
		opts := middleware.RateLimitOpts{
			Limit:  cfg.Server.RateLimit.Limit,
			Window: cfg.Server.RateLimit.Window,
		}
		if c.Cache != nil {
			opts.Redis = c.Cache.RedisClient()
		}
		c.MiddlewareTransport.RegisterMiddleware(middleware.NewRateLimitMiddleware(di.Logger, opts))
	}

	c.AdminMiddlewares = middleware.NewTransport()
	if cfg.Auth.Enabled {
		if cfg.Auth.SecretKey == "" {
			_ = c.Close()
			return nil, fmt.Errorf("auth is enabled but no secret key is configured: %w", jwt.ErrMissingKey)
		}
		c.JWTManager = jwt.NewJwtManager(cfg.Auth.SecretKey, cfg.Auth.TokenTTL)
		c.AdminMiddlewares.RegisterMiddleware(middleware.NewAdminAuthMiddleware(di.Logger, c.JWTManager))
	}

	// Handler Transport
	defaultLimit := cfg.Search.DefaultLimit
	c.HandlerTransport = &handlers.HandlerTransport{
		PaperSearchHandler:   handlers.NewAgentSearchHandler(di.Logger, c.Manager, defaultLimit, appSearch.TypePapers),
		DatasetSearchHandler: handlers.NewAgentSearchHandler(di.Logger, c.Manager, defaultLimit, appSearch.TypeDatasets),
		AgentSearchHandler:   handlers.NewAgentSearchHandler(di.Logger, c.Manager, defaultLimit, ""),
		MultiSearchHandler:   handlers.NewMultiSearchHandler(di.Logger, c.Manager, defaultLimit),
		SearchInfoHandler:    handlers.NewSearchInfoHandler(di.Logger, c.Manager),
		IndexRecordsHandler: handlers.NewIndexRecordsHandler(handlers.IndexRecordsHandlerDeps{
			Logger:    di.Logger,
			Indexers:  indexers,
			Manager:   c.Manager,
			Publisher: c.RedisPublisher,
			Instance:  c.Instance,
		}),
		GetVersionHandler:      handlers.NewGetVersionHandler(di.Logger),
		HealthHandler:          handlers.NewHealthHandler(di.Logger),
		InvalidateCacheHandler: handlers.NewInvalidateCacheHandler(di.Logger, c.Manager, c.RedisPublisher, c.Instance),
	}

	return c, nil
}

// NewPlanner returns the heuristic planner, or an LLM planner over the
// configured provider that falls back to it.
func NewPlanner(
	cfg config.PlannerConfig,
	locator providersFactory.ProviderLocator,
	logger *logrus.Logger,
) (planner.Planner, error) {
	heuristic := planner.NewHeuristicPlanner()
	if cfg.Provider == "" || cfg.Provider == PlannerHeuristic {
		return heuristic, nil
	}
	client, err := locator.Get(cfg.Provider)
	if err != nil {
		return nil, err
	}
	return planner.NewLLMPlanner(planner.LLMPlannerDI{
		Client: client,
		Config: providers.Config{
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
		},
		Breaker:  httpx.NewCircuitBreaker("planner-"+cfg.Provider, cfg.BreakerTimeout, cfg.BreakerMaxFailures),
		Fallback: heuristic,
		Timeout:  cfg.Timeout,
		Logger:   logger,
	}), nil
}

// NewRanker returns the configured local strategy, or the selector strategy
// over a chat provider with the weighted strategy as its fallback.
func NewRanker(
	cfg config.ScoringConfig,
	locator providersFactory.ProviderLocator,
	logger *logrus.Logger,
) (ranking.Ranker, error) {
	if !strings.EqualFold(cfg.Strategy, ranking.StrategySelector) {
		return ranking.NewRanker(cfg)
	}
	local := cfg
	local.Strategy = ranking.StrategyWeighted
	fallback, err := ranking.NewRanker(local)
	if err != nil {
		return nil, err
	}
	sel := cfg.Selector
	client, err := locator.Get(sel.Provider)
	if err != nil {
		return nil, fmt.Errorf("selector provider: %w", err)
	}
	return ranking.NewSelectorRanker(ranking.SelectorRankerDI{
		Client: client,
		Config: providers.Config{
			APIKey:      sel.APIKey,
			Model:       sel.Model,
			MaxTokens:   sel.MaxTokens,
			Temperature: sel.Temperature,
		},
		Breaker:     httpx.NewCircuitBreaker("selector-"+sel.Provider, sel.BreakerTimeout, sel.BreakerMaxFailures),
		Fallback:    fallback,
		TopN:        sel.TopN,
		Parallelism: sel.Parallelism,
		Threshold:   sel.Threshold,
		Timeout:     sel.Timeout,
		Logger:      logger,
	}), nil
}

// Close releases connections and flushes pending spans.
func (c *Container) Close() error {
	var errs []error
	if c.TracerProvider != nil {
		errs = append(errs, telemetry.Shutdown(context.Background(), c.TracerProvider))
	}
	for i := len(c.closers) - 1; i >= 0; i-- {
		errs = append(errs, c.closers[i]())
	}
	c.closers = nil
	return errors.Join(errs...)
}
