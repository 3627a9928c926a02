// Package app assembles the search service from configuration for the API server and CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/Turnstyle/ria-hunter-sub007/internal/answer"
	"github.com/Turnstyle/ria-hunter-sub007/internal/cache"
	"github.com/Turnstyle/ria-hunter-sub007/internal/config"
	"github.com/Turnstyle/ria-hunter-sub007/internal/domain"
	"github.com/Turnstyle/ria-hunter-sub007/internal/embedding"
	"github.com/Turnstyle/ria-hunter-sub007/internal/llm"
	"github.com/Turnstyle/ria-hunter-sub007/internal/metrics"
	"github.com/Turnstyle/ria-hunter-sub007/internal/observability"
	"github.com/Turnstyle/ria-hunter-sub007/internal/planner"
	"github.com/Turnstyle/ria-hunter-sub007/internal/retrieval"
	"github.com/Turnstyle/ria-hunter-sub007/internal/search"
	"github.com/Turnstyle/ria-hunter-sub007/internal/storage"
)

const cacheSweepInterval = time.Minute

// Options override parts of the assembly.
type Options struct {
	// Store replaces the Postgres store.
	Store storage.FirmStore
	// Logger replaces the logger built from the observability config.
	Logger *observability.Logger
	// ServiceName is attached to every log line.
	ServiceName string
}

// App is an assembled service plus the resources it owns.
type App struct {
	Config   *config.Config
	Logger   *observability.Logger
	Metrics  *metrics.Metrics
	Registry *prometheus.Registry
	Service  *search.Service

	// Provider is the generation provider, nil when generation is not configured.
	Provider llm.Provider
	// Embedder is nil when no embedding provider is usable.
	Embedder embedding.Embedder

	closers []func() error
}

// New builds the service. Missing provider credentials degrade to deterministic fallbacks;
// only store and configuration failures are returned.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	a := &App{Config: cfg, Logger: opts.Logger}
	if a.Logger == nil {
		a.Logger = observability.NewLogger(observability.LogConfig{
			Level:       cfg.Observability.LogLevel,
			Format:      cfg.Observability.LogFormat,
			ServiceName: opts.ServiceName,
			Environment: cfg.Environment,
		})
	}
	log := a.Logger.WithComponent("app")

	a.Metrics = metrics.New()
	if cfg.Observability.MetricsEnabled {
		a.Registry = prometheus.NewRegistry()
		a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		if err := a.Metrics.Register(a.Registry); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}

	store := opts.Store
	if store == nil {
		db, err := storage.Open(ctx, storage.PostgresConfig{
			DSN:             cfg.Database.DSN,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		})
		if err != nil {
			return nil, domain.ConfigurationError("firm store unavailable", err)
		}
		a.closers = append(a.closers, db.Close)
		store = storage.NewPostgresStore(db)
	}

	c, err := a.buildCache(ctx)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	a.Embedder = a.buildEmbedder()

	provider, err := llm.NewFromConfig(cfg.Generation, a.Logger)
	if err != nil {
		_ = a.Close()
		return nil, domain.ConfigurationError("generation provider", err)
	}
	a.Provider = provider

	p, router := Planning(cfg, provider, c, a.Logger, a.Metrics)

	a.Service = search.NewService(search.Components{
		Planner:  p,
		Router:   router,
		Executor: retrieval.NewExecutor(store, a.Embedder, retrieval.ExecutorConfig{
			Dimension:            cfg.Embedding.Dimension,
			MatchThreshold:       cfg.Retrieval.MatchThreshold,
			SuperlativeScanLimit: cfg.Retrieval.SuperlativeScanLimit,
			EnrichmentWindow:     cfg.Retrieval.EnrichmentWindow,
			MaxExecutives:        cfg.Answer.MaxExecutives,
		}, a.Logger, a.Metrics),
		Builder: answer.NewBuilder(cfg.Answer.MaxContextRows, cfg.Answer.MaxExecutives),
		Generator: answer.NewGenerator(provider, answer.Config{
			MaxTokens:       cfg.Generation.MaxTokens,
			Temperature:     cfg.Generation.Temperature,
			FallbackEntries: cfg.Answer.FallbackEntries,
			StreamDelay:     cfg.Answer.StreamDelay,
			StreamBuffer:    cfg.Answer.StreamBuffer,
			Production:      cfg.IsProduction(),
		}, a.Logger, a.Metrics),
		Store: store,
	}, search.Config{
		DefaultLimit: cfg.Retrieval.DefaultLimit,
		MaxLimit:     cfg.Retrieval.MaxLimit,
	}, a.Logger, a.Metrics)

	log.Info().
		Str("environment", cfg.Environment).
		Str("cache", cfg.Cache.Backend).
		Bool("embeddings", a.Embedder != nil).
		Str("generation", providerName(provider)).
		Bool("ai_planning", provider != nil && cfg.Generation.UseForPlanning).
		Msg("Search service ready")
	return a, nil
}

// Planning builds the planner and router. The AI decomposer and classifier are only used
// when a provider is configured and planning is enabled.
func Planning(cfg *config.Config, provider llm.Provider, c cache.Client, logger *observability.Logger, m *metrics.Metrics) (*planner.Planner, *retrieval.Router) {
	var (
		decomposer planner.Decomposer
		classifier retrieval.Classifier
	)
	if provider != nil && cfg.Generation.UseForPlanning {
		decomposer = planner.NewLLMDecomposer(provider)
		classifier = retrieval.NewLLMClassifier(provider)
	}

	p := planner.New(decomposer, c, planner.Config{
		CacheTTL:         cfg.Cache.PlanTTL,
		DecomposeTimeout: cfg.Generation.Timeout,
	}, logger, m)
	router := retrieval.NewRouter(c, classifier, retrieval.RouterConfig{
		CacheTTL: cfg.Cache.RoutingTTL,
	}, logger, m)
	return p, router
}

// buildCache returns nil for the "none" backend. An unreachable Redis degrades to the
// in-memory cache.
func (a *App) buildCache(ctx context.Context) (cache.Client, error) {
	cfg := a.Config.Cache
	log := a.Logger.WithComponent("app")

	switch cfg.Backend {
	case "none":
		return nil, nil
	case "redis":
		rc, err := cache.NewRedisClient(ctx, cache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
			Prefix:   cfg.Redis.Prefix,
		})
		if err == nil {
			a.closers = append(a.closers, rc.Close)
			return rc, nil
		}
		log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("Redis unavailable, using in-memory cache")
	case "memory":
	default:
		return nil, domain.ConfigurationError(fmt.Sprintf("unknown cache backend %q", cfg.Backend), nil)
	}

	mc := cache.NewMemoryClient(cfg.MaxEntries, cacheSweepInterval)
	a.closers = append(a.closers, mc.Close)
	return mc, nil
}

func (a *App) buildEmbedder() embedding.Embedder {
	cfg := a.Config.Embedding
	if cfg.Provider == "mock" {
		return embedding.NewMockClient(cfg.Dimension)
	}

	client, err := embedding.NewOpenAIClient(embedding.Config{
		APIKey:    cfg.APIKey,
		BaseURL:   cfg.BaseURL,
		Model:     cfg.Model,
		Dimension: cfg.Dimension,
		Timeout:   cfg.Timeout,
	}, a.Metrics)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("Embedding provider unavailable, semantic retrieval disabled")
		return nil
	}
	return client
}

// Close releases the store and cache in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func providerName(p llm.Provider) string {
	if p == nil {
		return "none"
	}
	return p.Name()
}
