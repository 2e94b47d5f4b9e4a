package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/voyagerhq/llm-gateway/config"
	"github.com/voyagerhq/llm-gateway/handlers"
	"github.com/voyagerhq/llm-gateway/repositories"
	"github.com/voyagerhq/llm-gateway/repositories/postgres"
	"github.com/voyagerhq/llm-gateway/services/breaker"
	"github.com/voyagerhq/llm-gateway/services/budget"
	"github.com/voyagerhq/llm-gateway/services/cache"
	"github.com/voyagerhq/llm-gateway/services/gateway"
	"github.com/voyagerhq/llm-gateway/services/providers"
	"github.com/voyagerhq/llm-gateway/services/providers/anthropic"
	"github.com/voyagerhq/llm-gateway/services/providers/cohere"
	"github.com/voyagerhq/llm-gateway/services/providers/gemini"
	"github.com/voyagerhq/llm-gateway/services/providers/openai"
	"github.com/voyagerhq/llm-gateway/services/routing"
	"github.com/voyagerhq/llm-gateway/services/usage"
	"go.uber.org/zap"
)

// Dependencies is the central wiring point for the gateway. Everything the
// HTTP layer needs hangs off this struct.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	DB     *sql.DB
	Logger *zap.Logger

	// Core services
	Registry *providers.Registry
	Router   *routing.Engine
	Cache    cache.Store
	Breakers *breaker.Set
	Budgets  *budget.Manager
	Metrics  *usage.Metrics
	Recorder *usage.Recorder
	Engine   *gateway.Engine

	// Handlers
	GenerateHandler *handlers.GenerateHandler
	HealthHandler   *handlers.HealthHandler
	MetricsHandler  *handlers.MetricsHandler

	// Version reported by the health endpoint.
	Version string

	redisCache *cache.Redis
	cleanupCtx context.Context
	cancel     context.CancelFunc
}

// NewDependencies creates and wires up all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, secrets config.SecretResolver, version string, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config:  cfg,
		Logger:  logger,
		Version: version,
	}
	deps.cleanupCtx, deps.cancel = context.WithCancel(context.Background())

	if err := deps.initDatabase(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := deps.initProviders(cfg, secrets); err != nil {
		return nil, fmt.Errorf("failed to initialize providers: %w", err)
	}
	if err := deps.initCache(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}
	if err := deps.initServices(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	deps.initHandlers()

	logger.Info("all dependencies initialized",
		zap.Strings("providers", deps.Registry.Names()),
		zap.String("cache_backend", cfg.Cache.Backend),
		zap.Bool("durable_storage", deps.DB != nil))
	return deps, nil
}

// initDatabase opens PostgreSQL when configured. Without a URL the gateway
// runs on in-memory repositories.
func (d *Dependencies) initDatabase(ctx context.Context, cfg *config.Config) error {
	if cfg.Database.URL == "" {
		d.Logger.Warn("no database configured, usage and budget state are in-memory only")
		return nil
	}

	db, err := postgres.Open(ctx, postgres.Config{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime.Std(),
	})
	if err != nil {
		return err
	}
	d.DB = db
	d.Logger.Info("database connection established")
	return nil
}

// initProviders builds the closed adapter registry from the enabled provider
// blocks, resolving credentials through the secret resolver.
func (d *Dependencies) initProviders(cfg *config.Config, secrets config.SecretResolver) error {
	registry := providers.NewRegistry()

	for name, pc := range cfg.Providers {
		if !pc.Enabled {
			continue
		}
		apiKey, err := secrets.Resolve(pc.APIKeyRef)
		if err != nil {
			return fmt.Errorf("provider %q: %w", name, err)
		}
		adapterCfg := providers.Config{
			APIKey:  apiKey,
			BaseURL: pc.BaseURL,
			Timeout: pc.Timeout.Std(),
		}

		var adapter providers.Adapter
		switch name {
		case "openai":
			adapter = openai.New(adapterCfg)
		case "anthropic":
			adapter = anthropic.New(adapterCfg)
		case "gemini":
			adapter = gemini.New(adapterCfg)
		case "cohere":
			adapter = cohere.New(adapterCfg)
		default:
			return fmt.Errorf("provider %q: no adapter available", name)
		}

		if err := registry.Register(adapter); err != nil {
			return fmt.Errorf("provider %q: %w", name, err)
		}
		d.Logger.Info("provider registered", zap.String("provider", name))
	}

	d.Registry = registry
	return nil
}

func (d *Dependencies) initCache(ctx context.Context, cfg *config.Config) error {
	switch cfg.Cache.Backend {
	case "redis":
		store, err := cache.NewRedis(ctx, cfg.Cache.RedisURL, cfg.Cache.TTL.Std())
		if err != nil {
			return err
		}
		d.redisCache = store
		d.Cache = store
	default:
		store := cache.NewMemory(cfg.Cache.Capacity, cfg.Cache.TTL.Std())
		go store.StartCleanupWorker(d.cleanupCtx, cfg.Cache.CleanupInterval.Std())
		d.Cache = store
	}
	return nil
}

func (d *Dependencies) initServices(cfg *config.Config) error {
	d.Breakers = breaker.NewSet(cfg.BreakerSetConfig())

	defs, err := cfg.ModelDefinitions()
	if err != nil {
		return err
	}
	d.Router = routing.NewEngine(defs, cfg.RoutingEngineConfig(), d.Logger)

	var budgetRepo repositories.BudgetRepository
	var usageRepo repositories.UsageRepository
	if d.DB != nil {
		budgetRepo = postgres.NewBudgetRepository(d.DB)
		usageRepo = postgres.NewUsageRepository(d.DB)
	} else {
		budgetRepo = repositories.NewMemoryBudgetRepository()
		usageRepo = repositories.NewMemoryUsageRepository()
	}

	budgetCfg, err := cfg.BudgetManagerConfig()
	if err != nil {
		return err
	}
	d.Budgets = budget.NewManager(budgetCfg, budgetRepo, budget.NewLogNotifier(d.Logger), d.Logger)

	d.Metrics = usage.NewMetrics()
	d.Recorder = usage.NewRecorder(usageRepo, d.Metrics, d.Logger, cfg.UsageRecorderConfig())
	d.Recorder.Start()

	d.Engine = gateway.NewEngine(
		d.Registry,
		d.Router,
		d.Cache,
		d.Breakers,
		d.Budgets,
		d.Recorder,
		cfg.GatewayEngineConfig(),
		d.Logger,
	)
	return nil
}

func (d *Dependencies) initHandlers() {
	d.GenerateHandler = handlers.NewGenerateHandler(d.Engine, d.Logger)
	d.HealthHandler = handlers.NewHealthHandler(d.Registry, d.Breakers, d.Version, d.Logger)

	var stats handlers.CacheStatsProvider
	if provider, ok := d.Cache.(handlers.CacheStatsProvider); ok {
		stats = provider
	}
	d.MetricsHandler = handlers.NewMetricsHandler(d.Metrics, stats, d.Logger)
}

// ReloadModels re-reads the model set from a freshly loaded config and swaps
// it into the router. Providers, budgets, and listeners are not reloaded.
func (d *Dependencies) ReloadModels(cfg *config.Config) error {
	defs, err := cfg.ModelDefinitions()
	if err != nil {
		return err
	}
	d.Router.ReplaceDefinitions(defs)
	return nil
}

// Close gracefully shuts down all dependencies.
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.Recorder != nil {
		d.Recorder.Stop()
	}
	if d.cancel != nil {
		d.cancel()
	}
	if d.redisCache != nil {
		if err := d.redisCache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close redis: %w", err))
		}
	}
	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}
	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}
	return nil
}
