package app

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"mcpod/internal/infra/cache"
	"mcpod/internal/infra/config"
	"mcpod/internal/infra/connector"
	"mcpod/internal/infra/discovery"
	"mcpod/internal/infra/mcpserver"
	"mcpod/internal/infra/pool"
	"mcpod/internal/infra/proxy"
	"mcpod/internal/infra/telemetry"
)

type App struct {
	logger *zap.Logger
}

type ServeConfig struct {
	ConfigPath string
}

type ValidateConfig struct {
	ConfigPath string
}

func New(logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &App{
		logger: logger.Named("app"),
	}
}

// Serve wires the cache, pool, proxy, and discovery stack and runs the MCP
// management server over stdio until ctx is cancelled.
func (a *App) Serve(ctx context.Context, serveCfg ServeConfig) error {
	loader := config.NewLoader(a.logger)
	cfg, err := loader.Load(ctx, serveCfg.ConfigPath)
	if err != nil {
		return err
	}
	a.logger.Info("configuration loaded",
		zap.String("config", serveCfg.ConfigPath),
		zap.String("catalog", cfg.Discovery.Catalog),
	)
	logger, err := buildLogger(cfg.Logging.Level)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	registry := prometheus.NewRegistry()
	metrics := telemetry.NewPrometheusMetrics(registry)

	promptsTTL := time.Duration(cfg.Cache.PromptsTTLSeconds) * time.Second
	metadataCache := cache.NewMetadataCache(cache.MetadataCacheOptions{
		ServersTTL: time.Duration(cfg.Cache.ServersTTLSeconds) * time.Second,
		ToolsTTL:   time.Duration(cfg.Cache.ToolsTTLSeconds) * time.Second,
		PromptsTTL: &promptsTTL,
		Logger:     logger,
		Metrics:    metrics,
	})

	runner := discovery.NewExecRunner(discovery.ExecRunnerOptions{
		Timeout:    time.Duration(cfg.Discovery.CommandTimeoutSeconds) * time.Second,
		Retries:    cfg.Discovery.CommandRetries,
		RetryDelay: time.Duration(cfg.Discovery.CommandRetryDelaySeconds) * time.Second,
		Logger:     logger,
	})
	disc := discovery.NewClient(runner, discovery.ClientOptions{
		Catalog: cfg.Discovery.Catalog,
		Logger:  logger,
	})

	gateway := connector.NewGateway(connector.GatewayOptions{
		Command: cfg.Gateway.Command,
		Logger:  logger,
	})
	connPool := pool.New(gateway, pool.Options{
		Config: pool.Config{
			ConnectTimeout:    time.Duration(cfg.Pool.ConnectTimeoutSeconds) * time.Second,
			ReconnectAttempts: cfg.Pool.ReconnectAttempts,
			ReconnectDelay:    time.Duration(cfg.Pool.ReconnectDelaySeconds) * time.Second,
		},
		Logger:  logger,
		Metrics: metrics,
	})
	defer connPool.CloseAll()

	toolProxy := proxy.New(connPool, proxy.Options{
		ConflictPolicy: cfg.Proxy.ToolConflictPolicy,
		RouteTimeout:   time.Duration(cfg.Proxy.RouteTimeoutSeconds) * time.Second,
		Logger:         logger,
		Metrics:        metrics,
	})

	prompts := NewPromptManager(disc, metadataCache, logger)
	orchestrator := NewOrchestrator(OrchestratorOptions{
		Discovery:        disc,
		Cache:            metadataCache,
		Registry:         toolProxy,
		Pool:             connPool,
		Prompts:          prompts,
		StartConcurrency: cfg.Orchestrator.StartConcurrency,
		Logger:           logger,
	})

	server := mcpserver.New(mcpserver.Options{
		Orchestrator: orchestrator,
		Prompts:      prompts,
		Caller:       toolProxy,
		Toolkit:      disc,
		Logger:       logger,
	})

	go func() {
		if err := telemetry.StartHTTPServer(ctx, telemetry.HTTPServerOptions{
			Addr:     cfg.Observability.ListenAddress,
			Registry: registry,
		}, logger); err != nil {
			logger.Warn("observability server failed", zap.Error(err))
		}
	}()

	// A config edit drops cached metadata so the next lookups reflect the
	// new catalog; structural changes (pool sizing, timeouts) need a
	// restart.
	watcher := config.NewWatcher(loader, serveCfg.ConfigPath, func(config.Config) {
		orchestrator.Refresh()
	}, logger)
	go watcher.Run(ctx)

	return server.Run(ctx)
}

// ValidateConfig loads and validates the config file without serving.
func (a *App) ValidateConfig(ctx context.Context, validateCfg ValidateConfig) error {
	loader := config.NewLoader(a.logger)
	cfg, err := loader.Load(ctx, validateCfg.ConfigPath)
	if err != nil {
		return err
	}
	a.logger.Info("configuration valid",
		zap.String("config", validateCfg.ConfigPath),
		zap.String("catalog", cfg.Discovery.Catalog),
		zap.String("conflict_policy", string(cfg.Proxy.ToolConflictPolicy)),
	)
	return nil
}
