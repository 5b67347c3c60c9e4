package app

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"mcpod/internal/domain"
	"mcpod/internal/infra/cache"
	"mcpod/internal/infra/telemetry"
)

// Discovery is the slice of the toolkit CLI client the orchestrator needs.
type Discovery interface {
	Catalog() string
	CatalogServers(ctx context.Context, catalog string) ([]domain.ServerMetadata, error)
	ActiveServers(ctx context.Context) ([]string, error)
	EnableServers(ctx context.Context, servers []string) error
	DisableServers(ctx context.Context, servers []string) error
	ServerTools(ctx context.Context, server string) ([]domain.Tool, error)
	ServerInfo(ctx context.Context, server string) (*domain.ServerMetadata, error)
}

// ToolRegistry is the proxy surface the orchestrator drives when servers
// come and go.
type ToolRegistry interface {
	RegisterTools(server string, tools []domain.Tool) error
	UnregisterServer(server string)
	GetServerTools(server string) []domain.Tool
}

// ConnectionPool is the pool surface used on server shutdown.
type ConnectionPool interface {
	Remove(server string)
}

// Orchestrator coordinates discovery, the metadata cache, the tool registry,
// and the connection pool across server lifecycle operations.
type Orchestrator struct {
	discovery   Discovery
	cache       *cache.MetadataCache
	registry    ToolRegistry
	pool        ConnectionPool
	prompts     *PromptManager
	concurrency int
	logger      *zap.Logger

	mu          sync.Mutex
	activeSince map[string]time.Time
}

type OrchestratorOptions struct {
	Discovery Discovery
	Cache     *cache.MetadataCache
	Registry  ToolRegistry
	Pool      ConnectionPool
	Prompts   *PromptManager
	// StartConcurrency bounds parallel per-server activation work.
	StartConcurrency int
	Logger           *zap.Logger
}

func NewOrchestrator(opts OrchestratorOptions) *Orchestrator {
	if opts.Discovery == nil {
		panic("app.NewOrchestrator requires a discovery client")
	}
	if opts.Cache == nil {
		panic("app.NewOrchestrator requires a metadata cache")
	}
	if opts.Registry == nil {
		panic("app.NewOrchestrator requires a tool registry")
	}
	if opts.Pool == nil {
		panic("app.NewOrchestrator requires a connection pool")
	}
	concurrency := opts.StartConcurrency
	if concurrency <= 0 {
		concurrency = domain.DefaultStartConcurrency
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		discovery:   opts.Discovery,
		cache:       opts.Cache,
		registry:    opts.Registry,
		pool:        opts.Pool,
		prompts:     opts.Prompts,
		concurrency: concurrency,
		logger:      logger.Named("orchestrator"),
		activeSince: make(map[string]time.Time),
	}
}

// StartServers enables the named servers, then registers their tools and
// collects their prompts. One failing server never aborts the batch: its
// error is recorded and the rest proceed.
func (o *Orchestrator) StartServers(ctx context.Context, servers []string) domain.StartServersResult {
	result := domain.StartServersResult{
		Prompts: make(map[string]string),
		Errors:  make(map[string]string),
	}
	if len(servers) == 0 {
		result.Status = "ok"
		return result
	}

	if err := o.discovery.EnableServers(ctx, servers); err != nil {
		result.Status = "error"
		for _, server := range servers {
			result.Errors[server] = err.Error()
		}
		return result
	}

	var mu sync.Mutex
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(o.concurrency)
	for _, server := range servers {
		group.Go(func() error {
			tools, prompt, err := o.activateServer(groupCtx, server)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Errors[server] = err.Error()
				return nil
			}
			result.Servers = append(result.Servers, server)
			result.Tools = append(result.Tools, tools...)
			if prompt != "" {
				result.Prompts[server] = prompt
			}
			return nil
		})
	}
	_ = group.Wait()

	sort.Strings(result.Servers)
	o.markActive(result.Servers)

	switch {
	case len(result.Errors) == 0:
		result.Status = "ok"
	case len(result.Servers) == 0:
		result.Status = "error"
	default:
		result.Status = "partial"
	}
	o.logger.Info("servers started",
		zap.Strings("servers", result.Servers),
		zap.Int("tools", len(result.Tools)),
		zap.Int("errors", len(result.Errors)),
	)
	return result
}

func (o *Orchestrator) activateServer(ctx context.Context, server string) ([]domain.Tool, string, error) {
	tools, err := o.cache.ServerTools(ctx, server, func(fetchCtx context.Context) ([]domain.Tool, error) {
		return o.discovery.ServerTools(fetchCtx, server)
	})
	if err != nil {
		return nil, "", err
	}
	if err := o.registry.RegisterTools(server, tools); err != nil {
		return nil, "", err
	}

	var prompt string
	if o.prompts != nil {
		// Prompt failures are not fatal: the server is usable without one.
		prompt, err = o.prompts.Prompt(ctx, server)
		if err != nil {
			o.logger.Warn("prompt fetch failed",
				telemetry.ServerField(server),
				zap.Error(err),
			)
			prompt = ""
		}
	}
	return tools, prompt, nil
}

// StopServers disables the named servers and tears down their registry,
// pool, and cache state.
func (o *Orchestrator) StopServers(ctx context.Context, servers []string) error {
	if len(servers) == 0 {
		return nil
	}
	if err := o.discovery.DisableServers(ctx, servers); err != nil {
		return err
	}
	for _, server := range servers {
		o.registry.UnregisterServer(server)
		o.pool.Remove(server)
		o.cache.InvalidateServer(server)
	}
	o.markInactive(servers)
	o.logger.Info("servers stopped", zap.Strings("servers", servers))
	return nil
}

// ActiveServers reports the currently enabled servers with status detail.
func (o *Orchestrator) ActiveServers(ctx context.Context) ([]domain.Server, error) {
	names, err := o.discovery.ActiveServers(ctx)
	if err != nil {
		return nil, err
	}
	sort.Strings(names)

	servers := make([]domain.Server, 0, len(names))
	for _, name := range names {
		server := domain.Server{
			Name:   name,
			Status: domain.StatusActive,
			Tools:  o.registry.GetServerTools(name),
		}
		if since, ok := o.startedAt(name); ok {
			server.ActiveSince = &since
		}
		servers = append(servers, server)
	}
	return servers, nil
}

// CatalogServers lists a catalog through the metadata cache; an empty name
// uses the default catalog.
func (o *Orchestrator) CatalogServers(ctx context.Context, catalog string) ([]domain.ServerMetadata, error) {
	if catalog == "" {
		catalog = o.discovery.Catalog()
	}
	return o.cache.Servers(ctx, catalog, func(fetchCtx context.Context) ([]domain.ServerMetadata, error) {
		return o.discovery.CatalogServers(fetchCtx, catalog)
	})
}

// InstalledServers returns the names of every server in the default catalog.
func (o *Orchestrator) InstalledServers(ctx context.Context) ([]string, error) {
	servers, err := o.CatalogServers(ctx, "")
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(servers))
	for _, s := range servers {
		names = append(names, s.Name)
	}
	return names, nil
}

// ServerInfo returns cached metadata for one server, or nil when the server
// is unknown.
func (o *Orchestrator) ServerInfo(ctx context.Context, server string) (*domain.ServerMetadata, error) {
	return o.cache.ServerMetadata(ctx, server, func(fetchCtx context.Context) (*domain.ServerMetadata, error) {
		return o.discovery.ServerInfo(fetchCtx, server)
	})
}

// ServerTools returns the cached tool list for one server.
func (o *Orchestrator) ServerTools(ctx context.Context, server string) ([]domain.Tool, error) {
	return o.cache.ServerTools(ctx, server, func(fetchCtx context.Context) ([]domain.Tool, error) {
		return o.discovery.ServerTools(fetchCtx, server)
	})
}

// Refresh drops all cached metadata so the next lookups hit discovery.
func (o *Orchestrator) Refresh() {
	o.cache.Clear()
	o.logger.Info("metadata cache cleared")
}

func (o *Orchestrator) markActive(servers []string) {
	now := time.Now()
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, server := range servers {
		if _, ok := o.activeSince[server]; !ok {
			o.activeSince[server] = now
		}
	}
}

func (o *Orchestrator) markInactive(servers []string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, server := range servers {
		delete(o.activeSince, server)
	}
}

func (o *Orchestrator) startedAt(server string) (time.Time, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	since, ok := o.activeSince[server]
	return since, ok
}
