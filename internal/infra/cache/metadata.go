package cache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"mcpod/internal/domain"
)

// MetadataCache fronts discovery lookups for server lists, per-server
// metadata, tool lists, and prompts. Each entity class is an independent
// namespace with its own TTL; a prompt TTL of 0 means a prompt, once
// obtained, is never refetched.
type MetadataCache struct {
	serversTTL time.Duration
	toolsTTL   time.Duration
	promptsTTL time.Duration

	servers  *Cache[[]domain.ServerMetadata]
	metadata *Cache[*domain.ServerMetadata]
	tools    *Cache[[]domain.Tool]
	prompts  *Cache[string]
}

type MetadataCacheOptions struct {
	ServersTTL time.Duration
	ToolsTTL   time.Duration
	PromptsTTL *time.Duration
	Logger     *zap.Logger
	Metrics    domain.Metrics
	Now        func() time.Time
}

func NewMetadataCache(opts MetadataCacheOptions) *MetadataCache {
	serversTTL := opts.ServersTTL
	if serversTTL <= 0 {
		serversTTL = domain.DefaultServersTTLSeconds * time.Second
	}
	toolsTTL := opts.ToolsTTL
	if toolsTTL <= 0 {
		toolsTTL = domain.DefaultToolsTTLSeconds * time.Second
	}
	promptsTTL := time.Duration(domain.DefaultPromptsTTLSeconds) * time.Second
	if opts.PromptsTTL != nil {
		promptsTTL = *opts.PromptsTTL
	}

	return &MetadataCache{
		serversTTL: serversTTL,
		toolsTTL:   toolsTTL,
		promptsTTL: promptsTTL,
		servers: New[[]domain.ServerMetadata]("servers", Options[[]domain.ServerMetadata]{
			Logger:  opts.Logger,
			Metrics: opts.Metrics,
			Now:     opts.Now,
		}),
		metadata: New[*domain.ServerMetadata]("metadata", Options[*domain.ServerMetadata]{
			Logger:  opts.Logger,
			Metrics: opts.Metrics,
			Now:     opts.Now,
			StoreIf: func(m *domain.ServerMetadata) bool { return m != nil },
		}),
		tools: New[[]domain.Tool]("tools", Options[[]domain.Tool]{
			Logger:  opts.Logger,
			Metrics: opts.Metrics,
			Now:     opts.Now,
		}),
		prompts: New[string]("prompts", Options[string]{
			Logger:  opts.Logger,
			Metrics: opts.Metrics,
			Now:     opts.Now,
			StoreIf: func(p string) bool { return p != "" },
		}),
	}
}

func catalogKey(catalog string) string {
	return "catalog:" + catalog
}

// Servers returns the cached server list for a catalog, fetching on
// miss/expiry.
func (c *MetadataCache) Servers(ctx context.Context, catalog string, fetch FetchFunc[[]domain.ServerMetadata]) ([]domain.ServerMetadata, error) {
	return c.servers.GetOrFetch(ctx, catalogKey(catalog), c.serversTTL, fetch)
}

// ServerMetadata returns cached metadata for one server. A nil metadata
// result is passed through without being cached.
func (c *MetadataCache) ServerMetadata(ctx context.Context, server string, fetch FetchFunc[*domain.ServerMetadata]) (*domain.ServerMetadata, error) {
	return c.metadata.GetOrFetch(ctx, server, c.serversTTL, fetch)
}

// ServerTools returns the cached tool list for one server.
func (c *MetadataCache) ServerTools(ctx context.Context, server string, fetch FetchFunc[[]domain.Tool]) ([]domain.Tool, error) {
	return c.tools.GetOrFetch(ctx, server, c.toolsTTL, fetch)
}

// ServerPrompt returns the cached prompt for one server. An empty prompt is
// passed through without being cached, so it is retried on the next call.
func (c *MetadataCache) ServerPrompt(ctx context.Context, server string, fetch FetchFunc[string]) (string, error) {
	return c.prompts.GetOrFetch(ctx, server, c.promptsTTL, fetch)
}

// InvalidateServers drops one catalog's server list, or every catalog when
// the name is empty.
func (c *MetadataCache) InvalidateServers(catalog string) {
	if catalog == "" {
		c.servers.InvalidateAll()
		return
	}
	c.servers.Invalidate(catalogKey(catalog))
}

// InvalidateServer drops all per-server state (metadata, tools, prompt).
func (c *MetadataCache) InvalidateServer(server string) {
	c.metadata.Invalidate(server)
	c.tools.Invalidate(server)
	c.prompts.Invalidate(server)
}

// Clear removes every entry across all entity classes.
func (c *MetadataCache) Clear() {
	c.servers.InvalidateAll()
	c.metadata.InvalidateAll()
	c.tools.InvalidateAll()
	c.prompts.InvalidateAll()
}
