package discovery

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"mcpod/internal/domain"
	"mcpod/internal/infra/telemetry"
)

// Client is the discovery collaborator: it drives the Docker MCP Toolkit
// CLI to enumerate catalogs, servers, and tools, and to manage config and
// secrets. Everything the core triad caches originates here.
type Client struct {
	runner  Runner
	catalog string
	logger  *zap.Logger
}

type ClientOptions struct {
	Catalog string
	Logger  *zap.Logger
}

func NewClient(runner Runner, opts ClientOptions) *Client {
	if runner == nil {
		panic("discovery.NewClient requires a runner")
	}
	catalog := opts.Catalog
	if catalog == "" {
		catalog = domain.DefaultCatalog
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		runner:  runner,
		catalog: catalog,
		logger:  logger.Named("discovery"),
	}
}

// Catalog returns the default catalog name.
func (c *Client) Catalog() string {
	return c.catalog
}

// CatalogServers lists the servers of a catalog; an empty catalog name uses
// the default.
func (c *Client) CatalogServers(ctx context.Context, catalog string) ([]domain.ServerMetadata, error) {
	if catalog == "" {
		catalog = c.catalog
	}
	stdout, err := c.runner.Run(ctx, "", "docker", "mcp", "catalog", "show", catalog, "--format=json")
	if err != nil {
		return nil, fmt.Errorf("catalog show: %w", err)
	}
	servers, err := parseCatalogServers(stdout)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("catalog servers listed",
		telemetry.CatalogField(catalog),
		zap.Int("count", len(servers)),
	)
	return servers, nil
}

// InstalledServers returns the names of all servers present in the default
// catalog.
func (c *Client) InstalledServers(ctx context.Context) ([]string, error) {
	servers, err := c.CatalogServers(ctx, "")
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(servers))
	for _, s := range servers {
		names = append(names, s.Name)
	}
	return names, nil
}

// ActiveServers returns the names of currently enabled servers.
func (c *Client) ActiveServers(ctx context.Context) ([]string, error) {
	stdout, err := c.runner.Run(ctx, "", "docker", "mcp", "server", "ls", "--json")
	if err != nil {
		return nil, fmt.Errorf("server ls: %w", err)
	}
	return parseServerNames(stdout)
}

// EnableServers starts the named servers. An empty list is a no-op.
func (c *Client) EnableServers(ctx context.Context, servers []string) error {
	if len(servers) == 0 {
		return nil
	}
	args := append([]string{"docker", "mcp", "server", "enable"}, servers...)
	if _, err := c.runner.Run(ctx, "", args...); err != nil {
		return fmt.Errorf("server enable: %w", err)
	}
	return nil
}

// DisableServers stops the named servers. An empty list is a no-op.
func (c *Client) DisableServers(ctx context.Context, servers []string) error {
	if len(servers) == 0 {
		return nil
	}
	args := append([]string{"docker", "mcp", "server", "disable"}, servers...)
	if _, err := c.runner.Run(ctx, "", args...); err != nil {
		return fmt.Errorf("server disable: %w", err)
	}
	return nil
}

// ServerTools lists the tools exposed by one server. The toolkit reports
// tools for all servers, so the output is filtered by owner.
func (c *Client) ServerTools(ctx context.Context, server string) ([]domain.Tool, error) {
	stdout, err := c.runner.Run(ctx, "", "docker", "mcp", "tools", "ls", "--format=json")
	if err != nil {
		return nil, fmt.Errorf("tools ls: %w", err)
	}
	return parseServerTools(stdout, server)
}

// ServerInfo returns metadata for one server, trying inspect first and
// falling back to the catalog listing.
func (c *Client) ServerInfo(ctx context.Context, server string) (*domain.ServerMetadata, error) {
	stdout, err := c.runner.Run(ctx, "", "docker", "mcp", "server", "inspect", server)
	if err == nil {
		var data map[string]any
		if jsonErr := json.Unmarshal([]byte(stdout), &data); jsonErr == nil && len(data) > 0 {
			meta := parseServerMetadata(server, data)
			return &meta, nil
		}
	}

	servers, err := c.CatalogServers(ctx, "")
	if err != nil {
		return nil, err
	}
	for i := range servers {
		if servers[i].Name == server {
			return &servers[i], nil
		}
	}
	return nil, nil
}

// ConfigRead returns the toolkit-wide configuration.
func (c *Client) ConfigRead(ctx context.Context) (map[string]any, error) {
	stdout, err := c.runner.Run(ctx, "", "docker", "mcp", "config", "read")
	if err != nil {
		return nil, fmt.Errorf("config read: %w", err)
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(stdout), &data); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return data, nil
}

// ConfigWrite replaces the toolkit-wide configuration. The toolkit reads
// the payload from stdin.
func (c *Client) ConfigWrite(ctx context.Context, config map[string]any) error {
	payload, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if _, err := c.runner.Run(ctx, string(payload), "docker", "mcp", "config", "write"); err != nil {
		return fmt.Errorf("config write: %w", err)
	}
	return nil
}

// SecretList returns configured secret keys (never values).
func (c *Client) SecretList(ctx context.Context) ([]string, error) {
	stdout, err := c.runner.Run(ctx, "", "docker", "mcp", "secret", "ls", "--json")
	if err != nil {
		return nil, fmt.Errorf("secret ls: %w", err)
	}
	return parseSecretKeys(stdout)
}

// SecretSet stores one secret.
func (c *Client) SecretSet(ctx context.Context, key, value string) error {
	if _, err := c.runner.Run(ctx, "", "docker", "mcp", "secret", "set", key+"="+value); err != nil {
		return fmt.Errorf("secret set: %w", err)
	}
	return nil
}

// SecretRemove deletes one secret.
func (c *Client) SecretRemove(ctx context.Context, key string) error {
	if _, err := c.runner.Run(ctx, "", "docker", "mcp", "secret", "rm", key); err != nil {
		return fmt.Errorf("secret rm: %w", err)
	}
	return nil
}
