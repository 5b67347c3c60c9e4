package config

import (
	"mcpod/internal/domain"
)

// Config is the normalized daemon configuration. Durations are kept in
// seconds as loaded; wiring converts them where needed.
type Config struct {
	Cache         CacheConfig
	Pool          PoolConfig
	Proxy         ProxyConfig
	Discovery     DiscoveryConfig
	Gateway       GatewayConfig
	Orchestrator  OrchestratorConfig
	Observability ObservabilityConfig
	Logging       LoggingConfig
}

type CacheConfig struct {
	// TTLs in seconds; 0 means entries never expire.
	ServersTTLSeconds int
	ToolsTTLSeconds   int
	PromptsTTLSeconds int
}

type PoolConfig struct {
	ConnectTimeoutSeconds int
	ReconnectAttempts     int
	ReconnectDelaySeconds int
}

type ProxyConfig struct {
	RouteTimeoutSeconds int
	ToolConflictPolicy  domain.ToolConflictPolicy
}

type DiscoveryConfig struct {
	Catalog                  string
	CommandTimeoutSeconds    int
	CommandRetries           int
	CommandRetryDelaySeconds int
}

type GatewayConfig struct {
	// Command is the argv template for reaching one backend server; the
	// {server} token is substituted with the server name.
	Command []string
}

type OrchestratorConfig struct {
	StartConcurrency int
}

type ObservabilityConfig struct {
	ListenAddress string
}

type LoggingConfig struct {
	Level string
}

// Default returns the configuration used when no file is supplied.
func Default() Config {
	return Config{
		Cache: CacheConfig{
			ServersTTLSeconds: domain.DefaultServersTTLSeconds,
			ToolsTTLSeconds:   domain.DefaultToolsTTLSeconds,
			PromptsTTLSeconds: domain.DefaultPromptsTTLSeconds,
		},
		Pool: PoolConfig{
			ConnectTimeoutSeconds: domain.DefaultConnectTimeoutSeconds,
			ReconnectAttempts:     domain.DefaultReconnectAttempts,
			ReconnectDelaySeconds: domain.DefaultReconnectDelaySeconds,
		},
		Proxy: ProxyConfig{
			RouteTimeoutSeconds: domain.DefaultRouteTimeoutSeconds,
			ToolConflictPolicy:  domain.DefaultToolConflictPolicy,
		},
		Discovery: DiscoveryConfig{
			Catalog:                  domain.DefaultCatalog,
			CommandTimeoutSeconds:    domain.DefaultCommandTimeoutSeconds,
			CommandRetries:           domain.DefaultCommandRetries,
			CommandRetryDelaySeconds: domain.DefaultCommandRetryDelaySecs,
		},
		Gateway: GatewayConfig{
			Command: []string{"docker", "mcp", "gateway", "run", "--servers={server}"},
		},
		Orchestrator: OrchestratorConfig{
			StartConcurrency: domain.DefaultStartConcurrency,
		},
		Observability: ObservabilityConfig{
			ListenAddress: domain.DefaultObservabilityListenAddress,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}
