package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"mcpod/internal/domain"
)

type Loader struct {
	logger *zap.Logger
}

func NewLoader(logger *zap.Logger) *Loader {
	if logger == nil {
		return &Loader{logger: zap.NewNop()}
	}
	return &Loader{logger: logger.Named("config")}
}

func newConfigViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("cache.serversTTLSeconds", domain.DefaultServersTTLSeconds)
	v.SetDefault("cache.toolsTTLSeconds", domain.DefaultToolsTTLSeconds)
	v.SetDefault("cache.promptsTTLSeconds", domain.DefaultPromptsTTLSeconds)
	v.SetDefault("pool.connectTimeoutSeconds", domain.DefaultConnectTimeoutSeconds)
	v.SetDefault("pool.reconnectAttempts", domain.DefaultReconnectAttempts)
	v.SetDefault("pool.reconnectDelaySeconds", domain.DefaultReconnectDelaySeconds)
	v.SetDefault("proxy.routeTimeoutSeconds", domain.DefaultRouteTimeoutSeconds)
	v.SetDefault("proxy.toolConflictPolicy", string(domain.DefaultToolConflictPolicy))
	v.SetDefault("discovery.catalog", domain.DefaultCatalog)
	v.SetDefault("discovery.commandTimeoutSeconds", domain.DefaultCommandTimeoutSeconds)
	v.SetDefault("discovery.commandRetries", domain.DefaultCommandRetries)
	v.SetDefault("discovery.commandRetryDelaySeconds", domain.DefaultCommandRetryDelaySecs)
	v.SetDefault("gateway.command", Default().Gateway.Command)
	v.SetDefault("orchestrator.startConcurrency", domain.DefaultStartConcurrency)
	v.SetDefault("observability.listenAddress", domain.DefaultObservabilityListenAddress)
	v.SetDefault("logging.level", "info")
}

type rawConfig struct {
	Cache         rawCacheConfig         `mapstructure:"cache"`
	Pool          rawPoolConfig          `mapstructure:"pool"`
	Proxy         rawProxyConfig         `mapstructure:"proxy"`
	Discovery     rawDiscoveryConfig     `mapstructure:"discovery"`
	Gateway       rawGatewayConfig       `mapstructure:"gateway"`
	Orchestrator  rawOrchestratorConfig  `mapstructure:"orchestrator"`
	Observability rawObservabilityConfig `mapstructure:"observability"`
	Logging       rawLoggingConfig       `mapstructure:"logging"`
}

type rawCacheConfig struct {
	ServersTTLSeconds int `mapstructure:"serversTTLSeconds"`
	ToolsTTLSeconds   int `mapstructure:"toolsTTLSeconds"`
	PromptsTTLSeconds int `mapstructure:"promptsTTLSeconds"`
}

type rawPoolConfig struct {
	ConnectTimeoutSeconds int `mapstructure:"connectTimeoutSeconds"`
	ReconnectAttempts     int `mapstructure:"reconnectAttempts"`
	ReconnectDelaySeconds int `mapstructure:"reconnectDelaySeconds"`
}

type rawProxyConfig struct {
	RouteTimeoutSeconds int    `mapstructure:"routeTimeoutSeconds"`
	ToolConflictPolicy  string `mapstructure:"toolConflictPolicy"`
}

type rawDiscoveryConfig struct {
	Catalog                  string `mapstructure:"catalog"`
	CommandTimeoutSeconds    int    `mapstructure:"commandTimeoutSeconds"`
	CommandRetries           int    `mapstructure:"commandRetries"`
	CommandRetryDelaySeconds int    `mapstructure:"commandRetryDelaySeconds"`
}

type rawGatewayConfig struct {
	Command []string `mapstructure:"command"`
}

type rawOrchestratorConfig struct {
	StartConcurrency int `mapstructure:"startConcurrency"`
}

type rawObservabilityConfig struct {
	ListenAddress string `mapstructure:"listenAddress"`
}

type rawLoggingConfig struct {
	Level string `mapstructure:"level"`
}

// Load reads, expands, and validates the config file at path. An empty
// path yields the defaults.
func (l *Loader) Load(ctx context.Context, path string) (Config, error) {
	if path == "" {
		return Default(), ctx.Err()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	expanded, missing, err := expandConfigEnv(data)
	if err != nil {
		return Config{}, err
	}
	if len(missing) > 0 {
		l.logger.Warn("missing environment variables in config",
			zap.String("path", path),
			zap.Strings("missing", missing),
		)
	}

	v := newConfigViper()
	if err := v.ReadConfig(bytes.NewBufferString(expanded)); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	var raw rawConfig
	if err := v.Unmarshal(&raw); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return Config{}, err
	}

	cfg, errs := normalize(raw)
	if len(errs) > 0 {
		return Config{}, errors.New(strings.Join(errs, "; "))
	}
	return cfg, nil
}

func normalize(raw rawConfig) (Config, []string) {
	var errs []string

	if raw.Cache.ServersTTLSeconds < 0 {
		errs = append(errs, "cache.serversTTLSeconds must be >= 0")
	}
	if raw.Cache.ToolsTTLSeconds < 0 {
		errs = append(errs, "cache.toolsTTLSeconds must be >= 0")
	}
	if raw.Cache.PromptsTTLSeconds < 0 {
		errs = append(errs, "cache.promptsTTLSeconds must be >= 0")
	}

	if raw.Pool.ConnectTimeoutSeconds <= 0 {
		errs = append(errs, "pool.connectTimeoutSeconds must be > 0")
	}
	if raw.Pool.ReconnectAttempts <= 0 {
		errs = append(errs, "pool.reconnectAttempts must be > 0")
	}
	if raw.Pool.ReconnectDelaySeconds <= 0 {
		errs = append(errs, "pool.reconnectDelaySeconds must be > 0")
	}

	if raw.Proxy.RouteTimeoutSeconds <= 0 {
		errs = append(errs, "proxy.routeTimeoutSeconds must be > 0")
	}
	policy := domain.ToolConflictPolicy(strings.ToLower(strings.TrimSpace(raw.Proxy.ToolConflictPolicy)))
	if policy == "" {
		policy = domain.DefaultToolConflictPolicy
	}
	if !policy.Valid() {
		errs = append(errs, "proxy.toolConflictPolicy must be replace or reject")
	}

	catalog := strings.TrimSpace(raw.Discovery.Catalog)
	if catalog == "" {
		catalog = domain.DefaultCatalog
	}
	if raw.Discovery.CommandTimeoutSeconds <= 0 {
		errs = append(errs, "discovery.commandTimeoutSeconds must be > 0")
	}
	if raw.Discovery.CommandRetries <= 0 {
		errs = append(errs, "discovery.commandRetries must be > 0")
	}
	if raw.Discovery.CommandRetryDelaySeconds <= 0 {
		errs = append(errs, "discovery.commandRetryDelaySeconds must be > 0")
	}

	command := raw.Gateway.Command
	if len(command) == 0 {
		command = Default().Gateway.Command
	}
	for i, arg := range command {
		if strings.TrimSpace(arg) == "" {
			errs = append(errs, fmt.Sprintf("gateway.command[%d] must not be empty", i))
		}
	}

	startConcurrency := raw.Orchestrator.StartConcurrency
	if startConcurrency <= 0 {
		startConcurrency = domain.DefaultStartConcurrency
	}

	listenAddress := strings.TrimSpace(raw.Observability.ListenAddress)
	if listenAddress == "" {
		listenAddress = domain.DefaultObservabilityListenAddress
	}

	level := strings.ToLower(strings.TrimSpace(raw.Logging.Level))
	if level == "" {
		level = "info"
	}
	switch level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, "logging.level must be debug, info, warn, or error")
	}

	return Config{
		Cache: CacheConfig{
			ServersTTLSeconds: raw.Cache.ServersTTLSeconds,
			ToolsTTLSeconds:   raw.Cache.ToolsTTLSeconds,
			PromptsTTLSeconds: raw.Cache.PromptsTTLSeconds,
		},
		Pool: PoolConfig{
			ConnectTimeoutSeconds: raw.Pool.ConnectTimeoutSeconds,
			ReconnectAttempts:     raw.Pool.ReconnectAttempts,
			ReconnectDelaySeconds: raw.Pool.ReconnectDelaySeconds,
		},
		Proxy: ProxyConfig{
			RouteTimeoutSeconds: raw.Proxy.RouteTimeoutSeconds,
			ToolConflictPolicy:  policy,
		},
		Discovery: DiscoveryConfig{
			Catalog:                  catalog,
			CommandTimeoutSeconds:    raw.Discovery.CommandTimeoutSeconds,
			CommandRetries:           raw.Discovery.CommandRetries,
			CommandRetryDelaySeconds: raw.Discovery.CommandRetryDelaySeconds,
		},
		Gateway: GatewayConfig{
			Command: command,
		},
		Orchestrator: OrchestratorConfig{
			StartConcurrency: startConcurrency,
		},
		Observability: ObservabilityConfig{
			ListenAddress: listenAddress,
		},
		Logging: LoggingConfig{
			Level: level,
		},
	}, errs
}
