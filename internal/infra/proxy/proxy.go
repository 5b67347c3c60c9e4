package proxy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mcpod/internal/domain"
	"mcpod/internal/infra/pool"
	"mcpod/internal/infra/telemetry"
)

// ToolProxy owns the authoritative tool-name to server mapping and
// dispatches calls to the pool-supplied connection for the owning server,
// with one bounded repair attempt on failure.
type ToolProxy struct {
	pool           *pool.Pool
	conflictPolicy domain.ToolConflictPolicy
	routeTimeout   time.Duration
	logger         *zap.Logger
	metrics        domain.Metrics

	mu          sync.RWMutex
	toolOwner   map[string]string
	serverTools map[string][]domain.Tool
}

type Options struct {
	// ConflictPolicy decides what RegisterTools does when a tool name is
	// already owned by a different server. Defaults to replace
	// (last writer wins).
	ConflictPolicy domain.ToolConflictPolicy
	RouteTimeout   time.Duration
	Logger         *zap.Logger
	Metrics        domain.Metrics
}

func New(connPool *pool.Pool, opts Options) *ToolProxy {
	if connPool == nil {
		panic("proxy.New requires a pool")
	}
	policy := opts.ConflictPolicy
	if policy == "" {
		policy = domain.DefaultToolConflictPolicy
	}
	timeout := opts.RouteTimeout
	if timeout <= 0 {
		timeout = domain.DefaultRouteTimeoutSeconds * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	return &ToolProxy{
		pool:           connPool,
		conflictPolicy: policy,
		routeTimeout:   timeout,
		logger:         logger.Named("proxy"),
		metrics:        metrics,
		toolOwner:      make(map[string]string),
		serverTools:    make(map[string][]domain.Tool),
	}
}

// RegisterTools replaces the tool list for server. Under the replace policy
// a name collision reassigns ownership to this server; under reject the
// registration fails and prior ownership is untouched.
func (p *ToolProxy) RegisterTools(server string, tools []domain.Tool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conflictPolicy == domain.ConflictReject {
		for _, tool := range tools {
			if owner, ok := p.toolOwner[tool.Name]; ok && owner != server {
				return domain.E(domain.CodeInvalidArgument, "proxy.register",
					fmt.Sprintf("tool %s already owned by %s", tool.Name, owner), domain.ErrToolConflict)
			}
		}
	}

	// Drop names from this server's previous registration so stale tools
	// do not linger after a shrinking re-registration.
	for _, old := range p.serverTools[server] {
		if p.toolOwner[old.Name] == server {
			delete(p.toolOwner, old.Name)
		}
	}

	for _, tool := range tools {
		if owner, ok := p.toolOwner[tool.Name]; ok && owner != server {
			p.logger.Warn("tool ownership reassigned",
				telemetry.ToolField(tool.Name),
				telemetry.ServerField(server),
				zap.String("previous_owner", owner),
			)
		}
		p.toolOwner[tool.Name] = server
	}
	p.serverTools[server] = domain.CloneTools(tools)

	p.metrics.SetRegisteredTools(server, len(tools))
	p.logger.Info("tools registered",
		telemetry.EventField(telemetry.EventToolsRegistered),
		telemetry.ServerField(server),
		zap.Int("count", len(tools)),
	)
	return nil
}

// UnregisterServer removes the server's tools from the ownership map. Names
// since reassigned to another server are left alone. No-op for unknown
// servers.
func (p *ToolProxy) UnregisterServer(server string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	tools, ok := p.serverTools[server]
	if !ok {
		return
	}
	for _, tool := range tools {
		if p.toolOwner[tool.Name] == server {
			delete(p.toolOwner, tool.Name)
		}
	}
	delete(p.serverTools, server)

	p.metrics.SetRegisteredTools(server, 0)
	p.logger.Info("server unregistered",
		telemetry.EventField(telemetry.EventServerUnregister),
		telemetry.ServerField(server),
	)
}

// GetServerForTool reports which server owns a tool name.
func (p *ToolProxy) GetServerForTool(toolName string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	server, ok := p.toolOwner[toolName]
	return server, ok
}

// CallTool resolves the owning server, obtains a connection from the pool,
// and invokes the tool. Failures never escape as errors: every path yields
// a structured CallToolResult. A failed call triggers exactly one
// reconnect-and-retry cycle before giving up.
func (p *ToolProxy) CallTool(ctx context.Context, toolName string, args map[string]any) domain.CallToolResult {
	callID := uuid.NewString()
	started := time.Now()

	server, ok := p.GetServerForTool(toolName)
	if !ok {
		p.metrics.ObserveToolCall("", toolName, time.Since(started), domain.ErrToolNotFound)
		p.logger.Warn("tool not found",
			telemetry.EventField(telemetry.EventCallError),
			telemetry.ToolField(toolName),
			telemetry.CallIDField(callID),
		)
		return domain.CallToolResult{
			Status: domain.CallError,
			Error:  fmt.Sprintf("tool %s not found in any active server", toolName),
		}
	}

	conn, err := p.pool.Get(ctx, server)
	if err != nil {
		conn, err = p.pool.Reconnect(ctx, server)
		if err != nil {
			p.metrics.ObserveToolCall(server, toolName, time.Since(started), err)
			return domain.CallToolResult{
				Status: domain.CallError,
				Error:  fmt.Sprintf("failed to get connection to server %s", server),
				Server: server,
			}
		}
	}

	result, err := p.invoke(ctx, conn, toolName, args)
	if err == nil {
		p.metrics.ObserveToolCall(server, toolName, time.Since(started), nil)
		return domain.CallToolResult{
			Status: domain.CallSuccess,
			Result: result,
			Server: server,
		}
	}

	p.logger.Warn("tool call failed, reconnecting",
		telemetry.EventField(telemetry.EventCallRetry),
		telemetry.ToolField(toolName),
		telemetry.ServerField(server),
		telemetry.CallIDField(callID),
		zap.Error(err),
	)

	// One recovery cycle: forced reconnect, then a single retry whose
	// outcome is final.
	conn, reconnectErr := p.pool.Reconnect(ctx, server)
	if reconnectErr != nil {
		p.metrics.ObserveToolCall(server, toolName, time.Since(started), err)
		return domain.CallToolResult{
			Status: domain.CallError,
			Error:  fmt.Sprintf("error calling tool %s on server %s: %v", toolName, server, err),
			Server: server,
		}
	}

	result, retryErr := p.invoke(ctx, conn, toolName, args)
	if retryErr != nil {
		p.metrics.ObserveToolCall(server, toolName, time.Since(started), retryErr)
		p.logger.Error("tool call retry failed",
			telemetry.EventField(telemetry.EventCallError),
			telemetry.ToolField(toolName),
			telemetry.ServerField(server),
			telemetry.CallIDField(callID),
			telemetry.DurationField(time.Since(started)),
			zap.Error(retryErr),
		)
		return domain.CallToolResult{
			Status: domain.CallError,
			Error:  fmt.Sprintf("error on retry: %v", retryErr),
			Server: server,
		}
	}

	p.metrics.ObserveToolCall(server, toolName, time.Since(started), nil)
	return domain.CallToolResult{
		Status: domain.CallSuccess,
		Result: result,
		Server: server,
	}
}

func (p *ToolProxy) invoke(ctx context.Context, conn pool.Conn, toolName string, args map[string]any) (any, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.routeTimeout)
	defer cancel()
	return conn.CallTool(callCtx, toolName, args)
}

// ListActiveTools returns every registered tool across all servers.
func (p *ToolProxy) ListActiveTools() []domain.Tool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var all []domain.Tool
	for _, tools := range p.serverTools {
		all = append(all, domain.CloneTools(tools)...)
	}
	return all
}

// GetServerTools returns the registered tool list for one server.
func (p *ToolProxy) GetServerTools(server string) []domain.Tool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return domain.CloneTools(p.serverTools[server])
}

// ListServers returns the names of all registered servers.
func (p *ToolProxy) ListServers() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	servers := make([]string, 0, len(p.serverTools))
	for server := range p.serverTools {
		servers = append(servers, server)
	}
	return servers
}
