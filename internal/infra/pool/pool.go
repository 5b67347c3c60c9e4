package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"mcpod/internal/domain"
	"mcpod/internal/infra/telemetry"
)

// Conn is a live connection handle to one backend server.
type Conn interface {
	// IsAlive reports whether the connection can still serve calls.
	IsAlive() bool
	// CallTool invokes a named tool on the backend.
	CallTool(ctx context.Context, name string, args map[string]any) (any, error)
	Close() error
}

// Connector produces connections; it is injected so the pool stays decoupled
// from the concrete backend transport.
type Connector interface {
	Connect(ctx context.Context, server string) (Conn, error)
}

type Config struct {
	ConnectTimeout    time.Duration
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = domain.DefaultConnectTimeoutSeconds * time.Second
	}
	if c.ReconnectAttempts <= 0 {
		c.ReconnectAttempts = domain.DefaultReconnectAttempts
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = domain.DefaultReconnectDelaySeconds * time.Second
	}
	if c.MaxReconnectDelay <= 0 {
		c.MaxReconnectDelay = 30 * time.Second
	}
	return c
}

// Pool owns at most one live connection per server name. Map mutations and
// the create-or-reuse decision are serialized by one pool-wide lock; setup
// is rare relative to calls, so the serialization is acceptable.
type Pool struct {
	connector Connector
	cfg       Config
	logger    *zap.Logger
	metrics   domain.Metrics

	mu    sync.Mutex
	conns map[string]Conn
}

type Options struct {
	Config  Config
	Logger  *zap.Logger
	Metrics domain.Metrics
}

func New(connector Connector, opts Options) *Pool {
	if connector == nil {
		panic("pool.New requires a connector")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	return &Pool{
		connector: connector,
		cfg:       opts.Config.withDefaults(),
		logger:    logger.Named("pool"),
		metrics:   metrics,
		conns:     make(map[string]Conn),
	}
}

// Get returns the live connection for server, creating one when absent. A
// dead entry is discarded and replaced with exactly one fresh creation
// attempt; creation failure surfaces as an UNAVAILABLE error.
func (p *Pool) Get(ctx context.Context, server string) (Conn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if conn, ok := p.conns[server]; ok {
		if conn.IsAlive() {
			return conn, nil
		}
		p.logger.Warn("connection is dead, removing",
			telemetry.EventField(telemetry.EventConnectionDead),
			telemetry.ServerField(server),
		)
		_ = conn.Close()
		delete(p.conns, server)
	}

	return p.createLocked(ctx, server)
}

// createLocked runs one creation attempt and stores the handle on success.
// Callers hold p.mu.
func (p *Pool) createLocked(ctx context.Context, server string) (Conn, error) {
	// The lock is dropped between reconnect attempts, so a concurrent Get
	// may have stored a handle in the meantime. At most one live handle
	// may exist per server.
	if conn, ok := p.conns[server]; ok {
		if conn.IsAlive() {
			return conn, nil
		}
		_ = conn.Close()
		delete(p.conns, server)
	}

	started := time.Now()
	connectCtx, cancel := context.WithTimeout(ctx, p.cfg.ConnectTimeout)
	defer cancel()

	conn, err := p.connector.Connect(connectCtx, server)
	p.metrics.ObserveConnect(server, time.Since(started), err)
	if err != nil {
		p.logger.Error("connect failed",
			telemetry.EventField(telemetry.EventConnectFailure),
			telemetry.ServerField(server),
			telemetry.DurationField(time.Since(started)),
			zap.Error(err),
		)
		return nil, domain.E(domain.CodeUnavailable, "pool.get", fmt.Sprintf("connect to %s", server), err)
	}

	p.conns[server] = conn
	p.logger.Info("connected",
		telemetry.EventField(telemetry.EventConnectSuccess),
		telemetry.ServerField(server),
		telemetry.DurationField(time.Since(started)),
	)
	return conn, nil
}

// Remove closes and deletes the connection for server. Close errors are
// swallowed and logged; removing an unknown server is a no-op.
func (p *Pool) Remove(server string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removeLocked(server)
}

func (p *Pool) removeLocked(server string) {
	conn, ok := p.conns[server]
	if !ok {
		return
	}
	if err := conn.Close(); err != nil {
		p.logger.Error("close connection failed",
			telemetry.ServerField(server),
			zap.Error(err),
		)
	}
	delete(p.conns, server)
}

// Reconnect drops any existing connection and retries creation up to the
// configured attempt count with exponential backoff between attempts.
func (p *Pool) Reconnect(ctx context.Context, server string) (Conn, error) {
	p.Remove(server)

	wait := newBackoff(p.cfg.ReconnectDelay, p.cfg.MaxReconnectDelay)
	var lastErr error
	for attempt := 1; attempt <= p.cfg.ReconnectAttempts; attempt++ {
		p.logger.Info("reconnect attempt",
			telemetry.EventField(telemetry.EventConnectAttempt),
			telemetry.ServerField(server),
			telemetry.AttemptField(attempt),
			telemetry.AttemptsField(p.cfg.ReconnectAttempts),
		)

		p.mu.Lock()
		conn, err := p.createLocked(ctx, server)
		p.mu.Unlock()
		if err == nil {
			p.metrics.ObserveReconnect(server, attempt, nil)
			p.logger.Info("reconnected",
				telemetry.EventField(telemetry.EventReconnectSuccess),
				telemetry.ServerField(server),
				telemetry.AttemptField(attempt),
			)
			return conn, nil
		}
		lastErr = err

		if attempt < p.cfg.ReconnectAttempts {
			wait.Sleep(ctx)
			if ctx.Err() != nil {
				lastErr = ctx.Err()
				break
			}
		}
	}

	p.metrics.ObserveReconnect(server, p.cfg.ReconnectAttempts, lastErr)
	p.logger.Error("reconnect failed",
		telemetry.EventField(telemetry.EventReconnectFailure),
		telemetry.ServerField(server),
		telemetry.AttemptsField(p.cfg.ReconnectAttempts),
		zap.Error(lastErr),
	)
	return nil, domain.E(domain.CodeUnavailable, "pool.reconnect",
		fmt.Sprintf("reconnect to %s after %d attempts", server, p.cfg.ReconnectAttempts), lastErr)
}

// IsConnected reports whether a live connection for server exists.
func (p *Pool) IsConnected(server string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	conn, ok := p.conns[server]
	return ok && conn.IsAlive()
}

// CloseAll removes every connection, best-effort closing each. Used at
// shutdown.
func (p *Pool) CloseAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for server := range p.conns {
		p.removeLocked(server)
	}
}
