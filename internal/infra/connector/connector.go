package connector

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync/atomic"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"mcpod/internal/domain"
	"mcpod/internal/infra/pool"
	"mcpod/internal/infra/telemetry"
)

const serverPlaceholder = "{server}"

// Gateway connects to backend servers by spawning the Docker MCP Toolkit
// gateway over stdio and speaking MCP through the official SDK client.
type Gateway struct {
	command    []string
	clientName string
	version    string
	logger     *zap.Logger
}

type GatewayOptions struct {
	// Command is the argv template used to reach one server; every
	// {server} token is replaced with the server name.
	Command    []string
	ClientName string
	Version    string
	Logger     *zap.Logger
}

func NewGateway(opts GatewayOptions) *Gateway {
	command := opts.Command
	if len(command) == 0 {
		command = []string{"docker", "mcp", "gateway", "run", "--servers=" + serverPlaceholder}
	}
	clientName := opts.ClientName
	if clientName == "" {
		clientName = "mcpod"
	}
	version := opts.Version
	if version == "" {
		version = "0.1.0"
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		command:    command,
		clientName: clientName,
		version:    version,
		logger:     logger.Named("connector"),
	}
}

// Connect spawns the gateway process for one server and completes the MCP
// handshake. The returned handle owns the session and the child process.
func (g *Gateway) Connect(ctx context.Context, server string) (pool.Conn, error) {
	if strings.TrimSpace(server) == "" {
		return nil, errors.New("server name is required")
	}

	argv := g.expandCommand(server)
	cmd := exec.Command(argv[0], argv[1:]...)

	client := mcp.NewClient(&mcp.Implementation{
		Name:    g.clientName,
		Version: g.version,
	}, nil)

	session, err := client.Connect(ctx, &mcp.CommandTransport{Command: cmd}, nil)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", server, err)
	}

	conn := &sessionConn{
		server:  server,
		session: session,
		logger:  g.logger,
	}
	go conn.monitor()

	g.logger.Debug("session established", telemetry.ServerField(server))
	return conn, nil
}

func (g *Gateway) expandCommand(server string) []string {
	argv := make([]string, len(g.command))
	for i, arg := range g.command {
		argv[i] = strings.ReplaceAll(arg, serverPlaceholder, server)
	}
	return argv
}

// sessionConn adapts an SDK client session to the pool's connection
// contract.
type sessionConn struct {
	server  string
	session *mcp.ClientSession
	logger  *zap.Logger
	closed  atomic.Bool
}

// monitor marks the handle dead once the session terminates, whatever the
// cause.
func (c *sessionConn) monitor() {
	err := c.session.Wait()
	if c.closed.CompareAndSwap(false, true) && err != nil {
		c.logger.Warn("session terminated",
			telemetry.EventField(telemetry.EventConnectionDead),
			telemetry.ServerField(c.server),
			zap.Error(err),
		)
	}
}

func (c *sessionConn) IsAlive() bool {
	return !c.closed.Load()
}

func (c *sessionConn) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	if c.closed.Load() {
		return nil, domain.ErrConnectionClosed
	}
	result, err := c.session.CallTool(ctx, &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		return nil, domain.E(domain.CodeCallFailed, "connector.call", fmt.Sprintf("call %s on %s", name, c.server), err)
	}
	return resultPayload(result)
}

func (c *sessionConn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.session.Close()
}

// resultPayload flattens an MCP call result into the proxy's result value.
// A result flagged IsError becomes a CALL_FAILED error carrying the text
// content.
func resultPayload(result *mcp.CallToolResult) (any, error) {
	if result == nil {
		return nil, errors.New("empty call result")
	}
	if result.IsError {
		return nil, domain.E(domain.CodeCallFailed, "connector.call", textContent(result), nil)
	}
	if result.StructuredContent != nil {
		return result.StructuredContent, nil
	}
	return textContent(result), nil
}

func textContent(result *mcp.CallToolResult) string {
	var parts []string
	for _, content := range result.Content {
		if text, ok := content.(*mcp.TextContent); ok {
			parts = append(parts, text.Text)
		}
	}
	return strings.Join(parts, "\n")
}
