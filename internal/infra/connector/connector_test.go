package connector

import (
	"context"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"

	"mcpod/internal/domain"
)

func TestNewGatewayDefaults(t *testing.T) {
	g := NewGateway(GatewayOptions{})

	require.Equal(t, []string{"docker", "mcp", "gateway", "run", "--servers={server}"}, g.command)
	require.Equal(t, "mcpod", g.clientName)
	require.Equal(t, "0.1.0", g.version)
}

func TestExpandCommandReplacesPlaceholder(t *testing.T) {
	g := NewGateway(GatewayOptions{
		Command: []string{"docker", "mcp", "gateway", "run", "--servers={server}", "--label={server}"},
	})

	argv := g.expandCommand("echo-server")
	require.Equal(t, []string{
		"docker", "mcp", "gateway", "run",
		"--servers=echo-server", "--label=echo-server",
	}, argv)
	// The template itself is untouched.
	require.Equal(t, "--servers={server}", g.command[4])
}

func TestConnectRejectsEmptyServer(t *testing.T) {
	g := NewGateway(GatewayOptions{})

	_, err := g.Connect(context.Background(), "  ")
	require.Error(t, err)
}

func TestResultPayloadNilResult(t *testing.T) {
	_, err := resultPayload(nil)
	require.Error(t, err)
}

func TestResultPayloadErrorFlagBecomesCallFailed(t *testing.T) {
	_, err := resultPayload(&mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: "division by zero"}},
	})
	require.Error(t, err)
	code, ok := domain.CodeFrom(err)
	require.True(t, ok)
	require.Equal(t, domain.CodeCallFailed, code)
	require.Contains(t, err.Error(), "division by zero")
}

func TestResultPayloadPrefersStructuredContent(t *testing.T) {
	payload, err := resultPayload(&mcp.CallToolResult{
		StructuredContent: map[string]any{"sum": 3},
		Content:           []mcp.Content{&mcp.TextContent{Text: `{"sum":3}`}},
	})
	require.NoError(t, err)
	require.Equal(t, map[string]any{"sum": 3}, payload)
}

func TestResultPayloadJoinsTextContent(t *testing.T) {
	payload, err := resultPayload(&mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: "line one"},
			&mcp.TextContent{Text: "line two"},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "line one\nline two", payload)
}

func TestClosedConnRefusesCalls(t *testing.T) {
	conn := &sessionConn{server: "echo-server"}
	conn.closed.Store(true)

	require.False(t, conn.IsAlive())
	_, err := conn.CallTool(context.Background(), "echo", nil)
	require.ErrorIs(t, err, domain.ErrConnectionClosed)
	// Close after the session is already gone is a no-op.
	require.NoError(t, conn.Close())
}
