package mcpserver_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"

	"mcpod/internal/app"
	"mcpod/internal/domain"
	"mcpod/internal/infra/cache"
	"mcpod/internal/infra/mcpserver"
)

type fakeCaller struct {
	result domain.CallToolResult
	tools  []domain.Tool

	lastTool string
	lastArgs map[string]any
}

func (f *fakeCaller) CallTool(_ context.Context, toolName string, args map[string]any) domain.CallToolResult {
	f.lastTool = toolName
	f.lastArgs = args
	return f.result
}

func (f *fakeCaller) ListActiveTools() []domain.Tool {
	return f.tools
}

type fakeToolkit struct {
	config  map[string]any
	secrets []string

	written map[string]any
	set     map[string]string
	removed []string
	err     error
}

func (f *fakeToolkit) ConfigRead(context.Context) (map[string]any, error) {
	return f.config, f.err
}

func (f *fakeToolkit) ConfigWrite(_ context.Context, config map[string]any) error {
	f.written = config
	return f.err
}

func (f *fakeToolkit) SecretList(context.Context) ([]string, error) {
	return f.secrets, f.err
}

func (f *fakeToolkit) SecretSet(_ context.Context, key, value string) error {
	if f.set == nil {
		f.set = make(map[string]string)
	}
	f.set[key] = value
	return f.err
}

func (f *fakeToolkit) SecretRemove(_ context.Context, key string) error {
	f.removed = append(f.removed, key)
	return f.err
}

type testDiscovery struct {
	servers []domain.ServerMetadata
	tools   map[string][]domain.Tool
	active  []string
}

func (d *testDiscovery) Catalog() string { return "docker-mcp" }

func (d *testDiscovery) CatalogServers(context.Context, string) ([]domain.ServerMetadata, error) {
	return d.servers, nil
}

func (d *testDiscovery) ActiveServers(context.Context) ([]string, error) {
	return d.active, nil
}

func (d *testDiscovery) EnableServers(_ context.Context, servers []string) error {
	d.active = append(d.active, servers...)
	return nil
}

func (d *testDiscovery) DisableServers(context.Context, []string) error { return nil }

func (d *testDiscovery) ServerTools(_ context.Context, server string) ([]domain.Tool, error) {
	return d.tools[server], nil
}

func (d *testDiscovery) ServerInfo(_ context.Context, server string) (*domain.ServerMetadata, error) {
	for i := range d.servers {
		if d.servers[i].Name == server {
			return &d.servers[i], nil
		}
	}
	return nil, nil
}

type testRegistry struct {
	registered map[string][]domain.Tool
}

func (r *testRegistry) RegisterTools(server string, tools []domain.Tool) error {
	if r.registered == nil {
		r.registered = make(map[string][]domain.Tool)
	}
	r.registered[server] = tools
	return nil
}

func (r *testRegistry) UnregisterServer(server string) { delete(r.registered, server) }

func (r *testRegistry) GetServerTools(server string) []domain.Tool { return r.registered[server] }

type noopPool struct{}

func (noopPool) Remove(string) {}

type serverHarness struct {
	caller  *fakeCaller
	toolkit *fakeToolkit
	session *mcp.ClientSession
}

func newServerHarness(t *testing.T, discovery *testDiscovery) *serverHarness {
	t.Helper()
	ctx := context.Background()

	metadataCache := cache.NewMetadataCache(cache.MetadataCacheOptions{})
	prompts := app.NewPromptManager(discovery, metadataCache, nil)
	orchestrator := app.NewOrchestrator(app.OrchestratorOptions{
		Discovery: discovery,
		Cache:     metadataCache,
		Registry:  &testRegistry{},
		Pool:      noopPool{},
		Prompts:   prompts,
	})

	caller := &fakeCaller{}
	toolkit := &fakeToolkit{}
	server := mcpserver.New(mcpserver.Options{
		Orchestrator: orchestrator,
		Prompts:      prompts,
		Caller:       caller,
		Toolkit:      toolkit,
	})

	clientTransport, serverTransport := mcp.NewInMemoryTransports()
	_, err := mcpserver.MCPServer(server).Connect(ctx, serverTransport, nil)
	require.NoError(t, err)

	client := mcp.NewClient(&mcp.Implementation{Name: "client", Version: "0.1.0"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })

	return &serverHarness{caller: caller, toolkit: toolkit, session: session}
}

func callTool(t *testing.T, session *mcp.ClientSession, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	require.NoError(t, err)
	return res
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestServerExposesManagementTools(t *testing.T) {
	h := newServerHarness(t, &testDiscovery{})

	res, err := h.session.ListTools(context.Background(), &mcp.ListToolsParams{})
	require.NoError(t, err)

	names := make(map[string]bool, len(res.Tools))
	for _, tool := range res.Tools {
		names[tool.Name] = true
	}
	for _, want := range []string{
		"call_tool", "list_active_tools", "get_active_servers",
		"start_servers", "stop_servers",
		"list_catalog", "list_installed_servers",
		"get_server_info", "get_server_tools",
		"config_get", "config_set",
		"secret_list", "secret_set", "secret_remove",
	} {
		require.True(t, names[want], "missing tool %s", want)
	}
	require.Len(t, res.Tools, 14)
}

func TestCallToolDelegatesToProxy(t *testing.T) {
	h := newServerHarness(t, &testDiscovery{})
	h.caller.result = domain.CallToolResult{
		Status: domain.CallSuccess,
		Result: "hi",
		Server: "echo-server",
	}

	res := callTool(t, h.session, "call_tool", map[string]any{
		"tool_name": "echo",
		"arguments": map[string]any{"text": "hi"},
	})

	require.False(t, res.IsError)
	require.Equal(t, "echo", h.caller.lastTool)
	require.Equal(t, map[string]any{"text": "hi"}, h.caller.lastArgs)

	var payload domain.CallToolResult
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &payload))
	require.Equal(t, domain.CallSuccess, payload.Status)
	require.Equal(t, "echo-server", payload.Server)
}

func TestCallToolFailureMarksError(t *testing.T) {
	h := newServerHarness(t, &testDiscovery{})
	h.caller.result = domain.CallToolResult{
		Status: domain.CallError,
		Error:  "tool ghost not found in any active server",
	}

	res := callTool(t, h.session, "call_tool", map[string]any{"tool_name": "ghost"})
	require.True(t, res.IsError)
	require.Contains(t, resultText(t, res), "not found")
}

func TestCallToolRequiresToolName(t *testing.T) {
	h := newServerHarness(t, &testDiscovery{})

	res := callTool(t, h.session, "call_tool", map[string]any{})
	require.True(t, res.IsError)
	require.Contains(t, resultText(t, res), "tool_name is required")
}

func TestStartServersEndToEnd(t *testing.T) {
	discovery := &testDiscovery{
		servers: []domain.ServerMetadata{{Name: "echo-server", Prompt: "Echoes."}},
		tools:   map[string][]domain.Tool{"echo-server": {{Name: "echo"}}},
	}
	h := newServerHarness(t, discovery)

	res := callTool(t, h.session, "start_servers", map[string]any{
		"servers": []string{"echo-server"},
	})
	require.False(t, res.IsError)

	var payload domain.StartServersResult
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &payload))
	require.Equal(t, "ok", payload.Status)
	require.Equal(t, []string{"echo-server"}, payload.Servers)
	require.Equal(t, "Echoes.", payload.Prompts["echo-server"])
}

func TestListCatalog(t *testing.T) {
	discovery := &testDiscovery{
		servers: []domain.ServerMetadata{{Name: "echo-server"}, {Name: "time-server"}},
	}
	h := newServerHarness(t, discovery)

	res := callTool(t, h.session, "list_catalog", nil)
	require.False(t, res.IsError)
	require.Contains(t, resultText(t, res), "echo-server")
	require.Contains(t, resultText(t, res), `"count":2`)
}

func TestGetServerInfoNotFound(t *testing.T) {
	h := newServerHarness(t, &testDiscovery{})

	res := callTool(t, h.session, "get_server_info", map[string]any{"server": "ghost"})
	require.True(t, res.IsError)
	require.Contains(t, resultText(t, res), "server ghost not found")
}

func TestConfigRoundTrip(t *testing.T) {
	h := newServerHarness(t, &testDiscovery{})
	h.toolkit.config = map[string]any{"registry": "ghcr.io"}

	res := callTool(t, h.session, "config_get", nil)
	require.False(t, res.IsError)
	require.Contains(t, resultText(t, res), "ghcr.io")

	res = callTool(t, h.session, "config_set", map[string]any{
		"config": map[string]any{"registry": "docker.io"},
	})
	require.False(t, res.IsError)
	require.Equal(t, map[string]any{"registry": "docker.io"}, h.toolkit.written)
}

func TestSecretToolsNeverReturnValues(t *testing.T) {
	h := newServerHarness(t, &testDiscovery{})
	h.toolkit.secrets = []string{"github.token"}

	res := callTool(t, h.session, "secret_set", map[string]any{
		"key":   "github.token",
		"value": "s3cret",
	})
	require.False(t, res.IsError)
	require.NotContains(t, resultText(t, res), "s3cret")
	require.Equal(t, "s3cret", h.toolkit.set["github.token"])

	res = callTool(t, h.session, "secret_list", nil)
	require.False(t, res.IsError)
	require.Contains(t, resultText(t, res), "github.token")

	res = callTool(t, h.session, "secret_remove", map[string]any{"key": "github.token"})
	require.False(t, res.IsError)
	require.Equal(t, []string{"github.token"}, h.toolkit.removed)
}

func TestToolkitErrorSurfacesAsToolError(t *testing.T) {
	h := newServerHarness(t, &testDiscovery{})
	h.toolkit.err = errors.New("docker daemon unreachable")

	res := callTool(t, h.session, "secret_list", nil)
	require.True(t, res.IsError)
	require.Contains(t, resultText(t, res), "docker daemon unreachable")
}
