package discovery

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// recordingRunner replays canned stdout per command prefix and records every
// invocation.
type recordingRunner struct {
	responses map[string]string
	errors    map[string]error
	calls     []recordedCall
}

type recordedCall struct {
	stdin string
	args  []string
}

func (r *recordingRunner) Run(_ context.Context, stdin string, args ...string) (string, error) {
	r.calls = append(r.calls, recordedCall{stdin: stdin, args: args})
	key := strings.Join(args, " ")
	for prefix, err := range r.errors {
		if strings.HasPrefix(key, prefix) {
			return "", err
		}
	}
	for prefix, out := range r.responses {
		if strings.HasPrefix(key, prefix) {
			return out, nil
		}
	}
	return "{}", nil
}

func (r *recordingRunner) lastCall(t *testing.T) recordedCall {
	t.Helper()
	require.NotEmpty(t, r.calls)
	return r.calls[len(r.calls)-1]
}

func newTestClient(runner Runner) *Client {
	return NewClient(runner, ClientOptions{Catalog: "docker-mcp"})
}

func TestClientCatalogServers(t *testing.T) {
	runner := &recordingRunner{responses: map[string]string{
		"docker mcp catalog show": `{"servers": {"echo": {"description": "Echo"}}}`,
	}}
	client := newTestClient(runner)

	servers, err := client.CatalogServers(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, servers, 1)
	require.Equal(t, "echo", servers[0].Name)

	require.Equal(t,
		[]string{"docker", "mcp", "catalog", "show", "docker-mcp", "--format=json"},
		runner.lastCall(t).args,
	)
}

func TestClientActiveServers(t *testing.T) {
	runner := &recordingRunner{responses: map[string]string{
		"docker mcp server ls": `["echo", "time"]`,
	}}
	client := newTestClient(runner)

	names, err := client.ActiveServers(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"echo", "time"}, names)
}

func TestClientEnableDisableServers(t *testing.T) {
	runner := &recordingRunner{}
	client := newTestClient(runner)
	ctx := context.Background()

	require.NoError(t, client.EnableServers(ctx, []string{"echo", "time"}))
	require.Equal(t,
		[]string{"docker", "mcp", "server", "enable", "echo", "time"},
		runner.lastCall(t).args,
	)

	require.NoError(t, client.DisableServers(ctx, []string{"echo"}))
	require.Equal(t,
		[]string{"docker", "mcp", "server", "disable", "echo"},
		runner.lastCall(t).args,
	)

	// Empty batches never shell out.
	calls := len(runner.calls)
	require.NoError(t, client.EnableServers(ctx, nil))
	require.NoError(t, client.DisableServers(ctx, nil))
	require.Len(t, runner.calls, calls)
}

func TestClientServerTools(t *testing.T) {
	runner := &recordingRunner{responses: map[string]string{
		"docker mcp tools ls": `[
			{"name": "echo", "server": "echo-server"},
			{"name": "now", "server": "time-server"}
		]`,
	}}
	client := newTestClient(runner)

	tools, err := client.ServerTools(context.Background(), "echo-server")
	require.NoError(t, err)
	require.Len(t, tools, 1)
	require.Equal(t, "echo", tools[0].Name)
}

func TestClientServerInfoInspect(t *testing.T) {
	runner := &recordingRunner{responses: map[string]string{
		"docker mcp server inspect": `{"description": "Echo server", "version": "2.0"}`,
	}}
	client := newTestClient(runner)

	meta, err := client.ServerInfo(context.Background(), "echo")
	require.NoError(t, err)
	require.NotNil(t, meta)
	require.Equal(t, "echo", meta.Name)
	require.Equal(t, "2.0", meta.Version)
}

func TestClientServerInfoCatalogFallback(t *testing.T) {
	runner := &recordingRunner{
		errors: map[string]error{
			"docker mcp server inspect": errors.New("unknown command"),
		},
		responses: map[string]string{
			"docker mcp catalog show": `{"servers": {"echo": {"description": "Echo"}}}`,
		},
	}
	client := newTestClient(runner)

	meta, err := client.ServerInfo(context.Background(), "echo")
	require.NoError(t, err)
	require.NotNil(t, meta)
	require.Equal(t, "Echo", meta.Description)

	// Unknown server resolves to nil without an error.
	meta, err = client.ServerInfo(context.Background(), "ghost")
	require.NoError(t, err)
	require.Nil(t, meta)
}

func TestClientConfigWriteSendsStdin(t *testing.T) {
	runner := &recordingRunner{}
	client := newTestClient(runner)

	err := client.ConfigWrite(context.Background(), map[string]any{"registry": "ghcr.io"})
	require.NoError(t, err)

	call := runner.lastCall(t)
	require.Equal(t, []string{"docker", "mcp", "config", "write"}, call.args)
	require.JSONEq(t, `{"registry": "ghcr.io"}`, call.stdin)
}

func TestClientSecretOperations(t *testing.T) {
	runner := &recordingRunner{responses: map[string]string{
		"docker mcp secret ls": `["github.token"]`,
	}}
	client := newTestClient(runner)
	ctx := context.Background()

	keys, err := client.SecretList(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"github.token"}, keys)

	require.NoError(t, client.SecretSet(ctx, "github.token", "s3cret"))
	require.Equal(t,
		[]string{"docker", "mcp", "secret", "set", "github.token=s3cret"},
		runner.lastCall(t).args,
	)

	require.NoError(t, client.SecretRemove(ctx, "github.token"))
	require.Equal(t,
		[]string{"docker", "mcp", "secret", "rm", "github.token"},
		runner.lastCall(t).args,
	)
}

func TestClientCommandFailurePropagates(t *testing.T) {
	runner := &recordingRunner{errors: map[string]error{
		"docker mcp server ls": errors.New("docker daemon unreachable"),
	}}
	client := newTestClient(runner)

	_, err := client.ActiveServers(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "docker daemon unreachable")
}
