package proxy

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"mcpod/internal/domain"
	"mcpod/internal/infra/pool"
)

// scriptedConn answers CallTool from a queue of outcomes; once the queue is
// empty it keeps returning the last one.
type scriptedConn struct {
	mu       sync.Mutex
	alive    bool
	outcomes []error
	calls    int
}

func (c *scriptedConn) IsAlive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.alive
}

func (c *scriptedConn) CallTool(_ context.Context, name string, _ map[string]any) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	var outcome error
	if len(c.outcomes) > 0 {
		outcome = c.outcomes[0]
		if len(c.outcomes) > 1 {
			c.outcomes = c.outcomes[1:]
		}
	}
	if outcome != nil {
		return nil, outcome
	}
	return "result of " + name, nil
}

func (c *scriptedConn) Close() error {
	c.mu.Lock()
	c.alive = false
	c.mu.Unlock()
	return nil
}

type scriptedConnector struct {
	mu    sync.Mutex
	next  []*scriptedConn
	fail  bool
	// failAfter, when positive, fails every dial past that count.
	failAfter int
	dials     int
}

func (f *scriptedConnector) Connect(_ context.Context, _ string) (pool.Conn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dials++
	if f.fail || (f.failAfter > 0 && f.dials > f.failAfter) {
		return nil, errors.New("connect refused")
	}
	conn := &scriptedConn{alive: true}
	if len(f.next) > 0 {
		conn = f.next[0]
		f.next = f.next[1:]
	}
	return conn, nil
}

func newTestProxy(t *testing.T, connector pool.Connector, opts Options) *ToolProxy {
	t.Helper()
	connPool := pool.New(connector, pool.Options{
		Config: pool.Config{
			ReconnectAttempts: 1,
			ReconnectDelay:    time.Millisecond,
		},
	})
	return New(connPool, opts)
}

func echoTools() []domain.Tool {
	return []domain.Tool{
		{Name: "echo", Description: "echo input", InputSchema: map[string]any{"type": "object"}},
		{Name: "reverse", Description: "reverse input"},
	}
}

func TestRegisterToolsAndLookup(t *testing.T) {
	p := newTestProxy(t, &scriptedConnector{}, Options{})

	require.NoError(t, p.RegisterTools("echo-server", echoTools()))

	owner, ok := p.GetServerForTool("echo")
	require.True(t, ok)
	require.Equal(t, "echo-server", owner)

	_, ok = p.GetServerForTool("ghost")
	require.False(t, ok)

	require.Len(t, p.ListActiveTools(), 2)
	require.Equal(t, []string{"echo-server"}, p.ListServers())
}

func TestRegisterToolsReplacePolicyLastWriterWins(t *testing.T) {
	p := newTestProxy(t, &scriptedConnector{}, Options{})

	require.NoError(t, p.RegisterTools("alpha", []domain.Tool{{Name: "search"}}))
	require.NoError(t, p.RegisterTools("beta", []domain.Tool{{Name: "search"}}))

	owner, ok := p.GetServerForTool("search")
	require.True(t, ok)
	require.Equal(t, "beta", owner)

	// Alpha's registration no longer owns the name, so removing alpha
	// leaves beta's ownership intact.
	p.UnregisterServer("alpha")
	owner, ok = p.GetServerForTool("search")
	require.True(t, ok)
	require.Equal(t, "beta", owner)

	p.UnregisterServer("beta")
	_, ok = p.GetServerForTool("search")
	require.False(t, ok)
}

func TestRegisterToolsRejectPolicy(t *testing.T) {
	p := newTestProxy(t, &scriptedConnector{}, Options{ConflictPolicy: domain.ConflictReject})

	require.NoError(t, p.RegisterTools("alpha", []domain.Tool{{Name: "search"}}))

	err := p.RegisterTools("beta", []domain.Tool{{Name: "search"}})
	require.Error(t, err)
	require.ErrorIs(t, err, domain.ErrToolConflict)

	owner, ok := p.GetServerForTool("search")
	require.True(t, ok)
	require.Equal(t, "alpha", owner)
	require.Empty(t, p.GetServerTools("beta"))

	// Re-registering under the same server is never a conflict.
	require.NoError(t, p.RegisterTools("alpha", []domain.Tool{{Name: "search"}, {Name: "fetch"}}))
}

func TestRegisterToolsShrinkingReregistration(t *testing.T) {
	p := newTestProxy(t, &scriptedConnector{}, Options{})

	require.NoError(t, p.RegisterTools("alpha", []domain.Tool{{Name: "a"}, {Name: "b"}}))
	require.NoError(t, p.RegisterTools("alpha", []domain.Tool{{Name: "a"}}))

	_, ok := p.GetServerForTool("b")
	require.False(t, ok)
	require.Len(t, p.GetServerTools("alpha"), 1)
}

func TestGetServerToolsReturnsCopies(t *testing.T) {
	p := newTestProxy(t, &scriptedConnector{}, Options{})
	require.NoError(t, p.RegisterTools("echo-server", echoTools()))

	got := p.GetServerTools("echo-server")
	got[0].InputSchema["type"] = "mutated"
	got[0].Name = "mutated"

	if diff := cmp.Diff(echoTools(), p.GetServerTools("echo-server")); diff != "" {
		t.Fatalf("registered tools changed (-want +got):\n%s", diff)
	}
}

func TestCallToolUnknownTool(t *testing.T) {
	p := newTestProxy(t, &scriptedConnector{}, Options{})

	result := p.CallTool(context.Background(), "ghost", nil)
	require.Equal(t, domain.CallError, result.Status)
	require.Equal(t, "tool ghost not found in any active server", result.Error)
	require.Empty(t, result.Server)
}

func TestCallToolSuccess(t *testing.T) {
	connector := &scriptedConnector{}
	p := newTestProxy(t, connector, Options{})
	require.NoError(t, p.RegisterTools("echo-server", echoTools()))

	result := p.CallTool(context.Background(), "echo", map[string]any{"text": "hi"})
	require.Equal(t, domain.CallSuccess, result.Status)
	require.Equal(t, "result of echo", result.Result)
	require.Equal(t, "echo-server", result.Server)
	require.Equal(t, 1, connector.dials)
}

func TestCallToolRetriesOnceAfterFailure(t *testing.T) {
	failing := &scriptedConn{alive: true, outcomes: []error{errors.New("broken pipe")}}
	healthy := &scriptedConn{alive: true}
	connector := &scriptedConnector{next: []*scriptedConn{failing, healthy}}

	p := newTestProxy(t, connector, Options{})
	require.NoError(t, p.RegisterTools("echo-server", echoTools()))

	result := p.CallTool(context.Background(), "echo", nil)
	require.Equal(t, domain.CallSuccess, result.Status)
	require.Equal(t, "result of echo", result.Result)
	require.Equal(t, 1, failing.calls)
	require.Equal(t, 1, healthy.calls)
	require.Equal(t, 2, connector.dials)
}

func TestCallToolRetryFailureIsFinal(t *testing.T) {
	first := &scriptedConn{alive: true, outcomes: []error{errors.New("broken pipe")}}
	second := &scriptedConn{alive: true, outcomes: []error{errors.New("still broken")}}
	connector := &scriptedConnector{next: []*scriptedConn{first, second}}

	p := newTestProxy(t, connector, Options{})
	require.NoError(t, p.RegisterTools("echo-server", echoTools()))

	result := p.CallTool(context.Background(), "echo", nil)
	require.Equal(t, domain.CallError, result.Status)
	require.Contains(t, result.Error, "error on retry")
	require.Equal(t, "echo-server", result.Server)
	// Exactly one retry: two invocations total, no third attempt.
	require.Equal(t, 1, first.calls)
	require.Equal(t, 1, second.calls)
}

func TestCallToolConnectionUnavailable(t *testing.T) {
	connector := &scriptedConnector{fail: true}
	p := newTestProxy(t, connector, Options{})
	require.NoError(t, p.RegisterTools("echo-server", echoTools()))

	result := p.CallTool(context.Background(), "echo", nil)
	require.Equal(t, domain.CallError, result.Status)
	require.Equal(t, "failed to get connection to server echo-server", result.Error)
	require.Equal(t, "echo-server", result.Server)
}

func TestCallToolReconnectFailureAfterCallError(t *testing.T) {
	// First dial succeeds but the call fails; the reconnect dial refuses,
	// so the original call error is reported.
	failing := &scriptedConn{alive: true, outcomes: []error{errors.New("broken pipe")}}
	connector := &scriptedConnector{next: []*scriptedConn{failing}, failAfter: 1}

	p := newTestProxy(t, connector, Options{})
	require.NoError(t, p.RegisterTools("echo-server", echoTools()))

	result := p.CallTool(context.Background(), "echo", nil)
	require.Equal(t, domain.CallError, result.Status)
	require.Contains(t, result.Error, "error calling tool echo on server echo-server")
	require.Contains(t, result.Error, "broken pipe")
	require.Equal(t, 1, failing.calls)
}
