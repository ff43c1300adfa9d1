package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcp-portal/gateway/internal/bus"
	"github.com/mcp-portal/gateway/internal/contracts"
	"github.com/mcp-portal/gateway/internal/discovery"
	"github.com/mcp-portal/gateway/internal/errors"
	"github.com/mcp-portal/gateway/internal/registry"
	"github.com/mcp-portal/gateway/internal/session"
)

// stubClient is a permanently healthy upstream for supervisor tests.
type stubClient struct {
	tools []mcp.Tool
}

func (s *stubClient) Initialize(_ context.Context, _ mcp.InitializeRequest) (*mcp.InitializeResult, error) {
	result := &mcp.InitializeResult{}
	result.ServerInfo = mcp.Implementation{Name: "stub", Version: "1.0"}
	return result, nil
}

func (s *stubClient) Ping(_ context.Context) error { return nil }

func (s *stubClient) ListTools(_ context.Context, _ mcp.ListToolsRequest) (*mcp.ListToolsResult, error) {
	return &mcp.ListToolsResult{Tools: s.tools}, nil
}

func (s *stubClient) ListResources(_ context.Context, _ mcp.ListResourcesRequest) (*mcp.ListResourcesResult, error) {
	return &mcp.ListResourcesResult{}, nil
}

func (s *stubClient) CallTool(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText("ok"), nil
}

func (s *stubClient) ReadResource(_ context.Context, _ mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	return &mcp.ReadResourceResult{}, nil
}

func (s *stubClient) OnNotification(_ func(notification mcp.JSONRPCNotification)) {}

func (s *stubClient) Close() error { return nil }

// stubConn wraps a stubClient as a session.Conn.
type stubConn struct {
	client contracts.MCPClient
	dead   chan struct{}
}

func (s *stubConn) MCP() contracts.MCPClient { return s.client }
func (s *stubConn) Stderr() string           { return "" }
func (s *stubConn) Dead() <-chan struct{}    { return s.dead }
func (s *stubConn) Close() error             { return nil }
func (s *stubConn) Kill()                    {}

func stubDial(_ context.Context, _ discovery.Server) (session.Conn, error) {
	return &stubConn{client: &stubClient{tools: []mcp.Tool{{Name: "echo"}}}, dead: make(chan struct{})}, nil
}

type supervisorFixture struct {
	sup      *Supervisor
	registry *registry.Registry
	manual   *discovery.ManualStore
	events   *bus.Bus
}

func newSupervisorFixture(t *testing.T) *supervisorFixture {
	t.Helper()

	logger := hclog.NewNullLogger()
	events := bus.New(logger)
	reg := registry.New(logger, events)

	home := t.TempDir()
	manual := discovery.NewManualStore(t.TempDir())
	scanner := discovery.NewScanner(logger, home, manual)

	sup := NewSupervisor(logger, reg, events, manual, scanner, stubDial)
	sup.Start(t.Context())
	t.Cleanup(sup.StopAll)

	return &supervisorFixture{sup: sup, registry: reg, manual: manual, events: events}
}

func cursorDecl(name string) discovery.Server {
	return discovery.Server{
		Name:           name,
		Source:         discovery.SourceCursor,
		Transport:      discovery.TransportStdio,
		Command:        "echo-tool",
		TimeoutSeconds: 2,
		MaxRetries:     2,
		Enabled:        true,
	}
}

func waitForServerState(t *testing.T, reg *registry.Registry, name string, want session.State) {
	t.Helper()
	require.Eventually(t, func() bool {
		status, ok := reg.Status(name)
		return ok && status.Status == want
	}, 5*time.Second, 10*time.Millisecond)
}

func TestApply_AddedDeclStartsSession(t *testing.T) {
	t.Parallel()

	f := newSupervisorFixture(t)
	f.sup.Apply(discovery.Delta{Added: []discovery.Server{cursorDecl("alpha")}})

	waitForServerState(t, f.registry, "alpha", session.StateReady)

	require.Eventually(t, func() bool {
		status, _ := f.registry.Status("alpha")
		return status.ToolCount == 1
	}, 5*time.Second, 10*time.Millisecond)

	_, ok := f.sup.Session("alpha")
	assert.True(t, ok)
}

func TestApply_DisabledDeclDoesNotStart(t *testing.T) {
	t.Parallel()

	f := newSupervisorFixture(t)
	decl := cursorDecl("alpha")
	decl.Enabled = false
	f.sup.Apply(discovery.Delta{Added: []discovery.Server{decl}})

	_, ok := f.sup.Session("alpha")
	assert.False(t, ok)

	status, found := f.registry.Status("alpha")
	require.True(t, found)
	assert.Equal(t, session.StateStopped, status.Status)
}

func TestApply_RemovedDeclStopsAndForgets(t *testing.T) {
	t.Parallel()

	f := newSupervisorFixture(t)
	decl := cursorDecl("alpha")
	f.sup.Apply(discovery.Delta{Added: []discovery.Server{decl}})
	waitForServerState(t, f.registry, "alpha", session.StateReady)

	f.sup.Apply(discovery.Delta{Removed: []discovery.Server{decl}})

	_, ok := f.sup.Session("alpha")
	assert.False(t, ok)
	_, found := f.registry.Status("alpha")
	assert.False(t, found)
}

func TestSetEnabled_DisableStopsAndPersists(t *testing.T) {
	t.Parallel()

	f := newSupervisorFixture(t)
	f.sup.Apply(discovery.Delta{Added: []discovery.Server{cursorDecl("alpha")}})
	waitForServerState(t, f.registry, "alpha", session.StateReady)

	changed, err := f.sup.SetEnabled(t.Context(), "alpha", false)
	require.NoError(t, err)
	assert.True(t, changed)

	waitForServerState(t, f.registry, "alpha", session.StateStopped)
	_, ok := f.sup.Session("alpha")
	assert.False(t, ok)

	// The override reached the manual source.
	doc, err := f.manual.Load()
	require.NoError(t, err)
	entry, ok := doc.MCPServers["alpha"]
	require.True(t, ok)
	require.NotNil(t, entry.Enabled)
	assert.False(t, *entry.Enabled)

	// Enabling again restores the session and the inventory.
	changed, err = f.sup.SetEnabled(t.Context(), "alpha", true)
	require.NoError(t, err)
	assert.True(t, changed)
	waitForServerState(t, f.registry, "alpha", session.StateReady)
}

func TestSetEnabled_EnableIsNoopWhenAlreadyEnabled(t *testing.T) {
	t.Parallel()

	f := newSupervisorFixture(t)
	f.sup.Apply(discovery.Delta{Added: []discovery.Server{cursorDecl("alpha")}})
	waitForServerState(t, f.registry, "alpha", session.StateReady)

	sub := f.events.Subscribe()
	defer sub.Close()

	changed, err := f.sup.SetEnabled(t.Context(), "alpha", true)
	require.NoError(t, err)
	assert.False(t, changed)

	// The only trace is an enable_noop server event.
	select {
	case event := <-sub.Events:
		require.Equal(t, bus.KindServerEvent, event.Kind)
		payload, ok := event.Data.(ServerEventPayload)
		require.True(t, ok)
		assert.Equal(t, "enable_noop", payload.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("expected an enable_noop event")
	}

	// No override was written for a no-op.
	doc, err := f.manual.Load()
	require.NoError(t, err)
	assert.NotContains(t, doc.MCPServers, "alpha")
}

func TestSetEnabled_UnknownServer(t *testing.T) {
	t.Parallel()

	f := newSupervisorFixture(t)
	_, err := f.sup.SetEnabled(t.Context(), "ghost", true)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrServerNotFound)
}

func TestReconnect_RecreatesSession(t *testing.T) {
	t.Parallel()

	f := newSupervisorFixture(t)
	f.sup.Apply(discovery.Delta{Added: []discovery.Server{cursorDecl("alpha")}})
	waitForServerState(t, f.registry, "alpha", session.StateReady)

	before, _ := f.sup.Session("alpha")
	require.NoError(t, f.sup.Reconnect(t.Context(), "alpha"))
	waitForServerState(t, f.registry, "alpha", session.StateReady)

	after, ok := f.sup.Session("alpha")
	require.True(t, ok)
	assert.NotSame(t, before, after)
}

func TestReconnect_DisabledServerRejected(t *testing.T) {
	t.Parallel()

	f := newSupervisorFixture(t)
	decl := cursorDecl("alpha")
	decl.Enabled = false
	f.sup.Apply(discovery.Delta{Added: []discovery.Server{decl}})

	err := f.sup.Reconnect(t.Context(), "alpha")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrBadRequest)
}
