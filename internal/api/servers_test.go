package api

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcp-portal/gateway/internal/aggregator"
	"github.com/mcp-portal/gateway/internal/discovery"
	"github.com/mcp-portal/gateway/internal/errors"
	"github.com/mcp-portal/gateway/internal/registry"
	"github.com/mcp-portal/gateway/internal/session"
)

// mockManager implements the ServerManager interface for testing.
type mockManager struct {
	servers     []registry.ServerStatus
	enabled     map[string]bool
	refreshed   int
	reconnected []string
}

func newMockManager() *mockManager {
	return &mockManager{enabled: map[string]bool{}}
}

func (m *mockManager) ListServers() []registry.ServerStatus {
	return m.servers
}

func (m *mockManager) SetEnabled(_ context.Context, name string, enabled bool) (bool, error) {
	current, ok := m.enabled[name]
	if !ok {
		return false, fmt.Errorf("%w: %s", errors.ErrServerNotFound, name)
	}
	if current == enabled {
		return false, nil
	}
	m.enabled[name] = enabled
	return true, nil
}

func (m *mockManager) Reconnect(_ context.Context, name string) error {
	if _, ok := m.enabled[name]; !ok {
		return fmt.Errorf("%w: %s", errors.ErrServerNotFound, name)
	}
	m.reconnected = append(m.reconnected, name)
	return nil
}

func (m *mockManager) Refresh(_ context.Context) (int, error) {
	m.refreshed++
	return len(m.servers), nil
}

// mockStore implements the ConfigStore interface for testing.
type mockStore struct {
	doc      discovery.Document
	writeErr error
}

func (m *mockStore) Load() (discovery.Document, error) {
	return m.doc, nil
}

func (m *mockStore) Write(doc discovery.Document) error {
	if m.writeErr != nil {
		return m.writeErr
	}
	m.doc = doc
	return nil
}

func TestHandleServers_ReturnsSnapshot(t *testing.T) {
	t.Parallel()

	manager := newMockManager()
	manager.servers = []registry.ServerStatus{
		{Name: "alpha", Status: session.StateReady, Enabled: true, ToolCount: 2},
		{Name: "beta", Status: session.StateStopped},
	}

	resp, err := handleServers(manager)
	require.NoError(t, err)
	require.Len(t, resp.Body.Servers, 2)
	assert.Equal(t, "alpha", resp.Body.Servers[0].Name)
	assert.Equal(t, session.StateReady, resp.Body.Servers[0].Status)
}

func TestHandleSetEnabled_FlipReportsChange(t *testing.T) {
	t.Parallel()

	manager := newMockManager()
	manager.enabled["alpha"] = true

	resp, err := handleSetEnabled(t.Context(), manager, "alpha", false)
	require.NoError(t, err)
	assert.True(t, resp.Body.Success)
	assert.Equal(t, "server 'alpha' disabled", resp.Body.Message)
	assert.False(t, manager.enabled["alpha"])
}

func TestHandleSetEnabled_NoopReportsAlready(t *testing.T) {
	t.Parallel()

	manager := newMockManager()
	manager.enabled["alpha"] = true

	resp, err := handleSetEnabled(t.Context(), manager, "alpha", true)
	require.NoError(t, err)
	assert.True(t, resp.Body.Success)
	assert.Equal(t, "server 'alpha' already enabled", resp.Body.Message)
}

func TestHandleSetEnabled_UnknownServer(t *testing.T) {
	t.Parallel()

	manager := newMockManager()

	_, err := handleSetEnabled(t.Context(), manager, "ghost", true)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrServerNotFound)
}

func TestHandleConfigSet_RoundTripIsNoop(t *testing.T) {
	t.Parallel()

	manager := newMockManager()
	store := &mockStore{doc: discovery.Document{MCPServers: map[string]discovery.Entry{
		"alpha": {Command: "echo-tool"},
	}}}

	got, err := handleConfigGet(store)
	require.NoError(t, err)

	resp, err := handleConfigSet(t.Context(), store, manager, got.Body)
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Body.Data.UpdatedServers)
	assert.Equal(t, 1, manager.refreshed, "config write triggers a reconcile")
	assert.Equal(t, got.Body.MCPServers["alpha"].Command, store.doc.MCPServers["alpha"].Command)
}

func TestHandleConfigSet_RejectsUndeclarableEntry(t *testing.T) {
	t.Parallel()

	manager := newMockManager()
	store := &mockStore{}

	doc := discovery.Document{MCPServers: map[string]discovery.Entry{
		"broken": {}, // neither command nor url
	}}

	_, err := handleConfigSet(t.Context(), store, manager, doc)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrConfigInvalid)
	assert.Zero(t, manager.refreshed)
}

func TestHandleConfigSet_NilServersBecomesEmpty(t *testing.T) {
	t.Parallel()

	manager := newMockManager()
	store := &mockStore{}

	resp, err := handleConfigSet(t.Context(), store, manager, discovery.Document{})
	require.NoError(t, err)
	assert.Zero(t, resp.Body.Data.UpdatedServers)
	assert.NotNil(t, store.doc.MCPServers)
}

func TestError_ShapeAndStatus(t *testing.T) {
	t.Parallel()

	apiErr := NewError(404, "not_found", "tool 'x' not found")
	assert.Equal(t, 404, apiErr.GetStatus())
	assert.Equal(t, "tool 'x' not found", apiErr.Error())
	assert.Equal(t, "not_found", apiErr.Detail.Kind)

	zero := &Error{}
	assert.Equal(t, 500, zero.GetStatus())
}

// Compile-time checks that the real implementations satisfy the API contracts.
var (
	_ ConfigStore   = (*discovery.ManualStore)(nil)
	_ CatalogReader = (*aggregator.Catalog)(nil)
)
