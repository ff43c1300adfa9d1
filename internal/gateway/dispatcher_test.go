package gateway

import (
	"encoding/json"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcp-portal/gateway/internal/aggregator"
	"github.com/mcp-portal/gateway/internal/bus"
	"github.com/mcp-portal/gateway/internal/errors"
	"github.com/mcp-portal/gateway/internal/metrics"
	"github.com/mcp-portal/gateway/internal/session"
)

// emptyResolver implements SessionResolver with no live sessions.
type emptyResolver struct{}

func (emptyResolver) Session(string) (*session.Session, bool) { return nil, false }

func testDispatcher(t *testing.T) (*Dispatcher, *aggregator.Catalog) {
	t.Helper()

	logger := hclog.NewNullLogger()
	catalog := aggregator.New(logger)
	d := NewDispatcher(logger, catalog, emptyResolver{}, bus.New(logger), metrics.NewCollector(), "test")

	return d, catalog
}

func TestCallTool_UnknownPrefixIsNotFound(t *testing.T) {
	t.Parallel()

	d, _ := testDispatcher(t)

	_, err := d.CallTool(t.Context(), "ghost.echo", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestCallTool_SchemaValidationRejectsBadArguments(t *testing.T) {
	t.Parallel()

	d, catalog := testDispatcher(t)
	schema := json.RawMessage(`{
		"type": "object",
		"properties": {"msg": {"type": "string"}},
		"required": ["msg"]
	}`)
	catalog.Rebuild(map[string][]mcp.Tool{
		"alpha": {{Name: "echo", RawInputSchema: schema}},
	}, nil)

	// Missing the required property: rejected before any session lookup.
	result, err := d.CallTool(t.Context(), "alpha.echo", map[string]any{"other": 1})
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, result.IsError)

	// Wrong type for the property: also rejected.
	result, err = d.CallTool(t.Context(), "alpha.echo", map[string]any{"msg": 42})
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestCallTool_ValidArgumentsNeedLiveSession(t *testing.T) {
	t.Parallel()

	d, catalog := testDispatcher(t)
	catalog.Rebuild(map[string][]mcp.Tool{
		"alpha": {{Name: "echo"}},
	}, nil)

	// Resolution succeeds but there is no live session behind the entry.
	_, err := d.CallTool(t.Context(), "alpha.echo", map[string]any{"msg": "hi"})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrUpstreamUnavailable)
}

func TestReadResource_UnknownPrefixIsNotFound(t *testing.T) {
	t.Parallel()

	d, _ := testDispatcher(t)

	_, err := d.ReadResource(t.Context(), "mcp://ghost/thing")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestSyncCatalog_TracksAddAndRemove(t *testing.T) {
	t.Parallel()

	d, catalog := testDispatcher(t)

	catalog.Rebuild(map[string][]mcp.Tool{
		"alpha": {{Name: "echo"}},
	}, map[string][]mcp.Resource{
		"alpha": {{URI: "notes/a.md"}},
	})
	d.SyncCatalog()

	d.mu.Lock()
	assert.Contains(t, d.mirroredTools, "alpha.echo")
	assert.Contains(t, d.mirroredRes, "mcp://alpha/notes/a.md")
	d.mu.Unlock()

	// Session goes away: the mirror follows the catalog.
	catalog.Rebuild(nil, nil)
	d.SyncCatalog()

	d.mu.Lock()
	assert.Empty(t, d.mirroredTools)
	assert.Empty(t, d.mirroredRes)
	d.mu.Unlock()
}

func TestSyncCatalog_Idempotent(t *testing.T) {
	t.Parallel()

	d, catalog := testDispatcher(t)
	catalog.Rebuild(map[string][]mcp.Tool{"alpha": {{Name: "echo"}}}, nil)

	d.SyncCatalog()
	d.SyncCatalog()

	d.mu.Lock()
	assert.Len(t, d.mirroredTools, 1)
	d.mu.Unlock()
}
