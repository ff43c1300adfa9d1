package gateway

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/xeipuuv/gojsonschema"

	"github.com/mcp-portal/gateway/internal/aggregator"
	"github.com/mcp-portal/gateway/internal/bus"
	"github.com/mcp-portal/gateway/internal/errors"
	"github.com/mcp-portal/gateway/internal/metrics"
	"github.com/mcp-portal/gateway/internal/session"
)

// mcpBasePath is where the unified MCP endpoint is mounted.
const mcpBasePath = "/api/v1/mcp"

// SessionResolver locates the live session owning a server name.
type SessionResolver interface {
	Session(name string) (*session.Session, bool)
}

// Dispatcher serves the unified MCP surface: the aggregated catalog re-served
// over one MCP server, with calls routed to the owning upstream session.
type Dispatcher struct {
	logger    hclog.Logger
	catalog   *aggregator.Catalog
	resolver  SessionResolver
	events    *bus.Bus
	collector *metrics.Collector

	mcpServer *server.MCPServer
	sse       *server.SSEServer

	mu            sync.Mutex
	mirroredTools map[string]struct{}
	mirroredRes   map[string]struct{}
}

// NewDispatcher creates the dispatcher and its MCP server mirror.
func NewDispatcher(
	logger hclog.Logger,
	catalog *aggregator.Catalog,
	resolver SessionResolver,
	events *bus.Bus,
	collector *metrics.Collector,
	version string,
) *Dispatcher {
	d := &Dispatcher{
		logger:        logger.Named("dispatcher"),
		catalog:       catalog,
		resolver:      resolver,
		events:        events,
		collector:     collector,
		mirroredTools: make(map[string]struct{}),
		mirroredRes:   make(map[string]struct{}),
	}

	d.mcpServer = server.NewMCPServer(
		"mcp-portal",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
	)
	d.sse = server.NewSSEServer(
		d.mcpServer,
		server.WithStaticBasePath(mcpBasePath),
	)

	return d
}

// Handler returns the HTTP handler for the unified MCP endpoint (SSE channel
// plus its POST message endpoint).
func (d *Dispatcher) Handler() http.Handler {
	return d.sse
}

// SyncCatalog reconciles the MCP server mirror with the current catalog. The
// mirror's clients observe tools/list_changed and resources/list_changed
// notifications from the mcp-go server as entries come and go.
func (d *Dispatcher) SyncCatalog() {
	tools := d.catalog.Tools()
	resources := d.catalog.Resources()

	d.mu.Lock()
	defer d.mu.Unlock()

	wantTools := make(map[string]struct{}, len(tools))
	for _, entry := range tools {
		wantTools[entry.PrefixedName] = struct{}{}
	}

	var stale []string
	for name := range d.mirroredTools {
		if _, ok := wantTools[name]; !ok {
			stale = append(stale, name)
			delete(d.mirroredTools, name)
		}
	}
	if len(stale) > 0 {
		d.mcpServer.DeleteTools(stale...)
	}

	for _, entry := range tools {
		if _, ok := d.mirroredTools[entry.PrefixedName]; ok {
			continue
		}
		d.mirroredTools[entry.PrefixedName] = struct{}{}

		mirrored := mcp.Tool{
			Name:           entry.PrefixedName,
			Description:    entry.Description,
			RawInputSchema: entry.InputSchema,
		}
		prefixed := entry.PrefixedName
		d.mcpServer.AddTool(mirrored, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return d.CallTool(ctx, prefixed, request.GetArguments())
		})
	}

	wantRes := make(map[string]struct{}, len(resources))
	for _, entry := range resources {
		wantRes[entry.PrefixedURI] = struct{}{}
	}
	for uri := range d.mirroredRes {
		if _, ok := wantRes[uri]; !ok {
			delete(d.mirroredRes, uri)
			d.mcpServer.RemoveResource(uri)
		}
	}
	for _, entry := range resources {
		if _, ok := d.mirroredRes[entry.PrefixedURI]; ok {
			continue
		}
		d.mirroredRes[entry.PrefixedURI] = struct{}{}

		mirrored := mcp.Resource{
			URI:         entry.PrefixedURI,
			Name:        entry.Name,
			Description: entry.Description,
			MIMEType:    entry.MIMEType,
		}
		prefixed := entry.PrefixedURI
		d.mcpServer.AddResource(mirrored, func(ctx context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
			result, err := d.ReadResource(ctx, prefixed)
			if err != nil {
				return nil, err
			}
			return result.Contents, nil
		})
	}
}

// CallTool resolves a prefixed tool name, validates the arguments against the
// tool's declared schema, and forwards the call to the owning session. The
// upstream result is returned verbatim.
func (d *Dispatcher) CallTool(ctx context.Context, prefixedName string, arguments map[string]any) (*mcp.CallToolResult, error) {
	entry, ok := d.catalog.ResolveTool(prefixedName)
	if !ok {
		return nil, fmt.Errorf("%w: tool '%s'", errors.ErrNotFound, prefixedName)
	}

	if err := d.validateArguments(entry, arguments); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	sess, ok := d.resolver.Session(entry.ServerName)
	if !ok {
		return nil, fmt.Errorf("%w: server '%s'", errors.ErrUpstreamUnavailable, entry.ServerName)
	}

	started := time.Now()
	result, err := sess.CallTool(ctx, entry.OriginalName, arguments)
	duration := time.Since(started)

	payload := ToolExecutionPayload{
		ServerName: entry.ServerName,
		Tool:       entry.OriginalName,
		Success:    err == nil,
		DurationMS: duration.Milliseconds(),
	}
	if err != nil {
		payload.Error = err.Error()
	}
	d.events.Publish(bus.KindToolExecution, payload)
	d.collector.ToolExecution(entry.ServerName, duration, err == nil)

	if err != nil {
		return nil, err
	}
	return result, nil
}

// ReadResource resolves a prefixed resource URI and forwards the read to the
// owning session.
func (d *Dispatcher) ReadResource(ctx context.Context, prefixedURI string) (*mcp.ReadResourceResult, error) {
	entry, ok := d.catalog.ResolveResource(prefixedURI)
	if !ok {
		return nil, fmt.Errorf("%w: resource '%s'", errors.ErrNotFound, prefixedURI)
	}

	sess, ok := d.resolver.Session(entry.ServerName)
	if !ok {
		return nil, fmt.Errorf("%w: server '%s'", errors.ErrUpstreamUnavailable, entry.ServerName)
	}

	started := time.Now()
	result, err := sess.ReadResource(ctx, entry.OriginalURI)
	duration := time.Since(started)

	payload := ResourceAccessPayload{
		ServerName: entry.ServerName,
		URI:        entry.OriginalURI,
		Success:    err == nil,
		DurationMS: duration.Milliseconds(),
	}
	if err != nil {
		payload.Error = err.Error()
	}
	d.events.Publish(bus.KindResourceAccess, payload)
	d.collector.ResourceRead(entry.ServerName, duration, err == nil)

	if err != nil {
		return nil, err
	}
	return result, nil
}

// validateArguments checks call arguments against the tool's input schema
// before anything reaches the upstream. Tools without a schema accept
// anything.
func (d *Dispatcher) validateArguments(entry aggregator.Tool, arguments map[string]any) error {
	if len(entry.InputSchema) == 0 {
		return nil
	}

	if arguments == nil {
		arguments = map[string]any{}
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(entry.InputSchema),
		gojsonschema.NewGoLoader(arguments),
	)
	if err != nil {
		// A schema the validator cannot parse must not block the call.
		d.logger.Debug("argument validation skipped", "tool", entry.PrefixedName, "error", err)
		return nil
	}
	if result.Valid() {
		return nil
	}

	msg := fmt.Sprintf("invalid arguments for '%s'", entry.PrefixedName)
	for _, issue := range result.Errors() {
		msg = fmt.Sprintf("%s; %s", msg, issue.String())
	}
	return fmt.Errorf("%w: %s", errors.ErrBadRequest, msg)
}
