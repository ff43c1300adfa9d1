// Package registry holds the gateway's authoritative in-memory state: the
// declared servers, their lifecycle states, and their last-known inventories.
// Reads are consistent snapshots; mutations hold a single write lock for short
// critical sections, so partial updates are never observable.
package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mcp-portal/gateway/internal/bus"
	"github.com/mcp-portal/gateway/internal/discovery"
	"github.com/mcp-portal/gateway/internal/session"
)

// ServerStatus is the externally visible state of one declared server.
type ServerStatus struct {
	Name          string                  `json:"name"`
	Source        discovery.Source        `json:"source"`
	Transport     discovery.TransportHint `json:"transport"`
	Enabled       bool                    `json:"enabled"`
	Status        session.State           `json:"status"`
	ToolCount     int                     `json:"tool_count"`
	ResourceCount int                     `json:"resource_count"`
	LastError     string                  `json:"last_error,omitempty"`
	LastPingAt    *time.Time              `json:"last_ping_at,omitempty"`
	RetryCount    int                     `json:"retry_count,omitempty"`
}

// serverRuntime is the mutable slice of one server's state.
type serverRuntime struct {
	state    session.State
	lastErr  string
	lastPing *time.Time
	retries  int
}

// Registry is safe for concurrent use by multiple goroutines.
type Registry struct {
	mu        sync.RWMutex
	logger    hclog.Logger
	events    *bus.Bus
	decls     map[string]discovery.Server
	runtime   map[string]*serverRuntime
	tools     map[string][]mcp.Tool
	resources map[string][]mcp.Resource
	onChange  func()
}

// New creates an empty registry publishing its changes onto the given bus.
func New(logger hclog.Logger, events *bus.Bus) *Registry {
	return &Registry{
		logger:    logger.Named("registry"),
		events:    events,
		decls:     make(map[string]discovery.Server),
		runtime:   make(map[string]*serverRuntime),
		tools:     make(map[string][]mcp.Tool),
		resources: make(map[string][]mcp.Resource),
	}
}

// SetOnChange registers the callback invoked after any mutation that can
// affect the aggregated catalog. Must be set before sessions start.
func (r *Registry) SetOnChange(fn func()) {
	r.mu.Lock()
	r.onChange = fn
	r.mu.Unlock()
}

// UpsertDecl records a declaration, creating or replacing its entry.
func (r *Registry) UpsertDecl(decl discovery.Server) {
	r.mu.Lock()
	r.decls[decl.Name] = decl
	if _, ok := r.runtime[decl.Name]; !ok {
		r.runtime[decl.Name] = &serverRuntime{state: session.StateStopped}
	}
	r.mu.Unlock()
}

// RemoveDecl forgets a declaration and all its derived state.
func (r *Registry) RemoveDecl(name string) {
	r.mu.Lock()
	delete(r.decls, name)
	delete(r.runtime, name)
	delete(r.tools, name)
	delete(r.resources, name)
	fn := r.onChange
	r.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// Decl returns the declaration for a server name.
func (r *Registry) Decl(name string) (discovery.Server, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	decl, ok := r.decls[name]
	return decl, ok
}

// Decls returns all declarations, sorted by name.
func (r *Registry) Decls() []discovery.Server {
	r.mu.RLock()
	defer r.mu.RUnlock()

	decls := make([]discovery.Server, 0, len(r.decls))
	for _, decl := range r.decls {
		decls = append(decls, decl)
	}
	sort.Slice(decls, func(i, j int) bool { return decls[i].Name < decls[j].Name })

	return decls
}

// ListServers returns a consistent snapshot of every server's status, sorted
// by name.
func (r *Registry) ListServers() []ServerStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	statuses := make([]ServerStatus, 0, len(r.decls))
	for name := range r.decls {
		statuses = append(statuses, r.statusLocked(name))
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Name < statuses[j].Name })

	return statuses
}

// Status returns the status snapshot for one server.
func (r *Registry) Status(name string) (ServerStatus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.decls[name]; !ok {
		return ServerStatus{}, false
	}
	return r.statusLocked(name), true
}

func (r *Registry) statusLocked(name string) ServerStatus {
	decl := r.decls[name]
	status := ServerStatus{
		Name:      decl.Name,
		Source:    decl.Source,
		Transport: decl.Transport,
		Enabled:   decl.Enabled,
		Status:    session.StateStopped,
	}

	if rt, ok := r.runtime[name]; ok {
		status.Status = rt.state
		status.LastError = rt.lastErr
		status.LastPingAt = rt.lastPing
		status.RetryCount = rt.retries
	}
	status.ToolCount = len(r.tools[name])
	status.ResourceCount = len(r.resources[name])

	return status
}

// SetState records a session state transition and broadcasts a status update.
// Leaving the ready state clears the server's slice of the catalog.
func (r *Registry) SetState(name string, state session.State, lastErr string) {
	r.mu.Lock()
	rt, ok := r.runtime[name]
	if !ok {
		rt = &serverRuntime{}
		r.runtime[name] = rt
	}
	wasReady := rt.state == session.StateReady
	rt.state = state
	rt.lastErr = lastErr
	if state == session.StateReady {
		now := time.Now().UTC()
		rt.lastPing = &now
	}
	if state.Terminal() {
		delete(r.tools, name)
		delete(r.resources, name)
	}
	snapshot := r.statusLocked(name)
	fn := r.onChange
	r.mu.Unlock()

	r.events.Publish(bus.KindStatusUpdate, snapshot)

	if fn != nil && (wasReady || state == session.StateReady || state.Terminal()) {
		fn()
	}
}

// UpdateInventory atomically swaps a server's tool and resource inventories.
func (r *Registry) UpdateInventory(name string, tools []mcp.Tool, resources []mcp.Resource) {
	r.mu.Lock()
	if _, ok := r.decls[name]; !ok {
		r.mu.Unlock()
		r.logger.Warn("dropping inventory for unknown server", "name", name)
		return
	}
	r.tools[name] = append([]mcp.Tool(nil), tools...)
	r.resources[name] = append([]mcp.Resource(nil), resources...)
	snapshot := r.statusLocked(name)
	fn := r.onChange
	r.mu.Unlock()

	r.logger.Debug("inventory updated", "server", name, "tools", len(tools), "resources", len(resources))
	r.events.Publish(bus.KindStatusUpdate, snapshot)

	if fn != nil {
		fn()
	}
}

// ReadyInventories returns the tool and resource inventories of every server
// currently in the ready state, as one consistent snapshot.
func (r *Registry) ReadyInventories() (map[string][]mcp.Tool, map[string][]mcp.Resource) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make(map[string][]mcp.Tool)
	resources := make(map[string][]mcp.Resource)
	for name, rt := range r.runtime {
		if rt.state != session.StateReady {
			continue
		}
		tools[name] = append([]mcp.Tool(nil), r.tools[name]...)
		resources[name] = append([]mcp.Resource(nil), r.resources[name]...)
	}

	return tools, resources
}

// RecordEvent appends an event to the bus.
func (r *Registry) RecordEvent(kind bus.Kind, data any) {
	r.events.Publish(kind, data)
}
