package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/mark3labs/mcp-go/mcp"
	"golang.org/x/sync/errgroup"

	"github.com/mcp-portal/gateway/internal/bus"
	"github.com/mcp-portal/gateway/internal/discovery"
	"github.com/mcp-portal/gateway/internal/errors"
	"github.com/mcp-portal/gateway/internal/registry"
	"github.com/mcp-portal/gateway/internal/session"
)

// Supervisor converges live sessions to match the declared server set. One
// reconciliation runs at a time; the sessions it creates start in parallel.
type Supervisor struct {
	logger   hclog.Logger
	registry *registry.Registry
	events   *bus.Bus
	manual   *discovery.ManualStore
	scanner  *discovery.Scanner
	dial     session.DialFunc

	mu       sync.Mutex
	base     context.Context
	sessions map[string]*session.Session
}

// NewSupervisor creates a supervisor over an empty session set.
func NewSupervisor(
	logger hclog.Logger,
	reg *registry.Registry,
	events *bus.Bus,
	manual *discovery.ManualStore,
	scanner *discovery.Scanner,
	dial session.DialFunc,
) *Supervisor {
	return &Supervisor{
		logger:   logger.Named("supervisor"),
		registry: reg,
		events:   events,
		manual:   manual,
		scanner:  scanner,
		dial:     dial,
		sessions: make(map[string]*session.Session),
	}
}

// Start records the base context new sessions inherit. Must be called before
// the first reconciliation.
func (s *Supervisor) Start(ctx context.Context) {
	s.mu.Lock()
	s.base = ctx
	s.mu.Unlock()
}

// Session returns the live session for a server name.
func (s *Supervisor) Session(name string) (*session.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[name]
	return sess, ok
}

// ListServers returns a status snapshot of every declared server.
func (s *Supervisor) ListServers() []registry.ServerStatus {
	return s.registry.ListServers()
}

// Apply converges sessions to a reconciliation delta.
func (s *Supervisor) Apply(delta discovery.Delta) {
	if delta.Empty() {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, decl := range delta.Removed {
		s.logger.Info("server removed", "name", decl.Name)
		s.stopLocked(decl.Name)
		s.registry.RemoveDecl(decl.Name)
	}

	for _, decl := range delta.Changed {
		s.logger.Info("server changed", "name", decl.Name)
		s.stopLocked(decl.Name)
		s.registry.UpsertDecl(decl)
		if decl.Enabled {
			s.startLocked(decl)
		}
	}

	for _, decl := range delta.Added {
		s.logger.Info("server added", "name", decl.Name, "source", decl.Source)
		s.registry.UpsertDecl(decl)
		if decl.Enabled {
			s.startLocked(decl)
		}
	}
}

// Refresh performs a full rescan and reconciles against the current registry.
// Returns the number of discovered declarations.
func (s *Supervisor) Refresh(_ context.Context) (int, error) {
	decls, warnings := s.scanner.Scan()
	for _, warning := range warnings {
		s.events.Publish(bus.KindServerEvent, ServerEventPayload{
			ServerName: warning.Name,
			Kind:       "config_error",
			Message:    warning.Message,
		})
	}

	delta := discovery.Diff(s.registry.Decls(), decls)
	s.Apply(delta)

	s.logger.Info("refresh complete",
		"discovered", len(decls),
		"added", len(delta.Added),
		"changed", len(delta.Changed),
		"removed", len(delta.Removed),
	)

	return len(decls), nil
}

// SetEnabled flips a server's desired state, persisting the override to the
// manual source. Enabling an already-enabled server is a no-op.
func (s *Supervisor) SetEnabled(_ context.Context, name string, enabled bool) (bool, error) {
	decl, ok := s.registry.Decl(name)
	if !ok {
		return false, fmt.Errorf("%w: %s", errors.ErrServerNotFound, name)
	}

	if decl.Enabled == enabled {
		kind := "enable_noop"
		if !enabled {
			kind = "disable_noop"
		}
		s.events.Publish(bus.KindServerEvent, ServerEventPayload{ServerName: name, Kind: kind})
		return false, nil
	}

	if err := s.manual.SetEnabled(decl, enabled); err != nil {
		return false, fmt.Errorf("%w: could not persist enabled override for '%s': %w", errors.ErrConfigInvalid, name, err)
	}

	decl.Enabled = enabled
	s.registry.UpsertDecl(decl)

	s.mu.Lock()
	defer s.mu.Unlock()
	if enabled {
		s.startLocked(decl)
	} else {
		s.stopLocked(name)
		s.registry.SetState(name, session.StateStopped, "")
	}

	return true, nil
}

// Reconnect tears down any existing session for the server and creates a
// fresh one. This is the escape hatch from the failed terminal state.
func (s *Supervisor) Reconnect(_ context.Context, name string) error {
	decl, ok := s.registry.Decl(name)
	if !ok {
		return fmt.Errorf("%w: %s", errors.ErrServerNotFound, name)
	}
	if !decl.Enabled {
		return fmt.Errorf("%w: server '%s' is disabled", errors.ErrBadRequest, name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked(name)
	s.startLocked(decl)

	return nil
}

// StopAll stops every session in parallel and waits for them.
func (s *Supervisor) StopAll() {
	s.mu.Lock()
	sessions := make([]*session.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.sessions = make(map[string]*session.Session)
	s.mu.Unlock()

	var g errgroup.Group
	for _, sess := range sessions {
		g.Go(func() error {
			sess.Stop()
			return nil
		})
	}
	_ = g.Wait()
}

// SessionStates counts live sessions by state, for the metrics gauges.
func (s *Supervisor) SessionStates() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[string]int)
	for _, sess := range s.sessions {
		counts[string(sess.State())]++
	}
	return counts
}

func (s *Supervisor) startLocked(decl discovery.Server) {
	if existing, ok := s.sessions[decl.Name]; ok {
		if !existing.State().Terminal() {
			s.logger.Debug("session already running", "name", decl.Name)
			return
		}
		delete(s.sessions, decl.Name)
	}

	base := s.base
	if base == nil {
		base = context.Background()
	}

	sess := session.New(decl, s.dial, s, s.logger)
	s.sessions[decl.Name] = sess
	sess.Start(base)
}

func (s *Supervisor) stopLocked(name string) {
	sess, ok := s.sessions[name]
	if !ok {
		return
	}
	delete(s.sessions, name)
	// May block up to the session grace period; holding the lock keeps a
	// concurrent start from racing the teardown.
	sess.Stop()
}

// StateChanged implements session.Events.
func (s *Supervisor) StateChanged(name string, state session.State, lastErr string) {
	s.registry.SetState(name, state, lastErr)

	switch state {
	case session.StateReady:
		s.events.Publish(bus.KindServerEvent, ServerEventPayload{ServerName: name, Kind: "connected"})
	case session.StateDegraded:
		s.events.Publish(bus.KindServerEvent, ServerEventPayload{ServerName: name, Kind: "disconnected", Message: lastErr})
	case session.StateFailed:
		s.events.Publish(bus.KindServerEvent, ServerEventPayload{ServerName: name, Kind: "failed", Message: lastErr})
	}
}

// InventoryUpdated implements session.Events.
func (s *Supervisor) InventoryUpdated(name string, tools []mcp.Tool, resources []mcp.Resource) {
	s.registry.UpdateInventory(name, tools, resources)
}

// Reconnection implements session.Events.
func (s *Supervisor) Reconnection(name string, attempt int, success bool) {
	s.events.Publish(bus.KindServerReconnection, ReconnectionPayload{
		ServerName: name,
		Attempt:    attempt,
		Success:    success,
	})
}
