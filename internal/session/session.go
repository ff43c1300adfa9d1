// Package session owns one live MCP conversation with one upstream server:
// the initialize handshake, inventory tracking, health pings, and reconnect
// with backoff. Request correlation and JSON-RPC framing are delegated to the
// mcp-go client carried by the transport.
package session

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mcp-portal/gateway/internal/contracts"
	"github.com/mcp-portal/gateway/internal/discovery"
	"github.com/mcp-portal/gateway/internal/errors"
)

const (
	// pingInterval paces health checks against a ready upstream.
	pingInterval = 10 * time.Second

	// pingTimeout bounds a single health check.
	pingTimeout = 3 * time.Second

	// stopGrace is how long Stop waits for the run loop to wind down before
	// force-killing the child.
	stopGrace = 5 * time.Second

	clientName = "mcp-portal"
)

// clientVersion is set at build time using -ldflags.
var clientVersion = "dev"

// Conn is one open carrier to an upstream. *transport.Carrier satisfies it.
type Conn interface {
	// MCP returns the client speaking MCP over this connection.
	MCP() contracts.MCPClient

	// Stderr returns the retained tail of the child's stderr output.
	Stderr() string

	// Dead is closed when the carrier observes the upstream going away.
	// May be nil when the carrier has no death signal (SSE).
	Dead() <-chan struct{}

	// Close releases the connection. Idempotent.
	Close() error

	// Kill force-terminates the child process, when there is one.
	Kill()
}

// DialFunc opens a connection for a declaration.
type DialFunc func(ctx context.Context, decl discovery.Server) (Conn, error)

// Events receives session lifecycle callbacks. Implementations must not block:
// callbacks fire on the session's run loop.
type Events interface {
	// StateChanged fires on every state transition.
	StateChanged(name string, state State, lastErr string)

	// InventoryUpdated fires after every successful inventory refresh.
	InventoryUpdated(name string, tools []mcp.Tool, resources []mcp.Resource)

	// Reconnection fires per reconnect attempt with its outcome.
	Reconnection(name string, attempt int, success bool)
}

// Session is the gateway-side half of one upstream MCP conversation.
type Session struct {
	decl   discovery.Server
	dial   DialFunc
	events Events
	logger hclog.Logger

	mu       sync.Mutex
	state    State
	conn     Conn
	lastErr  string
	retries  int
	lastPing time.Time
	notify   chan struct{}

	cancel    context.CancelFunc
	done      chan struct{}
	refreshCh chan struct{}
	checkCh   chan struct{}
}

// New creates a session for the declaration. Start begins connecting.
func New(decl discovery.Server, dial DialFunc, events Events, logger hclog.Logger) *Session {
	return &Session{
		decl:      decl,
		dial:      dial,
		events:    events,
		logger:    logger.Named("session").With("server", decl.Name),
		state:     StateInit,
		notify:    make(chan struct{}),
		done:      make(chan struct{}),
		refreshCh: make(chan struct{}, 1),
		checkCh:   make(chan struct{}, 1),
	}
}

// Name returns the owning declaration's name.
func (s *Session) Name() string {
	return s.decl.Name
}

// Decl returns the declaration the session was created from.
func (s *Session) Decl() discovery.Server {
	return s.decl
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastError returns the most recent failure description, if any.
func (s *Session) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// RetryCount returns the consecutive connect failures so far.
func (s *Session) RetryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retries
}

// LastPing returns the time of the last successful health check or frame.
func (s *Session) LastPing() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPing
}

// Start launches the session's run loop.
func (s *Session) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	go s.run(runCtx)
}

// Stop tears the session down: the run loop is canceled, in-flight calls fail
// with session_closed, and the child is force-killed if it outlives the grace
// period. Safe to call more than once.
func (s *Session) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	conn := s.conn
	started := cancel != nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close()
	}
	if started {
		select {
		case <-s.done:
		case <-time.After(stopGrace):
			s.logger.Warn("session did not stop within grace period")
		}
	}
	if conn != nil {
		conn.Kill()
	}
	s.transition(StateStopped, "")
}

// CallTool forwards a tools/call to the upstream using the tool's original
// name. The effective deadline is the caller's deadline capped by the
// declaration's timeout. While the session is reconnecting the call waits,
// bounded by the same deadline.
func (s *Session) CallTool(ctx context.Context, name string, arguments any) (*mcp.CallToolResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.decl.Timeout())
	defer cancel()

	conn, err := s.awaitReady(callCtx)
	if err != nil {
		return nil, err
	}

	result, err := conn.MCP().CallTool(callCtx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: name, Arguments: arguments},
	})
	if err != nil {
		return nil, s.callError(callCtx, err)
	}

	s.markAlive()
	return result, nil
}

// ReadResource forwards a resources/read to the upstream using the resource's
// original URI.
func (s *Session) ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.decl.Timeout())
	defer cancel()

	conn, err := s.awaitReady(callCtx)
	if err != nil {
		return nil, err
	}

	result, err := conn.MCP().ReadResource(callCtx, mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{URI: uri},
	})
	if err != nil {
		return nil, s.callError(callCtx, err)
	}

	s.markAlive()
	return result, nil
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)

	reconnecting := false

	for {
		if ctx.Err() != nil {
			s.transition(StateStopped, "")
			return
		}

		// A session that was ready stays degraded through its reconnect
		// attempts; only the initial attempts show as connecting.
		if !reconnecting {
			s.transition(StateConnecting, "")
		}

		err := s.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				s.transition(StateStopped, "")
				return
			}

			attempt := s.bumpRetries()
			s.logger.Warn("connect failed", "attempt", attempt, "error", err)
			s.setLastError(err.Error())
			if reconnecting {
				s.events.Reconnection(s.decl.Name, attempt, false)
			}

			if attempt >= s.maxRetries() {
				s.transition(StateFailed, err.Error())
				return
			}

			select {
			case <-ctx.Done():
				s.transition(StateStopped, "")
				return
			case <-time.After(backoff(attempt - 1)):
			}
			continue
		}

		s.resetRetries()
		if reconnecting {
			s.events.Reconnection(s.decl.Name, 1, true)
			reconnecting = false
		}
		s.transition(StateReady, "")

		reason := s.monitor(ctx)
		s.dropConn()

		if ctx.Err() != nil {
			s.transition(StateStopped, "")
			return
		}

		s.logger.Warn("session degraded", "error", reason)
		s.transition(StateDegraded, reason.Error())
		reconnecting = true
	}
}

// connect dials, performs the MCP handshake, and loads the initial inventory.
func (s *Session) connect(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, s.decl.Timeout())
	defer cancel()

	conn, err := s.dial(dialCtx, s.decl)
	if err != nil {
		return err
	}

	initCtx, cancelInit := context.WithTimeout(ctx, s.decl.Timeout())
	defer cancelInit()

	result, err := conn.MCP().Initialize(initCtx, mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			ClientInfo:      mcp.Implementation{Name: clientName, Version: clientVersion},
			Capabilities:    mcp.ClientCapabilities{},
		},
	})
	if err != nil {
		_ = conn.Close()
		conn.Kill()
		if tail := strings.TrimSpace(conn.Stderr()); tail != "" {
			return fmt.Errorf("%w: server '%s': %w (stderr: %s)", errors.ErrHandshakeFailed, s.decl.Name, err, tail)
		}
		return fmt.Errorf("%w: server '%s': %w", errors.ErrHandshakeFailed, s.decl.Name, err)
	}

	s.logger.Info("handshake complete",
		"upstream", result.ServerInfo.Name,
		"version", result.ServerInfo.Version,
		"protocol", result.ProtocolVersion,
	)

	conn.MCP().OnNotification(s.handleNotification)

	s.mu.Lock()
	s.conn = conn
	s.lastPing = time.Now().UTC()
	s.mu.Unlock()

	s.refreshInventory(ctx, conn)

	return nil
}

// monitor watches a ready session until it breaks or the context ends.
func (s *Session) monitor(ctx context.Context) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-conn.Dead():
			if tail := strings.TrimSpace(conn.Stderr()); tail != "" {
				return fmt.Errorf("%w: server '%s' went away (stderr: %s)", errors.ErrTransport, s.decl.Name, tail)
			}
			return fmt.Errorf("%w: server '%s' went away", errors.ErrTransport, s.decl.Name)
		case <-s.refreshCh:
			s.refreshInventory(ctx, conn)
		case <-s.checkCh:
			if err := s.ping(ctx, conn); err != nil {
				return err
			}
		case <-ticker.C:
			if err := s.ping(ctx, conn); err != nil {
				return err
			}
		}
	}
}

func (s *Session) ping(ctx context.Context, conn Conn) error {
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := conn.MCP().Ping(pingCtx); err != nil {
		return fmt.Errorf("%w: server '%s' ping failed: %w", errors.ErrTransport, s.decl.Name, err)
	}

	s.markAlive()
	return nil
}

// refreshInventory re-issues tools/list and resources/list and publishes the
// result. Upstreams without the resources capability are tolerated.
func (s *Session) refreshInventory(ctx context.Context, conn Conn) {
	listCtx, cancel := context.WithTimeout(ctx, s.decl.Timeout())
	defer cancel()

	var tools []mcp.Tool
	if result, err := conn.MCP().ListTools(listCtx, mcp.ListToolsRequest{}); err != nil {
		s.logger.Warn("tools/list failed", "error", err)
	} else if result != nil {
		tools = result.Tools
	}

	var resources []mcp.Resource
	if result, err := conn.MCP().ListResources(listCtx, mcp.ListResourcesRequest{}); err != nil {
		// Many servers only implement tools.
		s.logger.Debug("resources/list failed", "error", err)
	} else if result != nil {
		resources = result.Resources
	}

	s.markAlive()
	s.events.InventoryUpdated(s.decl.Name, tools, resources)
}

func (s *Session) handleNotification(notification mcp.JSONRPCNotification) {
	switch notification.Method {
	case "notifications/tools/list_changed", "notifications/resources/list_changed":
		select {
		case s.refreshCh <- struct{}{}:
		default:
		}
	default:
		s.logger.Debug("ignoring notification", "method", notification.Method)
	}
}

// awaitReady returns the live connection, waiting through a reconnect if the
// session is degraded. The caller's context bounds the wait.
func (s *Session) awaitReady(ctx context.Context) (Conn, error) {
	for {
		s.mu.Lock()
		switch s.state {
		case StateReady:
			conn := s.conn
			s.mu.Unlock()
			return conn, nil
		case StateStopped:
			s.mu.Unlock()
			return nil, fmt.Errorf("%w: server '%s'", errors.ErrSessionClosed, s.decl.Name)
		case StateFailed:
			s.mu.Unlock()
			return nil, fmt.Errorf("%w: server '%s'", errors.ErrUpstreamUnavailable, s.decl.Name)
		}
		ch := s.notify
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: server '%s' not ready before deadline", errors.ErrTimeout, s.decl.Name)
		case <-ch:
		}
	}
}

// callError classifies a failed upstream call.
func (s *Session) callError(ctx context.Context, err error) error {
	if stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: server '%s'", errors.ErrTimeout, s.decl.Name)
	}

	state := s.State()
	if state == StateStopped {
		return fmt.Errorf("%w: server '%s'", errors.ErrSessionClosed, s.decl.Name)
	}
	if state == StateFailed {
		return fmt.Errorf("%w: server '%s'", errors.ErrUpstreamUnavailable, s.decl.Name)
	}

	// The upstream answered with an error, or the connection is quietly broken.
	// Nudge the monitor to verify health without blocking the caller.
	select {
	case s.checkCh <- struct{}{}:
	default:
	}

	return fmt.Errorf("%w: server '%s': %w", errors.ErrUpstream, s.decl.Name, err)
}

// transition moves the state machine, waking any waiters and notifying the
// supervisor. Transitions out of a terminal state are ignored, except
// failed → stopped.
func (s *Session) transition(state State, lastErr string) {
	s.mu.Lock()

	if s.state == state {
		s.mu.Unlock()
		return
	}
	if s.state == StateStopped || (s.state == StateFailed && state != StateStopped) {
		s.mu.Unlock()
		return
	}

	s.state = state
	if lastErr != "" {
		s.lastErr = lastErr
	}
	close(s.notify)
	s.notify = make(chan struct{})
	currentErr := s.lastErr
	s.mu.Unlock()

	s.logger.Debug("state transition", "state", state)
	s.events.StateChanged(s.decl.Name, state, currentErr)
}

func (s *Session) dropConn() {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
		conn.Kill()
	}
}

func (s *Session) setLastError(msg string) {
	s.mu.Lock()
	s.lastErr = msg
	s.mu.Unlock()
}

func (s *Session) markAlive() {
	s.mu.Lock()
	s.lastPing = time.Now().UTC()
	s.retries = 0
	s.mu.Unlock()
}

func (s *Session) bumpRetries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retries++
	return s.retries
}

func (s *Session) resetRetries() {
	s.mu.Lock()
	s.retries = 0
	s.mu.Unlock()
}

func (s *Session) maxRetries() int {
	if s.decl.MaxRetries > 0 {
		return s.decl.MaxRetries
	}
	return discovery.DefaultMaxRetries
}
