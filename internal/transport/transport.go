// Package transport opens the carrier for one MCP session: a child process
// speaking newline-delimited JSON-RPC over stdio, or an HTTP+SSE stream.
// JSON-RPC framing and request correlation are handled by the mcp-go client;
// this package owns process spawning, stderr capture and force-kill.
package transport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"reflect"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/mark3labs/mcp-go/client"

	"github.com/mcp-portal/gateway/internal/contracts"
	"github.com/mcp-portal/gateway/internal/discovery"
	"github.com/mcp-portal/gateway/internal/errors"
	"github.com/mcp-portal/gateway/internal/runtime"
)

// killGrace is how long a child gets between SIGTERM and SIGKILL.
const killGrace = 2 * time.Second

// Carrier is one live connection to an upstream MCP server.
type Carrier struct {
	// Client speaks MCP over the carrier.
	Client contracts.MCPClient

	stderr  *StderrRing
	process *os.Process
	dead    chan struct{}
	logger  hclog.Logger
}

// MCP returns the client speaking MCP over this carrier.
func (c *Carrier) MCP() contracts.MCPClient {
	return c.Client
}

// Dead is closed when the carrier observes the upstream going away (for stdio,
// the child's stderr reaching EOF). Nil for carriers with no death signal.
func (c *Carrier) Dead() <-chan struct{} {
	return c.dead
}

// Dialer opens carriers for server declarations.
type Dialer struct {
	logger hclog.Logger
}

// NewDialer creates a dialer.
func NewDialer(logger hclog.Logger) *Dialer {
	return &Dialer{logger: logger.Named("transport")}
}

// Dial opens the appropriate carrier for the declaration. The connection is
// established but not yet initialized; the MCP handshake belongs to the session.
func (d *Dialer) Dial(ctx context.Context, decl discovery.Server) (*Carrier, error) {
	switch decl.Transport {
	case discovery.TransportStdio:
		return d.dialStdio(decl)
	case discovery.TransportSSE:
		return d.dialSSE(ctx, decl)
	default:
		return nil, fmt.Errorf("%w: server '%s' has unknown transport '%s'", errors.ErrConfigInvalid, decl.Name, decl.Transport)
	}
}

func (d *Dialer) dialStdio(decl discovery.Server) (*Carrier, error) {
	spawn, err := runtime.Normalize(decl)
	if err != nil {
		return nil, err
	}

	logger := d.logger.With("server", decl.Name)
	logger.Debug("spawning stdio server", "command", spawn.Path, "args", spawn.Args)

	stdioClient, err := client.NewStdioMCPClient(spawn.Path, spawn.Env, spawn.Args...)
	if err != nil {
		return nil, fmt.Errorf("%w: server '%s': %w", errors.ErrSpawnFailed, decl.Name, err)
	}

	c := &Carrier{
		Client:  stdioClient,
		stderr:  &StderrRing{},
		process: extractProcess(stdioClient),
		dead:    make(chan struct{}),
		logger:  logger,
	}

	// Without a stderr pipe there is no death signal; the dead channel simply
	// never fires and health pings carry the load.
	if stderr, ok := client.GetStderr(stdioClient); ok {
		go c.drainStderr(stderr)
	}

	return c, nil
}

func (d *Dialer) dialSSE(ctx context.Context, decl discovery.Server) (*Carrier, error) {
	sseClient, err := client.NewSSEMCPClient(decl.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: server '%s': %w", errors.ErrTransport, decl.Name, err)
	}
	if err := sseClient.Start(ctx); err != nil {
		_ = sseClient.Close()
		return nil, fmt.Errorf("%w: server '%s': %w", errors.ErrTransport, decl.Name, err)
	}

	return &Carrier{
		Client: sseClient,
		stderr: &StderrRing{},
		logger: d.logger.With("server", decl.Name),
	}, nil
}

// Stderr returns the retained tail of the child's stderr. Empty for SSE carriers.
func (c *Carrier) Stderr() string {
	return c.stderr.String()
}

// Close releases the carrier. Idempotent: closing an already-closed carrier is
// a no-op at the OS level.
func (c *Carrier) Close() error {
	return c.Client.Close()
}

// Kill force-terminates the child process: SIGTERM, a short grace, then
// SIGKILL. No-op for carriers without a process.
func (c *Carrier) Kill() {
	if c.process == nil {
		return
	}

	if err := c.process.Signal(syscall.SIGTERM); err != nil {
		// Already gone.
		return
	}

	done := make(chan struct{})
	go func() {
		_, _ = c.process.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(killGrace):
		c.logger.Warn("child ignored SIGTERM, sending SIGKILL")
		_ = c.process.Kill()
	}
}

func (c *Carrier) drainStderr(stderr io.Reader) {
	defer close(c.dead)

	reader := bufio.NewReader(stderr)
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			_, _ = c.stderr.Write([]byte(line))
			c.logger.Debug("stderr", "line", line)
		}
		if err != nil {
			if err != io.EOF {
				c.logger.Debug("stderr drain ended", "error", err)
			}
			return
		}
	}
}

// extractProcess pulls the underlying OS process out of the stdio transport so
// shutdown can force-kill a child that ignores a closed stdin. Uses reflection
// against the transport's Cmd field; returns nil when the shape is unexpected,
// which only disables force-kill.
func extractProcess(mcpClient *client.Client) *os.Process {
	if mcpClient == nil {
		return nil
	}

	transport := mcpClient.GetTransport()
	if transport == nil {
		return nil
	}

	transportVal := reflect.ValueOf(transport)
	if transportVal.Kind() == reflect.Ptr {
		if transportVal.IsNil() {
			return nil
		}
		transportVal = transportVal.Elem()
	}

	cmdField := transportVal.FieldByName("Cmd")
	if !cmdField.IsValid() || cmdField.Kind() != reflect.Ptr || cmdField.IsNil() {
		return nil
	}

	processField := cmdField.Elem().FieldByName("Process")
	if !processField.IsValid() || processField.IsNil() {
		return nil
	}

	process, _ := processField.Interface().(*os.Process)
	return process
}
