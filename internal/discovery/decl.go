// Package discovery scans known IDE configuration locations for MCP server
// declarations, normalizes them into a single deduplicated server list, and
// owns the gateway's manual configuration source.
package discovery

import (
	"fmt"
	"strings"
	"time"
)

// Source identifies the configuration location a declaration was recovered from.
type Source string

const (
	SourceManual   Source = "manual"
	SourceCursor   Source = "cursor"
	SourceVSCode   Source = "vscode"
	SourceClaude   Source = "claude"
	SourceWindsurf Source = "windsurf"
	SourceContinue Source = "continue"
)

// precedence orders sources from highest to lowest priority for name collisions.
var precedence = map[Source]int{
	SourceManual:   0,
	SourceCursor:   1,
	SourceVSCode:   2,
	SourceClaude:   3,
	SourceWindsurf: 4,
	SourceContinue: 5,
}

// TransportHint declares which carrier a server expects.
type TransportHint string

const (
	TransportStdio TransportHint = "stdio"
	TransportSSE   TransportHint = "http_sse"
)

const (
	// DefaultTimeoutSeconds applies when a declaration omits its timeout.
	DefaultTimeoutSeconds = 30

	// DefaultMaxRetries applies when a declaration omits its retry budget.
	DefaultMaxRetries = 3
)

// Server is a normalized MCP server declaration.
type Server struct {
	Name           string            `json:"name"`
	Source         Source            `json:"source"`
	Transport      TransportHint     `json:"transport"`
	Command        string            `json:"command,omitempty"`
	Args           []string          `json:"args,omitempty"`
	Env            map[string]string `json:"env,omitempty"`
	URL            string            `json:"url,omitempty"`
	TimeoutSeconds int               `json:"timeout_seconds"`
	MaxRetries     int               `json:"max_retries"`
	Enabled        bool              `json:"enabled"`
}

// Timeout returns the declaration's timeout as a duration.
func (s Server) Timeout() time.Duration {
	secs := s.TimeoutSeconds
	if secs <= 0 {
		secs = DefaultTimeoutSeconds
	}
	return time.Duration(secs) * time.Second
}

// Equivalent reports whether two declarations describe the same execution plan.
// Name and source are not compared: a declaration that moved between sources
// but is otherwise identical is not a change.
func (s Server) Equivalent(o Server) bool {
	if s.Transport != o.Transport ||
		s.Command != o.Command ||
		s.URL != o.URL ||
		s.TimeoutSeconds != o.TimeoutSeconds ||
		s.MaxRetries != o.MaxRetries ||
		s.Enabled != o.Enabled {
		return false
	}
	if len(s.Args) != len(o.Args) {
		return false
	}
	for i := range s.Args {
		if s.Args[i] != o.Args[i] {
			return false
		}
	}
	if len(s.Env) != len(o.Env) {
		return false
	}
	for k, v := range s.Env {
		if o.Env[k] != v {
			return false
		}
	}
	return true
}

// Validate checks that a declaration can be executed at all.
func (s Server) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("declaration has no name")
	}
	switch s.Transport {
	case TransportStdio:
		if strings.TrimSpace(s.Command) == "" {
			return fmt.Errorf("stdio server '%s' has no command", s.Name)
		}
	case TransportSSE:
		if strings.TrimSpace(s.URL) == "" {
			return fmt.Errorf("http_sse server '%s' has no url", s.Name)
		}
	default:
		return fmt.Errorf("server '%s' has unknown transport '%s'", s.Name, s.Transport)
	}
	return nil
}

// Entry is the tolerant wire shape of one server in a config file. Field names
// vary slightly per IDE; the parser accepts the superset.
type Entry struct {
	Command        string            `json:"command,omitempty"        yaml:"command,omitempty"`
	Args           []string          `json:"args,omitempty"           yaml:"args,omitempty"`
	Env            map[string]string `json:"env,omitempty"            yaml:"env,omitempty"`
	URL            string            `json:"url,omitempty"            yaml:"url,omitempty"`
	Type           string            `json:"type,omitempty"           yaml:"type,omitempty"`
	Transport      string            `json:"transport,omitempty"      yaml:"transport,omitempty"`
	TimeoutSeconds int               `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"`
	MaxRetries     int               `json:"max_retries,omitempty"    yaml:"max_retries,omitempty"`
	Enabled        *bool             `json:"enabled,omitempty"        yaml:"enabled,omitempty"`
}

// Document is the canonical {"mcpServers": {...}} configuration shape, used by
// the manual source and the config REST endpoint.
type Document struct {
	MCPServers map[string]Entry `json:"mcpServers"`
}

// Decl converts an entry into a normalized declaration.
func (e Entry) Decl(name string, source Source) (Server, error) {
	s := Server{
		Name:           name,
		Source:         source,
		Command:        e.Command,
		Args:           append([]string(nil), e.Args...),
		URL:            e.URL,
		TimeoutSeconds: e.TimeoutSeconds,
		MaxRetries:     e.MaxRetries,
		Enabled:        true,
	}
	if len(e.Env) > 0 {
		s.Env = make(map[string]string, len(e.Env))
		for k, v := range e.Env {
			s.Env[k] = v
		}
	}
	if e.Enabled != nil {
		s.Enabled = *e.Enabled
	}
	if s.TimeoutSeconds <= 0 {
		s.TimeoutSeconds = DefaultTimeoutSeconds
	}
	if s.MaxRetries <= 0 {
		s.MaxRetries = DefaultMaxRetries
	}

	// Explicit type/transport key wins, then the shape of the entry decides.
	hint := strings.ToLower(strings.TrimSpace(e.Type))
	if hint == "" {
		hint = strings.ToLower(strings.TrimSpace(e.Transport))
	}
	switch hint {
	case "stdio", "command":
		s.Transport = TransportStdio
	case "sse", "http", "http_sse", "streamable-http":
		s.Transport = TransportSSE
	case "":
		if e.URL != "" {
			s.Transport = TransportSSE
		} else {
			s.Transport = TransportStdio
		}
	default:
		return Server{}, fmt.Errorf("server '%s' declares unsupported transport '%s'", name, hint)
	}

	if err := s.Validate(); err != nil {
		return Server{}, err
	}

	return s, nil
}

// entry converts a declaration back into its wire shape, used when a
// discovered server is persisted into the manual source.
func (s Server) entry() Entry {
	e := Entry{
		Command:        s.Command,
		Args:           append([]string(nil), s.Args...),
		URL:            s.URL,
		TimeoutSeconds: s.TimeoutSeconds,
		MaxRetries:     s.MaxRetries,
	}
	if len(s.Env) > 0 {
		e.Env = make(map[string]string, len(s.Env))
		for k, v := range s.Env {
			e.Env[k] = v
		}
	}
	if s.Transport == TransportSSE {
		e.Type = "sse"
	}
	enabled := s.Enabled
	e.Enabled = &enabled
	return e
}
