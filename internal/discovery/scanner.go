package discovery

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/hashicorp/go-hclog"
	"gopkg.in/yaml.v3"
)

// parseFunc extracts the raw server entries from one config file's bytes.
type parseFunc func(data []byte) (map[string]Entry, error)

// Warning records a declaration that was dropped during a scan, either because
// it failed to parse or because a higher-precedence source already claimed its
// name. Warnings surface as config_error server events.
type Warning struct {
	Source  Source `json:"source"`
	Name    string `json:"name,omitempty"`
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
}

// Scanner walks the known config locations and produces a deduplicated,
// precedence-resolved declaration list.
type Scanner struct {
	logger hclog.Logger
	home   string
	manual *ManualStore
}

// NewScanner creates a scanner rooted at the given home directory.
// The manual store is the gateway-owned source and always wins precedence.
func NewScanner(logger hclog.Logger, home string, manual *ManualStore) *Scanner {
	return &Scanner{
		logger: logger.Named("discovery"),
		home:   home,
		manual: manual,
	}
}

// Scan performs a synchronous full rescan. Failures are per-file: a config
// location that is missing, unreadable or malformed is logged and skipped,
// never aborting the scan. The returned list is sorted by name.
func (s *Scanner) Scan() ([]Server, []Warning) {
	var warnings []Warning
	byName := make(map[string]Server)

	keep := func(decl Server) {
		existing, ok := byName[decl.Name]
		if !ok {
			byName[decl.Name] = decl
			return
		}
		// Same name from two sources: lower precedence loses.
		loser := decl
		if precedence[decl.Source] < precedence[existing.Source] {
			byName[decl.Name] = decl
			loser = existing
		}
		warnings = append(warnings, Warning{
			Source:  loser.Source,
			Name:    loser.Name,
			Message: fmt.Sprintf("duplicate server '%s' from source '%s', lower precedence dropped", loser.Name, loser.Source),
		})
		s.logger.Warn("dropping duplicate server declaration", "name", loser.Name, "source", loser.Source)
	}

	// Manual source first so it wins every collision.
	doc, err := s.manual.Load()
	if err != nil {
		warnings = append(warnings, Warning{Source: SourceManual, Path: s.manual.Path(), Message: err.Error()})
		s.logger.Warn("failed to load manual config", "path", s.manual.Path(), "error", err)
	} else {
		for name, entry := range doc.MCPServers {
			decl, err := entry.Decl(name, SourceManual)
			if err != nil {
				warnings = append(warnings, Warning{Source: SourceManual, Name: name, Message: err.Error()})
				s.logger.Warn("invalid manual server declaration", "name", name, "error", err)
				continue
			}
			keep(decl)
		}
	}

	for _, loc := range sourceLocations(s.home) {
		data, err := os.ReadFile(loc.path)
		if err != nil {
			if !os.IsNotExist(err) {
				s.logger.Debug("skipping unreadable config location", "path", loc.path, "error", err)
			}
			continue
		}

		entries, err := loc.parse(data)
		if err != nil {
			warnings = append(warnings, Warning{Source: loc.source, Path: loc.path, Message: err.Error()})
			s.logger.Warn("failed to parse config file", "path", loc.path, "error", err)
			continue
		}

		s.logger.Debug("parsed config location", "source", loc.source, "path", loc.path, "servers", len(entries))

		for name, entry := range entries {
			decl, err := entry.Decl(name, loc.source)
			if err != nil {
				warnings = append(warnings, Warning{Source: loc.source, Name: name, Path: loc.path, Message: err.Error()})
				s.logger.Warn("invalid server declaration", "name", name, "path", loc.path, "error", err)
				continue
			}
			keep(decl)
		}
	}

	decls := make([]Server, 0, len(byName))
	for _, decl := range byName {
		decls = append(decls, decl)
	}
	sort.Slice(decls, func(i, j int) bool { return decls[i].Name < decls[j].Name })

	s.logger.Info("discovery scan complete", "servers", len(decls), "warnings", len(warnings))

	return decls, warnings
}

// WatchPaths returns the directories a watcher should observe for this scanner,
// limited to those that exist.
func (s *Scanner) WatchPaths() []string {
	seen := make(map[string]struct{})
	var dirs []string

	consider := func(path string) {
		if _, ok := seen[path]; ok {
			return
		}
		seen[path] = struct{}{}
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			dirs = append(dirs, path)
		}
	}

	consider(s.manual.Dir())
	for _, loc := range sourceLocations(s.home) {
		consider(dirOf(loc.path))
	}

	return dirs
}

func parseCanonical(data []byte) (map[string]Entry, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("not valid JSON: %w", err)
	}
	return doc.MCPServers, nil
}

// parseVSCode reads settings.json, where MCP servers live under "mcp.servers";
// some extensions write the canonical "mcpServers" key instead.
func parseVSCode(data []byte) (map[string]Entry, error) {
	var settings struct {
		MCP struct {
			Servers map[string]Entry `json:"servers"`
		} `json:"mcp"`
		MCPServers map[string]Entry `json:"mcpServers"`
	}
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("not valid JSON: %w", err)
	}
	if len(settings.MCP.Servers) > 0 {
		return settings.MCP.Servers, nil
	}
	return settings.MCPServers, nil
}

func parseContinue(data []byte) (map[string]Entry, error) {
	var cfg struct {
		MCP struct {
			Servers map[string]Entry `json:"servers"`
		} `json:"mcp"`
		MCPServers map[string]Entry `json:"mcpServers"`
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("not valid JSON: %w", err)
	}
	if len(cfg.MCP.Servers) > 0 {
		return cfg.MCP.Servers, nil
	}
	return cfg.MCPServers, nil
}

func parseContinueYAML(data []byte) (map[string]Entry, error) {
	var cfg struct {
		MCP struct {
			Servers map[string]Entry `yaml:"servers"`
		} `yaml:"mcp"`
		MCPServers map[string]Entry `yaml:"mcpServers"`
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("not valid YAML: %w", err)
	}
	if len(cfg.MCP.Servers) > 0 {
		return cfg.MCP.Servers, nil
	}
	return cfg.MCPServers, nil
}
