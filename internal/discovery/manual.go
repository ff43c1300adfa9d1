package discovery

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/mcp-portal/gateway/internal/files"
	"github.com/mcp-portal/gateway/internal/perms"
)

// ManualFileName is the file holding the gateway-owned configuration source.
const ManualFileName = "servers.json"

// ManualStore owns the single configuration document the gateway itself may
// write. IDE-owned files are never written through this store.
type ManualStore struct {
	mu   sync.Mutex
	path string
}

// NewManualStore creates a store rooted in the given config directory.
func NewManualStore(configDir string) *ManualStore {
	return &ManualStore{path: filepath.Join(configDir, ManualFileName)}
}

// Path returns the location of the manual source file.
func (m *ManualStore) Path() string {
	return m.path
}

// Dir returns the directory holding the manual source file.
func (m *ManualStore) Dir() string {
	return filepath.Dir(m.path)
}

// Load reads the manual document. A missing file is an empty document, not an
// error.
func (m *ManualStore) Load() (Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.load()
}

func (m *ManualStore) load() (Document, error) {
	doc := Document{MCPServers: map[string]Entry{}}

	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return doc, nil
		}
		return doc, fmt.Errorf("could not read manual config '%s': %w", m.path, err)
	}

	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{MCPServers: map[string]Entry{}}, fmt.Errorf("manual config '%s' is not valid JSON: %w", m.path, err)
	}
	if doc.MCPServers == nil {
		doc.MCPServers = map[string]Entry{}
	}

	return doc, nil
}

// Write replaces the manual document atomically (temp file + rename).
func (m *ManualStore) Write(doc Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.write(doc)
}

func (m *ManualStore) write(doc Document) error {
	if doc.MCPServers == nil {
		doc.MCPServers = map[string]Entry{}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("could not encode manual config: %w", err)
	}
	data = append(data, '\n')

	if err := files.WriteAtomic(m.path, data, perms.RegularFile); err != nil {
		return fmt.Errorf("could not write manual config: %w", err)
	}

	return nil
}

// SetEnabled records an enabled override for the named server in the manual
// source. If the server is not yet present in the manual document, a pinning
// entry is created from the supplied declaration so the override survives the
// next scan regardless of which source declared the server.
func (m *ManualStore) SetEnabled(decl Server, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, err := m.load()
	if err != nil {
		return err
	}

	entry, ok := doc.MCPServers[decl.Name]
	if !ok {
		entry = decl.entry()
	}
	entry.Enabled = &enabled
	doc.MCPServers[decl.Name] = entry

	return m.write(doc)
}

func dirOf(path string) string {
	return filepath.Dir(path)
}
