// Package aggregator maintains the unified catalog: every ready session's
// tools and resources under stable, collision-free prefixed identifiers.
package aggregator

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/mark3labs/mcp-go/mcp"
)

// resourceScheme prefixes rewritten resource URIs.
const resourceScheme = "mcp://"

// Tool is one catalog entry for a tool, keyed by its prefixed name.
type Tool struct {
	PrefixedName string          `json:"prefixed_name"`
	ServerName   string          `json:"server_name"`
	OriginalName string          `json:"original_name"`
	Description  string          `json:"description,omitempty"`
	InputSchema  json.RawMessage `json:"parameters,omitempty"`
}

// Resource is one catalog entry for a resource, keyed by its prefixed URI.
type Resource struct {
	PrefixedURI string `json:"prefixed_uri"`
	ServerName  string `json:"server_name"`
	OriginalURI string `json:"original_uri"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	MIMEType    string `json:"mime_type,omitempty"`
}

// Catalog is the aggregated view. Rebuilds swap the whole catalog atomically;
// readers always observe a complete one.
type Catalog struct {
	mu          sync.RWMutex
	logger      hclog.Logger
	tools       []Tool
	toolIndex   map[string]Tool
	resources   []Resource
	resourceIdx map[string]Resource
}

// New creates an empty catalog.
func New(logger hclog.Logger) *Catalog {
	return &Catalog{
		logger:      logger.Named("aggregator"),
		toolIndex:   map[string]Tool{},
		resourceIdx: map[string]Resource{},
	}
}

// Rebuild derives the catalog from the ready sessions' inventories. Prefixed
// identifiers are unique: in the rare case two entries still collide after
// prefixing, later ones get a #2, #3, … suffix, assigned in server-name order
// so the result is deterministic.
func (c *Catalog) Rebuild(tools map[string][]mcp.Tool, resources map[string][]mcp.Resource) {
	toolIndex := make(map[string]Tool)
	resourceIdx := make(map[string]Resource)

	for _, server := range sortedKeys(tools) {
		for _, tool := range tools[server] {
			entry := Tool{
				PrefixedName: disambiguate(server+"."+tool.Name, func(key string) bool {
					_, taken := toolIndex[key]
					return taken
				}),
				ServerName:   server,
				OriginalName: tool.Name,
				Description:  tool.Description,
				InputSchema:  toolSchema(tool),
			}
			toolIndex[entry.PrefixedName] = entry
		}
	}

	for _, server := range sortedKeys(resources) {
		for _, resource := range resources[server] {
			entry := Resource{
				PrefixedURI: disambiguate(prefixURI(server, resource.URI), func(key string) bool {
					_, taken := resourceIdx[key]
					return taken
				}),
				ServerName:  server,
				OriginalURI: resource.URI,
				Name:        resource.Name,
				Description: resource.Description,
				MIMEType:    resource.MIMEType,
			}
			resourceIdx[entry.PrefixedURI] = entry
		}
	}

	toolList := make([]Tool, 0, len(toolIndex))
	for _, entry := range toolIndex {
		toolList = append(toolList, entry)
	}
	sort.Slice(toolList, func(i, j int) bool { return toolList[i].PrefixedName < toolList[j].PrefixedName })

	resourceList := make([]Resource, 0, len(resourceIdx))
	for _, entry := range resourceIdx {
		resourceList = append(resourceList, entry)
	}
	sort.Slice(resourceList, func(i, j int) bool { return resourceList[i].PrefixedURI < resourceList[j].PrefixedURI })

	c.mu.Lock()
	c.tools = toolList
	c.toolIndex = toolIndex
	c.resources = resourceList
	c.resourceIdx = resourceIdx
	c.mu.Unlock()

	c.logger.Debug("catalog rebuilt", "tools", len(toolList), "resources", len(resourceList))
}

// Tools returns the catalog's tools in stable (prefixed name) order.
func (c *Catalog) Tools() []Tool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Tool(nil), c.tools...)
}

// Resources returns the catalog's resources in stable (prefixed URI) order.
func (c *Catalog) Resources() []Resource {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Resource(nil), c.resources...)
}

// ResolveTool maps a prefixed tool name back to its owning server and the
// tool's original name.
func (c *Catalog) ResolveTool(prefixedName string) (Tool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.toolIndex[prefixedName]
	return entry, ok
}

// ResolveResource maps a prefixed resource URI back to its owning server and
// the resource's original URI.
func (c *Catalog) ResolveResource(prefixedURI string) (Resource, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.resourceIdx[prefixedURI]
	return entry, ok
}

// prefixURI rewrites a resource URI into the gateway's namespace. URIs that
// are already absolute (carry a scheme) are preserved verbatim so external
// references keep working.
func prefixURI(server, uri string) string {
	if hasScheme(uri) {
		return uri
	}
	return resourceScheme + server + "/" + strings.TrimPrefix(uri, "/")
}

// hasScheme reports whether the URI starts with a scheme per RFC 3986
// (ALPHA *( ALPHA / DIGIT / "+" / "-" / "." ) ":").
func hasScheme(uri string) bool {
	for i, r := range uri {
		switch {
		case r == ':':
			return i > 0
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
		case i > 0 && ((r >= '0' && r <= '9') || r == '+' || r == '-' || r == '.'):
		default:
			return false
		}
	}
	return false
}

func disambiguate(key string, taken func(string) bool) string {
	if !taken(key) {
		return key
	}
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s#%d", key, n)
		if !taken(candidate) {
			return candidate
		}
	}
}

func toolSchema(tool mcp.Tool) json.RawMessage {
	if len(tool.RawInputSchema) > 0 {
		return append(json.RawMessage(nil), tool.RawInputSchema...)
	}
	data, err := json.Marshal(tool.InputSchema)
	if err != nil {
		return nil
	}
	return data
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
