// Package api registers the gateway's REST operations. Handlers work against
// the small interfaces wired in from the gateway, so they test with fakes.
package api

import (
	"context"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/mcp-portal/gateway/internal/aggregator"
	"github.com/mcp-portal/gateway/internal/discovery"
	"github.com/mcp-portal/gateway/internal/registry"
)

// ServerManager drives declared servers: listing, desired-state flips, and
// reconciliation. The gateway supervisor implements it.
type ServerManager interface {
	// ListServers returns a status snapshot of every declared server.
	ListServers() []registry.ServerStatus

	// SetEnabled flips a server's desired state. Returns false when the flip
	// was a no-op.
	SetEnabled(ctx context.Context, name string, enabled bool) (bool, error)

	// Reconnect recreates the server's session.
	Reconnect(ctx context.Context, name string) error

	// Refresh rescans all config sources and reconciles. Returns the number of
	// discovered declarations.
	Refresh(ctx context.Context) (int, error)
}

// CatalogReader reads the aggregated catalog.
type CatalogReader interface {
	Tools() []aggregator.Tool
	Resources() []aggregator.Resource
}

// ConfigStore reads and replaces the manual configuration source.
type ConfigStore interface {
	Load() (discovery.Document, error)
	Write(doc discovery.Document) error
}

// Dependencies carries everything the API routes need.
type Dependencies struct {
	Manager   ServerManager
	Catalog   CatalogReader
	Config    ConfigStore
	StartedAt time.Time
}

// RegisterRoutes registers all REST operations on the provided router group.
func RegisterRoutes(routerAPI huma.API, deps Dependencies) {
	RegisterServerRoutes(routerAPI, deps.Manager, "/servers")
	RegisterCatalogRoutes(routerAPI, deps.Catalog)
	RegisterConfigRoutes(routerAPI, deps.Config, deps.Manager, "/config")
	RegisterHealthRoutes(routerAPI, deps.StartedAt, "/health")
}
