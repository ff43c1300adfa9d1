package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/mcp-portal/gateway/internal/discovery"
	"github.com/mcp-portal/gateway/internal/errors"
)

// ConfigResponse represents the wrapped API response for the manual config document.
type ConfigResponse struct {
	Body discovery.Document
}

// ConfigUpdateRequest represents an incoming config replacement.
type ConfigUpdateRequest struct {
	Body discovery.Document
}

// ConfigUpdateResponse represents the wrapped API response for a config write.
type ConfigUpdateResponse struct {
	Body ConfigUpdateResponseBody
}

// ConfigUpdateResponseBody wraps the config write outcome.
type ConfigUpdateResponseBody struct {
	Data ConfigUpdateData `json:"data"`
}

// ConfigUpdateData carries the config write outcome.
type ConfigUpdateData struct {
	UpdatedServers int `json:"updated_servers"`
}

// RegisterConfigRoutes sets up the manual configuration endpoints. Writes go
// only to the gateway-owned manual source, never to IDE-owned files, and every
// write triggers a reconciliation.
func RegisterConfigRoutes(routerAPI huma.API, store ConfigStore, manager ServerManager, apiPathPrefix string) {
	configAPI := huma.NewGroup(routerAPI, apiPathPrefix)
	tags := []string{"Config"}

	huma.Register(
		configAPI,
		huma.Operation{
			OperationID: "getConfig",
			Method:      http.MethodGet,
			Summary:     "Get the manual configuration document",
			Tags:        tags,
		},
		func(ctx context.Context, _ *struct{}) (*ConfigResponse, error) {
			return handleConfigGet(store)
		},
	)

	huma.Register(
		configAPI,
		huma.Operation{
			OperationID: "setConfig",
			Method:      http.MethodPost,
			Summary:     "Replace the manual configuration document",
			Tags:        tags,
		},
		func(ctx context.Context, input *ConfigUpdateRequest) (*ConfigUpdateResponse, error) {
			return handleConfigSet(ctx, store, manager, input.Body)
		},
	)
}

// handleConfigGet returns the manual configuration document.
func handleConfigGet(store ConfigStore) (*ConfigResponse, error) {
	doc, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrConfigInvalid, err)
	}
	return &ConfigResponse{Body: doc}, nil
}

// handleConfigSet validates and persists a replacement document, then
// reconciles live sessions against it.
func handleConfigSet(
	ctx context.Context,
	store ConfigStore,
	manager ServerManager,
	doc discovery.Document,
) (*ConfigUpdateResponse, error) {
	if doc.MCPServers == nil {
		doc.MCPServers = map[string]discovery.Entry{}
	}

	// Reject documents with undeclarable entries before persisting.
	for name, entry := range doc.MCPServers {
		if _, err := entry.Decl(name, discovery.SourceManual); err != nil {
			return nil, fmt.Errorf("%w: %w", errors.ErrConfigInvalid, err)
		}
	}

	if err := store.Write(doc); err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrConfigInvalid, err)
	}
	if _, err := manager.Refresh(ctx); err != nil {
		return nil, err
	}

	resp := &ConfigUpdateResponse{}
	resp.Body = ConfigUpdateResponseBody{Data: ConfigUpdateData{UpdatedServers: len(doc.MCPServers)}}
	return resp, nil
}
