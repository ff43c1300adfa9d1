package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/mcp-portal/gateway/internal/aggregator"
)

// ToolsResponse represents the wrapped API response for the aggregated tools.
type ToolsResponse struct {
	Body ToolsResponseBody
}

// ToolsResponseBody is the body of a tools listing.
type ToolsResponseBody struct {
	Tools []aggregator.Tool `json:"tools"`
}

// ResourcesResponse represents the wrapped API response for the aggregated resources.
type ResourcesResponse struct {
	Body ResourcesResponseBody
}

// ResourcesResponseBody is the body of a resources listing.
type ResourcesResponseBody struct {
	Resources []aggregator.Resource `json:"resources"`
}

// RegisterCatalogRoutes sets up the aggregated catalog endpoints.
func RegisterCatalogRoutes(routerAPI huma.API, catalog CatalogReader) {
	huma.Register(
		routerAPI,
		huma.Operation{
			OperationID: "listTools",
			Method:      http.MethodGet,
			Path:        "/tools",
			Summary:     "List aggregated tools",
			Tags:        []string{"Catalog"},
		},
		func(ctx context.Context, _ *struct{}) (*ToolsResponse, error) {
			resp := &ToolsResponse{}
			resp.Body = ToolsResponseBody{Tools: catalog.Tools()}
			return resp, nil
		},
	)

	huma.Register(
		routerAPI,
		huma.Operation{
			OperationID: "listResources",
			Method:      http.MethodGet,
			Path:        "/resources",
			Summary:     "List aggregated resources",
			Tags:        []string{"Catalog"},
		},
		func(ctx context.Context, _ *struct{}) (*ResourcesResponse, error) {
			resp := &ResourcesResponse{}
			resp.Body = ResourcesResponseBody{Resources: catalog.Resources()}
			return resp, nil
		},
	)
}
