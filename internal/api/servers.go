package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/mcp-portal/gateway/internal/registry"
)

// ServersResponse represents the wrapped API response for a list of servers.
type ServersResponse struct {
	Body ServersResponseBody
}

// ServersResponseBody is the body of a servers listing.
type ServersResponseBody struct {
	Servers []registry.ServerStatus `json:"servers"`
}

// ServerActionRequest represents an incoming request naming one server.
type ServerActionRequest struct {
	Name string `doc:"Name of the server" example:"github" path:"name"`
}

// ActionResponse represents the wrapped API response for a server action.
type ActionResponse struct {
	Body ActionResponseBody
}

// ActionResponseBody reports a server action's outcome.
type ActionResponseBody struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// RefreshResponse represents the wrapped API response for a discovery refresh.
type RefreshResponse struct {
	Body RefreshResponseBody
}

// RefreshResponseBody wraps the refresh result.
type RefreshResponseBody struct {
	Data RefreshData `json:"data"`
}

// RefreshData carries the discovery refresh outcome.
type RefreshData struct {
	DiscoveredCount int `json:"discovered_count"`
}

// RegisterServerRoutes sets up the server management endpoints.
func RegisterServerRoutes(routerAPI huma.API, manager ServerManager, apiPathPrefix string) {
	serversAPI := huma.NewGroup(routerAPI, apiPathPrefix)
	tags := []string{"Servers"}

	huma.Register(
		serversAPI,
		huma.Operation{
			OperationID: "listServers",
			Method:      http.MethodGet,
			Summary:     "List all servers",
			Tags:        tags,
		},
		func(ctx context.Context, _ *struct{}) (*ServersResponse, error) {
			return handleServers(manager)
		},
	)

	huma.Register(
		serversAPI,
		huma.Operation{
			OperationID: "enableServer",
			Method:      http.MethodPost,
			Path:        "/{name}/enable",
			Summary:     "Enable a server",
			Tags:        tags,
		},
		func(ctx context.Context, input *ServerActionRequest) (*ActionResponse, error) {
			return handleSetEnabled(ctx, manager, input.Name, true)
		},
	)

	huma.Register(
		serversAPI,
		huma.Operation{
			OperationID: "disableServer",
			Method:      http.MethodPost,
			Path:        "/{name}/disable",
			Summary:     "Disable a server",
			Tags:        tags,
		},
		func(ctx context.Context, input *ServerActionRequest) (*ActionResponse, error) {
			return handleSetEnabled(ctx, manager, input.Name, false)
		},
	)

	huma.Register(
		serversAPI,
		huma.Operation{
			OperationID: "reconnectServer",
			Method:      http.MethodPost,
			Path:        "/{name}/reconnect",
			Summary:     "Reconnect a server",
			Tags:        tags,
		},
		func(ctx context.Context, input *ServerActionRequest) (*ActionResponse, error) {
			if err := manager.Reconnect(ctx, input.Name); err != nil {
				return nil, err
			}
			resp := &ActionResponse{}
			resp.Body = ActionResponseBody{Success: true, Message: fmt.Sprintf("reconnecting server '%s'", input.Name)}
			return resp, nil
		},
	)

	huma.Register(
		serversAPI,
		huma.Operation{
			OperationID: "refreshServers",
			Method:      http.MethodPost,
			Path:        "/refresh",
			Summary:     "Rescan config sources and reconcile",
			Tags:        tags,
		},
		func(ctx context.Context, _ *struct{}) (*RefreshResponse, error) {
			count, err := manager.Refresh(ctx)
			if err != nil {
				return nil, err
			}
			resp := &RefreshResponse{}
			resp.Body = RefreshResponseBody{Data: RefreshData{DiscoveredCount: count}}
			return resp, nil
		},
	)
}

// handleServers returns the status of all declared MCP servers.
func handleServers(manager ServerManager) (*ServersResponse, error) {
	resp := &ServersResponse{}
	resp.Body = ServersResponseBody{Servers: manager.ListServers()}
	return resp, nil
}

// handleSetEnabled flips a server's desired state and reports the outcome.
func handleSetEnabled(ctx context.Context, manager ServerManager, name string, enabled bool) (*ActionResponse, error) {
	changed, err := manager.SetEnabled(ctx, name, enabled)
	if err != nil {
		return nil, err
	}

	verb := "enabled"
	if !enabled {
		verb = "disabled"
	}
	message := fmt.Sprintf("server '%s' %s", name, verb)
	if !changed {
		message = fmt.Sprintf("server '%s' already %s", name, verb)
	}

	resp := &ActionResponse{}
	resp.Body = ActionResponseBody{Success: true, Message: message}
	return resp, nil
}
