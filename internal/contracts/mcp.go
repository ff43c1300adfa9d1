// Package contracts holds the small interfaces that decouple the gateway's
// packages from each other and from the MCP client implementation.
package contracts

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

// MCPClient is the slice of the MCP client surface the gateway relies on.
// *client.Client from mark3labs/mcp-go satisfies it.
type MCPClient interface {
	// Initialize performs the MCP handshake with the upstream.
	Initialize(ctx context.Context, request mcp.InitializeRequest) (*mcp.InitializeResult, error)

	// Ping checks the upstream is responsive.
	Ping(ctx context.Context) error

	// ListTools returns the upstream's tool inventory.
	ListTools(ctx context.Context, request mcp.ListToolsRequest) (*mcp.ListToolsResult, error)

	// ListResources returns the upstream's resource inventory.
	ListResources(ctx context.Context, request mcp.ListResourcesRequest) (*mcp.ListResourcesResult, error)

	// CallTool invokes a tool on the upstream.
	CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)

	// ReadResource reads a resource from the upstream.
	ReadResource(ctx context.Context, request mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error)

	// OnNotification registers a handler for server-initiated notifications.
	OnNotification(handler func(notification mcp.JSONRPCNotification))

	// Close tears the connection down. Idempotent; any in-flight calls fail.
	Close() error
}
