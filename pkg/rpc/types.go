// Package rpc exposes the gateway to the chat orchestrator over gRPC. The
// message types are plain structs moved by a JSON codec, so no generated
// stubs are involved; the service descriptor is declared by hand.
package rpc

import (
	"encoding/json"

	"github.com/mcpgate/mcpgate/pkg/mcp"
	"github.com/mcpgate/mcpgate/pkg/registry"
)

// CallToolRequest asks one server to execute one tool.
type CallToolRequest struct {
	ServerID  string         `json:"serverId"`
	ToolName  string         `json:"toolName"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// CallToolResponse reports the outcome of a tool execution.
type CallToolResponse struct {
	Success         bool            `json:"success"`
	Result          json.RawMessage `json:"result,omitempty"`
	Error           string          `json:"error,omitempty"`
	ExecutionTimeMs int64           `json:"executionTimeMs"`
}

// ServerFilter selects one server or, when empty, all ready servers.
type ServerFilter struct {
	ServerID string `json:"serverId,omitempty"`
}

// ListToolsResponse aggregates tool descriptors across servers.
type ListToolsResponse struct {
	Tools []mcp.Tool `json:"tools"`
}

// ListResourcesResponse aggregates resource descriptors across servers.
type ListResourcesResponse struct {
	Resources []mcp.Resource `json:"resources"`
}

// ListPromptsResponse aggregates prompt descriptors across servers.
type ListPromptsResponse struct {
	Prompts []mcp.Prompt `json:"prompts"`
}

// GetHealthResponse carries per-server health views.
type GetHealthResponse struct {
	Servers []*registry.Health `json:"servers"`
}

// ServerRequest names one server for Reconnect and Shutdown.
type ServerRequest struct {
	ServerID string `json:"serverId"`
}

// Ack is the empty success reply.
type Ack struct{}
