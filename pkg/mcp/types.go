package mcp

import (
	"encoding/json"
	"time"
)

// Transport identifies how bytes move to an MCP server.
type Transport string

const (
	TransportStdio      Transport = "STDIO"
	TransportSSE        Transport = "SSE"
	TransportStreamable Transport = "STREAMABLE_HTTP"
)

// ProtocolVersion is the MCP protocol version spoken by this client.
const ProtocolVersion = "2024-11-05"

// Default timeouts for MCP transports.
const (
	// DefaultRequestTimeout is the per-RPC deadline when the spec carries none.
	DefaultRequestTimeout = 60 * time.Second

	// DefaultHandshakeTimeout bounds the SSE endpoint-announcement wait.
	DefaultHandshakeTimeout = 15 * time.Second

	// DefaultStartupTimeout bounds child-process startup for stdio servers.
	DefaultStartupTimeout = 30 * time.Second

	// stdinCloseGracePeriod is how long Close waits after sending EOF before
	// terminating the process group.
	stdinCloseGracePeriod = 2 * time.Second
)

// ServerInfo identifies the peer, reported during the initialize handshake.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ClientInfo identifies this client to the peer.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ClientCapabilities is what this client announces during initialize. The
// client side of the handshake carries flat boolean flags on the wire,
// unlike the object form servers reply with.
type ClientCapabilities struct {
	Tools bool `json:"tools"`
}

// Capabilities describes what a peer advertises.
type Capabilities struct {
	Tools     *ToolsCapability     `json:"tools,omitempty"`
	Resources *ResourcesCapability `json:"resources,omitempty"`
	Prompts   *PromptsCapability   `json:"prompts,omitempty"`
}

// ToolsCapability indicates tools support.
type ToolsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// ResourcesCapability indicates resources support.
type ResourcesCapability struct {
	Subscribe   bool `json:"subscribe,omitempty"`
	ListChanged bool `json:"listChanged,omitempty"`
}

// PromptsCapability indicates prompts support.
type PromptsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// InitializeParams contains parameters for the initialize request.
type InitializeParams struct {
	ProtocolVersion string             `json:"protocolVersion"`
	ClientInfo      ClientInfo         `json:"clientInfo"`
	Capabilities    ClientCapabilities `json:"capabilities"`
}

// InitializeResult is the peer's answer to initialize.
type InitializeResult struct {
	ProtocolVersion string       `json:"protocolVersion"`
	ServerInfo      ServerInfo   `json:"serverInfo"`
	Capabilities    Capabilities `json:"capabilities"`
}

// Tool is an MCP tool definition flattened with its owning server id, so
// downstream consumers can round-trip a call back to the right driver.
type Tool struct {
	ServerName  string          `json:"serverName"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// Resource is an MCP resource descriptor flattened with its server id.
type Resource struct {
	ServerName  string `json:"serverName"`
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// Prompt is an MCP prompt descriptor flattened with its server id.
type Prompt struct {
	ServerName  string           `json:"serverName"`
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Arguments   []PromptArgument `json:"arguments,omitempty"`
}

// PromptArgument describes one prompt parameter.
type PromptArgument struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// ToolsListResult is the response to tools/list.
type ToolsListResult struct {
	Tools []struct {
		Name        string          `json:"name"`
		Description string          `json:"description,omitempty"`
		InputSchema json.RawMessage `json:"inputSchema"`
	} `json:"tools"`
	NextCursor *string `json:"nextCursor,omitempty"`
}

// ResourcesListResult is the response to resources/list.
type ResourcesListResult struct {
	Resources []struct {
		URI         string `json:"uri"`
		Name        string `json:"name"`
		Description string `json:"description,omitempty"`
		MimeType    string `json:"mimeType,omitempty"`
	} `json:"resources"`
}

// PromptsListResult is the response to prompts/list.
type PromptsListResult struct {
	Prompts []struct {
		Name        string           `json:"name"`
		Description string           `json:"description,omitempty"`
		Arguments   []PromptArgument `json:"arguments,omitempty"`
	} `json:"prompts"`
}

// ToolCallParams contains parameters for tools/call.
type ToolCallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// ToolCallResult is the response to tools/call.
type ToolCallResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// Content represents one content item in a tool response.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// NewTextContent creates a text content item.
func NewTextContent(text string) Content {
	return Content{Type: "text", Text: text}
}

// Text concatenates the text items of a tool result.
func (r *ToolCallResult) Text() string {
	var out string
	for _, c := range r.Content {
		if c.Type == "text" {
			out += c.Text
		}
	}
	return out
}
