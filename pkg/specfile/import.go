package specfile

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/tailscale/hujson"

	"github.com/mcpgate/mcpgate/pkg/store"
)

// mcpJSONFile mirrors the mcpServers block used by desktop MCP clients.
// Those files often carry comments and trailing commas, so the bytes go
// through hujson before decoding.
type mcpJSONFile struct {
	MCPServers map[string]mcpJSONServer `json:"mcpServers"`
}

type mcpJSONServer struct {
	Type    string            `json:"type,omitempty"`
	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	URL     string            `json:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// ImportMCPJSON reads a desktop-client mcp.json and converts its entries to
// server specs, sorted by id.
func ImportMCPJSON(path string) ([]*store.ServerSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return ParseMCPJSON(data)
}

// ParseMCPJSON converts mcp.json bytes to server specs.
func ParseMCPJSON(data []byte) ([]*store.ServerSpec, error) {
	standard, err := hujson.Standardize(data)
	if err != nil {
		return nil, fmt.Errorf("normalizing mcp.json: %w", err)
	}

	var file mcpJSONFile
	if err := json.Unmarshal(standard, &file); err != nil {
		return nil, fmt.Errorf("parsing mcp.json: %w", err)
	}
	if len(file.MCPServers) == 0 {
		return nil, fmt.Errorf("mcp.json has no mcpServers entries")
	}

	specs := make([]*store.ServerSpec, 0, len(file.MCPServers))
	for id, entry := range file.MCPServers {
		spec, err := convertMCPJSONServer(id, entry)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].ID < specs[j].ID })
	return specs, nil
}

func convertMCPJSONServer(id string, entry mcpJSONServer) (*store.ServerSpec, error) {
	spec := &store.ServerSpec{
		ID:      id,
		Name:    id,
		Command: entry.Command,
		Args:    entry.Args,
		Env:     entry.Env,
		URL:     entry.URL,
		Headers: entry.Headers,
	}

	switch {
	case entry.Command != "":
		spec.Type = "STDIO"
	case entry.URL != "":
		spec.Type = inferRemoteTransport(entry)
	default:
		return nil, fmt.Errorf("server %q: entry has neither command nor url", id)
	}
	return spec, nil
}

// inferRemoteTransport picks between the two HTTP transports. An explicit
// type wins; otherwise a /sse path suffix marks the legacy transport.
func inferRemoteTransport(entry mcpJSONServer) string {
	switch strings.ToLower(entry.Type) {
	case "sse":
		return "SSE"
	case "http", "streamable-http", "streamable_http":
		return "STREAMABLE_HTTP"
	}
	if strings.HasSuffix(strings.TrimRight(entry.URL, "/"), "/sse") {
		return "SSE"
	}
	return "STREAMABLE_HTTP"
}
