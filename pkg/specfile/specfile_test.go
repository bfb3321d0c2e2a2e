package specfile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpgate/mcpgate/pkg/store"
)

const sampleYAML = `
servers:
  - id: web
    type: STREAMABLE_HTTP
    url: https://mcp.example.com/mcp
    headers:
      Authorization: Bearer tok
    timeoutSeconds: 30
  - id: fs
    name: Filesystem
    type: STDIO
    command: npx
    args: ["-y", "@modelcontextprotocol/server-filesystem", "/data"]
    env:
      LOG_LEVEL: debug
  - id: legacy
    type: SSE
    url: https://old.example.com/sse
    disabled: true
`

func TestParse(t *testing.T) {
	f, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)
	require.Len(t, f.Servers, 3)

	specs := f.Specs()
	require.Len(t, specs, 3)
	assert.Equal(t, "fs", specs[0].ID, "specs must be sorted by id")
	assert.Equal(t, "Filesystem", specs[0].Name)
	assert.Equal(t, []string{"-y", "@modelcontextprotocol/server-filesystem", "/data"}, specs[0].Args)
	assert.Equal(t, "legacy", specs[1].ID)
	assert.True(t, specs[1].Disabled)
	assert.Equal(t, "web", specs[2].ID, "name defaults to id")
	assert.Equal(t, "web", specs[2].Name)
	assert.Equal(t, 30, specs[2].TimeoutSeconds)
	assert.Equal(t, map[string]string{"Authorization": "Bearer tok"}, specs[2].Headers)
}

func TestParse_Invalid(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{"missing id", "servers:\n  - type: STDIO\n    command: npx\n", "id is required"},
		{"duplicate id", "servers:\n  - id: a\n    type: STDIO\n    command: x\n  - id: a\n    type: STDIO\n    command: y\n", "duplicate id"},
		{"stdio without command", "servers:\n  - id: a\n    type: STDIO\n", "need a command"},
		{"sse without url", "servers:\n  - id: a\n    type: SSE\n", "need a url"},
		{"unknown transport", "servers:\n  - id: a\n    type: WEBSOCKET\n", "unknown type"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestComputeDiff(t *testing.T) {
	old := []*store.ServerSpec{
		{ID: "keep", Type: "STDIO", Command: "npx"},
		{ID: "change", Type: "STDIO", Command: "npx", Args: []string{"-y", "old"}},
		{ID: "drop", Type: "SSE", URL: "https://x/sse"},
	}
	new := []*store.ServerSpec{
		{ID: "keep", Type: "STDIO", Command: "npx"},
		{ID: "change", Type: "STDIO", Command: "npx", Args: []string{"-y", "new"}},
		{ID: "fresh", Type: "STREAMABLE_HTTP", URL: "https://y/mcp"},
	}

	diff := ComputeDiff(old, new)
	require.Len(t, diff.Added, 1)
	assert.Equal(t, "fresh", diff.Added[0].ID)
	require.Len(t, diff.Removed, 1)
	assert.Equal(t, "drop", diff.Removed[0].ID)
	require.Len(t, diff.Modified, 1)
	assert.Equal(t, "change", diff.Modified[0].ID)
	assert.False(t, diff.IsEmpty())
	assert.Equal(t, "1 added, 1 removed, 1 modified", diff.Summary())
}

func TestComputeDiff_IgnoresTimestampsAndOrder(t *testing.T) {
	old := []*store.ServerSpec{
		{ID: "a", Type: "STDIO", Command: "x", Env: map[string]string{"K": "v"}},
		{ID: "b", Type: "SSE", URL: "https://b/sse"},
	}
	new := []*store.ServerSpec{
		{ID: "b", Type: "SSE", URL: "https://b/sse"},
		{ID: "a", Type: "STDIO", Command: "x", Env: map[string]string{"K": "v"}},
	}
	assert.True(t, ComputeDiff(old, new).IsEmpty())
}

func TestComputeDiff_EnvAndDisabledChanges(t *testing.T) {
	old := []*store.ServerSpec{{ID: "a", Type: "STDIO", Command: "x", Env: map[string]string{"K": "v1"}}}

	envChanged := []*store.ServerSpec{{ID: "a", Type: "STDIO", Command: "x", Env: map[string]string{"K": "v2"}}}
	assert.Len(t, ComputeDiff(old, envChanged).Modified, 1)

	disabled := []*store.ServerSpec{{ID: "a", Type: "STDIO", Command: "x", Env: map[string]string{"K": "v1"}, Disabled: true}}
	assert.Len(t, ComputeDiff(old, disabled).Modified, 1)
}

func TestComputeDiff_HeaderChanges(t *testing.T) {
	old := []*store.ServerSpec{{ID: "a", Type: "SSE", URL: "https://a/sse", Headers: map[string]string{"Authorization": "Bearer v1"}}}

	rotated := []*store.ServerSpec{{ID: "a", Type: "SSE", URL: "https://a/sse", Headers: map[string]string{"Authorization": "Bearer v2"}}}
	assert.Len(t, ComputeDiff(old, rotated).Modified, 1)

	same := []*store.ServerSpec{{ID: "a", Type: "SSE", URL: "https://a/sse", Headers: map[string]string{"Authorization": "Bearer v1"}}}
	assert.True(t, ComputeDiff(old, same).IsEmpty())
}

func TestParseMCPJSON(t *testing.T) {
	// Desktop clients allow comments and trailing commas.
	input := `{
  // local filesystem access
  "mcpServers": {
    "filesystem": {
      "command": "npx",
      "args": ["-y", "@modelcontextprotocol/server-filesystem", "/tmp"],
      "env": {"LOG_LEVEL": "info"},
    },
    "search": {
      "url": "https://search.example.com/mcp",
      "headers": {"Authorization": "Bearer tok"},
    },
    "legacy": {
      "type": "sse",
      "url": "https://legacy.example.com/events",
    },
    "feeds": {
      "url": "https://feeds.example.com/sse",
    },
  },
}`

	specs, err := ParseMCPJSON([]byte(input))
	require.NoError(t, err)
	require.Len(t, specs, 4)

	byID := make(map[string]*store.ServerSpec)
	for _, s := range specs {
		byID[s.ID] = s
	}

	assert.Equal(t, "STDIO", byID["filesystem"].Type)
	assert.Equal(t, "npx", byID["filesystem"].Command)
	assert.Equal(t, "info", byID["filesystem"].Env["LOG_LEVEL"])

	assert.Equal(t, "STREAMABLE_HTTP", byID["search"].Type, "bare url defaults to streamable http")
	assert.Equal(t, "Bearer tok", byID["search"].Headers["Authorization"])
	assert.Equal(t, "SSE", byID["legacy"].Type, "explicit type wins")
	assert.Equal(t, "SSE", byID["feeds"].Type, "/sse suffix marks the legacy transport")
}

func TestParseMCPJSON_Invalid(t *testing.T) {
	_, err := ParseMCPJSON([]byte(`{"mcpServers": {}}`))
	require.Error(t, err)

	_, err = ParseMCPJSON([]byte(`{"mcpServers": {"broken": {}}}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "neither command nor url")
}
