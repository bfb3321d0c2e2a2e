package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"
)

// TestHelperProcess is not a real test: re-executed as a child it acts as a
// minimal MCP server on stdin/stdout.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	defer os.Exit(0)

	fmt.Fprintln(os.Stderr, "fake server started")

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		var env struct {
			ID     *int64          `json:"id"`
			Method string          `json:"method"`
			Params json.RawMessage `json:"params"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &env); err != nil {
			continue
		}
		if env.Method == "crash" {
			os.Exit(3)
		}
		if env.ID == nil {
			continue
		}
		switch env.Method {
		case "initialize":
			fmt.Printf(`{"jsonrpc":"2.0","id":%d,"result":{"protocolVersion":"2024-11-05","serverInfo":{"name":"fake-stdio","version":"0.3.0"},"capabilities":{"tools":{}}}}`+"\n", *env.ID)
		case "tools/call":
			var params ToolCallParams
			json.Unmarshal(env.Params, &params)
			fmt.Printf(`{"jsonrpc":"2.0","id":%d,"result":{"content":[{"type":"text","text":"called %s"}]}}`+"\n", *env.ID, params.Name)
		default:
			fmt.Printf(`{"jsonrpc":"2.0","id":%d,"error":{"code":-32601,"message":"method not found"}}`+"\n", *env.ID)
		}
	}
}

func helperConfig(t *testing.T, listener StateListener) Config {
	t.Helper()
	return Config{
		ServerID:  "stdio-1",
		Transport: TransportStdio,
		Command:   os.Args[0],
		Args:      []string{"-test.run=TestHelperProcess", "--"},
		Env:       map[string]string{"GO_WANT_HELPER_PROCESS": "1"},
		Listener:  listener,
	}
}

func TestStdioDriver_HandshakeAndCall(t *testing.T) {
	d, err := newStdioDriver(helperConfig(t, nil))
	if err != nil {
		t.Fatalf("newStdioDriver: %v", err)
	}
	defer d.Close()

	if err := d.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if d.State() != StateReady {
		t.Fatalf("expected READY, got %v", d.State())
	}
	if info := d.ServerInfo(); info == nil || info.Name != "fake-stdio" {
		t.Errorf("unexpected server info: %+v", info)
	}
	if caps := d.Capabilities(); caps == nil || caps.Tools == nil {
		t.Errorf("expected tools capability, got %+v", caps)
	}

	var result ToolCallResult
	if err := d.Call(context.Background(), "tools/call", ToolCallParams{Name: "echo"}, &result); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if result.Text() != "called echo" {
		t.Errorf("unexpected result text %q", result.Text())
	}
}

func TestStdioDriver_CloseIsIdempotent(t *testing.T) {
	d, err := newStdioDriver(helperConfig(t, nil))
	if err != nil {
		t.Fatalf("newStdioDriver: %v", err)
	}
	if err := d.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if d.State() != StateClosed {
		t.Errorf("expected CLOSED, got %v", d.State())
	}
	if err := d.Call(context.Background(), "tools/list", nil, nil); err == nil {
		t.Error("expected Call after Close to fail")
	}
}

func TestStdioDriver_ProcessExitReportsDisconnect(t *testing.T) {
	var mu sync.Mutex
	var last ConnState
	d, err := newStdioDriver(helperConfig(t, func(id string, state ConnState, err error) {
		mu.Lock()
		last = state
		mu.Unlock()
	}))
	if err != nil {
		t.Fatalf("newStdioDriver: %v", err)
	}
	defer d.Close()

	if err := d.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}

	// The helper exits with code 3 on this notification.
	if err := d.Notify(context.Background(), "crash", nil); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		mu.Lock()
		state := last
		mu.Unlock()
		if state == StateDisconnected {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("driver never reported DISCONNECTED, last state %v", state)
		case <-time.After(10 * time.Millisecond):
		}
	}
	if d.State() != StateDisconnected {
		t.Errorf("expected DISCONNECTED, got %v", d.State())
	}
}
