package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// fakeStreamableServer answers POSTs synchronously and hands out a session
// id on the first response.
type fakeStreamableServer struct {
	t         *testing.T
	srv       *httptest.Server
	sessionID string // empty means sessionless

	mu             sync.Mutex
	seenSessionIDs []string
}

func newFakeStreamableServer(t *testing.T, sessionID string) *fakeStreamableServer {
	f := &fakeStreamableServer{t: t, sessionID: sessionID}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /mcp", func(w http.ResponseWriter, r *http.Request) {
		// No companion stream in this fake.
		http.Error(w, "no stream", http.StatusMethodNotAllowed)
	})
	mux.HandleFunc("POST /mcp", f.handlePost)
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeStreamableServer) url() string {
	return f.srv.URL + "/mcp"
}

func (f *fakeStreamableServer) handlePost(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.seenSessionIDs = append(f.seenSessionIDs, r.Header.Get(sessionIDHeader))
	f.mu.Unlock()

	body, _ := io.ReadAll(r.Body)
	var env struct {
		ID     *int64 `json:"id"`
		Method string `json:"method"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	if f.sessionID != "" {
		w.Header().Set(sessionIDHeader, f.sessionID)
	}
	if env.ID == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	switch env.Method {
	case "initialize":
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%d,"result":{"protocolVersion":"2024-11-05","serverInfo":{"name":"fake-streamable","version":"0.2.0"},"capabilities":{"tools":{}}}}`, *env.ID)
	case "tools/call":
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%d,"result":{"content":[{"type":"text","text":"pong"}]}}`, *env.ID)
	default:
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%d,"error":{"code":-32601,"message":"method not found"}}`, *env.ID)
	}
}

func (f *fakeStreamableServer) sessions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.seenSessionIDs...)
}

func TestStreamableDriver_SessionHeaderEchoed(t *testing.T) {
	fake := newFakeStreamableServer(t, "sess-abc123")

	d, err := newStreamableDriver(Config{
		ServerID:  "st-1",
		Transport: TransportStreamable,
		Endpoint:  fake.url(),
	})
	if err != nil {
		t.Fatalf("newStreamableDriver: %v", err)
	}
	defer d.Close()

	if err := d.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if d.State() != StateReady {
		t.Fatalf("expected READY, got %v", d.State())
	}

	var result ToolCallResult
	if err := d.Call(context.Background(), "tools/call", ToolCallParams{Name: "ping"}, &result); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if result.Text() != "pong" {
		t.Errorf("unexpected result text %q", result.Text())
	}

	// First POST carries no session id; every later one echoes the server's.
	sessions := fake.sessions()
	if len(sessions) < 3 {
		t.Fatalf("expected at least 3 POSTs, got %d", len(sessions))
	}
	if sessions[0] != "" {
		t.Errorf("first POST must not carry a session id, got %q", sessions[0])
	}
	for i, sid := range sessions[1:] {
		if sid != "sess-abc123" {
			t.Errorf("POST %d carried session id %q, want sess-abc123", i+1, sid)
		}
	}
}

func TestStreamableDriver_SessionlessServerTolerated(t *testing.T) {
	fake := newFakeStreamableServer(t, "")

	d, err := newStreamableDriver(Config{ServerID: "st-1", Transport: TransportStreamable, Endpoint: fake.url()})
	if err != nil {
		t.Fatalf("newStreamableDriver: %v", err)
	}
	defer d.Close()

	if err := d.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}

	var result ToolCallResult
	if err := d.Call(context.Background(), "tools/call", ToolCallParams{Name: "ping"}, &result); err != nil {
		t.Fatalf("Call: %v", err)
	}
	for i, sid := range fake.sessions() {
		if sid != "" {
			t.Errorf("POST %d carried unexpected session id %q", i, sid)
		}
	}
}

func TestStreamableDriver_CompanionStreamDeliversResponses(t *testing.T) {
	// This fake accepts the GET upgrade and answers tools/call over the
	// companion stream instead of the POST body.
	push := make(chan string, 4)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /mcp", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.(http.Flusher).Flush()
		for {
			select {
			case <-r.Context().Done():
				return
			case env := <-push:
				fmt.Fprintf(w, "event: message\ndata: %s\n\n", env)
				w.(http.Flusher).Flush()
			}
		}
	})
	mux.HandleFunc("POST /mcp", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var env struct {
			ID     *int64 `json:"id"`
			Method string `json:"method"`
		}
		json.Unmarshal(body, &env)
		if env.ID == nil {
			w.WriteHeader(http.StatusAccepted)
			return
		}
		switch env.Method {
		case "initialize":
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%d,"result":{"protocolVersion":"2024-11-05","serverInfo":{"name":"fake","version":"0"},"capabilities":{}}}`, *env.ID)
		default:
			// Async: 202 now, answer on the companion stream.
			w.WriteHeader(http.StatusAccepted)
			push <- fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"result":{"content":[{"type":"text","text":"async"}]}}`, *env.ID)
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	d, err := newStreamableDriver(Config{ServerID: "st-1", Transport: TransportStreamable, Endpoint: srv.URL + "/mcp"})
	if err != nil {
		t.Fatalf("newStreamableDriver: %v", err)
	}
	defer d.Close()

	if err := d.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}

	var result ToolCallResult
	if err := d.Call(context.Background(), "tools/call", ToolCallParams{Name: "slow"}, &result); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if result.Text() != "async" {
		t.Errorf("unexpected result text %q", result.Text())
	}
}
