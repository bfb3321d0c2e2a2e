package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func testConfig(id string) Config {
	return Config{ServerID: id, Transport: TransportStdio, Command: "true"}
}

// A timed-out call must retire its id so a late response is discarded, and
// the next request must still draw a fresh id.
func TestSession_CallTimeoutRetiresID(t *testing.T) {
	s := newSession(testConfig("srv"))

	var sent []json.RawMessage
	send := func(data []byte) error {
		sent = append(sent, append(json.RawMessage{}, data...))
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := s.call(ctx, send, "tools/call", nil, nil)
	if !errors.Is(err, ErrCallTimeout) {
		t.Fatalf("expected ErrCallTimeout, got %v", err)
	}
	if s.framer.Pending() != 0 {
		t.Errorf("timed-out call left %d waiters", s.framer.Pending())
	}

	// Late response for the timed-out id is dropped without a crash.
	s.framer.Dispatch([]byte(`{"jsonrpc":"2.0","id":1,"result":"late"}`))

	// The next call gets id 2.
	go func() {
		time.Sleep(10 * time.Millisecond)
		s.framer.Dispatch([]byte(`{"jsonrpc":"2.0","id":2,"result":{}}`))
	}()
	if err := s.call(context.Background(), send, "tools/list", nil, nil); err != nil {
		t.Fatalf("follow-up call failed: %v", err)
	}

	if len(sent) != 2 {
		t.Fatalf("expected 2 requests sent, got %d", len(sent))
	}
	var second struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(sent[1], &second); err != nil {
		t.Fatalf("unmarshal second request: %v", err)
	}
	if second.ID != 2 {
		t.Errorf("expected second request id 2, got %d", second.ID)
	}
}

// The initialize request must announce tool support as a flat flag map;
// an empty capabilities object tells the server this client handles nothing.
func TestSession_HandshakeAnnouncesToolsCapability(t *testing.T) {
	s := newSession(testConfig("srv"))

	var sent []json.RawMessage
	send := func(data []byte) error {
		sent = append(sent, append(json.RawMessage{}, data...))
		var req struct {
			ID *int64 `json:"id"`
		}
		json.Unmarshal(data, &req)
		if req.ID != nil {
			go s.framer.Dispatch([]byte(`{"jsonrpc":"2.0","id":1,"result":{"protocolVersion":"2024-11-05","serverInfo":{"name":"peer","version":"1.0"},"capabilities":{"tools":{}}}}`))
		}
		return nil
	}

	if err := s.handshake(context.Background(), send); err != nil {
		t.Fatalf("handshake: %v", err)
	}
	if len(sent) == 0 {
		t.Fatal("nothing sent")
	}

	var env struct {
		Method string `json:"method"`
		Params struct {
			Capabilities json.RawMessage `json:"capabilities"`
		} `json:"params"`
	}
	if err := json.Unmarshal(sent[0], &env); err != nil {
		t.Fatalf("unmarshal initialize request: %v", err)
	}
	if env.Method != "initialize" {
		t.Fatalf("first message was %q, want initialize", env.Method)
	}
	if got := string(env.Params.Capabilities); got != `{"tools":true}` {
		t.Errorf("capabilities on the wire = %s, want {\"tools\":true}", got)
	}
}

func TestSession_CallMapsJSONRPCErrors(t *testing.T) {
	s := newSession(testConfig("srv"))
	send := func(data []byte) error {
		var req struct {
			ID int64 `json:"id"`
		}
		json.Unmarshal(data, &req)
		go s.framer.Dispatch([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32602,"message":"bad args"}}`))
		_ = req
		return nil
	}

	err := s.call(context.Background(), send, "tools/call", nil, nil)
	var te *ToolError
	if !errors.As(err, &te) {
		t.Fatalf("expected ToolError, got %v", err)
	}
	if te.Code != -32602 || te.Message != "bad args" {
		t.Errorf("unexpected tool error: %+v", te)
	}
}

func TestSession_StateListenerSeesTransitions(t *testing.T) {
	var states []ConnState
	cfg := testConfig("srv")
	cfg.Listener = func(id string, state ConnState, err error) {
		if id != "srv" {
			t.Errorf("listener got server id %q", id)
		}
		states = append(states, state)
	}
	s := newSession(cfg)

	s.setState(StateInitializing, nil)
	s.setState(StateReady, nil)
	s.setState(StateReady, nil) // no-op, already there
	s.setState(StateDisconnected, errors.New("gone"))

	want := []ConnState{StateInitializing, StateReady, StateDisconnected}
	if len(states) != len(want) {
		t.Fatalf("expected %d transitions, got %d: %v", len(want), len(states), states)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Errorf("transition %d = %v, want %v", i, states[i], want[i])
		}
	}
}
