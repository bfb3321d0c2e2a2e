package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/mcpgate/mcpgate/pkg/jsonrpc"
)

// session holds the state shared by every driver: the framer, the lifecycle
// state machine, and the handshake results. Drivers embed it and supply a
// send function that writes one serialized message to the wire.
type session struct {
	cfg    Config
	logger *slog.Logger
	framer *jsonrpc.Framer

	state atomic.Int32

	mu           sync.RWMutex
	capabilities *Capabilities
	serverInfo   *ServerInfo
}

func newSession(cfg Config) *session {
	logger := cfg.logger().With("server", cfg.ServerID, "transport", string(cfg.Transport))
	s := &session{
		cfg:    cfg,
		logger: logger,
		framer: jsonrpc.NewFramer(logger),
	}
	s.state.Store(int32(StateConnecting))
	return s
}

func (s *session) State() ConnState {
	return ConnState(s.state.Load())
}

// setState transitions the lifecycle state and notifies the listener.
func (s *session) setState(state ConnState, err error) {
	old := ConnState(s.state.Swap(int32(state)))
	if old == state {
		return
	}
	s.logger.Debug("connection state changed", "from", old.String(), "to", state.String())
	if s.cfg.Listener != nil {
		s.cfg.Listener(s.cfg.ServerID, state, err)
	}
}

func (s *session) Capabilities() *Capabilities {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.capabilities
}

func (s *session) ServerInfo() *ServerInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.serverInfo
}

// call issues one request through send and blocks for the response. The
// default per-call deadline applies when ctx has none. On deadline expiry
// the id is retired so a late response is dropped, and the next request
// still gets a fresh id.
func (s *session) call(ctx context.Context, send func([]byte) error, method string, params, result any) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.requestTimeout())
		defer cancel()
	}

	id, data, ch, err := s.framer.NewRequest(method, params)
	if err != nil {
		return err
	}

	if err := send(data); err != nil {
		s.framer.Retire(id)
		return err
	}

	select {
	case <-ctx.Done():
		s.framer.Retire(id)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%s: %w", method, ErrCallTimeout)
		}
		return ctx.Err()

	case res := <-ch:
		if res.Err != nil {
			return res.Err
		}
		if res.Response.Error != nil {
			return &ToolError{Code: res.Response.Error.Code, Message: res.Response.Error.Message}
		}
		if result != nil && res.Response.Result != nil {
			if err := json.Unmarshal(res.Response.Result, result); err != nil {
				return &ProtocolError{Reason: "decoding " + method + " result", Err: err}
			}
		}
		return nil
	}
}

// notify sends a notification through send.
func (s *session) notify(send func([]byte) error, method string, params any) error {
	data, err := s.framer.NewNotification(method, params)
	if err != nil {
		return err
	}
	return send(data)
}

// handshake runs the initialize exchange: an initialize request, recording
// the peer's capabilities and identity, then the initialized notification.
// Completing it moves the session to READY.
func (s *session) handshake(ctx context.Context, send func([]byte) error) error {
	s.setState(StateInitializing, nil)

	var result InitializeResult
	params := InitializeParams{
		ProtocolVersion: ProtocolVersion,
		ClientInfo:      ClientInfo{Name: "mcpgate", Version: "1.0.0"},
		Capabilities:    ClientCapabilities{Tools: true},
	}
	if err := s.call(ctx, send, "initialize", params, &result); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	if result.ProtocolVersion == "" {
		return &ProtocolError{Reason: "initialize result missing protocolVersion"}
	}

	s.mu.Lock()
	s.capabilities = &result.Capabilities
	s.serverInfo = &result.ServerInfo
	s.mu.Unlock()

	if err := s.notify(send, "notifications/initialized", nil); err != nil {
		return fmt.Errorf("initialized notification: %w", err)
	}

	s.setState(StateReady, nil)
	s.logger.Info("server initialized",
		"name", result.ServerInfo.Name,
		"version", result.ServerInfo.Version,
		"protocol", result.ProtocolVersion)
	return nil
}

// fail moves the session to DISCONNECTED and completes outstanding calls.
func (s *session) fail(err error) {
	s.framer.Fail(err)
	s.setState(StateDisconnected, err)
}
