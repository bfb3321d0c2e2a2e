package mcp

import (
	"errors"
	"fmt"
)

// ErrCallTimeout is returned when a call's deadline elapses before the
// server answers. The underlying request id is retired so a late response
// is discarded rather than misdelivered.
var ErrCallTimeout = errors.New("call timed out")

// ErrClosed is returned for operations on a driver after Close.
var ErrClosed = errors.New("driver closed")

// TransportError wraps a connection-level failure: dial errors, broken
// pipes, unexpected HTTP statuses, process exits.
type TransportError struct {
	Transport Transport
	Op        string
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s transport: %s: %v", e.Transport, e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolError indicates the peer answered with malformed or unexpected
// content: an undecodable envelope, a missing handshake field, a result
// that does not match the request.
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol error: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("protocol error: %s", e.Reason)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// ToolError carries a well-formed JSON-RPC error object returned by the
// server for a tool call. The connection stays healthy.
type ToolError struct {
	Code    int
	Message string
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool error %d: %s", e.Code, e.Message)
}
