// Package jsonrpc implements the JSON-RPC 2.0 framing used by MCP transports:
// request/notification construction, envelope decoding, and response routing
// to per-call waiters.
package jsonrpc

import "encoding/json"

// Version is the literal protocol version carried by every message.
const Version = "2.0"

// Request represents a JSON-RPC 2.0 request or, when ID is nil, a notification.
type Request struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      *json.RawMessage `json:"id,omitempty"`
	Method  string           `json:"method"`
	Params  json.RawMessage  `json:"params,omitempty"`
}

// Response represents a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      *json.RawMessage `json:"id,omitempty"`
	Result  json.RawMessage  `json:"result,omitempty"`
	Error   *Error           `json:"error,omitempty"`
}

// Error represents a JSON-RPC 2.0 error object.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Error implements the error interface so peer errors can flow through
// normal Go error returns.
func (e *Error) Error() string {
	return e.Message
}

// Standard JSON-RPC error codes.
const (
	ParseError     = -32700
	InvalidRequest = -32600
	MethodNotFound = -32601
	InvalidParams  = -32602
	InternalError  = -32603
)

// Envelope is a decoded incoming message before classification. A message
// with an ID and a result or error is a response; a method without an ID is
// a server notification; a method with an ID is a server-initiated request.
type Envelope struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      *json.RawMessage `json:"id,omitempty"`
	Method  string           `json:"method,omitempty"`
	Params  json.RawMessage  `json:"params,omitempty"`
	Result  json.RawMessage  `json:"result,omitempty"`
	Error   *Error           `json:"error,omitempty"`
}

// IsResponse reports whether the envelope is a response to a client request.
func (e *Envelope) IsResponse() bool {
	return e.ID != nil && e.Method == ""
}

// IsNotification reports whether the envelope is a server notification.
func (e *Envelope) IsNotification() bool {
	return e.ID == nil && e.Method != ""
}

// IsServerRequest reports whether the envelope is a server-initiated request
// expecting a reply.
func (e *Envelope) IsServerRequest() bool {
	return e.ID != nil && e.Method != ""
}

// NewErrorResponse creates a JSON-RPC error response for the given id.
func NewErrorResponse(id *json.RawMessage, code int, message string) Response {
	return Response{
		JSONRPC: Version,
		ID:      id,
		Error:   &Error{Code: code, Message: message},
	}
}

// NewSuccessResponse creates a JSON-RPC success response for the given id.
func NewSuccessResponse(id *json.RawMessage, result any) Response {
	var resultBytes json.RawMessage
	if result != nil {
		resultBytes, _ = json.Marshal(result)
	}
	return Response{
		JSONRPC: Version,
		ID:      id,
		Result:  resultBytes,
	}
}
