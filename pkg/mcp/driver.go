package mcp

import (
	"context"
	"log/slog"
	"time"
)

// ConnState is the lifecycle state of a driver's connection.
type ConnState int32

const (
	StateConnecting ConnState = iota
	StateInitializing
	StateReady
	StateDisconnected
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateInitializing:
		return "INITIALIZING"
	case StateReady:
		return "READY"
	case StateDisconnected:
		return "DISCONNECTED"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// StateListener is invoked on every driver state transition. Listeners must
// not block; the registry uses them to drive reconnect scheduling.
type StateListener func(serverID string, state ConnState, err error)

// Driver is one live connection to an MCP server. Implementations exist for
// stdio child processes, SSE endpoints, and streamable HTTP endpoints.
//
//go:generate mockgen -source=driver.go -destination=mocks/driver_mock.go -package=mocks
type Driver interface {
	// ID returns the server id this driver serves.
	ID() string

	// Open dials the transport and runs the initialize handshake. It returns
	// once the driver is READY or the attempt failed. Open is called at most
	// once per driver; reconnects build a fresh driver.
	Open(ctx context.Context) error

	// Call issues a JSON-RPC request and blocks for the matching response.
	// On ctx expiry the request id is retired and ErrCallTimeout returned.
	Call(ctx context.Context, method string, params, result any) error

	// Notify sends a JSON-RPC notification. No response is expected.
	Notify(ctx context.Context, method string, params any) error

	// State returns the current connection state.
	State() ConnState

	// Capabilities returns what the server advertised during initialize.
	// Nil until READY has been reached once.
	Capabilities() *Capabilities

	// ServerInfo returns the peer identity from initialize. Nil until READY.
	ServerInfo() *ServerInfo

	// Close tears the connection down. Idempotent. In-flight calls complete
	// with an error.
	Close() error
}

// Config carries everything a driver needs to reach one server. The registry
// derives it from the stored server spec.
type Config struct {
	ServerID  string
	Transport Transport

	// Stdio fields.
	Command string
	Args    []string
	Env     map[string]string

	// HTTP fields (SSE and streamable).
	Endpoint string
	Headers  map[string]string

	// RequestTimeout is the per-call deadline applied when the caller's
	// context carries none. Zero means DefaultRequestTimeout.
	RequestTimeout time.Duration

	// HandshakeTimeout bounds the SSE endpoint announcement wait. Zero means
	// DefaultHandshakeTimeout.
	HandshakeTimeout time.Duration

	// StartupTimeout bounds stdio child startup. Zero means
	// DefaultStartupTimeout.
	StartupTimeout time.Duration

	Logger   *slog.Logger
	Listener StateListener
}

func (c *Config) requestTimeout() time.Duration {
	if c.RequestTimeout > 0 {
		return c.RequestTimeout
	}
	return DefaultRequestTimeout
}

func (c *Config) handshakeTimeout() time.Duration {
	if c.HandshakeTimeout > 0 {
		return c.HandshakeTimeout
	}
	return DefaultHandshakeTimeout
}

func (c *Config) startupTimeout() time.Duration {
	if c.StartupTimeout > 0 {
		return c.StartupTimeout
	}
	return DefaultStartupTimeout
}

func (c *Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// NewDriver constructs the driver matching cfg.Transport. The driver is not
// connected until Open.
func NewDriver(cfg Config) (Driver, error) {
	switch cfg.Transport {
	case TransportStdio:
		return newStdioDriver(cfg)
	case TransportSSE:
		return newSSEDriver(cfg)
	case TransportStreamable:
		return newStreamableDriver(cfg)
	default:
		return nil, &ProtocolError{Reason: "unknown transport " + string(cfg.Transport)}
	}
}
