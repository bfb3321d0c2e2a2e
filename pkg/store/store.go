// Package store persists MCP server specs in a relational database. The SQL
// is engine-agnostic and runs unchanged on SQLite and MySQL.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no spec exists for an id.
var ErrNotFound = errors.New("server spec not found")

// ServerSpec is the persisted description of one MCP server.
type ServerSpec struct {
	ID          string
	Name        string
	Description string

	// Type is the transport: STDIO, SSE, or STREAMABLE_HTTP.
	Type string

	// URL and Headers apply to the HTTP transports.
	URL     string
	Headers map[string]string

	// Command, Args, and Env apply to stdio servers. Args order is preserved.
	Command string
	Args    []string
	Env     map[string]string

	// TimeoutSeconds is the per-call deadline; zero means the default.
	TimeoutSeconds int

	Disabled  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store is the persistence surface the registry works against.
type Store interface {
	// Upsert inserts or replaces the spec, together with its args and env.
	Upsert(ctx context.Context, spec *ServerSpec) error

	// Delete removes the spec and its dependent rows. Deleting a missing id
	// is not an error.
	Delete(ctx context.Context, id string) error

	// Get fetches one spec; ErrNotFound if absent.
	Get(ctx context.Context, id string) (*ServerSpec, error)

	// List returns every spec ordered by id.
	List(ctx context.Context) ([]*ServerSpec, error)

	// Close releases the underlying connection pool.
	Close() error
}
