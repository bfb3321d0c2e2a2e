package registry

import (
	"errors"
	"fmt"
	"time"
)

// ErrShuttingDown is returned for any operation once Shutdown has started.
var ErrShuttingDown = errors.New("registry is shutting down")

// ServerNotFoundError indicates no spec exists for the requested id.
type ServerNotFoundError struct {
	ID string
}

func (e *ServerNotFoundError) Error() string {
	return fmt.Sprintf("server %q not found", e.ID)
}

// ServerUnavailableError indicates the server exists but no usable driver
// can be produced right now. NextAllowedAt tells the caller when a retry
// becomes permissible; Exhausted means only a re-register will help.
type ServerUnavailableError struct {
	ID            string
	NextAllowedAt time.Time
	Exhausted     bool
	Reason        error
}

func (e *ServerUnavailableError) Error() string {
	switch {
	case e.Exhausted:
		return fmt.Sprintf("server %q unavailable: retries exhausted", e.ID)
	case !e.NextAllowedAt.IsZero():
		return fmt.Sprintf("server %q unavailable: next attempt allowed at %s", e.ID, e.NextAllowedAt.Format(time.RFC3339))
	default:
		return fmt.Sprintf("server %q unavailable", e.ID)
	}
}

func (e *ServerUnavailableError) Unwrap() error {
	return e.Reason
}
