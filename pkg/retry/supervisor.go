// Package retry tracks reconnect eligibility per server. The supervisor is
// pure state: the registry consults it before every rebuild and feeds it
// connection outcomes. It runs no goroutines of its own.
package retry

import (
	"sync"
	"time"
)

const (
	// MaxConsecutiveFailures is where retrying stops until an operator
	// re-registers the server.
	MaxConsecutiveFailures = 10

	baseBackoff = 1 * time.Second
	maxBackoff  = 60 * time.Second
)

// Status is a read-only snapshot of one server's retry state.
type Status struct {
	ConsecutiveFailures int
	NextAllowedAt       time.Time
	Exhausted           bool
}

type entry struct {
	consecutiveFailures int
	nextAllowedAt       time.Time
}

// Supervisor tracks consecutive connection failures and the earliest next
// attempt per server id.
type Supervisor struct {
	now func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
}

// NewSupervisor creates a supervisor using the wall clock.
func NewSupervisor() *Supervisor {
	return NewSupervisorWithClock(time.Now)
}

// NewSupervisorWithClock allows tests to inject a clock.
func NewSupervisorWithClock(now func() time.Time) *Supervisor {
	return &Supervisor{now: now, entries: make(map[string]*entry)}
}

// Backoff returns the delay applied after the nth consecutive failure:
// 1s, 2s, 4s, ... capped at 60s.
func Backoff(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	if n > 7 {
		// 1s << 6 already exceeds the cap.
		return maxBackoff
	}
	d := baseBackoff << (n - 1)
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

// RecordFailure registers a failed connection attempt and schedules the next
// allowed attempt. The failure count clamps at MaxConsecutiveFailures.
func (s *Supervisor) RecordFailure(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entry(id)
	if e.consecutiveFailures < MaxConsecutiveFailures {
		e.consecutiveFailures++
	}
	e.nextAllowedAt = s.now().Add(Backoff(e.consecutiveFailures))
}

// RecordSuccess resets the server's retry state after a READY transition.
func (s *Supervisor) RecordSuccess(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entry(id)
	e.consecutiveFailures = 0
	e.nextAllowedAt = time.Time{}
}

// CanRetry reports whether a rebuild may be attempted now.
func (s *Supervisor) CanRetry(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entry(id)
	if e.consecutiveFailures >= MaxConsecutiveFailures {
		return false
	}
	return !s.now().Before(e.nextAllowedAt)
}

// StatusOf returns the retry snapshot for id.
func (s *Supervisor) StatusOf(id string) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entry(id)
	return Status{
		ConsecutiveFailures: e.consecutiveFailures,
		NextAllowedAt:       e.nextAllowedAt,
		Exhausted:           e.consecutiveFailures >= MaxConsecutiveFailures,
	}
}

// Reset clears the state for id entirely. Used when a spec is re-registered
// or removed.
func (s *Supervisor) Reset(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
}

func (s *Supervisor) entry(id string) *entry {
	e, ok := s.entries[id]
	if !ok {
		e = &entry{}
		s.entries[id] = e
	}
	return e
}
