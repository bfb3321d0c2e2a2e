package retry

import (
	"testing"
	"time"
)

func TestBackoff_Curve(t *testing.T) {
	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		32 * time.Second,
		60 * time.Second,
		60 * time.Second,
		60 * time.Second,
		60 * time.Second,
	}
	for i, w := range want {
		if got := Backoff(i + 1); got != w {
			t.Errorf("Backoff(%d) = %v, want %v", i+1, got, w)
		}
	}
}

// A server that flaps repeatedly walks the backoff curve and stops retrying
// after the tenth consecutive failure.
func TestSupervisor_FailureProgression(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewSupervisorWithClock(func() time.Time { return now })

	if !s.CanRetry("srv") {
		t.Fatal("fresh server must be retryable")
	}

	for n := 1; n <= MaxConsecutiveFailures; n++ {
		s.RecordFailure("srv")
		st := s.StatusOf("srv")
		if st.ConsecutiveFailures != n {
			t.Fatalf("after failure %d: count %d", n, st.ConsecutiveFailures)
		}
		if wait := st.NextAllowedAt.Sub(now); wait != Backoff(n) {
			t.Errorf("after failure %d: wait %v, want %v", n, wait, Backoff(n))
		}
		if n < MaxConsecutiveFailures {
			if s.CanRetry("srv") {
				t.Errorf("after failure %d: retry allowed before backoff elapsed", n)
			}
			now = now.Add(Backoff(n))
			if !s.CanRetry("srv") {
				t.Errorf("after failure %d: retry denied after backoff elapsed", n)
			}
		}
	}

	// Exhausted: no amount of waiting re-enables retries.
	now = now.Add(24 * time.Hour)
	if s.CanRetry("srv") {
		t.Error("retry allowed after exhaustion")
	}
	if !s.StatusOf("srv").Exhausted {
		t.Error("status not marked exhausted")
	}

	// An eleventh failure must not grow the count.
	s.RecordFailure("srv")
	if got := s.StatusOf("srv").ConsecutiveFailures; got != MaxConsecutiveFailures {
		t.Errorf("count grew past clamp: %d", got)
	}
}

func TestSupervisor_SuccessResets(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewSupervisorWithClock(func() time.Time { return now })

	for i := 0; i < 4; i++ {
		s.RecordFailure("srv")
	}
	s.RecordSuccess("srv")

	st := s.StatusOf("srv")
	if st.ConsecutiveFailures != 0 || !st.NextAllowedAt.IsZero() {
		t.Errorf("success did not reset state: %+v", st)
	}
	if !s.CanRetry("srv") {
		t.Error("retry denied after success")
	}
}

func TestSupervisor_ResetClearsExhaustion(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewSupervisorWithClock(func() time.Time { return now })

	for i := 0; i < MaxConsecutiveFailures; i++ {
		s.RecordFailure("srv")
	}
	if s.CanRetry("srv") {
		t.Fatal("expected exhaustion")
	}

	s.Reset("srv")
	if !s.CanRetry("srv") {
		t.Error("reset did not re-enable retries")
	}
}

func TestSupervisor_ServersAreIndependent(t *testing.T) {
	s := NewSupervisor()
	for i := 0; i < MaxConsecutiveFailures; i++ {
		s.RecordFailure("a")
	}
	if s.CanRetry("a") {
		t.Error("server a should be exhausted")
	}
	if !s.CanRetry("b") {
		t.Error("server b must be unaffected")
	}
}
