package sched

import (
	"testing"
	"time"
)

var baseTime = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func failN(h *health, n int) bool {
	changed := false
	for i := 0; i < n; i++ {
		if h.apply(false, "timeout", 3, 6, baseTime) {
			changed = true
		}
	}
	return changed
}

// --- threshold transitions ---

func TestHealth_TransitionsExactlyAtThresholds(t *testing.T) {
	h := &health{state: StateHealthy}

	if failN(h, 2) {
		t.Fatalf("state changed before degraded threshold, state=%s fails=%d", h.state, h.fails)
	}
	if h.state != StateHealthy {
		t.Fatalf("after 2 failures state = %s, want healthy", h.state)
	}

	if !h.apply(false, "timeout", 3, 6, baseTime) {
		t.Fatal("third consecutive failure did not change state")
	}
	if h.state != StateDegraded {
		t.Fatalf("after 3 failures state = %s, want degraded", h.state)
	}

	if failN(h, 2) {
		t.Fatalf("state changed between thresholds, state=%s fails=%d", h.state, h.fails)
	}

	if !h.apply(false, "timeout", 3, 6, baseTime) {
		t.Fatal("sixth consecutive failure did not change state")
	}
	if h.state != StateDown {
		t.Fatalf("after 6 failures state = %s, want down", h.state)
	}

	if failN(h, 3) {
		t.Fatal("state changed after reaching down")
	}
	if h.fails != 9 {
		t.Fatalf("fails = %d, want 9", h.fails)
	}
}

func TestHealth_SuccessResetsCount(t *testing.T) {
	h := &health{state: StateHealthy}
	failN(h, 4)
	if h.state != StateDegraded {
		t.Fatalf("setup: state = %s, want degraded", h.state)
	}

	if !h.apply(true, "", 3, 6, baseTime) {
		t.Fatal("recovery did not change state")
	}
	if h.state != StateHealthy || h.fails != 0 {
		t.Fatalf("after success state = %s fails = %d, want healthy 0", h.state, h.fails)
	}
	if h.lastErr != "" {
		t.Fatalf("lastErr = %q, want cleared", h.lastErr)
	}
	if !h.lastSuccess.Equal(baseTime) {
		t.Fatalf("lastSuccess = %v, want %v", h.lastSuccess, baseTime)
	}

	// The count starts over: degraded again only on the third new failure.
	failN(h, 2)
	if h.state != StateHealthy {
		t.Fatalf("after reset + 2 failures state = %s, want healthy", h.state)
	}
	failN(h, 1)
	if h.state != StateDegraded {
		t.Fatalf("after reset + 3 failures state = %s, want degraded", h.state)
	}
}

func TestHealth_RecoveredTargetNeedsFullRunToGoDown(t *testing.T) {
	h := &health{state: StateHealthy}
	failN(h, 6)
	if h.state != StateDown {
		t.Fatalf("setup: state = %s, want down", h.state)
	}

	h.apply(true, "", 3, 6, baseTime)
	failN(h, 5)
	if h.state != StateDegraded {
		t.Fatalf("after recovery + 5 failures state = %s, want degraded", h.state)
	}
	failN(h, 1)
	if h.state != StateDown {
		t.Fatalf("after recovery + 6 failures state = %s, want down", h.state)
	}
}

func TestHealth_SuccessWhileHealthyIsNoChange(t *testing.T) {
	h := &health{state: StateHealthy}
	if h.apply(true, "", 3, 6, baseTime) {
		t.Fatal("success on a healthy target reported a state change")
	}
	if h.state != StateHealthy {
		t.Fatalf("state = %s, want healthy", h.state)
	}
}

func TestHealth_LastErrTracksMostRecentFailure(t *testing.T) {
	h := &health{state: StateHealthy}
	h.apply(false, "connect refused", 3, 6, baseTime)
	h.apply(false, "timeout", 3, 6, baseTime.Add(time.Second))
	if h.lastErr != "timeout" {
		t.Fatalf("lastErr = %q, want %q", h.lastErr, "timeout")
	}
}
