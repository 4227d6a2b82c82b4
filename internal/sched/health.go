package sched

import "time"

// Health states, in order of severity.
const (
	StateHealthy  = "healthy"
	StateDegraded = "degraded"
	StateDown     = "down"
)

// healthValue maps states to the value exposed by netpulse_target_health.
var healthValue = map[string]float64{
	StateHealthy:  0,
	StateDegraded: 1,
	StateDown:     2,
}

// health is one target's consecutive-failure state machine. Transitions
// happen exactly at the configured thresholds: degraded on the
// degradedAfter-th consecutive failure, down on the downAfter-th. Any
// success snaps the target back to healthy and resets the count, so a
// recovered target must fail the full run again before it is down.
type health struct {
	state       string
	fails       int
	lastErr     string
	lastChange  time.Time
	lastSuccess time.Time
}

// apply folds one cycle outcome into the machine and reports whether the
// state changed.
func (h *health) apply(ok bool, errMsg string, degradedAfter, downAfter int, now time.Time) bool {
	if ok {
		h.fails = 0
		h.lastErr = ""
		h.lastSuccess = now
		if h.state != StateHealthy {
			h.state = StateHealthy
			h.lastChange = now
			return true
		}
		return false
	}

	h.fails++
	h.lastErr = errMsg
	switch {
	case h.fails >= downAfter && h.state != StateDown:
		h.state = StateDown
		h.lastChange = now
		return true
	case h.fails >= degradedAfter && h.fails < downAfter && h.state == StateHealthy:
		h.state = StateDegraded
		h.lastChange = now
		return true
	}
	return false
}
