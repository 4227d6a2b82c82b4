package counters

import (
	"sync"
	"time"

	"github.com/netpulse/netpulse/internal/config"
	"github.com/netpulse/netpulse/internal/poller"
)

// stateKey identifies one counter stream: a target, a metric key, and the
// instance the sample applies to.
type stateKey struct {
	target   string
	metric   string
	instance string
}

// state is the remembered baseline for one counter stream.
type state struct {
	value uint64
	seen  time.Time
	wraps uint64
}

// Rate is one derived reading: the corrected delta across the elapsed
// interval between two samples of the same stream.
type Rate struct {
	Delta     uint64
	PerSecond float64
	Elapsed   time.Duration
}

// Engine turns raw counter readings into rates. It corrects wraparound at
// the counter's declared bit width and filters the implausible jumps a
// device counter reset produces, which would otherwise render as an absurd
// spike after modulus correction.
type Engine struct {
	mu      sync.Mutex
	maxRate float64
	states  map[stateKey]*state
}

// NewEngine creates an Engine with the given plausibility ceiling in counter
// units per second. Non-positive values fall back to the default.
func NewEngine(maxPlausibleRate float64) *Engine {
	if maxPlausibleRate <= 0 {
		maxPlausibleRate = config.DefaultMaxPlausibleRate
	}
	return &Engine{maxRate: maxPlausibleRate, states: make(map[stateKey]*state)}
}

// Observe folds one reading into its stream's state and derives a rate when
// possible. The boolean is false when no rate exists for this interval: the
// first reading of a stream, a duplicate or reordered timestamp, or a
// counter reset. State is never corrupted by any of these; duplicates leave
// the baseline untouched and resets reseed it at the new value.
func (e *Engine) Observe(s poller.RawSample) (Rate, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	k := stateKey{target: s.Target, metric: s.Metric, instance: s.Instance}
	st, ok := e.states[k]
	if !ok {
		e.states[k] = &state{value: s.Value, seen: s.Timestamp}
		return Rate{}, false
	}

	elapsed := s.Timestamp.Sub(st.seen)
	if elapsed <= 0 {
		return Rate{}, false
	}

	delta, wrapped := correctedDelta(st.value, s.Value, s.Bits)
	if float64(delta) > e.maxRate*elapsed.Seconds() {
		// Implausible jump: the device counter reset. The apparent delta is
		// an artifact, so reseed and report nothing for this interval.
		st.value = s.Value
		st.seen = s.Timestamp
		st.wraps = 0
		return Rate{}, false
	}

	st.value = s.Value
	st.seen = s.Timestamp
	if wrapped {
		st.wraps++
	}
	return Rate{
		Delta:     delta,
		PerSecond: float64(delta) / elapsed.Seconds(),
		Elapsed:   elapsed,
	}, true
}

// Wraps returns the cumulative wraparound count corrected for one stream.
func (e *Engine) Wraps(target, metric, instance string) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if st, ok := e.states[stateKey{target: target, metric: metric, instance: instance}]; ok {
		return st.wraps
	}
	return 0
}

// Len returns the number of counter streams currently tracked.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.states)
}

// correctedDelta computes cur-prev at the counter's modulus. Unsigned
// subtraction already wraps correctly at 64 bits; 32-bit counters get one
// modulus added back when the value went backwards.
func correctedDelta(prev, cur uint64, bits uint8) (delta uint64, wrapped bool) {
	if cur >= prev {
		return cur - prev, false
	}
	if bits == 32 {
		return cur + (1 << 32) - prev, true
	}
	return cur - prev, true
}
