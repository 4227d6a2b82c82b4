package counters

import (
	"math"
	"testing"
	"time"

	"github.com/netpulse/netpulse/internal/poller"
)

// baseTime is a fixed reference point so all test timings are deterministic.
var baseTime = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// tick returns baseTime advanced by n seconds.
func tick(n int) time.Time {
	return baseTime.Add(time.Duration(n) * time.Second)
}

// sample builds a RawSample for the default test stream.
func sample(value uint64, bits uint8, at time.Time) poller.RawSample {
	return poller.RawSample{
		Target:    "sw1",
		Metric:    poller.MetricIfInOctets,
		Instance:  "eth0",
		Value:     value,
		Bits:      bits,
		Timestamp: at,
	}
}

func almostEqual(a, b, eps float64) bool {
	return math.Abs(a-b) <= eps
}

// --- First observation ---

func TestObserve_FirstSample_NoRate(t *testing.T) {
	e := NewEngine(0)
	if _, ok := e.Observe(sample(1000, 64, tick(0))); ok {
		t.Error("first sample produced a rate, want none")
	}
	if e.Len() != 1 {
		t.Errorf("Len: got %d, want 1 seeded stream", e.Len())
	}
}

// --- Rate computation ---

func TestObserve_SteadyRate(t *testing.T) {
	e := NewEngine(0)
	e.Observe(sample(1000, 64, tick(0)))

	r, ok := e.Observe(sample(2500, 64, tick(15)))
	if !ok {
		t.Fatal("second sample produced no rate")
	}
	if r.Delta != 1500 {
		t.Errorf("Delta: got %d, want 1500", r.Delta)
	}
	if !almostEqual(r.PerSecond, 100, 1e-9) {
		t.Errorf("PerSecond: got %v, want 100", r.PerSecond)
	}
	if r.Elapsed != 15*time.Second {
		t.Errorf("Elapsed: got %v, want 15s", r.Elapsed)
	}
}

func TestObserve_ZeroDelta_IsValidRate(t *testing.T) {
	e := NewEngine(0)
	e.Observe(sample(1000, 64, tick(0)))

	r, ok := e.Observe(sample(1000, 64, tick(15)))
	if !ok {
		t.Fatal("idle counter produced no rate, want rate 0")
	}
	if r.PerSecond != 0 || r.Delta != 0 {
		t.Errorf("idle counter: got delta %d rate %v, want 0/0", r.Delta, r.PerSecond)
	}
}

// --- Wraparound correction ---

func TestObserve_Wrap32(t *testing.T) {
	e := NewEngine(0)
	e.Observe(sample(4294967290, 32, tick(0)))

	r, ok := e.Observe(sample(10, 32, tick(1)))
	if !ok {
		t.Fatal("wrapped sample produced no rate")
	}
	if r.Delta != 16 {
		t.Errorf("Delta: got %d, want 16 (6 to the modulus, 10 past it)", r.Delta)
	}
	if !almostEqual(r.PerSecond, 16, 1e-9) {
		t.Errorf("PerSecond: got %v, want 16", r.PerSecond)
	}
	if w := e.Wraps("sw1", poller.MetricIfInOctets, "eth0"); w != 1 {
		t.Errorf("Wraps: got %d, want 1", w)
	}
}

func TestObserve_Wrap64(t *testing.T) {
	e := NewEngine(0)
	e.Observe(sample(math.MaxUint64-5, 64, tick(0)))

	r, ok := e.Observe(sample(10, 64, tick(1)))
	if !ok {
		t.Fatal("wrapped sample produced no rate")
	}
	if r.Delta != 16 {
		t.Errorf("Delta: got %d, want 16", r.Delta)
	}
}

func TestObserve_WrapsAccumulate(t *testing.T) {
	e := NewEngine(0)
	e.Observe(sample(4294967290, 32, tick(0)))
	e.Observe(sample(10, 32, tick(1)))
	e.Observe(sample(4294967290, 32, tick(100000)))
	e.Observe(sample(10, 32, tick(100001)))

	if w := e.Wraps("sw1", poller.MetricIfInOctets, "eth0"); w != 2 {
		t.Errorf("Wraps: got %d, want 2", w)
	}
}

// --- Counter reset detection ---

func TestObserve_ResetYieldsNoRateAndReseeds(t *testing.T) {
	e := NewEngine(1e6)
	e.Observe(sample(1000000, 32, tick(0)))

	// A reboot drops the counter to 5. Seen through 32-bit modulus
	// correction this looks like a ~4.29e9 delta in 15s, far beyond the
	// 1 MB/s ceiling of this link.
	if _, ok := e.Observe(sample(5, 32, tick(15))); ok {
		t.Fatal("reset interval produced a rate, want none")
	}

	// The stream is reseeded at the new baseline: the next interval works.
	r, ok := e.Observe(sample(1505, 32, tick(30)))
	if !ok {
		t.Fatal("post-reset sample produced no rate")
	}
	if r.Delta != 1500 {
		t.Errorf("post-reset Delta: got %d, want 1500", r.Delta)
	}
	if w := e.Wraps("sw1", poller.MetricIfInOctets, "eth0"); w != 0 {
		t.Errorf("Wraps after reset: got %d, want 0", w)
	}
}

func TestObserve_PlausibilityBoundary(t *testing.T) {
	// Ceiling of 100 units/s over 10s: a delta of exactly 1000 passes,
	// 1001 reads as a reset.
	e := NewEngine(100)
	e.Observe(sample(0, 64, tick(0)))
	if _, ok := e.Observe(sample(1000, 64, tick(10))); !ok {
		t.Error("delta at the ceiling rejected, want accepted")
	}

	e = NewEngine(100)
	e.Observe(sample(0, 64, tick(0)))
	if _, ok := e.Observe(sample(1001, 64, tick(10))); ok {
		t.Error("delta over the ceiling accepted, want reset")
	}
}

// --- Duplicate and reordered samples ---

func TestObserve_DuplicateTimestampIgnored(t *testing.T) {
	e := NewEngine(0)
	e.Observe(sample(1000, 64, tick(0)))

	if _, ok := e.Observe(sample(1000, 64, tick(0))); ok {
		t.Error("duplicate sample produced a rate, want none")
	}

	// The duplicate must not have advanced the baseline.
	r, ok := e.Observe(sample(2500, 64, tick(15)))
	if !ok {
		t.Fatal("sample after duplicate produced no rate")
	}
	if r.Delta != 1500 {
		t.Errorf("Delta after duplicate: got %d, want 1500", r.Delta)
	}
}

func TestObserve_ReorderedTimestampIgnored(t *testing.T) {
	e := NewEngine(0)
	e.Observe(sample(1000, 64, tick(10)))

	if _, ok := e.Observe(sample(900, 64, tick(5))); ok {
		t.Error("reordered sample produced a rate, want none")
	}

	r, ok := e.Observe(sample(1100, 64, tick(20)))
	if !ok {
		t.Fatal("sample after reordering produced no rate")
	}
	if r.Delta != 100 {
		t.Errorf("Delta: got %d, want 100 from the untouched baseline", r.Delta)
	}
}

// --- Stream isolation ---

func TestObserve_StreamsAreIndependent(t *testing.T) {
	e := NewEngine(0)

	eth0 := sample(1000, 64, tick(0))
	eth1 := sample(500000, 64, tick(0))
	eth1.Instance = "eth1"
	e.Observe(eth0)
	e.Observe(eth1)

	next := sample(2000, 64, tick(10))
	r, ok := e.Observe(next)
	if !ok || r.Delta != 1000 {
		t.Errorf("eth0: got delta %d ok=%v, want 1000", r.Delta, ok)
	}

	next = sample(500100, 64, tick(10))
	next.Instance = "eth1"
	r, ok = e.Observe(next)
	if !ok || r.Delta != 100 {
		t.Errorf("eth1: got delta %d ok=%v, want 100", r.Delta, ok)
	}
}
