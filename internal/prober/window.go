package prober

import (
	"math"
	"sort"
	"sync"
)

// ring is a fixed-capacity overwrite-oldest buffer of float64 samples.
type ring struct {
	vals []float64
	next int
	n    int
}

func newRing(capacity int) *ring {
	return &ring{vals: make([]float64, capacity)}
}

func (r *ring) push(v float64) {
	r.vals[r.next] = v
	r.next = (r.next + 1) % len(r.vals)
	if r.n < len(r.vals) {
		r.n++
	}
}

// snapshot copies the populated portion, in no particular order.
func (r *ring) snapshot() []float64 {
	out := make([]float64, r.n)
	copy(out, r.vals[:r.n])
	return out
}

// boolRing is a fixed-capacity overwrite-oldest buffer of outcomes that
// tracks its failure count incrementally.
type boolRing struct {
	vals  []bool
	next  int
	n     int
	fails int
}

func newBoolRing(capacity int) *boolRing {
	return &boolRing{vals: make([]bool, capacity)}
}

func (r *boolRing) push(ok bool) {
	if r.n == len(r.vals) && !r.vals[r.next] {
		r.fails--
	}
	if r.n < len(r.vals) {
		r.n++
	}
	r.vals[r.next] = ok
	if !ok {
		r.fails++
	}
	r.next = (r.next + 1) % len(r.vals)
}

// window holds one target's recent measurement history: round-trip times of
// successful probes and the outcome of every probe. Both buffers overwrite
// oldest-first once full, so memory per target is fixed for the process
// lifetime.
type window struct {
	mu   sync.Mutex
	rtts *ring
	outs *boolRing
}

func newWindow(capacity int) *window {
	return &window{rtts: newRing(capacity), outs: newBoolRing(capacity)}
}

// observe records one probe outcome. The round-trip time (in ms) is retained
// only when the probe got a reply.
func (w *window) observe(rttMs float64, ok bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.outs.push(ok)
	if ok {
		w.rtts.push(rttMs)
	}
}

// percentile returns the nearest-rank p-th percentile of the retained
// round-trip times. With n sorted values the rank is ceil(p/100*n), clamped
// to [1, n]; no interpolation. The boolean is false when the window holds no
// round-trip times yet, which callers must render as absent rather than 0.
func (w *window) percentile(p float64) (float64, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	vals := w.rtts.snapshot()
	if len(vals) == 0 {
		return 0, false
	}
	sort.Float64s(vals)

	rank := int(math.Ceil(p / 100 * float64(len(vals))))
	if rank < 1 {
		rank = 1
	}
	if rank > len(vals) {
		rank = len(vals)
	}
	return vals[rank-1], true
}

// lossRatio returns the fraction of retained probes that got no reply,
// computed over the window's current length. An empty window reports 0.
func (w *window) lossRatio() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.outs.n == 0 {
		return 0
	}
	return float64(w.outs.fails) / float64(w.outs.n)
}

// size returns how many probe outcomes the window currently retains.
func (w *window) size() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.outs.n
}
