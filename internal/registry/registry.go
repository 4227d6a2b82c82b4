package registry

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

// Kind classifies a series for exposition purposes.
type Kind string

const (
	KindCounter   Kind = "counter"
	KindGauge     Kind = "gauge"
	KindHistogram Kind = "histogram"
)

// Series is one uniquely-labelled time series. Identity is the metric name
// plus the sorted label set; two samples with the same name and labels update
// the same Series.
//
// Value holds the current level for gauges and the accumulated total for
// counters. Histograms use Bounds/BucketCounts/Sum/Count instead; the counts
// are cumulative per bucket, matching the exposition format.
type Series struct {
	Name         string
	Labels       map[string]string
	Kind         Kind
	Value        float64
	Bounds       []float64
	BucketCounts []uint64
	Sum          float64
	Count        uint64
	UpdatedAt    time.Time
}

// Registry is the single mutation boundary between collection goroutines and
// the exposition endpoint. All upserts take the write lock; Snapshot deep-
// copies every series under the read lock so a scrape renders from a stable,
// internally consistent view while collection continues.
type Registry struct {
	mu     sync.RWMutex
	series map[string]*Series
	now    func() time.Time // injectable for deterministic tests
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		series: make(map[string]*Series),
		now:    time.Now,
	}
}

// SetGauge overwrites the gauge identified by name+labels with value.
func (r *Registry) SetGauge(name string, labels map[string]string, value float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.upsertLocked(name, labels, KindGauge)
	if s == nil {
		return
	}
	s.Value = value
	s.UpdatedAt = r.now()
}

// AddCounter adds delta to the counter identified by name+labels.
// Negative deltas are dropped: exposed counters only move forward between
// process restarts.
func (r *Registry) AddCounter(name string, labels map[string]string, delta float64) {
	if delta < 0 {
		slog.Warn("registry: dropping negative counter delta", "metric", name, "delta", delta)
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.upsertLocked(name, labels, KindCounter)
	if s == nil {
		return
	}
	s.Value += delta
	s.UpdatedAt = r.now()
}

// ObserveHistogram records value into the histogram identified by name+labels.
// bounds are the ascending bucket upper limits; they are fixed on first
// observation and later calls must pass the same bounds. Counts are stored
// cumulatively: every bucket whose bound is >= value is incremented.
func (r *Registry) ObserveHistogram(name string, labels map[string]string, bounds []float64, value float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.upsertLocked(name, labels, KindHistogram)
	if s == nil {
		return
	}
	if s.Bounds == nil {
		s.Bounds = append([]float64(nil), bounds...)
		s.BucketCounts = make([]uint64, len(bounds))
	} else if !sameBounds(s.Bounds, bounds) {
		slog.Warn("registry: dropping observation with mismatched histogram bounds", "metric", name)
		return
	}
	for i, b := range s.Bounds {
		if value <= b {
			s.BucketCounts[i]++
		}
	}
	s.Sum += value
	s.Count++
	s.UpdatedAt = r.now()
}

// Snapshot returns a deep copy of every series, sorted by name and label set.
// The copies share no memory with the live registry, so callers may render at
// leisure while upserts continue.
func (r *Registry) Snapshot() []Series {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.series))
	for k := range r.series {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]Series, 0, len(keys))
	for _, k := range keys {
		out = append(out, copySeries(r.series[k]))
	}
	return out
}

// Len returns the number of distinct series currently held.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.series)
}

// upsertLocked finds or creates the series for name+labels. A sample whose
// kind conflicts with the established kind of the series is dropped with a
// warning rather than corrupting the schema. Caller holds the write lock.
func (r *Registry) upsertLocked(name string, labels map[string]string, kind Kind) *Series {
	key := seriesKey(name, labels)
	s, ok := r.series[key]
	if !ok {
		s = &Series{
			Name:   name,
			Labels: copyLabels(labels),
			Kind:   kind,
		}
		r.series[key] = s
		return s
	}
	if s.Kind != kind {
		slog.Warn("registry: dropping sample with conflicting kind",
			"metric", name, "have", string(s.Kind), "got", string(kind))
		return nil
	}
	return s
}

// seriesKey builds the identity string: name{k1=v1,k2=v2} with keys sorted.
func seriesKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(labels[k])
	}
	b.WriteByte('}')
	return b.String()
}

func copySeries(s *Series) Series {
	out := *s
	out.Labels = copyLabels(s.Labels)
	if s.Bounds != nil {
		out.Bounds = append([]float64(nil), s.Bounds...)
		out.BucketCounts = append([]uint64(nil), s.BucketCounts...)
	}
	return out
}

func copyLabels(labels map[string]string) map[string]string {
	if labels == nil {
		return nil
	}
	out := make(map[string]string, len(labels))
	for k, v := range labels {
		out[k] = v
	}
	return out
}

func sameBounds(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
