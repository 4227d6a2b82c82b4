package expose

import (
	"math"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"

	"github.com/netpulse/netpulse/internal/registry"
)

var renderTime = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func gaugeSeries(name string, labels map[string]string, v float64) registry.Series {
	return registry.Series{
		Name:      name,
		Labels:    labels,
		Kind:      registry.KindGauge,
		Value:     v,
		UpdatedAt: renderTime,
	}
}

// --- grouping ---------------------------------------------------------------

func TestRender_GroupsSeriesByName(t *testing.T) {
	fams := render([]registry.Series{
		gaugeSeries("network_probe_up", map[string]string{"target": "a"}, 1),
		gaugeSeries("network_probe_up", map[string]string{"target": "b"}, 0),
		gaugeSeries("snmp_if_oper_status", map[string]string{"target": "c"}, 1),
	})

	if len(fams) != 2 {
		t.Fatalf("families = %d, want 2", len(fams))
	}
	if fams[0].GetName() != "network_probe_up" || len(fams[0].Metric) != 2 {
		t.Fatalf("first family = %s with %d metrics, want network_probe_up with 2",
			fams[0].GetName(), len(fams[0].Metric))
	}
	if fams[0].GetType() != dto.MetricType_GAUGE {
		t.Fatalf("type = %v, want GAUGE", fams[0].GetType())
	}
}

func TestRender_EmptySnapshot(t *testing.T) {
	if fams := render(nil); len(fams) != 0 {
		t.Fatalf("families = %d, want 0", len(fams))
	}
}

// --- skipping ---------------------------------------------------------------

func TestRender_UnknownKindSkippedSiblingsSurvive(t *testing.T) {
	fams := render([]registry.Series{
		gaugeSeries("network_probe_up", map[string]string{"target": "a"}, 1),
		{Name: "mystery", Kind: registry.Kind("weird"), Value: 9, UpdatedAt: renderTime},
		gaugeSeries("snmp_if_oper_status", map[string]string{"target": "c"}, 1),
	})

	if len(fams) != 2 {
		t.Fatalf("families = %d, want 2 (unknown kind dropped)", len(fams))
	}
	for _, fam := range fams {
		if fam.GetName() == "mystery" {
			t.Fatal("unknown-kind series was rendered")
		}
	}
}

func TestRender_KindConflictWithinNameSkipped(t *testing.T) {
	fams := render([]registry.Series{
		gaugeSeries("mixed", map[string]string{"target": "a"}, 1),
		{Name: "mixed", Labels: map[string]string{"target": "b"}, Kind: registry.KindCounter, Value: 5, UpdatedAt: renderTime},
	})

	if len(fams) != 1 {
		t.Fatalf("families = %d, want 1", len(fams))
	}
	if fams[0].GetType() != dto.MetricType_GAUGE {
		t.Fatalf("type = %v, want first-seen GAUGE", fams[0].GetType())
	}
	if len(fams[0].Metric) != 1 {
		t.Fatalf("metrics = %d, want 1 (conflicting series dropped)", len(fams[0].Metric))
	}
}

// --- values -----------------------------------------------------------------

func TestRender_CounterAndGaugeValues(t *testing.T) {
	fams := render([]registry.Series{
		{Name: "netpulse_cycles_total", Labels: map[string]string{"target": "a"}, Kind: registry.KindCounter, Value: 42, UpdatedAt: renderTime},
		gaugeSeries("network_loss_ratio", map[string]string{"target": "a"}, 0.25),
	})

	for _, fam := range fams {
		switch fam.GetName() {
		case "netpulse_cycles_total":
			if got := fam.Metric[0].GetCounter().GetValue(); got != 42 {
				t.Errorf("counter value = %v, want 42", got)
			}
		case "network_loss_ratio":
			if got := fam.Metric[0].GetGauge().GetValue(); got != 0.25 {
				t.Errorf("gauge value = %v, want 0.25", got)
			}
		}
	}
}

func TestRender_HistogramHasExplicitInfBucket(t *testing.T) {
	fams := render([]registry.Series{{
		Name:         "network_latency_ms",
		Labels:       map[string]string{"target": "a"},
		Kind:         registry.KindHistogram,
		Bounds:       []float64{1, 5},
		BucketCounts: []uint64{1, 3},
		Sum:          7.5,
		Count:        4,
		UpdatedAt:    renderTime,
	}})

	if len(fams) != 1 || fams[0].GetType() != dto.MetricType_HISTOGRAM {
		t.Fatalf("unexpected families: %+v", fams)
	}
	h := fams[0].Metric[0].GetHistogram()
	if h.GetSampleCount() != 4 || h.GetSampleSum() != 7.5 {
		t.Fatalf("count/sum = %d/%v, want 4/7.5", h.GetSampleCount(), h.GetSampleSum())
	}
	if len(h.Bucket) != 3 {
		t.Fatalf("buckets = %d, want 3 (two bounds plus +Inf)", len(h.Bucket))
	}
	last := h.Bucket[len(h.Bucket)-1]
	if !math.IsInf(last.GetUpperBound(), 1) {
		t.Fatalf("last bucket bound = %v, want +Inf", last.GetUpperBound())
	}
	if last.GetCumulativeCount() != 4 {
		t.Fatalf("+Inf bucket count = %d, want total 4", last.GetCumulativeCount())
	}
}

// --- labels and timestamps --------------------------------------------------

func TestRender_LabelsSortedByName(t *testing.T) {
	fams := render([]registry.Series{
		gaugeSeries("network_probe_up", map[string]string{"z": "1", "a": "2", "m": "3"}, 1),
	})

	pairs := fams[0].Metric[0].Label
	if len(pairs) != 3 {
		t.Fatalf("labels = %d, want 3", len(pairs))
	}
	want := []string{"a", "m", "z"}
	for i, p := range pairs {
		if p.GetName() != want[i] {
			t.Fatalf("label[%d] = %q, want %q", i, p.GetName(), want[i])
		}
	}
}

func TestRender_SamplesCarryCollectionTimestamp(t *testing.T) {
	fams := render([]registry.Series{
		gaugeSeries("network_probe_up", map[string]string{"target": "a"}, 1),
	})

	if got := fams[0].Metric[0].GetTimestampMs(); got != renderTime.UnixMilli() {
		t.Fatalf("timestamp = %d, want %d", got, renderTime.UnixMilli())
	}
}
