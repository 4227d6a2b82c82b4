package expose

import (
	"log/slog"
	"math"
	"sort"

	dto "github.com/prometheus/client_model/go"
	"google.golang.org/protobuf/proto"

	"github.com/netpulse/netpulse/internal/registry"
)

// helpText documents the series this process produces. Names missing here
// fall back to a generic line so the exposition stays parseable.
var helpText = map[string]string{
	"snmp_if_in_octets_total":               "Bytes received on the interface, corrected for counter wraps and resets.",
	"snmp_if_out_octets_total":              "Bytes sent on the interface, corrected for counter wraps and resets.",
	"snmp_if_in_errors_total":               "Inbound packets discarded due to errors.",
	"snmp_if_out_errors_total":              "Outbound packets that could not be transmitted due to errors.",
	"snmp_if_in_discards_total":             "Inbound packets discarded without error.",
	"snmp_if_out_discards_total":            "Outbound packets discarded without error.",
	"snmp_if_rate_bytes_per_second":         "Interface throughput over the last poll interval.",
	"snmp_if_bandwidth_utilization_percent": "Interface throughput as a percentage of its reported speed.",
	"snmp_if_speed_bits_per_second":         "Interface speed as reported by the device.",
	"snmp_if_oper_status":                   "Interface operational status (1 = up).",
	"snmp_system_uptime_seconds":            "Device uptime as reported by SNMP.",
	"network_latency_ms":                    "Round-trip time of successful probes.",
	"network_latency_p50_ms":                "Median round-trip time over the sliding window.",
	"network_latency_p95_ms":                "95th percentile round-trip time over the sliding window.",
	"network_latency_p99_ms":                "99th percentile round-trip time over the sliding window.",
	"network_packet_loss_total":             "Probes that received no reply.",
	"network_loss_ratio":                    "Fraction of lost probes over the sliding window.",
	"network_probe_up":                      "Whether the most recent probe succeeded.",
	"netpulse_target_health":                "Target health state: 0 healthy, 1 degraded, 2 down.",
	"netpulse_target_consecutive_failures":  "Consecutive failed cycles for the target.",
	"netpulse_cycles_total":                 "Completed collection cycles by outcome.",
	"netpulse_scrapes_total":                "Scrapes served by this endpoint.",
}

// render converts a registry snapshot into Prometheus metric families.
// Each name maps to exactly one family; families come out in the order
// their name first appears in the sorted snapshot.
func render(snap []registry.Series) []*dto.MetricFamily {
	fams := make([]*dto.MetricFamily, 0, len(snap))
	byName := make(map[string]*dto.MetricFamily, len(snap))
	for i := range snap {
		s := &snap[i]
		mt, ok := metricType(s.Kind)
		if !ok {
			slog.Warn("expose: skipping series with unknown kind",
				"series", s.Name, "kind", string(s.Kind))
			continue
		}
		fam := byName[s.Name]
		if fam == nil {
			fam = &dto.MetricFamily{
				Name: proto.String(s.Name),
				Help: proto.String(help(s.Name)),
				Type: mt.Enum(),
			}
			byName[s.Name] = fam
			fams = append(fams, fam)
		}
		if fam.GetType() != mt {
			// The registry keeps kinds stable per series, but two label sets
			// under one name could still disagree. The family keeps its
			// first-seen type; strays would make the text unparseable.
			slog.Warn("expose: skipping series conflicting with family type",
				"series", s.Name, "kind", string(s.Kind))
			continue
		}
		fam.Metric = append(fam.Metric, metric(s, mt))
	}
	return fams
}

func metric(s *registry.Series, mt dto.MetricType) *dto.Metric {
	m := &dto.Metric{
		Label:       labelPairs(s.Labels),
		TimestampMs: proto.Int64(s.UpdatedAt.UnixMilli()),
	}
	switch mt {
	case dto.MetricType_COUNTER:
		m.Counter = &dto.Counter{Value: proto.Float64(s.Value)}
	case dto.MetricType_GAUGE:
		m.Gauge = &dto.Gauge{Value: proto.Float64(s.Value)}
	case dto.MetricType_HISTOGRAM:
		m.Histogram = histogram(s)
	}
	return m
}

func histogram(s *registry.Series) *dto.Histogram {
	h := &dto.Histogram{
		SampleCount: proto.Uint64(s.Count),
		SampleSum:   proto.Float64(s.Sum),
	}
	for i, bound := range s.Bounds {
		h.Bucket = append(h.Bucket, &dto.Bucket{
			UpperBound:      proto.Float64(bound),
			CumulativeCount: proto.Uint64(s.BucketCounts[i]),
		})
	}
	// The +Inf bucket always counts every observation.
	h.Bucket = append(h.Bucket, &dto.Bucket{
		UpperBound:      proto.Float64(math.Inf(1)),
		CumulativeCount: proto.Uint64(s.Count),
	})
	return h
}

func labelPairs(labels map[string]string) []*dto.LabelPair {
	if len(labels) == 0 {
		return nil
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]*dto.LabelPair, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, &dto.LabelPair{
			Name:  proto.String(k),
			Value: proto.String(labels[k]),
		})
	}
	return pairs
}

func metricType(k registry.Kind) (dto.MetricType, bool) {
	switch k {
	case registry.KindCounter:
		return dto.MetricType_COUNTER, true
	case registry.KindGauge:
		return dto.MetricType_GAUGE, true
	case registry.KindHistogram:
		return dto.MetricType_HISTOGRAM, true
	default:
		return dto.MetricType_UNTYPED, false
	}
}

func help(name string) string {
	if h, ok := helpText[name]; ok {
		return h
	}
	return "Series emitted by the netpulse collector."
}
