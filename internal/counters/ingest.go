package counters

import (
	"context"
	"log/slog"

	"github.com/netpulse/netpulse/internal/poller"
	"github.com/netpulse/netpulse/internal/registry"
	"github.com/netpulse/netpulse/internal/shipper"
)

// Exposed series derived from raw octet counters.
const (
	seriesRate        = "snmp_if_rate_bytes_per_second"
	seriesUtilization = "snmp_if_bandwidth_utilization_percent"
)

// counterNames maps poller counter keys to exposed counter series. The
// exposed value is the accumulated corrected delta, not the raw device
// value, so it stays monotonic across device wraps and resets.
var counterNames = map[string]string{
	poller.MetricIfInOctets:    "snmp_if_in_octets_total",
	poller.MetricIfOutOctets:   "snmp_if_out_octets_total",
	poller.MetricIfInErrors:    "snmp_if_in_errors_total",
	poller.MetricIfOutErrors:   "snmp_if_out_errors_total",
	poller.MetricIfInDiscards:  "snmp_if_in_discards_total",
	poller.MetricIfOutDiscards: "snmp_if_out_discards_total",
}

// gaugeNames maps poller gauge keys to exposed gauge series.
var gaugeNames = map[string]string{
	poller.MetricSysUptime:    "snmp_system_uptime_seconds",
	poller.MetricIfSpeed:      "snmp_if_speed_bits_per_second",
	poller.MetricIfOperStatus: "snmp_if_oper_status",
}

// octetDirection marks the octet counter keys that additionally produce
// per-direction rate and utilization gauges.
var octetDirection = map[string]string{
	poller.MetricIfInOctets:  "in",
	poller.MetricIfOutOctets: "out",
}

// Ingest digests one poll result at a time: gauges pass straight through to
// the registry, counter samples go through the rate engine, and corrected
// deltas accumulate into exposed totals plus per-direction rate and
// bandwidth utilization gauges.
type Ingest struct {
	engine *Engine
	reg    *registry.Registry
	ship   *shipper.Shipper
}

// NewIngest wires an Ingest over the given engine, registry, and shipper.
func NewIngest(engine *Engine, reg *registry.Registry, ship *shipper.Shipper) *Ingest {
	return &Ingest{engine: engine, reg: reg, ship: ship}
}

// Apply folds res into the registry. Intervals without a derivable rate
// (stream baseline, duplicate sample, counter reset) contribute nothing and
// leave previously exposed values standing.
func (in *Ingest) Apply(ctx context.Context, res *poller.Result) {
	speeds := make(map[string]float64)

	for _, g := range res.Gauges {
		name, ok := gaugeNames[g.Metric]
		if !ok {
			slog.Warn("ingest: unknown gauge key", "metric", g.Metric)
			continue
		}
		in.reg.SetGauge(name, gaugeLabels(g), g.Value)
		if g.Metric == poller.MetricIfSpeed {
			speeds[g.Instance] = g.Value
		}
	}

	for _, c := range res.Counters {
		name, ok := counterNames[c.Metric]
		if !ok {
			slog.Warn("ingest: unknown counter key", "metric", c.Metric)
			continue
		}

		rate, ok := in.engine.Observe(c)
		if !ok {
			continue
		}
		in.reg.AddCounter(name, map[string]string{
			"target": c.Target, "interface": c.Instance,
		}, float64(rate.Delta))

		dir, isOctets := octetDirection[c.Metric]
		if !isOctets {
			continue
		}
		labels := map[string]string{
			"target": c.Target, "interface": c.Instance, "direction": dir,
		}
		in.reg.SetGauge(seriesRate, labels, rate.PerSecond)
		if speed := speeds[c.Instance]; speed > 0 {
			// ifSpeed is in bits/s, the rate in bytes/s.
			in.reg.SetGauge(seriesUtilization, labels, rate.PerSecond*8/speed*100)
		}
		in.ship.RecordThroughput(ctx, c.Target, c.Instance, dir, rate.PerSecond)
	}
}

func gaugeLabels(g poller.GaugeSample) map[string]string {
	labels := map[string]string{"target": g.Target}
	if g.Instance != "" {
		labels["interface"] = g.Instance
	}
	return labels
}
