package prober

import (
	"context"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	probing "github.com/prometheus-community/pro-bing"

	"github.com/netpulse/netpulse/internal/config"
	"github.com/netpulse/netpulse/internal/registry"
	"github.com/netpulse/netpulse/internal/shipper"
)

// latencyBuckets are the fixed histogram bounds for network_latency_ms, in
// milliseconds.
var latencyBuckets = []float64{1, 2, 5, 10, 20, 50, 100, 200, 500, 1000, 2000, 5000}

// Result is the outcome of one probe cycle. A probe that got no reply is a
// valid measurement, not an error: OK=false feeds the loss window.
type Result struct {
	Target    string
	Method    string
	RTT       time.Duration
	OK        bool
	Timestamp time.Time
}

// pingFunc sends one echo request. received=false with a nil error is a
// probe that timed out; a non-nil error is a socket-level failure (usually
// missing ICMP privileges) that triggers the TCP fallback.
type pingFunc func(ctx context.Context, tgt config.Target, payload int, privileged bool) (rtt time.Duration, received bool, err error)

// dialFunc measures the time to complete a TCP connect to addr.
type dialFunc func(ctx context.Context, addr string, timeout time.Duration) (time.Duration, error)

// Prober measures reachability and round-trip latency with ICMP echo
// requests or TCP connects, keeps a fixed measurement window per target,
// and republishes latency, order-statistic percentiles, loss ratio, and
// probe state into the registry after every cycle.
type Prober struct {
	cfg  config.ProbeConfig
	reg  *registry.Registry
	ship *shipper.Shipper

	ping pingFunc
	dial dialFunc
	now  func() time.Time // injectable for deterministic tests

	mu       sync.Mutex
	windows  map[string]*window
	fellBack map[string]bool
}

// New creates a Prober publishing into reg and mirroring to ship.
func New(cfg config.ProbeConfig, reg *registry.Registry, ship *shipper.Shipper) *Prober {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = config.DefaultWindowSize
	}
	return &Prober{
		cfg:      cfg,
		reg:      reg,
		ship:     ship,
		ping:     pingOnce,
		dial:     dialOnce,
		now:      time.Now,
		windows:  make(map[string]*window),
		fellBack: make(map[string]bool),
	}
}

// Probe runs one measurement cycle against tgt. ICMP targets that cannot
// open a socket (common without CAP_NET_RAW) permanently switch to TCP
// connect probes; the switch is logged once per target.
func (p *Prober) Probe(ctx context.Context, tgt config.Target) Result {
	res := Result{Target: tgt.Name, Timestamp: p.now()}

	if tgt.Method == config.MethodICMP && !p.hasFallenBack(tgt.Name) {
		rtt, received, err := p.ping(ctx, tgt, p.cfg.PayloadBytes, p.cfg.Privileged)
		if err == nil {
			res.Method = config.MethodICMP
			res.OK = received
			res.RTT = rtt
			p.record(ctx, tgt, res)
			return res
		}
		p.markFallback(tgt.Name, err)
	}

	res.Method = config.MethodTCP
	addr := net.JoinHostPort(tgt.Address, strconv.Itoa(int(tgt.Port)))
	if rtt, err := p.dial(ctx, addr, tgt.Timeout); err == nil {
		res.OK = true
		res.RTT = rtt
	} else {
		slog.Debug("prober: tcp connect failed", "target", tgt.Name, "addr", addr, "err", err)
	}
	p.record(ctx, tgt, res)
	return res
}

// LossRatio returns the current loss ratio of the target's window.
func (p *Prober) LossRatio(target string) float64 {
	return p.windowFor(target).lossRatio()
}

// record folds res into the target's window and republishes every series
// derived from it. Percentile gauges are only written once the window holds
// at least one round-trip time; before that they stay absent from the
// exposition rather than reading 0.
func (p *Prober) record(ctx context.Context, tgt config.Target, res Result) {
	w := p.windowFor(tgt.Name)
	ms := float64(res.RTT) / float64(time.Millisecond)
	w.observe(ms, res.OK)

	labels := map[string]string{"target": tgt.Name}
	if res.OK {
		p.reg.ObserveHistogram("network_latency_ms", labels, latencyBuckets, ms)
		p.reg.SetGauge("network_probe_up", labels, 1)
		p.ship.RecordLatency(ctx, tgt.Name, res.Method, ms)
	} else {
		p.reg.AddCounter("network_packet_loss_total", labels, 1)
		p.reg.SetGauge("network_probe_up", labels, 0)
		p.ship.RecordLoss(ctx, tgt.Name, res.Method)
	}
	p.reg.SetGauge("network_loss_ratio", labels, w.lossRatio())

	for _, pc := range []struct {
		name string
		pct  float64
	}{
		{"network_latency_p50_ms", 50},
		{"network_latency_p95_ms", 95},
		{"network_latency_p99_ms", 99},
	} {
		if v, ok := w.percentile(pc.pct); ok {
			p.reg.SetGauge(pc.name, labels, v)
		}
	}
}

func (p *Prober) windowFor(name string) *window {
	p.mu.Lock()
	defer p.mu.Unlock()
	w, ok := p.windows[name]
	if !ok {
		w = newWindow(p.cfg.WindowSize)
		p.windows[name] = w
	}
	return w
}

func (p *Prober) hasFallenBack(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fellBack[name]
}

func (p *Prober) markFallback(name string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.fellBack[name] {
		p.fellBack[name] = true
		slog.Info("prober: icmp unavailable, switching to tcp connect probes",
			"target", name, "err", err)
	}
}

// pingOnce sends a single ICMP echo request with pro-bing. Unprivileged mode
// uses a datagram socket, which most Linux hosts allow without CAP_NET_RAW
// (subject to the ping_group_range sysctl).
func pingOnce(ctx context.Context, tgt config.Target, payload int, privileged bool) (time.Duration, bool, error) {
	pg := probing.New(tgt.Address)
	pg.Count = 1
	pg.Size = payload
	pg.Timeout = tgt.Timeout
	pg.SetPrivileged(privileged)

	if err := pg.RunWithContext(ctx); err != nil {
		return 0, false, err
	}
	stats := pg.Statistics()
	if stats.PacketsRecv == 0 {
		return 0, false, nil
	}
	return stats.AvgRtt, true, nil
}

// dialOnce measures a TCP connect. The connection is closed immediately;
// only the handshake time matters.
func dialOnce(ctx context.Context, addr string, timeout time.Duration) (time.Duration, error) {
	d := net.Dialer{Timeout: timeout}
	start := time.Now()
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return 0, err
	}
	elapsed := time.Since(start)
	conn.Close() //nolint:errcheck
	return elapsed, nil
}
