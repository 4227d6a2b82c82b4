package sched

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/netpulse/netpulse/internal/config"
	"github.com/netpulse/netpulse/internal/registry"
)

// dispatchRetry is how long the dispatcher waits before re-offering work
// when every worker is busy.
const dispatchRetry = 10 * time.Millisecond

// idleWait bounds the dispatcher's sleep when nothing is due, so config
// pathologies cannot park the loop forever.
const idleWait = time.Minute

// Outcome is what a cycle runner reports back for health accounting. A
// partial cycle counts as a success that still carries an indicator.
type Outcome struct {
	Err     error
	Partial bool
}

// CycleRunner executes one collection cycle for a target. Implementations
// must honor ctx cancellation; the scheduler bounds every cycle with a
// deadline derived from the target's timeout and interval.
type CycleRunner interface {
	RunCycle(ctx context.Context, tgt config.Target) Outcome
}

// TargetStatus is the externally visible state of one scheduled target.
type TargetStatus struct {
	Name                string `json:"name"`
	Kind                string `json:"kind"`
	Address             string `json:"address"`
	State               string `json:"state"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
	LastError           string `json:"last_error,omitempty"`
	LastChange          string `json:"last_change,omitempty"`
	LastSuccess         string `json:"last_success,omitempty"`
	NextCycle           string `json:"next_cycle,omitempty"`
}

// Scheduler drives collection cycles for all configured targets through a
// fixed worker pool. A target is never dispatched while its previous cycle
// is still in flight, so samples for one target are always produced in
// timestamp order and a slow device shifts its own schedule instead of
// overlapping itself.
type Scheduler struct {
	cfg     config.SchedulerConfig
	targets []config.Target
	runner  CycleRunner
	reg     *registry.Registry

	now func() time.Time

	mu     sync.Mutex
	health map[string]*health
	next   map[string]time.Time
}

// New builds a scheduler over the given targets. Every target starts
// healthy and due immediately.
func New(cfg config.SchedulerConfig, targets []config.Target, runner CycleRunner, reg *registry.Registry) *Scheduler {
	s := &Scheduler{
		cfg:     cfg,
		targets: targets,
		runner:  runner,
		reg:     reg,
		now:     time.Now,
		health:  make(map[string]*health, len(targets)),
		next:    make(map[string]time.Time, len(targets)),
	}
	for _, t := range targets {
		s.health[t.Name] = &health{state: StateHealthy, lastChange: s.now()}
	}
	return s
}

type doneMsg struct {
	name    string
	outcome Outcome
}

// Run dispatches cycles until ctx is cancelled, then waits for in-flight
// cycles to drain before returning.
func (s *Scheduler) Run(ctx context.Context) {
	type entry struct {
		tgt      config.Target
		due      time.Time
		inFlight bool
	}

	now := s.now()
	entries := make([]*entry, 0, len(s.targets))
	byName := make(map[string]*entry, len(s.targets))
	for _, t := range s.targets {
		e := &entry{tgt: t, due: now}
		entries = append(entries, e)
		byName[t.Name] = e
		s.setNextDue(t.Name, e.due)
		s.publishHealth(t, StateHealthy, 0)
	}

	workCh := make(chan config.Target)
	// doneCh holds one slot per target: at most one cycle per target is in
	// flight, so workers never block reporting completion during shutdown.
	doneCh := make(chan doneMsg, len(s.targets))

	var wg sync.WaitGroup
	workers := s.cfg.Workers
	if workers <= 0 {
		workers = config.DefaultWorkers
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go s.worker(ctx, &wg, workCh, doneCh)
	}
	defer func() {
		close(workCh)
		wg.Wait()
	}()

	slog.Info("sched: running", "targets", len(entries), "workers", workers)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		wait := idleWait
		dueNow := false
		loopNow := time.Now()
		for _, e := range entries {
			if e.inFlight {
				continue
			}
			d := e.due.Sub(loopNow)
			if d <= 0 {
				dueNow = true
				continue
			}
			if d < wait {
				wait = d
			}
		}
		if dueNow {
			// Either a fresh due entry, dispatched as soon as the timer
			// fires, or one waiting for a free worker.
			wait = dispatchRetry
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)

		select {
		case <-ctx.Done():
			return
		case d := <-doneCh:
			e := byName[d.name]
			e.inFlight = false
			e.due = s.completeCycle(e.tgt, d.outcome)
		case <-timer.C:
			fireNow := time.Now()
			for _, e := range entries {
				if e.inFlight || e.due.After(fireNow) {
					continue
				}
				select {
				case workCh <- e.tgt:
					e.inFlight = true
				default:
					// All workers busy; retried on the next wake-up.
				}
			}
		}
	}
}

func (s *Scheduler) worker(ctx context.Context, wg *sync.WaitGroup, workCh <-chan config.Target, doneCh chan<- doneMsg) {
	defer wg.Done()
	for tgt := range workCh {
		cctx, cancel := context.WithTimeout(ctx, cycleBudget(tgt))
		out := s.runner.RunCycle(cctx, tgt)
		cancel()
		doneCh <- doneMsg{name: tgt.Name, outcome: out}
	}
}

// cycleBudget bounds one cycle's runtime. A cycle may use at most its own
// interval, so a wedged device releases its worker by the time its next
// cycle would be due; the floor leaves room for one attempt plus a retry.
func cycleBudget(tgt config.Target) time.Duration {
	floor := 2*tgt.Timeout + time.Second
	if tgt.Interval > floor {
		return tgt.Interval
	}
	return floor
}

// completeCycle folds a finished cycle into health state and the registry
// and returns when the target is next due.
func (s *Scheduler) completeCycle(tgt config.Target, out Outcome) time.Time {
	now := s.now()
	errMsg := ""
	if out.Err != nil {
		errMsg = out.Err.Error()
	}

	s.mu.Lock()
	h := s.health[tgt.Name]
	prev := h.state
	changed := h.apply(out.Err == nil, errMsg, tgt.DegradedAfter, tgt.DownAfter, now)
	state := h.state
	fails := h.fails
	s.mu.Unlock()

	if changed {
		slog.Info("sched: target state changed",
			"target", tgt.Name, "from", prev, "to", state, "consecutive_failures", fails)
	} else if out.Err != nil {
		slog.Warn("sched: cycle failed",
			"target", tgt.Name, "state", state, "consecutive_failures", fails, "err", out.Err)
	}

	s.publishHealth(tgt, state, fails)
	s.reg.AddCounter("netpulse_cycles_total",
		map[string]string{"target": tgt.Name, "outcome": outcomeLabel(out)}, 1)

	next := now.Add(s.nextInterval(tgt, state))
	s.setNextDue(tgt.Name, next)
	return next
}

func (s *Scheduler) publishHealth(tgt config.Target, state string, fails int) {
	labels := map[string]string{"target": tgt.Name, "kind": tgt.Kind}
	s.reg.SetGauge("netpulse_target_health", labels, healthValue[state])
	s.reg.SetGauge("netpulse_target_consecutive_failures", labels, float64(fails))
}

func outcomeLabel(out Outcome) string {
	switch {
	case out.Err != nil:
		return "error"
	case out.Partial:
		return "partial"
	default:
		return "ok"
	}
}

// nextInterval shapes the target's cadence. Down targets stretch their
// interval by the backoff factor, capped at the configured maximum but
// never below the base interval; every interval then gets bounded jitter
// so cycles against different devices decorrelate instead of bursting.
func (s *Scheduler) nextInterval(tgt config.Target, state string) time.Duration {
	iv := tgt.Interval
	if state == StateDown {
		iv *= time.Duration(s.cfg.BackoffFactor)
		if s.cfg.BackoffMax > 0 && iv > s.cfg.BackoffMax {
			iv = s.cfg.BackoffMax
		}
		if iv < tgt.Interval {
			iv = tgt.Interval
		}
	}
	return s.jitter(iv)
}

func (s *Scheduler) jitter(d time.Duration) time.Duration {
	if s.cfg.JitterPct <= 0 {
		return d
	}
	spread := float64(d) * float64(s.cfg.JitterPct) / 100
	off := (rand.Float64()*2 - 1) * spread //nolint:gosec // schedule spread, not crypto
	return d + time.Duration(off)
}

func (s *Scheduler) setNextDue(name string, due time.Time) {
	s.mu.Lock()
	s.next[name] = due
	s.mu.Unlock()
}

// Statuses reports the current state of every target in configuration
// order.
func (s *Scheduler) Statuses() []TargetStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]TargetStatus, 0, len(s.targets))
	for _, t := range s.targets {
		h := s.health[t.Name]
		st := TargetStatus{
			Name:                t.Name,
			Kind:                t.Kind,
			Address:             t.Address,
			State:               h.state,
			ConsecutiveFailures: h.fails,
			LastError:           h.lastErr,
		}
		if !h.lastChange.IsZero() {
			st.LastChange = h.lastChange.UTC().Format(time.RFC3339)
		}
		if !h.lastSuccess.IsZero() {
			st.LastSuccess = h.lastSuccess.UTC().Format(time.RFC3339)
		}
		if due, ok := s.next[t.Name]; ok && !due.IsZero() {
			st.NextCycle = due.UTC().Format(time.RFC3339)
		}
		out = append(out, st)
	}
	return out
}
