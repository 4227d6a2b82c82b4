package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/netpulse/netpulse/internal/config"
	"github.com/netpulse/netpulse/internal/counters"
	"github.com/netpulse/netpulse/internal/expose"
	"github.com/netpulse/netpulse/internal/poller"
	"github.com/netpulse/netpulse/internal/prober"
	"github.com/netpulse/netpulse/internal/registry"
	"github.com/netpulse/netpulse/internal/sched"
	"github.com/netpulse/netpulse/internal/shipper"
)

// runner routes one scheduled cycle to the collection path for the
// target's kind.
type runner struct {
	poll   *poller.Poller
	ingest *counters.Ingest
	probe  *prober.Prober
	ship   *shipper.Shipper
}

func (r *runner) RunCycle(ctx context.Context, tgt config.Target) sched.Outcome {
	switch tgt.Kind {
	case config.KindSNMP:
		return r.snmpCycle(ctx, tgt)
	case config.KindProbe:
		return r.probeCycle(ctx, tgt)
	default:
		return sched.Outcome{Err: fmt.Errorf("unknown target kind %q", tgt.Kind)}
	}
}

// snmpCycle polls the device and folds the samples into rates and totals.
// A partial poll still applies whatever arrived.
func (r *runner) snmpCycle(ctx context.Context, tgt config.Target) sched.Outcome {
	res, err := r.poll.Poll(ctx, tgt)
	if err != nil {
		r.ship.RecordError(ctx, tgt.Name)
		return sched.Outcome{Err: err}
	}
	r.ingest.Apply(ctx, res)
	return sched.Outcome{Partial: res.Partial}
}

// probeCycle sends one probe. Loss is data and is already recorded in the
// latency windows; for health accounting a probe with no reply is a failed
// cycle.
func (r *runner) probeCycle(ctx context.Context, tgt config.Target) sched.Outcome {
	res := r.probe.Probe(ctx, tgt)
	if !res.OK {
		return sched.Outcome{Err: fmt.Errorf("%s probe: no reply from %s", res.Method, tgt.Address)}
	}
	return sched.Outcome{}
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	slog.Info("netpulse starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"targets", len(cfg.Targets),
		"workers", cfg.Scheduler.Workers,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Watch the config file for edits. Targets are fixed at startup; the
	// watcher only validates and logs a restart notice.
	go func() {
		if err := config.Watch(ctx, *configPath); err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
	}()

	// Optional OTLP push bridge; inert when no endpoint is configured.
	ship, err := shipper.New(ctx, cfg.OTLP)
	if err != nil {
		slog.Error("failed to start otlp shipper", "err", err)
		os.Exit(1)
	}

	reg := registry.New()
	run := &runner{
		poll:   poller.New(),
		ingest: counters.NewIngest(counters.NewEngine(cfg.Rate.MaxPlausibleRate), reg, ship),
		probe:  prober.New(cfg.Probe, reg, ship),
		ship:   ship,
	}

	sc := sched.New(cfg.Scheduler, cfg.Targets, run, reg)
	schedDone := make(chan struct{})
	go func() {
		sc.Run(ctx)
		close(schedDone)
	}()

	httpSrv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: expose.New(reg, sc),
	}
	go func() {
		slog.Info("exposition endpoint listening", "addr", cfg.ListenAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server stopped", "err", err)
		}
	}()

	<-ctx.Done()
	slog.Info("netpulse shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	httpSrv.Shutdown(shutdownCtx) //nolint:errcheck

	// In-flight cycles see the cancelled context and return quickly; give
	// them a bounded window to drain before the final flush.
	select {
	case <-schedDone:
	case <-shutdownCtx.Done():
		slog.Warn("scheduler did not drain before shutdown deadline")
	}

	if err := ship.Shutdown(shutdownCtx); err != nil {
		slog.Warn("otlp shipper shutdown", "err", err)
	}
}
