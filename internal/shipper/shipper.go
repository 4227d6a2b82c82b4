package shipper

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/netpulse/netpulse/internal/config"
)

// Shipper pushes probe and rate measurements to an OpenTelemetry collector
// over OTLP/gRPC. Batching, export cadence, and retry live in the SDK's
// periodic reader, so Record* calls only touch in-process instruments and
// never block on the network.
//
// A Shipper built without an endpoint is inert: every method no-ops. The
// scrape surface is unaffected either way; the bridge is strictly additive.
type Shipper struct {
	provider *sdkmetric.MeterProvider

	latency    metric.Float64Histogram
	loss       metric.Int64Counter
	throughput metric.Float64Histogram
	errs       metric.Int64Counter
}

// New creates a Shipper for cfg. An empty endpoint yields a disabled
// Shipper and no error.
func New(ctx context.Context, cfg config.OTLPConfig) (*Shipper, error) {
	if cfg.Endpoint == "" {
		return &Shipper{}, nil
	}

	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exp, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("shipper: create otlp exporter: %w", err)
	}

	s, err := newWithReader(sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(cfg.ShipInterval)))
	if err != nil {
		return nil, err
	}
	slog.Info("shipper: otlp export enabled", "endpoint", cfg.Endpoint, "interval", cfg.ShipInterval)
	return s, nil
}

// newWithReader wires the provider and instruments against reader. Tests
// pass a manual reader to inspect recorded data without a network.
func newWithReader(reader sdkmetric.Reader) (*Shipper, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName("netpulse")),
	)
	if err != nil {
		return nil, fmt.Errorf("shipper: build resource: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	meter := provider.Meter("netpulse")

	latency, err := meter.Float64Histogram("network.latency",
		metric.WithUnit("ms"),
		metric.WithDescription("Round-trip time to probed targets"))
	if err != nil {
		return nil, fmt.Errorf("shipper: create latency instrument: %w", err)
	}
	loss, err := meter.Int64Counter("network.packet_loss",
		metric.WithDescription("Probe attempts that received no reply"))
	if err != nil {
		return nil, fmt.Errorf("shipper: create loss instrument: %w", err)
	}
	throughput, err := meter.Float64Histogram("network.throughput",
		metric.WithUnit("By/s"),
		metric.WithDescription("Interface throughput derived from octet counters"))
	if err != nil {
		return nil, fmt.Errorf("shipper: create throughput instrument: %w", err)
	}
	errs, err := meter.Int64Counter("network.errors",
		metric.WithDescription("Collection cycles that ended in an error"))
	if err != nil {
		return nil, fmt.Errorf("shipper: create errors instrument: %w", err)
	}

	return &Shipper{
		provider:   provider,
		latency:    latency,
		loss:       loss,
		throughput: throughput,
		errs:       errs,
	}, nil
}

// Enabled reports whether measurements are actually exported.
func (s *Shipper) Enabled() bool { return s != nil && s.provider != nil }

// RecordLatency records one round-trip time in milliseconds.
func (s *Shipper) RecordLatency(ctx context.Context, target, method string, ms float64) {
	if !s.Enabled() {
		return
	}
	s.latency.Record(ctx, ms, metric.WithAttributes(
		attribute.String("target", target),
		attribute.String("protocol", method),
	))
}

// RecordLoss counts one probe that received no reply.
func (s *Shipper) RecordLoss(ctx context.Context, target, method string) {
	if !s.Enabled() {
		return
	}
	s.loss.Add(ctx, 1, metric.WithAttributes(
		attribute.String("target", target),
		attribute.String("protocol", method),
	))
}

// RecordThroughput records the byte rate of one interface direction over
// the last poll interval.
func (s *Shipper) RecordThroughput(ctx context.Context, target, iface, direction string, bytesPerSec float64) {
	if !s.Enabled() {
		return
	}
	s.throughput.Record(ctx, bytesPerSec, metric.WithAttributes(
		attribute.String("target", target),
		attribute.String("interface", iface),
		attribute.String("direction", direction),
	))
}

// RecordError counts one failed collection cycle.
func (s *Shipper) RecordError(ctx context.Context, target string) {
	if !s.Enabled() {
		return
	}
	s.errs.Add(ctx, 1, metric.WithAttributes(attribute.String("target", target)))
}

// Shutdown flushes buffered measurements and stops the exporter.
func (s *Shipper) Shutdown(ctx context.Context) error {
	if !s.Enabled() {
		return nil
	}
	return s.provider.Shutdown(ctx)
}
