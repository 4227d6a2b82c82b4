// Package config loads the collector configuration file (config.yaml).
//
// Top-level types:
//   - Config{ListenAddr, Scheduler, Rate, Probe, OTLP, Targets}: full config
//     tree parsed from YAML
//   - Target: name, kind (snmp|probe), address, port, community, version,
//     method (icmp|tcp), interval, timeout, degraded_after, down_after
//   - SchedulerConfig: workers, jitter_pct, backoff_factor, backoff_max
//   - RateConfig: max_plausible_rate ceiling for the counter rate engine
//   - ProbeConfig: window_size, payload_bytes, privileged
//   - OTLPConfig: endpoint, ship_interval, insecure for the export bridge
//
// Load(path) reads the YAML file, applies defaults (15s SNMP / 10s probe
// cadence, 3s timeouts, thresholds 3/6, window 100, 8 workers), then
// validates required fields and enums. A config with zero valid targets is
// rejected: the process would have nothing to collect.
//
// The configuration is fixed at startup. Watch(ctx, path) only notices
// on-disk edits, validates them, and logs whether a restart would apply them
// cleanly; it never changes the running state.
package config
