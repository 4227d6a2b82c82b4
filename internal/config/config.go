package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultListenAddr    = ":9109"
	DefaultSNMPInterval  = 15 * time.Second
	DefaultProbeInterval = 10 * time.Second
	DefaultTimeout       = 3 * time.Second
	DefaultCommunity     = "public"
	DefaultSNMPVersion   = "2c"
	DefaultSNMPPort      = 161
	DefaultTCPProbePort  = 80
	DefaultDegradedAfter = 3
	DefaultDownAfter     = 6
	DefaultWindowSize    = 100
	DefaultPayloadBytes  = 56
	DefaultWorkers       = 8
	DefaultJitterPct     = 10
	DefaultBackoffFactor = 4
	DefaultBackoffMax    = 5 * time.Minute
	DefaultShipInterval  = 10 * time.Second

	// DefaultMaxPlausibleRate is the ceiling on a believable per-second
	// counter delta, in bytes/s. 1.25e9 B/s is 10 Gbit/s line rate; anything
	// above it after wraparound correction is treated as a counter reset.
	DefaultMaxPlausibleRate = 1.25e9
)

// Target kinds.
const (
	KindSNMP  = "snmp"
	KindProbe = "probe"
)

// Probe methods.
const (
	MethodICMP = "icmp"
	MethodTCP  = "tcp"
)

// Config is the top-level configuration for the collector.
// Fields map 1:1 to config.example.yaml.
type Config struct {
	// ListenAddr is the host:port the exposition HTTP server binds to.
	ListenAddr string `yaml:"listen_addr"`

	// Scheduler holds worker-pool and cadence-shaping settings.
	Scheduler SchedulerConfig `yaml:"scheduler"`

	// Rate holds settings for the counter rate engine.
	Rate RateConfig `yaml:"rate"`

	// Probe holds settings shared by all probe targets.
	Probe ProbeConfig `yaml:"probe"`

	// OTLP configures the optional OpenTelemetry export bridge.
	OTLP OTLPConfig `yaml:"otlp"`

	// Targets is the list of devices and endpoints to collect from.
	// Loaded once at startup; changes on disk require a restart.
	Targets []Target `yaml:"targets"`
}

// SchedulerConfig shapes how target cycles are dispatched.
type SchedulerConfig struct {
	// Workers is the fixed size of the cycle worker pool.
	Workers int `yaml:"workers"`

	// JitterPct is the bounded random spread applied to each nominal
	// interval, in percent. 10 means ±10%.
	JitterPct int `yaml:"jitter_pct"`

	// BackoffFactor multiplies a down target's interval so an unreachable
	// device is not hammered at full cadence.
	BackoffFactor int `yaml:"backoff_factor"`

	// BackoffMax caps the stretched interval for down targets.
	BackoffMax time.Duration `yaml:"backoff_max"`
}

// RateConfig tunes the rate/wraparound engine.
type RateConfig struct {
	// MaxPlausibleRate is the highest believable counter rate in bytes/s.
	// Deltas exceeding MaxPlausibleRate × elapsed are classified as counter
	// resets (device reboot) rather than wraparound, and discarded.
	// The tradeoff: too low misreads a genuine burst on a fast link as a
	// reset (lost interval); too high reports a reboot as an absurd spike.
	MaxPlausibleRate float64 `yaml:"max_plausible_rate"`
}

// ProbeConfig holds settings shared by all probe targets.
type ProbeConfig struct {
	// WindowSize is the capacity of the per-target latency and loss rings.
	WindowSize int `yaml:"window_size"`

	// PayloadBytes is the ICMP echo payload size.
	PayloadBytes int `yaml:"payload_bytes"`

	// Privileged selects raw-socket ICMP instead of unprivileged UDP-ICMP.
	// Requires CAP_NET_RAW or root.
	Privileged bool `yaml:"privileged"`
}

// OTLPConfig configures the push bridge to an OpenTelemetry collector.
// The bridge is disabled when Endpoint is empty.
type OTLPConfig struct {
	// Endpoint is the OTLP/gRPC address (host:port) of the collector.
	Endpoint string `yaml:"endpoint"`

	// ShipInterval controls how often buffered measurements are exported.
	ShipInterval time.Duration `yaml:"ship_interval"`

	// Insecure disables TLS on the exporter connection (local collectors).
	Insecure bool `yaml:"insecure"`
}

// Target describes one monitored device or endpoint.
// Targets are immutable for the lifetime of the process.
type Target struct {
	// Name is a unique, human-readable identifier; it becomes the "target"
	// label on every series this target produces.
	Name string `yaml:"name"`

	// Kind is the collection paradigm: snmp (counter polling) or
	// probe (active latency/loss measurement).
	Kind string `yaml:"kind"`

	// Address is the host to poll or probe (IP or DNS name).
	Address string `yaml:"address"`

	// Port is the SNMP UDP port for snmp targets (default 161) and the
	// connect port for tcp probes (default 80). Unused by icmp probes.
	Port uint16 `yaml:"port"`

	// Community is the SNMPv1/v2c community string.
	Community string `yaml:"community"`

	// Version is the SNMP protocol version: "1" or "2c".
	Version string `yaml:"version"`

	// Method selects the probe mechanism for probe targets: icmp (default)
	// or tcp. ICMP probes fall back to tcp when raw/datagram ICMP sockets
	// are unavailable.
	Method string `yaml:"method"`

	// Interval is the nominal poll/probe cadence.
	Interval time.Duration `yaml:"interval"`

	// Timeout bounds a single poll/probe request.
	Timeout time.Duration `yaml:"timeout"`

	// DegradedAfter is the consecutive-failure count at which the target
	// transitions healthy→degraded.
	DegradedAfter int `yaml:"degraded_after"`

	// DownAfter is the consecutive-failure count at which the target
	// transitions degraded→down. Must be greater than DegradedAfter.
	DownAfter int `yaml:"down_after"`
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with sensible defaults.
// An empty or invalid target list is an error: the process has nothing to do.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	applyTargetDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
// Per-target defaults are applied after unmarshal by applyTargetDefaults,
// since the target list length is not known up front.
func defaults() *Config {
	return &Config{
		ListenAddr: DefaultListenAddr,
		Scheduler: SchedulerConfig{
			Workers:       DefaultWorkers,
			JitterPct:     DefaultJitterPct,
			BackoffFactor: DefaultBackoffFactor,
			BackoffMax:    DefaultBackoffMax,
		},
		Rate: RateConfig{
			MaxPlausibleRate: DefaultMaxPlausibleRate,
		},
		Probe: ProbeConfig{
			WindowSize:   DefaultWindowSize,
			PayloadBytes: DefaultPayloadBytes,
		},
		OTLP: OTLPConfig{
			ShipInterval: DefaultShipInterval,
		},
	}
}

// applyTargetDefaults fills zero-valued per-target fields.
func applyTargetDefaults(cfg *Config) {
	for i := range cfg.Targets {
		t := &cfg.Targets[i]
		if t.Interval == 0 {
			if t.Kind == KindProbe {
				t.Interval = DefaultProbeInterval
			} else {
				t.Interval = DefaultSNMPInterval
			}
		}
		if t.Timeout == 0 {
			t.Timeout = DefaultTimeout
		}
		if t.DegradedAfter == 0 {
			t.DegradedAfter = DefaultDegradedAfter
		}
		if t.DownAfter == 0 {
			t.DownAfter = DefaultDownAfter
		}
		switch t.Kind {
		case KindSNMP:
			if t.Port == 0 {
				t.Port = DefaultSNMPPort
			}
			if t.Community == "" {
				t.Community = DefaultCommunity
			}
			if t.Version == "" {
				t.Version = DefaultSNMPVersion
			}
		case KindProbe:
			if t.Method == "" {
				t.Method = MethodICMP
			}
			if t.Port == 0 {
				t.Port = DefaultTCPProbePort
			}
		}
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	if cfg.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required")
	}
	if cfg.Scheduler.Workers <= 0 {
		return fmt.Errorf("scheduler.workers must be positive")
	}
	if cfg.Scheduler.JitterPct < 0 || cfg.Scheduler.JitterPct > 50 {
		return fmt.Errorf("scheduler.jitter_pct must be in [0, 50]")
	}
	if cfg.Scheduler.BackoffFactor < 1 {
		return fmt.Errorf("scheduler.backoff_factor must be at least 1")
	}
	if cfg.Rate.MaxPlausibleRate <= 0 {
		return fmt.Errorf("rate.max_plausible_rate must be positive")
	}
	if cfg.Probe.WindowSize <= 0 {
		return fmt.Errorf("probe.window_size must be positive")
	}
	if len(cfg.Targets) == 0 {
		return fmt.Errorf("at least one target is required")
	}

	seen := make(map[string]bool, len(cfg.Targets))
	for i, t := range cfg.Targets {
		if t.Name == "" {
			return fmt.Errorf("targets[%d]: name is required", i)
		}
		if seen[t.Name] {
			return fmt.Errorf("targets[%d] %q: duplicate name", i, t.Name)
		}
		seen[t.Name] = true

		if t.Address == "" {
			return fmt.Errorf("targets[%d] %q: address is required", i, t.Name)
		}
		if t.Interval <= 0 {
			return fmt.Errorf("targets[%d] %q: interval must be positive", i, t.Name)
		}
		if t.Timeout <= 0 {
			return fmt.Errorf("targets[%d] %q: timeout must be positive", i, t.Name)
		}
		if t.DegradedAfter <= 0 || t.DownAfter <= t.DegradedAfter {
			return fmt.Errorf("targets[%d] %q: thresholds must satisfy 0 < degraded_after < down_after", i, t.Name)
		}

		switch t.Kind {
		case KindSNMP:
			switch t.Version {
			case "1", "2c":
			default:
				return fmt.Errorf("targets[%d] %q: unknown snmp version %q", i, t.Name, t.Version)
			}
		case KindProbe:
			switch t.Method {
			case MethodICMP, MethodTCP:
			default:
				return fmt.Errorf("targets[%d] %q: unknown probe method %q", i, t.Name, t.Method)
			}
		default:
			return fmt.Errorf("targets[%d] %q: unknown kind %q", i, t.Name, t.Kind)
		}
	}
	return nil
}
