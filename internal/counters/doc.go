// Package counters owns all rate math for polled device counters.
//
// Engine keeps one baseline per counter stream (target, metric, instance)
// and derives a Rate from each new reading. Wraparound is corrected at the
// counter's declared width: unsigned subtraction handles 64-bit counters,
// 32-bit counters get one modulus added back. A corrected delta that
// implies a rate above the configured plausibility ceiling is classified as
// a device counter reset: the stream reseeds and the interval yields no
// rate. Duplicate and reordered samples are ignored without touching the
// baseline, so a stream can never be corrupted by replayed data.
//
// Ingest layers the registry wiring on top: exposed counters accumulate
// corrected deltas (monotonic regardless of device resets), octet streams
// additionally produce per-direction byte-rate and bandwidth-utilization
// gauges, and throughput is mirrored to the OTLP bridge.
package counters
