// Package prober actively measures reachability and round-trip latency.
//
// ICMP echo probes (pro-bing, unprivileged datagram sockets by default) are
// the primary method; targets whose environment cannot open an ICMP socket
// switch permanently to timed TCP connects, logged once. A probe that times
// out is a measurement, not an error.
//
// Per target the prober retains two fixed-capacity windows: round-trip
// times of successful probes and the outcome of every probe. From these it
// derives nearest-rank p50/p95/p99 latency percentiles and a loss ratio
// over the window's current length, republished into the registry after
// every cycle together with the latency histogram, loss counter, and
// probe-up gauge.
package prober
