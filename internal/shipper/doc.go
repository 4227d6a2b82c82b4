// Package shipper bridges collected measurements into an OpenTelemetry
// collector over OTLP/gRPC, alongside the pull-based scrape surface.
//
// Four instruments are exported under the netpulse meter: network.latency
// (histogram, ms), network.packet_loss (counter), network.throughput
// (histogram, By/s), network.errors (counter). The SDK's periodic reader
// owns batching and delivery, so recording never blocks a collection cycle.
//
// The bridge is optional: without an otlp endpoint in the config the
// Shipper is inert and every Record* call returns immediately.
package shipper
