// Package expose is the read side of the collector: the Prometheus text
// exposition on /metrics and a small JSON API for per-target health.
//
// A scrape takes one registry snapshot and renders all of it, so counters,
// gauges, and histograms in one response describe the same moment. Series
// the renderer cannot express are skipped with a warning; they never break
// the scrape for their siblings.
package expose
