// Package registry holds the current value of every metric series the
// collector produces and is the only data shared between the collection
// goroutines and the exposition endpoint.
//
// Series identity is metric name plus sorted label set. Three kinds are
// supported: counter (accumulated total, never decreases), gauge (last value
// wins), histogram (fixed bucket bounds, cumulative counts, sum and count).
//
// All mutation goes through SetGauge / AddCounter / ObserveHistogram, which
// serialize on one write lock. Snapshot deep-copies the whole series map so
// a scrape never observes a half-applied update and never blocks collection
// for longer than the copy takes.
package registry
