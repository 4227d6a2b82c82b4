// Package sched owns the collection cadence: it dispatches per-target
// cycles to a fixed worker pool, tracks each target's health through a
// consecutive-failure state machine, and shapes intervals with bounded
// jitter and capped backoff for down targets.
//
// One unresponsive device never stalls the rest: cycles run concurrently
// across targets, but a single target is never dispatched while its
// previous cycle is still in flight.
package sched
