// Package poller collects interface counters and device scalars over SNMP
// (v1/v2c GET and GETNEXT via gosnmp).
//
// One cycle per target: sysUpTime and ifNumber first, then one GET per
// interface covering ifDescr, ifSpeed, ifOperStatus, octet counters (64-bit
// ifHC* preferred, 32-bit fallback), errors and discards. Devices that do
// not answer ifNumber get their index space discovered with a bounded
// GETNEXT walk over ifIndex.
//
// Failure is data: a device that answers nothing yields a TransientError
// counted against health thresholds, while unanswered columns or single
// failed interfaces only mark Result.Partial and never discard the sibling
// values that did arrive. Each failed request is retried exactly once after
// a fixed backoff.
//
// The poller performs no rate math; it emits RawSample (counters, with bit
// width) and GaugeSample (levels) for the counters package to digest.
package poller
