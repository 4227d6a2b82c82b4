package poller

import "errors"

// TransientError marks a failure expected to clear on its own: timeouts,
// unreachable hosts, dropped UDP responses. The scheduler counts these
// against the target's health thresholds.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string { return "poller: " + e.Op + ": " + e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// ProtocolError marks a response that arrived but could not be interpreted:
// SNMP error status codes, unexpected PDU types, garbled packets. The
// offending request is skipped; the rest of the cycle continues.
type ProtocolError struct {
	Op     string
	Detail string
}

func (e *ProtocolError) Error() string { return "poller: " + e.Op + ": " + e.Detail }

// IsTransient reports whether err is (or wraps) a TransientError.
func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}
