package poller

import "strconv"

// IF-MIB and SNMPv2-MIB object identifiers, written with the leading dot
// gosnmp uses in response PDU names.
const (
	oidSysUpTime = ".1.3.6.1.2.1.1.3.0"
	oidIfNumber  = ".1.3.6.1.2.1.2.1.0"

	oidIfIndex      = ".1.3.6.1.2.1.2.2.1.1"
	oidIfDescr      = ".1.3.6.1.2.1.2.2.1.2"
	oidIfSpeed      = ".1.3.6.1.2.1.2.2.1.5"
	oidIfOperStatus = ".1.3.6.1.2.1.2.2.1.8"

	oidIfInOctets    = ".1.3.6.1.2.1.2.2.1.10"
	oidIfInDiscards  = ".1.3.6.1.2.1.2.2.1.13"
	oidIfInErrors    = ".1.3.6.1.2.1.2.2.1.14"
	oidIfOutOctets   = ".1.3.6.1.2.1.2.2.1.16"
	oidIfOutDiscards = ".1.3.6.1.2.1.2.2.1.19"
	oidIfOutErrors   = ".1.3.6.1.2.1.2.2.1.20"

	oidIfHCInOctets  = ".1.3.6.1.2.1.31.1.1.1.6"
	oidIfHCOutOctets = ".1.3.6.1.2.1.31.1.1.1.10"
)

// Metric keys carried in RawSample.Metric and GaugeSample.Metric.
// The ingest layer maps them to exposition names.
const (
	MetricSysUptime     = "system_uptime_seconds"
	MetricIfInOctets    = "if_in_octets"
	MetricIfOutOctets   = "if_out_octets"
	MetricIfInErrors    = "if_in_errors"
	MetricIfOutErrors   = "if_out_errors"
	MetricIfInDiscards  = "if_in_discards"
	MetricIfOutDiscards = "if_out_discards"
	MetricIfSpeed       = "if_speed_bits_per_second"
	MetricIfOperStatus  = "if_oper_status"
)

// maxInterfaces bounds index discovery so a misbehaving agent cannot walk
// the poller into an endless loop.
const maxInterfaces = 1024

// extraColumns are the 32-bit error and discard counter columns collected
// for every interface.
var extraColumns = []struct {
	oid    string
	metric string
}{
	{oidIfInErrors, MetricIfInErrors},
	{oidIfOutErrors, MetricIfOutErrors},
	{oidIfInDiscards, MetricIfInDiscards},
	{oidIfOutDiscards, MetricIfOutDiscards},
}

// interfaceOIDs lists the per-interface OIDs for one GET request.
// High-capacity octet columns are skipped on SNMPv1, where a single unknown
// OID fails the whole request.
func interfaceOIDs(idx int, includeHC bool) []string {
	suffix := "." + strconv.Itoa(idx)
	oids := []string{
		oidIfDescr + suffix,
		oidIfSpeed + suffix,
		oidIfOperStatus + suffix,
		oidIfInOctets + suffix,
		oidIfOutOctets + suffix,
	}
	if includeHC {
		oids = append(oids, oidIfHCInOctets+suffix, oidIfHCOutOctets+suffix)
	}
	for _, c := range extraColumns {
		oids = append(oids, c.oid+suffix)
	}
	return oids
}

// col builds the instance OID for a column and interface index.
func col(oid string, idx int) string {
	return oid + "." + strconv.Itoa(idx)
}
