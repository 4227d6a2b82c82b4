package poller

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/netpulse/netpulse/internal/config"
)

// retryBackoff is the fixed delay before the single retry of a failed
// request.
const retryBackoff = 500 * time.Millisecond

// RawSample is one counter reading taken from a device, before any rate
// derivation. Bits records the counter's declared width so wraparound can be
// corrected at the right modulus.
type RawSample struct {
	Target    string
	Metric    string
	Instance  string
	Value     uint64
	Bits      uint8
	Timestamp time.Time
}

// GaugeSample is a point-in-time reading exported as-is.
type GaugeSample struct {
	Target    string
	Metric    string
	Instance  string
	Value     float64
	Timestamp time.Time
}

// Result is the outcome of one poll cycle against one device.
// Partial marks a cycle where some identifiers went unanswered while others
// succeeded; the recorded values are still valid and must be kept.
type Result struct {
	Target   string
	Counters []RawSample
	Gauges   []GaugeSample
	Partial  bool
}

// client is the minimal SNMP operation surface Poll needs. *gosnmp.GoSNMP
// satisfies it; tests substitute an in-memory fake.
type client interface {
	Get(oids []string) (*gosnmp.SnmpPacket, error)
	GetNext(oids []string) (*gosnmp.SnmpPacket, error)
}

// connectFunc opens an SNMP session and returns the client plus a close func.
type connectFunc func(ctx context.Context, tgt config.Target) (client, func() error, error)

// Poller collects interface counters and device scalars over SNMP.
// One Poller serves all snmp targets; sessions are opened per cycle and
// closed before the cycle ends.
type Poller struct {
	connect connectFunc
	now     func() time.Time // injectable for deterministic tests
}

// New creates a Poller that dials real UDP sessions.
func New() *Poller {
	return &Poller{connect: dialSNMP, now: time.Now}
}

// Poll runs one collection cycle against tgt: device scalars first, then one
// GET per interface. A device that answers nothing yields a TransientError;
// per-interface failures and unanswered columns only mark the result partial.
func (p *Poller) Poll(ctx context.Context, tgt config.Target) (*Result, error) {
	cl, closeFn, err := p.connect(ctx, tgt)
	if err != nil {
		return nil, &TransientError{Op: "connect " + tgt.Address, Err: err}
	}
	defer closeFn() //nolint:errcheck

	res := &Result{Target: tgt.Name}

	pkt, err := p.getWithRetry(ctx, cl, "scalars", []string{oidSysUpTime, oidIfNumber})
	if err != nil {
		return nil, err
	}
	scalars := indexPDUs(pkt.Variables)

	if ticks, ok := scalars.num[oidSysUpTime]; ok {
		// sysUpTime is in TimeTicks (hundredths of a second).
		res.Gauges = append(res.Gauges, GaugeSample{
			Target:    tgt.Name,
			Metric:    MetricSysUptime,
			Value:     float64(ticks) / 100,
			Timestamp: p.now(),
		})
	} else {
		res.Partial = true
	}

	indexes, err := p.interfaceIndexes(ctx, cl, scalars, res)
	if err != nil {
		return nil, err
	}

	includeHC := tgt.Version != "1"
	for _, idx := range indexes {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("poller: poll %s: %w", tgt.Name, err)
		}
		if err := p.collectInterface(ctx, cl, tgt, idx, includeHC, res); err != nil {
			slog.Warn("poller: interface poll failed",
				"target", tgt.Name, "index", idx, "err", err)
			res.Partial = true
		}
	}

	return res, nil
}

// interfaceIndexes determines which interface indexes to poll. When the
// device answers ifNumber, indexes 1..n are assumed, matching flat consumer
// and lab devices. Otherwise the ifIndex column is walked, which also covers
// sparse index spaces.
func (p *Poller) interfaceIndexes(ctx context.Context, cl client, scalars pduIndex, res *Result) ([]int, error) {
	if n, ok := scalars.num[oidIfNumber]; ok {
		if n > maxInterfaces {
			n = maxInterfaces
		}
		indexes := make([]int, 0, n)
		for i := 1; i <= int(n); i++ {
			indexes = append(indexes, i)
		}
		return indexes, nil
	}
	return p.walkIndexes(ctx, cl, res)
}

// walkIndexes discovers interface indexes via GETNEXT over the ifIndex
// column, for devices that do not answer ifNumber. The walk stops when the
// returned OID leaves the column, at end-of-MIB, or at maxInterfaces.
func (p *Poller) walkIndexes(ctx context.Context, cl client, res *Result) ([]int, error) {
	var indexes []int
	cur := oidIfIndex
	for len(indexes) < maxInterfaces {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("poller: walk ifIndex: %w", err)
		}
		pkt, err := p.getNextWithRetry(ctx, cl, cur)
		if err != nil {
			if len(indexes) > 0 {
				// Keep what the walk found; the cycle records it as partial.
				slog.Warn("poller: ifIndex walk ended early", "found", len(indexes), "err", err)
				res.Partial = true
				return indexes, nil
			}
			return nil, err
		}
		if len(pkt.Variables) == 0 {
			break
		}
		pdu := pkt.Variables[0]
		name := canonOID(pdu.Name)
		if pdu.Type == gosnmp.EndOfMibView || !strings.HasPrefix(name, oidIfIndex+".") {
			break
		}
		indexes = append(indexes, int(gosnmp.ToBigInt(pdu.Value).Int64()))
		cur = name
	}
	return indexes, nil
}

// collectInterface GETs one interface's columns and appends samples to res.
// Unanswered columns mark the result partial without discarding the columns
// that did answer. High-capacity octet counters are preferred over their
// 32-bit equivalents when the device provides them.
func (p *Poller) collectInterface(ctx context.Context, cl client, tgt config.Target, idx int, includeHC bool, res *Result) error {
	pkt, err := p.getWithRetry(ctx, cl, fmt.Sprintf("interface %d", idx), interfaceOIDs(idx, includeHC))
	if err != nil {
		return err
	}
	vals := indexPDUs(pkt.Variables)
	ts := p.now()

	instance := vals.str[col(oidIfDescr, idx)]
	if instance == "" {
		instance = fmt.Sprintf("if%d", idx)
	}

	gauge := func(metric string, oid string) {
		if v, ok := vals.num[col(oid, idx)]; ok {
			res.Gauges = append(res.Gauges, GaugeSample{
				Target: tgt.Name, Metric: metric, Instance: instance,
				Value: float64(v), Timestamp: ts,
			})
		} else {
			res.Partial = true
		}
	}
	gauge(MetricIfSpeed, oidIfSpeed)
	gauge(MetricIfOperStatus, oidIfOperStatus)

	counter := func(metric string, value uint64, bits uint8) {
		res.Counters = append(res.Counters, RawSample{
			Target: tgt.Name, Metric: metric, Instance: instance,
			Value: value, Bits: bits, Timestamp: ts,
		})
	}

	// Octets: prefer the 64-bit high-capacity columns. Their absence is not
	// a partial result as long as the 32-bit columns answer.
	if v, ok := vals.num[col(oidIfHCInOctets, idx)]; ok {
		counter(MetricIfInOctets, v, 64)
	} else if v, ok := vals.num[col(oidIfInOctets, idx)]; ok {
		counter(MetricIfInOctets, v, 32)
	} else {
		res.Partial = true
	}
	if v, ok := vals.num[col(oidIfHCOutOctets, idx)]; ok {
		counter(MetricIfOutOctets, v, 64)
	} else if v, ok := vals.num[col(oidIfOutOctets, idx)]; ok {
		counter(MetricIfOutOctets, v, 32)
	} else {
		res.Partial = true
	}

	for _, c := range extraColumns {
		if v, ok := vals.num[col(c.oid, idx)]; ok {
			counter(c.metric, v, 32)
		} else {
			res.Partial = true
		}
	}

	return nil
}

// getWithRetry performs one GET, retrying once after retryBackoff when the
// transport fails. An SNMP error status in a delivered response is a
// protocol problem and is not retried.
func (p *Poller) getWithRetry(ctx context.Context, cl client, op string, oids []string) (*gosnmp.SnmpPacket, error) {
	pkt, err := cl.Get(oids)
	if err != nil {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("poller: %s: %w", op, ctx.Err())
		case <-time.After(retryBackoff):
		}
		pkt, err = cl.Get(oids)
		if err != nil {
			return nil, &TransientError{Op: op + " (after retry)", Err: err}
		}
	}
	if pkt.Error != gosnmp.NoError {
		return nil, &ProtocolError{Op: op, Detail: fmt.Sprintf("snmp error status %d", pkt.Error)}
	}
	return pkt, nil
}

// getNextWithRetry mirrors getWithRetry for a single-OID GETNEXT.
func (p *Poller) getNextWithRetry(ctx context.Context, cl client, oid string) (*gosnmp.SnmpPacket, error) {
	pkt, err := cl.GetNext([]string{oid})
	if err != nil {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("poller: getnext: %w", ctx.Err())
		case <-time.After(retryBackoff):
		}
		pkt, err = cl.GetNext([]string{oid})
		if err != nil {
			return nil, &TransientError{Op: "getnext (after retry)", Err: err}
		}
	}
	if pkt.Error != gosnmp.NoError {
		return nil, &ProtocolError{Op: "getnext", Detail: fmt.Sprintf("snmp error status %d", pkt.Error)}
	}
	return pkt, nil
}

// pduIndex holds decoded PDU values from one response, keyed by canonical
// (leading-dot) OID. Absent, null, and end-of-view PDUs are simply not
// present in either map.
type pduIndex struct {
	num map[string]uint64
	str map[string]string
}

func indexPDUs(pdus []gosnmp.SnmpPDU) pduIndex {
	ix := pduIndex{num: make(map[string]uint64), str: make(map[string]string)}
	for _, pdu := range pdus {
		name := canonOID(pdu.Name)
		switch pdu.Type {
		case gosnmp.NoSuchObject, gosnmp.NoSuchInstance, gosnmp.EndOfMibView, gosnmp.Null:
			continue
		case gosnmp.OctetString:
			switch v := pdu.Value.(type) {
			case []byte:
				ix.str[name] = string(v)
			case string:
				ix.str[name] = v
			}
		default:
			ix.num[name] = gosnmp.ToBigInt(pdu.Value).Uint64()
		}
	}
	return ix
}

// canonOID normalizes a PDU name to leading-dot form for map lookups.
func canonOID(name string) string {
	if strings.HasPrefix(name, ".") {
		return name
	}
	return "." + name
}

// dialSNMP opens a UDP session for the target. Retries are disabled on the
// session because the retry policy lives in getWithRetry.
func dialSNMP(ctx context.Context, tgt config.Target) (client, func() error, error) {
	version := gosnmp.Version2c
	if tgt.Version == "1" {
		version = gosnmp.Version1
	}
	g := &gosnmp.GoSNMP{
		Context:   ctx,
		Target:    tgt.Address,
		Port:      tgt.Port,
		Community: tgt.Community,
		Version:   version,
		Timeout:   tgt.Timeout,
		Retries:   0,
		MaxOids:   gosnmp.MaxOids,
	}
	if err := g.Connect(); err != nil {
		return nil, nil, err
	}
	return g, g.Conn.Close, nil
}
