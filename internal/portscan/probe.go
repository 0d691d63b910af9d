package portscan

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"syscall"
	"time"
)

// Prober performs a single bounded-time probe of one port.
type Prober interface {
	Probe(ctx context.Context, addr netip.Addr, port uint16, timeout time.Duration) ProbeOutcome
}

// TCPProber probes with a full TCP connect.
type TCPProber struct{}

// Probe dials addr:port once. The connection is closed on every path.
func (TCPProber) Probe(ctx context.Context, addr netip.Addr, port uint16, timeout time.Duration) ProbeOutcome {
	d := net.Dialer{
		Timeout:   timeout,
		KeepAlive: -1, // scanning never reuses the connection
	}

	conn, err := d.DialContext(ctx, "tcp", netip.AddrPortFrom(addr, port).String())
	if err != nil {
		if ctx.Err() == nil && closedOrFiltered(err) {
			return ProbeOutcome{State: StateClosedOrFiltered}
		}
		return ProbeOutcome{State: StateError, Err: &ProbeError{Port: port, Err: err}}
	}
	conn.Close()
	return ProbeOutcome{State: StateOpen, Service: Lookup(port)}
}

// closedOrFiltered reports whether a dial error means the port is closed or
// dropped by a filter, as opposed to a local failure.
func closedOrFiltered(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	// EHOSTUNREACH comes back from a router on the path; a missing local
	// route (ENETUNREACH) is a probe error.
	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EHOSTUNREACH)
}
