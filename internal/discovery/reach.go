package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"syscall"
	"time"
)

// ReachState classifies one reachability check.
type ReachState int

const (
	Unreachable ReachState = iota
	Reachable
	ReachError
)

func (s ReachState) String() string {
	switch s {
	case Reachable:
		return "reachable"
	case Unreachable:
		return "unreachable"
	case ReachError:
		return "error"
	}
	return "unknown"
}

// Reachability is the outcome of a Pinger. Err is set only for ReachError.
type Reachability struct {
	State ReachState
	Err   error
}

// Pinger checks whether a single host answers within timeout.
type Pinger interface {
	Ping(ctx context.Context, addr netip.Addr, timeout time.Duration) Reachability
}

// DefaultReachPorts are tried by TCPPinger when no ports are given.
var DefaultReachPorts = []uint16{80, 443, 22, 445}

// TCPPinger treats a host as reachable when any of Ports accepts a
// connection or actively refuses it. No data is sent.
type TCPPinger struct {
	Ports []uint16
}

// Ping tries each port in turn, each bounded by timeout.
func (p TCPPinger) Ping(ctx context.Context, addr netip.Addr, timeout time.Duration) Reachability {
	ports := p.Ports
	if len(ports) == 0 {
		ports = DefaultReachPorts
	}
	d := net.Dialer{Timeout: timeout, KeepAlive: -1}

	for _, port := range ports {
		conn, err := d.DialContext(ctx, "tcp", netip.AddrPortFrom(addr, port).String())
		if err == nil {
			conn.Close()
			return Reachability{State: Reachable}
		}
		if ctx.Err() != nil {
			return Reachability{State: ReachError, Err: ctx.Err()}
		}
		// an RST means someone is home
		if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
			return Reachability{State: Reachable}
		}
		if !silent(err) {
			return Reachability{State: ReachError, Err: err}
		}
	}
	return Reachability{State: Unreachable}
}

// silent reports errors that just mean nothing answered.
func silent(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) ||
		errors.Is(err, syscall.EHOSTDOWN)
}

// NewPinger picks a reachability check by name: "icmp", "tcp" or "auto".
// "auto" uses ICMP echo when an ICMP socket can be opened and TCP otherwise.
func NewPinger(mode string, tcpPorts []uint16) (Pinger, error) {
	switch mode {
	case "tcp":
		return TCPPinger{Ports: tcpPorts}, nil
	case "icmp":
		p, err := NewICMPPinger()
		if err != nil {
			return nil, err
		}
		return p, nil
	case "auto", "":
		if p, err := NewICMPPinger(); err == nil {
			return p, nil
		}
		return TCPPinger{Ports: tcpPorts}, nil
	}
	return nil, fmt.Errorf("unknown reachability mode %q", mode)
}
