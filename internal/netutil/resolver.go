// Package netutil maps scan targets to addresses.
package netutil

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"

	"github.com/miekg/dns"
)

// ResolveFunc maps a hostname or literal address to a single address.
type ResolveFunc func(ctx context.Context, host string) (netip.Addr, error)

// ErrNoAddress is returned when a lookup succeeds but yields no usable address.
var ErrNoAddress = errors.New("no address records found for host")

// parseLiteral accepts IPv4 and IPv6 literals; IPv4-mapped IPv6 is unmapped.
func parseLiteral(host string) (netip.Addr, bool) {
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}

// SystemResolver resolves through the operating system resolver, preferring
// the first IPv4 address. Literal addresses are returned without a lookup.
func SystemResolver(ctx context.Context, host string) (netip.Addr, error) {
	if addr, ok := parseLiteral(host); ok {
		return addr, nil
	}
	addrs, err := net.DefaultResolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return netip.Addr{}, err
	}
	return pickAddr(addrs)
}

func pickAddr(addrs []netip.Addr) (netip.Addr, error) {
	var first netip.Addr
	for _, a := range addrs {
		a = a.Unmap()
		if a.Is4() {
			return a, nil
		}
		if !first.IsValid() {
			first = a
		}
	}
	if first.IsValid() {
		return first, nil
	}
	return netip.Addr{}, ErrNoAddress
}

// DNSResolver returns a ResolveFunc that queries server directly ("host" or
// "host:port", port 53 by default) instead of the system resolver. A records
// are preferred; a name without any falls back to AAAA. Truncated UDP replies
// are retried over TCP.
func DNSResolver(server string) ResolveFunc {
	if _, _, err := net.SplitHostPort(server); err != nil {
		server = net.JoinHostPort(server, "53")
	}
	udp := &dns.Client{Net: "udp"}
	tcp := &dns.Client{Net: "tcp"}

	query := func(ctx context.Context, host string, qtype uint16) ([]dns.RR, error) {
		m := new(dns.Msg)
		m.SetQuestion(dns.Fqdn(host), qtype)
		m.RecursionDesired = true

		in, _, err := udp.ExchangeContext(ctx, m, server)
		if err == nil && in.Truncated {
			in, _, err = tcp.ExchangeContext(ctx, m, server)
		}
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", server, err)
		}
		if in.Rcode != dns.RcodeSuccess {
			return nil, fmt.Errorf("lookup %s: %s", host, dns.RcodeToString[in.Rcode])
		}
		return in.Answer, nil
	}

	return func(ctx context.Context, host string) (netip.Addr, error) {
		if addr, ok := parseLiteral(host); ok {
			return addr, nil
		}

		answer, err := query(ctx, host, dns.TypeA)
		if err != nil {
			return netip.Addr{}, err
		}
		for _, rr := range answer {
			if a, ok := rr.(*dns.A); ok {
				if addr, ok := netip.AddrFromSlice(a.A.To4()); ok {
					return addr, nil
				}
			}
		}

		answer, err = query(ctx, host, dns.TypeAAAA)
		if err != nil {
			return netip.Addr{}, err
		}
		for _, rr := range answer {
			if aaaa, ok := rr.(*dns.AAAA); ok {
				if addr, ok := netip.AddrFromSlice(aaaa.AAAA.To16()); ok {
					return addr.Unmap(), nil
				}
			}
		}
		return netip.Addr{}, ErrNoAddress
	}
}
