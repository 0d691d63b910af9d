// Package discovery finds live hosts in a contiguous IPv4 range.
package discovery

import (
	"fmt"
	"net/netip"
	"strings"

	"go4.org/netipx"
)

// InvalidSweepError rejects a malformed prefix or suffix bounds before any probing.
type InvalidSweepError struct {
	Prefix     string
	Start, End int
	Reason     string
}

func (e *InvalidSweepError) Error() string {
	return fmt.Sprintf("invalid sweep %s.%d-%d: %s", e.Prefix, e.Start, e.End, e.Reason)
}

// ParseRange builds the address range prefix.start .. prefix.end, where prefix
// is the first three octets of an IPv4 address ("192.168.1").
func ParseRange(prefix string, start, end int) (netipx.IPRange, error) {
	bad := func(reason string) (netipx.IPRange, error) {
		return netipx.IPRange{}, &InvalidSweepError{Prefix: prefix, Start: start, End: end, Reason: reason}
	}
	if start < 0 || end > 255 || start > end {
		return bad("suffixes must satisfy 0 <= start <= end <= 255")
	}
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ".")
	if strings.Count(prefix, ".") != 2 {
		return bad("prefix must be three dotted octets")
	}

	from, err := netip.ParseAddr(fmt.Sprintf("%s.%d", prefix, start))
	if err != nil {
		return bad(err.Error())
	}
	to, err := netip.ParseAddr(fmt.Sprintf("%s.%d", prefix, end))
	if err != nil {
		return bad(err.Error())
	}
	r := netipx.IPRangeFrom(from, to)
	if !r.IsValid() {
		return bad("empty range")
	}
	return r, nil
}

// RangeFromCIDR converts an IPv4 CIDR of /24 or narrower into sweep bounds.
// Network and broadcast addresses are left out for prefixes shorter than /31.
func RangeFromCIDR(cidr string) (prefix string, start, end int, err error) {
	p, err := netip.ParsePrefix(strings.TrimSpace(cidr))
	if err != nil {
		return "", 0, 0, fmt.Errorf("parse cidr: %w", err)
	}
	if !p.Addr().Is4() || p.Bits() < 24 {
		return "", 0, 0, fmt.Errorf("cidr %s: only IPv4 prefixes of /24 or narrower can be swept", cidr)
	}
	r := netipx.RangeOfPrefix(p.Masked())
	start, end = suffix(r.From()), suffix(r.To())
	if p.Bits() < 31 {
		start++
		end--
	}
	return prefixOf(r.From()), start, end, nil
}

// prefixOf renders the first three octets of a, e.g. "192.168.1".
func prefixOf(a netip.Addr) string {
	b := a.As4()
	return fmt.Sprintf("%d.%d.%d", b[0], b[1], b[2])
}

// addrs lists every address of r in ascending order.
func addrs(r netipx.IPRange) []netip.Addr {
	var out []netip.Addr
	for a := r.From(); ; a = a.Next() {
		out = append(out, a)
		if a == r.To() {
			break
		}
	}
	return out
}

func suffix(a netip.Addr) int {
	b := a.As4()
	return int(b[3])
}
