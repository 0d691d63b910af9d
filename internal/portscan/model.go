package portscan

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"
	"time"
)

// ProbeState classifies the outcome of a single probe.
type ProbeState int

const (
	StateClosedOrFiltered ProbeState = iota // refused, reset or timed out
	StateOpen                               // connection accepted
	StateError                              // any other socket-level failure
)

func (s ProbeState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosedOrFiltered:
		return "closed|filtered"
	case StateError:
		return "error"
	}
	return "unknown"
}

// ProbeOutcome is the result of probing one port.
// Service is set only for StateOpen, Err only for StateError.
type ProbeOutcome struct {
	State   ProbeState
	Service string
	Err     error
}

// OpenPort is one accepted port annotated with its conventional service name.
type OpenPort struct {
	Port    uint16
	Service string
}

// PortRange is an inclusive range of TCP ports.
type PortRange struct {
	Start uint16
	End   uint16
}

// NewPortRange validates the bounds and returns the range.
func NewPortRange(start, end int) (PortRange, error) {
	if start < 1 || end < 1 || start > 65535 || end > 65535 || start > end {
		return PortRange{}, &InvalidRangeError{Start: start, End: end}
	}
	return PortRange{Start: uint16(start), End: uint16(end)}, nil
}

// ParsePortRange parses "N" or "N-M".
func ParsePortRange(s string) (PortRange, error) {
	s = strings.TrimSpace(s)
	lo, hi, found := strings.Cut(s, "-")
	start, err := strconv.Atoi(strings.TrimSpace(lo))
	if err != nil {
		return PortRange{}, fmt.Errorf("invalid port range %q: %w", s, err)
	}
	end := start
	if found {
		if end, err = strconv.Atoi(strings.TrimSpace(hi)); err != nil {
			return PortRange{}, fmt.Errorf("invalid port range %q: %w", s, err)
		}
	}
	return NewPortRange(start, end)
}

// Validate reports whether the range is usable. The zero value is invalid.
func (r PortRange) Validate() error {
	if r.Start == 0 || r.Start > r.End {
		return &InvalidRangeError{Start: int(r.Start), End: int(r.End)}
	}
	return nil
}

// Len is the number of ports in the range.
func (r PortRange) Len() int {
	return int(r.End) - int(r.Start) + 1
}

func (r PortRange) String() string {
	return fmt.Sprintf("%d-%d", r.Start, r.End)
}

// ScanRecord is the finalized result of one target's port scan.
type ScanRecord struct {
	Target       string
	Address      netip.Addr
	StartTime    time.Time
	EndTime      time.Time
	Ports        PortRange
	OpenPorts    []OpenPort // ascending by port, no duplicates
	PortsScanned int
	ProbeErrors  int
}

// Duration is the wall-clock time of the whole scan.
func (r ScanRecord) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}

// Clone returns a copy that shares no memory with r.
func (r ScanRecord) Clone() ScanRecord {
	c := r
	if r.OpenPorts != nil {
		c.OpenPorts = make([]OpenPort, len(r.OpenPorts))
		copy(c.OpenPorts, r.OpenPorts)
	}
	return c
}
