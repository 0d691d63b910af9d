package portscan

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidConcurrency = errors.New("concurrency limit must be at least 1")
	ErrInvalidTimeout     = errors.New("probe timeout must be positive")
)

// ResolutionError means the target could not be mapped to an address.
// The scan for that target is aborted and no record is produced.
type ResolutionError struct {
	Target string
	Err    error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("could not resolve %s: %v", e.Target, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// InvalidRangeError rejects malformed port bounds before any I/O.
type InvalidRangeError struct {
	Start, End int
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid port range %d-%d: bounds must satisfy 1 <= start <= end <= 65535", e.Start, e.End)
}

// ConnectionError is returned by GrabBanner when the connection cannot be established.
type ConnectionError struct {
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ProbeError is an unexpected failure of a single probe. It never aborts a scan.
type ProbeError struct {
	Port uint16
	Err  error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("probe port %d: %v", e.Port, e.Err)
}

func (e *ProbeError) Unwrap() error { return e.Err }

// InterruptedError is returned when the caller cancels a scan mid-flight.
// Interrupted scans are discarded: no record is returned or kept in the session.
type InterruptedError struct {
	Target string
	Err    error
}

func (e *InterruptedError) Error() string {
	return fmt.Sprintf("scan of %s interrupted: %v", e.Target, e.Err)
}

func (e *InterruptedError) Unwrap() error { return e.Err }
