package portscan

import (
	"context"
	"errors"
	"math/rand"
	"net/netip"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"NetMonitorGo/internal/fanout"
)

var testAddr = netip.MustParseAddr("192.0.2.10")

func fixedResolver(ctx context.Context, host string) (netip.Addr, error) {
	return testAddr, nil
}

// fakeProber reports the ports in open as open and records how many probes
// were in flight at the same time.
type fakeProber struct {
	open  map[uint16]bool
	fail  map[uint16]bool
	delay func(port uint16) time.Duration
	live  atomic.Int64
	peak  atomic.Int64
	calls atomic.Int64
}

func (f *fakeProber) Probe(ctx context.Context, addr netip.Addr, port uint16, timeout time.Duration) ProbeOutcome {
	n := f.live.Add(1)
	defer f.live.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	f.calls.Add(1)

	if f.delay != nil {
		select {
		case <-time.After(f.delay(port)):
		case <-ctx.Done():
			return ProbeOutcome{State: StateError, Err: &ProbeError{Port: port, Err: ctx.Err()}}
		}
	}
	switch {
	case f.open[port]:
		return ProbeOutcome{State: StateOpen, Service: Lookup(port)}
	case f.fail[port]:
		return ProbeOutcome{State: StateError, Err: &ProbeError{Port: port, Err: errors.New("too many open files")}}
	}
	return ProbeOutcome{State: StateClosedOrFiltered}
}

func newTestEngine(t *testing.T, p Prober) *Engine {
	return NewEngine(
		WithResolver(fixedResolver),
		WithProber(p),
		WithLogger(zaptest.NewLogger(t)),
	)
}

func mustRange(t *testing.T, start, end int) PortRange {
	t.Helper()
	pr, err := NewPortRange(start, end)
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	return pr
}

func TestScan_SingleSSH(t *testing.T) {
	e := newTestEngine(t, &fakeProber{open: map[uint16]bool{22: true}})

	rec, err := e.Scan(context.Background(), "host.test", mustRange(t, 1, 1024), 100, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []OpenPort{{Port: 22, Service: "ssh"}}
	if !reflect.DeepEqual(rec.OpenPorts, want) {
		t.Fatalf("got %v want %v", rec.OpenPorts, want)
	}
	if rec.Target != "host.test" || rec.Address != testAddr {
		t.Fatalf("unexpected target/address: %s %s", rec.Target, rec.Address)
	}
	if rec.PortsScanned != 1024 {
		t.Fatalf("got %d ports scanned want 1024", rec.PortsScanned)
	}
	if rec.EndTime.Before(rec.StartTime) {
		t.Fatalf("end %v before start %v", rec.EndTime, rec.StartTime)
	}
}

func TestScan_NothingOpen(t *testing.T) {
	for _, r := range [][2]int{{1, 1}, {1, 100}, {65535, 65535}, {1000, 1200}} {
		e := newTestEngine(t, &fakeProber{})
		rec, err := e.Scan(context.Background(), "host.test", mustRange(t, r[0], r[1]), 50, time.Second)
		if err != nil {
			t.Fatalf("range %v: unexpected error: %v", r, err)
		}
		if len(rec.OpenPorts) != 0 {
			t.Fatalf("range %v: expected no open ports, got %v", r, rec.OpenPorts)
		}
	}
}

func TestScan_SortedRegardlessOfCompletionOrder(t *testing.T) {
	open := map[uint16]bool{}
	for _, p := range []uint16{3, 17, 80, 81, 443, 500, 999} {
		open[p] = true
	}
	// later ports finish first
	fp := &fakeProber{
		open:  open,
		delay: func(port uint16) time.Duration { return time.Duration(1000-int(port)) * 10 * time.Microsecond },
	}
	e := newTestEngine(t, fp)

	rec, err := e.Scan(context.Background(), "host.test", mustRange(t, 1, 1000), 200, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rec.OpenPorts) != len(open) {
		t.Fatalf("got %d open ports want %d", len(rec.OpenPorts), len(open))
	}
	for i := 1; i < len(rec.OpenPorts); i++ {
		if rec.OpenPorts[i-1].Port >= rec.OpenPorts[i].Port {
			t.Fatalf("not strictly ascending: %v", rec.OpenPorts)
		}
	}
}

func TestScan_ConcurrencyLimit(t *testing.T) {
	for _, limit := range []int{1, 8, 64} {
		fp := &fakeProber{
			delay: func(uint16) time.Duration { return time.Duration(rand.Intn(500)) * time.Microsecond },
		}
		e := newTestEngine(t, fp)
		if _, err := e.Scan(context.Background(), "host.test", mustRange(t, 1, 400), limit, time.Second); err != nil {
			t.Fatalf("limit %d: unexpected error: %v", limit, err)
		}
		if fp.peak.Load() > int64(limit) {
			t.Fatalf("limit %d: peak in-flight %d", limit, fp.peak.Load())
		}
		if fp.calls.Load() != 400 {
			t.Fatalf("limit %d: got %d probes want 400", limit, fp.calls.Load())
		}
	}
}

func TestScan_Idempotent(t *testing.T) {
	fp := &fakeProber{open: map[uint16]bool{21: true, 80: true, 8080: true}}
	e := newTestEngine(t, fp)
	pr := mustRange(t, 1, 9000)

	first, err := e.Scan(context.Background(), "host.test", pr, 300, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := e.Scan(context.Background(), "host.test", pr, 300, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(first.OpenPorts, second.OpenPorts) {
		t.Fatalf("runs differ: %v vs %v", first.OpenPorts, second.OpenPorts)
	}
	if got := len(e.Session()); got != 2 {
		t.Fatalf("session has %d records want 2", got)
	}
}

func TestScan_ProbeErrorsDoNotAbort(t *testing.T) {
	fp := &fakeProber{
		open: map[uint16]bool{10: true},
		fail: map[uint16]bool{11: true, 12: true},
	}
	e := newTestEngine(t, fp)

	rec, err := e.Scan(context.Background(), "host.test", mustRange(t, 1, 20), 4, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.ProbeErrors != 2 {
		t.Fatalf("got %d probe errors want 2", rec.ProbeErrors)
	}
	if want := []OpenPort{{Port: 10, Service: "unknown"}}; !reflect.DeepEqual(rec.OpenPorts, want) {
		t.Fatalf("got %v want %v", rec.OpenPorts, want)
	}
}

func TestScan_ResolutionFailure(t *testing.T) {
	fp := &fakeProber{}
	e := NewEngine(WithProber(fp), WithLogger(zaptest.NewLogger(t)))

	_, err := e.Scan(context.Background(), "no-such-host.invalid", mustRange(t, 1, 100), 10, time.Second)
	var re *ResolutionError
	if !errors.As(err, &re) {
		t.Fatalf("got %v want *ResolutionError", err)
	}
	if re.Target != "no-such-host.invalid" {
		t.Fatalf("got target %q", re.Target)
	}
	if fp.calls.Load() != 0 {
		t.Fatalf("probes ran after failed resolution")
	}
	if len(e.Session()) != 0 {
		t.Fatalf("failed scan was added to the session")
	}
}

func TestScan_ResolvesOnce(t *testing.T) {
	var lookups atomic.Int32
	e := NewEngine(
		WithProber(&fakeProber{}),
		WithResolver(func(ctx context.Context, host string) (netip.Addr, error) {
			lookups.Add(1)
			return testAddr, nil
		}),
	)
	if _, err := e.Scan(context.Background(), "host.test", mustRange(t, 1, 500), 50, time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lookups.Load() != 1 {
		t.Fatalf("resolved %d times want 1", lookups.Load())
	}
}

func TestScan_InvalidArguments(t *testing.T) {
	fp := &fakeProber{}
	e := newTestEngine(t, fp)
	ctx := context.Background()

	var ire *InvalidRangeError
	if _, err := e.Scan(ctx, "host.test", PortRange{Start: 100, End: 10}, 10, time.Second); !errors.As(err, &ire) {
		t.Fatalf("reversed range: got %v", err)
	}
	if _, err := e.Scan(ctx, "host.test", PortRange{}, 10, time.Second); !errors.As(err, &ire) {
		t.Fatalf("zero range: got %v", err)
	}
	if _, err := e.Scan(ctx, "host.test", mustRange(t, 1, 10), 0, time.Second); !errors.Is(err, ErrInvalidConcurrency) {
		t.Fatalf("zero concurrency: got %v", err)
	}
	if _, err := e.Scan(ctx, "host.test", mustRange(t, 1, 10), 5, 0); !errors.Is(err, ErrInvalidTimeout) {
		t.Fatalf("zero timeout: got %v", err)
	}
	if fp.calls.Load() != 0 {
		t.Fatalf("probes ran for invalid arguments")
	}
}

func TestScan_InterruptedIsDiscarded(t *testing.T) {
	fp := &fakeProber{
		open:  map[uint16]bool{1: true, 2: true},
		delay: func(uint16) time.Duration { return 20 * time.Millisecond },
	}
	e := newTestEngine(t, fp)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)
	defer cancel()

	rec, err := e.Scan(ctx, "host.test", mustRange(t, 1, 2000), 10, time.Second)
	var ie *InterruptedError
	if !errors.As(err, &ie) {
		t.Fatalf("got %v want *InterruptedError", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled in chain, got %v", err)
	}
	if rec.OpenPorts != nil || rec.Target != "" {
		t.Fatalf("interrupted scan returned a record: %+v", rec)
	}
	if fp.live.Load() != 0 {
		t.Fatalf("%d probes still running after Scan returned", fp.live.Load())
	}
	if len(e.Session()) != 0 {
		t.Fatalf("interrupted scan was added to the session")
	}
}

func TestScan_RateLimited(t *testing.T) {
	fp := &fakeProber{open: map[uint16]bool{5: true}}
	e := NewEngine(WithResolver(fixedResolver), WithProber(fp), WithRateLimit(2000))

	rec, err := e.Scan(context.Background(), "host.test", mustRange(t, 1, 20), 20, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rec.OpenPorts) != 1 || fp.calls.Load() != 20 {
		t.Fatalf("got %v after %d probes", rec.OpenPorts, fp.calls.Load())
	}
}

func TestScan_RateBeyondDeadlineIsNotAnInterrupt(t *testing.T) {
	fp := &fakeProber{}
	e := NewEngine(WithResolver(fixedResolver), WithProber(fp), WithRateLimit(1), WithLogger(zaptest.NewLogger(t)))

	ctx, cancel := context.WithTimeout(context.Background(), 1500*time.Millisecond)
	defer cancel()

	_, err := e.Scan(ctx, "host.test", mustRange(t, 1, 5), 5, time.Second)
	if !errors.Is(err, fanout.ErrRateBeyondDeadline) {
		t.Fatalf("got %v want ErrRateBeyondDeadline", err)
	}
	var ie *InterruptedError
	if errors.As(err, &ie) {
		t.Fatalf("reported as interrupted although ctx is live: %v", err)
	}
	if len(e.Session()) != 0 {
		t.Fatalf("incomplete scan was added to the session")
	}
}

func TestScan_Progress(t *testing.T) {
	var ticks atomic.Int64
	e := NewEngine(
		WithResolver(fixedResolver),
		WithProber(&fakeProber{}),
		WithProgress(func() { ticks.Add(1) }),
	)
	if _, err := e.Scan(context.Background(), "host.test", mustRange(t, 100, 199), 16, time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ticks.Load() != 100 {
		t.Fatalf("got %d progress ticks want 100", ticks.Load())
	}
}

func TestSession_SnapshotsAreIsolated(t *testing.T) {
	e := newTestEngine(t, &fakeProber{open: map[uint16]bool{80: true}})
	rec, err := e.Scan(context.Background(), "host.test", mustRange(t, 79, 81), 3, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec.OpenPorts[0].Service = "mutated"
	snap := e.Session()
	snap[0].OpenPorts[0].Port = 1

	again := e.Session()
	if again[0].OpenPorts[0] != (OpenPort{Port: 80, Service: "http"}) {
		t.Fatalf("session record was mutated through a returned value: %v", again[0].OpenPorts)
	}
}
