package portscan

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"NetMonitorGo/internal/fanout"
	"NetMonitorGo/internal/netutil"
)

// Engine scans port ranges of one target at a time and keeps the history of
// completed scans. Scan is not meant to be called concurrently on one Engine.
type Engine struct {
	resolve  netutil.ResolveFunc
	prober   Prober
	limiter  *rate.Limiter
	progress func()
	logger   *zap.Logger

	session Session
}

// Option configures an Engine.
type Option func(*Engine)

// WithResolver replaces the system resolver.
func WithResolver(fn netutil.ResolveFunc) Option {
	return func(e *Engine) { e.resolve = fn }
}

// WithProber replaces the TCP connect prober.
func WithProber(p Prober) Option {
	return func(e *Engine) { e.prober = p }
}

// WithLogger sets the logger; the default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithRateLimit caps probe starts per second. Zero or less means unlimited.
func WithRateLimit(perSecond float64) Option {
	return func(e *Engine) {
		if perSecond > 0 {
			e.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		} else {
			e.limiter = nil
		}
	}
}

// WithProgress registers fn to be called once per finished probe.
// fn is called from many goroutines.
func WithProgress(fn func()) Option {
	return func(e *Engine) { e.progress = fn }
}

// NewEngine creates an engine with the system resolver and the TCP connect prober.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		resolve: netutil.SystemResolver,
		prober:  TCPProber{},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(zap.String("component", "portscan"))
	return e
}

// Session returns a snapshot of every completed scan, oldest first.
func (e *Engine) Session() []ScanRecord {
	return e.session.Records()
}

// Scan probes every port of pr on target with at most concurrency probes in
// flight, each bounded by timeout. The target is resolved exactly once.
//
// It returns a *ResolutionError or *InvalidRangeError for target-level
// failures, an error wrapping fanout.ErrRateBeyondDeadline when the rate
// limit cannot start every probe before ctx's deadline, and an
// *InterruptedError if ctx is canceled or expires. In all those cases no
// record is produced. Per-port failures only show up in ProbeErrors.
func (e *Engine) Scan(ctx context.Context, target string, pr PortRange, concurrency int, timeout time.Duration) (ScanRecord, error) {
	if err := pr.Validate(); err != nil {
		return ScanRecord{}, err
	}
	if concurrency < 1 {
		return ScanRecord{}, fmt.Errorf("%w: got %d", ErrInvalidConcurrency, concurrency)
	}
	if timeout <= 0 {
		return ScanRecord{}, fmt.Errorf("%w: got %s", ErrInvalidTimeout, timeout)
	}

	addr, err := e.resolve(ctx, target)
	if err != nil {
		return ScanRecord{}, &ResolutionError{Target: target, Err: err}
	}
	log := e.logger.With(zap.String("target", target), zap.Stringer("addr", addr))
	log.Debug("scan started",
		zap.Stringer("ports", pr),
		zap.Int("concurrency", concurrency),
		zap.Duration("timeout", timeout))

	start := time.Now()
	found := newCollector()
	var probeErrs atomic.Int64

	err = fanout.Run(ctx, pr.Len(), concurrency, e.limiter, func(ctx context.Context, i int) {
		port := pr.Start + uint16(i)
		out := e.prober.Probe(ctx, addr, port, timeout)
		switch out.State {
		case StateOpen:
			svc := out.Service
			if svc == "" {
				svc = Lookup(port)
			}
			found.add(OpenPort{Port: port, Service: svc})
		case StateError:
			probeErrs.Add(1)
			log.Debug("probe failed", zap.Uint16("port", port), zap.Error(out.Err))
		}
		if e.progress != nil {
			e.progress()
		}
	})
	if errors.Is(err, fanout.ErrRateBeyondDeadline) {
		log.Warn("rate limit cannot finish before the deadline, discarding partial results", zap.Error(err))
		return ScanRecord{}, fmt.Errorf("scan of %s: %w", target, err)
	}
	if err != nil {
		log.Warn("scan interrupted, discarding partial results", zap.Error(err))
		return ScanRecord{}, &InterruptedError{Target: target, Err: err}
	}

	rec := ScanRecord{
		Target:       target,
		Address:      addr,
		StartTime:    start,
		EndTime:      time.Now(),
		Ports:        pr,
		OpenPorts:    found.sorted(),
		PortsScanned: pr.Len(),
		ProbeErrors:  int(probeErrs.Load()),
	}
	log.Info("scan finished",
		zap.Int("open", len(rec.OpenPorts)),
		zap.Int("probe_errors", rec.ProbeErrors),
		zap.Duration("elapsed", rec.Duration()))

	e.session.append(rec)
	return rec.Clone(), nil
}

// collector gathers open ports from concurrent probes, keyed by port.
type collector struct {
	mu    sync.Mutex
	ports map[uint16]OpenPort
}

func newCollector() *collector {
	return &collector{ports: make(map[uint16]OpenPort)}
}

func (c *collector) add(p OpenPort) {
	c.mu.Lock()
	c.ports[p.Port] = p
	c.mu.Unlock()
}

func (c *collector) sorted() []OpenPort {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]OpenPort, 0, len(c.ports))
	for _, p := range c.ports {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Port < out[j].Port })
	return out
}
