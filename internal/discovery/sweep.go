package discovery

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"NetMonitorGo/internal/fanout"
)

// LiveHost is an address that answered during a sweep.
type LiveHost struct {
	Addr   netip.Addr
	Suffix int
}

// SweepResult holds the live hosts of one sweep, ascending by suffix.
// Unreachable and errored hosts are only counted.
type SweepResult struct {
	Prefix      string
	Start, End  int
	StartTime   time.Time
	EndTime     time.Time
	Live        []LiveHost
	Unreachable int
	Errors      int
}

// Sweeper runs reachability checks over address ranges.
type Sweeper struct {
	pinger   Pinger
	limiter  *rate.Limiter
	progress func()
	logger   *zap.Logger
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithPinger sets the reachability check. The default is a TCPPinger.
func WithPinger(p Pinger) Option {
	return func(s *Sweeper) { s.pinger = p }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Sweeper) { s.logger = l }
}

// WithRateLimit caps checks started per second. Zero or less means unlimited.
func WithRateLimit(perSecond float64) Option {
	return func(s *Sweeper) {
		if perSecond > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithProgress registers fn to be called once per finished check, from many goroutines.
func WithProgress(fn func()) Option {
	return func(s *Sweeper) { s.progress = fn }
}

func NewSweeper(opts ...Option) *Sweeper {
	s := &Sweeper{
		pinger: TCPPinger{},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("component", "discovery"))
	return s
}

// Sweep checks prefix.start through prefix.end with at most concurrency checks
// in flight. Hosts that do not answer are the common case and never make the
// sweep fail; only bad input or a canceled ctx return an error.
func (s *Sweeper) Sweep(ctx context.Context, prefix string, start, end, concurrency int, timeout time.Duration) (SweepResult, error) {
	r, err := ParseRange(prefix, start, end)
	if err != nil {
		return SweepResult{}, err
	}
	if concurrency < 1 {
		return SweepResult{}, fmt.Errorf("sweep concurrency must be at least 1, got %d", concurrency)
	}
	if timeout <= 0 {
		return SweepResult{}, fmt.Errorf("sweep timeout must be positive, got %s", timeout)
	}

	candidates := addrs(r)
	res := SweepResult{Prefix: prefixOf(r.From()), Start: start, End: end, StartTime: time.Now()}

	var (
		mu          sync.Mutex
		live        []LiveHost
		unreachable atomic.Int64
		failed      atomic.Int64
	)
	err = fanout.Run(ctx, len(candidates), concurrency, s.limiter, func(ctx context.Context, i int) {
		addr := candidates[i]
		out := s.pinger.Ping(ctx, addr, timeout)
		switch out.State {
		case Reachable:
			mu.Lock()
			live = append(live, LiveHost{Addr: addr, Suffix: suffix(addr)})
			mu.Unlock()
		case Unreachable:
			unreachable.Add(1)
		case ReachError:
			failed.Add(1)
			s.logger.Debug("reachability check failed", zap.Stringer("addr", addr), zap.Error(out.Err))
		}
		if s.progress != nil {
			s.progress()
		}
	})
	if errors.Is(err, fanout.ErrRateBeyondDeadline) {
		return SweepResult{}, fmt.Errorf("sweep %s: %w", r, err)
	}
	if err != nil {
		return SweepResult{}, fmt.Errorf("sweep %s interrupted: %w", r, err)
	}

	sort.Slice(live, func(i, j int) bool { return live[i].Suffix < live[j].Suffix })
	res.Live = live
	res.Unreachable = int(unreachable.Load())
	res.Errors = int(failed.Load())
	res.EndTime = time.Now()

	s.logger.Info("sweep finished",
		zap.Stringer("range", r),
		zap.Int("live", len(res.Live)),
		zap.Int("unreachable", res.Unreachable),
		zap.Int("errors", res.Errors),
		zap.Duration("elapsed", res.EndTime.Sub(res.StartTime)))
	return res, nil
}
