// Package fanout runs indexed tasks with a hard cap on how many are in flight.
// Both the port scanner and the discovery sweep schedule their probes through it.
package fanout

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ErrInvalidLimit is returned when the concurrency limit is below one.
var ErrInvalidLimit = errors.New("fanout: concurrency limit must be at least 1")

// ErrRateBeyondDeadline is returned when the limiter cannot start the
// remaining tasks before the context deadline. The context itself is still
// live at that point.
var ErrRateBeyondDeadline = errors.New("fanout: rate limit cannot start every task before the deadline")

// Run calls fn once for every index in [0, n), with at most limit calls running
// at the same time. A non-nil limiter additionally caps how fast new calls start.
//
// Run always waits for every started call to return. If ctx is canceled no new
// calls are started and the context error is returned; calls already running
// see the same ctx and are expected to give up promptly.
func Run(ctx context.Context, n, limit int, limiter *rate.Limiter, fn func(ctx context.Context, i int)) error {
	if limit < 1 {
		return ErrInvalidLimit
	}
	if n <= 0 {
		return ctx.Err()
	}
	if limit > n {
		limit = n
	}

	sem := semaphore.NewWeighted(int64(limit))
	var wg sync.WaitGroup
	var err error

	for i := 0; i < n; i++ {
		if limiter != nil {
			if err = limiter.Wait(ctx); err != nil {
				if ctx.Err() == nil {
					err = fmt.Errorf("%w: %v", ErrRateBeyondDeadline, err)
				}
				break
			}
		}
		// blocks until a slot frees up or ctx is done
		if err = sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer sem.Release(1)
			fn(ctx, i)
		}(i)
	}

	wg.Wait()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}
