// Package ratelimit provides admission control for outbound API requests.
package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Limiter is the two-method contract every caller depends on. Acquire
// blocks until the request may proceed and reports how long it waited;
// UpdateFromHeaders feeds server-reported quota state back into the
// limiter.
type Limiter interface {
	Acquire(ctx context.Context, weight int) (time.Duration, error)
	UpdateFromHeaders(remaining int, resetAt time.Time)
}

// Nop is a Limiter that admits every request immediately.
type Nop struct{}

// Acquire returns immediately with zero wait.
func (Nop) Acquire(ctx context.Context, weight int) (time.Duration, error) {
	return 0, ctx.Err()
}

// UpdateFromHeaders is a no-op.
func (Nop) UpdateFromHeaders(remaining int, resetAt time.Time) {}

// Window is a sliding-window token bucket: at most burst request timestamps
// may sit inside the rolling one-second window, with an optional minimum
// inter-request spacing, adaptable from server-reported quota headers. The
// whole Acquire operation is serialized under one mutex so two callers never
// both observe room for the same slot.
type Window struct {
	mu      sync.Mutex
	burst   int
	window  time.Duration
	stamps  []time.Time
	spacing *rate.Limiter

	serverRemaining int
	serverResetAt   time.Time
	serverState     bool

	metrics Metrics
	now     func() time.Time
	sleep   func(context.Context, time.Duration) error
}

// Metrics tracks statistics about limiter usage.
type Metrics struct {
	totalRequests   atomic.Int64
	blockedRequests atomic.Int64
	totalWaitNanos  atomic.Int64
}

// NewWindow creates a window limiter admitting at most burst requests per
// rolling second, with minInterval spacing between consecutive requests
// (zero disables spacing).
func NewWindow(burst int, minInterval time.Duration) *Window {
	w := &Window{
		burst:  burst,
		window: time.Second,
		stamps: make([]time.Time, 0, burst),
		now:    time.Now,
		sleep:  sleepCtx,
	}
	if minInterval > 0 {
		w.spacing = rate.NewLimiter(rate.Every(minInterval), 1)
	}
	return w
}

// Acquire blocks until weight slots are admissible, then records them. It
// returns the total time spent waiting. Safe for concurrent callers.
func (w *Window) Acquire(ctx context.Context, weight int) (time.Duration, error) {
	if weight <= 0 {
		weight = 1
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.metrics.totalRequests.Add(1)
	start := w.now()

	if w.spacing != nil {
		res := w.spacing.ReserveN(start, 1)
		if delay := res.DelayFrom(start); delay > 0 {
			if err := w.sleep(ctx, delay); err != nil {
				res.Cancel()
				return w.now().Sub(start), err
			}
		}
	}

	for {
		now := w.now()
		w.evict(now)

		if len(w.stamps)+weight <= w.burst || len(w.stamps) == 0 {
			break
		}

		wait := w.stamps[0].Add(w.window).Sub(now)
		if wait <= 0 {
			continue
		}
		w.metrics.blockedRequests.Add(1)
		if err := w.sleep(ctx, wait); err != nil {
			return w.now().Sub(start), err
		}
	}

	if w.serverState && w.serverRemaining <= 1 {
		if wait := w.serverResetAt.Sub(w.now()); wait > 0 {
			w.metrics.blockedRequests.Add(1)
			if err := w.sleep(ctx, wait); err != nil {
				return w.now().Sub(start), err
			}
		}
		// The reset consumed the server state; do not double-count it
		// against the local window.
		w.serverState = false
		w.evict(w.now())
	}

	stamp := w.now()
	for i := 0; i < weight; i++ {
		w.stamps = append(w.stamps, stamp)
	}

	waited := w.now().Sub(start)
	w.metrics.totalWaitNanos.Add(int64(waited))
	return waited, nil
}

// UpdateFromHeaders records the server-reported remaining quota and its
// reset time. A non-positive remaining with a future reset causes the next
// Acquire to sleep until the reset.
func (w *Window) UpdateFromHeaders(remaining int, resetAt time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.serverRemaining = remaining
	w.serverResetAt = resetAt
	w.serverState = !resetAt.IsZero()
}

// Pending returns the number of timestamps currently inside the window.
func (w *Window) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.evict(w.now())
	return len(w.stamps)
}

// Snapshot returns a point-in-time capture of limiter statistics.
func (w *Window) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		TotalRequests:   w.metrics.totalRequests.Load(),
		BlockedRequests: w.metrics.blockedRequests.Load(),
		TotalWait:       time.Duration(w.metrics.totalWaitNanos.Load()),
	}
}

func (w *Window) evict(now time.Time) {
	cutoff := now.Add(-w.window)
	i := 0
	for i < len(w.stamps) && !w.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[i:]...)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// MetricsSnapshot is a point-in-time capture of limiter statistics.
type MetricsSnapshot struct {
	// TotalRequests is the number of Acquire calls performed.
	TotalRequests int64
	// BlockedRequests is the number of Acquire calls that had to wait.
	BlockedRequests int64
	// TotalWait is the cumulative time spent blocked.
	TotalWait time.Duration
}
