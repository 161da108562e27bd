package resilience

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// WindowLimiter admits at most a fixed number of calls per rolling time
// window. Acquire blocks until a call may legally proceed; calls are never
// dropped or rejected. The limiter halves its admitted quota while the
// upstream API reports low remaining capacity and restores it on recovery.
//
// Each extraction pipeline constructs its own WindowLimiter; limiters are
// safe for concurrent use by parallel page fetchers within a run.
type WindowLimiter struct {
	mu        sync.Mutex
	window    time.Duration
	maxCalls  int
	effective int
	throttled bool
	calls     []time.Time

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// NewWindowLimiter creates a limiter admitting maxCalls per rolling window.
func NewWindowLimiter(maxCalls int, window time.Duration) *WindowLimiter {
	if maxCalls <= 0 {
		maxCalls = 1
	}
	if window <= 0 {
		window = time.Hour
	}
	return &WindowLimiter{
		window:    window,
		maxCalls:  maxCalls,
		effective: maxCalls,
		nowFunc:   time.Now,
	}
}

// Acquire blocks until a call is admitted under the current quota or the
// context is canceled. When the window is full it computes the exact wait
// until the oldest call expires and suspends for that duration.
func (l *WindowLimiter) Acquire(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := l.nowFunc()
		l.prune(now)

		if len(l.calls) < l.effective {
			l.calls = append(l.calls, now)
			l.mu.Unlock()
			return nil
		}

		wait := l.calls[0].Add(l.window).Sub(now)
		l.mu.Unlock()

		if wait <= 0 {
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// ReportThrottled feeds back the source API's advertised rate-limit headers.
// When remaining capacity drops below 10% of the advertised limit, the
// limiter halves its admitted quota; when capacity recovers above that
// threshold, the original quota is restored.
func (l *WindowLimiter) ReportThrottled(remaining, limit int) {
	if limit <= 0 {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	low := remaining*10 < limit
	switch {
	case low && !l.throttled:
		l.throttled = true
		l.effective = l.maxCalls / 2
		if l.effective < 1 {
			l.effective = 1
		}
		zap.L().Warn("rate limiter entering throttled mode",
			zap.Int("remaining", remaining),
			zap.Int("limit", limit),
			zap.Int("effective_quota", l.effective),
		)
	case !low && l.throttled:
		l.throttled = false
		l.effective = l.maxCalls
		zap.L().Info("rate limiter restored to full quota",
			zap.Int("remaining", remaining),
			zap.Int("limit", limit),
		)
	}
}

// Throttled reports whether the limiter is currently in throttled mode.
func (l *WindowLimiter) Throttled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.throttled
}

// InFlight returns the number of calls currently counted in the window.
func (l *WindowLimiter) InFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(l.nowFunc())
	return len(l.calls)
}

// prune drops call timestamps older than the window. Caller holds the lock.
func (l *WindowLimiter) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.calls) && !l.calls[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.calls = append(l.calls[:0], l.calls[i:]...)
	}
}
