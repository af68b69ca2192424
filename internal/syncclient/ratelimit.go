package syncclient

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// WriteLimiter caps pushes to a fixed budget per window. A caller over
// budget is queued (slept) into the next window rather than dropped, so
// every accepted move eventually reaches the server in order.
type WriteLimiter struct {
	mu          sync.Mutex
	clock       clockwork.Clock
	budget      int
	window      time.Duration
	windowStart time.Time
	used        int
}

// NewWriteLimiter returns a limiter allowing budget calls per window.
func NewWriteLimiter(clock clockwork.Clock, budget int, window time.Duration) *WriteLimiter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &WriteLimiter{clock: clock, budget: budget, window: window}
}

// Wait blocks until the caller may push, or until ctx is done.
func (l *WriteLimiter) Wait(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := l.clock.Now()
		if l.windowStart.IsZero() || now.Sub(l.windowStart) >= l.window {
			l.windowStart = now
			l.used = 0
		}
		if l.used < l.budget {
			l.used++
			l.mu.Unlock()
			return nil
		}
		wakeAt := l.windowStart.Add(l.window)
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.clock.After(wakeAt.Sub(now)):
		}
	}
}
