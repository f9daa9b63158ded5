package queue

import (
	"context"
	"sync"
	"time"
)

// StartLimiter caps how many jobs may start within a sliding window.
// It only gates starts; a running job is never interrupted.
type StartLimiter struct {
	limit  int
	window time.Duration
	starts []time.Time // oldest first, at most limit entries
	mu     sync.Mutex

	now   func() time.Time
	after func(time.Duration) <-chan time.Time
}

// NewStartLimiter creates a limiter allowing limit starts per window
func NewStartLimiter(limit int, window time.Duration) *StartLimiter {
	return &StartLimiter{
		limit:  limit,
		window: window,
		now:    time.Now,
		after:  time.After,
	}
}

// prune drops starts that left the window. Callers hold mu.
func (l *StartLimiter) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.starts) && !l.starts[i].After(cutoff) {
		i++
	}
	l.starts = l.starts[i:]
}

// Delay returns how long until a start is allowed; zero when one is allowed now
func (l *StartLimiter) Delay() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.prune(now)
	if len(l.starts) < l.limit {
		return 0
	}
	return l.starts[0].Add(l.window).Sub(now)
}

// Wait blocks until a start is allowed or ctx is done. It does not record a start.
func (l *StartLimiter) Wait(ctx context.Context) error {
	for {
		d := l.Delay()
		if d <= 0 {
			return nil
		}
		select {
		case <-l.after(d):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Record counts one start at the current time
func (l *StartLimiter) Record() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.prune(now)
	l.starts = append(l.starts, now)
}

// Remaining returns the number of starts still allowed in the current window
func (l *StartLimiter) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.prune(l.now())
	return l.limit - len(l.starts)
}
