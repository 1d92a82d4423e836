package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Limiter provides sliding-window admission control. Each admitted call
// records a timestamp; on every check, timestamps older than the window are
// evicted and the call is rejected once the window is full. The
// read-evict-append sequence runs under a single mutex so the limiter is
// safe to share across concurrent callers within one adapter.
type Limiter struct {
	mu     sync.Mutex
	stamps []time.Time
	limit  int
	window time.Duration

	// waiter paces callers that prefer blocking to rejection.
	waiter  *rate.Limiter
	metrics *Metrics

	now func() time.Time
}

// Metrics tracks statistics about limiter usage.
type Metrics struct {
	totalRequests   atomic.Int64
	allowedRequests atomic.Int64
	deniedRequests  atomic.Int64
}

// New creates a Limiter admitting at most limit requests per trailing window.
func New(limit int, window time.Duration) *Limiter {
	rps := float64(limit) / window.Seconds()
	return &Limiter{
		stamps:  make([]time.Time, 0, limit),
		limit:   limit,
		window:  window,
		waiter:  rate.NewLimiter(rate.Limit(rps), limit),
		metrics: &Metrics{},
		now:     time.Now,
	}
}

// Allow reports whether a request is admitted right now. Admitted requests
// consume one slot in the window; rejected requests consume nothing.
func (l *Limiter) Allow() bool {
	l.metrics.totalRequests.Add(1)

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.evict(now)

	if len(l.stamps) >= l.limit {
		l.metrics.deniedRequests.Add(1)
		return false
	}

	l.stamps = append(l.stamps, now)
	l.metrics.allowedRequests.Add(1)
	return true
}

// RetryAfter returns how long a caller should wait before the next request
// can be admitted. It returns zero when a request would be admitted now.
func (l *Limiter) RetryAfter() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.evict(now)

	if len(l.stamps) < l.limit {
		return 0
	}
	// The oldest stamp leaves the window first.
	return l.stamps[0].Add(l.window).Sub(now)
}

// Wait blocks until the paced limiter allows a request or the context is
// cancelled. Unlike Allow, Wait never rejects; it trades latency for
// admission.
func (l *Limiter) Wait(ctx context.Context) error {
	l.metrics.totalRequests.Add(1)
	if err := l.waiter.Wait(ctx); err != nil {
		l.metrics.deniedRequests.Add(1)
		return err
	}
	l.metrics.allowedRequests.Add(1)
	return nil
}

// evict drops timestamps that fell out of the trailing window.
// Callers must hold the mutex.
func (l *Limiter) evict(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.stamps) && !l.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.stamps = append(l.stamps[:0], l.stamps[i:]...)
	}
}

// Pending returns the number of timestamps currently occupying the window.
func (l *Limiter) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.evict(l.now())
	return len(l.stamps)
}

// SetLimit replaces the admission parameters. Timestamps already in the
// window are kept and counted against the new limit.
func (l *Limiter) SetLimit(limit int, window time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limit = limit
	l.window = window
	l.waiter.SetLimit(rate.Limit(float64(limit) / window.Seconds()))
	l.waiter.SetBurst(limit)
}

// Metrics returns a snapshot of the current limiter statistics.
func (l *Limiter) Metrics() MetricsSnapshot {
	return MetricsSnapshot{
		TotalRequests:   l.metrics.totalRequests.Load(),
		AllowedRequests: l.metrics.allowedRequests.Load(),
		DeniedRequests:  l.metrics.deniedRequests.Load(),
	}
}

// MetricsSnapshot is a point-in-time capture of limiter statistics.
type MetricsSnapshot struct {
	// TotalRequests is the total number of admission checks performed.
	TotalRequests int64
	// AllowedRequests is the number of requests that were admitted.
	AllowedRequests int64
	// DeniedRequests is the number of requests that were rejected.
	DeniedRequests int64
}

// ClassLimiter groups one Limiter per request class so public, private, and
// order traffic is admitted independently.
type ClassLimiter struct {
	mu       sync.RWMutex
	limiters map[string]*Limiter
}

// NewClassLimiter creates an empty class limiter.
func NewClassLimiter() *ClassLimiter {
	return &ClassLimiter{limiters: make(map[string]*Limiter)}
}

// Set installs the limiter for a class, replacing any previous one.
func (c *ClassLimiter) Set(class string, limit int, window time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.limiters[class] = New(limit, window)
}

// Get returns the limiter for a class, or nil when the class is unbounded.
func (c *ClassLimiter) Get(class string) *Limiter {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.limiters[class]
}
