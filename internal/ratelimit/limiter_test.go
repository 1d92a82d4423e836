package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock lets tests advance time without sleeping.
type fakeClock struct {
	current time.Time
}

func (c *fakeClock) now() time.Time {
	return c.current
}

func (c *fakeClock) advance(d time.Duration) {
	c.current = c.current.Add(d)
}

func newTestLimiter(limit int, window time.Duration) (*Limiter, *fakeClock) {
	clock := &fakeClock{current: time.Unix(1700000000, 0)}
	l := New(limit, window)
	l.now = clock.now
	return l, clock
}

func TestLimiter_AdmitsUpToLimit(t *testing.T) {
	l, _ := newTestLimiter(3, time.Second)

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow(), "request %d should be admitted", i)
	}
	assert.False(t, l.Allow(), "request beyond the limit must be rejected")
}

func TestLimiter_RecoversAfterWindow(t *testing.T) {
	l, clock := newTestLimiter(2, time.Second)

	require.True(t, l.Allow())
	require.True(t, l.Allow())
	require.False(t, l.Allow())

	clock.advance(time.Second + time.Millisecond)
	assert.True(t, l.Allow(), "admission resumes once the window slides past")
}

func TestLimiter_SlidingWindow(t *testing.T) {
	l, clock := newTestLimiter(2, time.Second)

	require.True(t, l.Allow())
	clock.advance(600 * time.Millisecond)
	require.True(t, l.Allow())
	require.False(t, l.Allow())

	// Only the first stamp has left the window.
	clock.advance(500 * time.Millisecond)
	assert.True(t, l.Allow())
	assert.False(t, l.Allow())
}

func TestLimiter_RetryAfter(t *testing.T) {
	l, clock := newTestLimiter(1, time.Second)

	assert.Zero(t, l.RetryAfter())
	require.True(t, l.Allow())

	clock.advance(300 * time.Millisecond)
	assert.Equal(t, 700*time.Millisecond, l.RetryAfter())

	clock.advance(700 * time.Millisecond)
	assert.Zero(t, l.RetryAfter())
}

func TestLimiter_RejectionConsumesNothing(t *testing.T) {
	l, clock := newTestLimiter(1, time.Second)

	require.True(t, l.Allow())
	for i := 0; i < 10; i++ {
		require.False(t, l.Allow())
	}
	assert.Equal(t, 1, l.Pending())

	clock.advance(time.Second + time.Millisecond)
	assert.True(t, l.Allow())
}

func TestLimiter_Metrics(t *testing.T) {
	l, _ := newTestLimiter(1, time.Second)

	l.Allow()
	l.Allow()

	snapshot := l.Metrics()
	assert.Equal(t, int64(2), snapshot.TotalRequests)
	assert.Equal(t, int64(1), snapshot.AllowedRequests)
	assert.Equal(t, int64(1), snapshot.DeniedRequests)
}

func TestLimiter_SetLimit(t *testing.T) {
	l, _ := newTestLimiter(1, time.Second)

	require.True(t, l.Allow())
	require.False(t, l.Allow())

	l.SetLimit(3, time.Second)
	assert.True(t, l.Allow())
	assert.True(t, l.Allow())
	assert.False(t, l.Allow())
}

func TestLimiter_Wait(t *testing.T) {
	l := New(100, time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, l.Wait(ctx))

	expired, expireCancel := context.WithCancel(context.Background())
	expireCancel()
	drained := New(1, time.Hour)
	require.NoError(t, drained.Wait(context.Background()))
	assert.Error(t, drained.Wait(expired))
}

func TestClassLimiter(t *testing.T) {
	cl := NewClassLimiter()

	assert.Nil(t, cl.Get("public"), "unconfigured class is unbounded")

	cl.Set("order", 1, time.Second)
	limiter := cl.Get("order")
	require.NotNil(t, limiter)
	assert.True(t, limiter.Allow())
	assert.False(t, limiter.Allow())
}
