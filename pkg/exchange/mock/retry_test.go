package mock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lintas/pkg/core"
)

func TestRetry_RecoversFromTransientFailures(t *testing.T) {
	calls := 0
	err := Retry(t.Context(), 3, time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return core.NewVenueError("mock", core.KindRateLimit, 429, "injected rate limit")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_DoesNotRetryPermanentFailures(t *testing.T) {
	calls := 0
	err := Retry(t.Context(), 3, time.Millisecond, func() error {
		calls++
		return core.NewVenueError("mock", core.KindAuthentication, 401, "bad key")
	})
	require.Error(t, err)
	assert.True(t, core.IsAuthenticationError(err))
	assert.Equal(t, 1, calls)
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Retry(t.Context(), 3, time.Millisecond, func() error {
		calls++
		return core.NewVenueError("mock", core.KindConnection, 0, "down")
	})
	require.Error(t, err)
	assert.True(t, core.IsConnectionError(err))
	assert.Equal(t, 3, calls)
}

func TestRetry_HonorsRetryAfter(t *testing.T) {
	start := time.Now()
	calls := 0
	err := Retry(t.Context(), 2, time.Millisecond, func() error {
		calls++
		if calls == 1 {
			return core.NewVenueError("mock", core.KindRateLimit, 429, "slow down").
				WithRetryAfter(30 * time.Millisecond)
		}
		return nil
	})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestRetry_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	err := Retry(ctx, 5, time.Minute, func() error {
		return core.NewVenueError("mock", core.KindConnection, 0, "down")
	})
	assert.True(t, errors.Is(err, context.Canceled))
}
