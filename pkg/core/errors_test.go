package core

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVenueError_Error(t *testing.T) {
	err := NewVenueError("gemini", KindAuthentication, http.StatusUnauthorized, "bad signature")
	assert.Contains(t, err.Error(), "gemini")
	assert.Contains(t, err.Error(), "AUTHENTICATION")
	assert.Contains(t, err.Error(), "bad signature")

	withCode := err.WithCode("InvalidSignature")
	assert.Contains(t, withCode.Error(), "InvalidSignature")
}

func TestVenueError_KindPredicates(t *testing.T) {
	tests := []struct {
		kind  ErrorKind
		check func(error) bool
	}{
		{KindConnection, IsConnectionError},
		{KindAuthentication, IsAuthenticationError},
		{KindRateLimit, IsRateLimitError},
		{KindOrder, IsOrderError},
		{KindInsufficientFunds, IsInsufficientFundsError},
		{KindInvalidSymbol, IsInvalidSymbolError},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			err := NewVenueError("mock", tt.kind, 0, "boom")
			assert.True(t, tt.check(err))
			assert.True(t, IsKind(err, tt.kind))

			// Predicates must see through wrapping.
			wrapped := fmt.Errorf("call failed: %w", err)
			assert.True(t, tt.check(wrapped))
		})
	}
}

func TestVenueError_NotVenueError(t *testing.T) {
	assert.False(t, IsRateLimitError(errors.New("plain")))
	assert.False(t, IsKind(nil, KindConnection))
}

func TestVenueError_WithFunds(t *testing.T) {
	var required, available apd.Decimal
	required.SetInt64(100)
	available.SetInt64(25)

	err := NewVenueError("mock", KindInsufficientFunds, 0, "not enough").
		WithFunds(required, available)

	require.True(t, IsInsufficientFundsError(err))
	assert.Equal(t, "100", err.Required.String())
	assert.Equal(t, "25", err.Available.String())
}

func TestVenueError_WithRetryAfter(t *testing.T) {
	err := NewVenueError("mock", KindRateLimit, http.StatusTooManyRequests, "slow down").
		WithRetryAfter(2 * time.Second)
	assert.Equal(t, 2*time.Second, err.RetryAfter)
}

func TestClassifyHTTPStatus(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorKind
	}{
		{http.StatusUnauthorized, KindAuthentication},
		{http.StatusForbidden, KindAuthentication},
		{http.StatusTooManyRequests, KindRateLimit},
		{http.StatusInternalServerError, KindConnection},
		{http.StatusBadGateway, KindConnection},
		{http.StatusBadRequest, KindExchange},
		{http.StatusNotFound, KindExchange},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d", tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyHTTPStatus(tt.status))
		})
	}
}
