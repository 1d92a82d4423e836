package core

import (
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/apd/v3"
)

// ErrorKind categorizes a venue failure. The taxonomy is flat and
// exhaustive: every error surfaced to a caller is exactly one kind.
type ErrorKind int

// Error kind constants.
const (
	// KindExchange is the generic fallback for unclassified venue errors.
	KindExchange ErrorKind = iota
	// KindConnection indicates a network or transport failure.
	KindConnection
	// KindAuthentication indicates invalid, missing, or expired credentials.
	KindAuthentication
	// KindRateLimit indicates a request was rejected by admission control.
	KindRateLimit
	// KindOrder indicates the venue rejected or failed an order operation.
	KindOrder
	// KindInsufficientFunds indicates the account lacks the required balance.
	KindInsufficientFunds
	// KindInvalidSymbol indicates the trading pair is not recognized.
	KindInvalidSymbol
)

// String returns the string representation of the error kind.
func (k ErrorKind) String() string {
	return [...]string{
		"EXCHANGE",
		"CONNECTION",
		"AUTHENTICATION",
		"RATE_LIMIT",
		"ORDER",
		"INSUFFICIENT_FUNDS",
		"INVALID_SYMBOL",
	}[k]
}

// Sentinel errors for common client state conditions.
var (
	// ErrClientClosed is returned when attempting to use a closed client.
	ErrClientClosed = errors.New("client is closed")
	// ErrStreamClosed is returned when attempting to use a closed stream.
	ErrStreamClosed = errors.New("stream is closed")
	// ErrNotConnected is returned when the adapter has no active connection.
	ErrNotConnected = errors.New("not connected")
	// ErrNotAuthenticated is returned when a private operation is attempted
	// before authentication succeeds.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrNoCredentials is returned when no API credentials are configured.
	ErrNoCredentials = errors.New("no credentials configured")
	// ErrUnsupported is returned when an adapter does not declare the
	// capability required by the requested operation.
	ErrUnsupported = errors.New("operation not supported by adapter")
)

// VenueError is the structured error every adapter returns for failed
// operations. Classification happens at the adapter boundary so calling code
// never inspects venue-specific codes.
type VenueError struct {
	// Kind categorizes the error for programmatic handling.
	Kind ErrorKind `json:"kind"`
	// Venue identifies which venue produced this error.
	Venue string `json:"venue"`
	// StatusCode is the HTTP status code, when the error came from REST.
	StatusCode int `json:"status_code,omitempty"`
	// Code is the venue-specific error code.
	Code string `json:"code,omitempty"`
	// Message is the human-readable error description.
	Message string `json:"message"`
	// RetryAfter hints how long to wait before retrying a rate-limited call.
	RetryAfter time.Duration `json:"retry_after,omitempty"`
	// OrderID carries the affected order for order errors, when known.
	OrderID string `json:"order_id,omitempty"`
	// Required is the balance the operation needed, for insufficient funds.
	Required apd.Decimal `json:"required,omitempty"`
	// Available is the balance the account had, for insufficient funds.
	Available apd.Decimal `json:"available,omitempty"`
	// Raw contains the original venue response for debugging.
	Raw any `json:"raw,omitempty"`
	// Timestamp is when the error occurred.
	Timestamp time.Time `json:"timestamp"`
}

// Error implements the error interface for VenueError.
func (e *VenueError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("[%s] %s (%d/%s): %s", e.Venue, e.Kind, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("[%s] %s (%d): %s", e.Venue, e.Kind, e.StatusCode, e.Message)
}

// WithCode returns the error with the venue-specific code set.
func (e *VenueError) WithCode(code string) *VenueError {
	e.Code = code
	return e
}

// WithOrderID returns the error with the affected order id set.
func (e *VenueError) WithOrderID(orderID string) *VenueError {
	e.OrderID = orderID
	return e
}

// WithRetryAfter returns the error with a retry-after hint set.
func (e *VenueError) WithRetryAfter(d time.Duration) *VenueError {
	e.RetryAfter = d
	return e
}

// WithFunds returns the error annotated with required and available amounts.
func (e *VenueError) WithFunds(required, available apd.Decimal) *VenueError {
	e.Required = required
	e.Available = available
	return e
}

// NewVenueError creates a classified venue error. The timestamp is set to
// the current time.
func NewVenueError(venue string, kind ErrorKind, statusCode int, message string) *VenueError {
	return &VenueError{
		Kind:       kind,
		Venue:      venue,
		StatusCode: statusCode,
		Message:    message,
		Timestamp:  time.Now(),
	}
}

// IsKind reports whether err is a VenueError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var ve *VenueError
	if errors.As(err, &ve) {
		return ve.Kind == kind
	}
	return false
}

// IsConnectionError reports whether the error is a transport failure.
// Connection errors are typically retryable by the caller.
func IsConnectionError(err error) bool {
	return IsKind(err, KindConnection)
}

// IsAuthenticationError reports whether the error is a credential failure.
// Authentication errors are not retryable without new credentials.
func IsAuthenticationError(err error) bool {
	return IsKind(err, KindAuthentication)
}

// IsRateLimitError reports whether the error is a rate limit rejection.
// The RetryAfter field hints when admission will resume.
func IsRateLimitError(err error) bool {
	return IsKind(err, KindRateLimit)
}

// IsOrderError reports whether the error is an order operation failure.
func IsOrderError(err error) bool {
	return IsKind(err, KindOrder)
}

// IsInsufficientFundsError reports whether the account lacked balance.
func IsInsufficientFundsError(err error) bool {
	return IsKind(err, KindInsufficientFunds)
}

// IsInvalidSymbolError reports whether the trading pair was not recognized.
func IsInvalidSymbolError(err error) bool {
	return IsKind(err, KindInvalidSymbol)
}

// ClassifyHTTPStatus maps an HTTP status code with no recognizable venue
// error body to an error kind. Venue-specific codes take precedence over
// this mapping when present.
func ClassifyHTTPStatus(status int) ErrorKind {
	switch {
	case status == 401 || status == 403:
		return KindAuthentication
	case status == 429:
		return KindRateLimit
	case status >= 500:
		return KindConnection
	default:
		return KindExchange
	}
}
