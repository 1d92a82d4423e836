package core

import "errors"

// ErrorCode represents a stable, machine-readable error identifier used for
// failures the library itself raises, as opposed to codes copied from venues.
type ErrorCode string

// Error code constants define standardized identifiers across all adapters.
const (
	// ErrCodeConnection indicates a network connectivity failure.
	ErrCodeConnection ErrorCode = "CONNECTION_ERROR"
	// ErrCodeTimeout indicates the request exceeded its deadline.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
	// ErrCodeRateLimit indicates the local rate limiter rejected the call.
	ErrCodeRateLimit ErrorCode = "RATE_LIMIT"
	// ErrCodeAuth indicates authentication or authorization failure.
	ErrCodeAuth ErrorCode = "AUTH_ERROR"
	// ErrCodeInsufficientFunds indicates the account lacks required balance.
	ErrCodeInsufficientFunds ErrorCode = "INSUFFICIENT_FUNDS"
	// ErrCodeInvalidOrder indicates the order violates venue rules.
	ErrCodeInvalidOrder ErrorCode = "INVALID_ORDER"
	// ErrCodeInvalidSymbol indicates the trading pair is not recognized.
	ErrCodeInvalidSymbol ErrorCode = "INVALID_SYMBOL"
	// ErrCodeMalformedResponse indicates a venue payload the normalizer
	// could not parse; the operation fails closed.
	ErrCodeMalformedResponse ErrorCode = "MALFORMED_RESPONSE"

	// Client state errors
	ErrCodeClientClosed ErrorCode = "CLIENT_CLOSED"
	ErrCodeInvalidState ErrorCode = "INVALID_STATE"

	// Stream errors
	ErrCodeStreamClosed ErrorCode = "STREAM_CLOSED"
	ErrCodeNotConnected ErrorCode = "NOT_CONNECTED"

	// Circuit breaker errors
	ErrCodeCircuitBreaker ErrorCode = "CIRCUIT_BREAKER_OPEN"

	// Authentication errors
	ErrCodeNoCredentials ErrorCode = "NO_CREDENTIALS"

	// Unsupported operation
	ErrCodeUnsupported ErrorCode = "UNSUPPORTED_OPERATION"
)

// IsErrorCode checks if the error matches the specified error code.
// It extracts the venue error and compares its code field.
func IsErrorCode(err error, code ErrorCode) bool {
	var ve *VenueError
	if errors.As(err, &ve) {
		return ErrorCode(ve.Code) == code
	}
	return false
}
