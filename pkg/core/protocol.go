package core

import (
	"context"

	"resty.dev/v3"
)

// Protocol defines the interface for venue-specific wire implementations.
// Each venue implements request building, response parsing and
// normalization, and request signing. Protocols are pure: all connection
// and rate-limit state lives in the adapter that owns them.
type Protocol interface {
	// Name returns the venue identifier (e.g., "cryptocom", "gemini").
	Name() string

	// Version returns the API version being used.
	Version() string

	// BaseURL returns the API base URL for the given environment.
	// Sandbox mode returns the test environment URL when available.
	BaseURL(sandbox bool) string

	// BuildRequest constructs an HTTP request for the specified operation.
	// The params map contains operation-specific parameters.
	BuildRequest(ctx context.Context, op Operation, params Params) (*Request, error)

	// ParseResponse deserializes the HTTP response and normalizes it to the
	// canonical type for the operation. Failures are returned as classified
	// *VenueError values; a payload that cannot be parsed fails closed.
	ParseResponse(op Operation, resp *resty.Response) (any, error)

	// SignRequest derives the venue signature from the request payload and
	// credentials and attaches it wherever the venue expects it (headers or
	// body fields). The nonce makes the signature unique per call.
	SignRequest(req *Request, creds Credentials, nonce int64) error

	// SupportedOperations returns the list of operations this protocol supports.
	SupportedOperations() []Operation
}
