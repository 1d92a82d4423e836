package core

import (
	"maps"
)

// Params is a generic parameter bag passed to protocol request builders.
type Params map[string]any

// Request is a venue-agnostic description of one HTTP call, produced by a
// protocol's BuildRequest and executed by the adapter's transport.
type Request struct {
	Method      string            `json:"method"`
	Path        string            `json:"path"`
	Query       Params            `json:"query,omitempty"`
	Body        any               `json:"body,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Class       RequestClass      `json:"class"`
	RequireAuth bool              `json:"require_auth"`
}

// NewRequest creates a request for the given method and path.
func NewRequest(method, path string) *Request {
	return &Request{
		Method:  method,
		Path:    path,
		Query:   make(Params),
		Headers: make(map[string]string),
		Class:   ClassPublic,
	}
}

// SetQuery sets a single query parameter and returns the request for chaining.
func (r *Request) SetQuery(key string, value any) *Request {
	if r.Query == nil {
		r.Query = make(Params)
	}
	r.Query[key] = value
	return r
}

// SetBody sets the request body and returns the request for chaining.
func (r *Request) SetBody(body any) *Request {
	r.Body = body
	return r
}

// SetHeader sets a single header and returns the request for chaining.
func (r *Request) SetHeader(key, value string) *Request {
	if r.Headers == nil {
		r.Headers = make(map[string]string)
	}
	r.Headers[key] = value
	return r
}

// SetClass assigns the rate-limit class and returns the request for chaining.
func (r *Request) SetClass(class RequestClass) *Request {
	r.Class = class
	return r
}

// SetRequireAuth marks the request as needing a signature and returns the
// request for chaining. Signed requests are also placed in the private class
// unless a class was set explicitly.
func (r *Request) SetRequireAuth(require bool) *Request {
	r.RequireAuth = require
	if require && r.Class == ClassPublic {
		r.Class = ClassPrivate
	}
	return r
}

// SetQueryParams merges the given parameters into the query and returns the
// request for chaining.
func (r *Request) SetQueryParams(params Params) *Request {
	if r.Query == nil {
		r.Query = make(Params)
	}
	maps.Copy(r.Query, params)
	return r
}
