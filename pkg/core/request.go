package core

import (
	"maps"
)

// Params is a generic key-value parameter set for query strings.
type Params map[string]any

// Request describes one REST call before signing: method, path, query,
// optional body, and its rate-limit weight. Requests are ephemeral; they are
// signed fresh on every send attempt because signatures embed a timestamp.
type Request struct {
	Method      string `json:"method"`
	Path        string `json:"path"`
	Query       Params `json:"query,omitempty"`
	Body        any    `json:"body,omitempty"`
	Weight      int    `json:"weight"`
	RequireAuth bool   `json:"require_auth"`
}

// NewRequest creates a request with the given method and path and a default
// weight of 1.
func NewRequest(method, path string) *Request {
	return &Request{
		Method: method,
		Path:   path,
		Query:  make(Params),
		Weight: 1,
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

// SetQueryParams merges the given parameters and returns the request for chaining.
func (r *Request) SetQueryParams(params Params) *Request {
	if r.Query == nil {
		r.Query = make(Params)
	}
	maps.Copy(r.Query, params)
	return r
}

// SetBody sets the request body and returns the request for chaining.
func (r *Request) SetBody(body any) *Request {
	r.Body = body
	return r
}

// SetWeight sets the rate-limit weight and returns the request for chaining.
func (r *Request) SetWeight(weight int) *Request {
	r.Weight = weight
	return r
}

// SetRequireAuth marks the request as needing signed headers and returns the
// request for chaining.
func (r *Request) SetRequireAuth(require bool) *Request {
	r.RequireAuth = require
	return r
}
