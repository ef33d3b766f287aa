package core

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType represents the category of an API error.
type ErrorType int

// Error type constants categorize errors for retry and handling decisions.
const (
	// ErrorTypeUnknown indicates an unclassified error.
	ErrorTypeUnknown ErrorType = iota
	// ErrorTypeNetwork indicates a connection failure. Retryable.
	ErrorTypeNetwork
	// ErrorTypeTimeout indicates the request exceeded its deadline. Retryable.
	ErrorTypeTimeout
	// ErrorTypeRateLimit indicates the request quota was exhausted.
	ErrorTypeRateLimit
	// ErrorTypeAuthentication indicates a credential, signature, or clock
	// problem. Never retried.
	ErrorTypeAuthentication
	// ErrorTypeBadRequest indicates invalid request parameters.
	ErrorTypeBadRequest
	// ErrorTypeNotFound indicates the requested resource does not exist.
	ErrorTypeNotFound
	// ErrorTypeServerError indicates a server-side failure. Retryable.
	ErrorTypeServerError
	// ErrorTypeInsufficientFunds indicates the account lacks the required
	// balance. A business rejection, never retried.
	ErrorTypeInsufficientFunds
	// ErrorTypeOrderRejected indicates the order violates exchange rules.
	// A business rejection, never retried.
	ErrorTypeOrderRejected
)

// String returns the string representation of the error type.
func (t ErrorType) String() string {
	return [...]string{
		"UNKNOWN",
		"NETWORK",
		"TIMEOUT",
		"RATE_LIMIT",
		"AUTHENTICATION",
		"BAD_REQUEST",
		"NOT_FOUND",
		"SERVER_ERROR",
		"INSUFFICIENT_FUNDS",
		"ORDER_REJECTED",
	}[t]
}

// Retryable reports whether requests failing with this type may be retried.
func (t ErrorType) Retryable() bool {
	switch t {
	case ErrorTypeNetwork, ErrorTypeTimeout, ErrorTypeRateLimit, ErrorTypeServerError:
		return true
	default:
		return false
	}
}

// Sentinel errors for common conditions.
var (
	// ErrClientClosed is returned when attempting to use a closed client.
	ErrClientClosed = errors.New("client is closed")
	// ErrFeedStopped is returned when attempting to use a stopped feed.
	ErrFeedStopped = errors.New("feed is stopped")
	// ErrNotConnected is returned when the WebSocket is not connected.
	ErrNotConnected = errors.New("websocket not connected")
	// ErrCircuitBreakerOpen is returned when the circuit breaker is open.
	ErrCircuitBreakerOpen = errors.New("circuit breaker is open")
	// ErrNoCredentials is returned when no API credentials are configured.
	ErrNoCredentials = errors.New("no credentials configured")
)

// APIError represents a structured error returned from the exchange. It
// carries the method and endpoint that failed and, for mutating calls, the
// request body for diagnostics.
type APIError struct {
	// Type categorizes the error for programmatic handling.
	Type ErrorType `json:"type"`
	// StatusCode is the HTTP status code from the response.
	StatusCode int `json:"status_code"`
	// Code is the exchange-specific error code.
	Code string `json:"code,omitempty"`
	// Message is the human-readable error description.
	Message string `json:"message"`
	// Method is the HTTP method of the failed request.
	Method string `json:"method"`
	// Endpoint is the request path of the failed request.
	Endpoint string `json:"endpoint"`
	// Body is the request body of a failed mutating call, if any.
	Body any `json:"body,omitempty"`
	// RetryAfter is the server-suggested wait before retrying, if provided.
	RetryAfter time.Duration `json:"retry_after,omitempty"`
	// Timestamp is when the error occurred.
	Timestamp time.Time `json:"timestamp"`
}

// Error implements the error interface for APIError.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s %s: %s (%d/%s): %s",
			e.Method, e.Endpoint, e.Type, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("%s %s: %s (%d): %s",
		e.Method, e.Endpoint, e.Type, e.StatusCode, e.Message)
}

// NewAPIError creates an APIError with the specified details. The timestamp
// is set to the current time.
func NewAPIError(errorType ErrorType, statusCode int, method, endpoint, message string) *APIError {
	return &APIError{
		Type:       errorType,
		StatusCode: statusCode,
		Method:     method,
		Endpoint:   endpoint,
		Message:    message,
		Timestamp:  time.Now(),
	}
}

// WithCode returns the error with the exchange-specific code attached.
func (e *APIError) WithCode(code string) *APIError {
	e.Code = code
	return e
}

// WithBody returns the error with the request body attached.
func (e *APIError) WithBody(body any) *APIError {
	e.Body = body
	return e
}

// IsAuthenticationError returns true if the error is a credential or
// signature failure. Not retryable.
func IsAuthenticationError(err error) bool {
	return errorTypeOf(err) == ErrorTypeAuthentication
}

// IsNotFoundError returns true if the requested resource does not exist.
func IsNotFoundError(err error) bool {
	return errorTypeOf(err) == ErrorTypeNotFound
}

// IsRateLimitError returns true if the error is a rate limit violation
// surfaced after the internal retry budget was exhausted.
func IsRateLimitError(err error) bool {
	return errorTypeOf(err) == ErrorTypeRateLimit
}

// IsInsufficientFundsError returns true if the account lacked the balance
// required for the order.
func IsInsufficientFundsError(err error) bool {
	return errorTypeOf(err) == ErrorTypeInsufficientFunds
}

// IsOrderRejectedError returns true if the exchange rejected the order for
// a business reason. The caller must inspect and decide.
func IsOrderRejectedError(err error) bool {
	return errorTypeOf(err) == ErrorTypeOrderRejected
}

// IsTransientError returns true if the error is a network, timeout, or
// server failure that was retried and surfaced only after exhaustion.
func IsTransientError(err error) bool {
	t := errorTypeOf(err)
	return t == ErrorTypeNetwork || t == ErrorTypeTimeout || t == ErrorTypeServerError
}

func errorTypeOf(err error) ErrorType {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Type
	}
	return ErrorTypeUnknown
}
