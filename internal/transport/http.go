// Package transport executes signed, rate-limited REST calls with bounded
// retry against the exchange API.
package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog"
	"resty.dev/v3"

	"tessera/internal/auth"
	"tessera/internal/circuitbreaker"
	"tessera/internal/ratelimit"
	"tessera/pkg/core"
)

// Quota headers reported by the exchange on every response.
const (
	headerQuotaRemaining = "RateLimit-Remaining"
	headerQuotaReset     = "RateLimit-Reset"
)

const (
	backoffBase = 500 * time.Millisecond
	backoffCap  = 30 * time.Second
)

// Response is a successful HTTP response: status, raw body, and headers.
type Response struct {
	StatusCode int
	Body       []byte
	Headers    http.Header
}

// Unmarshal parses the response body into v.
func (r *Response) Unmarshal(v any) error {
	return sonic.Unmarshal(r.Body, v)
}

// Transport executes requests: acquire the rate limiter, sign, send, and
// retry transient failures with exponential backoff. Signatures are
// single-use and time-bound, so every attempt is signed fresh.
type Transport struct {
	client     *resty.Client
	signer     *auth.Signer
	limiter    ratelimit.Limiter
	breaker    *circuitbreaker.Breaker
	basePath   string
	maxRetries int
	logger     zerolog.Logger

	sleep func(context.Context, time.Duration) error
}

// New creates a transport from the client configuration. The signer may be
// nil for public-only access; authenticated requests then fail with
// ErrNoCredentials.
func New(cfg *core.Config, signer *auth.Signer, limiter ratelimit.Limiter, logger zerolog.Logger) *Transport {
	client := resty.New()
	client.SetBaseURL(cfg.BaseURL)
	client.SetTimeout(cfg.Timeout)
	client.SetHeader("Content-Type", "application/json")

	if limiter == nil {
		limiter = ratelimit.Nop{}
	}

	var breaker *circuitbreaker.Breaker
	if cfg.CircuitBreakerEnabled {
		breaker = circuitbreaker.New(circuitbreaker.Config{
			FailThreshold:    cfg.CircuitBreakerFailThreshold,
			SuccessThreshold: cfg.CircuitBreakerSuccessThreshold,
			Cooldown:         cfg.CircuitBreakerTimeout,
		})
	}

	basePath := ""
	if u, err := url.Parse(cfg.BaseURL); err == nil {
		basePath = u.Path
	}

	return &Transport{
		client:     client,
		signer:     signer,
		limiter:    limiter,
		breaker:    breaker,
		basePath:   basePath,
		maxRetries: cfg.MaxRetries,
		logger:     logger,
		sleep:      sleepCtx,
	}
}

// Limiter returns the transport's rate limiter.
func (t *Transport) Limiter() ratelimit.Limiter {
	return t.limiter
}

// Breaker returns the circuit breaker, or nil when disabled.
func (t *Transport) Breaker() *circuitbreaker.Breaker {
	return t.breaker
}

// Execute sends the request, retrying transient failures up to the
// configured budget. It returns the successful response or a typed
// *core.APIError; business rejections and auth failures propagate on the
// first attempt.
func (t *Transport) Execute(ctx context.Context, req *core.Request) (*Response, error) {
	if t.breaker != nil && !t.breaker.Allow() {
		return nil, core.ErrCircuitBreakerOpen
	}

	resp, err := t.execute(ctx, req)
	if t.breaker != nil {
		t.breaker.Record(err == nil || !retryableError(err))
	}
	return resp, err
}

func (t *Transport) execute(ctx context.Context, req *core.Request) (*Response, error) {
	var lastErr error

	for attempt := 0; attempt <= t.maxRetries; attempt++ {
		if attempt > 0 {
			wait := t.backoff(attempt-1, lastErr)
			t.logger.Debug().
				Int("attempt", attempt).
				Dur("wait", wait).
				Str("path", req.Path).
				Msg("retrying request")
			if err := t.sleep(ctx, wait); err != nil {
				return nil, err
			}
		}

		if _, err := t.limiter.Acquire(ctx, req.Weight); err != nil {
			return nil, err
		}

		resp, err := t.send(ctx, req)
		if err != nil {
			lastErr = err
			if !retryableError(err) {
				return nil, err
			}
			continue
		}
		return resp, nil
	}

	return nil, lastErr
}

func (t *Transport) send(ctx context.Context, req *core.Request) (*Response, error) {
	r := t.client.R().SetContext(ctx)

	if req.Query != nil {
		r.SetQueryParams(paramsToStringMap(req.Query))
	}
	if req.Body != nil {
		body, err := sonic.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		r.SetBody(body)
	}

	if req.RequireAuth {
		if t.signer == nil {
			return nil, core.ErrNoCredentials
		}
		// Signed fresh per attempt: the signature embeds a timestamp.
		headers, err := t.signer.Headers(req.Method, t.basePath+req.Path)
		if err != nil {
			return nil, err
		}
		for k, v := range headers {
			r.SetHeader(k, v)
		}
	}

	resp, err := r.Execute(req.Method, req.Path)
	if err != nil {
		t.logger.Error().Err(err).
			Str("method", req.Method).
			Str("path", req.Path).
			Msg("http request failed")
		apiErr := core.NewAPIError(classifyNetError(ctx, err), 0, req.Method, req.Path, err.Error())
		if req.Body != nil {
			apiErr.WithBody(req.Body)
		}
		return nil, apiErr
	}

	t.updateQuota(resp.Header())

	status := resp.StatusCode()
	t.logger.Debug().
		Str("method", req.Method).
		Str("path", req.Path).
		Int("status", status).
		Int("size", len(resp.Bytes())).
		Msg("http response")

	if status >= 200 && status < 300 {
		return &Response{
			StatusCode: status,
			Body:       resp.Bytes(),
			Headers:    resp.Header(),
		}, nil
	}

	return nil, t.classifyResponse(req, status, resp)
}

func (t *Transport) classifyResponse(req *core.Request, status int, resp *resty.Response) *core.APIError {
	code, message := parseErrorBody(resp.Bytes())
	if message == "" {
		message = fmt.Sprintf("HTTP error: %s", resp.Status())
	}

	errType := classifyStatus(status, code)
	apiErr := core.NewAPIError(errType, status, req.Method, req.Path, message).WithCode(code)
	if req.Body != nil {
		apiErr.WithBody(req.Body)
	}
	if ra := parseRetryAfter(resp.Header().Get("Retry-After")); ra > 0 {
		apiErr.RetryAfter = ra
	}
	return apiErr
}

func (t *Transport) backoff(failures int, lastErr error) time.Duration {
	if wait, ok := retryAfter(lastErr); ok {
		return wait
	}
	wait := backoffBase << uint(failures)
	if wait > backoffCap || wait <= 0 {
		wait = backoffCap
	}
	return wait
}

// updateQuota feeds server-reported quota headers into the rate limiter
// after every response, success or failure.
func (t *Transport) updateQuota(headers http.Header) {
	rem := headers.Get(headerQuotaRemaining)
	reset := headers.Get(headerQuotaReset)
	if rem == "" || reset == "" {
		return
	}
	remaining, err := strconv.Atoi(rem)
	if err != nil {
		return
	}
	resetUnix, err := strconv.ParseFloat(reset, 64)
	if err != nil {
		return
	}
	resetAt := time.Unix(0, int64(resetUnix*float64(time.Second)))
	t.limiter.UpdateFromHeaders(remaining, resetAt)
}

type wireError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func parseErrorBody(body []byte) (code, message string) {
	var we wireError
	if err := sonic.Unmarshal(body, &we); err != nil {
		return "", ""
	}
	return we.Error.Code, we.Error.Message
}

func classifyStatus(status int, code string) core.ErrorType {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return core.ErrorTypeAuthentication
	case http.StatusNotFound:
		return core.ErrorTypeNotFound
	case http.StatusTooManyRequests:
		return core.ErrorTypeRateLimit
	}
	if status >= 500 {
		return core.ErrorTypeServerError
	}
	if t, ok := businessErrorCodes[code]; ok {
		return t
	}
	return core.ErrorTypeBadRequest
}

// businessErrorCodes maps exchange error codes to the rejection classes the
// caller must inspect. Never retried.
var businessErrorCodes = map[string]core.ErrorType{
	"insufficient_balance":         core.ErrorTypeInsufficientFunds,
	"insufficient_funds":           core.ErrorTypeInsufficientFunds,
	"order_rejected":               core.ErrorTypeOrderRejected,
	"self_trade_prevented":         core.ErrorTypeOrderRejected,
	"market_closed":                core.ErrorTypeOrderRejected,
	"market_not_open":              core.ErrorTypeOrderRejected,
	"price_out_of_range":           core.ErrorTypeOrderRejected,
	"order_group_limit_exceeded":   core.ErrorTypeOrderRejected,
	"contract_rate_limit_exceeded": core.ErrorTypeOrderRejected,
}

func classifyNetError(ctx context.Context, err error) core.ErrorType {
	if ctx.Err() != nil {
		return core.ErrorTypeTimeout
	}
	return core.ErrorTypeNetwork
}

// retryableError reports whether the error class participates in the retry
// loop: connection/timeout failures plus 429 and retryable 5xx statuses.
func retryableError(err error) bool {
	apiErr, ok := err.(*core.APIError)
	if !ok {
		return false
	}
	switch apiErr.StatusCode {
	case 0:
		return apiErr.Type == core.ErrorTypeNetwork || apiErr.Type == core.ErrorTypeTimeout
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// retryAfter extracts a Retry-After duration from the last error, if the
// server provided one.
func retryAfter(err error) (time.Duration, bool) {
	apiErr, ok := err.(*core.APIError)
	if !ok || apiErr.RetryAfter <= 0 {
		return 0, false
	}
	return apiErr.RetryAfter, true
}

// parseRetryAfter accepts both delta-seconds and HTTP-date forms.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

func paramsToStringMap(params core.Params) map[string]string {
	result := make(map[string]string, len(params))
	for k, v := range params {
		switch val := v.(type) {
		case string:
			result[k] = val
		case int:
			result[k] = strconv.Itoa(val)
		case int64:
			result[k] = strconv.FormatInt(val, 10)
		case bool:
			result[k] = strconv.FormatBool(val)
		default:
			result[k] = fmt.Sprintf("%v", val)
		}
	}
	return result
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
