package core

import (
	"errors"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
)

// API endpoints for the production and demo environments.
const (
	ProductionURL   = "https://api.tessera.trade/v2"
	DemoURL         = "https://demo-api.tessera.trade/v2"
	ProductionWSURL = "wss://api.tessera.trade/ws/v2"
	DemoWSURL       = "wss://demo-api.tessera.trade/ws/v2"
)

// Config contains all configuration options for an exchange client. It
// covers authentication, networking, retry, rate limiting, and the circuit
// breaker.
type Config struct {
	BaseURL     string       `json:"base_url" validate:"required,url"`
	WSURL       string       `json:"ws_url" validate:"required"`
	Credentials *Credentials `json:"credentials,omitempty"`

	// Timeout is the maximum duration for a single HTTP attempt.
	Timeout    time.Duration `json:"timeout" validate:"min=1ms"`
	MaxRetries int           `json:"max_retries" validate:"min=0"`

	// RateLimitBurst caps the number of requests admitted inside the
	// rolling one-second window. Zero disables local rate limiting.
	RateLimitBurst int `json:"rate_limit_burst" validate:"min=0"`
	// MinRequestInterval enforces a minimum spacing between requests.
	MinRequestInterval time.Duration `json:"min_request_interval" validate:"min=0"`

	CircuitBreakerEnabled          bool          `json:"circuit_breaker_enabled"`
	CircuitBreakerFailThreshold    int           `json:"circuit_breaker_fail_threshold"`
	CircuitBreakerSuccessThreshold int           `json:"circuit_breaker_success_threshold"`
	CircuitBreakerTimeout          time.Duration `json:"circuit_breaker_timeout"`

	LogLevel string `json:"log_level" validate:"omitempty,oneof=debug info warn error"`
}

// DefaultConfig returns a Config pointed at the production environment with
// sensible defaults: 10s timeout, 3 retries, 10 req/s burst, breaker with 5
// failures / 2 successes / 30s timeout.
func DefaultConfig() *Config {
	return &Config{
		BaseURL: ProductionURL,
		WSURL:   ProductionWSURL,

		Timeout:    10 * time.Second,
		MaxRetries: 3,

		RateLimitBurst:     10,
		MinRequestInterval: 0,

		CircuitBreakerEnabled:          true,
		CircuitBreakerFailThreshold:    5,
		CircuitBreakerSuccessThreshold: 2,
		CircuitBreakerTimeout:          30 * time.Second,

		LogLevel: "info",
	}
}

// DemoConfig returns a DefaultConfig pointed at the demo environment.
func DemoConfig() *Config {
	c := DefaultConfig()
	c.BaseURL = DemoURL
	c.WSURL = DemoWSURL
	return c
}

var validate = validator.New()

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Credentials != nil {
		if c.Credentials.KeyID == "" {
			return errors.New("credentials key_id is required")
		}
		if len(c.Credentials.PrivateKeyPEM) == 0 {
			return errors.New("credentials private key is required")
		}
	}
	if c.CircuitBreakerEnabled {
		if c.CircuitBreakerFailThreshold <= 0 {
			return errors.New("CircuitBreakerFailThreshold must be positive when enabled")
		}
		if c.CircuitBreakerSuccessThreshold <= 0 {
			return errors.New("CircuitBreakerSuccessThreshold must be positive when enabled")
		}
		if c.CircuitBreakerTimeout <= 0 {
			return errors.New("CircuitBreakerTimeout must be positive when enabled")
		}
	}
	return nil
}

// WithCredentials sets the API credentials and returns the config for chaining.
func (c *Config) WithCredentials(creds *Credentials) *Config {
	c.Credentials = creds
	return c
}

// WithBaseURL overrides the REST endpoint and returns the config for chaining.
func (c *Config) WithBaseURL(url string) *Config {
	c.BaseURL = url
	return c
}

// WithWSURL overrides the WebSocket endpoint and returns the config for chaining.
func (c *Config) WithWSURL(url string) *Config {
	c.WSURL = url
	return c
}

// WithTimeout sets the per-attempt timeout and returns the config for chaining.
func (c *Config) WithTimeout(timeout time.Duration) *Config {
	c.Timeout = timeout
	return c
}

// WithRateLimit sets the window burst and minimum spacing and returns the
// config for chaining.
func (c *Config) WithRateLimit(burst int, minInterval time.Duration) *Config {
	c.RateLimitBurst = burst
	c.MinRequestInterval = minInterval
	return c
}

// CredentialsFromFile loads credentials from a key identifier and a path to
// a PEM-encoded RSA private key.
func CredentialsFromFile(keyID, keyPath string) (*Credentials, error) {
	if keyID == "" {
		return nil, errors.New("key_id is required")
	}
	pemData, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, err
	}
	return &Credentials{KeyID: keyID, PrivateKeyPEM: pemData}, nil
}

// CredentialsFromEnv loads credentials from the TESSERA_KEY_ID and
// TESSERA_PRIVATE_KEY_PATH environment variables.
func CredentialsFromEnv() (*Credentials, error) {
	keyID := os.Getenv("TESSERA_KEY_ID")
	keyPath := os.Getenv("TESSERA_PRIVATE_KEY_PATH")
	if keyID == "" || keyPath == "" {
		return nil, ErrNoCredentials
	}
	return CredentialsFromFile(keyID, keyPath)
}
