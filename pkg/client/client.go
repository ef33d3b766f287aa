// Package client exposes the exchange's REST surface: market data reads and
// all mutating portfolio operations, every call signed and rate limited.
package client

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"tessera/internal/auth"
	"tessera/internal/ratelimit"
	"tessera/internal/transport"
	"tessera/pkg/core"
)

// Client composes the signing transport and rate limiter behind the REST
// API. Construct one per application and inject it into collaborators; the
// zero value is not usable.
type Client struct {
	transport *transport.Transport
	signer    *auth.Signer
	config    *core.Config
	logger    zerolog.Logger
}

// New creates a client from the configuration. Credentials are optional;
// without them only public market-data endpoints are usable.
func New(cfg *core.Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("client: config: %w", err)
	}

	var signer *auth.Signer
	if cfg.Credentials != nil {
		var err error
		signer, err = auth.NewSigner(cfg.Credentials.KeyID, cfg.Credentials.PrivateKeyPEM)
		if err != nil {
			return nil, err
		}
	}

	var limiter ratelimit.Limiter = ratelimit.Nop{}
	if cfg.RateLimitBurst > 0 {
		limiter = ratelimit.NewWindow(cfg.RateLimitBurst, cfg.MinRequestInterval)
	}

	logger := newLogger(cfg.LogLevel)

	return &Client{
		transport: transport.New(cfg, signer, limiter, logger),
		signer:    signer,
		config:    cfg,
		logger:    logger,
	}, nil
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
}

// SetLogger replaces the client's logger.
func (c *Client) SetLogger(logger zerolog.Logger) {
	c.logger = logger
}

// Signer returns the request signer, nil when no credentials are
// configured. The feed reuses it for its connection handshake.
func (c *Client) Signer() *auth.Signer {
	return c.signer
}

// Config returns the client configuration.
func (c *Client) Config() *core.Config {
	return c.config
}

// Transport returns the underlying signing transport.
func (c *Client) Transport() *transport.Transport {
	return c.transport
}

// do executes a request and unmarshals the response body into out.
func (c *Client) do(ctx context.Context, req *core.Request, out any) error {
	resp, err := c.transport.Execute(ctx, req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := resp.Unmarshal(out); err != nil {
		return fmt.Errorf("client: decode %s %s: %w", req.Method, req.Path, err)
	}
	return nil
}

// PageParams are the cursor-pagination controls shared by every list call.
// An empty returned cursor signals the end of results.
type PageParams struct {
	Limit  int
	Cursor string
}

func (p PageParams) apply(req *core.Request) {
	if p.Limit > 0 {
		req.SetQuery("limit", p.Limit)
	}
	if p.Cursor != "" {
		req.SetQuery("cursor", p.Cursor)
	}
}

// tsRange is a created-time filter window in unix seconds.
type tsRange struct {
	MinTs int64
	MaxTs int64
}

func (r tsRange) apply(req *core.Request) {
	if r.MinTs > 0 {
		req.SetQuery("min_ts", r.MinTs)
	}
	if r.MaxTs > 0 {
		req.SetQuery("max_ts", r.MaxTs)
	}
}
