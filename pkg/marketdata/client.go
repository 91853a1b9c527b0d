// Package marketdata fetches market quote snapshots from the upstream provider.
package marketdata

import (
	"context"
	"time"

	"github.com/alim08/tradesite/pkg/models"
	"github.com/alim08/tradesite/pkg/upstream"
	"golang.org/x/time/rate"
	"resty.dev/v3"
)

// FetchError is the structured error every Client returns.
type FetchError = upstream.FetchError

// Client fetches the current snapshot. On success the quotes are in display
// order. On failure the error is a *FetchError; its Detail is the upstream's
// own message, shown verbatim when non-empty.
type Client interface {
	FetchQuotes(ctx context.Context) ([]models.MarketQuote, error)
}

// ClientFunc is a function adapter for Client.
type ClientFunc func(ctx context.Context) ([]models.MarketQuote, error)

func (f ClientFunc) FetchQuotes(ctx context.Context) ([]models.MarketQuote, error) {
	return f(ctx)
}

// envelope is the provider's wire shape.
type envelope struct {
	Success bool                 `json:"success"`
	Data    []models.MarketQuote `json:"data"`
	Error   string               `json:"error"`
	Message string               `json:"message"`
}

func (e envelope) detail() string {
	if e.Error != "" {
		return e.Error
	}
	return e.Message
}

// HTTPClient is a Client backed by one upstream URL.
type HTTPClient struct {
	name    string
	rc      *resty.Client
	limiter *rate.Limiter
}

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithLimiter paces requests through l. Share one limiter between clients
// that hit the same provider.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *HTTPClient) { c.limiter = l }
}

// NewHTTPClient creates a client for the endpoint at url. name labels logs and metrics.
func NewHTTPClient(name, url string, timeout time.Duration, opts ...Option) *HTTPClient {
	c := &HTTPClient{
		name: name,
		rc:   upstream.NewHTTPClient(url, timeout),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the client's label.
func (c *HTTPClient) Name() string { return c.name }

// FetchQuotes implements Client.
func (c *HTTPClient) FetchQuotes(ctx context.Context) (quotes []models.MarketQuote, err error) {
	start := time.Now()
	defer func() { upstream.Observe(c.name, start, err) }()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, upstream.NewTimeoutError(err)
		}
	}

	var ok, failed envelope
	resp, err := c.rc.R().
		SetContext(ctx).
		SetExpectResponseContentType("application/json").
		SetResult(&ok).
		SetError(&failed).
		Get("")
	if err != nil {
		if resp != nil && resp.StatusCode() > 0 && ctx.Err() == nil {
			return nil, upstream.NewValidationError("malformed market data response", err)
		}
		return nil, upstream.ClassifyTransportError(err)
	}
	if !resp.IsSuccess() {
		return nil, upstream.ClassifyHTTPError(resp.StatusCode(), failed.detail())
	}
	if !ok.Success {
		return nil, upstream.NewUpstreamError(ok.detail())
	}

	snap := models.Snapshot(ok.Data)
	if err := snap.Validate(); err != nil {
		return nil, upstream.NewValidationError("invalid market data", err)
	}
	if ok.Data == nil {
		return []models.MarketQuote{}, nil
	}
	return ok.Data, nil
}

// Close releases the underlying HTTP client.
func (c *HTTPClient) Close() error {
	return c.rc.Close()
}
