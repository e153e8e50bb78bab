package polymarket

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"shadow-index-lab/internal/config"
)

// Public endpoints.
const (
	DataAPIURL = "https://data-api.polymarket.com"
	CLOBURL    = "https://clob.polymarket.com"
)

// Default configuration values.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
	DefaultPageSize    = 100
	DefaultMaxActivity = 500
	// One request every 300ms keeps well under the public API limits.
	DefaultRequestsPerSecond = 3.3
)

// ErrBadStatus is returned for non-retried HTTP failures.
var ErrBadStatus = errors.New("unexpected http status")

// Client fetches trader activity and price history over HTTP.
type Client struct {
	dataURL     string
	clobURL     string
	client      *http.Client
	limiter     *rate.Limiter
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	pageSize    int
	log         zerolog.Logger
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.retryDelay = d
	}
}

// WithMaxDelay sets maximum retry delay.
func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.maxDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.client = client
	}
}

// WithRateLimit caps requests per second. Zero or negative disables limiting.
func WithRateLimit(perSecond float64) ClientOption {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

// WithBaseURLs overrides the data API and CLOB endpoints.
func WithBaseURLs(dataURL, clobURL string) ClientOption {
	return func(c *Client) {
		c.dataURL = dataURL
		c.clobURL = clobURL
	}
}

// WithPageSize sets the activity page size.
func WithPageSize(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(log zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.log = log
	}
}

// NewClient creates a client against the public Polymarket endpoints.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		dataURL:     DataAPIURL,
		clobURL:     CLOBURL,
		client:      &http.Client{Timeout: DefaultTimeout},
		limiter:     rate.NewLimiter(rate.Limit(DefaultRequestsPerSecond), 1),
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
		pageSize:    DefaultPageSize,
		log:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// get performs a rate-limited GET with retries and exponential backoff.
// 429 and 5xx responses are retried; other non-200 statuses are not.
func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.log.Debug().Err(lastErr).Int("attempt", attempt).Dur("delay", delay).Msg("retrying request")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			lastErr = fmt.Errorf("rate limited (429)")
			continue
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("%w %d: %s", ErrBadStatus, resp.StatusCode, string(body))
			continue
		case resp.StatusCode != http.StatusOK:
			return nil, fmt.Errorf("%w %d: %s", ErrBadStatus, resp.StatusCode, string(body))
		}
		return body, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// NewClientFromConfig creates a client from loaded configuration.
// Empty URLs and non-positive sizes keep the defaults.
func NewClientFromConfig(cfg config.PolymarketConfig, log zerolog.Logger) *Client {
	opts := []ClientOption{
		WithRateLimit(cfg.RequestsPerSecond),
		WithPageSize(cfg.PageSize),
		WithLogger(log),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, WithTimeout(cfg.Timeout))
	}
	if cfg.DataURL != "" && cfg.CLOBURL != "" {
		opts = append(opts, WithBaseURLs(cfg.DataURL, cfg.CLOBURL))
	}
	return NewClient(opts...)
}
