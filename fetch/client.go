// Package fetch issues outbound page requests under rate-limiting, retry,
// and on-disk caching constraints. It knows nothing about page semantics.
package fetch

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/aluiziolira/go-scrape-reviews/config"
)

// Response is the outcome of a successful fetch. Body is the verbatim
// response body; FromCache marks cache hits, which consume no network or
// rate-limit budget.
type Response struct {
	StatusCode int
	Body       []byte
	FromCache  bool
}

// botMarkers are substrings of a challenge interstitial, matched
// case-insensitively against the response body.
var botMarkers = [][]byte{
	[]byte("captcha"),
	[]byte("recaptcha"),
}

// Client fetches pages with a single serialized rate-limit gate, bounded
// retries with exponential backoff, and write-once disk caching keyed by
// request identity.
type Client struct {
	cfg     *config.Config
	http    *resty.Client
	cache   *Cache
	limiter *rate.Limiter
	Metrics *Metrics
}

// NewClient builds a client configured from cfg. The cache directory is
// created on demand.
func NewClient(cfg *config.Config) (*Client, error) {
	cache, err := NewCache(cfg.CacheDir)
	if err != nil {
		return nil, err
	}

	httpClient := resty.New()
	httpClient.SetTimeout(cfg.Timeout)
	httpClient.SetHeader("User-Agent", cfg.UserAgent)
	httpClient.SetHeader("Accept-Language", "en-US,en;q=0.9")
	httpClient.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(httpClient.GetClient().Transport)

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestDelay > 0 {
		// One token per delay interval serializes the request cadence even
		// if callers ever fetch concurrently.
		limiter = rate.NewLimiter(rate.Every(cfg.RequestDelay), 1)
	}

	return &Client{
		cfg:     cfg,
		http:    httpClient,
		cache:   cache,
		limiter: limiter,
		Metrics: NewMetrics(),
	}, nil
}

// SetTransport replaces the underlying HTTP transport. Used by tests to
// install a mock.
func (c *Client) SetTransport(rt http.RoundTripper) {
	c.http.GetClient().Transport = rt
}

// Fetch returns the response for url+params, serving from cache when an
// entry exists for the request identity.
func (c *Client) Fetch(ctx context.Context, rawURL string, params url.Values) (*Response, error) {
	return c.fetch(ctx, rawURL, params, false)
}

// FetchFresh bypasses the cache and always performs a network request.
// The fresh 200 response still overwrites the cache entry.
func (c *Client) FetchFresh(ctx context.Context, rawURL string, params url.Values) (*Response, error) {
	return c.fetch(ctx, rawURL, params, true)
}

func (c *Client) fetch(ctx context.Context, rawURL string, params url.Values, forceRefresh bool) (*Response, error) {
	identity := Identity(rawURL, params)

	if !forceRefresh {
		if body, ok := c.cache.Get(identity); ok {
			c.Metrics.IncRequest("cache_hit")
			slog.Debug("cache hit", slog.String("identity", identity))
			return &Response{StatusCode: http.StatusOK, Body: body, FromCache: true}, nil
		}
	}

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			c.Metrics.IncRetries()
			delay := c.backoff(attempt - 1)
			slog.Debug("retrying fetch",
				slog.String("url", rawURL),
				slog.Int("attempt", attempt),
				slog.Duration("backoff", delay),
			)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		start := time.Now()
		resp, err := c.http.R().
			SetContext(ctx).
			SetQueryParamsFromValues(params).
			Get(rawURL)
		c.Metrics.IncRequest("network")
		c.Metrics.ObserveDuration(time.Since(start))

		if err != nil {
			lastErr = err
			c.Metrics.IncError(errorTypeLabel(err))
			slog.Warn("fetch attempt failed",
				slog.String("url", rawURL),
				slog.Int("attempt", attempt),
				slog.Any("error", err),
			)
			continue
		}

		body := resp.Body()
		if isBotChallenge(body) {
			botErr := ErrBotChallenge{URL: rawURL}
			c.Metrics.IncError("bot_challenge")
			slog.Warn("bot challenge detected", slog.String("url", rawURL))
			return nil, botErr
		}

		status := resp.StatusCode()
		if status >= http.StatusInternalServerError || status == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("http status %d", status)
			if status == http.StatusTooManyRequests {
				c.Metrics.IncError("rate_limited")
			} else {
				c.Metrics.IncError("server_error")
			}
			slog.Warn("retryable status",
				slog.String("url", rawURL),
				slog.Int("status", status),
				slog.Int("attempt", attempt),
			)
			continue
		}

		if status == http.StatusOK {
			if err := c.cache.Put(identity, body); err != nil {
				slog.Warn("cache write failed",
					slog.String("identity", identity),
					slog.Any("error", err),
				)
			} else {
				c.Metrics.IncCacheWrite()
			}
		}
		return &Response{StatusCode: status, Body: body}, nil
	}

	exhausted := ErrRetrievalExhausted{URL: rawURL, Attempts: c.cfg.MaxAttempts, Err: lastErr}
	c.Metrics.IncError("exhausted")
	return nil, exhausted
}

func (c *Client) backoff(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}

	base := c.cfg.RetryBackoff
	if base <= 0 {
		base = 100 * time.Millisecond
	}

	delay := base * time.Duration(1<<(attempt-1))
	if max := c.cfg.RetryBackoffMax; max > 0 && delay > max {
		delay = max
	}
	return delay
}

func isBotChallenge(body []byte) bool {
	lowered := bytes.ToLower(body)
	for _, marker := range botMarkers {
		if bytes.Contains(lowered, marker) {
			return true
		}
	}
	return false
}
