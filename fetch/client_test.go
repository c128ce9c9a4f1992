package fetch

import (
	"context"
	"net/http"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"

	"github.com/aluiziolira/go-scrape-reviews/config"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.CacheDir = t.TempDir()
	cfg.RequestDelay = 0
	cfg.Timeout = 5 * time.Second
	cfg.MaxAttempts = 3
	cfg.RetryBackoff = time.Millisecond
	cfg.RetryBackoffMax = 5 * time.Millisecond

	client, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return client
}

func countingResponder(calls *int64, responder httpmock.Responder) httpmock.Responder {
	return func(req *http.Request) (*http.Response, error) {
		atomic.AddInt64(calls, 1)
		return responder(req)
	}
}

func TestFetchServesSecondRequestFromCache(t *testing.T) {
	client := newTestClient(t)
	transport := httpmock.NewMockTransport()
	client.SetTransport(transport)

	var calls int64
	transport.RegisterResponder("GET", "https://example.com/book/show/5907",
		countingResponder(&calls, httpmock.NewStringResponder(http.StatusOK, "<html>reviews</html>")))

	ctx := context.Background()
	first, err := client.Fetch(ctx, "https://example.com/book/show/5907", nil)
	if err != nil {
		t.Fatalf("first Fetch() error = %v", err)
	}
	if first.FromCache {
		t.Error("first fetch should not come from cache")
	}

	second, err := client.Fetch(ctx, "https://example.com/book/show/5907", nil)
	if err != nil {
		t.Fatalf("second Fetch() error = %v", err)
	}
	if !second.FromCache {
		t.Error("second fetch should be a cache hit")
	}
	if string(second.Body) != "<html>reviews</html>" {
		t.Errorf("cached body = %q, want original body", second.Body)
	}
	if calls != 1 {
		t.Errorf("network calls = %d, want 1", calls)
	}
}

func TestFetchDistinctParamsAreDistinctEntries(t *testing.T) {
	client := newTestClient(t)
	transport := httpmock.NewMockTransport()
	client.SetTransport(transport)

	var calls int64
	transport.RegisterResponder("GET", `=~^https://example\.com/book/show/5907/reviews`,
		countingResponder(&calls, httpmock.NewStringResponder(http.StatusOK, "page")))

	ctx := context.Background()
	for _, page := range []string{"1", "2"} {
		params := url.Values{"page": {page}}
		if _, err := client.Fetch(ctx, "https://example.com/book/show/5907/reviews", params); err != nil {
			t.Fatalf("Fetch(page=%s) error = %v", page, err)
		}
	}
	if calls != 2 {
		t.Errorf("network calls = %d, want 2 for distinct query params", calls)
	}
}

func TestFetchFreshBypassesCache(t *testing.T) {
	client := newTestClient(t)
	transport := httpmock.NewMockTransport()
	client.SetTransport(transport)

	var calls int64
	transport.RegisterResponder("GET", "https://example.com/page",
		countingResponder(&calls, httpmock.NewStringResponder(http.StatusOK, "body")))

	ctx := context.Background()
	if _, err := client.Fetch(ctx, "https://example.com/page", nil); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	resp, err := client.FetchFresh(ctx, "https://example.com/page", nil)
	if err != nil {
		t.Fatalf("FetchFresh() error = %v", err)
	}
	if resp.FromCache {
		t.Error("FetchFresh should not serve from cache")
	}
	if calls != 2 {
		t.Errorf("network calls = %d, want 2", calls)
	}
}

func TestFetchBotChallengeFailsWithoutRetry(t *testing.T) {
	client := newTestClient(t)
	transport := httpmock.NewMockTransport()
	client.SetTransport(transport)

	var calls int64
	transport.RegisterResponder("GET", "https://example.com/blocked",
		countingResponder(&calls, httpmock.NewStringResponder(http.StatusOK,
			"<html>Please complete the reCAPTCHA to continue</html>")))

	_, err := client.Fetch(context.Background(), "https://example.com/blocked", nil)
	if err == nil {
		t.Fatal("expected bot challenge error, got nil")
	}
	if !IsBotChallenge(err) {
		t.Errorf("IsBotChallenge(%v) = false, want true", err)
	}
	if calls != 1 {
		t.Errorf("network calls = %d, challenge must not be retried", calls)
	}

	// The challenge page must never be cached.
	if _, ok := client.cache.Get(Identity("https://example.com/blocked", nil)); ok {
		t.Error("bot challenge body was written to the cache")
	}
}

func TestFetchRetriesServerErrorsUntilExhausted(t *testing.T) {
	client := newTestClient(t)
	transport := httpmock.NewMockTransport()
	client.SetTransport(transport)

	var calls int64
	transport.RegisterResponder("GET", "https://example.com/flaky",
		countingResponder(&calls, httpmock.NewStringResponder(http.StatusInternalServerError, "oops")))

	_, err := client.Fetch(context.Background(), "https://example.com/flaky", nil)
	if err == nil {
		t.Fatal("expected exhaustion error, got nil")
	}
	if !IsExhausted(err) {
		t.Errorf("IsExhausted(%v) = false, want true", err)
	}
	if calls != 3 {
		t.Errorf("network calls = %d, want 3 attempts", calls)
	}
}

func TestFetchRecoversAfterTransientFailure(t *testing.T) {
	client := newTestClient(t)
	transport := httpmock.NewMockTransport()
	client.SetTransport(transport)

	var calls int64
	transport.RegisterResponder("GET", "https://example.com/transient",
		func(req *http.Request) (*http.Response, error) {
			n := atomic.AddInt64(&calls, 1)
			if n < 3 {
				return httpmock.NewStringResponse(http.StatusTooManyRequests, "slow down"), nil
			}
			return httpmock.NewStringResponse(http.StatusOK, "finally"), nil
		})

	resp, err := client.Fetch(context.Background(), "https://example.com/transient", nil)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if string(resp.Body) != "finally" {
		t.Errorf("body = %q, want %q", resp.Body, "finally")
	}
	if calls != 3 {
		t.Errorf("network calls = %d, want 3", calls)
	}
}

func TestFetchNonSuccessStatusIsNotCached(t *testing.T) {
	client := newTestClient(t)
	transport := httpmock.NewMockTransport()
	client.SetTransport(transport)

	var calls int64
	transport.RegisterResponder("GET", "https://example.com/missing",
		countingResponder(&calls, httpmock.NewStringResponder(http.StatusNotFound, "not here")))

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		resp, err := client.Fetch(ctx, "https://example.com/missing", nil)
		if err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", resp.StatusCode)
		}
	}
	if calls != 2 {
		t.Errorf("network calls = %d, 404 responses must not be cached", calls)
	}
}

func TestBackoffGrowsExponentiallyAndCaps(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.RetryBackoff = 2 * time.Second
	cfg.RetryBackoffMax = 10 * time.Second
	client := &Client{cfg: cfg}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 10 * time.Second},
		{5, 10 * time.Second},
	}
	for _, tt := range tests {
		if got := client.backoff(tt.attempt); got != tt.want {
			t.Errorf("backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestIsBotChallenge(t *testing.T) {
	tests := []struct {
		name string
		body string
		want bool
	}{
		{"captcha marker", "<title>Solve this CAPTCHA</title>", true},
		{"recaptcha marker", `<div class="g-recaptcha"></div>`, true},
		{"plain page", "<html><body>reviews</body></html>", false},
		{"empty body", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isBotChallenge([]byte(tt.body)); got != tt.want {
				t.Errorf("isBotChallenge() = %v, want %v", got, tt.want)
			}
		})
	}
}
