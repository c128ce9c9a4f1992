package search

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"

	"github.com/aluiziolira/go-scrape-reviews/config"
	"github.com/aluiziolira/go-scrape-reviews/fetch"
	"github.com/aluiziolira/go-scrape-reviews/models"
)

const searchResultsPage = `<html><body>
<table class="tableList">
  <tr>
    <td>
      <a class="bookTitle" href="/book/show/5907.The_Hobbit?from_search=true">The Hobbit</a>
      <a class="authorName" href="/author/show/656983">J.R.R. Tolkien</a>
    </td>
  </tr>
  <tr>
    <td>
      <a class="bookTitle" href="/book/show/1234567.The_Hobbit_Illustrated">The Hobbit: Illustrated Edition</a>
      <a class="authorName" href="/author/show/656983">J.R.R. Tolkien</a>
    </td>
  </tr>
  <tr>
    <td>
      <a class="bookTitle" href="/book/show/7654321">The Hobbit Graphic Novel</a>
      <a class="authorName" href="/author/show/99">Chuck Dixon</a>
    </td>
  </tr>
</table>
</body></html>`

func newTestLookup(t *testing.T) (*Lookup, *httpmock.MockTransport) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.CacheDir = t.TempDir()
	cfg.RequestDelay = 0
	cfg.Timeout = 5 * time.Second
	cfg.MaxAttempts = 1

	client, err := fetch.NewClient(cfg)
	if err != nil {
		t.Fatalf("fetch.NewClient() error = %v", err)
	}
	transport := httpmock.NewMockTransport()
	client.SetTransport(transport)

	return NewLookup(client, "https://www.goodreads.com"), transport
}

func TestParseCandidatesTableLayout(t *testing.T) {
	candidates := ParseCandidates([]byte(searchResultsPage), "https://www.goodreads.com")
	if len(candidates) != 3 {
		t.Fatalf("candidates = %d, want 3", len(candidates))
	}

	first := candidates[0]
	if first.Title != "The Hobbit" {
		t.Errorf("Title = %q, want %q", first.Title, "The Hobbit")
	}
	if first.Author != "J.R.R. Tolkien" {
		t.Errorf("Author = %q, want %q", first.Author, "J.R.R. Tolkien")
	}
	if first.ExternalID != "5907" {
		t.Errorf("ExternalID = %q, want %q", first.ExternalID, "5907")
	}
	want := "https://www.goodreads.com/book/show/5907.The_Hobbit"
	if first.URL != want {
		t.Errorf("URL = %q, want query string stripped %q", first.URL, want)
	}

	if candidates[2].ExternalID != "7654321" {
		t.Errorf("third ExternalID = %q, want %q", candidates[2].ExternalID, "7654321")
	}
}

func TestParseCandidatesFlatLayout(t *testing.T) {
	page := `<html><body>
<div class="bookTitle"><a href="/book/show/42.Some_Book">Some Book</a><div class="authorName">by Jane Author</div></div>
<div class="bookTitle"><a href="/nowhere">Broken Entry</a><div class="authorName">No ID</div></div>
</body></html>`

	candidates := ParseCandidates([]byte(page), "https://example.com")
	if len(candidates) != 1 {
		t.Fatalf("candidates = %d, want 1 (entries without ids skipped)", len(candidates))
	}
	if candidates[0].Author != "Jane Author" {
		t.Errorf(`Author = %q, want "by " prefix stripped`, candidates[0].Author)
	}
	if candidates[0].ExternalID != "42" {
		t.Errorf("ExternalID = %q, want %q", candidates[0].ExternalID, "42")
	}
}

func TestParseCandidatesEmptyPage(t *testing.T) {
	if got := ParseCandidates([]byte("<html><body></body></html>"), "https://example.com"); len(got) != 0 {
		t.Errorf("candidates = %d, want 0", len(got))
	}
}

func TestCanonicalURLPicksBestMatch(t *testing.T) {
	lookup, transport := newTestLookup(t)
	transport.RegisterResponder("GET", `=~^https://www\.goodreads\.com/search`,
		httpmock.NewStringResponder(http.StatusOK, searchResultsPage))

	query := models.BookQuery{BookID: "1", Title: "The Hobit", Author: "J. R. R. Tolkien"}
	candidate, err := lookup.CanonicalURL(context.Background(), query)
	if err != nil {
		t.Fatalf("CanonicalURL() error = %v", err)
	}
	if candidate == nil {
		t.Fatal("CanonicalURL() = nil, want a match despite the typo")
	}
	if candidate.ExternalID != "5907" {
		t.Errorf("ExternalID = %q, want base edition 5907", candidate.ExternalID)
	}
}

func TestCanonicalURLNoConfidentMatch(t *testing.T) {
	lookup, transport := newTestLookup(t)
	transport.RegisterResponder("GET", `=~^https://www\.goodreads\.com/search`,
		httpmock.NewStringResponder(http.StatusOK, searchResultsPage))

	query := models.BookQuery{BookID: "1", Title: "The Lord of the Rings", Author: "J.R.R. Tolkien"}
	candidate, err := lookup.CanonicalURL(context.Background(), query)
	if err != nil {
		t.Fatalf("CanonicalURL() error = %v", err)
	}
	if candidate != nil {
		t.Errorf("CanonicalURL() = %+v, want nil for a dissimilar query", candidate)
	}
}

func TestCanonicalURLNonSuccessStatus(t *testing.T) {
	lookup, transport := newTestLookup(t)
	transport.RegisterResponder("GET", `=~^https://www\.goodreads\.com/search`,
		httpmock.NewStringResponder(http.StatusNotFound, "gone"))

	candidate, err := lookup.CanonicalURL(context.Background(), models.BookQuery{Title: "Anything"})
	if err != nil {
		t.Fatalf("CanonicalURL() error = %v", err)
	}
	if candidate != nil {
		t.Error("CanonicalURL() should return nil candidate on a failed search")
	}
}

func TestCanonicalURLPropagatesFetchErrors(t *testing.T) {
	lookup, transport := newTestLookup(t)
	transport.RegisterResponder("GET", `=~^https://www\.goodreads\.com/search`,
		func(*http.Request) (*http.Response, error) {
			return nil, fmt.Errorf("connection refused")
		})

	_, err := lookup.CanonicalURL(context.Background(), models.BookQuery{Title: "Anything"})
	if err == nil {
		t.Fatal("expected fetch error to propagate")
	}
}
