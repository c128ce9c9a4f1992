// Package search finds the canonical page for a book by querying the
// upstream search endpoint and fuzzy-matching the returned candidates.
package search

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/go-scrape-reviews/fetch"
	"github.com/aluiziolira/go-scrape-reviews/match"
	"github.com/aluiziolira/go-scrape-reviews/models"
)

const searchPath = "/search"

var bookIDRegex = regexp.MustCompile(`/show/(\d+)`)

// Lookup resolves book queries to canonical URLs via the shared fetch
// client.
type Lookup struct {
	client  *fetch.Client
	baseURL string
}

// NewLookup builds a lookup against baseURL.
func NewLookup(client *fetch.Client, baseURL string) *Lookup {
	return &Lookup{
		client:  client,
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

// CanonicalURL searches for the query and returns the best-matching
// candidate, or nil when no candidate clears the similarity threshold.
// A nil candidate with nil error means "no confident match" and is an
// expected outcome.
func (l *Lookup) CanonicalURL(ctx context.Context, query models.BookQuery) (*models.SearchCandidate, error) {
	params := url.Values{}
	params.Set("q", strings.TrimSpace(query.Title+" "+query.Author))

	resp, err := l.client.Fetch(ctx, l.baseURL+searchPath, params)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		slog.Warn("search request failed",
			slog.String("title", query.Title),
			slog.Int("status", resp.StatusCode),
		)
		return nil, nil
	}

	candidates := ParseCandidates(resp.Body, l.baseURL)
	if len(candidates) == 0 {
		slog.Debug("search returned no candidates", slog.String("title", query.Title))
		return nil, nil
	}

	return match.Select(query, candidates), nil
}

// ParseCandidates extracts search candidates from a results page, in page
// order. Entries without a numeric id are skipped. Candidate order must be
// preserved: the matcher breaks ties by first-seen position.
func ParseCandidates(body []byte, baseURL string) []models.SearchCandidate {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		slog.Warn("unparseable search page", slog.Any("error", err))
		return nil
	}

	var candidates []models.SearchCandidate

	rows := doc.Find("table.tableList tr")
	if rows.Length() > 0 {
		rows.Each(func(_ int, row *goquery.Selection) {
			title := row.Find("a.bookTitle").First()
			author := row.Find("a.authorName").First()
			if candidate, ok := candidateFrom(title, author, baseURL); ok {
				candidates = append(candidates, candidate)
			}
		})
		return candidates
	}

	// Older result markup renders flat title blocks instead of a table.
	doc.Find("div.bookTitle").Each(func(_ int, block *goquery.Selection) {
		title := block.Find("a").First()
		author := block.Find("div.authorName").First()
		if candidate, ok := candidateFrom(title, author, baseURL); ok {
			candidates = append(candidates, candidate)
		}
	})
	return candidates
}

func candidateFrom(title, author *goquery.Selection, baseURL string) (models.SearchCandidate, bool) {
	if title.Length() == 0 || author.Length() == 0 {
		return models.SearchCandidate{}, false
	}

	href, ok := title.Attr("href")
	if !ok || href == "" {
		return models.SearchCandidate{}, false
	}
	if !strings.HasPrefix(href, "http") {
		href = baseURL + href
	}

	groups := bookIDRegex.FindStringSubmatch(href)
	if len(groups) != 2 {
		return models.SearchCandidate{}, false
	}

	authorName := strings.TrimSpace(author.Text())
	authorName = strings.TrimSpace(strings.TrimPrefix(authorName, "by "))

	// The canonical URL never carries the search query string.
	if i := strings.IndexByte(href, '?'); i >= 0 {
		href = href[:i]
	}

	return models.SearchCandidate{
		Title:      strings.TrimSpace(title.Text()),
		Author:     authorName,
		URL:        href,
		ExternalID: groups[1],
	}, true
}
