// Package reviews collects the full ordered review set for one book by
// walking its review pages.
package reviews

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/aluiziolira/go-scrape-reviews/extract"
	"github.com/aluiziolira/go-scrape-reviews/fetch"
	"github.com/aluiziolira/go-scrape-reviews/models"
)

// Paginator orchestrates repeated fetches and extractions across all
// discovered pages of one book.
type Paginator struct {
	client   *fetch.Client
	resolver *extract.Resolver
}

// NewPaginator wires a paginator to its collaborators.
func NewPaginator(client *fetch.Client, resolver *extract.Resolver) *Paginator {
	return &Paginator{client: client, resolver: resolver}
}

// Collect walks pages 1..N in order, concatenating extracted records
// exactly as upstream presents them. The page count comes from the first
// page, capped by maxPages when positive. A failing page contributes zero
// records and a non-nil Err in its outcome; it never aborts the book.
// Records are never deduplicated across pages.
func (p *Paginator) Collect(ctx context.Context, canonicalURL string, maxPages int) ([]models.ReviewRecord, []models.PageOutcome) {
	reviewsURL := strings.TrimSuffix(canonicalURL, "/") + "/reviews"

	first, err := p.fetchPage(ctx, reviewsURL, 1)
	if err != nil {
		slog.Warn("first review page failed",
			slog.String("url", reviewsURL),
			slog.Any("error", err),
		)
		return nil, []models.PageOutcome{{Page: 1, Err: err}}
	}

	result := p.resolver.Extract(first)
	totalPages := result.TotalPages
	if totalPages < 1 {
		totalPages = 1
	}
	if maxPages > 0 && totalPages > maxPages {
		totalPages = maxPages
	}
	slog.Info("collecting review pages",
		slog.String("url", reviewsURL),
		slog.Int("total_pages", totalPages),
		slog.String("schema", string(result.SchemaUsed)),
	)

	records := append([]models.ReviewRecord(nil), result.Reviews...)
	outcomes := []models.PageOutcome{{Page: 1, Reviews: result.Reviews}}

	for page := 2; page <= totalPages; page++ {
		if ctx.Err() != nil {
			outcomes = append(outcomes, models.PageOutcome{Page: page, Err: ctx.Err()})
			break
		}

		body, err := p.fetchPage(ctx, reviewsURL, page)
		if err != nil {
			// Partial-failure isolation: log, record, move on.
			slog.Warn("review page failed",
				slog.String("url", reviewsURL),
				slog.Int("page", page),
				slog.Any("error", err),
			)
			outcomes = append(outcomes, models.PageOutcome{Page: page, Err: err})
			continue
		}

		pageResult := p.resolver.Extract(body)
		if len(pageResult.Reviews) == 0 {
			// Possibly a transient upstream anomaly; the loop continues
			// through the previously determined total regardless.
			slog.Debug("empty review page",
				slog.String("url", reviewsURL),
				slog.Int("page", page),
			)
		}
		records = append(records, pageResult.Reviews...)
		outcomes = append(outcomes, models.PageOutcome{Page: page, Reviews: pageResult.Reviews})
	}

	return records, outcomes
}

func (p *Paginator) fetchPage(ctx context.Context, reviewsURL string, page int) ([]byte, error) {
	params := url.Values{}
	params.Set("page", strconv.Itoa(page))

	resp, err := p.client.Fetch(ctx, reviewsURL, params)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http status %d", resp.StatusCode)
	}
	return resp.Body, nil
}
