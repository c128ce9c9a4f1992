// Package extract locates the embedded structured-data block of a fetched
// page and normalizes review records and pagination counts out of one of
// several known schema shapes. Extraction is side-effect free; a page with
// no extractable data is a legitimate empty result, not an error.
package extract

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/go-scrape-reviews/models"
)

// structuredDataSelector matches the single well-known script container
// holding the server's render-time JSON.
const structuredDataSelector = "script#__NEXT_DATA__"

// PageSize is the upstream default number of reviews per page, used when
// only a total review count is exposed.
const PageSize = 30

// Resolver turns raw page bodies into PageExtractionResults.
type Resolver struct{}

// NewResolver returns a ready resolver.
func NewResolver() *Resolver {
	return &Resolver{}
}

// Extract attempts the known schema strategies in priority order, stopping
// at the first that yields a review, then resolves the total page count.
// Absence of the structured-data block and zero extractable reviews are
// both terminal empty results, distinguishable only through logging.
func (r *Resolver) Extract(body []byte) models.PageExtractionResult {
	result := models.PageExtractionResult{SchemaUsed: models.SchemaNone, TotalPages: 1}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		slog.Warn("unparseable page body", slog.Any("error", err))
		return result
	}

	pageProps, found := structuredData(doc)
	if found {
		for _, s := range strategies {
			if reviews := s.fn(pageProps); len(reviews) > 0 {
				result.Reviews = reviews
				result.SchemaUsed = s.name
				break
			}
		}
		result.TotalPages = pageCount(pageProps, doc)
	} else {
		slog.Debug("no structured data block on page")
		if anchors := paginationAnchorMax(doc); anchors > 0 {
			result.TotalPages = anchors
		}
	}

	if len(result.Reviews) == 0 {
		// Legacy server-rendered markup is the last resort.
		if reviews := htmlReviews(doc); len(reviews) > 0 {
			result.Reviews = reviews
			result.SchemaUsed = models.SchemaHTML
		}
	}

	if len(result.Reviews) == 0 {
		slog.Debug("no reviews extractable from page",
			slog.Bool("structured_data", found),
		)
	}
	return result
}

// structuredData returns the decoded pageProps object of the embedded
// block. A missing block is a normal outcome.
func structuredData(doc *goquery.Document) (map[string]any, bool) {
	script := doc.Find(structuredDataSelector).First()
	if script.Length() == 0 {
		return nil, false
	}

	var root map[string]any
	if err := json.Unmarshal([]byte(script.Text()), &root); err != nil {
		slog.Warn("malformed structured data block", slog.Any("error", err))
		return nil, false
	}

	pageProps := childMap(root, "props", "pageProps")
	if pageProps == nil {
		return map[string]any{}, true
	}
	return pageProps, true
}

// pageCount mirrors the strategy priority used for reviews: pageInfo under
// the edge list, a review total divided by the page size, the dehydrated
// query results, and finally pagination anchors in the rendered markup.
// The current page is always visitable, so the count is never below 1.
func pageCount(pageProps map[string]any, doc *goquery.Document) int {
	if store := childMap(pageProps, "apolloState"); store != nil {
		if rootQuery := childMap(store, "ROOT_QUERY"); rootQuery != nil {
			for _, key := range sortedKeys(rootQuery) {
				book, ok := rootQuery[key].(map[string]any)
				if !ok || !containsBookKey(key) {
					continue
				}
				if pageInfo := childMap(book, "reviews", "pageInfo"); pageInfo != nil {
					if total, ok := floatField(pageInfo, "totalPages"); ok && total >= 1 {
						return int(total)
					}
				}
			}
		}
	}

	if stats := childMap(pageProps, "initialState", "books", "current", "reviewStats"); stats != nil {
		if total, ok := floatField(stats, "totalReviews"); ok && total > 0 {
			return (int(total) + PageSize - 1) / PageSize
		}
	}

	for _, query := range childSlice(pageProps, "dehydratedState", "queries") {
		queryMap, ok := query.(map[string]any)
		if !ok {
			continue
		}
		if pageInfo := childMap(queryMap, "state", "data", "book", "reviews", "pageInfo"); pageInfo != nil {
			if total, ok := floatField(pageInfo, "totalPages"); ok && total >= 1 {
				return int(total)
			}
		}
	}

	if anchors := paginationAnchorMax(doc); anchors > 0 {
		return anchors
	}
	return 1
}

func containsBookKey(key string) bool {
	return key == "book" || strings.Contains(key, "book(")
}
