package extract

import (
	"sort"
	"strconv"
	"strings"

	"github.com/aluiziolira/go-scrape-reviews/models"
)

// reviewKeyPrefix tags review entries in the flat typed-key object store.
const reviewKeyPrefix = "Review:"

// A strategy extracts review records from the decoded page-props object of
// the structured-data block. Strategies are pure over their input and are
// attempted in declaration order; the first one yielding a record wins.
type strategy struct {
	name models.Schema
	fn   func(pageProps map[string]any) []models.ReviewRecord
}

var strategies = []strategy{
	{name: models.SchemaEdgeList, fn: edgeListReviews},
	{name: models.SchemaDirectObjects, fn: directObjectReviews},
	{name: models.SchemaNestedState, fn: nestedStateReviews},
	{name: models.SchemaNestedData, fn: nestedDataReviews},
	{name: models.SchemaQueryCache, fn: queryCacheReviews},
}

// edgeListReviews walks the root query for book entries carrying a
// reviews.edges[].node reference list and resolves each reference against
// the flat object store.
func edgeListReviews(pageProps map[string]any) []models.ReviewRecord {
	store := childMap(pageProps, "apolloState")
	if store == nil {
		return nil
	}
	rootQuery := childMap(store, "ROOT_QUERY")
	if rootQuery == nil {
		return nil
	}

	var refs []string
	for _, key := range sortedKeys(rootQuery) {
		if !strings.Contains(key, "book(") {
			continue
		}
		book, ok := rootQuery[key].(map[string]any)
		if !ok {
			continue
		}
		for _, edge := range childSlice(book, "reviews", "edges") {
			edgeMap, ok := edge.(map[string]any)
			if !ok {
				continue
			}
			if ref, ok := refTarget(edgeMap["node"]); ok {
				refs = append(refs, ref)
			}
		}
	}

	var records []models.ReviewRecord
	for _, ref := range refs {
		obj, ok := store[ref].(map[string]any)
		if !ok {
			continue
		}
		if record, ok := parseReviewObject(obj, store, len(records)); ok {
			records = append(records, record)
		}
	}
	return records
}

// directObjectReviews scans the flat object store for entries whose key is
// tagged as a review type, used when no edge list resolves. Keys are
// visited in sorted order so extraction stays deterministic.
func directObjectReviews(pageProps map[string]any) []models.ReviewRecord {
	store := childMap(pageProps, "apolloState")
	if store == nil {
		return nil
	}

	var records []models.ReviewRecord
	for _, key := range sortedKeys(store) {
		if !strings.HasPrefix(key, reviewKeyPrefix) {
			continue
		}
		obj, ok := store[key].(map[string]any)
		if !ok {
			continue
		}
		if record, ok := parseReviewObject(obj, store, len(records)); ok {
			records = append(records, record)
		}
	}
	return records
}

// nestedStateReviews reads inline review objects from the secondary state
// tree, no reference indirection involved.
func nestedStateReviews(pageProps map[string]any) []models.ReviewRecord {
	return inlineReviews(childSlice(pageProps, "initialState", "books", "current", "reviews"))
}

// nestedDataReviews reads inline review objects from the tertiary location.
func nestedDataReviews(pageProps map[string]any) []models.ReviewRecord {
	return inlineReviews(childSlice(pageProps, "initialData", "book", "reviews"))
}

// queryCacheReviews searches the dehydrated query results for a payload
// with a book.reviews.edges[].node shape holding inline nodes.
func queryCacheReviews(pageProps map[string]any) []models.ReviewRecord {
	var records []models.ReviewRecord
	for _, query := range childSlice(pageProps, "dehydratedState", "queries") {
		queryMap, ok := query.(map[string]any)
		if !ok {
			continue
		}
		book := childMap(queryMap, "state", "data", "book")
		if book == nil {
			continue
		}
		for _, edge := range childSlice(book, "reviews", "edges") {
			edgeMap, ok := edge.(map[string]any)
			if !ok {
				continue
			}
			node, ok := edgeMap["node"].(map[string]any)
			if !ok {
				continue
			}
			if record, ok := parseReviewObject(node, nil, len(records)); ok {
				records = append(records, record)
			}
		}
	}
	return records
}

func inlineReviews(items []any) []models.ReviewRecord {
	var records []models.ReviewRecord
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if record, ok := parseReviewObject(obj, nil, len(records)); ok {
			records = append(records, record)
		}
	}
	return records
}

// sortedKeys orders map keys deterministically, comparing numeric id
// suffixes by value so "Review:2" precedes "Review:10" as upstream
// numbered them.
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		return keyLess(keys[i], keys[j])
	})
	return keys
}

func keyLess(a, b string) bool {
	prefixA, numA, okA := splitTrailingInt(a)
	prefixB, numB, okB := splitTrailingInt(b)
	if okA && okB && prefixA == prefixB {
		return numA < numB
	}
	return a < b
}

// splitTrailingInt separates a key's trailing decimal digits. ok is false
// when the key has no digit suffix or the digits overflow an int.
func splitTrailingInt(s string) (prefix string, n int, ok bool) {
	i := len(s)
	for i > 0 && s[i-1] >= '0' && s[i-1] <= '9' {
		i--
	}
	if i == len(s) {
		return s, 0, false
	}
	n, err := strconv.Atoi(s[i:])
	if err != nil {
		return s, 0, false
	}
	return s[:i], n, true
}
