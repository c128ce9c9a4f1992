// Package models defines data structures shared across the scraper.
package models

import "time"

// BookQuery identifies one book to look up: a title/author pair from the
// input table. Immutable once read.
type BookQuery struct {
	BookID string
	Title  string
	Author string
}

// SearchCandidate is one entry parsed from a search results page. Candidates
// are ephemeral; only the selected one survives as a canonical URL.
type SearchCandidate struct {
	Title      string
	Author     string
	URL        string
	ExternalID string
}

// Schema names the extraction strategy that produced a page result.
type Schema string

const (
	SchemaEdgeList      Schema = "edge_list"
	SchemaDirectObjects Schema = "direct_objects"
	SchemaNestedState   Schema = "nested_state"
	SchemaNestedData    Schema = "nested_data"
	SchemaQueryCache    Schema = "query_cache"
	SchemaHTML          Schema = "html"
	SchemaNone          Schema = "none"
)

// ReviewRecord is the normalized output unit for a single review.
// A record is only valid if it carries review text or a rating, and its
// ReviewerID is never empty (missing ids get a synthetic placeholder).
type ReviewRecord struct {
	Text         string   `json:"review_text"`
	Rating       int      `json:"review_rating,omitempty"` // 1..5, 0 means absent
	ReviewerID   string   `json:"reviewer_id"`
	ReviewerName string   `json:"reviewer_name"`
	Upvotes      int      `json:"review_upvotes"`
	CreatedAt    string   `json:"review_date"` // YYYY-MM-DDTHH:MM:SS
	URL          string   `json:"review_url,omitempty"`
	Shelves      []string `json:"shelves,omitempty"`
	CommentCount int      `json:"comment_count"`
}

// HasRating reports whether the record carries an explicit rating.
func (r *ReviewRecord) HasRating() bool {
	return r.Rating >= 1 && r.Rating <= 5
}

// PageExtractionResult is the outcome of running the schema resolver over
// one page body. It is transient and never cached.
type PageExtractionResult struct {
	Reviews    []ReviewRecord
	SchemaUsed Schema
	TotalPages int // 0 when the page exposed no pagination info
}

// PageOutcome records what happened to a single review page. A failed fetch
// or extraction sets Err and contributes zero records; an empty page that
// fetched fine has Err == nil. Both are terminal states for the page.
type PageOutcome struct {
	Page    int
	Reviews []ReviewRecord
	Err     error
}

// BookReviewRow is one flattened (book, review) pair emitted to the output
// table. Rows are immutable once created and carry no run-varying fields,
// so identical cached inputs reproduce identical output bytes.
type BookReviewRow struct {
	BookID       string       `json:"book_id"`
	Title        string       `json:"title"`
	Author       string       `json:"author"`
	CanonicalURL string       `json:"canonical_url"`
	Review       ReviewRecord `json:"review"`
}

// RunResult summarises one full pipeline run.
type RunResult struct {
	StartTime    time.Time
	EndTime      time.Time
	BooksTotal   int
	BooksMatched int
	BooksSkipped int
	PagesFetched int
	PagesFailed  int
	RowsEmitted  int
	ErrorsByType map[string]int
}
