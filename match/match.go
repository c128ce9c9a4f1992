// Package match selects the best search candidate for a book query using
// weighted fuzzy string similarity. It performs no I/O.
package match

import (
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/antzucaro/matchr"

	"github.com/aluiziolira/go-scrape-reviews/models"
)

const (
	// SimilarityThreshold is the minimum combined score for a confident match.
	SimilarityThreshold = 70.0

	titleWeight  = 0.6
	authorWeight = 0.4
)

// Similarity returns a normalized edit-distance ratio in [0, 100].
// Comparison is case-insensitive; two empty strings are identical.
func Similarity(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))

	if a == b {
		return 100
	}
	// Distance and length must use the same unit: runes, not bytes.
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 100
	}

	distance := matchr.Levenshtein(a, b)
	if distance >= longest {
		return 0
	}
	return 100 * (1 - float64(distance)/float64(longest))
}

// Score computes the weighted title/author similarity for one candidate.
func Score(query models.BookQuery, candidate models.SearchCandidate) float64 {
	titleScore := Similarity(query.Title, candidate.Title)
	authorScore := Similarity(query.Author, candidate.Author)
	return titleScore*titleWeight + authorScore*authorWeight
}

// Select returns the candidate with the strictly highest score, or nil when
// no candidate clears the similarity threshold. Ties resolve to the earliest
// candidate, so selection is deterministic for a given input order.
// A nil result is an expected outcome, not an error.
func Select(query models.BookQuery, candidates []models.SearchCandidate) *models.SearchCandidate {
	if len(candidates) == 0 {
		return nil
	}

	best := -1
	bestScore := 0.0
	for i, candidate := range candidates {
		score := Score(query, candidate)
		if score > bestScore {
			bestScore = score
			best = i
		}
	}

	if best < 0 || bestScore < SimilarityThreshold {
		slog.Debug("no confident match",
			slog.String("title", query.Title),
			slog.String("author", query.Author),
			slog.Float64("best_score", bestScore),
		)
		return nil
	}

	selected := candidates[best]
	slog.Debug("selected candidate",
		slog.String("title", query.Title),
		slog.String("candidate", selected.Title),
		slog.Float64("score", bestScore),
	)
	return &selected
}
