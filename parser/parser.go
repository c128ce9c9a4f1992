// Package parser validates and normalizes rows before output.
package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aluiziolira/go-scrape-reviews/models"
)

// ValidateRow ensures a row carries the fields the output contract
// requires: a book id, a non-empty reviewer id, and review content
// satisfying the text-or-rating invariant.
func ValidateRow(row *models.BookReviewRow) error {
	if row == nil {
		return fmt.Errorf("row is nil")
	}
	if strings.TrimSpace(row.BookID) == "" {
		return fmt.Errorf("row missing book id")
	}
	if strings.TrimSpace(row.Review.ReviewerID) == "" {
		return fmt.Errorf("row missing reviewer id for book %s", row.BookID)
	}
	if row.Review.Text == "" && !row.Review.HasRating() {
		return fmt.Errorf("row has neither text nor rating for book %s", row.BookID)
	}
	if row.Review.Rating != 0 && !row.Review.HasRating() {
		return fmt.Errorf("rating %d out of range for book %s", row.Review.Rating, row.BookID)
	}
	return nil
}

// RatingString renders a rating for tabular output, empty when absent.
func RatingString(rating int) string {
	if rating < 1 || rating > 5 {
		return ""
	}
	return strconv.Itoa(rating)
}

// NormalizeShelves renders the shelf set as a stable semicolon-joined
// string for tabular output.
func NormalizeShelves(shelves []string) string {
	if len(shelves) == 0 {
		return ""
	}
	cleaned := make([]string, 0, len(shelves))
	for _, shelf := range shelves {
		if shelf = strings.TrimSpace(shelf); shelf != "" {
			cleaned = append(cleaned, shelf)
		}
	}
	return strings.Join(cleaned, ";")
}
