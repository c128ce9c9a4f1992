package parser

import (
	"testing"

	"github.com/aluiziolira/go-scrape-reviews/models"
)

func validRow() *models.BookReviewRow {
	return &models.BookReviewRow{
		BookID: "book-1",
		Title:  "The Hobbit",
		Author: "J.R.R. Tolkien",
		Review: models.ReviewRecord{
			ReviewerID: "12345",
			Text:       "Loved it.",
			Rating:     5,
		},
	}
}

func TestValidateRow(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*models.BookReviewRow)
		wantErr bool
	}{
		{
			name:   "valid row",
			mutate: func(*models.BookReviewRow) {},
		},
		{
			name: "text only",
			mutate: func(r *models.BookReviewRow) {
				r.Review.Rating = 0
			},
		},
		{
			name: "rating only",
			mutate: func(r *models.BookReviewRow) {
				r.Review.Text = ""
			},
		},
		{
			name: "missing book id",
			mutate: func(r *models.BookReviewRow) {
				r.BookID = "  "
			},
			wantErr: true,
		},
		{
			name: "missing reviewer id",
			mutate: func(r *models.BookReviewRow) {
				r.Review.ReviewerID = ""
			},
			wantErr: true,
		},
		{
			name: "neither text nor rating",
			mutate: func(r *models.BookReviewRow) {
				r.Review.Text = ""
				r.Review.Rating = 0
			},
			wantErr: true,
		},
		{
			name: "rating out of range",
			mutate: func(r *models.BookReviewRow) {
				r.Review.Rating = 6
			},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := validRow()
			tt.mutate(row)
			err := ValidateRow(row)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateRow() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateRowNil(t *testing.T) {
	if err := ValidateRow(nil); err == nil {
		t.Error("ValidateRow(nil) should fail")
	}
}

func TestRatingString(t *testing.T) {
	tests := []struct {
		rating int
		want   string
	}{
		{0, ""},
		{1, "1"},
		{5, "5"},
		{6, ""},
		{-1, ""},
	}
	for _, tt := range tests {
		if got := RatingString(tt.rating); got != tt.want {
			t.Errorf("RatingString(%d) = %q, want %q", tt.rating, got, tt.want)
		}
	}
}

func TestNormalizeShelves(t *testing.T) {
	tests := []struct {
		name    string
		shelves []string
		want    string
	}{
		{"empty", nil, ""},
		{"single", []string{"fantasy"}, "fantasy"},
		{"multiple joined", []string{"fantasy", "classics"}, "fantasy;classics"},
		{"whitespace trimmed", []string{" fantasy ", "", "classics"}, "fantasy;classics"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeShelves(tt.shelves); got != tt.want {
				t.Errorf("NormalizeShelves() = %q, want %q", got, tt.want)
			}
		})
	}
}
