package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/aluiziolira/go-scrape-reviews/models"
)

func sampleRows() []*models.BookReviewRow {
	return []*models.BookReviewRow{
		{
			BookID:       "1",
			Title:        "The Hobbit",
			Author:       "J.R.R. Tolkien",
			CanonicalURL: "https://www.goodreads.com/book/show/5907.The_Hobbit",
			Review: models.ReviewRecord{
				Text:         "A classic.",
				Rating:       5,
				ReviewerID:   "12345",
				ReviewerName: "Bilbo",
				Upvotes:      7,
				CreatedAt:    "2020-01-01T00:00:00",
				URL:          "https://www.goodreads.com/review/show/42",
				Shelves:      []string{"fantasy", "classics"},
				CommentCount: 3,
			},
		},
		{
			BookID:       "1",
			Title:        "The Hobbit",
			Author:       "J.R.R. Tolkien",
			CanonicalURL: "https://www.goodreads.com/book/show/5907.The_Hobbit",
			Review: models.ReviewRecord{
				Rating:     2,
				ReviewerID: "unknown_1",
			},
		},
	}
}

func TestCSVWriterColumnContract(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	writer, err := NewCSVWriter(path)
	if err != nil {
		t.Fatalf("NewCSVWriter() error = %v", err)
	}

	if err := writer.Write(sampleRows()); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("records = %d, want header + 2 rows", len(records))
	}
	if !reflect.DeepEqual(records[0], outputColumns) {
		t.Errorf("header = %v, want %v", records[0], outputColumns)
	}

	first := records[1]
	want := []string{
		"1", "The Hobbit", "J.R.R. Tolkien",
		"https://www.goodreads.com/book/show/5907.The_Hobbit",
		"A classic.", "5", "12345", "Bilbo", "7",
		"2020-01-01T00:00:00",
		"https://www.goodreads.com/review/show/42",
		"fantasy;classics", "3",
	}
	if !reflect.DeepEqual(first, want) {
		t.Errorf("row = %v, want %v", first, want)
	}

	// A rating-only record renders an empty text cell and empty shelf set.
	second := records[2]
	if second[4] != "" || second[5] != "2" || second[11] != "" {
		t.Errorf("rating-only row = %v", second)
	}
}

func TestJSONWriterEmitsJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	writer, err := NewJSONWriter(path)
	if err != nil {
		t.Fatalf("NewJSONWriter() error = %v", err)
	}
	if err := writer.Write(sampleRows()); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer f.Close()

	var lines int
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines++
		var row models.BookReviewRow
		if err := json.Unmarshal(scanner.Bytes(), &row); err != nil {
			t.Fatalf("line %d is not valid JSON: %v", lines, err)
		}
		if row.BookID != "1" {
			t.Errorf("line %d book_id = %q", lines, row.BookID)
		}
	}
	if lines != 2 {
		t.Errorf("lines = %d, want 2", lines)
	}
}

func TestDualWriterWritesBothOutputs(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "out.csv")
	jsonPath := filepath.Join(dir, "out.json")

	writer, err := NewDualWriter(csvPath, jsonPath)
	if err != nil {
		t.Fatalf("NewDualWriter() error = %v", err)
	}
	if err := writer.Write(sampleRows()); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	for _, path := range []string{csvPath, jsonPath} {
		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("stat %s: %v", path, err)
		}
		if info.Size() == 0 {
			t.Errorf("%s is empty", path)
		}
	}
}

func TestCSVWriterCreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deep", "out.csv")
	writer, err := NewCSVWriter(path)
	if err != nil {
		t.Fatalf("NewCSVWriter() error = %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("output file missing: %v", err)
	}
}
