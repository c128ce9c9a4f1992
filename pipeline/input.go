package pipeline

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/aluiziolira/go-scrape-reviews/models"
)

// headerAliases maps common alternate column headers onto the canonical
// names. Matching is case-insensitive after trimming.
var headerAliases = map[string]string{
	"book id": "book_id",
	"bookid":  "book_id",
	"book_id": "book_id",
	"title":   "title",
	"author":  "author",
}

// ReadBookList loads the input table. An unreadable file is fatal; a row
// missing required fields is skipped with a warning and never aborts the
// batch.
func ReadBookList(path string) ([]models.BookQuery, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read input header: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(name))
		if canonical, ok := headerAliases[key]; ok {
			columns[canonical] = i
		}
	}
	for _, required := range []string{"book_id", "title", "author"} {
		if _, ok := columns[required]; !ok {
			return nil, fmt.Errorf("input file must contain a %q column", required)
		}
	}

	var books []models.BookQuery
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			slog.Warn("skipping malformed input row", slog.Int("line", line), slog.Any("error", err))
			continue
		}

		book := models.BookQuery{
			BookID: fieldAt(record, columns["book_id"]),
			Title:  fieldAt(record, columns["title"]),
			Author: fieldAt(record, columns["author"]),
		}
		if book.BookID == "" || book.Title == "" || book.Author == "" {
			slog.Warn("skipping input row with missing fields",
				slog.Int("line", line),
				slog.String("book_id", book.BookID),
				slog.String("title", book.Title),
			)
			continue
		}
		books = append(books, book)
	}

	return books, nil
}

func fieldAt(record []string, index int) string {
	if index < 0 || index >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[index])
}
