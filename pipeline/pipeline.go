// Package pipeline reads the input book table, drives lookup and review
// collection per book, and streams validated rows to the output writers.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aluiziolira/go-scrape-reviews/config"
	"github.com/aluiziolira/go-scrape-reviews/fetch"
	"github.com/aluiziolira/go-scrape-reviews/models"
	"github.com/aluiziolira/go-scrape-reviews/parser"
	"github.com/aluiziolira/go-scrape-reviews/reviews"
	"github.com/aluiziolira/go-scrape-reviews/search"
)

var (
	// ErrPipelineClosed is returned when Process is called after shutdown.
	ErrPipelineClosed = errors.New("pipeline: closed")
)

// OutputWriter defines the interface for data output.
type OutputWriter interface {
	Write(rows []*models.BookReviewRow) error
	Close() error
	Validate() error
}

// Pipeline is the top-level orchestrator: it resolves each input book to a
// canonical URL, collects its reviews, and streams the flattened rows to
// the output writer. Failures are contained at book and page level; the
// run never aborts because of a single book.
type Pipeline struct {
	cfg       *config.Config
	lookup    *search.Lookup
	paginator *reviews.Paginator
	writer    OutputWriter

	rowCh     chan *models.BookReviewRow
	batchSize int

	wg sync.WaitGroup

	metrics metrics

	mu     sync.Mutex // guards closed/err
	closed bool
	err    error

	closeOnce    sync.Once
	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// NewPipeline builds a pipeline around its collaborators.
func NewPipeline(cfg *config.Config, lookup *search.Lookup, paginator *reviews.Paginator, writer OutputWriter) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		lookup:    lookup,
		paginator: paginator,
		writer:    writer,
		rowCh:     make(chan *models.BookReviewRow, cfg.BufferSize),
		batchSize: cfg.BatchSize,
		metrics:   newMetrics(),
		shutdown:  make(chan struct{}),
	}
}

// Start launches writer workers. Output row order follows submission order
// when a single worker runs, which is the default.
func (p *Pipeline) Start(workers int) {
	if workers <= 0 {
		workers = 1
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// Run processes every input book in order and reports aggregate counts.
// It does not close the pipeline; callers Close after Run returns.
func (p *Pipeline) Run(ctx context.Context, books []models.BookQuery) (*models.RunResult, error) {
	result := &models.RunResult{
		StartTime:    time.Now(),
		BooksTotal:   len(books),
		ErrorsByType: make(map[string]int),
	}

	for i, book := range books {
		if ctx.Err() != nil {
			slog.Info("run cancelled", slog.Int("books_done", i))
			break
		}

		slog.Info("processing book",
			slog.String("book_id", book.BookID),
			slog.String("title", book.Title),
			slog.Int("position", i+1),
			slog.Int("total", len(books)),
		)

		candidate, err := p.lookup.CanonicalURL(ctx, book)
		if err != nil {
			// Lookup failures are contained: the book proceeds with no
			// canonical URL and zero reviews.
			result.ErrorsByType[errorLabel(err)]++
			slog.Warn("book lookup failed",
				slog.String("book_id", book.BookID),
				slog.Any("error", err),
			)
			result.BooksSkipped++
			continue
		}
		if candidate == nil {
			slog.Warn("no confident match for book",
				slog.String("book_id", book.BookID),
				slog.String("title", book.Title),
			)
			result.BooksSkipped++
			continue
		}
		result.BooksMatched++

		records, outcomes := p.paginator.Collect(ctx, candidate.URL, p.cfg.MaxPagesPerBook)
		for _, outcome := range outcomes {
			if outcome.Err != nil {
				result.PagesFailed++
				result.ErrorsByType[errorLabel(outcome.Err)]++
			} else {
				result.PagesFetched++
			}
		}

		rows := make([]*models.BookReviewRow, 0, len(records))
		for _, record := range records {
			rows = append(rows, &models.BookReviewRow{
				BookID:       book.BookID,
				Title:        book.Title,
				Author:       book.Author,
				CanonicalURL: candidate.URL,
				Review:       record,
			})
		}

		if err := p.Process(rows); err != nil && err != ErrPipelineClosed {
			return result, fmt.Errorf("submit rows for book %s: %w", book.BookID, err)
		}
		result.RowsEmitted += len(rows)

		slog.Info("book complete",
			slog.String("book_id", book.BookID),
			slog.Int("reviews", len(records)),
		)
	}

	result.EndTime = time.Now()
	return result, nil
}

// Process enqueues rows for downstream writing.
func (p *Pipeline) Process(rows []*models.BookReviewRow) error {
	if len(rows) == 0 {
		return nil
	}

	closed, err := p.state()
	if err != nil {
		return err
	}
	if closed {
		return ErrPipelineClosed
	}

	for _, row := range rows {
		if row == nil {
			continue
		}
		if err := p.enqueue(row); err != nil {
			return err
		}
	}
	return nil
}

// Close waits for workers to finish and prevents more submissions.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
	}
	p.mu.Unlock()

	p.signalShutdown()
	p.closeOnce.Do(func() {
		close(p.rowCh)
	})

	p.wg.Wait()
	return p.Err()
}

// Err returns the first error encountered during processing.
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// GetMetrics returns a snapshot of the internal counters.
func (p *Pipeline) GetMetrics() map[string]interface{} {
	return p.metrics.snapshot()
}

// StartMetricsReporting emits periodic progress logs.
func (p *Pipeline) StartMetricsReporting(interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				snapshot := p.GetMetrics()
				processed := snapshot["processed_rows"].(int64)
				validation := snapshot["validation_errors"].(map[string]int)
				slog.Info("pipeline progress",
					slog.Int64("rows", processed),
					slog.Int("validation_error_kinds", len(validation)),
				)
			case <-p.shutdown:
				return
			}
		}
	}()
}

func (p *Pipeline) worker() {
	defer p.wg.Done()

	batch := make([]*models.BookReviewRow, 0, p.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := p.writer.Write(batch); err != nil {
			return err
		}
		batch = batch[:0]
		return nil
	}

	for row := range p.rowCh {
		if err := parser.ValidateRow(row); err != nil {
			p.metrics.addValidation("invalid_record")
			slog.Debug("dropping invalid row", slog.Any("error", err))
			continue
		}
		p.metrics.incrementProcessed()
		batch = append(batch, row)
		if len(batch) >= p.batchSize {
			if err := flush(); err != nil {
				p.setErr(fmt.Errorf("write batch: %w", err))
				return
			}
		}
	}

	if err := flush(); err != nil {
		p.setErr(fmt.Errorf("write batch: %w", err))
	}
}

func (p *Pipeline) enqueue(row *models.BookReviewRow) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ErrPipelineClosed
		}
	}()

	select {
	case <-p.shutdown:
		return ErrPipelineClosed
	case p.rowCh <- row:
		return nil
	}
}

func (p *Pipeline) setErr(err error) {
	if err == nil {
		return
	}

	p.mu.Lock()
	if p.err != nil {
		p.mu.Unlock()
		return
	}
	p.err = err
	p.closed = true
	p.mu.Unlock()

	p.signalShutdown()
	p.closeOnce.Do(func() {
		close(p.rowCh)
	})
}

func (p *Pipeline) state() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed, p.err
}

func (p *Pipeline) signalShutdown() {
	p.shutdownOnce.Do(func() {
		close(p.shutdown)
	})
}

func errorLabel(err error) string {
	switch {
	case err == nil:
		return "unknown"
	case fetch.IsBotChallenge(err):
		return "bot_challenge"
	case fetch.IsExhausted(err):
		return "exhausted"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "other"
	}
}

type metrics struct {
	mu         sync.Mutex
	processed  int64
	validation map[string]int
}

func newMetrics() metrics {
	return metrics{
		validation: make(map[string]int),
	}
}

func (m *metrics) incrementProcessed() {
	m.mu.Lock()
	m.processed++
	m.mu.Unlock()
}

func (m *metrics) addValidation(kind string) {
	m.mu.Lock()
	m.validation[kind]++
	m.mu.Unlock()
}

func (m *metrics) snapshot() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	copyValidation := make(map[string]int, len(m.validation))
	for k, v := range m.validation {
		copyValidation[k] = v
	}

	return map[string]interface{}{
		"processed_rows":    m.processed,
		"validation_errors": copyValidation,
	}
}
