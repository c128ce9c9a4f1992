package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aluiziolira/go-scrape-reviews/config"
	"github.com/aluiziolira/go-scrape-reviews/extract"
	"github.com/aluiziolira/go-scrape-reviews/fetch"
	"github.com/aluiziolira/go-scrape-reviews/models"
	"github.com/aluiziolira/go-scrape-reviews/pipeline"
	"github.com/aluiziolira/go-scrape-reviews/reviews"
	"github.com/aluiziolira/go-scrape-reviews/search"
)

func main() {
	defaultCfg := config.DefaultConfig()
	inputDefault := defaultCfg.InputFile
	if value, ok := config.EnvString("SCRAPER_INPUT"); ok {
		inputDefault = value
	}
	outputDefault := defaultCfg.OutputFile
	if value, ok := config.EnvString("SCRAPER_OUTPUT"); ok {
		outputDefault = value
	}
	cacheDefault := defaultCfg.CacheDir
	if value, ok := config.EnvString("SCRAPER_CACHE_DIR"); ok {
		cacheDefault = value
	}
	maxPagesDefault := defaultCfg.MaxPagesPerBook
	if value, ok, err := config.EnvInt("SCRAPER_MAX_PAGES"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid SCRAPER_MAX_PAGES: %v\n", err)
		os.Exit(1)
	} else if ok {
		maxPagesDefault = value
	}
	metricsDefault := defaultCfg.MetricsAddr
	if value, ok := config.EnvString("SCRAPER_METRICS_ADDR"); ok {
		metricsDefault = value
	}

	inputFile := flag.String("input", inputDefault, "Input CSV with book_id, title, author columns")
	outputFile := flag.String("output", outputDefault, "Output file path")
	outputFormat := flag.String("format", "csv", "Output format: csv, json, or dual")
	cacheDir := flag.String("cache-dir", cacheDefault, "Directory for the on-disk page cache")
	baseURL := flag.String("base-url", defaultCfg.BaseURL, "Base URL of the review site")
	maxPages := flag.Int("max-pages", maxPagesDefault, "Maximum review pages per book (0 for all)")
	delayMs := flag.Int("delay", int(defaultCfg.RequestDelay/time.Millisecond), "Minimum spacing between network requests (milliseconds)")
	maxAttempts := flag.Int("max-attempts", defaultCfg.MaxAttempts, "Total attempts per request")
	retryBackoffMs := flag.Int("retry-backoff", int(defaultCfg.RetryBackoff/time.Millisecond), "Initial retry backoff (milliseconds)")
	retryBackoffMaxMs := flag.Int("retry-backoff-max", int(defaultCfg.RetryBackoffMax/time.Millisecond), "Maximum retry backoff (milliseconds)")
	timeoutMs := flag.Int("timeout", int(defaultCfg.Timeout/time.Millisecond), "HTTP request timeout (milliseconds)")
	workers := flag.Int("workers", defaultCfg.Workers, "Writer workers (more than 1 reorders output rows)")
	verbose := flag.Bool("v", false, "Enable verbose logging")
	metricsAddr := flag.String("metrics-addr", metricsDefault, "Prometheus metrics listen address (e.g. :9090)")

	flag.Parse()

	logger, level := newLogger(*verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	cfg := buildConfigFromFlags(*baseURL, *inputFile, *outputFile, *outputFormat, *cacheDir, *maxPages, *delayMs, *maxAttempts, *retryBackoffMs, *retryBackoffMaxMs, *timeoutMs, *workers, *verbose, *metricsAddr)
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	books, err := pipeline.ReadBookList(cfg.InputFile)
	if err != nil {
		slog.Error("reading input table", slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("starting review scrape",
		slog.String("base_url", cfg.BaseURL),
		slog.Int("books", len(books)),
		slog.String("cache_dir", cfg.CacheDir),
	)

	client, err := fetch.NewClient(cfg)
	if err != nil {
		slog.Error("initialising fetch client", slog.Any("error", err))
		os.Exit(1)
	}

	writer, err := createWriter(cfg.OutputFormat, cfg.OutputFile)
	if err != nil {
		slog.Error("creating writer", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := writer.Close(); err != nil {
			slog.Error("close writer", slog.Any("error", err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, waiting for in-flight work to finish")
	}()

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" && client.Metrics != nil {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(client.Metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	lookup := search.NewLookup(client, cfg.BaseURL)
	paginator := reviews.NewPaginator(client, extract.NewResolver())

	p := pipeline.NewPipeline(cfg, lookup, paginator, writer)
	p.Start(cfg.Workers)
	if cfg.Verbose {
		p.StartMetricsReporting(10 * time.Second)
	}

	startTime := time.Now()
	result, err := p.Run(ctx, books)
	if err != nil {
		slog.Error("scraping failed", slog.Any("error", err))
		os.Exit(1)
	}

	if err := p.Close(); err != nil {
		slog.Error("pipeline shutdown failed", slog.Any("error", err))
		os.Exit(1)
	}

	if err := writer.Validate(); err != nil {
		slog.Error("output validation failed", slog.Any("error", err))
		os.Exit(1)
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	printSummary(result, time.Since(startTime), cfg.OutputFile)
}

func buildConfigFromFlags(baseURL, inputFile, outputFile, outputFormat, cacheDir string, maxPages, delayMs, maxAttempts, retryBackoffMs, retryBackoffMaxMs, timeoutMs, workers int, verbose bool, metricsAddr string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.BaseURL = baseURL
	cfg.InputFile = inputFile
	cfg.OutputFile = outputFile
	cfg.OutputFormat = strings.ToLower(outputFormat)
	cfg.CacheDir = cacheDir
	cfg.MaxPagesPerBook = maxPages
	cfg.RequestDelay = time.Duration(delayMs) * time.Millisecond
	cfg.MaxAttempts = maxAttempts
	cfg.RetryBackoff = time.Duration(retryBackoffMs) * time.Millisecond
	cfg.RetryBackoffMax = time.Duration(retryBackoffMaxMs) * time.Millisecond
	cfg.Timeout = time.Duration(timeoutMs) * time.Millisecond
	cfg.Workers = workers
	cfg.Verbose = verbose
	cfg.MetricsAddr = metricsAddr
	return cfg
}

func createWriter(format, filename string) (pipeline.OutputWriter, error) {
	switch format {
	case "json":
		return pipeline.NewJSONWriter(filename)
	case "csv":
		return pipeline.NewCSVWriter(filename)
	case "dual":
		jsonFilename := strings.TrimSuffix(filename, ".csv") + ".json"
		return pipeline.NewDualWriter(filename, jsonFilename)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

func printSummary(result *models.RunResult, duration time.Duration, outputFile string) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Scrape complete")
	fmt.Printf("  Books:         %d (%d matched, %d skipped)\n", result.BooksTotal, result.BooksMatched, result.BooksSkipped)
	fmt.Printf("  Pages:         %d fetched, %d failed\n", result.PagesFetched, result.PagesFailed)
	fmt.Printf("  Rows emitted:  %d\n", result.RowsEmitted)
	if len(result.ErrorsByType) > 0 {
		fmt.Printf("  Error types:   %v\n", result.ErrorsByType)
	}
	fmt.Printf("  Duration:      %v\n", duration)
	fmt.Printf("  Output file:   %s\n", outputFile)
	fmt.Println(separator)
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
