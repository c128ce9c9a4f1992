package config

import (
	"fmt"
	"net/url"
	"time"
)

// Config holds scraper configuration.
type Config struct {
	BaseURL         string
	InputFile       string
	OutputFile      string
	OutputFormat    string // csv, json, or dual
	CacheDir        string
	RequestDelay    time.Duration // minimum spacing between network requests
	Timeout         time.Duration
	MaxAttempts     int // total tries per request, including the first
	RetryBackoff    time.Duration
	RetryBackoffMax time.Duration
	MaxPagesPerBook int // 0 means no cap
	Workers         int
	BatchSize       int
	BufferSize      int
	UserAgent       string
	MetricsAddr     string
	Verbose         bool
}

// DefaultConfig returns conservative defaults for the review target.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:         "https://www.goodreads.com",
		InputFile:       "data/input/books.csv",
		OutputFile:      "output/reviews.csv",
		OutputFormat:    "csv",
		CacheDir:        "data/cache",
		RequestDelay:    2 * time.Second,
		Timeout:         30 * time.Second,
		MaxAttempts:     3,
		RetryBackoff:    2 * time.Second,
		RetryBackoffMax: 10 * time.Second,
		MaxPagesPerBook: 0,
		Workers:         1,
		BatchSize:       64,
		BufferSize:      512,
		UserAgent:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
		MetricsAddr:     "",
		Verbose:         false,
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}

	if c.InputFile == "" {
		return fmt.Errorf("input file cannot be empty")
	}
	if c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty")
	}
	if c.OutputFormat != "csv" && c.OutputFormat != "json" && c.OutputFormat != "dual" {
		return fmt.Errorf("output format must be csv, json, or dual")
	}
	if c.RequestDelay < 0 {
		return fmt.Errorf("request delay cannot be negative")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("max attempts must be positive")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.RetryBackoffMax < 0 {
		return fmt.Errorf("retry backoff max cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}
	if c.MaxPagesPerBook < 0 {
		return fmt.Errorf("max pages per book cannot be negative")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.BufferSize <= 0 {
		return fmt.Errorf("buffer size must be positive")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	return nil
}
