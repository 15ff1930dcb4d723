// Package config provides configuration structures and loading for the gas price scraper.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the gas price scraper.
type Config struct {
	// Directory holding the historical store and per-cycle files
	OutputDir string
	// Anchor instant override; zero means the wall clock at cycle start
	AsOf time.Time
	// Number of regions fetched concurrently
	Workers int
	// Per-request timeout
	RequestTimeout time.Duration
	// Retries after the first attempt for transient failures
	MaxRetries int
	// Request rate limit towards the source (0 disables limiting)
	RequestsPerSecond float64
	// Base URL of the price pages
	BaseURL string
	// Region reference CSV, URL or file path
	RegionsSource string
	// Restrict scraping to these region IDs; empty means all
	Regions []string
	// Also scrape the county map of every region
	Counties bool
	// PostgreSQL connection string; empty disables the mirror
	PostgresDSN string
	// Log level (debug, info, warn, error)
	LogLevel string
	// Log format (json, console)
	LogFormat string
	// HTTP server address
	HTTPAddr string
	// Scrape hour (0-23)
	ScrapeHour int
	// Backfill settings
	Backfill BackfillConfig
}

// BackfillConfig holds configuration for importing historical data.
type BackfillConfig struct {
	// Start date for backfill
	From time.Time
	// End date for backfill
	To time.Time
	// Base URL of the daily archive files
	BaseURL string
	// Minimum delay between requests in seconds
	MinDelay int
	// Maximum delay between requests in seconds
	MaxDelay int
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		OutputDir:         "./data",
		Workers:           4,
		RequestTimeout:    30 * time.Second,
		MaxRetries:        2,
		RequestsPerSecond: 2,
		BaseURL:           "https://gasprices.aaa.com/",
		RegionsSource:     "https://raw.githubusercontent.com/jasonong/List-of-US-States/master/states.csv",
		LogLevel:          "info",
		LogFormat:         "json",
		HTTPAddr:          ":8080",
		ScrapeHour:        6,
		Backfill: BackfillConfig{
			BaseURL:  "https://raw.githubusercontent.com/gueyenono/ScrapeUSGasPrices/refs/heads/master/data/city/",
			MinDelay: 1,
			MaxDelay: 5,
		},
	}
}

// LoadDotEnv loads variables from the given .env files into the process
// environment without overriding variables that are already set. Missing
// files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return nil
}

// LoadFromEnv loads configuration from environment variables.
func (c *Config) LoadFromEnv() {
	if v := os.Getenv("OUTPUT_DIR"); v != "" {
		c.OutputDir = v
	}
	if v := os.Getenv("AS_OF"); v != "" {
		if t, err := time.Parse("2006-01-02", v); err == nil {
			c.AsOf = t
		}
	}
	if v := os.Getenv("WORKERS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			c.Workers = i
		}
	}
	if v := os.Getenv("REQUEST_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.RequestTimeout = d
		}
	}
	if v := os.Getenv("MAX_RETRIES"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			c.MaxRetries = i
		}
	}
	if v := os.Getenv("REQUESTS_PER_SECOND"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.RequestsPerSecond = f
		}
	}
	if v := os.Getenv("BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv("REGIONS_SOURCE"); v != "" {
		c.RegionsSource = v
	}
	if v := os.Getenv("REGIONS"); v != "" {
		c.Regions = splitList(v)
	}
	if v := os.Getenv("SCRAPE_COUNTIES"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Counties = b
		}
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		c.PostgresDSN = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		c.HTTPAddr = v
	}
	if v := os.Getenv("SCRAPE_HOUR"); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i >= 0 && i <= 23 {
			c.ScrapeHour = i
		}
	}
	if v := os.Getenv("BACKFILL_BASE_URL"); v != "" {
		c.Backfill.BaseURL = v
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.OutputDir == "":
		return errors.New("output directory must not be empty")
	case c.Workers < 1:
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	case c.RequestTimeout <= 0:
		return fmt.Errorf("request timeout must be positive, got %s", c.RequestTimeout)
	case c.MaxRetries < 0:
		return fmt.Errorf("max retries must not be negative, got %d", c.MaxRetries)
	case c.RequestsPerSecond < 0:
		return fmt.Errorf("requests per second must not be negative, got %g", c.RequestsPerSecond)
	case c.ScrapeHour < 0 || c.ScrapeHour > 23:
		return fmt.Errorf("scrape hour must be between 0 and 23, got %d", c.ScrapeHour)
	case c.Backfill.MinDelay < 0 || c.Backfill.MaxDelay < c.Backfill.MinDelay:
		return fmt.Errorf("invalid backfill delay range %d-%d", c.Backfill.MinDelay, c.Backfill.MaxDelay)
	}

	switch strings.ToLower(c.LogFormat) {
	case "json", "console":
	default:
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
