// Package main provides the entry point for the gas price scraper CLI.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/andygrunwald/gas-price-scraper/internal/config"
	"github.com/andygrunwald/gas-price-scraper/internal/store"
)

var (
	// Version is set at build time.
	Version = "dev"
	// Commit is set at build time.
	Commit = "none"
	// BuildDate is set at build time.
	BuildDate = "unknown"
)

var cfg *config.Config

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	cfg = config.DefaultConfig()
	cfg.LoadFromEnv()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var asOf string

	rootCmd := &cobra.Command{
		Use:   "gasscraper",
		Short: "Gas Price Scraper - A daily history of regional AAA fuel prices",
		Long: `Gas Price Scraper collects the regional fuel price tables published by AAA,
resolves their relative dates ("Yesterday Avg.", "Month Ago Avg.", ...) into
calendar dates and merges every scrape into one deduplicated history.

Features:
  - Concurrent, rate limited scraping of all states
  - Deduplicated CSV history, existing rows are never overwritten
  - Daily automated scraping with configurable schedule
  - Historical data backfilling from a public daily archive
  - Optional PostgreSQL mirror
  - Prometheus metrics and status endpoints`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if asOf != "" {
				t, err := time.ParseInLocation("2006-01-02", asOf, time.Local)
				if err != nil {
					return fmt.Errorf("parsing --as-of date: %w", err)
				}
				cfg.AsOf = t
			}
			return cfg.Validate()
		},
	}

	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfg.OutputDir, "output-dir", cfg.OutputDir, "Directory for the historical store and per-cycle files")
	flags.StringVar(&asOf, "as-of", "", "Resolve relative dates against this day (YYYY-MM-DD) instead of today")
	flags.IntVar(&cfg.Workers, "workers", cfg.Workers, "Number of regions fetched concurrently")
	flags.DurationVar(&cfg.RequestTimeout, "request-timeout", cfg.RequestTimeout, "Timeout of a single page request")
	flags.IntVar(&cfg.MaxRetries, "max-retries", cfg.MaxRetries, "Retries for transient fetch failures")
	flags.Float64Var(&cfg.RequestsPerSecond, "requests-per-second", cfg.RequestsPerSecond, "Request rate limit towards the source (0 disables)")
	flags.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "Base URL of the price pages")
	flags.StringVar(&cfg.RegionsSource, "regions-source", cfg.RegionsSource, "Region reference CSV (URL or file)")
	flags.StringSliceVar(&cfg.Regions, "regions", cfg.Regions, "Only scrape these region IDs (e.g. GA,MI)")
	flags.BoolVar(&cfg.Counties, "counties", cfg.Counties, "Also scrape county prices into "+store.CountyMasterFile)
	flags.StringVar(&cfg.PostgresDSN, "postgres-dsn", cfg.PostgresDSN, "PostgreSQL connection string for the optional mirror")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	flags.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format (json, console)")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(scrapeCmd())
	rootCmd.AddCommand(backfillCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(regionsCmd())
	rootCmd.AddCommand(versionCmd())

	return rootCmd
}

func setupLogger() zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Logs go to stderr so command output on stdout stays machine readable.
	if cfg.LogFormat == "console" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	}
	return zerolog.New(os.Stderr).
		With().
		Timestamp().
		Logger()
}
