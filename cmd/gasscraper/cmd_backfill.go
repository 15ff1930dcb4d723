package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/civil"
	"github.com/spf13/cobra"

	"github.com/andygrunwald/gas-price-scraper/internal/api/archive"
	"github.com/andygrunwald/gas-price-scraper/internal/regions"
	"github.com/andygrunwald/gas-price-scraper/internal/scraper"
)

func backfillCmd() *cobra.Command {
	var fromStr, toStr string

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Backfill historical data",
		Long: `Imports the daily city price files of a public archive for a date range and
merges them into the historical store. Rows already stored are never replaced.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := setupLogger()

			if fromStr == "" {
				return fmt.Errorf("--from is required")
			}
			from, err := civil.ParseDate(fromStr)
			if err != nil {
				return fmt.Errorf("parsing --from date: %w", err)
			}

			to := civil.DateOf(time.Now())
			if toStr != "" {
				to, err = civil.ParseDate(toStr)
				if err != nil {
					return fmt.Errorf("parsing --to date: %w", err)
				}
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			all, _, err := loadRegions(ctx)
			if err != nil {
				return err
			}

			logger.Info().
				Str("from", from.String()).
				Str("to", to.String()).
				Int("minDelay", cfg.Backfill.MinDelay).
				Int("maxDelay", cfg.Backfill.MaxDelay).
				Msg("starting backfill")

			a, err := newApp(ctx, logger, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			archiveCfg := archive.DefaultConfig()
			archiveCfg.BaseURL = cfg.Backfill.BaseURL
			archiveCfg.Timeout = cfg.RequestTimeout
			archiveCfg.MaxRetries = cfg.MaxRetries
			provider := archive.New(logger, archiveCfg, regions.Resolver(all))
			result, err := a.scraper.Backfill(ctx, provider, scraper.BackfillOptions{
				From:     from,
				To:       to,
				MinDelay: time.Duration(cfg.Backfill.MinDelay) * time.Second,
				MaxDelay: time.Duration(cfg.Backfill.MaxDelay) * time.Second,
			})
			if err != nil {
				return fmt.Errorf("backfilling: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "days: %d (failed %d), observations: %d, added: %d, store size: %d\n",
				result.Days, result.DaysFailed, result.Observations, result.RowsAdded, result.StoreSize)
			return nil
		},
	}

	cmd.Flags().StringVar(&fromStr, "from", "", "Start date (YYYY-MM-DD, required)")
	cmd.Flags().StringVar(&toStr, "to", "", "End date (YYYY-MM-DD, defaults to today)")
	cmd.Flags().StringVar(&cfg.Backfill.BaseURL, "archive-url", cfg.Backfill.BaseURL, "Base URL of the daily archive files")
	cmd.Flags().IntVar(&cfg.Backfill.MinDelay, "min-delay", cfg.Backfill.MinDelay, "Minimum delay between requests (seconds)")
	cmd.Flags().IntVar(&cfg.Backfill.MaxDelay, "max-delay", cfg.Backfill.MaxDelay, "Maximum delay between requests (seconds)")

	return cmd
}
