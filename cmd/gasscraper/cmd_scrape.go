package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func scrapeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Run a single scrape cycle",
		Long: `Runs one scrape cycle over all selected regions, writes the per-cycle file,
merges it into the historical store and prints the cycle summary as JSON.
Failed regions are reported in the summary. The command only fails when the
merge fails, in which case the historical store is left untouched.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := setupLogger()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			_, selected, err := loadRegions(ctx)
			if err != nil {
				return err
			}

			logger.Info().
				Int("regions", len(selected)).
				Msg("running one-time scrape")

			a, err := newApp(ctx, logger, selected)
			if err != nil {
				return err
			}
			defer a.Close()

			summary, runErr := a.scraper.RunCycle(ctx)

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(summary); err != nil {
				return fmt.Errorf("writing summary: %w", err)
			}

			if runErr != nil {
				return fmt.Errorf("scraping: %w", runErr)
			}
			return nil
		},
	}

	return cmd
}
