package main

import (
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/spf13/cobra"

	"github.com/andygrunwald/gas-price-scraper/internal/report"
	"github.com/andygrunwald/gas-price-scraper/internal/store"
)

func reportCmd() *cobra.Command {
	var (
		opts           report.Options
		fromStr, toStr string
		format         string
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print price trends from the historical store",
		Long:  "Prints the price history of selected sub-regions (default: Atlanta and Metro Detroit). The store is only read.",
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if fromStr != "" {
				if opts.From, err = civil.ParseDate(fromStr); err != nil {
					return fmt.Errorf("parsing --from date: %w", err)
				}
			}
			if toStr != "" {
				if opts.To, err = civil.ParseDate(toStr); err != nil {
					return fmt.Errorf("parsing --to date: %w", err)
				}
			}

			st, err := store.New(cfg.OutputDir)
			if err != nil {
				return err
			}
			data, err := st.Load()
			if err != nil {
				return fmt.Errorf("loading historical store: %w", err)
			}

			series, err := report.Build(data, opts)
			if err != nil {
				return err
			}

			switch format {
			case "json":
				return report.WriteJSON(cmd.OutOrStdout(), series)
			case "text":
				return report.WriteText(cmd.OutOrStdout(), series)
			default:
				return fmt.Errorf("unknown format %q", format)
			}
		},
	}

	cmd.Flags().StringSliceVar(&opts.SubRegions, "sub-region", nil, "Sub-region to report, repeatable (default Atlanta, Metro Detroit)")
	cmd.Flags().StringVar(&opts.Region, "region", "", "Restrict to one region ID")
	cmd.Flags().StringVar(&opts.Grade, "grade", "regular", "Fuel grade (regular, midgrade, premium, diesel)")
	cmd.Flags().StringVar(&fromStr, "from", "", "First date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&toStr, "to", "", "Last date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&format, "format", "text", "Output format (text, json)")

	return cmd
}
