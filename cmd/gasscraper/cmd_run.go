package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/andygrunwald/gas-price-scraper/internal/http"
	"github.com/andygrunwald/gas-price-scraper/internal/scheduler"
)

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the continuous scraper service",
		Long:  "Starts the gas price scraper with an internal scheduler that runs a scrape cycle daily at the specified hour.",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := setupLogger()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			_, selected, err := loadRegions(ctx)
			if err != nil {
				return err
			}

			logger.Info().
				Str("version", Version).
				Str("commit", Commit).
				Str("buildDate", BuildDate).
				Str("httpAddr", cfg.HTTPAddr).
				Int("scrapeHour", cfg.ScrapeHour).
				Int("regions", len(selected)).
				Str("outputDir", cfg.OutputDir).
				Msg("starting gas price scraper")

			a, err := newApp(ctx, logger, selected)
			if err != nil {
				return err
			}
			defer a.Close()

			metrics := http.NewMetrics(prometheus.DefaultRegisterer)
			a.scraper.SetRecorder(metrics)

			sched := scheduler.New(a.scraper, cfg.ScrapeHour, logger)
			httpServer := http.NewServer(cfg.HTTPAddr, a.scraper, sched, a.db, prometheus.DefaultGatherer, logger)

			ctx, cancel := context.WithCancel(ctx)
			defer cancel()

			go func() {
				if err := httpServer.Start(); err != nil {
					logger.Error().Err(err).Msg("HTTP server error")
					cancel()
				}
			}()

			schedDone := make(chan struct{})
			go func() {
				defer close(schedDone)
				if err := sched.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error().Err(err).Msg("scheduler error")
					cancel()
				}
			}()

			<-ctx.Done()
			logger.Info().Msg("shutting down")

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer shutdownCancel()

			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Error().Err(err).Msg("HTTP server shutdown error")
			}

			select {
			case <-schedDone:
			case <-shutdownCtx.Done():
				return fmt.Errorf("scheduler did not stop in time")
			}

			logger.Info().Msg("shutdown complete")
			return nil
		},
	}

	cmd.Flags().IntVar(&cfg.ScrapeHour, "scrape-hour", cfg.ScrapeHour, "Hour of day (0-23) to scrape")
	cmd.Flags().StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP server address for /metrics, /status, /health")

	return cmd
}
