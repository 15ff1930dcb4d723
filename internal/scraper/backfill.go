package scraper

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"cloud.google.com/go/civil"

	"github.com/andygrunwald/gas-price-scraper/internal/api"
	"github.com/andygrunwald/gas-price-scraper/internal/merge"
	"github.com/andygrunwald/gas-price-scraper/internal/models"
)

// BackfillOptions controls a backfill run.
type BackfillOptions struct {
	From civil.Date
	To   civil.Date
	// MinDelay and MaxDelay bound the random pause between two requests.
	MinDelay time.Duration
	MaxDelay time.Duration
}

// BackfillResult reports what a backfill run did.
type BackfillResult struct {
	Days         int
	DaysFailed   int
	FailedDays   []string
	Observations int
	RowsAdded    int
	StoreSize    int
}

// Backfill imports every day in [From, To] from provider and merges the rows
// into the historical store. Stored rows always win over imported ones. Days
// that cannot be fetched are skipped. Nothing is written if the context is
// cancelled or the merge fails validation.
func (s *Scraper) Backfill(ctx context.Context, provider api.HistoryProvider, opts BackfillOptions) (BackfillResult, error) {
	var result BackfillResult

	if !opts.From.IsValid() || !opts.To.IsValid() {
		return result, fmt.Errorf("invalid backfill range %s to %s", opts.From, opts.To)
	}
	if opts.To.Before(opts.From) {
		return result, fmt.Errorf("backfill end %s is before start %s", opts.To, opts.From)
	}
	if opts.MaxDelay < opts.MinDelay {
		opts.MaxDelay = opts.MinDelay
	}

	s.logger.Info().
		Str("provider", provider.Name()).
		Str("from", opts.From.String()).
		Str("to", opts.To.String()).
		Msg("starting backfill")

	var incoming []models.PriceObservation
	for day := opts.From; !day.After(opts.To); day = day.AddDays(1) {
		if day != opts.From {
			if err := sleep(ctx, randomDelay(opts.MinDelay, opts.MaxDelay)); err != nil {
				return result, fmt.Errorf("backfill cancelled: %w", err)
			}
		}

		result.Days++
		observations, err := provider.FetchDay(ctx, day)
		if err != nil {
			if ctx.Err() != nil {
				return result, fmt.Errorf("backfill cancelled: %w", ctx.Err())
			}
			result.DaysFailed++
			result.FailedDays = append(result.FailedDays, day.String())
			s.logger.Warn().
				Err(err).
				Str("provider", provider.Name()).
				Str("date", day.String()).
				Msg("skipping day")
			continue
		}
		incoming = append(incoming, observations...)
	}
	result.Observations = len(incoming)

	rows, _, err := merge.Merge(nil, incoming)
	if err != nil {
		s.recorder.RecordMerge("invalid", 0, 0)
		return result, err
	}

	stats, err := s.mergeIntoStore(s.store, rows)
	if err != nil {
		s.recorder.RecordMerge("error", 0, 0)
		return result, err
	}
	result.RowsAdded = stats.Added
	result.StoreSize = stats.Total
	s.recorder.RecordMerge("success", stats.Added, stats.Total)

	s.mirrorObservations(ctx, "backfill-"+opts.From.String()+"-"+opts.To.String(), rows)

	s.logger.Info().
		Str("provider", provider.Name()).
		Int("days", result.Days).
		Int("days_failed", result.DaysFailed).
		Int("observations", result.Observations).
		Int("inserted", result.RowsAdded).
		Int("store_size", result.StoreSize).
		Msg("backfill completed")

	return result, nil
}

func randomDelay(minDelay, maxDelay time.Duration) time.Duration {
	if maxDelay <= minDelay {
		return minDelay
	}
	return minDelay + rand.N(maxDelay-minDelay)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
