package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/andygrunwald/gas-price-scraper/internal/merge"
	"github.com/andygrunwald/gas-price-scraper/internal/models"
	"github.com/andygrunwald/gas-price-scraper/internal/normalize"
	"github.com/andygrunwald/gas-price-scraper/internal/parser"
	"github.com/andygrunwald/gas-price-scraper/internal/store"
)

// regionResult is what one region pipeline hands back to the cycle.
type regionResult struct {
	region       models.Region
	observations []models.PriceObservation
	counters     normalize.Counters
	structural   int
	err          error
}

func dateOf(t time.Time) civil.Date {
	return civil.DateOf(t)
}

// RunCycle scrapes every registered region once and merges the result into
// the historical store. Region failures are recorded in the summary and never
// fail the cycle. The returned error is non-nil only when the context was
// cancelled or the store could not be merged and written; in both cases the
// historical store is left untouched.
func (s *Scraper) RunCycle(ctx context.Context) (models.CycleSummary, error) {
	anchor := s.anchor()
	regions := s.GetRegions()

	summary := models.CycleSummary{
		CycleID:          uuid.NewString(),
		AsOf:             dateOf(anchor).String(),
		StartedAt:        s.now(),
		RegionsAttempted: len(regions),
	}
	logger := s.logger.With().Str("cycle_id", summary.CycleID).Logger()

	logger.Info().
		Str("as_of", summary.AsOf).
		Int("regions", len(regions)).
		Int("workers", s.workers).
		Msg("starting scrape cycle")

	results := make([]regionResult, len(regions))

	var g errgroup.Group
	g.SetLimit(s.workers)
	for i, region := range regions {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			results[i] = s.scrapeRegion(ctx, anchor, region)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		summary.Duration = time.Since(summary.StartedAt)
		logger.Warn().Err(err).Msg("scrape cycle cancelled, store not touched")
		return summary, fmt.Errorf("scrape cycle cancelled: %w", err)
	}

	var incoming []models.PriceObservation
	for _, r := range results {
		summary.RowsParsed += r.counters.Rows
		summary.RowsDropped += r.counters.Dropped
		summary.UnparseablePrices += r.counters.UnparseablePrices
		summary.StructuralErrors += r.structural
		if r.err != nil {
			summary.RegionsFailed++
			summary.FailedRegions = append(summary.FailedRegions, r.region.ID)
			continue
		}
		incoming = append(incoming, r.observations...)
	}

	err := s.persistCycle(ctx, s.store, true, dateOf(anchor), summary.CycleID, incoming, &summary)
	if s.countyFetcher != nil {
		counties, countyErr := s.runCounties(ctx, anchor, summary.CycleID, regions)
		summary.Counties = &counties
		err = errors.Join(err, countyErr)
	}
	summary.Duration = time.Since(summary.StartedAt)

	s.recorder.RecordCycle(summary.StartedAt, summary.RegionsAttempted, summary.RegionsFailed)
	s.mu.Lock()
	last := summary
	s.lastCycle = &last
	s.mu.Unlock()

	event := logger.Info()
	if err != nil {
		event = logger.Error().Err(err)
	}
	event.
		Int("regions_attempted", summary.RegionsAttempted).
		Int("regions_failed", summary.RegionsFailed).
		Strs("failed_regions", summary.FailedRegions).
		Int("rows_parsed", summary.RowsParsed).
		Int("rows_dropped", summary.RowsDropped).
		Int("structural_errors", summary.StructuralErrors).
		Int("unparseable_prices", summary.UnparseablePrices).
		Int("rows_added", summary.RowsAdded).
		Int("store_size", summary.StoreSize).
		Bool("merge_succeeded", summary.MergeSucceeded).
		Dur("duration", summary.Duration).
		Msg("scrape cycle completed")

	return summary, err
}

// persistCycle writes the per-cycle file and merges incoming into st. Only the
// primary store reports merge metrics and is mirrored to the database.
func (s *Scraper) persistCycle(ctx context.Context, st *store.Store, primary bool, date civil.Date, cycleID string, incoming []models.PriceObservation, summary *models.CycleSummary) error {
	// The cycle file holds this cycle's rows on their own, deduplicated the
	// same way the store is.
	cycleRows, _, err := merge.Merge(nil, incoming)
	if err != nil {
		return s.mergeFailed(summary, err, primary)
	}

	// A day only counts as scraped once some region delivered rows.
	if len(cycleRows) == 0 {
		s.logger.Warn().Str("as_of", date.String()).Msg("no rows collected, cycle file not written")
	} else if err := s.saveCycleFile(st, date, cycleRows); err != nil {
		return s.mergeFailed(summary, err, primary)
	}

	stats, err := s.mergeIntoStore(st, cycleRows)
	if err != nil {
		return s.mergeFailed(summary, err, primary)
	}

	summary.MergeSucceeded = true
	summary.RowsAdded = stats.Added
	summary.StoreSize = stats.Total

	if primary {
		s.recorder.RecordMerge("success", stats.Added, stats.Total)
		s.mirrorObservations(ctx, cycleID, cycleRows)
	}
	return nil
}

// saveCycleFile merges rows into the cycle file for date, so a second cycle
// on the same day keeps what an earlier one collected.
func (s *Scraper) saveCycleFile(st *store.Store, date civil.Date, rows []models.PriceObservation) error {
	s.mergeMu.Lock()
	defer s.mergeMu.Unlock()

	existing, err := st.LoadCycle(date)
	if err != nil {
		return fmt.Errorf("loading cycle file: %w", err)
	}
	merged, _, err := merge.Merge(existing, rows)
	if err != nil {
		return err
	}
	path, err := st.SaveCycle(date, merged)
	if err != nil {
		return fmt.Errorf("writing cycle file: %w", err)
	}
	s.logger.Debug().Str("path", path).Int("rows", len(merged)).Msg("wrote cycle file")
	return nil
}

// mergeIntoStore runs load, merge and save as one exclusive step.
func (s *Scraper) mergeIntoStore(st *store.Store, incoming []models.PriceObservation) (merge.Stats, error) {
	s.mergeMu.Lock()
	defer s.mergeMu.Unlock()

	existing, err := st.Load()
	if err != nil {
		return merge.Stats{}, fmt.Errorf("loading historical store: %w", err)
	}

	merged, stats, err := merge.Merge(existing, incoming)
	if err != nil {
		return merge.Stats{}, err
	}

	if err := st.Save(merged); err != nil {
		return merge.Stats{}, fmt.Errorf("saving historical store: %w", err)
	}

	s.logger.Info().
		Int("existing", stats.Existing).
		Int("incoming", stats.Incoming).
		Int("added", stats.Added).
		Int("kept", stats.Kept).
		Int("replaced", stats.Replaced).
		Int("total", stats.Total).
		Msg("merged into historical store")

	return stats, nil
}

func (s *Scraper) mergeFailed(summary *models.CycleSummary, err error, record bool) error {
	summary.MergeError = err.Error()
	if !record {
		return err
	}
	status := "error"
	if errors.Is(err, merge.ErrMergeValidation) {
		status = "invalid"
	}
	s.recorder.RecordMerge(status, 0, 0)
	return err
}

func (s *Scraper) mirrorObservations(ctx context.Context, cycleID string, observations []models.PriceObservation) {
	if s.mirror == nil || len(observations) == 0 {
		return
	}

	inserted, err := s.mirror.InsertObservations(ctx, cycleID, observations)
	if err != nil {
		s.recorder.RecordMirror("error")
		s.logger.Error().Err(err).Str("cycle_id", cycleID).Msg("failed to mirror observations")
		return
	}
	s.recorder.RecordMirror("success")
	s.logger.Info().
		Str("cycle_id", cycleID).
		Int64("inserted", inserted).
		Msg("mirrored observations to database")
}

// scrapeRegion runs fetch, parse and normalize for one region.
func (s *Scraper) scrapeRegion(ctx context.Context, anchor time.Time, region models.Region) regionResult {
	res := regionResult{region: region}
	metrics := s.GetMetrics(region.ID)

	start := time.Now()
	metrics.mu.Lock()
	metrics.TotalRequests++
	metrics.mu.Unlock()

	body, err := s.fetcher.Fetch(ctx, region.LocationKey)
	duration := time.Since(start)

	var blocks []parser.Block
	if err == nil {
		blocks, err = parser.BlocksFromHTML(bytes.NewReader(body))
		if err != nil {
			err = fmt.Errorf("parsing page: %w", err)
		}
	}

	if err == nil {
		diag := &parser.Diagnostics{}
		n := normalize.New(anchor)
		for row := range parser.Rows(region.ID, blocks, diag) {
			if obs, ok := n.Observation(row); ok {
				res.observations = append(res.observations, obs)
			}
		}
		res.counters = n.Counters()
		res.structural = len(diag.Structural)

		if len(blocks) == 0 {
			s.logger.Warn().Str("region", region.ID).Msg("no price tables found on page")
		}

		for _, se := range diag.Structural {
			s.logger.Warn().Err(se).Str("region", region.ID).Msg("skipped table block")
		}
		for _, rowErr := range n.Errors() {
			s.logger.Debug().Err(rowErr).Str("region", region.ID).Msg("row problem")
		}
	}
	res.err = err

	now := time.Now()
	metrics.mu.Lock()
	metrics.LastScrapeAt = &now
	metrics.LastResponseTime = duration
	if err != nil {
		metrics.TotalErrors++
		metrics.LastScrapeSuccess = false
		errStr := err.Error()
		metrics.LastError = &errStr
		metrics.LastRowCount = 0
	} else {
		metrics.LastScrapeSuccess = true
		metrics.LastError = nil
		metrics.LastRowCount = len(res.observations)
	}
	metrics.mu.Unlock()

	if err != nil {
		s.recorder.RecordFetch(region.ID, "error", duration)
		s.logger.Error().
			Err(err).
			Str("region", region.ID).
			Dur("duration", duration).
			Msg("failed to scrape region")
		return res
	}

	s.recorder.RecordFetch(region.ID, "success", duration)
	s.recorder.RecordRows(region.ID, res.counters.Rows, res.counters.Dropped, res.counters.UnparseablePrices, res.structural)
	s.logger.Info().
		Str("region", region.ID).
		Int("count", len(res.observations)).
		Int("dropped", res.counters.Dropped).
		Dur("duration", duration).
		Msg("scraped region")

	return res
}
