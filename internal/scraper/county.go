package scraper

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/andygrunwald/gas-price-scraper/internal/models"
	"github.com/andygrunwald/gas-price-scraper/internal/normalize"
	"github.com/andygrunwald/gas-price-scraper/internal/parser"
	"github.com/andygrunwald/gas-price-scraper/internal/timelabel"
)

// runCounties scrapes the county map of every region and merges the regular
// prices, dated at the anchor, into the county store. It follows the same
// rules as the city pass: region failures are recorded, cancellation leaves
// the county store untouched.
func (s *Scraper) runCounties(ctx context.Context, anchor time.Time, cycleID string, regions []models.Region) (models.CycleSummary, error) {
	summary := models.CycleSummary{
		CycleID:          cycleID,
		AsOf:             dateOf(anchor).String(),
		StartedAt:        s.now(),
		RegionsAttempted: len(regions),
	}
	logger := s.logger.With().Str("cycle_id", cycleID).Str("pass", "counties").Logger()

	results := make([]regionResult, len(regions))

	var g errgroup.Group
	g.SetLimit(s.workers)
	for i, region := range regions {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			results[i] = s.scrapeCounties(ctx, anchor, region)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		summary.Duration = time.Since(summary.StartedAt)
		logger.Warn().Err(err).Msg("county pass cancelled, county store not touched")
		return summary, fmt.Errorf("county pass cancelled: %w", err)
	}

	var incoming []models.PriceObservation
	for _, r := range results {
		summary.RowsParsed += r.counters.Rows
		summary.RowsDropped += r.counters.Dropped
		summary.UnparseablePrices += r.counters.UnparseablePrices
		if r.err != nil {
			summary.RegionsFailed++
			summary.FailedRegions = append(summary.FailedRegions, r.region.ID)
			logger.Warn().Err(r.err).Str("region", r.region.ID).Msg("county map failed")
			continue
		}
		incoming = append(incoming, r.observations...)
	}

	err := s.persistCycle(ctx, s.countyStore, false, dateOf(anchor), cycleID, incoming, &summary)
	summary.Duration = time.Since(summary.StartedAt)

	event := logger.Info()
	if err != nil {
		event = logger.Error().Err(err)
	}
	event.
		Int("regions_failed", summary.RegionsFailed).
		Int("rows_parsed", summary.RowsParsed).
		Int("rows_added", summary.RowsAdded).
		Int("store_size", summary.StoreSize).
		Dur("duration", summary.Duration).
		Msg("county pass completed")

	return summary, err
}

// scrapeCounties fetches and decodes one region's county map. Each county is
// a current-day row carrying only a regular price.
func (s *Scraper) scrapeCounties(ctx context.Context, anchor time.Time, region models.Region) regionResult {
	res := regionResult{region: region}

	script, err := s.countyFetcher.FetchCountyMap(ctx, region.LocationKey)
	if err != nil {
		res.err = err
		return res
	}
	counties, err := parser.CountyPrices(script)
	if err != nil {
		res.err = fmt.Errorf("parsing county map: %w", err)
		return res
	}

	n := normalize.New(anchor)
	for _, c := range counties {
		price := c.Price
		row := models.RawRow{
			Region:    region.ID,
			SubRegion: c.County,
			TimeLabel: timelabel.Current,
			Cells:     [4]*string{&price},
		}
		if obs, ok := n.Observation(row); ok {
			res.observations = append(res.observations, obs)
		}
	}
	res.counters = n.Counters()
	return res
}
