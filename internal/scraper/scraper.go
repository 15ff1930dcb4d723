// Package scraper runs scrape cycles: fetch every region concurrently, parse
// and normalize the pages, then merge the results into the historical store.
package scraper

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/andygrunwald/gas-price-scraper/internal/api"
	"github.com/andygrunwald/gas-price-scraper/internal/models"
	"github.com/andygrunwald/gas-price-scraper/internal/store"
)

// Metrics holds fetch metrics for a region.
type Metrics struct {
	mu                sync.RWMutex
	TotalRequests     int64
	TotalErrors       int64
	LastScrapeAt      *time.Time
	LastScrapeSuccess bool
	LastResponseTime  time.Duration
	LastRowCount      int
	LastError         *string
}

// GetSnapshot returns a thread-safe snapshot of the metrics.
func (m *Metrics) GetSnapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return MetricsSnapshot{
		TotalRequests:     m.TotalRequests,
		TotalErrors:       m.TotalErrors,
		LastScrapeAt:      m.LastScrapeAt,
		LastScrapeSuccess: m.LastScrapeSuccess,
		LastResponseTime:  m.LastResponseTime,
		LastRowCount:      m.LastRowCount,
		LastError:         m.LastError,
	}
}

// MetricsSnapshot is a thread-safe copy of Metrics data.
type MetricsSnapshot struct {
	TotalRequests     int64
	TotalErrors       int64
	LastScrapeAt      *time.Time
	LastScrapeSuccess bool
	LastResponseTime  time.Duration
	LastRowCount      int
	LastError         *string
}

// Mirror receives the observations of every successful merge.
type Mirror interface {
	InsertObservations(ctx context.Context, cycleID string, observations []models.PriceObservation) (int64, error)
}

// Recorder receives Prometheus style measurements.
type Recorder interface {
	RecordFetch(region, status string, duration time.Duration)
	RecordRows(region string, parsed, dropped, unparseable, structural int)
	RecordMerge(status string, added, storeSize int)
	RecordCycle(at time.Time, attempted, failed int)
	RecordMirror(status string)
}

type nopRecorder struct{}

func (nopRecorder) RecordFetch(string, string, time.Duration) {}
func (nopRecorder) RecordRows(string, int, int, int, int) {}
func (nopRecorder) RecordMerge(string, int, int) {}
func (nopRecorder) RecordCycle(time.Time, int, int) {}
func (nopRecorder) RecordMirror(string) {}

// Config controls a Scraper.
type Config struct {
	// Workers bounds the number of regions fetched concurrently.
	Workers int
	// AsOf overrides the anchor instant of every cycle. Zero means now.
	AsOf time.Time
}

// Scraper orchestrates scrape cycles over a fixed set of regions.
type Scraper struct {
	fetcher  api.PageFetcher
	store    *store.Store
	mirror   Mirror

	countyFetcher api.CountyFetcher
	countyStore   *store.Store

	recorder Recorder
	workers  int
	asOf     time.Time
	now      func() time.Time
	logger   zerolog.Logger

	mu            sync.RWMutex
	regions       []models.Region
	regionMetrics map[string]*Metrics
	lastCycle     *models.CycleSummary

	// mergeMu makes the load-merge-save sequence single-writer.
	mergeMu sync.Mutex
}

// New creates a new Scraper.
func New(cfg Config, fetcher api.PageFetcher, st *store.Store, logger zerolog.Logger) *Scraper {
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	return &Scraper{
		fetcher:       fetcher,
		store:         st,
		recorder:      nopRecorder{},
		workers:       workers,
		asOf:          cfg.AsOf,
		now:           time.Now,
		logger:        logger.With().Str("component", "scraper").Logger(),
		regionMetrics: make(map[string]*Metrics),
	}
}

// SetMirror registers a database mirror. nil disables mirroring.
func (s *Scraper) SetMirror(m Mirror) {
	s.mirror = m
}

// SetCountySource enables the county pass of every cycle. County prices are
// merged into st, never into the city store, and are not mirrored. A nil
// fetcher disables the pass.
func (s *Scraper) SetCountySource(f api.CountyFetcher, st *store.Store) {
	if f == nil || st == nil {
		s.countyFetcher, s.countyStore = nil, nil
		return
	}
	s.countyFetcher, s.countyStore = f, st
}

// SetRecorder registers a metrics recorder.
func (s *Scraper) SetRecorder(r Recorder) {
	if r == nil {
		r = nopRecorder{}
	}
	s.recorder = r
}

// RegisterRegion adds a region to every following cycle.
func (s *Scraper) RegisterRegion(region models.Region) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.regionMetrics[region.ID]; ok {
		return
	}
	s.regions = append(s.regions, region)
	s.regionMetrics[region.ID] = &Metrics{}
}

// GetRegions returns the registered regions in registration order.
func (s *Scraper) GetRegions() []models.Region {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Region, len(s.regions))
	copy(out, s.regions)
	return out
}

// GetMetrics returns the metrics for a region.
func (s *Scraper) GetMetrics(regionID string) *Metrics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.regionMetrics[regionID]
}

// LastCycle returns the summary of the most recent cycle, or nil.
func (s *Scraper) LastCycle() *models.CycleSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastCycle == nil {
		return nil
	}
	c := *s.lastCycle
	return &c
}

// StorePath returns the path of the historical store file.
func (s *Scraper) StorePath() string {
	return s.store.MasterPath()
}

// StoreStatus loads the historical store and reports its size.
func (s *Scraper) StoreStatus() models.StoreStatus {
	status := models.StoreStatus{Path: s.store.MasterPath()}
	data, err := s.store.Load()
	if err != nil {
		status.Error = err.Error()
		return status
	}
	status.Observations = len(data)
	return status
}

// HasScrapedToday reports whether the per-cycle file for today's anchor date exists.
func (s *Scraper) HasScrapedToday() bool {
	return s.store.HasCycle(dateOf(s.anchor()))
}

func (s *Scraper) anchor() time.Time {
	if !s.asOf.IsZero() {
		return s.asOf
	}
	return s.now()
}
