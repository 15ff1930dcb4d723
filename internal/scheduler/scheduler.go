// Package scheduler runs a scrape cycle once a day at a configured hour.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/andygrunwald/gas-price-scraper/internal/models"
)

// Runner runs scrape cycles.
type Runner interface {
	RunCycle(ctx context.Context) (models.CycleSummary, error)
	HasScrapedToday() bool
}

// Scheduler manages the daily scraping schedule.
type Scheduler struct {
	runner     Runner
	scrapeHour int
	now        func() time.Time
	logger     zerolog.Logger

	mu           sync.RWMutex
	nextScrapeAt time.Time
	lastScrapeAt *time.Time
	running      bool
}

// New creates a new Scheduler.
func New(r Runner, scrapeHour int, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		runner:     r,
		scrapeHour: scrapeHour,
		now:        time.Now,
		logger:     logger.With().Str("component", "scheduler").Logger(),
	}
}

// Start starts the scheduler and blocks until the context is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	s.logger.Info().Int("scrapeHour", s.scrapeHour).Msg("starting scheduler")

	s.runIfNeeded(ctx)

	nextScrape := s.scheduleNext()
	timer := time.NewTimer(time.Until(nextScrape))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("scheduler stopped")
			return ctx.Err()
		case <-timer.C:
			s.runScrape(ctx)
			nextScrape = s.scheduleNext()
			timer.Reset(time.Until(nextScrape))
		}
	}
}

func (s *Scheduler) scheduleNext() time.Time {
	next := calculateNextScrapeTime(s.now(), s.scrapeHour)
	s.mu.Lock()
	s.nextScrapeAt = next
	s.mu.Unlock()

	s.logger.Info().
		Time("nextScrape", next).
		Dur("duration", next.Sub(s.now())).
		Msg("next scrape scheduled")
	return next
}

// calculateNextScrapeTime returns the first instant at scrapeHour strictly after now.
func calculateNextScrapeTime(now time.Time, scrapeHour int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), scrapeHour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = time.Date(now.Year(), now.Month(), now.Day()+1, scrapeHour, 0, 0, 0, now.Location())
	}
	return next
}

// runIfNeeded runs a cycle at startup unless today's cycle file already exists.
func (s *Scheduler) runIfNeeded(ctx context.Context) {
	if s.runner.HasScrapedToday() {
		s.logger.Info().Msg("already scraped today, skipping initial scrape")
		return
	}

	s.logger.Info().Msg("no scrape for today, running initial scrape")
	s.runScrape(ctx)
}

func (s *Scheduler) runScrape(ctx context.Context) {
	s.logger.Info().Msg("running scheduled scrape")

	now := s.now()
	s.mu.Lock()
	s.lastScrapeAt = &now
	s.mu.Unlock()

	summary, err := s.runner.RunCycle(ctx)
	if err != nil {
		s.logger.Error().Err(err).Str("cycle_id", summary.CycleID).Msg("scheduled scrape failed")
		return
	}
	s.logger.Info().Str("cycle_id", summary.CycleID).Msg("scheduled scrape completed")
}

// NextScrapeAt returns the time of the next scheduled scrape.
func (s *Scheduler) NextScrapeAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextScrapeAt
}

// LastScrapeAt returns the time of the last scrape.
func (s *Scheduler) LastScrapeAt() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastScrapeAt
}

// IsRunning returns whether the scheduler is currently running.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}
