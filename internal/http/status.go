package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/andygrunwald/gas-price-scraper/internal/database"
	"github.com/andygrunwald/gas-price-scraper/internal/models"
	"github.com/andygrunwald/gas-price-scraper/internal/scheduler"
	"github.com/andygrunwald/gas-price-scraper/internal/scraper"
)

// StatusHandler handles the /status endpoint.
type StatusHandler struct {
	scraper   *scraper.Scraper
	scheduler *scheduler.Scheduler
	db        *database.DB
	startTime time.Time
}

// NewStatusHandler creates a new StatusHandler. sched and db may be nil.
func NewStatusHandler(s *scraper.Scraper, sched *scheduler.Scheduler, db *database.DB) *StatusHandler {
	return &StatusHandler{
		scraper:   s,
		scheduler: sched,
		db:        db,
		startTime: time.Now(),
	}
}

// ServeHTTP implements the http.Handler interface.
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	response := models.StatusResponse{
		Status:        "healthy",
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Regions:       make(map[string]models.RegionStatus),
		LastCycle:     h.scraper.LastCycle(),
		Store:         h.scraper.StoreStatus(),
	}

	if h.scheduler != nil {
		response.SchedulerRunning = h.scheduler.IsRunning()
		response.LastScheduledScrapeAt = h.scheduler.LastScrapeAt()
		nextScrape := h.scheduler.NextScrapeAt()
		if !nextScrape.IsZero() {
			response.NextScrapeAt = &nextScrape
		}
	}

	for _, region := range h.scraper.GetRegions() {
		metrics := h.scraper.GetMetrics(region.ID)
		if metrics == nil {
			continue
		}

		snapshot := metrics.GetSnapshot()
		response.Regions[region.ID] = models.RegionStatus{
			LastScrapeAt:       snapshot.LastScrapeAt,
			LastScrapeSuccess:  snapshot.LastScrapeSuccess,
			LastResponseTimeMs: snapshot.LastResponseTime.Milliseconds(),
			LastRowCount:       snapshot.LastRowCount,
			LastError:          snapshot.LastError,
			TotalRequests:      snapshot.TotalRequests,
			TotalErrors:        snapshot.TotalErrors,
		}
	}

	if response.Store.Error != "" || (response.LastCycle != nil && !response.LastCycle.MergeSucceeded) {
		response.Status = "degraded"
	}

	response.Database = h.getDatabaseStatus(ctx)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
		return
	}
}

// getDatabaseStatus returns nil when no database is configured.
func (h *StatusHandler) getDatabaseStatus(ctx context.Context) *models.DatabaseStatus {
	if h.db == nil {
		return nil
	}

	status := &models.DatabaseStatus{}
	if err := h.db.Ping(ctx); err != nil {
		return status
	}
	status.Connected = true

	if count, err := h.db.GetTotalPricesCount(ctx); err == nil {
		status.TotalPricesStored = count
	}
	return status
}
