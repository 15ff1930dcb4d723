// Package models provides shared data types for the gas price scraper.
package models

import (
	"cmp"
	"time"

	"cloud.google.com/go/civil"
)

// Fuel grades in column order.
const (
	GradeRegular  = "regular"
	GradeMidGrade = "midgrade"
	GradePremium  = "premium"
	GradeDiesel   = "diesel"
)

// Grades lists the fuel grades in the order they appear in the source tables
// and in the persisted files.
var Grades = [4]string{GradeRegular, GradeMidGrade, GradePremium, GradeDiesel}

// Region is a top-level geographic grouping (a US state) and the key the
// source site uses to locate its page.
type Region struct {
	// ID is the region identifier stored with every observation (e.g. "GA").
	ID string `json:"id"`
	// Name is the human readable name (e.g. "Georgia").
	Name string `json:"name"`
	// LocationKey is passed to the fetcher to select the page.
	LocationKey string `json:"location_key"`
}

// RawRow is one body row of a price table before any interpretation.
type RawRow struct {
	Region    string
	SubRegion string
	// TimeLabel is the text of the first cell, e.g. "Yesterday Avg.".
	TimeLabel string
	// Cells holds the four price cells. A nil entry means the cell was missing.
	Cells [4]*string
}

// PriceObservation is a single resolved price record.
// It is a value type and is never modified after construction.
type PriceObservation struct {
	Region    string
	SubRegion string
	Date      civil.Date
	Regular   *float64
	MidGrade  *float64
	Premium   *float64
	Diesel    *float64
}

// Key returns the natural key of the observation.
func (o PriceObservation) Key() Key {
	return Key{Region: o.Region, SubRegion: o.SubRegion, Date: o.Date}
}

// Prices returns the grade prices in column order.
func (o PriceObservation) Prices() [4]*float64 {
	return [4]*float64{o.Regular, o.MidGrade, o.Premium, o.Diesel}
}

// Key is the natural key (region, sub-region, date) of an observation.
type Key struct {
	Region    string
	SubRegion string
	Date      civil.Date
}

// Compare orders keys ascending by region, sub-region and date.
func (k Key) Compare(other Key) int {
	if c := cmp.Compare(k.Region, other.Region); c != 0 {
		return c
	}
	if c := cmp.Compare(k.SubRegion, other.SubRegion); c != 0 {
		return c
	}
	return CompareDates(k.Date, other.Date)
}

// CompareDates orders two calendar dates.
func CompareDates(a, b civil.Date) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	default:
		return 0
	}
}

// Store is the historical time series: unique on Key and sorted ascending by it.
type Store []PriceObservation

// CycleSummary reports the outcome of a single scrape cycle.
type CycleSummary struct {
	CycleID           string        `json:"cycle_id"`
	AsOf              string        `json:"as_of"`
	StartedAt         time.Time     `json:"started_at"`
	Duration          time.Duration `json:"duration_ns"`
	RegionsAttempted  int           `json:"regions_attempted"`
	RegionsFailed     int           `json:"regions_failed"`
	FailedRegions     []string      `json:"failed_regions,omitempty"`
	RowsParsed        int           `json:"rows_parsed"`
	RowsDropped       int           `json:"rows_dropped"`
	StructuralErrors  int           `json:"structural_errors"`
	UnparseablePrices int           `json:"unparseable_prices"`
	RowsAdded         int           `json:"rows_added"`
	StoreSize         int           `json:"store_size"`
	MergeSucceeded    bool          `json:"merge_succeeded"`
	MergeError        string        `json:"merge_error,omitempty"`
	// Counties summarizes the county pass of the cycle, if enabled.
	Counties *CycleSummary `json:"counties,omitempty"`
}

// RegionStatus holds the operational status of a region's fetch pipeline.
type RegionStatus struct {
	LastScrapeAt       *time.Time `json:"last_scrape_at"`
	LastScrapeSuccess  bool       `json:"last_scrape_success"`
	LastResponseTimeMs int64      `json:"last_response_time_ms"`
	LastRowCount       int        `json:"last_row_count"`
	LastError          *string    `json:"last_error"`
	TotalRequests      int64      `json:"total_requests"`
	TotalErrors        int64      `json:"total_errors"`
}

// StatusResponse is the response for the /status endpoint.
type StatusResponse struct {
	Status                string                  `json:"status"`
	UptimeSeconds         int64                   `json:"uptime_seconds"`
	SchedulerRunning      bool                    `json:"scheduler_running"`
	NextScrapeAt          *time.Time              `json:"next_scrape_at,omitempty"`
	LastScheduledScrapeAt *time.Time              `json:"last_scheduled_scrape_at,omitempty"`
	LastCycle             *CycleSummary           `json:"last_cycle,omitempty"`
	Regions               map[string]RegionStatus `json:"regions"`
	Store                 StoreStatus             `json:"store"`
	Database              *DatabaseStatus         `json:"database,omitempty"`
}

// StoreStatus describes the historical store file.
type StoreStatus struct {
	Path         string `json:"path"`
	Observations int    `json:"observations"`
	Error        string `json:"error,omitempty"`
}

// DatabaseStatus holds the database connection status.
type DatabaseStatus struct {
	Connected         bool  `json:"connected"`
	TotalPricesStored int64 `json:"total_prices_stored"`
}
