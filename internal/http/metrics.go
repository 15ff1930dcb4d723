// Package http provides the metrics, status and health endpoints of the gas price scraper.
package http

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the scraper.
type Metrics struct {
	// Fetch metrics
	FetchRequestsTotal   *prometheus.CounterVec
	FetchRequestDuration *prometheus.HistogramVec

	// Parse metrics
	RowsTotal *prometheus.CounterVec

	// Merge and cycle metrics
	MergesTotal        *prometheus.CounterVec
	RowsAddedTotal     prometheus.Counter
	StoreObservations  prometheus.Gauge
	LastCycleTimestamp prometheus.Gauge
	LastCycleRegions   *prometheus.GaugeVec

	// Database metrics
	MirrorOperationsTotal *prometheus.CounterVec
}

// NewMetrics creates the metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		FetchRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gasscraper_fetch_requests_total",
				Help: "Total number of region page fetches by region and status",
			},
			[]string{"region", "status"},
		),
		FetchRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gasscraper_fetch_duration_seconds",
				Help:    "Region fetch duration in seconds, retries included",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"region"},
		),
		RowsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gasscraper_rows_total",
				Help: "Table rows seen by region and outcome",
			},
			[]string{"region", "outcome"},
		),
		MergesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gasscraper_merges_total",
				Help: "Total number of merges into the historical store by status",
			},
			[]string{"status"},
		),
		RowsAddedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "gasscraper_rows_added_total",
				Help: "Observations added to the historical store",
			},
		),
		StoreObservations: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "gasscraper_store_observations",
				Help: "Number of observations in the historical store after the last merge",
			},
		),
		LastCycleTimestamp: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "gasscraper_last_cycle_timestamp",
				Help: "Start timestamp of the last scrape cycle",
			},
		),
		LastCycleRegions: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gasscraper_last_cycle_regions",
				Help: "Regions attempted and failed in the last scrape cycle",
			},
			[]string{"state"},
		),
		MirrorOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gasscraper_db_operations_total",
				Help: "Total number of database mirror operations by status",
			},
			[]string{"status"},
		),
	}
}

// RecordFetch records a region fetch.
func (m *Metrics) RecordFetch(region, status string, duration time.Duration) {
	m.FetchRequestsTotal.WithLabelValues(region, status).Inc()
	m.FetchRequestDuration.WithLabelValues(region).Observe(duration.Seconds())
}

// RecordRows records the row counters of one region page.
func (m *Metrics) RecordRows(region string, parsed, dropped, unparseable, structural int) {
	m.RowsTotal.WithLabelValues(region, "parsed").Add(float64(parsed))
	m.RowsTotal.WithLabelValues(region, "dropped").Add(float64(dropped))
	m.RowsTotal.WithLabelValues(region, "unparseable_price").Add(float64(unparseable))
	m.RowsTotal.WithLabelValues(region, "structural_error").Add(float64(structural))
}

// RecordMerge records a merge attempt.
func (m *Metrics) RecordMerge(status string, added, storeSize int) {
	m.MergesTotal.WithLabelValues(status).Inc()
	if status != "success" {
		return
	}
	m.RowsAddedTotal.Add(float64(added))
	m.StoreObservations.Set(float64(storeSize))
}

// RecordCycle records the last cycle.
func (m *Metrics) RecordCycle(at time.Time, attempted, failed int) {
	m.LastCycleTimestamp.Set(float64(at.Unix()))
	m.LastCycleRegions.WithLabelValues("attempted").Set(float64(attempted))
	m.LastCycleRegions.WithLabelValues("failed").Set(float64(failed))
}

// RecordMirror records a database mirror operation.
func (m *Metrics) RecordMirror(status string) {
	m.MirrorOperationsTotal.WithLabelValues(status).Inc()
}
