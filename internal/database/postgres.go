// Package database mirrors merged gas price observations into PostgreSQL.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/andygrunwald/gas-price-scraper/internal/models"
)

// Schema creates the mirror table. The natural key matches the CSV store.
const Schema = `
CREATE TABLE IF NOT EXISTS fuel_prices (
	region      TEXT NOT NULL,
	sub_region  TEXT NOT NULL,
	price_date  DATE NOT NULL,
	regular     DOUBLE PRECISION,
	midgrade    DOUBLE PRECISION,
	premium     DOUBLE PRECISION,
	diesel      DOUBLE PRECISION,
	cycle_id    TEXT,
	inserted_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (region, sub_region, price_date)
)`

// Rows that already exist are never overwritten, mirroring the merge policy.
const insertObservation = `
	INSERT INTO fuel_prices (region, sub_region, price_date, regular, midgrade, premium, diesel, cycle_id)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (region, sub_region, price_date) DO NOTHING
`

// pool is the subset of *pgxpool.Pool used by DB.
type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// DB wraps the PostgreSQL connection pool.
type DB struct {
	pool   pool
	logger zerolog.Logger
}

// New creates a new connection pool and verifies it with a ping.
func New(ctx context.Context, dsn string, logger zerolog.Logger) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing database dsn: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.MaxConnLifetime = 5 * time.Minute

	p, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("opening database connection: %w", err)
	}

	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return NewWithPool(p, logger), nil
}

// NewWithPool builds a DB on an existing pool.
func NewWithPool(p pool, logger zerolog.Logger) *DB {
	return &DB{
		pool:   p,
		logger: logger.With().Str("component", "database").Logger(),
	}
}

// Close closes the connection pool.
func (d *DB) Close() {
	d.pool.Close()
}

// Ping checks if the database connection is alive.
func (d *DB) Ping(ctx context.Context) error {
	return d.pool.Ping(ctx)
}

// EnsureSchema creates the mirror table if it does not exist.
func (d *DB) EnsureSchema(ctx context.Context) error {
	if _, err := d.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// InsertObservations writes observations in a single transaction and
// returns how many were new. Existing keys are left untouched.
func (d *DB) InsertObservations(ctx context.Context, cycleID string, observations []models.PriceObservation) (int64, error) {
	if len(observations) == 0 {
		return 0, nil
	}

	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}

	var inserted int64
	for _, o := range observations {
		tag, err := tx.Exec(ctx, insertObservation,
			o.Region,
			o.SubRegion,
			o.Date.In(time.UTC),
			o.Regular,
			o.MidGrade,
			o.Premium,
			o.Diesel,
			cycleID,
		)
		if err != nil {
			_ = tx.Rollback(ctx)
			return 0, fmt.Errorf("inserting observation %s/%s/%s: %w", o.Region, o.SubRegion, o.Date, err)
		}
		inserted += tag.RowsAffected()
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("committing transaction: %w", err)
	}

	d.logger.Debug().
		Str("cycle_id", cycleID).
		Int("observations", len(observations)).
		Int64("inserted", inserted).
		Msg("mirrored observations")

	return inserted, nil
}

// GetTotalPricesCount returns the total number of observations in the database.
func (d *DB) GetTotalPricesCount(ctx context.Context) (int64, error) {
	var count int64
	if err := d.pool.QueryRow(ctx, "SELECT COUNT(*) FROM fuel_prices").Scan(&count); err != nil {
		return 0, fmt.Errorf("counting prices: %w", err)
	}
	return count, nil
}
