package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/andygrunwald/gas-price-scraper/internal/api/aaa"
	"github.com/andygrunwald/gas-price-scraper/internal/database"
	"github.com/andygrunwald/gas-price-scraper/internal/models"
	"github.com/andygrunwald/gas-price-scraper/internal/regions"
	"github.com/andygrunwald/gas-price-scraper/internal/scraper"
	"github.com/andygrunwald/gas-price-scraper/internal/store"
)

// app bundles the components shared by the scraping commands.
type app struct {
	scraper *scraper.Scraper
	regions []models.Region
	db      *database.DB
}

func (a *app) Close() {
	if a.db != nil {
		a.db.Close()
	}
}

// loadRegions loads the region reference and applies the --regions filter.
func loadRegions(ctx context.Context) (all, selected []models.Region, err error) {
	all, err = regions.Load(ctx, cfg.RegionsSource)
	if err != nil {
		return nil, nil, fmt.Errorf("loading regions: %w", err)
	}
	selected, err = regions.Filter(all, cfg.Regions)
	if err != nil {
		return nil, nil, err
	}
	return all, selected, nil
}

// newApp wires store, fetcher, scraper and the optional database mirror.
func newApp(ctx context.Context, logger zerolog.Logger, selected []models.Region) (*app, error) {
	st, err := store.New(cfg.OutputDir)
	if err != nil {
		return nil, err
	}

	fetcherCfg := aaa.DefaultConfig()
	fetcherCfg.BaseURL = cfg.BaseURL
	fetcherCfg.Timeout = cfg.RequestTimeout
	fetcherCfg.MaxRetries = cfg.MaxRetries
	fetcherCfg.RequestsPerSecond = cfg.RequestsPerSecond
	fetcher := aaa.New(logger, fetcherCfg)

	s := scraper.New(scraper.Config{Workers: cfg.Workers, AsOf: cfg.AsOf}, fetcher, st, logger)
	for _, r := range selected {
		s.RegisterRegion(r)
	}

	if cfg.Counties {
		countyStore, err := store.NewCounty(cfg.OutputDir)
		if err != nil {
			return nil, err
		}
		s.SetCountySource(fetcher, countyStore)
	}

	a := &app{scraper: s, regions: selected}

	if cfg.PostgresDSN != "" {
		db, err := database.New(ctx, cfg.PostgresDSN, logger)
		if err != nil {
			return nil, fmt.Errorf("connecting to database: %w", err)
		}
		if err := db.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, err
		}
		a.db = db
		s.SetMirror(db)
	}

	return a, nil
}
