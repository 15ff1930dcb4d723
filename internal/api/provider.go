// Package api provides the interfaces and error types for gas price sources.
package api

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/civil"

	"github.com/andygrunwald/gas-price-scraper/internal/models"
)

// PageFetcher returns the raw page for one region of a live price source.
type PageFetcher interface {
	// Name returns the source identifier.
	Name() string

	// Fetch returns the page content for locationKey. Failures are *FetchError.
	Fetch(ctx context.Context, locationKey string) ([]byte, error)
}

// CountyFetcher returns the county map script of one region.
type CountyFetcher interface {
	// FetchCountyMap returns the script holding the county map data for
	// locationKey. Failures are *FetchError.
	FetchCountyMap(ctx context.Context, locationKey string) ([]byte, error)
}

// HistoryProvider returns already dated observations for past days.
type HistoryProvider interface {
	// Name returns the source identifier.
	Name() string

	// FetchDay returns all observations published for date.
	FetchDay(ctx context.Context, date civil.Date) ([]models.PriceObservation, error)
}

// ErrTransient and ErrPermanent classify every *FetchError.
var (
	ErrTransient = errors.New("transient fetch error")
	ErrPermanent = errors.New("permanent fetch error")
)

// FetchError is returned by sources when content could not be retrieved.
type FetchError struct {
	Source      string
	LocationKey string
	// StatusCode is the HTTP status, or 0 if no response was received.
	StatusCode int
	Transient  bool
	Err        error
}

func (e *FetchError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s fetch %s (%s): status %d: %v", e.Source, e.LocationKey, kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s fetch %s (%s): %v", e.Source, e.LocationKey, kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match ErrTransient or ErrPermanent.
func (e *FetchError) Is(target error) bool {
	switch target {
	case ErrTransient:
		return e.Transient
	case ErrPermanent:
		return !e.Transient
	}
	return false
}

// IsTransient reports whether err is a retryable fetch failure.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
