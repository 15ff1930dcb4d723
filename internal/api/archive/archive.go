// Package archive provides historical city gas prices from a public daily CSV archive.
package archive

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"

	"github.com/andygrunwald/gas-price-scraper/internal/api"
	"github.com/andygrunwald/gas-price-scraper/internal/models"
	"github.com/andygrunwald/gas-price-scraper/internal/normalize"
	"github.com/andygrunwald/gas-price-scraper/internal/useragent"
)

const (
	// ProviderName is the identifier for this provider.
	ProviderName = "archive"
	// BaseURL is the directory holding one CSV per day.
	BaseURL = "https://raw.githubusercontent.com/gueyenono/ScrapeUSGasPrices/refs/heads/master/data/city/"
)

// Column positions in the daily files. Column 0 is a row index.
const (
	colDate = iota + 1
	colRegular
	colMidGrade
	colPremium
	colDiesel
	colCity
	colState
	numCols
)

// Config controls requests against the archive.
type Config struct {
	BaseURL string
	// Timeout bounds a single request attempt.
	Timeout time.Duration
	// MaxRetries is the number of retries after the first attempt for transient failures.
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		BaseURL:        BaseURL,
		Timeout:        30 * time.Second,
		MaxRetries:     3,
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
	}
}

// Provider implements api.HistoryProvider for the daily city archive.
type Provider struct {
	client *http.Client
	cfg    Config
	// regionID maps the archive's state column to a region identifier.
	regionID func(string) string
	logger   zerolog.Logger
}

// New creates a new archive provider. regionID may be nil, in which case the
// state column is used verbatim.
func New(logger zerolog.Logger, cfg Config, regionID func(string) string) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = BaseURL
	}
	if !strings.HasSuffix(cfg.BaseURL, "/") {
		cfg.BaseURL += "/"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if regionID == nil {
		regionID = func(s string) string { return s }
	}
	return &Provider{
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		cfg:      cfg,
		regionID: regionID,
		logger:   logger.With().Str("provider", ProviderName).Logger(),
	}
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return ProviderName
}

// FetchDay fetches and decodes the archive file for date, retrying transient
// failures with exponential backoff.
func (p *Provider) FetchDay(ctx context.Context, date civil.Date) ([]models.PriceObservation, error) {
	for attempt := 0; ; attempt++ {
		observations, err := p.fetchDayOnce(ctx, date)
		if err == nil || !api.IsTransient(err) || attempt >= p.cfg.MaxRetries {
			return observations, err
		}

		delay := api.Backoff(attempt, p.cfg.InitialBackoff, p.cfg.MaxBackoff)
		p.logger.Warn().
			Err(err).
			Str("date", date.String()).
			Int("attempt", attempt+1).
			Dur("backoff", delay).
			Msg("transient archive failure, retrying")

		if err := api.Sleep(ctx, delay); err != nil {
			return nil, p.fetchError(date, 0, false, err)
		}
	}
}

func (p *Provider) fetchDayOnce(ctx context.Context, date civil.Date) ([]models.PriceObservation, error) {
	fileURL := fmt.Sprintf("%s%s-usa_gas_price-city.csv", p.cfg.BaseURL, date)

	p.logger.Debug().
		Str("url", fileURL).
		Str("date", date.String()).
		Msg("fetching archive file")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, p.fetchError(date, 0, false, fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("User-Agent", useragent.Random())
	req.Header.Set("Accept", "text/csv,text/plain,*/*")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, p.fetchError(date, 0, ctx.Err() == nil, fmt.Errorf("executing request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		transient := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return nil, p.fetchError(date, resp.StatusCode, transient, errors.New("unexpected status code"))
	}

	observations, skipped, err := p.decode(resp.Body, date)
	if err != nil {
		return nil, fmt.Errorf("decoding archive file for %s: %w", date, err)
	}

	p.logger.Info().
		Str("date", date.String()).
		Int("count", len(observations)).
		Int("skipped", skipped).
		Msg("fetched archive file")

	return observations, nil
}

// decode reads one daily file. Rows without a usable date, city or state are
// skipped and counted. A row dated differently from the file is kept with its
// own date.
func (p *Provider) decode(r io.Reader, fileDate civil.Date) ([]models.PriceObservation, int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	if _, err := cr.Read(); err != nil {
		if err == io.EOF {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("reading header: %w", err)
	}

	var (
		observations []models.PriceObservation
		skipped      int
	)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, err
		}
		if len(rec) < numCols {
			skipped++
			continue
		}

		date, err := civil.ParseDate(strings.TrimSpace(rec[colDate]))
		if err != nil {
			skipped++
			continue
		}
		city := strings.TrimSpace(rec[colCity])
		region := p.regionID(strings.TrimSpace(rec[colState]))
		if city == "" || region == "" {
			skipped++
			continue
		}

		var prices [4]*float64
		for i, col := range []int{colRegular, colMidGrade, colPremium, colDiesel} {
			// Unparseable cells become missing prices.
			prices[i], _ = normalize.ParsePrice(rec[col])
		}

		observations = append(observations, models.PriceObservation{
			Region:    region,
			SubRegion: city,
			Date:      date,
			Regular:   prices[0],
			MidGrade:  prices[1],
			Premium:   prices[2],
			Diesel:    prices[3],
		})
	}

	if skipped > 0 {
		p.logger.Debug().Str("date", fileDate.String()).Int("skipped", skipped).Msg("skipped archive rows")
	}
	return observations, skipped, nil
}

func (p *Provider) fetchError(date civil.Date, status int, transient bool, err error) *api.FetchError {
	return &api.FetchError{
		Source:      ProviderName,
		LocationKey: date.String(),
		StatusCode:  status,
		Transient:   transient,
		Err:         err,
	}
}
