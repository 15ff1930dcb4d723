// Package aaa provides a page fetcher for the AAA state gas price pages and
// their county maps.
package aaa

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/andygrunwald/gas-price-scraper/internal/api"
	"github.com/andygrunwald/gas-price-scraper/internal/parser"
	"github.com/andygrunwald/gas-price-scraper/internal/useragent"
)

const (
	// ProviderName is the identifier for this source.
	ProviderName = "aaa"
	// BaseURL serves one page per state, selected by the "state" parameter.
	BaseURL = "https://gasprices.aaa.com/"
	// maxBodySize caps how much of a page is read.
	maxBodySize = 10 << 20

	// Query values the county map endpoint expects alongside the map id.
	countyMapRevision = "64141"
	countyMapVersion  = "6.6.1"
)

// Config controls request pacing and retries.
type Config struct {
	BaseURL string
	// Timeout bounds a single request attempt.
	Timeout time.Duration
	// MaxRetries is the number of retries after the first attempt for transient failures.
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// RequestsPerSecond is shared by all workers using this provider. Zero disables the limit.
	RequestsPerSecond float64
	Burst             int
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		BaseURL:           BaseURL,
		Timeout:           30 * time.Second,
		MaxRetries:        3,
		InitialBackoff:    500 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		RequestsPerSecond: 2,
		Burst:             1,
	}
}

// Provider fetches AAA state pages. It is safe for concurrent use.
type Provider struct {
	client  *http.Client
	cfg     Config
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	logger  zerolog.Logger
}

// New creates a new AAA provider.
func New(logger zerolog.Logger, cfg Config) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 500 * time.Millisecond
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	p := &Provider{
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger.With().Str("provider", ProviderName).Logger(),
	}

	p.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        ProviderName,
		MaxRequests: 1,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			// Only transient failures say something about the source's health.
			return err == nil || !api.IsTransient(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			p.logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	})

	return p
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return ProviderName
}

// Fetch returns the state page for locationKey, retrying transient failures
// with exponential backoff.
func (p *Provider) Fetch(ctx context.Context, locationKey string) ([]byte, error) {
	reqURL, err := p.pageURL(locationKey)
	if err != nil {
		return nil, p.fetchError(locationKey, 0, false, err)
	}
	return p.fetch(ctx, locationKey, reqURL)
}

// FetchCountyMap returns the county map script for the state locationKey.
// The state page names the map; its data is served by a separate endpoint.
// A state page without a county map is a permanent failure.
func (p *Provider) FetchCountyMap(ctx context.Context, locationKey string) ([]byte, error) {
	page, err := p.Fetch(ctx, locationKey)
	if err != nil {
		return nil, err
	}
	mapID, err := parser.MapID(page)
	if err != nil {
		return nil, p.fetchError(locationKey, 0, false, err)
	}
	reqURL, err := p.countyMapURL(mapID)
	if err != nil {
		return nil, p.fetchError(locationKey, 0, false, err)
	}
	return p.fetch(ctx, locationKey, reqURL)
}

func (p *Provider) fetch(ctx context.Context, locationKey, reqURL string) ([]byte, error) {
	for attempt := 0; ; attempt++ {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, p.fetchError(locationKey, 0, false, fmt.Errorf("waiting for rate limiter: %w", err))
		}

		result, err := p.breaker.Execute(func() (interface{}, error) {
			return p.fetchOnce(ctx, locationKey, reqURL)
		})
		if err == nil {
			return result.([]byte), nil
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, p.fetchError(locationKey, 0, false, err)
		}

		if !api.IsTransient(err) || attempt >= p.cfg.MaxRetries {
			return nil, err
		}

		delay := api.Backoff(attempt, p.cfg.InitialBackoff, p.cfg.MaxBackoff)
		p.logger.Warn().
			Err(err).
			Str("location", locationKey).
			Int("attempt", attempt+1).
			Dur("backoff", delay).
			Msg("transient fetch failure, retrying")

		if err := api.Sleep(ctx, delay); err != nil {
			return nil, p.fetchError(locationKey, 0, false, err)
		}
	}
}

func (p *Provider) fetchOnce(ctx context.Context, locationKey, reqURL string) ([]byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	p.logger.Debug().
		Str("url", reqURL).
		Str("location", locationKey).
		Msg("fetching page from AAA")

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, p.fetchError(locationKey, 0, false, fmt.Errorf("creating request: %w", err))
	}

	req.Header.Set("User-Agent", useragent.Random())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := p.client.Do(req)
	if err != nil {
		// A cancelled parent context is shutdown, not a flaky source.
		return nil, p.fetchError(locationKey, 0, ctx.Err() == nil, fmt.Errorf("executing request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		transient := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return nil, p.fetchError(locationKey, resp.StatusCode, transient, fmt.Errorf("unexpected status code: %s", string(body)))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, p.fetchError(locationKey, resp.StatusCode, ctx.Err() == nil, fmt.Errorf("reading response body: %w", err))
	}

	return body, nil
}

func (p *Provider) pageURL(locationKey string) (string, error) {
	u, err := url.Parse(p.cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}
	q := u.Query()
	q.Set("state", locationKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// countyMapURL returns the endpoint serving the data script of a county map.
func (p *Provider) countyMapURL(mapID string) (string, error) {
	u, err := url.Parse(p.cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}
	u = u.JoinPath("index.php")
	q := url.Values{}
	q.Set("premiumhtml5map_js_data", "true")
	q.Set("map_id", mapID)
	q.Set("r", countyMapRevision)
	q.Set("ver", countyMapVersion)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (p *Provider) fetchError(locationKey string, status int, transient bool, err error) *api.FetchError {
	return &api.FetchError{
		Source:      ProviderName,
		LocationKey: locationKey,
		StatusCode:  status,
		Transient:   transient,
		Err:         err,
	}
}
