package aaa

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andygrunwald/gas-price-scraper/internal/api"
)

func testConfig(url string) Config {
	return Config{
		BaseURL:        url,
		Timeout:        2 * time.Second,
		MaxRetries:     2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}
}

func TestFetch_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "GA", r.URL.Query().Get("state"))
		assert.Contains(t, r.Header.Get("User-Agent"), "Mozilla/5.0")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("<html>ok</html>"))
	}))
	defer server.Close()

	p := New(zerolog.Nop(), testConfig(server.URL))
	body, err := p.Fetch(context.Background(), "GA")
	require.NoError(t, err)
	assert.Equal(t, "<html>ok</html>", string(body))
	assert.Equal(t, ProviderName, p.Name())
}

func TestFetch_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("page"))
	}))
	defer server.Close()

	p := New(zerolog.Nop(), testConfig(server.URL))
	body, err := p.Fetch(context.Background(), "GA")
	require.NoError(t, err)
	assert.Equal(t, "page", string(body))
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetch_GivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	p := New(zerolog.Nop(), testConfig(server.URL))
	_, err := p.Fetch(context.Background(), "GA")
	require.Error(t, err)
	assert.True(t, api.IsTransient(err))
	assert.Equal(t, int32(3), calls.Load())

	var fetchErr *api.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, http.StatusTooManyRequests, fetchErr.StatusCode)
	assert.Equal(t, "GA", fetchErr.LocationKey)
}

func TestFetch_PermanentFailureIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("no such state"))
	}))
	defer server.Close()

	p := New(zerolog.Nop(), testConfig(server.URL))
	_, err := p.Fetch(context.Background(), "XX")
	require.Error(t, err)
	assert.True(t, errors.Is(err, api.ErrPermanent))
	assert.Contains(t, err.Error(), "no such state")
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetch_Cancelled(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	p := New(zerolog.Nop(), testConfig(server.URL))
	start := time.Now()
	_, err := p.Fetch(ctx, "GA")
	require.Error(t, err)
	assert.False(t, api.IsTransient(err))
	assert.Less(t, time.Since(start), time.Second)
}

func TestFetch_CircuitBreakerOpens(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.MaxRetries = 0
	p := New(zerolog.Nop(), cfg)

	for i := 0; i < 5; i++ {
		_, err := p.Fetch(context.Background(), "GA")
		require.Error(t, err)
	}

	_, err := p.Fetch(context.Background(), "GA")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "circuit breaker is open"))
	assert.False(t, api.IsTransient(err))
	assert.Equal(t, int32(5), calls.Load())
}

func TestFetchCountyMap(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "GA", r.URL.Query().Get("state"))
		w.Write([]byte(`<script src="/index.php?premiumhtml5map_js_data=true&map_id=27&r=64141"></script>`))
	})
	mux.HandleFunc("/index.php", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "true", q.Get("premiumhtml5map_js_data"))
		assert.Equal(t, "27", q.Get("map_id"))
		assert.Equal(t, "64141", q.Get("r"))
		assert.Equal(t, "6.6.1", q.Get("ver"))
		w.Write([]byte(`map_data: {}, groups: {}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	p := New(zerolog.Nop(), testConfig(server.URL+"/"))
	script, err := p.FetchCountyMap(context.Background(), "GA")
	require.NoError(t, err)
	assert.Equal(t, "map_data: {}, groups: {}", string(script))
}

func TestFetchCountyMap_NoMap(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte("<html>no map here</html>"))
	}))
	defer server.Close()

	p := New(zerolog.Nop(), testConfig(server.URL))
	_, err := p.FetchCountyMap(context.Background(), "GA")
	require.Error(t, err)
	assert.ErrorIs(t, err, api.ErrPermanent)
	assert.Equal(t, int32(1), calls.Load())
}
