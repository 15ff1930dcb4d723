package archive

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andygrunwald/gas-price-scraper/internal/api"
)

const sampleDay = `"","date","regular","mid_grade","premium","diesel","city","state"
"1","2024-01-10","$3.10","$3.50","$3.90","$4.00","Atlanta","Georgia"
"2","2024-01-10","$3.20","","$4.10","n/a","Augusta","Georgia"
"3","bad-date","$3.00","$3.00","$3.00","$3.00","Macon","Georgia"
"4","2024-01-10","$3.00","$3.00","$3.00","$3.00","","Georgia"
"5","2024-01-10","$3.30"
`

func testConfig(url string) Config {
	return Config{
		BaseURL:        url,
		Timeout:        2 * time.Second,
		MaxRetries:     2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}
}

func TestFetchDay(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_, _ = w.Write([]byte(sampleDay))
	}))
	defer srv.Close()

	regionID := func(state string) string {
		if state == "Georgia" {
			return "GA"
		}
		return ""
	}
	p := New(zerolog.Nop(), testConfig(srv.URL), regionID)

	obs, err := p.FetchDay(context.Background(), civil.Date{Year: 2024, Month: 1, Day: 10})
	require.NoError(t, err)
	assert.Equal(t, "/2024-01-10-usa_gas_price-city.csv", path)
	require.Len(t, obs, 2)

	assert.Equal(t, "GA", obs[0].Region)
	assert.Equal(t, "Atlanta", obs[0].SubRegion)
	assert.Equal(t, civil.Date{Year: 2024, Month: 1, Day: 10}, obs[0].Date)
	require.NotNil(t, obs[0].Regular)
	assert.InDelta(t, 3.10, *obs[0].Regular, 1e-9)
	require.NotNil(t, obs[0].Diesel)
	assert.InDelta(t, 4.00, *obs[0].Diesel, 1e-9)

	assert.Equal(t, "Augusta", obs[1].SubRegion)
	assert.Nil(t, obs[1].MidGrade)
	assert.Nil(t, obs[1].Diesel)
}

func TestFetchDayMissingFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	p := New(zerolog.Nop(), testConfig(srv.URL+"/"), nil)
	_, err := p.FetchDay(context.Background(), civil.Date{Year: 2020, Month: 5, Day: 1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, api.ErrPermanent))

	var fe *api.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, http.StatusNotFound, fe.StatusCode)
	assert.Equal(t, "2020-05-01", fe.LocationKey)
}

func TestFetchDayServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	p := New(zerolog.Nop(), testConfig(srv.URL), nil)
	_, err := p.FetchDay(context.Background(), civil.Date{Year: 2020, Month: 5, Day: 1})
	assert.True(t, api.IsTransient(err))
}

func TestFetchDayEmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	p := New(zerolog.Nop(), testConfig(srv.URL), nil)
	obs, err := p.FetchDay(context.Background(), civil.Date{Year: 2020, Month: 5, Day: 1})
	require.NoError(t, err)
	assert.Empty(t, obs)
}

func TestFetchDayRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(sampleDay))
	}))
	defer srv.Close()

	p := New(zerolog.Nop(), testConfig(srv.URL), nil)
	obs, err := p.FetchDay(context.Background(), civil.Date{Year: 2024, Month: 1, Day: 10})
	require.NoError(t, err)
	assert.Len(t, obs, 2)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetchDayDoesNotRetryMissingFile(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	p := New(zerolog.Nop(), testConfig(srv.URL), nil)
	_, err := p.FetchDay(context.Background(), civil.Date{Year: 2024, Month: 1, Day: 10})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchDayServerErrorGivesUp(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := New(zerolog.Nop(), testConfig(srv.URL), nil)
	_, err := p.FetchDay(context.Background(), civil.Date{Year: 2024, Month: 1, Day: 10})
	assert.True(t, api.IsTransient(err))
	assert.Equal(t, int32(3), calls.Load())
}
