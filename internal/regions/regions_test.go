package regions

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andygrunwald/gas-price-scraper/internal/models"
)

const statesCSV = `State,Abbreviation
Georgia,GA
Michigan,MI
Ohio,oh
Georgia,GA
,
`

func TestParse(t *testing.T) {
	got, err := Parse(strings.NewReader(statesCSV))
	require.NoError(t, err)
	assert.Equal(t, []models.Region{
		{ID: "GA", Name: "Georgia", LocationKey: "GA"},
		{ID: "MI", Name: "Michigan", LocationKey: "MI"},
		{ID: "OH", Name: "Ohio", LocationKey: "OH"},
	}, got)
}

func TestParseColumnOrder(t *testing.T) {
	got, err := Parse(strings.NewReader("Abbreviation,State\nTX,Texas\n"))
	require.NoError(t, err)
	assert.Equal(t, []models.Region{{ID: "TX", Name: "Texas", LocationKey: "TX"}}, got)
}

func TestParseErrors(t *testing.T) {
	_, err := Parse(strings.NewReader(""))
	assert.ErrorIs(t, err, ErrNoRegions)

	_, err = Parse(strings.NewReader("State,Abbreviation\n"))
	assert.ErrorIs(t, err, ErrNoRegions)

	_, err = Parse(strings.NewReader("Foo,Bar\na,b\n"))
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "states.csv")
	require.NoError(t, os.WriteFile(path, []byte(statesCSV), 0o644))

	got, err := Load(context.Background(), path)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestLoadURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(statesCSV))
	}))
	defer srv.Close()

	got, err := Load(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestLoadURLStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := Load(context.Background(), srv.URL)
	assert.Error(t, err)
}

func TestFilter(t *testing.T) {
	all, err := Parse(strings.NewReader(statesCSV))
	require.NoError(t, err)

	got, err := Filter(all, nil)
	require.NoError(t, err)
	assert.Len(t, got, 3)

	got, err = Filter(all, []string{"mi", " GA "})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "GA", got[0].ID)
	assert.Equal(t, "MI", got[1].ID)

	_, err = Filter(all, []string{"GA", "ZZ", "XX"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "XX, ZZ")
}

func TestResolver(t *testing.T) {
	all, err := Parse(strings.NewReader(statesCSV))
	require.NoError(t, err)

	resolve := Resolver(all)
	assert.Equal(t, "GA", resolve("Georgia"))
	assert.Equal(t, "GA", resolve("ga"))
	assert.Equal(t, "MI", resolve(" michigan "))
	assert.Equal(t, "", resolve("Atlantis"))
}
