package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andygrunwald/gas-price-scraper/internal/merge"
	"github.com/andygrunwald/gas-price-scraper/internal/models"
)

func ptr(v float64) *float64 { return &v }

func sampleStore() models.Store {
	return models.Store{
		{Region: "GA", SubRegion: "Atlanta", Date: civil.Date{Year: 2023, Month: time.January, Day: 10}, Regular: ptr(3.1), MidGrade: ptr(3.459), Premium: ptr(3.9), Diesel: ptr(4.005)},
		{Region: "GA", SubRegion: "Atlanta", Date: civil.Date{Year: 2024, Month: time.January, Day: 10}, Regular: ptr(3.2)},
		{Region: "MI", SubRegion: "Metro Detroit, Wayne", Date: civil.Date{Year: 2024, Month: time.January, Day: 9}, Diesel: ptr(1234.5)},
	}
}

func TestStore_RoundTrip(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	want := sampleStore()
	require.NoError(t, s.Save(want))

	got, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestStore_LoadMissingFile(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	got, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStore_SaveIsAtomic(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)

	require.NoError(t, s.Save(sampleStore()))
	require.NoError(t, s.Save(sampleStore()[:1]))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{MasterFile, "cycles"}, names)

	got, err := s.Load()
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestStore_SaveCycle(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)

	date := civil.Date{Year: 2024, Month: time.January, Day: 10}
	assert.False(t, s.HasCycle(date))
	path, err := s.SaveCycle(date, sampleStore())
	require.NoError(t, err)
	assert.True(t, s.HasCycle(date))
	assert.Equal(t, filepath.Join(dir, "cycles", "LiveScrape-2024-01-10.csv"), path)

	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestStore_LoadCycle(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	date := civil.Date{Year: 2024, Month: time.January, Day: 10}
	got, err := s.LoadCycle(date)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = s.SaveCycle(date, sampleStore())
	require.NoError(t, err)
	got, err = s.LoadCycle(date)
	require.NoError(t, err)
	assert.Equal(t, sampleStore(), got)
}

func TestNewCounty_SeparateFiles(t *testing.T) {
	dir := t.TempDir()
	city, err := New(dir)
	require.NoError(t, err)
	county, err := NewCounty(dir)
	require.NoError(t, err)

	date := civil.Date{Year: 2024, Month: time.January, Day: 10}
	assert.Equal(t, filepath.Join(dir, CountyMasterFile), county.MasterPath())
	assert.Equal(t, filepath.Join(dir, "cycles", "CountyGas-2024-01-10.csv"), county.CyclePath(date))
	assert.NotEqual(t, city.MasterPath(), county.MasterPath())

	require.NoError(t, county.Save(sampleStore()[:1]))
	got, err := city.Load()
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestWrite_Format(t *testing.T) {
	var b strings.Builder
	require.NoError(t, Write(&b, sampleStore()[1:]))

	assert.Equal(t,
		"Region,SubRegion,Date,Regular,MidGrade,Premium,Diesel\n"+
			"GA,Atlanta,2024-01-10,3.2,,,\n"+
			"MI,\"Metro Detroit, Wayne\",2024-01-09,,,,1234.5\n",
		b.String())
}

func TestRead_LegacyHeader(t *testing.T) {
	in := "State,City,Date,Regular,Mid,Premium,Diesel\n" +
		"Georgia,Atlanta,2024-01-10 00:00:00,$3.10,$3.50,,$3.90\n"

	got, err := Read(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Georgia", got[0].Region)
	assert.Equal(t, "Atlanta", got[0].SubRegion)
	assert.Equal(t, civil.Date{Year: 2024, Month: time.January, Day: 10}, got[0].Date)
	assert.InDelta(t, 3.50, *got[0].MidGrade, 1e-9)
	assert.Nil(t, got[0].Premium)
}

func TestRead_UnresolvedDateFailsMerge(t *testing.T) {
	in := "Region,SubRegion,Date,Regular,MidGrade,Premium,Diesel\n" +
		"GA,Atlanta,Current Avg.,3.10,,,\n"

	got, err := Read(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Date.IsZero())

	_, _, err = merge.Merge(got, nil)
	assert.ErrorIs(t, err, merge.ErrMergeValidation)
}

func TestRead_Errors(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantErr string
	}{
		{name: "missing column", in: "Region,SubRegion,Date\nGA,Atlanta,2024-01-10\n", wantErr: "missing column"},
		{name: "bad price", in: "Region,SubRegion,Date,Regular,MidGrade,Premium,Diesel\nGA,Atlanta,2024-01-10,abc,,,\n", wantErr: "line 2: column Regular"},
		{name: "broken quoting", in: "Region,SubRegion,Date,Regular,MidGrade,Premium,Diesel\nGA,\"Atlanta,2024-01-10,,,,\n", wantErr: "line 2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(strings.NewReader(tt.in))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRead_Empty(t *testing.T) {
	got, err := Read(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, got)
}
