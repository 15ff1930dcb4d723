package merge

import (
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andygrunwald/gas-price-scraper/internal/models"
)

func day(d int) civil.Date {
	return civil.Date{Year: 2024, Month: time.January, Day: d}
}

func obs(region, sub string, date civil.Date, regular float64) models.PriceObservation {
	return models.PriceObservation{Region: region, SubRegion: sub, Date: date, Regular: &regular}
}

func regular(t *testing.T, o models.PriceObservation) float64 {
	t.Helper()
	require.NotNil(t, o.Regular)
	return *o.Regular
}

func TestMerge_ExistingWins(t *testing.T) {
	existing := models.Store{obs("GA", "Atlanta", day(9), 3.10)}
	incoming := []models.PriceObservation{
		obs("GA", "Atlanta", day(9), 3.25),
		obs("GA", "Atlanta", day(10), 3.20),
	}

	got, stats, err := Merge(existing, incoming)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, day(9), got[0].Date)
	assert.InDelta(t, 3.10, regular(t, got[0]), 1e-9)
	assert.Equal(t, day(10), got[1].Date)
	assert.InDelta(t, 3.20, regular(t, got[1]), 1e-9)

	assert.Equal(t, Stats{Existing: 1, Incoming: 2, Added: 1, Kept: 1, Total: 2}, stats)
}

func TestMerge_LastIncomingWins(t *testing.T) {
	incoming := []models.PriceObservation{
		obs("GA", "Atlanta", day(10), 3.20),
		obs("GA", "Atlanta", day(10), 3.30),
	}

	got, stats, err := Merge(nil, incoming)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.InDelta(t, 3.30, regular(t, got[0]), 1e-9)
	assert.Equal(t, 1, stats.Added)
	assert.Equal(t, 1, stats.Replaced)
}

func TestMerge_FirstExistingWinsOnCorruptDuplicates(t *testing.T) {
	existing := models.Store{
		obs("GA", "Atlanta", day(9), 3.10),
		obs("GA", "Atlanta", day(9), 9.99),
	}

	got, _, err := Merge(existing, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.InDelta(t, 3.10, regular(t, got[0]), 1e-9)
}

func TestMerge_SortsByRegionSubRegionDate(t *testing.T) {
	incoming := []models.PriceObservation{
		obs("MI", "Metro Detroit", day(10), 3.0),
		obs("GA", "Savannah", day(3), 3.0),
		obs("GA", "Atlanta", day(10), 3.0),
		obs("GA", "Atlanta", civil.Date{Year: 2023, Month: time.December, Day: 10}, 3.0),
		obs("GA", "Atlanta", day(9), 3.0),
	}

	got, _, err := Merge(nil, incoming)
	require.NoError(t, err)

	var keys []models.Key
	for _, o := range got {
		keys = append(keys, o.Key())
	}
	assert.Equal(t, []models.Key{
		{Region: "GA", SubRegion: "Atlanta", Date: civil.Date{Year: 2023, Month: time.December, Day: 10}},
		{Region: "GA", SubRegion: "Atlanta", Date: day(9)},
		{Region: "GA", SubRegion: "Atlanta", Date: day(10)},
		{Region: "GA", SubRegion: "Savannah", Date: day(3)},
		{Region: "MI", SubRegion: "Metro Detroit", Date: day(10)},
	}, keys)
}

func TestMerge_Idempotent(t *testing.T) {
	existing := models.Store{
		obs("GA", "Atlanta", day(8), 3.05),
		obs("GA", "Atlanta", day(9), 3.10),
	}
	batch := []models.PriceObservation{
		obs("GA", "Atlanta", day(9), 3.25),
		obs("GA", "Atlanta", day(10), 3.20),
		obs("MI", "Metro Detroit", day(10), 3.40),
		obs("MI", "Metro Detroit", day(10), 3.45),
	}

	once, _, err := Merge(existing, batch)
	require.NoError(t, err)

	twice, stats, err := Merge(once, batch)
	require.NoError(t, err)

	assert.Equal(t, once, twice)
	assert.Equal(t, 0, stats.Added)
}

func TestMerge_UniqueKeys(t *testing.T) {
	existing := models.Store{obs("GA", "Atlanta", day(1), 3.0)}
	var incoming []models.PriceObservation
	for i := 0; i < 50; i++ {
		incoming = append(incoming, obs("GA", "Atlanta", day(1+i%7), float64(i)))
		incoming = append(incoming, obs("GA", "Savannah", day(1+i%3), float64(i)))
	}

	got, _, err := Merge(existing, incoming)
	require.NoError(t, err)

	seen := make(map[models.Key]bool)
	for _, o := range got {
		assert.False(t, seen[o.Key()], "duplicate key %v", o.Key())
		seen[o.Key()] = true
	}
	assert.Len(t, got, 10)
}

func TestMerge_DoesNotModifyInputs(t *testing.T) {
	existing := models.Store{
		obs("MI", "Metro Detroit", day(9), 3.10),
		obs("GA", "Atlanta", day(9), 3.10),
	}
	incoming := []models.PriceObservation{obs("AL", "Mobile", day(9), 3.0)}

	_, _, err := Merge(existing, incoming)
	require.NoError(t, err)
	assert.Equal(t, "MI", existing[0].Region)
	assert.Equal(t, "AL", incoming[0].Region)
}

func TestMerge_FailsClosedOnUnresolvedDate(t *testing.T) {
	existing := models.Store{
		obs("GA", "Atlanta", day(9), 3.10),
		// A row whose date column held a raw label such as "Current Avg.".
		{Region: "GA", SubRegion: "Atlanta"},
	}

	got, _, err := Merge(existing, []models.PriceObservation{obs("GA", "Atlanta", day(10), 3.20)})
	require.Error(t, err)
	assert.Nil(t, got)
	assert.True(t, errors.Is(err, ErrMergeValidation))

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	require.Len(t, vErr.Problems, 1)
	assert.Contains(t, vErr.Problems[0], "unresolved date")
}

func TestMerge_FailsClosedOnInvalidIncomingDate(t *testing.T) {
	bad := obs("GA", "Atlanta", civil.Date{Year: 2024, Month: time.February, Day: 30}, 3.20)

	got, _, err := Merge(nil, []models.PriceObservation{bad})
	require.Error(t, err)
	assert.Nil(t, got)
	assert.Contains(t, err.Error(), "is not a calendar date")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		store   models.Store
		wantErr string
	}{
		{name: "empty store", store: nil},
		{name: "valid", store: models.Store{obs("GA", "Atlanta", day(9), 3), obs("GA", "Atlanta", day(10), 3)}},
		{name: "duplicate", store: models.Store{obs("GA", "Atlanta", day(9), 3), obs("GA", "Atlanta", day(9), 4)}, wantErr: "duplicate key"},
		{name: "out of order", store: models.Store{obs("GA", "Atlanta", day(10), 3), obs("GA", "Atlanta", day(9), 3)}, wantErr: "out of order"},
		{name: "missing region", store: models.Store{obs("", "Atlanta", day(9), 3)}, wantErr: "empty region"},
		{name: "missing sub-region", store: models.Store{obs("GA", "", day(9), 3)}, wantErr: "empty sub-region"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.store)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidationError_TruncatesMessage(t *testing.T) {
	err := &ValidationError{}
	for i := 0; i < 15; i++ {
		err.Problems = append(err.Problems, "p")
	}
	assert.Contains(t, err.Error(), "15 problem(s)")
	assert.Contains(t, err.Error(), "; ...")
}
