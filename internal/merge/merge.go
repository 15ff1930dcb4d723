// Package merge combines newly scraped observations with the historical store.
//
// Conflict policy on the natural key (region, sub-region, date): a row that
// already exists in the store is never replaced; among incoming rows the one
// seen last wins. The result is sorted and validated before it is returned,
// and a validation failure returns no store at all so the caller cannot
// persist a corrupt file.
package merge

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/andygrunwald/gas-price-scraper/internal/models"
)

// ErrMergeValidation is matched by every *ValidationError.
var ErrMergeValidation = errors.New("merge validation failed")

// maxReportedProblems caps the problems listed in a ValidationError message.
const maxReportedProblems = 10

// ValidationError lists the invariant violations found in a merged store.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	shown := e.Problems
	if len(shown) > maxReportedProblems {
		shown = shown[:maxReportedProblems]
	}
	msg := fmt.Sprintf("%s: %d problem(s): %s", ErrMergeValidation, len(e.Problems), strings.Join(shown, "; "))
	if len(e.Problems) > len(shown) {
		msg += "; ..."
	}
	return msg
}

// Is reports whether target is ErrMergeValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrMergeValidation
}

// Stats describes what a merge did.
type Stats struct {
	Existing int
	Incoming int
	// Added is the number of new keys taken from incoming.
	Added int
	// Kept is the number of incoming rows ignored because the key was already stored.
	Kept int
	// Replaced is the number of incoming rows superseded by a later incoming row.
	Replaced int
	Total    int
}

// Merge returns existing plus incoming, deduplicated on the natural key and
// sorted ascending by it. Neither input is modified.
func Merge(existing models.Store, incoming []models.PriceObservation) (models.Store, Stats, error) {
	stats := Stats{Existing: len(existing), Incoming: len(incoming)}

	merged := make(models.Store, 0, len(existing)+len(incoming))
	index := make(map[models.Key]int, len(existing)+len(incoming))
	stored := make(map[models.Key]bool, len(existing))

	for _, obs := range existing {
		k := obs.Key()
		if _, ok := index[k]; ok {
			// First seen wins inside the persisted data.
			continue
		}
		index[k] = len(merged)
		stored[k] = true
		merged = append(merged, obs)
	}

	for _, obs := range incoming {
		k := obs.Key()
		i, ok := index[k]
		switch {
		case !ok:
			index[k] = len(merged)
			merged = append(merged, obs)
			stats.Added++
		case stored[k]:
			stats.Kept++
		default:
			merged[i] = obs
			stats.Replaced++
		}
	}

	Sort(merged)

	if err := Validate(merged); err != nil {
		return nil, stats, err
	}
	stats.Total = len(merged)
	return merged, stats, nil
}

// Sort orders s ascending by region, sub-region and date.
func Sort(s models.Store) {
	slices.SortStableFunc(s, func(a, b models.PriceObservation) int {
		return a.Key().Compare(b.Key())
	})
}

// Validate checks the store invariants: every row has a region, a sub-region
// and a valid calendar date, keys are unique, and rows are in key order.
func Validate(s models.Store) error {
	var problems []string
	for i, obs := range s {
		if obs.Region == "" {
			problems = append(problems, fmt.Sprintf("row %d: empty region", i))
		}
		if obs.SubRegion == "" {
			problems = append(problems, fmt.Sprintf("row %d (%s): empty sub-region", i, obs.Region))
		}
		switch {
		case obs.Date.IsZero():
			problems = append(problems, fmt.Sprintf("row %d (%s/%s): unresolved date", i, obs.Region, obs.SubRegion))
		case !obs.Date.IsValid():
			problems = append(problems, fmt.Sprintf("row %d (%s/%s): %s is not a calendar date", i, obs.Region, obs.SubRegion, obs.Date))
		}
		if i == 0 {
			continue
		}
		switch c := s[i-1].Key().Compare(obs.Key()); {
		case c == 0:
			problems = append(problems, fmt.Sprintf("row %d (%s/%s %s): duplicate key", i, obs.Region, obs.SubRegion, obs.Date))
		case c > 0:
			problems = append(problems, fmt.Sprintf("row %d (%s/%s %s): out of order", i, obs.Region, obs.SubRegion, obs.Date))
		}
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}
