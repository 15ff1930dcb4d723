// Package normalize converts raw table rows into price observations.
package normalize

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/andygrunwald/gas-price-scraper/internal/models"
	"github.com/andygrunwald/gas-price-scraper/internal/timelabel"
)

// ErrMissingSubRegion marks a row found under an empty heading.
var ErrMissingSubRegion = errors.New("missing sub-region")

// ErrUnparseablePrice marks price text that is neither empty nor a number.
var ErrUnparseablePrice = errors.New("unparseable price")

var priceCleaner = strings.NewReplacer("$", "", ",", "", " ", "", "\u00a0", "")

// pricePattern admits plain decimals only. Signs, exponents and hex floats
// are not prices even though strconv would accept them.
var pricePattern = regexp.MustCompile(`^(\d+\.?\d*|\.\d+)$`)

// ParsePrice strips dollar signs, whitespace and thousands separators from
// text and parses the remainder. Empty text yields nil. Anything left that is
// not a plain non-negative decimal yields nil and ErrUnparseablePrice; callers
// treat that as a missing price, not a failed row.
func ParsePrice(text string) (*float64, error) {
	cleaned := priceCleaner.Replace(strings.TrimSpace(text))
	if cleaned == "" {
		return nil, nil
	}
	if !pricePattern.MatchString(cleaned) {
		return nil, fmt.Errorf("%w: %q", ErrUnparseablePrice, text)
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, fmt.Errorf("%w: %q", ErrUnparseablePrice, text)
	}
	return &v, nil
}

// Counters tracks rows dropped or degraded during normalization.
type Counters struct {
	// Rows is the number of rows seen.
	Rows int
	// Dropped is the number of rows whose time label did not resolve or
	// that carried no sub-region.
	Dropped int
	// UnparseablePrices is the number of price cells that were not numbers.
	UnparseablePrices int
}

// Normalizer turns raw rows into observations for one anchor instant.
type Normalizer struct {
	anchor   time.Time
	counters Counters
	errs     []error
}

// New creates a Normalizer resolving labels against anchor.
func New(anchor time.Time) *Normalizer {
	return &Normalizer{anchor: anchor}
}

// Observation converts a raw row. ok is false when the row was dropped
// because its time label is unknown or its sub-region is empty; the reason
// is kept in Errors.
func (n *Normalizer) Observation(row models.RawRow) (obs models.PriceObservation, ok bool) {
	n.counters.Rows++

	if strings.TrimSpace(row.SubRegion) == "" {
		n.counters.Dropped++
		n.errs = append(n.errs, fmt.Errorf("%s: %w", row.Region, ErrMissingSubRegion))
		return models.PriceObservation{}, false
	}

	date, err := timelabel.Resolve(n.anchor, row.TimeLabel)
	if err != nil {
		n.counters.Dropped++
		n.errs = append(n.errs, fmt.Errorf("%s/%s: %w", row.Region, row.SubRegion, err))
		return models.PriceObservation{}, false
	}

	var prices [4]*float64
	for i, c := range row.Cells {
		if c == nil {
			continue
		}
		p, err := ParsePrice(*c)
		if err != nil {
			n.counters.UnparseablePrices++
			n.errs = append(n.errs, fmt.Errorf("%s/%s %s: %w", row.Region, row.SubRegion, models.Grades[i], err))
			continue
		}
		prices[i] = p
	}

	return models.PriceObservation{
		Region:    row.Region,
		SubRegion: row.SubRegion,
		Date:      date,
		Regular:   prices[0],
		MidGrade:  prices[1],
		Premium:   prices[2],
		Diesel:    prices[3],
	}, true
}

// Counters returns the counters accumulated so far.
func (n *Normalizer) Counters() Counters {
	return n.counters
}

// Errors returns the row-level problems recorded so far.
func (n *Normalizer) Errors() []error {
	return n.errs
}
