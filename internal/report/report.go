// Package report builds price trend series from the historical store.
// It only reads observations and never writes to the store.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"

	"cloud.google.com/go/civil"

	"github.com/andygrunwald/gas-price-scraper/internal/models"
)

// DefaultSubRegions are reported when Options.SubRegions is empty.
var DefaultSubRegions = []string{"Atlanta", "Metro Detroit"}

// Options selects what a report contains. The zero value reports the regular
// grade of DefaultSubRegions over all dates.
type Options struct {
	// SubRegions to report, matched case-insensitively.
	SubRegions []string
	// Region optionally restricts matches to one region ID.
	Region string
	// Grade is one of models.Grades. Empty means regular.
	Grade string
	// From and To bound the dates. Zero values are unbounded.
	From civil.Date
	To   civil.Date
}

// Point is a single dated price.
type Point struct {
	Date  civil.Date `json:"date"`
	Price float64    `json:"price"`
}

// Series is the price history of one sub-region.
type Series struct {
	Region    string  `json:"region"`
	SubRegion string  `json:"sub_region"`
	Grade     string  `json:"grade"`
	Points    []Point `json:"points"`
}

// Change returns the difference between the last and first point.
func (s Series) Change() (float64, bool) {
	if len(s.Points) < 2 {
		return 0, false
	}
	return s.Points[len(s.Points)-1].Price - s.Points[0].Price, true
}

// Build extracts one series per matching (region, sub-region) pair in store
// order. Observations without a price for the grade are left out.
func Build(store models.Store, opts Options) ([]Series, error) {
	grade := strings.ToLower(opts.Grade)
	if grade == "" {
		grade = models.GradeRegular
	}
	gradeIdx := slices.Index(models.Grades[:], grade)
	if gradeIdx < 0 {
		return nil, fmt.Errorf("unknown grade %q", opts.Grade)
	}

	names := opts.SubRegions
	if len(names) == 0 {
		names = DefaultSubRegions
	}
	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[strings.ToLower(strings.TrimSpace(n))] = true
	}

	var (
		out   []Series
		index = make(map[[2]string]int)
	)
	for _, o := range store {
		if !wanted[strings.ToLower(o.SubRegion)] {
			continue
		}
		if opts.Region != "" && !strings.EqualFold(opts.Region, o.Region) {
			continue
		}
		if !opts.From.IsZero() && o.Date.Before(opts.From) {
			continue
		}
		if !opts.To.IsZero() && o.Date.After(opts.To) {
			continue
		}
		price := o.Prices()[gradeIdx]
		if price == nil {
			continue
		}

		k := [2]string{o.Region, o.SubRegion}
		i, ok := index[k]
		if !ok {
			i = len(out)
			index[k] = i
			out = append(out, Series{Region: o.Region, SubRegion: o.SubRegion, Grade: grade})
		}
		out[i].Points = append(out[i].Points, Point{Date: o.Date, Price: *price})
	}

	for i := range out {
		slices.SortFunc(out[i].Points, func(a, b Point) int {
			return models.CompareDates(a.Date, b.Date)
		})
	}
	return out, nil
}

// WriteText renders series as an aligned table, one row per point.
func WriteText(w io.Writer, series []Series) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "REGION\tSUB-REGION\tGRADE\tDATE\tPRICE")
	for _, s := range series {
		for _, p := range s.Points {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", s.Region, s.SubRegion, s.Grade, p.Date, strconv.FormatFloat(p.Price, 'f', 3, 64))
		}
		if change, ok := s.Change(); ok {
			fmt.Fprintf(tw, "%s\t%s\t%s\tchange\t%+.3f\n", s.Region, s.SubRegion, s.Grade, change)
		}
	}
	return tw.Flush()
}

// WriteJSON renders series as a JSON array.
func WriteJSON(w io.Writer, series []Series) error {
	if series == nil {
		series = []Series{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(series)
}
