// Package regions loads the list of regions to scrape from a State,Abbreviation reference CSV.
package regions

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/andygrunwald/gas-price-scraper/internal/models"
)

// DefaultSource is the public list of US states and their postal abbreviations.
const DefaultSource = "https://raw.githubusercontent.com/jasonong/List-of-US-States/master/states.csv"

// ErrNoRegions is returned when a reference yields no usable region.
var ErrNoRegions = errors.New("no regions")

// Load reads the region reference from source, which is either an http(s)
// URL or a local file path.
func Load(ctx context.Context, source string) ([]models.Region, error) {
	if source == "" {
		source = DefaultSource
	}

	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return fetch(ctx, source)
	}

	f, err := os.Open(source)
	if err != nil {
		return nil, fmt.Errorf("opening region reference: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

func fetch(ctx context.Context, url string) ([]models.Region, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching region reference: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching region reference: unexpected status code %d", resp.StatusCode)
	}
	return Parse(resp.Body)
}

// Parse decodes a CSV with State and Abbreviation columns. Column order is
// taken from the header. Duplicate abbreviations keep their first entry.
func Parse(r io.Reader) ([]models.Region, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if err == io.EOF {
			return nil, ErrNoRegions
		}
		return nil, fmt.Errorf("reading header: %w", err)
	}

	nameCol, abbrCol := -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))) {
		case "state", "name":
			nameCol = i
		case "abbreviation", "abbr", "code":
			abbrCol = i
		}
	}
	if nameCol < 0 || abbrCol < 0 {
		return nil, fmt.Errorf("header %q: missing State or Abbreviation column", header)
	}

	var (
		out  []models.Region
		seen = make(map[string]bool)
	)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading region reference: %w", err)
		}
		if len(rec) <= max(nameCol, abbrCol) {
			continue
		}

		abbr := strings.ToUpper(strings.TrimSpace(rec[abbrCol]))
		name := strings.TrimSpace(rec[nameCol])
		if abbr == "" || seen[abbr] {
			continue
		}
		seen[abbr] = true

		out = append(out, models.Region{ID: abbr, Name: name, LocationKey: abbr})
	}

	if len(out) == 0 {
		return nil, ErrNoRegions
	}
	return out, nil
}

// Filter returns the regions whose ID is in ids, keeping reference order.
// An empty ids returns all regions. Unknown IDs are an error.
func Filter(all []models.Region, ids []string) ([]models.Region, error) {
	if len(ids) == 0 {
		return all, nil
	}

	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		id = strings.ToUpper(strings.TrimSpace(id))
		if id != "" {
			want[id] = true
		}
	}

	var out []models.Region
	for _, r := range all {
		if want[r.ID] {
			out = append(out, r)
			delete(want, r.ID)
		}
	}

	if len(want) > 0 {
		unknown := make([]string, 0, len(want))
		for id := range want {
			unknown = append(unknown, id)
		}
		slices.Sort(unknown)
		return nil, fmt.Errorf("unknown regions: %s", strings.Join(unknown, ", "))
	}
	return out, nil
}

// Resolver maps either a region's name or its ID to the ID, case-insensitively.
// It returns "" for unknown input.
func Resolver(all []models.Region) func(string) string {
	index := make(map[string]string, len(all)*2)
	for _, r := range all {
		index[strings.ToLower(r.ID)] = r.ID
		index[strings.ToLower(r.Name)] = r.ID
	}
	return func(s string) string {
		return index[strings.ToLower(strings.TrimSpace(s))]
	}
}
