// Package store persists the historical price series as a CSV file.
//
// The file is read and written wholesale. Writes go to a temporary file in
// the same directory which is then renamed over the target, so readers see
// either the previous or the new content and never a partial file.
package store

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"cloud.google.com/go/civil"

	"github.com/andygrunwald/gas-price-scraper/internal/models"
	"github.com/andygrunwald/gas-price-scraper/internal/normalize"
)

const (
	// MasterFile is the merged historical series.
	MasterFile = "MasterMergedGas.csv"
	// CountyMasterFile is the merged county-level series.
	CountyMasterFile = "MasterCountyGas.csv"
	// cycleDir holds one file per scrape cycle.
	cycleDir = "cycles"
)

// Header is the fixed column order of every file written by this package.
var Header = []string{"Region", "SubRegion", "Date", "Regular", "MidGrade", "Premium", "Diesel"}

// headerAliases maps column names used by older files to Header names.
var headerAliases = map[string]string{
	"region":    "Region",
	"state":     "Region",
	"subregion": "SubRegion",
	"city":      "SubRegion",
	"date":      "Date",
	"regular":   "Regular",
	"midgrade":  "MidGrade",
	"mid-grade": "MidGrade",
	"mid":       "MidGrade",
	"premium":   "Premium",
	"diesel":    "Diesel",
}

// Store manages the files below an output directory.
type Store struct {
	dir         string
	master      string
	cyclePrefix string
}

// New creates a Store for the sub-region series rooted at dir, creating the
// directory if needed.
func New(dir string) (*Store, error) {
	return newStore(dir, MasterFile, "LiveScrape")
}

// NewCounty creates a Store for the county series rooted at dir. It shares
// the directory layout of New but uses its own file names.
func NewCounty(dir string) (*Store, error) {
	return newStore(dir, CountyMasterFile, "CountyGas")
}

func newStore(dir, master, cyclePrefix string) (*Store, error) {
	if strings.HasPrefix(dir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dir = filepath.Join(home, dir[2:])
	}

	if err := os.MkdirAll(filepath.Join(dir, cycleDir), 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	return &Store{dir: dir, master: master, cyclePrefix: cyclePrefix}, nil
}

// MasterPath returns the path of the historical store file.
func (s *Store) MasterPath() string {
	return filepath.Join(s.dir, s.master)
}

// CyclePath returns the path of the per-cycle file for the given anchor date.
func (s *Store) CyclePath(date civil.Date) string {
	return filepath.Join(s.dir, cycleDir, fmt.Sprintf("%s-%s.csv", s.cyclePrefix, date))
}

// Load reads the historical store. A missing file is an empty store.
func (s *Store) Load() (models.Store, error) {
	return ReadFile(s.MasterPath())
}

// Save atomically replaces the historical store.
func (s *Store) Save(data models.Store) error {
	return WriteFile(s.MasterPath(), data)
}

// LoadCycle reads the per-cycle file for date. A missing file is empty.
func (s *Store) LoadCycle(date civil.Date) (models.Store, error) {
	return ReadFile(s.CyclePath(date))
}

// SaveCycle replaces the per-cycle file for date.
func (s *Store) SaveCycle(date civil.Date, data []models.PriceObservation) (string, error) {
	path := s.CyclePath(date)
	if err := WriteFile(path, data); err != nil {
		return "", err
	}
	return path, nil
}

// HasCycle reports whether a per-cycle file exists for date.
func (s *Store) HasCycle(date civil.Date) bool {
	_, err := os.Stat(s.CyclePath(date))
	return err == nil
}

// ReadFile reads observations from path. A missing file yields an empty
// result. A date cell that is not an ISO date is loaded as the zero date so
// that merge validation rejects the store instead of the loader guessing.
func ReadFile(path string) (models.Store, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return models.Store{}, nil
		}
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	data, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}

// Read decodes observations from CSV. The header row selects the columns,
// so files written with older column names or order are accepted.
func Read(r io.Reader) (models.Store, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return models.Store{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	cols, err := columnIndex(header)
	if err != nil {
		return nil, err
	}

	data := models.Store{}
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		obs, err := decode(rec, cols)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		data = append(data, obs)
	}
	return data, nil
}

func columnIndex(header []string) (map[string]int, error) {
	cols := make(map[string]int, len(Header))
	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if canonical, ok := headerAliases[key]; ok {
			if _, dup := cols[canonical]; !dup {
				cols[canonical] = i
			}
		}
	}
	for _, name := range Header {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("missing column %q in header %v", name, header)
		}
	}
	return cols, nil
}

func decode(rec []string, cols map[string]int) (models.PriceObservation, error) {
	field := func(name string) string {
		if i := cols[name]; i < len(rec) {
			return strings.TrimSpace(rec[i])
		}
		return ""
	}

	obs := models.PriceObservation{
		Region:    field("Region"),
		SubRegion: field("SubRegion"),
		Date:      parseDate(field("Date")),
	}

	var prices [4]*float64
	for i, name := range Header[3:] {
		p, err := normalize.ParsePrice(field(name))
		if err != nil {
			return models.PriceObservation{}, fmt.Errorf("column %s: %w", name, err)
		}
		prices[i] = p
	}
	obs.Regular, obs.MidGrade, obs.Premium, obs.Diesel = prices[0], prices[1], prices[2], prices[3]

	return obs, nil
}

// parseDate accepts "2006-01-02", optionally followed by a midnight time as
// written by some older tools. Anything else yields the zero date.
func parseDate(s string) civil.Date {
	s = strings.TrimSuffix(s, " 00:00:00")
	d, err := civil.ParseDate(s)
	if err != nil {
		return civil.Date{}
	}
	return d
}

// WriteFile atomically writes observations to path.
func WriteFile(path string, data []models.PriceObservation) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temporary file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once renamed

	if err := Write(tmp, data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}

// Write encodes observations as CSV with the fixed Header.
func Write(w io.Writer, data []models.PriceObservation) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	rec := make([]string, len(Header))
	for _, obs := range data {
		rec[0] = obs.Region
		rec[1] = obs.SubRegion
		rec[2] = obs.Date.String()
		for i, p := range obs.Prices() {
			rec[3+i] = formatPrice(p)
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("writing row: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flushing CSV: %w", err)
	}
	return nil
}

func formatPrice(p *float64) string {
	if p == nil {
		return ""
	}
	return strconv.FormatFloat(*p, 'f', -1, 64)
}
