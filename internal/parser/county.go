package parser

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
)

var (
	// ErrNoMapID is returned when a state page does not reference a county map.
	ErrNoMapID = errors.New("county map id not found")
	// ErrNoMapData is returned when the map script carries no county data.
	ErrNoMapData = errors.New("county map data not found")
)

var (
	mapIDPattern   = regexp.MustCompile(`map_id=(\d+)`)
	mapDataPattern = regexp.MustCompile(`(?s)map_data\s*:\s*(\{.*?\})\s*,\s*groups`)
)

// CountyPrice is one county entry of a state's county map.
type CountyPrice struct {
	County string
	// Price is the raw price text shown for the county.
	Price string
}

// MapID returns the id of the county map embedded in a state page.
func MapID(page []byte) (string, error) {
	m := mapIDPattern.FindSubmatch(page)
	if m == nil {
		return "", ErrNoMapID
	}
	return string(m[1]), nil
}

// CountyPrices extracts the county entries from a county map script. The
// script is JavaScript; only the map_data object literal is decoded.
// Entries are returned sorted by county name.
func CountyPrices(script []byte) ([]CountyPrice, error) {
	m := mapDataPattern.FindSubmatch(script)
	if m == nil {
		return nil, ErrNoMapData
	}

	var data map[string]struct {
		Name    string          `json:"name"`
		Comment json.RawMessage `json:"comment"`
	}
	if err := json.Unmarshal(m[1], &data); err != nil {
		return nil, fmt.Errorf("decoding county map data: %w", err)
	}

	prices := make([]CountyPrice, 0, len(data))
	for _, entry := range data {
		name := strings.TrimSpace(entry.Name)
		if name == "" {
			continue
		}
		prices = append(prices, CountyPrice{County: name, Price: commentText(entry.Comment)})
	}
	slices.SortFunc(prices, func(a, b CountyPrice) int {
		return cmp.Or(cmp.Compare(a.County, b.County), cmp.Compare(a.Price, b.Price))
	})
	return prices, nil
}

// commentText returns the comment as text. Numbers are kept as written;
// null and other shapes are empty.
func commentText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}
