// Package timelabel resolves the relative time labels used by the price tables
// ("Current Avg.", "Week Ago Avg.", ...) into calendar dates.
package timelabel

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

// Labels as they appear in the first column of a price table.
const (
	Current   = "Current Avg."
	Yesterday = "Yesterday Avg."
	WeekAgo   = "Week Ago Avg."
	MonthAgo  = "Month Ago Avg."
	YearAgo   = "Year Ago Avg."
)

// ErrUnknownTimeLabel is matched by every error returned for a label outside
// the known set.
var ErrUnknownTimeLabel = errors.New("unknown time label")

// UnknownLabelError carries the label that could not be resolved.
type UnknownLabelError struct {
	Label string
}

func (e *UnknownLabelError) Error() string {
	return fmt.Sprintf("unknown time label %q", e.Label)
}

// Is reports whether target is ErrUnknownTimeLabel.
func (e *UnknownLabelError) Is(target error) bool {
	return target == ErrUnknownTimeLabel
}

type offset struct {
	days, months, years int
}

var offsets = map[string]offset{
	Current:   {},
	Yesterday: {days: -1},
	WeekAgo:   {days: -7},
	MonthAgo:  {months: -1},
	YearAgo:   {years: -1},
}

// Resolve maps label to a calendar date relative to the anchor's calendar
// date (taken in the anchor's location). Month and year offsets use calendar
// arithmetic and clamp the day to the length of the target month.
func Resolve(anchor time.Time, label string) (civil.Date, error) {
	off, ok := offsets[strings.TrimSpace(label)]
	if !ok {
		return civil.Date{}, &UnknownLabelError{Label: label}
	}

	d := civil.DateOf(anchor)
	if off.months != 0 || off.years != 0 {
		d = addMonthsClamped(d, off.years*12+off.months)
	}
	return d.AddDays(off.days), nil
}

// addMonthsClamped moves d by n months, keeping the day of month where
// possible and otherwise using the last day of the target month.
func addMonthsClamped(d civil.Date, n int) civil.Date {
	total := d.Year*12 + int(d.Month) - 1 + n
	year, month := total/12, time.Month(total%12+1)
	day := d.Day
	if last := daysIn(year, month); day > last {
		day = last
	}
	return civil.Date{Year: year, Month: month, Day: day}
}

func daysIn(year int, month time.Month) int {
	// Day 0 of the following month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
