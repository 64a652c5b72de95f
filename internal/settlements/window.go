package settlements

import (
	"fmt"
	"time"
)

// Window is the half-open settlement period [Start, End).
type Window struct {
	Year  int       `json:"year"`
	Month int       `json:"month"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// PeriodFor returns the window closing on the close day of year/month: from
// the previous month's close up to this one, both at midnight in loc. The
// window carries the year and month of its closing date.
func PeriodFor(year, month, closeDay int, loc *time.Location) (Window, error) {
	if month < 1 || month > 12 {
		return Window{}, fmt.Errorf("invalid month %d", month)
	}
	if year < 2000 || year > 9999 {
		return Window{}, fmt.Errorf("invalid year %d", year)
	}
	if closeDay < 1 || closeDay > 28 {
		return Window{}, fmt.Errorf("invalid close day %d", closeDay)
	}
	if loc == nil {
		loc = time.UTC
	}
	end := time.Date(year, time.Month(month), closeDay, 0, 0, 0, 0, loc)
	start := end.AddDate(0, -1, 0)
	return Window{Year: year, Month: month, Start: start, End: end}, nil
}

// LastClosed returns the most recent window that ended at or before now.
func LastClosed(now time.Time, closeDay int, loc *time.Location) (Window, error) {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	year, month := local.Year(), int(local.Month())
	if local.Day() < closeDay {
		month--
	}
	if month < 1 {
		month = 12
		year--
	}
	return PeriodFor(year, month, closeDay, loc)
}

// IsCloseDay reports whether now falls on the configured close day in loc.
func IsCloseDay(now time.Time, closeDay int, loc *time.Location) bool {
	if loc == nil {
		loc = time.UTC
	}
	return now.In(loc).Day() == closeDay
}
