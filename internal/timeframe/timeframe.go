// Package timeframe models the inclusive UTC date ranges analytics queries run over.
package timeframe

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the storage and wire format of a calendar day.
const DateLayout = "2006-01-02"

// Supported dashboard windows, in days.
const (
	Window7Days   = 7
	Window30Days  = 30
	Window90Days  = 90
	Window365Days = 365

	DefaultWindowDays = Window30Days
)

// Windows lists the selectable dashboard windows in display order.
var Windows = []int{Window7Days, Window30Days, Window90Days, Window365Days}

// TimeProvider abstracts the clock so tests can pin "today".
type TimeProvider interface {
	Now() time.Time
}

// DefaultTimeProvider uses the system clock.
type DefaultTimeProvider struct{}

// Now returns the current UTC time.
func (DefaultTimeProvider) Now() time.Time {
	return time.Now().UTC()
}

// DateRange is an inclusive [Start, End] range of UTC calendar days.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// NewDateRange normalizes both ends to UTC midnight.
func NewDateRange(start, end time.Time) DateRange {
	return DateRange{Start: Day(start), End: Day(end)}
}

// LastDays returns the window of `days` calendar days ending on now's day.
func LastDays(now time.Time, days int) DateRange {
	if days < 1 {
		days = 1
	}
	end := Day(now)
	return DateRange{Start: end.AddDate(0, 0, -(days - 1)), End: end}
}

// ParseDateRange parses two YYYY-MM-DD strings.
func ParseDateRange(start, end string) (DateRange, error) {
	s, err := time.Parse(DateLayout, strings.TrimSpace(start))
	if err != nil {
		return DateRange{}, fmt.Errorf("invalid start date %q: %w", start, err)
	}
	e, err := time.Parse(DateLayout, strings.TrimSpace(end))
	if err != nil {
		return DateRange{}, fmt.Errorf("invalid end date %q: %w", end, err)
	}
	return NewDateRange(s, e), nil
}

// ParseWindow maps a `days` query value onto a supported window, falling back
// to DefaultWindowDays for anything unsupported.
func ParseWindow(raw string) int {
	days, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return DefaultWindowDays
	}
	for _, w := range Windows {
		if w == days {
			return days
		}
	}
	return DefaultWindowDays
}

// Day truncates t to UTC midnight.
func Day(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// Valid reports whether the range is non-empty.
func (r DateRange) Valid() bool {
	return !r.Start.IsZero() && !r.End.IsZero() && !r.End.Before(r.Start)
}

// From is the inclusive lower timestamp bound.
func (r DateRange) From() time.Time {
	return r.Start
}

// Until is the exclusive upper timestamp bound (midnight after End).
func (r DateRange) Until() time.Time {
	return r.End.AddDate(0, 0, 1)
}

// StartDate formats Start as YYYY-MM-DD.
func (r DateRange) StartDate() string {
	return r.Start.Format(DateLayout)
}

// EndDate formats End as YYYY-MM-DD.
func (r DateRange) EndDate() string {
	return r.End.Format(DateLayout)
}

// Days lists every day in the range in chronological order.
func (r DateRange) Days() []string {
	if !r.Valid() {
		return nil
	}
	var days []string
	for d := r.Start; !d.After(r.End); d = d.AddDate(0, 0, 1) {
		days = append(days, d.Format(DateLayout))
	}
	return days
}

func (r DateRange) String() string {
	return r.StartDate() + ".." + r.EndDate()
}
