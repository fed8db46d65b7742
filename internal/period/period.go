// Package period computes the 7-day tracking windows. Dates are local
// calendar dates throughout; a key like "2025-03-10" always means local
// midnight and is never shifted through UTC.
package period

import (
	"fmt"
	"strings"
	"time"

	"github.com/sadopc/tally/internal/clock"
)

// Length is the number of days in a period.
const Length = 7

// Weekday is the configured first day of a period.
type Weekday string

const (
	Sunday Weekday = "Sunday"
	Monday Weekday = "Monday"
)

// DefaultWeekday is used when no preference is stored.
const DefaultWeekday = Sunday

// ParseWeekday accepts "Sunday" or "Monday" in any case.
func ParseWeekday(s string) (Weekday, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sunday", "sun":
		return Sunday, nil
	case "monday", "mon":
		return Monday, nil
	}
	return "", fmt.Errorf("invalid week start %q: must be Sunday or Monday", s)
}

// WeekdayOrDefault parses s and falls back to DefaultWeekday.
func WeekdayOrDefault(s string) Weekday {
	w, err := ParseWeekday(s)
	if err != nil {
		return DefaultWeekday
	}
	return w
}

func (w Weekday) time() time.Weekday {
	if w == Monday {
		return time.Monday
	}
	return time.Sunday
}

// ParseKey parses a YYYY-MM-DD key as local midnight.
func ParseKey(key string) (time.Time, error) {
	t, err := time.ParseInLocation(clock.DateKeyLayout, key, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date key %q: %w", key, err)
	}
	return t, nil
}

// FormatKey renders t's local calendar date.
func FormatKey(t time.Time) string {
	return t.In(time.Local).Format(clock.DateKeyLayout)
}

// AddDays shifts a date key by n calendar days.
func AddDays(key string, n int) (string, error) {
	t, err := ParseKey(key)
	if err != nil {
		return "", err
	}
	return FormatKey(t.AddDate(0, 0, n)), nil
}

// StartOf returns the most recent occurrence of w on or before t.
func StartOf(t time.Time, w Weekday) time.Time {
	t = t.In(time.Local)
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.Local)
	back := (int(day.Weekday()) - int(w.time()) + Length) % Length
	return day.AddDate(0, 0, -back)
}

// Start returns the period start key for a date key.
func Start(date string, w Weekday) (string, error) {
	t, err := ParseKey(date)
	if err != nil {
		return "", err
	}
	return FormatKey(StartOf(t, w)), nil
}

// End returns start + 6 days.
func End(start string) (string, error) {
	return AddDays(start, Length-1)
}

// Days lists the seven day keys of the period beginning at start.
func Days(start string) ([]string, error) {
	t, err := ParseKey(start)
	if err != nil {
		return nil, err
	}
	days := make([]string, Length)
	for i := range days {
		days[i] = FormatKey(t.AddDate(0, 0, i))
	}
	return days, nil
}

// Contains reports whether day falls inside the period beginning at start.
// Keys compare lexically because the layout is zero-padded.
func Contains(start, day string) bool {
	end, err := End(start)
	if err != nil {
		return false
	}
	return day >= start && day <= end
}

// Current returns the period start key containing c's today.
func Current(c clock.Clock, w Weekday) string {
	return FormatKey(StartOf(c.Now(), w))
}
