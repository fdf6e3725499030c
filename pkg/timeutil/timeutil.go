// Package timeutil provides timezone utilities for the Brasília timezone
// (UTC-3) and the day/month/year date format used throughout the SGN portal.
// Brazil abolished DST in 2019, so the offset is constant year-round.
// No external dependencies - uses only standard library.
package timeutil

import (
	"fmt"
	"time"
)

// BrasiliaTZ is the Brasília timezone (UTC-3, no DST).
var BrasiliaTZ = time.FixedZone("America/Sao_Paulo", -3*60*60)

// Now returns the current time in Brasília timezone.
func Now() time.Time {
	return time.Now().In(BrasiliaTZ)
}

// ToBrasilia converts a time to Brasília timezone.
func ToBrasilia(t time.Time) time.Time {
	return t.In(BrasiliaTZ)
}

// Date creates a time in Brasília timezone with the given date.
func Date(year, month, day int) time.Time {
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, BrasiliaTZ)
}

// StartOfDay returns the start of the day (00:00:00) in Brasília timezone.
func StartOfDay(t time.Time) time.Time {
	b := ToBrasilia(t)
	return time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, BrasiliaTZ)
}

// EndOfDay returns the end of the day (23:59:59.999999999) in Brasília timezone.
func EndOfDay(t time.Time) time.Time {
	b := ToBrasilia(t)
	return time.Date(b.Year(), b.Month(), b.Day(), 23, 59, 59, 999999999, BrasiliaTZ)
}

// Common date/time formats.
const (
	// FormatBRDate is the Brazilian date format (DD/MM/YYYY) used by every
	// date field of the SGN portal.
	FormatBRDate = "02/01/2006"
	// FormatBRDateTime is the Brazilian datetime format.
	FormatBRDateTime = "02/01/2006 15:04"
	// FormatISODate is the ISO date format (YYYY-MM-DD).
	FormatISODate = "2006-01-02"
	// FormatDateTimeSeconds includes seconds.
	FormatDateTimeSeconds = "2006-01-02 15:04:05"
)

// FormatBR formats a time as DD/MM/YYYY in Brasília timezone.
func FormatBR(t time.Time) string {
	return ToBrasilia(t).Format(FormatBRDate)
}

// ParseBRDate parses a DD/MM/YYYY date string in Brasília timezone.
// The parse is strict: "31/02/2025" is rejected.
func ParseBRDate(value string) (time.Time, error) {
	t, err := time.ParseInLocation(FormatBRDate, value, BrasiliaTZ)
	if err != nil {
		return time.Time{}, fmt.Errorf("timeutil: invalid date %q (want DD/MM/YYYY): %w", value, err)
	}
	if t.Format(FormatBRDate) != value {
		return time.Time{}, fmt.Errorf("timeutil: invalid date %q (want DD/MM/YYYY)", value)
	}
	return t, nil
}

// ParseBRDateRange parses a start/end pair of DD/MM/YYYY strings and checks
// that start <= end.
func ParseBRDateRange(start, end string) (time.Time, time.Time, error) {
	s, err := ParseBRDate(start)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	e, err := ParseBRDate(end)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if s.After(e) {
		return time.Time{}, time.Time{}, fmt.Errorf("timeutil: start date %s after end date %s", start, end)
	}
	return s, e, nil
}

// IsSameDay checks if two times are on the same day in Brasília timezone.
func IsSameDay(t1, t2 time.Time) bool {
	b1, b2 := ToBrasilia(t1), ToBrasilia(t2)
	return b1.Year() == b2.Year() && b1.YearDay() == b2.YearDay()
}

// DaysBetween calculates the number of days between two times.
func DaysBetween(t1, t2 time.Time) int {
	d1 := StartOfDay(t1)
	d2 := StartOfDay(t2)
	days := int(d2.Sub(d1).Hours() / 24)
	if days < 0 {
		days = -days
	}
	return days
}
