package enrollment

import (
	"fmt"
	"time"
)

// DateLayout is the wire and document layout for coverage dates.
const DateLayout = "2006-01-02"

// Day returns midnight UTC for the given calendar date.
func Day(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a coverage date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// FormatDate formats a coverage date.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// NextDay returns the calendar day after t.
func NextDay(t time.Time) time.Time {
	return t.AddDate(0, 0, 1)
}

// PrevDay returns the calendar day before t.
func PrevDay(t time.Time) time.Time {
	return t.AddDate(0, 0, -1)
}

// SameDay reports whether a and b fall on the same calendar date.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// IsYearEnd reports whether t is December 31.
func IsYearEnd(t time.Time) bool {
	return t.Month() == time.December && t.Day() == 31
}

// IsYearStart reports whether t is January 1.
func IsYearStart(t time.Time) bool {
	return t.Month() == time.January && t.Day() == 1
}

// YearEnd returns December 31 of year.
func YearEnd(year int) time.Time {
	return Day(year, time.December, 31)
}

// Ptr returns a pointer to t, for optional end dates.
func Ptr(t time.Time) *time.Time {
	return &t
}

// SameEnd compares optional end dates; two open ends are equal.
func SameEnd(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return SameDay(*a, *b)
}
