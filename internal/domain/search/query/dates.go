package query

import (
	"strings"
	"time"
)

// parseDate reads a loosely formatted date. Non-digits are dropped first, then the digits are
// read as a full date (YYYYMMDD, or YYYYMMDDhhmmss) and failing that as bare numeric tokens
// (YYYY or YYYYMM). A lower bound floors to the start of the period; an upper bound (ceil)
// moves to the last second of the day, month or year that was given.
func (b *Builder) parseDate(raw string, ceil bool) (time.Time, bool) {
	digits := onlyDigits(Normalize(raw))
	if digits == "" {
		return time.Time{}, false
	}

	if t, ok := b.parseFullDate(digits); ok {
		start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, b.loc)
		if ceil {
			return start.AddDate(0, 0, 1).Add(-time.Second), true
		}
		return start, true
	}

	start, end, ok := b.parseNumericTokens(digits)
	if !ok {
		return time.Time{}, false
	}
	if ceil {
		return end, true
	}
	return start, true
}

func (b *Builder) parseFullDate(digits string) (time.Time, bool) {
	var layout string
	switch len(digits) {
	case len("20060102"):
		layout = "20060102"
	case len("20060102150405"):
		layout = "20060102150405"
	default:
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(layout, digits, b.loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// parseNumericTokens reads a bare year (1-4 digits) or year+month (6 digits) and returns the
// first and last second of that period.
func (b *Builder) parseNumericTokens(digits string) (time.Time, time.Time, bool) {
	switch {
	case len(digits) <= 4:
		year := leadingInt(digits)
		if year <= 0 {
			return time.Time{}, time.Time{}, false
		}
		start := time.Date(year, time.January, 1, 0, 0, 0, 0, b.loc)
		return start, start.AddDate(1, 0, 0).Add(-time.Second), true
	case len(digits) == 6:
		t, err := time.ParseInLocation("200601", digits, b.loc)
		if err != nil {
			return time.Time{}, time.Time{}, false
		}
		return t, t.AddDate(0, 1, 0).Add(-time.Second), true
	default:
		return time.Time{}, time.Time{}, false
	}
}

func onlyDigits(s string) string {
	var sb strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// formatBound renders a time as an ISO 8601 UTC range bound.
func formatBound(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// Period returns the first and last second of the day, month or year written in raw,
// read the same way as the pub_date filters.
func (b *Builder) Period(raw string) (time.Time, time.Time, bool) {
	from, ok := b.parseDate(raw, false)
	if !ok {
		return time.Time{}, time.Time{}, false
	}
	until, _ := b.parseDate(raw, true)
	return from.UTC(), until.UTC(), true
}
