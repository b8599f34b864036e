package clause

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var dateMathStep = regexp.MustCompile(`^([+-])(\d+)(YEARS?|MONTHS?|DAYS?|HOURS?|MINUTES?)`)

// ResolveTime turns a range bound into an absolute time.
// Accepts RFC 3339 timestamps and Solr-style date math anchored at NOW
// (e.g. "NOW-1MONTH"). Returns false for open or unrecognized bounds.
func ResolveTime(bound string, now time.Time) (time.Time, bool) {
	if bound == "" || bound == Open {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, bound); err == nil {
		return t.UTC(), true
	}
	if !strings.HasPrefix(bound, "NOW") {
		return time.Time{}, false
	}
	t := now.UTC()
	rest := bound[len("NOW"):]
	for rest != "" {
		m := dateMathStep.FindStringSubmatch(rest)
		if m == nil {
			return time.Time{}, false
		}
		n, err := strconv.Atoi(m[2])
		if err != nil {
			return time.Time{}, false
		}
		if m[1] == "-" {
			n = -n
		}
		switch strings.TrimSuffix(m[3], "S") {
		case "YEAR":
			t = t.AddDate(n, 0, 0)
		case "MONTH":
			t = t.AddDate(0, n, 0)
		case "DAY":
			t = t.AddDate(0, 0, n)
		case "HOUR":
			t = t.Add(time.Duration(n) * time.Hour)
		case "MINUTE":
			t = t.Add(time.Duration(n) * time.Minute)
		}
		rest = rest[len(m[0]):]
	}
	return t, true
}

// ResolveInt turns a range bound into an integer. Returns false for open or non-numeric bounds.
func ResolveInt(bound string) (int64, bool) {
	if bound == "" || bound == Open {
		return 0, false
	}
	n, err := strconv.ParseInt(bound, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
