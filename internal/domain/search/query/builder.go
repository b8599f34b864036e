// Package query turns free text and structured filter parameters into clause sets.
// Bad filter input never fails a build: it degrades to an absent or unbounded clause.
package query

import (
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/width"

	"github.com/kailas-cloud/libcat/internal/domain/search/clause"
	"github.com/kailas-cloud/libcat/internal/domain/search/field"
	"github.com/kailas-cloud/libcat/internal/domain/search/mode"
	"github.com/kailas-cloud/libcat/internal/domain/search/request"
)

// DegradeFunc is notified when a filter value could not be interpreted.
type DegradeFunc func(param, raw string)

// Builder builds the scored part of a listing query.
type Builder struct {
	loc       *time.Location
	onDegrade DegradeFunc
}

// NewBuilder creates a Builder. Dates are interpreted in loc (UTC when nil).
func NewBuilder(loc *time.Location) *Builder {
	if loc == nil {
		loc = time.UTC
	}
	return &Builder{loc: loc}
}

// OnDegrade registers a hook for degraded filter input.
func (b *Builder) OnDegrade(fn DegradeFunc) *Builder {
	b.onDegrade = fn
	return b
}

// Build translates free text plus filters into an ordered clause set.
func (b *Builder) Build(raw string, f request.Filters, m mode.Mode) clause.Set {
	var set clause.Set

	if text := Normalize(raw); text != "" {
		if utf8.RuneCountInString(text) == 1 {
			set = append(set, clause.NewPrefix("", text))
		} else {
			set = append(set, clause.NewText("", text))
		}
	}

	if m == mode.Recent {
		set = append(set, clause.NewRange(field.CreatedAt, "NOW-1MONTH", "NOW"))
	}

	set = appendEquality(set, field.Tag, f.Tag)
	set = appendText(set, field.Creator, f.Creator)
	set = appendText(set, field.Contributor, f.Contributor)
	set = appendEquality(set, field.ISBN, stripHyphens(f.ISBN))
	set = appendEquality(set, field.ISDN, stripHyphens(f.ISDN))
	set = appendEquality(set, field.ISSN, stripHyphens(f.ISSN))
	set = appendEquality(set, field.LCCN, f.LCCN)
	set = appendEquality(set, field.NBN, f.NBN)
	set = appendText(set, field.Publisher, f.Publisher)
	set = appendEquality(set, field.ItemIdentifier, f.ItemIdentifier)

	if c, ok := b.pagesRange(f.NumberOfPagesAtLeast, f.NumberOfPagesAtMost); ok {
		set = append(set, c)
	}
	if c, ok := b.dateRange(field.PubDate, "pub_date", f.PubDateFrom, f.PubDateTo); ok {
		set = append(set, c)
	}
	if c, ok := b.dateRange(field.AcquiredAt, "acquired", f.AcquiredFrom, f.AcquiredTo); ok {
		set = append(set, c)
	}

	return collapse(set)
}

// Normalize trims free text and folds full-width forms, including the ideographic space.
func Normalize(raw string) string {
	s := width.Fold.String(raw)
	s = strings.ReplaceAll(s, "\u3000", " ")
	return strings.TrimSpace(s)
}

// collapse drops a set made only of [* TO *] ranges so a blank filter form does not list everything.
func collapse(set clause.Set) clause.Set {
	for _, c := range set {
		if !c.IsOpenRange() {
			return set
		}
	}
	return nil
}

func appendEquality(set clause.Set, name, value string) clause.Set {
	value = strings.TrimSpace(value)
	if value == "" {
		return set
	}
	return append(set, clause.NewEquality(name, value))
}

func appendText(set clause.Set, name, value string) clause.Set {
	value = Normalize(value)
	if value == "" {
		return set
	}
	return append(set, clause.NewText(name, value))
}

func stripHyphens(s string) string {
	return strings.ReplaceAll(s, "-", "")
}

// pagesRange builds number_of_pages:[least TO most]. Zero, negative or non-numeric sides are open.
func (b *Builder) pagesRange(least, most string) (clause.Clause, bool) {
	least, most = strings.TrimSpace(least), strings.TrimSpace(most)
	if least == "" && most == "" {
		return clause.Clause{}, false
	}
	return clause.NewRange(field.NumberOfPages,
		b.pageBound("number_of_pages_at_least", least),
		b.pageBound("number_of_pages_at_most", most),
	), true
}

func (b *Builder) pageBound(param, raw string) string {
	n := leadingInt(raw)
	if n <= 0 {
		if raw != "" && raw != "0" {
			b.degrade(param, raw)
		}
		return clause.Open
	}
	return strconv.Itoa(n)
}

// leadingInt parses the leading decimal digits of s, returning 0 when there are none.
func leadingInt(s string) int {
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0
	}
	return n
}

func (b *Builder) dateRange(name, param, from, to string) (clause.Clause, bool) {
	if strings.TrimSpace(from) == "" && strings.TrimSpace(to) == "" {
		return clause.Clause{}, false
	}
	lower, upper := clause.Open, clause.Open
	if t, ok := b.parseDate(from, false); ok {
		lower = formatBound(t)
	} else if strings.TrimSpace(from) != "" {
		b.degrade(param+"_from", from)
	}
	if t, ok := b.parseDate(to, true); ok {
		upper = formatBound(t)
	} else if strings.TrimSpace(to) != "" {
		b.degrade(param+"_to", to)
	}
	return clause.NewRange(name, lower, upper), true
}

func (b *Builder) degrade(param, raw string) {
	if b.onDegrade != nil {
		b.onDegrade(param, raw)
	}
}

// SplitTokens splits a multi-valued facet parameter on whitespace and removes duplicates, keeping order.
func SplitTokens(s string) []string {
	fields := strings.FieldsFunc(Normalize(s), unicode.IsSpace)
	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}
