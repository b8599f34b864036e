package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/libcat/internal/db"
	"github.com/kailas-cloud/libcat/internal/domain/search/clause"
	"github.com/kailas-cloud/libcat/internal/domain/search/field"
)

// Search runs a sorted, paginated FT.SEARCH and returns the matching keys in order.
func (s *Store) Search(ctx context.Context, q *db.SearchQuery) (*db.SearchResult, error) {
	if q.IndexName == "" {
		return nil, fmt.Errorf("index name is required")
	}
	if q.Offset < 0 || q.Limit < 0 {
		return nil, fmt.Errorf("offset and limit must not be negative")
	}

	args := []string{q.IndexName, buildQuery(q.Clauses, anchor(q.Now)), "NOCONTENT"}
	if q.SortBy != "" {
		dir := "ASC"
		if q.Desc {
			dir = "DESC"
		}
		args = append(args, "SORTBY", q.SortBy, dir)
	}
	args = append(args,
		"LIMIT", strconv.Itoa(q.Offset), strconv.Itoa(q.Limit),
		"DIALECT", "2",
	)

	cmd := s.b().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		return nil, &db.Error{Op: db.OpSearch, Err: err}
	}

	return parseKeysResult(raw)
}

// Aggregate counts matching documents per value of a TAG field, most frequent first.
// Multi-valued tags are split so each value is counted on its own.
func (s *Store) Aggregate(ctx context.Context, q *db.AggregateQuery) ([]db.Bucket, error) {
	if q.IndexName == "" {
		return nil, fmt.Errorf("index name is required")
	}
	if q.Field == "" {
		return nil, fmt.Errorf("field is required")
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}

	args := []string{
		q.IndexName, buildQuery(q.Clauses, anchor(q.Now)),
		"LOAD", "1", "@" + q.Field,
		"APPLY", "split(@" + q.Field + ")", "AS", "value",
		"GROUPBY", "1", "@value",
		"REDUCE", "COUNT", "0", "AS", "count",
		"SORTBY", "2", "@count", "DESC",
		"MAX", strconv.Itoa(limit),
		"DIALECT", "2",
	}

	cmd := s.b().Arbitrary("FT.AGGREGATE").Args(args...).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		return nil, &db.Error{Op: db.OpAggregate, Err: err}
	}

	return parseAggregateResult(raw)
}

func anchor(now time.Time) time.Time {
	if now.IsZero() {
		return time.Now()
	}
	return now
}

// --- Result parsing ---

func parseKeysResult(raw []rueidis.RedisMessage) (*db.SearchResult, error) {
	if len(raw) == 0 {
		return &db.SearchResult{}, nil
	}

	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}

	keys := make([]string, 0, len(raw)-1)
	// NOCONTENT: [total, key1, key2, ...]
	for _, m := range raw[1:] {
		key, err := m.ToString()
		if err != nil {
			continue
		}
		keys = append(keys, key)
	}

	return &db.SearchResult{Total: int(total), Keys: keys}, nil
}

func parseAggregateResult(raw []rueidis.RedisMessage) ([]db.Bucket, error) {
	if len(raw) <= 1 {
		return nil, nil
	}

	buckets := make([]db.Bucket, 0, len(raw)-1)
	// [groups, [value, v1, count, c1], [value, v2, count, c2], ...]
	for _, row := range raw[1:] {
		pairs, err := row.ToArray()
		if err != nil {
			continue
		}
		m := parseFieldPairs(pairs)
		value, ok := m["value"]
		if !ok || value == "" {
			continue
		}
		count, err := strconv.Atoi(m["count"])
		if err != nil {
			return nil, fmt.Errorf("parse count for %q: %w", value, err)
		}
		buckets = append(buckets, db.Bucket{Value: value, Count: count})
	}
	return buckets, nil
}

func parseFieldPairs(fields []rueidis.RedisMessage) map[string]string {
	m := make(map[string]string, len(fields)/2)
	for j := 0; j+1 < len(fields); j += 2 {
		name, err := fields[j].ToString()
		if err != nil {
			continue
		}
		value, err := fields[j+1].ToString()
		if err != nil {
			continue
		}
		m[name] = value
	}
	return m
}

// --- Query building ---

// buildQuery translates a clause set into an FT.SEARCH query string.
// Dates are indexed as NUMERIC unix seconds, booleans and keywords as TAG.
func buildQuery(set clause.Set, now time.Time) string {
	parts := make([]string, 0, len(set))
	for _, c := range set {
		if p := buildClause(c, now); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return "*"
	}
	return strings.Join(parts, " ")
}

func buildClause(c clause.Clause, now time.Time) string {
	if c.IsNegated() {
		if inner := buildClause(clause.Not(c), now); inner != "" {
			return "-(" + inner + ")"
		}
		return ""
	}
	switch c.Kind() {
	case clause.Any, clause.All:
		return buildGroup(c, now)
	case clause.Equality:
		return buildEquality(c.Field(), c.Value())
	case clause.Range:
		return buildRange(c, now)
	default:
		return buildText(c.Field(), c.Value(), c.IsPrefix())
	}
}

// buildGroup joins children with "|" for Any and a space for All.
// Children that render to nothing are skipped.
func buildGroup(c clause.Clause, now time.Time) string {
	parts := make([]string, 0, len(c.Children()))
	for _, ch := range c.Children() {
		if p := buildClause(ch, now); p != "" {
			parts = append(parts, p)
		}
	}
	switch {
	case len(parts) == 0:
		return ""
	case len(parts) == 1:
		return parts[0]
	case c.Kind() == clause.Any:
		return "(" + strings.Join(parts, " | ") + ")"
	default:
		return "(" + strings.Join(parts, " ") + ")"
	}
}

func buildText(name, value string, prefix bool) string {
	terms := strings.Fields(value)
	if len(terms) == 0 {
		return ""
	}
	for i, t := range terms {
		terms[i] = escapeQuery(t)
	}
	if prefix {
		terms[len(terms)-1] += "*"
	}
	expr := "(" + strings.Join(terms, " ") + ")"
	if name == "" {
		return expr
	}
	return "@" + name + ":" + expr
}

func buildEquality(name, value string) string {
	switch field.TypeOf(name) {
	case field.Keyword, field.Bool:
		return buildTagFilter(name, value)
	case field.Integer:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return ""
		}
		return fmt.Sprintf("@%s:[%d %d]", name, n, n)
	case field.Date:
		t, err := time.Parse(time.RFC3339, value)
		if err != nil {
			return ""
		}
		return fmt.Sprintf("@%s:[%d %d]", name, t.Unix(), t.Unix())
	default:
		return buildText(name, value, false)
	}
}

// buildRange renders NUMERIC ranges. Ranges over other field types, and ranges open on both
// sides, impose no constraint.
func buildRange(c clause.Clause, now time.Time) string {
	minBound, maxBound := "-inf", "+inf"
	switch field.TypeOf(c.Field()) {
	case field.Integer:
		if n, ok := clause.ResolveInt(c.Lower()); ok {
			minBound = strconv.FormatInt(n, 10)
		}
		if n, ok := clause.ResolveInt(c.Upper()); ok {
			maxBound = strconv.FormatInt(n, 10)
		}
	case field.Date:
		if t, ok := clause.ResolveTime(c.Lower(), now); ok {
			minBound = strconv.FormatInt(t.Unix(), 10)
		}
		if t, ok := clause.ResolveTime(c.Upper(), now); ok {
			maxBound = strconv.FormatInt(t.Unix(), 10)
		}
	default:
		return ""
	}
	if minBound == "-inf" && maxBound == "+inf" {
		return ""
	}
	return fmt.Sprintf("@%s:[%s %s]", c.Field(), minBound, maxBound)
}

func buildTagFilter(key, value string) string {
	escaped := tagEscaper.Replace(value)
	return fmt.Sprintf("@%s:{%s}", key, escaped)
}

// --- Query helpers ---

var tagEscaper = strings.NewReplacer(
	",", "\\,",
	".", "\\.",
	"<", "\\<",
	">", "\\>",
	"{", "\\{",
	"}", "\\}",
	"\"", "\\\"",
	"'", "\\'",
	":", "\\:",
	";", "\\;",
	"!", "\\!",
	"@", "\\@",
	"#", "\\#",
	"$", "\\$",
	"%", "\\%",
	"^", "\\^",
	"&", "\\&",
	"*", "\\*",
	"(", "\\(",
	")", "\\)",
	"-", "\\-",
	"+", "\\+",
	"=", "\\=",
	"~", "\\~",
	"|", "\\|",
	"/", "\\/",
	" ", "\\ ",
)

func escapeQuery(s string) string {
	return queryEscaper.Replace(s)
}

var queryEscaper = strings.NewReplacer(
	`\`, `\\`,
	`'`, `\'`,
	`"`, `\"`,
	`@`, `\@`,
	`{`, `\{`,
	`}`, `\}`,
	`(`, `\(`,
	`)`, `\)`,
	`|`, `\|`,
	`-`, `\-`,
	`~`, `\~`,
	`*`, `\*`,
	`[`, `\[`,
	`]`, `\]`,
	`!`, `\!`,
	`%`, `\%`,
	`^`, `\^`,
	`$`, `\$`,
	`<`, `\<`,
	`>`, `\>`,
	`=`, `\=`,
	`;`, `\;`,
	`+`, `\+`,
	`:`, `\:`,
	`.`, `\.`,
	`,`, `\,`,
)
