// Package index defines the contract of the full-text index that serves catalog listings.
// Backends live in subpackages and translate clause sets to their own query languages.
package index

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/kailas-cloud/libcat/internal/domain"
	"github.com/kailas-cloud/libcat/internal/domain/search/clause"
	"github.com/kailas-cloud/libcat/internal/domain/search/field"
	"github.com/kailas-cloud/libcat/internal/domain/search/request"
	"github.com/kailas-cloud/libcat/internal/domain/search/result"
)

// DefaultFacetLimit caps the number of rows per facet when the caller sets none.
const DefaultFacetLimit = 20

// Query is one composed index request.
type Query struct {
	// Query holds the scored clauses built from user input.
	Query clause.Set
	// Filters holds visibility and scope clauses. They never affect scoring.
	Filters    clause.Set
	Sort       request.Sort
	Facets     []string
	FacetLimit int
	Offset     int
	Limit      int
}

// All returns every clause of the query, scored clauses first.
func (q *Query) All() clause.Set {
	all := make(clause.Set, 0, len(q.Query)+len(q.Filters))
	all = append(all, q.Query...)
	return append(all, q.Filters...)
}

// Limits returns the facet row limit, defaulting when unset.
func (q *Query) Limits() int {
	if q.FacetLimit <= 0 {
		return DefaultFacetLimit
	}
	return q.FacetLimit
}

// Result is the raw index answer for one window.
type Result struct {
	Total  int
	IDs    []int64
	Facets []result.Facet
}

// Index executes composed queries.
type Index interface {
	Search(ctx context.Context, q *Query) (*Result, error)
	Ping(ctx context.Context) error
	Name() string
}

// Indexer stores documents in an index.
type Indexer interface {
	Index(ctx context.Context, docs []Document) error
}

// Document is one manifestation as stored in the index. Field values are
// strings, string slices, int64, int64 slices, time.Time or bool.
type Document struct {
	ID     int64
	Fields map[string]any
}

// NewDocument creates an empty document.
func NewDocument(id int64) Document {
	return Document{ID: id, Fields: map[string]any{}}
}

// Set assigns a field value and returns the document.
func (d Document) Set(name string, value any) Document {
	d.Fields[name] = value
	return d
}

// Key returns the document id as a string.
func (d Document) Key() string { return strconv.FormatInt(d.ID, 10) }

// Strings returns a field as strings, formatting numbers in base 10.
func (d Document) Strings(name string) []string {
	switch v := d.Fields[name].(type) {
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []string:
		return v
	case int64:
		return []string{strconv.FormatInt(v, 10)}
	case int:
		return []string{strconv.Itoa(v)}
	case []int64:
		out := make([]string, len(v))
		for i, n := range v {
			out[i] = strconv.FormatInt(n, 10)
		}
		return out
	case bool:
		return []string{strconv.FormatBool(v)}
	case time.Time:
		return []string{v.UTC().Format(time.RFC3339)}
	default:
		return nil
	}
}

// Ints returns a numeric field. Non-numeric values are skipped.
func (d Document) Ints(name string) []int64 {
	switch v := d.Fields[name].(type) {
	case int64:
		return []int64{v}
	case int:
		return []int64{int64(v)}
	case []int64:
		return v
	case []string:
		out := make([]int64, 0, len(v))
		for _, s := range v {
			if n, err := strconv.ParseInt(s, 10, 64); err == nil {
				out = append(out, n)
			}
		}
		return out
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return []int64{n}
		}
	}
	return nil
}

// Time returns a date field.
func (d Document) Time(name string) (time.Time, bool) {
	t, ok := d.Fields[name].(time.Time)
	if !ok || t.IsZero() {
		return time.Time{}, false
	}
	return t.UTC(), true
}

// Bool returns a boolean field; absent means false.
func (d Document) Bool(name string) bool {
	b, _ := d.Fields[name].(bool)
	return b
}

// FromManifestation builds the index document of a catalog record.
func FromManifestation(m *domain.Manifestation) Document {
	doc := NewDocument(m.ID).
		Set(field.Title, strings.TrimSpace(m.OriginalTitle+" "+m.TitleTranscription)).
		Set(field.SortTitle, m.TitleTranscription).
		Set(field.Creator, m.Creators).
		Set(field.Publisher, m.Publishers).
		Set(field.ISBN, m.ISBN).
		Set(field.ISSN, m.ISSN).
		Set(field.CarrierType, m.CarrierType).
		Set(field.Language, m.Language).
		Set(field.RequiredRoleID, int64(m.RequiredRoleID)).
		Set(field.Periodical, m.Periodical).
		Set(field.PeriodicalMaster, m.PeriodicalMaster).
		Set(field.CreatedAt, m.CreatedAt).
		Set(field.UpdatedAt, m.UpdatedAt)
	if m.TitleTranscription == "" {
		doc.Set(field.SortTitle, m.OriginalTitle)
	}
	if m.DateOfPublication != nil {
		doc.Set(field.PubDate, *m.DateOfPublication)
	}
	if m.SeriesStatementID != 0 {
		doc.Set(field.SeriesStatementID, m.SeriesStatementID)
	}
	return doc
}

// ParseID reads a document id back from an index key, ignoring any "prefix:" part.
func ParseID(key string) (int64, bool) {
	if i := strings.LastIndexByte(key, ':'); i >= 0 {
		key = key[i+1:]
	}
	id, err := strconv.ParseInt(key, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// Unavailable wraps a backend failure.
func Unavailable(backend string, err error) error {
	return domain.Unavailable("index "+backend, err)
}
