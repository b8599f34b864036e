// Package redisearch serves the catalog index from RediSearch hashes through the shared RESP store.
package redisearch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kailas-cloud/libcat/internal/db"
	"github.com/kailas-cloud/libcat/internal/domain"
	"github.com/kailas-cloud/libcat/internal/domain/search/field"
	"github.com/kailas-cloud/libcat/internal/domain/search/result"
	"github.com/kailas-cloud/libcat/internal/index"
)

const backendName = "redisearch"

// titleWeight ranks title matches above creator and note matches.
const titleWeight = 5

// DocumentPrefix is the key prefix of indexed manifestation hashes.
var DocumentPrefix = domain.KeyPrefix + "manifestation:"

var (
	_ index.Index   = (*Index)(nil)
	_ index.Indexer = (*Index)(nil)
)

// store is the consumer interface for the RESP store (ISP).
type store interface {
	Ping(ctx context.Context) error
	Search(ctx context.Context, q *db.SearchQuery) (*db.SearchResult, error)
	Aggregate(ctx context.Context, q *db.AggregateQuery) ([]db.Bucket, error)
	ReplaceHashes(ctx context.Context, items []db.HashSetItem) error
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
}

// Index implements index.Index over FT.SEARCH and FT.AGGREGATE.
type Index struct {
	store store
	name  string
	now   func() time.Time
}

// New creates a RediSearch index named name (e.g. "libcat:manifestations").
func New(s store, name string) *Index {
	return &Index{store: s, name: name, now: time.Now}
}

// Name returns the backend name.
func (ix *Index) Name() string { return backendName }

// Ping checks the store connection.
func (ix *Index) Ping(ctx context.Context) error {
	if err := ix.store.Ping(ctx); err != nil {
		return index.Unavailable(backendName, err)
	}
	return nil
}

// Definition returns the FT schema of the manifestation index.
// Dates are NUMERIC unix seconds; keywords and booleans are comma-separated TAGs.
func Definition(name string) *db.IndexDefinition {
	types := field.Names()
	names := make([]string, 0, len(types))
	for n := range types {
		names = append(names, n)
	}
	sort.Strings(names)

	b := db.NewIndex(name).Prefix(DocumentPrefix)
	for _, n := range names {
		switch types[n] {
		case field.Integer:
			b.Numeric(n)
		case field.Date:
			b.Numeric(n).Sortable()
		case field.Keyword, field.Bool:
			b.Tag(n)
			if n == field.SortTitle {
				b.Sortable()
			}
		default:
			b.Text(n)
			if n == field.Title {
				b.Weight(titleWeight)
			}
		}
	}
	return b.MustBuild()
}

// EnsureIndex creates the FT index when it does not exist yet.
func (ix *Index) EnsureIndex(ctx context.Context) error {
	exists, err := ix.store.IndexExists(ctx, ix.name)
	if err != nil {
		return index.Unavailable(backendName, err)
	}
	if exists {
		return nil
	}
	if err := ix.store.CreateIndex(ctx, Definition(ix.name)); err != nil && !errors.Is(err, db.ErrIndexExists) {
		return fmt.Errorf("create index %s: %w", ix.name, err)
	}
	return nil
}

// Index writes documents as hashes; RediSearch indexes them on write.
func (ix *Index) Index(ctx context.Context, docs []index.Document) error {
	items := make([]db.HashSetItem, 0, len(docs))
	for _, d := range docs {
		items = append(items, db.HashSetItem{Key: DocumentPrefix + d.Key(), Fields: toHash(d)})
	}
	if err := ix.store.ReplaceHashes(ctx, items); err != nil {
		return index.Unavailable(backendName, err)
	}
	return nil
}

func toHash(d index.Document) map[string]string {
	out := make(map[string]string, len(d.Fields)+1)
	out[field.ID] = d.Key()
	for name := range d.Fields {
		switch field.TypeOf(name) {
		case field.Integer:
			if ints := d.Ints(name); len(ints) > 0 {
				out[name] = strconv.FormatInt(ints[0], 10)
			}
		case field.Date:
			if t, ok := d.Time(name); ok {
				out[name] = strconv.FormatInt(t.Unix(), 10)
			}
		case field.Bool:
			out[name] = strconv.FormatBool(d.Bool(name))
		case field.Keyword:
			if vals := d.Strings(name); len(vals) > 0 {
				out[name] = strings.Join(vals, ",")
			}
		default:
			if vals := d.Strings(name); len(vals) > 0 {
				out[name] = strings.Join(vals, " ")
			}
		}
	}
	return out
}

// Search runs the composed query and one aggregation per requested facet.
func (ix *Index) Search(ctx context.Context, q *index.Query) (*index.Result, error) {
	now := ix.now()
	clauses := q.All()

	sortBy := q.Sort.Field
	if sortBy == "" {
		sortBy = field.CreatedAt
	}
	sr, err := ix.store.Search(ctx, &db.SearchQuery{
		IndexName: ix.name,
		Clauses:   clauses,
		SortBy:    sortBy,
		Desc:      q.Sort.Desc,
		Offset:    q.Offset,
		Limit:     q.Limit,
		Now:       now,
	})
	if err != nil {
		return nil, index.Unavailable(backendName, err)
	}

	out := &index.Result{Total: sr.Total, IDs: make([]int64, 0, len(sr.Keys))}
	for _, key := range sr.Keys {
		if id, ok := index.ParseID(key); ok {
			out.IDs = append(out.IDs, id)
		}
	}

	for _, f := range q.Facets {
		buckets, err := ix.store.Aggregate(ctx, &db.AggregateQuery{
			IndexName: ix.name,
			Clauses:   clauses,
			Field:     f,
			Limit:     q.Limits(),
			Now:       now,
		})
		if err != nil {
			return nil, index.Unavailable(backendName, err)
		}
		facet := result.Facet{Name: f, Rows: make([]result.FacetCount, 0, len(buckets))}
		for _, b := range buckets {
			facet.Rows = append(facet.Rows, result.FacetCount{Value: b.Value, Count: b.Count})
		}
		out.Facets = append(out.Facets, facet)
	}
	return out, nil
}
