// Package bleve is the embedded index backend. It serves single-node deployments and tests.
package bleve

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/kailas-cloud/libcat/internal/domain/search/clause"
	"github.com/kailas-cloud/libcat/internal/domain/search/field"
	"github.com/kailas-cloud/libcat/internal/domain/search/request"
	"github.com/kailas-cloud/libcat/internal/domain/search/result"
	"github.com/kailas-cloud/libcat/internal/index"
)

const backendName = "bleve"

var (
	_ index.Index   = (*Index)(nil)
	_ index.Indexer = (*Index)(nil)
)

// Index is a bleve-backed catalog index.
type Index struct {
	idx bleve.Index
	now func() time.Time
}

// Open opens the index at path, creating it when absent. An empty path keeps the index in memory.
func Open(path string) (*Index, error) {
	if path == "" {
		idx, err := bleve.NewMemOnly(Mapping())
		if err != nil {
			return nil, fmt.Errorf("create in-memory index: %w", err)
		}
		return &Index{idx: idx, now: time.Now}, nil
	}

	var (
		idx bleve.Index
		err error
	)
	if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
		idx, err = bleve.New(path, Mapping())
	} else {
		idx, err = bleve.Open(path)
	}
	if err != nil {
		return nil, fmt.Errorf("open index %s: %w", path, err)
	}
	return &Index{idx: idx, now: time.Now}, nil
}

// Mapping returns the document mapping derived from the manifestation field types.
func Mapping() *mapping.IndexMappingImpl {
	im := bleve.NewIndexMapping()
	doc := bleve.NewDocumentMapping()
	for name, typ := range field.Names() {
		doc.AddFieldMappingsAt(name, fieldMapping(typ))
	}
	im.DefaultMapping = doc
	return im
}

func fieldMapping(t field.Type) *mapping.FieldMapping {
	switch t {
	case field.Keyword:
		return bleve.NewKeywordFieldMapping()
	case field.Integer:
		return bleve.NewNumericFieldMapping()
	case field.Date:
		return bleve.NewDateTimeFieldMapping()
	case field.Bool:
		return bleve.NewBooleanFieldMapping()
	default:
		return bleve.NewTextFieldMapping()
	}
}

// Name returns the backend name.
func (ix *Index) Name() string { return backendName }

// Ping checks that the index can be read.
func (ix *Index) Ping(_ context.Context) error {
	if _, err := ix.idx.DocCount(); err != nil {
		return index.Unavailable(backendName, err)
	}
	return nil
}

// Close releases the index.
func (ix *Index) Close() error {
	return ix.idx.Close()
}

// Index stores documents in one batch.
func (ix *Index) Index(_ context.Context, docs []index.Document) error {
	batch := ix.idx.NewBatch()
	for _, d := range docs {
		if err := batch.Index(d.Key(), toBleve(d)); err != nil {
			return fmt.Errorf("index document %d: %w", d.ID, err)
		}
	}
	if err := ix.idx.Batch(batch); err != nil {
		return index.Unavailable(backendName, err)
	}
	return nil
}

func toBleve(d index.Document) map[string]any {
	out := make(map[string]any, len(d.Fields))
	for name := range d.Fields {
		switch field.TypeOf(name) {
		case field.Integer:
			ints := d.Ints(name)
			nums := make([]float64, len(ints))
			for i, n := range ints {
				nums[i] = float64(n)
			}
			out[name] = nums
		case field.Date:
			if t, ok := d.Time(name); ok {
				out[name] = t
			}
		case field.Bool:
			out[name] = d.Bool(name)
		case field.Text:
			out[name] = strings.Join(d.Strings(name), " ")
		default:
			out[name] = d.Strings(name)
		}
	}
	return out
}

// Search runs a composed query.
func (ix *Index) Search(ctx context.Context, q *index.Query) (*index.Result, error) {
	req := bleve.NewSearchRequestOptions(ix.toQuery(q.All()), q.Limit, q.Offset, false)
	req.SortBy(sortOrder(q.Sort))
	for _, f := range q.Facets {
		req.AddFacet(f, bleve.NewFacetRequest(f, q.Limits()))
	}

	res, err := ix.idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, index.Unavailable(backendName, err)
	}

	out := &index.Result{Total: int(res.Total), IDs: make([]int64, 0, len(res.Hits))}
	for _, hit := range res.Hits {
		id, err := strconv.ParseInt(hit.ID, 10, 64)
		if err != nil {
			continue
		}
		out.IDs = append(out.IDs, id)
	}
	for _, f := range q.Facets {
		rows, err := facetRows(f, res.Facets[f])
		if err != nil {
			return nil, fmt.Errorf("decode facet %s: %w", f, err)
		}
		out.Facets = append(out.Facets, rows)
	}
	return out, nil
}

func sortOrder(s request.Sort) []string {
	name := s.Field
	if name == "" {
		name = field.CreatedAt
	}
	if s.Desc {
		name = "-" + name
	}
	return []string{name, "_id"}
}

func (ix *Index) toQuery(set clause.Set) query.Query {
	if set.IsEmpty() {
		return bleve.NewMatchAllQuery()
	}
	now := ix.now()
	parts := make([]query.Query, 0, len(set))
	for _, c := range set {
		parts = append(parts, clauseQuery(c, now))
	}
	return bleve.NewConjunctionQuery(parts...)
}

func clauseQuery(c clause.Clause, now time.Time) query.Query {
	if c.IsNegated() {
		return query.NewBooleanQuery(
			[]query.Query{bleve.NewMatchAllQuery()}, nil,
			[]query.Query{clauseQuery(clause.Not(c), now)},
		)
	}
	switch c.Kind() {
	case clause.Any, clause.All:
		parts := make([]query.Query, 0, len(c.Children()))
		for _, ch := range c.Children() {
			parts = append(parts, clauseQuery(ch, now))
		}
		if len(parts) == 0 {
			return bleve.NewMatchAllQuery()
		}
		if c.Kind() == clause.Any {
			return bleve.NewDisjunctionQuery(parts...)
		}
		return bleve.NewConjunctionQuery(parts...)
	case clause.Equality:
		return equalityQuery(c.Field(), c.Value())
	case clause.Range:
		return rangeQuery(c, now)
	default:
		return textQuery(c)
	}
}

func textQuery(c clause.Clause) query.Query {
	if c.IsPrefix() {
		pq := bleve.NewPrefixQuery(strings.ToLower(c.Value()))
		if c.Field() != "" {
			pq.SetField(c.Field())
		}
		return pq
	}
	mq := bleve.NewMatchQuery(c.Value())
	mq.SetOperator(query.MatchQueryOperatorAnd)
	if c.Field() != "" {
		mq.SetField(c.Field())
	}
	return mq
}

func equalityQuery(name, value string) query.Query {
	inclusive := true
	switch field.TypeOf(name) {
	case field.Keyword:
		tq := bleve.NewTermQuery(value)
		tq.SetField(name)
		return tq
	case field.Bool:
		bq := bleve.NewBoolFieldQuery(value == "true")
		bq.SetField(name)
		return bq
	case field.Integer:
		n, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return bleve.NewMatchNoneQuery()
		}
		nq := bleve.NewNumericRangeInclusiveQuery(&n, &n, &inclusive, &inclusive)
		nq.SetField(name)
		return nq
	case field.Date:
		t, err := time.Parse(time.RFC3339, value)
		if err != nil {
			return bleve.NewMatchNoneQuery()
		}
		dq := bleve.NewDateRangeInclusiveQuery(t, t, &inclusive, &inclusive)
		dq.SetField(name)
		return dq
	default:
		mq := bleve.NewMatchQuery(value)
		mq.SetOperator(query.MatchQueryOperatorAnd)
		mq.SetField(name)
		return mq
	}
}

// rangeQuery builds a range query. A range open on both sides matches everything.
func rangeQuery(c clause.Clause, now time.Time) query.Query {
	inclusive := true
	switch field.TypeOf(c.Field()) {
	case field.Date:
		lo, hasLo := clause.ResolveTime(c.Lower(), now)
		hi, hasHi := clause.ResolveTime(c.Upper(), now)
		if !hasLo && !hasHi {
			return bleve.NewMatchAllQuery()
		}
		dq := bleve.NewDateRangeInclusiveQuery(lo, hi, &inclusive, &inclusive)
		dq.SetField(c.Field())
		return dq
	case field.Integer:
		var lo, hi *float64
		if n, ok := clause.ResolveInt(c.Lower()); ok {
			f := float64(n)
			lo = &f
		}
		if n, ok := clause.ResolveInt(c.Upper()); ok {
			f := float64(n)
			hi = &f
		}
		if lo == nil && hi == nil {
			return bleve.NewMatchAllQuery()
		}
		nq := bleve.NewNumericRangeInclusiveQuery(lo, hi, &inclusive, &inclusive)
		nq.SetField(c.Field())
		return nq
	default:
		lo, hi := c.Lower(), c.Upper()
		if lo == clause.Open {
			lo = ""
		}
		if hi == clause.Open {
			hi = ""
		}
		if lo == "" && hi == "" {
			return bleve.NewMatchAllQuery()
		}
		tq := bleve.NewTermRangeInclusiveQuery(lo, hi, &inclusive, &inclusive)
		tq.SetField(c.Field())
		return tq
	}
}

type termFacet struct {
	Term  string `json:"term"`
	Count int    `json:"count"`
}

type facetPayload struct {
	Terms []termFacet `json:"terms"`
}

// facetRows reads term buckets through their JSON form. Boolean terms are indexed as T/F.
func facetRows(name string, fr *search.FacetResult) (result.Facet, error) {
	out := result.Facet{Name: name}
	if fr == nil {
		return out, nil
	}
	raw, err := json.Marshal(fr)
	if err != nil {
		return out, err
	}
	var payload facetPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return out, err
	}
	isBool := field.TypeOf(name) == field.Bool
	for _, t := range payload.Terms {
		value := t.Term
		if isBool {
			value = strconv.FormatBool(value == "T")
		}
		out.Rows = append(out.Rows, result.FacetCount{Value: value, Count: t.Count})
	}
	return out, nil
}
