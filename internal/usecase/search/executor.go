package search

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kailas-cloud/libcat/internal/domain/search/clause"
	"github.com/kailas-cloud/libcat/internal/domain/search/request"
	"github.com/kailas-cloud/libcat/internal/domain/search/result"
	"github.com/kailas-cloud/libcat/internal/index"
)

// Result window defaults.
const (
	DefaultMaxResults = 500
	DefaultPerPage    = 10
	DefaultCSVPerPage = 65534
)

// ComposedQuery is a fully scoped query plus the window to fetch.
type ComposedQuery struct {
	Query      clause.Set
	Filters    clause.Set
	Sort       request.Sort
	Facets     []string
	FacetLimit int
	Page       int
	PerPage    int
	// Offset, when positive, starts the window at that 0-based record instead of a page boundary.
	Offset int
}

// Executor runs composed queries inside the capped result window.
type Executor struct {
	index      Index
	maxResults int
	perPage    int
	csvPerPage int
	duration   *prometheus.HistogramVec
}

// NewExecutor creates an executor. Non-positive sizes fall back to the defaults.
// duration is a histogram vec with label "backend", passed explicitly; it may be nil.
func NewExecutor(ix Index, maxResults, perPage, csvPerPage int, duration *prometheus.HistogramVec) *Executor {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	if csvPerPage <= 0 {
		csvPerPage = DefaultCSVPerPage
	}
	return &Executor{
		index: ix, maxResults: maxResults, perPage: perPage,
		csvPerPage: csvPerPage, duration: duration,
	}
}

// MaxResults returns the result window cap.
func (e *Executor) MaxResults() int { return e.maxResults }

// PerPage returns the page size for a format. Bulk formats export the whole capped window.
func (e *Executor) PerPage(f request.Format) int {
	if f.IsBulk() {
		return min(e.csvPerPage, e.maxResults)
	}
	return e.perPage
}

// Execute fetches one page. The reported total is capped at the maximum, and pages past
// the cap return no hits without asking the index for them.
func (e *Executor) Execute(ctx context.Context, q ComposedQuery) (result.Page, error) {
	page := max(q.Page, 1)
	perPage := q.PerPage
	if perPage <= 0 {
		perPage = e.perPage
	}

	// Compare page numbers before multiplying: a huge ?page= must not overflow.
	offset := e.maxResults
	switch {
	case q.Offset > 0:
		offset = q.Offset
	case page-1 < e.windowPages(perPage):
		offset = (page - 1) * perPage
	}
	limit := 0
	if offset < e.maxResults {
		limit = min(perPage, e.maxResults-offset)
	}
	requested := offset
	if limit == 0 {
		offset = 0
	}

	res, err := e.search(ctx, &index.Query{
		Query:      q.Query,
		Filters:    q.Filters,
		Sort:       q.Sort,
		Facets:     q.Facets,
		FacetLimit: q.FacetLimit,
		Offset:     offset,
		Limit:      limit,
	})
	if err != nil {
		return result.Page{}, err
	}

	ids := res.IDs
	if limit == 0 {
		ids = nil
	}
	p := result.NewPage(ids, min(res.Total, e.maxResults), res.Total, page, perPage, res.Facets)
	if q.Offset > 0 {
		p = p.AtOffset(requested)
	}
	return p, nil
}

// windowPages is the number of pages of perPage that fit in the capped window.
func (e *Executor) windowPages(perPage int) int {
	return (e.maxResults + perPage - 1) / perPage
}

// FetchIDs returns the ordered ids of the whole capped window.
func (e *Executor) FetchIDs(ctx context.Context, q ComposedQuery) ([]int64, error) {
	res, err := e.search(ctx, &index.Query{
		Query:   q.Query,
		Filters: q.Filters,
		Sort:    q.Sort,
		Limit:   e.maxResults,
	})
	if err != nil {
		return nil, err
	}
	if len(res.IDs) > e.maxResults {
		return res.IDs[:e.maxResults], nil
	}
	return res.IDs, nil
}

func (e *Executor) search(ctx context.Context, q *index.Query) (*index.Result, error) {
	start := time.Now()
	res, err := e.index.Search(ctx, q)
	if e.duration != nil {
		e.duration.WithLabelValues(e.index.Name()).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}
	return res, nil
}
