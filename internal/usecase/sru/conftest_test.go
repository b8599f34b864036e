package sru

import (
	"context"

	"github.com/kailas-cloud/libcat/internal/domain"
	"github.com/kailas-cloud/libcat/internal/domain/search/result"
	"github.com/kailas-cloud/libcat/internal/usecase/search"
)

// fakeLister serves ids 1..total in pages, capped at maxResults.
type fakeLister struct {
	total      int
	maxResults int
	err        error
	queries    []search.ComposedQuery
}

func (f *fakeLister) MaxResults() int {
	if f.maxResults == 0 {
		return search.DefaultMaxResults
	}
	return f.maxResults
}

func (f *fakeLister) Execute(_ context.Context, q search.ComposedQuery) (result.Page, error) {
	f.queries = append(f.queries, q)
	if f.err != nil {
		return result.Page{}, f.err
	}
	total := min(f.total, f.MaxResults())
	offset := (q.Page - 1) * q.PerPage
	if q.Offset > 0 {
		offset = q.Offset
	}
	var ids []int64
	for i := offset; i < offset+q.PerPage && i < total; i++ {
		ids = append(ids, int64(i+1))
	}
	p := result.NewPage(ids, total, f.total, q.Page, q.PerPage, nil)
	if q.Offset > 0 {
		p = p.AtOffset(q.Offset)
	}
	return p, nil
}

func (f *fakeLister) last() search.ComposedQuery {
	return f.queries[len(f.queries)-1]
}

type mockCatalog struct {
	err error
}

func (m *mockCatalog) Manifestations(_ context.Context, ids []int64) ([]*domain.Manifestation, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := make([]*domain.Manifestation, 0, len(ids))
	for _, id := range ids {
		out = append(out, &domain.Manifestation{ID: id})
	}
	return out, nil
}

func newService(l *fakeLister) *Service {
	return New(l, &mockCatalog{}, nil, Config{Title: "libcat", BaseURL: "http://localhost/manifestations"})
}
