package oai

import (
	"context"
	"time"

	"github.com/kailas-cloud/libcat/internal/domain"
	"github.com/kailas-cloud/libcat/internal/domain/search/result"
	"github.com/kailas-cloud/libcat/internal/usecase/search"
)

// fakeLister serves ids 1..total in pages.
type fakeLister struct {
	total   int
	err     error
	queries []search.ComposedQuery
}

func (f *fakeLister) Execute(_ context.Context, q search.ComposedQuery) (result.Page, error) {
	f.queries = append(f.queries, q)
	if f.err != nil {
		return result.Page{}, f.err
	}
	offset := (q.Page - 1) * q.PerPage
	var ids []int64
	for i := offset; i < offset+q.PerPage && i < f.total; i++ {
		ids = append(ids, int64(i+1))
	}
	return result.NewPage(ids, f.total, f.total, q.Page, q.PerPage, nil), nil
}

type mockCatalog struct {
	records map[int64]*domain.Manifestation
	byOAI   map[string]int64
	series  []domain.SeriesStatement
	span    domain.TimeSpan
	spanErr error
}

func (m *mockCatalog) Manifestation(_ context.Context, id int64) (*domain.Manifestation, error) {
	if r, ok := m.records[id]; ok {
		return r, nil
	}
	return nil, domain.ErrNotFound
}

func (m *mockCatalog) ManifestationByOAIIdentifier(ctx context.Context, identifier string) (*domain.Manifestation, error) {
	id, ok := m.byOAI[identifier]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return m.Manifestation(ctx, id)
}

func (m *mockCatalog) Manifestations(_ context.Context, ids []int64) ([]*domain.Manifestation, error) {
	out := make([]*domain.Manifestation, 0, len(ids))
	for _, id := range ids {
		out = append(out, &domain.Manifestation{ID: id})
	}
	return out, nil
}

func (m *mockCatalog) SeriesStatement(_ context.Context, id int64) (*domain.SeriesStatement, error) {
	for _, s := range m.series {
		if s.ID == id {
			return &s, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockCatalog) SeriesStatements(context.Context) ([]domain.SeriesStatement, error) {
	return m.series, nil
}

func (m *mockCatalog) ModificationSpan(context.Context) (domain.TimeSpan, error) {
	return m.span, m.spanErr
}

var (
	spanFrom = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	spanTo   = time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC)
)

func newCatalog() *mockCatalog {
	return &mockCatalog{
		records: map[int64]*domain.Manifestation{
			1: {ID: 1, OriginalTitle: "Moby Dick", RequiredRoleID: 1},
			2: {ID: 2, OriginalTitle: "Staff only", RequiredRoleID: 3},
		},
		byOAI:  map[string]int64{"oai:legacy:abc": 1},
		series: []domain.SeriesStatement{{ID: 7, OriginalTitle: "Zen Monthly", Periodical: true}},
		span:   domain.TimeSpan{From: spanFrom, Until: spanTo},
	}
}

func newEngine(l Lister, c Catalog) *Engine {
	e := New(l, c, Config{RepositoryName: "libcat", BaseURL: "http://localhost/oai", PageSize: 200}, nil)
	e.now = func() time.Time { return spanTo }
	return e
}
