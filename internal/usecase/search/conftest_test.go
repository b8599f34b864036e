package search

import (
	"context"

	"github.com/kailas-cloud/libcat/internal/domain"
	"github.com/kailas-cloud/libcat/internal/index"
)

// mockIndex records every query it receives.
type mockIndex struct {
	searchFn func(ctx context.Context, q *index.Query) (*index.Result, error)
	queries  []index.Query
}

func (m *mockIndex) Search(ctx context.Context, q *index.Query) (*index.Result, error) {
	m.queries = append(m.queries, *q)
	if m.searchFn != nil {
		return m.searchFn(ctx, q)
	}
	return &index.Result{}, nil
}

func (m *mockIndex) Name() string { return "mock" }

// windowIndex serves ids 1..total honoring offset and limit.
func windowIndex(total int) *mockIndex {
	return &mockIndex{searchFn: func(_ context.Context, q *index.Query) (*index.Result, error) {
		var ids []int64
		for i := q.Offset; i < q.Offset+q.Limit && i < total; i++ {
			ids = append(ids, int64(i+1))
		}
		return &index.Result{Total: total, IDs: ids}, nil
	}}
}

type mockCatalog struct {
	manifestationFn  func(ctx context.Context, id int64) (*domain.Manifestation, error)
	manifestationsFn func(ctx context.Context, ids []int64) ([]*domain.Manifestation, error)
	seriesFn         func(ctx context.Context, id int64) (*domain.SeriesStatement, error)
	patronFn         func(ctx context.Context, id int64) (*domain.Patron, error)
}

func (m *mockCatalog) Manifestation(ctx context.Context, id int64) (*domain.Manifestation, error) {
	if m.manifestationFn != nil {
		return m.manifestationFn(ctx, id)
	}
	return &domain.Manifestation{ID: id, RequiredRoleID: 1}, nil
}

func (m *mockCatalog) Manifestations(ctx context.Context, ids []int64) ([]*domain.Manifestation, error) {
	if m.manifestationsFn != nil {
		return m.manifestationsFn(ctx, ids)
	}
	out := make([]*domain.Manifestation, len(ids))
	for i, id := range ids {
		out[i] = &domain.Manifestation{ID: id}
	}
	return out, nil
}

func (m *mockCatalog) SeriesStatement(ctx context.Context, id int64) (*domain.SeriesStatement, error) {
	if m.seriesFn != nil {
		return m.seriesFn(ctx, id)
	}
	return &domain.SeriesStatement{ID: id}, nil
}

func (m *mockCatalog) Patron(ctx context.Context, id int64) (*domain.Patron, error) {
	if m.patronFn != nil {
		return m.patronFn(ctx, id)
	}
	return &domain.Patron{ID: id}, nil
}

type mockSubjects struct {
	terms map[string]domain.Subject
	err   error
}

func (m *mockSubjects) SubjectByTerm(_ context.Context, term string) (*domain.Subject, error) {
	if m.err != nil {
		return nil, m.err
	}
	s, ok := m.terms[term]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &s, nil
}

func (m *mockSubjects) Subjects(_ context.Context, ids []int64) (map[int64]domain.Subject, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := make(map[int64]domain.Subject)
	for _, s := range m.terms {
		for _, id := range ids {
			if s.ID == id {
				out[id] = s
			}
		}
	}
	return out, nil
}

type mockBookmarks struct {
	tags   []domain.Tag
	gotIDs []int64
	gotLim int
	calls  int
}

func (m *mockBookmarks) BookmarkedTags(_ context.Context, ids []int64, limit int) ([]domain.Tag, error) {
	m.calls++
	m.gotIDs = ids
	m.gotLim = limit
	return m.tags, nil
}

var (
	guest     = (*domain.User)(nil)
	patron    = &domain.User{Login: "reader", Role: domain.RoleUser}
	librarian = &domain.User{Login: "staff", Role: domain.RoleLibrarian}
)
