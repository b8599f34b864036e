package search

import (
	"context"

	"github.com/kailas-cloud/libcat/internal/domain"
	"github.com/kailas-cloud/libcat/internal/index"
)

// Index executes composed queries against the full-text index.
type Index interface {
	Search(ctx context.Context, q *index.Query) (*index.Result, error)
	Name() string
}

// CatalogReader reads records and the entities that scope listings.
type CatalogReader interface {
	Manifestation(ctx context.Context, id int64) (*domain.Manifestation, error)
	Manifestations(ctx context.Context, ids []int64) ([]*domain.Manifestation, error)
	SeriesStatement(ctx context.Context, id int64) (*domain.SeriesStatement, error)
	Patron(ctx context.Context, id int64) (*domain.Patron, error)
}

// SubjectFacetProvider resolves subject headings for the subject facet and filter.
// A nil provider turns the subject feature off.
type SubjectFacetProvider interface {
	SubjectByTerm(ctx context.Context, term string) (*domain.Subject, error)
	Subjects(ctx context.Context, ids []int64) (map[int64]domain.Subject, error)
}

// BookmarkTagProvider counts bookmark tags on records for the tag cloud.
// A nil provider turns the bookmark feature off.
type BookmarkTagProvider interface {
	BookmarkedTags(ctx context.Context, ids []int64, limit int) ([]domain.Tag, error)
}
