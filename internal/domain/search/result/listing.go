package result

import "github.com/kailas-cloud/libcat/internal/domain"

// Listing is everything a listing response renders.
type Listing struct {
	Page    Page
	Records []*domain.Manifestation
	Facets  []Facet
	// Query is the normalized free text the listing was built from.
	Query string
	// Series is set for series-scoped listings.
	Series *domain.SeriesStatement
	// Snapshotted reports whether the session snapshot was consulted; Fresh whether it was reused.
	Snapshotted bool
	Fresh       bool
	Tags        []domain.Tag
}

// Record is a single manifestation with its position in the session snapshot.
type Record struct {
	Manifestation *domain.Manifestation
	Prev          int64
	Next          int64
	// RedirectTo is the series a periodical master record stands for.
	RedirectTo *domain.SeriesStatement
}
