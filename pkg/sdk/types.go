package libcat

import (
	"context"

	"github.com/kailas-cloud/libcat/internal/domain"
	"github.com/kailas-cloud/libcat/internal/domain/search/mode"
	"github.com/kailas-cloud/libcat/internal/domain/search/request"
	"github.com/kailas-cloud/libcat/internal/domain/search/result"
)

// Catalog entities.
type (
	Manifestation   = domain.Manifestation
	SeriesStatement = domain.SeriesStatement
	Patron          = domain.Patron
	Subject         = domain.Subject
	Tag             = domain.Tag
	TimeSpan        = domain.TimeSpan
	User            = domain.User
	Role            = domain.Role
	Facet           = result.Facet
	FacetCount      = result.FacetCount
)

// Roles, lowest first.
var (
	RoleGuest         = domain.RoleGuest
	RoleUser          = domain.RoleUser
	RoleLibrarian     = domain.RoleLibrarian
	RoleAdministrator = domain.RoleAdministrator
)

// Catalog loads records and the entities that scope listings.
// Implementations report missing entities with ErrNotFound.
//
// A catalog that also implements
//
//	SubjectByTerm(ctx context.Context, term string) (*Subject, error)
//	Subjects(ctx context.Context, ids []int64) (map[int64]Subject, error)
//
// enables the subject facet, and one implementing
//
//	BookmarkedTags(ctx context.Context, ids []int64, limit int) ([]Tag, error)
//
// enables the tag cloud. Ping(ctx) error is used by Health when present.
type Catalog interface {
	Manifestation(ctx context.Context, id int64) (*Manifestation, error)
	Manifestations(ctx context.Context, ids []int64) ([]*Manifestation, error)
	ManifestationByOAIIdentifier(ctx context.Context, identifier string) (*Manifestation, error)
	SeriesStatement(ctx context.Context, id int64) (*SeriesStatement, error)
	SeriesStatements(ctx context.Context) ([]SeriesStatement, error)
	Patron(ctx context.Context, id int64) (*Patron, error)
	ModificationSpan(ctx context.Context) (TimeSpan, error)
}

// Params is a listing request. Blank fields are ignored.
type Params struct {
	Query string

	Creator     string
	Contributor string
	Publisher   string
	Tag         string
	ISBN        string
	ISSN        string
	PubDateFrom string // YYYY, YYYYMM or YYYYMMDD; non-digits are ignored
	PubDateTo   string

	// Facet selections.
	CarrierType string
	Language    string
	Library     string
	Subject     string

	SeriesStatementID int64
	CreatorID         int64
	PublisherID       int64

	SortBy string // "title" or "pub_date"; default newest first
	Order  string // "asc" or "desc"
	Page   int

	// Recent limits the listing to records created within the last month.
	Recent bool
	// User is the acting principal; nil searches anonymously.
	User *User
}

func (p Params) toRequest() *request.Request {
	req := &request.Request{
		Query: p.Query,
		Filters: request.Filters{
			Tag:         p.Tag,
			Creator:     p.Creator,
			Contributor: p.Contributor,
			Publisher:   p.Publisher,
			ISBN:        p.ISBN,
			ISSN:        p.ISSN,
			PubDateFrom: p.PubDateFrom,
			PubDateTo:   p.PubDateTo,
			CarrierType: p.CarrierType,
			Language:    p.Language,
			Library:     p.Library,
			Subject:     p.Subject,
		},
		Scope: request.Scope{
			SeriesStatementID: p.SeriesStatementID,
			CreatorID:         p.CreatorID,
			PublisherID:       p.PublisherID,
		},
		SortBy: p.SortBy,
		Order:  p.Order,
		Page:   p.Page,
		Format: request.JSON,
	}
	if p.Recent {
		req.Mode = mode.Recent
	}
	return req
}

// SearchResult is one page of a listing.
type SearchResult struct {
	Query      string
	Total      int // capped at the result window
	TrueTotal  int
	Page       int
	PerPage    int
	TotalPages int
	HasNext    bool
	Records    []*Manifestation
	Facets     []Facet
	// Series is set for series-scoped listings.
	Series *SeriesStatement
}

func searchResultFrom(l *result.Listing) *SearchResult {
	return &SearchResult{
		Query:      l.Query,
		Total:      l.Page.Total(),
		TrueTotal:  l.Page.TrueTotal(),
		Page:       l.Page.Number(),
		PerPage:    l.Page.PerPage(),
		TotalPages: l.Page.TotalPages(),
		HasNext:    l.Page.HasNext(),
		Records:    l.Records,
		Facets:     l.Facets,
		Series:     l.Series,
	}
}
