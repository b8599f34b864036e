// Package search runs catalog listings: it builds the query, scopes it to what the actor may
// see, executes it with facets and maintains the session result snapshot.
package search

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/kailas-cloud/libcat/internal/domain"
	"github.com/kailas-cloud/libcat/internal/domain/search/field"
	"github.com/kailas-cloud/libcat/internal/domain/search/query"
	"github.com/kailas-cloud/libcat/internal/domain/search/request"
	"github.com/kailas-cloud/libcat/internal/domain/search/result"
	"github.com/kailas-cloud/libcat/internal/domain/session"
	"github.com/kailas-cloud/libcat/internal/logger"
	"github.com/kailas-cloud/libcat/internal/usecase/snapshot"
)

// TagCloudLimit caps the number of tags in the tag cloud view.
const TagCloudLimit = 1000

// ViewTagCloud is the view parameter selecting the tag cloud.
const ViewTagCloud = "tag_cloud"

// Capabilities are the optional features of a deployment. Nil providers disable their feature.
type Capabilities struct {
	Circulation bool
	Subjects    SubjectFacetProvider
	Bookmarks   BookmarkTagProvider
}

// Service orchestrates listings and single-record views.
type Service struct {
	exec      *Executor
	catalog   CatalogReader
	snapshots *snapshot.Cache
	builder   *query.Builder
	caps      Capabilities
}

// New creates a search service.
func New(exec *Executor, catalog CatalogReader, snapshots *snapshot.Cache, builder *query.Builder, caps Capabilities) *Service {
	if builder == nil {
		builder = query.NewBuilder(nil)
	}
	return &Service{exec: exec, catalog: catalog, snapshots: snapshots, builder: builder, caps: caps}
}

// Executor returns the executor used by the service.
func (s *Service) Executor() *Executor { return s.exec }

// Search runs a listing. st may be nil for callers without a session.
func (s *Service) Search(ctx context.Context, req *request.Request, actor *domain.User, st *session.State) (*result.Listing, error) {
	req.Normalize()
	if err := CheckMode(actor, req.Mode); err != nil {
		return nil, err
	}

	scope, err := s.ResolveScope(ctx, req.Scope)
	if err != nil {
		return nil, err
	}
	subject, err := s.resolveSubject(ctx, req.Filters.Subject)
	if err != nil {
		return nil, err
	}

	q := s.Compose(ctx, req, scope, subject, domain.RoleOf(actor))
	if req.Format == request.HTML || req.Format == request.JSON {
		q.Facets = s.facets()
	}

	page, err := s.exec.Execute(ctx, q)
	if err != nil {
		return nil, err
	}
	records, err := s.catalog.Manifestations(ctx, page.IDs())
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}

	listing := &result.Listing{
		Page:    page,
		Records: records,
		Query:   query.Normalize(req.Query),
		Series:  scope.Series,
	}
	listing.Facets, err = s.displayFacets(ctx, page.Facets())
	if err != nil {
		return nil, err
	}

	memo := snapshot.NewRequest(func(ctx context.Context) ([]int64, error) {
		return s.exec.FetchIDs(ctx, q)
	})
	if page.Number() == 1 && !page.HasNext() && len(page.IDs()) == page.Total() {
		memo.Seed(page.IDs())
	}

	if st != nil && req.Format == request.HTML && scope.Series == nil {
		snap, err := s.snapshots.GetOrRefresh(ctx, st, Fingerprint(req.Query, q), memo.IDs)
		if err != nil {
			return nil, err
		}
		listing.Snapshotted = true
		listing.Fresh = snap.Fresh
		if snap.Fresh {
			memo.Seed(snap.IDs)
		}
	}

	if req.View == ViewTagCloud {
		listing.Tags, err = s.tagCloud(ctx, memo)
		if err != nil {
			return nil, err
		}
	}
	return listing, nil
}

// Compose builds the full query of a listing without running it.
func (s *Service) Compose(ctx context.Context, req *request.Request, scope Scope, subject *domain.Subject, role domain.Role) ComposedQuery {
	log := logger.FromContext(ctx)
	b := *s.builder
	b.OnDegrade(func(param, raw string) {
		log.Debug("Ignoring unreadable filter", zap.String("param", param), zap.String("value", raw))
	})

	filters := Apply(scope, role, req.Mode)
	filters = append(filters, Selections(req.Filters, subject, s.caps.Circulation)...)

	return ComposedQuery{
		Query:   b.Build(req.Query, req.Filters, req.Mode),
		Filters: filters,
		Sort:    request.ResolveSort(req.SortBy, req.Order),
		Page:    req.Page,
		PerPage: s.exec.PerPage(req.Format),
	}
}

// Fingerprint identifies the effective query of a listing for the session snapshot.
func Fingerprint(rawQuery string, q ComposedQuery) snapshot.Fingerprint {
	return snapshot.NewFingerprint(rawQuery,
		q.Query.Canonical(),
		q.Filters.Canonical(),
		q.Sort.Field+" "+q.Sort.Direction(),
	)
}

// TagCloud returns the bookmark tags of the session snapshot, fetching the listing ids
// when the session holds none.
func (s *Service) TagCloud(ctx context.Context, req *request.Request, actor *domain.User, st *session.State) ([]domain.Tag, error) {
	if s.caps.Bookmarks == nil {
		return nil, nil
	}
	req.Normalize()
	if err := CheckMode(actor, req.Mode); err != nil {
		return nil, err
	}
	scope, err := s.ResolveScope(ctx, req.Scope)
	if err != nil {
		return nil, err
	}
	subject, err := s.resolveSubject(ctx, req.Filters.Subject)
	if err != nil {
		return nil, err
	}
	q := s.Compose(ctx, req, scope, subject, domain.RoleOf(actor))

	memo := snapshot.NewRequest(func(ctx context.Context) ([]int64, error) {
		return s.exec.FetchIDs(ctx, q)
	})
	if st != nil && st.Fingerprint == Fingerprint(req.Query, q).Hash {
		memo.Seed(st.ManifestationIDs)
	}
	return s.tagCloud(ctx, memo)
}

func (s *Service) tagCloud(ctx context.Context, memo *snapshot.Request) ([]domain.Tag, error) {
	if s.caps.Bookmarks == nil {
		return nil, nil
	}
	ids, err := memo.IDs(ctx)
	if err != nil {
		return nil, err
	}
	tags, err := s.caps.Bookmarks.BookmarkedTags(ctx, ids, TagCloudLimit)
	if err != nil {
		return nil, fmt.Errorf("tag cloud: %w", err)
	}
	return tags, nil
}

// Show returns one record with its neighbours in the session snapshot.
func (s *Service) Show(ctx context.Context, id int64, actor *domain.User, st *session.State) (*result.Record, error) {
	m, err := s.catalog.Manifestation(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get manifestation: %w", err)
	}
	if m.RequiredRoleID > domain.RoleOf(actor).Rank() {
		return nil, domain.NewAccessDenied(actor, "record requires a higher role")
	}

	rec := &result.Record{Manifestation: m}
	if m.PeriodicalMaster && m.SeriesStatementID != 0 {
		series, err := s.catalog.SeriesStatement(ctx, m.SeriesStatementID)
		if err != nil {
			return nil, fmt.Errorf("get series statement: %w", err)
		}
		rec.RedirectTo = series
	}
	rec.Prev, rec.Next, _ = snapshot.Neighbors(st, id)
	return rec, nil
}

// ResolveScope loads the entities a scoped listing refers to. Unknown entities are not found.
func (s *Service) ResolveScope(ctx context.Context, sc request.Scope) (Scope, error) {
	scope := Scope{Entities: sc}
	if sc.SeriesStatementID != 0 {
		series, err := s.catalog.SeriesStatement(ctx, sc.SeriesStatementID)
		if err != nil {
			return Scope{}, fmt.Errorf("get series statement: %w", err)
		}
		scope.Series = series
	}
	if sc.PatronID != 0 {
		if _, err := s.catalog.Patron(ctx, sc.PatronID); err != nil {
			return Scope{}, fmt.Errorf("get patron: %w", err)
		}
	}
	if sc.OriginalManifestation != 0 {
		if _, err := s.catalog.Manifestation(ctx, sc.OriginalManifestation); err != nil {
			return Scope{}, fmt.Errorf("get manifestation: %w", err)
		}
	}
	if sc.SubjectID != 0 {
		if err := s.checkSubject(ctx, sc.SubjectID); err != nil {
			return Scope{}, err
		}
	}
	return scope, nil
}

// checkSubject fails with ErrNotFound for unknown subjects, and for every subject
// when the subject feature is off.
func (s *Service) checkSubject(ctx context.Context, id int64) error {
	if s.caps.Subjects == nil {
		return fmt.Errorf("subject %d: %w", id, domain.ErrNotFound)
	}
	found, err := s.caps.Subjects.Subjects(ctx, []int64{id})
	if err != nil {
		return fmt.Errorf("get subject: %w", err)
	}
	if _, ok := found[id]; !ok {
		return fmt.Errorf("subject %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

// resolveSubject maps the subject facet selection to a heading. Unknown terms select nothing.
func (s *Service) resolveSubject(ctx context.Context, term string) (*domain.Subject, error) {
	if s.caps.Subjects == nil || term == "" {
		return nil, nil
	}
	subj, err := s.caps.Subjects.SubjectByTerm(ctx, term)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve subject: %w", err)
	}
	return subj, nil
}

// facets lists the browse facets of this deployment.
func (s *Service) facets() []string {
	var out []string
	if s.caps.Circulation {
		out = append(out, field.Reservable)
	}
	out = append(out, field.CarrierType, field.Library, field.Language)
	if s.caps.Subjects != nil {
		out = append(out, field.SubjectIDs)
	}
	return out
}

// displayFacets replaces subject ids with their terms. Ids without a subject are dropped.
func (s *Service) displayFacets(ctx context.Context, facets []result.Facet) ([]result.Facet, error) {
	out := make([]result.Facet, 0, len(facets))
	for _, f := range facets {
		if f.Name != field.SubjectIDs || s.caps.Subjects == nil {
			out = append(out, f)
			continue
		}
		ids := make([]int64, 0, len(f.Rows))
		for _, row := range f.Rows {
			if id, err := strconv.ParseInt(row.Value, 10, 64); err == nil {
				ids = append(ids, id)
			}
		}
		subjects, err := s.caps.Subjects.Subjects(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("resolve subject facet: %w", err)
		}
		rows := make([]result.FacetCount, 0, len(f.Rows))
		for _, row := range f.Rows {
			id, _ := strconv.ParseInt(row.Value, 10, 64)
			if subj, ok := subjects[id]; ok {
				rows = append(rows, result.FacetCount{Value: subj.Term, Count: row.Count})
			}
		}
		out = append(out, result.Facet{Name: field.Subject, Rows: rows})
	}
	return out, nil
}
