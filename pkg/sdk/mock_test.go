package libcat

import (
	"context"
	"slices"
	"time"

	"github.com/kailas-cloud/libcat/internal/domain"
	"github.com/kailas-cloud/libcat/internal/domain/search/request"
	"github.com/kailas-cloud/libcat/internal/domain/search/result"
	"github.com/kailas-cloud/libcat/internal/domain/session"
	"github.com/kailas-cloud/libcat/internal/usecase/oai"
)

// --- searchUseCase mock ---

type mockSearchUC struct {
	searchFn func(ctx context.Context, req *request.Request, actor *domain.User) (*result.Listing, error)
	showFn   func(ctx context.Context, id int64, actor *domain.User) (*result.Record, error)
}

func (m *mockSearchUC) Search(
	ctx context.Context, req *request.Request, actor *domain.User, _ *session.State,
) (*result.Listing, error) {
	return m.searchFn(ctx, req, actor)
}

func (m *mockSearchUC) Show(
	ctx context.Context, id int64, actor *domain.User, _ *session.State,
) (*result.Record, error) {
	return m.showFn(ctx, id, actor)
}

// --- harvestUseCase mock ---

type mockHarvestUC struct {
	handleFn func(ctx context.Context, p oai.Params) (*oai.Response, error)
	calls    []oai.Params
}

func (m *mockHarvestUC) Handle(ctx context.Context, p oai.Params) (*oai.Response, error) {
	m.calls = append(m.calls, p)
	return m.handleFn(ctx, p)
}

// --- in-memory catalog ---

type memCatalog struct {
	records map[int64]*Manifestation
	series  map[int64]*SeriesStatement
	pingErr error
}

func newMemCatalog(records ...*Manifestation) *memCatalog {
	c := &memCatalog{records: map[int64]*Manifestation{}, series: map[int64]*SeriesStatement{}}
	for _, m := range records {
		c.records[m.ID] = m
	}
	return c
}

func (c *memCatalog) Manifestation(_ context.Context, id int64) (*Manifestation, error) {
	if m, ok := c.records[id]; ok {
		return m, nil
	}
	return nil, ErrNotFound
}

func (c *memCatalog) Manifestations(_ context.Context, ids []int64) ([]*Manifestation, error) {
	out := make([]*Manifestation, 0, len(ids))
	for _, id := range ids {
		if m, ok := c.records[id]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func (c *memCatalog) ManifestationByOAIIdentifier(context.Context, string) (*Manifestation, error) {
	return nil, ErrNotFound
}

func (c *memCatalog) SeriesStatement(_ context.Context, id int64) (*SeriesStatement, error) {
	if s, ok := c.series[id]; ok {
		return s, nil
	}
	return nil, ErrNotFound
}

func (c *memCatalog) SeriesStatements(context.Context) ([]SeriesStatement, error) {
	out := make([]SeriesStatement, 0, len(c.series))
	for _, s := range c.series {
		out = append(out, *s)
	}
	return out, nil
}

func (c *memCatalog) Patron(context.Context, int64) (*Patron, error) {
	return nil, ErrNotFound
}

func (c *memCatalog) ModificationSpan(context.Context) (TimeSpan, error) {
	var times []time.Time
	for _, m := range c.records {
		times = append(times, m.UpdatedAt)
	}
	if len(times) == 0 {
		now := time.Now().UTC()
		return TimeSpan{From: now, Until: now}, nil
	}
	return TimeSpan{
		From:  slices.MinFunc(times, func(a, b time.Time) int { return a.Compare(b) }),
		Until: slices.MaxFunc(times, func(a, b time.Time) int { return a.Compare(b) }),
	}, nil
}

func (c *memCatalog) Ping(context.Context) error { return c.pingErr }

func record(id int64, title, creator string, updated time.Time) *Manifestation {
	return &Manifestation{
		ID:             id,
		OriginalTitle:  title,
		Creators:       []string{creator},
		Language:       "eng",
		CarrierType:    "print",
		RequiredRoleID: 1,
		CreatedAt:      updated,
		UpdatedAt:      updated,
	}
}
