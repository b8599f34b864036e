package libcat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kailas-cloud/libcat/internal/domain"
	"github.com/kailas-cloud/libcat/internal/domain/search/query"
	"github.com/kailas-cloud/libcat/internal/domain/search/request"
	"github.com/kailas-cloud/libcat/internal/domain/search/result"
	"github.com/kailas-cloud/libcat/internal/domain/session"
	"github.com/kailas-cloud/libcat/internal/index"
	"github.com/kailas-cloud/libcat/internal/index/bleve"
	"github.com/kailas-cloud/libcat/internal/index/meili"
	"github.com/kailas-cloud/libcat/internal/index/solr"
	catalogrepo "github.com/kailas-cloud/libcat/internal/repository/catalog"
	healthuc "github.com/kailas-cloud/libcat/internal/usecase/health"
	"github.com/kailas-cloud/libcat/internal/usecase/oai"
	searchuc "github.com/kailas-cloud/libcat/internal/usecase/search"
	"github.com/kailas-cloud/libcat/internal/usecase/snapshot"
	"github.com/kailas-cloud/libcat/internal/version"
)

const (
	defaultIndexName = "manifestations"
	defaultTimeout   = 10 * time.Second
)

// Internal interfaces for substitution in tests.
type searchUseCase interface {
	Search(ctx context.Context, req *request.Request, actor *domain.User, st *session.State) (*result.Listing, error)
	Show(ctx context.Context, id int64, actor *domain.User, st *session.State) (*result.Record, error)
}

type harvestUseCase interface {
	Handle(ctx context.Context, p oai.Params) (*oai.Response, error)
}

// Client is the libcat SDK entry point.
type Client struct {
	indexer    index.Indexer // nil for read-only backends
	searchSvc  searchUseCase
	harvestSvc harvestUseCase
	healthSvc  healthUseCase
	closers    []func()
	obs        *observer
}

// New creates a Client over the configured index and catalog.
// Without an index option the client uses an in-memory bleve index.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &clientConfig{
		backend:   backendBleve,
		indexName: defaultIndexName,
		timeout:   defaultTimeout,
		location:  time.UTC,
	}
	for _, o := range opts {
		o.apply(cfg)
	}

	c := &Client{}
	cat, err := c.openCatalog(ctx, cfg)
	if err != nil {
		return nil, err
	}
	ix, err := c.openIndex(ctx, cfg)
	if err != nil {
		c.Close()
		return nil, err
	}
	if w, ok := ix.(index.Indexer); ok {
		c.indexer = w
	}

	c.obs, err = newObserver(ix.Name(), cfg.logger, cfg.metricsReg)
	if err != nil {
		c.Close()
		return nil, err
	}

	builder := query.NewBuilder(cfg.location)
	exec := searchuc.NewExecutor(ix, cfg.maxResults, cfg.perPage, 0, nil)

	// Pass nil interfaces (not typed nil pointers) for features the catalog cannot serve.
	caps := searchuc.Capabilities{Circulation: cfg.circulation}
	if sp, ok := cat.(searchuc.SubjectFacetProvider); ok {
		caps.Subjects = sp
	}
	if bp, ok := cat.(searchuc.BookmarkTagProvider); ok {
		caps.Bookmarks = bp
	}
	var catalogPinger healthuc.Pinger
	if p, ok := cat.(healthuc.Pinger); ok {
		catalogPinger = p
	}

	c.searchSvc = searchuc.New(exec, cat, snapshot.New(nil), builder, caps)
	c.harvestSvc = oai.New(exec, cat, oai.Config{
		RepositoryName:   version.Name,
		IdentifierPrefix: cfg.identifierPrefix,
		PageSize:         cfg.harvestPageSize,
	}, nil)
	c.healthSvc = healthuc.New(nil, ix, catalogPinger)
	return c, nil
}

func (c *Client) openCatalog(ctx context.Context, cfg *clientConfig) (Catalog, error) {
	if cfg.catalog != nil {
		return cfg.catalog, nil
	}
	if cfg.catalogDSN == "" {
		return nil, errors.New("libcat: catalog required (use WithCatalog or WithPostgres)")
	}
	pool, err := catalogrepo.Open(ctx, cfg.catalogDSN, cfg.maxConns)
	if err != nil {
		return nil, fmt.Errorf("libcat: open catalog: %w", err)
	}
	c.closers = append(c.closers, pool.Close)
	return catalogrepo.New(pool), nil
}

func (c *Client) openIndex(ctx context.Context, cfg *clientConfig) (index.Index, error) {
	switch cfg.backend {
	case backendBleve:
		ix, err := bleve.Open(cfg.path)
		if err != nil {
			return nil, fmt.Errorf("libcat: open bleve index: %w", err)
		}
		c.closers = append(c.closers, func() { _ = ix.Close() })
		return ix, nil
	case backendSolr:
		return solr.New(cfg.url, cfg.timeout), nil
	case backendMeilisearch:
		ix := meili.New(cfg.url, cfg.apiKey, cfg.indexName)
		if err := ix.EnsureIndex(ctx); err != nil {
			return nil, fmt.Errorf("libcat: ensure meilisearch index: %w", err)
		}
		return ix, nil
	default:
		return nil, fmt.Errorf("libcat: unknown backend %q", cfg.backend)
	}
}

// Close releases the index and the catalog connection pool.
func (c *Client) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

// Search runs one listing page with the visibility rules of p.User.
func (c *Client) Search(ctx context.Context, p Params) (res *SearchResult, err error) {
	start := time.Now()
	defer func() {
		n := 0
		if res != nil {
			n = len(res.Records)
		}
		c.obs.observe("search", start, n, err)
	}()

	listing, err := c.searchSvc.Search(ctx, p.toRequest(), p.User, nil)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	return searchResultFrom(listing), nil
}

// Get returns one record if user may see it.
func (c *Client) Get(ctx context.Context, id int64, user *User) (m *Manifestation, err error) {
	start := time.Now()
	defer func() { c.obs.observe("get", start, 0, err) }()

	rec, err := c.searchSvc.Show(ctx, id, user, nil)
	if err != nil {
		return nil, fmt.Errorf("get %d: %w", id, err)
	}
	return rec.Manifestation, nil
}

// Harvest calls fn for every publicly visible record modified between from and until
// (YYYY-MM-DD or YYYY-MM-DDThh:mm:ssZ; blank means unbounded), newest first, following
// resumption tokens until the list is exhausted. An error from fn stops the harvest.
func (c *Client) Harvest(ctx context.Context, from, until string, fn func(*Manifestation) error) (err error) {
	start := time.Now()
	n := 0
	defer func() { c.obs.observe("harvest", start, n, err) }()

	p := oai.Params{
		Verb:           string(oai.ListRecords),
		MetadataPrefix: oai.FormatDC.Prefix,
		From:           from,
		Until:          until,
	}
	for {
		resp, err := c.harvestSvc.Handle(ctx, p)
		if err != nil {
			return fmt.Errorf("harvest: %w", err)
		}
		if resp.HasError(oai.NoRecordsMatch) {
			return nil
		}
		if resp.HasErrors() {
			e := resp.Errors[0]
			return fmt.Errorf("harvest: %s: %s: %w", e.Code, e.Message, domain.ErrInvalidRequest)
		}
		for _, m := range resp.Records {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("harvest: %w", err)
			}
			if err := fn(m); err != nil {
				return err
			}
			n++
		}
		if resp.Resumption == nil || resp.Resumption.Value == "" {
			return nil
		}
		p = oai.Params{Verb: string(oai.ListRecords), ResumptionToken: resp.Resumption.Value}
	}
}

// Index stores records in the index. Read-only backends return ErrNotImplemented.
func (c *Client) Index(ctx context.Context, records []*Manifestation) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("index", start, len(records), err) }()

	if c.indexer == nil {
		return fmt.Errorf("index: backend is read-only: %w", domain.ErrNotImplemented)
	}
	if len(records) == 0 {
		return nil
	}
	docs := make([]index.Document, 0, len(records))
	for _, m := range records {
		if m == nil {
			continue
		}
		docs = append(docs, index.FromManifestation(m))
	}
	if err := c.indexer.Index(ctx, docs); err != nil {
		return fmt.Errorf("index: %w", err)
	}
	return nil
}
