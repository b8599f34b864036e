// Package oai answers OAI-PMH harvesting requests over the catalog listing.
package oai

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kailas-cloud/libcat/internal/domain"
	"github.com/kailas-cloud/libcat/internal/domain/search/clause"
	"github.com/kailas-cloud/libcat/internal/domain/search/field"
	"github.com/kailas-cloud/libcat/internal/domain/search/mode"
	"github.com/kailas-cloud/libcat/internal/domain/search/request"
	"github.com/kailas-cloud/libcat/internal/domain/search/result"
	"github.com/kailas-cloud/libcat/internal/usecase/search"
)

// Defaults.
const (
	DefaultPageSize         = 200
	DefaultIdentifierPrefix = "oai:libcat:"
	dayLayout               = "2006-01-02"
	secondLayout            = "2006-01-02T15:04:05Z"
)

// Lister runs composed listing queries.
type Lister interface {
	Execute(ctx context.Context, q search.ComposedQuery) (result.Page, error)
}

// Catalog reads the records and sets being harvested.
type Catalog interface {
	Manifestation(ctx context.Context, id int64) (*domain.Manifestation, error)
	ManifestationByOAIIdentifier(ctx context.Context, identifier string) (*domain.Manifestation, error)
	Manifestations(ctx context.Context, ids []int64) ([]*domain.Manifestation, error)
	SeriesStatement(ctx context.Context, id int64) (*domain.SeriesStatement, error)
	SeriesStatements(ctx context.Context) ([]domain.SeriesStatement, error)
	ModificationSpan(ctx context.Context) (domain.TimeSpan, error)
}

// Config describes the repository.
type Config struct {
	RepositoryName   string
	BaseURL          string
	AdminEmail       string
	IdentifierPrefix string
	PageSize         int
}

// Engine evaluates OAI-PMH requests.
type Engine struct {
	lister   Lister
	catalog  Catalog
	cfg      Config
	requests *prometheus.CounterVec
	now      func() time.Time
}

// New creates an engine.
// requests is a counter vec with labels "verb" and "error", passed explicitly; it may be nil.
func New(lister Lister, catalog Catalog, cfg Config, requests *prometheus.CounterVec) *Engine {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.IdentifierPrefix == "" {
		cfg.IdentifierPrefix = DefaultIdentifierPrefix
	}
	return &Engine{lister: lister, catalog: catalog, cfg: cfg, requests: requests, now: time.Now}
}

// Identifier returns the OAI identifier of a record.
func (e *Engine) Identifier(m *domain.Manifestation) string {
	return e.cfg.IdentifierPrefix + strconv.FormatInt(m.ID, 10)
}

// Handle evaluates one request. Protocol conditions are reported in the response;
// only backend failures are returned as errors.
func (e *Engine) Handle(ctx context.Context, p Params) (*Response, error) {
	resp := &Response{Verb: Verb(p.Verb), Params: p, Date: e.now().UTC(), MetadataPrefix: p.MetadataPrefix}

	var err error
	switch resp.Verb {
	case Identify:
		err = e.identify(ctx, resp)
	case ListMetadataFormats:
		err = e.listMetadataFormats(ctx, resp)
	case ListSets:
		err = e.listSets(ctx, resp)
	case ListIdentifiers, ListRecords:
		err = e.list(ctx, resp)
	case GetRecord:
		err = e.getRecord(ctx, resp)
	default:
		resp.fail(BadVerb, "illegal OAI verb")
	}
	if err != nil {
		return nil, err
	}

	e.count(resp)
	return resp, nil
}

func (e *Engine) identify(ctx context.Context, resp *Response) error {
	span, err := e.catalog.ModificationSpan(ctx)
	if err != nil {
		return fmt.Errorf("modification span: %w", err)
	}
	resp.Repository = &Repository{
		Name:              e.cfg.RepositoryName,
		BaseURL:           e.cfg.BaseURL,
		ProtocolVersion:   "2.0",
		AdminEmail:        e.cfg.AdminEmail,
		EarliestDatestamp: span.From,
		DeletedRecord:     "no",
		Granularity:       "YYYY-MM-DDThh:mm:ssZ",
	}
	return nil
}

func (e *Engine) listMetadataFormats(ctx context.Context, resp *Response) error {
	if id := resp.Params.Identifier; id != "" {
		if _, err := e.lookup(ctx, id); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				resp.fail(IDDoesNotExist, "no record with identifier "+id)
				return nil
			}
			return err
		}
	}
	resp.Formats = formats
	return nil
}

func (e *Engine) listSets(ctx context.Context, resp *Response) error {
	series, err := e.catalog.SeriesStatements(ctx)
	if err != nil {
		return fmt.Errorf("series statements: %w", err)
	}
	resp.Sets = make([]Set, 0, len(series))
	for _, s := range series {
		resp.Sets = append(resp.Sets, Set{Spec: strconv.FormatInt(s.ID, 10), Name: s.OriginalTitle})
	}
	return nil
}

func (e *Engine) getRecord(ctx context.Context, resp *Response) error {
	p := resp.Params
	if p.Identifier == "" || p.MetadataPrefix == "" {
		resp.fail(BadArgument, "identifier and metadataPrefix are required")
		return nil
	}
	if !supportedFormat(p.MetadataPrefix) {
		resp.fail(CannotDisseminateFormat, "unsupported metadataPrefix "+p.MetadataPrefix)
		return nil
	}
	m, err := e.lookup(ctx, p.Identifier)
	if errors.Is(err, domain.ErrNotFound) {
		resp.fail(IDDoesNotExist, "no record with identifier "+p.Identifier)
		return nil
	}
	if err != nil {
		return err
	}
	resp.Records = []*domain.Manifestation{m}
	return nil
}

// lookup resolves a prefixed numeric identifier or a stored OAI identifier.
// Records hidden from anonymous users do not exist for harvesters.
func (e *Engine) lookup(ctx context.Context, identifier string) (*domain.Manifestation, error) {
	var (
		m   *domain.Manifestation
		err error
	)
	if rest, ok := strings.CutPrefix(identifier, e.cfg.IdentifierPrefix); ok {
		id, perr := strconv.ParseInt(rest, 10, 64)
		if perr != nil {
			return nil, domain.ErrNotFound
		}
		m, err = e.catalog.Manifestation(ctx, id)
	} else {
		m, err = e.catalog.ManifestationByOAIIdentifier(ctx, identifier)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", identifier, err)
	}
	if m.RequiredRoleID > domain.DefaultRole().Rank() {
		return nil, domain.ErrNotFound
	}
	return m, nil
}

func (e *Engine) list(ctx context.Context, resp *Response) error {
	p := resp.Params
	if p.ResumptionToken == "" {
		if p.MetadataPrefix == "" {
			resp.fail(BadArgument, "metadataPrefix is required")
			return nil
		}
		if !supportedFormat(p.MetadataPrefix) {
			resp.fail(CannotDisseminateFormat, "unsupported metadataPrefix "+p.MetadataPrefix)
			return nil
		}
		window, ok, err := e.requestWindow(ctx, p.From, p.Until)
		if err != nil {
			return err
		}
		if !ok {
			resp.fail(BadArgument, "from and until must be YYYY-MM-DD or YYYY-MM-DDThh:mm:ssZ")
			return nil
		}
		return e.runWindow(ctx, resp, window, 1)
	}

	if resp.MetadataPrefix == "" {
		resp.MetadataPrefix = FormatDC.Prefix
	}
	tok, err := DecodeToken(p.ResumptionToken)
	if err != nil {
		// The envelope still lists the first page, without a token to continue from.
		resp.fail(BadResumptionToken, "the resumptionToken is invalid or expired")
		window, _, err := e.requestWindow(ctx, "", "")
		if err != nil {
			return err
		}
		return e.runWindow(ctx, resp, window, 1)
	}
	resp.State = InProgress
	return e.runWindow(ctx, resp, tok, tok.NextPage())
}

func (e *Engine) runWindow(ctx context.Context, resp *Response, window Token, page int) error {
	scope := search.Scope{}
	if spec := resp.Params.Set; spec != "" {
		id, err := strconv.ParseInt(spec, 10, 64)
		if err != nil {
			resp.fail(BadArgument, "unknown set "+spec)
			return nil
		}
		series, err := e.catalog.SeriesStatement(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			resp.Errors = append(resp.Errors, Error{Code: NoRecordsMatch, Message: "unknown set " + spec})
			resp.State = Exhausted
			return nil
		}
		if err != nil {
			return fmt.Errorf("series statement: %w", err)
		}
		scope.Series = series
	}

	filters := search.Apply(scope, domain.DefaultRole(), mode.Normal)
	filters = append(filters, clause.NewRange(field.UpdatedAt,
		window.From.UTC().Format(time.RFC3339), window.Until.UTC().Format(time.RFC3339)))

	res, err := e.lister.Execute(ctx, search.ComposedQuery{
		Filters: filters,
		Sort:    request.HarvestSort(),
		Page:    page,
		PerPage: window.PageSize,
	})
	if err != nil {
		return err
	}

	if res.IsEmpty() {
		resp.Errors = append(resp.Errors, Error{Code: NoRecordsMatch, Message: "no records match the request"})
		if resp.State != Failed {
			resp.State = Exhausted
		}
		return nil
	}

	records, err := e.catalog.Manifestations(ctx, res.IDs())
	if err != nil {
		return fmt.Errorf("load records: %w", err)
	}
	resp.Records = records

	if resp.State == Failed {
		return nil
	}
	next := &Resumption{Cursor: res.Offset(), CompleteListSize: res.Total()}
	if res.HasNext() {
		next.Value = Token{
			From: window.From, Until: window.Until,
			Cursor: res.Offset(), PageSize: window.PageSize,
		}.Encode()
		resp.State = InProgress
	} else {
		resp.State = Exhausted
	}
	resp.Resumption = next
	return nil
}

// requestWindow resolves from/until arguments. ok is false when an argument is malformed
// or the range is inverted.
func (e *Engine) requestWindow(ctx context.Context, from, until string) (Token, bool, error) {
	w := Token{PageSize: e.cfg.PageSize}
	var fromOK, untilOK bool
	if from != "" {
		t, ok := parseDatestamp(from, false)
		if !ok {
			return Token{}, false, nil
		}
		w.From, fromOK = t, true
	}
	if until != "" {
		t, ok := parseDatestamp(until, true)
		if !ok {
			return Token{}, false, nil
		}
		w.Until, untilOK = t, true
	}

	if !fromOK || !untilOK {
		span, err := e.catalog.ModificationSpan(ctx)
		if err != nil {
			return Token{}, false, fmt.Errorf("modification span: %w", err)
		}
		if !fromOK {
			w.From = span.From
		}
		if !untilOK {
			w.Until = span.Until
		}
	}
	if w.Until.Before(w.From) {
		return Token{}, false, nil
	}
	return w, true, nil
}

// parseDatestamp reads day or second granularity. A day-granular until covers the whole day.
func parseDatestamp(s string, until bool) (time.Time, bool) {
	if t, err := time.Parse(secondLayout, s); err == nil {
		return t.UTC(), true
	}
	t, err := time.Parse(dayLayout, s)
	if err != nil {
		return time.Time{}, false
	}
	if until {
		t = t.AddDate(0, 0, 1).Add(-time.Second)
	}
	return t.UTC(), true
}

func (e *Engine) count(resp *Response) {
	if e.requests == nil {
		return
	}
	code := ""
	if len(resp.Errors) > 0 {
		code = resp.Errors[0].Code
	}
	verb := string(resp.Verb)
	if !resp.Verb.valid() {
		verb = "invalid"
	}
	e.requests.WithLabelValues(verb, code).Inc()
}
