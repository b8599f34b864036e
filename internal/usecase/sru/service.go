// Package sru answers SRU searchRetrieve and explain requests with CQL queries.
package sru

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/libcat/internal/domain"
	"github.com/kailas-cloud/libcat/internal/domain/search/mode"
	"github.com/kailas-cloud/libcat/internal/domain/search/result"
	"github.com/kailas-cloud/libcat/internal/logger"
	"github.com/kailas-cloud/libcat/internal/usecase/search"
)

// Defaults.
const (
	Version               = "1.2"
	DefaultMaximumRecords = 200
	OperationSearch       = "searchRetrieve"
	OperationExplain      = "explain"
)

// Record schemas.
var (
	SchemaDC   = Schema{Name: "dc", Identifier: "info:srw/schema/1/dc-v1.1", Title: "Dublin Core"}
	SchemaMODS = Schema{Name: "mods", Identifier: "info:srw/schema/1/mods-v3.4", Title: "MODS v3.4"}
)

// Schema is a record schema the service can render.
type Schema struct {
	Name       string
	Identifier string
	Title      string
}

// Lister runs composed listing queries.
type Lister interface {
	Execute(ctx context.Context, q search.ComposedQuery) (result.Page, error)
	MaxResults() int
}

// Catalog loads the records of a result page.
type Catalog interface {
	Manifestations(ctx context.Context, ids []int64) ([]*domain.Manifestation, error)
}

// Params are the raw request parameters. Numeric values are validated here so that
// bad input becomes a diagnostic rather than a transport error.
type Params struct {
	Operation      string
	Version        string
	Query          string
	StartRecord    string
	MaximumRecords string
	RecordSchema   string
	SortKeys       string
}

// Record is one result with its 1-based position in the result set.
type Record struct {
	Position      int
	Manifestation *domain.Manifestation
}

// Explain describes the database.
type Explain struct {
	Title          string
	BaseURL        string
	Indexes        []string
	Schemas        []Schema
	MaximumRecords int
}

// Response is the outcome of one SRU request.
type Response struct {
	Operation          string
	Version            string
	Params             Params
	Schema             Schema
	NumberOfRecords    int
	Records            []Record
	NextRecordPosition int
	Diagnostics        []*Diagnostic
	Explain            *Explain
}

// Config describes the database in explain records.
type Config struct {
	Title          string
	BaseURL        string
	MaximumRecords int
}

// Service evaluates SRU requests.
type Service struct {
	lister     Lister
	catalog    Catalog
	translator *Translator
	cfg        Config
}

// New creates a service.
func New(lister Lister, catalog Catalog, translator *Translator, cfg Config) *Service {
	if cfg.MaximumRecords <= 0 {
		cfg.MaximumRecords = DefaultMaximumRecords
	}
	if translator == nil {
		translator = NewTranslator(nil)
	}
	return &Service{lister: lister, catalog: catalog, translator: translator, cfg: cfg}
}

// Handle answers one request. Protocol problems are reported as diagnostics in the
// response; only backend failures are returned as errors.
func (s *Service) Handle(ctx context.Context, p Params, actor *domain.User) (*Response, error) {
	resp := &Response{Version: Version, Params: p, Schema: SchemaDC}
	if p.Operation != OperationSearch {
		resp.Operation = OperationExplain
		resp.Explain = s.explain()
		return resp, nil
	}
	resp.Operation = OperationSearch

	if err := s.search(ctx, resp, actor); err != nil {
		var diag *Diagnostic
		if errors.As(err, &diag) {
			logger.FromContext(ctx).Debug("SRU diagnostic",
				zap.String("uri", diag.URI()), zap.String("details", diag.Details))
			resp.Diagnostics = append(resp.Diagnostics, diag)
			return resp, nil
		}
		return nil, err
	}
	return resp, nil
}

func (s *Service) search(ctx context.Context, resp *Response, actor *domain.User) error {
	p := resp.Params
	schema, err := resolveSchema(p.RecordSchema)
	if err != nil {
		return err
	}
	resp.Schema = schema

	start, err := positiveParam("startRecord", p.StartRecord, 1, 1)
	if err != nil {
		return err
	}
	limit, err := positiveParam("maximumRecords", p.MaximumRecords, s.cfg.MaximumRecords, 0)
	if err != nil {
		return err
	}
	limit = min(limit, s.lister.MaxResults())

	if strings.TrimSpace(p.Query) == "" {
		return NewDiagnostic(DiagMissingParam, "query")
	}
	q, err := Parse(p.Query)
	if err != nil {
		return NewDiagnostic(DiagQuerySyntax, err.Error())
	}
	clauses, diag := s.translator.Clauses(q)
	if diag != nil {
		return diag
	}
	keys := q.Sort
	if len(keys) == 0 {
		keys = ParseSortKeys(p.SortKeys)
	}
	order, diag := Sort(keys)
	if diag != nil {
		return diag
	}

	perPage := max(limit, 1)
	page, err := s.lister.Execute(ctx, search.ComposedQuery{
		Query:   clauses,
		Filters: search.Apply(search.Scope{}, domain.RoleOf(actor), mode.Normal),
		Sort:    order,
		Page:    1,
		PerPage: perPage,
		Offset:  start - 1,
	})
	if err != nil {
		return fmt.Errorf("sru search: %w", err)
	}
	resp.NumberOfRecords = page.Total()
	if limit == 0 || page.Total() == 0 {
		return nil
	}
	if start > page.Total() {
		return NewDiagnostic(DiagFirstRecordOutOfRange, strconv.Itoa(start))
	}

	records, err := s.catalog.Manifestations(ctx, page.IDs())
	if err != nil {
		return fmt.Errorf("load records: %w", err)
	}
	first := page.Offset() + 1
	for i, m := range records {
		resp.Records = append(resp.Records, Record{Position: first + i, Manifestation: m})
	}
	if next := page.Offset() + len(page.IDs()) + 1; next <= page.Total() {
		resp.NextRecordPosition = next
	}
	return nil
}

func (s *Service) explain() *Explain {
	names := make([]string, 0, len(indexes))
	for name := range indexes {
		if name != "" {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return &Explain{
		Title:          s.cfg.Title,
		BaseURL:        s.cfg.BaseURL,
		Indexes:        names,
		Schemas:        []Schema{SchemaDC, SchemaMODS},
		MaximumRecords: s.cfg.MaximumRecords,
	}
}

func resolveSchema(raw string) (Schema, error) {
	if raw == "" {
		return SchemaDC, nil
	}
	for _, sc := range []Schema{SchemaDC, SchemaMODS} {
		if strings.EqualFold(raw, sc.Name) || raw == sc.Identifier {
			return sc, nil
		}
	}
	return Schema{}, NewDiagnostic(DiagUnknownRecordSchema, raw)
}

func positiveParam(name, raw string, def, lowest int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < lowest {
		return 0, NewDiagnostic(DiagUnsupportedParamValue, name)
	}
	return n, nil
}
