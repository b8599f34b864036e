package oai

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kailas-cloud/libcat/internal/domain"
	"github.com/kailas-cloud/libcat/internal/domain/search/field"
)

func TestHandle_BadVerb(t *testing.T) {
	for _, verb := range []string{"", "ListEverything"} {
		resp, err := newEngine(&fakeLister{}, newCatalog()).Handle(context.Background(), Params{Verb: verb})
		if err != nil {
			t.Fatalf("Handle: %v", err)
		}
		if !resp.HasError(BadVerb) || resp.State != Failed {
			t.Errorf("verb %q: errors = %+v", verb, resp.Errors)
		}
	}
}

func TestHandle_Identify(t *testing.T) {
	resp, err := newEngine(&fakeLister{}, newCatalog()).Handle(context.Background(), Params{Verb: "Identify"})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	r := resp.Repository
	if r == nil || r.Name != "libcat" || r.ProtocolVersion != "2.0" || !r.EarliestDatestamp.Equal(spanFrom) {
		t.Errorf("repository = %+v", r)
	}
	if resp.HasErrors() {
		t.Errorf("errors = %+v", resp.Errors)
	}
}

func TestHandle_ListMetadataFormats(t *testing.T) {
	e := newEngine(&fakeLister{}, newCatalog())
	resp, err := e.Handle(context.Background(), Params{Verb: "ListMetadataFormats"})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(resp.Formats) != 2 || resp.Formats[0].Prefix != "oai_dc" {
		t.Errorf("formats = %+v", resp.Formats)
	}

	resp, err = e.Handle(context.Background(), Params{Verb: "ListMetadataFormats", Identifier: "oai:libcat:99"})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !resp.HasError(IDDoesNotExist) {
		t.Errorf("errors = %+v", resp.Errors)
	}
}

func TestHandle_ListSets(t *testing.T) {
	resp, err := newEngine(&fakeLister{}, newCatalog()).Handle(context.Background(), Params{Verb: "ListSets"})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(resp.Sets) != 1 || resp.Sets[0].Spec != "7" || resp.Sets[0].Name != "Zen Monthly" {
		t.Errorf("sets = %+v", resp.Sets)
	}
}

func TestHandle_ListRecords_FirstPage(t *testing.T) {
	l := &fakeLister{total: 450}
	resp, err := newEngine(l, newCatalog()).Handle(context.Background(),
		Params{Verb: "ListRecords", MetadataPrefix: "oai_dc"})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if resp.State != InProgress || len(resp.Records) != 200 {
		t.Fatalf("state = %v, records = %d", resp.State, len(resp.Records))
	}
	r := resp.Resumption
	if r == nil || r.Value == "" || r.Cursor != 0 || r.CompleteListSize != 450 {
		t.Fatalf("resumption = %+v", r)
	}

	tok, err := DecodeToken(r.Value)
	if err != nil {
		t.Fatalf("DecodeToken: %v", err)
	}
	if !tok.From.Equal(spanFrom) || !tok.Until.Equal(spanTo) || tok.PageSize != 200 {
		t.Errorf("token = %+v", tok)
	}

	q := l.queries[0]
	if q.Sort.Field != field.UpdatedAt || !q.Sort.Desc || q.PerPage != 200 || q.Page != 1 {
		t.Errorf("query = %+v", q)
	}
	canon := q.Filters.Canonical()
	if !strings.Contains(canon, `r("updated_at","2020-01-01T00:00:00Z","2024-06-30T12:00:00Z")`) ||
		!strings.Contains(canon, `r("required_role_id","*","1")`) {
		t.Errorf("filters = %s", canon)
	}
}

func TestHandle_ListRecords_FollowsTokens(t *testing.T) {
	l := &fakeLister{total: 450}
	e := newEngine(l, newCatalog())
	ctx := context.Background()

	resp, err := e.Handle(ctx, Params{Verb: "ListIdentifiers", MetadataPrefix: "mods"})
	if err != nil {
		t.Fatal(err)
	}
	var pages []int
	for resp.Resumption != nil && resp.Resumption.Value != "" {
		resp, err = e.Handle(ctx, Params{Verb: "ListIdentifiers", ResumptionToken: resp.Resumption.Value})
		if err != nil {
			t.Fatal(err)
		}
		pages = append(pages, l.queries[len(l.queries)-1].Page)
	}

	if len(pages) != 2 || pages[0] != 2 || pages[1] != 3 {
		t.Errorf("pages = %v, want [2 3]", pages)
	}
	if resp.State != Exhausted || len(resp.Records) != 50 {
		t.Errorf("last page state = %v records = %d", resp.State, len(resp.Records))
	}
	if resp.Resumption == nil || resp.Resumption.Value != "" || resp.Resumption.Cursor != 400 {
		t.Errorf("last resumption = %+v, want empty token at cursor 400", resp.Resumption)
	}
}

func TestHandle_ListRecords_NoRecordsMatch(t *testing.T) {
	resp, err := newEngine(&fakeLister{}, newCatalog()).Handle(context.Background(),
		Params{Verb: "ListRecords", MetadataPrefix: "oai_dc", From: "2030-01-01"})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if resp.HasError(NoRecordsMatch) {
		t.Fatal("inverted window must be a bad argument, not an empty list")
	}

	resp, err = newEngine(&fakeLister{}, newCatalog()).Handle(context.Background(),
		Params{Verb: "ListRecords", MetadataPrefix: "oai_dc"})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !resp.HasError(NoRecordsMatch) || resp.State != Exhausted || resp.Resumption != nil {
		t.Errorf("state = %v errors = %+v resumption = %+v", resp.State, resp.Errors, resp.Resumption)
	}
}

func TestHandle_ListRecords_BadToken(t *testing.T) {
	l := &fakeLister{total: 450}
	resp, err := newEngine(l, newCatalog()).Handle(context.Background(),
		Params{Verb: "ListRecords", ResumptionToken: "garbage!"})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !resp.HasError(BadResumptionToken) || resp.State != Failed {
		t.Fatalf("state = %v errors = %+v", resp.State, resp.Errors)
	}
	if l.queries[0].Page != 1 || len(resp.Records) != 200 {
		t.Errorf("page = %d, records = %d", l.queries[0].Page, len(resp.Records))
	}
	if resp.Resumption != nil {
		t.Errorf("failed request issued a token: %+v", resp.Resumption)
	}
	if resp.MetadataPrefix != "oai_dc" {
		t.Errorf("metadata prefix = %q", resp.MetadataPrefix)
	}
}

func TestHandle_ListRecords_Arguments(t *testing.T) {
	tests := []struct {
		name string
		p    Params
		code string
	}{
		{"missing prefix", Params{Verb: "ListRecords"}, BadArgument},
		{"unknown prefix", Params{Verb: "ListRecords", MetadataPrefix: "marc21"}, CannotDisseminateFormat},
		{"bad from", Params{Verb: "ListRecords", MetadataPrefix: "oai_dc", From: "01/02/2024"}, BadArgument},
		{"bad until", Params{Verb: "ListRecords", MetadataPrefix: "oai_dc", Until: "2024-13-01"}, BadArgument},
		{"bad set", Params{Verb: "ListRecords", MetadataPrefix: "oai_dc", Set: "zen"}, BadArgument},
		{"unknown set", Params{Verb: "ListRecords", MetadataPrefix: "oai_dc", Set: "99"}, NoRecordsMatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := &fakeLister{total: 5}
			resp, err := newEngine(l, newCatalog()).Handle(context.Background(), tt.p)
			if err != nil {
				t.Fatalf("Handle: %v", err)
			}
			if !resp.HasError(tt.code) {
				t.Errorf("errors = %+v, want %s", resp.Errors, tt.code)
			}
			if len(l.queries) != 0 {
				t.Errorf("index queried %d times", len(l.queries))
			}
		})
	}
}

func TestHandle_ListRecords_DayGranularity(t *testing.T) {
	l := &fakeLister{total: 1}
	_, err := newEngine(l, newCatalog()).Handle(context.Background(), Params{
		Verb: "ListRecords", MetadataPrefix: "oai_dc", From: "2024-01-01", Until: "2024-01-31",
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	want := `r("updated_at","2024-01-01T00:00:00Z","2024-01-31T23:59:59Z")`
	if got := l.queries[0].Filters.Canonical(); !strings.Contains(got, want) {
		t.Errorf("filters = %s", got)
	}
}

func TestHandle_ListRecords_Set(t *testing.T) {
	l := &fakeLister{total: 1}
	_, err := newEngine(l, newCatalog()).Handle(context.Background(), Params{
		Verb: "ListRecords", MetadataPrefix: "oai_dc", Set: "7",
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if got := l.queries[0].Filters.Canonical(); !strings.Contains(got, `e("series_statement_id","7")`) {
		t.Errorf("filters = %s", got)
	}
}

func TestHandle_GetRecord(t *testing.T) {
	e := newEngine(&fakeLister{}, newCatalog())
	tests := []struct {
		name string
		p    Params
		id   int64
		code string
	}{
		{"prefixed id", Params{Identifier: "oai:libcat:1", MetadataPrefix: "oai_dc"}, 1, ""},
		{"stored identifier", Params{Identifier: "oai:legacy:abc", MetadataPrefix: "mods"}, 1, ""},
		{"missing", Params{Identifier: "oai:libcat:42", MetadataPrefix: "oai_dc"}, 0, IDDoesNotExist},
		{"restricted", Params{Identifier: "oai:libcat:2", MetadataPrefix: "oai_dc"}, 0, IDDoesNotExist},
		{"garbage id", Params{Identifier: "oai:libcat:x", MetadataPrefix: "oai_dc"}, 0, IDDoesNotExist},
		{"no identifier", Params{MetadataPrefix: "oai_dc"}, 0, BadArgument},
		{"bad format", Params{Identifier: "oai:libcat:1", MetadataPrefix: "marc21"}, 0, CannotDisseminateFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.p.Verb = "GetRecord"
			resp, err := e.Handle(context.Background(), tt.p)
			if err != nil {
				t.Fatalf("Handle: %v", err)
			}
			if tt.code != "" {
				if !resp.HasError(tt.code) {
					t.Errorf("errors = %+v, want %s", resp.Errors, tt.code)
				}
				return
			}
			if len(resp.Records) != 1 || resp.Records[0].ID != tt.id {
				t.Errorf("records = %+v", resp.Records)
			}
		})
	}
}

func TestHandle_BackendFailure(t *testing.T) {
	l := &fakeLister{total: 1, err: domain.Unavailable("index", errors.New("refused"))}
	_, err := newEngine(l, newCatalog()).Handle(context.Background(),
		Params{Verb: "ListRecords", MetadataPrefix: "oai_dc"})
	if !errors.Is(err, domain.ErrUnavailable) {
		t.Fatalf("err = %v", err)
	}

	c := newCatalog()
	c.spanErr = domain.Unavailable("catalog", errors.New("refused"))
	if _, err := newEngine(&fakeLister{}, c).Handle(context.Background(), Params{Verb: "Identify"}); !errors.Is(err, domain.ErrUnavailable) {
		t.Fatalf("identify err = %v", err)
	}
}

func TestHandle_CountsRequests(t *testing.T) {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "oai"}, []string{"verb", "error"})
	e := New(&fakeLister{}, newCatalog(), Config{}, requests)
	e.now = func() time.Time { return spanTo }

	_, _ = e.Handle(context.Background(), Params{Verb: "Identify"})
	_, _ = e.Handle(context.Background(), Params{Verb: "Bogus"})

	if got := testutil.ToFloat64(requests.WithLabelValues("Identify", "")); got != 1 {
		t.Errorf("identify = %v", got)
	}
	if got := testutil.ToFloat64(requests.WithLabelValues("invalid", BadVerb)); got != 1 {
		t.Errorf("bad verb = %v", got)
	}
}

func TestIdentifier(t *testing.T) {
	e := New(&fakeLister{}, newCatalog(), Config{}, nil)
	if got := e.Identifier(&domain.Manifestation{ID: 12}); got != "oai:libcat:12" {
		t.Errorf("Identifier = %q", got)
	}
}
