package chi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/kailas-cloud/libcat/internal/domain"
	"github.com/kailas-cloud/libcat/internal/domain/search/mode"
	"github.com/kailas-cloud/libcat/internal/domain/search/request"
	"github.com/kailas-cloud/libcat/internal/domain/search/result"
	"github.com/kailas-cloud/libcat/internal/domain/session"
	healthuc "github.com/kailas-cloud/libcat/internal/usecase/health"
	"github.com/kailas-cloud/libcat/internal/usecase/oai"
	"github.com/kailas-cloud/libcat/internal/usecase/sru"
)

func listingOf(ids ...int64) *result.Listing {
	records := make([]*domain.Manifestation, 0, len(ids))
	for _, id := range ids {
		records = append(records, sampleManifestation(id))
	}
	return &result.Listing{
		Page:    result.NewPage(ids, 25, 40, 1, 10, nil),
		Records: records,
		Query:   "moby",
		Facets:  []result.Facet{{Name: "language", Rows: []result.FacetCount{{Value: "eng", Count: 3}}}},
	}
}

func TestListManifestations_JSON(t *testing.T) {
	ms := &mockSearcher{
		searchFn: func(context.Context, *request.Request, *domain.User, *session.State) (*result.Listing, error) {
			return listingOf(1, 2), nil
		},
	}
	h := newTestRouter(newTestServer(ms, nil, nil))

	rr := do(t, h, "/manifestations?format=json&query=moby&creator=melville&page=2&sort_by=title&mode=recent&language=eng+jpn")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200; body=%s", rr.Code, rr.Body.String())
	}

	req := ms.lastReq
	if req.Query != "moby" || req.Filters.Creator != "melville" || req.Page != 2 {
		t.Errorf("bound request: %+v", req)
	}
	if req.SortBy != "title" || req.Mode != mode.Recent || req.Format != request.JSON {
		t.Errorf("bound request: %+v", req)
	}
	if req.Filters.Language != "eng jpn" {
		t.Errorf("language: got %q", req.Filters.Language)
	}

	var body listingJSON
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Total != 25 || body.TrueTotal != 40 || body.TotalPages != 3 || !body.HasNext {
		t.Errorf("paging: %+v", body)
	}
	if len(body.Manifestations) != 2 || body.Manifestations[0].ID != 1 {
		t.Errorf("manifestations: %+v", body.Manifestations)
	}
	if len(body.Facets) != 1 || body.Facets[0].Rows[0].Count != 3 {
		t.Errorf("facets: %+v", body.Facets)
	}
}

func TestListManifestations_DefaultsToHTMLModel(t *testing.T) {
	ms := &mockSearcher{}
	h := newTestRouter(newTestServer(ms, nil, nil))

	rr := do(t, h, "/manifestations?page=abc")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d", rr.Code)
	}
	if ms.lastReq.Format != request.HTML {
		t.Errorf("format: got %q, want html", ms.lastReq.Format)
	}
	if ms.lastReq.Page != 1 {
		t.Errorf("unreadable page: got %d, want 1", ms.lastReq.Page)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type: got %q", ct)
	}
}

func TestListManifestations_FormatSuffix(t *testing.T) {
	ms := &mockSearcher{
		searchFn: func(context.Context, *request.Request, *domain.User, *session.State) (*result.Listing, error) {
			return listingOf(7), nil
		},
	}
	h := newTestRouter(newTestServer(ms, nil, nil))

	tests := []struct {
		target      string
		contentType string
		contains    string
	}{
		{"/manifestations.csv", contentTypeCSV, "id,original_title"},
		{"/manifestations.xml", contentTypeXML, `<manifestation id="7">`},
		{"/manifestations.rss", contentTypeRSS, "<rss version=\"2.0\""},
		{"/manifestations.atom", contentTypeAtom, "<feed"},
		{"/manifestations.mods", contentTypeXML, "<modsCollection"},
		{"/manifestations.json?format=csv", contentTypeCSV, "Melville, Herman"},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			rr := do(t, h, tt.target)
			if rr.Code != http.StatusOK {
				t.Fatalf("status: got %d; body=%s", rr.Code, rr.Body.String())
			}
			if ct := rr.Header().Get("Content-Type"); ct != tt.contentType {
				t.Errorf("content type: got %q, want %q", ct, tt.contentType)
			}
			if !strings.Contains(rr.Body.String(), tt.contains) {
				t.Errorf("body missing %q:\n%s", tt.contains, rr.Body.String())
			}
		})
	}
}

func TestListManifestations_UnknownFormat(t *testing.T) {
	h := newTestRouter(newTestServer(&mockSearcher{}, nil, nil))

	rr := do(t, h, "/manifestations?format=pdf")
	if rr.Code != http.StatusNotImplemented {
		t.Errorf("status: got %d, want 501", rr.Code)
	}
}

func TestScopedListings(t *testing.T) {
	tests := []struct {
		target string
		want   request.Scope
	}{
		{"/series_statements/3/manifestations", request.Scope{SeriesStatementID: 3}},
		{"/patrons/4/manifestations", request.Scope{PatronID: 4}},
		{"/subjects/5/manifestations", request.Scope{SubjectID: 5}},
		{"/manifestations/6/manifestations", request.Scope{OriginalManifestation: 6}},
		{"/manifestations?creator_id=8&publisher_id=9", request.Scope{CreatorID: 8, PublisherID: 9}},
		{"/series_statements/3/manifestations.json", request.Scope{SeriesStatementID: 3}},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			ms := &mockSearcher{}
			h := newTestRouter(newTestServer(ms, nil, nil))

			rr := do(t, h, tt.target)
			if rr.Code != http.StatusOK {
				t.Fatalf("status: got %d", rr.Code)
			}
			if ms.lastReq.Scope != tt.want {
				t.Errorf("scope: got %+v, want %+v", ms.lastReq.Scope, tt.want)
			}
		})
	}
}

func TestScopedListings_BadID(t *testing.T) {
	h := newTestRouter(newTestServer(&mockSearcher{}, nil, nil))

	for _, target := range []string{
		"/series_statements/abc/manifestations",
		"/patrons/0/manifestations",
		"/manifestations?creator_id=x",
	} {
		rr := do(t, h, target)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("%s: got %d, want 400", target, rr.Code)
		}
	}
}

func TestListManifestations_ErrorMapping(t *testing.T) {
	librarian := &domain.User{Login: "lib", Role: domain.RoleLibrarian}

	tests := []struct {
		name     string
		err      error
		target   string
		user     *domain.User
		status   int
		location string
	}{
		{"not found", fmt.Errorf("get series statement: %w", domain.ErrNotFound),
			"/manifestations", nil, http.StatusNotFound, ""},
		{"unavailable", domain.Unavailable("solr", errBoom),
			"/manifestations", nil, http.StatusServiceUnavailable, ""},
		{"anonymous html denied", domain.NewAccessDenied(nil, "add mode"),
			"/manifestations?mode=add", nil, http.StatusFound, "/login"},
		{"anonymous api denied", domain.NewAccessDenied(nil, "add mode"),
			"/manifestations.json?mode=add", nil, http.StatusUnauthorized, ""},
		{"authenticated denied", domain.NewAccessDenied(librarian, "add mode"),
			"/manifestations?mode=add", librarian, http.StatusForbidden, ""},
		{"internal", errBoom, "/manifestations", nil, http.StatusInternalServerError, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ms := &mockSearcher{
				searchFn: func(context.Context, *request.Request, *domain.User, *session.State) (*result.Listing, error) {
					return nil, tt.err
				},
			}
			var mws []func(http.Handler) http.Handler
			if tt.user != nil {
				mws = append(mws, withUser(tt.user))
			}
			h := newTestRouter(newTestServer(ms, nil, nil), mws...)

			rr := do(t, h, tt.target)
			if rr.Code != tt.status {
				t.Fatalf("status: got %d, want %d; body=%s", rr.Code, tt.status, rr.Body.String())
			}
			if tt.location != "" && rr.Header().Get("Location") != tt.location {
				t.Errorf("location: got %q, want %q", rr.Header().Get("Location"), tt.location)
			}
			if tt.status == http.StatusInternalServerError && strings.Contains(rr.Body.String(), "boom") {
				t.Errorf("internal error leaked: %s", rr.Body.String())
			}
		})
	}
}

func TestListManifestations_CountsRequests(t *testing.T) {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_requests_total"}, []string{"format", "status"})
	failing := false
	ms := &mockSearcher{
		searchFn: func(context.Context, *request.Request, *domain.User, *session.State) (*result.Listing, error) {
			if failing {
				return nil, domain.Unavailable("index", errBoom)
			}
			return listingOf(1), nil
		},
	}
	s := NewServer(ms, nil, nil, &mockHealth{}, Options{Requests: requests}, zap.NewNop())
	h := newTestRouter(s)

	do(t, h, "/manifestations.json")
	failing = true
	do(t, h, "/manifestations.json")

	if got := testutil.ToFloat64(requests.WithLabelValues("json", "200")); got != 1 {
		t.Errorf("json/200: got %v, want 1", got)
	}
	if got := testutil.ToFloat64(requests.WithLabelValues("json", "503")); got != 1 {
		t.Errorf("json/503: got %v, want 1", got)
	}
}

func TestListManifestations_TagCloud(t *testing.T) {
	ms := &mockSearcher{
		tagCloudFn: func(context.Context, *request.Request, *domain.User, *session.State) ([]domain.Tag, error) {
			return []domain.Tag{{Name: "whales", Count: 4}}, nil
		},
	}
	h := newTestRouter(newTestServer(ms, nil, nil))

	rr := do(t, h, "/manifestations?view=tag_cloud&query=moby")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d", rr.Code)
	}
	var body tagCloudJSON
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Tags) != 1 || body.Tags[0].Name != "whales" || body.Tags[0].Count != 4 {
		t.Errorf("tags: %+v", body.Tags)
	}
	if ms.lastReq.Query != "moby" {
		t.Errorf("query: got %q", ms.lastReq.Query)
	}
}

func TestShowManifestation(t *testing.T) {
	ms := &mockSearcher{
		showFn: func(_ context.Context, id int64, _ *domain.User, _ *session.State) (*result.Record, error) {
			return &result.Record{Manifestation: sampleManifestation(id), Prev: id - 1, Next: id + 1}, nil
		},
	}
	h := newTestRouter(newTestServer(ms, nil, nil))

	rr := do(t, h, "/manifestations/5.json")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d; body=%s", rr.Code, rr.Body.String())
	}
	var body recordJSON
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Manifestation.ID != 5 || body.Prev != 4 || body.Next != 6 {
		t.Errorf("record: %+v", body)
	}

	rr = do(t, h, "/manifestations/5.mods")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `<identifier type="isbn">9780142437247</identifier>`) {
		t.Errorf("mods: %d %s", rr.Code, rr.Body.String())
	}

	rr = do(t, h, "/manifestations/5.rss")
	if rr.Code != http.StatusNotImplemented {
		t.Errorf("rss record: got %d, want 501", rr.Code)
	}
}

func TestShowManifestation_PeriodicalMaster(t *testing.T) {
	ms := &mockSearcher{
		showFn: func(_ context.Context, id int64, _ *domain.User, _ *session.State) (*result.Record, error) {
			m := sampleManifestation(id)
			m.PeriodicalMaster = true
			return &result.Record{Manifestation: m, RedirectTo: &domain.SeriesStatement{ID: 12, OriginalTitle: "Nature"}}, nil
		},
	}
	h := newTestRouter(newTestServer(ms, nil, nil))

	rr := do(t, h, "/manifestations/5")
	if rr.Code != http.StatusFound {
		t.Fatalf("status: got %d, want 302", rr.Code)
	}
	if loc := rr.Header().Get("Location"); loc != "/series_statements/12/manifestations" {
		t.Errorf("location: got %q", loc)
	}

	rr = do(t, h, "/manifestations/5?format=json")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"redirect_to"`) {
		t.Errorf("json: %d %s", rr.Code, rr.Body.String())
	}
}

func TestShowManifestation_Errors(t *testing.T) {
	ms := &mockSearcher{}
	h := newTestRouter(newTestServer(ms, nil, nil))

	if rr := do(t, h, "/manifestations/99"); rr.Code != http.StatusNotFound {
		t.Errorf("missing: got %d, want 404", rr.Code)
	}
	if rr := do(t, h, "/manifestations/abc"); rr.Code != http.StatusBadRequest {
		t.Errorf("bad id: got %d, want 400", rr.Code)
	}
}

func TestListManifestations_OAI(t *testing.T) {
	mh := &mockHarvester{
		handleFn: func(_ context.Context, p oai.Params) (*oai.Response, error) {
			resp := &oai.Response{
				Verb:           oai.Verb(p.Verb),
				Params:         p,
				Date:           time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
				MetadataPrefix: p.MetadataPrefix,
			}
			switch resp.Verb {
			case oai.ListRecords:
				resp.Records = []*domain.Manifestation{sampleManifestation(1)}
				resp.Resumption = &oai.Resumption{Value: "tok", Cursor: 0, CompleteListSize: 300}
			case oai.Identify:
				resp.Repository = &oai.Repository{Name: "libcat", ProtocolVersion: "2.0"}
			default:
				resp.Errors = []oai.Error{{Code: oai.BadVerb, Message: "illegal OAI verb"}}
			}
			return resp, nil
		},
	}
	h := newTestRouter(newTestServer(&mockSearcher{}, mh, nil))

	rr := do(t, h, "/manifestations.oai?verb=ListRecords&metadataPrefix=oai_dc&from=2024-01-01")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d", rr.Code)
	}
	if mh.last.Verb != "ListRecords" || mh.last.From != "2024-01-01" || mh.last.MetadataPrefix != "oai_dc" {
		t.Errorf("params: %+v", mh.last)
	}
	body := rr.Body.String()
	for _, want := range []string{
		"<OAI-PMH",
		"<responseDate>2024-05-01T00:00:00Z</responseDate>",
		"<identifier>oai:test:1</identifier>",
		"<dc:title>Moby Dick</dc:title>",
		`<resumptionToken completeListSize="300" cursor="0">tok</resumptionToken>`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q:\n%s", want, body)
		}
	}

	rr = do(t, h, "/manifestations?format=oai&verb=Bogus")
	body = rr.Body.String()
	if rr.Code != http.StatusOK || !strings.Contains(body, `<error code="badVerb">`) {
		t.Errorf("bad verb: %d %s", rr.Code, body)
	}
	if strings.Contains(body, `verb="Bogus"`) {
		t.Errorf("bad verb echoed in request element:\n%s", body)
	}
}

func TestListManifestations_OAIUnavailable(t *testing.T) {
	mh := &mockHarvester{
		handleFn: func(context.Context, oai.Params) (*oai.Response, error) {
			return nil, domain.Unavailable("index", errBoom)
		},
	}
	h := newTestRouter(newTestServer(&mockSearcher{}, mh, nil))

	if rr := do(t, h, "/manifestations.oai?verb=Identify"); rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status: got %d, want 503", rr.Code)
	}

	h = newTestRouter(newTestServer(&mockSearcher{}, nil, nil))
	if rr := do(t, h, "/manifestations.oai?verb=Identify"); rr.Code != http.StatusNotImplemented {
		t.Errorf("no engine: got %d, want 501", rr.Code)
	}
}

func TestListManifestations_SRU(t *testing.T) {
	mr := &mockRetriever{
		handleFn: func(_ context.Context, p sru.Params, _ *domain.User) (*sru.Response, error) {
			resp := &sru.Response{Operation: sru.OperationSearch, Version: sru.Version, Params: p, Schema: sru.SchemaDC}
			if p.Query == "(" {
				resp.Diagnostics = []*sru.Diagnostic{sru.NewDiagnostic(sru.DiagQuerySyntax, "unexpected end")}
				return resp, nil
			}
			resp.NumberOfRecords = 3
			resp.Records = []sru.Record{{Position: 1, Manifestation: sampleManifestation(1)}}
			resp.NextRecordPosition = 2
			return resp, nil
		},
	}
	h := newTestRouter(newTestServer(&mockSearcher{}, nil, mr))

	rr := do(t, h, "/manifestations.sru?operation=searchRetrieve&query=title%3Dmoby&maximumRecords=1")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d", rr.Code)
	}
	if mr.last.Query != "title=moby" || mr.last.MaximumRecords != "1" {
		t.Errorf("params: %+v", mr.last)
	}
	body := rr.Body.String()
	for _, want := range []string{
		"<searchRetrieveResponse",
		"<numberOfRecords>3</numberOfRecords>",
		"<recordPosition>1</recordPosition>",
		"<nextRecordPosition>2</nextRecordPosition>",
		"<dc:title>Moby Dick</dc:title>",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q:\n%s", want, body)
		}
	}

	rr = do(t, h, "/manifestations?format=sru&operation=searchRetrieve&query=%28")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "<uri>info:srw/diagnostic/1/10</uri>") {
		t.Errorf("diagnostic: %d %s", rr.Code, rr.Body.String())
	}
}

func TestListManifestations_SRUExplain(t *testing.T) {
	mr := &mockRetriever{
		handleFn: func(_ context.Context, p sru.Params, _ *domain.User) (*sru.Response, error) {
			return &sru.Response{
				Operation: sru.OperationExplain,
				Version:   sru.Version,
				Params:    p,
				Explain: &sru.Explain{
					Title:          "libcat",
					Indexes:        []string{"dc.title", "title"},
					Schemas:        []sru.Schema{sru.SchemaDC},
					MaximumRecords: 200,
				},
			}, nil
		},
	}
	h := newTestRouter(newTestServer(&mockSearcher{}, nil, mr))

	rr := do(t, h, "/manifestations.sru")
	body := rr.Body.String()
	for _, want := range []string{
		"<explainResponse",
		"<title>libcat</title>",
		"<name>dc.title</name>",
		`<default type="numberOfRecords">200</default>`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q:\n%s", want, body)
		}
	}
}

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		name   string
		report healthuc.Report
		status int
	}{
		{"healthy", healthuc.Report{Status: healthuc.Healthy, Checks: map[string]healthuc.CheckResult{
			healthuc.SearchIndex: healthuc.CheckOK,
		}}, http.StatusOK},
		{"degraded", healthuc.Report{Status: healthuc.Degraded, Checks: map[string]healthuc.CheckResult{
			healthuc.SearchIndex:  healthuc.CheckOK,
			healthuc.SessionStore: healthuc.CheckError,
		}}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer(&mockSearcher{}, nil, nil, &mockHealth{report: tt.report}, Options{}, zap.NewNop())
			rr := do(t, newTestRouter(s), "/health")
			if rr.Code != tt.status {
				t.Fatalf("status: got %d, want %d", rr.Code, tt.status)
			}
			var body healthResponse
			if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Status != string(tt.report.Status) || len(body.Checks) != len(tt.report.Checks) {
				t.Errorf("body: %+v", body)
			}
		})
	}
}
