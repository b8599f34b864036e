package chi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kailas-cloud/libcat/internal/domain"
	"github.com/kailas-cloud/libcat/internal/domain/search/request"
	"github.com/kailas-cloud/libcat/internal/domain/search/result"
	"github.com/kailas-cloud/libcat/internal/domain/session"
	healthuc "github.com/kailas-cloud/libcat/internal/usecase/health"
	"github.com/kailas-cloud/libcat/internal/usecase/oai"
	"github.com/kailas-cloud/libcat/internal/usecase/sru"
)

// --- searcher mock ---

type mockSearcher struct {
	searchFn   func(ctx context.Context, req *request.Request, actor *domain.User, st *session.State) (*result.Listing, error)
	showFn     func(ctx context.Context, id int64, actor *domain.User, st *session.State) (*result.Record, error)
	tagCloudFn func(ctx context.Context, req *request.Request, actor *domain.User, st *session.State) ([]domain.Tag, error)

	lastReq   *request.Request
	lastActor *domain.User
}

func (m *mockSearcher) Search(
	ctx context.Context, req *request.Request, actor *domain.User, st *session.State,
) (*result.Listing, error) {
	m.lastReq, m.lastActor = req, actor
	if m.searchFn != nil {
		return m.searchFn(ctx, req, actor, st)
	}
	return &result.Listing{Page: result.NewPage(nil, 0, 0, 1, 10, nil)}, nil
}

func (m *mockSearcher) Show(
	ctx context.Context, id int64, actor *domain.User, st *session.State,
) (*result.Record, error) {
	m.lastActor = actor
	if m.showFn != nil {
		return m.showFn(ctx, id, actor, st)
	}
	return nil, domain.ErrNotFound
}

func (m *mockSearcher) TagCloud(
	ctx context.Context, req *request.Request, actor *domain.User, st *session.State,
) ([]domain.Tag, error) {
	m.lastReq, m.lastActor = req, actor
	if m.tagCloudFn != nil {
		return m.tagCloudFn(ctx, req, actor, st)
	}
	return nil, nil
}

// --- harvester mock ---

type mockHarvester struct {
	handleFn func(ctx context.Context, p oai.Params) (*oai.Response, error)
	last     oai.Params
}

func (m *mockHarvester) Handle(ctx context.Context, p oai.Params) (*oai.Response, error) {
	m.last = p
	return m.handleFn(ctx, p)
}

func (m *mockHarvester) Identifier(man *domain.Manifestation) string {
	return "oai:test:" + strconv.FormatInt(man.ID, 10)
}

// --- retriever mock ---

type mockRetriever struct {
	handleFn func(ctx context.Context, p sru.Params, actor *domain.User) (*sru.Response, error)
	last     sru.Params
}

func (m *mockRetriever) Handle(ctx context.Context, p sru.Params, actor *domain.User) (*sru.Response, error) {
	m.last = p
	return m.handleFn(ctx, p, actor)
}

// --- health mock ---

type mockHealth struct {
	report healthuc.Report
}

func (m *mockHealth) Check(context.Context) healthuc.Report { return m.report }

// --- session store mock ---

type mockSessionStore struct {
	states  map[string]*session.State
	loadErr error
	saveErr error
	saved   []*session.State
}

func newMockSessionStore() *mockSessionStore {
	return &mockSessionStore{states: make(map[string]*session.State)}
}

func (m *mockSessionStore) Load(_ context.Context, id string) (*session.State, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	if st, ok := m.states[id]; ok {
		return st, nil
	}
	return session.New(id), nil
}

func (m *mockSessionStore) Save(_ context.Context, st *session.State) error {
	m.saved = append(m.saved, st)
	return m.saveErr
}

var errBoom = errors.New("boom")

// newTestServer wires a server with the given searcher and optional protocol handlers.
func newTestServer(search searcher, h harvester, r retriever) *Server {
	return NewServer(search, h, r, &mockHealth{report: healthuc.Report{Status: healthuc.Healthy}},
		Options{LoginURL: "/login"}, zap.NewNop())
}

// newTestRouter mounts the server behind the format suffix middleware and any extra middleware.
func newTestRouter(s *Server, mws ...func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(FormatSuffix)
	r.Use(mws...)
	s.Routes(r)
	return r
}

// withUser returns middleware that authenticates every request as u.
func withUser(u *domain.User) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), u)))
		})
	}
}

func do(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, http.NoBody)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func sampleManifestation(id int64) *domain.Manifestation {
	ts := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	return &domain.Manifestation{
		ID:            id,
		OriginalTitle: "Moby Dick",
		Creators:      []string{"Melville, Herman"},
		Publishers:    []string{"Harper"},
		ISBN:          "9780142437247",
		Language:      "eng",
		CreatedAt:     ts,
		UpdatedAt:     ts,
	}
}
