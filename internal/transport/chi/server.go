package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/libcat/internal/domain"
	"github.com/kailas-cloud/libcat/internal/domain/search/request"
	"github.com/kailas-cloud/libcat/internal/domain/search/result"
	"github.com/kailas-cloud/libcat/internal/domain/session"
	"github.com/kailas-cloud/libcat/internal/logger"
	healthuc "github.com/kailas-cloud/libcat/internal/usecase/health"
	"github.com/kailas-cloud/libcat/internal/usecase/oai"
	searchuc "github.com/kailas-cloud/libcat/internal/usecase/search"
	"github.com/kailas-cloud/libcat/internal/usecase/sru"
)

// Error codes of JSON error bodies.
const (
	codeBadRequest     = "bad_request"
	codeUnauthorized   = "unauthorized"
	codeForbidden      = "forbidden"
	codeNotFound       = "not_found"
	codeUnavailable    = "service_unavailable"
	codeNotImplemented = "not_implemented"
	codeInternal       = "internal_error"
)

// searcher runs listings and record views (ISP).
type searcher interface {
	Search(ctx context.Context, req *request.Request, actor *domain.User, st *session.State) (*result.Listing, error)
	Show(ctx context.Context, id int64, actor *domain.User, st *session.State) (*result.Record, error)
	TagCloud(ctx context.Context, req *request.Request, actor *domain.User, st *session.State) ([]domain.Tag, error)
}

// harvester answers OAI-PMH requests (ISP).
type harvester interface {
	Handle(ctx context.Context, p oai.Params) (*oai.Response, error)
	Identifier(m *domain.Manifestation) string
}

// retriever answers SRU requests (ISP).
type retriever interface {
	Handle(ctx context.Context, p sru.Params, actor *domain.User) (*sru.Response, error)
}

// healthChecker reports component health (ISP).
type healthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, r *http.Request, err error, msg string) bool

// Options tune the HTTP surface.
type Options struct {
	// LoginURL is where anonymous html visitors are sent when access is denied.
	LoginURL string
	// Requests counts listing requests by format and status. It may be nil.
	Requests *prometheus.CounterVec
}

// Server serves the catalog listing, OAI-PMH and SRU endpoints.
type Server struct {
	search        searcher
	oai           harvester
	sru           retriever
	health        healthChecker
	opts          Options
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP server. oai and sru may be nil; their formats then answer 501.
func NewServer(
	search searcher,
	oai harvester,
	sru retriever,
	health healthChecker,
	opts Options,
	logger *zap.Logger,
) *Server {
	if opts.LoginURL == "" {
		opts.LoginURL = "/users/sign_in"
	}
	s := &Server{
		search: search,
		oai:    oai,
		sru:    sru,
		health: health,
		opts:   opts,
		logger: logger,
	}
	s.errorHandlers = []errorHandler{
		s.accessDeniedHandler,
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, codeNotFound),
		sentinelHandler(domain.ErrInvalidRequest, http.StatusBadRequest, codeBadRequest),
		sentinelHandler(domain.ErrUnavailable, http.StatusServiceUnavailable, codeUnavailable),
		sentinelHandler(domain.ErrNotImplemented, http.StatusNotImplemented, codeNotImplemented),
	}
	return s
}

// Routes registers the endpoints on r.
func (s *Server) Routes(r chi.Router) {
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)

	r.Get("/manifestations", s.ListManifestations)
	r.Get("/manifestations/{id}", s.ShowManifestation)
	r.Get("/manifestations/{id}/manifestations", s.scoped(func(sc *request.Scope, id int64) {
		sc.OriginalManifestation = id
	}))
	r.Get("/series_statements/{id}/manifestations", s.scoped(func(sc *request.Scope, id int64) {
		sc.SeriesStatementID = id
	}))
	r.Get("/patrons/{id}/manifestations", s.scoped(func(sc *request.Scope, id int64) {
		sc.PatronID = id
	}))
	r.Get("/subjects/{id}/manifestations", s.scoped(func(sc *request.Scope, id int64) {
		sc.SubjectID = id
	}))
}

// ListManifestations handles GET /manifestations.
func (s *Server) ListManifestations(w http.ResponseWriter, r *http.Request) {
	s.list(w, r, request.Scope{})
}

// scoped returns a listing handler narrowed to the entity named by the {id} path parameter.
func (s *Server) scoped(set func(sc *request.Scope, id int64)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := bindID(r)
		if err != nil {
			s.handleDomainError(w, r, err)
			return
		}
		var sc request.Scope
		set(&sc, id)
		s.list(w, r, sc)
	}
}

func (s *Server) list(w http.ResponseWriter, r *http.Request, scope request.Scope) {
	req, err := bindListRequest(r)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	mergeScope(&req.Scope, scope)
	ctx := logger.With(r.Context(), zap.String("format", string(req.Format)))
	r = r.WithContext(ctx)
	setFormat(ctx, req.Format)

	switch req.Format {
	case request.OAI:
		s.harvest(w, r)
		return
	case request.SRU:
		s.retrieve(w, r)
		return
	}

	actor := UserFromContext(ctx)
	st := SessionFromContext(ctx)

	if req.View == searchuc.ViewTagCloud {
		tags, err := s.search.TagCloud(ctx, req, actor, st)
		if err != nil {
			s.fail(w, r, req.Format, err)
			return
		}
		s.count(req.Format, http.StatusOK)
		writeJSON(w, http.StatusOK, tagCloudToJSON(tags))
		return
	}

	listing, err := s.search.Search(ctx, req, actor, st)
	if err != nil {
		s.fail(w, r, req.Format, err)
		return
	}
	if err := renderListing(w, r, req, listing); err != nil {
		logger.FromContext(ctx).Warn("Failed to render listing", zap.Error(err))
	}
	s.count(req.Format, http.StatusOK)
}

// ShowManifestation handles GET /manifestations/{id}.
func (s *Server) ShowManifestation(w http.ResponseWriter, r *http.Request) {
	id, err := bindID(r)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	format, err := bindFormat(r)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	ctx := r.Context()
	setFormat(ctx, format)

	rec, err := s.search.Show(ctx, id, UserFromContext(ctx), SessionFromContext(ctx))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	if rec.RedirectTo != nil && format == request.HTML {
		http.Redirect(w, r, seriesPath(rec.RedirectTo.ID), http.StatusFound)
		return
	}
	if err := renderRecord(w, format, rec); err != nil {
		if errors.Is(err, domain.ErrNotImplemented) {
			s.handleDomainError(w, r, err)
			return
		}
		logger.FromContext(ctx).Warn("Failed to render record", zap.Error(err))
	}
}

func (s *Server) harvest(w http.ResponseWriter, r *http.Request) {
	if s.oai == nil {
		s.fail(w, r, request.OAI, domain.ErrNotImplemented)
		return
	}
	resp, err := s.oai.Handle(r.Context(), bindOAIParams(r))
	if err != nil {
		s.fail(w, r, request.OAI, err)
		return
	}
	s.count(request.OAI, http.StatusOK)
	if err := writeXML(w, http.StatusOK, oaiToXML(resp, s.oai.Identifier, requestURL(r, "/manifestations"))); err != nil {
		logger.FromContext(r.Context()).Warn("Failed to render OAI response", zap.Error(err))
	}
}

func (s *Server) retrieve(w http.ResponseWriter, r *http.Request) {
	if s.sru == nil {
		s.fail(w, r, request.SRU, domain.ErrNotImplemented)
		return
	}
	resp, err := s.sru.Handle(r.Context(), bindSRUParams(r), UserFromContext(r.Context()))
	if err != nil {
		s.fail(w, r, request.SRU, err)
		return
	}
	s.count(request.SRU, http.StatusOK)
	if err := writeXML(w, http.StatusOK, sruToXML(resp)); err != nil {
		logger.FromContext(r.Context()).Warn("Failed to render SRU response", zap.Error(err))
	}
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, healthResponse{
		Status: string(report.Status),
		Checks: checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrAccessDenied,
		domain.ErrNotFound,
		domain.ErrInvalidRequest,
		domain.ErrUnavailable,
		domain.ErrNotImplemented,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, _ *http.Request, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// accessDeniedHandler sends anonymous html visitors to the login page, answers 401 to
// anonymous API clients and 403 to signed-in users.
func (s *Server) accessDeniedHandler(w http.ResponseWriter, r *http.Request, err error, msg string) bool {
	if !errors.Is(err, domain.ErrAccessDenied) {
		return false
	}
	authenticated := UserFromContext(r.Context()) != nil
	var ade *domain.AccessDeniedError
	if errors.As(err, &ade) {
		authenticated = ade.Authenticated
	}
	switch {
	case authenticated:
		writeError(w, http.StatusForbidden, codeForbidden, msg)
	case formatOf(r.Context()) == request.HTML:
		http.Redirect(w, r, s.opts.LoginURL, http.StatusFound)
	default:
		w.Header().Set("WWW-Authenticate", `Bearer realm="libcat"`)
		writeError(w, http.StatusUnauthorized, codeUnauthorized, msg)
	}
	return true
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, r, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
}

// fail handles a listing error and counts it.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, format request.Format, err error) {
	rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.handleDomainError(rw, r, err)
	s.count(format, rw.status)
}

func (s *Server) count(format request.Format, status int) {
	if s.opts.Requests != nil {
		s.opts.Requests.WithLabelValues(string(format), strconv.Itoa(status)).Inc()
	}
}

// statusRecorder captures the status code written by an error handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func mergeScope(dst *request.Scope, src request.Scope) {
	if src.SeriesStatementID != 0 {
		dst.SeriesStatementID = src.SeriesStatementID
	}
	if src.PatronID != 0 {
		dst.PatronID = src.PatronID
	}
	if src.SubjectID != 0 {
		dst.SubjectID = src.SubjectID
	}
	if src.OriginalManifestation != 0 {
		dst.OriginalManifestation = src.OriginalManifestation
	}
}

func seriesPath(id int64) string {
	return "/series_statements/" + strconv.FormatInt(id, 10) + "/manifestations"
}
