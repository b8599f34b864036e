package chi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"

	"github.com/kailas-cloud/libcat/internal/domain"
	"github.com/kailas-cloud/libcat/internal/domain/search/mode"
	"github.com/kailas-cloud/libcat/internal/domain/search/request"
	"github.com/kailas-cloud/libcat/internal/usecase/oai"
	"github.com/kailas-cloud/libcat/internal/usecase/sru"
)

type formatKey struct{}

// formatHolder carries the response format of a request. Handlers fill it in once the
// format is known so that outer middleware can log it.
type formatHolder struct {
	suffix request.Format
	format request.Format
}

// FormatSuffix strips a known format extension (".json", ".csv", ...) from the last path
// segment before routing and remembers it as the default format of the request.
func FormatSuffix(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := &formatHolder{}
		p := r.URL.Path
		slash := strings.LastIndexByte(p, '/')
		if dot := strings.LastIndexByte(p, '.'); dot > slash && dot < len(p)-1 {
			if f, ok := request.ParseFormat(p[dot+1:]); ok {
				h.suffix = f
				u := *r.URL
				u.Path = p[:dot]
				u.RawPath = ""
				r = r.Clone(r.Context())
				r.URL = &u
			}
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), formatKey{}, h)))
	})
}

// FormatFromContext returns the response format chosen for the request, or "".
func FormatFromContext(ctx context.Context) string {
	if h, ok := ctx.Value(formatKey{}).(*formatHolder); ok {
		return string(h.format)
	}
	return ""
}

func setFormat(ctx context.Context, f request.Format) {
	if h, ok := ctx.Value(formatKey{}).(*formatHolder); ok {
		h.format = f
	}
}

// formatOf returns the chosen format, falling back to the suffix and then html.
func formatOf(ctx context.Context) request.Format {
	h, ok := ctx.Value(formatKey{}).(*formatHolder)
	switch {
	case !ok:
		return request.HTML
	case h.format != "":
		return h.format
	case h.suffix != "":
		return h.suffix
	default:
		return request.HTML
	}
}

// bindFormat resolves the format parameter; an explicit parameter wins over the path suffix.
func bindFormat(r *http.Request) (request.Format, error) {
	var raw string
	if err := bindQuery(r.URL.Query(), "format", &raw); err != nil {
		return "", err
	}
	if raw == "" {
		if h, ok := r.Context().Value(formatKey{}).(*formatHolder); ok && h.suffix != "" {
			return h.suffix, nil
		}
	}
	f, ok := request.ParseFormat(raw)
	if !ok {
		return "", fmt.Errorf("format %q: %w", raw, domain.ErrNotImplemented)
	}
	return f, nil
}

// bindID reads the {id} path parameter.
func bindID(r *http.Request) (int64, error) {
	var id int64
	err := runtime.BindStyledParameterWithOptions("simple", "id", chi.URLParam(r, "id"), &id,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Required: true})
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q: %w", chi.URLParam(r, "id"), domain.ErrInvalidRequest)
	}
	return id, nil
}

// bindQuery binds an optional form-style query parameter.
func bindQuery(q url.Values, name string, dest any) error {
	if err := runtime.BindQueryParameter("form", true, false, name, q, dest); err != nil {
		return fmt.Errorf("parameter %s: %w", name, domain.ErrInvalidRequest)
	}
	return nil
}

// bindListRequest reads a listing request. Unreadable pages fall back to the first page;
// unreadable entity ids are rejected.
func bindListRequest(r *http.Request) (*request.Request, error) {
	q := r.URL.Query()
	req := &request.Request{}

	format, err := bindFormat(r)
	if err != nil {
		return nil, err
	}
	req.Format = format

	strs := []struct {
		name string
		dest *string
	}{
		{"query", &req.Query},
		{"sort_by", &req.SortBy},
		{"order", &req.Order},
		{"view", &req.View},
		{"tag", &req.Filters.Tag},
		{"creator", &req.Filters.Creator},
		{"contributor", &req.Filters.Contributor},
		{"publisher", &req.Filters.Publisher},
		{"isbn", &req.Filters.ISBN},
		{"isdn", &req.Filters.ISDN},
		{"issn", &req.Filters.ISSN},
		{"lccn", &req.Filters.LCCN},
		{"nbn", &req.Filters.NBN},
		{"item_identifier", &req.Filters.ItemIdentifier},
		{"number_of_pages_at_least", &req.Filters.NumberOfPagesAtLeast},
		{"number_of_pages_at_most", &req.Filters.NumberOfPagesAtMost},
		{"pub_date_from", &req.Filters.PubDateFrom},
		{"pub_date_to", &req.Filters.PubDateTo},
		{"acquired_from", &req.Filters.AcquiredFrom},
		{"acquired_to", &req.Filters.AcquiredTo},
		{"carrier_type", &req.Filters.CarrierType},
		{"library", &req.Filters.Library},
		{"language", &req.Filters.Language},
		{"subject", &req.Filters.Subject},
		{"reservable", &req.Filters.Reservable},
	}
	for _, s := range strs {
		if err := bindQuery(q, s.name, s.dest); err != nil {
			return nil, err
		}
	}

	var rawMode string
	if err := bindQuery(q, "mode", &rawMode); err != nil {
		return nil, err
	}
	req.Mode = mode.Parse(rawMode)

	var page int
	if err := bindQuery(q, "page", &page); err == nil {
		req.Page = page
	}

	ids := []struct {
		name string
		dest *int64
	}{
		{"creator_id", &req.Scope.CreatorID},
		{"contributor_id", &req.Scope.ContributorID},
		{"publisher_id", &req.Scope.PublisherID},
	}
	for _, p := range ids {
		if err := bindQuery(q, p.name, p.dest); err != nil {
			return nil, err
		}
	}

	req.Normalize()
	return req, nil
}

func bindOAIParams(r *http.Request) oai.Params {
	q := r.URL.Query()
	return oai.Params{
		Verb:            q.Get("verb"),
		MetadataPrefix:  q.Get("metadataPrefix"),
		From:            q.Get("from"),
		Until:           q.Get("until"),
		Set:             q.Get("set"),
		Identifier:      q.Get("identifier"),
		ResumptionToken: q.Get("resumptionToken"),
	}
}

func bindSRUParams(r *http.Request) sru.Params {
	q := r.URL.Query()
	return sru.Params{
		Operation:      q.Get("operation"),
		Version:        q.Get("version"),
		Query:          q.Get("query"),
		StartRecord:    q.Get("startRecord"),
		MaximumRecords: q.Get("maximumRecords"),
		RecordSchema:   q.Get("recordSchema"),
		SortKeys:       q.Get("sortKeys"),
	}
}

// requestURL returns the absolute URL of path on the host that served r.
func requestURL(r *http.Request, path string) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if fwd := r.Header.Get("X-Forwarded-Proto"); fwd != "" {
		scheme = fwd
	}
	return scheme + "://" + r.Host + path
}
