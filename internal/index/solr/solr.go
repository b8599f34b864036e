// Package solr queries a Solr core through its JSON request API.
package solr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kailas-cloud/libcat/internal/domain/search/field"
	"github.com/kailas-cloud/libcat/internal/domain/search/result"
	"github.com/kailas-cloud/libcat/internal/index"
)

const backendName = "solr"

var _ index.Index = (*Index)(nil)

// Index is a Solr-backed catalog index.
type Index struct {
	baseURL string
	client  *http.Client
}

// New creates a client for the core at baseURL (e.g. http://localhost:8983/solr/manifestations).
func New(baseURL string, timeout time.Duration) *Index {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Index{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Name returns the backend name.
func (ix *Index) Name() string { return backendName }

type requestParams struct {
	QOp string `json:"q.op"`
	Df  string `json:"df,omitempty"`
}

type requestFacet struct {
	Type  string `json:"type"`
	Field string `json:"field"`
	Limit int    `json:"limit"`
	Sort  string `json:"sort,omitempty"`
}

type requestJSON struct {
	Query  string                  `json:"query"`
	Filter []string                `json:"filter,omitempty"`
	Offset int                     `json:"offset"`
	Limit  int                     `json:"limit"`
	Sort   string                  `json:"sort,omitempty"`
	Fields string                  `json:"fields"`
	Params requestParams           `json:"params"`
	Facet  map[string]requestFacet `json:"facet,omitempty"`
}

type responseDoc struct {
	ID json.RawMessage `json:"id"`
}

type responseBucket struct {
	Val   any `json:"val"`
	Count int `json:"count"`
}

type responseFacet struct {
	Buckets []responseBucket `json:"buckets"`
}

type responseError struct {
	Msg  string `json:"msg"`
	Code int    `json:"code"`
}

type responseJSON struct {
	Response struct {
		NumFound int           `json:"numFound"`
		Docs     []responseDoc `json:"docs"`
	} `json:"response"`
	Facets map[string]json.RawMessage `json:"facets"`
	Error  *responseError             `json:"error"`
}

// buildRequest maps a composed query to the JSON request body. Scored clauses go to
// query, visibility clauses to filter so they are cached and never affect scores.
func buildRequest(q *index.Query) requestJSON {
	req := requestJSON{
		Query:  q.Query.Lucene(),
		Offset: q.Offset,
		Limit:  q.Limit,
		Fields: field.ID,
		Params: requestParams{QOp: "AND", Df: field.Title},
	}
	if req.Query == "" {
		req.Query = "*:*"
	}
	for _, c := range q.Filters {
		if fq := c.Lucene(); fq != "" {
			req.Filter = append(req.Filter, fq)
		}
	}

	sortField := q.Sort.Field
	if sortField == "" {
		sortField = field.CreatedAt
	}
	dir := "asc"
	if q.Sort.Desc {
		dir = "desc"
	}
	req.Sort = fmt.Sprintf("%s %s, %s asc", sortField, dir, field.ID)

	if len(q.Facets) > 0 {
		req.Facet = make(map[string]requestFacet, len(q.Facets))
		for _, f := range q.Facets {
			req.Facet[f] = requestFacet{Type: "terms", Field: f, Limit: q.Limits(), Sort: "count desc"}
		}
	}
	return req
}

// Search posts the query to /select.
func (ix *Index) Search(ctx context.Context, q *index.Query) (*index.Result, error) {
	body, err := json.Marshal(buildRequest(q))
	if err != nil {
		return nil, fmt.Errorf("marshal solr request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, ix.baseURL+"/select", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build solr request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	var resp responseJSON
	if err := ix.do(httpReq, &resp); err != nil {
		return nil, err
	}

	out := &index.Result{Total: resp.Response.NumFound, IDs: make([]int64, 0, len(resp.Response.Docs))}
	for _, d := range resp.Response.Docs {
		if id, ok := parseDocID(d.ID); ok {
			out.IDs = append(out.IDs, id)
		}
	}

	for _, name := range q.Facets {
		raw, ok := resp.Facets[name]
		if !ok {
			out.Facets = append(out.Facets, result.Facet{Name: name})
			continue
		}
		var rf responseFacet
		if err := json.Unmarshal(raw, &rf); err != nil {
			return nil, index.Unavailable(backendName, fmt.Errorf("decode facet %s: %w", name, err))
		}
		facet := result.Facet{Name: name, Rows: make([]result.FacetCount, 0, len(rf.Buckets))}
		for _, b := range rf.Buckets {
			facet.Rows = append(facet.Rows, result.FacetCount{Value: bucketValue(b.Val), Count: b.Count})
		}
		out.Facets = append(out.Facets, facet)
	}
	return out, nil
}

// Ping calls the core's ping handler.
func (ix *Index) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ix.baseURL+"/admin/ping?wt=json", nil)
	if err != nil {
		return fmt.Errorf("build solr ping: %w", err)
	}
	var resp struct {
		Status string         `json:"status"`
		Error  *responseError `json:"error"`
	}
	if err := ix.do(req, &resp); err != nil {
		return err
	}
	if resp.Status != "OK" {
		return index.Unavailable(backendName, fmt.Errorf("ping status %q", resp.Status))
	}
	return nil
}

func (ix *Index) do(req *http.Request, out any) error {
	resp, err := ix.client.Do(req)
	if err != nil {
		return index.Unavailable(backendName, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return index.Unavailable(backendName, fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error *responseError `json:"error"`
		}
		msg := http.StatusText(resp.StatusCode)
		if json.Unmarshal(data, &e) == nil && e.Error != nil && e.Error.Msg != "" {
			msg = e.Error.Msg
		}
		return index.Unavailable(backendName, fmt.Errorf("status %d: %s", resp.StatusCode, msg))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return index.Unavailable(backendName, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// parseDocID accepts ids stored as JSON numbers or strings.
func parseDocID(raw json.RawMessage) (int64, bool) {
	s := strings.Trim(string(raw), `"`)
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func bucketValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}
