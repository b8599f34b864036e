// Package meili serves the catalog index from a Meilisearch instance.
package meili

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/meilisearch/meilisearch-go"

	"github.com/kailas-cloud/libcat/internal/domain/search/clause"
	"github.com/kailas-cloud/libcat/internal/domain/search/field"
	"github.com/kailas-cloud/libcat/internal/domain/search/result"
	"github.com/kailas-cloud/libcat/internal/index"
)

const (
	backendName  = "meilisearch"
	taskInterval = 50 * time.Millisecond
)

var (
	_ index.Index   = (*Index)(nil)
	_ index.Indexer = (*Index)(nil)
)

// Index is a Meilisearch-backed catalog index.
// Dates are stored as unix seconds so they can be filtered and sorted numerically.
type Index struct {
	client meilisearch.ServiceManager
	index  meilisearch.IndexManager
	now    func() time.Time
}

// New connects to host and selects the named index.
func New(host, apiKey, name string) *Index {
	client := meilisearch.New(host, meilisearch.WithAPIKey(apiKey))
	return &Index{client: client, index: client.Index(name), now: time.Now}
}

// Name returns the backend name.
func (ix *Index) Name() string { return backendName }

// Ping checks the instance health.
func (ix *Index) Ping(context.Context) error {
	if _, err := ix.client.Health(); err != nil {
		return index.Unavailable(backendName, err)
	}
	return nil
}

// EnsureIndex registers filterable and sortable attributes.
func (ix *Index) EnsureIndex(context.Context) error {
	filterable := make([]interface{}, 0, len(field.Names()))
	for _, name := range filterableFields() {
		filterable = append(filterable, name)
	}
	task, err := ix.index.UpdateFilterableAttributes(&filterable)
	if err != nil {
		return index.Unavailable(backendName, fmt.Errorf("update filterable attributes: %w", err))
	}
	if _, err := ix.index.WaitForTask(task.TaskUID, taskInterval); err != nil {
		return index.Unavailable(backendName, err)
	}

	sortable := []string{field.ID, field.SortTitle, field.PubDate, field.CreatedAt, field.UpdatedAt}
	task, err = ix.index.UpdateSortableAttributes(&sortable)
	if err != nil {
		return index.Unavailable(backendName, fmt.Errorf("update sortable attributes: %w", err))
	}
	if _, err := ix.index.WaitForTask(task.TaskUID, taskInterval); err != nil {
		return index.Unavailable(backendName, err)
	}
	return nil
}

// Index adds or replaces documents and waits for the indexing task.
func (ix *Index) Index(_ context.Context, docs []index.Document) error {
	if len(docs) == 0 {
		return nil
	}
	payload := make([]map[string]any, 0, len(docs))
	for _, d := range docs {
		payload = append(payload, toMeili(d))
	}
	pk := field.ID
	task, err := ix.index.AddDocuments(payload, &meilisearch.DocumentOptions{PrimaryKey: &pk})
	if err != nil {
		return index.Unavailable(backendName, err)
	}
	if _, err := ix.index.WaitForTask(task.TaskUID, taskInterval); err != nil {
		return index.Unavailable(backendName, err)
	}
	return nil
}

func toMeili(d index.Document) map[string]any {
	out := map[string]any{field.ID: d.ID}
	for name := range d.Fields {
		switch field.TypeOf(name) {
		case field.Integer:
			if ints := d.Ints(name); len(ints) > 0 {
				out[name] = ints[0]
			}
		case field.Date:
			if t, ok := d.Time(name); ok {
				out[name] = t.Unix()
			}
		case field.Bool:
			out[name] = d.Bool(name)
		case field.Keyword:
			out[name] = d.Strings(name)
		default:
			out[name] = strings.Join(d.Strings(name), " ")
		}
	}
	return out
}

// Search runs the query. Text clauses form the query string; every other clause
// becomes a filter expression.
func (ix *Index) Search(_ context.Context, q *index.Query) (*index.Result, error) {
	req := buildRequest(q, ix.now())
	resp, err := ix.index.Search(req.Query, req)
	if err != nil {
		return nil, index.Unavailable(backendName, err)
	}

	out := &index.Result{Total: int(resp.EstimatedTotalHits), IDs: make([]int64, 0, len(resp.Hits))}
	if resp.TotalHits > 0 {
		out.Total = int(resp.TotalHits)
	}
	for _, hit := range resp.Hits {
		if id, ok := hitID(hit[field.ID]); ok {
			out.IDs = append(out.IDs, id)
		}
	}

	facets, err := decodeFacets(resp.FacetDistribution, q)
	if err != nil {
		return nil, index.Unavailable(backendName, err)
	}
	out.Facets = facets
	return out, nil
}

func buildRequest(q *index.Query, now time.Time) *meilisearch.SearchRequest {
	var terms, filters []string
	for _, c := range q.All() {
		if c.Kind() == clause.Text && !c.IsNegated() {
			terms = append(terms, strings.Fields(c.Value())...)
			continue
		}
		if f := buildFilter(c, now); f != "" {
			filters = append(filters, f)
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

	req := &meilisearch.SearchRequest{
		Query:                strings.Join(terms, " "),
		Offset:               int64(q.Offset),
		Limit:                int64(q.Limit),
		Sort:                 []string{sortField + ":" + dir, field.ID + ":asc"},
		AttributesToRetrieve: []string{field.ID},
		Facets:               q.Facets,
	}
	if len(filters) > 0 {
		req.Filter = strings.Join(filters, " AND ")
	}
	return req
}

// buildFilter renders one clause as a filter expression, or "" when the
// clause cannot be expressed as a filter. Text is not filterable.
func buildFilter(c clause.Clause, now time.Time) string {
	if c.IsNegated() {
		if inner := buildFilter(clause.Not(c), now); inner != "" {
			return "NOT " + inner
		}
		return ""
	}
	name := c.Field()
	switch c.Kind() {
	case clause.Text:
		return ""
	case clause.Any, clause.All:
		return buildGroup(c, now)
	}
	if c.Kind() == clause.Equality {
		switch field.TypeOf(name) {
		case field.Integer:
			if n, err := strconv.ParseInt(c.Value(), 10, 64); err == nil {
				return fmt.Sprintf("%s = %d", name, n)
			}
			return ""
		case field.Bool:
			if b, err := strconv.ParseBool(c.Value()); err == nil {
				return fmt.Sprintf("%s = %t", name, b)
			}
			return ""
		case field.Date:
			if t, err := time.Parse(time.RFC3339, c.Value()); err == nil {
				return fmt.Sprintf("%s = %d", name, t.Unix())
			}
			return ""
		default:
			return fmt.Sprintf("%s = %s", name, quote(c.Value()))
		}
	}

	var lower, upper string
	switch field.TypeOf(name) {
	case field.Integer:
		if n, ok := clause.ResolveInt(c.Lower()); ok {
			lower = strconv.FormatInt(n, 10)
		}
		if n, ok := clause.ResolveInt(c.Upper()); ok {
			upper = strconv.FormatInt(n, 10)
		}
	case field.Date:
		if t, ok := clause.ResolveTime(c.Lower(), now); ok {
			lower = strconv.FormatInt(t.Unix(), 10)
		}
		if t, ok := clause.ResolveTime(c.Upper(), now); ok {
			upper = strconv.FormatInt(t.Unix(), 10)
		}
	default:
		return ""
	}
	switch {
	case lower != "" && upper != "":
		return fmt.Sprintf("%s %s TO %s", name, lower, upper)
	case lower != "":
		return fmt.Sprintf("%s >= %s", name, lower)
	case upper != "":
		return fmt.Sprintf("%s <= %s", name, upper)
	default:
		return ""
	}
}

// buildGroup joins children with OR or AND. An Any group with a child that
// cannot be expressed is dropped whole so it never narrows the result.
func buildGroup(c clause.Clause, now time.Time) string {
	op := " AND "
	if c.Kind() == clause.Any {
		op = " OR "
	}
	parts := make([]string, 0, len(c.Children()))
	for _, ch := range c.Children() {
		p := buildFilter(ch, now)
		if p == "" {
			if c.Kind() == clause.Any {
				return ""
			}
			continue
		}
		parts = append(parts, p)
	}
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	default:
		return "(" + strings.Join(parts, op) + ")"
	}
}

func quote(s string) string {
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s) + `"`
}

// hitID accepts the primary key as a JSON number or a numeric string.
func hitID(raw json.RawMessage) (int64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		id, err := n.Int64()
		return id, err == nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	id, err := strconv.ParseInt(s, 10, 64)
	return id, err == nil
}

// filterableFields lists every non-text field, sorted so settings updates are stable.
func filterableFields() []string {
	var names []string
	for name, typ := range field.Names() {
		if typ != field.Text {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// decodeFacets converts the facet distribution into rows ordered by count, then value.
func decodeFacets(raw json.RawMessage, q *index.Query) ([]result.Facet, error) {
	if len(q.Facets) == 0 {
		return nil, nil
	}
	dist := map[string]map[string]int{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &dist); err != nil {
			return nil, fmt.Errorf("decode facet distribution: %w", err)
		}
	}

	out := make([]result.Facet, 0, len(q.Facets))
	for _, name := range q.Facets {
		counts := dist[name]
		rows := make([]result.FacetCount, 0, len(counts))
		for v, n := range counts {
			rows = append(rows, result.FacetCount{Value: v, Count: n})
		}
		result.SortRows(rows)
		if limit := q.Limits(); len(rows) > limit {
			rows = rows[:limit]
		}
		out = append(out, result.Facet{Name: name, Rows: rows})
	}
	return out, nil
}
