package sru

import (
	"strings"
	"time"

	"github.com/kailas-cloud/libcat/internal/domain/search/clause"
	"github.com/kailas-cloud/libcat/internal/domain/search/field"
	"github.com/kailas-cloud/libcat/internal/domain/search/query"
	"github.com/kailas-cloud/libcat/internal/domain/search/request"
)

type indexKind int

const (
	textIndex indexKind = iota
	keywordIndex
	dateIndex
	allRecordsIndex
)

type indexDef struct {
	field     string
	kind      indexKind
	normalize func(string) string
}

func stripHyphens(s string) string { return strings.ReplaceAll(s, "-", "") }

// Indexes maps CQL index names (lower case) to catalog fields.
var indexes = map[string]indexDef{
	"":                 {kind: textIndex},
	"cql.anywhere":     {kind: textIndex},
	"cql.serverchoice": {kind: textIndex},
	"cql.keywords":     {kind: textIndex},
	"anywhere":         {kind: textIndex},
	"cql.allrecords":   {kind: allRecordsIndex},
	"title":            {field: field.Title, kind: textIndex},
	"dc.title":         {field: field.Title, kind: textIndex},
	"creator":          {field: field.Creator, kind: textIndex},
	"dc.creator":       {field: field.Creator, kind: textIndex},
	"author":           {field: field.Creator, kind: textIndex},
	"contributor":      {field: field.Contributor, kind: textIndex},
	"dc.contributor":   {field: field.Contributor, kind: textIndex},
	"publisher":        {field: field.Publisher, kind: textIndex},
	"dc.publisher":     {field: field.Publisher, kind: textIndex},
	"isbn":             {field: field.ISBN, kind: keywordIndex, normalize: stripHyphens},
	"issn":             {field: field.ISSN, kind: keywordIndex, normalize: stripHyphens},
	"subject":          {field: field.Subject, kind: keywordIndex},
	"dc.subject":       {field: field.Subject, kind: keywordIndex},
	"language":         {field: field.Language, kind: keywordIndex},
	"dc.language":      {field: field.Language, kind: keywordIndex},
	"tag":              {field: field.Tag, kind: keywordIndex},
	"date":             {field: field.PubDate, kind: dateIndex},
	"dc.date":          {field: field.PubDate, kind: dateIndex},
	"pub_date":         {field: field.PubDate, kind: dateIndex},
}

var sortIndexes = map[string]string{
	"title":      field.SortTitle,
	"dc.title":   field.SortTitle,
	"date":       field.PubDate,
	"dc.date":    field.PubDate,
	"pub_date":   field.PubDate,
	"created_at": field.CreatedAt,
}

// Translator turns parsed CQL into catalog clauses.
type Translator struct {
	dates *query.Builder
}

// NewTranslator creates a translator. Date terms are read the way b reads date filters.
func NewTranslator(b *query.Builder) *Translator {
	if b == nil {
		b = query.NewBuilder(nil)
	}
	return &Translator{dates: b}
}

// Clauses translates the query tree. Top-level conjunctions become separate clauses.
func (t *Translator) Clauses(q *Query) (clause.Set, *Diagnostic) {
	c, diag := t.node(q.Root)
	if diag != nil {
		return nil, diag
	}
	var set clause.Set
	for _, ch := range flatten(c) {
		if ch.Kind() == clause.All && !ch.IsNegated() && len(ch.Children()) == 0 {
			continue
		}
		set = append(set, ch)
	}
	return set, nil
}

func flatten(c clause.Clause) []clause.Clause {
	if c.Kind() != clause.All || c.IsNegated() || len(c.Children()) == 0 {
		return []clause.Clause{c}
	}
	var out []clause.Clause
	for _, ch := range c.Children() {
		out = append(out, flatten(ch)...)
	}
	return out
}

func (t *Translator) node(n Node) (clause.Clause, *Diagnostic) {
	switch v := n.(type) {
	case *Boolean:
		left, diag := t.node(v.Left)
		if diag != nil {
			return clause.Clause{}, diag
		}
		right, diag := t.node(v.Right)
		if diag != nil {
			return clause.Clause{}, diag
		}
		switch v.Op {
		case "and":
			return clause.NewAll(left, right), nil
		case "or":
			return clause.NewAny(left, right), nil
		case "not":
			return clause.NewAll(left, clause.Not(right)), nil
		default:
			return clause.Clause{}, NewDiagnostic(DiagUnsupportedBoolean, v.Op)
		}
	case *Term:
		return t.term(v)
	default:
		return clause.Clause{}, NewDiagnostic(DiagQuerySyntax, "")
	}
}

func (t *Translator) term(term *Term) (clause.Clause, *Diagnostic) {
	def, ok := indexes[strings.ToLower(term.Index)]
	if !ok {
		return clause.Clause{}, NewDiagnostic(DiagUnsupportedIndex, term.Index)
	}
	if len(term.Modifiers) > 0 {
		return clause.Clause{}, NewDiagnostic(DiagUnsupportedRelationMod, term.Modifiers[0])
	}
	if def.kind == allRecordsIndex {
		return clause.NewAll(), nil
	}
	value := query.Normalize(term.Value)
	if def.normalize != nil {
		value = def.normalize(value)
	}
	if value == "" {
		return clause.Clause{}, NewDiagnostic(DiagEmptyTerm, "")
	}

	switch def.kind {
	case keywordIndex:
		return keywordClause(def.field, term.Relation, value)
	case dateIndex:
		return t.dateClause(def.field, term.Relation, value)
	default:
		return textClause(def.field, term.Relation, value)
	}
}

func textLeaf(name, value string) clause.Clause {
	if stem, ok := strings.CutSuffix(value, "*"); ok && stem != "" {
		return clause.NewPrefix(name, stem)
	}
	return clause.NewText(name, value)
}

func textClause(name, rel, value string) (clause.Clause, *Diagnostic) {
	switch rel {
	case "=", "==", "all", "adj", "exact":
		return textLeaf(name, value), nil
	case "any":
		words := strings.Fields(value)
		if len(words) == 1 {
			return textLeaf(name, words[0]), nil
		}
		children := make([]clause.Clause, 0, len(words))
		for _, w := range words {
			children = append(children, textLeaf(name, w))
		}
		return clause.NewAny(children...), nil
	case "<>":
		return clause.Not(textLeaf(name, value)), nil
	default:
		return clause.Clause{}, NewDiagnostic(DiagUnsupportedRelation, rel)
	}
}

func keywordClause(name, rel, value string) (clause.Clause, *Diagnostic) {
	switch rel {
	case "=", "==", "exact", "adj":
		return clause.NewEquality(name, value), nil
	case "any", "all":
		words := strings.Fields(value)
		if len(words) == 1 {
			return clause.NewEquality(name, words[0]), nil
		}
		children := make([]clause.Clause, 0, len(words))
		for _, w := range words {
			children = append(children, clause.NewEquality(name, w))
		}
		if rel == "any" {
			return clause.NewAny(children...), nil
		}
		return clause.NewAll(children...), nil
	case "<>":
		return clause.Not(clause.NewEquality(name, value)), nil
	default:
		return clause.Clause{}, NewDiagnostic(DiagUnsupportedRelation, rel)
	}
}

func (t *Translator) dateClause(name, rel, value string) (clause.Clause, *Diagnostic) {
	from, until, ok := t.dates.Period(value)
	if !ok {
		return clause.Clause{}, NewDiagnostic(DiagInvalidTermFormat, value)
	}
	bound := func(tm time.Time) string { return tm.UTC().Format(time.RFC3339) }
	switch rel {
	case "=", "==", "exact":
		return clause.NewRange(name, bound(from), bound(until)), nil
	case "<":
		return clause.NewRange(name, clause.Open, bound(from.Add(-time.Second))), nil
	case "<=":
		return clause.NewRange(name, clause.Open, bound(until)), nil
	case ">":
		return clause.NewRange(name, bound(until.Add(time.Second)), clause.Open), nil
	case ">=":
		return clause.NewRange(name, bound(from), clause.Open), nil
	case "<>":
		return clause.Not(clause.NewRange(name, bound(from), bound(until))), nil
	default:
		return clause.Clause{}, NewDiagnostic(DiagUnsupportedRelation, rel)
	}
}

// Sort resolves the first sort key, from a CQL sortby clause or the sortKeys parameter.
// No key means the default listing order.
func Sort(keys []SortKey) (request.Sort, *Diagnostic) {
	if len(keys) == 0 {
		return request.ResolveSort("", ""), nil
	}
	k := keys[0]
	name, ok := sortIndexes[strings.ToLower(k.Index)]
	if !ok {
		return request.Sort{}, NewDiagnostic(DiagUnsupportedSortIndex, k.Index)
	}
	s := request.Sort{Field: name, Desc: name != field.SortTitle}
	for _, m := range k.Modifiers {
		switch m {
		case "sort.ascending", "ascending":
			s.Desc = false
		case "sort.descending", "descending":
			s.Desc = true
		}
	}
	return s, nil
}

// ParseSortKeys reads the SRU 1.1 sortKeys parameter: space separated
// "path,schema,ascending" keys where ascending is 1 or 0.
func ParseSortKeys(raw string) []SortKey {
	var keys []SortKey
	for _, spec := range strings.Fields(raw) {
		parts := strings.Split(spec, ",")
		k := SortKey{Index: parts[0]}
		if len(parts) >= 3 {
			switch parts[2] {
			case "1":
				k.Modifiers = []string{"sort.ascending"}
			case "0":
				k.Modifiers = []string{"sort.descending"}
			}
		}
		keys = append(keys, k)
	}
	return keys
}
