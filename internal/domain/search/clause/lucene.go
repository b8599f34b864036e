package clause

import (
	"regexp"
	"strings"
)

// Lucene serializes the clause in Lucene/Solr standard query syntax.
func (c Clause) Lucene() string {
	if c.negated {
		inner := Not(c).Lucene()
		if inner == "" {
			return ""
		}
		return "-(" + inner + ")"
	}
	switch c.kind {
	case Any:
		return luceneGroup(c.children, " OR ")
	case All:
		return luceneGroup(c.children, " AND ")
	case Text:
		return luceneText(c)
	case Equality:
		return c.field + ":" + luceneValue(c.value)
	case Range:
		return c.field + ":[" + luceneBound(c.lower) + " TO " + luceneBound(c.upper) + "]"
	default:
		return ""
	}
}

// Lucene serializes the set as space-separated clauses. Conjunction comes from q.op=AND at the index.
func (s Set) Lucene() string {
	parts := make([]string, 0, len(s))
	for _, c := range s {
		if q := c.Lucene(); q != "" {
			parts = append(parts, q)
		}
	}
	return strings.Join(parts, " ")
}

func luceneGroup(children []Clause, op string) string {
	parts := make([]string, 0, len(children))
	for _, ch := range children {
		if q := ch.Lucene(); q != "" {
			parts = append(parts, "("+q+")")
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return "(" + strings.Join(parts, op) + ")"
}

func luceneText(c Clause) string {
	terms := strings.Fields(c.value)
	if len(terms) == 0 {
		return ""
	}
	for i, t := range terms {
		terms[i] = luceneEscaper.Replace(t)
	}
	if c.prefix {
		terms[len(terms)-1] += "*"
	}
	joined := strings.Join(terms, " ")
	if c.field == "" {
		return joined
	}
	if len(terms) == 1 {
		return c.field + ":" + joined
	}
	return c.field + ":(" + joined + ")"
}

func luceneValue(v string) string {
	if strings.ContainsAny(v, " \t\n") {
		return `"` + phraseEscaper.Replace(v) + `"`
	}
	return luceneEscaper.Replace(v)
}

var safeBound = regexp.MustCompile(`^[0-9A-Za-z:.+\-]+$`)

func luceneBound(b string) string {
	if b == Open || safeBound.MatchString(b) {
		return b
	}
	return `"` + phraseEscaper.Replace(b) + `"`
}

var luceneEscaper = strings.NewReplacer(
	`\`, `\\`,
	`+`, `\+`,
	`-`, `\-`,
	`&`, `\&`,
	`|`, `\|`,
	`!`, `\!`,
	`(`, `\(`,
	`)`, `\)`,
	`{`, `\{`,
	`}`, `\}`,
	`[`, `\[`,
	`]`, `\]`,
	`^`, `\^`,
	`"`, `\"`,
	`~`, `\~`,
	`*`, `\*`,
	`?`, `\?`,
	`:`, `\:`,
	`/`, `\/`,
)

var phraseEscaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
)
