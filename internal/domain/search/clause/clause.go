package clause

import (
	"fmt"
	"strings"
)

// Kind tags the variant held by a Clause.
type Kind int

// Clause kinds.
const (
	// Text is analyzed free text, optionally bound to a field.
	Text Kind = iota + 1
	// Equality is an exact match on a keyword, integer or bool field.
	Equality
	// Range is an inclusive interval on an integer or date field.
	Range
	// Any is a disjunction of child clauses.
	Any
	// All is a conjunction of child clauses, used inside Any.
	All
)

func (k Kind) String() string {
	switch k {
	case Text:
		return "text"
	case Equality:
		return "eq"
	case Range:
		return "range"
	case Any:
		return "any"
	case All:
		return "all"
	default:
		return "unknown"
	}
}

// Open is the token for an unbounded range side.
const Open = "*"

// Clause is a single search condition. The zero value is invalid.
type Clause struct {
	kind   Kind
	field  string
	value  string
	prefix bool
	lower  string
	upper  string

	negated  bool
	children []Clause
}

// NewText creates a free-text clause. An empty field means the default search fields.
func NewText(field, value string) Clause {
	return Clause{kind: Text, field: field, value: value}
}

// NewPrefix creates a free-text clause that matches terms starting with value.
func NewPrefix(field, value string) Clause {
	return Clause{kind: Text, field: field, value: value, prefix: true}
}

// NewEquality creates an exact-match clause.
func NewEquality(field, value string) Clause {
	return Clause{kind: Equality, field: field, value: value}
}

// NewRange creates an inclusive range clause. Empty or "*" bounds are open.
func NewRange(field, lower, upper string) Clause {
	if lower == "" {
		lower = Open
	}
	if upper == "" {
		upper = Open
	}
	return Clause{kind: Range, field: field, lower: lower, upper: upper}
}

// NewAny creates a clause matching when any child matches.
func NewAny(children ...Clause) Clause {
	return Clause{kind: Any, children: children}
}

// NewAll creates a clause matching when every child matches.
func NewAll(children ...Clause) Clause {
	return Clause{kind: All, children: children}
}

// Not negates c.
func Not(c Clause) Clause {
	c.negated = !c.negated
	return c
}

// Kind returns the clause variant.
func (c Clause) Kind() Kind { return c.kind }

// Field returns the target field ("" for default text fields).
func (c Clause) Field() string { return c.field }

// Value returns the text or equality value.
func (c Clause) Value() string { return c.value }

// IsPrefix reports whether a text clause is a prefix match.
func (c Clause) IsPrefix() bool { return c.prefix }

// Lower returns the lower range bound ("*" when open).
func (c Clause) Lower() string { return c.lower }

// Upper returns the upper range bound ("*" when open).
func (c Clause) Upper() string { return c.upper }

// IsNegated reports whether the clause excludes what it matches.
func (c Clause) IsNegated() bool { return c.negated }

// Children returns the members of an Any or All clause.
func (c Clause) Children() []Clause { return c.children }

// IsOpenRange reports whether c is a range unbounded on both sides.
func (c Clause) IsOpenRange() bool {
	return c.kind == Range && !c.negated && c.lower == Open && c.upper == Open
}

// Canonical returns a stable, unambiguous representation used for fingerprints.
func (c Clause) Canonical() string {
	if c.negated {
		return "!" + Not(c).Canonical()
	}
	switch c.kind {
	case Text:
		p := ""
		if c.prefix {
			p = "*"
		}
		return fmt.Sprintf("t(%q,%q%s)", c.field, c.value, p)
	case Equality:
		return fmt.Sprintf("e(%q,%q)", c.field, c.value)
	case Range:
		return fmt.Sprintf("r(%q,%q,%q)", c.field, c.lower, c.upper)
	case Any:
		return "any(" + Set(c.children).Canonical() + ")"
	case All:
		return "all(" + Set(c.children).Canonical() + ")"
	default:
		return "?"
	}
}

// Set is an ordered conjunction of clauses.
type Set []Clause

// IsEmpty reports whether the set has no clauses.
func (s Set) IsEmpty() bool { return len(s) == 0 }

// Canonical joins the canonical forms of all clauses in order.
func (s Set) Canonical() string {
	parts := make([]string, len(s))
	for i, c := range s {
		parts[i] = c.Canonical()
	}
	return strings.Join(parts, "&")
}

// OfKind returns the clauses of the given kind, preserving order.
func (s Set) OfKind(k Kind) Set {
	var out Set
	for _, c := range s {
		if c.kind == k {
			out = append(out, c)
		}
	}
	return out
}

// Fields returns the distinct field names referenced by the set, in order of first use.
func (s Set) Fields() []string {
	seen := make(map[string]struct{}, len(s))
	var out []string
	for _, c := range s {
		if _, ok := seen[c.field]; ok {
			continue
		}
		seen[c.field] = struct{}{}
		out = append(out, c.field)
	}
	return out
}
