package sru

import (
	"fmt"
	"strings"
	"unicode"
)

// Node is a parsed CQL query: a *Term or a *Boolean.
type Node interface {
	isNode()
}

// Term is a search clause. Index is empty for a bare term.
type Term struct {
	Index     string
	Relation  string
	Modifiers []string
	Value     string
}

func (*Term) isNode() {}

// Boolean joins two subqueries. Op is "and", "or", "not" or "prox".
type Boolean struct {
	Op    string
	Left  Node
	Right Node
}

func (*Boolean) isNode() {}

// SortKey is one sortby key with its modifiers.
type SortKey struct {
	Index     string
	Modifiers []string
}

// Query is a parsed CQL query with its sort specification.
type Query struct {
	Root Node
	Sort []SortKey
}

// SyntaxError reports malformed CQL.
type SyntaxError struct {
	Pos int
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("cql syntax error at %d: %s", e.Pos, e.Msg)
}

type tokenKind int

const (
	tokWord tokenKind = iota
	tokQuoted
	tokLParen
	tokRParen
	tokSlash
	tokSymbol
	tokEOF
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

var namedRelations = map[string]bool{
	"any": true, "all": true, "exact": true, "adj": true,
	"within": true, "encloses": true,
}

var booleans = map[string]bool{"and": true, "or": true, "not": true, "prox": true}

func lex(s string) ([]token, error) {
	var out []token
	rs := []rune(s)
	for i := 0; i < len(rs); {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '(':
			out = append(out, token{tokLParen, "(", i})
			i++
		case r == ')':
			out = append(out, token{tokRParen, ")", i})
			i++
		case r == '/':
			out = append(out, token{tokSlash, "/", i})
			i++
		case r == '=' || r == '<' || r == '>':
			start := i
			i++
			if i < len(rs) {
				pair := string(rs[start : i+1])
				if pair == "==" || pair == "<=" || pair == ">=" || pair == "<>" {
					i++
				}
			}
			out = append(out, token{tokSymbol, string(rs[start:i]), start})
		case r == '"':
			start := i
			i++
			var sb strings.Builder
			closed := false
			for i < len(rs) {
				c := rs[i]
				if c == '\\' && i+1 < len(rs) {
					if rs[i+1] == '"' || rs[i+1] == '\\' {
						sb.WriteRune(rs[i+1])
					} else {
						sb.WriteRune(c)
						sb.WriteRune(rs[i+1])
					}
					i += 2
					continue
				}
				if c == '"' {
					closed = true
					i++
					break
				}
				sb.WriteRune(c)
				i++
			}
			if !closed {
				return nil, &SyntaxError{Pos: start, Msg: "unterminated quoted string"}
			}
			out = append(out, token{tokQuoted, sb.String(), start})
		default:
			start := i
			for i < len(rs) && !unicode.IsSpace(rs[i]) && !strings.ContainsRune(`()/=<>"`, rs[i]) {
				i++
			}
			out = append(out, token{tokWord, string(rs[start:i]), start})
		}
	}
	return append(out, token{tokEOF, "", len(rs)}), nil
}

type parser struct {
	toks []token
	pos  int
}

// Parse reads a CQL query. Booleans share one precedence and associate to the left.
func Parse(s string) (*Query, error) {
	toks, err := lex(s)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	if p.peek().kind == tokEOF {
		return nil, &SyntaxError{Pos: 0, Msg: "empty query"}
	}
	root, err := p.query()
	if err != nil {
		return nil, err
	}
	q := &Query{Root: root}
	if p.isKeyword("sortby") {
		p.next()
		if q.Sort, err = p.sortSpec(); err != nil {
			return nil, err
		}
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, &SyntaxError{Pos: t.pos, Msg: fmt.Sprintf("unexpected %q", t.text)}
	}
	return q, nil
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) peekAt(n int) token {
	if p.pos+n >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.pos+n]
}

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) isKeyword(word string) bool {
	t := p.peek()
	return t.kind == tokWord && strings.EqualFold(t.text, word)
}

func (p *parser) query() (Node, error) {
	left, err := p.subQuery()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if t.kind != tokWord || !booleans[strings.ToLower(t.text)] {
			return left, nil
		}
		p.next()
		// Boolean modifiers (and/rel.x) are accepted and ignored.
		if _, err := p.modifiers(); err != nil {
			return nil, err
		}
		right, err := p.subQuery()
		if err != nil {
			return nil, err
		}
		left = &Boolean{Op: strings.ToLower(t.text), Left: left, Right: right}
	}
}

func (p *parser) subQuery() (Node, error) {
	t := p.peek()
	switch t.kind {
	case tokLParen:
		p.next()
		n, err := p.query()
		if err != nil {
			return nil, err
		}
		if c := p.next(); c.kind != tokRParen {
			return nil, &SyntaxError{Pos: c.pos, Msg: "missing closing parenthesis"}
		}
		return n, nil
	case tokWord, tokQuoted:
		return p.searchClause()
	case tokEOF:
		return nil, &SyntaxError{Pos: t.pos, Msg: "unexpected end of query"}
	default:
		return nil, &SyntaxError{Pos: t.pos, Msg: fmt.Sprintf("unexpected %q", t.text)}
	}
}

func (p *parser) searchClause() (Node, error) {
	first := p.next()
	if first.kind == tokWord && p.startsRelation() {
		rel := p.next()
		mods, err := p.modifiers()
		if err != nil {
			return nil, err
		}
		val := p.next()
		if val.kind != tokWord && val.kind != tokQuoted {
			return nil, &SyntaxError{Pos: val.pos, Msg: "missing search term"}
		}
		return &Term{
			Index:     first.text,
			Relation:  strings.ToLower(rel.text),
			Modifiers: mods,
			Value:     val.text,
		}, nil
	}
	if first.kind == tokWord && (booleans[strings.ToLower(first.text)] || strings.EqualFold(first.text, "sortby")) {
		return nil, &SyntaxError{Pos: first.pos, Msg: fmt.Sprintf("unexpected %q", first.text)}
	}
	return &Term{Relation: "=", Value: first.text}, nil
}

// startsRelation reports whether the next tokens are a relation followed by a term,
// which makes the preceding word an index name.
func (p *parser) startsRelation() bool {
	t := p.peek()
	switch {
	case t.kind == tokSymbol:
		return true
	case t.kind == tokWord && namedRelations[strings.ToLower(t.text)]:
		after := p.peekAt(1)
		return after.kind == tokWord || after.kind == tokQuoted || after.kind == tokSlash
	default:
		return false
	}
}

func (p *parser) modifiers() ([]string, error) {
	var out []string
	for p.peek().kind == tokSlash {
		p.next()
		name := p.next()
		if name.kind != tokWord {
			return nil, &SyntaxError{Pos: name.pos, Msg: "missing modifier name"}
		}
		mod := strings.ToLower(name.text)
		if p.peek().kind == tokSymbol {
			p.next()
			val := p.next()
			if val.kind != tokWord && val.kind != tokQuoted {
				return nil, &SyntaxError{Pos: val.pos, Msg: "missing modifier value"}
			}
			mod += "=" + val.text
		}
		out = append(out, mod)
	}
	return out, nil
}

func (p *parser) sortSpec() ([]SortKey, error) {
	var keys []SortKey
	for p.peek().kind == tokWord || p.peek().kind == tokQuoted {
		idx := p.next()
		mods, err := p.modifiers()
		if err != nil {
			return nil, err
		}
		keys = append(keys, SortKey{Index: idx.text, Modifiers: mods})
	}
	if len(keys) == 0 {
		return nil, &SyntaxError{Pos: p.peek().pos, Msg: "sortby without keys"}
	}
	return keys, nil
}
