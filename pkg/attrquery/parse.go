// Package attrquery implements the small boolean language used by the
// inheritance, role, sex, status and variant type filters, e.g.
//
//	denovo or (mendelian and not omission)
//	any([prb, sib]) and not dad
//	prb~homozygous
//
// Precedence is not > and > or. Names are resolved against a model.Enum.
package attrquery

import (
	"fmt"
	"strings"
	"unicode"
)

// SyntaxError reports a malformed expression.
type SyntaxError struct {
	Query string
	Pos   int
	Msg   string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("attribute query %q: %s at %d", e.Query, e.Msg, e.Pos)
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokWord
	tokLParen
	tokRParen
	tokLBracket
	tokRBracket
	tokComma
	tokTilde
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

func isWordRune(r rune) bool {
	return r == '_' || r == '+' || r == '-' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func tokenize(query string) ([]token, error) {
	var tokens []token
	runes := []rune(query)
	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '(':
			tokens = append(tokens, token{tokLParen, "(", i})
			i++
		case r == ')':
			tokens = append(tokens, token{tokRParen, ")", i})
			i++
		case r == '[':
			tokens = append(tokens, token{tokLBracket, "[", i})
			i++
		case r == ']':
			tokens = append(tokens, token{tokRBracket, "]", i})
			i++
		case r == ',':
			tokens = append(tokens, token{tokComma, ",", i})
			i++
		case r == '~':
			tokens = append(tokens, token{tokTilde, "~", i})
			i++
		case isWordRune(r):
			start := i
			for i < len(runes) && isWordRune(runes[i]) {
				i++
			}
			tokens = append(tokens, token{tokWord, string(runes[start:i]), start})
		default:
			return nil, &SyntaxError{Query: query, Pos: i, Msg: fmt.Sprintf("unexpected character %q", r)}
		}
	}
	tokens = append(tokens, token{tokEOF, "", len(runes)})
	return tokens, nil
}

// Node is a parsed, unresolved expression.
type Node interface {
	String() string
}

type Literal struct {
	Name       string
	Complement string // set for compounds like prb~homozygous
}

type Not struct {
	X Node
}

type And struct {
	Terms []Node
}

type Or struct {
	Terms []Node
}

func (l *Literal) String() string {
	if l.Complement != "" {
		return l.Name + "~" + l.Complement
	}
	return l.Name
}

func (n *Not) String() string { return "not " + n.X.String() }

func (a *And) String() string { return joinNodes(a.Terms, " and ") }

func (o *Or) String() string { return joinNodes(o.Terms, " or ") }

func joinNodes(nodes []Node, sep string) string {
	parts := make([]string, len(nodes))
	for i, n := range nodes {
		parts[i] = n.String()
		if _, simple := n.(*Literal); !simple {
			parts[i] = "(" + parts[i] + ")"
		}
	}
	return strings.Join(parts, sep)
}

type parser struct {
	query  string
	tokens []token
	pos    int
}

// Parse turns an expression into a syntax tree without resolving names.
func Parse(query string) (Node, error) {
	tokens, err := tokenize(query)
	if err != nil {
		return nil, err
	}
	p := &parser{query: query, tokens: tokens}
	if p.peek().kind == tokEOF {
		return nil, p.errorf("empty expression")
	}
	node, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, p.errorf("unexpected %q", p.peek().text)
	}
	return node, nil
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	t := p.tokens[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) errorf(format string, args ...any) error {
	return &SyntaxError{Query: p.query, Pos: p.peek().pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) isKeyword(word string) bool {
	t := p.peek()
	return t.kind == tokWord && strings.EqualFold(t.text, word)
}

func (p *parser) expect(kind tokenKind, text string) error {
	if p.peek().kind != kind {
		return p.errorf("expected %q", text)
	}
	p.next()
	return nil
}

func (p *parser) parseOr() (Node, error) {
	first, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	terms := []Node{first}
	for p.isKeyword("or") {
		p.next()
		term, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		terms = append(terms, term)
	}
	if len(terms) == 1 {
		return first, nil
	}
	return &Or{Terms: terms}, nil
}

func (p *parser) parseAnd() (Node, error) {
	first, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	terms := []Node{first}
	for p.isKeyword("and") {
		p.next()
		term, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		terms = append(terms, term)
	}
	if len(terms) == 1 {
		return first, nil
	}
	return &And{Terms: terms}, nil
}

func (p *parser) parseUnary() (Node, error) {
	if p.isKeyword("not") {
		p.next()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Not{X: x}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Node, error) {
	t := p.peek()
	switch t.kind {
	case tokLParen:
		p.next()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(tokRParen, ")"); err != nil {
			return nil, err
		}
		return inner, nil
	case tokWord:
		if (strings.EqualFold(t.text, "any") || strings.EqualFold(t.text, "all")) &&
			p.tokens[p.pos+1].kind == tokLParen {
			return p.parseSugar()
		}
		switch strings.ToLower(t.text) {
		case "and", "or", "not":
			return nil, p.errorf("unexpected keyword %q", t.text)
		}
		p.next()
		lit := &Literal{Name: t.text}
		if p.peek().kind == tokTilde {
			p.next()
			c := p.peek()
			if c.kind != tokWord {
				return nil, p.errorf("expected value after ~")
			}
			p.next()
			lit.Complement = c.text
		}
		return lit, nil
	default:
		if t.kind == tokEOF {
			return nil, p.errorf("unexpected end of expression")
		}
		return nil, p.errorf("unexpected %q", t.text)
	}
}

// parseSugar handles any([a, b, ...]) and all([a, b, ...]).
func (p *parser) parseSugar() (Node, error) {
	fn := strings.ToLower(p.next().text)
	if err := p.expect(tokLParen, "("); err != nil {
		return nil, err
	}
	if err := p.expect(tokLBracket, "["); err != nil {
		return nil, err
	}
	var items []Node
	for {
		item, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
		if p.peek().kind == tokComma {
			p.next()
			continue
		}
		break
	}
	if err := p.expect(tokRBracket, "]"); err != nil {
		return nil, err
	}
	if err := p.expect(tokRParen, ")"); err != nil {
		return nil, err
	}
	if len(items) == 1 {
		return items[0], nil
	}
	if fn == "any" {
		return &Or{Terms: items}, nil
	}
	return &And{Terms: items}, nil
}
