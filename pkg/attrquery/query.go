package attrquery

import (
	"errors"
	"fmt"

	"github.com/yumyai/varquery/pkg/model"
)

// ErrCompoundUnsupported is returned for a~b literals when the binding has
// no complementary vocabulary/column.
var ErrCompoundUnsupported = errors.New("compound values are not supported here")

// Binding ties an expression to the enum it is written in and the column it
// tests. Complement/ComplementColumn are optional and enable compounds.
type Binding struct {
	Enum             *model.Enum
	Column           string
	Complement       *model.Enum
	ComplementColumn string
}

type termKind int

const (
	termBit termKind = iota
	termAnd
	termOr
	termNot
)

type term struct {
	kind     termKind
	mask     int64
	compMask int64
	children []*term
}

// Query is a parsed expression with every name resolved to a bitmask.
type Query struct {
	text    string
	binding Binding
	root    *term
}

// Compile parses and resolves an expression against a binding.
func Compile(text string, b Binding) (*Query, error) {
	if b.Enum == nil {
		return nil, fmt.Errorf("attribute query %q: binding without enum", text)
	}
	node, err := Parse(text)
	if err != nil {
		return nil, err
	}
	root, err := resolve(node, b)
	if err != nil {
		return nil, fmt.Errorf("attribute query %q: %w", text, err)
	}
	return &Query{text: text, binding: b, root: root}, nil
}

func resolve(node Node, b Binding) (*term, error) {
	switch n := node.(type) {
	case *Literal:
		mask, ok := b.Enum.Value(n.Name)
		if !ok {
			return nil, fmt.Errorf("unknown %s value %q", b.Enum.Name, n.Name)
		}
		t := &term{kind: termBit, mask: mask}
		if n.Complement == "" {
			return t, nil
		}
		if b.Complement == nil || b.ComplementColumn == "" {
			return nil, fmt.Errorf("%s~%s: %w", n.Name, n.Complement, ErrCompoundUnsupported)
		}
		comp, ok := b.Complement.Value(n.Complement)
		if !ok {
			return nil, fmt.Errorf("unknown %s value %q", b.Complement.Name, n.Complement)
		}
		for idx := 0; idx < 64; idx++ {
			if mask&(1<<idx) != 0 {
				t.compMask |= model.ZygosityMask(idx, comp)
			}
		}
		return t, nil
	case *Not:
		x, err := resolve(n.X, b)
		if err != nil {
			return nil, err
		}
		return &term{kind: termNot, children: []*term{x}}, nil
	case *And, *Or:
		var terms []Node
		kind := termAnd
		if o, ok := n.(*Or); ok {
			terms, kind = o.Terms, termOr
		} else {
			terms = n.(*And).Terms
		}
		t := &term{kind: kind}
		for _, child := range terms {
			c, err := resolve(child, b)
			if err != nil {
				return nil, err
			}
			t.children = append(t.children, c)
		}
		return t, nil
	default:
		return nil, fmt.Errorf("unexpected node %T", node)
	}
}

func (q *Query) String() string {
	return q.text
}

func (q *Query) Binding() Binding {
	return q.binding
}

// Match evaluates the query against a column value and, for compounds, the
// complementary column value.
func (q *Query) Match(value, complement int64) bool {
	return match(q.root, value, complement)
}

func match(t *term, value, complement int64) bool {
	switch t.kind {
	case termBit:
		if value&t.mask == 0 {
			return false
		}
		return t.compMask == 0 || complement&t.compMask != 0
	case termNot:
		return !match(t.children[0], value, complement)
	case termAnd:
		for _, c := range t.children {
			if !match(c, value, complement) {
				return false
			}
		}
		return true
	default:
		for _, c := range t.children {
			if match(c, value, complement) {
				return true
			}
		}
		return false
	}
}

// Visitor builds a backend representation of a query. Every dialect goes
// through the same walk, only the visitor differs.
type Visitor[T any] interface {
	// BitTest is "(column & mask) != 0".
	BitTest(column string, mask int64) T
	And(terms ...T) T
	Or(terms ...T) T
	Not(x T) T
}

// Transform walks the query with v.
func Transform[T any](q *Query, v Visitor[T]) T {
	return transform(q.root, q.binding, v)
}

func transform[T any](t *term, b Binding, v Visitor[T]) T {
	switch t.kind {
	case termBit:
		test := v.BitTest(b.Column, t.mask)
		if t.compMask == 0 {
			return test
		}
		return v.And(test, v.BitTest(b.ComplementColumn, t.compMask))
	case termNot:
		return v.Not(transform(t.children[0], b, v))
	default:
		parts := make([]T, len(t.children))
		for i, c := range t.children {
			parts[i] = transform(c, b, v)
		}
		if t.kind == termAnd {
			return v.And(parts...)
		}
		return v.Or(parts...)
	}
}
