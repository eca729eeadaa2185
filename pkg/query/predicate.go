package query

import (
	"github.com/yumyai/varquery/pkg/model"
)

// Column is a column of one of the query's table aliases.
type Column struct {
	Table string
	Name  string
}

func (c Column) String() string {
	if c.Table == "" {
		return c.Name
	}
	return c.Table + "." + c.Name
}

// Table aliases.
const (
	aliasSummary = "sa"
	aliasFamily  = "fa"
	aliasEffect  = "eg"
)

func sa(name string) Column { return Column{Table: aliasSummary, Name: name} }
func fa(name string) Column { return Column{Table: aliasFamily, Name: name} }
func eg(name string) Column { return Column{Table: aliasEffect, Name: name} }

// Expr is a backend independent predicate. Every dialect renders the same
// tree; the dataframe dialect evaluates it directly.
type Expr interface {
	isExpr()
}

// Const is a literal TRUE or FALSE.
type Const bool

// And is a conjunction. An empty And is true.
type And []Expr

// Or is a disjunction. An empty Or is false.
type Or []Expr

type Not struct {
	X Expr
}

// Cmp compares a column to a literal with one of = <> < <= > >=.
type Cmp struct {
	Col   Column
	Op    string
	Value any
}

// IsNull tests for NULL, or NOT NULL when Negate is set.
type IsNull struct {
	Col    Column
	Negate bool
}

// In is scalar membership. On list valued columns it matches when any
// element is in Values.
type In struct {
	Col    Column
	Values []any
}

// BitTest is "(col & mask) != 0".
type BitTest struct {
	Col  Column
	Mask int64
}

// ContainsAny matches when the list column shares an element with Values.
type ContainsAny struct {
	Col    Column
	Values []string
}

// Overlap is the interval test of an allele spanning [Pos, End] against a
// region. A NULL End means the allele is a single position.
type Overlap struct {
	Chrom, Pos, End Column
	Region          model.Region
}

func (Const) isExpr()       {}
func (And) isExpr()         {}
func (Or) isExpr()          {}
func (Not) isExpr()         {}
func (Cmp) isExpr()         {}
func (IsNull) isExpr()      {}
func (In) isExpr()          {}
func (BitTest) isExpr()     {}
func (ContainsAny) isExpr() {}
func (Overlap) isExpr()     {}

// AllOf builds a flattened conjunction, folding constants.
func AllOf(terms ...Expr) Expr {
	var out And
	for _, t := range terms {
		switch v := t.(type) {
		case nil:
		case Const:
			if !v {
				return Const(false)
			}
		case And:
			for _, inner := range v {
				if c, ok := inner.(Const); ok && !bool(c) {
					return Const(false)
				}
			}
			out = append(out, v...)
		default:
			out = append(out, t)
		}
	}
	switch len(out) {
	case 0:
		return Const(true)
	case 1:
		return out[0]
	}
	return out
}

// AnyOf builds a flattened disjunction, folding constants.
func AnyOf(terms ...Expr) Expr {
	var out Or
	for _, t := range terms {
		switch v := t.(type) {
		case nil:
		case Const:
			if v {
				return Const(true)
			}
		case Or:
			out = append(out, v...)
		default:
			out = append(out, t)
		}
	}
	switch len(out) {
	case 0:
		return Const(false)
	case 1:
		return out[0]
	}
	return out
}

// Negate wraps x in Not, folding constants and double negation.
func Negate(x Expr) Expr {
	switch v := x.(type) {
	case Const:
		return !v
	case Not:
		return v.X
	}
	return Not{X: x}
}

// exprVisitor adapts the attribute query transform to predicate trees.
type exprVisitor struct {
	table string
}

func (v exprVisitor) BitTest(column string, mask int64) Expr {
	return BitTest{Col: Column{Table: v.table, Name: column}, Mask: mask}
}

func (v exprVisitor) And(terms ...Expr) Expr { return AllOf(terms...) }

func (v exprVisitor) Or(terms ...Expr) Expr { return AnyOf(terms...) }

func (v exprVisitor) Not(x Expr) Expr { return Negate(x) }
