package query

import (
	"github.com/yumyai/varquery/pkg/model"
)

// truth is SQL three valued logic, so that a predicate evaluated in process
// keeps exactly the rows a SQL engine would keep.
type truth int8

const (
	unknown truth = iota
	isFalse
	isTrue
)

func truthOf(b bool) truth {
	if b {
		return isTrue
	}
	return isFalse
}

// Eval reports whether rec satisfies e. Columns are looked up by name only,
// as records of the embedded store are already joined.
func Eval(e Expr, rec model.Record) bool {
	return eval(e, rec) == isTrue
}

func eval(e Expr, rec model.Record) truth {
	switch v := e.(type) {
	case Const:
		return truthOf(bool(v))
	case And:
		out := isTrue
		for _, t := range v {
			switch eval(t, rec) {
			case isFalse:
				return isFalse
			case unknown:
				out = unknown
			}
		}
		return out
	case Or:
		out := isFalse
		for _, t := range v {
			switch eval(t, rec) {
			case isTrue:
				return isTrue
			case unknown:
				out = unknown
			}
		}
		return out
	case Not:
		switch eval(v.X, rec) {
		case isTrue:
			return isFalse
		case isFalse:
			return isTrue
		}
		return unknown
	case IsNull:
		null := rec[v.Col.Name] == nil
		return truthOf(null != v.Negate)
	case Cmp:
		return evalCmp(v, rec)
	case In:
		return evalIn(v, rec)
	case ContainsAny:
		values := make([]any, len(v.Values))
		for i, s := range v.Values {
			values[i] = s
		}
		return evalIn(In{Col: v.Col, Values: values}, rec)
	case BitTest:
		n, ok, err := rec.Int(v.Col.Name)
		if err != nil || !ok {
			return unknown
		}
		return truthOf(n&v.Mask != 0)
	case Overlap:
		chrom, err := rec.Text(v.Chrom.Name)
		if err != nil || rec[v.Chrom.Name] == nil {
			return unknown
		}
		pos, ok, err := rec.Int(v.Pos.Name)
		if err != nil || !ok {
			return unknown
		}
		end, ok, err := rec.Int(v.End.Name)
		if err != nil || !ok {
			end = pos
		}
		return truthOf(v.Region.Overlaps(chrom, int(pos), int(end)))
	}
	return unknown
}

func evalCmp(c Cmp, rec model.Record) truth {
	if rec[c.Col.Name] == nil {
		return unknown
	}
	if want, ok := c.Value.(string); ok {
		got, err := rec.Text(c.Col.Name)
		if err != nil {
			return unknown
		}
		return truthOf(compare(c.Op, stringOrder(got, want)))
	}
	got, ok, err := rec.Float(c.Col.Name)
	if err != nil || !ok {
		return unknown
	}
	want, ok := toFloat(c.Value)
	if !ok {
		return unknown
	}
	return truthOf(compare(c.Op, floatOrder(got, want)))
}

func evalIn(in In, rec model.Record) truth {
	raw := rec[in.Col.Name]
	if raw == nil {
		return unknown
	}
	var candidates []string
	switch raw.(type) {
	case []string, []any:
		list, err := rec.Strings(in.Col.Name)
		if err != nil {
			return unknown
		}
		candidates = list
	default:
		s, err := rec.Text(in.Col.Name)
		if err != nil {
			return unknown
		}
		candidates = []string{s}
	}
	for _, c := range candidates {
		for _, want := range in.Values {
			if c == literalText(want) {
				return isTrue
			}
		}
	}
	return isFalse
}

func compare(op string, order int) bool {
	switch op {
	case "=":
		return order == 0
	case "<>", "!=":
		return order != 0
	case "<":
		return order < 0
	case "<=":
		return order <= 0
	case ">":
		return order > 0
	case ">=":
		return order >= 0
	}
	return false
}

func stringOrder(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func floatOrder(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}
