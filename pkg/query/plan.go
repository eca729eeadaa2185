package query

import (
	"errors"

	"github.com/yumyai/varquery/pkg/attrquery"
	"github.com/yumyai/varquery/pkg/filter"
	"github.com/yumyai/varquery/pkg/model"
	"github.com/yumyai/varquery/pkg/partition"
)

// Shape is the join layout of a compiled query.
type Shape int

const (
	// ShapeSummary reads the summary table only, one row per allele.
	ShapeSummary Shape = iota
	// ShapeFamily joins summary and family rows on the join key.
	ShapeFamily
)

func (s Shape) String() string {
	if s == ShapeFamily {
		return "family"
	}
	return "summary"
}

// Plan is the dialect independent analysis of one filter against one
// table. Builders read it, they never change it.
type Plan struct {
	Filter     *filter.Filter
	Meta       *TableMetadata
	Shape      Shape
	EffectJoin bool
	Bins       partition.Bins
	Targets    []partition.Key
	Columns    []Column
	Limit      int
}

// NewPlan validates f against meta and fixes the query shape. All compile
// errors surface here or in the builder stages, never at execution time.
func NewPlan(f *filter.Filter, meta *TableMetadata) (*Plan, error) {
	if f == nil {
		f = &filter.Filter{}
	}
	if meta == nil {
		return nil, compileErr("", ErrInvalidFilter, "no table metadata")
	}
	if err := meta.validate(); err != nil {
		return nil, err
	}
	if err := checkRanges(f, meta); err != nil {
		return nil, err
	}
	if err := f.Validate(); err != nil {
		return nil, compileErr("filter", ErrInvalidFilter, "%v", err)
	}

	p := &Plan{
		Filter:     f.Normalized(),
		Meta:       meta,
		Shape:      ShapeSummary,
		EffectJoin: f.NeedsEffectGenes(),
		Limit:      f.Limit,
	}
	if f.NeedsFamilies() {
		if meta.FamilyTable == "" {
			return nil, compileErr("family_table", ErrUnsupported, "study %q has no family table", meta.Study)
		}
		p.Shape = ShapeFamily
	}

	if meta.Partition != nil {
		bins, err := meta.Partition.Prune(p.Filter)
		if err != nil {
			return nil, compileErr("inheritance", ErrInvalidFilter, "%v", err)
		}
		p.Bins = bins
	}
	if !p.Bins.Empty() {
		for _, k := range meta.Partitions {
			if p.Bins.Contains(k) {
				p.Targets = append(p.Targets, k)
			}
		}
	}

	p.Columns = meta.summaryColumns()
	if p.Shape == ShapeFamily {
		p.Columns = append(p.Columns, familyColumns()...)
	}
	return p, nil
}

func checkRanges(f *filter.Filter, meta *TableMetadata) error {
	for _, group := range []struct {
		field  string
		ranges []filter.Range
	}{{"real_attr_filter", f.RealAttrFilter}, {"frequency_filter", f.FrequencyFilter}} {
		for _, r := range group.ranges {
			if _, ok := meta.attribute(r.Attr); !ok {
				return compileErr(group.field, ErrUnknownAttribute, "unknown attribute %q", r.Attr)
			}
			if r.Min != nil && r.Max != nil && *r.Min > *r.Max {
				return compileErr(group.field, ErrInvalidRange, "%s: min %v > max %v", r.Attr, *r.Min, *r.Max)
			}
		}
	}
	return nil
}

// Predicate translates the filter. With bins set, pruned partition
// dimensions are added as IN predicates on the bin columns.
func (p *Plan) Predicate(bins bool) (Expr, error) {
	f := p.Filter
	if p.Bins.Empty() {
		return Const(false), nil
	}

	terms := []Expr{
		regionsExpr(f.Regions),
		setExpr(eg(colGeneSymbols), f.Genes),
		setExpr(eg(colEffectTypes), f.EffectTypes),
	}

	if p.Shape == ShapeFamily {
		terms = append(terms, setExpr(fa(model.ColFamilyID), f.FamilyIDs))
		if f.PersonIDs != nil {
			if len(f.PersonIDs) == 0 {
				terms = append(terms, Const(false))
			} else {
				terms = append(terms, ContainsAny{Col: fa(colMembers), Values: f.PersonIDs})
			}
		}
		for _, expr := range f.Inheritance {
			e, err := p.attrExpr("inheritance", expr, aliasFamily, attrquery.Binding{
				Enum:   model.InheritanceEnum,
				Column: model.ColInheritance,
			})
			if err != nil {
				return nil, err
			}
			terms = append(terms, e)
		}
		for _, a := range []struct {
			field, expr  string
			enum         *model.Enum
			column, comp string
		}{
			{"roles", f.Roles, model.RoleEnum, colRoles, colZygosityRoles},
			{"sexes", f.Sexes, model.SexEnum, colSexes, colZygositySexes},
			{"affected_statuses", f.AffectedStatuses, model.StatusEnum, colStatuses, colZygosityStats},
		} {
			if a.expr == "" {
				continue
			}
			b := attrquery.Binding{Enum: a.enum, Column: a.column}
			if p.Meta.ZygosityColumns {
				b.Complement, b.ComplementColumn = model.ZygosityEnum, a.comp
			}
			e, err := p.attrExpr(a.field, a.expr, aliasFamily, b)
			if err != nil {
				return nil, err
			}
			terms = append(terms, e)
		}
		if !f.ReturnUnknown {
			terms = append(terms, Cmp{Col: fa(model.ColInheritance), Op: "<>", Value: int64(model.InheritanceUnknown)})
		}
	}

	if f.VariantType != "" {
		e, err := p.attrExpr("variant_type", f.VariantType, aliasSummary, attrquery.Binding{
			Enum:   model.VariantTypeEnum,
			Column: model.ColVariantType,
		})
		if err != nil {
			return nil, err
		}
		terms = append(terms, e)
	}

	for _, r := range f.RealAttrFilter {
		kind, _ := p.Meta.attribute(r.Attr)
		terms = append(terms, rangeExpr(sa(r.Attr), r, kind == AttrFrequency))
	}
	for _, r := range f.FrequencyFilter {
		terms = append(terms, rangeExpr(sa(r.Attr), r, true))
	}
	if f.UltraRare {
		terms = append(terms, AnyOf(
			Cmp{Col: sa(ColAlleleCount), Op: "<=", Value: int64(1)},
			IsNull{Col: sa(ColAlleleCount)},
		))
	}
	if !f.ReturnReference {
		terms = append(terms, Cmp{Col: sa(model.ColAlleleIndex), Op: ">", Value: int64(0)})
	}
	if bins {
		terms = append(terms, p.binPredicates()...)
	}
	return AllOf(terms...), nil
}

func (p *Plan) attrExpr(field, text, table string, b attrquery.Binding) (Expr, error) {
	q, err := attrquery.Compile(text, b)
	if err != nil {
		if errors.Is(err, attrquery.ErrCompoundUnsupported) {
			return nil, compileErr(field, ErrUnsupported, "%v", err)
		}
		return nil, compileErr(field, ErrInvalidFilter, "%v", err)
	}
	return attrquery.Transform[Expr](q, exprVisitor{table: table}), nil
}

func (p *Plan) binPredicates() []Expr {
	d := p.Meta.descriptor()
	table := aliasSummary
	if p.Shape == ShapeFamily {
		table = aliasFamily
	}
	var out []Expr
	if d.HasRegionBins() && p.Bins.Region != nil {
		values := make([]any, len(p.Bins.Region))
		for i, v := range p.Bins.Region {
			values[i] = v
		}
		out = append(out, In{Col: Column{Table: table, Name: colRegionBin}, Values: values})
	}
	if d.HasFrequencyBins() && p.Bins.Frequency != nil {
		out = append(out, In{Col: Column{Table: table, Name: colFrequencyBin}, Values: intValues(p.Bins.Frequency)})
	}
	if d.HasCodingBins() && p.Bins.Coding != nil {
		out = append(out, In{Col: Column{Table: table, Name: colCodingBin}, Values: intValues(p.Bins.Coding)})
	}
	if p.Shape == ShapeFamily && d.HasFamilyBins() && p.Bins.Family != nil {
		out = append(out, In{Col: fa(colFamilyBin), Values: intValues(p.Bins.Family)})
	}
	return out
}

func intValues(bins []int) []any {
	out := make([]any, len(bins))
	for i, b := range bins {
		out[i] = int64(b)
	}
	return out
}

func regionsExpr(regions []model.Region) Expr {
	if regions == nil {
		return nil
	}
	terms := make([]Expr, 0, len(regions))
	for _, r := range regions {
		terms = append(terms, Overlap{
			Chrom:  sa(model.ColChromosome),
			Pos:    sa(model.ColPosition),
			End:    sa(model.ColEndPosition),
			Region: r,
		})
	}
	return AnyOf(terms...)
}

// setExpr is nil for an absent set and FALSE for an empty one.
func setExpr(col Column, values []string) Expr {
	if values == nil {
		return nil
	}
	if len(values) == 0 {
		return Const(false)
	}
	in := In{Col: col, Values: make([]any, len(values))}
	for i, v := range values {
		in.Values[i] = v
	}
	return in
}

// rangeExpr builds an inclusive range. Frequencies with only an upper bound
// let NULL through; a range without bounds only asks for a value, and is a
// no-op for frequencies.
func rangeExpr(col Column, r filter.Range, frequency bool) Expr {
	switch {
	case r.Min == nil && r.Max == nil:
		if frequency {
			return nil
		}
		return IsNull{Col: col, Negate: true}
	case r.Min != nil && r.Max != nil:
		return AllOf(
			Cmp{Col: col, Op: ">=", Value: *r.Min},
			Cmp{Col: col, Op: "<=", Value: *r.Max},
		)
	case r.Min != nil:
		return Cmp{Col: col, Op: ">=", Value: *r.Min}
	}
	upper := Cmp{Col: col, Op: "<=", Value: *r.Max}
	if frequency {
		return AnyOf(upper, IsNull{Col: col})
	}
	return upper
}
