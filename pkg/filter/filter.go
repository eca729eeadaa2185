// Package filter holds the declarative variant query. Every field is
// optional. For the set-valued fields nil means "not constrained" while a
// present but empty set constrains the query to nothing.
package filter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/yumyai/varquery/internal/util"
	"github.com/yumyai/varquery/pkg/model"
)

// Range is an inclusive numeric constraint on a named attribute. Either bound
// may be missing.
type Range struct {
	Attr string   `json:"attr"`
	Min  *float64 `json:"min,omitempty"`
	Max  *float64 `json:"max,omitempty"`
}

func (r Range) String() string {
	lo, hi := "-inf", "+inf"
	if r.Min != nil {
		lo = fmt.Sprint(*r.Min)
	}
	if r.Max != nil {
		hi = fmt.Sprint(*r.Max)
	}
	return fmt.Sprintf("%s[%s,%s]", r.Attr, lo, hi)
}

// Bound is a helper for building ranges in code.
func Bound(v float64) *float64 {
	return &v
}

type Filter struct {
	Regions          []model.Region `json:"regions"`
	Genes            []string       `json:"genes"`
	EffectTypes      []string       `json:"effect_types"`
	FamilyIDs        []string       `json:"family_ids"`
	PersonIDs        []string       `json:"person_ids"`
	Inheritance      []string       `json:"inheritance,omitempty"`
	Roles            string         `json:"roles,omitempty"`
	Sexes            string         `json:"sexes,omitempty"`
	AffectedStatuses string         `json:"affected_statuses,omitempty"`
	VariantType      string         `json:"variant_type,omitempty"`
	RealAttrFilter   []Range        `json:"real_attr_filter,omitempty"`
	FrequencyFilter  []Range        `json:"frequency_filter,omitempty"`
	UltraRare        bool           `json:"ultra_rare,omitempty"`
	ReturnReference  bool           `json:"return_reference,omitempty"`
	ReturnUnknown    bool           `json:"return_unknown,omitempty"`
	WithGenotypes    bool           `json:"with_genotypes,omitempty"`
	Limit            int            `json:"limit,omitempty"`
}

// Decode reads a JSON filter, rejecting keys the struct does not define.
func Decode(r io.Reader) (*Filter, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	var f Filter
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode filter: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("decode filter: trailing data")
	}
	return &f, nil
}

// DecodeBytes is Decode over an in-memory document.
func DecodeBytes(data []byte) (*Filter, error) {
	return Decode(bytes.NewReader(data))
}

// Normalized returns a copy with sets sorted and de-duplicated so that
// equivalent filters compile to identical queries. Absent sets stay nil.
func (f *Filter) Normalized() *Filter {
	out := *f
	out.Genes = util.SortedUnique(f.Genes)
	out.EffectTypes = util.SortedUnique(f.EffectTypes)
	out.FamilyIDs = util.SortedUnique(f.FamilyIDs)
	out.PersonIDs = util.SortedUnique(f.PersonIDs)
	if f.Regions != nil {
		out.Regions = append([]model.Region{}, f.Regions...)
	}
	if f.Inheritance != nil {
		out.Inheritance = append([]string{}, f.Inheritance...)
	}
	if f.RealAttrFilter != nil {
		out.RealAttrFilter = append([]Range{}, f.RealAttrFilter...)
	}
	if f.FrequencyFilter != nil {
		out.FrequencyFilter = append([]Range{}, f.FrequencyFilter...)
	}
	return &out
}

// NeedsFamilies reports whether the filter depends on per-family genotype
// data, which selects the family-joined query shape.
func (f *Filter) NeedsFamilies() bool {
	return f.WithGenotypes ||
		f.FamilyIDs != nil ||
		f.PersonIDs != nil ||
		f.Inheritance != nil ||
		f.Roles != "" ||
		f.Sexes != "" ||
		f.AffectedStatuses != "" ||
		f.ReturnReference ||
		f.ReturnUnknown
}

// NeedsEffectGenes reports whether the gene/effect side table has to be
// joined.
func (f *Filter) NeedsEffectGenes() bool {
	return f.Genes != nil || f.EffectTypes != nil
}

// Validate checks the constraints that do not depend on table metadata.
func (f *Filter) Validate() error {
	for _, r := range f.Regions {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("regions: %w", err)
		}
	}
	for _, group := range [][]Range{f.RealAttrFilter, f.FrequencyFilter} {
		for _, r := range group {
			if r.Attr == "" {
				return fmt.Errorf("range without attribute name")
			}
			if r.Min != nil && r.Max != nil && *r.Min > *r.Max {
				return fmt.Errorf("%s: min %v > max %v", r.Attr, *r.Min, *r.Max)
			}
		}
	}
	for _, inh := range f.Inheritance {
		if inh == "" {
			return fmt.Errorf("inheritance: empty expression")
		}
	}
	if f.Limit < 0 {
		return fmt.Errorf("limit %d < 0", f.Limit)
	}
	return nil
}
