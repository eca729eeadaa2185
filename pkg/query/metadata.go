package query

import (
	"regexp"
	"sort"

	"github.com/yumyai/varquery/pkg/model"
	"github.com/yumyai/varquery/pkg/partition"
)

// AttributeKind tells the compiler how NULLs of an attribute behave.
type AttributeKind int

const (
	// AttrScore is a plain numeric attribute. NULL never satisfies a range.
	AttrScore AttributeKind = iota
	// AttrFrequency is a frequency. NULL means "not measured" and satisfies
	// a range with only an upper bound.
	AttrFrequency
)

// DefaultJoinKey joins summary and family rows.
const DefaultJoinKey = "sj_index"

// Built-in summary columns every layout carries.
const (
	ColAlleleCount = "af_allele_count"
	ColAlleleFreq  = "af_allele_freq"

	colRegionBin     = "region_bin"
	colFrequencyBin  = "frequency_bin"
	colCodingBin     = "coding_bin"
	colFamilyBin     = "family_bin"
	colGeneSymbols   = "effect_gene_symbols"
	colEffectTypes   = "effect_types"
	colEffectGene    = "effect_gene"
	colMembers       = "allele_in_members"
	colRoles         = "allele_in_roles"
	colSexes         = "allele_in_sexes"
	colStatuses      = "allele_in_statuses"
	colZygosityRoles = "zygosity_in_roles"
	colZygositySexes = "zygosity_in_sexes"
	colZygosityStats = "zygosity_in_statuses"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// TableMetadata describes where one study keeps its variants.
type TableMetadata struct {
	Study    string
	Database string

	SummaryTable    string
	FamilyTable     string
	EffectGeneTable string
	JoinKey         string

	// Attributes are the numeric summary columns filters may constrain.
	Attributes map[string]AttributeKind
	// ZygosityColumns enables role~zygosity style compounds.
	ZygosityColumns bool

	// Partition prunes bins. Nil for unpartitioned tables.
	Partition *partition.Index
	// Partitions lists the physical partitions of a file backed study. The
	// compiled query targets the ones that survive pruning.
	Partitions []partition.Key
}

func (m *TableMetadata) joinKey() string {
	if m.JoinKey == "" {
		return DefaultJoinKey
	}
	return m.JoinKey
}

func (m *TableMetadata) attribute(name string) (AttributeKind, bool) {
	if kind, ok := m.Attributes[name]; ok {
		return kind, true
	}
	switch name {
	case ColAlleleCount, ColAlleleFreq:
		return AttrFrequency, true
	}
	return 0, false
}

func (m *TableMetadata) descriptor() *partition.Descriptor {
	if m.Partition == nil {
		return nil
	}
	return m.Partition.Descriptor
}

func (m *TableMetadata) validate() error {
	if m.SummaryTable == "" {
		return compileErr("summary_table", ErrInvalidFilter, "no summary table for study %q", m.Study)
	}
	if !identPattern.MatchString(m.joinKey()) {
		return compileErr("join_key", ErrInvalidFilter, "bad join key %q", m.joinKey())
	}
	for name := range m.Attributes {
		if !identPattern.MatchString(name) {
			return compileErr("attributes", ErrInvalidFilter, "bad attribute name %q", name)
		}
	}
	return nil
}

// summaryColumns are selected by both shapes, in a stable order.
func (m *TableMetadata) summaryColumns() []Column {
	cols := []Column{
		sa(model.ColChromosome),
		sa(model.ColPosition),
		sa(model.ColEndPosition),
		sa(model.ColReference),
		sa(model.ColAlternative),
		sa(model.ColVariantType),
		sa(model.ColSummaryIndex),
		sa(model.ColAlleleIndex),
		sa(ColAlleleCount),
		sa(ColAlleleFreq),
	}
	for _, name := range m.attributeNames() {
		if name == ColAlleleCount || name == ColAlleleFreq {
			continue
		}
		cols = append(cols, sa(name))
	}
	return cols
}

func familyColumns() []Column {
	return []Column{
		fa(model.ColFamilyID),
		fa(model.ColGenotype),
		fa(model.ColInheritance),
	}
}

// attributeNames lists the configured attributes in sorted order.
func (m *TableMetadata) attributeNames() []string {
	names := make([]string, 0, len(m.Attributes))
	for name := range m.Attributes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
