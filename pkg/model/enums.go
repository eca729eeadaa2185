package model

import (
	"fmt"
	"math/bits"
	"strings"
)

// Enum is a closed vocabulary of bitmask values. Attribute columns such as
// inheritance_in_members store the OR of the values seen across a family.
type Enum struct {
	Name    string
	names   []string
	values  map[string]int64
	aliases map[string]int64
}

func newEnum(name string, names ...string) *Enum {
	e := &Enum{
		Name:    name,
		names:   names,
		values:  make(map[string]int64, len(names)),
		aliases: map[string]int64{},
	}
	for i, n := range names {
		e.values[strings.ToLower(n)] = 1 << i
	}
	return e
}

func (e *Enum) alias(name string, members ...string) *Enum {
	var mask int64
	for _, m := range members {
		v, ok := e.values[strings.ToLower(m)]
		if !ok {
			panic(fmt.Sprintf("%s alias %s: unknown member %s", e.Name, name, m))
		}
		mask |= v
	}
	e.aliases[strings.ToLower(name)] = mask
	return e
}

// Value resolves a member or alias name (case-insensitive) to its mask.
func (e *Enum) Value(name string) (int64, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	if v, ok := e.values[key]; ok {
		return v, true
	}
	v, ok := e.aliases[key]
	return v, ok
}

// BitIndex is the position of a single-member value, used to address the
// per-member slot in complementary (zygosity) columns.
func (e *Enum) BitIndex(value int64) int {
	return bits.TrailingZeros64(uint64(value))
}

// Names lists the members set in mask in declaration order.
func (e *Enum) Names(mask int64) []string {
	var out []string
	for i, n := range e.names {
		if mask&(1<<i) != 0 {
			out = append(out, n)
		}
	}
	return out
}

// All is the mask with every member set.
func (e *Enum) All() int64 {
	return (1 << len(e.names)) - 1
}

type Inheritance int64

const (
	InheritanceReference Inheritance = 1 << iota
	InheritanceMendelian
	InheritanceDenovo
	InheritancePossibleDenovo
	InheritanceOmission
	InheritancePossibleOmission
	InheritanceOther
	InheritanceMissing
	InheritanceUnknown
)

var InheritanceEnum = newEnum("inheritance",
	"reference", "mendelian", "denovo", "possible_denovo", "omission",
	"possible_omission", "other", "missing", "unknown").
	alias("denovo_any", "denovo", "possible_denovo").
	alias("omission_any", "omission", "possible_omission")

func (i Inheritance) String() string {
	return strings.Join(InheritanceEnum.Names(int64(i)), "|")
}

var RoleEnum = newEnum("role",
	"maternal_grandmother", "maternal_grandfather", "paternal_grandmother",
	"paternal_grandfather", "mom", "dad", "parent", "prb", "sib", "child",
	"maternal_half_sibling", "paternal_half_sibling", "half_sibling",
	"maternal_aunt", "maternal_uncle", "paternal_aunt", "paternal_uncle",
	"maternal_cousin", "paternal_cousin", "step_mom", "step_dad", "spouse",
	"unknown").
	alias("proband", "prb").
	alias("parents", "mom", "dad").
	alias("siblings", "sib", "half_sibling", "maternal_half_sibling", "paternal_half_sibling")

var SexEnum = newEnum("sex", "male", "female", "unspecified").
	alias("M", "male").
	alias("F", "female").
	alias("U", "unspecified")

var StatusEnum = newEnum("status", "unaffected", "affected", "unspecified")

type VariantType int64

const (
	VariantSubstitution VariantType = 1 << iota
	VariantSmallInsertion
	VariantSmallDeletion
	VariantComplex
	VariantTandemRepeat
	VariantLargeDeletion
	VariantLargeDuplication
)

var VariantTypeEnum = newEnum("variant_type",
	"substitution", "small_insertion", "small_deletion", "complex",
	"tandem_repeat", "large_deletion", "large_duplication").
	alias("sub", "substitution").
	alias("ins", "small_insertion").
	alias("del", "small_deletion").
	alias("TR", "tandem_repeat").
	alias("CNV-", "large_deletion").
	alias("CNV+", "large_duplication").
	alias("CNV", "large_deletion", "large_duplication")

func (v VariantType) String() string {
	return strings.Join(VariantTypeEnum.Names(int64(v)), "|")
}

// ZygosityEnum is the complementary vocabulary for compounds like
// "prb~homozygous". Each member of the main enum owns two bits in the
// complementary column.
var ZygosityEnum = newEnum("zygosity", "homozygous", "heterozygous")

// ZygosityMask places a zygosity value into the slot reserved for the main
// enum member at bit index idx.
func ZygosityMask(idx int, zygosity int64) int64 {
	return zygosity << (2 * idx)
}
