package model

import (
	"fmt"
	"strconv"
	"strings"
)

// MaxPosition is used as the stop of a whole-chromosome region.
const MaxPosition = 3_000_000_000

// Region is a 1-based inclusive genomic interval.
type Region struct {
	Chrom string `json:"chrom"`
	Start int    `json:"start"`
	Stop  int    `json:"stop"`
}

// ParseRegion accepts "chr1:100-200", "chr1:100" and "chr1".
func ParseRegion(s string) (Region, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Region{}, fmt.Errorf("empty region")
	}
	chrom, rng, found := strings.Cut(s, ":")
	if !found {
		return Region{Chrom: chrom, Start: 1, Stop: MaxPosition}, nil
	}
	startStr, stopStr, hasStop := strings.Cut(strings.ReplaceAll(rng, ",", ""), "-")
	start, err := strconv.Atoi(startStr)
	if err != nil {
		return Region{}, fmt.Errorf("invalid region start %q: %w", s, err)
	}
	stop := start
	if hasStop {
		stop, err = strconv.Atoi(stopStr)
		if err != nil {
			return Region{}, fmt.Errorf("invalid region stop %q: %w", s, err)
		}
	}
	r := Region{Chrom: chrom, Start: start, Stop: stop}
	return r, r.Validate()
}

func (r Region) Validate() error {
	if r.Chrom == "" {
		return fmt.Errorf("region without chromosome")
	}
	if r.Start > r.Stop {
		return fmt.Errorf("region %s: start %d > stop %d", r.Chrom, r.Start, r.Stop)
	}
	return nil
}

// Overlaps reports whether an allele spanning [position, endPosition]
// intersects the region. endPosition <= 0 means a point allele.
func (r Region) Overlaps(chrom string, position, endPosition int) bool {
	if chrom != r.Chrom {
		return false
	}
	if endPosition <= 0 {
		endPosition = position
	}
	return !(endPosition < r.Start || position > r.Stop)
}

func (r Region) String() string {
	return fmt.Sprintf("%s:%d-%d", r.Chrom, r.Start, r.Stop)
}

func (r Region) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *Region) UnmarshalText(text []byte) error {
	parsed, err := ParseRegion(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Allele is the summary-level part of a variant row.
type Allele struct {
	Chromosome   string      `json:"chromosome"`
	Position     int         `json:"position"`
	EndPosition  int         `json:"end_position,omitempty"`
	Reference    string      `json:"reference,omitempty"`
	Alternative  string      `json:"alternative,omitempty"`
	VariantType  VariantType `json:"variant_type"`
	SummaryIndex int         `json:"summary_index"`
	AlleleIndex  int         `json:"allele_index"`
}

// Variant is one deserialized result row. Family fields are empty for
// summary-only queries.
type Variant struct {
	Allele
	Study       string             `json:"study,omitempty"`
	FamilyID    string             `json:"family_id,omitempty"`
	Genotype    [][]int8           `json:"genotype,omitempty"`
	Inheritance Inheritance        `json:"inheritance,omitempty"`
	Attributes  map[string]float64 `json:"attributes,omitempty"`
}

// IsSummary reports whether the row carries no family genotype.
func (v *Variant) IsSummary() bool {
	return v.FamilyID == ""
}
