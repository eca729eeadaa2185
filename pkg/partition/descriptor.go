// Package partition describes how a dataset is split into region,
// frequency, coding and family bins, and prunes the bins a filter has to
// scan.
package partition

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"math/big"
	"strings"

	"gopkg.in/yaml.v3"
)

// Frequency bins.
const (
	FrequencyDenovo    = 0
	FrequencyUltraRare = 1
	FrequencyRare      = 2
	FrequencyCommon    = 3
)

// Descriptor is the partition scheme of one dataset. A zero value means an
// unpartitioned dataset.
type Descriptor struct {
	Chromosomes       []string
	RegionLength      int
	FamilyBinSize     int
	CodingEffectTypes []string
	RareBoundary      float64
}

// stringList accepts either a YAML list or a comma separated string.
type stringList []string

func (c *stringList) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var raw string
		if err := node.Decode(&raw); err != nil {
			return err
		}
		var out []string
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		*c = out
		return nil
	}
	var list []string
	if err := node.Decode(&list); err != nil {
		return err
	}
	*c = list
	return nil
}

type descriptorYAML struct {
	RegionBin *struct {
		Chromosomes  stringList `yaml:"chromosomes"`
		RegionLength int        `yaml:"region_length"`
	} `yaml:"region_bin"`
	FrequencyBin *struct {
		RareBoundary float64 `yaml:"rare_boundary"`
	} `yaml:"frequency_bin"`
	CodingBin *struct {
		CodingEffectTypes stringList `yaml:"coding_effect_types"`
	} `yaml:"coding_bin"`
	FamilyBin *struct {
		FamilyBinSize int `yaml:"family_bin_size"`
	} `yaml:"family_bin"`
}

// ParseYAML reads a descriptor such as
//
//	region_bin:
//	  chromosomes: chr1, chr2
//	  region_length: 100000000
//	frequency_bin:
//	  rare_boundary: 5
//	coding_bin:
//	  coding_effect_types: [missense, nonsense]
//	family_bin:
//	  family_bin_size: 10
func ParseYAML(data []byte) (*Descriptor, error) {
	var raw descriptorYAML
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil {
		if len(bytes.TrimSpace(data)) == 0 {
			return &Descriptor{}, nil
		}
		return nil, fmt.Errorf("partition descriptor: %w", err)
	}
	return raw.descriptor()
}

// UnmarshalYAML lets a Descriptor be embedded in larger config documents.
func (d *Descriptor) UnmarshalYAML(node *yaml.Node) error {
	var raw descriptorYAML
	if err := node.Decode(&raw); err != nil {
		return fmt.Errorf("partition descriptor: %w", err)
	}
	parsed, err := raw.descriptor()
	if err != nil {
		return err
	}
	*d = *parsed
	return nil
}

func (raw descriptorYAML) descriptor() (*Descriptor, error) {
	d := &Descriptor{}
	if raw.RegionBin != nil {
		d.Chromosomes = raw.RegionBin.Chromosomes
		d.RegionLength = raw.RegionBin.RegionLength
		if d.RegionLength <= 0 {
			return nil, fmt.Errorf("partition descriptor: region_length must be positive")
		}
	}
	if raw.FrequencyBin != nil {
		d.RareBoundary = raw.FrequencyBin.RareBoundary
	}
	if raw.CodingBin != nil {
		d.CodingEffectTypes = raw.CodingBin.CodingEffectTypes
	}
	if raw.FamilyBin != nil {
		d.FamilyBinSize = raw.FamilyBin.FamilyBinSize
		if d.FamilyBinSize <= 0 {
			return nil, fmt.Errorf("partition descriptor: family_bin_size must be positive")
		}
	}
	return d, nil
}

func (d *Descriptor) HasRegionBins() bool {
	return d != nil && len(d.Chromosomes) > 0 && d.RegionLength > 0
}

func (d *Descriptor) HasFrequencyBins() bool {
	return d != nil && d.RareBoundary > 0
}

func (d *Descriptor) HasCodingBins() bool {
	return d != nil && len(d.CodingEffectTypes) > 0
}

func (d *Descriptor) HasFamilyBins() bool {
	return d != nil && d.FamilyBinSize > 0
}

func (d *Descriptor) isPartitionChrom(chrom string) bool {
	for _, c := range d.Chromosomes {
		if c == chrom {
			return true
		}
	}
	return false
}

// MakeRegionBin names the region bin of a position. Chromosomes outside the
// descriptor share the "other" bins.
func (d *Descriptor) MakeRegionBin(chrom string, pos int) string {
	bin := pos / d.RegionLength
	if d.isPartitionChrom(chrom) {
		return fmt.Sprintf("%s_%d", chrom, bin)
	}
	return fmt.Sprintf("other_%d", bin)
}

// MakeFamilyBin hashes a family id into [0, FamilyBinSize).
func (d *Descriptor) MakeFamilyBin(familyID string) int {
	sum := sha256.Sum256([]byte(familyID))
	digest := new(big.Int).SetBytes(sum[:])
	return int(digest.Mod(digest, big.NewInt(int64(d.FamilyBinSize))).Int64())
}

// MakeCodingBin is 1 when any of the effect types is coding.
func (d *Descriptor) MakeCodingBin(effectTypes []string) int {
	coding := d.codingSet()
	for _, et := range effectTypes {
		if _, ok := coding[et]; ok {
			return 1
		}
	}
	return 0
}

// MakeFrequencyBin assigns denovo, ultra rare, rare and common alleles.
func (d *Descriptor) MakeFrequencyBin(alleleCount int, alleleFreq float64, denovo bool) int {
	switch {
	case denovo:
		return FrequencyDenovo
	case alleleCount <= 1:
		return FrequencyUltraRare
	case alleleFreq <= d.RareBoundary:
		return FrequencyRare
	default:
		return FrequencyCommon
	}
}

func (d *Descriptor) codingSet() map[string]struct{} {
	set := make(map[string]struct{}, len(d.CodingEffectTypes))
	for _, et := range d.CodingEffectTypes {
		set[et] = struct{}{}
	}
	return set
}

// KeyFor computes the partition of one family allele.
func (d *Descriptor) KeyFor(chrom string, pos int, alleleCount int, alleleFreq float64, denovo bool, effectTypes []string, familyID string) Key {
	k := Key{RegionBin: NoRegionBin, FrequencyBin: NoBin, CodingBin: NoBin, FamilyBin: NoBin}
	if d.HasRegionBins() {
		k.RegionBin = d.MakeRegionBin(chrom, pos)
	}
	if d.HasFrequencyBins() {
		k.FrequencyBin = d.MakeFrequencyBin(alleleCount, alleleFreq, denovo)
	}
	if d.HasCodingBins() {
		k.CodingBin = d.MakeCodingBin(effectTypes)
	}
	if d.HasFamilyBins() && familyID != "" {
		k.FamilyBin = d.MakeFamilyBin(familyID)
	}
	return k
}
