package partition

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/yumyai/varquery/pkg/attrquery"
	"github.com/yumyai/varquery/pkg/filter"
	"github.com/yumyai/varquery/pkg/model"
)

const (
	// NoBin marks a dimension the dataset is not partitioned on.
	NoBin = -1
	// NoRegionBin is NoBin for the region dimension.
	NoRegionBin = ""

	// maxRegionBins caps the bins enumerated for one region. Past it the
	// region dimension is left unconstrained.
	maxRegionBins = 100_000
)

// Key addresses one physical partition.
type Key struct {
	RegionBin    string
	FrequencyBin int
	CodingBin    int
	FamilyBin    int
}

// String renders the key as a hive style path, skipping the dimensions the
// dataset is not partitioned on.
func (k Key) String() string {
	var parts []string
	if k.RegionBin != NoRegionBin {
		parts = append(parts, "region_bin="+k.RegionBin)
	}
	if k.FrequencyBin != NoBin {
		parts = append(parts, "frequency_bin="+strconv.Itoa(k.FrequencyBin))
	}
	if k.CodingBin != NoBin {
		parts = append(parts, "coding_bin="+strconv.Itoa(k.CodingBin))
	}
	if k.FamilyBin != NoBin {
		parts = append(parts, "family_bin="+strconv.Itoa(k.FamilyBin))
	}
	return strings.Join(parts, "/")
}

// ParseKey reads a path written by Key.String. Unknown path segments are
// ignored so the key can be parsed out of a longer file path.
func ParseKey(path string) (Key, error) {
	k := Key{RegionBin: NoRegionBin, FrequencyBin: NoBin, CodingBin: NoBin, FamilyBin: NoBin}
	for _, seg := range strings.Split(path, "/") {
		name, value, ok := strings.Cut(seg, "=")
		if !ok {
			continue
		}
		var err error
		switch name {
		case "region_bin":
			k.RegionBin = value
		case "frequency_bin":
			k.FrequencyBin, err = strconv.Atoi(value)
		case "coding_bin":
			k.CodingBin, err = strconv.Atoi(value)
		case "family_bin":
			k.FamilyBin, err = strconv.Atoi(value)
		}
		if err != nil {
			return Key{}, fmt.Errorf("partition key %q: %s: %w", path, name, err)
		}
	}
	return k, nil
}

// Bins is the pruned value set of every dimension. A nil slice leaves the
// dimension unconstrained, a non-nil empty slice means nothing can match.
type Bins struct {
	Region    []string
	Frequency []int
	Coding    []int
	Family    []int
}

// Empty reports whether some dimension excludes every partition.
func (b Bins) Empty() bool {
	return (b.Region != nil && len(b.Region) == 0) ||
		(b.Frequency != nil && len(b.Frequency) == 0) ||
		(b.Coding != nil && len(b.Coding) == 0) ||
		(b.Family != nil && len(b.Family) == 0)
}

// Contains reports whether a partition survives pruning. Dimensions the key
// does not carry always match.
func (b Bins) Contains(k Key) bool {
	if b.Region != nil && k.RegionBin != NoRegionBin && !containsString(b.Region, k.RegionBin) {
		return false
	}
	if b.Frequency != nil && k.FrequencyBin != NoBin && !containsInt(b.Frequency, k.FrequencyBin) {
		return false
	}
	if b.Coding != nil && k.CodingBin != NoBin && !containsInt(b.Coding, k.CodingBin) {
		return false
	}
	if b.Family != nil && k.FamilyBin != NoBin && !containsInt(b.Family, k.FamilyBin) {
		return false
	}
	return true
}

// KeySet is a set of partitions.
type KeySet map[Key]struct{}

func (s KeySet) Contains(k Key) bool {
	_, ok := s[k]
	return ok
}

// Sorted lists the keys in path order.
func (s KeySet) Sorted() []Key {
	out := make([]Key, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].String() < out[j].String()
	})
	return out
}

// Index prunes partitions for filters. It holds no state besides its inputs
// and is safe for concurrent use.
type Index struct {
	Descriptor *Descriptor
	// ChromLengths is needed to enumerate region bins for unconstrained
	// regions.
	ChromLengths map[string]int
	// PersonFamily maps person ids to family ids so person_ids can prune
	// family bins.
	PersonFamily map[string]string
	// Lookback widens region starts so alleles that start before a region
	// but reach into it stay in scope.
	Lookback int
}

// Prune computes the bins a filter may touch. The result never drops a
// partition that holds a matching row.
func (ix *Index) Prune(f *filter.Filter) (Bins, error) {
	var (
		b   Bins
		err error
	)
	b.Region = ix.regionBins(f)
	if b.Frequency, err = ix.frequencyBins(f); err != nil {
		return Bins{}, err
	}
	b.Coding = ix.codingBins(f)
	b.Family = ix.familyBins(f)
	return b, nil
}

// SelectPartitions enumerates every partition that survives pruning.
func (ix *Index) SelectPartitions(f *filter.Filter) (KeySet, error) {
	b, err := ix.Prune(f)
	if err != nil {
		return nil, err
	}
	d := ix.Descriptor

	regions := []string{NoRegionBin}
	if d.HasRegionBins() {
		regions = b.Region
		if regions == nil {
			if regions, err = ix.MakeAllRegionBins(); err != nil {
				return nil, err
			}
		}
	}
	frequencies := dimension(d.HasFrequencyBins(), b.Frequency, 4)
	codings := dimension(d.HasCodingBins(), b.Coding, 2)
	families := []int{NoBin}
	if d.HasFamilyBins() {
		families = dimension(true, b.Family, d.FamilyBinSize)
	}

	out := KeySet{}
	for _, r := range regions {
		for _, fr := range frequencies {
			for _, c := range codings {
				for _, fa := range families {
					out[Key{RegionBin: r, FrequencyBin: fr, CodingBin: c, FamilyBin: fa}] = struct{}{}
				}
			}
		}
	}
	return out, nil
}

func dimension(partitioned bool, pruned []int, size int) []int {
	if !partitioned {
		return []int{NoBin}
	}
	if pruned != nil {
		return pruned
	}
	all := make([]int, size)
	for i := range all {
		all[i] = i
	}
	return all
}

// MakeAllRegionBins lists every region bin of the dataset, including the
// shared "other" bins sized by the longest unlisted chromosome.
func (ix *Index) MakeAllRegionBins() ([]string, error) {
	d := ix.Descriptor
	if !d.HasRegionBins() {
		return nil, nil
	}
	var out []string
	for _, chrom := range d.Chromosomes {
		length, ok := ix.ChromLengths[chrom]
		if !ok {
			return nil, fmt.Errorf("region bins: no length for chromosome %s", chrom)
		}
		for bin := 0; bin <= length/d.RegionLength; bin++ {
			out = append(out, fmt.Sprintf("%s_%d", chrom, bin))
		}
	}
	maxOther := 0
	for chrom, length := range ix.ChromLengths {
		if !d.isPartitionChrom(chrom) && length > maxOther {
			maxOther = length
		}
	}
	if maxOther > 0 {
		for bin := 0; bin <= maxOther/d.RegionLength; bin++ {
			out = append(out, fmt.Sprintf("other_%d", bin))
		}
	}
	return out, nil
}

func (ix *Index) regionBins(f *filter.Filter) []string {
	d := ix.Descriptor
	if !d.HasRegionBins() || f.Regions == nil {
		return nil
	}
	seen := map[string]struct{}{}
	out := []string{}
	for _, r := range f.Regions {
		start, stop := r.Start-ix.Lookback, r.Stop
		if start < 0 {
			start = 0
		}
		if length, ok := ix.ChromLengths[r.Chrom]; ok && stop > length {
			stop = length
		}
		if stop < start {
			continue
		}
		if stop/d.RegionLength-start/d.RegionLength > maxRegionBins {
			return nil
		}
		for pos := start - start%d.RegionLength; pos <= stop; pos += d.RegionLength {
			bin := d.MakeRegionBin(r.Chrom, pos)
			if _, ok := seen[bin]; !ok {
				seen[bin] = struct{}{}
				out = append(out, bin)
			}
		}
	}
	sort.Strings(out)
	return out
}

// frequencyBins keeps the denovo bin when some inheritance value containing
// denovo satisfies every expression, and the remaining bins when some value
// without denovo does. The non-denovo bins are then narrowed by ultra_rare
// and af_allele_freq ranges. Bin 0 is assigned per allele, so it also holds
// family rows of any inheritance whose allele is denovo in another family
// and is kept whenever the non-denovo bins are.
func (ix *Index) frequencyBins(f *filter.Filter) ([]int, error) {
	d := ix.Descriptor
	if !d.HasFrequencyBins() {
		return nil, nil
	}
	denovo, other := true, true
	if f.Inheritance != nil {
		queries := make([]*attrquery.Query, 0, len(f.Inheritance))
		for _, expr := range f.Inheritance {
			q, err := attrquery.Compile(expr, attrquery.Binding{Enum: model.InheritanceEnum, Column: model.ColInheritance})
			if err != nil {
				return nil, fmt.Errorf("inheritance: %w", err)
			}
			queries = append(queries, q)
		}
		denovo, other = false, false
		all := model.InheritanceEnum.All()
		for mask := int64(1); mask <= all; mask++ {
			if !matchAll(queries, mask) {
				continue
			}
			if mask&int64(model.InheritanceDenovo) != 0 {
				denovo = true
			} else {
				other = true
			}
		}
	}

	out := []int{}
	if denovo || other {
		out = append(out, FrequencyDenovo)
	}
	if other {
		out = append(out, FrequencyUltraRare)
		if !f.UltraRare {
			lo, hi := ix.alleleFreqBounds(f)
			if lo <= d.RareBoundary {
				out = append(out, FrequencyRare)
			}
			if hi > d.RareBoundary {
				out = append(out, FrequencyCommon)
			}
		}
	}
	if len(out) == 4 {
		return nil, nil
	}
	return out, nil
}

func matchAll(queries []*attrquery.Query, mask int64) bool {
	for _, q := range queries {
		if !q.Match(mask, 0) {
			return false
		}
	}
	return true
}

// alleleFreqBounds intersects every af_allele_freq range of the filter.
func (ix *Index) alleleFreqBounds(f *filter.Filter) (lo, hi float64) {
	lo, hi = -1, 1e300
	for _, group := range [][]filter.Range{f.FrequencyFilter, f.RealAttrFilter} {
		for _, r := range group {
			if r.Attr != "af_allele_freq" {
				continue
			}
			if r.Min != nil && *r.Min > lo {
				lo = *r.Min
			}
			if r.Max != nil && *r.Max < hi {
				hi = *r.Max
			}
		}
	}
	return lo, hi
}

// codingBins narrows to the coding bin only when every requested effect type
// is coding. An allele with a non-coding effect can still carry a coding one
// on another transcript, so non-coding requests keep both bins.
func (ix *Index) codingBins(f *filter.Filter) []int {
	d := ix.Descriptor
	if !d.HasCodingBins() || f.EffectTypes == nil {
		return nil
	}
	if len(f.EffectTypes) == 0 {
		return []int{}
	}
	coding := d.codingSet()
	for _, et := range f.EffectTypes {
		if _, ok := coding[et]; !ok {
			return nil
		}
	}
	return []int{1}
}

func (ix *Index) familyBins(f *filter.Filter) []int {
	d := ix.Descriptor
	if !d.HasFamilyBins() {
		return nil
	}
	var out []int
	if f.FamilyIDs != nil {
		out = ix.binsOf(f.FamilyIDs)
	}
	if f.PersonIDs != nil {
		families := make([]string, 0, len(f.PersonIDs))
		resolved := true
		for _, p := range f.PersonIDs {
			fam, ok := ix.PersonFamily[p]
			if !ok {
				resolved = false
				break
			}
			families = append(families, fam)
		}
		if resolved {
			byPerson := ix.binsOf(families)
			if out == nil {
				out = byPerson
			} else {
				out = intersect(out, byPerson)
			}
		}
	}
	return out
}

func (ix *Index) binsOf(familyIDs []string) []int {
	seen := map[int]struct{}{}
	out := []int{}
	for _, id := range familyIDs {
		bin := ix.Descriptor.MakeFamilyBin(id)
		if _, ok := seen[bin]; !ok {
			seen[bin] = struct{}{}
			out = append(out, bin)
		}
	}
	sort.Ints(out)
	return out
}

func intersect(a, b []int) []int {
	out := []int{}
	for _, v := range a {
		if containsInt(b, v) {
			out = append(out, v)
		}
	}
	return out
}

func containsInt(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func containsString(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
