package partition

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yumyai/varquery/pkg/filter"
	"github.com/yumyai/varquery/pkg/model"
)

const descriptorYAMLText = `
region_bin:
  chromosomes: chr1, chr2
  region_length: 100
frequency_bin:
  rare_boundary: 5
coding_bin:
  coding_effect_types: [missense, nonsense, frame-shift]
family_bin:
  family_bin_size: 10
`

func testIndex(t *testing.T) *Index {
	t.Helper()
	d, err := ParseYAML([]byte(descriptorYAMLText))
	require.NoError(t, err)
	return &Index{
		Descriptor:   d,
		ChromLengths: map[string]int{"chr1": 1000, "chr2": 500, "chrX": 250},
		PersonFamily: map[string]string{"p1": "f1", "p2": "f2"},
	}
}

func TestParseYAML(t *testing.T) {
	d, err := ParseYAML([]byte(descriptorYAMLText))
	require.NoError(t, err)
	assert.Equal(t, []string{"chr1", "chr2"}, d.Chromosomes)
	assert.Equal(t, 100, d.RegionLength)
	assert.Equal(t, 5.0, d.RareBoundary)
	assert.Equal(t, []string{"missense", "nonsense", "frame-shift"}, d.CodingEffectTypes)
	assert.Equal(t, 10, d.FamilyBinSize)
	assert.True(t, d.HasRegionBins())
	assert.True(t, d.HasFamilyBins())
}

func TestParseYAMLEmpty(t *testing.T) {
	d, err := ParseYAML(nil)
	require.NoError(t, err)
	assert.False(t, d.HasRegionBins())
	assert.False(t, d.HasFrequencyBins())
	assert.False(t, d.HasCodingBins())
	assert.False(t, d.HasFamilyBins())
}

func TestParseYAMLErrors(t *testing.T) {
	_, err := ParseYAML([]byte("region_bin:\n  chromosomes: chr1\n"))
	assert.Error(t, err)
	_, err = ParseYAML([]byte("family_bins:\n  family_bin_size: 3\n"))
	assert.Error(t, err)
}

func TestMakeBins(t *testing.T) {
	d := testIndex(t).Descriptor
	assert.Equal(t, "chr1_0", d.MakeRegionBin("chr1", 99))
	assert.Equal(t, "chr1_1", d.MakeRegionBin("chr1", 100))
	assert.Equal(t, "other_2", d.MakeRegionBin("chrX", 200))

	assert.Equal(t, 1, d.MakeCodingBin([]string{"intron", "missense"}))
	assert.Equal(t, 0, d.MakeCodingBin([]string{"intron"}))

	assert.Equal(t, FrequencyDenovo, d.MakeFrequencyBin(1, 0.1, true))
	assert.Equal(t, FrequencyUltraRare, d.MakeFrequencyBin(1, 50, false))
	assert.Equal(t, FrequencyRare, d.MakeFrequencyBin(4, 5, false))
	assert.Equal(t, FrequencyCommon, d.MakeFrequencyBin(4, 5.5, false))

	bin := d.MakeFamilyBin("f1")
	assert.GreaterOrEqual(t, bin, 0)
	assert.Less(t, bin, 10)
	assert.Equal(t, bin, d.MakeFamilyBin("f1"))
}

func TestKeyRoundTrip(t *testing.T) {
	k := Key{RegionBin: "chr1_3", FrequencyBin: 2, CodingBin: NoBin, FamilyBin: 7}
	assert.Equal(t, "region_bin=chr1_3/frequency_bin=2/family_bin=7", k.String())

	parsed, err := ParseKey("/data/study/" + k.String() + "/part-0.parquet")
	require.NoError(t, err)
	assert.Equal(t, k, parsed)

	_, err = ParseKey("frequency_bin=x")
	assert.Error(t, err)
}

func TestPruneUnconstrained(t *testing.T) {
	b, err := testIndex(t).Prune(&filter.Filter{})
	require.NoError(t, err)
	assert.Equal(t, Bins{}, b)
	assert.False(t, b.Empty())
}

func TestPruneRegions(t *testing.T) {
	ix := testIndex(t)
	b, err := ix.Prune(&filter.Filter{Regions: []model.Region{
		{Chrom: "chr1", Start: 150, Stop: 320},
		{Chrom: "chrX", Start: 1, Stop: model.MaxPosition},
	}})
	require.NoError(t, err)
	assert.Equal(t, []string{"chr1_1", "chr1_2", "chr1_3", "other_0", "other_1", "other_2"}, b.Region)

	b, err = ix.Prune(&filter.Filter{Regions: []model.Region{}})
	require.NoError(t, err)
	assert.True(t, b.Empty())
}

func TestPruneFrequency(t *testing.T) {
	ix := testIndex(t)
	cases := []struct {
		name string
		f    filter.Filter
		want []int
	}{
		{"denovo only", filter.Filter{Inheritance: []string{"denovo"}}, []int{FrequencyDenovo}},
		{"not denovo", filter.Filter{Inheritance: []string{"not denovo"}}, nil},
		{"mendelian and not denovo", filter.Filter{Inheritance: []string{"mendelian and not denovo"}}, nil},
		{"ultra rare not denovo", filter.Filter{Inheritance: []string{"not denovo"}, UltraRare: true},
			[]int{FrequencyDenovo, FrequencyUltraRare}},
		{"ultra rare", filter.Filter{UltraRare: true}, []int{FrequencyDenovo, FrequencyUltraRare}},
		{"rare", filter.Filter{FrequencyFilter: []filter.Range{{Attr: "af_allele_freq", Max: filter.Bound(1)}}},
			[]int{FrequencyDenovo, FrequencyUltraRare, FrequencyRare}},
		{"common", filter.Filter{FrequencyFilter: []filter.Range{{Attr: "af_allele_freq", Min: filter.Bound(10)}}},
			[]int{FrequencyDenovo, FrequencyUltraRare, FrequencyCommon}},
		{"other attribute", filter.Filter{FrequencyFilter: []filter.Range{{Attr: "gnomad_af", Max: filter.Bound(1)}}}, nil},
		{"mendelian and rare", filter.Filter{
			Inheritance:     []string{"mendelian", "not denovo"},
			FrequencyFilter: []filter.Range{{Attr: "af_allele_freq", Max: filter.Bound(1)}},
		}, []int{FrequencyDenovo, FrequencyUltraRare, FrequencyRare}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			b, err := ix.Prune(&c.f)
			require.NoError(t, err)
			assert.Equal(t, c.want, b.Frequency)
		})
	}
}

func TestSelectPartitionsKeepsDenovoBinForTransmitted(t *testing.T) {
	ix := testIndex(t)
	// an allele seen as denovo in one family lands every family row in bin 0
	k := ix.Descriptor.KeyFor("chr1", 5, 3, 1.0, true, []string{"missense"}, "f2")
	require.Equal(t, FrequencyDenovo, k.FrequencyBin)
	for _, expr := range []string{"not denovo", "mendelian and not denovo", "mendelian"} {
		keys, err := ix.SelectPartitions(&filter.Filter{Inheritance: []string{expr}})
		require.NoError(t, err)
		assert.True(t, keys.Contains(k), expr)
	}
	keys, err := ix.SelectPartitions(&filter.Filter{Inheritance: []string{"not denovo"}, UltraRare: true})
	require.NoError(t, err)
	assert.True(t, keys.Contains(k))
}

func TestPruneFrequencyBadInheritance(t *testing.T) {
	_, err := testIndex(t).Prune(&filter.Filter{Inheritance: []string{"denovo or"}})
	assert.Error(t, err)
}

func TestPruneCoding(t *testing.T) {
	ix := testIndex(t)
	b, _ := ix.Prune(&filter.Filter{EffectTypes: []string{"missense", "nonsense"}})
	assert.Equal(t, []int{1}, b.Coding)

	b, _ = ix.Prune(&filter.Filter{EffectTypes: []string{"intron"}})
	assert.Nil(t, b.Coding)

	b, _ = ix.Prune(&filter.Filter{EffectTypes: []string{}})
	assert.True(t, b.Empty())
}

func TestPruneFamilies(t *testing.T) {
	ix := testIndex(t)
	d := ix.Descriptor

	b, _ := ix.Prune(&filter.Filter{FamilyIDs: []string{"f1"}})
	assert.Equal(t, []int{d.MakeFamilyBin("f1")}, b.Family)

	b, _ = ix.Prune(&filter.Filter{FamilyIDs: []string{}})
	assert.True(t, b.Empty())

	b, _ = ix.Prune(&filter.Filter{PersonIDs: []string{"p2"}})
	assert.Equal(t, []int{d.MakeFamilyBin("f2")}, b.Family)

	// an unknown person keeps every family bin
	b, _ = ix.Prune(&filter.Filter{PersonIDs: []string{"p2", "nobody"}})
	assert.Nil(t, b.Family)
}

func TestSelectPartitions(t *testing.T) {
	ix := testIndex(t)
	keys, err := ix.SelectPartitions(&filter.Filter{
		Regions:     []model.Region{{Chrom: "chr2", Start: 10, Stop: 20}},
		Inheritance: []string{"denovo"},
		EffectTypes: []string{"missense"},
		FamilyIDs:   []string{"f1"},
	})
	require.NoError(t, err)
	want := Key{RegionBin: "chr2_0", FrequencyBin: FrequencyDenovo, CodingBin: 1, FamilyBin: ix.Descriptor.MakeFamilyBin("f1")}
	assert.Equal(t, []Key{want}, keys.Sorted())
	assert.True(t, keys.Contains(want))
}

func TestSelectPartitionsAllRegions(t *testing.T) {
	ix := testIndex(t)
	keys, err := ix.SelectPartitions(&filter.Filter{
		Inheritance: []string{"denovo"},
		EffectTypes: []string{"missense"},
		FamilyIDs:   []string{"f1"},
	})
	require.NoError(t, err)
	// chr1: 11 bins, chr2: 6 bins, other (chrX, 250): 3 bins
	assert.Len(t, keys, 20)

	again, err := ix.SelectPartitions(&filter.Filter{
		Inheritance: []string{"denovo"},
		EffectTypes: []string{"missense"},
		FamilyIDs:   []string{"f1"},
	})
	require.NoError(t, err)
	assert.Equal(t, keys, again)
}

func TestSelectPartitionsUnpartitioned(t *testing.T) {
	ix := &Index{Descriptor: &Descriptor{}}
	keys, err := ix.SelectPartitions(&filter.Filter{Regions: []model.Region{{Chrom: "chr1", Start: 1, Stop: 2}}})
	require.NoError(t, err)
	assert.Equal(t, []Key{{RegionBin: NoRegionBin, FrequencyBin: NoBin, CodingBin: NoBin, FamilyBin: NoBin}}, keys.Sorted())
}

func TestSelectPartitionsNeedsLengths(t *testing.T) {
	ix := testIndex(t)
	ix.ChromLengths = map[string]int{"chr1": 10}
	_, err := ix.SelectPartitions(&filter.Filter{})
	assert.Error(t, err)
}

func TestPruneNeverDropsOverlappingPartition(t *testing.T) {
	ix := testIndex(t)
	d := ix.Descriptor
	rng := rand.New(rand.NewSource(7))
	chroms := []string{"chr1", "chr2", "chrX"}

	for i := 0; i < 2000; i++ {
		chrom := chroms[rng.Intn(len(chroms))]
		pos := 1 + rng.Intn(ix.ChromLengths[chrom]-1)
		start := 1 + rng.Intn(ix.ChromLengths[chrom])
		stop := start + rng.Intn(300)
		region := model.Region{Chrom: chrom, Start: start, Stop: stop}

		key := d.KeyFor(chrom, pos, 3, 1, false, []string{"intron"}, "f1")
		b, err := ix.Prune(&filter.Filter{Regions: []model.Region{region}})
		require.NoError(t, err)
		if region.Overlaps(chrom, pos, pos) {
			require.True(t, b.Contains(key), "region %s dropped allele at %s:%d", region, chrom, pos)
		}
	}
}
