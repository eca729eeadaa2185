package query

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yumyai/varquery/pkg/filter"
	"github.com/yumyai/varquery/pkg/model"
	"github.com/yumyai/varquery/pkg/partition"
)

var allDialects = []Dialect{Dataframe, Impala, DuckDB, BigQuery, SQLite}

func testMeta() *TableMetadata {
	return &TableMetadata{
		Study:           "s1",
		Database:        "db",
		SummaryTable:    "s1_summary",
		FamilyTable:     "s1_family",
		EffectGeneTable: "s1_effect_gene",
		Attributes: map[string]AttributeKind{
			"score":     AttrScore,
			"gnomad_af": AttrFrequency,
		},
	}
}

func compile(t *testing.T, d Dialect, f *filter.Filter, meta *TableMetadata) *CompiledQuery {
	t.Helper()
	c, err := NewCompiler(d)
	require.NoError(t, err)
	q, err := c.Compile(f, meta)
	require.NoError(t, err)
	return q
}

type recordingBuilder struct {
	stages []string
}

func (r *recordingBuilder) Reset(*Plan)         { r.stages = append(r.stages, "reset") }
func (r *recordingBuilder) BuildSelect() error  { r.stages = append(r.stages, "select"); return nil }
func (r *recordingBuilder) BuildFrom() error    { r.stages = append(r.stages, "from"); return nil }
func (r *recordingBuilder) BuildJoin() error    { r.stages = append(r.stages, "join"); return nil }
func (r *recordingBuilder) BuildWhere() error   { r.stages = append(r.stages, "where"); return nil }
func (r *recordingBuilder) BuildGroupBy() error { r.stages = append(r.stages, "groupby"); return nil }
func (r *recordingBuilder) BuildLimit() error   { r.stages = append(r.stages, "limit"); return nil }
func (r *recordingBuilder) Product() (*CompiledQuery, error) {
	r.stages = append(r.stages, "product")
	return &CompiledQuery{}, nil
}

func TestDirectorStageOrder(t *testing.T) {
	rec := &recordingBuilder{}
	d := NewDirector(SQLite, func() Builder { return rec })
	_, err := d.Compile(&filter.Filter{Genes: []string{"CHD8"}}, testMeta())
	require.NoError(t, err)
	assert.Equal(t, []string{"reset", "select", "from", "join", "where", "groupby", "limit", "product"}, rec.stages)
}

func TestDirectorStopsOnPlanError(t *testing.T) {
	rec := &recordingBuilder{}
	d := NewDirector(SQLite, func() Builder { return rec })
	_, err := d.Compile(&filter.Filter{Limit: -1}, testMeta())
	require.Error(t, err)
	assert.Empty(t, rec.stages)
}

func TestImpalaSummaryQuery(t *testing.T) {
	q := compile(t, Impala, &filter.Filter{
		Regions: []model.Region{{Chrom: "chr1", Start: 1, Stop: 10}},
	}, &TableMetadata{Database: "db", SummaryTable: "s1_summary"})

	cols := "sa.chromosome, sa.position, sa.end_position, sa.reference, sa.alternative, sa.variant_type, " +
		"sa.summary_index, sa.allele_index, sa.af_allele_count, sa.af_allele_freq"
	want := "SELECT " + cols + "\n" +
		"FROM `db`.`s1_summary` AS sa\n" +
		"WHERE (sa.chromosome = 'chr1' AND NOT (COALESCE(sa.end_position, sa.position) < 1 OR sa.position > 10)) AND sa.allele_index > 0\n" +
		"GROUP BY " + cols
	assert.Equal(t, want, q.Text())
	assert.Empty(t, q.Args())
	assert.Equal(t, ShapeSummary, q.Shape())
}

func TestSQLiteFamilyQuery(t *testing.T) {
	q := compile(t, SQLite, &filter.Filter{
		FamilyIDs:       []string{"f1"},
		PersonIDs:       []string{"p1", "p2"},
		Inheritance:     []string{"denovo"},
		ReturnReference: true,
		ReturnUnknown:   true,
		Limit:           10,
	}, testMeta())

	assert.Equal(t, ShapeFamily, q.Shape())
	text := q.Text()
	assert.Contains(t, text, `FROM "db"."s1_summary" AS sa`+"\n"+`JOIN "db"."s1_family" AS fa ON sa.sj_index = fa.sj_index`)
	assert.Contains(t, text, "fa.family_id IN (?)")
	assert.Contains(t, text, "EXISTS (SELECT 1 FROM json_each(fa.allele_in_members) WHERE json_each.value IN (?, ?))")
	assert.Contains(t, text, "(fa.inheritance_in_members & 4) != 0")
	assert.NotContains(t, text, "GROUP BY")
	assert.NotContains(t, text, "allele_index >")
	assert.True(t, strings.HasSuffix(text, "LIMIT 10"))
	assert.Equal(t, []any{"f1", "p1", "p2"}, q.Args())
	assert.Equal(t, 10, q.Limit())
}

func TestPersonFilterPerDialect(t *testing.T) {
	f := &filter.Filter{PersonIDs: []string{"p1"}, ReturnUnknown: true}
	want := map[Dialect]string{
		Impala:   "EXISTS (SELECT 1 FROM fa.allele_in_members AS m WHERE m.item IN ('p1'))",
		BigQuery: "EXISTS (SELECT 1 FROM UNNEST(fa.allele_in_members) AS m WHERE m IN ('p1'))",
		DuckDB:   "list_has_any(fa.allele_in_members, [?])",
		SQLite:   "EXISTS (SELECT 1 FROM json_each(fa.allele_in_members) WHERE json_each.value IN (?))",
	}
	for d, fragment := range want {
		t.Run(d.String(), func(t *testing.T) {
			assert.Contains(t, compile(t, d, f, testMeta()).Text(), fragment)
		})
	}
}

func TestBitTestPerDialect(t *testing.T) {
	f := &filter.Filter{VariantType: "sub or CNV"}
	impala := compile(t, Impala, f, testMeta()).Text()
	assert.Contains(t, impala, "(BITAND(sa.variant_type, 1) != 0 OR BITAND(sa.variant_type, 96) != 0)")

	duck := compile(t, DuckDB, f, testMeta()).Text()
	assert.Contains(t, duck, "((sa.variant_type & 1) != 0 OR (sa.variant_type & 96) != 0)")
}

func TestEffectJoinPerDialect(t *testing.T) {
	f := &filter.Filter{Genes: []string{"CHD8"}, EffectTypes: []string{"missense"}, WithGenotypes: true}
	want := map[Dialect]string{
		Impala:   "JOIN sa.effect_gene AS eg",
		BigQuery: "CROSS JOIN UNNEST(sa.effect_gene) AS eg",
		DuckDB:   `JOIN "db"."s1_effect_gene" AS eg ON sa.sj_index = eg.sj_index`,
		SQLite:   `JOIN "db"."s1_effect_gene" AS eg ON sa.sj_index = eg.sj_index`,
	}
	for d, fragment := range want {
		t.Run(d.String(), func(t *testing.T) {
			text := compile(t, d, f, testMeta()).Text()
			assert.Contains(t, text, fragment)
			assert.Contains(t, text, "SELECT DISTINCT ")
			assert.Contains(t, text, "eg.effect_gene_symbols IN (")
		})
	}
}

func TestEffectJoinNeedsSideTable(t *testing.T) {
	meta := testMeta()
	meta.EffectGeneTable = ""
	for _, d := range []Dialect{DuckDB, SQLite} {
		c, err := NewCompiler(d)
		require.NoError(t, err)
		_, err = c.Compile(&filter.Filter{Genes: []string{"CHD8"}}, meta)
		require.ErrorIs(t, err, ErrUnsupported)
	}
	// nested layouts need no side table
	compile(t, Impala, &filter.Filter{Genes: []string{"CHD8"}}, meta)
}

func TestCompileDeterministic(t *testing.T) {
	f1 := &filter.Filter{
		Regions:         []model.Region{{Chrom: "chr1", Start: 5, Stop: 50}},
		FamilyIDs:       []string{"f2", "f1"},
		Genes:           []string{"SCN2A", "CHD8", "CHD8"},
		Inheritance:     []string{"denovo or omission"},
		FrequencyFilter: []filter.Range{{Attr: "af_allele_freq", Max: filter.Bound(1)}},
	}
	f2 := &filter.Filter{
		Regions:         []model.Region{{Chrom: "chr1", Start: 5, Stop: 50}},
		FamilyIDs:       []string{"f1", "f2"},
		Genes:           []string{"CHD8", "SCN2A"},
		Inheritance:     []string{"denovo or omission"},
		FrequencyFilter: []filter.Range{{Attr: "af_allele_freq", Max: filter.Bound(1)}},
	}
	for _, d := range allDialects {
		t.Run(d.String(), func(t *testing.T) {
			a := compile(t, d, f1, testMeta())
			b := compile(t, d, f1, testMeta())
			c := compile(t, d, f2, testMeta())
			assert.Equal(t, a.Text(), b.Text())
			assert.Equal(t, a.Args(), b.Args())
			assert.Equal(t, a.Text(), c.Text())
			assert.Equal(t, a.Args(), c.Args())
		})
	}
}

func TestFamilyIDsAbsentVersusEmpty(t *testing.T) {
	for _, d := range allDialects {
		t.Run(d.String(), func(t *testing.T) {
			absent := compile(t, d, &filter.Filter{WithGenotypes: true}, testMeta())
			assert.NotContains(t, absent.Text(), "family_id IN")
			assert.NotContains(t, absent.Text(), "FALSE")

			empty := compile(t, d, &filter.Filter{FamilyIDs: []string{}}, testMeta())
			assert.Contains(t, empty.Text(), "WHERE FALSE")
		})
	}
}

func TestEmptySetsCompileToFalse(t *testing.T) {
	for _, f := range []*filter.Filter{
		{Regions: []model.Region{}},
		{Genes: []string{}},
		{EffectTypes: []string{}},
		{PersonIDs: []string{}},
	} {
		q := compile(t, SQLite, f, testMeta())
		assert.Contains(t, q.Text(), "WHERE FALSE")
		assert.Empty(t, q.Args())
	}
}

func TestRangeSemantics(t *testing.T) {
	freq := compile(t, SQLite, &filter.Filter{
		FrequencyFilter: []filter.Range{{Attr: "af_allele_freq", Max: filter.Bound(1)}},
	}, testMeta())
	assert.Contains(t, freq.Text(), "(sa.af_allele_freq <= ? OR sa.af_allele_freq IS NULL)")

	score := compile(t, SQLite, &filter.Filter{
		RealAttrFilter: []filter.Range{{Attr: "score", Max: filter.Bound(1)}},
	}, testMeta())
	assert.Contains(t, score.Text(), "sa.score <= ?")
	assert.NotContains(t, score.Text(), "IS NULL")

	// real attributes flagged as frequencies get the same treatment
	gnomad := compile(t, SQLite, &filter.Filter{
		RealAttrFilter: []filter.Range{{Attr: "gnomad_af", Max: filter.Bound(0.1)}},
	}, testMeta())
	assert.Contains(t, gnomad.Text(), "sa.gnomad_af IS NULL")

	both := compile(t, SQLite, &filter.Filter{
		RealAttrFilter: []filter.Range{{Attr: "score", Min: filter.Bound(0.5), Max: filter.Bound(1)}},
	}, testMeta())
	assert.Contains(t, both.Text(), "sa.score >= ? AND sa.score <= ?")

	open := compile(t, SQLite, &filter.Filter{RealAttrFilter: []filter.Range{{Attr: "score"}}}, testMeta())
	assert.Contains(t, open.Text(), "sa.score IS NOT NULL")

	ultra := compile(t, Impala, &filter.Filter{UltraRare: true}, testMeta())
	assert.Contains(t, ultra.Text(), "(sa.af_allele_count <= 1 OR sa.af_allele_count IS NULL)")
}

func TestCompileErrors(t *testing.T) {
	noFamily := testMeta()
	noFamily.FamilyTable = ""

	cases := []struct {
		name  string
		f     *filter.Filter
		meta  *TableMetadata
		field string
		want  error
	}{
		{"unknown attribute", &filter.Filter{RealAttrFilter: []filter.Range{{Attr: "nope", Max: filter.Bound(1)}}},
			testMeta(), "real_attr_filter", ErrUnknownAttribute},
		{"min above max", &filter.Filter{FrequencyFilter: []filter.Range{{Attr: "af_allele_freq", Min: filter.Bound(2), Max: filter.Bound(1)}}},
			testMeta(), "frequency_filter", ErrInvalidRange},
		{"compound without zygosity", &filter.Filter{Roles: "prb~homozygous"},
			testMeta(), "roles", ErrUnsupported},
		{"bad inheritance", &filter.Filter{Inheritance: []string{"denovo or grandparent"}},
			testMeta(), "inheritance", ErrInvalidFilter},
		{"no family table", &filter.Filter{FamilyIDs: []string{"f1"}},
			noFamily, "family_table", ErrUnsupported},
		{"negative limit", &filter.Filter{Limit: -1},
			testMeta(), "filter", ErrInvalidFilter},
		{"no summary table", &filter.Filter{},
			&TableMetadata{}, "summary_table", ErrInvalidFilter},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cmp, err := NewCompiler(DuckDB)
			require.NoError(t, err)
			_, err = cmp.Compile(c.f, c.meta)
			var ce *CompileError
			require.True(t, errors.As(err, &ce), "got %v", err)
			assert.Equal(t, c.field, ce.Field)
			assert.ErrorIs(t, err, c.want)
		})
	}
}

func TestCompoundWithZygosityColumns(t *testing.T) {
	meta := testMeta()
	meta.ZygosityColumns = true
	q := compile(t, DuckDB, &filter.Filter{Roles: "prb~homozygous"}, meta)
	// prb is bit 7, homozygous lands at 1 << 14
	assert.Contains(t, q.Text(), "(fa.allele_in_roles & 128) != 0 AND (fa.zygosity_in_roles & 16384) != 0")
}

func TestReturnUnknown(t *testing.T) {
	excluded := compile(t, SQLite, &filter.Filter{WithGenotypes: true}, testMeta())
	assert.Contains(t, excluded.Text(), "fa.inheritance_in_members <> ?")
	assert.Contains(t, excluded.Args(), int64(model.InheritanceUnknown))

	kept := compile(t, SQLite, &filter.Filter{WithGenotypes: true, ReturnUnknown: true}, testMeta())
	assert.NotContains(t, kept.Text(), "fa.inheritance_in_members <>")
}

func TestBinPredicates(t *testing.T) {
	meta := testMeta()
	meta.Partition = &partition.Index{Descriptor: &partition.Descriptor{
		Chromosomes:   []string{"chr1"},
		RegionLength:  100,
		FamilyBinSize: 4,
		RareBoundary:  5,
	}}
	q := compile(t, Impala, &filter.Filter{
		Regions:     []model.Region{{Chrom: "chr1", Start: 150, Stop: 250}},
		FamilyIDs:   []string{"f1"},
		Inheritance: []string{"denovo"},
	}, meta)
	text := q.Text()
	assert.Contains(t, text, "fa.region_bin IN ('chr1_1', 'chr1_2')")
	assert.Contains(t, text, "fa.frequency_bin IN (0)")
	bin := meta.Partition.Descriptor.MakeFamilyBin("f1")
	assert.Contains(t, text, "fa.family_bin IN ("+literalText(int64(bin))+")")
	assert.Equal(t, []string{"chr1_1", "chr1_2"}, q.Bins().Region)

	// summary queries carry no family bin
	summary := compile(t, Impala, &filter.Filter{Regions: []model.Region{{Chrom: "chr1", Start: 1, Stop: 2}}}, meta)
	assert.Contains(t, summary.Text(), "sa.region_bin IN ('chr1_0')")
	assert.NotContains(t, summary.Text(), "family_bin")
}

func TestDataframeTargetsAndMatch(t *testing.T) {
	meta := testMeta()
	meta.Partition = &partition.Index{Descriptor: &partition.Descriptor{Chromosomes: []string{"chr1", "chr2"}, RegionLength: 100}}
	meta.Partitions = []partition.Key{
		{RegionBin: "chr1_0", FrequencyBin: partition.NoBin, CodingBin: partition.NoBin, FamilyBin: partition.NoBin},
		{RegionBin: "chr1_1", FrequencyBin: partition.NoBin, CodingBin: partition.NoBin, FamilyBin: partition.NoBin},
		{RegionBin: "chr2_0", FrequencyBin: partition.NoBin, CodingBin: partition.NoBin, FamilyBin: partition.NoBin},
	}
	q := compile(t, Dataframe, &filter.Filter{
		Regions:         []model.Region{{Chrom: "chr1", Start: 1, Stop: 10}},
		FamilyIDs:       []string{"f1"},
		ReturnReference: true,
	}, meta)

	require.Len(t, q.Targets(), 1)
	assert.Equal(t, "chr1_0", q.Targets()[0].RegionBin)
	assert.Contains(t, q.Text(), "FROM region_bin=chr1_0 WHERE")
	assert.NotContains(t, q.Text(), "region_bin IN")

	row := model.Record{
		"chromosome": "chr1", "position": int64(5), "end_position": nil,
		"family_id": "f1", "allele_index": int64(0), "inheritance_in_members": int64(2),
	}
	assert.True(t, q.Match(row))

	other := model.Record{
		"chromosome": "chr1", "position": int64(5),
		"family_id": "f2", "allele_index": int64(1), "inheritance_in_members": int64(2),
	}
	assert.False(t, q.Match(other))

	unknown := model.Record{
		"chromosome": "chr1", "position": int64(5),
		"family_id": "f1", "allele_index": int64(1), "inheritance_in_members": int64(model.InheritanceUnknown),
	}
	assert.False(t, q.Match(unknown))
}

func TestDataframeGroupKey(t *testing.T) {
	q := compile(t, Dataframe, &filter.Filter{}, testMeta())
	a := model.Record{"chromosome": "chr1", "summary_index": int64(3), "allele_index": int64(1), "family_id": "f1"}
	b := model.Record{"chromosome": "chr1", "summary_index": int64(3), "allele_index": int64(1), "family_id": "f2"}
	assert.NotEmpty(t, q.GroupKey(a))
	assert.Equal(t, q.GroupKey(a), q.GroupKey(b))

	family := compile(t, Dataframe, &filter.Filter{WithGenotypes: true}, testMeta())
	assert.Empty(t, family.GroupKey(a))
}

func TestCompiledQueryIsImmutable(t *testing.T) {
	q := compile(t, SQLite, &filter.Filter{FamilyIDs: []string{"f1"}}, testMeta())
	args := q.Args()
	args[0] = "changed"
	assert.Equal(t, "f1", q.Args()[0])
}

func TestParseDialect(t *testing.T) {
	for _, d := range allDialects {
		parsed, err := ParseDialect(strings.ToUpper(d.String()))
		require.NoError(t, err)
		assert.Equal(t, d, parsed)
	}
	d, err := ParseDialect("parquet")
	require.NoError(t, err)
	assert.Equal(t, Dataframe, d)
	_, err = ParseDialect("oracle")
	assert.Error(t, err)
}
