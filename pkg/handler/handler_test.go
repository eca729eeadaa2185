package handler

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yumyai/varquery/pkg/config"
	"github.com/yumyai/varquery/pkg/db"
	"github.com/yumyai/varquery/pkg/model"
)

const schema = `
CREATE TABLE summary (
	sj_index INTEGER, chromosome TEXT, position INTEGER, end_position INTEGER,
	reference TEXT, alternative TEXT, variant_type INTEGER,
	summary_index INTEGER, allele_index INTEGER,
	af_allele_count INTEGER, af_allele_freq REAL
);
CREATE TABLE family (
	sj_index INTEGER, family_id TEXT, genotype TEXT, inheritance_in_members INTEGER,
	allele_in_members TEXT
);
INSERT INTO summary VALUES
	(1, 'chr1', 5, NULL, 'A', 'T', 1, 1, 1, 1, 0.5),
	(2, 'chr1', 8, NULL, 'C', 'G', 1, 2, 1, 2, 0.8),
	(3, 'chr2', 5, NULL, 'G', 'A', 1, 3, 1, 1, 0.1);
INSERT INTO family VALUES
	(1, 'f1', '[[0,0,1],[1,1,0]]', 2, '["p1"]'),
	(2, 'f1', '[[0,0,1],[1,1,0]]', 2, '["p1"]'),
	(3, 'f2', '[[0,0,1],[1,1,0]]', 2, '["p2"]');
`

// helper to create a fake 'samtools' executable that prints a fixed FASTA
func createFakeSamtools(t *testing.T, dir string, fasta string) {
	t.Helper()
	content := "#!/usr/bin/env bash\n" +
		"cat <<'EOF'\n" + fasta + "\nEOF\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "samtools"), []byte(content), 0o755))
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	dir := t.TempDir()
	dsn := filepath.Join(dir, "ssc.db")

	conn, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	_, err = conn.Exec(schema)
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	fasta := filepath.Join(dir, "genome.fa")
	require.NoError(t, os.WriteFile(fasta, []byte(">chr1\nACGTACGTAC\n"), 0o644))
	require.NoError(t, os.WriteFile(fasta+".fai", []byte("chr1\t10\t6\t10\t11\n"), 0o644))

	cfg := &config.Config{Studies: []config.Study{{
		ID:        "ssc",
		Backend:   "sqlite",
		DSN:       dsn,
		Tables:    config.Tables{Summary: "summary", Family: "family"},
		Reference: fasta,
	}}}
	genotypes, err := db.OpenGenotypeDB(context.Background(), cfg, db.DefaultRegistry)
	require.NoError(t, err)
	t.Cleanup(func() { genotypes.Close() })

	srv := httptest.NewServer(NewRouter(&DBContext{Genotypes: genotypes}))
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealthCheck(t *testing.T) {
	rr := httptest.NewRecorder()
	HealthCheck(rr, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	var health HealthResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&health))
	assert.Equal(t, "ok", health.Health)
}

func TestQueryStreamsNDJSON(t *testing.T) {
	srv := newTestServer(t)
	resp := post(t, srv.URL+"/api/v1/query", `{"filter": {"family_ids": ["f1"]}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/x-ndjson", resp.Header.Get("Content-Type"))

	var positions []int
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		var v model.Variant
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &v))
		assert.Equal(t, "f1", v.FamilyID)
		assert.Equal(t, "ssc", v.Study)
		positions = append(positions, v.Position)
	}
	require.NoError(t, scanner.Err())
	assert.ElementsMatch(t, []int{5, 8}, positions)
}

func TestQueryJSONFormat(t *testing.T) {
	srv := newTestServer(t)
	resp := post(t, srv.URL+"/api/v1/query?format=json", `{"studies": ["ssc"], "filter": {"family_ids": []}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var variants []model.Variant
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&variants))
	assert.NotNil(t, variants)
	assert.Empty(t, variants)
}

func TestQueryErrors(t *testing.T) {
	srv := newTestServer(t)
	tests := []struct {
		name   string
		body   string
		status int
		field  string
	}{
		{"bad json", `{"filter": `, http.StatusBadRequest, ""},
		{"unknown key", `{"filter": {"genez": ["CHD8"]}}`, http.StatusBadRequest, ""},
		{"unknown study", `{"studies": ["agre"]}`, http.StatusNotFound, ""},
		{"unknown attribute", `{"filter": {"real_attr_filter": [{"attr": "cadd", "min": 1}]}}`, http.StatusBadRequest, "real_attr_filter"},
		{"no effect table", `{"filter": {"genes": ["CHD8"]}}`, http.StatusUnprocessableEntity, "effect_gene_table"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := post(t, srv.URL+"/api/v1/query", tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			var e ErrorResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&e))
			assert.NotEmpty(t, e.Error)
			assert.Equal(t, tt.field, e.Field)
		})
	}
}

func TestExplain(t *testing.T) {
	srv := newTestServer(t)
	resp := post(t, srv.URL+"/api/v1/explain", `{"filter": {"person_ids": ["p1"]}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var entries []ExplainEntry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "ssc", entries[0].Study)
	assert.Equal(t, "family", entries[0].Shape)
	assert.Contains(t, entries[0].Text, "json_each(fa.allele_in_members)")
	require.NotEmpty(t, entries[0].Args)
	assert.Equal(t, "p1", entries[0].Args[0])
}

func TestListStudies(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/api/v1/studies")
	require.NoError(t, err)
	defer resp.Body.Close()

	var studies []StudyInfo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&studies))
	require.Len(t, studies, 1)
	assert.Equal(t, "ssc", studies[0].ID)
	assert.True(t, studies[0].Reference)
	assert.False(t, studies[0].Partitioned)
}

func TestGetReference(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("fake samtools is a shell script")
	}
	bin := t.TempDir()
	createFakeSamtools(t, bin, ">chr1:1-4\nACGT")
	t.Setenv("PATH", bin+string(os.PathListSeparator)+os.Getenv("PATH"))

	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/api/v1/reference/ssc?region=chr1:1-4")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := new(strings.Builder)
	_, err = bufio.NewReader(resp.Body).WriteTo(body)
	require.NoError(t, err)
	assert.Equal(t, ">ssc|chr1:1-4\nACGT\n", body.String())

	multi, err := http.Get(srv.URL + "/api/v1/reference/ssc?region=chr1:1-4&region=chr1:5-8")
	require.NoError(t, err)
	defer multi.Body.Close()
	assert.Equal(t, http.StatusOK, multi.StatusCode)

	resp2, err := http.Get(srv.URL + "/api/v1/reference/agre?region=chr1:1-4")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp2.StatusCode)

	resp3, err := http.Get(srv.URL + "/api/v1/reference/ssc?region=chr1:9-2")
	require.NoError(t, err)
	defer resp3.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp3.StatusCode)

	resp4, err := http.Get(srv.URL + "/api/v1/reference/ssc")
	require.NoError(t, err)
	defer resp4.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp4.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
