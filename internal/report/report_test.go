package report

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Spectra/internal/domain"
	"github.com/shaiso/Spectra/internal/worker"
)

const sampleMzTab = `MTD	mzTab-version	1.0.0
MTD	mzTab-mode	Summary
MTD	title	LFQ test
MTD	software[1]	[MS, MS:1000752, TOPP software, 3.1.0]
MTD	ms_run[1]-location	file:///data/a.mzML
MTD	ms_run[2]-location	file:///data/b.mzML
MTD	assay[1]-ms_run_ref	ms_run[1]
MTD	assay[2]-ms_run_ref	ms_run[2]
COM	exported by MzTabExporter

PRH	accession	description	protein_abundance_assay[1]	protein_abundance_assay[2]
PRT	P1	alpha	1024	2048
PRT	P2	beta	4	null
PRT	P3	gamma	16	64

PEH	sequence	accession
PEP	PEPTIDEK	P1
PEP	ELVISK	P2

PSH	sequence	PSM_ID	accession	charge	spectra_ref
PSM	PEPTIDEK	1	P1	2	ms_run[1]:scan=10
PSM	PEPTIDEK	2	P1	2	ms_run[2]:scan=11
PSM	ELVISK	3	P2	3	ms_run[1]:scan=12
`

func TestParseMzTab(t *testing.T) {
	m, err := ParseMzTab(strings.NewReader(sampleMzTab))
	require.NoError(t, err)

	assert.Equal(t, "LFQ test", m.Metadata["title"])
	assert.Equal(t, "mzTab-version", m.MetadataKeys()[0])
	assert.Len(t, m.Proteins.Rows, 3)
	assert.Len(t, m.Peptides.Rows, 2)
	assert.Len(t, m.PSMs.Rows, 3)
	assert.Equal(t, "beta", m.Proteins.Rows[1]["description"])
	assert.Equal(t, []string{"protein_abundance_assay[1]", "protein_abundance_assay[2]"},
		m.Proteins.Columns("protein_abundance_assay["))
}

func TestParseMzTab_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		err   error
	}{
		{"row before header", "MTD\tmzTab-version\t1.0.0\nPRT\tP1\n", ErrMissingHeader},
		{"column count", "MTD\tmzTab-version\t1.0.0\nPSH\ta\tb\nPSM\t1\n", ErrColumnCount},
		{"no metadata", "PRH\taccession\nPRT\tP1\n", ErrNoMetadata},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseMzTab(strings.NewReader(tt.input))
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestBuild(t *testing.T) {
	m, err := ParseMzTab(strings.NewReader(sampleMzTab))
	require.NoError(t, err)

	r := Build(m, "proteomics-lfq")

	assert.Equal(t, "LFQ test", r.Title)
	assert.Equal(t, 3, r.Proteins)
	assert.Equal(t, 2, r.Peptides)
	assert.Equal(t, 3, r.PSMs)
	assert.Len(t, r.Software, 1)

	wantRuns := []RunStats{
		{Ref: "ms_run[1]", Sample: "a", Location: "file:///data/a.mzML", PSMs: 2},
		{Ref: "ms_run[2]", Sample: "b", Location: "file:///data/b.mzML", PSMs: 1},
	}
	if diff := cmp.Diff(wantRuns, r.Runs); diff != "" {
		t.Errorf("runs mismatch (-want +got):\n%s", diff)
	}

	wantCharges := []ChargeCount{{Charge: 2, PSMs: 2}, {Charge: 3, PSMs: 1}}
	if diff := cmp.Diff(wantCharges, r.Charges); diff != "" {
		t.Errorf("charges mismatch (-want +got):\n%s", diff)
	}

	require.Len(t, r.Assays, 2)

	a1 := r.Assays[0]
	assert.Equal(t, "assay[1]", a1.Assay)
	assert.Equal(t, "a", a1.Sample)
	assert.Equal(t, 3, a1.Quantified)
	assert.Zero(t, a1.Missing)
	// log2: 10, 2, 4
	assert.InDelta(t, 16.0/3.0, a1.Mean, 1e-9)
	assert.InDelta(t, 2.0, a1.Min, 1e-9)
	assert.InDelta(t, 4.0, a1.Median, 1e-9)
	assert.InDelta(t, 10.0, a1.Max, 1e-9)

	a2 := r.Assays[1]
	assert.Equal(t, "b", a2.Sample)
	assert.Equal(t, 2, a2.Quantified)
	assert.Equal(t, 1, a2.Missing)
}

func TestExecutor(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "merged.mzTab")
	require.NoError(t, os.WriteFile(in, []byte(sampleMzTab), 0o644))

	inst := domain.NewInstance(uuid.New(), "report", "merged", 0)
	inst.Inputs[InputMzTab] = domain.Token{Path: in, SampleID: "merged", Stage: "export_mztab"}

	htmlPath := filepath.Join(dir, "merged_report.html")
	jsonPath := filepath.Join(dir, "merged_report.json")

	res, err := NewExecutor("proteomics-lfq", nil).Execute(context.Background(), &worker.Request{
		Instance: inst,
		WorkDir:  dir,
		OutputPaths: map[string][]string{
			OutputHTML: {htmlPath},
			OutputJSON: {jsonPath},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)

	data, err := os.ReadFile(jsonPath)
	require.NoError(t, err)
	var got Report
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, 3, got.Proteins)
	assert.Equal(t, "proteomics-lfq", got.Pipeline)

	page, err := os.ReadFile(htmlPath)
	require.NoError(t, err)
	assert.Contains(t, string(page), "PSMs per run")
}

func TestExecutor_MissingInput(t *testing.T) {
	inst := domain.NewInstance(uuid.New(), "report", "merged", 0)
	_, err := NewExecutor("p", nil).Execute(context.Background(), &worker.Request{Instance: inst})
	assert.ErrorIs(t, err, ErrMissingInput)
}

func TestSampleName(t *testing.T) {
	assert.Equal(t, "a", sampleName("file:///data/a.mzML"))
	assert.Equal(t, "run_01", sampleName("/x/run_01.raw"))
}
