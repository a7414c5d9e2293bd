package report

import (
	"math"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Report — итоговый отчёт run по экспортированному mzTab.
type Report struct {
	Pipeline    string    `json:"pipeline"`
	Title       string    `json:"title,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
	Software    []string  `json:"software,omitempty"`

	Proteins int `json:"proteins"`
	Peptides int `json:"peptides"`
	PSMs     int `json:"psms"`

	Runs    []RunStats    `json:"runs"`
	Charges []ChargeCount `json:"charges"`
	Assays  []AssayStats  `json:"assays"`
}

// RunStats — идентификации одного ms_run.
type RunStats struct {
	Ref      string `json:"ref"`
	Sample   string `json:"sample"`
	Location string `json:"location,omitempty"`
	PSMs     int    `json:"psms"`
}

// ChargeCount — число PSM с зарядом прекурсора.
type ChargeCount struct {
	Charge int `json:"charge"`
	PSMs   int `json:"psms"`
}

// AssayStats — распределение log2 белковых abundance одного assay.
type AssayStats struct {
	Assay      string  `json:"assay"`
	Sample     string  `json:"sample"`
	Quantified int     `json:"quantified"`
	Missing    int     `json:"missing"`
	Mean       float64 `json:"log2_mean"`
	StdDev     float64 `json:"log2_stddev"`
	Min        float64 `json:"log2_min"`
	Q1         float64 `json:"log2_q1"`
	Median     float64 `json:"log2_median"`
	Q3         float64 `json:"log2_q3"`
	Max        float64 `json:"log2_max"`
}

var (
	msRunLocation = regexp.MustCompile(`^(ms_run\[\d+\])-location$`)
	assayRunRef   = regexp.MustCompile(`^(assay\[\d+\])-ms_run_ref$`)
	softwareKey   = regexp.MustCompile(`^software\[\d+\]$`)
)

// Build строит отчёт по разобранному mzTab.
func Build(m *MzTab, pipeline string) *Report {
	r := &Report{
		Pipeline:    pipeline,
		Title:       firstNonEmpty(m.Metadata["title"], m.Metadata["description"], m.Metadata["mzTab-ID"]),
		GeneratedAt: time.Now().UTC(),
		Proteins:    len(m.Proteins.Rows),
		Peptides:    len(m.Peptides.Rows),
		PSMs:        len(m.PSMs.Rows),
		Runs:        make([]RunStats, 0),
		Charges:     make([]ChargeCount, 0),
		Assays:      make([]AssayStats, 0),
	}

	runs := make(map[string]*RunStats)
	assayRun := make(map[string]string)
	for _, key := range m.MetadataKeys() {
		value := m.Metadata[key]
		switch {
		case msRunLocation.MatchString(key):
			ref := msRunLocation.FindStringSubmatch(key)[1]
			runs[ref] = &RunStats{Ref: ref, Sample: sampleName(value), Location: value}
		case assayRunRef.MatchString(key):
			assayRun[assayRunRef.FindStringSubmatch(key)[1]] = value
		case softwareKey.MatchString(key):
			r.Software = append(r.Software, value)
		}
	}

	charges := make(map[int]int)
	for _, row := range m.PSMs.Rows {
		ref, _, _ := strings.Cut(row["spectra_ref"], ":")
		rs, ok := runs[ref]
		if !ok && ref != "" {
			rs = &RunStats{Ref: ref, Sample: ref}
			runs[ref] = rs
		}
		if rs != nil {
			rs.PSMs++
		}
		if c, err := strconv.ParseFloat(row["charge"], 64); err == nil {
			charges[int(c)]++
		}
	}

	for _, rs := range runs {
		r.Runs = append(r.Runs, *rs)
	}
	sort.Slice(r.Runs, func(i, j int) bool {
		a, b := refIndex(r.Runs[i].Ref), refIndex(r.Runs[j].Ref)
		if a != b {
			return a < b
		}
		return r.Runs[i].Ref < r.Runs[j].Ref
	})

	for c, n := range charges {
		r.Charges = append(r.Charges, ChargeCount{Charge: c, PSMs: n})
	}
	sort.Slice(r.Charges, func(i, j int) bool { return r.Charges[i].Charge < r.Charges[j].Charge })

	for _, col := range m.Proteins.Columns("protein_abundance_assay[") {
		assay := strings.TrimPrefix(col, "protein_abundance_")
		sample := assay
		if rs, ok := runs[assayRun[assay]]; ok {
			sample = rs.Sample
		}
		r.Assays = append(r.Assays, assayStats(assay, sample, m.Proteins.Rows, col))
	}

	return r
}

// assayStats считает распределение log2 abundance колонки col.
// Пустые, "null", нечисловые и неположительные значения считаются пропусками.
func assayStats(assay, sample string, rows []Row, col string) AssayStats {
	values := make([]float64, 0, len(rows))
	for _, row := range rows {
		v, err := strconv.ParseFloat(row[col], 64)
		if err != nil || v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		values = append(values, math.Log2(v))
	}

	s := AssayStats{
		Assay:      assay,
		Sample:     sample,
		Quantified: len(values),
		Missing:    len(rows) - len(values),
	}
	if len(values) == 0 {
		return s
	}

	sort.Float64s(values)
	s.Mean = stat.Mean(values, nil)
	if len(values) > 1 {
		s.StdDev = stat.StdDev(values, nil)
	}
	s.Min = values[0]
	s.Max = values[len(values)-1]
	s.Q1 = stat.Quantile(0.25, stat.Empirical, values, nil)
	s.Median = stat.Quantile(0.5, stat.Empirical, values, nil)
	s.Q3 = stat.Quantile(0.75, stat.Empirical, values, nil)
	return s
}

// sampleName возвращает имя файла без расширения: "file:///d/a.mzML" → "a".
func sampleName(location string) string {
	base := path.Base(strings.TrimPrefix(location, "file://"))
	return strings.TrimSuffix(base, path.Ext(base))
}

// refIndex возвращает номер из ссылки вида "ms_run[3]".
func refIndex(ref string) int {
	open := strings.IndexByte(ref, '[')
	if open < 0 || !strings.HasSuffix(ref, "]") {
		return math.MaxInt
	}
	n, err := strconv.Atoi(ref[open+1 : len(ref)-1])
	if err != nil {
		return math.MaxInt
	}
	return n
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
