package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// RenderHTML пишет HTML страницу отчёта с графиками.
//
// Страница содержит: PSM по ms_run, распределение зарядов,
// box plot log2 abundance по assay и число квантифицированных белков.
func RenderHTML(w io.Writer, r *Report) error {
	page := components.NewPage()
	page.SetPageTitle(fmt.Sprintf("%s report", r.Pipeline))
	page.AddCharts(
		psmChart(r),
		chargeChart(r),
		abundanceChart(r),
		quantifiedChart(r),
	)

	if err := page.Render(w); err != nil {
		return fmt.Errorf("render report html: %w", err)
	}
	return nil
}

func subtitle(r *Report) string {
	return fmt.Sprintf("proteins=%d peptides=%d psms=%d", r.Proteins, r.Peptides, r.PSMs)
}

func psmChart(r *Report) *charts.Bar {
	x := make([]string, len(r.Runs))
	y := make([]opts.BarData, len(r.Runs))
	for i, run := range r.Runs {
		x[i] = run.Sample
		y[i] = opts.BarData{Value: run.PSMs}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{Title: "PSMs per run", Subtitle: subtitle(r)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x).
		AddSeries("psms", y,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)
	return bar
}

func chargeChart(r *Report) *charts.Bar {
	x := make([]string, len(r.Charges))
	y := make([]opts.BarData, len(r.Charges))
	for i, c := range r.Charges {
		x[i] = "+" + strconv.Itoa(c.Charge)
		y[i] = opts.BarData{Value: c.PSMs}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "360px"}),
		charts.WithTitleOpts(opts.Title{Title: "Precursor charge"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x).AddSeries("psms", y)
	return bar
}

func abundanceChart(r *Report) *charts.BoxPlot {
	x := make([]string, 0, len(r.Assays))
	data := make([]opts.BoxPlotData, 0, len(r.Assays))
	for _, a := range r.Assays {
		if a.Quantified == 0 {
			continue
		}
		x = append(x, a.Sample)
		data = append(data, opts.BoxPlotData{
			Name:  a.Assay,
			Value: []float64{a.Min, a.Q1, a.Median, a.Q3, a.Max},
		})
	}

	box := charts.NewBoxPlot()
	box.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{Title: "Protein abundance (log2)"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	box.SetXAxis(x).AddSeries("log2 abundance", data)
	return box
}

func quantifiedChart(r *Report) *charts.Bar {
	x := make([]string, len(r.Assays))
	quantified := make([]opts.BarData, len(r.Assays))
	missing := make([]opts.BarData, len(r.Assays))
	for i, a := range r.Assays {
		x[i] = a.Sample
		quantified[i] = opts.BarData{Value: a.Quantified}
		missing[i] = opts.BarData{Value: a.Missing}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "360px"}),
		charts.WithTitleOpts(opts.Title{Title: "Quantified proteins per assay"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x).
		AddSeries("quantified", quantified, charts.WithBarChartOpts(opts.BarChart{Stack: "proteins"})).
		AddSeries("missing", missing, charts.WithBarChartOpts(opts.BarChart{Stack: "proteins"}))
	return bar
}
