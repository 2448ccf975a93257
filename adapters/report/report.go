package report

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"atomsense/ports"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

// unleveledColor paints atoms that are scored but below the bottom threshold
const unleveledColor = "#d3d3d3"

// AssetsHost is where the rendered chart pages load echarts from
var AssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// atomLabel is the x-axis label of an atom, e.g. "O2"
func atomLabel(run *ports.RunRecord, idx int) string {
	if idx >= 0 && idx < len(run.Elements) {
		return fmt.Sprintf("%s%d", run.Elements[idx], idx)
	}
	return fmt.Sprintf("#%d", idx)
}

// Chart builds a bar chart of per-atom dispersion. Bars take their level's
// legend colour; the quantile thresholds are drawn as mark lines.
func Chart(run *ports.RunRecord) *charts.Bar {
	x := make([]string, 0, len(run.Annotations))
	y := make([]opts.BarData, 0, len(run.Annotations))
	for _, a := range run.Annotations {
		if a.Dispersion == nil {
			continue
		}
		color := unleveledColor
		if a.Level != nil {
			if c, ok := run.Payload.ColorForLevel(*a.Level); ok {
				color = c
			}
		}
		x = append(x, atomLabel(run, a.AtomIndex))
		y = append(y, opts.BarData{
			Name:      atomLabel(run, a.AtomIndex),
			Value:     *a.Dispersion,
			ItemStyle: &opts.ItemStyle{Color: color},
		})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Atom sensitivity", Width: "100%", Height: "560px", AssetsHost: AssetsHost}),
		charts.WithTitleOpts(opts.Title{
			Title:    run.Payload.CanonicalEncoding,
			Subtitle: fmt.Sprintf("run=%s n=%d nbins=%d scale=%s", run.ID, run.Config.N, run.Config.NBins, run.Config.ColorScale),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "atom", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "dispersion", NameLocation: "middle", NameGap: 40}),
	)

	seriesOpts := []charts.SeriesOpts{
		charts.WithLabelOpts(opts.Label{Show: opts.Bool(false)}),
	}
	if run.Thresholds.Defined {
		seriesOpts = append(seriesOpts, charts.WithMarkLineNameYAxisItemOpts(
			opts.MarkLineNameYAxisItem{Name: "bottom", YAxis: run.Thresholds.Bottom},
			opts.MarkLineNameYAxisItem{Name: "top", YAxis: run.Thresholds.Top},
		))
	}
	bar.SetXAxis(x).AddSeries("dispersion", y, seriesOpts...)
	return bar
}

// RenderChart writes the chart as a standalone HTML page.
func RenderChart(w io.Writer, run *ports.RunRecord) error {
	page := components.NewPage()
	page.SetAssetsHost(AssetsHost)
	page.AddCharts(Chart(run))
	if err := page.Render(w); err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	return nil
}

// Markdown summarizes a run as a markdown document with a per-atom table.
func Markdown(run *ports.RunRecord) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Atom sensitivity: `%s`\n\n", run.Payload.CanonicalEncoding)
	fmt.Fprintf(&b, "- Run: `%s`\n", run.ID)
	fmt.Fprintf(&b, "- Fingerprint: `%s`\n", run.Fingerprint.Short())
	fmt.Fprintf(&b, "- Perturbations per atom: %d (radius %d, min valid %d)\n", run.Config.N, run.Config.Radius, run.Config.MinValidSamples)
	switch {
	case !run.Thresholds.Defined:
		b.WriteString("- Thresholds: undefined, no atom was scored\n")
	case run.Thresholds.Degenerate:
		fmt.Fprintf(&b, "- Thresholds: degenerate, bottom %.4g >= top %.4g\n", run.Thresholds.Bottom, run.Thresholds.Top)
	default:
		fmt.Fprintf(&b, "- Thresholds: %.4g (q=%.2f) to %.4g (q=%.2f)\n",
			run.Thresholds.Bottom, run.Config.BottomQuantile, run.Thresholds.Top, run.Config.TopQuantile)
	}
	b.WriteString("\n")

	b.WriteString("| Atom | Element | Samples | Dispersion | Level | Colour |\n")
	b.WriteString("|---:|:---|---:|---:|---:|:---|\n")
	for _, a := range run.Annotations {
		element := ""
		if a.AtomIndex < len(run.Elements) {
			element = run.Elements[a.AtomIndex]
		}
		disp, level, color := "n/a", "", ""
		if a.Dispersion != nil {
			disp = fmt.Sprintf("%.4g", *a.Dispersion)
		}
		if a.Level != nil {
			level = fmt.Sprintf("%d", *a.Level)
			color, _ = run.Payload.ColorForLevel(*a.Level)
		}
		fmt.Fprintf(&b, "| %d | %s | %d/%d | %s | %s | %s |\n", a.AtomIndex, element, a.Samples, a.Attempts, disp, level, color)
	}

	if len(run.Unscored) > 0 {
		b.WriteString("\n")
		fmt.Fprintf(&b, "Atoms without enough valid perturbations: %v\n", run.Unscored)
	}
	return b.String()
}

// SummaryHTML renders Markdown(run) to HTML.
func SummaryHTML(run *ports.RunRecord) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	renderer := html.NewRenderer(html.RendererOptions{
		Flags: html.CommonFlags | html.CompletePage,
		Title: "Atom sensitivity " + run.ID.String(),
	})
	return markdown.ToHTML([]byte(Markdown(run)), p, renderer)
}

// ChartHTML renders the chart page into memory.
func ChartHTML(run *ports.RunRecord) ([]byte, error) {
	var buf bytes.Buffer
	if err := RenderChart(&buf, run); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
