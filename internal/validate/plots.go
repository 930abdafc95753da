package validate

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/ilut/internal/lut"
)

const histogramBins = 40

func finite(values []float64) plotter.Values {
	out := make(plotter.Values, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	return out
}

// WriteHistograms saves one PNG histogram per channel plus one for surface
// reflectance under dir and returns the paths written. Empty series are
// skipped.
func WriteHistograms(r *Result, dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	series := make(map[string][]float64, lut.NumChannels+1)
	names := make([]string, 0, lut.NumChannels+1)
	for _, c := range lut.Channels {
		series[c.String()] = r.ChannelDiffs[c]
		names = append(names, c.String())
	}
	series["reflectance"] = r.SurfaceDiffs
	names = append(names, "reflectance")

	var written []string
	for _, name := range names {
		vals := finite(series[name])
		if len(vals) == 0 {
			continue
		}
		p := plot.New()
		p.Title.Text = fmt.Sprintf("%s %s %s (%s)", r.Config.Key(), r.Band, name, r.Source)
		p.X.Label.Text = "difference (%)"
		p.Y.Label.Text = "count"

		h, err := plotter.NewHist(vals, histogramBins)
		if err != nil {
			return written, fmt.Errorf("histogram %s: %w", name, err)
		}
		p.Add(h)

		path := filepath.Join(dir, fmt.Sprintf("%s_%s_%s_%s.png", r.Config.Key(), r.Band, r.Source, name))
		if err := p.Save(8*vg.Inch, 5*vg.Inch, path); err != nil {
			return written, fmt.Errorf("save %s: %w", path, err)
		}
		written = append(written, path)
	}
	return written, nil
}

// WriteHTMLReport renders a summary of results as a self-contained page:
// a bar chart of the 95th percentile error per band and channel, and a
// table-like bar chart of mean surface reflectance error.
func WriteHTMLReport(w io.Writer, title string, results []*Result) error {
	bands := make([]string, len(results))
	for i, r := range results {
		bands[i] = fmt.Sprintf("%s %s", r.Band, r.Source)
	}

	p95 := charts.NewBar()
	p95.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: "95th percentile |difference| (%) per channel"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	p95.SetXAxis(bands)
	for _, c := range lut.Channels {
		data := make([]opts.BarData, len(results))
		for i, r := range results {
			data[i] = opts.BarData{Value: r.Channels[c.String()].P95}
		}
		p95.AddSeries(c.String(), data)
	}

	surface := charts.NewBar()
	surface.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{Title: "Surface reflectance error", Subtitle: "mean and 99th percentile (%)"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	mean := make([]opts.BarData, len(results))
	p99 := make([]opts.BarData, len(results))
	for i, r := range results {
		mean[i] = opts.BarData{Value: r.Surface.Mean}
		p99[i] = opts.BarData{Value: r.Surface.P99}
	}
	surface.SetXAxis(bands).
		AddSeries("mean", mean).
		AddSeries("p99", p99,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)

	page := components.NewPage()
	page.SetPageTitle(title)
	page.AddCharts(p95, surface)
	return page.Render(w)
}
