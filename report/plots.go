// Package report turns simulation inputs and results into figures: static
// PNG/SVG plots (gonum/plot and go-hep hplot) and an interactive HTML chart
// (go-echarts). None of it runs inside the trial loop.
package report

import (
	"errors"
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/Noofbiz/stripCloud/datasets"
	"github.com/Noofbiz/stripCloud/monte"
)

// ErrNoData is returned when there is nothing to draw.
var ErrNoData = errors.New("report: no data to plot")

// Figure size shared by every static plot.
var (
	Width  = 8 * vg.Inch
	Height = 6 * vg.Inch
)

// fitSamples is the number of points used to draw the fitted curve.
const fitSamples = 400

// ensureDir creates the parent directory of path if needed.
func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func save(p *plot.Plot, path string) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	if err := p.Save(Width, Height, path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

// ProjectionPlot draws the normalized x projection of the cloud, the fitted
// Gaussian and the dense spline resample (when spline is non-empty) on top
// of it, and the strip centres along the x axis.
func ProjectionPlot(path string, proj, spline datasets.Projection, fit datasets.GaussianFit, strips []float64) error {
	if proj.Len() == 0 {
		return ErrNoData
	}
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Charge projection: fit mean=%.4f sigma=%.4f", fit.Mean, fit.Sigma)
	p.X.Label.Text = "x"
	p.Y.Label.Text = "density"

	pts := make(plotter.XYs, proj.Len())
	for i := range pts {
		pts[i] = plotter.XY{X: proj.X[i], Y: proj.Density[i]}
	}
	sc, err := plotter.NewScatter(pts)
	if err != nil {
		return err
	}
	sc.GlyphStyle.Color = color.RGBA{R: 120, G: 120, B: 120, A: 200}
	sc.GlyphStyle.Radius = vg.Points(1.8)
	p.Add(sc)
	p.Legend.Add("projection", sc)

	if fit.Sigma > 0 {
		xs := make([]float64, fitSamples)
		floats.Span(xs, proj.X[0], proj.X[proj.Len()-1])
		curve := make(plotter.XYs, fitSamples)
		for i, x := range xs {
			curve[i] = plotter.XY{X: x, Y: fit.Eval(x)}
		}
		line, err := plotter.NewLine(curve)
		if err != nil {
			return err
		}
		line.Color = color.RGBA{R: 200, G: 30, B: 30, A: 255}
		line.Width = vg.Points(1.2)
		p.Add(line)
		p.Legend.Add("gaussian fit", line)
	}

	if spline.Len() > 1 {
		curve := make(plotter.XYs, spline.Len())
		for i := range curve {
			curve[i] = plotter.XY{X: spline.X[i], Y: spline.Density[i]}
		}
		line, err := plotter.NewLine(curve)
		if err != nil {
			return err
		}
		line.Color = color.RGBA{R: 40, G: 120, B: 40, A: 220}
		line.Width = vg.Points(0.8)
		line.Dashes = []vg.Length{vg.Points(3), vg.Points(2)}
		p.Add(line)
		p.Legend.Add("cubic spline", line)
	}

	if len(strips) > 0 {
		marks := make(plotter.XYs, len(strips))
		for i, s := range strips {
			marks[i] = plotter.XY{X: s, Y: 0}
		}
		ms, err := plotter.NewScatter(marks)
		if err != nil {
			return err
		}
		ms.GlyphStyle.Shape = draw.CrossGlyph{}
		ms.GlyphStyle.Color = color.RGBA{R: 20, G: 80, B: 200, A: 255}
		ms.GlyphStyle.Radius = vg.Points(3)
		p.Add(ms)
		p.Legend.Add("strip centres", ms)
	}

	p.Add(plotter.NewGrid())
	return save(p, path)
}

// errorPoints joins the mean errors with their spread for YErrorBars.
type errorPoints struct {
	plotter.XYs
	plotter.YErrors
}

// ErrorVsPosition draws, for every method, the mean reconstruction error at
// each true cloud centre with ± one standard deviation bars. Centres where
// a method never produced a position are left out.
func ErrorVsPosition(path string, table *monte.ResultTable) error {
	if table == nil || table.Len() == 0 {
		return ErrNoData
	}
	p := plot.New()
	p.Title.Text = "Reconstruction error vs cloud position"
	p.X.Label.Text = "true position"
	p.Y.Label.Text = "mean error"

	drawn := 0
	for i, m := range table.Methods() {
		var pts errorPoints
		for _, c := range table.ByCenter(m) {
			if c.Count == 0 || math.IsNaN(c.Mean) {
				continue
			}
			spread := c.StdDev
			if math.IsNaN(spread) {
				spread = 0
			}
			pts.XYs = append(pts.XYs, plotter.XY{X: c.TruePosition, Y: c.Mean})
			pts.YErrors = append(pts.YErrors, struct{ Low, High float64 }{spread, spread})
		}
		if len(pts.XYs) == 0 {
			continue
		}
		line, scatter, err := plotter.NewLinePoints(pts.XYs)
		if err != nil {
			return err
		}
		line.Color = plotutil.Color(i)
		scatter.GlyphStyle.Color = plotutil.Color(i)
		scatter.GlyphStyle.Shape = plotutil.Shape(i)
		bars, err := plotter.NewYErrorBars(pts)
		if err != nil {
			return err
		}
		bars.LineStyle.Color = plotutil.Color(i)
		p.Add(line, scatter, bars)
		p.Legend.Add(m.String(), line, scatter)
		drawn++
	}
	if drawn == 0 {
		return ErrNoData
	}
	p.Add(plotter.NewGrid())
	return save(p, path)
}
