package report

import (
	"fmt"
	"math"

	"go-hep.org/x/hep/hbook"
	"go-hep.org/x/hep/hplot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/Noofbiz/stripCloud/datasets"
	"github.com/Noofbiz/stripCloud/monte"
)

// Default binning of the histograms.
const (
	ErrorBins = 100
	CloudBins = 100
)

// paddedRange returns [lo, hi] widened so that hbook accepts it.
func paddedRange(lo, hi float64) (float64, float64) {
	if hi > lo {
		pad := (hi - lo) * 0.01
		return lo - pad, hi + pad
	}
	return lo - 0.5, hi + 0.5
}

// CloudHistogram fills a 2-D histogram of the raw deposits, weighted by
// their charge, and draws it with a heat palette.
func CloudHistogram(path string, cloud *datasets.Cloud, bins int) error {
	if cloud == nil || cloud.Len() == 0 {
		return ErrNoData
	}
	if bins <= 0 {
		bins = CloudBins
	}
	xmin, xmax, ymin, ymax := cloud.Bounds()
	xmin, xmax = paddedRange(xmin, xmax)
	ymin, ymax = paddedRange(ymin, ymax)

	h := hbook.NewH2D(bins, xmin, xmax, bins, ymin, ymax)
	for _, d := range cloud.Deposits {
		h.Fill(d.X, d.Y, d.E)
	}

	p := hplot.New()
	p.Title.Text = fmt.Sprintf("Electron cloud (%d deposits)", cloud.Len())
	p.Title.Padding = 2 * vg.Millimeter
	p.X.Label.Text = "x"
	p.Y.Label.Text = "y"
	p.Add(hplot.NewH2D(h, palette.Heat(16, 1)))
	p.Add(hplot.NewGrid())

	if err := ensureDir(path); err != nil {
		return err
	}
	return p.Save(Width, Height, path)
}

// ErrorHistograms overlays one histogram of reconstruction errors per
// method. The range is symmetric around 0 and covers every defined error.
func ErrorHistograms(path string, table *monte.ResultTable, bins int) error {
	if table == nil || table.Len() == 0 {
		return ErrNoData
	}
	if bins <= 0 {
		bins = ErrorBins
	}

	methods := table.Methods()
	errs := make([][]float64, len(methods))
	limit := 0.0
	for i, m := range methods {
		errs[i] = table.Errors(m)
		for _, e := range errs[i] {
			limit = math.Max(limit, math.Abs(e))
		}
	}
	if limit == 0 {
		limit = 1e-6
	}
	limit *= 1.05

	p := hplot.New()
	p.Title.Text = "Reconstruction error"
	p.Title.Padding = 2 * vg.Millimeter
	p.X.Label.Text = "reconstructed - true position"
	p.Y.Label.Text = "trials"
	p.Legend.Top = true
	p.Legend.Padding = 2 * vg.Millimeter

	drawn := 0
	for i, m := range methods {
		if len(errs[i]) == 0 {
			continue
		}
		h := hbook.NewH1D(bins, -limit, limit)
		for _, e := range errs[i] {
			h.Fill(e, 1)
		}
		hh := hplot.NewH1D(h)
		hh.FillColor = nil
		hh.LineStyle.Color = plotutil.Color(i)
		hh.LineStyle.Width = vg.Points(1.2)
		hh.Infos.Style = hplot.HInfoNone
		p.Add(hh)
		p.Legend.Add(fmt.Sprintf("%s (n=%d)", m, len(errs[i])), hh)
		drawn++
	}
	if drawn == 0 {
		return ErrNoData
	}
	p.Add(hplot.NewGrid())

	if err := ensureDir(path); err != nil {
		return err
	}
	return p.Save(Width, Height, path)
}
