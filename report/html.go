package report

import (
	"fmt"
	"io"
	"math"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/Noofbiz/stripCloud/monte"
)

// missingValue is how echarts expects a gap in a series.
const missingValue = "-"

// ErrorChart builds an interactive line chart of the mean reconstruction
// error per true cloud centre, one series per method. Centres where a
// method has no defined position are rendered as gaps.
func ErrorChart(table *monte.ResultTable, subtitle string) (*charts.Line, error) {
	if table == nil || table.Len() == 0 {
		return nil, ErrNoData
	}
	methods := table.Methods()
	if len(methods) == 0 {
		return nil, ErrNoData
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Strip reconstruction", Width: "900px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "Mean reconstruction error vs cloud position", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "true position", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "mean error", NameLocation: "middle", NameGap: 50}),
	)

	var labels []string
	for i, m := range methods {
		centres := table.ByCenter(m)
		if i == 0 {
			labels = make([]string, len(centres))
			for j, c := range centres {
				labels[j] = fmt.Sprintf("%.4g", c.TruePosition)
			}
		}
		data := make([]opts.LineData, len(centres))
		for j, c := range centres {
			if c.Count == 0 || math.IsNaN(c.Mean) {
				data[j] = opts.LineData{Value: missingValue}
				continue
			}
			data[j] = opts.LineData{Value: c.Mean}
		}
		line.AddSeries(m.String(), data)
	}
	line.SetXAxis(labels)
	return line, nil
}

// WriteHTML renders ErrorChart to w.
func WriteHTML(w io.Writer, table *monte.ResultTable, subtitle string) error {
	line, err := ErrorChart(table, subtitle)
	if err != nil {
		return err
	}
	return line.Render(w)
}

// SaveHTML renders ErrorChart to the file at path.
func SaveHTML(path string, table *monte.ResultTable, subtitle string) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteHTML(f, table, subtitle); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
