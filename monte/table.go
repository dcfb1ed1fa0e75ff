package monte

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"gonum.org/v1/gonum/stat"

	"github.com/Noofbiz/stripCloud/estimate"
)

// Reconstruction is one estimator's answer for one trial. Both fields are
// NaN when the position was undefined.
type Reconstruction struct {
	Position float64
	Error    float64
}

// Missing reports whether the estimator produced no position.
func (r Reconstruction) Missing() bool { return math.IsNaN(r.Position) }

func missing() Reconstruction {
	return Reconstruction{Position: math.NaN(), Error: math.NaN()}
}

// Row is the record of one trial.
type Row struct {
	Trial        int
	CenterIndex  int
	Repetition   int
	TruePosition float64

	// Resolved is false when no strip crossed the threshold.
	Resolved bool

	// ClusterStart is -1 for unresolved trials.
	ClusterStart  int
	ClusterSize   int
	ClusterCharge float64

	// Reconstructions is indexed like the table's Methods.
	Reconstructions []Reconstruction
}

// ResultTable is the append-only record of a run, one row per trial.
type ResultTable struct {
	methods []estimate.Method
	rows    []Row
}

// NewResultTable returns an empty table for the given estimator methods.
func NewResultTable(methods []estimate.Method) *ResultTable {
	ms := make([]estimate.Method, len(methods))
	copy(ms, methods)
	return &ResultTable{methods: ms}
}

// Append adds a row. Rows already in the table are never modified.
func (t *ResultTable) Append(r Row) {
	recs := make([]Reconstruction, len(r.Reconstructions))
	copy(recs, r.Reconstructions)
	r.Reconstructions = recs
	t.rows = append(t.rows, r)
}

// Len returns the number of rows.
func (t *ResultTable) Len() int { return len(t.rows) }

// Methods returns the estimator methods, in column order.
func (t *ResultTable) Methods() []estimate.Method {
	ms := make([]estimate.Method, len(t.methods))
	copy(ms, t.methods)
	return ms
}

// Row returns a copy of row i.
func (t *ResultTable) Row(i int) Row {
	r := t.rows[i]
	recs := make([]Reconstruction, len(r.Reconstructions))
	copy(recs, r.Reconstructions)
	r.Reconstructions = recs
	return r
}

// column returns the index of m, or -1.
func (t *ResultTable) column(m estimate.Method) int {
	for i, mm := range t.methods {
		if mm == m {
			return i
		}
	}
	return -1
}

// Get returns the reconstruction of method m in row i.
func (t *ResultTable) Get(i int, m estimate.Method) (Reconstruction, bool) {
	c := t.column(m)
	if c < 0 {
		return Reconstruction{}, false
	}
	return t.rows[i].Reconstructions[c], true
}

// Errors returns the defined errors of method m, in row order.
func (t *ResultTable) Errors(m estimate.Method) []float64 {
	c := t.column(m)
	if c < 0 {
		return nil
	}
	out := make([]float64, 0, len(t.rows))
	for _, r := range t.rows {
		if rec := r.Reconstructions[c]; !rec.Missing() {
			out = append(out, rec.Error)
		}
	}
	return out
}

// Unresolved returns the number of trials with an empty cluster.
func (t *ResultTable) Unresolved() int {
	n := 0
	for _, r := range t.rows {
		if !r.Resolved {
			n++
		}
	}
	return n
}

// MethodSummary aggregates the errors of one method.
type MethodSummary struct {
	Method  string  `json:"method"`
	Count   int     `json:"count"`
	Missing int     `json:"missing"`
	Mean    float64 `json:"mean"`
	StdDev  float64 `json:"std_dev"`
	RMS     float64 `json:"rms"`
}

// Summary returns one MethodSummary per method, in column order. Missing
// entries are excluded from the statistics and counted separately.
func (t *ResultTable) Summary() []MethodSummary {
	out := make([]MethodSummary, len(t.methods))
	for i, m := range t.methods {
		errs := t.Errors(m)
		s := MethodSummary{
			Method:  m.String(),
			Count:   len(errs),
			Missing: len(t.rows) - len(errs),
			Mean:    math.NaN(),
			StdDev:  math.NaN(),
			RMS:     math.NaN(),
		}
		if len(errs) > 0 {
			s.Mean = stat.Mean(errs, nil)
			s.RMS = rms(errs)
		}
		if len(errs) > 1 {
			s.StdDev = stat.StdDev(errs, nil)
		}
		out[i] = s
	}
	return out
}

// PositionSummary aggregates one method's errors at one true centre.
type PositionSummary struct {
	TruePosition float64
	Count        int
	Mean         float64
	StdDev       float64
}

// ByCenter groups method m's errors by true cloud centre, in centre order.
// Centres where every trial was missing have Count 0 and NaN statistics.
func (t *ResultTable) ByCenter(m estimate.Method) []PositionSummary {
	c := t.column(m)
	if c < 0 {
		return nil
	}
	var out []PositionSummary
	var errs []float64
	flush := func(truth float64) {
		s := PositionSummary{TruePosition: truth, Count: len(errs), Mean: math.NaN(), StdDev: math.NaN()}
		if len(errs) > 0 {
			s.Mean = stat.Mean(errs, nil)
		}
		if len(errs) > 1 {
			s.StdDev = stat.StdDev(errs, nil)
		}
		out = append(out, s)
		errs = errs[:0]
	}
	for i, r := range t.rows {
		if i > 0 && r.CenterIndex != t.rows[i-1].CenterIndex {
			flush(t.rows[i-1].TruePosition)
		}
		if rec := r.Reconstructions[c]; !rec.Missing() {
			errs = append(errs, rec.Error)
		}
	}
	if len(t.rows) > 0 {
		flush(t.rows[len(t.rows)-1].TruePosition)
	}
	return out
}

func rms(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x * x
	}
	return math.Sqrt(sum / float64(len(xs)))
}

// Header returns the CSV column names.
func (t *ResultTable) Header() []string {
	h := []string{"trial", "center_index", "repetition", "true_position", "resolved", "cluster_start", "cluster_size", "cluster_charge"}
	for _, m := range t.methods {
		h = append(h, m.String()+"_position", m.String()+"_error")
	}
	return h
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// WriteCSV writes the header and one line per row. Missing values are
// written as NaN.
func (t *ResultTable) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header()); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range t.rows {
		rec := []string{
			strconv.Itoa(r.Trial),
			strconv.Itoa(r.CenterIndex),
			strconv.Itoa(r.Repetition),
			formatFloat(r.TruePosition),
			strconv.FormatBool(r.Resolved),
			strconv.Itoa(r.ClusterStart),
			strconv.Itoa(r.ClusterSize),
			formatFloat(r.ClusterCharge),
		}
		for _, rc := range r.Reconstructions {
			rec = append(rec, formatFloat(rc.Position), formatFloat(rc.Error))
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write csv row %d: %w", r.Trial, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Matrix returns the numeric content of the table as [rows][columns]
// float64, with the columns of Header (resolved as 0/1).
func (t *ResultTable) Matrix() [][]float64 {
	out := make([][]float64, len(t.rows))
	for i, r := range t.rows {
		resolved := 0.0
		if r.Resolved {
			resolved = 1
		}
		v := []float64{
			float64(r.Trial),
			float64(r.CenterIndex),
			float64(r.Repetition),
			r.TruePosition,
			resolved,
			float64(r.ClusterStart),
			float64(r.ClusterSize),
			r.ClusterCharge,
		}
		for _, rc := range r.Reconstructions {
			v = append(v, rc.Position, rc.Error)
		}
		out[i] = v
	}
	return out
}

// ToGomlxTensor converts the table to a gomlx tensor shaped
// [rows, columns] for downstream model tooling.
func (t *ResultTable) ToGomlxTensor() (*tensors.Tensor, error) {
	if len(t.rows) == 0 {
		return nil, fmt.Errorf("result table is empty")
	}
	return tensors.FromAnyValue(t.Matrix()), nil
}
