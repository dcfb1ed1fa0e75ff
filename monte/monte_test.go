package monte

import (
	"bytes"
	"encoding/csv"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/Noofbiz/stripCloud/config"
	"github.com/Noofbiz/stripCloud/datasets"
	"github.com/Noofbiz/stripCloud/detector"
	"github.com/Noofbiz/stripCloud/estimate"
)

func init() {
	SetLogger(nil)
}

func approxEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

// newTestRunner builds a runner on a symmetric grid -5..5 with unit pitch
// and unit strip width over a Gaussian cloud of width 0.8.
func newTestRunner(t *testing.T, centers []float64, reps int, sigma, threshold float64, workers int) *Runner {
	t.Helper()
	grid, err := detector.NewGrid(-5, 5.5, 1)
	if err != nil {
		t.Fatalf("NewGrid: %v", err)
	}
	profile, err := datasets.NewGaussianProfile(0.8)
	if err != nil {
		t.Fatalf("NewGaussianProfile: %v", err)
	}
	sampler, err := detector.NewSampler(grid, profile, 1, 64)
	if err != nil {
		t.Fatalf("NewSampler: %v", err)
	}
	r, err := NewRunner(grid, sampler,
		detector.Clusterizer{Threshold: threshold, Selection: detector.SelectCharge},
		estimate.Default(estimate.DefaultLogRefFraction),
		centers,
		Options{Repetitions: reps, NoiseSigma: sigma, Seed: 7, Workers: workers})
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	r.ProgressInterval = 0
	return r
}

func TestRunProducesOneRowPerTrial(t *testing.T) {
	centers := []float64{-0.3, 0, 0.25}
	r := newTestRunner(t, centers, 20, 0.01, 0.02, 0)
	table, err := r.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if table.Len() != len(centers)*20 {
		t.Fatalf("expected %d rows, got %d", len(centers)*20, table.Len())
	}
	for i := 0; i < table.Len(); i++ {
		row := table.Row(i)
		if row.Trial != i {
			t.Fatalf("row %d has trial index %d", i, row.Trial)
		}
		if row.TruePosition != centers[row.CenterIndex] {
			t.Fatalf("row %d: true position %v does not match centre %d", i, row.TruePosition, row.CenterIndex)
		}
		if row.Repetition != i%20 {
			t.Fatalf("row %d: repetition %d", i, row.Repetition)
		}
		if len(row.Reconstructions) != len(estimate.Methods) {
			t.Fatalf("row %d: %d reconstructions", i, len(row.Reconstructions))
		}
	}
}

func TestRunIsDeterministicAcrossWorkerCounts(t *testing.T) {
	centers := []float64{-0.2, 0, 0.1, 0.35}
	a, err := newTestRunner(t, centers, 25, 0.02, 0.03, 1).Run()
	if err != nil {
		t.Fatalf("Run (1 worker): %v", err)
	}
	b, err := newTestRunner(t, centers, 25, 0.02, 0.03, 4).Run()
	if err != nil {
		t.Fatalf("Run (4 workers): %v", err)
	}
	c, err := newTestRunner(t, centers, 25, 0.02, 0.03, 4).Run()
	if err != nil {
		t.Fatalf("Run (repeat): %v", err)
	}
	if diff := cmp.Diff(a.Matrix(), b.Matrix(), cmpopts.EquateNaNs()); diff != "" {
		t.Fatalf("tables differ between 1 and 4 workers (-1 +4):\n%s", diff)
	}
	if diff := cmp.Diff(b.Matrix(), c.Matrix(), cmpopts.EquateNaNs()); diff != "" {
		t.Fatalf("tables differ between identical runs:\n%s", diff)
	}
}

func TestDifferentSeedsGiveDifferentNoise(t *testing.T) {
	a, err := newTestRunner(t, []float64{0}, 10, 0.05, 0.02, 2).Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	r := newTestRunner(t, []float64{0}, 10, 0.05, 0.02, 2)
	r.Seed = 8
	b, err := r.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if cmp.Equal(a.Matrix(), b.Matrix(), cmpopts.EquateNaNs()) {
		t.Fatalf("expected different seeds to change the table")
	}
}

func TestReconstructionsStayInsideCluster(t *testing.T) {
	r := newTestRunner(t, []float64{-0.4, -0.1, 0.2, 0.45}, 50, 0.03, 0.02, 0)
	table, err := r.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for i := 0; i < table.Len(); i++ {
		row := table.Row(i)
		if !row.Resolved {
			continue
		}
		lo := r.Grid.Position(row.ClusterStart)
		hi := r.Grid.Position(row.ClusterStart + row.ClusterSize - 1)
		for k, rec := range row.Reconstructions {
			if rec.Missing() {
				continue
			}
			if rec.Position < lo-1e-12 || rec.Position > hi+1e-12 {
				t.Fatalf("row %d method %v: %v outside [%v, %v]", i, estimate.Methods[k], rec.Position, lo, hi)
			}
			if !approxEqual(rec.Error, rec.Position-row.TruePosition, 1e-15) {
				t.Fatalf("row %d: error %v != position - truth", i, rec.Error)
			}
		}
	}
}

func TestNoiselessSymmetricCloudIsReconstructedExactly(t *testing.T) {
	r := newTestRunner(t, []float64{0}, 3, 0, 0, 1)
	table, err := r.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for i := 0; i < table.Len(); i++ {
		row := table.Row(i)
		if !row.Resolved {
			t.Fatalf("row %d unresolved", i)
		}
		for k, rec := range row.Reconstructions {
			if !approxEqual(rec.Position, 0, 1e-9) {
				t.Errorf("row %d method %v: want 0, got %v", i, estimate.Methods[k], rec.Position)
			}
		}
	}
}

func TestNoiselessRepetitionsAreIdentical(t *testing.T) {
	r := newTestRunner(t, []float64{0.3}, 5, 0, 0.01, 3)
	table, err := r.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	first := table.Row(0)
	for i := 1; i < table.Len(); i++ {
		row := table.Row(i)
		if diff := cmp.Diff(first.Reconstructions, row.Reconstructions); diff != "" {
			t.Fatalf("row %d differs from row 0:\n%s", i, diff)
		}
	}
	// Linear weights are biased towards the strip centre but keep the sign.
	lin, _ := table.Get(0, estimate.Linear)
	if !(lin.Position > 0 && lin.Position < 0.3+1e-9) {
		t.Fatalf("linear estimate %v not in (0, 0.3]", lin.Position)
	}
}

// newNoiselessRunner builds a σ=0, zero-threshold runner over an arbitrary
// grid and Gaussian cloud width.
func newNoiselessRunner(t *testing.T, first, last, pitch, width, cloudSigma float64, centers []float64) *Runner {
	t.Helper()
	grid, err := detector.NewGrid(first, last, pitch)
	if err != nil {
		t.Fatalf("NewGrid: %v", err)
	}
	profile, err := datasets.NewGaussianProfile(cloudSigma)
	if err != nil {
		t.Fatalf("NewGaussianProfile: %v", err)
	}
	sampler, err := detector.NewSampler(grid, profile, width, 64)
	if err != nil {
		t.Fatalf("NewSampler: %v", err)
	}
	r, err := NewRunner(grid, sampler,
		detector.Clusterizer{Threshold: 0, Selection: detector.SelectCharge},
		estimate.Default(estimate.DefaultLogRefFraction),
		centers,
		Options{Repetitions: 2, NoiseSigma: 0, Seed: 1, Workers: 2})
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	r.ProgressInterval = 0
	return r
}

func TestNoiselessReconstructionAtStripCentres(t *testing.T) {
	// Strips -6..6; every cloud sits on a strip and the grid extends far
	// enough on both sides that the charge pattern is symmetric.
	r := newNoiselessRunner(t, -6, 6.5, 1, 1, 0.8, []float64{-1, 0, 1})
	table, err := r.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for i := 0; i < table.Len(); i++ {
		row := table.Row(i)
		if !row.Resolved {
			t.Fatalf("row %d unresolved", i)
		}
		for k, rec := range row.Reconstructions {
			if !approxEqual(rec.Position, row.TruePosition, 1e-6) {
				t.Errorf("centre %v method %v: want %v, got %v", row.TruePosition, estimate.Methods[k], row.TruePosition, rec.Position)
			}
		}
	}
}

func TestNoiselessSweepErrorsAreSmall(t *testing.T) {
	const pitch = 1.0
	centers, err := detector.Arange(0, pitch, pitch/10)
	if err != nil {
		t.Fatalf("Arange: %v", err)
	}
	if len(centers) != 10 {
		t.Fatalf("expected 10 centres, got %d", len(centers))
	}

	// A wide cloud sampled by touching strips: every method is close to the
	// truth, the linear centroid almost exactly.
	wide, err := newNoiselessRunner(t, -6, 6.5, pitch, pitch, 0.8, centers).Run()
	if err != nil {
		t.Fatalf("Run (wide): %v", err)
	}
	for i := 0; i < wide.Len(); i++ {
		row := wide.Row(i)
		for k, rec := range row.Reconstructions {
			if rec.Missing() || math.Abs(rec.Error) >= pitch/10 {
				t.Errorf("wide cloud at %v, %v: error %v", row.TruePosition, estimate.Methods[k], rec.Error)
			}
		}
		if lin, _ := wide.Get(i, estimate.Linear); math.Abs(lin.Error) > 1e-3 {
			t.Errorf("wide cloud at %v: linear error %v", row.TruePosition, lin.Error)
		}
	}

	// A narrow cloud on narrower strips is quantized: the error grows but
	// never reaches half a pitch.
	narrow, err := newNoiselessRunner(t, -3, 3.5, pitch, 0.9, 0.2, centers).Run()
	if err != nil {
		t.Fatalf("Run (narrow): %v", err)
	}
	for i := 0; i < narrow.Len(); i++ {
		row := narrow.Row(i)
		for k, rec := range row.Reconstructions {
			if rec.Missing() || math.Abs(rec.Error) >= pitch/2 {
				t.Errorf("narrow cloud at %v, %v: error %v", row.TruePosition, estimate.Methods[k], rec.Error)
			}
		}
	}

	// Repetitions at one centre agree exactly without noise.
	for _, m := range estimate.Methods {
		for _, c := range wide.ByCenter(m) {
			if c.Count != 2 || c.StdDev != 0 {
				t.Errorf("%v at %v: count=%d std=%v", m, c.TruePosition, c.Count, c.StdDev)
			}
		}
	}
}

func TestUnresolvedTrialsAreRecordedAsMissing(t *testing.T) {
	r := newTestRunner(t, []float64{0, 0.1}, 4, 0.01, 10, 2)
	table, err := r.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if table.Unresolved() != table.Len() {
		t.Fatalf("expected every trial unresolved, got %d/%d", table.Unresolved(), table.Len())
	}
	for i := 0; i < table.Len(); i++ {
		row := table.Row(i)
		if row.ClusterStart != -1 || row.ClusterSize != 0 {
			t.Fatalf("row %d: unexpected cluster %d+%d", i, row.ClusterStart, row.ClusterSize)
		}
		for _, rec := range row.Reconstructions {
			if !rec.Missing() || !math.IsNaN(rec.Error) {
				t.Fatalf("row %d: expected NaN reconstruction, got %+v", i, rec)
			}
		}
	}
	for _, s := range table.Summary() {
		if s.Count != 0 || s.Missing != table.Len() || !math.IsNaN(s.Mean) {
			t.Fatalf("summary for %s: %+v", s.Method, s)
		}
	}
}

func TestSummaryAndByCenter(t *testing.T) {
	table := NewResultTable([]estimate.Method{estimate.Linear})
	add := func(trial, ci int, truth, pos float64) {
		rec := Reconstruction{Position: pos, Error: pos - truth}
		if math.IsNaN(pos) {
			rec = missing()
		}
		table.Append(Row{
			Trial: trial, CenterIndex: ci, TruePosition: truth,
			Resolved: !math.IsNaN(pos), Reconstructions: []Reconstruction{rec},
		})
	}
	add(0, 0, 0, 0.1)
	add(1, 0, 0, -0.1)
	add(2, 1, 0.5, 0.8)
	add(3, 1, 0.5, math.NaN())

	s := table.Summary()
	if len(s) != 1 {
		t.Fatalf("expected one summary, got %d", len(s))
	}
	if s[0].Count != 3 || s[0].Missing != 1 {
		t.Fatalf("count/missing: %+v", s[0])
	}
	if !approxEqual(s[0].Mean, 0.1, 1e-12) {
		t.Fatalf("mean: want 0.1, got %v", s[0].Mean)
	}
	if !approxEqual(s[0].RMS, math.Sqrt((0.01+0.01+0.09)/3), 1e-12) {
		t.Fatalf("rms: got %v", s[0].RMS)
	}

	by := table.ByCenter(estimate.Linear)
	if len(by) != 2 {
		t.Fatalf("expected 2 centres, got %d", len(by))
	}
	if by[0].TruePosition != 0 || by[0].Count != 2 || !approxEqual(by[0].Mean, 0, 1e-12) {
		t.Fatalf("centre 0: %+v", by[0])
	}
	if by[1].TruePosition != 0.5 || by[1].Count != 1 || !approxEqual(by[1].Mean, 0.3, 1e-12) || !math.IsNaN(by[1].StdDev) {
		t.Fatalf("centre 1: %+v", by[1])
	}
	if table.ByCenter(estimate.Quadratic) != nil {
		t.Fatalf("expected nil for a method not in the table")
	}
}

func TestWriteCSV(t *testing.T) {
	r := newTestRunner(t, []float64{0, 0.2}, 3, 0.01, 0.02, 0)
	table, err := r.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	table.Append(Row{Trial: 6, CenterIndex: 2, TruePosition: 0.4, ClusterStart: -1,
		Reconstructions: []Reconstruction{missing(), missing(), missing()}})

	var buf bytes.Buffer
	if err := table.WriteCSV(&buf); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read back csv: %v", err)
	}
	if len(records) != table.Len()+1 {
		t.Fatalf("expected %d records, got %d", table.Len()+1, len(records))
	}
	header := strings.Join(records[0], ",")
	for _, col := range []string{"true_position", "linear_error", "quadratic_position", "logarithmic_error"} {
		if !strings.Contains(header, col) {
			t.Fatalf("header %q missing %q", header, col)
		}
	}
	last := records[len(records)-1]
	if last[len(last)-1] != "NaN" || last[4] != "false" {
		t.Fatalf("unexpected missing row: %v", last)
	}
}

func TestToGomlxTensorShape(t *testing.T) {
	r := newTestRunner(t, []float64{0}, 4, 0.01, 0.02, 0)
	table, err := r.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	tensor, err := table.ToGomlxTensor()
	if err != nil {
		t.Fatalf("ToGomlxTensor: %v", err)
	}
	dims := tensor.Shape().Dimensions
	if len(dims) != 2 || dims[0] != 4 || dims[1] != len(table.Header()) {
		t.Fatalf("unexpected tensor shape %v", dims)
	}

	if _, err := NewResultTable(estimate.Methods).ToGomlxTensor(); err == nil {
		t.Fatalf("expected error for empty table")
	}
}

func TestNewRunnerRejectsBadOptions(t *testing.T) {
	grid, _ := detector.NewGrid(-1, 1, 0.5)
	profile, _ := datasets.NewGaussianProfile(0.2)
	sampler, _ := detector.NewSampler(grid, profile, 0.4, 8)
	ests := estimate.Default(0.05)
	cl := detector.Clusterizer{}

	cases := map[string]struct {
		centers []float64
		opts    Options
		ests    []estimate.Estimator
	}{
		"no centres":       {nil, Options{Repetitions: 1}, ests},
		"unsorted centres": {[]float64{0.1, 0}, Options{Repetitions: 1}, ests},
		"zero reps":        {[]float64{0}, Options{Repetitions: 0}, ests},
		"negative sigma":   {[]float64{0}, Options{Repetitions: 1, NoiseSigma: -1}, ests},
		"negative workers": {[]float64{0}, Options{Repetitions: 1, Workers: -2}, ests},
		"no estimators":    {[]float64{0}, Options{Repetitions: 1}, nil},
	}
	for name, tc := range cases {
		if _, err := NewRunner(grid, sampler, cl, tc.ests, tc.centers, tc.opts); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestFromConfig(t *testing.T) {
	profile, err := datasets.NewGaussianProfile(0.15)
	if err != nil {
		t.Fatalf("NewGaussianProfile: %v", err)
	}
	cfg := config.Defaults()
	cfg.NumberOfElectronClouds = 2
	cfg.FirstCloudPosition = 0
	cfg.LastCloudPosition = 0.1
	cfg.Pitch = 0.5
	cfg.StripWidth = 0.4
	r, err := FromConfig(cfg, profile)
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	// -2, -1.5, ..., 1.5 and centres 0, 0.05.
	if r.Grid.Len() != 8 {
		t.Fatalf("expected 8 strips, got %d", r.Grid.Len())
	}
	if diff := cmp.Diff([]float64{0, 0.05}, r.Centers); diff != "" {
		t.Fatalf("centres (-want +got):\n%s", diff)
	}
	if r.Trials() != 4 || len(r.Estimators) != 3 {
		t.Fatalf("trials=%d estimators=%d", r.Trials(), len(r.Estimators))
	}

	cfg.ClusterSelection = "biggest"
	if _, err := FromConfig(cfg, profile); !errors.Is(err, config.ErrInvalid) {
		t.Fatalf("expected ErrInvalid for unknown selection, got %v", err)
	}
	cfg = config.Defaults()
	cfg.Pitch = 0
	if _, err := FromConfig(cfg, profile); !errors.Is(err, config.ErrInvalid) {
		t.Fatalf("expected ErrInvalid for zero pitch, got %v", err)
	}
}
