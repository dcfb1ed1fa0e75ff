package estimate

import (
	"errors"
	"math"
	"testing"
)

func approxEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestLinearAndQuadraticCentroids(t *testing.T) {
	pos := []float64{1, 2, 3}
	q := []float64{1, 2, 1}

	lin, err := LinearWeight{}.Estimate(pos, q)
	if err != nil || !approxEqual(lin, 2, 1e-12) {
		t.Fatalf("linear: want 2, got %v (%v)", lin, err)
	}

	skew := []float64{1, 3, 0}
	// linear: (1 + 6) / 4 = 1.75; quadratic: (1 + 18) / 10 = 1.9
	lin, _ = LinearWeight{}.Estimate(pos, skew)
	quad, err := QuadraticWeight{}.Estimate(pos, skew)
	if err != nil {
		t.Fatalf("quadratic error: %v", err)
	}
	if !approxEqual(lin, 1.75, 1e-12) {
		t.Errorf("linear: want 1.75, got %v", lin)
	}
	if !approxEqual(quad, 1.9, 1e-12) {
		t.Errorf("quadratic: want 1.9, got %v", quad)
	}
}

func TestLogWeightExcludesStripsBelowReference(t *testing.T) {
	pos := []float64{0, 1, 2}
	charges := []float64{10, 1, 0.001}
	est := LogWeight{RefFraction: 0.05}

	w := LogWeights(charges, 0.05*10)
	if w[2] != 0 {
		t.Fatalf("third strip must be floored to 0, got %v", w[2])
	}
	for i, wi := range w {
		if wi < 0 {
			t.Fatalf("weight %d is negative: %v", i, wi)
		}
	}

	got, err := est.Estimate(pos, charges)
	if err != nil {
		t.Fatalf("Estimate error: %v", err)
	}
	want, err := est.Estimate(pos[:2], charges[:2])
	if err != nil {
		t.Fatalf("Estimate error on two strips: %v", err)
	}
	if !approxEqual(got, want, 1e-12) {
		t.Fatalf("log centroid must ignore the floored strip: want %v, got %v", want, got)
	}
	manual := (math.Log(20)*0 + math.Log(2)*1) / (math.Log(20) + math.Log(2))
	if !approxEqual(got, manual, 1e-12) {
		t.Fatalf("log centroid: want %v, got %v", manual, got)
	}
}

func TestEstimatorsReportUndefinedPosition(t *testing.T) {
	for _, est := range Default(0.05) {
		if _, err := est.Estimate(nil, nil); !errors.Is(err, ErrUndefinedPosition) {
			t.Errorf("%v: empty cluster should be undefined, got %v", est.Method(), err)
		}
	}

	if _, err := (LinearWeight{}).Estimate([]float64{0, 1}, []float64{1, -1}); !errors.Is(err, ErrUndefinedPosition) {
		t.Errorf("linear zero weight sum should be undefined, got %v", err)
	}

	// A single strip still has positive log weight once the reference is
	// below it.
	pos, err := (LogWeight{RefFraction: 0.5}).Estimate([]float64{3}, []float64{2})
	if err != nil || !approxEqual(pos, 3, 1e-12) {
		t.Errorf("single-strip log centroid: want 3, got %v (%v)", pos, err)
	}

	if _, err := (LogWeight{}).Estimate([]float64{0, 1}, []float64{-1, -2}); !errors.Is(err, ErrUndefinedPosition) {
		t.Errorf("log with no positive charge should be undefined, got %v", err)
	}
}

func TestCentroidBoundedByClusterSpan(t *testing.T) {
	pos := []float64{-0.8, -0.4, 0, 0.4}
	charges := []float64{0.03, 0.2, 0.5, 0.1}
	for _, est := range Default(0.05) {
		got, err := est.Estimate(pos, charges)
		if err != nil {
			t.Fatalf("%v: %v", est.Method(), err)
		}
		if got < pos[0] || got > pos[len(pos)-1] {
			t.Errorf("%v: %v outside [%v, %v]", est.Method(), got, pos[0], pos[len(pos)-1])
		}
	}
}

func TestMethodNames(t *testing.T) {
	want := []string{"linear", "quadratic", "logarithmic"}
	for i, m := range Methods {
		if m.String() != want[i] {
			t.Errorf("method %d: want %q, got %q", i, want[i], m.String())
		}
	}
}
