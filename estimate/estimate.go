// Package estimate reconstructs a cloud centre from the strips of a cluster
// using charge-weighted centroids.
package estimate

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// ErrUndefinedPosition is returned when a centroid cannot be formed: an
// empty cluster, a zero weight sum or a non-finite result.
var ErrUndefinedPosition = errors.New("undefined position")

// Method identifies one weighting scheme.
type Method int

const (
	// Linear weights strips by charge.
	Linear Method = iota
	// Quadratic weights strips by squared charge.
	Quadratic
	// Logarithmic weights strips by ln(q/q_ref), floored at 0.
	Logarithmic
)

// Methods lists every weighting scheme in reporting order.
var Methods = []Method{Linear, Quadratic, Logarithmic}

// String returns the lower-case method name used in CSV headers and plots.
func (m Method) String() string {
	switch m {
	case Linear:
		return "linear"
	case Quadratic:
		return "quadratic"
	case Logarithmic:
		return "logarithmic"
	}
	return fmt.Sprintf("Method(%d)", int(m))
}

// Estimator maps a cluster of (position, charge) pairs to one position.
type Estimator interface {
	Method() Method
	Estimate(positions, charges []float64) (float64, error)
}

// Centroid returns Σ wᵢpᵢ / Σ wᵢ.
func Centroid(positions, weights []float64) (float64, error) {
	if len(positions) != len(weights) {
		return math.NaN(), fmt.Errorf("centroid: %d positions but %d weights", len(positions), len(weights))
	}
	if len(weights) == 0 {
		return math.NaN(), fmt.Errorf("%w: empty cluster", ErrUndefinedPosition)
	}
	sum := floats.Sum(weights)
	if sum == 0 {
		return math.NaN(), fmt.Errorf("%w: zero weight sum", ErrUndefinedPosition)
	}
	pos := floats.Dot(weights, positions) / sum
	if math.IsNaN(pos) || math.IsInf(pos, 0) {
		return math.NaN(), fmt.Errorf("%w: non-finite centroid", ErrUndefinedPosition)
	}
	return pos, nil
}

// LinearWeight weights each strip by its charge.
type LinearWeight struct{}

// Method returns Linear.
func (LinearWeight) Method() Method { return Linear }

// Estimate returns the charge-weighted centroid.
func (LinearWeight) Estimate(positions, charges []float64) (float64, error) {
	return Centroid(positions, charges)
}

// QuadraticWeight weights each strip by its squared charge.
type QuadraticWeight struct{}

// Method returns Quadratic.
func (QuadraticWeight) Method() Method { return Quadratic }

// Estimate returns the centroid weighted by squared charge.
func (QuadraticWeight) Estimate(positions, charges []float64) (float64, error) {
	w := make([]float64, len(charges))
	floats.MulTo(w, charges, charges)
	return Centroid(positions, w)
}

// LogWeight weights each strip by ln(q / q_ref), where q_ref is
// RefFraction times the largest charge in the cluster. Strips at or below
// q_ref get weight 0 and so drop out of the sum instead of pulling it with
// a negative weight.
type LogWeight struct {
	RefFraction float64
}

// DefaultLogRefFraction puts the logarithmic cut at 5% of the cluster
// maximum.
const DefaultLogRefFraction = 0.05

// Method returns Logarithmic.
func (LogWeight) Method() Method { return Logarithmic }

// Estimate returns the log-weighted centroid. A cluster with no positive
// charge has no defined position.
func (l LogWeight) Estimate(positions, charges []float64) (float64, error) {
	if len(charges) == 0 {
		return math.NaN(), fmt.Errorf("%w: empty cluster", ErrUndefinedPosition)
	}
	frac := l.RefFraction
	if frac == 0 {
		frac = DefaultLogRefFraction
	}
	qmax := floats.Max(charges)
	if !(qmax > 0) {
		return math.NaN(), fmt.Errorf("%w: no positive charge", ErrUndefinedPosition)
	}
	ref := frac * qmax
	return Centroid(positions, LogWeights(charges, ref))
}

// LogWeights returns max(0, ln(q/ref)) per charge. Non-positive charges
// and charges at or below ref get 0.
func LogWeights(charges []float64, ref float64) []float64 {
	w := make([]float64, len(charges))
	for i, q := range charges {
		if q <= ref || q <= 0 {
			continue
		}
		lw := math.Log(q / ref)
		if lw > 0 && !math.IsInf(lw, 0) {
			w[i] = lw
		}
	}
	return w
}

// Default returns the three estimators in Methods order.
func Default(logRefFraction float64) []Estimator {
	return []Estimator{LinearWeight{}, QuadraticWeight{}, LogWeight{RefFraction: logRefFraction}}
}
