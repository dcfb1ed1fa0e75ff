package datasets

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/interp"
	"gonum.org/v1/gonum/stat/distuv"
)

// This file provides the charge profile sources consumed by the strip
// sampler. Both are centred on 0, non-negative and normalized to unit
// charge; they satisfy detector.Profile (and GaussianProfile also
// detector.CumulativeProfile) without importing it.
//
// SplineProfile
//   - not-a-knot cubic spline through a measured x projection
//   - recentred on its own charge centroid so that a cloud "at c" has its
//     centroid at c
//   - negative overshoot between knots is clamped to 0
//
// GaussianProfile
//   - analytic N(0, σ), σ typically taken from FitGaussian

// ResampleFactor is how many spline points are produced per measured bin
// when a dense profile is needed.
const ResampleFactor = 50

// normSamples is the number of points used to compute the spline's
// centroid and normalization.
const normSamples = 4096

// SplineProfile is a cubic-spline interpolation of a measured projection.
type SplineProfile struct {
	spline   interp.NotAKnotCubic
	centroid float64
	norm     float64
	lo, hi   float64 // support in original coordinates
	n        int     // number of knots
}

// NewSplineProfile fits a cubic spline through p. It needs at least four
// strictly increasing samples.
func NewSplineProfile(p Projection) (*SplineProfile, error) {
	if p.Len() < 4 || len(p.Density) != p.Len() {
		return nil, fmt.Errorf("%w: spline needs at least 4 samples, got %d", ErrInputFormat, p.Len())
	}
	for i := 1; i < p.Len(); i++ {
		if p.X[i] <= p.X[i-1] {
			return nil, fmt.Errorf("%w: projection x must be strictly increasing (index %d)", ErrInputFormat, i)
		}
	}

	s := &SplineProfile{lo: p.X[0], hi: p.X[p.Len()-1], n: p.Len(), norm: 1}
	if err := s.spline.Fit(p.X, p.Density); err != nil {
		return nil, fmt.Errorf("fit spline: %w", err)
	}

	xs := make([]float64, normSamples)
	floats.Span(xs, s.lo, s.hi)
	fs := make([]float64, normSamples)
	xfs := make([]float64, normSamples)
	for i, x := range xs {
		fs[i] = s.raw(x)
		xfs[i] = x * fs[i]
	}
	total := integrate.Trapezoidal(xs, fs)
	if !(total > 0) {
		return nil, fmt.Errorf("%w: interpolated charge must be positive, got %v", ErrInputFormat, total)
	}
	s.norm = total
	s.centroid = integrate.Trapezoidal(xs, xfs) / total
	return s, nil
}

// raw evaluates the clamped spline in original coordinates.
func (s *SplineProfile) raw(x float64) float64 {
	if x < s.lo || x > s.hi {
		return 0
	}
	v := s.spline.Predict(x)
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	return v
}

// Density returns the normalized density at offset x from the centroid.
func (s *SplineProfile) Density(x float64) float64 {
	return s.raw(x+s.centroid) / s.norm
}

// Support returns the offsets covered by the measured projection.
func (s *SplineProfile) Support() (float64, float64) {
	return s.lo - s.centroid, s.hi - s.centroid
}

// Centroid returns the charge centroid of the measured projection in its
// original coordinates.
func (s *SplineProfile) Centroid() float64 { return s.centroid }

// Resample evaluates the profile on ResampleFactor points per measured bin
// across the support, in original coordinates, and renormalizes the
// samples so that they integrate to 1. It is the dense charge cloud sample
// used for plotting and inspection.
func (s *SplineProfile) Resample() Projection {
	n := ResampleFactor * s.n
	xs := make([]float64, n)
	floats.Span(xs, s.lo, s.hi)
	ds := make([]float64, n)
	for i, x := range xs {
		ds[i] = s.raw(x)
	}
	if total := integrate.Trapezoidal(xs, ds); total > 0 {
		floats.Scale(1/total, ds)
	}
	return Projection{X: xs, Density: ds}
}

// GaussianSupport is the half-width of GaussianProfile's support in
// standard deviations.
const GaussianSupport = 8.0

// GaussianProfile is a normal charge density centred on 0.
type GaussianProfile struct {
	Sigma float64
}

// NewGaussianProfile returns a Gaussian profile of width sigma.
func NewGaussianProfile(sigma float64) (*GaussianProfile, error) {
	if !(sigma > 0) || math.IsInf(sigma, 0) {
		return nil, fmt.Errorf("gaussian profile sigma must be finite and > 0, got %v", sigma)
	}
	return &GaussianProfile{Sigma: sigma}, nil
}

func (g *GaussianProfile) dist() distuv.Normal {
	return distuv.Normal{Mu: 0, Sigma: g.Sigma}
}

// Density returns the normal pdf at x.
func (g *GaussianProfile) Density(x float64) float64 { return g.dist().Prob(x) }

// CDF returns the normal cumulative distribution at x.
func (g *GaussianProfile) CDF(x float64) float64 { return g.dist().CDF(x) }

// Support returns ±GaussianSupport·σ.
func (g *GaussianProfile) Support() (float64, float64) {
	return -GaussianSupport * g.Sigma, GaussianSupport * g.Sigma
}
