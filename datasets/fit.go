package datasets

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// GaussianFit is the least-squares fit of a normal density to a
// projection.
type GaussianFit struct {
	Mean  float64
	Sigma float64

	// Covariance of (Mean, Sigma), scaled by the residual variance.
	Covariance [2][2]float64

	// Initial guesses taken from the projection's moments.
	MomentMean  float64
	MomentSigma float64

	// SSE is the final sum of squared residuals.
	SSE float64
}

// MeanErr returns the one-sigma uncertainty on Mean.
func (f GaussianFit) MeanErr() float64 { return math.Sqrt(f.Covariance[0][0]) }

// SigmaErr returns the one-sigma uncertainty on Sigma.
func (f GaussianFit) SigmaErr() float64 { return math.Sqrt(f.Covariance[1][1]) }

// Eval returns the fitted density at x.
func (f GaussianFit) Eval(x float64) float64 {
	return normalDensity(x, f.Mean, f.Sigma)
}

func normalDensity(x, x0, sigma float64) float64 {
	sigma = math.Abs(sigma)
	if sigma == 0 {
		return math.Inf(1)
	}
	return distuv.Normal{Mu: x0, Sigma: sigma}.Prob(x)
}

// FitGaussian fits N(x; x0, σ) to the projection by nonlinear least
// squares. The weighted mean and standard deviation of the projection
// seed a Nelder-Mead search.
func FitGaussian(p Projection) (GaussianFit, error) {
	n := p.Len()
	if n < 3 || len(p.Density) != n {
		return GaussianFit{}, fmt.Errorf("gaussian fit needs at least 3 samples, got %d", n)
	}

	mean, std := stat.MeanStdDev(p.X, p.Density)
	// MeanStdDev uses the unbiased weighted estimator; the fit only needs a
	// starting point, so the population form is recovered explicitly.
	variance := stat.MomentAbout(2, p.X, mean, p.Density)
	if variance > 0 {
		std = math.Sqrt(variance)
	}
	if !(std > 0) {
		return GaussianFit{}, fmt.Errorf("gaussian fit: projection has zero spread")
	}

	sse := func(params []float64) float64 {
		if params[1] == 0 {
			return math.Inf(1)
		}
		var sum float64
		for i, x := range p.X {
			r := p.Density[i] - normalDensity(x, params[0], params[1])
			sum += r * r
		}
		return sum
	}

	res, err := optimize.Minimize(optimize.Problem{Func: sse}, []float64{mean, std}, nil, &optimize.NelderMead{})
	if err != nil {
		return GaussianFit{}, fmt.Errorf("gaussian fit: %w", err)
	}
	fit := GaussianFit{
		Mean:        res.X[0],
		Sigma:       math.Abs(res.X[1]),
		MomentMean:  mean,
		MomentSigma: std,
		SSE:         res.F,
	}
	if !(fit.Sigma > 0) || math.IsNaN(fit.Mean) {
		return GaussianFit{}, fmt.Errorf("gaussian fit diverged: mean=%v sigma=%v", fit.Mean, fit.Sigma)
	}
	fit.Covariance = covariance(p, fit)
	return fit, nil
}

// covariance estimates s²(JᵀJ)⁻¹ from a finite-difference Jacobian of the
// residuals. It returns NaN entries when the normal matrix is singular or
// there are no degrees of freedom left.
func covariance(p Projection, fit GaussianFit) [2][2]float64 {
	nan := [2][2]float64{{math.NaN(), math.NaN()}, {math.NaN(), math.NaN()}}
	n := p.Len()
	if n <= 2 {
		return nan
	}

	residuals := func(y, params []float64) {
		for i, x := range p.X {
			y[i] = p.Density[i] - normalDensity(x, params[0], params[1])
		}
	}
	jac := mat.NewDense(n, 2, nil)
	fd.Jacobian(jac, residuals, []float64{fit.Mean, fit.Sigma}, nil)

	var jtj mat.Dense
	jtj.Mul(jac.T(), jac)
	var inv mat.Dense
	if err := inv.Inverse(&jtj); err != nil {
		return nan
	}
	s2 := fit.SSE / float64(n-2)
	var out [2][2]float64
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			out[i][j] = s2 * inv.At(i, j)
		}
	}
	return out
}
