package detector

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// NoiseInjector adds independent Gaussian electronic noise to strip charges.
// It draws from the generator it was built with, so a trial that owns its
// generator owns its noise sequence.
type NoiseInjector struct {
	dist distuv.Normal
}

// NewNoiseInjector returns an injector drawing N(0, sigma) from src.
func NewNoiseInjector(sigma float64, src rand.Source) (*NoiseInjector, error) {
	if sigma < 0 {
		return nil, fmt.Errorf("noise standard deviation must be >= 0, got %v", sigma)
	}
	if src == nil {
		return nil, fmt.Errorf("noise injector needs a random source")
	}
	return &NoiseInjector{dist: distuv.Normal{Mu: 0, Sigma: sigma, Src: src}}, nil
}

// Sigma returns the noise standard deviation.
func (n *NoiseInjector) Sigma() float64 { return n.dist.Sigma }

// Inject returns a new reading nominal[i] + noise. Exactly one normal
// variate is drawn per strip, in strip order, even when sigma is 0, so the
// generator advances identically whatever the noise level.
func (n *NoiseInjector) Inject(nominal []float64) []float64 {
	out := make([]float64, len(nominal))
	for i, q := range nominal {
		out[i] = q + n.dist.Rand()
	}
	return out
}
