package detector

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/integrate"
)

// Profile is the continuous charge density of a cloud centred at 0. The
// sampler only needs to evaluate it; how it was built (interpolation of a
// measured projection, an analytic fit, ...) is up to the caller.
type Profile interface {
	// Density returns the normalized charge density at offset x from the
	// cloud centre. It must be non-negative.
	Density(x float64) float64

	// Support returns the offsets outside of which Density is zero.
	Support() (lo, hi float64)
}

// CumulativeProfile is implemented by profiles with a closed-form
// cumulative distribution. The sampler then integrates strips exactly.
type CumulativeProfile interface {
	Profile
	CDF(x float64) float64
}

// Sampler turns a cloud centre into the nominal charge seen by each strip:
// the profile integrated over the strip's width.
type Sampler struct {
	Grid       *Grid
	Profile    Profile
	StripWidth float64

	// SamplesPerStrip is the number of points used by the trapezoidal rule
	// when the profile has no CDF.
	SamplesPerStrip int
}

// NewSampler validates its inputs and returns a ready Sampler.
func NewSampler(grid *Grid, profile Profile, stripWidth float64, samplesPerStrip int) (*Sampler, error) {
	if grid == nil || grid.Len() == 0 {
		return nil, fmt.Errorf("%w: sampler needs a non-empty grid", ErrInvalidGeometry)
	}
	if profile == nil {
		return nil, fmt.Errorf("sampler needs a charge profile")
	}
	if !(stripWidth > 0) {
		return nil, fmt.Errorf("%w: strip width must be > 0, got %v", ErrInvalidGeometry, stripWidth)
	}
	if samplesPerStrip < 2 {
		return nil, fmt.Errorf("samples per strip must be >= 2, got %d", samplesPerStrip)
	}
	return &Sampler{
		Grid:            grid,
		Profile:         profile,
		StripWidth:      stripWidth,
		SamplesPerStrip: samplesPerStrip,
	}, nil
}

// Sample returns one nominal charge per strip for a cloud centred at
// center. Strips whose window misses the profile support get 0.
func (s *Sampler) Sample(center float64) []float64 {
	out := make([]float64, s.Grid.Len())
	lo, hi := s.Profile.Support()
	cum, exact := s.Profile.(CumulativeProfile)

	// scratch buffers reused across strips
	xs := make([]float64, s.SamplesPerStrip)
	fs := make([]float64, s.SamplesPerStrip)

	half := s.StripWidth / 2
	for i := range out {
		p := s.Grid.Position(i)
		a := p - half - center
		b := p + half - center
		if a < lo {
			a = lo
		}
		if b > hi {
			b = hi
		}
		if b <= a {
			continue
		}
		if exact {
			out[i] = cum.CDF(b) - cum.CDF(a)
			continue
		}
		floats.Span(xs, a, b)
		for j, x := range xs {
			fs[j] = s.Profile.Density(x)
		}
		out[i] = integrate.Trapezoidal(xs, fs)
	}
	return out
}
