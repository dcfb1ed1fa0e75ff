package detector

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/floats/scalar"
)

// ErrInvalidGeometry is wrapped by every grid construction failure.
var ErrInvalidGeometry = errors.New("invalid strip geometry")

// spacingTol is the relative tolerance used when checking that an explicit
// position list is uniformly spaced.
const spacingTol = 1e-9

// Grid is the ordered, uniformly spaced set of strip centres. It is
// immutable once constructed; accessors hand out copies.
type Grid struct {
	positions []float64
	pitch     float64
}

// NewGrid builds the strip centres first, first+pitch, ... strictly below
// last (half-open, like numpy.arange).
func NewGrid(first, last, pitch float64) (*Grid, error) {
	positions, err := Arange(first, last, pitch)
	if err != nil {
		return nil, err
	}
	return &Grid{positions: positions, pitch: pitch}, nil
}

// GridFromPositions wraps an explicit list of strip centres after checking
// that it is strictly increasing with uniform spacing.
func GridFromPositions(positions []float64) (*Grid, error) {
	if len(positions) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 strips, got %d", ErrInvalidGeometry, len(positions))
	}
	if floats.HasNaN(positions) {
		return nil, fmt.Errorf("%w: strip positions contain NaN", ErrInvalidGeometry)
	}
	pitch := positions[1] - positions[0]
	if pitch <= 0 {
		return nil, fmt.Errorf("%w: strip positions must be strictly increasing", ErrInvalidGeometry)
	}
	for i := 1; i < len(positions); i++ {
		d := positions[i] - positions[i-1]
		if d <= 0 {
			return nil, fmt.Errorf("%w: strip positions not strictly increasing at index %d", ErrInvalidGeometry, i)
		}
		if !scalar.EqualWithinRel(d, pitch, spacingTol) {
			return nil, fmt.Errorf("%w: non-uniform spacing at index %d (%v != %v)", ErrInvalidGeometry, i, d, pitch)
		}
	}
	cp := make([]float64, len(positions))
	copy(cp, positions)
	return &Grid{positions: cp, pitch: pitch}, nil
}

// Arange returns first, first+step, ... strictly below last. Each value is
// computed from its index so that long sweeps do not accumulate rounding
// error.
func Arange(first, last, step float64) ([]float64, error) {
	if math.IsNaN(first) || math.IsNaN(last) || math.IsInf(first, 0) || math.IsInf(last, 0) {
		return nil, fmt.Errorf("%w: bounds must be finite, got [%v, %v)", ErrInvalidGeometry, first, last)
	}
	if !(step > 0) || math.IsInf(step, 0) {
		return nil, fmt.Errorf("%w: step must be > 0, got %v", ErrInvalidGeometry, step)
	}
	if last <= first {
		return nil, fmt.Errorf("%w: empty range [%v, %v)", ErrInvalidGeometry, first, last)
	}
	n := int(math.Ceil((last - first) / step))
	out := make([]float64, n)
	if n == 1 {
		out[0] = first
		return out, nil
	}
	floats.Span(out, first, first+float64(n-1)*step)
	return out, nil
}

// Len returns the number of strips.
func (g *Grid) Len() int { return len(g.positions) }

// Pitch returns the strip spacing.
func (g *Grid) Pitch() float64 { return g.pitch }

// Position returns the centre of strip i.
func (g *Grid) Position(i int) float64 { return g.positions[i] }

// Positions returns a copy of all strip centres.
func (g *Grid) Positions() []float64 {
	cp := make([]float64, len(g.positions))
	copy(cp, g.positions)
	return cp
}

// Span returns the positions of strips [start, start+n).
func (g *Grid) Span(start, n int) []float64 {
	cp := make([]float64, n)
	copy(cp, g.positions[start:start+n])
	return cp
}
