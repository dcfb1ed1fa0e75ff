package datasets

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// ErrInputFormat is wrapped by every failure to parse an electron cloud
// file. It is fatal and only raised at load time.
var ErrInputFormat = errors.New("malformed electron cloud data")

// CoordinateScale converts the simulation's coordinates to the analysis
// unit (x and y are divided by it on load).
const CoordinateScale = 1000.0

// Deposit is one row of a Garfield++ electron cloud dump: where the charge
// landed and how much of it.
type Deposit struct {
	X float64
	Y float64
	E float64
}

// Cloud is an electron cloud loaded from a whitespace-delimited
// three-column file (x, y, energy).
type Cloud struct {
	// Path of the file the cloud was loaded from (empty for readers).
	Path string

	Deposits []Deposit
}

// LoadCloud reads and rescales an electron cloud file.
func LoadCloud(path string) (*Cloud, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cloud file %s: %w", path, err)
	}
	defer f.Close()

	c, err := ReadCloud(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	c.Path = path
	return c, nil
}

// ReadCloud parses cloud rows from r. Blank lines and lines starting with
// '#' are skipped; every other line must hold exactly three numbers.
func ReadCloud(r io.Reader) (*Cloud, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	c := &Cloud{}
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) != 3 {
			return nil, fmt.Errorf("%w: line %d: expected 3 columns, got %d", ErrInputFormat, line, len(fields))
		}
		var vals [3]float64
		for i, field := range fields {
			v, err := parseFloat64(field)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d column %d: %v", ErrInputFormat, line, i+1, err)
			}
			vals[i] = v
		}
		c.Deposits = append(c.Deposits, Deposit{
			X: vals[0] / CoordinateScale,
			Y: vals[1] / CoordinateScale,
			E: vals[2],
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInputFormat, err)
	}
	if len(c.Deposits) == 0 {
		return nil, fmt.Errorf("%w: no data rows", ErrInputFormat)
	}
	return c, nil
}

// Len returns the number of deposits.
func (c *Cloud) Len() int { return len(c.Deposits) }

// Bounds returns the x and y extent of the cloud.
func (c *Cloud) Bounds() (xmin, xmax, ymin, ymax float64) {
	if len(c.Deposits) == 0 {
		return 0, 0, 0, 0
	}
	d0 := c.Deposits[0]
	xmin, xmax, ymin, ymax = d0.X, d0.X, d0.Y, d0.Y
	for _, d := range c.Deposits[1:] {
		xmin = min(xmin, d.X)
		xmax = max(xmax, d.X)
		ymin = min(ymin, d.Y)
		ymax = max(ymax, d.Y)
	}
	return xmin, xmax, ymin, ymax
}

// DistinctX returns the number of distinct x coordinates, which is the
// number of bins of the x projection.
func (c *Cloud) DistinctX() int {
	seen := make(map[float64]struct{}, len(c.Deposits))
	for _, d := range c.Deposits {
		seen[d.X] = struct{}{}
	}
	return len(seen)
}

// Projection is a charge density sampled on increasing offsets.
type Projection struct {
	X       []float64
	Density []float64
}

// Len returns the number of samples.
func (p Projection) Len() int { return len(p.X) }

// XProjection sums the energy of all deposits sharing an x coordinate and
// normalizes the result so that Σ density·bin = 1, with bin the spacing of
// the first two x values.
func (c *Cloud) XProjection() (Projection, error) {
	sums := make(map[float64]float64)
	for _, d := range c.Deposits {
		sums[d.X] += d.E
	}
	if len(sums) < 2 {
		return Projection{}, fmt.Errorf("%w: x projection needs at least 2 distinct x values, got %d", ErrInputFormat, len(sums))
	}

	xs := make([]float64, 0, len(sums))
	for x := range sums {
		xs = append(xs, x)
	}
	sort.Float64s(xs)

	bin := xs[1] - xs[0]
	var total float64
	density := make([]float64, len(xs))
	for i, x := range xs {
		density[i] = sums[x]
		total += density[i] * bin
	}
	if !(total > 0) {
		return Projection{}, fmt.Errorf("%w: projected charge must be positive, got %v", ErrInputFormat, total)
	}
	for i := range density {
		density[i] /= total
	}
	return Projection{X: xs, Density: density}, nil
}
