package detector

import (
	"fmt"
	"strings"
)

// Selection decides which run of above-threshold strips becomes the
// cluster when noise produces more than one.
type Selection int

const (
	// SelectCharge keeps the run with the largest summed charge.
	SelectCharge Selection = iota
	// SelectWidth keeps the run with the most strips.
	SelectWidth
	// SelectPeak keeps the run containing the single highest strip.
	SelectPeak
)

func (s Selection) String() string {
	switch s {
	case SelectCharge:
		return "charge"
	case SelectWidth:
		return "width"
	case SelectPeak:
		return "peak"
	}
	return fmt.Sprintf("Selection(%d)", int(s))
}

// ParseSelection maps a configuration string to a Selection.
func ParseSelection(s string) (Selection, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "charge":
		return SelectCharge, nil
	case "width":
		return SelectWidth, nil
	case "peak":
		return SelectPeak, nil
	}
	return 0, fmt.Errorf("unknown cluster selection %q", s)
}

// Cluster is a contiguous run of strips judged to carry signal. The zero
// value is the empty cluster.
type Cluster struct {
	// Start is the index of the first strip.
	Start int
	// Charges holds the noisy charges of strips Start, Start+1, ...
	Charges []float64
}

// Len returns the number of strips in the cluster.
func (c Cluster) Len() int { return len(c.Charges) }

// Empty reports whether no strip crossed the threshold.
func (c Cluster) Empty() bool { return len(c.Charges) == 0 }

// End returns the index one past the last strip.
func (c Cluster) End() int { return c.Start + len(c.Charges) }

// Indices returns the strip indices covered by the cluster.
func (c Cluster) Indices() []int {
	idx := make([]int, len(c.Charges))
	for i := range idx {
		idx[i] = c.Start + i
	}
	return idx
}

// Total returns the summed cluster charge.
func (c Cluster) Total() float64 {
	var sum float64
	for _, q := range c.Charges {
		sum += q
	}
	return sum
}

// Clusterizer separates the real signal from noise-only strips.
type Clusterizer struct {
	// Threshold is the charge a strip must strictly exceed.
	Threshold float64
	Selection Selection
}

// run is a half-open interval [start, end) of candidate strips.
type run struct {
	start, end int
	total      float64
	peak       float64
}

// Find returns the selected cluster for a noisy reading, or an empty
// cluster when nothing crosses the threshold. Ties between runs always go
// to the earliest-starting one.
func (c Clusterizer) Find(reading []float64) Cluster {
	runs := c.runs(reading)
	if len(runs) == 0 {
		return Cluster{}
	}

	best := runs[0]
	for _, r := range runs[1:] {
		if c.better(r, best) {
			best = r
		}
	}

	charges := make([]float64, best.end-best.start)
	copy(charges, reading[best.start:best.end])
	return Cluster{Start: best.start, Charges: charges}
}

// runs lists every maximal run of strips above threshold, left to right.
func (c Clusterizer) runs(reading []float64) []run {
	var out []run
	cur := run{start: -1}
	for i, q := range reading {
		if q > c.Threshold {
			if cur.start < 0 {
				cur = run{start: i, peak: q}
			}
			cur.total += q
			if q > cur.peak {
				cur.peak = q
			}
			cur.end = i + 1
			continue
		}
		if cur.start >= 0 {
			out = append(out, cur)
			cur = run{start: -1}
		}
	}
	if cur.start >= 0 {
		out = append(out, cur)
	}
	return out
}

// better reports whether r strictly beats best under the selection policy.
// Strict comparison keeps the earlier run on ties.
func (c Clusterizer) better(r, best run) bool {
	switch c.Selection {
	case SelectWidth:
		return r.end-r.start > best.end-best.start
	case SelectPeak:
		return r.peak > best.peak
	default:
		return r.total > best.total
	}
}
