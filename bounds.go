package riac

import (
	"math"
	"math/rand/v2"
)

// Bounds is an axis-aligned box: Min[d] <= x[d] <= Max[d] for every
// dimension d.
type Bounds struct {
	Min []float64 `json:"min" yaml:"min"`
	Max []float64 `json:"max" yaml:"max"`
}

// Dims returns the dimensionality of the box.
func (b Bounds) Dims() int { return len(b.Min) }

// Clone returns a deep copy of b.
func (b Bounds) Clone() Bounds {
	return Bounds{
		Min: append([]float64(nil), b.Min...),
		Max: append([]float64(nil), b.Max...),
	}
}

// Volume returns the product of the per-dimension extents.
func (b Bounds) Volume() float64 {
	v := 1.0
	for d := range b.Min {
		v *= b.Max[d] - b.Min[d]
	}
	return v
}

// Contains reports whether x lies inside the closed box.
func (b Bounds) Contains(x []float64) bool {
	if len(x) != len(b.Min) {
		return false
	}
	for d, v := range x {
		if v < b.Min[d] || v > b.Max[d] {
			return false
		}
	}
	return true
}

func (b Bounds) validate() error {
	if len(b.Min) == 0 {
		return configErrorf("bounds must have at least one dimension")
	}
	if len(b.Min) != len(b.Max) {
		return configErrorf("bounds Min has %d dims but Max has %d", len(b.Min), len(b.Max))
	}
	for d := range b.Min {
		lo, hi := b.Min[d], b.Max[d]
		if math.IsNaN(lo) || math.IsNaN(hi) || math.IsInf(lo, 0) || math.IsInf(hi, 0) {
			return configErrorf("bounds on dim %d must be finite, got [%v, %v]", d, lo, hi)
		}
		if lo > hi {
			return configErrorf("bounds on dim %d have Min %v > Max %v", d, lo, hi)
		}
	}
	return nil
}

// sample draws a uniform random point inside the box.
func (b Bounds) sample(rng *rand.Rand) []float64 {
	x := make([]float64, len(b.Min))
	for d := range x {
		x[d] = b.Min[d] + rng.Float64()*(b.Max[d]-b.Min[d])
	}
	return x
}

// splitAt returns the two halves of b cut at value along dim. The cut is
// clamped into the box so both halves stay valid even when value lies
// outside it.
func (b Bounds) splitAt(dim int, value float64) (lower, greater Bounds) {
	cut := math.Min(math.Max(value, b.Min[dim]), b.Max[dim])
	lower = b.Clone()
	lower.Max[dim] = cut
	greater = b.Clone()
	greater.Min[dim] = cut
	return lower, greater
}
