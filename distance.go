package riac

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// DistanceMetric provides distance computation with a reduced distance for
// tree pruning (e.g. squared Euclidean skips the sqrt). Reduced distances
// are monotonic in the true distance.
type DistanceMetric interface {
	Distance(a, b []float64) float64
	ReducedDistance(a, b []float64) float64
	// DistToRdist converts a true distance to reduced-distance space.
	DistToRdist(d float64) float64
	// RdistToDist converts a reduced distance back to a true distance.
	RdistToDist(r float64) float64
	// P is the Minkowski exponent of the metric (+Inf for Chebyshev).
	P() float64
}

// EuclideanMetric computes the Euclidean (L2) distance.
// ReducedDistance returns squared Euclidean distance.
type EuclideanMetric struct{}

func (EuclideanMetric) Distance(a, b []float64) float64 {
	return math.Sqrt(euclideanSumOfSquares(a, b))
}

func (EuclideanMetric) ReducedDistance(a, b []float64) float64 {
	return euclideanSumOfSquares(a, b)
}

func (EuclideanMetric) DistToRdist(d float64) float64 { return d * d }
func (EuclideanMetric) RdistToDist(r float64) float64 { return math.Sqrt(r) }
func (EuclideanMetric) P() float64                    { return 2 }

func euclideanSumOfSquares(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// ManhattanMetric computes the Manhattan (L1 / city-block) distance.
type ManhattanMetric struct{}

func (ManhattanMetric) Distance(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += math.Abs(a[i] - b[i])
	}
	return sum
}

func (m ManhattanMetric) ReducedDistance(a, b []float64) float64 { return m.Distance(a, b) }
func (ManhattanMetric) DistToRdist(d float64) float64            { return d }
func (ManhattanMetric) RdistToDist(r float64) float64            { return r }
func (ManhattanMetric) P() float64                               { return 1 }

// ChebyshevMetric computes the Chebyshev (L-infinity) distance.
type ChebyshevMetric struct{}

func (ChebyshevMetric) Distance(a, b []float64) float64 {
	var maxVal float64
	for i := range a {
		if v := math.Abs(a[i] - b[i]); v > maxVal {
			maxVal = v
		}
	}
	return maxVal
}

func (m ChebyshevMetric) ReducedDistance(a, b []float64) float64 { return m.Distance(a, b) }
func (ChebyshevMetric) DistToRdist(d float64) float64            { return d }
func (ChebyshevMetric) RdistToDist(r float64) float64            { return r }
func (ChebyshevMetric) P() float64                               { return math.Inf(1) }

// MinkowskiMetric computes the Minkowski distance parameterized by Exp,
// which must be >= 1.
// ReducedDistance returns sum(|a[i]-b[i]|^Exp) without the final root.
type MinkowskiMetric struct {
	Exp float64
}

func (m MinkowskiMetric) Distance(a, b []float64) float64 {
	return floats.Distance(a, b, m.Exp)
}

func (m MinkowskiMetric) ReducedDistance(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += math.Pow(math.Abs(a[i]-b[i]), m.Exp)
	}
	return sum
}

func (m MinkowskiMetric) DistToRdist(d float64) float64 { return math.Pow(d, m.Exp) }
func (m MinkowskiMetric) RdistToDist(r float64) float64 { return math.Pow(r, 1/m.Exp) }
func (m MinkowskiMetric) P() float64                    { return m.Exp }

// MetricForP returns the metric for the Minkowski p-norm. p = 0 selects the
// Euclidean metric. Returns ErrInvalidNorm for p < 1 or NaN.
func MetricForP(p float64) (DistanceMetric, error) {
	switch {
	case p == 0 || p == 2:
		return EuclideanMetric{}, nil
	case p == 1:
		return ManhattanMetric{}, nil
	case math.IsInf(p, 1):
		return ChebyshevMetric{}, nil
	case p > 1:
		return MinkowskiMetric{Exp: p}, nil
	}
	return nil, ErrInvalidNorm
}

// MinkowskiDistance returns the p-norm distance between a and b, with
// p = +Inf meaning the Chebyshev distance.
func MinkowskiDistance(a, b []float64, p float64) float64 {
	return floats.Distance(a, b, p)
}

// minRdistBox returns a lower bound in reduced-distance space on the
// distance between point and any point of the box [lo, hi].
func minRdistBox(m DistanceMetric, lo, hi, point []float64) float64 {
	p := m.P()
	var rdist float64
	for j := range point {
		var d float64
		if point[j] < lo[j] {
			d = lo[j] - point[j]
		} else if point[j] > hi[j] {
			d = point[j] - hi[j]
		}
		switch {
		case math.IsInf(p, 1):
			rdist = math.Max(rdist, d)
		case p == 1:
			rdist += d
		case p == 2:
			rdist += d * d
		default:
			rdist += math.Pow(d, p)
		}
	}
	return rdist
}

// CosineSimilarity returns a·b / (|a| |b|). It returns 0 when either vector
// is zero or the lengths differ.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}
	na, nb := floats.Norm(a, 2), floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 0
	}
	return floats.Dot(a, b) / (na * nb)
}
