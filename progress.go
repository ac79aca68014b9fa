package riac

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// progressFunc estimates learning progress from a window of competence
// values ordered oldest first. The window has at least 2 values.
type progressFunc func(window []float64) float64

func progressMeasureFunc(m ProgressMeasure) (progressFunc, error) {
	switch m {
	case ProgressAbsDerivCov:
		return absDerivCov, nil
	case ProgressAbsDeriv:
		return absDeriv, nil
	case ProgressAbsDerivSmooth:
		return absDerivSmooth, nil
	case ProgressBoundedSmooth:
		return boundedSmooth, nil
	}
	return nil, configErrorf("unknown ProgressMeasure %q", m)
}

// progressOf returns the progress over the most recent ProgressWinSize
// points of idxs, which must be in ascending order. Fewer than two points
// have no progress.
func (t *Tree) progressOf(idxs []int) float64 {
	if len(idxs) <= 1 {
		return 0
	}
	idxs = idxs[max(len(idxs)-t.cfg.ProgressWinSize, 0):]
	window := make([]float64, len(idxs))
	for i, idx := range idxs {
		window[i] = t.store.Competence(idx)
	}
	if len(window) < 2 {
		return 0
	}
	return t.progress(window)
}

// ProgressOf computes measure over a competence window ordered oldest
// first, using all of it.
func ProgressOf(measure ProgressMeasure, window []float64) (float64, error) {
	f, err := progressMeasureFunc(measure)
	if err != nil {
		return 0, err
	}
	if len(window) < 2 {
		return 0, nil
	}
	return f(window), nil
}

// absDerivCov is |cov(position, competence)| with the unbiased estimator.
func absDerivCov(window []float64) float64 {
	pos := make([]float64, len(window))
	for i := range pos {
		pos[i] = float64(i)
	}
	return math.Abs(stat.Covariance(pos, window, nil))
}

func absDeriv(window []float64) float64 {
	var sum float64
	for i := 1; i < len(window); i++ {
		sum += window[i] - window[i-1]
	}
	return math.Abs(sum / float64(len(window)-1))
}

func halfDiff(window []float64) float64 {
	h := len(window) / 2
	return stat.Mean(window[h:], nil) - stat.Mean(window[:h], nil)
}

func absDerivSmooth(window []float64) float64 { return math.Abs(halfDiff(window)) }

func boundedSmooth(window []float64) float64 { return (halfDiff(window) + 1) / 4 }
