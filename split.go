package riac

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"
)

// splitFunc chooses the split value of a full leaf on its split dimension.
type splitFunc func(t *Tree, n *Node) float64

// degenerateCosSimVariance stands in for the variance of a child with fewer
// than two outcomes, so splits that isolate single points score poorly.
const degenerateCosSimVariance = 100

func splitFuncFor(m SplitMode) (splitFunc, error) {
	switch m {
	case SplitRandom:
		return splitRandom, nil
	case SplitMedian:
		return splitMedian, nil
	case SplitMiddle:
		return splitMiddle, nil
	case SplitBestInterestDiff:
		return splitBestInterestDiff, nil
	case SplitVarianceOfCosSim:
		return splitVarianceOfCosSim, nil
	}
	return nil, configErrorf("unknown SplitMode %q", m)
}

// dimValues returns the members' coordinates on the node's split dimension,
// in member order.
func (t *Tree) dimValues(n *Node) []float64 {
	vals := make([]float64, len(n.members))
	for i, idx := range n.members {
		vals[i] = t.store.coord(idx, n.splitDim)
	}
	return vals
}

func splitRandom(t *Tree, n *Node) float64 {
	vals := t.dimValues(n)
	lo, hi := slices.Min(vals), slices.Max(vals)
	return lo + t.splitRng.Float64()*(hi-lo)
}

func splitMedian(t *Tree, n *Node) float64 {
	vals := t.dimValues(n)
	slices.Sort(vals)
	m := len(vals) / 2
	if len(vals)%2 == 1 {
		return vals[m]
	}
	return (vals[m-1] + vals[m]) / 2
}

// splitMiddle cuts the region box in half. One child may end up empty.
func splitMiddle(_ *Tree, n *Node) float64 {
	return (n.bounds.Min[n.splitDim] + n.bounds.Max[n.splitDim]) / 2
}

// midpoints returns the midpoints between consecutive sorted values.
func midpoints(vals []float64) []float64 {
	sorted := slices.Clone(vals)
	slices.Sort(sorted)
	out := make([]float64, 0, max(len(sorted)-1, 0))
	for i := 1; i < len(sorted); i++ {
		out = append(out, (sorted[i-1]+sorted[i])/2)
	}
	return out
}

// partition splits members by vals[i] <= value. Both halves keep member
// order.
func partition(members []int, vals []float64, value float64) (lower, greater []int) {
	for i, idx := range members {
		if vals[i] <= value {
			lower = append(lower, idx)
		} else {
			greater = append(greater, idx)
		}
	}
	return lower, greater
}

// splitBestInterestDiff maximizes card(lower)*card(greater)*|progress
// difference| over candidate values. An overfull region (built with more
// points than the limit) draws MaxPointsPerRegion random candidates between
// the extreme coordinates; otherwise the candidates are the midpoints
// between consecutive coordinates.
func splitBestInterestDiff(t *Tree, n *Node) float64 {
	vals := t.dimValues(n)

	var candidates []float64
	if len(n.members) > t.cfg.MaxPointsPerRegion {
		lo, hi := slices.Min(vals), slices.Max(vals)
		candidates = make([]float64, t.cfg.MaxPointsPerRegion)
		for i := range candidates {
			candidates[i] = lo + t.splitRng.Float64()*(hi-lo)
		}
	} else {
		candidates = midpoints(vals)
	}
	if len(candidates) == 0 {
		return vals[0]
	}

	scores := scoreCandidates(len(candidates), t.cfg.Workers, func(i int) float64 {
		lower, greater := partition(n.members, vals, candidates[i])
		diff := math.Abs(t.progressOf(lower) - t.progressOf(greater))
		return float64(len(lower)) * float64(len(greater)) * diff
	})
	return candidates[argmax(scores)]
}

// splitVarianceOfCosSim prefers candidates whose children each hold
// outcomes that look alike: fitness is
// card(lower)*card(greater) / (var(lower) + var(greater)), where var is the
// variance of the pairwise cosine similarities between a child's outcomes.
func splitVarianceOfCosSim(t *Tree, n *Node) float64 {
	vals := t.dimValues(n)
	candidates := midpoints(vals)
	if len(candidates) == 0 {
		return vals[0]
	}

	// Pairwise similarities between members, by member position.
	m := len(n.members)
	sims := make([]float64, m*m)
	for i := 0; i < m; i++ {
		oi := t.store.Outcome(n.members[i])
		for j := i + 1; j < m; j++ {
			s := CosineSimilarity(oi, t.store.Outcome(n.members[j]))
			sims[i*m+j] = s
			sims[j*m+i] = s
		}
	}

	variance := func(pos []int) float64 {
		if len(pos) < 2 {
			return degenerateCosSimVariance
		}
		pairs := make([]float64, 0, len(pos)*(len(pos)-1)/2)
		for a := 0; a < len(pos); a++ {
			for b := a + 1; b < len(pos); b++ {
				pairs = append(pairs, sims[pos[a]*m+pos[b]])
			}
		}
		return stat.PopVariance(pairs, nil)
	}

	scores := scoreCandidates(len(candidates), t.cfg.Workers, func(c int) float64 {
		var lower, greater []int
		for i, v := range vals {
			if v <= candidates[c] {
				lower = append(lower, i)
			} else {
				greater = append(greater, i)
			}
		}
		return float64(len(lower)) * float64(len(greater)) / (variance(lower) + variance(greater))
	})
	return candidates[argmax(scores)]
}
