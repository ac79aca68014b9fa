package riac

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// Sample draws a goal using the tree's configured sampling mode. The point
// always lies inside the root bounds, even before any data is inserted.
func (t *Tree) Sample() []float64 {
	p, _ := t.SampleWith(t.cfg.Sampling)
	return p
}

// SampleWith draws a goal using s instead of the configured sampling mode.
// Returns an error wrapping ErrUnknownSamplingMode if s is invalid.
func (t *Tree) SampleWith(s Sampling) ([]float64, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}
	id := t.chooseRegion(rootID, s)
	p := t.SampleRegion(id)
	t.observer.Observe(Event{Kind: EventSample, Node: id, Mode: s.Mode, Point: p})
	return p, nil
}

// SampleRegion draws a uniform point inside region id.
func (t *Tree) SampleRegion(id NodeID) []float64 {
	return t.nodes[id].bounds.sample(t.rng)
}

// chooseRegion picks the region to sample from in the subtree rooted at id.
func (t *Tree) chooseRegion(id NodeID, s Sampling) NodeID {
	switch s.Mode {
	case SampleRandom:
		return t.chooseRandom(id, s)
	case SampleGreedy:
		return t.chooseGreedy(id, s)
	case SampleEpsilonGreedy:
		return t.chooseEpsilonGreedy(id, s)
	case SampleSoftmax:
		return t.chooseSoftmax(id, s)
	}
	panic("riac: unreachable sampling mode " + string(s.Mode))
}

// chooseRandom picks a leaf at random: by descending with probability
// proportional to each side's share of the split extent when s.Volume is
// set, uniformly among leaves otherwise.
func (t *Tree) chooseRandom(id NodeID, s Sampling) NodeID {
	if !s.Volume {
		leaves := FoldUp(t, id,
			func(_ *Node, lower, greater []NodeID) []NodeID { return append(lower, greater...) },
			func(n *Node) []NodeID { return []NodeID{n.id} })
		return leaves[t.rng.IntN(len(leaves))]
	}
	n := t.nodes[id]
	for !n.leaf {
		lo, hi := n.bounds.Min[n.splitDim], n.bounds.Max[n.splitDim]
		ratio := 0.5
		if hi > lo {
			ratio = (n.splitValue - lo) / (hi - lo)
		}
		if ratio > t.rng.Float64() {
			n = t.nodes[n.lower]
		} else {
			n = t.nodes[n.greater]
		}
	}
	return n.id
}

// chooseGreedy follows the child with the highest subtree progress, ties
// going to the greater child. With s.Multiscale an internal node whose own
// progress beats both children is chosen directly.
func (t *Tree) chooseGreedy(id NodeID, s Sampling) NodeID {
	n := t.nodes[id]
	for !n.leaf {
		lp := t.nodes[n.lower].maxProgress
		gp := t.nodes[n.greater].maxProgress
		maxp := math.Max(lp, gp)
		if s.Multiscale && n.progress > maxp {
			return n.id
		}
		if gp == maxp {
			n = t.nodes[n.greater]
		} else {
			n = t.nodes[n.lower]
		}
	}
	return n.id
}

func (t *Tree) chooseEpsilonGreedy(id NodeID, s Sampling) NodeID {
	if s.Param > t.rng.Float64() {
		t.observer.Observe(Event{Kind: EventRandomBranch, Node: id, Mode: SampleEpsilonGreedy})
		return t.chooseRandom(id, s)
	}
	return t.chooseGreedy(id, s)
}

// chooseSoftmax draws a region with probability exp(w / (max(w) * T)),
// where w is the region's progress (times its volume with s.Volume).
// Candidates are the leaves, or every node with s.Multiscale. Degenerate
// weights (no progress anywhere yet) fall back to epsilon-greedy.
func (t *Tree) chooseSoftmax(id NodeID, s Sampling) NodeID {
	if t.nodes[id].leaf {
		return id
	}

	var candidates []NodeID
	if s.Multiscale {
		candidates = FoldUp(t, id,
			func(n *Node, lower, greater []NodeID) []NodeID {
				return append(append(lower, greater...), n.id)
			},
			func(n *Node) []NodeID { return []NodeID{n.id} })
	} else {
		candidates = FoldUp(t, id,
			func(_ *Node, lower, greater []NodeID) []NodeID { return append(lower, greater...) },
			func(n *Node) []NodeID { return []NodeID{n.id} })
	}

	weights := make([]float64, len(candidates))
	for i, c := range candidates {
		n := t.nodes[c]
		weights[i] = n.progress
		if s.Volume {
			weights[i] *= n.volume
		}
	}

	probas, ok := softmaxProbabilities(weights, s.Param)
	if !ok {
		t.logger.Debug("riac: softmax weights degenerate, falling back to epsilon-greedy",
			"node", id, "candidates", len(candidates))
		t.observer.Observe(Event{Kind: EventSoftmaxFallback, Node: id, Mode: SampleSoftmax})
		fallback := s
		fallback.Mode = SampleEpsilonGreedy
		fallback.Param = defaultFallbackEpsilon
		return t.chooseEpsilonGreedy(id, fallback)
	}

	cat := distuv.NewCategorical(probas, t.src)
	return candidates[int(cat.Rand())]
}

// softmaxProbabilities returns exp(w / (max(w) * temperature)) normalized
// to sum 1. ok is false when the normalization is undefined, e.g. every
// weight is zero.
func softmaxProbabilities(weights []float64, temperature float64) (probas []float64, ok bool) {
	wmax := math.Inf(-1)
	for _, w := range weights {
		wmax = math.Max(wmax, w)
	}
	probas = make([]float64, len(weights))
	var sum float64
	for i, w := range weights {
		probas[i] = math.Exp(w / (wmax * temperature))
		sum += probas[i]
	}
	var total float64
	for i := range probas {
		probas[i] /= sum
		total += probas[i]
	}
	if math.IsNaN(total) {
		return nil, false
	}
	return probas, true
}
