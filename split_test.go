package riac

import (
	"math/rand/v2"
	"testing"
)

// unsplitTree returns a tree that never splits on insert, holding one goal
// per entry of xs with the given competences and outcomes.
func unsplitTree(t *testing.T, mode SplitMode, maxPoints, win int, xs, comps []float64, outcomes [][]float64) *Tree {
	t.Helper()
	cfg := testConfig(mode)
	cfg.MaxPointsPerRegion = maxPoints
	cfg.ProgressWinSize = win
	cfg.MaxDepth = 0
	store := NewPointStore(1)
	tree, err := NewTree(store, unitBounds(1), cfg)
	if err != nil {
		t.Fatal(err)
	}
	for i, x := range xs {
		var out []float64
		if outcomes != nil {
			out = outcomes[i]
		}
		idx, _ := store.Append([]float64{x}, out, comps[i])
		if _, err := tree.Insert(idx); err != nil {
			t.Fatal(err)
		}
	}
	return tree
}

func tenPoints() []float64 {
	return []float64{0.05, 0.15, 0.25, 0.35, 0.45, 0.55, 0.65, 0.75, 0.85, 0.95}
}

func TestSplitMedian(t *testing.T) {
	tree := unsplitTree(t, SplitMedian, 10, 2, []float64{0.4, 0.1, 0.3, 0.2}, make([]float64, 4), nil)
	if v := splitMedian(tree, tree.Node(tree.Root())); !almostEqual(v, 0.25, 1e-12) {
		t.Errorf("even count: expected 0.25, got %v", v)
	}
	tree = unsplitTree(t, SplitMedian, 10, 2, []float64{0.9, 0.1, 0.3}, make([]float64, 3), nil)
	if v := splitMedian(tree, tree.Node(tree.Root())); v != 0.3 {
		t.Errorf("odd count: expected 0.3, got %v", v)
	}
}

func TestSplitMiddle(t *testing.T) {
	tree := unsplitTree(t, SplitMiddle, 10, 2, []float64{0.9, 0.95}, make([]float64, 2), nil)
	if v := splitMiddle(tree, tree.Node(tree.Root())); v != 0.5 {
		t.Errorf("expected middle of bounds 0.5, got %v", v)
	}
}

func TestSplitRandom_WithinDataRange(t *testing.T) {
	tree := unsplitTree(t, SplitRandom, 10, 2, []float64{0.3, 0.6, 0.4}, make([]float64, 3), nil)
	root := tree.Node(tree.Root())
	for i := 0; i < 1000; i++ {
		if v := splitRandom(tree, root); v < 0.3 || v > 0.6 {
			t.Fatalf("random split %v outside data range [0.3, 0.6]", v)
		}
	}
}

func TestSplitBestInterestDiff_FindsProgressBoundary(t *testing.T) {
	// Competence rises on the left half and stays flat on the right half.
	comps := []float64{0, 0, 1, 1, 1, 0, 0, 0, 0, 0}
	tree := unsplitTree(t, SplitBestInterestDiff, 10, 5, tenPoints(), comps, nil)
	v := splitBestInterestDiff(tree, tree.Node(tree.Root()))
	if !almostEqual(v, 0.5, 1e-9) {
		t.Errorf("expected split between the halves at 0.5, got %v", v)
	}
}

func TestSplitBestInterestDiff_OverfullDrawsInDataRange(t *testing.T) {
	store := NewPointStore(1)
	var idxs []int
	for i := 0; i < 30; i++ {
		idx, _ := store.Append([]float64{0.2 + 0.01*float64(i)}, nil, float64(i%3))
		idxs = append(idxs, idx)
	}
	tree, err := NewTree(store, unitBounds(1), testConfig(SplitBestInterestDiff), idxs...)
	if err != nil {
		t.Fatal(err)
	}
	_, v, ok := tree.Node(tree.Root()).Split()
	if !ok {
		t.Fatal("expected the overfull root to split")
	}
	if v < 0.2 || v > 0.49+1e-12 {
		t.Errorf("split %v outside data range [0.2, 0.49]", v)
	}
	checkInvariants(t, tree)
}

func TestSplitBestInterestDiff_NoProgressPicksFirstCandidate(t *testing.T) {
	tree := unsplitTree(t, SplitBestInterestDiff, 10, 5, tenPoints(), make([]float64, 10), nil)
	if v := splitBestInterestDiff(tree, tree.Node(tree.Root())); !almostEqual(v, 0.1, 1e-9) {
		t.Errorf("all-zero fitness: expected first midpoint 0.1, got %v", v)
	}
}

func TestSplitVarianceOfCosSim_SeparatesOutcomeClusters(t *testing.T) {
	outcomes := make([][]float64, 10)
	for i := range outcomes {
		if i < 5 {
			outcomes[i] = []float64{1, 0}
		} else {
			outcomes[i] = []float64{0, 1}
		}
	}
	tree := unsplitTree(t, SplitVarianceOfCosSim, 10, 5, tenPoints(), make([]float64, 10), outcomes)
	v := splitVarianceOfCosSim(tree, tree.Node(tree.Root()))
	if !almostEqual(v, 0.5, 1e-9) {
		t.Errorf("expected split between outcome clusters at 0.5, got %v", v)
	}
}

func TestSplitVarianceOfCosSim_PenalizesSingletons(t *testing.T) {
	// Three points: every candidate leaves one side with a single outcome,
	// which scores with the fixed variance.
	outcomes := [][]float64{{1, 0}, {1, 0.1}, {0, 1}}
	tree := unsplitTree(t, SplitVarianceOfCosSim, 10, 2, []float64{0.1, 0.2, 0.3}, make([]float64, 3), outcomes)
	// Candidate 0.15: lower {0} (100), greater {1, 2}: one pair, variance 0.
	// Candidate 0.25: lower {0, 1}: one pair, variance 0, greater {2} (100).
	// Both score 2/100; the first wins.
	if v := splitVarianceOfCosSim(tree, tree.Node(tree.Root())); !almostEqual(v, 0.15, 1e-9) {
		t.Errorf("expected first candidate 0.15, got %v", v)
	}
}

func TestSplit_ParallelScoringMatchesSequential(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 6))
	xs := make([]float64, 50)
	comps := make([]float64, 50)
	outcomes := make([][]float64, 50)
	for i := range xs {
		xs[i] = rng.Float64()
		comps[i] = learningCompetence([]float64{xs[i]}, i)
		outcomes[i] = []float64{rng.NormFloat64(), rng.NormFloat64(), rng.NormFloat64()}
	}
	for _, mode := range []SplitMode{SplitBestInterestDiff, SplitVarianceOfCosSim} {
		seq := unsplitTree(t, mode, 60, 10, xs, comps, outcomes)
		par := unsplitTree(t, mode, 60, 10, xs, comps, outcomes)
		seq.cfg.Workers = 1
		par.cfg.Workers = 4
		split, _ := splitFuncFor(mode)
		if a, b := split(seq, seq.Node(seq.Root())), split(par, par.Node(par.Root())); a != b {
			t.Errorf("%s: sequential split %v != parallel split %v", mode, a, b)
		}
	}
}

func TestSplitFuncFor_Unknown(t *testing.T) {
	if _, err := splitFuncFor("diagonal"); err == nil {
		t.Error("expected an error for an unknown split mode")
	}
}

func TestSplitRandom_IndependentOfSampling(t *testing.T) {
	cfg := testConfig(SplitRandom)
	cfg.Seed = 7
	build := func(sampling bool) *Tree {
		tree, err := NewTree(NewPointStore(1), unitBounds(1), cfg)
		if err != nil {
			t.Fatal(err)
		}
		rng := rand.New(rand.NewPCG(3, 4))
		for i := 0; i < 120; i++ {
			if sampling {
				tree.Sample()
			}
			idx, _ := tree.Store().Append([]float64{rng.Float64()}, nil, rng.Float64())
			if _, err := tree.Insert(idx); err != nil {
				t.Fatal(err)
			}
		}
		return tree
	}
	plain, sampled := build(false), build(true)
	a, b := plain.LeafRegions(), sampled.LeafRegions()
	if len(a) != len(b) {
		t.Fatalf("leaf count %d without sampling, %d with sampling", len(a), len(b))
	}
	for i := range a {
		if a[i].Points != b[i].Points || a[i].Bounds.Min[0] != b[i].Bounds.Min[0] || a[i].Bounds.Max[0] != b[i].Bounds.Max[0] {
			t.Fatalf("leaf %d differs: %+v vs %+v", i, a[i], b[i])
		}
	}
}
