package riac

import (
	"encoding/json"
	"errors"
	"math"
	"math/rand/v2"
	"slices"
	"testing"
)

func unitBounds(dims int) Bounds {
	b := Bounds{Min: make([]float64, dims), Max: make([]float64, dims)}
	for d := range b.Max {
		b.Max[d] = 1
	}
	return b
}

// testConfig returns a small deterministic configuration.
func testConfig(mode SplitMode) Config {
	return Config{
		MaxPointsPerRegion: 10,
		MaxDepth:           8,
		SplitMode:          mode,
		ProgressWinSize:    5,
		ProgressMeasure:    ProgressAbsDerivSmooth,
		Sampling:           Sampling{Mode: SampleGreedy},
		Seed:               42,
		Workers:            1,
	}
}

// learningCompetence is a competence that improves over time only where
// x[0] < 0.5, so progress concentrates in that half of the space.
func learningCompetence(goal []float64, step int) float64 {
	if goal[0] < 0.5 {
		return 1 - math.Exp(-float64(step)/50)
	}
	return 0.5
}

// fillTree appends n random observations to a fresh tree over the unit box.
func fillTree(t *testing.T, cfg Config, n, dims int, seed uint64) *Tree {
	t.Helper()
	store := NewPointStore(dims)
	tree, err := NewTree(store, unitBounds(dims), cfg)
	if err != nil {
		t.Fatalf("NewTree: %v", err)
	}
	rng := rand.New(rand.NewPCG(seed, seed+1))
	for i := 0; i < n; i++ {
		insertRandom(t, tree, rng, i)
	}
	return tree
}

func insertRandom(t *testing.T, tree *Tree, rng *rand.Rand, step int) NodeID {
	t.Helper()
	dims := tree.Dims()
	goal := make([]float64, dims)
	outcome := make([]float64, dims+1)
	for d := range goal {
		goal[d] = rng.Float64()
		outcome[d] = goal[d] + 0.1*rng.NormFloat64()
	}
	outcome[dims] = rng.Float64()
	idx, err := tree.Store().Append(goal, outcome, learningCompetence(goal, step))
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	id, err := tree.Insert(idx)
	if err != nil {
		t.Fatalf("Insert(%d): %v", idx, err)
	}
	return id
}

// checkInvariants verifies the structural invariants of every node.
func checkInvariants(t *testing.T, tree *Tree) {
	t.Helper()
	maxLeaf := math.Inf(-1)
	for _, id := range tree.Nodes() {
		n := tree.Node(id)
		if n.IsLeaf() {
			maxLeaf = math.Max(maxLeaf, n.Progress())
			if n.MaxSubtreeProgress() != n.Progress() {
				t.Errorf("leaf %d: max subtree progress %v != progress %v", id, n.MaxSubtreeProgress(), n.Progress())
			}
			continue
		}
		lowerID, greaterID := n.Children()
		lower, greater := tree.Node(lowerID), tree.Node(greaterID)

		// Membership partition.
		union := append(lower.Members(), greater.Members()...)
		slices.Sort(union)
		if !slices.Equal(union, n.Members()) {
			t.Errorf("node %d: children members %v do not partition %v", id, union, n.Members())
		}
		if len(union) != lower.Len()+greater.Len() || len(slices.Compact(union)) != len(union) {
			t.Errorf("node %d: children share members", id)
		}

		// Bounds consistency.
		dim, value, ok := n.Split()
		if !ok {
			t.Fatalf("node %d: internal node reports no split", id)
		}
		pb, lb, gb := n.Bounds(), lower.Bounds(), greater.Bounds()
		for d := range pb.Min {
			if d == dim {
				continue
			}
			if lb.Min[d] != pb.Min[d] || lb.Max[d] != pb.Max[d] || gb.Min[d] != pb.Min[d] || gb.Max[d] != pb.Max[d] {
				t.Errorf("node %d: child bounds differ from parent on dim %d", id, d)
			}
		}
		if lb.Min[dim] != pb.Min[dim] || gb.Max[dim] != pb.Max[dim] || lb.Max[dim] != gb.Min[dim] {
			t.Errorf("node %d: children %v / %v do not tile parent %v on dim %d", id, lb, gb, pb, dim)
		}
		if value >= pb.Min[dim] && value <= pb.Max[dim] && lb.Max[dim] != value {
			t.Errorf("node %d: cut %v != split value %v", id, lb.Max[dim], value)
		}

		// Subtree progress.
		want := math.Max(lower.MaxSubtreeProgress(), greater.MaxSubtreeProgress())
		if n.MaxSubtreeProgress() != want {
			t.Errorf("node %d: max subtree progress %v, want %v", id, n.MaxSubtreeProgress(), want)
		}
		if lower.Level() != n.Level()+1 || greater.Level() != n.Level()+1 {
			t.Errorf("node %d: child levels %d/%d, parent %d", id, lower.Level(), greater.Level(), n.Level())
		}
	}
	if got := tree.MaxLeafProgress(); got != maxLeaf {
		t.Errorf("root max subtree progress %v != max leaf progress %v", got, maxLeaf)
	}
}

// --- construction ---

func TestNewTree_ProgressWindowTooLarge(t *testing.T) {
	cfg := testConfig(SplitMedian)
	cfg.MaxPointsPerRegion = 5
	cfg.ProgressWinSize = 10
	_, err := NewTree(NewPointStore(1), unitBounds(1), cfg)
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestNewTree_UnknownModes(t *testing.T) {
	cfg := testConfig("sideways")
	if _, err := NewTree(NewPointStore(1), unitBounds(1), cfg); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("unknown split mode: expected ErrInvalidConfig, got %v", err)
	}
	cfg = testConfig(SplitMedian)
	cfg.ProgressMeasure = "vibes"
	if _, err := NewTree(NewPointStore(1), unitBounds(1), cfg); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("unknown progress measure: expected ErrInvalidConfig, got %v", err)
	}
}

func TestNewTree_BoundsValidation(t *testing.T) {
	cfg := testConfig(SplitMedian)
	cases := map[string]Bounds{
		"empty":         {},
		"ragged":        {Min: []float64{0, 0}, Max: []float64{1}},
		"inverted":      {Min: []float64{1}, Max: []float64{0}},
		"infinite":      {Min: []float64{math.Inf(-1)}, Max: []float64{0}},
		"dims != store": {Min: []float64{0, 0}, Max: []float64{1, 1}},
	}
	for name, b := range cases {
		if _, err := NewTree(NewPointStore(1), b, cfg); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("%s: expected ErrInvalidConfig, got %v", name, err)
		}
	}
}

func TestNewTree_InitialIndicesSplit(t *testing.T) {
	store := NewPointStore(1)
	var idxs []int
	for i := 0; i < 25; i++ {
		idx, _ := store.Append([]float64{float64(i) / 25}, []float64{0}, float64(i))
		idxs = append(idxs, idx)
	}
	tree, err := NewTree(store, unitBounds(1), testConfig(SplitMedian), idxs...)
	if err != nil {
		t.Fatalf("NewTree: %v", err)
	}
	if tree.Node(tree.Root()).IsLeaf() {
		t.Fatal("expected root to split when seeded with more points than a region holds")
	}
	if tree.Len() != 25 {
		t.Errorf("expected 25 indexed points, got %d", tree.Len())
	}
	for _, id := range tree.Leaves() {
		if n := tree.Node(id).Len(); n > 10 {
			t.Errorf("leaf %d holds %d points, limit is 10", id, n)
		}
	}
	checkInvariants(t, tree)
}

func TestNewTree_InitialIndexOutOfRange(t *testing.T) {
	_, err := NewTree(NewPointStore(1), unitBounds(1), testConfig(SplitMedian), 3)
	if !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
}

// --- insertion ---

func TestInsert_ForcedSplit(t *testing.T) {
	cfg := testConfig(SplitMedian)
	cfg.MaxPointsPerRegion = 5
	cfg.ProgressWinSize = 3
	store := NewPointStore(1)
	tree, err := NewTree(store, Bounds{Min: []float64{0}, Max: []float64{10}}, cfg)
	if err != nil {
		t.Fatalf("NewTree: %v", err)
	}
	for i, x := range []float64{1, 7, 3, 9, 5} {
		idx, _ := store.Append([]float64{x}, nil, float64(i))
		if _, err := tree.Insert(idx); err != nil {
			t.Fatal(err)
		}
	}
	root := tree.Node(tree.Root())
	if !root.IsLeaf() {
		t.Fatal("root split before exceeding the region limit")
	}

	idx, _ := store.Append([]float64{2}, nil, 5)
	if _, err := tree.Insert(idx); err != nil {
		t.Fatal(err)
	}
	if root.IsLeaf() {
		t.Fatal("expected root to split on the 6th insert")
	}
	lower, greater := root.Children()
	if got := tree.Node(lower).Len() + tree.Node(greater).Len(); got != 6 {
		t.Errorf("children hold %d points, want 6", got)
	}
	// Median of {1, 3, 5, 7, 9} is 5.
	if _, v, _ := root.Split(); v != 5 {
		t.Errorf("expected median split at 5, got %v", v)
	}
	checkInvariants(t, tree)
}

func TestInsert_InvariantsAllSplitModes(t *testing.T) {
	for _, mode := range []SplitMode{SplitRandom, SplitMedian, SplitMiddle, SplitBestInterestDiff, SplitVarianceOfCosSim} {
		t.Run(string(mode), func(t *testing.T) {
			store := NewPointStore(2)
			tree, err := NewTree(store, unitBounds(2), testConfig(mode))
			if err != nil {
				t.Fatal(err)
			}
			rng := rand.New(rand.NewPCG(7, 8))
			internal := map[NodeID]bool{}
			for i := 0; i < 300; i++ {
				insertRandom(t, tree, rng, i)
				for id := range internal {
					if tree.Node(id).IsLeaf() {
						t.Fatalf("node %d became a leaf again", id)
					}
				}
				for _, id := range tree.Nodes() {
					if !tree.Node(id).IsLeaf() {
						internal[id] = true
					}
				}
			}
			checkInvariants(t, tree)
			if len(internal) == 0 {
				t.Error("expected at least one split after 300 inserts")
			}
			if tree.Len() != 300 {
				t.Errorf("expected 300 indexed points, got %d", tree.Len())
			}
		})
	}
}

func TestInsert_ReturnsReceivingLeaf(t *testing.T) {
	tree := fillTree(t, testConfig(SplitMedian), 100, 2, 1)
	rng := rand.New(rand.NewPCG(9, 9))
	for i := 0; i < 50; i++ {
		id := insertRandom(t, tree, rng, 100+i)
		n := tree.Node(id)
		if !n.IsLeaf() {
			t.Fatalf("Insert returned internal node %d", id)
		}
		idx := tree.Store().Len() - 1
		if _, found := slices.BinarySearch(n.Members(), idx); !found {
			t.Fatalf("leaf %d does not own inserted point %d", id, idx)
		}
	}
}

func TestInsert_OutOfRange(t *testing.T) {
	tree := fillTree(t, testConfig(SplitMedian), 5, 1, 1)
	if _, err := tree.Insert(5); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("expected ErrOutOfRange, got %v", err)
	}
	if _, err := tree.Insert(-1); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("expected ErrOutOfRange, got %v", err)
	}
}

func TestInsert_DepthBudget(t *testing.T) {
	cfg := testConfig(SplitMedian)
	cfg.MaxDepth = 2
	tree := fillTree(t, cfg, 200, 2, 3)
	if d := tree.Depth(); d > 2 {
		t.Errorf("depth %d exceeds MaxDepth 2", d)
	}
	if tree.NumNodes() != 7 {
		t.Errorf("expected a full depth-2 tree (7 nodes), got %d", tree.NumNodes())
	}
	checkInvariants(t, tree)
}

func TestInsert_ZeroDepthNeverSplits(t *testing.T) {
	cfg := testConfig(SplitMedian)
	cfg.MaxDepth = 0
	tree := fillTree(t, cfg, 50, 2, 3)
	if tree.NumNodes() != 1 || tree.Node(tree.Root()).Len() != 50 {
		t.Errorf("expected a single region with 50 points, got %d nodes", tree.NumNodes())
	}
}

func TestInsert_PointsOutsideBounds(t *testing.T) {
	store := NewPointStore(1)
	tree, err := NewTree(store, unitBounds(1), testConfig(SplitMedian))
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 40; i++ {
		x := float64(i)/10 - 1 // [-1, 3)
		idx, _ := store.Append([]float64{x}, nil, 0)
		if _, err := tree.Insert(idx); err != nil {
			t.Fatal(err)
		}
	}
	checkInvariants(t, tree)
	root := tree.Bounds()
	for _, r := range tree.LeafRegions() {
		for d := range r.Bounds.Min {
			if r.Bounds.Min[d] < root.Min[d] || r.Bounds.Max[d] > root.Max[d] {
				t.Errorf("leaf %d bounds %v escape root %v", r.ID, r.Bounds, root)
			}
		}
	}
}

// --- locate ---

func TestLocate(t *testing.T) {
	tree := fillTree(t, testConfig(SplitMedian), 200, 2, 5)
	rng := rand.New(rand.NewPCG(11, 12))
	for i := 0; i < 200; i++ {
		p := []float64{rng.Float64(), rng.Float64()}
		id, err := tree.Locate(p)
		if err != nil {
			t.Fatal(err)
		}
		n := tree.Node(id)
		if !n.IsLeaf() {
			t.Fatalf("Locate returned internal node %d", id)
		}
		if !n.Bounds().Contains(p) {
			t.Fatalf("leaf %d bounds %v do not contain %v", id, n.Bounds(), p)
		}
	}
	if _, err := tree.Locate([]float64{0.5}); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

// --- progress bookkeeping ---

func TestProgress_ConcentratesWhereLearningHappens(t *testing.T) {
	cfg := testConfig(SplitBestInterestDiff)
	cfg.MaxPointsPerRegion = 20
	cfg.ProgressWinSize = 10
	tree := fillTree(t, cfg, 400, 1, 21)
	checkInvariants(t, tree)

	// Competence is constant on x >= 0.5, so only regions reaching into the
	// other half can show progress.
	for _, r := range tree.LeafRegions() {
		if r.Progress > 0 && r.Bounds.Min[0] >= 0.5 {
			t.Errorf("leaf %d in the static half has progress %v", r.ID, r.Progress)
		}
	}
	if tree.MaxLeafProgress() <= 0 {
		t.Errorf("expected positive max leaf progress, got %v", tree.MaxLeafProgress())
	}
}

func TestProgressAll_UsesMostRecentObservations(t *testing.T) {
	cfg := testConfig(SplitMedian)
	store := NewPointStore(1)
	tree, err := NewTree(store, unitBounds(1), cfg)
	if err != nil {
		t.Fatal(err)
	}
	if p := tree.ProgressAll(); p != 0 {
		t.Errorf("empty store: expected 0, got %v", p)
	}
	// Window is 5: the last five competences are 0, 0, 1, 1, 1.
	for _, c := range []float64{9, 9, 9, 0, 0, 1, 1, 1} {
		if _, err := store.Append([]float64{0.5}, nil, c); err != nil {
			t.Fatal(err)
		}
	}
	// Halves: [0, 0] and [1, 1, 1].
	if p := tree.ProgressAll(); !almostEqual(p, 1, floatTol) {
		t.Errorf("expected 1, got %v", p)
	}
}

// --- diagnostics ---

func TestDescribe(t *testing.T) {
	tree := fillTree(t, testConfig(SplitMedian), 100, 2, 13)
	info := tree.Describe(tree.Root())
	if info.Points != 100 || info.Level != 0 {
		t.Errorf("root info %+v", info)
	}
	if !almostEqual(info.Volume, 1, floatTol) || !almostEqual(info.Density, 100, floatTol) {
		t.Errorf("root volume %v density %v, want 1 and 100", info.Volume, info.Density)
	}
	var total int
	var volume float64
	for _, r := range tree.LeafRegions() {
		if !r.Leaf {
			t.Errorf("LeafRegions returned internal node %d", r.ID)
		}
		total += r.Points
		volume += r.Volume
	}
	if total != 100 {
		t.Errorf("leaves hold %d points, want 100", total)
	}
	if !almostEqual(volume, 1, 1e-9) {
		t.Errorf("leaf volumes sum to %v, want 1", volume)
	}
}

func TestObserver_SplitEvents(t *testing.T) {
	var splits []Event
	cfg := testConfig(SplitMedian)
	cfg.Observer = ObserverFunc(func(ev Event) {
		if ev.Kind == EventSplit {
			splits = append(splits, ev)
		}
	})
	tree := fillTree(t, cfg, 100, 2, 17)
	internal := 0
	for _, id := range tree.Nodes() {
		if !tree.Node(id).IsLeaf() {
			internal++
		}
	}
	if len(splits) != internal {
		t.Errorf("observed %d splits, tree has %d internal nodes", len(splits), internal)
	}
	for _, ev := range splits {
		dim, value, _ := tree.Node(ev.Node).Split()
		if ev.Dim != dim || ev.Value != value {
			t.Errorf("split event %+v does not match node split (%d, %v)", ev, dim, value)
		}
	}
}

func TestLeafRegions_ZeroVolumeMarshals(t *testing.T) {
	store := NewPointStore(2)
	bounds := Bounds{Min: []float64{0, 0.5}, Max: []float64{1, 0.5}}
	tree, err := NewTree(store, bounds, testConfig(SplitMedian))
	if err != nil {
		t.Fatal(err)
	}
	for _, x := range []float64{0.2, 0.4, 0.6} {
		idx, _ := store.Append([]float64{x, 0.5}, nil, 0)
		if _, err := tree.Insert(idx); err != nil {
			t.Fatal(err)
		}
	}
	regions := tree.LeafRegions()
	if regions[0].Volume != 0 || regions[0].Density != 0 {
		t.Errorf("zero-volume region: volume %v density %v, want 0 and 0", regions[0].Volume, regions[0].Density)
	}
	if _, err := json.Marshal(regions); err != nil {
		t.Fatalf("marshal leaf regions: %v", err)
	}
}
