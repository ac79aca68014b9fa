package riac

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"slices"
)

// NodeID is the handle of a region in a Tree's node arena.
type NodeID int

// NoNode is the child handle of a leaf.
const NoNode NodeID = -1

// Node is one region of a competence-progress tree. Nodes are owned by
// their Tree and only change through Tree methods: a leaf becomes internal
// exactly once, and otherwise only its member list and progress statistics
// grow.
type Node struct {
	id     NodeID
	bounds Bounds
	volume float64
	level  int

	// members are point-store indices, kept in ascending order.
	members []int

	// dataMin/dataMax bound the goal coordinates of members; they may be
	// tighter than bounds and stay correct for points outside the root box.
	dataMin, dataMax []float64

	leaf       bool
	splitDim   int
	splitValue float64
	lower      NodeID
	greater    NodeID
	budget     int // remaining depth budget

	progress    float64
	maxProgress float64
}

func (n *Node) ID() NodeID { return n.id }

// Bounds returns a copy of the region's box.
func (n *Node) Bounds() Bounds { return n.bounds.Clone() }

// Members returns a copy of the point indices owned by the region, in
// ascending order.
func (n *Node) Members() []int { return slices.Clone(n.members) }

// Len returns the number of points owned by the region.
func (n *Node) Len() int { return len(n.members) }

func (n *Node) IsLeaf() bool { return n.leaf }

// Level is the distance from the root (root = 0).
func (n *Node) Level() int { return n.level }

// Split returns the split dimension and value of an internal node. ok is
// false for leaves. For a leaf, dim is the dimension its next split will use.
func (n *Node) Split() (dim int, value float64, ok bool) {
	return n.splitDim, n.splitValue, !n.leaf
}

// Children returns the lower and greater child handles, or NoNode for a leaf.
func (n *Node) Children() (lower, greater NodeID) { return n.lower, n.greater }

// Progress is the learning progress over the region's most recent points.
func (n *Node) Progress() float64 { return n.progress }

// MaxSubtreeProgress is the region's own progress for a leaf and the max of
// its children's MaxSubtreeProgress otherwise.
func (n *Node) MaxSubtreeProgress() float64 { return n.maxProgress }

// Volume is the product of the region's extents.
func (n *Node) Volume() float64 { return n.volume }

// Density is the number of points per unit volume, or 0 for a region of
// zero volume.
func (n *Node) Density() float64 {
	if n.volume == 0 {
		return 0
	}
	return float64(len(n.members)) / n.volume
}

// Tree is a competence-progress tree: a binary partition of a goal space
// whose regions track learning progress. It indexes points of a PointStore
// that the caller appends to and never shrinks.
//
// A Tree is not safe for concurrent use. See InterestModel for a locked
// wrapper.
type Tree struct {
	cfg    Config
	store  *PointStore
	bounds Bounds
	dims   int
	nodes  []*Node

	// src and rng drive sampling. splitRng drives split values only and
	// is never advanced by sampling.
	src      *rand.PCG
	rng      *rand.Rand
	splitRng *rand.Rand

	progress progressFunc
	split    splitFunc
	logger   *slog.Logger
	observer Observer
}

const rootID NodeID = 0

// NewTree builds a tree over store covering bounds. Optional idxs seed the
// root region; the root splits right away if they exceed the region limit.
// Returns an error wrapping ErrInvalidConfig if cfg or bounds are invalid.
func NewTree(store *PointStore, bounds Bounds, cfg Config, idxs ...int) (*Tree, error) {
	applyDefaults(&cfg)
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	if err := bounds.validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, configErrorf("point store is nil")
	}
	if bounds.Dims() != store.Dims() {
		return nil, configErrorf("bounds have %d dims but point store has %d", bounds.Dims(), store.Dims())
	}
	for _, i := range idxs {
		if i < 0 || i >= store.Len() {
			return nil, fmt.Errorf("%w: %d (store has %d points)", ErrOutOfRange, i, store.Len())
		}
	}

	pf, err := progressMeasureFunc(cfg.ProgressMeasure)
	if err != nil {
		return nil, err
	}
	sf, err := splitFuncFor(cfg.SplitMode)
	if err != nil {
		return nil, err
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	src := rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
	splitSrc := rand.NewPCG(seed^0xbf58476d1ce4e5b9, seed+0x94d049bb133111eb)

	t := &Tree{
		cfg:      cfg,
		store:    store,
		bounds:   bounds.Clone(),
		dims:     bounds.Dims(),
		src:      src,
		rng:      rand.New(src),
		splitRng: rand.New(splitSrc),
		progress: pf,
		split:    sf,
		logger:   cfg.Logger,
		observer: cfg.Observer,
	}

	members := slices.Clone(idxs)
	slices.Sort(members)
	t.newNode(t.bounds.Clone(), members, 0, cfg.MaxDepth, 0)
	return t, nil
}

// newNode appends a region to the arena, splitting it right away when it
// starts with more points than a region may hold.
func (t *Tree) newNode(bounds Bounds, members []int, splitDim, budget, level int) NodeID {
	n := &Node{
		id:       NodeID(len(t.nodes)),
		bounds:   bounds,
		volume:   bounds.Volume(),
		level:    level,
		members:  members,
		leaf:     true,
		splitDim: splitDim,
		lower:    NoNode,
		greater:  NoNode,
		budget:   budget,
	}
	n.dataMin, n.dataMax = emptyBox(t.dims)
	for _, i := range members {
		growBox(n.dataMin, n.dataMax, t.store.Goal(i))
	}
	t.nodes = append(t.nodes, n)

	if len(members) > t.cfg.MaxPointsPerRegion && budget > 0 {
		t.splitNode(n)
	}
	t.updateMaxProgress(n)
	return n.id
}

// Config returns the tree's configuration with defaults applied.
func (t *Tree) Config() Config { return t.cfg }

// Store returns the point store indexed by the tree.
func (t *Tree) Store() *PointStore { return t.store }

// Bounds returns a copy of the root region's box.
func (t *Tree) Bounds() Bounds { return t.bounds.Clone() }

// Dims returns the goal space dimensionality.
func (t *Tree) Dims() int { return t.dims }

// Root returns the root region handle.
func (t *Tree) Root() NodeID { return rootID }

// Node returns the region with the given handle, or nil if there is none.
func (t *Tree) Node(id NodeID) *Node {
	if id < 0 || int(id) >= len(t.nodes) {
		return nil
	}
	return t.nodes[id]
}

// NumNodes returns the total number of regions (internal + leaf).
func (t *Tree) NumNodes() int { return len(t.nodes) }

// Len returns the number of indexed points.
func (t *Tree) Len() int { return len(t.nodes[rootID].members) }

// Progress returns the root region's progress.
func (t *Tree) Progress() float64 { return t.nodes[rootID].progress }

// MaxLeafProgress returns the highest progress among the leaves.
func (t *Tree) MaxLeafProgress() float64 { return t.nodes[rootID].maxProgress }

// ProgressAll returns the progress over the most recent points of the whole
// store, whether or not they are indexed.
func (t *Tree) ProgressAll() float64 {
	n := t.store.Len()
	start := max(n-t.cfg.ProgressWinSize, 0)
	idxs := make([]int, 0, n-start)
	for i := start; i < n; i++ {
		idxs = append(idxs, i)
	}
	return t.progressOf(idxs)
}

// Insert indexes point idx of the store. Full leaves on the way down are
// split before the point is routed; progress is then recomputed bottom-up
// along the insertion path. Returns the leaf that received the point.
func (t *Tree) Insert(idx int) (NodeID, error) {
	if idx < 0 || idx >= t.store.Len() {
		return NoNode, fmt.Errorf("%w: %d (store has %d points)", ErrOutOfRange, idx, t.store.Len())
	}
	goal := t.store.Goal(idx)

	path := make([]*Node, 0, 16)
	n := t.nodes[rootID]
	for {
		if n.leaf && len(n.members) >= t.cfg.MaxPointsPerRegion && n.budget > 0 {
			t.splitNode(n)
		}
		n.members = insertSorted(n.members, idx)
		growBox(n.dataMin, n.dataMax, goal)
		path = append(path, n)
		if n.leaf {
			break
		}
		if goal[n.splitDim] >= n.splitValue {
			n = t.nodes[n.greater]
		} else {
			n = t.nodes[n.lower]
		}
	}

	for i := len(path) - 1; i >= 0; i-- {
		t.updateMaxProgress(path[i])
	}
	return n.id, nil
}

// Locate returns the leaf whose region contains point. Points outside the
// root box are routed to the nearest boundary leaf.
func (t *Tree) Locate(point []float64) (NodeID, error) {
	if len(point) != t.dims {
		return NoNode, fmt.Errorf("%w: point has %d dims, tree has %d", ErrDimensionMismatch, len(point), t.dims)
	}
	n := t.nodes[rootID]
	for !n.leaf {
		if point[n.splitDim] < n.splitValue {
			n = t.nodes[n.lower]
		} else {
			n = t.nodes[n.greater]
		}
	}
	return n.id, nil
}

// splitNode turns leaf n into an internal node with two fresh children.
func (t *Tree) splitNode(n *Node) {
	dim := n.splitDim
	value := t.split(t, n)

	var lowerIdx, greaterIdx []int
	for _, i := range n.members {
		if t.store.coord(i, dim) <= value {
			lowerIdx = append(lowerIdx, i)
		} else {
			greaterIdx = append(greaterIdx, i)
		}
	}

	lb, gb := n.bounds.splitAt(dim, value)
	childDim := (dim + 1) % t.dims

	n.leaf = false
	n.splitValue = value
	n.lower = t.newNode(lb, lowerIdx, childDim, n.budget-1, n.level+1)
	n.greater = t.newNode(gb, greaterIdx, childDim, n.budget-1, n.level+1)

	t.logger.Debug("riac: split region",
		"node", n.id, "mode", t.cfg.SplitMode, "dim", dim, "value", value,
		"lower", len(lowerIdx), "greater", len(greaterIdx))
	t.observer.Observe(Event{
		Kind:    EventSplit,
		Node:    n.id,
		Dim:     dim,
		Value:   value,
		Lower:   len(lowerIdx),
		Greater: len(greaterIdx),
	})
}

// updateMaxProgress recomputes n's progress and subtree max (not recursive).
func (t *Tree) updateMaxProgress(n *Node) {
	n.progress = t.progressOf(n.members)
	if n.leaf {
		n.maxProgress = n.progress
		return
	}
	n.maxProgress = math.Max(t.nodes[n.lower].maxProgress, t.nodes[n.greater].maxProgress)
}

// RegionInfo is a read-only snapshot of a region for diagnostics and
// visualization.
type RegionInfo struct {
	ID                 NodeID  `json:"id" yaml:"id"`
	Level              int     `json:"level" yaml:"level"`
	Leaf               bool    `json:"leaf" yaml:"leaf"`
	Bounds             Bounds  `json:"bounds" yaml:"bounds"`
	Points             int     `json:"points" yaml:"points"`
	Progress           float64 `json:"progress" yaml:"progress"`
	MaxSubtreeProgress float64 `json:"max_subtree_progress" yaml:"max_subtree_progress"`
	Volume             float64 `json:"volume" yaml:"volume"`
	Density            float64 `json:"density" yaml:"density"`
}

// Describe returns a snapshot of region id.
func (t *Tree) Describe(id NodeID) RegionInfo {
	n := t.nodes[id]
	return RegionInfo{
		ID:                 n.id,
		Level:              n.level,
		Leaf:               n.leaf,
		Bounds:             n.bounds.Clone(),
		Points:             len(n.members),
		Progress:           n.progress,
		MaxSubtreeProgress: n.maxProgress,
		Volume:             n.volume,
		Density:            n.Density(),
	}
}

// LeafRegions returns snapshots of every leaf, lower subtrees first.
func (t *Tree) LeafRegions() []RegionInfo {
	leaves := t.Leaves()
	out := make([]RegionInfo, len(leaves))
	for i, id := range leaves {
		out[i] = t.Describe(id)
	}
	return out
}

// LogValue summarizes the tree for structured logging.
func (t *Tree) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("points", t.Len()),
		slog.Int("nodes", len(t.nodes)),
		slog.Int("depth", t.Depth()),
		slog.Float64("progress", t.Progress()),
		slog.Float64("max_leaf_progress", t.MaxLeafProgress()),
	)
}

func insertSorted(s []int, v int) []int {
	if len(s) == 0 || s[len(s)-1] < v {
		return append(s, v)
	}
	i, found := slices.BinarySearch(s, v)
	if found {
		return s
	}
	return slices.Insert(s, i, v)
}

func emptyBox(dims int) (lo, hi []float64) {
	lo = make([]float64, dims)
	hi = make([]float64, dims)
	for d := range lo {
		lo[d] = math.Inf(1)
		hi[d] = math.Inf(-1)
	}
	return lo, hi
}

func growBox(lo, hi, x []float64) {
	for d, v := range x {
		if v < lo[d] {
			lo[d] = v
		}
		if v > hi[d] {
			hi[d] = v
		}
	}
}
