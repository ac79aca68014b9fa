package riac

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

// InterestModel drives goal exploration over a sensorimotor space. It owns
// the point store and the competence-progress tree: each observed
// (target, reached) pair is scored by the competence measure, its goal
// projection is appended to the store and indexed, and Sample proposes the
// next goal.
//
// InterestModel is safe for concurrent use. Updates are serialized; reads
// run concurrently with each other but never with an update.
type InterestModel struct {
	mu sync.RWMutex

	spaceDims int
	explDims  []int
	restDims  []int
	measure   CompetenceFunc

	store *PointStore
	tree  *Tree
}

// NewInterestModel returns an interest model over the sensorimotor space
// bounded by bounds. Goals live in the explDims coordinates of that space;
// the remaining coordinates of reached vectors are kept as outcomes.
func NewInterestModel(bounds Bounds, explDims []int, measure CompetenceFunc, cfg Config) (*InterestModel, error) {
	if err := bounds.validate(); err != nil {
		return nil, err
	}
	if measure == nil {
		return nil, configErrorf("competence measure is nil")
	}
	if len(explDims) == 0 {
		return nil, configErrorf("at least one exploration dimension is required")
	}
	seen := make(map[int]bool, len(explDims))
	for _, d := range explDims {
		if d < 0 || d >= bounds.Dims() {
			return nil, configErrorf("exploration dim %d out of range [0, %d)", d, bounds.Dims())
		}
		if seen[d] {
			return nil, configErrorf("exploration dim %d listed twice", d)
		}
		seen[d] = true
	}

	var rest []int
	for d := 0; d < bounds.Dims(); d++ {
		if !seen[d] {
			rest = append(rest, d)
		}
	}

	goalBounds := Bounds{Min: project(bounds.Min, explDims), Max: project(bounds.Max, explDims)}
	store := NewPointStore(len(explDims))
	tree, err := NewTree(store, goalBounds, cfg)
	if err != nil {
		return nil, err
	}
	return &InterestModel{
		spaceDims: bounds.Dims(),
		explDims:  slices.Clone(explDims),
		restDims:  rest,
		measure:   measure,
		store:     store,
		tree:      tree,
	}, nil
}

// FromPreset builds an interest model from a named preset.
func FromPreset(name string, bounds Bounds, explDims []int) (*InterestModel, error) {
	p, err := LookupPreset(name)
	if err != nil {
		return nil, err
	}
	return NewInterestModel(bounds, explDims, p.Competence, p.Config)
}

func project(v []float64, dims []int) []float64 {
	out := make([]float64, len(dims))
	for i, d := range dims {
		out[i] = v[d]
	}
	return out
}

// Update scores reached against target, records the observation and
// returns the leaf that received it. Both vectors span the whole
// sensorimotor space.
func (m *InterestModel) Update(target, reached []float64) (NodeID, error) {
	if len(target) != m.spaceDims || len(reached) != m.spaceDims {
		return NoNode, fmt.Errorf("%w: target has %d dims and reached %d, space has %d",
			ErrDimensionMismatch, len(target), len(reached), m.spaceDims)
	}
	c := m.measure(target, reached)

	outcome := reached
	if len(m.restDims) > 0 {
		outcome = project(reached, m.restDims)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	id, idx, err := m.record(project(target, m.explDims), outcome, c)
	if err != nil {
		return NoNode, err
	}
	m.tree.observer.Observe(Event{Kind: EventCompetence, Node: id, Index: idx, Competence: c})
	return id, nil
}

// Record appends an already-scored observation, e.g. one replayed from a
// run log. goal is in goal-space coordinates.
func (m *InterestModel) Record(goal, outcome []float64, competence float64) (NodeID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, _, err := m.record(goal, outcome, competence)
	return id, err
}

func (m *InterestModel) record(goal, outcome []float64, competence float64) (NodeID, int, error) {
	idx, err := m.store.Append(goal, outcome, competence)
	if err != nil {
		return NoNode, 0, err
	}
	id, err := m.tree.Insert(idx)
	return id, idx, err
}

// Sample proposes the next goal using the configured sampling mode.
func (m *InterestModel) Sample() []float64 {
	// Sampling draws from the tree's random source, so it takes the write lock.
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tree.Sample()
}

// SampleWith proposes the next goal using s.
func (m *InterestModel) SampleWith(s Sampling) ([]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tree.SampleWith(s)
}

// Progress returns the learning progress of the whole goal space.
func (m *InterestModel) Progress() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tree.Progress()
}

// MaxLeafProgress returns the highest progress among the regions.
func (m *InterestModel) MaxLeafProgress() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tree.MaxLeafProgress()
}

// ProgressAll returns the progress over the most recent observations.
func (m *InterestModel) ProgressAll() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tree.ProgressAll()
}

// NearestNeighbors returns the observations whose goals are closest to goal.
func (m *InterestModel) NearestNeighbors(goal []float64, opts KNNOptions) ([]Neighbor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tree.NearestNeighbors(goal, opts)
}

// Leaves returns a snapshot of every region.
func (m *InterestModel) Leaves() []RegionInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tree.LeafRegions()
}

// Len returns the number of recorded observations.
func (m *InterestModel) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.store.Len()
}

// Observation returns the goal, outcome and competence of observation i.
// The slices are copies.
func (m *InterestModel) Observation(i int) (goal, outcome []float64, competence float64, err error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if i < 0 || i >= m.store.Len() {
		return nil, nil, 0, fmt.Errorf("%w: %d (store has %d points)", ErrOutOfRange, i, m.store.Len())
	}
	return slices.Clone(m.store.Goal(i)), slices.Clone(m.store.Outcome(i)), m.store.Competence(i), nil
}

// ExplDims returns the exploration dimensions of the sensorimotor space.
func (m *InterestModel) ExplDims() []int { return slices.Clone(m.explDims) }

// Stats is a point-in-time summary of an interest model.
type Stats struct {
	Observations    int     `json:"observations" yaml:"observations"`
	Regions         int     `json:"regions" yaml:"regions"`
	Leaves          int     `json:"leaves" yaml:"leaves"`
	Depth           int     `json:"depth" yaml:"depth"`
	Progress        float64 `json:"progress" yaml:"progress"`
	MaxLeafProgress float64 `json:"max_leaf_progress" yaml:"max_leaf_progress"`
	ProgressAll     float64 `json:"progress_all" yaml:"progress_all"`
}

// Stats returns a summary of the model.
func (m *InterestModel) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Stats{
		Observations:    m.store.Len(),
		Regions:         m.tree.NumNodes(),
		Leaves:          len(m.tree.Leaves()),
		Depth:           m.tree.Depth(),
		Progress:        m.tree.Progress(),
		MaxLeafProgress: m.tree.MaxLeafProgress(),
		ProgressAll:     m.tree.ProgressAll(),
	}
}

// LogValue summarizes the model's tree for structured logging.
func (m *InterestModel) LogValue() slog.Value {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tree.LogValue()
}
