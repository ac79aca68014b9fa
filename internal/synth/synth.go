// Package synth provides a synthetic sensorimotor learner for exercising an
// interest model end to end.
//
// The learner reaches for goals in a box. Inside "learnable" sub-boxes its
// reaching noise shrinks with the number of goals already tried nearby, so
// competence there improves over time; elsewhere the noise never changes.
// An interest model driven by learning progress should end up favoring the
// learnable boxes.
package synth

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/TrevorS/riac"
)

// Config describes a learner.
type Config struct {
	// GoalBounds is the goal space.
	GoalBounds riac.Bounds
	// Learnable lists the sub-boxes of GoalBounds where practice helps.
	Learnable []riac.Bounds
	// OutcomeDims is the number of outcome features appended to each
	// reached vector after the goal coordinates.
	OutcomeDims int
	// Noise is the reaching noise as a fraction of each goal extent.
	Noise float64
	// Decay multiplies the noise once per nearby goal inside a learnable box.
	Decay float64
	// Radius is the distance under which a past goal counts as nearby.
	Radius float64
	// Neighbors caps the number of nearby goals that count.
	Neighbors int
	// Seed seeds the noise source.
	Seed uint64
}

// Learner is a toy reaching model. It is not safe for concurrent use.
type Learner struct {
	cfg    Config
	index  riac.NeighborIndex
	normal distuv.Normal
}

// New returns a learner whose experience is counted through index, usually
// the interest model that records its observations.
func New(cfg Config, index riac.NeighborIndex) (*Learner, error) {
	gd := cfg.GoalBounds.Dims()
	if gd == 0 || len(cfg.GoalBounds.Max) != gd {
		return nil, errors.New("synth: goal bounds must have matching non-zero min and max")
	}
	for i, b := range cfg.Learnable {
		if b.Dims() != gd || len(b.Max) != gd {
			return nil, fmt.Errorf("synth: learnable box %d has %d dims, want %d", i, b.Dims(), gd)
		}
	}
	if index == nil {
		return nil, errors.New("synth: neighbor index is nil")
	}
	if cfg.Noise < 0 || cfg.Decay <= 0 || cfg.Decay > 1 {
		return nil, fmt.Errorf("synth: need noise >= 0 and decay in (0, 1], got %v and %v", cfg.Noise, cfg.Decay)
	}
	if !(cfg.Radius > 0) || cfg.Neighbors < 1 {
		return nil, fmt.Errorf("synth: need radius > 0 and neighbors >= 1, got %v and %d", cfg.Radius, cfg.Neighbors)
	}
	if cfg.OutcomeDims < 0 {
		return nil, fmt.Errorf("synth: outcome dims must be >= 0, got %d", cfg.OutcomeDims)
	}
	return &Learner{
		cfg:    cfg,
		index:  index,
		normal: distuv.Normal{Mu: 0, Sigma: 1, Src: rand.NewPCG(cfg.Seed, cfg.Seed+1)},
	}, nil
}

// SpaceBounds returns the sensorimotor space: the goal coordinates followed
// by OutcomeDims features in [-1, 1].
func SpaceBounds(goal riac.Bounds, outcomeDims int) riac.Bounds {
	b := goal.Clone()
	for i := 0; i < outcomeDims; i++ {
		b.Min = append(b.Min, -1)
		b.Max = append(b.Max, 1)
	}
	return b
}

// SpaceBounds returns the learner's sensorimotor space.
func (l *Learner) SpaceBounds() riac.Bounds {
	return SpaceBounds(l.cfg.GoalBounds, l.cfg.OutcomeDims)
}

// ExplDims returns the goal coordinates of the sensorimotor space.
func (l *Learner) ExplDims() []int {
	dims := make([]int, l.cfg.GoalBounds.Dims())
	for i := range dims {
		dims[i] = i
	}
	return dims
}

// Learnable reports whether goal lies in a learnable box.
func (l *Learner) Learnable(goal []float64) bool {
	for _, b := range l.cfg.Learnable {
		if b.Contains(goal) {
			return true
		}
	}
	return false
}

// Experience returns the number of indexed goals closer than Radius to
// goal, capped at Neighbors.
func (l *Learner) Experience(goal []float64) (int, error) {
	nbrs, err := l.index.NearestNeighbors(goal, riac.KNNOptions{K: l.cfg.Neighbors, UpperBound: l.cfg.Radius})
	if err != nil {
		return 0, err
	}
	n := 0
	for _, nb := range nbrs {
		if !math.IsInf(nb.Dist, 1) {
			n++
		}
	}
	return n, nil
}

// NoiseAt returns the relative reaching noise at goal.
func (l *Learner) NoiseAt(goal []float64) (float64, error) {
	if !l.Learnable(goal) {
		return l.cfg.Noise, nil
	}
	n, err := l.Experience(goal)
	if err != nil {
		return 0, err
	}
	return l.cfg.Noise * math.Pow(l.cfg.Decay, float64(n)), nil
}

// Step reaches for goal. target is the intended sensorimotor vector and
// reached the noisy one actually obtained; both span SpaceBounds.
func (l *Learner) Step(goal []float64) (target, reached []float64, err error) {
	gb := l.cfg.GoalBounds
	if len(goal) != gb.Dims() {
		return nil, nil, fmt.Errorf("%w: goal has %d dims, want %d", riac.ErrDimensionMismatch, len(goal), gb.Dims())
	}
	sigma, err := l.NoiseAt(goal)
	if err != nil {
		return nil, nil, err
	}

	target = append(make([]float64, 0, len(goal)+l.cfg.OutcomeDims), goal...)
	reached = make([]float64, 0, cap(target))
	for d, g := range goal {
		reached = append(reached, g+sigma*(gb.Max[d]-gb.Min[d])*l.normal.Rand())
	}
	for j := 0; j < l.cfg.OutcomeDims; j++ {
		f := l.feature(goal, j)
		target = append(target, f)
		reached = append(reached, f+sigma*l.normal.Rand())
	}
	return target, reached, nil
}

// feature j is a cosine of one normalized goal coordinate, in [-1, 1].
func (l *Learner) feature(goal []float64, j int) float64 {
	gb := l.cfg.GoalBounds
	d := j % len(goal)
	u := 0.0
	if ext := gb.Max[d] - gb.Min[d]; ext > 0 {
		u = (goal[d] - gb.Min[d]) / ext
	}
	return math.Cos(math.Pi * float64(j+1) * u)
}
