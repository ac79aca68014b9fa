package riac

import "fmt"

// PointStore holds the observations indexed by a tree: goal points, the
// outcomes actually reached and their competence. The three sequences grow
// together and are never reordered, so an index refers to the same
// observation in each of them for the lifetime of the store.
//
// Goal points are stored flat in row-major order: goal i occupies
// goals[i*dims : (i+1)*dims].
type PointStore struct {
	dims        int
	goals       []float64
	outcomes    [][]float64
	competences []float64
}

// NewPointStore returns an empty store for goal points of the given
// dimensionality.
func NewPointStore(dims int) *PointStore {
	return &PointStore{dims: dims}
}

// Append adds an observation and returns its index. goal and outcome are
// copied.
func (s *PointStore) Append(goal, outcome []float64, competence float64) (int, error) {
	if len(goal) != s.dims {
		return 0, fmt.Errorf("%w: goal has %d dims, store has %d", ErrDimensionMismatch, len(goal), s.dims)
	}
	s.goals = append(s.goals, goal...)
	s.outcomes = append(s.outcomes, append([]float64(nil), outcome...))
	s.competences = append(s.competences, competence)
	return len(s.competences) - 1, nil
}

// Len returns the number of observations.
func (s *PointStore) Len() int { return len(s.competences) }

// Dims returns the goal dimensionality.
func (s *PointStore) Dims() int { return s.dims }

// Goal returns goal point i. The returned slice aliases the store and must
// not be modified.
func (s *PointStore) Goal(i int) []float64 {
	return s.goals[i*s.dims : (i+1)*s.dims : (i+1)*s.dims]
}

// Outcome returns the outcome of observation i. The returned slice aliases
// the store and must not be modified.
func (s *PointStore) Outcome(i int) []float64 { return s.outcomes[i] }

// Competence returns the competence of observation i.
func (s *PointStore) Competence(i int) float64 { return s.competences[i] }

func (s *PointStore) coord(i, dim int) float64 { return s.goals[i*s.dims+dim] }
