package riac

import (
	"cmp"
	"fmt"
	"math"
	"slices"
)

// NeighborIndex is the read interface for nearest-neighbor queries over
// goal points. It is implemented by *Tree, *InterestModel and
// *BruteForceIndex.
type NeighborIndex interface {
	// NearestNeighbors returns the opts.K points closest to query, sorted by
	// ascending distance, padding missing slots with {+Inf, store length}.
	NearestNeighbors(query []float64, opts KNNOptions) ([]Neighbor, error)
}

var (
	_ NeighborIndex = (*Tree)(nil)
	_ NeighborIndex = (*InterestModel)(nil)
	_ NeighborIndex = (*BruteForceIndex)(nil)
)

// BruteForceIndex answers nearest-neighbor queries by scanning every point
// of a store. It needs no tree and serves as a reference for small stores.
type BruteForceIndex struct {
	store *PointStore
}

// NewBruteForceIndex returns an exhaustive index over store.
func NewBruteForceIndex(store *PointStore) *BruteForceIndex {
	return &BruteForceIndex{store: store}
}

func (b *BruteForceIndex) NearestNeighbors(query []float64, opts KNNOptions) ([]Neighbor, error) {
	if len(query) != b.store.Dims() {
		return nil, fmt.Errorf("%w: query has %d dims, store has %d", ErrDimensionMismatch, len(query), b.store.Dims())
	}
	if opts.K < 1 {
		return nil, fmt.Errorf("%w: k must be >= 1, got %d", ErrInvalidQuery, opts.K)
	}
	metric, err := MetricForP(opts.P)
	if err != nil {
		return nil, fmt.Errorf("%w, got p=%v", err, opts.P)
	}
	bound := math.Inf(1)
	if opts.UpperBound > 0 {
		bound = opts.UpperBound
	}

	all := make([]Neighbor, 0, b.store.Len())
	for i := 0; i < b.store.Len(); i++ {
		d := metric.Distance(query, b.store.Goal(i))
		if d < bound {
			all = append(all, Neighbor{Dist: d, Index: i})
		}
	}
	slices.SortFunc(all, func(x, y Neighbor) int {
		if c := cmp.Compare(x.Dist, y.Dist); c != 0 {
			return c
		}
		return cmp.Compare(x.Index, y.Index)
	})
	all = all[:min(opts.K, len(all))]
	for len(all) < opts.K {
		all = append(all, Neighbor{Dist: math.Inf(1), Index: b.store.Len()})
	}
	return all, nil
}
