package riac

import (
	"cmp"
	"container/heap"
	"fmt"
	"math"
	"slices"
)

// KNNOptions configures a nearest-neighbor query.
type KNNOptions struct {
	// K is the number of neighbors to return. Must be >= 1.
	K int

	// P selects the Minkowski p-norm, 1 <= P <= +Inf. 0 means 2.
	P float64

	// Eps allows approximate search: the i-th returned neighbor is at most
	// (1+Eps) times farther than the true i-th neighbor. Must be >= 0.
	Eps float64

	// UpperBound discards neighbors at distance >= UpperBound. 0 means no
	// bound; pass a tiny positive value to reject every neighbor.
	UpperBound float64
}

// Neighbor is one result of a nearest-neighbor query. Index is the point
// store index, or the store length for an unfilled slot (Dist = +Inf).
type Neighbor struct {
	Dist  float64
	Index int
}

// NearestNeighbors returns the opts.K indexed points closest to query,
// sorted by ascending distance (ties by ascending index). When fewer than K
// points qualify, the remaining slots hold {+Inf, store length}.
//
// The search is best-first over the tree's regions: each region is bounded
// by the box enclosing its points and skipped once that box is farther than
// the current K-th best candidate.
func (t *Tree) NearestNeighbors(query []float64, opts KNNOptions) ([]Neighbor, error) {
	if len(query) != t.dims {
		return nil, fmt.Errorf("%w: query has %d dims, tree has %d", ErrDimensionMismatch, len(query), t.dims)
	}
	if opts.K < 1 {
		return nil, fmt.Errorf("%w: k must be >= 1, got %d", ErrInvalidQuery, opts.K)
	}
	if opts.Eps < 0 || math.IsNaN(opts.Eps) {
		return nil, fmt.Errorf("%w: eps must be >= 0, got %v", ErrInvalidQuery, opts.Eps)
	}
	if opts.UpperBound < 0 || math.IsNaN(opts.UpperBound) {
		return nil, fmt.Errorf("%w: distance upper bound must be >= 0, got %v", ErrInvalidQuery, opts.UpperBound)
	}
	metric, err := MetricForP(opts.P)
	if err != nil {
		return nil, fmt.Errorf("%w, got p=%v", err, opts.P)
	}

	bound := math.Inf(1)
	if opts.UpperBound > 0 {
		bound = metric.DistToRdist(opts.UpperBound)
	}

	// Pruning scale in reduced-distance space.
	epsfac := 1.0
	if opts.Eps > 0 {
		if p := metric.P(); math.IsInf(p, 1) {
			epsfac = 1 / (1 + opts.Eps)
		} else {
			epsfac = 1 / math.Pow(1+opts.Eps, p)
		}
	}

	best := &knnHeap{}
	queue := &regionQueue{}
	root := t.nodes[rootID]
	heap.Push(queue, regionItem{id: rootID, rdist: minRdistBox(metric, root.dataMin, root.dataMax, query)})

	for queue.Len() > 0 {
		item := heap.Pop(queue).(regionItem)
		limit := bound
		if best.Len() == opts.K {
			limit = math.Min(limit, (*best)[0].dist)
		}
		if item.rdist > limit*epsfac || math.IsInf(item.rdist, 1) {
			break
		}

		n := t.nodes[item.id]
		if n.leaf {
			for _, idx := range n.members {
				d := metric.ReducedDistance(query, t.store.Goal(idx))
				if d >= bound {
					continue
				}
				if best.Len() < opts.K {
					heap.Push(best, knnItem{index: idx, dist: d})
				} else if d < (*best)[0].dist || (d == (*best)[0].dist && idx < (*best)[0].index) {
					(*best)[0] = knnItem{index: idx, dist: d}
					heap.Fix(best, 0)
				}
			}
			continue
		}

		for _, c := range [2]NodeID{n.lower, n.greater} {
			child := t.nodes[c]
			if len(child.members) == 0 {
				continue
			}
			heap.Push(queue, regionItem{id: c, rdist: minRdistBox(metric, child.dataMin, child.dataMax, query)})
		}
	}

	out := make([]Neighbor, 0, opts.K)
	for _, it := range *best {
		out = append(out, Neighbor{Dist: metric.RdistToDist(it.dist), Index: it.index})
	}
	slices.SortFunc(out, func(a, b Neighbor) int {
		if c := cmp.Compare(a.Dist, b.Dist); c != 0 {
			return c
		}
		return cmp.Compare(a.Index, b.Index)
	})
	for len(out) < opts.K {
		out = append(out, Neighbor{Dist: math.Inf(1), Index: t.store.Len()})
	}
	return out, nil
}

// --- max-heap for KNN candidates ---

type knnItem struct {
	index int
	dist  float64
}

// knnHeap is a max-heap of knnItem (largest distance on top, larger index
// first on ties) used as a bounded priority queue.
type knnHeap []knnItem

func (h knnHeap) Len() int { return len(h) }
func (h knnHeap) Less(i, j int) bool {
	if h[i].dist != h[j].dist {
		return h[i].dist > h[j].dist
	}
	return h[i].index > h[j].index
}
func (h knnHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *knnHeap) Push(x any)   { *h = append(*h, x.(knnItem)) }
func (h *knnHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// --- min-heap of regions to visit ---

type regionItem struct {
	id    NodeID
	rdist float64
}

type regionQueue []regionItem

func (q regionQueue) Len() int           { return len(q) }
func (q regionQueue) Less(i, j int) bool { return q[i].rdist < q[j].rdist }
func (q regionQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *regionQueue) Push(x any)        { *q = append(*q, x.(regionItem)) }
func (q *regionQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}
