package riac

// FoldUp folds the subtree rooted at from bottom-up: leaf maps a leaf to a
// value and inter combines an internal node with the values of its lower
// and greater children. The traversal is iterative, so deep trees do not
// grow the goroutine stack.
func FoldUp[T any](t *Tree, from NodeID, inter func(n *Node, lower, greater T) T, leaf func(n *Node) T) T {
	type frame struct {
		id      NodeID
		visited bool
	}
	results := make(map[NodeID]T)
	stack := []frame{{id: from}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := t.nodes[f.id]
		if n.leaf {
			results[f.id] = leaf(n)
			continue
		}
		if !f.visited {
			stack = append(stack, frame{id: f.id, visited: true}, frame{id: n.greater}, frame{id: n.lower})
			continue
		}
		results[f.id] = inter(n, results[n.lower], results[n.greater])
		delete(results, n.lower)
		delete(results, n.greater)
	}
	return results[from]
}

// Leaves returns the leaf handles of the tree, lower subtrees first.
func (t *Tree) Leaves() []NodeID {
	return FoldUp(t, rootID,
		func(_ *Node, lower, greater []NodeID) []NodeID { return append(lower, greater...) },
		func(n *Node) []NodeID { return []NodeID{n.id} })
}

// Nodes returns every node handle in post-order.
func (t *Tree) Nodes() []NodeID {
	return FoldUp(t, rootID,
		func(n *Node, lower, greater []NodeID) []NodeID {
			return append(append(lower, greater...), n.id)
		},
		func(n *Node) []NodeID { return []NodeID{n.id} })
}

// Depth returns the maximum leaf depth. A tree with a single region has
// depth 0.
func (t *Tree) Depth() int {
	return FoldUp(t, rootID,
		func(_ *Node, lower, greater int) int { return 1 + max(lower, greater) },
		func(*Node) int { return 0 })
}
