package tasktree

import (
	"fmt"
)

// Build assembles a Tree from a flat set of nodes (the initial decomposition
// produced from a blueprint) and validates every structural invariant before
// handing the tree to the scheduler: cycles are detected and rejected at
// tree-load time, so the scheduler is never handed a tree it could deadlock
// on.
//
// nodes must contain exactly one node with an empty ParentID (the root);
// every other node's ParentID must resolve within the set.
func Build(nodes []*Node) (*Tree, error) {
	var root *Node
	byID := make(map[string]*Node, len(nodes))
	for _, n := range nodes {
		if _, dup := byID[n.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateID, n.ID)
		}
		byID[n.ID] = n
		if n.ParentID == "" {
			if root != nil {
				return nil, fmt.Errorf("tasktree: more than one root node (%s and %s)", root.ID, n.ID)
			}
			root = n
		}
	}
	if root == nil {
		return nil, fmt.Errorf("tasktree: no root node found")
	}

	t, err := New(root)
	if err != nil {
		return nil, err
	}

	// Insert the rest breadth-first-ish: repeatedly insert any node whose
	// parent is already present, until no progress is made. This tolerates
	// any input ordering rather than requiring parents before children.
	remaining := make(map[string]*Node, len(nodes))
	for id, n := range byID {
		if id != root.ID {
			remaining[id] = n
		}
	}
	for len(remaining) > 0 {
		progressed := false
		for id, n := range remaining {
			if _, ok := t.Find(n.ParentID); ok {
				if err := t.InsertChild(n.ParentID, n); err != nil {
					return nil, err
				}
				delete(remaining, id)
				progressed = true
			}
		}
		if !progressed {
			ids := make([]string, 0, len(remaining))
			for id := range remaining {
				ids = append(ids, id)
			}
			return nil, fmt.Errorf("%w: nodes with unresolvable parents: %v", ErrUnknownParent, ids)
		}
	}

	if err := t.ValidateInvariants(); err != nil {
		return nil, err
	}

	return t, nil
}

// IsReady reports whether task t is eligible for dispatch: its status is
// pending or blocked, and every dependency has reached approved.
func (t *Tree) IsReady(n *Node) bool {
	if n.Status != StatusPending && n.Status != StatusBlocked {
		return false
	}
	for _, depID := range n.Dependencies {
		dep, ok := t.nodes[depID]
		if !ok || dep.Status != StatusApproved {
			return false
		}
	}
	return true
}

// ReadySet returns every node currently ready for dispatch, ordered by
// priority descending, depth ascending, creation time ascending, and id
// ascending as a final tiebreak.
func (t *Tree) ReadySet() []*Node {
	var ready []*Node
	for _, n := range t.AllNodes() {
		if t.IsReady(n) {
			ready = append(ready, n)
		}
	}
	sortBySelectionOrder(ready)
	return ready
}

func sortBySelectionOrder(nodes []*Node) {
	less := func(i, j int) bool {
		a, b := nodes[i], nodes[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if a.Depth != b.Depth {
			return a.Depth < b.Depth
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	}
	insertionSort(nodes, less)
}

// insertionSort is a small stable sort; the ready sets involved are small
// in practice, so O(n^2) is plenty and it
// avoids importing sort for a four-key comparator that reads better inline.
func insertionSort(nodes []*Node, less func(i, j int) bool) {
	for i := 1; i < len(nodes); i++ {
		for j := i; j > 0 && less(j, j-1); j-- {
			nodes[j], nodes[j-1] = nodes[j-1], nodes[j]
		}
	}
}
