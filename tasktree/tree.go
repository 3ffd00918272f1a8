package tasktree

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// Sentinel errors. Cycle and structural errors are input errors, caught
// before scheduling starts; InvariantError (errors.go) covers violations
// that should never happen once a tree has been built and validated.
var (
	ErrNotFound       = errors.New("tasktree: node not found")
	ErrDuplicateID    = errors.New("tasktree: duplicate node id")
	ErrUnknownParent  = errors.New("tasktree: parent id not present in tree")
	ErrDependencyCycle = errors.New("tasktree: cycle in task dependencies")
	ErrSelfDependency  = errors.New("tasktree: task depends on a descendant of itself")
)

// Tree is the dependency-ordered hierarchy of task nodes grown from a
// blueprint. It exclusively owns its nodes.
type Tree struct {
	RootID string
	nodes  map[string]*Node
}

// New creates an empty tree with the given root node. The root's ParentID
// must be empty and depth 0.
func New(root *Node) (*Tree, error) {
	if root.ParentID != "" {
		return nil, fmt.Errorf("tasktree: root node must have no parent")
	}
	root.Depth = 0
	t := &Tree{
		RootID: root.ID,
		nodes:  map[string]*Node{root.ID: root},
	}
	return t, nil
}

// InsertChild appends a new child under parentID: sets the child's ParentID
// and Depth, appends it to the parent's Children list, and registers it in
// the tree.
func (t *Tree) InsertChild(parentID string, child *Node) error {
	parent, ok := t.nodes[parentID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownParent, parentID)
	}
	if _, exists := t.nodes[child.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateID, child.ID)
	}

	child.ParentID = parentID
	child.Depth = parent.Depth + 1
	if child.CreatedAt.IsZero() {
		child.CreatedAt = time.Now()
	}

	t.nodes[child.ID] = child
	parent.Children = append(parent.Children, child.ID)
	return nil
}

// Find returns the node with the given id.
func (t *Tree) Find(id string) (*Node, bool) {
	n, ok := t.nodes[id]
	return n, ok
}

// MustFind returns the node with the given id, panicking if absent. Reserved
// for call sites that have already validated the id exists (e.g. iterating
// AllNodes results) — never for user-supplied ids.
func (t *Tree) MustFind(id string) *Node {
	n, ok := t.nodes[id]
	if !ok {
		panic(fmt.Sprintf("tasktree: MustFind(%s): %v", id, ErrNotFound))
	}
	return n
}

// AllNodes enumerates every node depth-first, children visited in insertion
// order, root first. The order is deterministic.
func (t *Tree) AllNodes() []*Node {
	var out []*Node
	var walk func(id string)
	walk = func(id string) {
		n, ok := t.nodes[id]
		if !ok {
			return
		}
		out = append(out, n)
		for _, cid := range n.Children {
			walk(cid)
		}
	}
	walk(t.RootID)
	return out
}

// Leaves enumerates nodes with no children, in the same depth-first order as
// AllNodes.
func (t *Tree) Leaves() []*Node {
	var out []*Node
	for _, n := range t.AllNodes() {
		if n.IsLeaf() {
			out = append(out, n)
		}
	}
	return out
}

// UpdateStatus moves a node to a new status, rejecting the move if it is not
// in the lifecycle graph. Approval additionally enforces the dependency
// invariant: a node never becomes approved while any dependency is
// unapproved.
func (t *Tree) UpdateStatus(id string, to Status) error {
	n, ok := t.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if !CanTransition(n.Status, to) {
		return fmt.Errorf("%w: %s -> %s for task %s", ErrIllegalTransition, n.Status, to, id)
	}
	if to == StatusApproved {
		for _, depID := range n.Dependencies {
			dep, ok := t.nodes[depID]
			if !ok || dep.Status != StatusApproved {
				return NewInvariantError(fmt.Sprintf(
					"task %s cannot be approved: dependency %s is not approved", id, depID))
			}
		}
	}
	n.Status = to
	return nil
}

// RecordCheckpoint appends a checkpoint to the node's history. Checkpoints
// are append-only.
func (t *Tree) RecordCheckpoint(id string, cp Checkpoint) error {
	n, ok := t.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if cp.At.IsZero() {
		cp.At = time.Now()
	}
	n.Checkpoints = append(n.Checkpoints, cp)
	return nil
}

// ValidateInvariants checks the tree's structural invariants:
// every non-root parentId resolves, depth equals path length to root,
// every dependency id resolves, dependencies never reference a node's own
// descendants, and no dependency
// cycle exists across the whole tree.
func (t *Tree) ValidateInvariants() error {
	for _, n := range t.nodes {
		if n.ID == t.RootID {
			continue
		}
		if _, ok := t.nodes[n.ParentID]; !ok {
			return NewInvariantError(fmt.Sprintf("node %s has unresolved parent %s", n.ID, n.ParentID))
		}
	}

	for _, n := range t.nodes {
		if d := t.pathDepth(n.ID); d != n.Depth {
			return NewInvariantError(fmt.Sprintf("node %s has depth %d, expected %d", n.ID, n.Depth, d))
		}
	}

	descendants := make(map[string]map[string]bool, len(t.nodes))
	for _, n := range t.nodes {
		descendants[n.ID] = t.descendantSet(n.ID)
	}
	for _, n := range t.nodes {
		for _, dep := range n.Dependencies {
			if _, ok := t.nodes[dep]; !ok {
				return fmt.Errorf("%w: task %s depends on unknown task %s", ErrNotFound, n.ID, dep)
			}
			if descendants[n.ID][dep] {
				return fmt.Errorf("%w: task %s depends on its own descendant %s", ErrSelfDependency, n.ID, dep)
			}
		}
	}

	if cycle := t.findDependencyCycle(); cycle != nil {
		return fmt.Errorf("%w: %v", ErrDependencyCycle, cycle)
	}

	return nil
}

func (t *Tree) pathDepth(id string) int {
	depth := 0
	cur := t.nodes[id]
	for cur != nil && cur.ID != t.RootID {
		depth++
		cur = t.nodes[cur.ParentID]
	}
	return depth
}

func (t *Tree) descendantSet(id string) map[string]bool {
	set := make(map[string]bool)
	var walk func(string)
	walk = func(cur string) {
		n, ok := t.nodes[cur]
		if !ok {
			return
		}
		for _, c := range n.Children {
			set[c] = true
			walk(c)
		}
	}
	walk(id)
	return set
}

// findDependencyCycle runs a DFS over the task dependency graph (distinct
// from the parent/child tree structure) and returns the path of a detected
// cycle, or nil. Grounded on the module-dependency cycle check in
// blueprint.findModuleCycle — same three-color DFS, applied to tasks.
func (t *Tree) findDependencyCycle() []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(t.nodes))
	var path []string
	var cycle []string

	ids := make([]string, 0, len(t.nodes))
	for id := range t.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = gray
		path = append(path, id)
		n := t.nodes[id]
		for _, dep := range n.Dependencies {
			switch color[dep] {
			case gray:
				cycle = append(append([]string{}, path...), dep)
				return true
			case white:
				if visit(dep) {
					return true
				}
			}
		}
		path = path[:len(path)-1]
		color[id] = black
		return false
	}

	for _, id := range ids {
		if color[id] == white {
			if visit(id) {
				return cycle
			}
		}
	}
	return nil
}
