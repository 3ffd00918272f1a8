package tasktree

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newNode(id, parent string) *Node {
	return &Node{ID: id, ParentID: parent, Status: StatusPending, CreatedAt: time.Now()}
}

func TestInsertChildSetsDepthAndParent(t *testing.T) {
	root := newNode("root", "")
	tree, err := New(root)
	require.NoError(t, err)

	child := newNode("c1", "")
	require.NoError(t, tree.InsertChild("root", child))
	assert.Equal(t, 1, child.Depth)
	assert.Equal(t, "root", child.ParentID)
	assert.Equal(t, []string{"c1"}, root.Children)

	grandchild := newNode("c1.1", "")
	require.NoError(t, tree.InsertChild("c1", grandchild))
	assert.Equal(t, 2, grandchild.Depth)
}

func TestInsertChildRejectsUnknownParent(t *testing.T) {
	tree, _ := New(newNode("root", ""))
	err := tree.InsertChild("ghost", newNode("c1", ""))
	assert.ErrorIs(t, err, ErrUnknownParent)
}

func TestAllNodesDepthFirstInsertionOrder(t *testing.T) {
	tree, _ := New(newNode("root", ""))
	require.NoError(t, tree.InsertChild("root", newNode("a", "")))
	require.NoError(t, tree.InsertChild("root", newNode("b", "")))
	require.NoError(t, tree.InsertChild("a", newNode("a1", "")))

	ids := make([]string, 0)
	for _, n := range tree.AllNodes() {
		ids = append(ids, n.ID)
	}
	assert.Equal(t, []string{"root", "a", "a1", "b"}, ids)
}

func TestLeaves(t *testing.T) {
	tree, _ := New(newNode("root", ""))
	require.NoError(t, tree.InsertChild("root", newNode("a", "")))
	require.NoError(t, tree.InsertChild("root", newNode("b", "")))
	require.NoError(t, tree.InsertChild("a", newNode("a1", "")))

	var ids []string
	for _, n := range tree.Leaves() {
		ids = append(ids, n.ID)
	}
	assert.ElementsMatch(t, []string{"a1", "b"}, ids)
}

func TestUpdateStatusRejectsIllegalTransition(t *testing.T) {
	tree, _ := New(newNode("root", ""))
	err := tree.UpdateStatus("root", StatusApproved)
	assert.ErrorIs(t, err, ErrIllegalTransition)
}

func TestUpdateStatusEnforcesApprovalDependencyInvariant(t *testing.T) {
	tree, _ := New(newNode("root", ""))
	a := newNode("a", "")
	a.Status = StatusPending
	require.NoError(t, tree.InsertChild("root", a))

	b := newNode("b", "")
	b.Dependencies = []string{"a"}
	require.NoError(t, tree.InsertChild("root", b))

	require.NoError(t, tree.UpdateStatus("b", StatusCoding))
	require.NoError(t, tree.UpdateStatus("b", StatusTesting))
	require.NoError(t, tree.UpdateStatus("b", StatusPassed))

	err := tree.UpdateStatus("b", StatusApproved)
	var invErr *InvariantError
	assert.ErrorAs(t, err, &invErr)
}

func TestUpdateStatusApprovesOnceDependencySatisfied(t *testing.T) {
	tree, _ := New(newNode("root", ""))
	a := newNode("a", "")
	require.NoError(t, tree.InsertChild("root", a))
	b := newNode("b", "")
	b.Dependencies = []string{"a"}
	require.NoError(t, tree.InsertChild("root", b))

	require.NoError(t, tree.UpdateStatus("a", StatusCoding))
	require.NoError(t, tree.UpdateStatus("a", StatusTesting))
	require.NoError(t, tree.UpdateStatus("a", StatusPassed))
	require.NoError(t, tree.UpdateStatus("a", StatusApproved))

	require.NoError(t, tree.UpdateStatus("b", StatusCoding))
	require.NoError(t, tree.UpdateStatus("b", StatusTesting))
	require.NoError(t, tree.UpdateStatus("b", StatusPassed))
	require.NoError(t, tree.UpdateStatus("b", StatusApproved))
}

func TestRecordCheckpointAppendsOnly(t *testing.T) {
	tree, _ := New(newNode("root", ""))
	require.NoError(t, tree.RecordCheckpoint("root", Checkpoint{Kind: "note", Note: "first"}))
	require.NoError(t, tree.RecordCheckpoint("root", Checkpoint{Kind: "note", Note: "second"}))

	root, _ := tree.Find("root")
	require.Len(t, root.Checkpoints, 2)
	assert.Equal(t, "first", root.Checkpoints[0].Note)
	assert.Equal(t, "second", root.Checkpoints[1].Note)
}

func TestValidateInvariantsDetectsSelfDependencyOnDescendant(t *testing.T) {
	tree, _ := New(newNode("root", ""))
	child := newNode("c1", "")
	require.NoError(t, tree.InsertChild("root", child))
	root, _ := tree.Find("root")
	root.Dependencies = []string{"c1"}

	err := tree.ValidateInvariants()
	assert.ErrorIs(t, err, ErrSelfDependency)
}

func TestValidateInvariantsDetectsDependencyCycle(t *testing.T) {
	tree, _ := New(newNode("root", ""))
	a := newNode("a", "")
	require.NoError(t, tree.InsertChild("root", a))
	b := newNode("b", "")
	require.NoError(t, tree.InsertChild("root", b))

	a.Dependencies = []string{"b"}
	b.Dependencies = []string{"a"}

	err := tree.ValidateInvariants()
	assert.ErrorIs(t, err, ErrDependencyCycle)
}
