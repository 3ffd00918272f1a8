package granularity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskforge/conductor/tasktree"
)

func TestDiagnoseFlagsTooDeep(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxDepth = 1

	tree, err := tasktree.Build([]*tasktree.Node{
		{ID: "root", ParentID: ""},
		{ID: "a", ParentID: "root"},
		{ID: "b", ParentID: "a"},
	})
	require.NoError(t, err)

	issues := Diagnose(tree, cfg)
	found := false
	for _, i := range issues {
		if i.Type == IssueTooDeep && i.TaskID == "b" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestDiagnoseFlagsUnbalanced(t *testing.T) {
	cfg := DefaultConfig()
	tree, err := tasktree.Build([]*tasktree.Node{
		{ID: "root", ParentID: ""},
		{ID: "a", ParentID: "root"},
		{ID: "a1", ParentID: "a"},
		{ID: "a1.1", ParentID: "a1"},
		{ID: "a1.1.1", ParentID: "a1.1"},
		{ID: "b", ParentID: "root"},
	})
	require.NoError(t, err)

	issues := Diagnose(tree, cfg)
	found := false
	for _, i := range issues {
		if i.Type == IssueUnbalanced {
			found = true
		}
	}
	assert.True(t, found)
}
