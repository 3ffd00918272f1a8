package granularity

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/taskforge/conductor/blueprint"
	"github.com/taskforge/conductor/tasktree"
)

func TestShouldSplitAtExactBoundaryDoesNotSplit(t *testing.T) {
	cfg := DefaultConfig()
	n := &tasktree.Node{ID: "t1", Depth: 2}
	// A task at exactly maxTaskComplexity does not split: the rule is
	// strictly greater-than.
	assert.False(t, ShouldSplit(n, cfg.MaxTaskComplexity, 0, cfg))
}

func TestShouldSplitOnComplexityOverMax(t *testing.T) {
	cfg := DefaultConfig()
	n := &tasktree.Node{ID: "t1", Depth: 2}
	assert.True(t, ShouldSplit(n, cfg.MaxTaskComplexity+0.01, 0, cfg))
}

func TestShouldSplitOnTooManyChildren(t *testing.T) {
	cfg := DefaultConfig()
	n := &tasktree.Node{ID: "t1", Children: make([]string, cfg.MaxChildrenPerNode+1)}
	assert.True(t, ShouldSplit(n, 0, 0, cfg))
}

func TestShouldMergeOnTwoLowScoringSiblings(t *testing.T) {
	cfg := DefaultConfig()
	siblings := []*tasktree.Node{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	scores := map[string]float64{"a": 5, "b": 5, "c": 90}
	group := SiblingGroup{Parent: "p", Siblings: siblings, Scores: scores}
	assert.True(t, ShouldMerge(group, cfg))
}

func TestShouldMergeFalseWhenOnlyOneLowScoring(t *testing.T) {
	cfg := DefaultConfig()
	siblings := []*tasktree.Node{{ID: "a"}, {ID: "b"}}
	scores := map[string]float64{"a": 5, "b": 90}
	group := SiblingGroup{Parent: "p", Siblings: siblings, Scores: scores}
	assert.False(t, ShouldMerge(group, cfg))
}

func TestExactChildrenCountDoesNotMergeOnCountAlone(t *testing.T) {
	cfg := DefaultConfig()
	siblings := make([]*tasktree.Node, cfg.MaxChildrenPerNode)
	scores := make(map[string]float64, len(siblings))
	for i := range siblings {
		id := string(rune('a' + i))
		siblings[i] = &tasktree.Node{ID: id, Name: "distinct-" + id, Description: "distinct-" + id}
		scores[id] = 50 // above the <30 average-score trigger
	}
	group := SiblingGroup{Parent: "p", Siblings: siblings, Scores: scores}
	// A sibling group of exactly maxChildrenPerNode does not merge purely
	// on count.
	assert.False(t, ShouldMerge(group, cfg))
}

func TestShouldSplitAndShouldMergeNeverBothTrue(t *testing.T) {
	cfg := DefaultConfig()
	n := &tasktree.Node{ID: "t1", Depth: 2}
	total := cfg.MaxTaskComplexity + 10
	split := ShouldSplit(n, total, 0, cfg)

	siblings := []*tasktree.Node{{ID: "t1"}, {ID: "t2"}}
	scores := map[string]float64{"t1": total, "t2": total}
	merge := ShouldMerge(SiblingGroup{Parent: "p", Siblings: siblings, Scores: scores}, cfg)

	assert.False(t, split && merge)
}

func TestSuggestSplitsCapsAtFive(t *testing.T) {
	module := &blueprint.Module{
		Type: blueprint.ModuleBackend,
		Interfaces: []blueprint.Interface{
			{Name: "a"}, {Name: "b"}, {Name: "c"}, {Name: "d"},
		},
	}
	n := &tasktree.Node{
		Name:         "task",
		Description:  "do this and also that",
		Dependencies: []string{"1", "2", "3", "4"},
	}
	suggestions := SuggestSplits(n, module)
	assert.LessOrEqual(t, len(suggestions), 5)
}
