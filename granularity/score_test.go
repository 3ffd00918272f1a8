package granularity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskforge/conductor/blueprint"
	"github.com/taskforge/conductor/tasktree"
)

func TestScoreIsWithinBounds(t *testing.T) {
	cfg := DefaultConfig()
	n := &tasktree.Node{
		ID:          "t1",
		Name:        "implementation of widget",
		Description: "a reasonably detailed description of the work to be done here",
		Acceptance:  []string{"a", "b"},
	}
	total, _ := Score(n, nil, cfg)
	assert.GreaterOrEqual(t, total, 0.0)
	assert.LessOrEqual(t, total, 100.0)
}

func TestScoreIncreasesWithMoreDependenciesAndInterfaces(t *testing.T) {
	cfg := DefaultConfig()
	bare := &tasktree.Node{ID: "bare", Name: "task"}
	loaded := &tasktree.Node{
		ID:           "loaded",
		Name:         "task",
		Dependencies: []string{"a", "b", "c", "d"},
		Acceptance:   []string{"x", "y", "z"},
	}
	module := &blueprint.Module{
		Interfaces: []blueprint.Interface{{Name: "a"}, {Name: "b"}, {Name: "c"}},
	}

	bareScore, _ := Score(bare, nil, cfg)
	loadedScore, _ := Score(loaded, module, cfg)
	assert.Greater(t, loadedScore, bareScore)
}

func TestEstimateLinesAppliesKeywordAndModuleFactors(t *testing.T) {
	cfg := DefaultConfig()
	designTask := &tasktree.Node{Name: "design the API"}
	implTask := &tasktree.Node{Name: "implementation of the API"}

	designLines := EstimateLines(designTask, nil, cfg)
	implLines := EstimateLines(implTask, nil, cfg)
	assert.Less(t, designLines, implLines)
}

func TestEstimateLinesRespectsBounds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxLinesPerTask = 50
	n := &tasktree.Node{Name: "implementation", Description: stringOfLen(500)}
	lines := EstimateLines(n, nil, cfg)
	require.LessOrEqual(t, lines, 50)
}

func stringOfLen(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = 'x'
	}
	return string(b)
}
