package granularity

import (
	"github.com/taskforge/conductor/blueprint"
	"github.com/taskforge/conductor/tasktree"
)

// TaskAssessment bundles everything the controller computed for a single
// task, so the orchestrator can log or act on the reasoning, not just the
// boolean decision.
type TaskAssessment struct {
	TaskID        string
	Score         float64
	Factors       Factors
	EstimateLines int
	Duration      float64
	ShouldSplit   bool
	Suggestions   []Suggestion
}

// Result is the full output of one controller pass over a tree. The
// controller only returns suggestions and issues; applying them is the
// orchestrator's responsibility.
type Result struct {
	Assessments []TaskAssessment
	MergeGroups []SiblingGroup // sibling groups that qualify for merge
	Issues      []Issue
}

// moduleLookup resolves a task's bound module, or nil if unbound or the
// blueprint has no such module — the controller never fails on a missing
// binding.
type moduleLookup func(moduleID string) *blueprint.Module

// ModuleLookupFrom adapts a blueprint's module list into a moduleLookup.
func ModuleLookupFrom(bp *blueprint.Blueprint) moduleLookup {
	return func(moduleID string) *blueprint.Module {
		if moduleID == "" {
			return nil
		}
		if m, ok := bp.ModuleByID(moduleID); ok {
			return &m
		}
		return nil
	}
}

// Assess runs the full controller pass: scores every node, decides split
// eligibility, collects sibling groups eligible for merge, and runs the
// structural diagnostics. It never mutates the tree.
func Assess(t *tasktree.Tree, lookup moduleLookup, cfg Config) Result {
	nodes := t.AllNodes()
	scores := make(map[string]float64, len(nodes))

	var result Result
	for _, n := range nodes {
		module := lookup(n.ModuleID)
		total, factors := Score(n, module, cfg)
		lines := EstimateLines(n, module, cfg)
		duration := EstimateDuration(lines, factors)
		scores[n.ID] = total

		a := TaskAssessment{
			TaskID:        n.ID,
			Score:         total,
			Factors:       factors,
			EstimateLines: lines,
			Duration:      duration,
			ShouldSplit:   ShouldSplit(n, total, duration, cfg),
		}
		if a.ShouldSplit {
			a.Suggestions = SuggestSplits(n, module)
		}
		result.Assessments = append(result.Assessments, a)
	}

	result.MergeGroups = mergeableSiblingGroups(t, scores, cfg)
	result.Issues = Diagnose(t, cfg)

	return result
}

// mergeableSiblingGroups groups nodes by parent and evaluates ShouldMerge
// per group, returning only the groups that qualify.
func mergeableSiblingGroups(t *tasktree.Tree, scores map[string]float64, cfg Config) []SiblingGroup {
	byParent := make(map[string][]*tasktree.Node)
	for _, n := range t.AllNodes() {
		if n.ParentID == "" {
			continue
		}
		byParent[n.ParentID] = append(byParent[n.ParentID], n)
	}

	var groups []SiblingGroup
	for parent, siblings := range byParent {
		if len(siblings) < 2 {
			continue
		}
		group := SiblingGroup{Parent: parent, Siblings: siblings, Scores: scores}
		if ShouldMerge(group, cfg) {
			groups = append(groups, group)
		}
	}
	return groups
}
