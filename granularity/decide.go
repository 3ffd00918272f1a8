package granularity

import (
	"strings"

	"github.com/taskforge/conductor/blueprint"
	"github.com/taskforge/conductor/tasktree"
)

// ShouldSplit reports whether a task's complexity, duration, child count, or
// depth warrants splitting it (any one condition is enough). total and
// duration come from Score/EstimateDuration for the same task.
func ShouldSplit(n *tasktree.Node, total float64, duration float64, cfg Config) bool {
	maxComplexity := cfg.MaxTaskComplexity
	if maxComplexity <= 0 {
		maxComplexity = 75
	}
	if total > maxComplexity {
		return true
	}
	if cfg.MaxTaskDuration > 0 && duration > cfg.MaxTaskDuration {
		return true
	}
	if cfg.MaxChildrenPerNode > 0 && len(n.Children) > cfg.MaxChildrenPerNode {
		return true
	}
	if n.Depth < cfg.MinDepth && total > 50 && n.IsLeaf() {
		return true
	}
	return false
}

// SiblingGroup is the input to ShouldMerge: a set of sibling tasks sharing a
// parent, each with its already-computed complexity score.
type SiblingGroup struct {
	Parent   string
	Siblings []*tasktree.Node
	Scores   map[string]float64 // task id -> total score
}

// ShouldMerge reports whether a sibling group (same parent) is a merge
// candidate. It only ever considers siblings, never cousins or unrelated
// nodes.
func ShouldMerge(group SiblingGroup, cfg Config) bool {
	minComplexity := cfg.MinTaskComplexity
	if minComplexity <= 0 {
		minComplexity = 15
	}

	below := 0
	var sum float64
	for _, s := range group.Siblings {
		score := group.Scores[s.ID]
		sum += score
		if score < minComplexity {
			below++
		}
	}
	if below >= 2 {
		return true
	}

	if cfg.MaxChildrenPerNode > 0 && len(group.Siblings) > cfg.MaxChildrenPerNode {
		avg := sum / float64(len(group.Siblings))
		if avg < 30 {
			return true
		}
	}

	if related, avg := relatedGroupAverage(group); related && avg < 1.5*minComplexity {
		return true
	}

	return false
}

// relatedGroupAverage detects a "related group": same module, or at least
// two shared name keywords, or description word-overlap above 0.3. Returns
// whether the whole sibling set qualifies and its average score if so.
func relatedGroupAverage(group SiblingGroup) (bool, float64) {
	if len(group.Siblings) < 2 {
		return false, 0
	}

	sameModule := true
	first := group.Siblings[0]
	for _, s := range group.Siblings[1:] {
		if s.ModuleID != first.ModuleID || first.ModuleID == "" {
			sameModule = false
			break
		}
	}

	sharedKeywords := countSharedKeywords(group.Siblings) >= 2
	overlap := averageDescriptionOverlap(group.Siblings) > 0.3

	if !sameModule && !sharedKeywords && !overlap {
		return false, 0
	}

	var sum float64
	for _, s := range group.Siblings {
		sum += group.Scores[s.ID]
	}
	return true, sum / float64(len(group.Siblings))
}

func countSharedKeywords(nodes []*tasktree.Node) int {
	counts := make(map[string]int)
	for _, n := range nodes {
		seen := make(map[string]bool)
		for _, w := range strings.Fields(strings.ToLower(n.Name)) {
			if !seen[w] {
				counts[w]++
				seen[w] = true
			}
		}
	}
	shared := 0
	for _, c := range counts {
		if c >= 2 {
			shared++
		}
	}
	return shared
}

// averageDescriptionOverlap computes the Jaccard-style overlap of
// description.toLowerCase().split(/\s+/) word sets across all sibling pairs,
// averaged. This is intentionally English-biased (no CJK tokenizer).
func averageDescriptionOverlap(nodes []*tasktree.Node) float64 {
	if len(nodes) < 2 {
		return 0
	}
	wordSets := make([]map[string]bool, len(nodes))
	for i, n := range nodes {
		set := make(map[string]bool)
		for _, w := range strings.Fields(strings.ToLower(n.Description)) {
			set[w] = true
		}
		wordSets[i] = set
	}

	var totalOverlap float64
	pairs := 0
	for i := 0; i < len(wordSets); i++ {
		for j := i + 1; j < len(wordSets); j++ {
			totalOverlap += jaccard(wordSets[i], wordSets[j])
			pairs++
		}
	}
	if pairs == 0 {
		return 0
	}
	return totalOverlap / float64(pairs)
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	intersection := 0
	for w := range a {
		if b[w] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// SplitStrategy names a recommended way to break up a task.
type SplitStrategy string

const (
	StrategyByFunction   SplitStrategy = "by-function"
	StrategyByLayer      SplitStrategy = "by-layer"
	StrategyByDependency SplitStrategy = "by-dependency"
	StrategyByInterface  SplitStrategy = "by-interface"
)

// Suggestion is one recommended split, named and described for the
// orchestrator or a human to act on.
type Suggestion struct {
	Strategy    SplitStrategy
	Description string
}

var conjunctions = []string{" and ", " then ", " or ", ", and "}

// SuggestSplits chooses split strategies by pattern, capped at five
// suggestions.
func SuggestSplits(n *tasktree.Node, module *blueprint.Module) []Suggestion {
	var out []Suggestion
	lowerDesc := strings.ToLower(n.Description)

	for _, conj := range conjunctions {
		if strings.Contains(lowerDesc, conj) {
			out = append(out, Suggestion{StrategyByFunction, "split into two halves along the conjunction in the description"})
			break
		}
	}

	if module != nil {
		switch module.Type {
		case blueprint.ModuleFrontend:
			out = append(out, Suggestion{StrategyByLayer, "split into UI and logic layers"})
		case blueprint.ModuleBackend:
			out = append(out, Suggestion{StrategyByLayer, "split into API, logic, and data layers"})
		}
	}

	if len(n.Dependencies) > 3 {
		out = append(out, Suggestion{StrategyByDependency, "split into an integration task and a core-logic task"})
	}

	if module != nil && len(module.Interfaces) > 2 {
		limit := len(module.Interfaces)
		if limit > 3 {
			limit = 3
		}
		for i := 0; i < limit; i++ {
			out = append(out, Suggestion{StrategyByInterface, "one child per interface: " + module.Interfaces[i].Name})
		}
	}

	if len(out) > 5 {
		out = out[:5]
	}
	return out
}
