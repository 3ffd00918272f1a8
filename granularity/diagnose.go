package granularity

import "github.com/taskforge/conductor/tasktree"

// IssueType names a structural problem detected across a full tree pass.
type IssueType string

const (
	IssueTooDeep        IssueType = "too-deep"
	IssueTooShallow     IssueType = "too-shallow"
	IssueTooManyChildren IssueType = "too-many-children"
	IssueUnbalanced     IssueType = "unbalanced"
)

// Severity ranks how urgently an issue should be addressed.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// Issue is one structural diagnostic finding.
type Issue struct {
	Type     IssueType
	Severity Severity
	TaskID   string
	Detail   string
}

// Diagnose produces the structural issue list for a whole tree after one
// full pass. It never mutates the tree or fails except on malformed input —
// the controller is a pure function.
func Diagnose(t *tasktree.Tree, cfg Config) []Issue {
	var issues []Issue
	nodes := t.AllNodes()

	for _, n := range nodes {
		if cfg.MaxDepth > 0 && n.Depth > cfg.MaxDepth {
			issues = append(issues, Issue{IssueTooDeep, SeverityHigh, n.ID, "exceeds configured max depth"})
		}
		if n.IsLeaf() && cfg.MinDepth > 0 && n.Depth < cfg.MinDepth {
			issues = append(issues, Issue{IssueTooShallow, SeverityMedium, n.ID, "leaf sits above the configured min depth"})
		}
		if cfg.MaxChildrenPerNode > 0 && len(n.Children) > cfg.MaxChildrenPerNode {
			issues = append(issues, Issue{IssueTooManyChildren, SeverityMedium, n.ID, "more children than the configured maximum"})
		}
	}

	if issue, ok := unbalancedIssue(t); ok {
		issues = append(issues, issue)
	}

	return issues
}

// unbalancedIssue flags a tree whose leaf depths differ by more than 2.
func unbalancedIssue(t *tasktree.Tree) (Issue, bool) {
	leaves := t.Leaves()
	if len(leaves) == 0 {
		return Issue{}, false
	}
	minDepth, maxDepth := leaves[0].Depth, leaves[0].Depth
	for _, l := range leaves[1:] {
		if l.Depth < minDepth {
			minDepth = l.Depth
		}
		if l.Depth > maxDepth {
			maxDepth = l.Depth
		}
	}
	if maxDepth-minDepth > 2 {
		return Issue{IssueUnbalanced, SeverityLow, t.RootID, "leaf depths span more than 2 levels"}, true
	}
	return Issue{}, false
}
