// Package reviewer runs the separate review pass over a worker's attempt:
// its own system prompt, a read-only tool subset, and a verdict that can
// only be delivered through a structured-output tool call.
package reviewer

import (
	"github.com/taskforge/conductor/blueprint"
	"github.com/taskforge/conductor/tasktree"
	"github.com/taskforge/conductor/worker/summary"
)

// Strictness tunes how demanding the verification checklist is.
type Strictness string

const (
	StrictnessLenient Strictness = "lenient"
	StrictnessNormal  Strictness = "normal"
	StrictnessStrict  Strictness = "strict"
)

// RelatedTask is one sibling or dependency task's status, given to the
// reviewer for context on the surrounding tree.
type RelatedTask struct {
	ID     string
	Name   string
	Status tasktree.Status
}

// Context is the review context: everything beyond the task and the
// worker's own summary that the reviewer needs to judge the attempt.
type Context struct {
	ProjectPath  string
	IsRetry      bool
	Attempt      int
	PriorReview  *tasktree.Review
	Blueprint    blueprint.Pick
	RelatedTasks []RelatedTask
	Strictness   Strictness
}

// Request is one reviewer invocation's input.
type Request struct {
	Task    *tasktree.Node
	Summary summary.Summary
	Context Context
}
