// Package scheduler drives the dependency-gated dispatch loop: it computes
// the live tree's ready set, bounds how many tasks run at once, carries
// each dispatched task through context assembly, sandboxed execution,
// review, and sync-back, and applies the retry/cascade-cancellation policy
// to the result.
package scheduler

import (
	"time"

	"github.com/taskforge/conductor/tasktree"
)

// EventKind classifies one scheduler event.
type EventKind string

const (
	EventDispatched EventKind = "dispatched"
	EventRetried    EventKind = "retried"
	EventApproved   EventKind = "approved"
	EventRejected   EventKind = "rejected"
	EventCancelled  EventKind = "cancelled"
	EventError      EventKind = "error"
)

// Event is one task-lifecycle occurrence the scheduler emits as it drains
// completions. The orchestrator facade consumes these to build its own
// coarser-grained event stream.
type Event struct {
	Kind   EventKind
	TaskID string
	Detail string
	At     time.Time
}

// Config bounds the dispatch loop's behavior.
type Config struct {
	ConcurrencyLimit int
	// ProjectPath is the real project root every sandbox copies in from and
	// syncs back to.
	ProjectPath string
	// SandboxBaseDir is where per-worker sandbox directories are created —
	// distinct from ProjectPath.
	SandboxBaseDir  string
	LockDir         string
	ReviewerEnabled bool
}

func (c Config) concurrencyLimit() int {
	if c.ConcurrencyLimit <= 0 {
		return 1
	}
	return c.ConcurrencyLimit
}

// AggregateReport accumulates terminal events for the whole run, returned
// when the scheduler's event stream closes.
type AggregateReport struct {
	Approved  int
	Rejected  int
	Cancelled int
	Errored   int
	Total     int
}

func (r *AggregateReport) record(kind EventKind) {
	r.Total++
	switch kind {
	case EventApproved:
		r.Approved++
	case EventRejected:
		r.Rejected++
	case EventCancelled:
		r.Cancelled++
	case EventError:
		r.Errored++
	}
}

// terminal reports whether a status ends the task's participation in
// dispatch — it will never be re-dispatched.
func terminal(s tasktree.Status) bool {
	return s.Terminal()
}
