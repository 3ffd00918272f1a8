package reviewer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/taskforge/conductor/agent"
	"github.com/taskforge/conductor/model"
	"github.com/taskforge/conductor/tasktree"
	"github.com/taskforge/conductor/worker"
)

// DefaultTimeout is the review time budget before it is cancelled and
// treated as a transient, retriable failure.
const DefaultTimeout = 60 * time.Second

// gitQueryPrefixes are the only shell commands the reviewer's restricted
// shell tool will run: non-mutating queries against the project's history.
var gitQueryPrefixes = []string{"git log", "git status", "git diff", "git show", "git blame"}

// ErrNoVerdict is returned when the reviewer's agent run ends — out of
// turns or out of tool calls — without ever calling the structured-output
// verdict tool. This is a hard error, never silently converted into a
// verdict.
var ErrNoVerdict = errors.New("reviewer: agent finished without delivering a verdict")

// Runner drives a review attempt through the agent.
type Runner struct {
	agent    *agent.Runner
	logger   *slog.Logger
	timeout  time.Duration
	maxTurns int
}

// New constructs a reviewer Runner over an agent.Runner already wired to an
// LLM client.
func New(agentRunner *agent.Runner, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{agent: agentRunner, logger: logger, timeout: DefaultTimeout, maxTurns: 15}
}

// WithTimeout overrides the default 60-second review timeout.
func (r *Runner) WithTimeout(d time.Duration) *Runner {
	r.timeout = d
	return r
}

// Review runs one review attempt and returns the resulting Review. A
// timed-out or cancelled context, or an agent run that never calls the
// verdict tool, is returned as an error — never silently downgraded to a
// verdict.
func (r *Runner) Review(ctx context.Context, req Request) (*tasktree.Review, error) {
	started := time.Now()

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	report := &verdictReport{}
	tools := agent.NewAllowList(
		worker.ReadFileTool{},
		worker.SearchFilesTool{},
		worker.ShellTool{AllowedCommandPrefixes: gitQueryPrefixes},
		submitReviewToolImpl{Report: report},
	)

	sysPrompt := buildSystemPrompt(tools.Names())
	initialPrompt := buildInitialPrompt(req)

	events := r.agent.Run(runCtx, agent.RunRequest{
		Capability:    string(model.CapabilityReviewing),
		SystemPrompt:  sysPrompt,
		InitialPrompt: initialPrompt,
		WorkDir:       req.Context.ProjectPath,
		Tools:         tools,
		MaxTurns:      r.maxTurns,
	})

	var runErr error
	for e := range events {
		if e.Kind == agent.EventError {
			runErr = e.Err
		}
	}

	if runCtx.Err() != nil {
		return nil, fmt.Errorf("reviewer: timed out after %s: %w", time.Since(started), runCtx.Err())
	}

	if !report.Called {
		if runErr != nil {
			return nil, fmt.Errorf("%w: %s", ErrNoVerdict, runErr)
		}
		return nil, ErrNoVerdict
	}

	return &tasktree.Review{
		Verdict:     normalizeVerdict(report.Verdict),
		Confidence:  normalizeConfidence(report.Confidence),
		Reasoning:   report.Reasoning,
		Verified:    report.Verified,
		Issues:      report.Issues,
		Suggestions: report.Suggestions,
		Duration:    time.Since(started),
	}, nil
}
