// Package worker drives one task's implementation attempt: it builds the
// worker's prompts, runs the agent against a fixed tool set, and reduces the
// resulting event stream into a worker execution summary.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/taskforge/conductor/agent"
	"github.com/taskforge/conductor/contextcollector"
	"github.com/taskforge/conductor/model"
	"github.com/taskforge/conductor/sandbox"
	"github.com/taskforge/conductor/tasktree"
	"github.com/taskforge/conductor/worker/summary"
)

// testRunnerPattern matches shell commands that invoke a recognized test
// runner.
var testRunnerPattern = regexp.MustCompile(`npm test|vitest|jest|pytest|go test|cargo test`)

const testOutputRetainChars = 500

// Request is one worker invocation's input.
type Request struct {
	Task       *tasktree.Node
	Bundle     contextcollector.Bundle
	LastReview *tasktree.Review
	WorkDir    string
	MaxTurns   int
}

// Runner drives a worker attempt through the agent.
type Runner struct {
	agent   *agent.Runner
	logger  *slog.Logger
	outputs *sandbox.OutputStore
}

// New constructs a worker Runner over an agent.Runner already wired to an
// LLM client.
func New(agentRunner *agent.Runner, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{agent: agentRunner, logger: logger}
}

// WithOutputStore persists tool-call output above the store's threshold to
// disk rather than keeping it in the in-memory summary, replacing it there
// with a head/tail excerpt and a pointer to the file. Without a store, tool
// output is kept in the summary unmodified regardless of size.
func (r *Runner) WithOutputStore(store *sandbox.OutputStore) *Runner {
	r.outputs = store
	return r
}

// Run executes one worker attempt and returns its execution summary.
func (r *Runner) Run(ctx context.Context, req Request) summary.Summary {
	started := time.Now()

	report := &statusReport{}
	var questions []string

	tools := agent.NewAllowList(
		ReadFileTool{},
		SearchFilesTool{},
		WriteFileTool{},
		EditFileTool{},
		ShellTool{},
		UpdateStatusTool{Report: report},
		AskUserTool{Questions: &questions},
	)

	sysPrompt := buildSystemPrompt(req.WorkDir, tools.Names())
	initialPrompt := buildInitialPrompt(req.Task, req.Bundle, req.LastReview)

	maxTurns := req.MaxTurns
	if maxTurns <= 0 {
		maxTurns = 25
	}

	events := r.agent.Run(ctx, agent.RunRequest{
		Capability:    string(model.CapabilityCoding),
		SystemPrompt:  sysPrompt,
		InitialPrompt: initialPrompt,
		WorkDir:       req.WorkDir,
		Tools:         tools,
		MaxTurns:      maxTurns,
	})

	s := summary.Summary{}
	var testRun *summary.TestRunStatus
	changedPaths := make(map[string]summary.ChangeType)
	contentPreviews := make(map[string]string)

	for e := range events {
		switch e.Kind {
		case agent.EventToolStart:
			// Nothing recorded here; the matching EventToolEnd carries
			// both input and output together.
		case agent.EventToolEnd:
			rec := summary.ToolCallRecord{
				Name:   e.ToolName,
				Input:  formatToolInput(e.ToolInput),
				Output: e.ToolOutput,
			}
			if e.Err != nil {
				rec.Error = e.Err.Error()
			}
			if r.outputs != nil && e.Err == nil {
				persisted, err := r.outputs.Persist(e.ToolName, e.ToolOutput)
				if err != nil {
					r.logger.Warn("persist tool output", "error", err, "tool", e.ToolName)
				} else {
					rec.Output = persisted.Excerpt
					rec.OutputFile = persisted.FilePath
				}
			}
			s.ToolCalls = append(s.ToolCalls, rec)

			if e.Err == nil {
				switch e.ToolName {
				case "write_file":
					if path, ok := e.ToolInput["path"].(string); ok {
						if _, existed := changedPaths[path]; !existed {
							changedPaths[path] = summary.ChangeCreated
						}
						if content, ok := e.ToolInput["content"].(string); ok {
							contentPreviews[path] = content
						}
					}
				case "edit_file":
					if path, ok := e.ToolInput["path"].(string); ok {
						changedPaths[path] = summary.ChangeModified
						if newText, ok := e.ToolInput["new_text"].(string); ok {
							contentPreviews[path] = newText
						}
					}
				case "run_shell":
					if cmd, ok := e.ToolInput["command"].(string); ok && testRunnerPattern.MatchString(cmd) {
						output := e.ToolOutput
						if len(output) > testOutputRetainChars {
							output = output[:testOutputRetainChars]
						}
						testRun = &summary.TestRunStatus{Ran: true, Passed: true, Output: output}
					}
				}
			} else if e.ToolName == "run_shell" {
				if cmd, ok := e.ToolInput["command"].(string); ok && testRunnerPattern.MatchString(cmd) {
					output := e.ToolOutput
					if len(output) > testOutputRetainChars {
						output = output[:testOutputRetainChars]
					}
					testRun = &summary.TestRunStatus{Ran: true, Passed: false, Output: output}
				}
			}
		case agent.EventError:
			s.Error = e.Err.Error()
		}
	}

	for path, changeType := range changedPaths {
		s.FileChanges = append(s.FileChanges, summary.FileChange{
			Path:           path,
			Type:           changeType,
			ContentPreview: contentPreviews[path],
		})
	}

	s.TestRun = testRun
	s.SelfReportedComplete = report.Status == "completed"
	s.SelfReportMessage = report.Message
	if len(questions) > 0 && s.SelfReportMessage == "" {
		s.SelfReportMessage = fmt.Sprintf("escalated %d question(s) to the operator", len(questions))
	}
	s.Duration = time.Since(started)

	return s
}

// formatToolInput renders a tool call's arguments as compact JSON for the
// execution summary. A nil or unmarshalable map yields an empty string
// rather than failing the run over a reporting detail.
func formatToolInput(input map[string]any) string {
	if len(input) == 0 {
		return ""
	}
	data, err := json.Marshal(input)
	if err != nil {
		return ""
	}
	return string(data)
}
