package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/taskforge/conductor/llm"
)

// RunRequest is the runner's input: system prompt, initial prompt, working
// directory, allowed tools, and a turn cap.
type RunRequest struct {
	Capability    string
	SystemPrompt  string
	InitialPrompt string
	WorkDir       string
	Tools         *AllowList
	MaxTurns      int
}

// llmCompleter is the subset of the LLM client the runner depends on.
// Extracted as an interface to enable testing with mock responses.
type llmCompleter interface {
	Complete(ctx context.Context, req llm.Request) (*llm.Response, error)
}

// Runner drives a bounded conversation with an LLM client, emitting events
// on a channel as it goes. Grounded on processor/developer/component.go's
// executeDevelopment tool loop, generalized to any capability and any Tool
// set rather than a hard-coded agentic-tools registry.
type Runner struct {
	client llmCompleter
	logger *slog.Logger
}

// NewRunner creates a Runner over the given LLM client.
func NewRunner(client llmCompleter, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{client: client, logger: logger}
}

// Run executes the bounded conversation described by req, returning a
// channel of events. The channel is closed after an EventDone or EventError
// is sent. The runner enforces the tool allow-list (any call to a tool name
// not in req.Tools is rejected without invoking the client's capability) and
// the turn cap.
func (r *Runner) Run(ctx context.Context, req RunRequest) <-chan Event {
	events := make(chan Event, 16)

	go func() {
		defer close(events)
		r.run(ctx, req, events)
	}()

	return events
}

func (r *Runner) run(ctx context.Context, req RunRequest, events chan<- Event) {
	maxTurns := req.MaxTurns
	if maxTurns <= 0 {
		maxTurns = 1
	}

	messages := []llm.Message{
		{Role: "system", Content: req.SystemPrompt},
		{Role: "user", Content: req.InitialPrompt},
	}

	var toolDefs []llm.ToolDefinition
	if req.Tools != nil {
		for _, name := range req.Tools.Names() {
			t, _ := req.Tools.Lookup(name)
			toolDefs = append(toolDefs, llm.ToolDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			})
		}
	}

	for turn := 0; turn < maxTurns; turn++ {
		select {
		case <-ctx.Done():
			events <- Event{Kind: EventError, Err: ctx.Err()}
			return
		default:
		}

		llmReq := llm.Request{
			Capability: req.Capability,
			Messages:   messages,
		}
		if len(toolDefs) > 0 {
			llmReq.Tools = toolDefs
			llmReq.ToolChoice = "auto"
		}

		resp, err := r.client.Complete(ctx, llmReq)
		if err != nil {
			events <- Event{Kind: EventError, Err: fmt.Errorf("agent: llm completion (turn %d): %w", turn, err)}
			return
		}

		if resp.Content != "" {
			events <- Event{Kind: EventText, Text: resp.Content}
		}

		if len(resp.ToolCalls) == 0 {
			events <- Event{Kind: EventDone}
			return
		}

		messages = append(messages, llm.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		for _, tc := range resp.ToolCalls {
			events <- Event{Kind: EventToolStart, ToolCallID: tc.ID, ToolName: tc.Name, ToolInput: tc.Arguments}

			output, toolErr := r.invoke(ctx, req, tc)
			if toolErr != nil {
				events <- Event{Kind: EventToolEnd, ToolCallID: tc.ID, ToolName: tc.Name, ToolInput: tc.Arguments, Err: toolErr}
				messages = append(messages, llm.Message{Role: "tool", ToolCallID: tc.ID, Content: "Error: " + toolErr.Error()})
				continue
			}

			events <- Event{Kind: EventToolEnd, ToolCallID: tc.ID, ToolName: tc.Name, ToolInput: tc.Arguments, ToolOutput: output}
			messages = append(messages, llm.Message{Role: "tool", ToolCallID: tc.ID, Content: output})
		}
	}

	events <- Event{Kind: EventError, Err: fmt.Errorf("agent: max turns (%d) exceeded", maxTurns)}
}

// invoke enforces the allow-list before dispatching to the tool's Execute.
func (r *Runner) invoke(ctx context.Context, req RunRequest, tc llm.ToolCall) (string, error) {
	if req.Tools == nil {
		return "", fmt.Errorf("agent: tool %q called with no allow-list configured", tc.Name)
	}
	tool, ok := req.Tools.Lookup(tc.Name)
	if !ok {
		return "", fmt.Errorf("agent: tool %q is not on the allow-list", tc.Name)
	}
	return tool.Execute(ctx, req.WorkDir, tc.Arguments)
}
