package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskforge/conductor/llm"
	"github.com/taskforge/conductor/llm/testutil"
)

func drain(ch <-chan Event) []Event {
	var out []Event
	for e := range ch {
		out = append(out, e)
	}
	return out
}

func TestRunNoToolCallsEmitsTextThenDone(t *testing.T) {
	mock := &testutil.MockLLMClient{
		Responses: []*llm.Response{
			{Content: "all done here", Model: "test-model"},
		},
	}
	r := NewRunner(mock, nil)

	events := drain(r.Run(context.Background(), RunRequest{
		SystemPrompt:  "you are a worker",
		InitialPrompt: "implement the thing",
		MaxTurns:      3,
	}))

	require.Len(t, events, 2)
	assert.Equal(t, EventText, events[0].Kind)
	assert.Equal(t, "all done here", events[0].Text)
	assert.Equal(t, EventDone, events[1].Kind)
}

type recordingTool struct {
	output string
	calls  []map[string]any
}

func (rt *recordingTool) Name() string              { return "write_file" }
func (rt *recordingTool) Description() string       { return "writes a file" }
func (rt *recordingTool) Parameters() map[string]any { return map[string]any{"type": "object"} }
func (rt *recordingTool) Execute(ctx context.Context, workdir string, args map[string]any) (string, error) {
	rt.calls = append(rt.calls, args)
	return rt.output, nil
}

func TestRunSingleToolCallRoundTrip(t *testing.T) {
	tool := &recordingTool{output: "wrote 12 lines"}
	mock := &testutil.MockLLMClient{
		Responses: []*llm.Response{
			{
				Content: "",
				Model:   "test-model",
				ToolCalls: []llm.ToolCall{
					{ID: "call_1", Name: "write_file", Arguments: map[string]any{"path": "a.go"}},
				},
			},
			{Content: "finished", Model: "test-model"},
		},
	}
	r := NewRunner(mock, nil)

	events := drain(r.Run(context.Background(), RunRequest{
		SystemPrompt:  "you are a worker",
		InitialPrompt: "implement the thing",
		Tools:         NewAllowList(tool),
		MaxTurns:      3,
	}))

	require.Len(t, tool.calls, 1)
	assert.Equal(t, "a.go", tool.calls[0]["path"])

	var kinds []EventKind
	for _, e := range events {
		kinds = append(kinds, e.Kind)
	}
	assert.Equal(t, []EventKind{EventToolStart, EventToolEnd, EventText, EventDone}, kinds)

	toolEnd := events[1]
	assert.Equal(t, "call_1", toolEnd.ToolCallID)
	assert.Equal(t, "wrote 12 lines", toolEnd.ToolOutput)
	assert.NoError(t, toolEnd.Err)
}

func TestRunRejectsToolNotOnAllowList(t *testing.T) {
	mock := &testutil.MockLLMClient{
		Responses: []*llm.Response{
			{
				Content: "",
				Model:   "test-model",
				ToolCalls: []llm.ToolCall{
					{ID: "call_1", Name: "delete_repo", Arguments: nil},
				},
			},
			{Content: "done", Model: "test-model"},
		},
	}
	r := NewRunner(mock, nil)

	events := drain(r.Run(context.Background(), RunRequest{
		SystemPrompt:  "you are a reviewer",
		InitialPrompt: "review the thing",
		Tools:         NewAllowList(&fakeTool{name: "read_file"}),
		MaxTurns:      3,
	}))

	require.Len(t, events, 4)
	assert.Equal(t, EventToolStart, events[0].Kind)
	assert.Equal(t, EventToolEnd, events[1].Kind)
	require.Error(t, events[1].Err)
	assert.Contains(t, events[1].Err.Error(), "not on the allow-list")
}

func TestRunExceedsMaxTurnsEmitsError(t *testing.T) {
	tool := &recordingTool{output: "still going"}
	toolCall := llm.ToolCall{ID: "call_x", Name: "write_file", Arguments: nil}
	mock := &testutil.MockLLMClient{
		Responses: []*llm.Response{
			{Content: "", Model: "test-model", ToolCalls: []llm.ToolCall{toolCall}},
			{Content: "", Model: "test-model", ToolCalls: []llm.ToolCall{toolCall}},
		},
	}
	r := NewRunner(mock, nil)

	events := drain(r.Run(context.Background(), RunRequest{
		SystemPrompt:  "you are a worker",
		InitialPrompt: "implement the thing",
		Tools:         NewAllowList(tool),
		MaxTurns:      2,
	}))

	last := events[len(events)-1]
	assert.Equal(t, EventError, last.Kind)
	require.Error(t, last.Err)
	assert.Contains(t, last.Err.Error(), "max turns")
}

func TestRunPropagatesClientError(t *testing.T) {
	mock := &testutil.MockLLMClient{Err: errors.New("llm: connection refused")}
	r := NewRunner(mock, nil)

	events := drain(r.Run(context.Background(), RunRequest{
		SystemPrompt:  "sys",
		InitialPrompt: "go",
		MaxTurns:      1,
	}))

	require.Len(t, events, 1)
	assert.Equal(t, EventError, events[0].Kind)
}
