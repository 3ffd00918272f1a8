package reviewer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskforge/conductor/agent"
	"github.com/taskforge/conductor/blueprint"
	"github.com/taskforge/conductor/llm"
	"github.com/taskforge/conductor/llm/testutil"
	"github.com/taskforge/conductor/tasktree"
	"github.com/taskforge/conductor/worker/summary"
)

func baseRequest() Request {
	return Request{
		Task: &tasktree.Node{ID: "t1", Name: "add widget", Description: "add a widget endpoint"},
		Summary: summary.Summary{
			SelfReportedComplete: true,
			FileChanges:          []summary.FileChange{{Path: "widget.go", Type: summary.ChangeCreated}},
		},
		Context: Context{
			ProjectPath: ".",
			Blueprint:   blueprint.Pick{ID: "bp1", Name: "widget service"},
			Strictness:  StrictnessNormal,
		},
	}
}

func TestReviewReturnsNormalizedVerdictOnSubmitReviewCall(t *testing.T) {
	mock := &testutil.MockLLMClient{
		Responses: []*llm.Response{
			{
				Model: "test-model",
				ToolCalls: []llm.ToolCall{
					{ID: "1", Name: "run_shell", Arguments: map[string]any{"command": "git log"}},
				},
			},
			{
				Model: "test-model",
				ToolCalls: []llm.ToolCall{
					{ID: "2", Name: "submit_review", Arguments: map[string]any{
						"verdict":   "通过",
						"reasoning": "meets the acceptance criteria",
						"verified":  []any{"widget.go exists"},
					}},
				},
			},
		},
	}

	r := New(agent.NewRunner(mock, nil), nil)
	review, err := r.Review(context.Background(), baseRequest())
	require.NoError(t, err)
	assert.Equal(t, tasktree.VerdictPassed, review.Verdict)
	assert.Equal(t, "meets the acceptance criteria", review.Reasoning)
	assert.Equal(t, []string{"widget.go exists"}, review.Verified)
}

func TestReviewFailsWhenAgentFinishesWithoutVerdict(t *testing.T) {
	mock := &testutil.MockLLMClient{
		Responses: []*llm.Response{
			{Content: "I looked at the code and it seems fine.", Model: "test-model"},
		},
	}

	r := New(agent.NewRunner(mock, nil), nil)
	_, err := r.Review(context.Background(), baseRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoVerdict)
}

func TestReviewTimesOut(t *testing.T) {
	mock := &testutil.MockLLMClient{
		Responses: []*llm.Response{{Content: "ack", Model: "test-model"}},
	}

	r := New(agent.NewRunner(mock, nil), nil).WithTimeout(time.Nanosecond)
	_, err := r.Review(context.Background(), baseRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestReviewRejectsShellCommandOutsideGitQueries(t *testing.T) {
	mock := &testutil.MockLLMClient{
		Responses: []*llm.Response{
			{
				Model: "test-model",
				ToolCalls: []llm.ToolCall{
					{ID: "1", Name: "run_shell", Arguments: map[string]any{"command": "rm -rf ."}},
				},
			},
			{
				Model: "test-model",
				ToolCalls: []llm.ToolCall{
					{ID: "2", Name: "submit_review", Arguments: map[string]any{
						"verdict":   "failed",
						"reasoning": "could not verify",
					}},
				},
			},
		},
	}

	r := New(agent.NewRunner(mock, nil), nil)
	review, err := r.Review(context.Background(), baseRequest())
	require.NoError(t, err)
	assert.Equal(t, tasktree.VerdictFailed, review.Verdict)
}
