package reviewer

import (
	"context"
	"fmt"

	"github.com/taskforge/conductor/agent"
)

// verdictReport is populated by submitReviewTool when the model calls it.
// Called still false after the agent run finishes means the reviewer never
// delivered a verdict — an error, not a silent default.
type verdictReport struct {
	Called      bool
	Verdict     string
	Confidence  string
	Reasoning   string
	Verified    []string
	Issues      []string
	Suggestions []string
}

// submitReviewToolImpl is the structured-output tool the reviewer must call
// to deliver its verdict. It records the call rather than interpreting free
// text — there is no fallback that parses a verdict out of prose.
type submitReviewToolImpl struct {
	Report *verdictReport
}

func (submitReviewToolImpl) Name() string { return submitReviewTool }
func (submitReviewToolImpl) Description() string {
	return "Deliver your final review verdict. This is the only way to complete a review."
}
func (submitReviewToolImpl) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"verdict":     map[string]any{"type": "string", "enum": []string{"passed", "needs_revision", "failed"}},
			"confidence":  map[string]any{"type": "string", "enum": []string{"high", "medium", "low"}},
			"reasoning":   map[string]any{"type": "string"},
			"verified":    map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"issues":      map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"suggestions": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		},
		"required": []string{"verdict", "reasoning"},
	}
}

func (t submitReviewToolImpl) Execute(ctx context.Context, workdir string, args map[string]any) (string, error) {
	verdict, err := stringArg(args, "verdict")
	if err != nil {
		return "", err
	}
	reasoning, _ := stringArg(args, "reasoning")

	if t.Report != nil {
		t.Report.Called = true
		t.Report.Verdict = verdict
		t.Report.Reasoning = reasoning
		t.Report.Confidence, _ = stringArg(args, "confidence")
		t.Report.Verified = stringSliceArg(args, "verified")
		t.Report.Issues = stringSliceArg(args, "issues")
		t.Report.Suggestions = stringSliceArg(args, "suggestions")
	}
	return "verdict recorded", nil
}

func stringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("missing required argument %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("argument %q must be a string", key)
	}
	return s, nil
}

func stringSliceArg(args map[string]any, key string) []string {
	v, ok := args[key]
	if !ok {
		return nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

var _ agent.Tool = submitReviewToolImpl{}
