package reviewer

import (
	"fmt"
	"strings"

	"github.com/taskforge/conductor/worker/summary"
)

// submitReviewTool is the name of the structured-output tool the reviewer
// must call to deliver its verdict. There is no text-parsing fallback: a
// reviewer run that ends without calling this tool is an error.
const submitReviewTool = "submit_review"

// strictnessGuides maps each strictness level to the one-line instruction
// that goes into the initial prompt.
var strictnessGuides = map[Strictness]string{
	StrictnessLenient: "Lenient review: approve working code even if style or edge-case coverage is imperfect; only flag issues that would break the acceptance criteria.",
	StrictnessNormal:  "Normal review: verify the acceptance criteria are met and the change is reasonably clean; flag substantive gaps, not nitpicks.",
	StrictnessStrict:  "Strict review: verify the acceptance criteria, check for missed edge cases, and flag anything that would need follow-up work.",
}

func strictnessGuide(s Strictness) string {
	if guide, ok := strictnessGuides[s]; ok {
		return guide
	}
	return strictnessGuides[StrictnessNormal]
}

// buildSystemPrompt declares the reviewer's role, its read-only tool set,
// and that the verdict must be delivered through the structured-output
// tool rather than as prose.
func buildSystemPrompt(toolNames []string) string {
	var b strings.Builder
	b.WriteString("You are an independent code reviewer. You did not write this code; judge it on its own merits.\n")
	fmt.Fprintf(&b, "You have read-only access to: %s.\n", strings.Join(toolNames, ", "))
	b.WriteString("You must never modify any file.\n")
	fmt.Fprintf(&b, "You MUST deliver your final verdict by calling the %s tool. A text answer with no tool call is not a valid review.\n", submitReviewTool)
	return b.String()
}

// buildInitialPrompt embeds the blueprint context, the task, the worker's
// report, the strictness guide, and the verification checklist the
// reviewer should follow before forming a verdict.
func buildInitialPrompt(req Request) string {
	var b strings.Builder

	bp := req.Context.Blueprint
	fmt.Fprintf(&b, "=== Project ===\n%s: %s\n%s\n", bp.Name, bp.Description, bp.Requirements)
	if len(bp.TechStack) > 0 {
		fmt.Fprintf(&b, "Tech stack: %s\n", strings.Join(bp.TechStack, ", "))
	}
	if len(bp.Constraints) > 0 {
		fmt.Fprintf(&b, "Constraints: %s\n", strings.Join(bp.Constraints, ", "))
	}
	fmt.Fprintf(&b, "Project path: %s\n", req.Context.ProjectPath)

	fmt.Fprintf(&b, "\n=== Task ===\n%s\n%s\n", req.Task.Name, req.Task.Description)
	if len(req.Task.Acceptance) > 0 {
		b.WriteString("Acceptance criteria:\n")
		for _, a := range req.Task.Acceptance {
			fmt.Fprintf(&b, "  - %s\n", a)
		}
	}

	if req.Context.IsRetry {
		fmt.Fprintf(&b, "\nThis is retry attempt %d.\n", req.Context.Attempt)
		if req.Context.PriorReview != nil {
			fmt.Fprintf(&b, "Prior review verdict: %s — %s\n", req.Context.PriorReview.Verdict, req.Context.PriorReview.Reasoning)
		}
	}

	if len(req.Context.RelatedTasks) > 0 {
		b.WriteString("\n=== Related tasks ===\n")
		for _, rt := range req.Context.RelatedTasks {
			fmt.Fprintf(&b, "  - %s (%s): %s\n", rt.Name, rt.ID, rt.Status)
		}
	}

	b.WriteString("\n=== Worker report ===\n")
	writeWorkerReport(&b, req.Summary)

	fmt.Fprintf(&b, "\n=== Strictness ===\n%s\n", strictnessGuide(req.Context.Strictness))

	b.WriteString("\n=== Verification checklist ===\n")
	b.WriteString("1. Inspect the repository with git first (git status, git log, git diff) to see what actually changed.\n")
	b.WriteString("2. Spot-check 1-2 of the changed files against the task and acceptance criteria.\n")
	b.WriteString("3. Only then form your verdict and submit it.\n")

	return b.String()
}

func writeWorkerReport(b *strings.Builder, s summary.Summary) {
	fmt.Fprintf(b, "Self-reported complete: %t\n", s.SelfReportedComplete)
	if s.SelfReportMessage != "" {
		fmt.Fprintf(b, "Self-report message: %s\n", s.SelfReportMessage)
	}
	if len(s.FileChanges) > 0 {
		b.WriteString("File changes:\n")
		for _, fc := range s.FileChanges {
			fmt.Fprintf(b, "  - %s (%s)\n", fc.Path, fc.Type)
		}
	}
	if s.TestRun != nil {
		fmt.Fprintf(b, "Test run: ran=%t passed=%t\n", s.TestRun.Ran, s.TestRun.Passed)
		if s.TestRun.Output != "" {
			fmt.Fprintf(b, "Test output (truncated):\n%s\n", s.TestRun.Output)
		}
	}
	if s.Error != "" {
		fmt.Fprintf(b, "Worker error: %s\n", s.Error)
	}
	if len(s.ToolCalls) > 0 {
		fmt.Fprintf(b, "Tool calls made: %d\n", len(s.ToolCalls))
	}
}
