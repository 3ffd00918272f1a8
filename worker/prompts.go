package worker

import (
	"fmt"
	"strings"

	"github.com/taskforge/conductor/contextcollector"
	"github.com/taskforge/conductor/tasktree"
)

// buildSystemPrompt declares the worker's role, working directory, allowed
// tools, and the boundary it must not cross.
func buildSystemPrompt(workdir string, toolNames []string) string {
	var b strings.Builder
	b.WriteString("You are an autonomous software implementation worker.\n")
	fmt.Fprintf(&b, "Your working directory is %s. All file paths you use must be relative to it.\n", workdir)
	fmt.Fprintf(&b, "You have access to these tools: %s.\n", strings.Join(toolNames, ", "))
	b.WriteString("Use update_status with status=completed when the task is fully done, and with a clear message.\n")
	b.WriteString("Use ask_user only when you are blocked on missing credentials, software, or permissions you cannot obtain yourself.\n")
	b.WriteString("Never read, write, or run commands against anything outside the working directory.\n")
	return b.String()
}

// buildInitialPrompt restates the task, embeds the context bundle (files
// first, then dependency outputs), and — on a retry — prepends the last
// review's feedback verbatim ahead of everything else.
func buildInitialPrompt(task *tasktree.Node, bundle contextcollector.Bundle, lastReview *tasktree.Review) string {
	var b strings.Builder

	if lastReview != nil {
		b.WriteString("=== Feedback from the previous review attempt ===\n")
		fmt.Fprintf(&b, "Verdict: %s\n", lastReview.Verdict)
		fmt.Fprintf(&b, "Reasoning: %s\n", lastReview.Reasoning)
		if len(lastReview.Issues) > 0 {
			b.WriteString("Issues:\n")
			for _, issue := range lastReview.Issues {
				fmt.Fprintf(&b, "  - %s\n", issue)
			}
		}
		if len(lastReview.Suggestions) > 0 {
			b.WriteString("Suggestions:\n")
			for _, s := range lastReview.Suggestions {
				fmt.Fprintf(&b, "  - %s\n", s)
			}
		}
		b.WriteString("=== End of previous feedback ===\n\n")
	}

	fmt.Fprintf(&b, "Task: %s\n", task.Name)
	fmt.Fprintf(&b, "Description: %s\n", task.Description)
	if len(task.Acceptance) > 0 {
		b.WriteString("Acceptance criteria:\n")
		for _, a := range task.Acceptance {
			fmt.Fprintf(&b, "  - %s\n", a)
		}
	}

	if len(bundle.Files) > 0 {
		b.WriteString("\n=== Working context: files ===\n")
		for _, f := range bundle.Files {
			fmt.Fprintf(&b, "--- %s ---\n%s\n", f.Path, f.Content)
		}
	}

	if len(bundle.Dependencies) > 0 {
		b.WriteString("\n=== Working context: dependency outputs ===\n")
		for _, d := range bundle.Dependencies {
			fmt.Fprintf(&b, "From task %q (%s):\n", d.Name, d.TaskID)
			for _, f := range d.Files {
				fmt.Fprintf(&b, "--- %s ---\n%s\n", f.Path, f.Content)
			}
		}
	}

	return b.String()
}
