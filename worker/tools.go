package worker

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/taskforge/conductor/agent"
)

// scopedPath resolves a tool-supplied relative path against workdir and
// refuses to let it escape. Unlike the context collector's containment
// check, symlinks are not resolved: only the cleaned path is checked.
func scopedPath(workdir, rel string) (string, error) {
	full := filepath.Join(workdir, rel)
	cleanWorkdir, err := filepath.Abs(workdir)
	if err != nil {
		return "", err
	}
	cleanFull, err := filepath.Abs(full)
	if err != nil {
		return "", err
	}
	relCheck, err := filepath.Rel(cleanWorkdir, cleanFull)
	if err != nil || strings.HasPrefix(relCheck, "..") {
		return "", fmt.Errorf("path %q escapes the working directory", rel)
	}
	return cleanFull, nil
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

// ReadFileTool reads a file under the sandbox working directory.
type ReadFileTool struct{}

func (ReadFileTool) Name() string        { return "read_file" }
func (ReadFileTool) Description() string { return "Read the full contents of a file relative to the working directory." }
func (ReadFileTool) Parameters() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{"path": map[string]any{"type": "string"}},
		"required":   []string{"path"},
	}
}

func (ReadFileTool) Execute(ctx context.Context, workdir string, args map[string]any) (string, error) {
	rel, err := stringArg(args, "path")
	if err != nil {
		return "", err
	}
	full, err := scopedPath(workdir, rel)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// SearchFilesTool greps for a substring across files under the working
// directory, returning matching paths and line numbers.
type SearchFilesTool struct{}

func (SearchFilesTool) Name() string        { return "search_files" }
func (SearchFilesTool) Description() string { return "Search for a literal substring across files under the working directory." }
func (SearchFilesTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{"type": "string"},
		},
		"required": []string{"query"},
	}
}

func (SearchFilesTool) Execute(ctx context.Context, workdir string, args map[string]any) (string, error) {
	query, err := stringArg(args, "query")
	if err != nil {
		return "", err
	}
	var matches []string
	err = filepath.WalkDir(workdir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil || d.IsDir() {
			return nil
		}
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil
		}
		rel, _ := filepath.Rel(workdir, path)
		for i, line := range strings.Split(string(data), "\n") {
			if strings.Contains(line, query) {
				matches = append(matches, fmt.Sprintf("%s:%d: %s", rel, i+1, strings.TrimSpace(line)))
				if len(matches) >= 200 {
					return filepath.SkipAll
				}
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "no matches", nil
	}
	return strings.Join(matches, "\n"), nil
}

// WriteFileTool creates or overwrites a file under the working directory.
type WriteFileTool struct{}

func (WriteFileTool) Name() string        { return "write_file" }
func (WriteFileTool) Description() string { return "Create or overwrite a file relative to the working directory with the given content." }
func (WriteFileTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path":    map[string]any{"type": "string"},
			"content": map[string]any{"type": "string"},
		},
		"required": []string{"path", "content"},
	}
}

func (WriteFileTool) Execute(ctx context.Context, workdir string, args map[string]any) (string, error) {
	rel, err := stringArg(args, "path")
	if err != nil {
		return "", err
	}
	content, err := stringArg(args, "content")
	if err != nil {
		return "", err
	}
	full, err := scopedPath(workdir, rel)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		return "", err
	}
	return fmt.Sprintf("wrote %d bytes to %s", len(content), rel), nil
}

// EditFileTool replaces a single occurrence of old text with new text in an
// existing file.
type EditFileTool struct{}

func (EditFileTool) Name() string        { return "edit_file" }
func (EditFileTool) Description() string { return "Replace one exact occurrence of old_text with new_text in an existing file." }
func (EditFileTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path":     map[string]any{"type": "string"},
			"old_text": map[string]any{"type": "string"},
			"new_text": map[string]any{"type": "string"},
		},
		"required": []string{"path", "old_text", "new_text"},
	}
}

func (EditFileTool) Execute(ctx context.Context, workdir string, args map[string]any) (string, error) {
	rel, err := stringArg(args, "path")
	if err != nil {
		return "", err
	}
	oldText, err := stringArg(args, "old_text")
	if err != nil {
		return "", err
	}
	newText, err := stringArg(args, "new_text")
	if err != nil {
		return "", err
	}
	full, err := scopedPath(workdir, rel)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return "", err
	}
	content := string(data)
	count := strings.Count(content, oldText)
	if count != 1 {
		return "", fmt.Errorf("old_text occurs %d times in %s, expected exactly 1", count, rel)
	}
	updated := strings.Replace(content, oldText, newText, 1)
	if err := os.WriteFile(full, []byte(updated), 0o644); err != nil {
		return "", err
	}
	return fmt.Sprintf("edited %s", rel), nil
}

// ShellTool runs a shell command with the working directory as its cwd.
// allowedCommandPrefixes, if non-empty, restricts which commands may run —
// used by the reviewer to offer only read-only git queries.
type ShellTool struct {
	Timeout                time.Duration
	AllowedCommandPrefixes []string
}

func (ShellTool) Name() string { return "run_shell" }
func (t ShellTool) Description() string {
	if len(t.AllowedCommandPrefixes) > 0 {
		return "Run a restricted, non-mutating shell command (" + strings.Join(t.AllowedCommandPrefixes, ", ") + ")."
	}
	return "Run a shell command in the working directory."
}
func (ShellTool) Parameters() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{"command": map[string]any{"type": "string"}},
		"required":   []string{"command"},
	}
}

func (t ShellTool) Execute(ctx context.Context, workdir string, args map[string]any) (string, error) {
	command, err := stringArg(args, "command")
	if err != nil {
		return "", err
	}
	if len(t.AllowedCommandPrefixes) > 0 {
		allowed := false
		for _, prefix := range t.AllowedCommandPrefixes {
			if strings.HasPrefix(strings.TrimSpace(command), prefix) {
				allowed = true
				break
			}
		}
		if !allowed {
			return "", fmt.Errorf("command %q is not in the allowed set", command)
		}
	}

	timeout := t.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", command)
	cmd.Dir = workdir
	output, runErr := cmd.CombinedOutput()
	if runErr != nil {
		return string(output), fmt.Errorf("command failed: %w", runErr)
	}
	return string(output), nil
}

// UpdateStatusTool lets the worker self-report completion or an interim
// status without the runner interpreting free text.
type UpdateStatusTool struct {
	Report *statusReport
}

type statusReport struct {
	Status  string
	Message string
}

func (UpdateStatusTool) Name() string        { return "update_status" }
func (UpdateStatusTool) Description() string { return "Report the task's current status and a short message." }
func (UpdateStatusTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"status":  map[string]any{"type": "string", "enum": []string{"in_progress", "completed", "blocked"}},
			"message": map[string]any{"type": "string"},
		},
		"required": []string{"status", "message"},
	}
}

func (t UpdateStatusTool) Execute(ctx context.Context, workdir string, args map[string]any) (string, error) {
	status, err := stringArg(args, "status")
	if err != nil {
		return "", err
	}
	message, _ := stringArg(args, "message")
	if t.Report != nil {
		t.Report.Status = status
		t.Report.Message = message
	}
	return "status recorded", nil
}

// AskUserTool escalates a question that requires human input — missing
// credentials, software, or permissions the worker cannot resolve itself.
type AskUserTool struct {
	Questions *[]string
}

func (AskUserTool) Name() string        { return "ask_user" }
func (AskUserTool) Description() string { return "Ask the human operator a question when the task cannot proceed without their input." }
func (AskUserTool) Parameters() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{"question": map[string]any{"type": "string"}},
		"required":   []string{"question"},
	}
}

func (t AskUserTool) Execute(ctx context.Context, workdir string, args map[string]any) (string, error) {
	question, err := stringArg(args, "question")
	if err != nil {
		return "", err
	}
	if t.Questions != nil {
		*t.Questions = append(*t.Questions, question)
	}
	return "the operator has been notified; proceed with your best judgment or wait for a decline", nil
}

var _ agent.Tool = ReadFileTool{}
var _ agent.Tool = SearchFilesTool{}
var _ agent.Tool = WriteFileTool{}
var _ agent.Tool = EditFileTool{}
var _ agent.Tool = ShellTool{}
var _ agent.Tool = UpdateStatusTool{}
var _ agent.Tool = AskUserTool{}
