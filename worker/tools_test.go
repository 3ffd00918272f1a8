package worker

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFileThenReadFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	_, err := WriteFileTool{}.Execute(context.Background(), dir, map[string]any{
		"path": "pkg/a.go", "content": "package pkg\n",
	})
	require.NoError(t, err)

	content, err := ReadFileTool{}.Execute(context.Background(), dir, map[string]any{"path": "pkg/a.go"})
	require.NoError(t, err)
	assert.Equal(t, "package pkg\n", content)
}

func TestEditFileRequiresExactlyOneMatch(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.go"), []byte("foo\nfoo\n"), 0o644))

	_, err := EditFileTool{}.Execute(context.Background(), dir, map[string]any{
		"path": "a.go", "old_text": "foo", "new_text": "bar",
	})
	assert.Error(t, err)
}

func TestEditFileAppliesSingleMatch(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.go"), []byte("package old\n"), 0o644))

	_, err := EditFileTool{}.Execute(context.Background(), dir, map[string]any{
		"path": "a.go", "old_text": "old", "new_text": "new",
	})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "a.go"))
	require.NoError(t, err)
	assert.Equal(t, "package new\n", string(data))
}

func TestReadFileRejectsEscapingPath(t *testing.T) {
	dir := t.TempDir()
	_, err := ReadFileTool{}.Execute(context.Background(), dir, map[string]any{"path": "../../etc/passwd"})
	assert.Error(t, err)
}

func TestShellToolRejectsDisallowedCommand(t *testing.T) {
	tool := ShellTool{AllowedCommandPrefixes: []string{"git log", "git status"}}
	_, err := tool.Execute(context.Background(), t.TempDir(), map[string]any{"command": "rm -rf /"})
	assert.Error(t, err)
}

func TestShellToolRunsAllowedCommand(t *testing.T) {
	tool := ShellTool{AllowedCommandPrefixes: []string{"echo"}}
	out, err := tool.Execute(context.Background(), t.TempDir(), map[string]any{"command": "echo hi"})
	require.NoError(t, err)
	assert.Contains(t, out, "hi")
}

func TestUpdateStatusToolRecordsReport(t *testing.T) {
	report := &statusReport{}
	tool := UpdateStatusTool{Report: report}
	_, err := tool.Execute(context.Background(), t.TempDir(), map[string]any{
		"status": "completed", "message": "all done",
	})
	require.NoError(t, err)
	assert.Equal(t, "completed", report.Status)
	assert.Equal(t, "all done", report.Message)
}

func TestAskUserToolRecordsQuestion(t *testing.T) {
	var questions []string
	tool := AskUserTool{Questions: &questions}
	_, err := tool.Execute(context.Background(), t.TempDir(), map[string]any{"question": "need a DB password"})
	require.NoError(t, err)
	require.Len(t, questions, 1)
	assert.Equal(t, "need a DB password", questions[0])
}
