package sandbox

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskforge/conductor/lockmgr"
)

func newProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "pkg"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pkg", "a.go"), []byte("package pkg\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("hello\n"), 0o644))
	return dir
}

func TestNewWritesMetadataSidecar(t *testing.T) {
	project := newProject(t)
	sbRoot := t.TempDir()

	sb, err := New(sbRoot, "worker-1", "task-1", project)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(sb.Root, metaFileName))
	require.NoError(t, err)
	assert.Contains(t, string(data), "worker-1")
	assert.Contains(t, string(data), "task-1")
}

func TestCopyInCopiesFileAndDirectory(t *testing.T) {
	project := newProject(t)
	sb, err := New(t.TempDir(), "worker-1", "task-1", project)
	require.NoError(t, err)

	warnings, err := sb.CopyIn([]string{"README.md", "pkg"})
	require.NoError(t, err)
	assert.Empty(t, warnings)

	data, err := os.ReadFile(filepath.Join(sb.Root, "README.md"))
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(data))

	data, err = os.ReadFile(filepath.Join(sb.Root, "pkg", "a.go"))
	require.NoError(t, err)
	assert.Equal(t, "package pkg\n", string(data))
}

func TestCopyInMissingInputWarnsWithoutError(t *testing.T) {
	project := newProject(t)
	sb, err := New(t.TempDir(), "worker-1", "task-1", project)
	require.NoError(t, err)

	warnings, err := sb.CopyIn([]string{"does-not-exist.go"})
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Equal(t, "does-not-exist.go", warnings[0].Path)
}

func TestSyncBackSkipsUnchangedFile(t *testing.T) {
	project := newProject(t)
	sb, err := New(t.TempDir(), "worker-1", "task-1", project)
	require.NoError(t, err)
	_, err = sb.CopyIn([]string{"README.md"})
	require.NoError(t, err)

	locks, err := lockmgr.New(t.TempDir())
	require.NoError(t, err)

	result, err := sb.SyncBack(locks)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Success)
	assert.Equal(t, 1, result.Total)
}

func TestSyncBackWritesChangedFile(t *testing.T) {
	project := newProject(t)
	sb, err := New(t.TempDir(), "worker-1", "task-1", project)
	require.NoError(t, err)
	_, err = sb.CopyIn([]string{"README.md"})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(sb.Root, "README.md"), []byte("updated\n"), 0o644))

	locks, err := lockmgr.New(t.TempDir())
	require.NoError(t, err)

	result, err := sb.SyncBack(locks)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Success)

	data, err := os.ReadFile(filepath.Join(project, "README.md"))
	require.NoError(t, err)
	assert.Equal(t, "updated\n", string(data))
}

func TestSyncBackDetectsConflict(t *testing.T) {
	project := newProject(t)
	sb, err := New(t.TempDir(), "worker-1", "task-1", project)
	require.NoError(t, err)
	_, err = sb.CopyIn([]string{"README.md"})
	require.NoError(t, err)

	// Worker edits its sandbox copy.
	require.NoError(t, os.WriteFile(filepath.Join(sb.Root, "README.md"), []byte("worker edit\n"), 0o644))
	// Someone else edits the original concurrently.
	require.NoError(t, os.WriteFile(filepath.Join(project, "README.md"), []byte("concurrent edit\n"), 0o644))

	locks, err := lockmgr.New(t.TempDir())
	require.NoError(t, err)

	result, err := sb.SyncBack(locks)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Conflicts)
	assert.Equal(t, SyncConflict, result.Entries[0].Status)
}

func TestSyncBackSkipsMetadataSidecar(t *testing.T) {
	project := newProject(t)
	sb, err := New(t.TempDir(), "worker-1", "task-1", project)
	require.NoError(t, err)

	locks, err := lockmgr.New(t.TempDir())
	require.NoError(t, err)

	result, err := sb.SyncBack(locks)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Total)
}

func TestSyncBackFailsWhenLockDenied(t *testing.T) {
	project := newProject(t)
	sb, err := New(t.TempDir(), "worker-1", "task-1", project)
	require.NoError(t, err)
	_, err = sb.CopyIn([]string{"README.md"})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(sb.Root, "README.md"), []byte("updated\n"), 0o644))

	lockDir := t.TempDir()
	locks, err := lockmgr.New(lockDir)
	require.NoError(t, err)
	require.NoError(t, locks.Acquire(filepath.Join(project, "README.md"), "some-other-worker"))

	result, err := sb.SyncBack(locks)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
}
