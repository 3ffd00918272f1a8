package lockmgr

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pidFieldPattern = regexp.MustCompile(`"pid":\d+`)

func TestAcquireThenReleaseAllowsReacquire(t *testing.T) {
	dir := t.TempDir()
	m, err := New(filepath.Join(dir, "locks"))
	require.NoError(t, err)

	target := filepath.Join(dir, "file.txt")
	require.NoError(t, m.Acquire(target, "worker-1"))
	require.NoError(t, m.Release(target))
	require.NoError(t, m.Acquire(target, "worker-2"))
}

func TestAcquireIsReentrantForSameWorker(t *testing.T) {
	dir := t.TempDir()
	m, err := New(filepath.Join(dir, "locks"))
	require.NoError(t, err)

	target := filepath.Join(dir, "file.txt")
	require.NoError(t, m.Acquire(target, "worker-1"))
	require.NoError(t, m.Acquire(target, "worker-1"))
}

func TestAcquireDeniedForDifferentLiveWorker(t *testing.T) {
	dir := t.TempDir()
	m, err := New(filepath.Join(dir, "locks"))
	require.NoError(t, err)

	target := filepath.Join(dir, "file.txt")
	require.NoError(t, m.Acquire(target, "worker-1"))

	err = m.Acquire(target, "worker-2")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDenied)
}

func TestAcquireRecoversStaleExpiredLock(t *testing.T) {
	dir := t.TempDir()
	m, err := New(filepath.Join(dir, "locks"))
	require.NoError(t, err)
	m = m.WithTimeout(time.Millisecond)

	target := filepath.Join(dir, "file.txt")
	require.NoError(t, m.Acquire(target, "worker-1"))

	time.Sleep(5 * time.Millisecond)

	require.NoError(t, m.Acquire(target, "worker-2"))
}

func TestLockFileExpiredAtOrPastBoundary(t *testing.T) {
	// Timestamp is set exactly timeout ago; by the time expired() samples
	// time.Since, age is >= timeout (never strictly less), which must be
	// treated as expired per the >= comparison.
	timeout := int64(50)
	l := lockFile{
		Timestamp: time.Now().Add(-time.Duration(timeout) * time.Millisecond).UnixMilli(),
		Timeout:   timeout,
	}
	assert.True(t, l.expired(), "a lock whose age has reached its timeout must be expired")
}

func TestLockFileNotExpiredJustUnderBoundary(t *testing.T) {
	timeout := int64(1000)
	l := lockFile{
		Timestamp: time.Now().Add(-500 * time.Millisecond).UnixMilli(),
		Timeout:   timeout,
	}
	assert.False(t, l.expired())
}

func TestAcquireRecoversStaleZombieLock(t *testing.T) {
	dir := t.TempDir()
	lockDir := filepath.Join(dir, "locks")
	m, err := New(lockDir)
	require.NoError(t, err)

	target := filepath.Join(dir, "file.txt")
	require.NoError(t, m.Acquire(target, "worker-1"))

	// Rewrite the lock file with a pid that cannot be alive.
	path, err := m.lockPath(target)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte(replacePID(string(data))), 0o644))

	require.NoError(t, m.Acquire(target, "worker-2"))
}

// replacePID swaps the lock file's recorded pid for one unlikely to exist
// on the test host, simulating a zombie lock left by a crashed worker.
func replacePID(content string) string {
	return pidFieldPattern.ReplaceAllString(content, `"pid":999999`)
}

func TestReleaseAllRemovesOnlyMatchingWorker(t *testing.T) {
	dir := t.TempDir()
	m, err := New(filepath.Join(dir, "locks"))
	require.NoError(t, err)

	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")
	require.NoError(t, m.Acquire(a, "worker-1"))
	require.NoError(t, m.Acquire(b, "worker-2"))

	require.NoError(t, m.ReleaseAll("worker-1"))

	require.NoError(t, m.Acquire(a, "worker-3"))
	err = m.Acquire(b, "worker-3")
	require.Error(t, err)
}

func TestHashPathIsStableAndDistinct(t *testing.T) {
	assert.Equal(t, hashPath("/a/b"), hashPath("/a/b"))
	assert.NotEqual(t, hashPath("/a/b"), hashPath("/a/c"))
}
