// Package lockmgr implements the file-level lock manager the sandbox uses
// during sync-back: one lock file per target path, guarding against two
// workers racing to write the same file back to the project tree.
package lockmgr

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultTimeout is the lock's own expiry window: a lock older than this is
// considered stale even if its holder is still alive.
const DefaultTimeout = 60 * time.Second

// lockFile is the on-disk contents of a lock file, written atomically via
// exclusive-create. Timestamp and timeout are milliseconds, matching the
// on-disk lock file's external shape.
type lockFile struct {
	WorkerID  string `json:"workerId"`
	PID       int    `json:"pid"`
	FilePath  string `json:"filePath"`
	Timestamp int64  `json:"timestamp"`
	Timeout   int64  `json:"timeout"`
}

// expired reports whether the lock's age has reached its timeout. A lock
// whose age equals its timeout exactly is considered expired, not just one
// that has exceeded it.
func (l lockFile) expired() bool {
	age := time.Since(time.UnixMilli(l.Timestamp))
	return age >= time.Duration(l.Timeout)*time.Millisecond
}

// ErrDenied is returned when a lock cannot be acquired after one
// stale-cleanup retry.
var ErrDenied = errors.New("lockmgr: lock denied")

// Manager issues and releases path locks rooted at a single lock directory.
type Manager struct {
	dir     string
	timeout time.Duration
}

// New creates a Manager rooted at dir, creating it if necessary.
func New(dir string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("lockmgr: create lock dir: %w", err)
	}
	return &Manager{dir: dir, timeout: DefaultTimeout}, nil
}

// WithTimeout overrides the default 60-second lock expiry.
func (m *Manager) WithTimeout(d time.Duration) *Manager {
	m.timeout = d
	return m
}

// lockPath hashes the normalized target path into the lock file's name so
// two different absolute paths never collide and the name never leaks the
// original path's structure.
func (m *Manager) lockPath(targetPath string) (string, error) {
	abs, err := filepath.Abs(targetPath)
	if err != nil {
		return "", err
	}
	return filepath.Join(m.dir, hashPath(abs)+".lock"), nil
}

// Acquire takes the lock for targetPath on behalf of workerID. A request
// from the same worker id that already holds the lock succeeds without
// creating a duplicate. Any other holder causes an exclusive-create
// failure; Acquire then checks whether the existing lock is stale
// (expired, or its pid is no longer alive) and, if so, removes it and
// retries exactly once. If still denied, it returns ErrDenied naming the
// current holder.
func (m *Manager) Acquire(targetPath, workerID string) error {
	path, err := m.lockPath(targetPath)
	if err != nil {
		return err
	}

	abs, err := filepath.Abs(targetPath)
	if err != nil {
		return err
	}

	retried := false
	for {
		existing, readErr := readLockFile(path)
		if readErr == nil && existing.WorkerID == workerID {
			return nil
		}

		created, createErr := m.tryCreate(path, lockFile{
			WorkerID:  workerID,
			PID:       os.Getpid(),
			FilePath:  abs,
			Timestamp: time.Now().UnixMilli(),
			Timeout:   m.timeout.Milliseconds(),
		})
		if createErr != nil {
			return fmt.Errorf("lockmgr: write lock for %s: %w", abs, createErr)
		}
		if created {
			return nil
		}

		// Exclusive create failed: some other lock file is present.
		if retried {
			holder := "unknown"
			if existing.WorkerID != "" {
				holder = existing.WorkerID
			}
			return fmt.Errorf("%w: %s held by %s", ErrDenied, abs, holder)
		}

		cur, readErr := readLockFile(path)
		if readErr == nil && isStale(cur) {
			_ = os.Remove(path)
		}
		retried = true
	}
}

// Release removes the lock for targetPath, regardless of who holds it.
// Callers are expected to hold the lock they are releasing; releasing an
// absent lock is not an error.
func (m *Manager) Release(targetPath string) error {
	path, err := m.lockPath(targetPath)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("lockmgr: release lock for %s: %w", targetPath, err)
	}
	return nil
}

// ReleaseAll removes every lock file held by workerID — used on sandbox
// teardown so a crashed or finished worker never leaves stale locks behind
// for its own paths.
func (m *Manager) ReleaseAll(workerID string) error {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return fmt.Errorf("lockmgr: read lock dir: %w", err)
	}
	var firstErr error
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(m.dir, e.Name())
		lf, err := readLockFile(path)
		if err != nil {
			continue
		}
		if lf.WorkerID != workerID {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// tryCreate attempts an atomic exclusive-create write of the lock file.
// It returns (true, nil) on success and (false, nil) when the file already
// exists — the caller distinguishes "lost the race" from a real I/O error.
func (m *Manager) tryCreate(path string, lf lockFile) (bool, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return false, nil
		}
		return false, err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	if err := enc.Encode(lf); err != nil {
		return false, err
	}
	return true, nil
}

func readLockFile(path string) (lockFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return lockFile{}, err
	}
	var lf lockFile
	if err := json.Unmarshal(data, &lf); err != nil {
		return lockFile{}, err
	}
	return lf, nil
}

// isStale reports whether a lock is expired or its holder is no longer
// alive on this host.
func isStale(lf lockFile) bool {
	return lf.expired() || !isProcessAlive(lf.PID)
}
