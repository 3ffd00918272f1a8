package sandbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/taskforge/conductor/lockmgr"
)

// Sandbox is one worker's isolated working copy rooted at
// <sandbox-root>/<worker-id>/.
type Sandbox struct {
	ID       string
	WorkerID string
	TaskID   string
	BaseDir  string
	Root     string

	fingerprints map[string]fingerprint
}

// New creates a sandbox directory for workerID under root, writes its
// metadata sidecar, and returns the handle. The sandbox directory and its
// parents are created as needed.
func New(root, workerID, taskID, baseDir string) (*Sandbox, error) {
	sbRoot := filepath.Join(root, workerID)
	if err := os.MkdirAll(sbRoot, 0o755); err != nil {
		return nil, fmt.Errorf("sandbox: create sandbox dir: %w", err)
	}

	meta := Metadata{
		WorkerID:  workerID,
		TaskID:    taskID,
		BaseDir:   baseDir,
		CreatedAt: time.Now(),
		PID:       os.Getpid(),
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("sandbox: marshal metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(sbRoot, metaFileName), data, 0o644); err != nil {
		return nil, fmt.Errorf("sandbox: write metadata: %w", err)
	}

	return &Sandbox{
		ID:           uuid.NewString(),
		WorkerID:     workerID,
		TaskID:       taskID,
		BaseDir:      baseDir,
		Root:         sbRoot,
		fingerprints: make(map[string]fingerprint),
	}, nil
}

// Teardown removes the sandbox directory entirely. Callers should release
// any locks the sandbox's worker holds (lockmgr.Manager.ReleaseAll) before
// tearing down.
func (s *Sandbox) Teardown() error {
	return os.RemoveAll(s.Root)
}

// CopyIn copies each named input (file or directory, relative to BaseDir)
// into the sandbox, preserving relative structure and recording a
// fingerprint per file. A named input that does not exist is a no-op that
// produces a Warning rather than an error — only an I/O failure on an input
// that does exist is fatal to the sandbox.
func (s *Sandbox) CopyIn(relPaths []string) ([]Warning, error) {
	var warnings []Warning

	for _, rel := range relPaths {
		srcPath := filepath.Join(s.BaseDir, rel)
		info, err := os.Stat(srcPath)
		if errors.Is(err, os.ErrNotExist) {
			warnings = append(warnings, Warning{Path: rel, Message: "input does not exist, skipped"})
			continue
		}
		if err != nil {
			return warnings, fmt.Errorf("sandbox: stat %s: %w", rel, err)
		}

		if info.IsDir() {
			if err := s.copyDir(srcPath, rel); err != nil {
				return warnings, err
			}
			continue
		}

		if err := s.copyInFile(srcPath, rel); err != nil {
			return warnings, err
		}
	}

	return warnings, nil
}

func (s *Sandbox) copyDir(srcDir, relRoot string) error {
	return filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(s.BaseDir, path)
		if relErr != nil {
			return relErr
		}
		if d.IsDir() {
			return os.MkdirAll(filepath.Join(s.Root, rel), 0o755)
		}
		return s.copyInFile(path, rel)
	})
}

func (s *Sandbox) copyInFile(srcPath, rel string) error {
	destPath := filepath.Join(s.Root, rel)
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("sandbox: create parent dir for %s: %w", rel, err)
	}
	if err := copyFile(srcPath, destPath); err != nil {
		return fmt.Errorf("sandbox: copy in %s: %w", rel, err)
	}
	fp, err := fingerprintFile(srcPath)
	if err != nil {
		return fmt.Errorf("sandbox: fingerprint %s: %w", rel, err)
	}
	s.fingerprints[filepath.ToSlash(rel)] = fp
	return nil
}

// SyncBack walks every file under the sandbox root (excluding the metadata
// sidecar) and applies the five-step sync-back protocol against BaseDir
// using locks, returning the aggregate result.
func (s *Sandbox) SyncBack(locks *lockmgr.Manager) (Result, error) {
	var result Result

	err := filepath.WalkDir(s.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(s.Root, path)
		if relErr != nil {
			return relErr
		}
		relSlash := filepath.ToSlash(rel)
		if relSlash == metaFileName {
			return nil
		}

		result.record(s.syncBackOne(locks, path, rel, relSlash))
		return nil
	})
	if err != nil {
		return result, fmt.Errorf("sandbox: walk sandbox for sync-back: %w", err)
	}
	return result, nil
}

func (s *Sandbox) syncBackOne(locks *lockmgr.Manager, sandboxPath, rel, relSlash string) SyncEntry {
	target := filepath.Join(s.BaseDir, rel)

	// Step 1: if the sandbox copy's hash matches what was recorded at
	// copy-in, there is nothing to write back.
	sandboxHash, err := hashFile(sandboxPath)
	if err != nil {
		return SyncEntry{Path: rel, Status: SyncFailed, Detail: fmt.Sprintf("hash sandbox file: %v", err)}
	}
	original, hadOriginal := s.fingerprints[relSlash]
	if hadOriginal && sandboxHash == original.Hash {
		return SyncEntry{Path: rel, Status: SyncSkipped}
	}

	// Step 2: acquire the file lock.
	if err := locks.Acquire(target, s.WorkerID); err != nil {
		return SyncEntry{Path: rel, Status: SyncFailed, Detail: err.Error()}
	}
	defer locks.Release(target)

	// Step 3: re-read the original file on disk; if it changed from the
	// recorded original and differs from the sandbox copy, that's a
	// conflict — someone else modified the file concurrently.
	currentHash, err := hashFile(target)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return SyncEntry{Path: rel, Status: SyncFailed, Detail: fmt.Sprintf("hash target file: %v", err)}
	}
	if hadOriginal && currentHash != original.Hash && currentHash != sandboxHash {
		return SyncEntry{Path: rel, Status: SyncConflict, Detail: "target file changed since copy-in"}
	}

	// Step 4: copy the sandbox file into place.
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return SyncEntry{Path: rel, Status: SyncFailed, Detail: fmt.Sprintf("create parent dir: %v", err)}
	}
	if err := copyFile(sandboxPath, target); err != nil {
		return SyncEntry{Path: rel, Status: SyncFailed, Detail: fmt.Sprintf("copy into place: %v", err)}
	}

	// Step 5 (lock release) happens via the deferred call above.
	return SyncEntry{Path: rel, Status: SyncSuccess}
}

// copyFile copies a single file from src to dst, preserving src's
// permissions and creating dst's parent directory if needed.
func copyFile(src, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer srcFile.Close()

	srcInfo, err := srcFile.Stat()
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create parent directory: %w", err)
	}

	dstFile, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, srcInfo.Mode())
	if err != nil {
		return fmt.Errorf("create destination: %w", err)
	}
	defer dstFile.Close()

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		return fmt.Errorf("copy contents: %w", err)
	}
	return nil
}
