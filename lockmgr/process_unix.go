//go:build !windows

package lockmgr

import (
	"errors"
	"os"
	"syscall"
)

// isProcessAlive checks whether pid is still running by sending signal 0,
// which performs error checking without actually signaling the process.
func isProcessAlive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = process.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		// EPERM means the process exists but we lack permission to signal
		// it — still alive. ESRCH means no such process.
		return errno == syscall.EPERM
	}
	return false
}
