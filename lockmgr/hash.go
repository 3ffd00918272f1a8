package lockmgr

import (
	"crypto/sha256"
	"encoding/hex"
)

// hashPath produces the lock file's base name for a normalized absolute
// path: stable across runs, and never leaks the original path into the
// lock directory's listing.
func hashPath(absPath string) string {
	sum := sha256.Sum256([]byte(absPath))
	return hex.EncodeToString(sum[:])
}
