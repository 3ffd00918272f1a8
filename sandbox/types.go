// Package sandbox implements each worker's isolated working copy: copy-in
// of the files a task needs, and the sync-back protocol that reconciles
// the worker's edits with the project tree under file-level locking.
package sandbox

import "time"

// metaFileName is the sidecar metadata file at the sandbox root, excluded
// from sync-back like every other non-project file.
const metaFileName = ".sandbox-meta.json"

// Metadata is the sidecar record written at sandbox creation.
type Metadata struct {
	WorkerID  string    `json:"workerId"`
	TaskID    string    `json:"taskId"`
	BaseDir   string    `json:"baseDir"`
	CreatedAt time.Time `json:"createdAt"`
	PID       int       `json:"pid"`
}

// fingerprint is the recorded state of a file at copy-in time: used during
// sync-back to detect whether the sandbox copy, the original, or both
// changed since.
type fingerprint struct {
	Hash  string
	MTime time.Time
	Size  int64
}

// Warning is a non-fatal event raised during copy-in — e.g. a named input
// that does not exist on disk.
type Warning struct {
	Path    string
	Message string
}

// SyncEntryStatus classifies one file's sync-back outcome.
type SyncEntryStatus string

const (
	SyncSuccess  SyncEntryStatus = "success"
	SyncSkipped  SyncEntryStatus = "skipped"
	SyncFailed   SyncEntryStatus = "failed"
	SyncConflict SyncEntryStatus = "conflict"
)

// SyncEntry records one file's sync-back outcome and, for a failed or
// conflicting entry, why.
type SyncEntry struct {
	Path   string
	Status SyncEntryStatus
	Detail string
}

// Result is the sync-back protocol's return value: per-file entries plus
// the aggregate counts the scheduler reports on.
type Result struct {
	Entries   []SyncEntry
	Success   int
	Failed    int
	Conflicts int
	Total     int
}

func (r *Result) record(e SyncEntry) {
	r.Entries = append(r.Entries, e)
	r.Total++
	switch e.Status {
	case SyncSuccess:
		r.Success++
	case SyncFailed:
		r.Failed++
	case SyncConflict:
		r.Conflicts++
	}
}
