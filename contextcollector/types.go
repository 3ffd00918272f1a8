// Package contextcollector assembles the bounded, relevance-ranked working
// context handed to a worker for one task: files worth reading, plus
// upstream dependency outputs.
package contextcollector

import "github.com/taskforge/conductor/config"

// FileEntry is one (path, content) pair in the bundle. Paths are always
// project-relative and forward-slash normalized.
type FileEntry struct {
	Path    string
	Content string
}

// DependencyOutput carries up to N file records from a finished upstream
// task.
type DependencyOutput struct {
	TaskID string
	Name   string
	Files  []FileEntry
}

// Bundle is the bounded context handed to a worker.
type Bundle struct {
	Files        []FileEntry
	Dependencies []DependencyOutput
	// Warnings records bundle-level permission errors encountered while
	// gathering — missing files are silently skipped and never appear here.
	Warnings []string
}

// TaskType drives the type-specific gathering rule. It is distinct from
// tasktree's lifecycle Status — a task keeps the same TaskType across its
// whole status lifecycle.
type TaskType string

const (
	TaskTypeTest      TaskType = "test"
	TaskTypeCode      TaskType = "code"
	TaskTypeRefactor  TaskType = "refactor"
	TaskTypeIntegrate TaskType = "integrate"
	TaskTypeConfig    TaskType = "config"
	TaskTypeOther     TaskType = "other"
)

// Config bounds the collector's gathering, populated from
// config.ContextConfig.
type Config struct {
	MaxFiles          int
	MaxFileSizeBytes  int64
	IncludeTestFiles  bool
	MaxDepOutputFiles int
	MaxContentChars   int
}

// FromOrchestratorConfig adapts the loaded orchestrator config.
func FromOrchestratorConfig(c config.ContextConfig) Config {
	return Config{
		MaxFiles:          c.MaxFiles,
		MaxFileSizeBytes:  int64(c.MaxFileSizeBytes),
		IncludeTestFiles:  c.IncludeTestFiles,
		MaxDepOutputFiles: c.MaxDepOutputFiles,
		MaxContentChars:   c.MaxContentChars,
	}
}

// wellKnownConfigFiles is the fixed checklist of well-known configuration
// filenames consulted for the "config" task type.
var wellKnownConfigFiles = []string{
	"package.json", "go.mod", "Cargo.toml", "pyproject.toml", "requirements.txt",
	"tsconfig.json", "Dockerfile", "docker-compose.yml", ".env.example",
	"Makefile", "orchestrator.yaml",
}

// entryFileCandidates is the ordered list consulted for the "integrate" task
// type: one entry file per module, first match of index or main with a
// known extension.
var entryFileCandidates = []string{
	"index.ts", "index.js", "index.go", "index.py",
	"main.ts", "main.js", "main.go", "main.py",
}
