package contextcollector

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/taskforge/conductor/blueprint"
	"github.com/taskforge/conductor/tasktree"
	"github.com/taskforge/conductor/worker/summary"
)

// excludedDirGlobs are matched against a project-relative path via
// doublestar.Match; any directory matching one of these is never descended
// into: hidden directories and node_modules-style vendor directories.
var excludedDirGlobs = []string{
	"**/.*/**",
	"**/node_modules/**",
	"**/vendor/**",
	"**/dist/**",
	"**/build/**",
}

// Collector gathers bounded context bundles from a project directory.
type Collector struct {
	projectRoot string
	cfg         Config
}

// New creates a Collector rooted at projectRoot.
func New(projectRoot string, cfg Config) *Collector {
	return &Collector{projectRoot: projectRoot, cfg: cfg}
}

// Collect assembles the bundle for a task: explicit files first, then
// type-specific gathering, then a project-structure outline if still under
// cap — stopping as soon as the file cap is reached.
func (c *Collector) Collect(task *tasktree.Node, taskType TaskType, module *blueprint.Module, deps []DependencyOutput) Bundle {
	var bundle Bundle
	seen := make(map[string]bool)

	add := func(path string) bool {
		if len(bundle.Files) >= c.cfg.maxFiles() || seen[path] {
			return false
		}
		content, warn, ok := c.readBounded(path)
		if warn != "" {
			bundle.Warnings = append(bundle.Warnings, warn)
		}
		if !ok {
			return false
		}
		seen[path] = true
		bundle.Files = append(bundle.Files, FileEntry{Path: path, Content: content})
		return true
	}

	for _, path := range explicitlyNamedFiles(task) {
		if len(bundle.Files) >= c.cfg.maxFiles() {
			break
		}
		add(normalizePath(path))
	}

	if len(bundle.Files) < c.cfg.maxFiles() {
		for _, path := range c.typeSpecificFiles(task, taskType, module) {
			if len(bundle.Files) >= c.cfg.maxFiles() {
				break
			}
			add(path)
		}
	}

	if len(bundle.Files) < c.cfg.maxFiles() {
		if outline := c.projectStructureOutline(); outline != "" {
			bundle.Files = append(bundle.Files, FileEntry{Path: "(project-structure)", Content: outline})
		}
	}

	bundle.Dependencies = c.dependencyOutputs(deps)

	return bundle
}

func (cfg Config) maxFiles() int {
	if cfg.MaxFiles <= 0 {
		return 10
	}
	return cfg.MaxFiles
}

// explicitlyNamedFiles returns any file paths a task's acceptance tests
// name directly; the description is not scanned. Since the task data model has no
// dedicated "explicit files" field, the task's acceptance test strings are
// scanned for path-shaped tokens.
func explicitlyNamedFiles(task *tasktree.Node) []string {
	var out []string
	for _, a := range task.Acceptance {
		for _, tok := range strings.Fields(a) {
			if looksLikePath(tok) {
				out = append(out, tok)
			}
		}
	}
	return out
}

func looksLikePath(tok string) bool {
	tok = strings.Trim(tok, ".,;:()\"'")
	return strings.Contains(tok, "/") && strings.Contains(tok, ".") && !strings.HasPrefix(tok, "http")
}

// typeSpecificFiles runs the per-type gathering rule.
func (c *Collector) typeSpecificFiles(task *tasktree.Node, taskType TaskType, module *blueprint.Module) []string {
	switch taskType {
	case TaskTypeTest:
		return c.testTypeFiles(task)
	case TaskTypeCode, TaskTypeRefactor:
		return c.moduleWalkFiles(module, 5)
	case TaskTypeIntegrate:
		return c.entryFiles(module)
	case TaskTypeConfig:
		return c.existingChecklistFiles(wellKnownConfigFiles)
	default:
		return nil
	}
}

// testRewrites are the ordered test-path -> source-path rewrites, first
// match wins.
var testRewrites = []struct{ from, to string }{
	{"/tests/integration/", "/src/"},
	{"/tests/unit/", "/src/"},
	{"/tests/", "/src/"},
	{"/test/", "/src/"},
	{"/__tests__/", "/"},
}

func (c *Collector) testTypeFiles(task *tasktree.Node) []string {
	var out []string
	for _, acc := range explicitlyNamedFiles(task) {
		if src, ok := rewriteTestPath(acc); ok {
			out = append(out, src)
		}
	}

	refs := c.findReferenceTestFiles(2)
	out = append(out, refs...)
	return out
}

func rewriteTestPath(path string) (string, bool) {
	path = normalizePath(path)
	for _, r := range testRewrites {
		if strings.Contains(path, r.from) {
			rewritten := strings.Replace(path, r.from, r.to, 1)
			rewritten = stripTestSuffix(rewritten)
			return rewritten, true
		}
	}
	return "", false
}

func stripTestSuffix(path string) string {
	path = strings.Replace(path, ".test.", ".", 1)
	path = strings.Replace(path, ".spec.", ".", 1)
	return path
}

// findReferenceTestFiles walks the project for up to n existing test files
// to include as style reference.
func (c *Collector) findReferenceTestFiles(n int) []string {
	var out []string
	_ = filepath.WalkDir(c.projectRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil || len(out) >= n {
			return nil
		}
		rel, relErr := filepath.Rel(c.projectRoot, path)
		if relErr != nil {
			return nil
		}
		rel = normalizePath(rel)
		if d.IsDir() {
			if c.excluded(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.Contains(rel, "_test.") || strings.Contains(rel, ".test.") || strings.Contains(rel, ".spec.") {
			out = append(out, rel)
			if len(out) >= n {
				return fs.SkipAll
			}
		}
		return nil
	})
	return out
}

// moduleWalkFiles walks the task's bound module directory up to three
// levels deep, taking the first `limit` qualifying files.
func (c *Collector) moduleWalkFiles(module *blueprint.Module, limit int) []string {
	if module == nil || module.RootPath == "" {
		return nil
	}
	root := filepath.Join(c.projectRoot, module.RootPath)
	base, err := filepath.Rel(c.projectRoot, root)
	if err != nil {
		return nil
	}
	baseDepth := len(strings.Split(normalizePath(base), "/"))

	var out []string
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || len(out) >= limit {
			return nil
		}
		rel, relErr := filepath.Rel(c.projectRoot, path)
		if relErr != nil {
			return nil
		}
		rel = normalizePath(rel)
		depth := len(strings.Split(rel, "/")) - baseDepth
		if d.IsDir() {
			if c.excluded(rel) || depth > 3 {
				return filepath.SkipDir
			}
			return nil
		}
		if depth > 3 {
			return nil
		}
		out = append(out, rel)
		if len(out) >= limit {
			return fs.SkipAll
		}
		return nil
	})
	return out
}

// entryFiles finds the first matching entry-point file per module.
func (c *Collector) entryFiles(module *blueprint.Module) []string {
	if module == nil {
		return nil
	}
	root := module.RootPath
	for _, candidate := range entryFileCandidates {
		rel := normalizePath(filepath.Join(root, candidate))
		if c.exists(rel) {
			return []string{rel}
		}
	}
	return nil
}

func (c *Collector) existingChecklistFiles(names []string) []string {
	var out []string
	for _, n := range names {
		if c.exists(n) {
			out = append(out, n)
		}
	}
	return out
}

func (c *Collector) exists(relPath string) bool {
	info, err := os.Stat(filepath.Join(c.projectRoot, relPath))
	return err == nil && !info.IsDir()
}

// excluded reports whether a project-relative path falls under an excluded
// directory pattern.
func (c *Collector) excluded(relPath string) bool {
	if relPath == "." {
		return false
	}
	for _, pattern := range excludedDirGlobs {
		if ok, _ := doublestar.Match(pattern, relPath); ok {
			return true
		}
	}
	return false
}

// readBounded reads a file under the project root, respecting the size cap
// and refusing to follow symlinks out of the root. Missing files are
// silently skipped; permission errors become a warning.
func (c *Collector) readBounded(relPath string) (content string, warning string, ok bool) {
	full := filepath.Join(c.projectRoot, relPath)

	resolved, err := filepath.EvalSymlinks(full)
	if err != nil {
		if os.IsNotExist(err) {
			return "", "", false
		}
		return "", fmt.Sprintf("permission error resolving %s: %v", relPath, err), false
	}
	if rel, relErr := filepath.Rel(c.projectRoot, resolved); relErr != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Sprintf("skipped %s: resolves outside project root", relPath), false
	}

	info, err := os.Stat(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return "", "", false
		}
		return "", fmt.Sprintf("permission error statting %s: %v", relPath, err), false
	}
	if info.IsDir() {
		return "", "", false
	}

	maxSize := c.cfg.MaxFileSizeBytes
	if maxSize <= 0 {
		maxSize = 100 * 1024
	}
	if info.Size() > maxSize {
		return "", "", false
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		if os.IsPermission(err) {
			return "", fmt.Sprintf("permission denied reading %s: %v", relPath, err), false
		}
		return "", "", false
	}

	return truncate(string(data), c.cfg.MaxContentChars), "", true
}

// dependencyOutputs trims each dependency's file list to the configured
// per-dependency cap, truncating content and skipping entries with no
// preview.
func (c *Collector) dependencyOutputs(deps []DependencyOutput) []DependencyOutput {
	maxFiles := c.cfg.MaxDepOutputFiles
	if maxFiles <= 0 {
		maxFiles = 5
	}
	maxChars := c.cfg.MaxContentChars
	if maxChars <= 0 {
		maxChars = 5000
	}

	out := make([]DependencyOutput, 0, len(deps))
	for _, d := range deps {
		trimmed := DependencyOutput{TaskID: d.TaskID, Name: d.Name}
		for _, f := range d.Files {
			if f.Content == "" {
				continue
			}
			if len(trimmed.Files) >= maxFiles {
				break
			}
			trimmed.Files = append(trimmed.Files, FileEntry{Path: f.Path, Content: truncate(f.Content, maxChars)})
		}
		out = append(out, trimmed)
	}
	return out
}

// DependencyOutputFromSummary adapts a worker execution summary's file
// changes into the dependency-output shape this collector consumes.
func DependencyOutputFromSummary(taskID, name string, s summary.Summary) DependencyOutput {
	d := DependencyOutput{TaskID: taskID, Name: name}
	for _, fc := range s.FileChanges {
		if fc.ContentPreview == "" {
			continue
		}
		d.Files = append(d.Files, FileEntry{Path: fc.Path, Content: fc.ContentPreview})
	}
	return d
}

func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max]
}

func normalizePath(p string) string {
	return filepath.ToSlash(filepath.Clean(p))
}

// projectStructureOutline renders one level of well-known top-level
// directories.
func (c *Collector) projectStructureOutline() string {
	entries, err := os.ReadDir(c.projectRoot)
	if err != nil {
		return ""
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if c.excluded(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	if len(names) == 0 {
		return ""
	}
	return "top-level directories: " + strings.Join(names, ", ")
}
