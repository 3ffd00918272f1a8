package reviewer

import (
	"strings"

	"github.com/taskforge/conductor/tasktree"
)

// verdictSynonyms maps case-insensitive English and Chinese spellings to a
// canonical ReviewVerdict. Anything not listed here normalizes to
// needs_revision rather than being rejected outright.
var verdictSynonyms = map[string]tasktree.ReviewVerdict{
	"passed":         tasktree.VerdictPassed,
	"pass":           tasktree.VerdictPassed,
	"approved":       tasktree.VerdictPassed,
	"通过":             tasktree.VerdictPassed,
	"合格":             tasktree.VerdictPassed,
	"failed":         tasktree.VerdictFailed,
	"fail":           tasktree.VerdictFailed,
	"失败":             tasktree.VerdictFailed,
	"needs_revision": tasktree.VerdictNeedsRevision,
	"needs revision": tasktree.VerdictNeedsRevision,
	"revise":         tasktree.VerdictNeedsRevision,
	"需要修改":           tasktree.VerdictNeedsRevision,
	"需修改":            tasktree.VerdictNeedsRevision,
}

// normalizeVerdict maps a raw model-supplied verdict string onto the
// canonical set. An unrecognized value is treated as needs_revision rather
// than an error — only a missing verdict call is an error.
func normalizeVerdict(raw string) tasktree.ReviewVerdict {
	key := strings.ToLower(strings.TrimSpace(raw))
	if v, ok := verdictSynonyms[key]; ok {
		return v
	}
	return tasktree.VerdictNeedsRevision
}

// normalizeConfidence maps a raw confidence string onto the canonical set,
// defaulting to medium when absent or unrecognized.
func normalizeConfidence(raw string) tasktree.Confidence {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "high", "高":
		return tasktree.ConfidenceHigh
	case "low", "低":
		return tasktree.ConfidenceLow
	default:
		return tasktree.ConfidenceMedium
	}
}
