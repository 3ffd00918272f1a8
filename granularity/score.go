package granularity

import (
	"math"
	"strings"

	"github.com/taskforge/conductor/blueprint"
	"github.com/taskforge/conductor/tasktree"
)

// Factors holds the six [0,1] complexity inputs, exposed so diagnostics and
// tests can inspect the decomposition instead of only the combined score.
type Factors struct {
	CodeSize          float64
	Dependencies      float64
	Interfaces        float64
	TestCoverage      float64
	DescriptionLength float64
	ChildrenCount     float64
}

// weights are the fixed combination weights used to blend the factors.
const (
	weightCodeSize          = 0.30
	weightDependencies      = 0.20
	weightInterfaces        = 0.15
	weightTestCoverage      = 0.15
	weightDescriptionLength = 0.10
	weightChildrenCount     = 0.10
)

// Score computes the six factors for a task and combines them into a total
// in [0, 100]. module is nil if the task has no module binding.
func Score(n *tasktree.Node, module *blueprint.Module, cfg Config) (total float64, factors Factors) {
	lines := EstimateLines(n, module, cfg)
	factors.CodeSize = sigmoid(float64(lines), float64(cfg.EstimatedLinesPerTask))

	moduleDeps := 0
	if module != nil {
		moduleDeps = len(module.Dependencies)
	}
	factors.Dependencies = clamp01(float64(len(n.Dependencies)+moduleDeps) / 10)

	if module != nil {
		factors.Interfaces = clamp01(float64(len(module.Interfaces)) / 6)
	}

	factors.TestCoverage = clamp01(float64(len(n.Acceptance)) / 6)
	if n.Test != nil {
		factors.TestCoverage = clamp01(factors.TestCoverage + 0.2)
	}

	factors.DescriptionLength = clamp01(float64(len(n.Description)) / 300)

	if n.IsLeaf() {
		factors.ChildrenCount = 0.3
	} else {
		factors.ChildrenCount = clamp01(0.3 + 0.7*float64(len(n.Children))/10)
	}

	total = 100 * (weightCodeSize*factors.CodeSize +
		weightDependencies*factors.Dependencies +
		weightInterfaces*factors.Interfaces +
		weightTestCoverage*factors.TestCoverage +
		weightDescriptionLength*factors.DescriptionLength +
		weightChildrenCount*factors.ChildrenCount)

	return total, factors
}

// sigmoid computes a logistic curve over x with midpoint m: 0.5 at x==m,
// approaching 0 for x << m and 1 for x >> m. The steepness constant keeps the
// curve from saturating within the first couple hundred lines past the
// midpoint.
func sigmoid(x, midpoint float64) float64 {
	if midpoint <= 0 {
		midpoint = 1
	}
	k := 4.0 / midpoint
	return 1 / (1 + math.Exp(-k*(x-midpoint)))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// nameKeywordFactor and moduleTypeFactor are the line-estimation multiplier
// tables.
func nameKeywordFactor(name string) float64 {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "test"):
		return 0.6
	case strings.Contains(lower, "design"):
		return 0.3
	case strings.Contains(lower, "implementation"):
		return 1.2
	case strings.Contains(lower, "interface"):
		return 0.8
	default:
		return 1.0
	}
}

func moduleTypeFactor(t blueprint.ModuleType) float64 {
	switch t {
	case blueprint.ModuleFrontend:
		return 1.3
	case blueprint.ModuleBackend:
		return 1.1
	case blueprint.ModuleDatabase:
		return 0.7
	default:
		return 1.0
	}
}

// EstimateLines estimates a task's line count: baseline times name-keyword
// factor, module-type factor, a dependency multiplier, and a
// description-length multiplier capped at 1.5.
func EstimateLines(n *tasktree.Node, module *blueprint.Module, cfg Config) int {
	baseline := cfg.EstimatedLinesPerTask
	if baseline <= 0 {
		baseline = 100
	}

	factor := nameKeywordFactor(n.Name)

	if module != nil {
		factor *= moduleTypeFactor(module.Type)
	}

	moduleDeps := 0
	if module != nil {
		moduleDeps = len(module.Dependencies)
	}
	depMultiplier := 1 + 0.1*float64(len(n.Dependencies)+moduleDeps)

	descMultiplier := 1 + float64(len(n.Description))/1000
	if descMultiplier > 1.5 {
		descMultiplier = 1.5
	}

	lines := float64(baseline) * factor * depMultiplier * descMultiplier

	if cfg.MaxLinesPerTask > 0 && lines > float64(cfg.MaxLinesPerTask) {
		lines = float64(cfg.MaxLinesPerTask)
	}
	if cfg.MinLinesPerTask > 0 && lines < float64(cfg.MinLinesPerTask) {
		lines = float64(cfg.MinLinesPerTask)
	}

	return int(math.Round(lines))
}

// EstimateDuration estimates task duration in minutes: lines/10, scaled up
// by the dependency, interface, and test-coverage factors already computed
// for the complexity score.
func EstimateDuration(lines int, factors Factors) float64 {
	base := float64(lines) / 10
	return base * (1 + 0.5*factors.Dependencies + 0.3*factors.Interfaces + 0.4*factors.TestCoverage)
}
