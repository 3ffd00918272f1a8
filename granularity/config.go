// Package granularity scores tasks for size/complexity and recommends
// splits, merges, and structural diagnostics so a task tree stays in a band
// where each leaf is plausibly a single focused implementation step.
package granularity

import "github.com/taskforge/conductor/config"

// Config is the subset of the orchestrator config the granularity controller
// reads. It is populated from config.GranularityConfig so the controller
// itself has no dependency on the YAML loading layer.
type Config struct {
	MinTaskComplexity     float64
	MaxTaskComplexity     float64
	IdealTaskDuration     float64
	MinTaskDuration       float64
	MaxTaskDuration       float64
	MaxDepth              int
	MinDepth              int
	MaxChildrenPerNode    int
	MinChildrenPerNode    int
	EstimatedLinesPerTask int
	MaxLinesPerTask       int
	MinLinesPerTask       int
}

// FromOrchestratorConfig adapts the loaded orchestrator config into the
// controller's own Config shape.
func FromOrchestratorConfig(c config.GranularityConfig) Config {
	return Config{
		MinTaskComplexity:     c.MinTaskComplexity,
		MaxTaskComplexity:     c.MaxTaskComplexity,
		IdealTaskDuration:     c.IdealTaskDuration,
		MinTaskDuration:       c.MinTaskDuration,
		MaxTaskDuration:       c.MaxTaskDuration,
		MaxDepth:              c.MaxDepth,
		MinDepth:              c.MinDepth,
		MaxChildrenPerNode:    c.MaxChildrenPerNode,
		MinChildrenPerNode:    c.MinChildrenPerNode,
		EstimatedLinesPerTask: c.EstimatedLinesPerTask,
		MaxLinesPerTask:       c.MaxLinesPerTask,
		MinLinesPerTask:       c.MinLinesPerTask,
	}
}

// DefaultConfig mirrors config.DefaultConfig's granularity band so the
// controller is independently usable (e.g. from adjustGranularity dry-runs)
// without threading the full orchestrator config through.
func DefaultConfig() Config {
	return FromOrchestratorConfig(config.DefaultConfig().Granularity)
}
