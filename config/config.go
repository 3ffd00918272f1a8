// Package config provides configuration loading and management for the
// task orchestration engine.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete orchestrator configuration.
type Config struct {
	Granularity GranularityConfig `yaml:"granularity"`
	Context     ContextConfig     `yaml:"context"`
	Reviewer    ReviewerConfig    `yaml:"reviewer"`
	Scheduler   SchedulerConfig   `yaml:"scheduler"`
	Sandbox     SandboxConfig     `yaml:"sandbox"`
	NATS        NATSConfig        `yaml:"nats"`
}

// GranularityConfig bounds the granularity controller's split/merge decisions.
type GranularityConfig struct {
	MinTaskComplexity    float64 `yaml:"min_task_complexity"`
	MaxTaskComplexity    float64 `yaml:"max_task_complexity"`
	IdealTaskDuration    float64 `yaml:"ideal_task_duration_minutes"`
	MinTaskDuration      float64 `yaml:"min_task_duration_minutes"`
	MaxTaskDuration      float64 `yaml:"max_task_duration_minutes"`
	MaxDepth             int     `yaml:"max_depth"`
	MinDepth             int     `yaml:"min_depth"`
	MaxChildrenPerNode   int     `yaml:"max_children_per_node"`
	MinChildrenPerNode   int     `yaml:"min_children_per_node"`
	EstimatedLinesPerTask int    `yaml:"estimated_lines_per_task"`
	MaxLinesPerTask      int     `yaml:"max_lines_per_task"`
	MinLinesPerTask      int     `yaml:"min_lines_per_task"`
}

// ContextConfig bounds the context collector's gathering.
type ContextConfig struct {
	MaxFiles         int  `yaml:"max_files"`
	MaxFileSizeBytes int  `yaml:"max_file_size_bytes"`
	IncludeTestFiles bool `yaml:"include_test_files"`
	MaxDepOutputFiles int `yaml:"max_dependency_output_files"`
	MaxContentChars  int  `yaml:"max_content_chars"`
}

// ReviewerConfig configures the independent review pass.
type ReviewerConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Model      string `yaml:"model"`
	Strictness string `yaml:"strictness"` // lenient, normal, strict
	MaxRetries int    `yaml:"max_retries"`
	TimeoutMs  int    `yaml:"timeout_ms"`
}

// SchedulerConfig bounds the dispatch loop.
type SchedulerConfig struct {
	ConcurrencyLimit int `yaml:"concurrency_limit"`
}

// SandboxConfig configures per-worker isolation.
type SandboxConfig struct {
	BaseDir          string `yaml:"base_dir"`
	LockDir          string `yaml:"lock_dir"`
	LockTimeoutMs    int    `yaml:"lock_timeout_ms"`
	OutputGCDays     int    `yaml:"output_gc_days"`
	OutputThresholdB int    `yaml:"output_persist_threshold_bytes"`
}

// NATSConfig configures the event bus the orchestrator facade publishes to.
type NATSConfig struct {
	URL      string `yaml:"url"`
	Embedded bool   `yaml:"embedded"`
}

// DefaultConfig returns a Config with its documented defaults.
func DefaultConfig() *Config {
	return &Config{
		Granularity: GranularityConfig{
			MinTaskComplexity:    15,
			MaxTaskComplexity:    75,
			IdealTaskDuration:    60,
			MinTaskDuration:      10,
			MaxTaskDuration:      240,
			MaxDepth:             6,
			MinDepth:             1,
			MaxChildrenPerNode:   8,
			MinChildrenPerNode:   2,
			EstimatedLinesPerTask: 100,
			MaxLinesPerTask:      600,
			MinLinesPerTask:      10,
		},
		Context: ContextConfig{
			MaxFiles:          10,
			MaxFileSizeBytes:  100 * 1024,
			IncludeTestFiles:  true,
			MaxDepOutputFiles: 5,
			MaxContentChars:   5000,
		},
		Reviewer: ReviewerConfig{
			Enabled:    true,
			Model:      "",
			Strictness: "normal",
			MaxRetries: 2,
			TimeoutMs:  60_000,
		},
		Scheduler: SchedulerConfig{
			ConcurrencyLimit: 3,
		},
		Sandbox: SandboxConfig{
			BaseDir:          "",
			LockDir:          "",
			LockTimeoutMs:    60_000,
			OutputGCDays:     7,
			OutputThresholdB: 8 * 1024,
		},
		NATS: NATSConfig{
			URL:      "",
			Embedded: true,
		},
	}
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	g := c.Granularity
	if g.MinTaskComplexity < 0 || g.MaxTaskComplexity > 100 || g.MinTaskComplexity >= g.MaxTaskComplexity {
		return fmt.Errorf("granularity: min_task_complexity/max_task_complexity out of band")
	}
	if g.MinDepth < 0 || g.MaxDepth < g.MinDepth {
		return fmt.Errorf("granularity: max_depth must be >= min_depth")
	}
	if g.MaxChildrenPerNode < 1 {
		return fmt.Errorf("granularity: max_children_per_node must be at least 1")
	}
	if c.Context.MaxFiles < 1 {
		return fmt.Errorf("context: max_files must be at least 1")
	}
	if c.Scheduler.ConcurrencyLimit < 1 {
		return fmt.Errorf("scheduler: concurrency_limit must be at least 1")
	}
	switch c.Reviewer.Strictness {
	case "lenient", "normal", "strict":
	default:
		return fmt.Errorf("reviewer: strictness must be lenient, normal, or strict")
	}
	if c.Reviewer.MaxRetries < 0 {
		return fmt.Errorf("reviewer: max_retries cannot be negative")
	}
	return nil
}

// ReviewTimeout returns the configured reviewer timeout, defaulting to 60s.
func (c *Config) ReviewTimeout() time.Duration {
	if c.Reviewer.TimeoutMs <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.Reviewer.TimeoutMs) * time.Millisecond
}

// LockTimeout returns the configured lock acquisition timeout, defaulting to 60s.
func (c *Config) LockTimeout() time.Duration {
	if c.Sandbox.LockTimeoutMs <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.Sandbox.LockTimeoutMs) * time.Millisecond
}

// OutputGCAge returns the configured age threshold for persisted tool
// output GC, defaulting to 7 days.
func (c *Config) OutputGCAge() time.Duration {
	if c.Sandbox.OutputGCDays <= 0 {
		return 7 * 24 * time.Hour
	}
	return time.Duration(c.Sandbox.OutputGCDays) * 24 * time.Hour
}

// LoadFromFile loads configuration from a YAML file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	return cfg, nil
}

// SaveToFile saves configuration to a YAML file.
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one; other takes precedence for non-zero values.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	if other.Granularity.MaxTaskComplexity != 0 {
		c.Granularity = other.Granularity
	}
	if other.Context.MaxFiles != 0 {
		c.Context = other.Context
	}
	if other.Reviewer.Strictness != "" {
		c.Reviewer = other.Reviewer
	}
	if other.Scheduler.ConcurrencyLimit != 0 {
		c.Scheduler = other.Scheduler
	}
	if other.Sandbox.BaseDir != "" || other.Sandbox.LockTimeoutMs != 0 {
		c.Sandbox = other.Sandbox
	}
	if other.NATS.URL != "" {
		c.NATS.URL = other.NATS.URL
		c.NATS.Embedded = false
	}
}
