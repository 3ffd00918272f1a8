package blueprint

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Sentinel errors for blueprint loading and validation — these are input
// errors, caught at load time rather than during scheduling.
var (
	ErrIDRequired          = errors.New("blueprint: id is required")
	ErrDuplicateModuleID   = errors.New("blueprint: duplicate module id")
	ErrUnknownModuleDep    = errors.New("blueprint: module dependency references unknown module")
	ErrModuleDepCycle      = errors.New("blueprint: cycle in module dependencies")
)

// LoadFromFile reads a YAML-encoded blueprint from disk and validates it.
func LoadFromFile(path string) (*Blueprint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read blueprint file: %w", err)
	}

	var bp Blueprint
	if err := yaml.Unmarshal(data, &bp); err != nil {
		return nil, fmt.Errorf("parse blueprint file: %w", err)
	}

	if err := bp.Validate(); err != nil {
		return nil, err
	}

	return &bp, nil
}

// Validate checks the blueprint's internal consistency: every module id is
// unique, every module dependency resolves, and module dependencies form a
// DAG. This is the blueprint-level half of cycle detection; the task-level
// half lives in tasktree.Build's cycle check.
func (b *Blueprint) Validate() error {
	if b.ID == "" {
		return ErrIDRequired
	}

	seen := make(map[string]bool, len(b.Modules))
	for _, m := range b.Modules {
		if seen[m.ID] {
			return fmt.Errorf("%w: %s", ErrDuplicateModuleID, m.ID)
		}
		seen[m.ID] = true
	}

	for _, m := range b.Modules {
		for _, dep := range m.Dependencies {
			if !seen[dep] {
				return fmt.Errorf("%w: module %s depends on %s", ErrUnknownModuleDep, m.ID, dep)
			}
		}
	}

	if cycle := findModuleCycle(b.Modules); cycle != nil {
		return fmt.Errorf("%w: %v", ErrModuleDepCycle, cycle)
	}

	return nil
}

// findModuleCycle runs a DFS over the module dependency graph and returns the
// path of a detected cycle, or nil if the graph is acyclic.
func findModuleCycle(modules []Module) []string {
	deps := make(map[string][]string, len(modules))
	for _, m := range modules {
		deps[m.ID] = m.Dependencies
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(modules))
	var path []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = gray
		path = append(path, id)
		for _, dep := range deps[id] {
			switch color[dep] {
			case gray:
				cycle = append(append([]string{}, path...), dep)
				return true
			case white:
				if visit(dep) {
					return true
				}
			}
		}
		path = path[:len(path)-1]
		color[id] = black
		return false
	}

	for _, m := range modules {
		if color[m.ID] == white {
			if visit(m.ID) {
				return cycle
			}
		}
	}
	return nil
}
