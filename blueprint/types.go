// Package blueprint defines the top-level specification of a project — the
// requirements, modules, and constraints a task tree is derived from.
package blueprint

import "time"

// Status is the blueprint's lifecycle position.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusReview    Status = "review"
	StatusApproved  Status = "approved"
	StatusExecuting Status = "executing"
	StatusCompleted Status = "completed"
	StatusPaused    Status = "paused"
	StatusModified  Status = "modified"
)

// ModuleType tags a module by the layer of the system it belongs to.
type ModuleType string

const (
	ModuleFrontend      ModuleType = "frontend"
	ModuleBackend       ModuleType = "backend"
	ModuleDatabase      ModuleType = "database"
	ModuleService       ModuleType = "service"
	ModuleInfrastructure ModuleType = "infrastructure"
	ModuleOther         ModuleType = "other"
)

// InterfaceDirection describes which way data moves across a named interface.
type InterfaceDirection string

const (
	DirectionIn   InterfaceDirection = "in"
	DirectionOut  InterfaceDirection = "out"
	DirectionBoth InterfaceDirection = "both"
)

// Interface is a named boundary a module exposes or consumes, e.g. a REST
// endpoint, a queue topic, or a database table.
type Interface struct {
	Name      string             `json:"name" yaml:"name"`
	Direction InterfaceDirection `json:"direction" yaml:"direction"`
	Type      string             `json:"type" yaml:"type"`
}

// Module is one system component within a blueprint. Dependencies reference
// sibling modules by id; the task tree later binds tasks to modules the same
// weak-reference way.
type Module struct {
	ID           string      `json:"id" yaml:"id"`
	Type         ModuleType  `json:"type" yaml:"type"`
	Dependencies []string    `json:"dependencies" yaml:"dependencies"`
	Interfaces   []Interface `json:"interfaces" yaml:"interfaces"`
	// RootPath is relative to the project root; empty if the module has no
	// dedicated directory yet.
	RootPath string `json:"rootPath,omitempty" yaml:"rootPath,omitempty"`
}

// Blueprint is the top-level specification a task tree is grown from.
type Blueprint struct {
	ID           string    `json:"id" yaml:"id"`
	Name         string    `json:"name" yaml:"name"`
	Description  string    `json:"description" yaml:"description"`
	Version      string    `json:"version" yaml:"version"`
	Status       Status    `json:"status" yaml:"status"`
	TechStack    []string  `json:"techStack" yaml:"techStack"`
	Requirements string    `json:"requirements" yaml:"requirements"`
	Constraints  []string  `json:"constraints" yaml:"constraints"`
	Modules      []Module  `json:"modules" yaml:"modules"`
	CreatedAt    time.Time `json:"createdAt" yaml:"createdAt"`
}

// ModuleByID returns the module with the given id, or false if absent.
func (b *Blueprint) ModuleByID(id string) (Module, bool) {
	for _, m := range b.Modules {
		if m.ID == id {
			return m, true
		}
	}
	return Module{}, false
}

// Pick is the condensed blueprint view the reviewer receives as review
// context: id, name, description, requirements, tech stack, constraints —
// never the full module list.
type Pick struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Requirements string   `json:"requirements"`
	TechStack    []string `json:"techStack"`
	Constraints  []string `json:"constraints"`
}

// Pick condenses the blueprint into the reviewer's context view.
func (b *Blueprint) Pick() Pick {
	return Pick{
		ID:           b.ID,
		Name:         b.Name,
		Description:  b.Description,
		Requirements: b.Requirements,
		TechStack:    b.TechStack,
		Constraints:  b.Constraints,
	}
}
