package agent

import "context"

// Tool is one callable the agent runner can offer to the model. Worker and
// reviewer each wire up a distinct set: the worker offers read/search/write/
// edit, a shell executor, a status-update tool, and an ask-user escalation
// tool, while the reviewer offers only a read-only subset.
type Tool interface {
	Name() string
	Description() string
	// Parameters is the JSON schema describing the tool's input.
	Parameters() map[string]any
	// Execute runs the tool against the given arguments, scoped to workdir.
	Execute(ctx context.Context, workdir string, args map[string]any) (string, error)
}

// AllowList is an ordered, named set of tools offered for one run. Building
// it explicitly, rather than offering every registered tool, is what lets
// the runner enforce a hard allow-list per run.
type AllowList struct {
	tools map[string]Tool
	order []string
}

// NewAllowList builds an allow-list from the given tools, in the order
// given.
func NewAllowList(tools ...Tool) *AllowList {
	al := &AllowList{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		if _, dup := al.tools[t.Name()]; dup {
			continue
		}
		al.tools[t.Name()] = t
		al.order = append(al.order, t.Name())
	}
	return al
}

// Lookup returns the tool with the given name, or false if it is not on the
// allow-list.
func (al *AllowList) Lookup(name string) (Tool, bool) {
	t, ok := al.tools[name]
	return t, ok
}

// Names returns the allow-listed tool names in definition order.
func (al *AllowList) Names() []string {
	return append([]string(nil), al.order...)
}
