// Package agent drives a bounded conversation with a tool allow-list and
// emits a stream of typed events. It is the sole place the LLM client's
// tool-call loop lives; worker and reviewer both drive it with different
// prompts, tool sets, and turn caps.
package agent

// EventKind names the kind of event on the runner's stream.
type EventKind string

const (
	EventText      EventKind = "text"
	EventToolStart EventKind = "tool_start"
	EventToolEnd   EventKind = "tool_end"
	EventError     EventKind = "error"
	EventDone      EventKind = "done"
)

// Event is one item on the runner's event stream.
type Event struct {
	Kind EventKind

	// Text is set on EventText.
	Text string

	// ToolCallID, ToolName, and ToolInput are set on EventToolStart, and
	// ToolInput is echoed on the matching EventToolEnd so a reducer that
	// only looks at tool-end events can still recover the call's input.
	ToolCallID string
	ToolName   string
	ToolInput  map[string]any

	// ToolOutput is set on EventToolEnd for a successful call.
	ToolOutput string

	// Err is set on EventError, and on EventToolEnd for a failed call.
	Err error
}
