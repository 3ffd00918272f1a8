package orchestrator

import (
	"time"

	"github.com/c360studio/semstreams/message"
	"github.com/taskforge/conductor/scheduler"
)

// EventKind classifies one orchestrator-level event — a coarser grouping
// than scheduler.EventKind, collapsing retry/dispatch churn into the five
// kinds an external collaborator (UI, history search) actually cares about.
type EventKind string

const (
	EventTaskStarted   EventKind = "task-started"
	EventTaskProgress  EventKind = "task-progress"
	EventTaskCompleted EventKind = "task-completed"
	EventTreeAdjusted  EventKind = "tree-adjusted"
	EventDone          EventKind = "done"
)

// Event is one occurrence in a blueprint run, published both on the
// in-process channel RunBlueprint returns and, when a NATS client is
// configured, onto the orchestrator.event.> JetStream subject prefix.
type Event struct {
	Kind        EventKind `json:"kind"`
	BlueprintID string    `json:"blueprintId"`
	TaskID      string    `json:"taskId,omitempty"`
	Detail      string    `json:"detail,omitempty"`
	At          time.Time `json:"at"`
}

// EventType is the message.Type every published Event carries.
var EventType = message.Type{Domain: "orchestrator", Category: "event", Version: "v1"}

// Schema implements message.Payload.
func (e Event) Schema() message.Type {
	return EventType
}

// Validate implements message.Payload.
func (e Event) Validate() error {
	return nil
}

// translateSchedulerEvent maps one scheduler.Event onto the coarser
// orchestrator event vocabulary the external interface promises.
func translateSchedulerEvent(blueprintID string, se scheduler.Event) (Event, bool) {
	at := se.At
	if at.IsZero() {
		at = time.Now()
	}
	base := Event{BlueprintID: blueprintID, TaskID: se.TaskID, Detail: se.Detail, At: at}

	switch se.Kind {
	case scheduler.EventDispatched:
		base.Kind = EventTaskStarted
	case scheduler.EventRetried:
		base.Kind = EventTaskProgress
	case scheduler.EventApproved, scheduler.EventRejected, scheduler.EventCancelled:
		base.Kind = EventTaskCompleted
	case scheduler.EventError:
		base.Kind = EventTaskProgress
	default:
		return Event{}, false
	}
	return base, true
}
