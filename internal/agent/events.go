// internal/agent/events.go
package agent

import (
	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/action"
)

// EventKind identifies the payload carried by a ModelEvent.
type EventKind string

const (
	EventReasoning  EventKind = "reasoning"  // A fragment of the reasoning channel.
	EventAnswer     EventKind = "answer"     // A fragment of the answer channel.
	EventAction     EventKind = "action"     // The action extracted from the complete response.
	EventDiagnostic EventKind = "diagnostic" // The response held no usable action.
	EventError      EventKind = "error"      // The request failed; no further events follow.
)

// ModelEvent is one unit produced while consuming a streaming model response.
type ModelEvent struct {
	Kind EventKind
	// Text is the chunk for reasoning and answer events, the explanation for
	// diagnostic events and the error message for error events.
	Text   string
	Action action.Action // Set for EventAction only.
	Err    error         // Set for EventError only; wraps ErrTransport.
}

// Observer receives everything a run produces, in order, from the goroutine
// driving the run. Implementations must not block for long.
type Observer interface {
	OnModelEvent(step int, ev ModelEvent)
	OnStep(rec schemas.StepRecord)
}

// NopObserver ignores all notifications.
type NopObserver struct{}

func (NopObserver) OnModelEvent(int, ModelEvent) {}
func (NopObserver) OnStep(schemas.StepRecord)    {}
