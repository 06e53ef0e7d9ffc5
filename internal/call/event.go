package call

import "fmt"

// EventKind names a transport lifecycle event
type EventKind string

const (
	EventCallStarted       EventKind = "call_started"
	EventCallEnded         EventKind = "call_ended"
	EventAgentStartTalking EventKind = "agent_start_talking"
	EventAgentStopTalking  EventKind = "agent_stop_talking"
	EventError             EventKind = "error"
)

// ErrorInfo is the payload of an error event
type ErrorInfo struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

func (e ErrorInfo) String() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Event is a transport lifecycle notification. Error is only set for EventError.
type Event struct {
	Kind  EventKind
	Error *ErrorInfo
}

// Informational reports whether the event is an observability hook that
// never changes the session
func (e Event) Informational() bool {
	return e.Kind == EventAgentStartTalking || e.Kind == EventAgentStopTalking
}

// Convenience constructors used by transports and tests
func CallStarted() Event       { return Event{Kind: EventCallStarted} }
func CallEnded() Event         { return Event{Kind: EventCallEnded} }
func AgentStartTalking() Event { return Event{Kind: EventAgentStartTalking} }
func AgentStopTalking() Event  { return Event{Kind: EventAgentStopTalking} }

func TransportError(code, message string) Event {
	return Event{Kind: EventError, Error: &ErrorInfo{Code: code, Message: message}}
}
