package model

import "encoding/json"

// EventType is the discriminator of an outbound stream event.
type EventType string

const (
	EventTypeTextDelta    EventType = "text_delta"
	EventTypeToolStart    EventType = "tool_start"
	EventTypeToolProgress EventType = "tool_progress"
	EventTypeDone         EventType = "done"
	EventTypeError        EventType = "error"
)

// Caller-facing error messages. Internal detail never goes on the wire.
const (
	ErrMessageQueryIncomplete  = "Query did not complete successfully"
	ErrMessageStreamProcessing = "An error occurred while processing your request"
)

// Event is an outbound stream event. The set of implementations is closed.
type Event interface {
	Type() EventType
	event()
}

// TextDeltaEvent carries a fragment of assistant text.
type TextDeltaEvent struct {
	Text string
}

// ToolStartEvent reports that the agent started a tool invocation.
type ToolStartEvent struct {
	Tool string
}

// ToolProgressEvent reports that a tool is still running.
type ToolProgressEvent struct {
	Tool    string
	Elapsed float64
}

// DoneEvent marks successful completion.
type DoneEvent struct{}

// ErrorEvent marks a failed or incomplete stream.
type ErrorEvent struct {
	Message string
}

func (TextDeltaEvent) Type() EventType    { return EventTypeTextDelta }
func (ToolStartEvent) Type() EventType    { return EventTypeToolStart }
func (ToolProgressEvent) Type() EventType { return EventTypeToolProgress }
func (DoneEvent) Type() EventType         { return EventTypeDone }
func (ErrorEvent) Type() EventType        { return EventTypeError }

func (TextDeltaEvent) event()    {}
func (ToolStartEvent) event()    {}
func (ToolProgressEvent) event() {}
func (DoneEvent) event()         {}
func (ErrorEvent) event()        {}

func (e TextDeltaEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type EventType `json:"type"`
		Text string    `json:"text"`
	}{e.Type(), e.Text})
}

func (e ToolStartEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type EventType `json:"type"`
		Tool string    `json:"tool"`
	}{e.Type(), e.Tool})
}

func (e ToolProgressEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    EventType `json:"type"`
		Tool    string    `json:"tool"`
		Elapsed float64   `json:"elapsed"`
	}{e.Type(), e.Tool, e.Elapsed})
}

func (e DoneEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type EventType `json:"type"`
	}{e.Type()})
}

func (e ErrorEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    EventType `json:"type"`
		Message string    `json:"message"`
	}{e.Type(), e.Message})
}
