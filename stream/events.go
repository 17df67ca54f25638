// Package stream carries the ordered event stream of one chat request:
// typed events, an ordered cancellable sink, and the SSE wire encoding.
package stream

import "encoding/json"

// EventType enumerates the wire event types.
type EventType string

const (
	TypeThinking      EventType = "thinking"
	TypeToolCall      EventType = "tool_call"
	TypeResponseDelta EventType = "response_delta"
	TypeError         EventType = "error"
	TypeDone          EventType = "done"
)

// Tool call statuses.
const (
	StatusInProgress = "in_progress"
	StatusSuccess    = "success"
	StatusFailed     = "failed"
)

// Event is one frame of the logical stream. Exactly one payload field is
// set, matching Type.
type Event struct {
	Type          EventType
	Thinking      *ThinkingPayload
	ToolCall      *ToolCallPayload
	ResponseDelta *ResponseDeltaPayload
	Error         *ErrorPayload
	Done          *DonePayload
}

// Terminal reports whether the event ends the logical stream.
func (e Event) Terminal() bool {
	return e.Type == TypeDone || e.Type == TypeError
}

// setRequestID stamps the correlation id onto the payload. The sink
// calls it on every emission so producers never carry the id themselves.
func (e Event) setRequestID(id string) {
	switch e.Type {
	case TypeThinking:
		e.Thinking.RequestID = id
	case TypeToolCall:
		e.ToolCall.RequestID = id
	case TypeResponseDelta:
		e.ResponseDelta.RequestID = id
	case TypeError:
		e.Error.RequestID = id
	case TypeDone:
		e.Done.RequestID = id
	}
}

// Payload returns the JSON-serializable payload for the event type.
func (e Event) Payload() any {
	switch e.Type {
	case TypeThinking:
		return e.Thinking
	case TypeToolCall:
		return e.ToolCall
	case TypeResponseDelta:
		return e.ResponseDelta
	case TypeError:
		return e.Error
	case TypeDone:
		return e.Done
	}
	return nil
}

// ThinkingPayload carries reasoning progress text.
type ThinkingPayload struct {
	RequestID string `json:"requestId"`
	Content   string `json:"content"`
}

// ToolCallPayload brackets a tool dispatch.
type ToolCallPayload struct {
	RequestID string          `json:"requestId"`
	ToolName  string          `json:"toolName"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Status    string          `json:"status"`
	Result    json.RawMessage `json:"result,omitempty"`
	ErrorKind string          `json:"errorKind,omitempty"`
}

// ResponseDeltaPayload carries one response text fragment plus the text
// accumulated so far.
type ResponseDeltaPayload struct {
	RequestID   string `json:"requestId"`
	Delta       string `json:"delta"`
	Accumulated string `json:"accumulated"`
}

// ErrorPayload is the error terminal frame.
type ErrorPayload struct {
	RequestID   string `json:"requestId"`
	ErrorKind   string `json:"errorKind"`
	Message     string `json:"message"`
	Recoverable bool   `json:"recoverable"`
}

// DonePayload is the success terminal frame.
type DonePayload struct {
	RequestID   string   `json:"requestId"`
	FinalOutput string   `json:"finalOutput"`
	ToolsCalled []string `json:"toolsCalled"`
	Success     bool     `json:"success"`
}

// Thinking builds a thinking event.
func Thinking(content string) Event {
	return Event{Type: TypeThinking, Thinking: &ThinkingPayload{Content: content}}
}

// ToolCallStarted builds the in_progress bracket of a tool dispatch.
func ToolCallStarted(name string, arguments json.RawMessage) Event {
	return Event{Type: TypeToolCall, ToolCall: &ToolCallPayload{
		ToolName:  name,
		Arguments: arguments,
		Status:    StatusInProgress,
	}}
}

// ToolCallSucceeded builds the success bracket of a tool dispatch.
func ToolCallSucceeded(name string, result json.RawMessage) Event {
	return Event{Type: TypeToolCall, ToolCall: &ToolCallPayload{
		ToolName: name,
		Status:   StatusSuccess,
		Result:   result,
	}}
}

// ToolCallFailed builds the failed bracket of a tool dispatch.
func ToolCallFailed(name, errorKind string) Event {
	return Event{Type: TypeToolCall, ToolCall: &ToolCallPayload{
		ToolName:  name,
		Status:    StatusFailed,
		ErrorKind: errorKind,
	}}
}

// ResponseDelta builds a response fragment event.
func ResponseDelta(delta, accumulated string) Event {
	return Event{Type: TypeResponseDelta, ResponseDelta: &ResponseDeltaPayload{
		Delta:       delta,
		Accumulated: accumulated,
	}}
}

// ErrorEvent builds the error terminal.
func ErrorEvent(kind, message string, recoverable bool) Event {
	return Event{Type: TypeError, Error: &ErrorPayload{
		ErrorKind:   kind,
		Message:     message,
		Recoverable: recoverable,
	}}
}

// DoneEvent builds the done terminal.
func DoneEvent(finalOutput string, toolsCalled []string, success bool) Event {
	if toolsCalled == nil {
		toolsCalled = []string{}
	}
	return Event{Type: TypeDone, Done: &DonePayload{
		FinalOutput: finalOutput,
		ToolsCalled: toolsCalled,
		Success:     success,
	}}
}
