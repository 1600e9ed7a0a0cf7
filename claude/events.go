package claude

import (
	"encoding/json"
	"time"

	"github.com/damien-schneider/claude-code-desktop-sub001/claude/sdk"
)

// EventType is the discriminator of a normalized event
type EventType string

const (
	EventSystem    EventType = "system"
	EventAssistant EventType = "assistant"
	EventUser      EventType = "user"
	EventResult    EventType = "result"
	EventChunk     EventType = "chunk"
	EventError     EventType = "error"
	EventComplete  EventType = "complete"
)

// EnvelopeName is the event name UI bridges deliver events under.
const EnvelopeName = "message"

// Event is one normalized item from a session's output. Events for one
// process are published in the order the CLI produced them.
type Event struct {
	Type      EventType `json:"type"`
	Subtype   string    `json:"subtype,omitempty"`
	ProcessID string    `json:"processId"`
	SessionID string    `json:"sessionId,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	// Text is the chunk text, the assistant text, the result text or the error message
	Text string `json:"text,omitempty"`

	// Payload is the CLI line the event was built from, untouched
	Payload json.RawMessage `json:"payload,omitempty"`

	// result
	IsError    bool           `json:"isError,omitempty"`
	CostUSD    *float64       `json:"costUsd,omitempty"`
	Usage      map[string]any `json:"usage,omitempty"`
	DurationMs int            `json:"durationMs,omitempty"`
	NumTurns   int            `json:"numTurns,omitempty"`

	// complete
	Code    *int   `json:"code,omitempty"`
	Warning string `json:"warning,omitempty"`

	// error
	ErrorCode string `json:"errorCode,omitempty"`
	Path      string `json:"path,omitempty"`
}

// IsInit reports the session initialization notice
func (e Event) IsInit() bool {
	return e.Type == EventSystem && e.Subtype == "init"
}

// IsTerminal reports whether the event ends the process stream
func (e Event) IsTerminal() bool {
	return e.Type == EventComplete || e.Type == EventError
}

// ExitCode returns the complete status, or -1 for any other event
func (e Event) ExitCode() int {
	if e.Code == nil {
		return -1
	}
	return *e.Code
}

// Envelope is the shape delivered to UI bridges
type Envelope struct {
	Event string `json:"event"`
	Data  Event  `json:"data"`
}

// Envelope wraps the event for delivery
func (e Event) Envelope() Envelope {
	return Envelope{Event: EnvelopeName, Data: e}
}

func newEvent(t EventType, processID, sessionID string) Event {
	return Event{
		Type:      t,
		ProcessID: processID,
		SessionID: sessionID,
		Timestamp: time.Now().UTC(),
	}
}

// ChunkEvent builds a text chunk event
func ChunkEvent(processID, sessionID, text string) Event {
	ev := newEvent(EventChunk, processID, sessionID)
	ev.Text = text
	return ev
}

// CompleteEvent builds the terminal event of a stream that ended on its own
func CompleteEvent(processID, sessionID string, code int, warning string) Event {
	ev := newEvent(EventComplete, processID, sessionID)
	ev.Code = &code
	ev.Warning = warning
	return ev
}

// ErrorEvent builds an error event
func ErrorEvent(processID, sessionID, code, message string) Event {
	ev := newEvent(EventError, processID, sessionID)
	ev.ErrorCode = code
	ev.Text = message
	return ev
}

// eventFromMessage converts a typed CLI message. ok is false for messages
// that have no place in the event stream (control traffic, partial updates).
func eventFromMessage(processID, sessionID string, msg sdk.Message) (ev Event, ok bool) {
	switch m := msg.(type) {
	case sdk.SystemMessage:
		ev = newEvent(EventSystem, processID, sessionID)
		ev.Subtype = m.Subtype

	case sdk.AssistantMessage:
		ev = newEvent(EventAssistant, processID, sessionID)
		ev.Text = sdk.GetTextContent(m)
		if m.Error != "" {
			ev.IsError = true
			ev.Subtype = m.Error
		}

	case sdk.UserMessage:
		ev = newEvent(EventUser, processID, sessionID)

	case sdk.ResultMessage:
		ev = newEvent(EventResult, processID, sessionID)
		ev.Subtype = m.Subtype
		ev.Text = m.Result
		ev.IsError = !m.Succeeded()
		ev.CostUSD = m.TotalCostUSD
		ev.Usage = m.Usage
		ev.DurationMs = m.DurationMs
		ev.NumTurns = m.NumTurns

	default:
		return Event{}, false
	}

	ev.Payload = msg.Raw()
	return ev, true
}
