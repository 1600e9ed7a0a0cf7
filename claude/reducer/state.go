package reducer

import (
	"time"
)

// Status is where a session is in its current turn
type Status string

const (
	StatusIdle      Status = "idle"
	StatusThinking  Status = "thinking"
	StatusStreaming Status = "streaming"
	StatusSuccess   Status = "success"
	StatusPartial   Status = "partial"
	StatusError     Status = "error"
)

// Finished reports the end states of a turn
func (s Status) Finished() bool {
	return s == StatusSuccess || s == StatusPartial || s == StatusError
}

// Role of a transcript message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one finalized entry of the visible transcript
type Message struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	IsError   bool      `json:"isError,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// State is the UI state of one process
type State struct {
	ProcessID string `json:"processId"`
	SessionID string `json:"sessionId,omitempty"`
	Status    Status `json:"status"`

	// Buffer holds streamed text not yet finalized into Messages
	Buffer   string    `json:"buffer,omitempty"`
	Messages []Message `json:"messages"`
	Error    string    `json:"error,omitempty"`

	CostUSD  *float64       `json:"costUsd,omitempty"`
	Usage    map[string]any `json:"usage,omitempty"`
	ExitCode *int           `json:"exitCode,omitempty"`

	UpdatedAt time.Time `json:"updatedAt"`
}

// IsThinking is true between init and the first content
func (s State) IsThinking() bool {
	return s.Status == StatusThinking
}

// clone copies the slices and maps so callers can keep a snapshot
func (s State) clone() State {
	out := s
	out.Messages = append([]Message(nil), s.Messages...)
	if s.Usage != nil {
		out.Usage = make(map[string]any, len(s.Usage))
		for k, v := range s.Usage {
			out.Usage[k] = v
		}
	}
	if s.CostUSD != nil {
		cost := *s.CostUSD
		out.CostUSD = &cost
	}
	if s.ExitCode != nil {
		code := *s.ExitCode
		out.ExitCode = &code
	}
	return out
}

// ActiveSessionView is the sidebar row of a running session. It is derived
// state; whether the process is alive is the registry's call.
type ActiveSessionView struct {
	ProcessID   string    `json:"processId"`
	SessionID   string    `json:"sessionId,omitempty"`
	ProjectPath string    `json:"projectPath,omitempty"`
	ProjectName string    `json:"projectName,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	IsStreaming bool      `json:"isStreaming"`
	PreviewText string    `json:"previewText,omitempty"`
}
