package sdk

import "encoding/json"

// PermissionMode controls how tools are authorized
type PermissionMode string

const (
	PermissionModeDefault           PermissionMode = "default"           // CLI prompts for dangerous tools
	PermissionModeAcceptEdits       PermissionMode = "acceptEdits"       // Auto-accept file edits
	PermissionModePlan              PermissionMode = "plan"              // Planning mode
	PermissionModeBypassPermissions PermissionMode = "bypassPermissions" // Allow all tools
)

// AllPermissionModes lists the modes the CLI accepts, in display order.
func AllPermissionModes() []PermissionMode {
	return []PermissionMode{
		PermissionModeDefault,
		PermissionModeAcceptEdits,
		PermissionModePlan,
		PermissionModeBypassPermissions,
	}
}

// Valid reports whether m is a mode the CLI accepts. The empty mode is valid
// and means "let the CLI decide".
func (m PermissionMode) Valid() bool {
	if m == "" {
		return true
	}
	for _, known := range AllPermissionModes() {
		if m == known {
			return true
		}
	}
	return false
}

// --- Content Blocks ---

// ContentBlock is the interface for all content blocks
type ContentBlock interface {
	BlockType() string
}

// TextBlock represents text content
type TextBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (TextBlock) BlockType() string { return "text" }

// ThinkingBlock represents Claude's reasoning
type ThinkingBlock struct {
	Type      string `json:"type"`
	Thinking  string `json:"thinking"`
	Signature string `json:"signature"`
}

func (ThinkingBlock) BlockType() string { return "thinking" }

// ToolUseBlock represents a tool invocation
type ToolUseBlock struct {
	Type  string         `json:"type"`
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

func (ToolUseBlock) BlockType() string { return "tool_use" }

// ToolResultBlock represents the result of a tool execution
type ToolResultBlock struct {
	Type      string `json:"type"`
	ToolUseID string `json:"tool_use_id"`
	Content   any    `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`
}

func (ToolResultBlock) BlockType() string { return "tool_result" }

// --- Message Types ---

// MessageType identifies the type of message
type MessageType string

const (
	MessageTypeUser            MessageType = "user"
	MessageTypeAssistant       MessageType = "assistant"
	MessageTypeSystem          MessageType = "system"
	MessageTypeResult          MessageType = "result"
	MessageTypeStreamEvent     MessageType = "stream_event"
	MessageTypeControlRequest  MessageType = "control_request"
	MessageTypeControlResponse MessageType = "control_response"
)

// Message is the interface for all parsed CLI messages. Raw returns the
// exact line the CLI printed so consumers can forward it untouched.
type Message interface {
	GetType() MessageType
	GetSessionID() string
	Raw() json.RawMessage
}

// UserMessage is a user turn echoed by the CLI (including tool results)
type UserMessage struct {
	Type            MessageType `json:"type"`
	UUID            string      `json:"uuid,omitempty"`
	SessionID       string      `json:"session_id,omitempty"`
	ParentToolUseID *string     `json:"parent_tool_use_id,omitempty"`
	Message         struct {
		Role    string `json:"role"`
		Content any    `json:"content"` // string or []ContentBlock
	} `json:"message"`

	raw json.RawMessage
}

func (m UserMessage) GetType() MessageType { return MessageTypeUser }
func (m UserMessage) GetSessionID() string { return m.SessionID }
func (m UserMessage) Raw() json.RawMessage { return m.raw }

// AssistantMessage is a complete assistant turn
type AssistantMessage struct {
	Type            MessageType `json:"type"`
	UUID            string      `json:"uuid,omitempty"`
	SessionID       string      `json:"session_id,omitempty"`
	ParentToolUseID *string     `json:"parent_tool_use_id,omitempty"`
	Message         struct {
		Role    string         `json:"role"`
		Content []ContentBlock `json:"content"`
		Model   string         `json:"model"`
	} `json:"message"`
	Error string `json:"error,omitempty"` // authentication_failed, billing_error, rate_limit, ...

	raw json.RawMessage
}

func (m AssistantMessage) GetType() MessageType { return MessageTypeAssistant }
func (m AssistantMessage) GetSessionID() string { return m.SessionID }
func (m AssistantMessage) Raw() json.RawMessage { return m.raw }

// SystemMessage carries CLI lifecycle notices. The first one a session prints
// has Subtype "init" and reports the session id.
type SystemMessage struct {
	Type           MessageType    `json:"type"`
	UUID           string         `json:"uuid,omitempty"`
	Subtype        string         `json:"subtype"`
	SessionID      string         `json:"session_id,omitempty"`
	Cwd            string         `json:"cwd,omitempty"`
	Model          string         `json:"model,omitempty"`
	PermissionMode string         `json:"permissionMode,omitempty"`
	Tools          []string       `json:"tools,omitempty"`
	Data           map[string]any `json:"-"`

	raw json.RawMessage
}

func (m SystemMessage) GetType() MessageType { return MessageTypeSystem }
func (m SystemMessage) GetSessionID() string { return m.SessionID }
func (m SystemMessage) Raw() json.RawMessage { return m.raw }

// IsInit reports whether this is the session initialization notice.
func (m SystemMessage) IsInit() bool { return m.Subtype == "init" }

// ResultMessage is the end of a turn, with cost and usage
type ResultMessage struct {
	Type          MessageType    `json:"type"`
	UUID          string         `json:"uuid,omitempty"`
	Subtype       string         `json:"subtype"`
	DurationMs    int            `json:"duration_ms"`
	DurationAPIMs int            `json:"duration_api_ms"`
	IsError       bool           `json:"is_error"`
	NumTurns      int            `json:"num_turns"`
	SessionID     string         `json:"session_id"`
	TotalCostUSD  *float64       `json:"total_cost_usd,omitempty"`
	Usage         map[string]any `json:"usage,omitempty"`
	Result        string         `json:"result,omitempty"`

	raw json.RawMessage
}

func (m ResultMessage) GetType() MessageType { return MessageTypeResult }
func (m ResultMessage) GetSessionID() string { return m.SessionID }
func (m ResultMessage) Raw() json.RawMessage { return m.raw }

// Succeeded reports a successful turn: not flagged as error and subtype "success".
func (m ResultMessage) Succeeded() bool {
	return !m.IsError && m.Subtype == "success"
}

// StreamEvent is a partial message update, only sent with --include-partial-messages
type StreamEvent struct {
	Type            MessageType    `json:"type"`
	UUID            string         `json:"uuid"`
	SessionID       string         `json:"session_id"`
	Event           map[string]any `json:"event"`
	ParentToolUseID *string        `json:"parent_tool_use_id,omitempty"`

	raw json.RawMessage
}

func (m StreamEvent) GetType() MessageType { return MessageTypeStreamEvent }
func (m StreamEvent) GetSessionID() string { return m.SessionID }
func (m StreamEvent) Raw() json.RawMessage { return m.raw }

// RawMessage is any JSON message whose type has no dedicated struct
type RawMessage struct {
	Type MessageType `json:"type"`

	raw json.RawMessage
}

func (m RawMessage) GetType() MessageType { return m.Type }
func (m RawMessage) GetSessionID() string { return "" }
func (m RawMessage) Raw() json.RawMessage { return m.raw }

// MarshalJSON returns the original raw JSON
func (m RawMessage) MarshalJSON() ([]byte, error) {
	return m.raw, nil
}

// --- Control Protocol Types ---

// ControlRequestSubtype identifies the type of control request
type ControlRequestSubtype string

const (
	ControlSubtypeInterrupt         ControlRequestSubtype = "interrupt"
	ControlSubtypeSetPermissionMode ControlRequestSubtype = "set_permission_mode"
	ControlSubtypeCanUseTool        ControlRequestSubtype = "can_use_tool"
)

// ControlRequest is a control request sent by the CLI
type ControlRequest struct {
	Type      string         `json:"type"` // "control_request"
	RequestID string         `json:"request_id"`
	Request   map[string]any `json:"request"`
}

// ControlResponse answers a control request in either direction
type ControlResponse struct {
	Type     string `json:"type"` // "control_response"
	Response struct {
		Subtype   string         `json:"subtype"` // "success" or "error"
		RequestID string         `json:"request_id"`
		Response  map[string]any `json:"response,omitempty"`
		Error     string         `json:"error,omitempty"`
	} `json:"response"`
}

// userMessageEnvelope is the stream-json shape the CLI reads on stdin.
type userMessageEnvelope struct {
	Type    string `json:"type"`
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	ParentToolUseID *string `json:"parent_tool_use_id"`
	SessionID       string  `json:"session_id"`
}

// EncodeUserMessage renders content as one stream-json stdin line, newline included.
func EncodeUserMessage(content, sessionID string) (string, error) {
	if sessionID == "" {
		sessionID = "default"
	}
	env := userMessageEnvelope{Type: "user", SessionID: sessionID}
	env.Message.Role = "user"
	env.Message.Content = content

	data, err := json.Marshal(env)
	if err != nil {
		return "", err
	}
	return string(data) + "\n", nil
}
