package sdk

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ParseMessage parses one stdout record into a typed Message. Unknown types
// come back as RawMessage so nothing the CLI prints is lost.
func ParseMessage(data []byte) (Message, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, &MessageParseError{Message: "empty message data", Data: data}
	}

	var base struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &base); err != nil {
		return nil, &MessageParseError{Message: "failed to parse message type", Data: data, Cause: err}
	}

	if base.Type == "" {
		return nil, &MessageParseError{Message: "message missing 'type' field", Data: data}
	}

	raw := json.RawMessage(append([]byte(nil), data...))

	switch MessageType(base.Type) {
	case MessageTypeUser:
		var msg UserMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, &MessageParseError{Message: "failed to parse user message", Data: data, Cause: err}
		}
		msg.Type = MessageTypeUser
		msg.raw = raw
		return msg, nil

	case MessageTypeAssistant:
		return parseAssistantMessage(data, raw)

	case MessageTypeSystem:
		var msg SystemMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, &MessageParseError{Message: "failed to parse system message", Data: data, Cause: err}
		}
		_ = json.Unmarshal(data, &msg.Data)
		msg.Type = MessageTypeSystem
		msg.raw = raw
		return msg, nil

	case MessageTypeResult:
		var msg ResultMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, &MessageParseError{Message: "failed to parse result message", Data: data, Cause: err}
		}
		msg.Type = MessageTypeResult
		msg.raw = raw
		return msg, nil

	case MessageTypeStreamEvent:
		var msg StreamEvent
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, &MessageParseError{Message: "failed to parse stream event", Data: data, Cause: err}
		}
		msg.Type = MessageTypeStreamEvent
		msg.raw = raw
		return msg, nil

	default:
		// control protocol and unknown types pass through untouched
		return RawMessage{Type: MessageType(base.Type), raw: raw}, nil
	}
}

func parseAssistantMessage(data []byte, raw json.RawMessage) (Message, error) {
	var wire struct {
		UUID            string  `json:"uuid,omitempty"`
		SessionID       string  `json:"session_id,omitempty"`
		ParentToolUseID *string `json:"parent_tool_use_id,omitempty"`
		Message         struct {
			Role    string `json:"role"`
			Model   string `json:"model"`
			Content []struct {
				Type      string         `json:"type"`
				Text      string         `json:"text,omitempty"`
				Thinking  string         `json:"thinking,omitempty"`
				Signature string         `json:"signature,omitempty"`
				ID        string         `json:"id,omitempty"`
				Name      string         `json:"name,omitempty"`
				Input     map[string]any `json:"input,omitempty"`
				ToolUseID string         `json:"tool_use_id,omitempty"`
				Content   any            `json:"content,omitempty"`
				IsError   bool           `json:"is_error,omitempty"`
			} `json:"content"`
		} `json:"message"`
		Error string `json:"error,omitempty"`
	}

	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, &MessageParseError{Message: "failed to parse assistant message", Data: data, Cause: err}
	}

	msg := AssistantMessage{
		Type:            MessageTypeAssistant,
		UUID:            wire.UUID,
		SessionID:       wire.SessionID,
		ParentToolUseID: wire.ParentToolUseID,
		Error:           wire.Error,
		raw:             raw,
	}
	msg.Message.Role = wire.Message.Role
	msg.Message.Model = wire.Message.Model

	for _, block := range wire.Message.Content {
		switch block.Type {
		case "text":
			msg.Message.Content = append(msg.Message.Content, TextBlock{Type: "text", Text: block.Text})
		case "thinking":
			msg.Message.Content = append(msg.Message.Content, ThinkingBlock{
				Type:      "thinking",
				Thinking:  block.Thinking,
				Signature: block.Signature,
			})
		case "tool_use":
			msg.Message.Content = append(msg.Message.Content, ToolUseBlock{
				Type:  "tool_use",
				ID:    block.ID,
				Name:  block.Name,
				Input: block.Input,
			})
		case "tool_result":
			msg.Message.Content = append(msg.Message.Content, ToolResultBlock{
				Type:      "tool_result",
				ToolUseID: block.ToolUseID,
				Content:   block.Content,
				IsError:   block.IsError,
			})
		}
	}

	return msg, nil
}

// --- Content Helpers ---

// GetTextContent joins all text blocks of an AssistantMessage with newlines
func GetTextContent(msg AssistantMessage) string {
	var parts []string
	for _, block := range msg.Message.Content {
		if tb, ok := block.(TextBlock); ok {
			parts = append(parts, tb.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// GetToolUses extracts all tool use blocks from an AssistantMessage
func GetToolUses(msg AssistantMessage) []ToolUseBlock {
	var result []ToolUseBlock
	for _, block := range msg.Message.Content {
		if tb, ok := block.(ToolUseBlock); ok {
			result = append(result, tb)
		}
	}
	return result
}

// TextDelta returns the text carried by a content_block_delta stream event.
// ok is false for every other kind of partial update.
func TextDelta(ev StreamEvent) (text string, ok bool) {
	if t, _ := ev.Event["type"].(string); t != "content_block_delta" {
		return "", false
	}
	delta, _ := ev.Event["delta"].(map[string]any)
	if delta == nil {
		return "", false
	}
	if t, _ := delta["type"].(string); t != "text_delta" {
		return "", false
	}
	text, ok = delta["text"].(string)
	return text, ok
}

// FormatCost formats the cost in USD
func FormatCost(cost *float64) string {
	if cost == nil {
		return "N/A"
	}
	return fmt.Sprintf("$%.4f", *cost)
}
