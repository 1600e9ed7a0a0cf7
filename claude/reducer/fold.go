package reducer

import (
	"fmt"

	"github.com/damien-schneider/claude-code-desktop-sub001/claude"
)

// Fold applies one event to a session state and returns the new state. It
// is pure: s is not modified.
func Fold(s State, ev claude.Event) State {
	s = s.clone()
	if s.ProcessID == "" {
		s.ProcessID = ev.ProcessID
	}
	if s.Status == "" {
		s.Status = StatusIdle
	}
	if ev.SessionID != "" {
		s.SessionID = ev.SessionID
	}
	s.UpdatedAt = ev.Timestamp

	switch ev.Type {
	case claude.EventSystem:
		if ev.IsInit() {
			s.Status = StatusThinking
			s.Buffer = ""
			s.Error = ""
			s.ExitCode = nil
		}

	case claude.EventChunk:
		s.Buffer += ev.Text
		s.Status = StatusStreaming

	case claude.EventAssistant:
		s.Status = StatusStreaming
		if ev.Text != "" {
			// The assistant message is the final form of the streamed deltas
			s.Buffer = ""
			s.Messages = append(s.Messages, Message{
				Role:      RoleAssistant,
				Text:      ev.Text,
				IsError:   ev.IsError,
				Timestamp: ev.Timestamp,
			})
		}

	case claude.EventUser:
		// tool results; nothing visible changes

	case claude.EventResult:
		s = flush(s, ev)
		if ev.CostUSD != nil {
			cost := *ev.CostUSD
			s.CostUSD = &cost
		}
		if ev.Usage != nil {
			s.Usage = ev.Usage
		}
		if ev.IsError {
			msg := ev.Text
			if msg == "" {
				msg = fmt.Sprintf("Claude reported an error (%s)", ev.Subtype)
			}
			s = fail(s, ev, msg)
		} else {
			s.Status = StatusSuccess
		}

	case claude.EventComplete:
		s = flush(s, ev)
		code := ev.ExitCode()
		s.ExitCode = &code
		switch {
		case s.Status == StatusError:
		case code != 0:
			s.Status = StatusPartial
		case !s.Status.Finished():
			s.Status = StatusSuccess
		}

	case claude.EventError:
		s = flush(s, ev)
		msg := ev.Text
		if msg == "" {
			msg = "Claude process failed"
		}
		s = fail(s, ev, msg)
	}
	return s
}

// flush turns buffered text into an assistant message, as it stands
func flush(s State, ev claude.Event) State {
	if s.Buffer == "" {
		return s
	}
	s.Messages = append(s.Messages, Message{Role: RoleAssistant, Text: s.Buffer, Timestamp: ev.Timestamp})
	s.Buffer = ""
	return s
}

func fail(s State, ev claude.Event, msg string) State {
	s.Messages = append(s.Messages, Message{Role: RoleSystem, Text: msg, IsError: true, Timestamp: ev.Timestamp})
	s.Error = msg
	s.Status = StatusError
	return s
}
