package sdk

import (
	"errors"
	"fmt"

	"github.com/damien-schneider/claude-code-desktop-sub001/claude/sdk/transport"
)

var (
	// ErrNotConnected is returned when operations are attempted before connecting
	ErrNotConnected = transport.ErrNotConnected

	// ErrAlreadyConnected is returned when Connect is called twice
	ErrAlreadyConnected = transport.ErrAlreadyConnected

	// ErrConnectionClosed is returned when the connection has been closed
	ErrConnectionClosed = transport.ErrConnectionClosed

	// ErrTimeout is returned when a control request gets no answer in time
	ErrTimeout = errors.New("operation timed out")

	// ErrNoResult is returned by QueryOnce when the CLI exits without a result message
	ErrNoResult = errors.New("claude exited without a result")
)

// Transport failures are re-exported so callers only import this package.
type (
	CLIConnectionError = transport.CLIConnectionError
	ProcessExitError   = transport.ProcessExitError
)

// MessageParseError represents an error parsing a message
type MessageParseError struct {
	Message string
	Data    []byte
	Cause   error
}

func (e *MessageParseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("message parse error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("message parse error: %s", e.Message)
}

func (e *MessageParseError) Unwrap() error {
	return e.Cause
}

// ControlRequestError represents an error in control request handling
type ControlRequestError struct {
	RequestID string
	Subtype   string
	Message   string
	Cause     error
}

func (e *ControlRequestError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("control request error [%s/%s]: %s: %v", e.RequestID, e.Subtype, e.Message, e.Cause)
	}
	return fmt.Sprintf("control request error [%s/%s]: %s", e.RequestID, e.Subtype, e.Message)
}

func (e *ControlRequestError) Unwrap() error {
	return e.Cause
}
