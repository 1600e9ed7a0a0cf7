package claude

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/damien-schneider/claude-code-desktop-sub001/claude/sdk"
)

// InstallHint is shown whenever the CLI cannot be found.
const InstallHint = "npm install -g @anthropic-ai/claude-code"

// Error codes carried by error events
const (
	ErrorCodeExecutableNotFound  = "EXECUTABLE_NOT_FOUND"
	ErrorCodeSessionFileNotFound = "SESSION_FILE_NOT_FOUND"
	ErrorCodeSpawnFailed         = "SPAWN_FAILED"
	ErrorCodeTransport           = "TRANSPORT_ERROR"
)

var (
	ErrExecutableNotFound  = errors.New("claude executable not found")
	ErrSessionFileNotFound = errors.New("session transcript not found")
	ErrProcessNotFound     = errors.New("process not found")
	ErrProcessInactive     = errors.New("process is not active")
	ErrDuplicateProcess    = errors.New("process id already registered")
	ErrInvalidRequest      = errors.New("invalid request")
	ErrShutdown            = errors.New("orchestrator is shut down")
	ErrNotSupported        = errors.New("not supported by this transport")
)

// ExecutableNotFoundError lists every location that was probed.
type ExecutableNotFoundError struct {
	Name        string
	Searched    []string
	InstallHint string
}

func (e *ExecutableNotFoundError) Error() string {
	return fmt.Sprintf("%s executable not found (searched %d locations); install it with: %s",
		e.Name, len(e.Searched), e.InstallHint)
}

func (e *ExecutableNotFoundError) Is(target error) bool {
	return target == ErrExecutableNotFound
}

// SessionFileNotFoundError is returned by Resume when the transcript is missing.
type SessionFileNotFoundError struct {
	SessionID   string
	ProjectPath string
	Path        string
}

func (e *SessionFileNotFoundError) Error() string {
	return fmt.Sprintf("session %s has no transcript at %s", e.SessionID, e.Path)
}

func (e *SessionFileNotFoundError) Is(target error) bool {
	return target == ErrSessionFileNotFound
}

// exitCodeOne matches the CLI exit message for status 1 but not 10, 11, ...
var exitCodeOne = regexp.MustCompile(`exited with code 1\b`)

// isBenignExitAfterResult reports the known CLI quirk of exiting with status 1
// after it already delivered a result. Only that exact situation qualifies:
// other codes, or a code-1 exit before any result, are real failures.
func isBenignExitAfterResult(err error, receivedResult bool) bool {
	if err == nil || !receivedResult {
		return false
	}
	var exitErr *sdk.ProcessExitError
	if errors.As(err, &exitErr) {
		return exitErr.Signal == "" && exitErr.Code == 1
	}
	// Errors from other layers only carry the text.
	return exitCodeOne.MatchString(strings.ToLower(err.Error()))
}
