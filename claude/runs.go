package claude

import (
	"context"
	"time"
)

// RunStatus is the outcome recorded for a launch
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunStopped   RunStatus = "stopped"
)

// RunStart describes a launch when it is registered
type RunStart struct {
	ProcessID   string
	SessionID   string
	ProjectPath string
	Transport   string
	Resumed     bool
	StartedAt   time.Time
}

// RunEnd describes how a launch ended
type RunEnd struct {
	ProcessID string
	SessionID string
	Status    RunStatus
	ExitCode  *int
	CostUSD   *float64
	Error     string
	EndedAt   time.Time
}

// RunRecorder keeps a journal of launches. Failures are logged and never
// affect the session.
type RunRecorder interface {
	RecordStart(ctx context.Context, run RunStart) error
	RecordEnd(ctx context.Context, run RunEnd) error
}
