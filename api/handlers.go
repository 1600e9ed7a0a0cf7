package api

import (
	"context"
	"time"

	"github.com/damien-schneider/claude-code-desktop-sub001/claude"
	"github.com/damien-schneider/claude-code-desktop-sub001/claude/reducer"
	"github.com/damien-schneider/claude-code-desktop-sub001/db"
)

// Sessions is the orchestrator surface the handlers drive
type Sessions interface {
	CheckAvailability(ctx context.Context) claude.Availability
	RefreshAvailability(ctx context.Context) claude.Availability
	PermissionModes() []string

	Start(ctx context.Context, projectPath string, opts claude.StartOptions) (*claude.LaunchResult, error)
	Resume(ctx context.Context, projectPath, sessionID string, opts claude.ResumeOptions) (*claude.LaunchResult, error)
	SendMessage(processID, message, projectPath string) error
	Interrupt(processID string) error
	SetPermissionMode(processID, mode string) error
	Stop(processID string) claude.StopResult
	ListActive() claude.ActiveList

	QueryOnce(ctx context.Context, projectPath, prompt string, opts claude.QueryOptions) (*claude.QueryResult, error)
	Transcripts(projectPath string) ([]string, error)

	SubscribeChan(buffer int) (<-chan claude.Event, func())
}

// RunHistory reads the launch journal
type RunHistory interface {
	ListRuns(ctx context.Context, limit int) ([]db.RunRecord, error)
	GetRun(ctx context.Context, processID string) (*db.RunRecord, error)
}

// SessionViews exposes the folded per-session state
type SessionViews interface {
	State(processID string) (reducer.State, bool)
	Views() []reducer.ActiveSessionView
	Track(processID, projectPath string, createdAt time.Time)
}

// Backend is what the server hands to the API layer
type Backend interface {
	Sessions() Sessions
	Runs() RunHistory
	Views() SessionViews
	// ShutdownContext is cancelled when the server stops; event streams end with it
	ShutdownContext() context.Context
}

// Handlers holds references to server components
type Handlers struct {
	server Backend
}

// NewHandlers creates a new Handlers instance with server reference
func NewHandlers(srv Backend) *Handlers {
	return &Handlers{server: srv}
}
