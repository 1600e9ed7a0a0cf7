package transport

import "time"

// Options configures a subprocess transport.
type Options struct {
	// Paths
	CliPath string
	Cwd     string

	// Env is the complete child environment. Nil inherits the host environment.
	Env []string

	// Permission settings
	PermissionMode string

	// Session management
	SessionID            string
	Resume               string
	ForkSession          bool
	ContinueConversation bool

	// Model configuration
	Model string

	// Prompt switches the transport to one-shot --print mode.
	Prompt string

	// IncludePartialMessages enables stream_event messages with text deltas
	IncludePartialMessages bool

	// ExtraArgs are passed as --key value (or bare --key when the value is nil)
	ExtraArgs map[string]*string

	MaxBufferSize int

	// CloseTimeout bounds how long Close waits after SIGINT before SIGKILL.
	CloseTimeout time.Duration

	// Stderr receives every non-empty stderr line
	Stderr func(string)
}
