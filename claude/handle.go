package claude

import (
	"context"
	"os"
	"time"

	"github.com/damien-schneider/claude-code-desktop-sub001/claude/sdk"
)

// Transport names
const (
	TransportSDK = "sdk"
	TransportRaw = "raw"
)

// Handle is the live side of a launched session. The set of implementations
// is closed: rawProcess for the line-oriented transport and sdkQuery for the
// control-protocol client.
type Handle interface {
	// Write sends a follow-up user message
	Write(message string) error

	// Interrupt stops the current turn. The sdk variant keeps the session
	// alive; the raw variant ends it with a complete event.
	Interrupt() error

	// SetPermissionMode switches the permission mode of a live session
	SetPermissionMode(mode string) error

	// Kill delivers sig to the CLI process
	Kill(sig os.Signal) error

	transportName() string

	// items is closed when the CLI stops producing output
	items() <-chan item

	// err explains why items closed; nil means a clean or requested exit
	err() error

	// exited is closed once the CLI process has been reaped
	exited() <-chan struct{}

	// close ends the session and releases the process
	close() error
}

// item is one unit of CLI output: a typed message or a text chunk.
type item struct {
	msg  sdk.Message
	text string
}

// SpawnRequest describes the process the launcher wants
type SpawnRequest struct {
	ProcessID      string
	ProjectPath    string
	CliPath        string
	Env            []string
	Transport      string
	SessionID      string
	Resume         string
	ForkSession    bool
	ContinueLast   bool
	PermissionMode string
	GracePeriod    time.Duration
}

// Spawner starts a CLI session. The process lives until ctx is cancelled or
// the handle is closed.
type Spawner func(ctx context.Context, req SpawnRequest) (Handle, error)

// spawnCLI is the Spawner used outside of tests.
func spawnCLI(ctx context.Context, req SpawnRequest) (Handle, error) {
	if req.Transport == TransportRaw {
		return startRawProcess(ctx, req)
	}
	return startSDKQuery(ctx, req)
}
