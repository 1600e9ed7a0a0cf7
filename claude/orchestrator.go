package claude

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/damien-schneider/claude-code-desktop-sub001/claude/sdk"
	"github.com/damien-schneider/claude-code-desktop-sub001/log"
	"github.com/damien-schneider/claude-code-desktop-sub001/notifications"
	"github.com/damien-schneider/claude-code-desktop-sub001/tracing"
)

// DefaultStopGracePeriod is how long a raw process gets between SIGTERM and SIGKILL
const DefaultStopGracePeriod = 5 * time.Second

// Options configures an Orchestrator. The zero value works against the real CLI.
type Options struct {
	// Locator finds the CLI; built from CLIName and CLIPath when nil
	Locator *Locator
	CLIName string
	CLIPath string

	// Transport is "sdk" (default) or "raw"
	Transport string

	// Transcripts resolves resume files; the CLI's own layout under ClaudeHome when nil
	Transcripts TranscriptLocator
	ClaudeHome  string
	FileSystem  FileSystem

	// Env is the base environment for children; the host environment when nil
	Env  []string
	Home string

	StopGracePeriod time.Duration
	AvailabilityTTL time.Duration
	LookupTimeout   time.Duration

	Recorder RunRecorder
	Tracer   trace.Tracer

	// OnStopped is called after Stop retired a process. Stopped processes
	// publish no terminal event, so state derived from events learns about
	// the end here.
	OnStopped func(processID string)

	// Spawner replaces the CLI launcher (tests)
	Spawner Spawner
}

// Orchestrator owns every live session: the registry, the event bus and the
// executable cache. Create one with New and release it with Shutdown.
type Orchestrator struct {
	opts         Options
	registry     *Registry
	events       *notifications.Broadcaster[Event]
	locator      *Locator
	availability *cache.Cache
	transcripts  TranscriptLocator
	fs           FileSystem
	recorder     RunRecorder
	tracer       trace.Tracer
	spawn        Spawner

	drains sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// ActiveList is the listActiveSessions answer
type ActiveList struct {
	ProcessIDs []string `json:"processIds"`
	Count      int      `json:"count"`
}

// StopResult is the stopSession answer. Stop never fails.
type StopResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// New creates an orchestrator
func New(opts Options) *Orchestrator {
	if opts.Transport == "" {
		opts.Transport = TransportSDK
	}
	if opts.StopGracePeriod <= 0 {
		opts.StopGracePeriod = DefaultStopGracePeriod
	}
	if opts.Home == "" {
		opts.Home, _ = os.UserHomeDir()
	}
	if opts.ClaudeHome == "" && opts.Home != "" {
		opts.ClaudeHome = filepath.Join(opts.Home, ".claude")
	}

	locator := opts.Locator
	if locator == nil {
		locator = NewLocator(LocatorOptions{
			Name:          opts.CLIName,
			Override:      opts.CLIPath,
			Home:          opts.Home,
			LookupTimeout: opts.LookupTimeout,
		})
	}

	transcripts := opts.Transcripts
	if transcripts == nil {
		transcripts = ClaudeTranscriptPath(opts.ClaudeHome)
	}

	fsys := opts.FileSystem
	if fsys == nil {
		fsys = OSFileSystem{}
	}

	tracer := opts.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("noop")
	}

	spawn := opts.Spawner
	if spawn == nil {
		spawn = spawnCLI
	}

	return &Orchestrator{
		opts:         opts,
		registry:     NewRegistry(),
		events:       notifications.NewBroadcaster[Event](),
		locator:      locator,
		availability: newAvailabilityCache(opts.AvailabilityTTL),
		transcripts:  transcripts,
		fs:           fsys,
		recorder:     opts.Recorder,
		tracer:       tracer,
		spawn:        spawn,
	}
}

// Subscribe registers fn for every event. fn runs synchronously on the
// publishing goroutine, in order per process; it must not call Stop for the
// process whose event it is handling.
func (o *Orchestrator) Subscribe(fn func(Event)) func() {
	return o.events.Subscribe(fn)
}

// SubscribeChan delivers events on a buffered channel. A slow reader loses
// events once the buffer is full.
func (o *Orchestrator) SubscribeChan(buffer int) (<-chan Event, func()) {
	return o.events.SubscribeChan(buffer)
}

// Registry exposes the process registry (read-mostly)
func (o *Orchestrator) Registry() *Registry {
	return o.registry
}

// Locator exposes the executable locator
func (o *Orchestrator) Locator() *Locator {
	return o.locator
}

// ListActive returns the ids of controllable processes
func (o *Orchestrator) ListActive() ActiveList {
	ids := o.registry.ListActive()
	return ActiveList{ProcessIDs: ids, Count: len(ids)}
}

// PermissionModes lists the modes a session can start with
func (o *Orchestrator) PermissionModes() []string {
	modes := sdk.AllPermissionModes()
	out := make([]string, len(modes))
	for i, m := range modes {
		out[i] = string(m)
	}
	return out
}

func (o *Orchestrator) activeEntry(processID string) (*ProcessEntry, error) {
	entry, ok := o.registry.Lookup(processID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProcessNotFound, processID)
	}
	if !entry.IsActive() {
		return nil, fmt.Errorf("%w: %s", ErrProcessInactive, processID)
	}
	return entry, nil
}

// SendMessage writes a follow-up message to a live session. projectPath is
// optional; a mismatch with the launch project is logged and ignored.
func (o *Orchestrator) SendMessage(processID, message, projectPath string) error {
	entry, err := o.activeEntry(processID)
	if err != nil {
		return err
	}
	logger := log.Process(entry.ID, entry.SessionID())

	if projectPath != "" && filepath.Clean(projectPath) != filepath.Clean(entry.ProjectPath) {
		logger.Warn().
			Str("projectPath", projectPath).
			Str("launchProject", entry.ProjectPath).
			Msg("sendMessage project differs from launch project, ignoring it")
	}
	if strings.TrimSpace(message) == "" {
		return fmt.Errorf("%w: message is empty", ErrInvalidRequest)
	}

	if err := entry.Handle().Write(message); err != nil {
		logger.Error().Err(err).Msg("failed to write message")
		return fmt.Errorf("send message to %s: %w", processID, err)
	}
	logger.Debug().Int("length", len(message)).Msg("message sent")
	return nil
}

// Interrupt stops the current turn of a live session. SDK sessions stay
// open for the next message; raw sessions finish with a complete event.
func (o *Orchestrator) Interrupt(processID string) error {
	entry, err := o.activeEntry(processID)
	if err != nil {
		return err
	}
	if err := entry.Handle().Interrupt(); err != nil {
		return fmt.Errorf("interrupt %s: %w", processID, err)
	}
	logger := log.Process(entry.ID, entry.SessionID())
	logger.Info().Msg("interrupt sent")
	return nil
}

// SetPermissionMode changes how a live SDK session asks for tool permissions.
// Raw sessions answer ErrNotSupported.
func (o *Orchestrator) SetPermissionMode(processID, mode string) error {
	if mode == "" || !sdk.PermissionMode(mode).Valid() {
		return fmt.Errorf("%w: unknown permission mode %q", ErrInvalidRequest, mode)
	}
	entry, err := o.activeEntry(processID)
	if err != nil {
		return err
	}
	if err := entry.Handle().SetPermissionMode(mode); err != nil {
		return fmt.Errorf("set permission mode of %s: %w", processID, err)
	}
	logger := log.Process(entry.ID, entry.SessionID())
	logger.Info().Str("mode", mode).Msg("permission mode changed")
	return nil
}

// Stop ends a session. It is idempotent: unknown or already stopped
// processes report success with an explanatory message. Once Stop returns no
// further event is published for the process.
func (o *Orchestrator) Stop(processID string) StopResult {
	entry, ok := o.registry.Lookup(processID)
	if !ok {
		return StopResult{Success: true, Message: "process not found or already stopped"}
	}
	if !o.registry.MarkInactive(processID) {
		return StopResult{Success: true, Message: "process already stopping"}
	}

	_, span := o.tracer.Start(entry.ctx, tracing.SpanStop,
		trace.WithAttributes(attribute.String(tracing.AttrProcessID, processID)))
	defer span.End()

	logger := log.Process(entry.ID, entry.SessionID())
	logger.Info().Msg("stopping session")

	o.terminate(entry)
	o.registry.Remove(processID)
	o.recordEnd(entry, RunEnd{Status: RunStopped})
	if o.opts.OnStopped != nil {
		o.opts.OnStopped(processID)
	}

	logger.Info().Msg("session stopped")
	return StopResult{Success: true, Message: "stopped"}
}

// terminate runs after the entry is inactive: cancel, interrupt, then make
// sure the process is gone.
func (o *Orchestrator) terminate(entry *ProcessEntry) {
	entry.cancel()

	h := entry.Handle()
	logger := log.Process(entry.ID, entry.SessionID())
	if err := h.Interrupt(); err != nil {
		logger.Debug().Err(err).Msg("interrupt during stop failed")
	}

	if h.transportName() == TransportRaw {
		if err := h.Kill(syscall.SIGTERM); err != nil {
			logger.Debug().Err(err).Msg("SIGTERM failed")
		}
		select {
		case <-h.exited():
		case <-time.After(o.opts.StopGracePeriod):
			logger.Warn().Dur("grace", o.opts.StopGracePeriod).Msg("process ignored SIGTERM, sending SIGKILL")
			if err := h.Kill(syscall.SIGKILL); err != nil {
				logger.Warn().Err(err).Msg("SIGKILL failed")
			}
		}
	}

	if err := h.close(); err != nil {
		logger.Debug().Err(err).Msg("close handle")
	}
}

// Shutdown stops every live session, waits for their stream loops and closes
// the event bus. Launches fail with ErrShutdown afterwards.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	o.mu.Unlock()

	entries := o.registry.snapshot()
	log.Info().Int("sessions", len(entries)).Msg("shutting down orchestrator")

	var wg sync.WaitGroup
	for _, e := range entries {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			o.Stop(id)
		}(e.ID)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		o.drains.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		o.events.Shutdown()
		return fmt.Errorf("shutdown: %w", ctx.Err())
	}

	o.events.Shutdown()
	return nil
}

func (o *Orchestrator) isClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

// Transcripts lists resumable session ids for a project, newest first
func (o *Orchestrator) Transcripts(projectPath string) ([]string, error) {
	if projectPath == "" {
		return nil, fmt.Errorf("%w: projectPath is required", ErrInvalidRequest)
	}
	dir := filepath.Dir(o.transcripts(projectPath, "x"))
	return listTranscripts(o.fs, dir)
}

// childEnv is the environment every launched CLI gets
func (o *Orchestrator) childEnv() []string {
	if o.opts.Env == nil {
		return HostEnv()
	}
	return BuildEnv(o.opts.Env, o.opts.Home)
}

// WatchInstallDirs re-probes availability whenever the CLI is installed or removed
func (o *Orchestrator) WatchInstallDirs(ctx context.Context) error {
	return o.locator.WatchInstallDirs(ctx, func() {
		o.availability.Delete(availabilityKey)
	})
}

func (o *Orchestrator) recordEnd(entry *ProcessEntry, end RunEnd) {
	if o.recorder == nil {
		return
	}
	end.ProcessID = entry.ID
	end.SessionID = entry.SessionID()
	if end.EndedAt.IsZero() {
		end.EndedAt = time.Now()
	}
	if err := o.recorder.RecordEnd(context.Background(), end); err != nil {
		logger := log.Process(entry.ID, end.SessionID)
		logger.Warn().Err(err).Msg("failed to record run end")
	}
}

// newProcessID returns proc_<unix millis>_<8 hex chars>
func newProcessID() string {
	return fmt.Sprintf("proc_%d_%s", time.Now().UnixMilli(), strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}
