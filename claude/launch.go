package claude

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/damien-schneider/claude-code-desktop-sub001/claude/sdk"
	"github.com/damien-schneider/claude-code-desktop-sub001/claude/sdk/transport"
	"github.com/damien-schneider/claude-code-desktop-sub001/log"
	"github.com/damien-schneider/claude-code-desktop-sub001/tracing"
)

// StartOptions configures a fresh session
type StartOptions struct {
	// SessionID pins the CLI session id; a new uuid is used when empty
	SessionID string `json:"sessionId,omitempty"`

	// ContinueLast continues the most recent conversation in the project.
	// The session id is then only known once the CLI reports it.
	ContinueLast bool `json:"continueLast,omitempty"`

	PermissionMode string `json:"permissionMode,omitempty"`
	InitialMessage string `json:"initialMessage,omitempty"`

	// Transport overrides the orchestrator default
	Transport string `json:"transport,omitempty"`
}

// ResumeOptions configures a resumed session
type ResumeOptions struct {
	PermissionMode string `json:"permissionMode,omitempty"`
	ForkSession    bool   `json:"forkSession,omitempty"`
	Transport      string `json:"transport,omitempty"`
}

// LaunchResult identifies a launched session
type LaunchResult struct {
	ProcessID string `json:"processId"`
	SessionID string `json:"sessionId"`
	Resumed   bool   `json:"resumed,omitempty"`
}

// launchRequest is what Start and Resume have in common
type launchRequest struct {
	projectPath    string
	sessionID      string
	resume         string
	forkSession    bool
	continueLast   bool
	permissionMode string
	initialMessage string
	transport      string
}

// Start launches a new session in projectPath. The process is registered
// before Start returns, so SendMessage can be called right away.
func (o *Orchestrator) Start(ctx context.Context, projectPath string, opts StartOptions) (*LaunchResult, error) {
	sessionID := opts.SessionID
	if sessionID == "" && !opts.ContinueLast {
		sessionID = uuid.NewString()
	}
	return o.launch(ctx, launchRequest{
		projectPath:    projectPath,
		sessionID:      sessionID,
		continueLast:   opts.ContinueLast,
		permissionMode: opts.PermissionMode,
		initialMessage: opts.InitialMessage,
		transport:      opts.Transport,
	})
}

// Resume reopens the session whose transcript exists in projectPath. A
// missing transcript publishes an error event and launches nothing.
func (o *Orchestrator) Resume(ctx context.Context, projectPath, sessionID string, opts ResumeOptions) (*LaunchResult, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: sessionId is required", ErrInvalidRequest)
	}
	return o.launch(ctx, launchRequest{
		projectPath:    projectPath,
		sessionID:      sessionID,
		resume:         sessionID,
		forkSession:    opts.ForkSession,
		permissionMode: opts.PermissionMode,
		transport:      opts.Transport,
	})
}

func (r launchRequest) validate() error {
	if r.projectPath == "" {
		return fmt.Errorf("%w: projectPath is required", ErrInvalidRequest)
	}
	if !filepath.IsAbs(r.projectPath) {
		return fmt.Errorf("%w: projectPath must be absolute", ErrInvalidRequest)
	}
	if !sdk.PermissionMode(r.permissionMode).Valid() {
		return fmt.Errorf("%w: unknown permission mode %q", ErrInvalidRequest, r.permissionMode)
	}
	switch r.transport {
	case "", TransportSDK, TransportRaw:
	default:
		return fmt.Errorf("%w: unknown transport %q", ErrInvalidRequest, r.transport)
	}
	return nil
}

func (o *Orchestrator) launch(ctx context.Context, req launchRequest) (result *LaunchResult, err error) {
	resumed := req.resume != ""
	ctx, span := o.tracer.Start(ctx, tracing.SpanLaunch, trace.WithAttributes(
		attribute.String(tracing.AttrProjectPath, req.projectPath),
		attribute.Bool(tracing.AttrResumed, resumed),
		attribute.String(tracing.AttrPermissionMode, req.permissionMode),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if o.isClosed() {
		return nil, ErrShutdown
	}
	if err := req.validate(); err != nil {
		return nil, err
	}
	if req.transport == "" {
		req.transport = o.opts.Transport
	}

	processID := newProcessID()
	span.SetAttributes(
		attribute.String(tracing.AttrProcessID, processID),
		attribute.String(tracing.AttrTransport, req.transport),
	)
	logger := log.Process(processID, req.sessionID)

	if resumed {
		path := o.transcripts(req.projectPath, req.resume)
		exists := o.fs.Exists(path)
		span.AddEvent(tracing.EventTranscriptChecked, trace.WithAttributes(
			attribute.String("path", path), attribute.Bool("exists", exists)))
		if !exists {
			notFound := &SessionFileNotFoundError{
				SessionID:   req.resume,
				ProjectPath: req.projectPath,
				Path:        path,
			}
			logger.Warn().Str("path", path).Msg("cannot resume, transcript missing")
			span.SetAttributes(attribute.String(tracing.AttrErrorCode, ErrorCodeSessionFileNotFound))
			ev := ErrorEvent(processID, req.resume, ErrorCodeSessionFileNotFound, notFound.Error())
			ev.Path = path
			o.events.Publish(ev)
			return nil, notFound
		}
	}

	cliPath, err := o.locator.Locate(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("claude executable not found")
		span.SetAttributes(attribute.String(tracing.AttrErrorCode, ErrorCodeExecutableNotFound))
		o.events.Publish(ErrorEvent(processID, req.sessionID, ErrorCodeExecutableNotFound, err.Error()))
		return nil, err
	}
	span.AddEvent(tracing.EventExecutableLocated, trace.WithAttributes(
		attribute.String(tracing.AttrExecutablePath, cliPath)))

	env := o.childEnv()
	logger.Debug().Strs("env", RedactEnv(env)).Msg("child environment")

	// The session outlives the request that launched it.
	entryCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	handle, err := o.spawn(entryCtx, SpawnRequest{
		ProcessID:      processID,
		ProjectPath:    req.projectPath,
		CliPath:        cliPath,
		Env:            env,
		Transport:      req.transport,
		SessionID:      sessionFlag(req),
		Resume:         req.resume,
		ForkSession:    req.forkSession,
		ContinueLast:   req.continueLast,
		PermissionMode: req.permissionMode,
		GracePeriod:    o.opts.StopGracePeriod,
	})
	if err != nil {
		cancel()
		logger.Error().Err(err).Str("cli", cliPath).Msg("failed to spawn claude")
		span.SetAttributes(attribute.String(tracing.AttrErrorCode, ErrorCodeSpawnFailed))
		o.events.Publish(ErrorEvent(processID, req.sessionID, ErrorCodeSpawnFailed, err.Error()))
		return nil, fmt.Errorf("spawn claude: %w", err)
	}
	span.AddEvent(tracing.EventProcessSpawned)

	entry := NewProcessEntry(entryCtx, cancel, processID, req.projectPath, req.sessionID, handle)
	entry.Transport = req.transport
	entry.Resumed = resumed
	if err := o.registry.Register(entry); err != nil {
		cancel()
		_ = handle.close()
		return nil, err
	}
	span.AddEvent(tracing.EventProcessRegistered)

	o.recordStart(entry)

	o.drains.Add(1)
	go func() {
		defer o.drains.Done()
		o.drain(entry)
	}()

	logger.Info().
		Str("project", req.projectPath).
		Str("transport", req.transport).
		Bool("resumed", resumed).
		Bool("continue", req.continueLast).
		Msg("session launched")

	if strings.TrimSpace(req.initialMessage) != "" {
		if err := handle.Write(req.initialMessage); err != nil {
			logger.Error().Err(err).Msg("failed to write initial message, stopping session")
			o.Stop(processID)
			return nil, fmt.Errorf("write initial message: %w", err)
		}
	}

	return &LaunchResult{ProcessID: processID, SessionID: req.sessionID, Resumed: resumed}, nil
}

// sessionFlag is the --session-id value: only fresh, non-continued starts pin it
func sessionFlag(req launchRequest) string {
	if req.resume != "" || req.continueLast {
		return ""
	}
	return req.sessionID
}

func (o *Orchestrator) recordStart(entry *ProcessEntry) {
	if o.recorder == nil {
		return
	}
	err := o.recorder.RecordStart(context.Background(), RunStart{
		ProcessID:   entry.ID,
		SessionID:   entry.SessionID(),
		ProjectPath: entry.ProjectPath,
		Transport:   entry.Transport,
		Resumed:     entry.Resumed,
		StartedAt:   entry.CreatedAt,
	})
	if err != nil {
		logger := log.Process(entry.ID, entry.SessionID())
		logger.Warn().Err(err).Msg("failed to record run start")
	}
}

// QueryOptions configures a one-shot query
type QueryOptions struct {
	PermissionMode string `json:"permissionMode,omitempty"`
	Model          string `json:"model,omitempty"`
	// MaxTurns caps the agentic turns; zero leaves the CLI default
	MaxTurns int `json:"maxTurns,omitempty"`
	Timeout  time.Duration
}

// QueryResult is the outcome of a one-shot query
type QueryResult struct {
	SessionID  string   `json:"sessionId"`
	Text       string   `json:"text"`
	IsError    bool     `json:"isError"`
	CostUSD    *float64 `json:"costUsd,omitempty"`
	DurationMs int      `json:"durationMs"`
	NumTurns   int      `json:"numTurns"`
}

// QueryOnce runs a single non-interactive prompt and returns the final
// result. It is not registered and publishes no events.
func (o *Orchestrator) QueryOnce(ctx context.Context, projectPath, prompt string, opts QueryOptions) (*QueryResult, error) {
	ctx, span := o.tracer.Start(ctx, tracing.SpanQueryOnce, trace.WithAttributes(
		attribute.String(tracing.AttrProjectPath, projectPath)))
	defer span.End()

	if o.isClosed() {
		return nil, ErrShutdown
	}
	if projectPath == "" || !filepath.IsAbs(projectPath) {
		return nil, fmt.Errorf("%w: projectPath must be absolute", ErrInvalidRequest)
	}
	if strings.TrimSpace(prompt) == "" {
		return nil, fmt.Errorf("%w: prompt is empty", ErrInvalidRequest)
	}
	if !sdk.PermissionMode(opts.PermissionMode).Valid() {
		return nil, fmt.Errorf("%w: unknown permission mode %q", ErrInvalidRequest, opts.PermissionMode)
	}
	if opts.MaxTurns < 0 {
		return nil, fmt.Errorf("%w: maxTurns must not be negative", ErrInvalidRequest)
	}

	cliPath, err := o.locator.Locate(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	topts := transport.Options{
		CliPath:        cliPath,
		Cwd:            projectPath,
		Env:            o.childEnv(),
		PermissionMode: opts.PermissionMode,
		Model:          opts.Model,
		CloseTimeout:   o.opts.StopGracePeriod,
	}
	if opts.MaxTurns > 0 {
		turns := strconv.Itoa(opts.MaxTurns)
		topts.ExtraArgs = map[string]*string{"max-turns": &turns}
	}

	res, err := sdk.QueryOnce(ctx, prompt, topts, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("query timed out: %w", sdk.ErrTimeout)
		}
		return nil, fmt.Errorf("query: %w", err)
	}

	log.Info().Str("sessionId", res.SessionID).Int("turns", res.NumTurns).Msg("one-shot query finished")
	return &QueryResult{
		SessionID:  res.SessionID,
		Text:       res.Result,
		IsError:    !res.Succeeded(),
		CostUSD:    res.TotalCostUSD,
		DurationMs: res.DurationMs,
		NumTurns:   res.NumTurns,
	}, nil
}
