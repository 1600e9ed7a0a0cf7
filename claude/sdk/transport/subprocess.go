package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/damien-schneider/claude-code-desktop-sub001/log"
)

const (
	// DefaultMaxBufferSize is the default maximum size of one stdout line (1MB)
	DefaultMaxBufferSize = 1024 * 1024

	// DefaultCloseTimeout is the grace period between SIGINT and SIGKILL
	DefaultCloseTimeout = 5 * time.Second

	// SDKVersion is reported to the CLI through CLAUDE_AGENT_SDK_VERSION
	SDKVersion = "0.2.0"

	stderrTailLines = 20

	// drainTimeout bounds how long stdout may stay open after the CLI exits.
	// A grandchild that inherited the pipe would otherwise keep readers alive.
	drainTimeout = 2 * time.Second
)

// Errors
var (
	ErrNotConnected     = errors.New("not connected")
	ErrAlreadyConnected = errors.New("already connected")
	ErrConnectionClosed = errors.New("connection closed")
)

// CLIConnectionError represents a failure to talk to the CLI process
type CLIConnectionError struct {
	Message string
	Cause   error
}

func (e *CLIConnectionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("CLI connection error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("CLI connection error: %s", e.Message)
}

func (e *CLIConnectionError) Unwrap() error {
	return e.Cause
}

// ProcessExitError reports an exit nobody asked for: a non-zero status or a
// signal that did not come from Close.
type ProcessExitError struct {
	Code   int
	Signal string
	Stderr string
}

func (e *ProcessExitError) Error() string {
	msg := fmt.Sprintf("Claude Code process exited with code %d", e.Code)
	if e.Signal != "" {
		msg = fmt.Sprintf("Claude Code process terminated by signal %s", e.Signal)
	}
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

// Subprocess implements Transport using a child process
type Subprocess struct {
	opts          Options
	cliPath       string
	cwd           string
	maxBufferSize int
	closeTimeout  time.Duration

	// Process handles
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *os.File
	stderr *os.File

	messages chan []byte
	waitDone chan struct{}

	// State
	mu         sync.RWMutex
	connected  bool
	closed     bool
	exitErr    error
	stderrTail []string
	writeMu    sync.Mutex // Protects stdin writes

	ctx     context.Context
	cancel  context.CancelFunc
	readers sync.WaitGroup

	// Set before a requested termination so the exit is not reported as an error
	shuttingDown atomic.Bool
}

var _ Transport = (*Subprocess)(nil)

// New creates a subprocess transport. Nothing is started until Connect.
func New(opts Options) (*Subprocess, error) {
	cliPath := opts.CliPath
	if cliPath == "" {
		cliPath = "claude"
	}

	cwd := opts.Cwd
	if cwd == "" {
		var err error
		cwd, err = os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
	}

	maxBufferSize := opts.MaxBufferSize
	if maxBufferSize <= 0 {
		maxBufferSize = DefaultMaxBufferSize
	}

	closeTimeout := opts.CloseTimeout
	if closeTimeout <= 0 {
		closeTimeout = DefaultCloseTimeout
	}

	return &Subprocess{
		opts:          opts,
		cliPath:       cliPath,
		cwd:           cwd,
		maxBufferSize: maxBufferSize,
		closeTimeout:  closeTimeout,
		messages:      make(chan []byte, 100),
		waitDone:      make(chan struct{}),
	}, nil
}

// Args returns the CLI arguments, without the executable itself.
func (t *Subprocess) Args() []string {
	opts := t.opts
	args := []string{"--output-format", "stream-json", "--verbose"}

	if opts.PermissionMode != "" {
		args = append(args, "--permission-mode", opts.PermissionMode)
	}
	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}

	switch {
	case opts.Resume != "":
		args = append(args, "--resume", opts.Resume)
		if opts.ForkSession {
			args = append(args, "--fork-session")
		}
	case opts.ContinueConversation:
		args = append(args, "--continue")
	case opts.SessionID != "":
		args = append(args, "--session-id", opts.SessionID)
	}

	if opts.IncludePartialMessages {
		args = append(args, "--include-partial-messages")
	}

	keys := make([]string, 0, len(opts.ExtraArgs))
	for k := range opts.ExtraArgs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if v := opts.ExtraArgs[k]; v != nil {
			args = append(args, "--"+k, *v)
		} else {
			args = append(args, "--"+k)
		}
	}

	if opts.Prompt != "" {
		args = append(args, "--print", "--", opts.Prompt)
	} else {
		args = append(args, "--input-format", "stream-json")
	}

	return args
}

// Connect starts the subprocess and its reader goroutines
func (t *Subprocess) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.connected {
		return ErrAlreadyConnected
	}
	if t.closed {
		return ErrConnectionClosed
	}

	t.ctx, t.cancel = context.WithCancel(ctx)

	args := t.Args()
	log.Info().
		Str("cli", t.cliPath).
		Strs("args", args).
		Str("cwd", t.cwd).
		Msg("starting Claude CLI subprocess")

	cmd := exec.CommandContext(t.ctx, t.cliPath, args...)
	cmd.Dir = t.cwd

	// The CLI is a Node.js program: SIGTERM is ignored, SIGINT triggers a
	// clean exit. Cancellation sends SIGINT and WaitDelay escalates to SIGKILL.
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = t.closeTimeout

	env := t.opts.Env
	if env == nil {
		env = os.Environ()
	}
	env = append(append([]string(nil), env...),
		"CLAUDE_CODE_ENTRYPOINT=sdk-go",
		"CLAUDE_AGENT_SDK_VERSION="+SDKVersion,
	)
	cmd.Env = env

	var err error
	if t.stdin, err = cmd.StdinPipe(); err != nil {
		t.cancel()
		return &CLIConnectionError{Message: "failed to create stdin pipe", Cause: err}
	}

	// Own the read ends so cmd.Wait never closes them under the readers
	stdoutW, stderrW, err := t.openOutputPipes()
	if err != nil {
		t.cancel()
		return err
	}
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	err = cmd.Start()
	stdoutW.Close()
	stderrW.Close()
	if err != nil {
		t.stdout.Close()
		t.stderr.Close()
		t.cancel()
		return &CLIConnectionError{Message: "failed to start CLI process", Cause: err}
	}

	t.cmd = cmd
	t.connected = true

	log.Info().
		Int("pid", cmd.Process.Pid).
		Str("cwd", t.cwd).
		Bool("oneShot", t.opts.Prompt != "").
		Msg("Claude CLI subprocess started")

	t.readers.Add(2)
	go t.readStdout()
	go t.readStderr()
	go t.monitorProcess()

	return nil
}

func (t *Subprocess) openOutputPipes() (stdoutW, stderrW *os.File, err error) {
	if t.stdout, stdoutW, err = os.Pipe(); err != nil {
		return nil, nil, &CLIConnectionError{Message: "failed to create stdout pipe", Cause: err}
	}
	if t.stderr, stderrW, err = os.Pipe(); err != nil {
		t.stdout.Close()
		stdoutW.Close()
		return nil, nil, &CLIConnectionError{Message: "failed to create stderr pipe", Cause: err}
	}
	return stdoutW, stderrW, nil
}

// readStdout splits stdout into records
func (t *Subprocess) readStdout() {
	defer t.readers.Done()

	scanner := bufio.NewScanner(t.stdout)
	scanner.Buffer(make([]byte, 64*1024), t.maxBufferSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		for _, rec := range splitRecords(line) {
			select {
			case t.messages <- rec:
			case <-t.ctx.Done():
				return
			}
		}
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, os.ErrClosed) {
		log.Error().Err(err).Msg("transport: stdout scanner error")
		t.setExitErr(&CLIConnectionError{Message: "stdout read error", Cause: err})
	}
}

// splitRecords splits a stdout line into JSON objects. The CLI occasionally
// writes several objects on one line. Anything that is not a clean sequence of
// JSON values comes back as a single text record.
func splitRecords(line []byte) [][]byte {
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return [][]byte{bytes.Clone(line)}
	}

	var out [][]byte
	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	for {
		var raw json.RawMessage
		err := decoder.Decode(&raw)
		if err == io.EOF {
			return out
		}
		if err != nil {
			return [][]byte{bytes.Clone(line)}
		}
		out = append(out, bytes.Clone(raw))
	}
}

// readStderr forwards stderr lines to the callback and keeps a short tail
// for exit diagnostics
func (t *Subprocess) readStderr() {
	defer t.readers.Done()

	scanner := bufio.NewScanner(t.stderr)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		t.mu.Lock()
		t.stderrTail = append(t.stderrTail, line)
		if len(t.stderrTail) > stderrTailLines {
			t.stderrTail = t.stderrTail[len(t.stderrTail)-stderrTailLines:]
		}
		t.mu.Unlock()

		if t.opts.Stderr != nil {
			t.opts.Stderr(line)
		}
		log.Debug().Str("stderr", line).Msg("Claude CLI stderr")
	}
}

// monitorProcess reaps the child, then waits a bounded time for the readers
// to drain what is left in the pipes.
func (t *Subprocess) monitorProcess() {
	err := t.cmd.Wait()

	drained := make(chan struct{})
	go func() {
		t.readers.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(drainTimeout):
		log.Warn().Msg("transport: output still open after exit, closing pipes")
		t.stdout.Close()
		t.stderr.Close()
		<-drained
	}
	t.stdout.Close()
	t.stderr.Close()

	exitCode := -1
	if ps := t.cmd.ProcessState; ps != nil {
		exitCode = ps.ExitCode()
	}

	requested := t.shuttingDown.Load() || t.ctx.Err() != nil

	t.mu.Lock()
	t.connected = false
	if err != nil && !requested && t.exitErr == nil {
		t.exitErr = t.classifyExit(err)
	}
	t.mu.Unlock()

	if err != nil && !requested {
		log.Warn().Err(err).Int("exitCode", exitCode).Msg("Claude CLI process exited with error")
	} else {
		log.Info().Int("exitCode", exitCode).Bool("requested", requested).Msg("Claude CLI process exited")
	}

	close(t.messages)
	close(t.waitDone)
}

// classifyExit must be called with t.mu held
func (t *Subprocess) classifyExit(err error) error {
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return &CLIConnectionError{Message: "process wait failed", Cause: err}
	}

	pe := &ProcessExitError{
		Code:   exitErr.ExitCode(),
		Stderr: strings.Join(t.stderrTail, "\n"),
	}
	if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		pe.Signal = ws.Signal().String()
	}
	return pe
}

func (t *Subprocess) setExitErr(err error) {
	t.mu.Lock()
	if t.exitErr == nil {
		t.exitErr = err
	}
	t.mu.Unlock()
}

// Write sends data to Claude CLI's stdin
func (t *Subprocess) Write(data string) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	t.mu.RLock()
	connected, closed := t.connected, t.closed
	t.mu.RUnlock()
	if closed {
		return ErrConnectionClosed
	}
	if !connected {
		return ErrNotConnected
	}

	if _, err := io.WriteString(t.stdin, data); err != nil {
		return &CLIConnectionError{Message: "failed to write to stdin", Cause: err}
	}
	return nil
}

// ReadMessages returns the channel for receiving stdout records
func (t *Subprocess) ReadMessages() <-chan []byte {
	return t.messages
}

// Err returns the terminal error once ReadMessages is closed
func (t *Subprocess) Err() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.exitErr
}

// Done is closed after the child has been reaped
func (t *Subprocess) Done() <-chan struct{} {
	return t.waitDone
}

// Signal delivers sig to the child process
func (t *Subprocess) Signal(sig os.Signal) error {
	t.mu.RLock()
	cmd := t.cmd
	t.mu.RUnlock()
	if cmd == nil || cmd.Process == nil {
		return ErrNotConnected
	}
	if err := cmd.Process.Signal(sig); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			return nil
		}
		return err
	}
	return nil
}

// EndInput closes the stdin stream
func (t *Subprocess) EndInput() error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if t.stdin != nil {
		return t.stdin.Close()
	}
	return nil
}

// Close terminates the process and waits for it to be reaped.
//
// Sequence: close stdin (EOF), cancel the context (SIGINT), and let
// cmd.WaitDelay send SIGKILL if the CLI is still alive after CloseTimeout.
func (t *Subprocess) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	started := t.cmd != nil
	t.mu.Unlock()

	t.shuttingDown.Store(true)
	if !started {
		if t.cancel != nil {
			t.cancel()
		}
		return nil
	}

	_ = t.EndInput()
	t.cancel()

	select {
	case <-t.waitDone:
	case <-time.After(t.closeTimeout + 2*time.Second):
		log.Warn().Int("pid", t.cmd.Process.Pid).Msg("Claude CLI did not exit after close, giving up")
	}

	log.Debug().Msg("Claude CLI transport closed")
	return nil
}

// IsConnected returns whether the transport is currently connected
func (t *Subprocess) IsConnected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.connected && !t.closed
}

// SignalShutdown marks the transport as shutting down.
func (t *Subprocess) SignalShutdown() {
	t.shuttingDown.Store(true)
}
