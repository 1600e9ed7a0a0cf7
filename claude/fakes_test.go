package claude

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/damien-schneider/claude-code-desktop-sub001/claude/sdk"
)

// fakeHandle is a scripted session: tests push CLI lines and decide how the
// process ends.
type fakeHandle struct {
	transport string
	out       chan item
	exit      chan struct{}
	exitOnce  sync.Once
	endOnce   sync.Once

	// ignoreTerm keeps the process alive through SIGTERM
	ignoreTerm bool

	mu         sync.Mutex
	writes     []string
	signals    []os.Signal
	interrupts int
	modes      []string
	streamErr  error
	writeErr   error
	closed     bool
}

var _ Handle = (*fakeHandle)(nil)

func newFakeHandle(transport string) *fakeHandle {
	return &fakeHandle{
		transport: transport,
		out:       make(chan item, 64),
		exit:      make(chan struct{}),
	}
}

func (f *fakeHandle) Write(message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, message)
	return f.writeErr
}

func (f *fakeHandle) Interrupt() error {
	f.mu.Lock()
	f.interrupts++
	f.mu.Unlock()
	return nil
}

func (f *fakeHandle) SetPermissionMode(mode string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.transport == TransportRaw {
		return ErrNotSupported
	}
	f.modes = append(f.modes, mode)
	return nil
}

func (f *fakeHandle) Kill(sig os.Signal) error {
	f.mu.Lock()
	f.signals = append(f.signals, sig)
	ignore := f.ignoreTerm
	f.mu.Unlock()
	if sig == syscall.SIGKILL || !ignore {
		f.markExited()
	}
	return nil
}

func (f *fakeHandle) transportName() string   { return f.transport }
func (f *fakeHandle) items() <-chan item      { return f.out }
func (f *fakeHandle) exited() <-chan struct{} { return f.exit }

func (f *fakeHandle) err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streamErr
}

func (f *fakeHandle) close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	f.markExited()
	return nil
}

func (f *fakeHandle) markExited() {
	f.exitOnce.Do(func() { close(f.exit) })
}

// emit pushes one CLI stdout line
func (f *fakeHandle) emit(t *testing.T, line string) {
	t.Helper()
	msg, err := sdk.ParseMessage([]byte(line))
	require.NoError(t, err)
	f.out <- item{msg: msg}
}

func (f *fakeHandle) chunk(text string) {
	f.out <- item{text: text}
}

// end closes the stream; err is what the transport reports
func (f *fakeHandle) end(err error) {
	f.endOnce.Do(func() {
		f.mu.Lock()
		f.streamErr = err
		f.mu.Unlock()
		close(f.out)
		f.markExited()
	})
}

func (f *fakeHandle) written() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.writes...)
}

func (f *fakeHandle) sentSignals() []os.Signal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]os.Signal(nil), f.signals...)
}

func (f *fakeHandle) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// fakeSpawner hands out fakeHandles and remembers every request
type fakeSpawner struct {
	mu       sync.Mutex
	requests []SpawnRequest
	handles  []*fakeHandle
	err      error

	// prepare, when set, adjusts each handle before it is returned
	prepare func(*fakeHandle)
}

func (s *fakeSpawner) spawn(_ context.Context, req SpawnRequest) (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	h := newFakeHandle(req.Transport)
	if s.prepare != nil {
		s.prepare(h)
	}
	s.handles = append(s.handles, h)
	return h, nil
}

func (s *fakeSpawner) last(t *testing.T) (*fakeHandle, SpawnRequest) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.handles, "nothing was spawned")
	return s.handles[len(s.handles)-1], s.requests[len(s.requests)-1]
}

func (s *fakeSpawner) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// mapFS answers Exists from a fixed set of paths
type mapFS map[string]bool

func (m mapFS) Exists(path string) bool { return m[path] }

func (m mapFS) ReadDir(string) ([]os.DirEntry, error) { return nil, os.ErrNotExist }

// recorder captures run journal calls
type recorder struct {
	mu     sync.Mutex
	starts []RunStart
	ends   []RunEnd
}

func (r *recorder) RecordStart(_ context.Context, run RunStart) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.starts = append(r.starts, run)
	return nil
}

func (r *recorder) RecordEnd(_ context.Context, run RunEnd) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ends = append(r.ends, run)
	return nil
}

// failingRecorder rejects every write
type failingRecorder struct{}

func (failingRecorder) RecordStart(context.Context, RunStart) error { return errors.New("disk full") }
func (failingRecorder) RecordEnd(context.Context, RunEnd) error     { return errors.New("disk full") }

// syncBuffer collects log output written from several goroutines
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (r *recorder) endings() []RunEnd {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]RunEnd(nil), r.ends...)
}

func writeExecutable(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

// newTestOrchestrator returns an orchestrator whose CLI path resolves to a
// dummy file and whose processes are fakes.
func newTestOrchestrator(t *testing.T, mutate ...func(*Options)) (*Orchestrator, *fakeSpawner) {
	t.Helper()
	home := t.TempDir()
	cli := writeExecutable(t, t.TempDir(), "claude", "echo 2.1.0\n")

	spawner := &fakeSpawner{}
	opts := Options{
		CLIPath:         cli,
		Home:            home,
		Env:             []string{"PATH=/usr/bin"},
		Transcripts:     ProjectTranscriptPath(),
		FileSystem:      mapFS{},
		StopGracePeriod: 100 * time.Millisecond,
		Spawner:         spawner.spawn,
	}
	for _, m := range mutate {
		m(&opts)
	}

	o := New(opts)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = o.Shutdown(ctx)
	})
	return o, spawner
}

// collect reads events for pid until a terminal event arrives
func collect(t *testing.T, ch <-chan Event, pid string) []Event {
	t.Helper()
	var events []Event
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			require.True(t, ok, "event channel closed")
			if ev.ProcessID != pid {
				continue
			}
			events = append(events, ev)
			if ev.IsTerminal() {
				return events
			}
		case <-timeout:
			t.Fatalf("no terminal event for %s, got %d events", pid, len(events))
			return nil
		}
	}
}

// expectSilence fails if anything for pid arrives within d
func expectSilence(t *testing.T, ch <-chan Event, pid string, d time.Duration) {
	t.Helper()
	deadline := time.After(d)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if ev.ProcessID == pid {
				t.Fatalf("unexpected event after stop: %+v", ev)
			}
		case <-deadline:
			return
		}
	}
}

const (
	initLine      = `{"type":"system","subtype":"init","session_id":"%s","cwd":"/proj","model":"claude-sonnet"}`
	assistantLine = `{"type":"assistant","session_id":"s","message":{"role":"assistant","content":[{"type":"text","text":"hello"}]}}`
	successLine   = `{"type":"result","subtype":"success","is_error":false,"session_id":"s","result":"hello","total_cost_usd":0.01,"num_turns":1}`
	failureLine   = `{"type":"result","subtype":"error_during_execution","is_error":true,"session_id":"s"}`
)
