// Package reducer folds the orchestrator event stream into per-session UI
// state: the thinking/streaming/finished status, the visible transcript, cost
// bookkeeping and the list of active session views.
package reducer

import (
	"encoding/json"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/damien-schneider/claude-code-desktop-sub001/claude"
	"github.com/damien-schneider/claude-code-desktop-sub001/log"
)

const previewLength = 120

// Options configures a Reducer
type Options struct {
	// ChunkDebounce merges chunk bursts; zero uses DefaultChunkDebounce and a
	// negative value disables merging
	ChunkDebounce time.Duration

	// OnChange is called with a snapshot after every state change. It runs
	// with the reducer locked and must not call back into it.
	OnChange func(State)
}

// Reducer holds the state of every process it has seen events for
type Reducer struct {
	mu       sync.Mutex
	sessions map[string]State
	views    map[string]*ActiveSessionView
	ended    map[string]bool
	chunks   *coalescer
	onChange func(State)
	closed   bool
}

// New creates a reducer
func New(opts Options) *Reducer {
	delay := opts.ChunkDebounce
	if delay == 0 {
		delay = DefaultChunkDebounce
	}
	r := &Reducer{
		sessions: make(map[string]State),
		views:    make(map[string]*ActiveSessionView),
		ended:    make(map[string]bool),
		onChange: opts.OnChange,
	}
	r.chunks = newCoalescer(delay, r.flushTimer)
	return r
}

// Attach subscribes the reducer to an event source such as
// Orchestrator.Subscribe and returns the unsubscribe function.
func (r *Reducer) Attach(subscribe func(func(claude.Event)) func()) func() {
	return subscribe(r.Apply)
}

// Apply folds one event. Chunks may be held briefly and merged; any other
// event for the same process releases them first, so order is preserved.
func (r *Reducer) Apply(ev claude.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || ev.ProcessID == "" {
		return
	}

	if ev.Type == claude.EventChunk && r.chunks.queue(ev) {
		return
	}
	if held, ok := r.chunks.take(ev.ProcessID); ok {
		r.applyLocked(held)
	}
	r.applyLocked(ev)
}

func (r *Reducer) flushTimer(p *pendingChunk) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	if ev, ok := r.chunks.claim(p); ok {
		r.applyLocked(ev)
	}
}

func (r *Reducer) applyLocked(ev claude.Event) {
	next := Fold(r.sessions[ev.ProcessID], ev)
	r.sessions[ev.ProcessID] = next
	r.updateView(ev, next)

	if r.onChange != nil {
		r.onChange(next.clone())
	}
}

func (r *Reducer) updateView(ev claude.Event, s State) {
	if ev.IsTerminal() {
		r.ended[ev.ProcessID] = true
		delete(r.views, ev.ProcessID)
		return
	}

	view, ok := r.views[ev.ProcessID]
	if !ok {
		if !ev.IsInit() {
			return
		}
		projectPath := initCwd(ev.Payload)
		view = &ActiveSessionView{
			ProcessID:   ev.ProcessID,
			ProjectPath: projectPath,
			CreatedAt:   ev.Timestamp,
		}
		if projectPath != "" {
			view.ProjectName = filepath.Base(projectPath)
		}
		r.views[ev.ProcessID] = view
		log.Debug().Str("processId", ev.ProcessID).Msg("active session view created")
	}

	view.SessionID = s.SessionID
	view.IsStreaming = s.Status == StatusThinking || s.Status == StatusStreaming
	if text := latestText(s); text != "" {
		view.PreviewText = preview(text)
	}
}

// initCwd reads the working directory the CLI reported at init
func initCwd(payload json.RawMessage) string {
	if len(payload) == 0 {
		return ""
	}
	var init struct {
		Cwd string `json:"cwd"`
	}
	if err := json.Unmarshal(payload, &init); err != nil {
		return ""
	}
	return init.Cwd
}

func latestText(s State) string {
	if s.Buffer != "" {
		return s.Buffer
	}
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Text != "" {
			return s.Messages[i].Text
		}
	}
	return ""
}

func preview(text string) string {
	runes := []rune(text)
	if len(runes) <= previewLength {
		return text
	}
	return string(runes[len(runes)-previewLength:])
}

// Track sets the project of a view before the CLI reports its working
// directory, e.g. right after a launch returns. A process whose stream
// already ended gets no view.
func (r *Reducer) Track(processID, projectPath string, createdAt time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.ended[processID] {
		return
	}
	view, ok := r.views[processID]
	if !ok {
		view = &ActiveSessionView{ProcessID: processID, CreatedAt: createdAt, IsStreaming: true}
		r.views[processID] = view
	}
	view.ProjectPath = projectPath
	view.ProjectName = filepath.Base(projectPath)
}

// End retires a process that stopped without a terminal event. Its view is
// removed and a turn still in flight is closed as partial.
func (r *Reducer) End(processID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	if held, ok := r.chunks.take(processID); ok {
		r.applyLocked(held)
	}
	r.ended[processID] = true
	delete(r.views, processID)

	s, ok := r.sessions[processID]
	if !ok || s.Status == StatusIdle || s.Status.Finished() {
		return
	}
	next := flush(s.clone(), claude.Event{Timestamp: time.Now()})
	next.Status = StatusPartial
	next.UpdatedAt = time.Now()
	r.sessions[processID] = next
	if r.onChange != nil {
		r.onChange(next.clone())
	}
}

// State returns a snapshot of the process state
func (r *Reducer) State(processID string) (State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[processID]
	if !ok {
		return State{}, false
	}
	return s.clone(), true
}

// Views returns the active session views, oldest first
func (r *Reducer) Views() []ActiveSessionView {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ActiveSessionView, 0, len(r.views))
	for _, v := range r.views {
		out = append(out, *v)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ProcessID < out[j].ProcessID
	})
	return out
}

// Forget drops everything known about a process
func (r *Reducer) Forget(processID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chunks.take(processID)
	delete(r.sessions, processID)
	delete(r.views, processID)
	delete(r.ended, processID)
}

// Flush applies every held chunk now
func (r *Reducer) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.chunks.pendingIDs() {
		if ev, ok := r.chunks.take(id); ok {
			r.applyLocked(ev)
		}
	}
}

// Close flushes held chunks and ignores events from then on
func (r *Reducer) Close() {
	r.Flush()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.chunks.stop()
}
