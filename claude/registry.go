package claude

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/damien-schneider/claude-code-desktop-sub001/notifications"
)

// ProcessEntry is the registry's record of one launch. isActive goes from
// true to false exactly once; after that nothing is written to the handle and
// nothing is published for the entry.
type ProcessEntry struct {
	ID          string
	ProjectPath string
	Transport   string
	Resumed     bool
	CreatedAt   time.Time

	ctx    context.Context
	cancel context.CancelFunc
	handle Handle
	done   chan struct{} // closed when the drain loop returns

	mu        sync.Mutex
	sessionID string
	active    bool
}

// NewProcessEntry creates an active entry. cancel is fired when the entry is
// removed from a registry.
func NewProcessEntry(ctx context.Context, cancel context.CancelFunc, id, projectPath, sessionID string, h Handle) *ProcessEntry {
	return &ProcessEntry{
		ID:          id,
		ProjectPath: projectPath,
		CreatedAt:   time.Now(),
		ctx:         ctx,
		cancel:      cancel,
		handle:      h,
		done:        make(chan struct{}),
		sessionID:   sessionID,
		active:      true,
	}
}

// SessionID returns the CLI session id, "" until it is known
func (e *ProcessEntry) SessionID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessionID
}

func (e *ProcessEntry) setSessionID(id string) {
	e.mu.Lock()
	e.sessionID = id
	e.mu.Unlock()
}

// IsActive reports whether the entry may still be acted on
func (e *ProcessEntry) IsActive() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// Handle returns the live process handle
func (e *ProcessEntry) Handle() Handle {
	return e.handle
}

// deactivate flips isActive; true only for the call that made the transition.
func (e *ProcessEntry) deactivate() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.active {
		return false
	}
	e.active = false
	return true
}

// publish delivers ev while the entry is active. Holding the entry lock
// across delivery is what guarantees nothing reaches subscribers after
// deactivate returns. Subscribers must not call Stop for the same process
// synchronously from their callback.
func (e *ProcessEntry) publish(b *notifications.Broadcaster[Event], ev Event) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.active {
		return false
	}
	b.Publish(ev)
	return true
}

// publishFinal delivers the terminal event and deactivates in one step.
func (e *ProcessEntry) publishFinal(b *notifications.Broadcaster[Event], ev Event) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.active {
		return false
	}
	b.Publish(ev)
	e.active = false
	return true
}

// Registry maps process ids to entries. It is the only authority on whether
// a process can still be controlled.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*ProcessEntry
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*ProcessEntry)}
}

// Register adds an entry. Ids are never reused: a present id is rejected.
func (r *Registry) Register(e *ProcessEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[e.ID]; exists {
		return ErrDuplicateProcess
	}
	r.entries[e.ID] = e
	return nil
}

// Lookup returns the entry for id
func (r *Registry) Lookup(id string) (*ProcessEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e, ok
}

// MarkInactive deactivates the entry. It returns true only for the call that
// performed the transition.
func (r *Registry) MarkInactive(id string) bool {
	e, ok := r.Lookup(id)
	if !ok {
		return false
	}
	return e.deactivate()
}

// Remove deletes the entry and fires its cancellation. It is the only way an
// entry leaves the registry.
func (r *Registry) Remove(id string) *ProcessEntry {
	r.mu.Lock()
	e, ok := r.entries[id]
	delete(r.entries, id)
	r.mu.Unlock()

	if !ok {
		return nil
	}
	if e.cancel != nil {
		e.cancel()
	}
	return e
}

// ListActive returns the ids of active entries, sorted
func (r *Registry) ListActive() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.entries))
	for id, e := range r.entries {
		if e.IsActive() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of registered entries, active or not
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func (r *Registry) snapshot() []*ProcessEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*ProcessEntry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	return out
}
