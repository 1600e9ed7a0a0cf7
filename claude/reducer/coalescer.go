package reducer

import (
	"strings"
	"sync/atomic"
	"time"

	"github.com/damien-schneider/claude-code-desktop-sub001/claude"
)

// DefaultChunkDebounce is how long chunk text is held to be merged
const DefaultChunkDebounce = 30 * time.Millisecond

// coalescer merges bursts of chunk events per process. Chunks for a process
// wait until no new chunk arrived for the delay; any other event for that
// process flushes them first. All methods except the timer callback run with
// the reducer lock held.
type coalescer struct {
	delay    time.Duration
	pending  map[string]*pendingChunk
	stopping atomic.Bool
	onTimer  func(p *pendingChunk)
}

// pendingChunk is the merged text waiting for one process
type pendingChunk struct {
	first claude.Event
	text  strings.Builder
	timer *time.Timer
}

func newCoalescer(delay time.Duration, onTimer func(p *pendingChunk)) *coalescer {
	return &coalescer{
		delay:   delay,
		pending: make(map[string]*pendingChunk),
		onTimer: onTimer,
	}
}

// queue holds ev. It returns false when ev must be applied right away.
func (c *coalescer) queue(ev claude.Event) bool {
	if c.delay <= 0 || c.stopping.Load() {
		return false
	}

	if p, ok := c.pending[ev.ProcessID]; ok {
		p.text.WriteString(ev.Text)
		// If the timer already fired, its callback is waiting for the lock
		// and will flush the merged text, this chunk included. The re-armed
		// timer then no longer finds p pending and gives up.
		p.timer.Reset(c.delay)
		return true
	}

	p := &pendingChunk{first: ev}
	p.text.WriteString(ev.Text)
	c.schedule(p)
	return true
}

func (c *coalescer) schedule(p *pendingChunk) {
	c.pending[p.first.ProcessID] = p
	p.timer = time.AfterFunc(c.delay, func() { c.onTimer(p) })
}

// take removes and returns the merged chunk for processID, if any
func (c *coalescer) take(processID string) (claude.Event, bool) {
	p, ok := c.pending[processID]
	if !ok {
		return claude.Event{}, false
	}
	p.timer.Stop()
	delete(c.pending, processID)
	return p.merged(), true
}

// claim is the timer path: it succeeds only if p is still the live entry
func (c *coalescer) claim(p *pendingChunk) (claude.Event, bool) {
	if c.pending[p.first.ProcessID] != p {
		return claude.Event{}, false
	}
	delete(c.pending, p.first.ProcessID)
	return p.merged(), true
}

// pendingIDs lists processes with held text
func (c *coalescer) pendingIDs() []string {
	ids := make([]string, 0, len(c.pending))
	for id := range c.pending {
		ids = append(ids, id)
	}
	return ids
}

func (c *coalescer) stop() {
	c.stopping.Store(true)
	for _, p := range c.pending {
		p.timer.Stop()
	}
}

func (p *pendingChunk) merged() claude.Event {
	ev := p.first
	ev.Text = p.text.String()
	return ev
}
