package notifications

import (
	"sync"

	"github.com/damien-schneider/claude-code-desktop-sub001/log"
)

// DefaultChannelBuffer is the buffer size for channel subscribers.
const DefaultChannelBuffer = 64

// Broadcaster is an in-process publish/subscribe bus.
//
// Publish delivers synchronously on the caller's goroutine, in subscription
// order, so a single publisher's events reach every callback in the order they
// were published. There is no persistence or replay: a subscriber only sees
// events published after it subscribed.
type Broadcaster[T any] struct {
	mu          sync.RWMutex
	subscribers map[uint64]*subscriber[T]
	order       []uint64
	nextID      uint64
	closed      bool
}

type subscriber[T any] struct {
	fn      func(T)
	onClose func()
}

// NewBroadcaster creates an empty broadcaster
func NewBroadcaster[T any]() *Broadcaster[T] {
	return &Broadcaster[T]{
		subscribers: make(map[uint64]*subscriber[T]),
	}
}

// Subscribe registers a callback. The returned function unsubscribes and is
// safe to call more than once. Callbacks must not block; they run on the
// publisher's goroutine.
func (b *Broadcaster[T]) Subscribe(fn func(T)) func() {
	return b.add(&subscriber[T]{fn: fn})
}

func (b *Broadcaster[T]) add(s *subscriber[T]) func() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		if s.onClose != nil {
			s.onClose()
		}
		return func() {}
	}
	id := b.nextID
	b.nextID++
	b.subscribers[id] = s
	b.order = append(b.order, id)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(id) })
	}
}

func (b *Broadcaster[T]) remove(id uint64) {
	b.mu.Lock()
	s, ok := b.subscribers[id]
	if ok {
		delete(b.subscribers, id)
		for i, v := range b.order {
			if v == id {
				b.order = append(b.order[:i], b.order[i+1:]...)
				break
			}
		}
	}
	b.mu.Unlock()

	if ok && s.onClose != nil {
		s.onClose()
	}
}

// SubscribeChan adapts the bus to a buffered channel for consumers on another
// goroutine (websocket and SSE bridges). When the channel is full the event is
// dropped for that subscriber and a warning is logged. The channel is closed by
// the returned unsubscribe function or by Shutdown.
func (b *Broadcaster[T]) SubscribeChan(buffer int) (<-chan T, func()) {
	if buffer <= 0 {
		buffer = DefaultChannelBuffer
	}
	cs := &chanSubscriber[T]{ch: make(chan T, buffer)}
	unsubscribe := b.add(&subscriber[T]{fn: cs.send, onClose: cs.close})
	return cs.ch, unsubscribe
}

// Publish delivers v to every current subscriber. A panicking subscriber is
// recovered and logged so it cannot take the publisher down.
func (b *Broadcaster[T]) Publish(v T) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	subs := make([]*subscriber[T], 0, len(b.order))
	for _, id := range b.order {
		subs = append(subs, b.subscribers[id])
	}
	b.mu.RUnlock()

	for _, s := range subs {
		deliver(s.fn, v)
	}
}

func deliver[T any](fn func(T), v T) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("notification subscriber panicked")
		}
	}()
	fn(v)
}

// Shutdown drops all subscribers and ignores later publishes.
// Channel subscribers see their channel closed.
func (b *Broadcaster[T]) Shutdown() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subscribers
	b.subscribers = make(map[uint64]*subscriber[T])
	b.order = nil
	b.mu.Unlock()

	for _, s := range subs {
		if s.onClose != nil {
			s.onClose()
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (b *Broadcaster[T]) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// chanSubscriber guards its channel so a publish racing an unsubscribe never
// sends on a closed channel.
type chanSubscriber[T any] struct {
	mu      sync.Mutex
	ch      chan T
	closed  bool
	dropped int
}

func (c *chanSubscriber[T]) send(v T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.ch <- v:
	default:
		c.dropped++
		log.Warn().
			Int("dropped", c.dropped).
			Int("buffer", cap(c.ch)).
			Msg("dropped event for slow channel subscriber")
	}
}

func (c *chanSubscriber[T]) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.ch)
	}
}
