package notifications

import (
	"sync"
	"testing"
	"time"
)

type testEvent struct {
	Process string
	Seq     int
}

// =============================================================================
// Subscription Tests
// =============================================================================

func TestSubscribe_ReceivesEvents(t *testing.T) {
	b := NewBroadcaster[testEvent]()
	defer b.Shutdown()

	var got []testEvent
	unsubscribe := b.Subscribe(func(e testEvent) {
		got = append(got, e)
	})
	defer unsubscribe()

	b.Publish(testEvent{Process: "p1", Seq: 1})

	// Delivery is synchronous, so the event is visible immediately
	if len(got) != 1 {
		t.Fatalf("expected 1 event, got %d", len(got))
	}
	if got[0].Process != "p1" {
		t.Errorf("expected process p1, got %s", got[0].Process)
	}
}

func TestSubscribe_Unsubscribe(t *testing.T) {
	b := NewBroadcaster[testEvent]()
	defer b.Shutdown()

	calls := 0
	unsubscribe := b.Subscribe(func(testEvent) { calls++ })
	unsubscribe()

	b.Publish(testEvent{Process: "p1"})

	if calls != 0 {
		t.Fatalf("received %d events after unsubscribe", calls)
	}
	if b.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers, got %d", b.SubscriberCount())
	}
}

func TestSubscribe_DoubleUnsubscribe(t *testing.T) {
	b := NewBroadcaster[testEvent]()
	defer b.Shutdown()

	unsubscribe := b.Subscribe(func(testEvent) {})

	// Double unsubscribe should not panic
	unsubscribe()
	unsubscribe()
}

func TestSubscribe_NoReplay(t *testing.T) {
	b := NewBroadcaster[testEvent]()
	defer b.Shutdown()

	b.Publish(testEvent{Process: "early"})

	calls := 0
	b.Subscribe(func(testEvent) { calls++ })

	if calls != 0 {
		t.Errorf("late subscriber saw %d past events", calls)
	}
}

func TestPublish_PreservesOrderPerPublisher(t *testing.T) {
	b := NewBroadcaster[testEvent]()
	defer b.Shutdown()

	var mu sync.Mutex
	seen := map[string][]int{}
	b.Subscribe(func(e testEvent) {
		mu.Lock()
		seen[e.Process] = append(seen[e.Process], e.Seq)
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for _, p := range []string{"a", "b", "c"} {
		wg.Add(1)
		go func(p string) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				b.Publish(testEvent{Process: p, Seq: i})
			}
		}(p)
	}
	wg.Wait()

	for p, seqs := range seen {
		if len(seqs) != 200 {
			t.Fatalf("process %s: expected 200 events, got %d", p, len(seqs))
		}
		for i, s := range seqs {
			if s != i {
				t.Fatalf("process %s: event %d out of order (got seq %d)", p, i, s)
			}
		}
	}
}

func TestPublish_RecoversSubscriberPanic(t *testing.T) {
	b := NewBroadcaster[testEvent]()
	defer b.Shutdown()

	b.Subscribe(func(testEvent) { panic("boom") })
	calls := 0
	b.Subscribe(func(testEvent) { calls++ })

	b.Publish(testEvent{Process: "p1"})

	if calls != 1 {
		t.Errorf("expected second subscriber to still receive, got %d calls", calls)
	}
}

func TestSubscribeChan_DropsWhenFull(t *testing.T) {
	b := NewBroadcaster[testEvent]()
	defer b.Shutdown()

	ch, unsubscribe := b.SubscribeChan(2)
	defer unsubscribe()

	for i := 0; i < 5; i++ {
		b.Publish(testEvent{Process: "p", Seq: i})
	}

	if len(ch) != 2 {
		t.Fatalf("expected 2 buffered events, got %d", len(ch))
	}
	first := <-ch
	if first.Seq != 0 {
		t.Errorf("expected first buffered seq 0, got %d", first.Seq)
	}
}

func TestSubscribeChan_ClosedOnUnsubscribe(t *testing.T) {
	b := NewBroadcaster[testEvent]()
	defer b.Shutdown()

	ch, unsubscribe := b.SubscribeChan(1)
	unsubscribe()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected closed channel")
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for channel close")
	}

	// Publishing after close must not panic
	b.Publish(testEvent{Process: "p"})
}

func TestShutdown_ClosesChannelsAndIgnoresPublish(t *testing.T) {
	b := NewBroadcaster[testEvent]()
	ch, unsubscribe := b.SubscribeChan(1)
	defer unsubscribe()

	b.Shutdown()
	b.Shutdown()

	if _, ok := <-ch; ok {
		t.Fatal("expected channel closed by shutdown")
	}

	calls := 0
	b.Subscribe(func(testEvent) { calls++ })
	b.Publish(testEvent{})
	if calls != 0 {
		t.Error("publish after shutdown delivered an event")
	}
}

func TestConcurrent_SubscribePublishUnsubscribe(t *testing.T) {
	b := NewBroadcaster[testEvent]()
	defer b.Shutdown()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			ch, unsub := b.SubscribeChan(4)
			for j := 0; j < 10; j++ {
				select {
				case <-ch:
				default:
				}
			}
			unsub()
		}()
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				b.Publish(testEvent{Seq: i*100 + j})
			}
		}(i)
	}
	wg.Wait()
}
