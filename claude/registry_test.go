package claude

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/damien-schneider/claude-code-desktop-sub001/notifications"
)

func newTestEntry(id string) *ProcessEntry {
	ctx, cancel := context.WithCancel(context.Background())
	return NewProcessEntry(ctx, cancel, id, "/proj", "", newFakeHandle(TransportSDK))
}

func TestRegistry_RejectsDuplicateID(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(newTestEntry("p1")))
	assert.ErrorIs(t, r.Register(newTestEntry("p1")), ErrDuplicateProcess)
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_MarkInactiveTransitionsOnce(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(newTestEntry("p1")))

	var wg sync.WaitGroup
	var mu sync.Mutex
	transitions := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if r.MarkInactive("p1") {
				mu.Lock()
				transitions++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, transitions)
	assert.Empty(t, r.ListActive())
	assert.Equal(t, 1, r.Len())
	assert.False(t, r.MarkInactive("missing"))
}

func TestRegistry_RemoveCancels(t *testing.T) {
	r := NewRegistry()
	e := newTestEntry("p1")
	require.NoError(t, r.Register(e))

	assert.Same(t, e, r.Remove("p1"))
	assert.Error(t, e.ctx.Err())
	assert.Nil(t, r.Remove("p1"))
	_, ok := r.Lookup("p1")
	assert.False(t, ok)
}

func TestProcessEntry_NoPublishAfterDeactivate(t *testing.T) {
	b := notifications.NewBroadcaster[Event]()
	defer b.Shutdown()
	var got []Event
	b.Subscribe(func(ev Event) { got = append(got, ev) })

	e := newTestEntry("p1")
	assert.True(t, e.publish(b, ChunkEvent("p1", "", "a")))
	assert.True(t, e.publishFinal(b, CompleteEvent("p1", "", 0, "")))
	assert.False(t, e.publish(b, ChunkEvent("p1", "", "b")))
	assert.False(t, e.publishFinal(b, CompleteEvent("p1", "", 0, "")))
	assert.False(t, e.IsActive())
	assert.Len(t, got, 2)
}

// The registry agrees with a plain map model under any sequence of
// register, stop and remove operations.
func TestRegistry_MatchesModel(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		r := NewRegistry()
		model := map[string]bool{} // id -> active
		steps := rapid.IntRange(1, 60).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			id := fmt.Sprintf("proc_%d", rapid.IntRange(0, 5).Draw(t, "id"))
			switch rapid.IntRange(0, 2).Draw(t, "op") {
			case 0:
				err := r.Register(newTestEntry(id))
				if _, exists := model[id]; exists {
					require.ErrorIs(t, err, ErrDuplicateProcess)
				} else {
					require.NoError(t, err)
					model[id] = true
				}
			case 1:
				changed := r.MarkInactive(id)
				require.Equal(t, model[id], changed)
				if _, exists := model[id]; exists {
					model[id] = false
				}
			case 2:
				removed := r.Remove(id)
				_, exists := model[id]
				require.Equal(t, exists, removed != nil)
				delete(model, id)
			}

			var active []string
			for id, on := range model {
				if on {
					active = append(active, id)
				}
			}
			sort.Strings(active)
			got := r.ListActive()
			if len(active) == 0 {
				require.Empty(t, got)
			} else {
				require.Equal(t, active, got)
			}
			require.Equal(t, len(model), r.Len())
		}
	})
}
