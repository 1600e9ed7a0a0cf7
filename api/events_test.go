package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/damien-schneider/claude-code-desktop-sub001/claude"
)

func newTestServer(t *testing.T) (*httptest.Server, *fakeBackend) {
	t.Helper()
	r, b := newTestRouter(t)
	srv := httptest.NewServer(r)
	// Cleanups run last-in first-out: closing the event bus ends the
	// streaming handlers before srv.Close waits for them.
	t.Cleanup(srv.Close)
	t.Cleanup(func() { b.sessions.events.Shutdown() })
	return srv, b
}

func waitForSubscribers(t *testing.T, b *fakeBackend, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return b.sessions.events.SubscriberCount() == n
	}, 2*time.Second, 5*time.Millisecond)
}

func TestEventsWebSocket_DeliversEnvelopes(t *testing.T) {
	srv, b := newTestServer(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + EventsWebSocketPath + "?processId=p1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	waitForSubscribers(t, b, 1)

	b.sessions.events.Publish(claude.ChunkEvent("p2", "s2", "not for this client"))
	b.sessions.events.Publish(claude.ChunkEvent("p1", "s1", "Hello"))
	b.sessions.events.Publish(claude.CompleteEvent("p1", "s1", 0, ""))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var first claude.Envelope
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "message", first.Event)
	assert.Equal(t, claude.EventChunk, first.Data.Type)
	assert.Equal(t, "p1", first.Data.ProcessID)
	assert.Equal(t, "Hello", first.Data.Text)

	var second claude.Envelope
	require.NoError(t, conn.ReadJSON(&second))
	assert.Equal(t, claude.EventComplete, second.Data.Type)
	assert.Equal(t, 0, second.Data.ExitCode())
}

func TestEventsWebSocket_UnsubscribesOnClose(t *testing.T) {
	srv, b := newTestServer(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + EventsWebSocketPath
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	waitForSubscribers(t, b, 1)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	conn.Close()

	waitForSubscribers(t, b, 0)
}

func TestEventsStream_SSE(t *testing.T) {
	srv, b := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+EventsStreamPath, nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, ": connected\n", line)

	b.sessions.events.Publish(claude.ErrorEvent("p1", "", claude.ErrorCodeSessionFileNotFound, "missing"))

	var event, data string
	for event == "" || data == "" {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimSuffix(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		}
	}
	assert.Equal(t, "message", event)

	var ev claude.Event
	require.NoError(t, json.Unmarshal([]byte(data), &ev))
	assert.Equal(t, claude.EventError, ev.Type)
	assert.Equal(t, claude.ErrorCodeSessionFileNotFound, ev.ErrorCode)
}
