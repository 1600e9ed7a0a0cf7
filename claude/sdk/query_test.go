package sdk

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/damien-schneider/claude-code-desktop-sub001/claude/sdk/transport"
)

// fakeTransport plays the CLI side of the protocol in memory.
type fakeTransport struct {
	mu        sync.Mutex
	written   []string
	out       chan []byte
	done      chan struct{}
	closeOnce sync.Once
	err       error

	// onWrite, when set, may answer a line written by the client
	onWrite func(f *fakeTransport, line string)
}

var _ transport.Transport = (*fakeTransport)(nil)

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		out:  make(chan []byte, 64),
		done: make(chan struct{}),
	}
}

func (f *fakeTransport) Connect(context.Context) error { return nil }

func (f *fakeTransport) Write(data string) error {
	f.mu.Lock()
	f.written = append(f.written, data)
	hook := f.onWrite
	f.mu.Unlock()
	if hook != nil {
		hook(f, data)
	}
	return nil
}

func (f *fakeTransport) emit(line string) { f.out <- []byte(line) }

func (f *fakeTransport) ReadMessages() <-chan []byte { return f.out }
func (f *fakeTransport) Err() error                  { return f.err }
func (f *fakeTransport) Done() <-chan struct{}       { return f.done }
func (f *fakeTransport) Signal(os.Signal) error      { return nil }
func (f *fakeTransport) EndInput() error             { return nil }
func (f *fakeTransport) IsConnected() bool           { return true }
func (f *fakeTransport) SignalShutdown()             {}

func (f *fakeTransport) Close() error {
	f.closeOnce.Do(func() {
		close(f.out)
		close(f.done)
	})
	return nil
}

func (f *fakeTransport) lines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.written...)
}

// answerControl replies success to every control request it sees.
func answerControl(f *fakeTransport, line string) {
	var req struct {
		Type      string `json:"type"`
		RequestID string `json:"request_id"`
	}
	if json.Unmarshal([]byte(line), &req) != nil || req.Type != "control_request" {
		return
	}
	f.emit(`{"type":"control_response","response":{"subtype":"success","request_id":"` + req.RequestID + `","response":{}}}`)
}

func nextMessage(t *testing.T, ch <-chan Message) Message {
	t.Helper()
	select {
	case msg, ok := <-ch:
		require.True(t, ok, "message channel closed")
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func TestQuery_ForwardsMessagesAndLearnsSessionID(t *testing.T) {
	ft := newFakeTransport()
	q := NewQuery(ft)
	q.Start(context.Background())
	defer q.Close()

	ft.emit(`{"type":"system","subtype":"init","session_id":"sess-1"}`)
	ft.emit(`not json at all`)
	ft.emit(`{"type":"assistant","message":{"role":"assistant","content":[{"type":"text","text":"hi"}]}}`)

	first := nextMessage(t, q.Messages())
	assert.Equal(t, MessageTypeSystem, first.GetType())
	second := nextMessage(t, q.Messages())
	assert.Equal(t, MessageTypeAssistant, second.GetType())

	assert.Equal(t, "sess-1", q.SessionID())

	require.NoError(t, q.SendUserMessage("hello"))
	lines := ft.lines()
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"session_id":"sess-1"`)
	assert.Contains(t, lines[0], `"content":"hello"`)
}

func TestQuery_InterruptRoundTrip(t *testing.T) {
	ft := newFakeTransport()
	ft.onWrite = answerControl
	q := NewQuery(ft)
	q.Start(context.Background())
	defer q.Close()

	require.NoError(t, q.Interrupt(context.Background()))

	lines := ft.lines()
	require.Len(t, lines, 1)
	var sent struct {
		Type    string         `json:"type"`
		Request map[string]any `json:"request"`
	}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &sent))
	assert.Equal(t, "control_request", sent.Type)
	assert.Equal(t, "interrupt", sent.Request["subtype"])
}

func TestQuery_ControlErrorResponse(t *testing.T) {
	ft := newFakeTransport()
	ft.onWrite = func(f *fakeTransport, line string) {
		var req struct {
			RequestID string `json:"request_id"`
		}
		_ = json.Unmarshal([]byte(line), &req)
		f.emit(`{"type":"control_response","response":{"subtype":"error","request_id":"` + req.RequestID + `","error":"no turn running"}}`)
	}
	q := NewQuery(ft)
	q.Start(context.Background())
	defer q.Close()

	err := q.SetPermissionMode(context.Background(), PermissionModePlan)
	var ctrlErr *ControlRequestError
	require.ErrorAs(t, err, &ctrlErr)
	assert.Equal(t, "set_permission_mode", ctrlErr.Subtype)
	assert.Equal(t, "no turn running", ctrlErr.Message)
}

func TestQuery_PendingRequestFailsWhenStreamEnds(t *testing.T) {
	ft := newFakeTransport()
	ft.onWrite = func(f *fakeTransport, line string) {
		// CLI dies instead of answering
		go f.Close()
	}
	q := NewQuery(ft)
	q.Start(context.Background())

	err := q.Interrupt(context.Background())
	var ctrlErr *ControlRequestError
	require.ErrorAs(t, err, &ctrlErr)
	assert.Contains(t, ctrlErr.Message, ErrConnectionClosed.Error())

	_, ok := <-q.Messages()
	assert.False(t, ok)
}

func TestQuery_RejectsControlRequestsFromCLI(t *testing.T) {
	ft := newFakeTransport()
	q := NewQuery(ft)
	q.Start(context.Background())
	defer q.Close()

	ft.emit(`{"type":"control_request","request_id":"cli-7","request":{"subtype":"can_use_tool","tool_name":"Bash"}}`)

	require.Eventually(t, func() bool { return len(ft.lines()) == 1 }, 2*time.Second, 10*time.Millisecond)

	var resp ControlResponse
	require.NoError(t, json.Unmarshal([]byte(ft.lines()[0]), &resp))
	assert.Equal(t, "cli-7", resp.Response.RequestID)
	assert.Equal(t, "error", resp.Response.Subtype)
}

func TestClient_ConnectInitializesAndCloses(t *testing.T) {
	ft := newFakeTransport()
	ft.onWrite = answerControl
	c := NewClientWithTransport(ClientOptions{InitializeTimeout: time.Second}, ft)

	require.NoError(t, c.Connect(context.Background()))
	assert.ErrorIs(t, c.Connect(context.Background()), ErrAlreadyConnected)
	assert.Contains(t, ft.lines()[0], `"subtype":"initialize"`)

	require.NoError(t, c.SendMessage("hi"))
	require.NoError(t, c.Interrupt(context.Background()))

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.ErrorIs(t, c.SendMessage("again"), ErrConnectionClosed)
}

func TestClient_SendBeforeConnect(t *testing.T) {
	c := NewClientWithTransport(ClientOptions{}, newFakeTransport())
	assert.ErrorIs(t, c.SendMessage("hi"), ErrNotConnected)
	assert.Nil(t, c.Messages())
}
