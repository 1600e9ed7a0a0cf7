package claude

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/damien-schneider/claude-code-desktop-sub001/claude/sdk"
)

func parse(t *testing.T, line string) sdk.Message {
	t.Helper()
	msg, err := sdk.ParseMessage([]byte(line))
	require.NoError(t, err)
	return msg
}

func TestEventFromMessage_Result(t *testing.T) {
	ev, ok := eventFromMessage("p1", "s1", parse(t, successLine))
	require.True(t, ok)
	assert.Equal(t, EventResult, ev.Type)
	assert.Equal(t, "success", ev.Subtype)
	assert.False(t, ev.IsError)
	require.NotNil(t, ev.CostUSD)
	assert.InDelta(t, 0.01, *ev.CostUSD, 1e-9)
	assert.Equal(t, 1, ev.NumTurns)
	assert.JSONEq(t, successLine, string(ev.Payload))
}

func TestEventFromMessage_Init(t *testing.T) {
	ev, ok := eventFromMessage("p1", "s1", parse(t, fmt.Sprintf(initLine, "s1")))
	require.True(t, ok)
	assert.True(t, ev.IsInit())
	assert.False(t, ev.IsTerminal())
	assert.Equal(t, -1, ev.ExitCode())
}

func TestEventFromMessage_SkipsUnknown(t *testing.T) {
	_, ok := eventFromMessage("p1", "s1", parse(t, `{"type":"keep_alive"}`))
	assert.False(t, ok)
}

func TestEvent_EnvelopeShape(t *testing.T) {
	data, err := json.Marshal(CompleteEvent("p1", "s1", 0, "").Envelope())
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "message", decoded["event"])
	inner := decoded["data"].(map[string]any)
	assert.Equal(t, "complete", inner["type"])
	assert.Equal(t, "p1", inner["processId"])
	assert.EqualValues(t, 0, inner["code"])
}

func TestIsBenignExitAfterResult(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		result bool
		want   bool
	}{
		{"typed code 1 after result", &sdk.ProcessExitError{Code: 1}, true, true},
		{"typed code 1 without result", &sdk.ProcessExitError{Code: 1}, false, false},
		{"typed code 10", &sdk.ProcessExitError{Code: 10}, true, false},
		{"signalled", &sdk.ProcessExitError{Code: 1, Signal: "terminated"}, true, false},
		{"wrapped text", errors.New("read: Claude Code process exited with code 1"), true, true},
		{"text code 12", errors.New("Claude Code process exited with code 12"), true, false},
		{"nil", nil, true, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, isBenignExitAfterResult(tc.err, tc.result))
		})
	}
}
