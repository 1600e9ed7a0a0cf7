package sdk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMessage_SystemInit(t *testing.T) {
	line := `{"type":"system","subtype":"init","session_id":"abc123","cwd":"/proj","model":"claude-sonnet","tools":["Bash","Read"]}`

	msg, err := ParseMessage([]byte(line))
	require.NoError(t, err)

	sm, ok := msg.(SystemMessage)
	require.True(t, ok)
	assert.True(t, sm.IsInit())
	assert.Equal(t, "abc123", sm.SessionID)
	assert.Equal(t, "/proj", sm.Cwd)
	assert.Equal(t, []string{"Bash", "Read"}, sm.Tools)
	assert.Equal(t, "init", sm.Data["subtype"])
	assert.JSONEq(t, line, string(sm.Raw()))
}

func TestParseMessage_AssistantContentBlocks(t *testing.T) {
	line := `{"type":"assistant","session_id":"s1","message":{"role":"assistant","model":"m","content":[
		{"type":"thinking","thinking":"hmm","signature":"sig"},
		{"type":"text","text":"Hello"},
		{"type":"tool_use","id":"t1","name":"Bash","input":{"command":"ls"}},
		{"type":"text","text":"World"}]}}`

	msg, err := ParseMessage([]byte(line))
	require.NoError(t, err)

	am, ok := msg.(AssistantMessage)
	require.True(t, ok)
	assert.Equal(t, "s1", am.GetSessionID())
	require.Len(t, am.Message.Content, 4)
	assert.Equal(t, "Hello\nWorld", GetTextContent(am))

	uses := GetToolUses(am)
	require.Len(t, uses, 1)
	assert.Equal(t, "Bash", uses[0].Name)
	assert.Equal(t, "ls", uses[0].Input["command"])
}

func TestParseMessage_Result(t *testing.T) {
	line := `{"type":"result","subtype":"success","is_error":false,"duration_ms":1200,"num_turns":2,"session_id":"s1","total_cost_usd":0.0123,"usage":{"input_tokens":10},"result":"done"}`

	msg, err := ParseMessage([]byte(line))
	require.NoError(t, err)

	rm, ok := msg.(ResultMessage)
	require.True(t, ok)
	assert.True(t, rm.Succeeded())
	assert.Equal(t, 1200, rm.DurationMs)
	assert.Equal(t, 2, rm.NumTurns)
	require.NotNil(t, rm.TotalCostUSD)
	assert.InDelta(t, 0.0123, *rm.TotalCostUSD, 1e-9)
	assert.Equal(t, "done", rm.Result)
	assert.Equal(t, "$0.0123", FormatCost(rm.TotalCostUSD))
}

func TestResultMessage_Succeeded(t *testing.T) {
	assert.True(t, ResultMessage{Subtype: "success"}.Succeeded())
	assert.False(t, ResultMessage{Subtype: "success", IsError: true}.Succeeded())
	assert.False(t, ResultMessage{Subtype: "error_max_turns"}.Succeeded())
}

func TestParseMessage_UnknownTypePassesThrough(t *testing.T) {
	line := `{"type":"control_request","request_id":"r1","request":{"subtype":"can_use_tool"}}`

	msg, err := ParseMessage([]byte(line))
	require.NoError(t, err)

	raw, ok := msg.(RawMessage)
	require.True(t, ok)
	assert.Equal(t, MessageTypeControlRequest, raw.GetType())
	assert.Equal(t, line, string(raw.Raw()))
}

func TestParseMessage_Errors(t *testing.T) {
	for name, input := range map[string]string{
		"empty":   "   ",
		"notJSON": "Loading configuration...",
		"noType":  `{"subtype":"init"}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseMessage([]byte(input))
			var parseErr *MessageParseError
			assert.ErrorAs(t, err, &parseErr)
		})
	}
}

func TestTextDelta(t *testing.T) {
	msg, err := ParseMessage([]byte(`{"type":"stream_event","session_id":"s1","event":{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hel"}}}`))
	require.NoError(t, err)
	text, ok := TextDelta(msg.(StreamEvent))
	assert.True(t, ok)
	assert.Equal(t, "Hel", text)

	msg, err = ParseMessage([]byte(`{"type":"stream_event","event":{"type":"content_block_delta","delta":{"type":"input_json_delta","partial_json":"{"}}}`))
	require.NoError(t, err)
	_, ok = TextDelta(msg.(StreamEvent))
	assert.False(t, ok)

	msg, err = ParseMessage([]byte(`{"type":"stream_event","event":{"type":"message_start"}}`))
	require.NoError(t, err)
	_, ok = TextDelta(msg.(StreamEvent))
	assert.False(t, ok)
}

func TestEncodeUserMessage(t *testing.T) {
	line, err := EncodeUserMessage("hi \"there\"", "")
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"type":"user","message":{"role":"user","content":"hi \"there\""},"parent_tool_use_id":null,"session_id":"default"}`,
		line[:len(line)-1])
	assert.Equal(t, byte('\n'), line[len(line)-1])
}

func TestPermissionMode_Valid(t *testing.T) {
	for _, m := range AllPermissionModes() {
		assert.True(t, m.Valid(), m)
	}
	assert.True(t, PermissionMode("").Valid())
	assert.False(t, PermissionMode("yolo").Valid())
}
