package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, parseLogLevel("DEBUG"))
	assert.Equal(t, zerolog.WarnLevel, parseLogLevel("warning"))
	assert.Equal(t, zerolog.InfoLevel, parseLogLevel("bogus"))
}

func TestProcess_TagsProcessAndSession(t *testing.T) {
	Setup(false, "debug")
	var buf bytes.Buffer
	SetOutput(&buf)
	defer Setup(true, "info")

	l := Process("proc_1", "sess_1")
	l.Info().Msg("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "proc_1", line["processId"])
	assert.Equal(t, "sess_1", line["sessionId"])
	assert.Equal(t, "hello", line["message"])
}

func TestProcess_OmitsEmptySession(t *testing.T) {
	Setup(false, "info")
	var buf bytes.Buffer
	SetOutput(&buf)
	defer Setup(true, "info")

	l := Process("proc_2", "")
	l.Info().Msg("x")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	_, ok := line["sessionId"]
	assert.False(t, ok)
}
