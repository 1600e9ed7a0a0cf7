package sdk

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/damien-schneider/claude-code-desktop-sub001/claude/sdk/transport"
)

func fakeCLI(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "claude")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func TestQueryOnce_ReturnsResult(t *testing.T) {
	cli := fakeCLI(t, `
echo '{"type":"system","subtype":"init","session_id":"one-shot"}'
echo '{"type":"assistant","message":{"role":"assistant","content":[{"type":"text","text":"4"}]}}'
echo '{"type":"result","subtype":"success","is_error":false,"session_id":"one-shot","result":"4","total_cost_usd":0.001}'
`)

	var seen []MessageType
	result, err := QueryOnce(context.Background(), "What is 2+2?",
		transport.Options{CliPath: cli, Cwd: t.TempDir()},
		func(m Message) { seen = append(seen, m.GetType()) })
	require.NoError(t, err)

	assert.Equal(t, "4", result.Result)
	assert.Equal(t, "one-shot", result.SessionID)
	assert.Equal(t, []MessageType{MessageTypeSystem, MessageTypeAssistant, MessageTypeResult}, seen)
}

func TestQueryOnce_ExitWithoutResult(t *testing.T) {
	cli := fakeCLI(t, `echo "boom" >&2; exit 2`)

	_, err := QueryOnce(context.Background(), "hi", transport.Options{CliPath: cli, Cwd: t.TempDir()}, nil)
	var exitErr *ProcessExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 2, exitErr.Code)
	assert.Contains(t, exitErr.Stderr, "boom")
}

func TestQueryOnce_CleanExitWithoutResult(t *testing.T) {
	cli := fakeCLI(t, `echo '{"type":"system","subtype":"init","session_id":"x"}'`)

	_, err := QueryOnce(context.Background(), "hi", transport.Options{CliPath: cli, Cwd: t.TempDir()}, nil)
	assert.ErrorIs(t, err, ErrNoResult)
}

func TestQueryOnce_EmptyPrompt(t *testing.T) {
	_, err := QueryOnce(context.Background(), "  ", transport.Options{CliPath: "/nonexistent"}, nil)
	assert.Error(t, err)
}
