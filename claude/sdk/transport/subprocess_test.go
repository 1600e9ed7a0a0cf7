package transport

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeScript creates an executable shell script standing in for the CLI.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "claude")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func collect(t *testing.T, tr *Subprocess) []string {
	t.Helper()
	var out []string
	timeout := time.After(5 * time.Second)
	for {
		select {
		case rec, ok := <-tr.ReadMessages():
			if !ok {
				return out
			}
			out = append(out, string(rec))
		case <-timeout:
			t.Fatal("timeout waiting for transport to finish")
		}
	}
}

func TestArgs_FreshSession(t *testing.T) {
	tr, err := New(Options{CliPath: "claude", Cwd: "/tmp", SessionID: "abc", PermissionMode: "plan"})
	require.NoError(t, err)

	args := tr.Args()
	assert.Equal(t, []string{"--output-format", "stream-json", "--verbose"}, args[:3])
	assert.Contains(t, strings.Join(args, " "), "--permission-mode plan")
	assert.Contains(t, strings.Join(args, " "), "--session-id abc")
	assert.Equal(t, []string{"--input-format", "stream-json"}, args[len(args)-2:])
}

func TestArgs_ResumeWinsOverSessionID(t *testing.T) {
	tr, err := New(Options{Cwd: "/tmp", Resume: "abc", ForkSession: true, SessionID: "ignored"})
	require.NoError(t, err)

	joined := strings.Join(tr.Args(), " ")
	assert.Contains(t, joined, "--resume abc --fork-session")
	assert.NotContains(t, joined, "--session-id")
}

func TestArgs_OneShotPrompt(t *testing.T) {
	model := "sonnet"
	tr, err := New(Options{Cwd: "/tmp", Prompt: "hello", ExtraArgs: map[string]*string{"max-turns": &model, "strict": nil}})
	require.NoError(t, err)

	args := tr.Args()
	assert.Equal(t, []string{"--print", "--", "hello"}, args[len(args)-3:])
	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "--max-turns sonnet --strict")
	assert.NotContains(t, joined, "--input-format")
}

func TestSplitRecords(t *testing.T) {
	recs := splitRecords([]byte(`{"type":"a"}{"type":"b"}`))
	require.Len(t, recs, 2)
	assert.Equal(t, `{"type":"a"}`, string(recs[0]))

	recs = splitRecords([]byte("not json"))
	require.Len(t, recs, 1)
	assert.Equal(t, "not json", string(recs[0]))

	recs = splitRecords([]byte(`{"broken":`))
	require.Len(t, recs, 1)
	assert.Equal(t, `{"broken":`, string(recs[0]))
}

func TestSubprocess_StreamsRecordsAndReportsExitCode(t *testing.T) {
	script := writeScript(t, `
echo '{"type":"system","subtype":"init","session_id":"s1"}'
echo 'plain text line'
echo '{"type":"a"}{"type":"b"}'
echo 'something went wrong' >&2
exit 3`)

	tr, err := New(Options{CliPath: script, Cwd: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, tr.Connect(context.Background()))

	recs := collect(t, tr)
	require.Equal(t, []string{
		`{"type":"system","subtype":"init","session_id":"s1"}`,
		"plain text line",
		`{"type":"a"}`,
		`{"type":"b"}`,
	}, recs)

	var exitErr *ProcessExitError
	require.True(t, errors.As(tr.Err(), &exitErr))
	assert.Equal(t, 3, exitErr.Code)
	assert.Contains(t, exitErr.Stderr, "something went wrong")
	assert.Contains(t, tr.Err().Error(), "exited with code 3")

	select {
	case <-tr.Done():
	case <-time.After(time.Second):
		t.Fatal("Done not closed after exit")
	}
	assert.False(t, tr.IsConnected())
}

func TestSubprocess_CleanExitHasNoError(t *testing.T) {
	script := writeScript(t, `echo '{"type":"result","subtype":"success"}'`)

	tr, err := New(Options{CliPath: script, Cwd: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, tr.Connect(context.Background()))

	recs := collect(t, tr)
	assert.Len(t, recs, 1)
	assert.NoError(t, tr.Err())
}

func TestSubprocess_WriteEchoes(t *testing.T) {
	script := writeScript(t, `read line; echo "$line"`)

	tr, err := New(Options{CliPath: script, Cwd: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, tr.Connect(context.Background()))

	require.NoError(t, tr.Write(`{"type":"user"}`+"\n"))

	recs := collect(t, tr)
	assert.Equal(t, []string{`{"type":"user"}`}, recs)
}

func TestSubprocess_EnvIsPassedThrough(t *testing.T) {
	script := writeScript(t, `echo "$MARKER $CLAUDE_CODE_ENTRYPOINT"`)

	tr, err := New(Options{CliPath: script, Cwd: t.TempDir(), Env: []string{"MARKER=hello", "PATH=/usr/bin:/bin"}})
	require.NoError(t, err)
	require.NoError(t, tr.Connect(context.Background()))

	assert.Equal(t, []string{"hello sdk-go"}, collect(t, tr))
}

func TestSubprocess_CloseTerminatesWithoutError(t *testing.T) {
	script := writeScript(t, `exec sleep 30`)

	tr, err := New(Options{CliPath: script, Cwd: t.TempDir(), CloseTimeout: 200 * time.Millisecond})
	require.NoError(t, err)
	require.NoError(t, tr.Connect(context.Background()))

	start := time.Now()
	require.NoError(t, tr.Close())
	assert.Less(t, time.Since(start), 3*time.Second)

	<-tr.Done()
	assert.NoError(t, tr.Err())

	// Second close is a no-op
	require.NoError(t, tr.Close())
	assert.ErrorIs(t, tr.Write("x"), ErrConnectionClosed)
}

func TestSubprocess_WriteBeforeConnect(t *testing.T) {
	tr, err := New(Options{Cwd: t.TempDir()})
	require.NoError(t, err)
	assert.ErrorIs(t, tr.Write("x"), ErrNotConnected)
}

func TestSubprocess_ConnectMissingBinary(t *testing.T) {
	tr, err := New(Options{CliPath: filepath.Join(t.TempDir(), "missing"), Cwd: t.TempDir()})
	require.NoError(t, err)

	err = tr.Connect(context.Background())
	var connErr *CLIConnectionError
	require.True(t, errors.As(err, &connErr))
}
