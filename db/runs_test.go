package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/damien-schneider/claude-code-desktop-sub001/claude"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	d, err := Open(Config{Path: filepath.Join(t.TempDir(), "nested", "runs.sqlite")})
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func TestOpen_AppliesMigrationsOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.sqlite")

	first, err := Open(Config{Path: path})
	require.NoError(t, err)
	version, err := first.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, 2, version)
	require.NoError(t, first.Close())

	second, err := Open(Config{Path: path})
	require.NoError(t, err)
	defer second.Close()
	version, err = second.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, 2, version)
}

func TestOpen_RejectsEmptyPath(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
}

func TestRunStore_StartAndEnd(t *testing.T) {
	ctx := context.Background()
	store := NewRunStore(openTestDB(t))
	started := time.Now().Add(-time.Minute).Truncate(time.Millisecond)

	require.NoError(t, store.RecordStart(ctx, claude.RunStart{
		ProcessID:   "proc_1_aaaaaaaa",
		ProjectPath: "/proj",
		Transport:   "sdk",
		Resumed:     true,
		StartedAt:   started,
	}))

	run, err := store.GetRun(ctx, "proc_1_aaaaaaaa")
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, claude.RunRunning, run.Status)
	assert.True(t, run.Resumed)
	assert.True(t, started.Equal(run.StartedAt))
	assert.Nil(t, run.EndedAt)

	code := 0
	cost := 0.25
	require.NoError(t, store.RecordEnd(ctx, claude.RunEnd{
		ProcessID: "proc_1_aaaaaaaa",
		SessionID: "learned-session",
		Status:    claude.RunCompleted,
		ExitCode:  &code,
		CostUSD:   &cost,
		EndedAt:   time.Now(),
	}))

	run, err = store.GetRun(ctx, "proc_1_aaaaaaaa")
	require.NoError(t, err)
	assert.Equal(t, claude.RunCompleted, run.Status)
	assert.Equal(t, "learned-session", run.SessionID)
	require.NotNil(t, run.ExitCode)
	assert.Equal(t, 0, *run.ExitCode)
	require.NotNil(t, run.CostUSD)
	assert.InDelta(t, 0.25, *run.CostUSD, 1e-9)
	assert.NotNil(t, run.EndedAt)

	// A run ends once
	err = store.RecordEnd(ctx, claude.RunEnd{ProcessID: "proc_1_aaaaaaaa", Status: claude.RunStopped, EndedAt: time.Now()})
	assert.Error(t, err)
}

func TestRunStore_GetUnknown(t *testing.T) {
	run, err := NewRunStore(openTestDB(t)).GetRun(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, run)
}

func TestRunStore_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := NewRunStore(openTestDB(t))
	base := time.Now()

	for i, id := range []string{"proc_a", "proc_b", "proc_c"} {
		require.NoError(t, store.RecordStart(ctx, claude.RunStart{
			ProcessID:   id,
			ProjectPath: "/proj",
			Transport:   "raw",
			StartedAt:   base.Add(time.Duration(i) * time.Second),
		}))
	}

	runs, err := store.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "proc_c", runs[0].ProcessID)
	assert.Equal(t, "proc_b", runs[1].ProcessID)

	empty, err := NewRunStore(openTestDB(t)).ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestRunStore_MarkInterrupted(t *testing.T) {
	ctx := context.Background()
	store := NewRunStore(openTestDB(t))
	require.NoError(t, store.RecordStart(ctx, claude.RunStart{ProcessID: "proc_x", ProjectPath: "/p", Transport: "sdk", StartedAt: time.Now()}))

	n, err := store.MarkInterrupted(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	run, err := store.GetRun(ctx, "proc_x")
	require.NoError(t, err)
	assert.Equal(t, claude.RunFailed, run.Status)
	assert.NotEmpty(t, run.Error)
}
