package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CCD_CONFIG", "")
	t.Setenv("CLAUDE_TRANSPORT", "")
	c, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "claude", c.CLI.Name)
	assert.Equal(t, 5*time.Second, c.CLI.StopGracePeriod)
	assert.Equal(t, 30*time.Millisecond, c.Reducer.ChunkDebounce)
	assert.Equal(t, filepath.Join(c.DataDir, "app", "claude-desktop", "runs.sqlite"), c.DatabasePath)
	assert.True(t, c.IsDevelopment())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("ENV", "production")
	t.Setenv("CLAUDE_TRANSPORT", "raw")
	t.Setenv("CCD_STOP_GRACE_PERIOD", "2s")

	c, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 9000, c.Port)
	assert.False(t, c.IsDevelopment())
	assert.Equal(t, "raw", c.CLI.Transport)
	assert.Equal(t, 2*time.Second, c.CLI.StopGracePeriod)
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "port: 4000\ncli:\n  transcript_layout: project\n  path: /opt/claude/bin/claude\nreducer:\n  chunk_debounce: 50ms\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 4000, c.Port)
	assert.Equal(t, "project", c.CLI.TranscriptLayout)
	assert.Equal(t, "/opt/claude/bin/claude", c.CLI.Path)
	assert.Equal(t, 50*time.Millisecond, c.Reducer.ChunkDebounce)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
