package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func restoreDefault(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel(" error "))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestSetup_Writer(t *testing.T) {
	restoreDefault(t)
	var buf bytes.Buffer
	closer := Setup("warn", "", &buf)
	defer closer.Close()

	slog.Info("hidden")
	slog.Warn("PAC reload failed", "source", "http://wpad.example/wpad.dat")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "PAC reload failed")
	assert.Contains(t, out, "source=http://wpad.example/wpad.dat")
}

func TestSetup_File(t *testing.T) {
	restoreDefault(t)
	path := filepath.Join(t.TempDir(), "pacselect.log")
	var fallback bytes.Buffer

	closer := Setup("info", path, &fallback)
	slog.Info("written to file")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")
	assert.Empty(t, fallback.String())
}

func TestSetup_BadFileFallsBack(t *testing.T) {
	restoreDefault(t)
	var fallback bytes.Buffer
	closer := Setup("info", filepath.Join(t.TempDir(), "missing", "dir", "x.log"), &fallback)
	defer closer.Close()

	slog.Info("still logged")
	assert.Contains(t, fallback.String(), "Failed to open configured log file")
	assert.Contains(t, fallback.String(), "still logged")
}
