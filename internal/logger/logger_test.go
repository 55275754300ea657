package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"trafficmonitor/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_WritesLevelFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	l, err := NewLogger(&config.Config{LogDirectory: dir})
	require.NoError(t, err)
	defer l.Close()

	l.Info("stream %d opened", 7)
	l.Warning("queue at %d%%", 90)
	l.Error("store failed: %v", "disk full")

	info, err := os.ReadFile(filepath.Join(dir, InfoFile))
	require.NoError(t, err)
	assert.Contains(t, string(info), "stream 7 opened")
	assert.Contains(t, string(info), "logger_test.go", "caller file should be reported")

	warning, err := os.ReadFile(filepath.Join(dir, WarningFile))
	require.NoError(t, err)
	assert.Contains(t, string(warning), "queue at 90%")
	assert.NotContains(t, string(warning), "stream 7 opened")

	errLog, err := os.ReadFile(filepath.Join(dir, ErrorFile))
	require.NoError(t, err)
	assert.Contains(t, string(errLog), "store failed: disk full")
}

func TestCleanLogs(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLogger(&config.Config{LogDirectory: dir})
	require.NoError(t, err)
	defer l.Close()

	l.Error("something broke")
	require.NoError(t, l.CleanLogs(ErrorFile))

	data, err := os.ReadFile(filepath.Join(dir, ErrorFile))
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestNewWriterLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger(&buf)

	l.Debug("frame %d", 1)
	l.Info("ready")

	assert.Contains(t, buf.String(), "DEBUG")
	assert.Contains(t, buf.String(), "frame 1")
	assert.Contains(t, buf.String(), "ready")
	assert.NoError(t, l.CleanLogs(InfoFile))
	assert.NoError(t, l.Close())
}
