package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestDir points the process-wide sink at a temporary directory and
// restores the previous sink afterwards.
func setupTestDir(t *testing.T, level Level) string {
	t.Helper()

	dir := t.TempDir()

	sinkMu.Lock()
	orig := defaultSink
	defaultSink = nil
	sinkMu.Unlock()

	require.NoError(t, Configure(Options{Dir: dir, Level: level}))

	t.Cleanup(func() {
		_ = Close()
		sinkMu.Lock()
		defaultSink = orig
		sinkMu.Unlock()
	})
	return dir
}

func TestNewLoggerWritesToRotatedFile(t *testing.T) {
	dir := setupTestDir(t, LevelDebug)

	logger, err := NewLogger("test-component")
	require.NoError(t, err)
	assert.Equal(t, "test-component", logger.Component())
	assert.Equal(t, filepath.Join(dir, "scout.log"), logger.LogPath())

	logger.Infof("hello %d", 42)

	content, err := os.ReadFile(logger.LogPath())
	require.NoError(t, err)
	assert.Contains(t, string(content), "[test-component] [INFO] hello 42")
	assert.Contains(t, string(content), "["+GetRunID()[:8]+"]")
}

func TestLoggerFormatting(t *testing.T) {
	var buf bytes.Buffer
	logger := New("test", &buf, LevelDebug)

	logger.Debugf("Debug message")
	logger.Infof("Info message")
	logger.Warnf("Warning message")
	logger.Errorf("Error message")

	expectedPatterns := []string{
		"[test] [DEBUG] Debug message",
		"[test] [INFO] Info message",
		"[test] [WARN] Warning message",
		"[test] [ERROR] Error message",
	}
	for _, pattern := range expectedPatterns {
		assert.Contains(t, buf.String(), pattern)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New("filter", &buf, LevelWarn)

	logger.Debugf("dropped debug")
	logger.Infof("dropped info")
	logger.Warnf("kept warn")
	logger.Errorf("kept error")

	out := buf.String()
	assert.NotContains(t, out, "dropped")
	assert.Contains(t, out, "kept warn")
	assert.Contains(t, out, "kept error")
	assert.Equal(t, 2, strings.Count(out, "\n"))
}

func TestNamedSharesSink(t *testing.T) {
	var buf bytes.Buffer
	parent := New("browser", &buf, LevelInfo)
	child := parent.Named("pool")

	parent.Infof("from parent")
	child.Infof("from child")

	assert.Contains(t, buf.String(), "[browser] [INFO] from parent")
	assert.Contains(t, buf.String(), "[browser.pool] [INFO] from child")
}

func TestMultipleComponentsShareFile(t *testing.T) {
	setupTestDir(t, LevelInfo)

	logger1, err := NewLogger("component1")
	require.NoError(t, err)
	logger2, err := NewLogger("component2")
	require.NoError(t, err)

	assert.Equal(t, logger1.LogPath(), logger2.LogPath())

	logger1.Infof("Message from component1")
	logger2.Infof("Message from component2")

	content, err := os.ReadFile(logger1.LogPath())
	require.NoError(t, err)
	assert.Contains(t, string(content), "[component1]")
	assert.Contains(t, string(content), "[component2]")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{in: "debug", want: LevelDebug},
		{in: "INFO", want: LevelInfo},
		{in: "", want: LevelInfo},
		{in: "warning", want: LevelWarn},
		{in: "error", want: LevelError},
		{in: "loud", want: LevelInfo, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGetRunIDStable(t *testing.T) {
	id1 := GetRunID()
	id2 := GetRunID()
	assert.Equal(t, id1, id2)
	assert.NotEmpty(t, id1)
}

func TestCloseIsIdempotent(t *testing.T) {
	setupTestDir(t, LevelInfo)
	assert.NoError(t, Close())
	assert.NoError(t, Close())
}

func TestDiscard(t *testing.T) {
	logger := Discard()
	logger.Errorf("nothing to see")
}
