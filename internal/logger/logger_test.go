package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/autodebug/autodebug/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.LoggingConfig
		wantErr bool
	}{
		{
			name:    "valid json config to stdout",
			cfg:     config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
			wantErr: false,
		},
		{
			name:    "valid text config to stderr",
			cfg:     config.LoggingConfig{Level: "debug", Format: "text", Output: "stderr"},
			wantErr: false,
		},
		{
			name:    "auto format",
			cfg:     config.LoggingConfig{Level: "info", Format: "auto", Output: "stderr"},
			wantErr: false,
		},
		{
			name:    "invalid log level",
			cfg:     config.LoggingConfig{Level: "invalid", Format: "json", Output: "stdout"},
			wantErr: true,
		},
		{
			name:    "invalid log format",
			cfg:     config.LoggingConfig{Level: "info", Format: "invalid", Output: "stdout"},
			wantErr: true,
		},
		{
			name:    "empty output defaults to stderr",
			cfg:     config.LoggingConfig{Level: "info", Format: "json", Output: ""},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, logger)
			assert.NoError(t, logger.Close())
		})
	}
}

func TestNewDefaultLogger(t *testing.T) {
	logger, err := NewDefault()
	require.NoError(t, err)
	assert.Equal(t, LevelInfo, logger.GetLevel())
}

func TestAutoFormatOnNonTerminal(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter(config.LoggingConfig{Level: "info", Format: "auto"}, &buf)
	require.NoError(t, err)

	logger.Info("server listening", "path", "/tmp/autodebug-abc.sock")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), "non-terminal writers get json")
	assert.Equal(t, "server listening", entry["msg"])
	assert.Equal(t, "/tmp/autodebug-abc.sock", entry["path"])
}

func TestWithSharesLevel(t *testing.T) {
	var buf bytes.Buffer
	root, err := NewWithWriter(config.LoggingConfig{Level: "info", Format: "text"}, &buf)
	require.NoError(t, err)
	child := root.With("component", "ipc")

	child.Debug("hidden")
	assert.Empty(t, buf.String())

	require.NoError(t, root.SetLevelString("debug"))
	child.Debug("shown")
	assert.Contains(t, buf.String(), "shown")
	assert.Contains(t, buf.String(), "component=ipc")
	assert.True(t, child.Enabled(LevelDebug))

	assert.Error(t, root.SetLevelString("chatty"))
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "autodebug.log")
	logger, err := New(config.LoggingConfig{Level: "info", Format: "json", Output: path})
	require.NoError(t, err)

	logger.Warn("bind failed", "error", "address in use")
	require.NoError(t, logger.Close())
	require.NoError(t, logger.Close(), "second close is a no-op")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `"msg":"bind failed"`))
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  Level
		err   bool
	}{
		{"debug", LevelDebug, false},
		{"info", LevelInfo, false},
		{"warn", LevelWarn, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"trace", LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseLevel(tt.input)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGlobalLogger(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewWithWriter(config.LoggingConfig{Level: "info", Format: "text"}, &buf)
	require.NoError(t, err)

	prev := Global()
	SetGlobal(l)
	defer SetGlobal(prev)

	Info("hello", "k", "v")
	assert.Contains(t, buf.String(), "msg=hello")
	assert.Same(t, l, Global())
}
