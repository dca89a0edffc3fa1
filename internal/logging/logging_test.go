package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"DEBUG", slog.LevelDebug, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", 0, true},
	}
	for _, tc := range tests {
		got, err := ParseLevel(tc.in)
		if tc.wantErr {
			assert.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}
}

func TestNew_Console(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := New(&buf, Options{Level: "warn", Format: "json"})
	require.NoError(t, err)
	defer closer.Close()

	logger.Info("hidden")
	logger.Warn("shown", slog.String("network", "jbc"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "shown", rec["msg"])
	assert.Equal(t, "jbc", rec["network"])

	_, _, err = New(&buf, Options{Format: "xml"})
	assert.Error(t, err)
}

func TestNew_File(t *testing.T) {
	var console bytes.Buffer
	path := filepath.Join(t.TempDir(), "palmdeploy.log")

	logger, closer, err := New(&console, Options{File: path})
	require.NoError(t, err)

	logger.With(slog.String("run_id", "r1")).Info("contract deployed", slog.String("name", "PalmNFT"))
	require.NoError(t, closer.Close())

	assert.Contains(t, console.String(), "contract deployed")
	assert.Contains(t, console.String(), "run_id=r1")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var rec map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &rec))
	assert.Equal(t, "PalmNFT", rec["name"])
	assert.Equal(t, "r1", rec["run_id"])
}
