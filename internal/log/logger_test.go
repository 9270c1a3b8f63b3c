package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out), "decode JSON log line")
	return out
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestNewJSONRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Level: "warn", Writer: &buf})

	l.Info("dropped")
	assert.Zero(t, buf.Len())

	l.Warn("kept")
	out := decodeLine(t, &buf)
	assert.Equal(t, "kept", out["msg"])
}

func TestNewTextFormat(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Format: "text", Writer: &buf})
	l.Info("hello", "k", "v")

	assert.True(t, strings.Contains(buf.String(), "msg=hello"), buf.String())
	assert.True(t, strings.Contains(buf.String(), "k=v"), buf.String())
}

func TestContextHelpers(t *testing.T) {
	var buf bytes.Buffer
	base := New(Options{Writer: &buf})

	WithComponent(base, "driver").Info("a")
	out := decodeLine(t, &buf)
	assert.Equal(t, "driver", out["component"])

	buf.Reset()
	WithUnit(base, "unit-1").Info("b")
	out = decodeLine(t, &buf)
	assert.Equal(t, "unit-1", out["unit_id"])

	buf.Reset()
	WithWorkspace(base, "automaton_x").Info("c")
	out = decodeLine(t, &buf)
	assert.Equal(t, "automaton_x", out["workspace"])
}

func TestHelpersTolerateNilLogger(t *testing.T) {
	assert.NotPanics(t, func() {
		WithComponent(nil, "x").Info("discarded")
		OrNop(nil).Error("discarded")
	})
}
