package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevel_ToSlogLevel(t *testing.T) {
	testCases := []struct {
		level Level
		want  slog.Level
	}{
		{LevelDebug, slog.LevelDebug},
		{LevelInfo, slog.LevelInfo},
		{LevelWarn, slog.LevelWarn},
		{LevelError, slog.LevelError},
		{"DEBUG", slog.LevelDebug},
		{"verbose", slog.LevelInfo},
	}
	for _, tc := range testCases {
		t.Run(string(tc.level), func(t *testing.T) {
			assert.Equal(t, tc.want, tc.level.ToSlogLevel())
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := Config{}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, LevelInfo, cfg.Level)
	assert.Equal(t, FormatText, cfg.Format)

	cfg = Config{Level: "loud"}
	assert.Error(t, cfg.Validate())

	cfg = Config{Level: LevelWarn, Format: "xml"}
	assert.Error(t, cfg.Validate())
}

func TestNewWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(Config{Level: LevelInfo, Format: FormatJSON}, &buf)

	logger.Debug("hidden")
	logger.Info("shown", slog.Int("height", 700))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "shown", entry["msg"])
	assert.Equal(t, float64(700), entry["height"])
}

func TestLogger_SetLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(DefaultConfig(), &buf)
	derived := logger.With(slog.String("component", "desk"))

	derived.Debug("before")
	assert.Empty(t, buf.String())

	logger.SetLevel(LevelDebug)
	assert.Equal(t, slog.LevelDebug, logger.Level())
	derived.Debug("after")
	assert.Contains(t, buf.String(), "msg=after")
	assert.Contains(t, buf.String(), "component=desk")
}
