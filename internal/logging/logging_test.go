package logging

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vectorAdmin/internal/config"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("nonsense"))
}

func TestNewHandlerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(config.LogConfig{Level: "info", Format: "json"}, &buf))

	logger.Debug("hidden")
	logger.Info("vector indexed", slog.String("vector_id", "vec_1"))

	out := buf.String()
	require.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"vector_id":"vec_1"`)
}
