package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStructuredLogger(t *testing.T) {
	t.Run("creates JSON logger with proper configuration", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewStructuredLogger(&buf, slog.LevelInfo)

		logger.Info("test message",
			slog.String("component", "test"),
			slog.Int("count", 42))

		output := buf.String()

		assert.Contains(t, output, `"level":"INFO"`)
		assert.Contains(t, output, `"msg":"test message"`)
		assert.Contains(t, output, `"component":"test"`)
		assert.Contains(t, output, `"count":42`)
		assert.Contains(t, output, `"time":`)
	})

	t.Run("respects log level configuration", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewStructuredLogger(&buf, slog.LevelWarn)

		logger.Debug("debug message")
		logger.Info("info message")
		logger.Warn("warning message")

		output := buf.String()
		assert.NotContains(t, output, "debug message")
		assert.NotContains(t, output, "info message")
		assert.Contains(t, output, "warning message")
	})
}

func TestLogError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStructuredLogger(&buf, slog.LevelInfo)

	LogError(logger, "fetch failed", errors.New("connection refused"),
		slog.String("component", "realtime_cache"))

	output := buf.String()
	assert.Contains(t, output, `"msg":"fetch failed"`)
	assert.Contains(t, output, `"error":"connection refused"`)
	assert.Contains(t, output, `"component":"realtime_cache"`)

	// A nil logger is a no-op, not a panic.
	LogError(nil, "ignored", errors.New("ignored"))
}

func TestLogOperation(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStructuredLogger(&buf, slog.LevelInfo)

	LogOperation(logger, "schedule_refreshed",
		slog.Int("stops", 12),
		slog.Duration("duration", 0))

	output := buf.String()
	assert.Contains(t, output, `"msg":"schedule_refreshed"`)
	assert.Contains(t, output, `"stops":12`)
	// Zero durations are dropped.
	assert.NotContains(t, output, `"duration"`)
}

func TestLogHTTPRequest(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStructuredLogger(&buf, slog.LevelInfo)

	LogHTTPRequest(logger, "GET", "/api/display/stop-1", 200, 1.5,
		slog.String("component", "http_server"))

	output := buf.String()
	assert.Contains(t, output, `"msg":"http_request"`)
	assert.Contains(t, output, `"method":"GET"`)
	assert.Contains(t, output, `"path":"/api/display/stop-1"`)
	assert.Contains(t, output, `"status":200`)
	assert.Contains(t, output, `"duration_ms":1.5`)
}

func TestLoggerContext(t *testing.T) {
	logger := slog.Default()
	ctx := WithLogger(context.Background(), logger)

	assert.Equal(t, logger, FromContext(ctx))
	assert.NotNil(t, FromContext(context.Background()))
}
