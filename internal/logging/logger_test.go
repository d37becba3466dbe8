package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
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
		want    LogLevel
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warn", LevelWarn, false},
		{"warning", LevelWarn, false},
		{" error ", LevelError, false},
		{"trace", LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLogLevelString(t *testing.T) {
	assert.Equal(t, "DEBUG", LevelDebug.String())
	assert.Equal(t, "ERROR", LevelError.String())
	assert.Equal(t, "UNKNOWN", LogLevel(99).String())
}

func TestLoggerWritesStructuredJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(&LoggerConfig{Level: LevelDebug, Format: "json", Output: &buf})
	require.NoError(t, err)

	logger.WithComponent("server").
		With("route", "/api/share").
		Warn(context.Background(), errors.New("boom"), "request failed", "status", 500)

	var record map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "request failed", record["msg"])
	assert.Equal(t, "WARN", record["level"])
	assert.Equal(t, "server", record["component"])
	assert.Equal(t, "boom", record["error"])
	assert.Equal(t, "/api/share", record["route"])
	assert.Equal(t, float64(500), record["status"])
}

func TestLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(&LoggerConfig{Level: LevelWarn, Output: &buf})
	require.NoError(t, err)

	ctx := context.Background()
	logger.Debug(ctx, "hidden debug")
	logger.Info(ctx, "hidden info")
	logger.Error(ctx, nil, "visible error")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "visible error")
}

func TestLoggerFansOutToFile(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "tstlplay.log")

	logger, err := NewLogger(&LoggerConfig{Level: LevelInfo, Output: &buf, File: path})
	require.NoError(t, err)

	logger.Info(context.Background(), "server started", "port", 8080)
	require.NoError(t, logger.Close())

	assert.Contains(t, buf.String(), "server started")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"server started"`)
}

func TestRequestIDContext(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(&LoggerConfig{Level: LevelInfo, Format: "json", Output: &buf})
	require.NoError(t, err)

	ctx := ContextWithRequestID(context.Background(), "req-123")
	assert.Equal(t, "req-123", RequestID(ctx))
	assert.Empty(t, RequestID(context.Background()))

	FromContext(ctx, logger).Info(ctx, "tagged")
	assert.Contains(t, buf.String(), `"request_id":"req-123"`)
}

func TestNopLogger(t *testing.T) {
	logger := NewNopLogger()
	assert.NotPanics(t, func() {
		logger.Error(context.Background(), errors.New("x"), "discarded")
	})
}

func TestSanitizeForLog(t *testing.T) {
	assert.Equal(t, "print(1)", SanitizeForLog("print(1)"))

	long := strings.Repeat("a", 500)
	got := SanitizeForLog(long)
	assert.True(t, strings.HasSuffix(got, "...[TRUNCATED]"))
	assert.Less(t, len(got), len(long))
}
