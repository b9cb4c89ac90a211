// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NFive Contributors

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func decodeEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), "failed to parse JSON: %s", buf.String())
	return entry
}

func TestSetup_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup(Options{Service: "nfive", Version: "1.0.0", Format: "json", Writer: &buf})

	logger.Info("test message")

	entry := decodeEntry(t, &buf)
	assert.Equal(t, "test message", entry["msg"])
	assert.Equal(t, "nfive", entry["service"])
	assert.Equal(t, "1.0.0", entry["version"])
	assert.Contains(t, entry, "time")
	assert.Contains(t, entry, "level")
}

func TestSetup_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup(Options{Service: "nfive", Version: "1.0.0", Format: "text", Writer: &buf})

	logger.Info("test message")

	output := buf.String()
	assert.Contains(t, output, "test message")
	assert.Contains(t, output, "nfive")
}

func TestSetup_LevelVarAdjustsAfterCreation(t *testing.T) {
	var buf bytes.Buffer
	level := new(slog.LevelVar)
	level.Set(slog.LevelInfo)
	logger := Setup(Options{Service: "nfive", Writer: &buf, Level: level})

	logger.Debug("hidden")
	assert.Empty(t, buf.String())

	level.Set(slog.LevelDebug)
	logger.Debug("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestHandler_TraceContext(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup(Options{Service: "nfive", Version: "1.0.0", Writer: &buf})

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	spanCtx := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  spanID,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), spanCtx)

	logger.InfoContext(ctx, "traced message")

	entry := decodeEntry(t, &buf)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", entry["trace_id"])
	assert.Equal(t, "00f067aa0ba902b7", entry["span_id"])
}

func TestHandler_NoTraceContext(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup(Options{Service: "nfive", Writer: &buf})

	logger.Info("no trace message")

	entry := decodeEntry(t, &buf)
	assert.NotContains(t, entry, "trace_id")
	assert.NotContains(t, entry, "span_id")
}

func TestHandler_WithAttrsAndGroupKeepMetadata(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup(Options{Service: "nfive", Version: "2.0.0", Writer: &buf})

	logger.With("component", "boot").WithGroup("plugin").Info("grouped", "name", "acme/economy")

	entry := decodeEntry(t, &buf)
	assert.Equal(t, "boot", entry["component"])
	group, ok := entry["plugin"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "acme/economy", group["name"])
	assert.Equal(t, "nfive", entry["service"])
	assert.Equal(t, "2.0.0", entry["version"])
	assert.NotContains(t, group, "service")
}

func TestNamespace(t *testing.T) {
	var buf bytes.Buffer
	logger := Namespace(Setup(Options{Service: "nfive", Writer: &buf}), "Plugin|acme/economy")

	logger.Info("hello")

	entry := decodeEntry(t, &buf)
	assert.Equal(t, "Plugin|acme/economy", entry["namespace"])
	assert.Equal(t, "nfive", entry["service"])
}

func TestNamespace_ReplacesOuterNamespace(t *testing.T) {
	var buf bytes.Buffer
	base := Setup(Options{Service: "nfive", Format: "text", Writer: &buf})
	logger := Namespace(Namespace(base, "Reload").With("attempt", 1), "Plugin|acme/economy")

	logger.Info("hello")

	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, "namespace="))
	assert.Contains(t, out, "namespace=Plugin|acme/economy")
	assert.Contains(t, out, "attempt=1")
}

func TestNamespace_ForeignHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := Namespace(slog.New(slog.NewJSONHandler(&buf, nil)), "Reload")

	logger.Info("hello")

	entry := decodeEntry(t, &buf)
	assert.Equal(t, "Reload", entry["namespace"])
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: "Verbose", want: slog.LevelDebug},
		{in: "", want: slog.LevelInfo},
		{in: "INFO", want: slog.LevelInfo},
		{in: "warning", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "loud", want: slog.LevelInfo, wantErr: true},
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
