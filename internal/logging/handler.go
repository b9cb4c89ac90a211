// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NFive Contributors

// Package logging provides structured logging with OpenTelemetry trace context.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel/trace"
)

// traceHandler stamps each record with the logger's namespace and the
// span of the calling context. Service metadata is attached to next once,
// at Setup, so it stays at the top level under groups.
type traceHandler struct {
	next      slog.Handler
	namespace string
}

func (h *traceHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *traceHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.namespace != "" {
		r.AddAttrs(slog.String("namespace", h.namespace))
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		r.AddAttrs(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	//nolint:wrapcheck // Handler interface requires unwrapped error passthrough
	return h.next.Handle(ctx, r)
}

func (h *traceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.derive(h.next.WithAttrs(attrs), h.namespace)
}

func (h *traceHandler) WithGroup(name string) slog.Handler {
	return h.derive(h.next.WithGroup(name), h.namespace)
}

func (h *traceHandler) derive(next slog.Handler, namespace string) *traceHandler {
	return &traceHandler{next: next, namespace: namespace}
}

// Options configures Setup.
type Options struct {
	Service string
	Version string
	// Format is "json" or "text"; anything else means json.
	Format string
	// Level controls the minimum level. The boot sequence adjusts it once the
	// core configuration is loaded. Nil means debug.
	Level *slog.LevelVar
	// Writer defaults to os.Stderr.
	Writer io.Writer
}

// Setup creates a configured slog.Logger.
func Setup(opts Options) *slog.Logger {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}

	var level slog.Leveler = slog.LevelDebug
	if opts.Level != nil {
		level = opts.Level
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	var baseHandler slog.Handler
	if opts.Format == "text" {
		baseHandler = slog.NewTextHandler(w, handlerOpts)
	} else {
		baseHandler = slog.NewJSONHandler(w, handlerOpts)
	}

	return slog.New(&traceHandler{next: baseHandler.WithAttrs([]slog.Attr{
		slog.String("service", opts.Service),
		slog.String("version", opts.Version),
	})})
}

// SetDefault sets up and installs the default logger.
func SetDefault(opts Options) *slog.Logger {
	logger := Setup(opts)
	slog.SetDefault(logger)
	return logger
}

// ParseLevel maps a configuration level name to a slog.Level.
// Accepts debug, info, warn, warning and error in any case.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "trace", "verbose":
		return slog.LevelDebug, nil
	case "", "info", "information":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error", "fatal":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, oops.Code("INVALID_LOG_LEVEL").With("level", s).
			Errorf("unknown log level %q", s)
	}
}

// Namespace returns logger tagged with a namespace attribute, the way every
// controller logger is scoped. A namespace replaces any namespace the
// logger already carries.
func Namespace(logger *slog.Logger, namespace string) *slog.Logger {
	if h, ok := logger.Handler().(*traceHandler); ok {
		return slog.New(h.derive(h.next, namespace))
	}
	return logger.With("namespace", namespace)
}
