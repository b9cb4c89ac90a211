// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NFive Contributors

// Package errutil logs and asserts on oops errors.
package errutil

import (
	"context"
	"log/slog"

	"github.com/samber/oops"
)

// Attrs returns structured log attributes for err. For oops errors these are
// the message, code and context; for other errors only the message.
func Attrs(err error) []any {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return []any{"error", err}
	}
	attrs := []any{"error", oopsErr.Error()}
	if code := oopsErr.Code(); code != nil && code != "" {
		attrs = append(attrs, "code", code)
	}
	if ctx := oopsErr.Context(); len(ctx) > 0 {
		attrs = append(attrs, "context", ctx)
	}
	return attrs
}

// LogError logs err at error level with its structured context.
func LogError(logger *slog.Logger, msg string, err error) {
	LogErrorLevel(logger, slog.LevelError, msg, err)
}

// LogErrorLevel logs err at level with its structured context.
func LogErrorLevel(logger *slog.Logger, level slog.Level, msg string, err error) {
	logger.Log(context.Background(), level, msg, Attrs(err)...)
}
