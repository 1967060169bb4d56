// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Glowline Contributors

// Package errutil bridges oops errors and structured logging.
package errutil

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/samber/oops"
)

// Code returns the oops code carried by err, or "" when err has none.
func Code(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	code := oopsErr.Code()
	if code == nil {
		return ""
	}
	if s, ok := code.(string); ok {
		return s
	}
	return fmt.Sprint(code)
}

// Log writes err at level. For oops errors the code and context are
// emitted as separate attributes so they can be queried; anything else
// is logged by its string form. Extra attrs are appended as given.
func Log(ctx context.Context, logger *slog.Logger, level slog.Level, msg string, err error, attrs ...any) {
	if logger == nil || err == nil {
		return
	}
	out := make([]any, 0, len(attrs)+6)
	out = append(out, attrs...)
	if oopsErr, ok := oops.AsOops(err); ok {
		out = append(out, "error", oopsErr.Error())
		if code := Code(err); code != "" {
			out = append(out, "code", code)
		}
		if octx := oopsErr.Context(); len(octx) > 0 {
			out = append(out, "context", octx)
		}
	} else {
		out = append(out, "error", err.Error())
	}
	logger.Log(ctx, level, msg, out...)
}

// LogError logs err at error level with a background context.
func LogError(logger *slog.Logger, msg string, err error) {
	Log(context.Background(), logger, slog.LevelError, msg, err)
}
