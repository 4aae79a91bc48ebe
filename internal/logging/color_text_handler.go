// Package logging sets up the daemon's diagnostic logger (distinct from
// the operator-facing eventlog.Logger, which carries only lifecycle
// lines per spec.md §6). Adapted from the teacher's
// internal/logger/color_text_handler.go.
package logging

import (
	"context"
	"io"
	"log/slog"
)

// ColorTextHandler wraps slog.TextHandler, prefixing the level with an
// ANSI color code. Color is opt-in via NewColorTextHandler's enable
// flag so callers can disable it when the output isn't a terminal.
type ColorTextHandler struct {
	*slog.TextHandler
	enabled bool
}

func NewColorTextHandler(w io.Writer, opts *slog.HandlerOptions, enabled bool) *ColorTextHandler {
	return &ColorTextHandler{
		TextHandler: slog.NewTextHandler(w, opts),
		enabled:     enabled,
	}
}

func (h *ColorTextHandler) Handle(ctx context.Context, r slog.Record) error {
	if !h.enabled {
		return h.TextHandler.Handle(ctx, r)
	}

	var colorCode string
	switch r.Level {
	case slog.LevelDebug:
		colorCode = "\033[36m"
	case slog.LevelInfo:
		colorCode = "\033[32m"
	case slog.LevelWarn:
		colorCode = "\033[33m"
	case slog.LevelError:
		colorCode = "\033[31m"
	default:
		colorCode = "\033[0m"
	}

	originalMsg := r.Message
	r.Message = colorCode + r.Level.String() + "\033[0m  " + originalMsg
	return h.TextHandler.Handle(ctx, r)
}
