package app

import (
	"io"
	"log/slog"
	"os"
)

// NewLogger returns a configured slog.Logger writing to stdout.
func NewLogger(format string) *slog.Logger {
	return NewLoggerTo(os.Stdout, format)
}

// NewLoggerTo is NewLogger writing to w.
func NewLoggerTo(w io.Writer, format string) *slog.Logger {
	opts := &slog.HandlerOptions{AddSource: true}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
