// Package logging builds the structured loggers used by the CLI and the
// MCP server.
package logging

import (
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"
)

// New creates a structured logger writing to w at the given level.
// When w is a terminal, uses slog.TextHandler for human-readable output.
// Otherwise (pipes, files, MCP stdio sessions) uses slog.JSONHandler so
// the output stays machine-parseable.
//
// Callers scope the logger per archive via With():
//
//	logger := logging.New(os.Stderr, level).With("archive", name)
func New(w io.Writer, level slog.Leveler) *slog.Logger {
	options := &slog.HandlerOptions{Level: level}
	if isTerminal(w) {
		return slog.New(slog.NewTextHandler(w, options))
	}
	return slog.New(slog.NewJSONHandler(w, options))
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// LevelFromVerbosity maps a -v count onto a level: none keeps fallback,
// one is info, two or more is debug.
func LevelFromVerbosity(count int, fallback slog.Level) slog.Level {
	switch {
	case count <= 0:
		return fallback
	case count == 1:
		return min(fallback, slog.LevelInfo)
	default:
		return slog.LevelDebug
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
