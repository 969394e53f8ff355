package main

import (
	"io"
	"log/slog"
	"os"
	"time"
)

// NewLogger returns a JSON slog.Logger on stdout. At debug level records carry
// their source location.
func NewLogger(level slog.Level) *slog.Logger {
	return newLogger(os.Stdout, level)
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: level <= slog.LevelDebug,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			// durations read better as "12.5ms" than as nanosecond integers
			if a.Value.Kind() == slog.KindDuration {
				return slog.String(a.Key, a.Value.Duration().Round(10*time.Microsecond).String())
			}
			return a
		},
	})
	return slog.New(h)
}
