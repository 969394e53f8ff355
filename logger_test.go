package main

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestLoggerRendersDurations(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, slog.LevelInfo).Info("match", "duration", 12500*time.Microsecond)
	if !strings.Contains(buf.String(), `"duration":"12.5ms"`) {
		t.Fatalf("duration not rendered: %s", buf.String())
	}
	if strings.Contains(buf.String(), `"source"`) {
		t.Fatalf("source should be omitted at info level: %s", buf.String())
	}
}

func TestLoggerDebugAddsSource(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(&buf, slog.LevelDebug)
	l.Debug("state")
	if !strings.Contains(buf.String(), `"source"`) {
		t.Fatalf("debug records should carry source: %s", buf.String())
	}
}
