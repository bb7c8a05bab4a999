package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestHandlerPlainLine(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewHandler(&buf, &Options{Level: slog.LevelDebug}))

	log.Info("Message delivered", "id", "m1", "attempt", 2)

	line := buf.String()
	for _, want := range []string{" INF Message delivered", " id=m1", " attempt=2"} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q missing %q", line, want)
		}
	}
	if strings.Contains(line, "\033[") {
		t.Error("plain handler wrote ANSI codes")
	}
}

func TestHandlerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	level := new(slog.LevelVar)
	level.Set(slog.LevelWarn)
	log := slog.New(NewHandler(&buf, &Options{Level: level}))

	log.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info logged at warn level: %q", buf.String())
	}
	level.Set(slog.LevelInfo)
	log.Info("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Error("LevelVar change not honored")
	}
}

func TestHandlerComponentTag(t *testing.T) {
	var buf bytes.Buffer
	log := Component(slog.New(NewHandler(&buf, nil)), "sender")

	log.Warn("Retrying", "attempt", 1)

	line := buf.String()
	if !strings.Contains(line, "WRN [sender] Retrying") {
		t.Errorf("line = %q, want component tag before message", line)
	}
	if strings.Contains(line, "component=") {
		t.Errorf("component rendered inline: %q", line)
	}
}

func TestHandlerBlocks(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewHandler(&buf, nil))

	log.Error("Delivery failed", "content", "line one\nline two", "err", errors.New("boom"))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want 4:\n%s", len(lines), buf.String())
	}
	for i, want := range []string{"| line one", "| line two", "| boom"} {
		if !strings.HasSuffix(lines[i+1], want) {
			t.Errorf("line %d = %q, want suffix %q", i+1, lines[i+1], want)
		}
	}
}
