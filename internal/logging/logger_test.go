package logging

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"parley/internal/services"
)

type captureWriter struct {
	mu  sync.Mutex
	buf strings.Builder
}

func (w *captureWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.WriteString(string(p))
}

func (w *captureWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}

func newTestLogger(out io.Writer, level slog.Level) *slog.Logger {
	lv := new(slog.LevelVar)
	lv.Set(level)
	return slog.New(newConsoleHandler(out, lv))
}

func TestConsoleHandlerRendersAttrs(t *testing.T) {
	out := &captureWriter{}
	logger := newTestLogger(out, slog.LevelInfo)

	logger.Info("transcription started", String(FieldConversationID, "c-1"), Int(FieldAttempt, 2))

	line := out.String()
	if !strings.Contains(line, "transcription started") {
		t.Fatalf("missing message in %q", line)
	}
	if !strings.Contains(line, "conversation_id=c-1") {
		t.Fatalf("missing conversation attr in %q", line)
	}
	if !strings.Contains(line, "attempt=2") {
		t.Fatalf("missing attempt attr in %q", line)
	}
}

func TestConsoleHandlerRespectsLevel(t *testing.T) {
	out := &captureWriter{}
	logger := newTestLogger(out, slog.LevelWarn)

	logger.Info("should be suppressed")
	logger.Warn("should appear")

	line := out.String()
	if strings.Contains(line, "suppressed") {
		t.Fatalf("info record leaked through warn level: %q", line)
	}
	if !strings.Contains(line, "should appear") {
		t.Fatalf("warn record missing: %q", line)
	}
}

func TestWithContextAddsFields(t *testing.T) {
	out := &captureWriter{}
	logger := newTestLogger(out, slog.LevelInfo)

	ctx := services.WithConversationID(context.Background(), "c-9")
	ctx = services.WithTaskKind(ctx, "transcribe")
	WithContext(ctx, logger).Info("working")

	line := out.String()
	if !strings.Contains(line, "conversation_id=c-9") {
		t.Fatalf("context conversation id missing: %q", line)
	}
	if !strings.Contains(line, "task_kind=transcribe") {
		t.Fatalf("context task kind missing: %q", line)
	}
}

func TestNewNopDiscards(t *testing.T) {
	logger := NewNop()
	// Must not panic and must report disabled at every level.
	logger.Info("ignored")
	if logger.Enabled(context.Background(), slog.LevelError) {
		t.Fatal("nop logger should be disabled")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"unknown": slog.LevelInfo,
	}
	for input, want := range cases {
		if got := parseLevel(input); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestConsoleHandlerTimestampFormat(t *testing.T) {
	out := &captureWriter{}
	lv := new(slog.LevelVar)
	handler := newConsoleHandler(out, lv)
	record := slog.NewRecord(time.Date(2026, 5, 4, 13, 2, 1, 0, time.UTC), slog.LevelInfo, "tick", 0)
	if err := handler.Handle(context.Background(), record); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !strings.HasPrefix(out.String(), "13:02:01 ") {
		t.Fatalf("unexpected timestamp prefix: %q", out.String())
	}
}
