package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func newTestLogger(t *testing.T) (*SlogLogger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	h := slog.NewTextHandler(&buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})
	return NewSlogLogger(slog.New(h)), &buf
}

func TestSlogLogger_Levels(t *testing.T) {
	log, buf := newTestLogger(t)
	ctx := context.Background()

	log.Debug(ctx, "dbg", "k", "v1")
	log.Info(ctx, "inf", "k", "v2")
	log.Warn(ctx, "wrn", "k", "v3")
	log.Error(ctx, "err", "k", "v4")

	out := buf.String()
	for _, want := range []string{
		"level=DEBUG", "msg=dbg", "k=v1",
		"level=INFO", "msg=inf", "k=v2",
		"level=WARN", "msg=wrn", "k=v3",
		"level=ERROR", "msg=err", "k=v4",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestSlogLogger_WithAddsFields(t *testing.T) {
	log, buf := newTestLogger(t)

	child := log.With("component", "queue")
	child.Info(context.Background(), "hello")

	out := buf.String()
	if !strings.Contains(out, "component=queue") {
		t.Fatalf("child logger must carry bound fields:\n%s", out)
	}
}
