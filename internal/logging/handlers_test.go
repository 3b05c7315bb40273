package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestNewFanoutHandlerNilHandlers(t *testing.T) {
	h := newFanoutHandler(nil, nil)
	if _, ok := h.(NoopHandler); !ok {
		t.Errorf("expected NoopHandler for all nil handlers, got %T", h)
	}
}

func TestNewFanoutHandlerFiltersNil(t *testing.T) {
	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, nil)

	if h := newFanoutHandler(nil, inner, nil); h != inner {
		t.Error("expected single non-nil handler to be returned unwrapped")
	}
}

func TestFanoutHandlerRespectsPerHandlerLevel(t *testing.T) {
	var infoBuf, debugBuf bytes.Buffer
	info := slog.NewJSONHandler(&infoBuf, &slog.HandlerOptions{Level: slog.LevelInfo})
	debug := slog.NewJSONHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelDebug})

	h := newFanoutHandler(info, debug)
	if !h.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("expected fanout to be enabled for debug")
	}

	logger := slog.New(h)
	logger.Debug("debug only")
	logger.Info("both")

	if strings.Contains(infoBuf.String(), "debug only") {
		t.Fatalf("info handler received debug record: %s", infoBuf.String())
	}
	if !strings.Contains(debugBuf.String(), "debug only") || !strings.Contains(debugBuf.String(), "both") {
		t.Fatalf("debug handler missing records: %s", debugBuf.String())
	}
	if !strings.Contains(infoBuf.String(), "both") {
		t.Fatalf("info handler missing info record: %s", infoBuf.String())
	}
}

func TestTeeLoggerKeepsAttrs(t *testing.T) {
	var baseBuf, extraBuf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&baseBuf, nil))
	extra := slog.NewJSONHandler(&extraBuf, nil)

	logger := TeeLogger(base, extra).With(String(FieldComponent, "ipc"))
	logger.Info("frame dropped")

	for name, buf := range map[string]*bytes.Buffer{"base": &baseBuf, "extra": &extraBuf} {
		if !strings.Contains(buf.String(), `"component":"ipc"`) {
			t.Fatalf("%s handler missing component attr: %s", name, buf.String())
		}
	}
}

func TestConsoleHandlerFlattensGroups(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	logger := slog.New(newConsoleHandler(&buf, lvl, false))

	logger.WithGroup("call").Info("issued", String("kind", "search"), Int("budget_s", 30))

	out := buf.String()
	if !strings.Contains(out, "call.kind=search") || !strings.Contains(out, "call.budget_s=30") {
		t.Fatalf("expected grouped keys, got %q", out)
	}
}

func TestFormatValueQuotesWhitespace(t *testing.T) {
	if got := formatValue(slog.StringValue("two words")); got != `"two words"` {
		t.Fatalf("unexpected quoting: %s", got)
	}
	if got := formatValue(slog.StringValue("plain")); got != "plain" {
		t.Fatalf("unexpected value: %s", got)
	}
}

func TestTraceHandlerCapturesDebugBelowBaseLevel(t *testing.T) {
	var baseBuf, traceBuf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&baseBuf, &slog.HandlerOptions{Level: slog.LevelWarn}))

	logger := TeeLogger(base, NewTraceHandler(&traceBuf))
	logger.Debug("call issued", String(FieldCorrelationID, "c-1"))

	if baseBuf.Len() != 0 {
		t.Fatalf("base handler should drop debug records: %s", baseBuf.String())
	}
	if !strings.Contains(traceBuf.String(), `"level":"debug"`) || !strings.Contains(traceBuf.String(), `"correlation_id":"c-1"`) {
		t.Fatalf("trace handler missing debug record: %s", traceBuf.String())
	}
}
