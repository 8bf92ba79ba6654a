package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("invalid log line %q: %v", line, err)
		}
		out = append(out, entry)
	}
	return out
}

func TestLogger_ContextFields(t *testing.T) {
	var buf bytes.Buffer
	l := newLoggerWithWriter(Context{Host: "review.example.org", Port: 29418, Username: "bob"}, &buf, zapcore.DebugLevel)

	l.With("supervisor").Info("session opened", map[string]any{"attempt": 1})

	entries := decodeLines(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e["message"] != "session opened" {
		t.Errorf("message = %v", e["message"])
	}
	if e["level"] != "info" {
		t.Errorf("level = %v", e["level"])
	}
	if e["host"] != "review.example.org" || e["username"] != "bob" {
		t.Errorf("missing context fields: %v", e)
	}
	if e["component"] != "supervisor" {
		t.Errorf("component = %v", e["component"])
	}
	fields, ok := e["fields"].(map[string]any)
	if !ok || fields["attempt"] != float64(1) {
		t.Errorf("fields = %v", e["fields"])
	}
	if _, ok := e["timestamp"]; !ok {
		t.Error("missing timestamp")
	}
}

func TestLogger_InfoLevelDropsDebug(t *testing.T) {
	var buf bytes.Buffer
	l := newLoggerWithWriter(Context{}, &buf, zapcore.InfoLevel)

	l.Debug("hidden", nil)
	l.Warn("shown", nil)

	entries := decodeLines(t, &buf)
	if len(entries) != 1 || entries[0]["message"] != "shown" {
		t.Errorf("unexpected entries: %v", entries)
	}
}

func TestLogger_ErrorWithStack(t *testing.T) {
	var buf bytes.Buffer
	l := newLoggerWithWriter(Context{}, &buf, zapcore.DebugLevel)

	l.ErrorWithStack("panic in dispatch", map[string]any{"panic": "boom"})

	entries := decodeLines(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	stack, _ := entries[0]["stack"].(string)
	if !strings.Contains(stack, "TestLogger_ErrorWithStack") {
		t.Errorf("stack does not include caller: %q", stack)
	}
}

func TestLogger_Sugar(t *testing.T) {
	var buf bytes.Buffer
	l := newLoggerWithWriter(Context{}, &buf, zapcore.DebugLevel)

	l.Sugar().With("k", "v").Infof("hello %s", "world")

	entries := decodeLines(t, &buf)
	if len(entries) != 1 || entries[0]["message"] != "hello world" || entries[0]["k"] != "v" {
		t.Errorf("unexpected entries: %v", entries)
	}
}

func TestNewNop(t *testing.T) {
	l := NewNop()
	l.Info("discarded", nil)
	l.Sugar().Infof("discarded")
}
