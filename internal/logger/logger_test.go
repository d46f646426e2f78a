package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("bad json line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestSlogBridge_FieldsAndContext(t *testing.T) {
	var buf bytes.Buffer
	zl := Build(Config{Level: "debug", Service: "geofilterd"}, &buf)
	log := NewSlog(&zl).With("session_id", "abc")

	ctx := WithRequestID(context.Background(), "req-1")
	log.InfoContext(ctx, "slot changed", "slot", "bias", "token", uint64(3), "err", errors.New("boom"))

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("lines=%d want 1", len(lines))
	}
	l := lines[0]
	for k, want := range map[string]any{
		"msg":        "slot changed",
		"level":      "info",
		"service":    "geofilterd",
		"session_id": "abc",
		"request_id": "req-1",
		"slot":       "bias",
		"err":        "boom",
	} {
		if l[k] != want {
			t.Fatalf("%s=%v want %v (line=%v)", k, l[k], want, l)
		}
	}
	if l["token"] != float64(3) {
		t.Fatalf("token=%v", l["token"])
	}
	if _, ok := l["timestamp"]; !ok {
		t.Fatalf("missing timestamp")
	}
}

func TestSlogBridge_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	zl := Build(Config{Level: "warn"}, &buf)
	log := NewSlog(&zl)

	log.Debug("hidden")
	log.Info("hidden")
	log.Warn("shown")

	lines := decodeLines(t, &buf)
	if len(lines) != 1 || lines[0]["msg"] != "shown" {
		t.Fatalf("lines=%v", lines)
	}
}

func TestSlogBridge_Groups(t *testing.T) {
	var buf bytes.Buffer
	zl := Build(Config{Level: "info"}, &buf)
	NewSlog(&zl).WithGroup("kafka").Info("x", "topic", "t")

	lines := decodeLines(t, &buf)
	if lines[0]["kafka.topic"] != "t" {
		t.Fatalf("grouped key missing: %v", lines[0])
	}
}

func TestNewID(t *testing.T) {
	a, b := NewID(), NewID()
	if len(a) != 16 || a == b {
		t.Fatalf("ids %q %q", a, b)
	}
	if got := RequestID(WithRequestID(context.Background(), "")); len(got) != 16 {
		t.Fatalf("empty request id must be generated, got %q", got)
	}
}
