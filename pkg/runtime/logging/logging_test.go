package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNewWithWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "debug", "json")
	logger.Debug("transform_done", "sheets", 2)
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected json log line, got %q: %v", buf.String(), err)
	}
	if entry["msg"] != "transform_done" {
		t.Fatalf("unexpected entry %v", entry)
	}
}

func TestNewWithWriterTextRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "warn", "text")
	logger.Info("hidden")
	logger.Warn("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	if ParseLevel("WARNING") != slog.LevelWarn || ParseLevel("bogus") != slog.LevelInfo {
		t.Fatalf("unexpected level parsing")
	}
}

func TestSnippet(t *testing.T) {
	if got := Snippet("a  =\n 1", 0); got != "a = 1" {
		t.Fatalf("unexpected snippet %q", got)
	}
	if got := Snippet("abcdef", 3); got != "abc..." {
		t.Fatalf("unexpected snippet %q", got)
	}
}

func TestFromContextAddsRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "info", "json")
	ctx := WithRequestID(context.Background(), "req-1")
	if RequestID(ctx) != "req-1" {
		t.Fatalf("request id not stored")
	}
	FromContext(ctx, logger).Info("hello")
	if !strings.Contains(buf.String(), `"request_id":"req-1"`) {
		t.Fatalf("expected request id in %q", buf.String())
	}
	if FromContext(context.Background(), nil) == nil {
		t.Fatalf("expected non-nil logger")
	}
}
