package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestInitWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, "debug", "json")

	if !L.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("expected debug level to be enabled")
	}
	Info("digest sent", "units", 3)

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("expected json output, got %q: %v", buf.String(), err)
	}
	if record["msg"] != "digest sent" {
		t.Fatalf("unexpected msg: %v", record["msg"])
	}
	if record["units"] != float64(3) {
		t.Fatalf("unexpected units attr: %v", record["units"])
	}
}

func TestStartRunTagsLogger(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, "info", "json")

	ctx, runID := StartRun(context.Background(), nil, "digest")
	if runID == "" {
		t.Fatal("expected run id")
	}
	FromContext(ctx).Info("run started")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if record["run_id"] != runID || record["job"] != "digest" {
		t.Fatalf("unexpected attrs: %#v", record)
	}
}

func TestFromContextFallsBackToGlobal(t *testing.T) {
	Init("info", "text")
	if FromContext(context.Background()) != L {
		t.Fatal("expected global logger")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"Warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := parseLevel(tt.input); got != tt.expected {
			t.Errorf("parseLevel(%s) = %v, want %v", tt.input, got, tt.expected)
		}
	}
}
