package infra

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/trace"

	"secure-channel-service/config"
)

func TestNewLogger_RedactsSecrets(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, &config.Config{LogLevel: "INFO"})

	logger.Info("exchange", "session_id", "abc", "token", "c2VjcmV0", "public_key", "AAAA")

	out := buf.String()
	if strings.Contains(out, "c2VjcmV0") || strings.Contains(out, "AAAA") {
		t.Errorf("secret leaked into log: %s", out)
	}
	if !strings.Contains(out, `"session_id":"abc"`) {
		t.Errorf("want session_id in log, got %s", out)
	}
}

func TestNewLogger_Level(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, &config.Config{LogLevel: "warn"})

	logger.Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("want info suppressed at warn level, got %s", buf.String())
	}
	logger.Warn("shown")
	if buf.Len() == 0 {
		t.Error("want warn logged")
	}
}

func TestTraceHandler_AddsTraceFields(t *testing.T) {
	var buf bytes.Buffer
	cfg := &config.Config{LogLevel: "INFO", OtelEnabled: true, GoogleCloudProject: "proj"}
	logger := NewLogger(&buf, cfg)

	traceID, _ := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	spanID, _ := trace.SpanIDFromHex("0102030405060708")
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	logger.InfoContext(ctx, "traced")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("invalid json log: %v", err)
	}
	if rec["trace"] != traceID.String() {
		t.Errorf("want trace %s, got %v", traceID, rec["trace"])
	}
	if rec["logging.googleapis.com/trace"] != "projects/proj/traces/"+traceID.String() {
		t.Errorf("unexpected cloud trace field: %v", rec["logging.googleapis.com/trace"])
	}
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"DEBUG": slog.LevelDebug,
		"debug": slog.LevelDebug,
		"WARN":  slog.LevelWarn,
		"ERROR": slog.LevelError,
		"":      slog.LevelInfo,
		"bogus": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLogLevel(in); got != want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
