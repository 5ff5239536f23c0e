package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestWriteAuditLog(t *testing.T) {
	buf := captureLogs(t)

	WriteAuditLog(context.Background(), "exchange_key", "sess-1", 2, ResultSuccess)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("invalid json log: %v", err)
	}
	if rec["operation"] != "exchange_key" || rec["session_id"] != "sess-1" || rec["result"] != ResultSuccess {
		t.Errorf("unexpected audit log: %v", rec)
	}
	if rec["slot"] != float64(2) {
		t.Errorf("want slot 2, got %v", rec["slot"])
	}
}

func TestWriteAuditLog_NoSlot(t *testing.T) {
	buf := captureLogs(t)

	WriteAuditLog(context.Background(), "start_session", "sess-1", 0, ResultFailure)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("invalid json log: %v", err)
	}
	if _, ok := rec["slot"]; ok {
		t.Errorf("want no slot attribute, got %v", rec["slot"])
	}
}

func TestAccessLog(t *testing.T) {
	buf := captureLogs(t)

	h := AccessLog(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("invalid json log: %v", err)
	}
	if rec["status"] != float64(http.StatusTeapot) || rec["path"] != "/healthz" {
		t.Errorf("unexpected access log: %v", rec)
	}
}
