// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// 監査ログの結果。
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// WriteAuditLog はハンドシェイク・暗号化通信の監査ログを出力する。slotは該当しない場合0。
func WriteAuditLog(ctx context.Context, operation string, sessionID string, slot int, result string) {
	attrs := []any{
		"operation", operation,
		"session_id", sessionID,
		"result", result,
		"timestamp", time.Now().UTC().Format(time.RFC3339),
	}
	if slot > 0 {
		attrs = append(attrs, "slot", slot)
	}
	if reqID := chimiddleware.GetReqID(ctx); reqID != "" {
		attrs = append(attrs, "request_id", reqID)
	}
	slog.InfoContext(ctx, "secure channel operation completed", attrs...)
}

// AccessLog はリクエストごとにslogでアクセスログを出力する。
func AccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		slog.InfoContext(r.Context(), "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", chimiddleware.GetReqID(r.Context()),
		)
	})
}
