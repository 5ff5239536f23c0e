package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"secure-channel-service/config"
	"secure-channel-service/internal/middleware"
)

// NewRouter はルーターを生成する。
func NewRouter(sessions *SessionHandler, secure *SecureHandler, cfg *config.Config) http.Handler {
	r := chi.NewRouter()

	// ミドルウェア
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.AccessLog)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	// ハンドシェイク
	r.Route("/v1/sessions", func(r chi.Router) {
		r.Post("/", sessions.StartSession)
		r.Delete("/{session_id}", sessions.DeleteSession)
		r.Post("/{session_id}/keys/{slot}", sessions.ExchangeKey)
		r.Post("/{session_id}/token", secure.IssueToken)
	})

	// 暗号化通信
	r.Route("/v1/secure", func(r chi.Router) {
		r.Use(secure.RequireSession)
		r.Post("/echo", secure.Echo)
	})

	if cfg != nil && cfg.OtelEnabled {
		return otelhttp.NewHandler(r, cfg.OtelServiceName)
	}
	return r
}
