// Package main はAPIサーバーのエントリポイント。
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"secure-channel-service/config"
	"secure-channel-service/internal/crypt"
	"secure-channel-service/internal/handler"
	"secure-channel-service/internal/infra"
	"secure-channel-service/internal/transport"
	"secure-channel-service/internal/usecase"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// .envファイルを読み込む（存在しない場合は無視）
	// 既存の環境変数は上書きしない
	_ = godotenv.Load()

	// 設定読み込み
	cfg := config.Load()

	// トレーサー初期化（ロガー設定の前に実行）
	tp, err := infra.InitTracer(ctx, cfg)
	if err != nil {
		slog.Error("failed to init tracer", "error", err)
		os.Exit(1)
	}
	if tp != nil {
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				slog.Error("failed to shutdown tracer", "error", err)
			}
		}()
	}

	// トレース情報付きロガーを設定
	infra.SetupLogger(cfg)

	// 暗号エンジンのプールを事前に温める
	pool := crypt.NewEnginePool()
	if err := pool.Warm(cfg.AsymmetricPoolWarm, cfg.SymmetricPoolWarm); err != nil {
		slog.Error("failed to warm engine pool", "error", err)
		os.Exit(1)
	}

	// 永続化した共通鍵の封印
	sealer, closeSealer, err := newSealer(ctx, cfg)
	if err != nil {
		slog.Error("failed to init sealer", "error", err)
		os.Exit(1)
	}
	defer closeSealer()

	// セッションストア
	stores, err := newStores(ctx, cfg, sealer)
	if err != nil {
		slog.Error("failed to init session store", "store", cfg.SessionStore, "error", err)
		os.Exit(1)
	}
	defer stores.close()

	// DI
	service := usecase.NewSessionService(stores.sessions, stores.tokens, pool, cfg.LayerCount)
	router := handler.NewRouter(
		handler.NewSessionHandler(service),
		handler.NewSecureHandler(service, transport.NewCodec(pool)),
		cfg,
	)

	// サーバー起動
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		<-ctx.Done()

		slog.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("starting server",
		"port", cfg.Port,
		"store", cfg.SessionStore,
		"layers", cfg.LayerCount,
	)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}
