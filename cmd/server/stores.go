package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"secure-channel-service/config"
	"secure-channel-service/internal/infra"
	"secure-channel-service/internal/repository"
	"secure-channel-service/internal/usecase"
)

type stores struct {
	sessions usecase.SessionRepository
	tokens   usecase.TokenRepository
	closers  []func()
}

func (s *stores) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// newSealer はKMS_KEY_NAMEが設定されていればCloud KMSを、なければローカル鍵を使う。
func newSealer(ctx context.Context, cfg *config.Config) (repository.Sealer, func(), error) {
	if cfg.KMSKeyName != "" {
		kmsClient, err := infra.NewKMSClient(ctx, cfg.KMSKeyName)
		if err != nil {
			return nil, nil, err
		}
		return kmsClient, func() {
			if err := kmsClient.Close(); err != nil {
				slog.Error("failed to close KMS client", "error", err)
			}
		}, nil
	}

	if cfg.SealKey == "" && cfg.SessionStore != config.SessionStoreMemory {
		slog.Warn("SEAL_KEY is not set; sealed keys will not survive a restart")
	}
	sealer, err := infra.NewLocalSealerFromBase64(cfg.SealKey)
	if err != nil {
		return nil, nil, err
	}
	return sealer, func() {}, nil
}

func newStores(ctx context.Context, cfg *config.Config, sealer repository.Sealer) (*stores, error) {
	switch cfg.SessionStore {
	case config.SessionStoreMemory:
		tokens := repository.NewMemoryTokenRepository()
		sessions := repository.NewMemorySessionRepository(cfg.SessionTTL).WithTokens(tokens)

		sweepCtx, cancel := context.WithCancel(ctx)
		go sweepExpired(sweepCtx, sessions, sweepInterval(cfg.SessionTTL))

		return &stores{
			sessions: sessions,
			tokens:   tokens,
			closers:  []func(){cancel},
		}, nil

	case config.SessionStoreSQL:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is not set")
		}
		db, err := infra.NewDB(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to init database: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sessions := repository.NewSessionRepository(db, sealer, cfg.SessionTTL)

		sweepCtx, cancel := context.WithCancel(ctx)
		go sweepExpired(sweepCtx, sessions, sweepInterval(cfg.SessionTTL))

		return &stores{
			sessions: sessions,
			tokens:   repository.NewTokenRepository(db, sealer),
			closers: []func(){
				func() {
					if err := sqlDB.Close(); err != nil {
						slog.Error("failed to close database", "error", err)
					}
				},
				cancel,
			},
		}, nil

	case config.SessionStoreRedis:
		cli, err := infra.NewRedisClient(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, err
		}
		return &stores{
			sessions: repository.NewRedisSessionRepository(cli, sealer, cfg.SessionTTL),
			tokens:   repository.NewRedisTokenRepository(cli, sealer, cfg.SessionTTL),
			closers: []func(){
				func() {
					if err := cli.Close(); err != nil {
						slog.Error("failed to close redis client", "error", err)
					}
				},
			},
		}, nil

	default:
		return nil, fmt.Errorf("unsupported session store: %q", cfg.SessionStore)
	}
}

func sweepInterval(ttl time.Duration) time.Duration {
	if d := ttl / 2; d > time.Minute {
		return d
	}
	return time.Minute
}

// expiredSweeper は期限切れセッションを一括削除できるストア。
type expiredSweeper interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// sweepExpired は期限切れセッションを定期的に削除する。
func sweepExpired(ctx context.Context, sessions expiredSweeper, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := sessions.DeleteExpired(ctx, now)
			if err != nil {
				slog.ErrorContext(ctx, "failed to delete expired sessions",
					"operation", "sweep_expired",
					"error", err,
				)
				continue
			}
			if n > 0 {
				slog.InfoContext(ctx, "deleted expired sessions", "count", n)
			}
		}
	}
}
