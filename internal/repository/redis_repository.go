package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"secure-channel-service/internal/domain"
)

func sessionKey(id uuid.UUID) string {
	return fmt.Sprintf("sess:%s", id.String())
}

func tokenKey(id uuid.UUID) string {
	return fmt.Sprintf("tok:%s", id.String())
}

// redisSessionRecord はRedisに保存するセッションの表現。共通鍵は封印済み。
type redisSessionRecord struct {
	ID            string    `json:"id"`
	RSAPublicKeys [][]byte  `json:"rsa_public_keys"`
	SealedAESKeys [][]byte  `json:"sealed_aes_keys"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// RedisSessionRepository はRedisにセッションを保存する。期限はキーのTTLで管理する。
type RedisSessionRepository struct {
	cli    *redis.Client
	sealer Sealer
	ttl    time.Duration
}

// NewRedisSessionRepository は新しいRedisSessionRepositoryを生成する。ttlが0なら期限なし。
func NewRedisSessionRepository(cli *redis.Client, sealer Sealer, ttl time.Duration) *RedisSessionRepository {
	return &RedisSessionRepository{cli: cli, sealer: sealer, ttl: ttl}
}

func (r *RedisSessionRepository) encode(ctx context.Context, s *domain.Session) ([]byte, error) {
	rec := redisSessionRecord{
		ID:            s.ID.String(),
		RSAPublicKeys: s.RSAPublicKeys,
		SealedAESKeys: make([][]byte, len(s.AESKeys)),
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
		ExpiresAt:     s.ExpiresAt,
	}
	for i, k := range s.AESKeys {
		if k == nil {
			continue
		}
		sealed, err := sealKey(ctx, r.sealer, k)
		if err != nil {
			return nil, err
		}
		rec.SealedAESKeys[i] = sealed
	}
	return json.Marshal(rec)
}

func (r *RedisSessionRepository) decode(ctx context.Context, blob []byte) (*domain.Session, error) {
	var rec redisSessionRecord
	if err := json.Unmarshal(blob, &rec); err != nil {
		return nil, fmt.Errorf("decoding session record: %w", err)
	}
	id, err := uuid.Parse(rec.ID)
	if err != nil {
		return nil, fmt.Errorf("parsing session id: %w", err)
	}
	if len(rec.RSAPublicKeys) != len(rec.SealedAESKeys) {
		return nil, fmt.Errorf("%w: slot count mismatch", domain.ErrInvalidKeyIndex)
	}
	s := &domain.Session{
		ID:            id,
		RSAPublicKeys: rec.RSAPublicKeys,
		AESKeys:       make([]*domain.KeyIV, len(rec.SealedAESKeys)),
		CreatedAt:     rec.CreatedAt,
		UpdatedAt:     rec.UpdatedAt,
		ExpiresAt:     rec.ExpiresAt,
	}
	for i, sealed := range rec.SealedAESKeys {
		if sealed == nil {
			continue
		}
		k, err := unsealKey(ctx, r.sealer, sealed)
		if err != nil {
			s.Wipe()
			return nil, err
		}
		s.AESKeys[i] = k
	}
	return s, nil
}

// Create は空のセッションを作成する。
func (r *RedisSessionRepository) Create(ctx context.Context, layers int) (*domain.Session, error) {
	s := domain.NewSession(uuid.New(), layers, r.ttl)
	blob, err := r.encode(ctx, s)
	if err != nil {
		return nil, err
	}
	ok, err := r.cli.SetNX(ctx, sessionKey(s.ID), blob, r.ttl).Result()
	if err != nil {
		slog.ErrorContext(ctx, "failed to create session",
			"operation", "create_session",
			"error", err,
		)
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("session id collision: %s", s.ID)
	}
	return s, nil
}

// Get はセッションを取得する。存在しない場合はnilを返す。
func (r *RedisSessionRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	blob, err := r.cli.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to get session",
			"operation", "get_session",
			"session_id", id.String(),
			"error", err,
		)
		return nil, err
	}
	return r.decode(ctx, blob)
}

// Update はセッションを上書きする。TTLは作成時のものを維持する。
func (r *RedisSessionRepository) Update(ctx context.Context, session *domain.Session) (bool, error) {
	blob, err := r.encode(ctx, session)
	if err != nil {
		return false, err
	}
	ok, err := r.cli.SetXX(ctx, sessionKey(session.ID), blob, redis.KeepTTL).Result()
	if err != nil {
		slog.ErrorContext(ctx, "failed to update session",
			"operation", "update_session",
			"session_id", session.ID.String(),
			"error", err,
		)
		return false, err
	}
	return ok, nil
}

// Delete はセッションを削除する。
func (r *RedisSessionRepository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	n, err := r.cli.Del(ctx, sessionKey(id)).Result()
	if err != nil {
		slog.ErrorContext(ctx, "failed to delete session",
			"operation", "delete_session",
			"session_id", id.String(),
			"error", err,
		)
		return false, err
	}
	return n > 0, nil
}

// RedisTokenRepository はRedisにアプリケーショントークンを保存する。
type RedisTokenRepository struct {
	cli    *redis.Client
	sealer Sealer
	ttl    time.Duration
}

// NewRedisTokenRepository は新しいRedisTokenRepositoryを生成する。
func NewRedisTokenRepository(cli *redis.Client, sealer Sealer, ttl time.Duration) *RedisTokenRepository {
	return &RedisTokenRepository{cli: cli, sealer: sealer, ttl: ttl}
}

// Create はトークンを保存する。既に存在する場合は何もせずfalseを返す。
func (r *RedisTokenRepository) Create(ctx context.Context, token *domain.AppToken) (bool, error) {
	sealed, err := r.sealer.Encrypt(ctx, token.Token)
	if err != nil {
		return false, err
	}
	ok, err := r.cli.SetNX(ctx, tokenKey(token.SessionID), sealed, r.ttl).Result()
	if err != nil {
		slog.ErrorContext(ctx, "failed to create app token",
			"operation", "create_token",
			"session_id", token.SessionID.String(),
			"error", err,
		)
		return false, err
	}
	return ok, nil
}

// Get はトークンを取得する。存在しない場合はnilを返す。
func (r *RedisTokenRepository) Get(ctx context.Context, sessionID uuid.UUID) (*domain.AppToken, error) {
	sealed, err := r.cli.Get(ctx, tokenKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to get app token",
			"operation", "get_token",
			"session_id", sessionID.String(),
			"error", err,
		)
		return nil, err
	}
	plain, err := r.sealer.Decrypt(ctx, sealed)
	if err != nil {
		return nil, err
	}
	return &domain.AppToken{SessionID: sessionID, Token: plain}, nil
}

// Delete はトークンを削除する。
func (r *RedisTokenRepository) Delete(ctx context.Context, sessionID uuid.UUID) error {
	if err := r.cli.Del(ctx, tokenKey(sessionID)).Err(); err != nil {
		slog.ErrorContext(ctx, "failed to delete app token",
			"operation", "delete_token",
			"session_id", sessionID.String(),
			"error", err,
		)
		return err
	}
	return nil
}
