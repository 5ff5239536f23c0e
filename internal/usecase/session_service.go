// Package usecase はアプリケーションのユースケースを実装する。
package usecase

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"secure-channel-service/internal/crypt"
	"secure-channel-service/internal/domain"
)

var tracer = otel.Tracer("secure-channel-service/usecase")

// SessionRepository はセッションの永続化のインターフェース。
// Get は存在しない・期限切れの場合に nil, nil を返す。
type SessionRepository interface {
	Create(ctx context.Context, layers int) (*domain.Session, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.Session, error)
	Update(ctx context.Context, session *domain.Session) (bool, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
}

// TokenRepository はアプリケーショントークンの永続化のインターフェース。
// Create は既に同じセッションのトークンがある場合に false を返し、何も変更しない。
type TokenRepository interface {
	Create(ctx context.Context, token *domain.AppToken) (bool, error)
	Get(ctx context.Context, sessionID uuid.UUID) (*domain.AppToken, error)
	Delete(ctx context.Context, sessionID uuid.UUID) error
}

// SessionService はハンドシェイクとセッションに関するビジネスロジックを提供する。
type SessionService struct {
	sessions SessionRepository
	tokens   TokenRepository
	pool     *crypt.EnginePool
	layers   int
}

// NewSessionService は新しいSessionServiceを生成する。
func NewSessionService(sessions SessionRepository, tokens TokenRepository, pool *crypt.EnginePool, layers int) *SessionService {
	if layers < 1 {
		layers = domain.DefaultLayerCount
	}
	return &SessionService{
		sessions: sessions,
		tokens:   tokens,
		pool:     pool,
		layers:   layers,
	}
}

// Layers はセッションあたりの鍵スロット数を返す。
func (s *SessionService) Layers() int {
	return s.layers
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", domain.ErrRepositoryUnavailable, err)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// StartSession は空の鍵スロットを持つセッションを作成する。
func (s *SessionService) StartSession(ctx context.Context) (id uuid.UUID, err error) {
	ctx, span := tracer.Start(ctx, "SessionService.StartSession")
	defer func() { endSpan(span, err) }()

	sess, err := s.sessions.Create(ctx, s.layers)
	if err != nil {
		slog.ErrorContext(ctx, "failed to create session",
			"operation", "start_session",
			"error", err,
		)
		return uuid.Nil, unavailable(err)
	}
	defer sess.Wipe()

	span.SetAttributes(attribute.String("session.id", sess.ID.String()))
	return sess.ID, nil
}

// ExchangeKey はピアの公開鍵を slot（1始まり）に保存し、新しい共通鍵をその公開鍵で暗号化して返す。
// スロットは順番にしか埋められない。失敗時にセッションは変更されない。
func (s *SessionService) ExchangeKey(ctx context.Context, id uuid.UUID, slot int, publicKey []byte) (ciphertext []byte, err error) {
	ctx, span := tracer.Start(ctx, "SessionService.ExchangeKey", trace.WithAttributes(
		attribute.String("session.id", id.String()),
		attribute.Int("session.slot", slot),
	))
	defer func() { endSpan(span, err) }()

	sess, err := s.sessions.Get(ctx, id)
	if err != nil {
		slog.ErrorContext(ctx, "failed to get session",
			"operation", "exchange_key",
			"session_id", id.String(),
			"error", err,
		)
		return nil, unavailable(err)
	}
	if sess == nil {
		return nil, domain.ErrSessionNotFound
	}
	defer sess.Wipe()

	if slot < 1 || slot > sess.Layers() {
		return nil, fmt.Errorf("%w: slot %d not in [1, %d]", domain.ErrInvalidKeyIndex, slot, sess.Layers())
	}
	if next := sess.FilledSlots() + 1; slot != next {
		return nil, fmt.Errorf("%w: expected slot %d, got %d", domain.ErrProtocolSequence, next, slot)
	}

	engine, err := s.pool.AcquireAsymmetric(publicKey)
	if err != nil {
		return nil, err
	}
	defer s.pool.ReleaseAsymmetric(engine)

	key, err := domain.NewKeyIV()
	if err != nil {
		return nil, err
	}
	raw := key.Marshal()
	ciphertext, err = engine.Encrypt(raw)
	domain.Wipe(raw)
	if err != nil {
		key.Wipe()
		return nil, err
	}

	sess.RSAPublicKeys[slot-1] = append([]byte(nil), publicKey...)
	sess.AESKeys[slot-1] = key
	sess.UpdatedAt = time.Now().UTC()

	ok, err := s.sessions.Update(ctx, sess)
	if err != nil {
		slog.ErrorContext(ctx, "failed to update session",
			"operation", "exchange_key",
			"session_id", id.String(),
			"slot", slot,
			"error", err,
		)
		return nil, unavailable(err)
	}
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return ciphertext, nil
}

// GetSession はセッションを取得する。呼び出し側は使用後に Wipe すること。
func (s *SessionService) GetSession(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	sess, err := s.sessions.Get(ctx, id)
	if err != nil {
		slog.ErrorContext(ctx, "failed to get session",
			"operation", "get_session",
			"session_id", id.String(),
			"error", err,
		)
		return nil, unavailable(err)
	}
	if sess == nil {
		return nil, domain.ErrSessionNotFound
	}
	return sess, nil
}

// DeleteSession はセッションと紐づくトークンを削除する。
func (s *SessionService) DeleteSession(ctx context.Context, id uuid.UUID) error {
	ok, err := s.sessions.Delete(ctx, id)
	if err != nil {
		slog.ErrorContext(ctx, "failed to delete session",
			"operation", "delete_session",
			"session_id", id.String(),
			"error", err,
		)
		return unavailable(err)
	}
	if !ok {
		return domain.ErrSessionNotFound
	}
	if err := s.tokens.Delete(ctx, id); err != nil {
		slog.ErrorContext(ctx, "failed to delete app token",
			"operation", "delete_session",
			"session_id", id.String(),
			"error", err,
		)
		return unavailable(err)
	}
	return nil
}

// IssueToken は準備完了のセッションにアプリケーショントークンを1度だけ発行する。
func (s *SessionService) IssueToken(ctx context.Context, id uuid.UUID) (*domain.AppToken, error) {
	sess, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	defer sess.Wipe()
	if !sess.Ready() {
		return nil, domain.ErrSessionNotReady
	}

	token := &domain.AppToken{
		SessionID: id,
		Token:     make([]byte, domain.AppTokenSize),
		CreatedAt: time.Now().UTC(),
	}
	if _, err := rand.Read(token.Token); err != nil {
		return nil, fmt.Errorf("generating token: %w", err)
	}

	created, err := s.tokens.Create(ctx, token)
	if err != nil {
		slog.ErrorContext(ctx, "failed to create app token",
			"operation", "issue_token",
			"session_id", id.String(),
			"error", err,
		)
		return nil, unavailable(err)
	}
	if !created {
		domain.Wipe(token.Token)
		return nil, domain.ErrTokenAlreadyIssued
	}
	return token, nil
}

// VerifyToken はトークンを検証し、準備完了のセッションを返す。
// 呼び出し側は使用後に Wipe すること。
func (s *SessionService) VerifyToken(ctx context.Context, id uuid.UUID, token []byte) (*domain.Session, error) {
	sess, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if !sess.Ready() {
		sess.Wipe()
		return nil, domain.ErrSessionNotReady
	}

	stored, err := s.tokens.Get(ctx, id)
	if err != nil {
		sess.Wipe()
		slog.ErrorContext(ctx, "failed to get app token",
			"operation", "verify_token",
			"session_id", id.String(),
			"error", err,
		)
		return nil, unavailable(err)
	}
	if stored == nil || subtle.ConstantTimeCompare(stored.Token, token) != 1 {
		sess.Wipe()
		return nil, domain.ErrTokenMismatch
	}
	return sess, nil
}
