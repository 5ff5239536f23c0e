package repository

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"secure-channel-service/internal/domain"
)

// AppTokenModel はapp_tokensテーブルのモデル。トークンはSealerで封印して保存する。
type AppTokenModel struct {
	SessionID string    `gorm:"type:char(36);primaryKey"`
	Token     []byte    `gorm:"type:blob;not null"`
	CreatedAt time.Time `gorm:"type:datetime(6);not null"`
}

// TableName はテーブル名を返す。
func (AppTokenModel) TableName() string {
	return "app_tokens"
}

// TokenRepository はgormでアプリケーショントークンを永続化する。
type TokenRepository struct {
	db     *gorm.DB
	sealer Sealer
}

// NewTokenRepository は新しいTokenRepositoryを生成する。
func NewTokenRepository(db *gorm.DB, sealer Sealer) *TokenRepository {
	return &TokenRepository{db: db, sealer: sealer}
}

// Create はトークンを保存する。既に同じセッションのトークンがある場合は何もせずfalseを返す。
func (r *TokenRepository) Create(ctx context.Context, token *domain.AppToken) (bool, error) {
	sealed, err := r.sealer.Encrypt(ctx, token.Token)
	if err != nil {
		slog.ErrorContext(ctx, "failed to seal app token",
			"operation", "create_token",
			"session_id", token.SessionID.String(),
			"error", err,
		)
		return false, err
	}
	model := &AppTokenModel{
		SessionID: token.SessionID.String(),
		Token:     sealed,
		CreatedAt: token.CreatedAt,
	}
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(model)
	if result.Error != nil {
		slog.ErrorContext(ctx, "failed to create app token",
			"operation", "create_token",
			"session_id", token.SessionID.String(),
			"error", result.Error,
		)
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// Get はトークンを取得する。存在しない場合はnilを返す。
func (r *TokenRepository) Get(ctx context.Context, sessionID uuid.UUID) (*domain.AppToken, error) {
	var model AppTokenModel
	err := r.db.WithContext(ctx).Where("session_id = ?", sessionID.String()).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to get app token",
			"operation", "get_token",
			"session_id", sessionID.String(),
			"error", err,
		)
		return nil, err
	}
	plain, err := r.sealer.Decrypt(ctx, model.Token)
	if err != nil {
		slog.ErrorContext(ctx, "failed to unseal app token",
			"operation", "get_token",
			"session_id", sessionID.String(),
			"error", err,
		)
		return nil, err
	}
	return &domain.AppToken{
		SessionID: sessionID,
		Token:     plain,
		CreatedAt: model.CreatedAt,
	}, nil
}

// Delete はトークンを削除する。存在しない場合もエラーにしない。
func (r *TokenRepository) Delete(ctx context.Context, sessionID uuid.UUID) error {
	if err := r.db.WithContext(ctx).Where("session_id = ?", sessionID.String()).Delete(&AppTokenModel{}).Error; err != nil {
		slog.ErrorContext(ctx, "failed to delete app token",
			"operation", "delete_token",
			"session_id", sessionID.String(),
			"error", err,
		)
		return err
	}
	return nil
}
