package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"secure-channel-service/internal/domain"
)

// SessionModel はsessionsテーブルのモデル。
type SessionModel struct {
	ID        string            `gorm:"type:char(36);primaryKey"`
	Layers    int               `gorm:"not null"`
	CreatedAt time.Time         `gorm:"type:datetime(6);not null"`
	UpdatedAt time.Time         `gorm:"type:datetime(6);not null"`
	ExpiresAt *time.Time        `gorm:"type:datetime(6)"`
	Keys      []SessionKeyModel `gorm:"foreignKey:SessionID;references:ID"`
}

// TableName はテーブル名を返す。
func (SessionModel) TableName() string {
	return "sessions"
}

// SessionKeyModel はsession_keysテーブルのモデル。スロットは1始まり。
type SessionKeyModel struct {
	SessionID    string    `gorm:"type:char(36);primaryKey"`
	Slot         int       `gorm:"primaryKey;autoIncrement:false"`
	RSAPublicKey []byte    `gorm:"column:rsa_public_key;type:blob;not null"`
	SealedAESKey []byte    `gorm:"column:sealed_aes_key;type:blob;not null"`
	CreatedAt    time.Time `gorm:"type:datetime(6);not null"`
}

// TableName はテーブル名を返す。
func (SessionKeyModel) TableName() string {
	return "session_keys"
}

// SessionRepository はgormでセッションを永続化する。共通鍵はSealerで封印して保存する。
type SessionRepository struct {
	db     *gorm.DB
	sealer Sealer
	ttl    time.Duration
}

// NewSessionRepository は新しいSessionRepositoryを生成する。ttlが0なら期限なし。
func NewSessionRepository(db *gorm.DB, sealer Sealer, ttl time.Duration) *SessionRepository {
	return &SessionRepository{db: db, sealer: sealer, ttl: ttl}
}

// toDomain はモデルをドメインエンティティに変換し、封印された鍵を復元する。
func (m *SessionModel) toDomain(ctx context.Context, sealer Sealer) (*domain.Session, error) {
	id, err := uuid.Parse(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parsing session id: %w", err)
	}
	s := &domain.Session{
		ID:            id,
		RSAPublicKeys: make([][]byte, m.Layers),
		AESKeys:       make([]*domain.KeyIV, m.Layers),
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
	if m.ExpiresAt != nil {
		s.ExpiresAt = *m.ExpiresAt
	}
	for _, k := range m.Keys {
		if k.Slot < 1 || k.Slot > m.Layers {
			s.Wipe()
			return nil, fmt.Errorf("%w: stored slot %d", domain.ErrInvalidKeyIndex, k.Slot)
		}
		key, err := unsealKey(ctx, sealer, k.SealedAESKey)
		if err != nil {
			s.Wipe()
			return nil, err
		}
		s.RSAPublicKeys[k.Slot-1] = k.RSAPublicKey
		s.AESKeys[k.Slot-1] = key
	}
	return s, nil
}

// Create は空のセッションを作成する。
func (r *SessionRepository) Create(ctx context.Context, layers int) (*domain.Session, error) {
	s := domain.NewSession(uuid.New(), layers, r.ttl)
	model := &SessionModel{
		ID:        s.ID.String(),
		Layers:    layers,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
	if !s.ExpiresAt.IsZero() {
		model.ExpiresAt = &s.ExpiresAt
	}
	if err := r.db.WithContext(ctx).Omit("Keys").Create(model).Error; err != nil {
		slog.ErrorContext(ctx, "failed to create session",
			"operation", "create_session",
			"error", err,
		)
		return nil, err
	}
	return s, nil
}

// Get はセッションを取得する。存在しない・期限切れの場合はnilを返す。
func (r *SessionRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	var model SessionModel
	err := r.db.WithContext(ctx).
		Preload("Keys").
		Where("id = ?", id.String()).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to get session",
			"operation", "get_session",
			"session_id", id.String(),
			"error", err,
		)
		return nil, err
	}
	if model.ExpiresAt != nil && time.Now().After(*model.ExpiresAt) {
		return nil, nil
	}
	return model.toDomain(ctx, r.sealer)
}

// Update はセッションのタイムスタンプを更新し、まだ保存されていない鍵スロットを追加する。
// 保存済みのスロットは書き換えない。
func (r *SessionRepository) Update(ctx context.Context, session *domain.Session) (bool, error) {
	found := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&SessionModel{}).Where("id = ?", session.ID.String()).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return nil
		}
		found = true

		if err := tx.Model(&SessionModel{}).
			Where("id = ?", session.ID.String()).
			Update("updated_at", session.UpdatedAt).Error; err != nil {
			return err
		}

		var stored []int
		if err := tx.Model(&SessionKeyModel{}).
			Where("session_id = ?", session.ID.String()).
			Pluck("slot", &stored).Error; err != nil {
			return err
		}
		persisted := make(map[int]bool, len(stored))
		for _, slot := range stored {
			persisted[slot] = true
		}

		now := time.Now().UTC()
		for i, k := range session.AESKeys {
			slot := i + 1
			if k == nil || persisted[slot] {
				continue
			}
			sealed, err := sealKey(ctx, r.sealer, k)
			if err != nil {
				return err
			}
			row := &SessionKeyModel{
				SessionID:    session.ID.String(),
				Slot:         slot,
				RSAPublicKey: session.RSAPublicKeys[i],
				SealedAESKey: sealed,
				CreatedAt:    now,
			}
			if err := tx.Create(row).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to update session",
			"operation", "update_session",
			"session_id", session.ID.String(),
			"error", err,
		)
		return false, err
	}
	return found, nil
}

// Delete はセッションと鍵スロットを削除する。
func (r *SessionRepository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	var affected int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", id.String()).Delete(&SessionKeyModel{}).Error; err != nil {
			return err
		}
		result := tx.Where("id = ?", id.String()).Delete(&SessionModel{})
		if result.Error != nil {
			return result.Error
		}
		affected = result.RowsAffected
		return nil
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to delete session",
			"operation", "delete_session",
			"session_id", id.String(),
			"error", err,
		)
		return false, err
	}
	return affected > 0, nil
}

// DeleteExpired は期限切れのセッションを鍵スロットとトークンごと削除し、削除件数を返す。
func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	now = now.UTC()
	var affected int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		expired := tx.Model(&SessionModel{}).Select("id").Where("expires_at IS NOT NULL AND expires_at < ?", now)
		if err := tx.Where("session_id IN (?)", expired).Delete(&SessionKeyModel{}).Error; err != nil {
			return err
		}
		if err := tx.Where("session_id IN (?)", expired).Delete(&AppTokenModel{}).Error; err != nil {
			return err
		}
		result := tx.Where("expires_at IS NOT NULL AND expires_at < ?", now).Delete(&SessionModel{})
		if result.Error != nil {
			return result.Error
		}
		affected = result.RowsAffected
		return nil
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to delete expired sessions",
			"operation", "delete_expired_sessions",
			"error", err,
		)
		return 0, err
	}
	return affected, nil
}
