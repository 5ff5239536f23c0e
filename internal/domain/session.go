package domain

import (
	"time"

	"github.com/google/uuid"
)

// DefaultLayerCount は多層暗号の既定レイヤー数。
const DefaultLayerCount = 3

// Session はサーバー側で保持するセキュアチャネル1本分の記録を表す。
type Session struct {
	ID            uuid.UUID
	RSAPublicKeys [][]byte // ピアから受け取った公開鍵ブロブ（未交換のスロットはnil）
	AESKeys       []*KeyIV // ピアに配布した共通鍵（未交換のスロットはnil）
	CreatedAt     time.Time
	UpdatedAt     time.Time
	ExpiresAt     time.Time
}

// NewSession は空の鍵スロットをlayers個持つセッションを生成する。
func NewSession(id uuid.UUID, layers int, ttl time.Duration) *Session {
	now := time.Now().UTC()
	s := &Session{
		ID:            id,
		RSAPublicKeys: make([][]byte, layers),
		AESKeys:       make([]*KeyIV, layers),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if ttl > 0 {
		s.ExpiresAt = now.Add(ttl)
	}
	return s
}

// Layers は鍵スロット数を返す。
func (s *Session) Layers() int {
	return len(s.AESKeys)
}

// FilledSlots は先頭から連続して共通鍵が設定されているスロット数を返す。
func (s *Session) FilledSlots() int {
	n := 0
	for _, k := range s.AESKeys {
		if k == nil {
			break
		}
		n++
	}
	return n
}

// Ready は全スロットの共通鍵が揃っているかを返す。
func (s *Session) Ready() bool {
	return s != nil && s.Layers() > 0 && s.FilledSlots() == s.Layers()
}

// Expired は有効期限を過ぎているかを返す。
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// Keys は共通鍵をスロット順に返す。
func (s *Session) Keys() []*KeyIV {
	return s.AESKeys
}

// Clone は鍵素材まで含めた独立したコピーを返す。
func (s *Session) Clone() *Session {
	c := &Session{
		ID:            s.ID,
		RSAPublicKeys: make([][]byte, len(s.RSAPublicKeys)),
		AESKeys:       make([]*KeyIV, len(s.AESKeys)),
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
		ExpiresAt:     s.ExpiresAt,
	}
	for i, pk := range s.RSAPublicKeys {
		if pk != nil {
			c.RSAPublicKeys[i] = append([]byte(nil), pk...)
		}
	}
	for i, k := range s.AESKeys {
		c.AESKeys[i] = k.Clone()
	}
	return c
}

// Wipe は保持している共通鍵をすべてゼロ化する。
func (s *Session) Wipe() {
	for _, k := range s.AESKeys {
		k.Wipe()
	}
}
