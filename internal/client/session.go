// Package client はセキュアチャネルのクライアント側ハンドシェイクと暗号化通信を提供する。
package client

import (
	"github.com/google/uuid"

	"secure-channel-service/internal/domain"
)

// Session はクライアント側で保持するセッションの写し。
type Session struct {
	ID            uuid.UUID
	RSAPublicKeys [][]byte
	AESKeys       []*domain.KeyIV
}

func newSession(id uuid.UUID, layers int) *Session {
	return &Session{
		ID:            id,
		RSAPublicKeys: make([][]byte, layers),
		AESKeys:       make([]*domain.KeyIV, layers),
	}
}

// FilledSlots は先頭から連続して共通鍵が設定済みのスロット数を返す。
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
	return s != nil && len(s.AESKeys) > 0 && s.FilledSlots() == len(s.AESKeys)
}

// Keys は共通鍵の列を返す。
func (s *Session) Keys() []*domain.KeyIV {
	return s.AESKeys
}

func (s *Session) clone() *Session {
	c := newSession(s.ID, len(s.AESKeys))
	for i, b := range s.RSAPublicKeys {
		if b != nil {
			c.RSAPublicKeys[i] = append([]byte(nil), b...)
		}
	}
	for i, k := range s.AESKeys {
		if k != nil {
			c.AESKeys[i] = k.Clone()
		}
	}
	return c
}

// Wipe は保持している鍵素材をゼロ化して破棄する。
func (s *Session) Wipe() {
	if s == nil {
		return
	}
	for i, k := range s.AESKeys {
		if k != nil {
			k.Wipe()
		}
		s.AESKeys[i] = nil
	}
	for i := range s.RSAPublicKeys {
		s.RSAPublicKeys[i] = nil
	}
}
