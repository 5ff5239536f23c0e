package crypt

import (
	"errors"
	"fmt"

	"secure-channel-service/internal/domain"
)

// LayeredCipher は順序付きのN本の共通鍵でデータを多層に暗号化する。
// 暗号化は鍵0から昇順、復号は鍵N-1から降順に適用する。
type LayeredCipher struct {
	pool *EnginePool
	keys []*domain.KeyIV
}

// NewLayeredCipher はlayers本の鍵スロットを持つLayeredCipherを生成する。
func NewLayeredCipher(pool *EnginePool, layers int) (*LayeredCipher, error) {
	if layers < 1 {
		return nil, fmt.Errorf("%w: layer count must be positive, got %d", domain.ErrInvalidKeyIndex, layers)
	}
	return &LayeredCipher{
		pool: pool,
		keys: make([]*domain.KeyIV, layers),
	}, nil
}

// Layers はレイヤー数を返す。
func (c *LayeredCipher) Layers() int {
	return len(c.keys)
}

// SetKeys は鍵列を置き換える。既存の鍵は先にゼロ化される。鍵はコピーして保持する。
func (c *LayeredCipher) SetKeys(keys []*domain.KeyIV) error {
	if len(keys) != len(c.keys) {
		return fmt.Errorf("%w: want %d keys, got %d", domain.ErrInvalidKeyIndex, len(c.keys), len(keys))
	}
	c.Clear()
	for i, k := range keys {
		c.keys[i] = k.Clone()
	}
	return nil
}

// Clear は保持している鍵をすべてゼロ化して外す。
func (c *LayeredCipher) Clear() {
	for i, k := range c.keys {
		k.Wipe()
		c.keys[i] = nil
	}
}

func (c *LayeredCipher) key(index int) (*domain.KeyIV, error) {
	if index < 0 || index >= len(c.keys) {
		return nil, fmt.Errorf("%w: %d not in [0, %d)", domain.ErrInvalidKeyIndex, index, len(c.keys))
	}
	k := c.keys[index]
	if k == nil {
		return nil, fmt.Errorf("%w: slot %d", domain.ErrKeyNotSet, index)
	}
	return k, nil
}

// EncryptOne は指定スロットの鍵1本で暗号化する。
func (c *LayeredCipher) EncryptOne(data []byte, index int) ([]byte, error) {
	k, err := c.key(index)
	if err != nil {
		return nil, err
	}
	e, err := c.pool.AcquireSymmetric()
	if err != nil {
		return nil, err
	}
	defer c.pool.ReleaseSymmetric(e)
	return e.Encrypt(data, k)
}

// DecryptOne は指定スロットの鍵1本で復号する。
func (c *LayeredCipher) DecryptOne(data []byte, index int) ([]byte, error) {
	k, err := c.key(index)
	if err != nil {
		return nil, err
	}
	e, err := c.pool.AcquireSymmetric()
	if err != nil {
		return nil, err
	}
	defer c.pool.ReleaseSymmetric(e)
	return e.Decrypt(data, k)
}

// EncryptAll は全レイヤーを昇順に適用する。途中のバッファはゼロ化される。
// 入力バッファは呼び出し側の所有のまま変更しない。
func (c *LayeredCipher) EncryptAll(plaintext []byte) ([]byte, error) {
	data := plaintext
	for i := range c.keys {
		out, err := c.EncryptOne(data, i)
		if i > 0 {
			domain.Wipe(data)
		}
		if err != nil {
			return nil, err
		}
		data = out
	}
	return data, nil
}

// DecryptAll は全レイヤーを降順に適用する。EncryptAll の逆変換。
func (c *LayeredCipher) DecryptAll(ciphertext []byte) ([]byte, error) {
	data := ciphertext
	for i := len(c.keys) - 1; i >= 0; i-- {
		out, err := c.DecryptOne(data, i)
		if i < len(c.keys)-1 {
			domain.Wipe(data)
		}
		if err != nil {
			if errors.Is(err, domain.ErrInvalidKeyIndex) || errors.Is(err, domain.ErrKeyNotSet) ||
				errors.Is(err, domain.ErrEngineConstructionFailed) || errors.Is(err, domain.ErrDecryptionFailed) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: layer %d: %v", domain.ErrDecryptionFailed, i, err)
		}
		data = out
	}
	return data, nil
}
