// Package transport はセッションの多層暗号をHTTPのリクエスト/レスポンス本文に適用する。
package transport

import (
	"encoding/json"
	"fmt"

	"secure-channel-service/internal/crypt"
	"secure-channel-service/internal/domain"
)

// MediaType は暗号化前のペイロードの形式。
const MediaType = "application/json"

// Keyring は多層暗号の鍵列を提供するセッション。
// domain.Session と client.Session の両方が満たす。
type Keyring interface {
	Ready() bool
	Keys() []*domain.KeyIV
}

// Codec はペイロードの直列化と多層暗号化をまとめて行う。
// 呼び出しごとにLayeredCipherを組み立てるため、同一セッションに対して並行に使用できる。
type Codec struct {
	pool *crypt.EnginePool
}

// NewCodec は新しいCodecを生成する。
func NewCodec(pool *crypt.EnginePool) *Codec {
	return &Codec{pool: pool}
}

func (c *Codec) cipherFor(ks Keyring) (*crypt.LayeredCipher, error) {
	if ks == nil || !ks.Ready() {
		return nil, domain.ErrSessionNotReady
	}
	keys := ks.Keys()
	lc, err := crypt.NewLayeredCipher(c.pool, len(keys))
	if err != nil {
		return nil, err
	}
	if err := lc.SetKeys(keys); err != nil {
		return nil, err
	}
	return lc, nil
}

// DecryptRequestBody は暗号化された本文を復号し、vへデコードする。
// rawは処理の成否にかかわらずゼロ化される。
func (c *Codec) DecryptRequestBody(raw []byte, ks Keyring, v any) error {
	defer domain.Wipe(raw)

	lc, err := c.cipherFor(ks)
	if err != nil {
		return err
	}
	defer lc.Clear()

	plain, err := lc.DecryptAll(raw)
	if err != nil {
		return err
	}
	defer domain.Wipe(plain)

	// 平文はその場で走査し、コピーを残さない
	if err := json.Unmarshal(plain, v); err != nil {
		return fmt.Errorf("%w: payload: %v", domain.ErrDecryptionFailed, err)
	}
	return nil
}

// EncryptResponseBody はvをJSONにエンコードして多層暗号化する。
func (c *Codec) EncryptResponseBody(v any, ks Keyring) ([]byte, error) {
	lc, err := c.cipherFor(ks)
	if err != nil {
		return nil, err
	}
	defer lc.Clear()

	plain, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding payload: %w", err)
	}
	defer domain.Wipe(plain)

	return lc.EncryptAll(plain)
}

// EncryptRequestBody はクライアント側でリクエスト本文を暗号化する。
func (c *Codec) EncryptRequestBody(v any, ks Keyring) ([]byte, error) {
	return c.EncryptResponseBody(v, ks)
}

// DecryptResponseBody はクライアント側でレスポンス本文を復号する。
// rawは処理の成否にかかわらずゼロ化される。
func (c *Codec) DecryptResponseBody(raw []byte, ks Keyring, v any) error {
	return c.DecryptRequestBody(raw, ks, v)
}
