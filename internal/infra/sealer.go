package infra

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrSealedDataInvalid は封印データの検証に失敗した場合のエラー。
var ErrSealedDataInvalid = errors.New("sealed data invalid")

// LocalSealer はKMSを使わない環境向けに、XChaCha20-Poly1305で鍵素材を封印する。
// 出力形式: nonce(24) ∥ ciphertext ∥ tag(16)
type LocalSealer struct {
	aead cipher.AEAD
}

// NewLocalSealer は32バイトの鍵からLocalSealerを生成する。
func NewLocalSealer(key []byte) (*LocalSealer, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("seal key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	return &LocalSealer{aead: aead}, nil
}

// NewLocalSealerFromBase64 はbase64エンコードされた鍵（SEAL_KEY）からLocalSealerを生成する。
// 空の場合はプロセス限りのランダム鍵を使う。
func NewLocalSealerFromBase64(encoded string) (*LocalSealer, error) {
	if encoded == "" {
		key := make([]byte, chacha20poly1305.KeySize)
		if _, err := rand.Read(key); err != nil {
			return nil, err
		}
		return NewLocalSealer(key)
	}
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decoding SEAL_KEY: %w", err)
	}
	return NewLocalSealer(key)
}

// Encrypt は平文を封印する。
func (s *LocalSealer) Encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}
	return s.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt は封印を解く。
func (s *LocalSealer) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < s.aead.NonceSize()+s.aead.Overhead() {
		return nil, ErrSealedDataInvalid
	}
	nonce, ct := ciphertext[:s.aead.NonceSize()], ciphertext[s.aead.NonceSize():]
	plain, err := s.aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, ErrSealedDataInvalid
	}
	return plain, nil
}
