package crypt

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"fmt"
	"math/big"

	"secure-channel-service/internal/domain"
)

const (
	// RSAKeyBits は交換に使うRSA鍵長。
	RSAKeyBits = 1024
	// ModulusSize は公開鍵ブロブ中のモジュラスのバイト長。
	ModulusSize = RSAKeyBits / 8
	// ExponentSize は公開鍵ブロブ中の公開指数のバイト長。
	ExponentSize = 3
	// PublicKeyBlobSize は公開鍵ブロブ全体のバイト長（modulus ∥ exponent）。
	PublicKeyBlobSize = ModulusSize + ExponentSize
)

// GenerateKeyPair はハンドシェイク1ラウンド分のRSA鍵ペアを生成する。
func GenerateKeyPair() (*rsa.PrivateKey, error) {
	priv, err := rsa.GenerateKey(rand.Reader, RSAKeyBits)
	if err != nil {
		return nil, fmt.Errorf("generating rsa key pair: %w", err)
	}
	return priv, nil
}

// EncodePublicKey は公開鍵を固定長131バイトのブロブにエンコードする。
func EncodePublicKey(pub *rsa.PublicKey) ([]byte, error) {
	if pub == nil || pub.N == nil || pub.N.BitLen() > RSAKeyBits || pub.N.Sign() <= 0 {
		return nil, fmt.Errorf("%w: modulus must be %d bits", domain.ErrInvalidKeyEncoding, RSAKeyBits)
	}
	if pub.E <= 1 || pub.E >= 1<<(8*ExponentSize) {
		return nil, fmt.Errorf("%w: exponent out of range", domain.ErrInvalidKeyEncoding)
	}
	blob := make([]byte, PublicKeyBlobSize)
	pub.N.FillBytes(blob[:ModulusSize])
	blob[ModulusSize] = byte(pub.E >> 16)
	blob[ModulusSize+1] = byte(pub.E >> 8)
	blob[ModulusSize+2] = byte(pub.E)
	return blob, nil
}

// DecodePublicKey は131バイトのブロブから公開鍵を復元する。
func DecodePublicKey(blob []byte) (*rsa.PublicKey, error) {
	pub := &rsa.PublicKey{N: new(big.Int)}
	if err := decodePublicKeyInto(pub, blob); err != nil {
		return nil, err
	}
	return pub, nil
}

func decodePublicKeyInto(pub *rsa.PublicKey, blob []byte) error {
	if len(blob) != PublicKeyBlobSize {
		return fmt.Errorf("%w: public key blob must be %d bytes, got %d", domain.ErrInvalidKeyEncoding, PublicKeyBlobSize, len(blob))
	}
	if blob[0]&0x80 == 0 {
		return fmt.Errorf("%w: modulus must be %d bits", domain.ErrInvalidKeyEncoding, RSAKeyBits)
	}
	if blob[ModulusSize-1]&1 == 0 {
		return fmt.Errorf("%w: modulus must be odd", domain.ErrInvalidKeyEncoding)
	}
	e := int(blob[ModulusSize])<<16 | int(blob[ModulusSize+1])<<8 | int(blob[ModulusSize+2])
	if e <= 1 || e&1 == 0 {
		return fmt.Errorf("%w: exponent out of range", domain.ErrInvalidKeyEncoding)
	}
	pub.N.SetBytes(blob[:ModulusSize])
	pub.E = e
	return nil
}

// DecryptKeyIV はサーバーから受け取った暗号文を秘密鍵で復号し、共通鍵を取り出す。
func DecryptKeyIV(priv *rsa.PrivateKey, ciphertext []byte) (*domain.KeyIV, error) {
	rsaDecryptCounter.Inc()
	raw, err := rsa.DecryptOAEP(sha256.New(), nil, priv, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDecryptionFailed, err)
	}
	defer domain.Wipe(raw)
	return domain.UnmarshalKeyIV(raw)
}

// WipePrivateKey は秘密鍵の内部表現をゼロ化する。
func WipePrivateKey(priv *rsa.PrivateKey) {
	if priv == nil {
		return
	}
	wipeInt(priv.D)
	for _, p := range priv.Primes {
		wipeInt(p)
	}
	wipeInt(priv.Precomputed.Dp)
	wipeInt(priv.Precomputed.Dq)
	wipeInt(priv.Precomputed.Qinv)
}

func wipeInt(n *big.Int) {
	if n == nil {
		return
	}
	words := n.Bits()
	for i := range words {
		words[i] = 0
	}
	n.SetInt64(0)
}
