package crypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"fmt"
	"hash"
	"math/big"

	"secure-channel-service/internal/domain"
)

// AsymmetricEngine はプールから貸し出された非対称エンジンのハンドル。
// 貸し出しごとに新しいハンドルが発行され、返却後のハンドルは使用できない。
type AsymmetricEngine struct {
	core  *asymmetricCore
	lease uint64
}

// asymmetricCore は公開鍵1本をインポートしてRSA-OAEP暗号化を行う。
// プールから貸し出されている間だけ鍵を保持する。
type asymmetricCore struct {
	hash   hash.Hash
	key    *rsa.PublicKey
	loaded bool
}

// NewAsymmetricEngine は鍵未設定のエンジンを生成する。
func NewAsymmetricEngine() (*AsymmetricEngine, error) {
	return &AsymmetricEngine{core: &asymmetricCore{
		hash: sha256.New(),
		key:  &rsa.PublicKey{N: new(big.Int)},
	}}, nil
}

func (c *asymmetricCore) importKey(blob []byte) error {
	if err := decodePublicKeyInto(c.key, blob); err != nil {
		return err
	}
	c.loaded = true
	return nil
}

// scrub はインポートされた鍵を消去する。プールへ戻す前に必ず呼ぶ。
func (c *asymmetricCore) scrub() {
	wipeInt(c.key.N)
	c.key.E = 0
	c.hash.Reset()
	c.loaded = false
}

// Loaded は鍵がインポート済みかを返す。
func (e *AsymmetricEngine) Loaded() bool {
	return e.core != nil && e.core.loaded
}

// Encrypt はインポート済み公開鍵で平文を暗号化する。
func (e *AsymmetricEngine) Encrypt(plaintext []byte) ([]byte, error) {
	if e.core == nil {
		return nil, domain.ErrEngineReleased
	}
	c := e.core
	if !c.loaded {
		return nil, domain.ErrKeyNotSet
	}
	c.hash.Reset()
	rsaEncryptCounter.Inc()
	ct, err := rsa.EncryptOAEP(c.hash, rand.Reader, c.key, plaintext, nil)
	if err != nil {
		return nil, fmt.Errorf("rsa encrypt: %w", err)
	}
	return ct, nil
}

// SymmetricEngine はプールから貸し出された対称エンジンのハンドル。
type SymmetricEngine struct {
	core  *symmetricCore
	lease uint64
}

// symmetricCore はAES-256-CBC（PKCS#7）の暗号化/復号を行う。
// 鍵は操作ごとに渡され、エンジン自体は鍵を保持しない。
type symmetricCore struct {
	scratch []byte
}

// NewSymmetricEngine は新しいエンジンを生成する。
func NewSymmetricEngine() (*SymmetricEngine, error) {
	return &SymmetricEngine{core: &symmetricCore{scratch: make([]byte, 0, 4*aes.BlockSize)}}, nil
}

func newBlockMode(k *domain.KeyIV) (cipher.Block, error) {
	if k == nil {
		return nil, domain.ErrKeyNotSet
	}
	if len(k.Key) != domain.AESKeySize || len(k.IV) != domain.AESIVSize {
		return nil, fmt.Errorf("%w: key/iv size", domain.ErrInvalidKeyEncoding)
	}
	return aes.NewCipher(k.Key)
}

// Encrypt は1レイヤー分の暗号化を行う。
func (e *SymmetricEngine) Encrypt(data []byte, k *domain.KeyIV) ([]byte, error) {
	if e.core == nil {
		return nil, domain.ErrEngineReleased
	}
	c := e.core
	block, err := newBlockMode(k)
	if err != nil {
		return nil, err
	}
	aesEncryptCounter.Inc()

	padLen := aes.BlockSize - len(data)%aes.BlockSize
	total := len(data) + padLen
	if cap(c.scratch) < total {
		domain.Wipe(c.scratch[:cap(c.scratch)])
		c.scratch = make([]byte, 0, total)
	}
	padded := c.scratch[:total]
	copy(padded, data)
	for i := len(data); i < total; i++ {
		padded[i] = byte(padLen)
	}

	out := make([]byte, total)
	cipher.NewCBCEncrypter(block, k.IV).CryptBlocks(out, padded)
	domain.Wipe(padded)
	return out, nil
}

// Decrypt は1レイヤー分の復号を行う。パディング不正はErrDecryptionFailed。
func (e *SymmetricEngine) Decrypt(data []byte, k *domain.KeyIV) ([]byte, error) {
	if e.core == nil {
		return nil, domain.ErrEngineReleased
	}
	block, err := newBlockMode(k)
	if err != nil {
		return nil, err
	}
	aesDecryptCounter.Inc()

	if len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext is not block aligned", domain.ErrDecryptionFailed)
	}
	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, k.IV).CryptBlocks(out, data)

	padLen := int(out[len(out)-1])
	if padLen == 0 || padLen > aes.BlockSize {
		domain.Wipe(out)
		return nil, fmt.Errorf("%w: bad padding", domain.ErrDecryptionFailed)
	}
	for _, b := range out[len(out)-padLen:] {
		if int(b) != padLen {
			domain.Wipe(out)
			return nil, fmt.Errorf("%w: bad padding", domain.ErrDecryptionFailed)
		}
	}
	domain.Wipe(out[len(out)-padLen:])
	return out[:len(out)-padLen], nil
}

func (c *symmetricCore) scrub() {
	domain.Wipe(c.scratch[:cap(c.scratch)])
}
