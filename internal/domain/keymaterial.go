// Package domain はドメインモデルとビジネスルールを定義する。
package domain

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"runtime"
)

const (
	// AESKeySize はAES-256の鍵長（バイト）。
	AESKeySize = 32
	// AESIVSize はCBCモードのIV長（バイト）。
	AESIVSize = 16
	// KeyIVSize は鍵とIVを連結したときの長さ。
	KeyIVSize = AESKeySize + AESIVSize
)

// Wipe はバッファをゼロで上書きする。
//
//go:noinline
func Wipe(b []byte) {
	if len(b) == 0 {
		return
	}
	zero := make([]byte, len(b))
	subtle.ConstantTimeCopy(1, b, zero)
	runtime.KeepAlive(&b)
}

// KeyIV は共通鍵とIVの組を表す。常に一体として扱い、破棄前にWipeする。
type KeyIV struct {
	Key []byte
	IV  []byte
}

// NewKeyIV は乱数から新しい鍵とIVを生成する。
func NewKeyIV() (*KeyIV, error) {
	buf := make([]byte, KeyIVSize)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("generating key material: %w", err)
	}
	k, err := UnmarshalKeyIV(buf)
	Wipe(buf)
	return k, err
}

// UnmarshalKeyIV は key ∥ iv 形式のバイト列からKeyIVを復元する。入力はコピーされる。
func UnmarshalKeyIV(b []byte) (*KeyIV, error) {
	if len(b) != KeyIVSize {
		return nil, fmt.Errorf("%w: key material must be %d bytes, got %d", ErrInvalidKeyEncoding, KeyIVSize, len(b))
	}
	k := &KeyIV{
		Key: make([]byte, AESKeySize),
		IV:  make([]byte, AESIVSize),
	}
	copy(k.Key, b[:AESKeySize])
	copy(k.IV, b[AESKeySize:])
	return k, nil
}

// Marshal は key ∥ iv を返す。呼び出し側は使用後にWipeすること。
func (k *KeyIV) Marshal() []byte {
	out := make([]byte, 0, KeyIVSize)
	out = append(out, k.Key...)
	return append(out, k.IV...)
}

// Clone は独立したコピーを返す。
func (k *KeyIV) Clone() *KeyIV {
	if k == nil {
		return nil
	}
	return &KeyIV{
		Key: append([]byte(nil), k.Key...),
		IV:  append([]byte(nil), k.IV...),
	}
}

// Wipe は鍵とIVをゼロで上書きする。
func (k *KeyIV) Wipe() {
	if k == nil {
		return
	}
	Wipe(k.Key)
	Wipe(k.IV)
}
