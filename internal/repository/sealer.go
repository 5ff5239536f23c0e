// Package repository はデータアクセス層の実装を提供する。
package repository

import (
	"context"
	"fmt"

	"secure-channel-service/internal/domain"
)

// Sealer は永続化する鍵素材を暗号化/復号する。
// infra.KMSClient と infra.LocalSealer が実装する。
type Sealer interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

// sealKey は共通鍵を key ∥ iv 形式で封印する。
func sealKey(ctx context.Context, sealer Sealer, k *domain.KeyIV) ([]byte, error) {
	raw := k.Marshal()
	defer domain.Wipe(raw)
	sealed, err := sealer.Encrypt(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("sealing key: %w", err)
	}
	return sealed, nil
}

// unsealKey は sealKey の逆変換。
func unsealKey(ctx context.Context, sealer Sealer, sealed []byte) (*domain.KeyIV, error) {
	raw, err := sealer.Decrypt(ctx, sealed)
	if err != nil {
		return nil, fmt.Errorf("unsealing key: %w", err)
	}
	defer domain.Wipe(raw)
	return domain.UnmarshalKeyIV(raw)
}
