package repository

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"secure-channel-service/internal/domain"
	"secure-channel-service/migrations"
)

// mockSealer はテスト用のSealer。接頭辞を付けてXORするだけ。
type mockSealer struct {
	encryptErr error
	decryptErr error
}

var sealPrefix = []byte("sealed:")

func (m *mockSealer) Encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	if m.encryptErr != nil {
		return nil, m.encryptErr
	}
	out := append([]byte(nil), sealPrefix...)
	for _, b := range plaintext {
		out = append(out, b^0xa5)
	}
	return out, nil
}

func (m *mockSealer) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	if m.decryptErr != nil {
		return nil, m.decryptErr
	}
	if !bytes.HasPrefix(ciphertext, sealPrefix) {
		return nil, errors.New("not sealed")
	}
	body := ciphertext[len(sealPrefix):]
	out := make([]byte, len(body))
	for i, b := range body {
		out[i] = b ^ 0xa5
	}
	return out, nil
}

// setupTestDB はテスト用のインメモリSQLiteデータベースを作成し、スキーマを適用する。
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	// :memory: は接続ごとに別DBになるため1本に固定する
	sqlDB.SetMaxOpenConns(1)

	entries, err := fs.ReadDir(migrations.FS, ".")
	if err != nil {
		t.Fatalf("failed to read migrations: %v", err)
	}
	for _, entry := range entries {
		sql, err := fs.ReadFile(migrations.FS, entry.Name())
		if err != nil {
			t.Fatalf("failed to read %s: %v", entry.Name(), err)
		}
		if err := db.Exec(string(sql)).Error; err != nil {
			t.Fatalf("failed to apply %s: %v", entry.Name(), err)
		}
	}

	return db
}

func fillKeys(t *testing.T, s *domain.Session, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		k, err := domain.NewKeyIV()
		if err != nil {
			t.Fatalf("new key: %v", err)
		}
		s.AESKeys[i] = k
		s.RSAPublicKeys[i] = bytes.Repeat([]byte{byte(i + 1)}, 131)
	}
}

func sameKey(a, b *domain.KeyIV) bool {
	if a == nil || b == nil {
		return a == b
	}
	return bytes.Equal(a.Key, b.Key) && bytes.Equal(a.IV, b.IV)
}
