package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"secure-channel-service/internal/domain"
)

// redisTestClient はREDIS_TEST_ADDRが設定されている場合のみクライアントを返す。
func redisTestClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR is not set")
	}
	cli := redis.NewClient(&redis.Options{Addr: addr})
	if err := cli.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis not reachable: %v", err)
	}
	t.Cleanup(func() { cli.Close() })
	return cli
}

func TestRedisSessionRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	cli := redisTestClient(t)
	repo := NewRedisSessionRepository(cli, &mockSealer{}, time.Minute)

	s, err := repo.Create(ctx, 3)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	t.Cleanup(func() { repo.Delete(ctx, s.ID) })

	ttl, err := cli.TTL(ctx, sessionKey(s.ID)).Result()
	if err != nil || ttl <= 0 {
		t.Errorf("expected positive ttl, got %v (err %v)", ttl, err)
	}

	fillKeys(t, s, 2)
	ok, err := repo.Update(ctx, s)
	if err != nil || !ok {
		t.Fatalf("Update failed: ok=%v err=%v", ok, err)
	}
	if ttl, _ := cli.TTL(ctx, sessionKey(s.ID)).Result(); ttl <= 0 {
		t.Error("expected ttl to survive update")
	}

	got, err := repo.Get(ctx, s.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.FilledSlots() != 2 || !sameKey(got.AESKeys[1], s.AESKeys[1]) {
		t.Error("expected stored keys to round trip")
	}

	ok, err = repo.Delete(ctx, s.ID)
	if err != nil || !ok {
		t.Fatalf("Delete failed: ok=%v err=%v", ok, err)
	}
	if got, _ := repo.Get(ctx, s.ID); got != nil {
		t.Error("expected session to be deleted")
	}
	if ok, _ := repo.Update(ctx, s); ok {
		t.Error("expected update of deleted session to report false")
	}
}

func TestRedisTokenRepository_CreateOnce(t *testing.T) {
	ctx := context.Background()
	cli := redisTestClient(t)
	repo := NewRedisTokenRepository(cli, &mockSealer{}, time.Minute)
	id := uuid.New()
	t.Cleanup(func() { repo.Delete(ctx, id) })

	created, err := repo.Create(ctx, &domain.AppToken{SessionID: id, Token: []byte("a")})
	if err != nil || !created {
		t.Fatalf("Create failed: created=%v err=%v", created, err)
	}
	created, err = repo.Create(ctx, &domain.AppToken{SessionID: id, Token: []byte("b")})
	if err != nil || created {
		t.Errorf("expected no-op second create: created=%v err=%v", created, err)
	}
	got, err := repo.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got.Token) != "a" {
		t.Errorf("expected token a, got %q", got.Token)
	}
}
