package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"secure-channel-service/internal/domain"
)

func TestMemorySessionRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewMemorySessionRepository(time.Hour)

	s, err := repo.Create(ctx, 3)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := repo.Get(ctx, s.ID)
	if err != nil || got == nil {
		t.Fatalf("Get failed: %v", err)
	}

	// 取得したコピーへの変更は保存されない
	k, _ := domain.NewKeyIV()
	got.AESKeys[0] = k
	again, _ := repo.Get(ctx, s.ID)
	if again.FilledSlots() != 0 {
		t.Error("expected repository copy to be isolated from caller")
	}

	ok, err := repo.Update(ctx, got)
	if err != nil || !ok {
		t.Fatalf("Update failed: ok=%v err=%v", ok, err)
	}
	again, _ = repo.Get(ctx, s.ID)
	if again.FilledSlots() != 1 || !sameKey(again.AESKeys[0], k) {
		t.Error("expected updated slot to be stored")
	}

	ok, err = repo.Delete(ctx, s.ID)
	if err != nil || !ok {
		t.Fatalf("Delete failed: ok=%v err=%v", ok, err)
	}
	if got, _ := repo.Get(ctx, s.ID); got != nil {
		t.Error("expected session to be deleted")
	}
	if ok, _ := repo.Delete(ctx, s.ID); ok {
		t.Error("expected second delete to report false")
	}
	if ok, _ := repo.Update(ctx, again); ok {
		t.Error("expected update of deleted session to report false")
	}
}

func TestMemorySessionRepository_Expired(t *testing.T) {
	ctx := context.Background()
	repo := NewMemorySessionRepository(time.Nanosecond)

	s, err := repo.Create(ctx, 3)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	time.Sleep(time.Millisecond)

	got, err := repo.Get(ctx, s.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != nil {
		t.Error("expected expired session to be nil")
	}
}

func TestMemorySessionRepository_Concurrent(t *testing.T) {
	ctx := context.Background()
	repo := NewMemorySessionRepository(0)

	var wg sync.WaitGroup
	ids := make([]uuid.UUID, 20)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := repo.Create(ctx, 3)
			if err != nil {
				t.Errorf("Create failed: %v", err)
				return
			}
			ids[i] = s.ID
		}(i)
	}
	wg.Wait()

	seen := make(map[uuid.UUID]bool)
	for _, id := range ids {
		if seen[id] {
			t.Errorf("duplicate session id %s", id)
		}
		seen[id] = true
		if got, _ := repo.Get(ctx, id); got == nil {
			t.Errorf("session %s missing", id)
		}
	}
}

func TestMemoryTokenRepository_CreateOnce(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryTokenRepository()
	id := uuid.New()

	created, err := repo.Create(ctx, &domain.AppToken{SessionID: id, Token: []byte("a")})
	if err != nil || !created {
		t.Fatalf("Create failed: created=%v err=%v", created, err)
	}
	created, err = repo.Create(ctx, &domain.AppToken{SessionID: id, Token: []byte("b")})
	if err != nil || created {
		t.Errorf("expected no-op second create: created=%v err=%v", created, err)
	}

	got, _ := repo.Get(ctx, id)
	if string(got.Token) != "a" {
		t.Errorf("expected token a, got %q", got.Token)
	}

	if err := repo.Delete(ctx, id); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if got, _ := repo.Get(ctx, id); got != nil {
		t.Error("expected token to be deleted")
	}
}

func TestMemorySessionRepository_ExpiryDropsTokens(t *testing.T) {
	ctx := context.Background()
	tokens := NewMemoryTokenRepository()
	repo := NewMemorySessionRepository(time.Hour).WithTokens(tokens)

	swept, _ := repo.Create(ctx, 3)
	lazy, _ := repo.Create(ctx, 3)
	live, _ := repo.Create(ctx, 3)
	for _, id := range []uuid.UUID{swept.ID, lazy.ID, live.ID} {
		if _, err := tokens.Create(ctx, &domain.AppToken{SessionID: id, Token: []byte("t")}); err != nil {
			t.Fatalf("token Create failed: %v", err)
		}
	}

	past := time.Now().Add(-time.Minute)
	repo.mu.Lock()
	repo.sessions[lazy.ID].ExpiresAt = past
	repo.mu.Unlock()

	// 参照時に期限切れを検出した場合もトークンを破棄する
	if got, _ := repo.Get(ctx, lazy.ID); got != nil {
		t.Error("expected expired session to be hidden")
	}
	if got, _ := tokens.Get(ctx, lazy.ID); got != nil {
		t.Error("expected token of lazily expired session to be deleted")
	}

	repo.mu.Lock()
	repo.sessions[swept.ID].ExpiresAt = past
	repo.mu.Unlock()

	n, err := repo.DeleteExpired(ctx, time.Now())
	if err != nil {
		t.Fatalf("DeleteExpired failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 expired session deleted, got %d", n)
	}
	if got, _ := tokens.Get(ctx, swept.ID); got != nil {
		t.Error("expected token of swept session to be deleted")
	}
	if got, _ := tokens.Get(ctx, live.ID); got == nil {
		t.Error("expected token of live session to remain")
	}
	if got, _ := repo.Get(ctx, live.ID); got == nil {
		t.Error("expected live session to remain")
	}
}
