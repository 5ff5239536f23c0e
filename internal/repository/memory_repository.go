package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"secure-channel-service/internal/domain"
)

// MemorySessionRepository はプロセス内のマップにセッションを保持する。永続化はされない。
type MemorySessionRepository struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*domain.Session
	ttl      time.Duration
	tokens   *MemoryTokenRepository
}

// NewMemorySessionRepository は新しいMemorySessionRepositoryを生成する。ttlが0なら期限なし。
func NewMemorySessionRepository(ttl time.Duration) *MemorySessionRepository {
	return &MemorySessionRepository{
		sessions: make(map[uuid.UUID]*domain.Session),
		ttl:      ttl,
	}
}

// WithTokens は期限切れで破棄したセッションのトークンをtokensからも削除させる。
func (r *MemorySessionRepository) WithTokens(tokens *MemoryTokenRepository) *MemorySessionRepository {
	r.tokens = tokens
	return r
}

// expireLocked は期限切れのセッションとそのトークンを破棄する。r.muを保持して呼ぶ。
func (r *MemorySessionRepository) expireLocked(s *domain.Session) {
	s.Wipe()
	delete(r.sessions, s.ID)
	if r.tokens != nil {
		r.tokens.drop(s.ID)
	}
}

// Create は空のセッションを作成する。
func (r *MemorySessionRepository) Create(ctx context.Context, layers int) (*domain.Session, error) {
	s := domain.NewSession(uuid.New(), layers, r.ttl)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s.Clone()
	return s, nil
}

// Get はセッションのコピーを返す。期限切れのものは破棄してnilを返す。
func (r *MemorySessionRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, nil
	}
	if s.Expired(time.Now()) {
		r.expireLocked(s)
		return nil, nil
	}
	return s.Clone(), nil
}

// Update は保存済みのセッションを置き換える。存在しない場合はfalseを返す。
func (r *MemorySessionRepository) Update(ctx context.Context, session *domain.Session) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	old, ok := r.sessions[session.ID]
	if !ok {
		return false, nil
	}
	old.Wipe()
	r.sessions[session.ID] = session.Clone()
	return true, nil
}

// Delete はセッションを削除する。
func (r *MemorySessionRepository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return false, nil
	}
	s.Wipe()
	delete(r.sessions, id)
	return true, nil
}

// DeleteExpired は期限切れのセッションをトークンごと削除し、削除件数を返す。
func (r *MemorySessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, s := range r.sessions {
		if s.Expired(now) {
			r.expireLocked(s)
			n++
		}
	}
	return n, nil
}

// MemoryTokenRepository はプロセス内のマップにアプリケーショントークンを保持する。
type MemoryTokenRepository struct {
	mu     sync.Mutex
	tokens map[uuid.UUID]*domain.AppToken
}

// NewMemoryTokenRepository は新しいMemoryTokenRepositoryを生成する。
func NewMemoryTokenRepository() *MemoryTokenRepository {
	return &MemoryTokenRepository{tokens: make(map[uuid.UUID]*domain.AppToken)}
}

func copyToken(t *domain.AppToken) *domain.AppToken {
	return &domain.AppToken{
		SessionID: t.SessionID,
		Token:     append([]byte(nil), t.Token...),
		CreatedAt: t.CreatedAt,
	}
}

// Create はトークンを保存する。既に存在する場合は何もせずfalseを返す。
func (r *MemoryTokenRepository) Create(ctx context.Context, token *domain.AppToken) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tokens[token.SessionID]; ok {
		return false, nil
	}
	r.tokens[token.SessionID] = copyToken(token)
	return true, nil
}

// Get はトークンを返す。存在しない場合はnil。
func (r *MemoryTokenRepository) Get(ctx context.Context, sessionID uuid.UUID) (*domain.AppToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tokens[sessionID]
	if !ok {
		return nil, nil
	}
	return copyToken(t), nil
}

// Delete はトークンを削除する。
func (r *MemoryTokenRepository) Delete(ctx context.Context, sessionID uuid.UUID) error {
	r.drop(sessionID)
	return nil
}

func (r *MemoryTokenRepository) drop(sessionID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.tokens[sessionID]; ok {
		domain.Wipe(t.Token)
		delete(r.tokens, sessionID)
	}
}
