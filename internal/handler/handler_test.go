package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"secure-channel-service/config"
	"secure-channel-service/internal/crypt"
	"secure-channel-service/internal/domain"
	"secure-channel-service/internal/repository"
	"secure-channel-service/internal/transport"
	"secure-channel-service/internal/usecase"
	"secure-channel-service/pkg/httputil"
)

// failingSessionRepository は常にエラーを返すテスト用リポジトリ。
type failingSessionRepository struct{}

var errStoreDown = errors.New("store down")

func (failingSessionRepository) Create(ctx context.Context, layers int) (*domain.Session, error) {
	return nil, errStoreDown
}

func (failingSessionRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	return nil, errStoreDown
}

func (failingSessionRepository) Update(ctx context.Context, session *domain.Session) (bool, error) {
	return false, errStoreDown
}

func (failingSessionRepository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	return false, errStoreDown
}

type testEnv struct {
	service  *usecase.SessionService
	codec    *transport.Codec
	sessions *SessionHandler
	secure   *SecureHandler
	router   http.Handler
}

func setupHandler(t *testing.T) *testEnv {
	t.Helper()
	return setupHandlerWith(t, repository.NewMemorySessionRepository(time.Hour))
}

func setupHandlerWith(t *testing.T, sessions usecase.SessionRepository) *testEnv {
	t.Helper()
	pool := crypt.NewEnginePool()
	service := usecase.NewSessionService(sessions, repository.NewMemoryTokenRepository(), pool, domain.DefaultLayerCount)
	codec := transport.NewCodec(pool)
	env := &testEnv{
		service:  service,
		codec:    codec,
		sessions: NewSessionHandler(service),
		secure:   NewSecureHandler(service, codec),
	}
	env.router = NewRouter(env.sessions, env.secure, &config.Config{})
	return env
}

func withURLParams(req *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) httputil.ErrorResponse {
	t.Helper()
	var resp httputil.ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	return resp
}

func (e *testEnv) startSession(t *testing.T) uuid.UUID {
	t.Helper()
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/sessions", nil))
	if rec.Code != http.StatusCreated {
		t.Fatalf("want status 201, got %d", rec.Code)
	}
	var resp StartSessionResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	id, err := uuid.Parse(resp.SessionID)
	if err != nil {
		t.Fatalf("parse session id: %v", err)
	}
	return id
}

func (e *testEnv) exchange(t *testing.T, id uuid.UUID, slot int, blob []byte) *httptest.ResponseRecorder {
	t.Helper()
	body, _ := json.Marshal(KeyExchangeRequest{PublicKey: base64.StdEncoding.EncodeToString(blob)})
	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/v1/sessions/%s/keys/%d", id, slot), bytes.NewReader(body))
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

// handshake は全スロットの鍵交換を行い、クライアント側の鍵を持つセッションを返す。
func (e *testEnv) handshake(t *testing.T, id uuid.UUID) *domain.Session {
	t.Helper()
	client := domain.NewSession(id, e.service.Layers(), time.Hour)
	for slot := 1; slot <= e.service.Layers(); slot++ {
		priv, err := crypt.GenerateKeyPair()
		if err != nil {
			t.Fatalf("generate key pair: %v", err)
		}
		blob, err := crypt.EncodePublicKey(&priv.PublicKey)
		if err != nil {
			t.Fatalf("encode public key: %v", err)
		}
		rec := e.exchange(t, id, slot, blob)
		if rec.Code != http.StatusOK {
			t.Fatalf("slot %d: want status 200, got %d", slot, rec.Code)
		}
		var resp KeyExchangeResponse
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp.Slot != slot {
			t.Errorf("want slot %d, got %d", slot, resp.Slot)
		}
		ct, err := base64.StdEncoding.DecodeString(resp.EncryptedKey)
		if err != nil {
			t.Fatalf("decode encrypted key: %v", err)
		}
		k, err := crypt.DecryptKeyIV(priv, ct)
		if err != nil {
			t.Fatalf("decrypt key: %v", err)
		}
		client.AESKeys[slot-1] = k
	}
	return client
}

// tokenRequest はclientの鍵で暗号化したトークン発行要求の本文を返す。
func (e *testEnv) tokenRequest(t *testing.T, client *domain.Session, sessionID string) []byte {
	t.Helper()
	body, err := e.codec.EncryptRequestBody(TokenRequest{SessionID: sessionID}, client)
	if err != nil {
		t.Fatalf("encrypt token request: %v", err)
	}
	return body
}

func (e *testEnv) issueToken(t *testing.T, client *domain.Session) []byte {
	t.Helper()
	body := e.tokenRequest(t, client, client.ID.String())
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/sessions/"+client.ID.String()+"/token", bytes.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("want status 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != httputil.ContentTypeEncrypted {
		t.Errorf("want content type %s, got %s", httputil.ContentTypeEncrypted, ct)
	}
	var resp TokenResponse
	if err := e.codec.DecryptResponseBody(rec.Body.Bytes(), client, &resp); err != nil {
		t.Fatalf("decrypt token response: %v", err)
	}
	token, err := base64.StdEncoding.DecodeString(resp.Token)
	if err != nil {
		t.Fatalf("decode token: %v", err)
	}
	if len(token) != domain.AppTokenSize {
		t.Errorf("want token size %d, got %d", domain.AppTokenSize, len(token))
	}
	return token
}

func (e *testEnv) echo(t *testing.T, client *domain.Session, token []byte, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/secure/echo", bytes.NewReader(body))
	req.Header.Set(HeaderSessionID, client.ID.String())
	req.Header.Set(HeaderAppToken, base64.StdEncoding.EncodeToString(token))
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}
