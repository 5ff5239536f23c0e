package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"secure-channel-service/internal/domain"
	"secure-channel-service/pkg/httputil"
)

const maxResponseBody = 4 << 20

// 暗号化通信で使うヘッダー。
const (
	headerSessionID = "X-Session-ID"
	headerAppToken  = "X-App-Token"
)

// Transport はサーバーとの通信路。
type Transport interface {
	StartSession(ctx context.Context) (uuid.UUID, int, error)
	ExchangeKey(ctx context.Context, id uuid.UUID, slot int, publicKey []byte) ([]byte, error)
	IssueToken(ctx context.Context, id uuid.UUID, body []byte) ([]byte, error)
	DeleteSession(ctx context.Context, id uuid.UUID) error
	Call(ctx context.Context, id uuid.UUID, token []byte, path string, body []byte) ([]byte, error)
}

// APIError はサーバーが返したエラーレスポンス。
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("server returned %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("server returned status %d", e.Status)
}

var codeErrors = map[string]error{
	"DECRYPTION_FAILED":      domain.ErrDecryptionFailed,
	"TOKEN_MISMATCH":         domain.ErrTokenMismatch,
	"SESSION_NOT_READY":      domain.ErrSessionNotReady,
	"PROTOCOL_SEQUENCE":      domain.ErrProtocolSequence,
	"TOKEN_ALREADY_ISSUED":   domain.ErrTokenAlreadyIssued,
	"INVALID_KEY_ENCODING":   domain.ErrInvalidKeyEncoding,
	"INVALID_KEY_INDEX":      domain.ErrInvalidKeyIndex,
	"SESSION_NOT_FOUND":      domain.ErrSessionNotFound,
	"REPOSITORY_UNAVAILABLE": domain.ErrRepositoryUnavailable,
}

// Unwrap はエラーコードに対応するドメインエラーを返す。
func (e *APIError) Unwrap() error {
	return codeErrors[e.Code]
}

// HTTPTransport はHTTP APIを使うTransport。
type HTTPTransport struct {
	baseURL string
	client  *http.Client
}

// NewHTTPTransport は新しいHTTPTransportを生成する。
func NewHTTPTransport(baseURL string, timeout time.Duration) *HTTPTransport {
	return NewHTTPTransportWithClient(baseURL, &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	})
}

// NewHTTPTransportWithClient は指定したhttp.Clientを使うHTTPTransportを生成する。
func NewHTTPTransportWithClient(baseURL string, client *http.Client) *HTTPTransport {
	return &HTTPTransport{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

func (t *HTTPTransport) do(req *http.Request, want int) ([]byte, error) {
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := httputil.ReadBody(resp.Body, resp.ContentLength, maxResponseBody)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != want {
		defer domain.Wipe(body)
		return nil, errorResponse(resp.StatusCode, body)
	}
	return body, nil
}

func errorResponse(status int, body []byte) error {
	apiErr := &APIError{Status: status}
	var errResp struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(bytes.NewReader(body)).Decode(&errResp); err == nil {
		apiErr.Code = errResp.Code
		apiErr.Message = errResp.Message
	}
	return apiErr
}

func (t *HTTPTransport) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, r)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	return req, nil
}

// StartSession はセッションを作成し、IDとレイヤー数を返す。
func (t *HTTPTransport) StartSession(ctx context.Context) (uuid.UUID, int, error) {
	req, err := t.newRequest(ctx, http.MethodPost, "/v1/sessions", nil)
	if err != nil {
		return uuid.Nil, 0, err
	}
	body, err := t.do(req, http.StatusCreated)
	if err != nil {
		return uuid.Nil, 0, err
	}

	var resp struct {
		SessionID string `json:"session_id"`
		Layers    int    `json:"layers"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return uuid.Nil, 0, fmt.Errorf("parsing response: %w", err)
	}
	id, err := uuid.Parse(resp.SessionID)
	if err != nil {
		return uuid.Nil, 0, fmt.Errorf("parsing session id: %w", err)
	}
	return id, resp.Layers, nil
}

// ExchangeKey は公開鍵を送り、暗号化された共通鍵を受け取る。
func (t *HTTPTransport) ExchangeKey(ctx context.Context, id uuid.UUID, slot int, publicKey []byte) ([]byte, error) {
	payload, err := json.Marshal(map[string]string{
		"public_key": base64.StdEncoding.EncodeToString(publicKey),
	})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	req, err := t.newRequest(ctx, http.MethodPost, fmt.Sprintf("/v1/sessions/%s/keys/%d", id, slot), payload)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	body, err := t.do(req, http.StatusOK)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Slot         int    `json:"slot"`
		EncryptedKey string `json:"encrypted_key"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	if resp.Slot != slot {
		return nil, fmt.Errorf("%w: server answered slot %d for %d", domain.ErrProtocolSequence, resp.Slot, slot)
	}
	ct, err := base64.StdEncoding.DecodeString(resp.EncryptedKey)
	if err != nil {
		return nil, fmt.Errorf("%w: encrypted key: %v", domain.ErrDecryptionFailed, err)
	}
	return ct, nil
}

// IssueToken はセッション鍵で暗号化した要求本文を送ってトークンの発行を要求し、暗号化されたレスポンス本文を返す。
func (t *HTTPTransport) IssueToken(ctx context.Context, id uuid.UUID, body []byte) ([]byte, error) {
	req, err := t.newRequest(ctx, http.MethodPost, "/v1/sessions/"+id.String()+"/token", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	return t.do(req, http.StatusOK)
}

// DeleteSession はサーバー上のセッションを削除する。
func (t *HTTPTransport) DeleteSession(ctx context.Context, id uuid.UUID) error {
	req, err := t.newRequest(ctx, http.MethodDelete, "/v1/sessions/"+id.String(), nil)
	if err != nil {
		return err
	}
	_, err = t.do(req, http.StatusNoContent)
	return err
}

// Call は暗号化済みの本文を送り、暗号化されたレスポンス本文を返す。
func (t *HTTPTransport) Call(ctx context.Context, id uuid.UUID, token []byte, path string, body []byte) ([]byte, error) {
	req, err := t.newRequest(ctx, http.MethodPost, path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set(headerSessionID, id.String())
	req.Header.Set(headerAppToken, base64.StdEncoding.EncodeToString(token))
	return t.do(req, http.StatusOK)
}

// IsNotFound はサーバー上にセッションが存在しないことを示すエラーかを返す。
func IsNotFound(err error) bool {
	return errors.Is(err, domain.ErrSessionNotFound)
}
