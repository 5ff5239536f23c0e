package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"secure-channel-service/internal/domain"
	"secure-channel-service/internal/transport"
	"secure-channel-service/internal/usecase"
	"secure-channel-service/pkg/httputil"
)

// 暗号化通信で使うヘッダー。
const (
	HeaderSessionID = "X-Session-ID"
	HeaderAppToken  = "X-App-Token"
)

const maxSecureBody = 1 << 20

type sessionCtxKey struct{}

// SecureHandler は暗号化されたリクエスト/レスポンスを扱うハンドラを提供する。
type SecureHandler struct {
	service *usecase.SessionService
	codec   *transport.Codec
}

// NewSecureHandler は新しいSecureHandlerを生成する。
func NewSecureHandler(service *usecase.SessionService, codec *transport.Codec) *SecureHandler {
	return &SecureHandler{service: service, codec: codec}
}

// maxTokenRequestBody はトークン発行要求の本文の上限。
const maxTokenRequestBody = 4 << 10

// TokenRequest はトークン発行要求の復号後の形式。
// セッション鍵で暗号化されていることが鍵の保持の証明になる。
type TokenRequest struct {
	SessionID string `json:"session_id"`
}

// TokenResponse はトークン発行のレスポンス形式（暗号化して返す）。
type TokenResponse struct {
	Token string `json:"token"`
}

// sessionFromContext はRequireSessionが検証したセッションを返す。
func sessionFromContext(ctx context.Context) *domain.Session {
	s, _ := ctx.Value(sessionCtxKey{}).(*domain.Session)
	return s
}

// RequireSession はセッションIDとアプリケーショントークンを検証し、準備完了のセッションをコンテキストに格納する。
func (h *SecureHandler) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseSessionID(r.Header.Get(HeaderSessionID))
		if !ok {
			httputil.Error(w, http.StatusBadRequest, "INVALID_SESSION_ID", "invalid session ID format")
			return
		}
		token, err := base64.StdEncoding.DecodeString(r.Header.Get(HeaderAppToken))
		if err != nil || len(token) == 0 {
			writeError(w, r, domain.ErrTokenMismatch)
			return
		}

		sess, err := h.service.VerifyToken(r.Context(), id, token)
		domain.Wipe(token)
		if err != nil {
			audit(r, "verify_token", id.String(), 0, err)
			writeError(w, r, err)
			return
		}
		defer sess.Wipe()

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionCtxKey{}, sess)))
	})
}

// IssueToken は準備完了のセッションにアプリケーショントークンを発行し、暗号化して返す。
func (h *SecureHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	id, ok := parseSessionID(chi.URLParam(r, "session_id"))
	if !ok {
		httputil.Error(w, http.StatusBadRequest, "INVALID_SESSION_ID", "invalid session ID format")
		return
	}

	sess, err := h.service.GetSession(r.Context(), id)
	if err != nil {
		audit(r, "issue_token", id.String(), 0, err)
		writeError(w, r, err)
		return
	}
	defer sess.Wipe()
	if !sess.Ready() {
		audit(r, "issue_token", id.String(), 0, domain.ErrSessionNotReady)
		writeError(w, r, domain.ErrSessionNotReady)
		return
	}

	raw, err := httputil.ReadBody(r.Body, r.ContentLength, maxTokenRequestBody)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "request body too large")
		return
	}
	var req TokenRequest
	if err := h.codec.DecryptRequestBody(raw, sess, &req); err != nil {
		audit(r, "issue_token", id.String(), 0, err)
		writeError(w, r, err)
		return
	}
	if req.SessionID != id.String() {
		err := fmt.Errorf("%w: token request bound to another session", domain.ErrDecryptionFailed)
		audit(r, "issue_token", id.String(), 0, err)
		writeError(w, r, err)
		return
	}

	token, err := h.service.IssueToken(r.Context(), id)
	audit(r, "issue_token", id.String(), 0, err)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer domain.Wipe(token.Token)

	body, err := h.codec.EncryptResponseBody(TokenResponse{
		Token: base64.StdEncoding.EncodeToString(token.Token),
	}, sess)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.Encrypted(w, http.StatusOK, body)
}

// Echo は復号したリクエスト本文をそのまま暗号化して返す。
func (h *SecureHandler) Echo(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	if sess == nil {
		writeError(w, r, domain.ErrSessionNotReady)
		return
	}

	raw, err := httputil.ReadBody(r.Body, r.ContentLength, maxSecureBody)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "request body too large")
		return
	}

	var payload json.RawMessage
	err = h.codec.DecryptRequestBody(raw, sess, &payload)
	audit(r, "secure_echo", sess.ID.String(), 0, err)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer domain.Wipe(payload)

	body, err := h.codec.EncryptResponseBody(payload, sess)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.Encrypted(w, http.StatusOK, body)
}
