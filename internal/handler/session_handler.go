package handler

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"secure-channel-service/internal/domain"
	"secure-channel-service/internal/middleware"
	"secure-channel-service/internal/usecase"
	"secure-channel-service/pkg/httputil"
)

const maxKeyExchangeBody = 4 << 10

// SessionHandler はハンドシェイクのHTTPハンドラを提供する。
type SessionHandler struct {
	service *usecase.SessionService
}

// NewSessionHandler は新しいSessionHandlerを生成する。
func NewSessionHandler(service *usecase.SessionService) *SessionHandler {
	return &SessionHandler{service: service}
}

// StartSessionResponse はセッション作成のレスポンス形式。
type StartSessionResponse struct {
	SessionID string `json:"session_id"`
	Layers    int    `json:"layers"`
}

// KeyExchangeRequest は鍵交換のリクエスト形式。
type KeyExchangeRequest struct {
	PublicKey string `json:"public_key"`
}

// KeyExchangeResponse は鍵交換のレスポンス形式。
type KeyExchangeResponse struct {
	Slot         int    `json:"slot"`
	EncryptedKey string `json:"encrypted_key"`
}

func audit(r *http.Request, operation, sessionID string, slot int, err error) {
	result := middleware.ResultSuccess
	if err != nil {
		result = middleware.ResultFailure
	}
	operationCounter.WithLabelValues(operation, result).Inc()
	middleware.WriteAuditLog(r.Context(), operation, sessionID, slot, result)
}

func parseSessionID(s string) (uuid.UUID, bool) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// StartSession は新しいセッションを作成する。
func (h *SessionHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	id, err := h.service.StartSession(r.Context())
	audit(r, "start_session", id.String(), 0, err)
	if err != nil {
		writeError(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusCreated, StartSessionResponse{
		SessionID: id.String(),
		Layers:    h.service.Layers(),
	})
}

// ExchangeKey はピアの公開鍵を受け取り、暗号化した共通鍵を返す。
func (h *SessionHandler) ExchangeKey(w http.ResponseWriter, r *http.Request) {
	rawID := chi.URLParam(r, "session_id")
	id, ok := parseSessionID(rawID)
	if !ok {
		httputil.Error(w, http.StatusBadRequest, "INVALID_SESSION_ID", "invalid session ID format")
		return
	}
	slot, err := strconv.Atoi(chi.URLParam(r, "slot"))
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_KEY_INDEX", "invalid key slot")
		return
	}

	var req KeyExchangeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxKeyExchangeBody)).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}
	publicKey, err := base64.StdEncoding.DecodeString(req.PublicKey)
	if err != nil {
		writeError(w, r, domain.ErrInvalidKeyEncoding)
		return
	}

	ciphertext, err := h.service.ExchangeKey(r.Context(), id, slot, publicKey)
	audit(r, "exchange_key", id.String(), slot, err)
	if err != nil {
		writeError(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, KeyExchangeResponse{
		Slot:         slot,
		EncryptedKey: base64.StdEncoding.EncodeToString(ciphertext),
	})
}

// DeleteSession はセッションを削除する。
func (h *SessionHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id, ok := parseSessionID(chi.URLParam(r, "session_id"))
	if !ok {
		httputil.Error(w, http.StatusBadRequest, "INVALID_SESSION_ID", "invalid session ID format")
		return
	}

	err := h.service.DeleteSession(r.Context(), id)
	audit(r, "delete_session", id.String(), 0, err)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
