// Package handler はHTTPハンドラを提供する。
package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"secure-channel-service/internal/domain"
	"secure-channel-service/pkg/httputil"
)

// writeError はドメインエラーをHTTPステータスに変換して返す。
// 復号失敗は原因（破損か鍵違いか）を区別せず403で返す。
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrDecryptionFailed):
		httputil.Error(w, http.StatusForbidden, "DECRYPTION_FAILED", "request could not be decrypted")
	case errors.Is(err, domain.ErrTokenMismatch):
		httputil.Error(w, http.StatusForbidden, "TOKEN_MISMATCH", "invalid application token")
	case errors.Is(err, domain.ErrSessionNotReady):
		httputil.Error(w, http.StatusConflict, "SESSION_NOT_READY", "session handshake is not complete")
	case errors.Is(err, domain.ErrProtocolSequence):
		httputil.Error(w, http.StatusConflict, "PROTOCOL_SEQUENCE", "key exchange step is out of order")
	case errors.Is(err, domain.ErrTokenAlreadyIssued):
		httputil.Error(w, http.StatusConflict, "TOKEN_ALREADY_ISSUED", "token already issued for this session")
	case errors.Is(err, domain.ErrInvalidKeyEncoding):
		httputil.Error(w, http.StatusBadRequest, "INVALID_KEY_ENCODING", "invalid public key encoding")
	case errors.Is(err, domain.ErrInvalidKeyIndex):
		httputil.Error(w, http.StatusBadRequest, "INVALID_KEY_INDEX", "invalid key slot")
	case errors.Is(err, domain.ErrSessionNotFound):
		httputil.Error(w, http.StatusNotFound, "SESSION_NOT_FOUND", "session not found")
	case errors.Is(err, domain.ErrRepositoryUnavailable):
		httputil.Error(w, http.StatusServiceUnavailable, "REPOSITORY_UNAVAILABLE", "session store unavailable")
	default:
		slog.ErrorContext(r.Context(), "unhandled error",
			"path", r.URL.Path,
			"error", err,
		)
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}
