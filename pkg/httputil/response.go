// Package httputil はHTTPレスポンス生成のユーティリティを提供する。
package httputil

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
)

// 暗号化ペイロードのヘッダー。
const (
	ContentTypeEncrypted = "application/octet-stream"
	HeaderPayloadType    = "X-Payload-Type"
	PayloadTypeJSON      = "application/json"
)

// ErrorResponse はエラーレスポンスの形式。
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// JSON はJSONレスポンスを返す。
func JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// ヘッダーは送信済みのためログのみ
			slog.Error("failed to write json response", "error", err)
		}
	}
}

// Error はエラーレスポンスを返す。
func Error(w http.ResponseWriter, status int, code string, message string) {
	JSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// Encrypted は暗号化済みの本文を返す。Content-Length は暗号文の長さ。
func Encrypted(w http.ResponseWriter, status int, ciphertext []byte) {
	w.Header().Set("Content-Type", ContentTypeEncrypted)
	w.Header().Set(HeaderPayloadType, PayloadTypeJSON)
	w.Header().Set("Content-Length", strconv.Itoa(len(ciphertext)))
	w.WriteHeader(status)
	if _, err := w.Write(ciphertext); err != nil {
		slog.Error("failed to write encrypted response", "error", err)
	}
}
