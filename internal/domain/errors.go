package domain

import "errors"

var (
	// ErrInvalidKeyEncoding は公開鍵ブロブの長さ・形式が不正な場合のエラー。
	ErrInvalidKeyEncoding = errors.New("invalid key encoding")

	// ErrEngineConstructionFailed は暗号エンジンの生成に失敗した場合のエラー。
	ErrEngineConstructionFailed = errors.New("engine construction failed")

	// ErrEngineReleased はプールへ返却済みのエンジンハンドルを使用した場合のエラー。
	ErrEngineReleased = errors.New("engine already released")

	// ErrInvalidKeyIndex は鍵スロット番号が範囲外の場合のエラー。
	ErrInvalidKeyIndex = errors.New("invalid key index")

	// ErrKeyNotSet は指定スロットに鍵が設定されていない場合のエラー。
	ErrKeyNotSet = errors.New("key not set")

	// ErrProtocolSequence はハンドシェイクの手順が順序どおりでない場合のエラー。
	ErrProtocolSequence = errors.New("protocol sequence error")

	// ErrSessionNotReady は全スロットの共通鍵が揃っていないセッションを使おうとした場合のエラー。
	ErrSessionNotReady = errors.New("session not ready")

	// ErrDecryptionFailed は復号に失敗した場合のエラー。破損か鍵違いかは区別しない。
	ErrDecryptionFailed = errors.New("decryption failed")

	// ErrRepositoryUnavailable は永続化層にアクセスできない場合のエラー。
	ErrRepositoryUnavailable = errors.New("repository unavailable")

	// ErrTokenMismatch はアプリケーショントークンが一致しない場合のエラー。
	ErrTokenMismatch = errors.New("token mismatch")

	// ErrSessionNotFound は指定されたセッションが存在しない（または期限切れの）場合のエラー。
	ErrSessionNotFound = errors.New("session not found")

	// ErrTokenAlreadyIssued は既にトークンが発行済みのセッションに再発行しようとした場合のエラー。
	ErrTokenAlreadyIssued = errors.New("token already issued")

	// ErrMigrationFailed はマイグレーション実行時のエラー。
	ErrMigrationFailed = errors.New("migration failed")

	// ErrMigrationFileNotFound はマイグレーションファイルが見つからない場合のエラー。
	ErrMigrationFileNotFound = errors.New("migration file not found")

	// ErrInvalidMigrationFile はマイグレーションファイルのフォーマットが不正な場合のエラー。
	ErrInvalidMigrationFile = errors.New("invalid migration file")
)
