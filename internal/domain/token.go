package domain

import (
	"time"

	"github.com/google/uuid"
)

// AppTokenSize はアプリケーショントークンのバイト長。
const AppTokenSize = 32

// AppToken はセッションに1対1で紐づくアプリケーショントークンを表す。
type AppToken struct {
	SessionID uuid.UUID
	Token     []byte
	CreatedAt time.Time
}
