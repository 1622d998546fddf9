// Package model はドメインモデルを定義する。
package model

import "time"

// Gate はパスワード認証で保護された遷移先（ゲート）を表す。
type Gate struct {
	ID              string
	Name            string
	TokenTTL        time.Duration // 発行トークンの有効期間
	MaxAttempts     int           // 連続失敗の上限
	LockoutDuration time.Duration // ロックアウト期間
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// GateRoute はゲート内の1ルート（パスワードと遷移先の対応）を表す。
// 複数ルートはPositionの昇順で照合され、最初に一致したルートが採用される。
type GateRoute struct {
	ID           string
	GateID       string
	Position     int
	PasswordHash string // PBKDF2形式のエンコード済みハッシュ
	Destination  string // 認証成功時の遷移先URLまたはパス
}

// AuthSession はゲートに対して発行された認可トークンを表す。
// gateIDごとに同時に1つだけ存在し、新規発行は既存のものを上書きする。
type AuthSession struct {
	Token     string    `json:"token"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	GateID    string    `json:"gateId"`
}

// Expired はセッションが期限切れかどうかを返す。
func (s *AuthSession) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}
