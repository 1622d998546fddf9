// Package model はドメインモデルを定義する。
package model

import "time"

// RefreshStatus はデータソースの自動リフレッシュ状態を表す。
type RefreshStatus string

const (
	// RefreshStatusActive はアクティブなリフレッシュ状態。
	RefreshStatusActive RefreshStatus = "active"
	// RefreshStatusStopped は停止されたリフレッシュ状態。
	RefreshStatusStopped RefreshStatus = "stopped"
)

// Source は定期リフレッシュ対象のスプレッドシートデータソースを表す。
type Source struct {
	ID                     string
	URL                    string
	SpreadsheetID          string
	SheetGID               string
	ChartType              ChartType
	RefreshIntervalMinutes int
	RefreshStatus          RefreshStatus
	ConsecutiveErrors      int
	ErrorMessage           string
	NextRefreshAt          time.Time
	CreatedAt              time.Time
	UpdatedAt              time.Time
}
