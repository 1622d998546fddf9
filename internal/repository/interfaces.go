// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/sheetgate/internal/model"
)

// GateRepository はゲートデータの永続化インターフェース。
type GateRepository interface {
	// FindByID は指定IDのゲートを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Gate, error)

	// CreateWithRoutes はゲートとルートを同一トランザクションで作成する。
	// ルートはPositionの昇順で照合される前提で保存される。
	CreateWithRoutes(ctx context.Context, gate *model.Gate, routes []*model.GateRoute) error

	// ListRoutes は指定ゲートのルートをPosition昇順で取得する。
	ListRoutes(ctx context.Context, gateID string) ([]*model.GateRoute, error)

	// DeleteByID は指定IDのゲートを削除する。ルートはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// SourceRepository はスプレッドシートデータソースの永続化インターフェース。
type SourceRepository interface {
	// FindByID は指定IDのデータソースを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Source, error)

	// Create はデータソースを作成する。
	Create(ctx context.Context, source *model.Source) error

	// ListDueForRefresh はリフレッシュ対象のデータソースを取得する。
	// next_refresh_at <= now() かつ refresh_status = 'active' のソースを
	// FOR UPDATE SKIP LOCKEDで排他的に取得する。
	ListDueForRefresh(ctx context.Context) ([]*model.Source, error)

	// UpdateRefreshState はデータソースのリフレッシュ状態を更新する。
	// refresh_status、consecutive_errors、error_message、next_refresh_atを更新する。
	UpdateRefreshState(ctx context.Context, source *model.Source) error

	// DeleteByID は指定IDのデータソースを削除する。
	DeleteByID(ctx context.Context, id string) error
}
