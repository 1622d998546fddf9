package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/sheetgate/internal/model"
)

// PostgresGateRepo はPostgreSQLを使用したゲートリポジトリ。
type PostgresGateRepo struct {
	db *sql.DB
}

// NewPostgresGateRepo はPostgresGateRepoを生成する。
func NewPostgresGateRepo(db *sql.DB) *PostgresGateRepo {
	return &PostgresGateRepo{db: db}
}

// FindByID は指定IDのゲートを取得する。見つからない場合はnilを返す。
func (r *PostgresGateRepo) FindByID(ctx context.Context, id string) (*model.Gate, error) {
	gate := &model.Gate{}
	var tokenTTLSeconds, lockoutSeconds int64

	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, token_ttl_seconds, max_attempts, lockout_seconds,
		        created_at, updated_at
		 FROM gates WHERE id = $1`,
		id,
	).Scan(
		&gate.ID, &gate.Name, &tokenTTLSeconds, &gate.MaxAttempts,
		&lockoutSeconds, &gate.CreatedAt, &gate.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ゲートの取得に失敗しました: %w", err)
	}

	gate.TokenTTL = time.Duration(tokenTTLSeconds) * time.Second
	gate.LockoutDuration = time.Duration(lockoutSeconds) * time.Second

	return gate, nil
}

// CreateWithRoutes はゲートとルートを同一トランザクションで作成する。
func (r *PostgresGateRepo) CreateWithRoutes(ctx context.Context, gate *model.Gate, routes []*model.GateRoute) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO gates (id, name, token_ttl_seconds, max_attempts, lockout_seconds, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		gate.ID, gate.Name, int64(gate.TokenTTL.Seconds()), gate.MaxAttempts,
		int64(gate.LockoutDuration.Seconds()), gate.CreatedAt, gate.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("ゲートの作成に失敗しました: %w", err)
	}

	for _, route := range routes {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO gate_routes (id, gate_id, position, password_hash, destination)
			 VALUES ($1, $2, $3, $4, $5)`,
			route.ID, route.GateID, route.Position, route.PasswordHash, route.Destination,
		)
		if err != nil {
			return fmt.Errorf("ゲートルートの作成に失敗しました: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}
	return nil
}

// ListRoutes は指定ゲートのルートをPosition昇順で取得する。
func (r *PostgresGateRepo) ListRoutes(ctx context.Context, gateID string) ([]*model.GateRoute, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, gate_id, position, password_hash, destination
		 FROM gate_routes
		 WHERE gate_id = $1
		 ORDER BY position ASC`,
		gateID,
	)
	if err != nil {
		return nil, fmt.Errorf("ゲートルートの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var routes []*model.GateRoute
	for rows.Next() {
		route := &model.GateRoute{}
		if err := rows.Scan(&route.ID, &route.GateID, &route.Position, &route.PasswordHash, &route.Destination); err != nil {
			return nil, fmt.Errorf("ゲートルートの読み取りに失敗しました: %w", err)
		}
		routes = append(routes, route)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ゲートルートの走査に失敗しました: %w", err)
	}

	return routes, nil
}

// DeleteByID は指定IDのゲートを削除する。ルートはCASCADE削除される。
func (r *PostgresGateRepo) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM gates WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ゲートの削除に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ GateRepository = (*PostgresGateRepo)(nil)
