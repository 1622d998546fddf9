package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/sheetgate/internal/model"
)

// PostgresSourceRepo はPostgreSQLを使用したデータソースリポジトリ。
type PostgresSourceRepo struct {
	db *sql.DB
}

// NewPostgresSourceRepo はPostgresSourceRepoを生成する。
func NewPostgresSourceRepo(db *sql.DB) *PostgresSourceRepo {
	return &PostgresSourceRepo{db: db}
}

// FindByID は指定IDのデータソースを取得する。見つからない場合はnilを返す。
func (r *PostgresSourceRepo) FindByID(ctx context.Context, id string) (*model.Source, error) {
	source := &model.Source{}
	var sheetGID, errorMessage sql.NullString

	err := r.db.QueryRowContext(ctx,
		`SELECT id, url, spreadsheet_id, sheet_gid, chart_type,
		        refresh_interval_minutes, refresh_status, consecutive_errors,
		        error_message, next_refresh_at, created_at, updated_at
		 FROM sources WHERE id = $1`,
		id,
	).Scan(
		&source.ID, &source.URL, &source.SpreadsheetID, &sheetGID,
		&source.ChartType, &source.RefreshIntervalMinutes, &source.RefreshStatus,
		&source.ConsecutiveErrors, &errorMessage, &source.NextRefreshAt,
		&source.CreatedAt, &source.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("データソースの取得に失敗しました: %w", err)
	}

	source.SheetGID = nullStringValue(sheetGID)
	source.ErrorMessage = nullStringValue(errorMessage)

	return source, nil
}

// Create はデータソースを作成する。
func (r *PostgresSourceRepo) Create(ctx context.Context, source *model.Source) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sources (id, url, spreadsheet_id, sheet_gid, chart_type,
		                      refresh_interval_minutes, refresh_status, consecutive_errors,
		                      error_message, next_refresh_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		source.ID, source.URL, source.SpreadsheetID, source.SheetGID, source.ChartType,
		source.RefreshIntervalMinutes, source.RefreshStatus, source.ConsecutiveErrors,
		source.ErrorMessage, source.NextRefreshAt, source.CreatedAt, source.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("データソースの作成に失敗しました: %w", err)
	}
	return nil
}

// ListDueForRefresh はリフレッシュ対象のデータソースを排他的に取得する。
func (r *PostgresSourceRepo) ListDueForRefresh(ctx context.Context) ([]*model.Source, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, url, spreadsheet_id, sheet_gid, chart_type,
		        refresh_interval_minutes, refresh_status, consecutive_errors,
		        error_message, next_refresh_at, created_at, updated_at
		 FROM sources
		 WHERE next_refresh_at <= now() AND refresh_status = 'active'
		 FOR UPDATE SKIP LOCKED`,
	)
	if err != nil {
		return nil, fmt.Errorf("リフレッシュ対象の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var sources []*model.Source
	for rows.Next() {
		source := &model.Source{}
		var sheetGID, errorMessage sql.NullString
		if err := rows.Scan(
			&source.ID, &source.URL, &source.SpreadsheetID, &sheetGID,
			&source.ChartType, &source.RefreshIntervalMinutes, &source.RefreshStatus,
			&source.ConsecutiveErrors, &errorMessage, &source.NextRefreshAt,
			&source.CreatedAt, &source.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("データソースの読み取りに失敗しました: %w", err)
		}
		source.SheetGID = nullStringValue(sheetGID)
		source.ErrorMessage = nullStringValue(errorMessage)
		sources = append(sources, source)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("データソースの走査に失敗しました: %w", err)
	}

	return sources, nil
}

// UpdateRefreshState はデータソースのリフレッシュ状態を更新する。
func (r *PostgresSourceRepo) UpdateRefreshState(ctx context.Context, source *model.Source) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sources
		 SET refresh_status = $2, consecutive_errors = $3, error_message = $4,
		     next_refresh_at = $5, updated_at = $6
		 WHERE id = $1`,
		source.ID, source.RefreshStatus, source.ConsecutiveErrors,
		source.ErrorMessage, source.NextRefreshAt, source.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("リフレッシュ状態の更新に失敗しました: %w", err)
	}
	return nil
}

// DeleteByID は指定IDのデータソースを削除する。
func (r *PostgresSourceRepo) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sources WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("データソースの削除に失敗しました: %w", err)
	}
	return nil
}

// nullStringValue はsql.NullStringから値を取り出す。NULLは空文字列になる。
func nullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// compile-time interface check
var _ SourceRepository = (*PostgresSourceRepo)(nil)
