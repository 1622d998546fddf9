package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresTokenStore はPostgreSQLを使用した永続トークンストア。
// gate.TokenStoreインターフェースを実装する。期限判定の正は
// TokenManagerの遅延削除にあり、expires_at列は参考情報として保持する。
type PostgresTokenStore struct {
	db *sql.DB
}

// NewPostgresTokenStore はPostgresTokenStoreを生成する。
func NewPostgresTokenStore(db *sql.DB) *PostgresTokenStore {
	return &PostgresTokenStore{db: db}
}

// Set はキーに値を保存する。同一キーへの保存は上書きになる。
// MemoryTokenStoreと同じ契約で、ttlが0以下の場合は無期限として扱い、
// expires_atにはNULLを保存する。
func (s *PostgresTokenStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	now := time.Now()
	var expiresAt sql.NullTime
	if ttl > 0 {
		expiresAt = sql.NullTime{Time: now.Add(ttl), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO gate_tokens (storage_key, payload, expires_at, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (storage_key)
		 DO UPDATE SET payload = EXCLUDED.payload,
		               expires_at = EXCLUDED.expires_at,
		               created_at = EXCLUDED.created_at`,
		key, value, expiresAt, now,
	)
	if err != nil {
		return fmt.Errorf("トークンの保存に失敗しました: %w", err)
	}
	return nil
}

// Get はキーの値を取得する。存在しない場合は(nil, nil)を返す。
func (s *PostgresTokenStore) Get(ctx context.Context, key string) ([]byte, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM gate_tokens WHERE storage_key = $1`,
		key,
	).Scan(&payload)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("トークンの取得に失敗しました: %w", err)
	}
	return payload, nil
}

// Delete はキーを削除する。冪等。
func (s *PostgresTokenStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM gate_tokens WHERE storage_key = $1`, key)
	if err != nil {
		return fmt.Errorf("トークンの削除に失敗しました: %w", err)
	}
	return nil
}

// DeleteAll は全トークンを削除する。冪等。
func (s *PostgresTokenStore) DeleteAll(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM gate_tokens`)
	if err != nil {
		return fmt.Errorf("トークンの一括削除に失敗しました: %w", err)
	}
	return nil
}
