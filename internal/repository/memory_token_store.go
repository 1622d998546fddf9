package repository

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// memoryCleanupInterval は期限切れエントリの掃除間隔。
const memoryCleanupInterval = 10 * time.Minute

// MemoryTokenStore はインメモリのトークンストア。
// gate.TokenStoreインターフェースを実装する。プロセス再起動で内容は失われる。
// TTL付きのキャッシュで自動的に期限切れエントリを破棄するが、
// 期限判定の正はTokenManagerの遅延削除にある。
type MemoryTokenStore struct {
	cache *gocache.Cache
}

// NewMemoryTokenStore はMemoryTokenStoreを生成する。
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{
		cache: gocache.New(gocache.NoExpiration, memoryCleanupInterval),
	}
}

// Set はキーに値を保存する。ttlが0以下の場合は無期限として扱う。
func (s *MemoryTokenStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	// 保存するスライスのコピーを保持し、呼び出し元の再利用から守る
	buf := make([]byte, len(value))
	copy(buf, value)
	s.cache.Set(key, buf, ttl)
	return nil
}

// Get はキーの値を取得する。存在しない場合は(nil, nil)を返す。
func (s *MemoryTokenStore) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := s.cache.Get(key)
	if !ok {
		return nil, nil
	}
	return v.([]byte), nil
}

// Delete はキーを削除する。冪等。
func (s *MemoryTokenStore) Delete(_ context.Context, key string) error {
	s.cache.Delete(key)
	return nil
}

// DeleteAll は全キーを削除する。冪等。
func (s *MemoryTokenStore) DeleteAll(_ context.Context) error {
	s.cache.Flush()
	return nil
}
