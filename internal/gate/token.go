package gate

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/sheetgate/internal/model"
)

// tokenKeyPrefix はトークン保存キーの名前空間プレフィックス。
const tokenKeyPrefix = "sheetgate:token:"

// TokenStore はトークンの保存バックエンドのインターフェース。
// セッションスコープ、永続ローカル、インメモリの各実装が存在する。
type TokenStore interface {
	// Set はキーに値を保存する。ttlはバックエンドが期限管理に利用できる
	// ヒントであり、期限判定の正はTokenManager側の遅延削除にある。
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Get はキーの値を取得する。存在しない場合は(nil, nil)を返す。
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete はキーを削除する。存在しないキーの削除はエラーにならない。
	Delete(ctx context.Context, key string) error
	// DeleteAll は名前空間内の全キーを削除する。
	DeleteAll(ctx context.Context) error
}

// KeyProvider は暗号化鍵を供給するインターフェース。
// テストでは固定鍵の実装を注入して暗号化の往復を決定的に検証できる。
type KeyProvider interface {
	Key() ([]byte, error)
}

// EphemeralKeyProvider はプロセス生存期間の鍵を供給する。
// 鍵は生成時にランダムに作られ、永続化されない。そのため保存済みトークンは
// 鍵の再生成（プロセス再起動）をまたいで復号できず、遅延削除で破棄される。
type EphemeralKeyProvider struct {
	key []byte
}

// NewEphemeralKeyProvider は32バイトのランダム鍵を持つプロバイダーを生成する。
func NewEphemeralKeyProvider() (*EphemeralKeyProvider, error) {
	key := make([]byte, 32)
	if _, err := cryptoRandRead(key); err != nil {
		return nil, fmt.Errorf("failed to generate encryption key: %w", err)
	}
	return &EphemeralKeyProvider{key: key}, nil
}

// Key は保持している鍵を返す。
func (p *EphemeralKeyProvider) Key() ([]byte, error) {
	return p.key, nil
}

// StaticKeyProvider は固定鍵を供給する。主にテスト用。
type StaticKeyProvider []byte

// Key は固定鍵を返す。
func (p StaticKeyProvider) Key() ([]byte, error) {
	return []byte(p), nil
}

// tokenEnvelope は暗号化されたトークンの保存形式。
// 暗号化に失敗した場合はAuthSessionのJSONがそのまま保存される
// （可用性を機密性より優先する縮退モード）。
type tokenEnvelope struct {
	Data      string `json:"data"`
	IV        string `json:"iv"`
	Timestamp int64  `json:"timestamp"`
}

// TokenManager はゲートごとの単一スロット暗号化トークン保存を提供する。
// 期限切れトークンはバックグラウンドスイープではなく読み取り時に
// 遅延削除される。
type TokenManager struct {
	store  TokenStore
	keys   KeyProvider
	logger *slog.Logger
	now    func() time.Time
}

// NewTokenManager はTokenManagerの新しいインスタンスを生成する。
func NewTokenManager(store TokenStore, keys KeyProvider, logger *slog.Logger) *TokenManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenManager{
		store:  store,
		keys:   keys,
		logger: logger,
		now:    time.Now,
	}
}

// Store はゲートに対するトークンを保存する。
// 同じgateIDに対する既存トークンは上書きされる。
// expiresAtが未来でない場合はInvalidArgumentエラーを返す。
func (m *TokenManager) Store(ctx context.Context, gateID, token string, expiresAt time.Time) error {
	if gateID == "" {
		return model.NewInvalidArgumentError("gateIDが空です")
	}
	if token == "" {
		return model.NewInvalidArgumentError("トークンが空です")
	}

	now := m.now()
	if !expiresAt.After(now) {
		return model.NewInvalidArgumentError("expiresAtは未来の時刻を指定してください")
	}

	session := model.AuthSession{
		Token:     token,
		CreatedAt: now,
		ExpiresAt: expiresAt,
		GateID:    gateID,
	}
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to serialize token payload: %w", err)
	}

	blob, err := m.seal(payload, now)
	if err != nil {
		// 暗号化に失敗しても認証フロー全体を失敗させず、
		// 平文で保存する縮退モードに切り替える。
		m.logger.Warn("token encryption unavailable, storing plaintext (reduced security)",
			slog.String("gate_id", gateID),
			slog.String("error", err.Error()),
		)
		blob = payload
	}

	return m.store.Set(ctx, storageKey(gateID), blob, expiresAt.Sub(now))
}

// Get はゲートのトークンを取得する。
// 存在しない、復号できない、または期限切れの場合はスロットをクリアして
// 空文字列を返す（エラーにはしない）。
func (m *TokenManager) Get(ctx context.Context, gateID string) (string, error) {
	if gateID == "" {
		return "", nil
	}

	blob, err := m.store.Get(ctx, storageKey(gateID))
	if err != nil {
		return "", fmt.Errorf("failed to read token slot: %w", err)
	}
	if blob == nil {
		return "", nil
	}

	session, ok := m.open(blob)
	if !ok {
		// 復号不能（鍵の再生成後など）は無効として扱い、スロットを破棄する
		m.clearSilently(ctx, gateID)
		return "", nil
	}

	if session.Expired(m.now()) {
		m.clearSilently(ctx, gateID)
		return "", nil
	}

	return session.Token, nil
}

// IsValid はゲートに有効なトークンが存在するかどうかを返す。
func (m *TokenManager) IsValid(ctx context.Context, gateID string) bool {
	token, err := m.Get(ctx, gateID)
	return err == nil && token != ""
}

// Clear はゲートのトークンスロットを削除する。冪等。
func (m *TokenManager) Clear(ctx context.Context, gateID string) error {
	return m.store.Delete(ctx, storageKey(gateID))
}

// ClearAll は全ゲートのトークンスロットを削除する。冪等。
func (m *TokenManager) ClearAll(ctx context.Context) error {
	return m.store.DeleteAll(ctx)
}

// seal はペイロードをAES-GCMで暗号化し、エンベロープJSONに整形する。
func (m *TokenManager) seal(payload []byte, now time.Time) ([]byte, error) {
	key, err := m.keys.Key()
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := cryptoRandRead(nonce); err != nil {
		return nil, err
	}

	ciphertext := gcm.Seal(nil, nonce, payload, nil)
	return json.Marshal(tokenEnvelope{
		Data:      base64.StdEncoding.EncodeToString(ciphertext),
		IV:        base64.StdEncoding.EncodeToString(nonce),
		Timestamp: now.Unix(),
	})
}

// open は保存ブロブからAuthSessionを復元する。
// 暗号化エンベロープの復号を試み、失敗した場合は平文保存の縮退モードとして
// 直接のJSONパースにフォールバックする。
func (m *TokenManager) open(blob []byte) (*model.AuthSession, bool) {
	var envelope tokenEnvelope
	if err := json.Unmarshal(blob, &envelope); err == nil && envelope.Data != "" && envelope.IV != "" {
		if payload, err := m.unseal(envelope); err == nil {
			var session model.AuthSession
			if err := json.Unmarshal(payload, &session); err == nil {
				return &session, true
			}
		}
		return nil, false
	}

	// 平文フォールバック
	var session model.AuthSession
	if err := json.Unmarshal(blob, &session); err == nil && session.Token != "" {
		return &session, true
	}
	return nil, false
}

// unseal はエンベロープをAES-GCMで復号する。
func (m *TokenManager) unseal(envelope tokenEnvelope) ([]byte, error) {
	key, err := m.keys.Key()
	if err != nil {
		return nil, err
	}

	ciphertext, err := base64.StdEncoding.DecodeString(envelope.Data)
	if err != nil {
		return nil, err
	}
	nonce, err := base64.StdEncoding.DecodeString(envelope.IV)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("invalid nonce size: %d", len(nonce))
	}

	return gcm.Open(nil, nonce, ciphertext, nil)
}

// clearSilently はスロットを削除し、失敗はログに記録するだけで無視する。
func (m *TokenManager) clearSilently(ctx context.Context, gateID string) {
	if err := m.store.Delete(ctx, storageKey(gateID)); err != nil {
		m.logger.Warn("failed to clear stale token slot",
			slog.String("gate_id", gateID),
			slog.String("error", err.Error()),
		)
	}
}

// storageKey はgateIDから名前空間付き保存キーを導出する。
func storageKey(gateID string) string {
	return tokenKeyPrefix + gateID
}
