// Package gate はパスワード保護ゲートの認証、トークン管理、
// 試行回数制限のステートマシンを提供する。
package gate

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"

	"github.com/hitoshi/sheetgate/internal/model"
)

// cryptoRandRead は暗号論的乱数を読み込む。テストから差し替え可能にするため
// 関数値として分離している。
func cryptoRandRead(b []byte) (int, error) {
	return rand.Read(b)
}

const (
	// hashAlgorithm はエンコード済みハッシュに埋め込むアルゴリズム名。
	hashAlgorithm = "PBKDF2"
	// hashIterations はPBKDF2の反復回数。
	hashIterations = 100_000
	// saltLength はソルトのバイト長。
	saltLength = 16
	// keyLength は導出鍵のバイト長。
	keyLength = 32
	// hashDelimiter はエンコード済みハッシュの区切り文字。
	hashDelimiter = "$"
)

// Hasher はゲートスコープのパスワードハッシュ化を提供する。
//
// ソルトはgateIDから決定的に導出される（gateIDのダイジェストを16バイトに
// 切り詰めたもの）。同じgateIDは常に同じソルトを生成するため、サーバー側は
// ソルトを保存せずに検証でき、クライアント側での事前ハッシュ化も可能になる。
// これはステートレス性と引き換えにした意図的な設計であり、公開識別子から
// ソルトが導出される点でランダムソルトより弱い。RandomSaltを有効にすると
// 呼び出しごとにランダムソルトを生成する強化モードに切り替わる（ソルトは
// エンコード済みハッシュに埋め込まれるため検証は引き続き可能だが、
// クライアント側事前ハッシュ化との互換性は失われる）。
type Hasher struct {
	randomSalt bool
	randRead   func(b []byte) (int, error) // テスト用に差し替え可能
}

// HasherConfig はHasherの設定。
type HasherConfig struct {
	// RandomSalt がtrueの場合、決定的ソルトの代わりにランダムソルトを使用する。
	RandomSalt bool
}

// NewHasher はHasherの新しいインスタンスを生成する。
func NewHasher(config HasherConfig) *Hasher {
	return &Hasher{randomSalt: config.RandomSalt}
}

// GenerateHash はパスワードとgateIDからエンコード済みハッシュ文字列を導出する。
// 出力形式: PBKDF2$100000$<saltB64>$<hashB64>
// パスワードまたはgateIDが空の場合はInvalidArgumentエラーを返す。
func (h *Hasher) GenerateHash(password, gateID string) (string, error) {
	if password == "" {
		return "", model.NewInvalidArgumentError("パスワードが空です")
	}
	if gateID == "" {
		return "", model.NewInvalidArgumentError("gateIDが空です")
	}

	salt, err := h.salt(gateID)
	if err != nil {
		return "", err
	}

	return encodeHash(salt, deriveKey(password, salt)), nil
}

// Verify はエンコード済みハッシュに埋め込まれたソルトでパスワードを
// 再ハッシュし、一定時間比較で照合する。
func (h *Hasher) Verify(password, encoded string) bool {
	if password == "" {
		return false
	}

	salt, expected, ok := decodeHash(encoded)
	if !ok {
		return false
	}

	derived := deriveKey(password, salt)
	return subtle.ConstantTimeCompare(derived, expected) == 1
}

// ValidateHashFormat はエンコード済みハッシュの構造のみを検証する。
// パスワードに対する正当性は検証しない。
func ValidateHashFormat(encoded string) bool {
	parts := strings.Split(encoded, hashDelimiter)
	if len(parts) != 4 {
		return false
	}
	if parts[0] != hashAlgorithm {
		return false
	}
	if _, err := strconv.Atoi(parts[1]); err != nil {
		return false
	}
	if _, err := base64.StdEncoding.DecodeString(parts[2]); err != nil {
		return false
	}
	if _, err := base64.StdEncoding.DecodeString(parts[3]); err != nil {
		return false
	}
	return true
}

// salt はソルトを導出する。デフォルトはgateIDからの決定的導出。
func (h *Hasher) salt(gateID string) ([]byte, error) {
	if !h.randomSalt {
		return deterministicSalt(gateID), nil
	}

	salt := make([]byte, saltLength)
	read := h.randRead
	if read == nil {
		read = cryptoRandRead
	}
	if _, err := read(salt); err != nil {
		return nil, err
	}
	return salt, nil
}

// deterministicSalt はgateIDのSHA-256ダイジェストを16バイトに切り詰めた
// ソルトを返す。
func deterministicSalt(gateID string) []byte {
	digest := sha256.Sum256([]byte(gateID))
	return digest[:saltLength]
}

// deriveKey はPBKDF2-SHA256で鍵を導出する。
func deriveKey(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, hashIterations, keyLength, sha256.New)
}

// encodeHash はソルトと導出鍵をエンコード済みハッシュ文字列に整形する。
func encodeHash(salt, key []byte) string {
	return strings.Join([]string{
		hashAlgorithm,
		strconv.Itoa(hashIterations),
		base64.StdEncoding.EncodeToString(salt),
		base64.StdEncoding.EncodeToString(key),
	}, hashDelimiter)
}

// decodeHash はエンコード済みハッシュ文字列からソルトと導出鍵を取り出す。
func decodeHash(encoded string) (salt, key []byte, ok bool) {
	if !ValidateHashFormat(encoded) {
		return nil, nil, false
	}
	parts := strings.Split(encoded, hashDelimiter)
	salt, _ = base64.StdEncoding.DecodeString(parts[2])
	key, _ = base64.StdEncoding.DecodeString(parts[3])
	return salt, key, true
}
