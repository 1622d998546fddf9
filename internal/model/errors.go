// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, data, system
	Action   string // ユーザー向け対処方法

	// RetryAfter はロックアウト解除までの秒数。LOCKED_OUTの場合のみ設定される。
	RetryAfter int
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeMalformedInput  = "MALFORMED_INPUT"
	ErrCodeNoDataAvailable = "NO_DATA_AVAILABLE"
	ErrCodeInvalidArgument = "INVALID_ARGUMENT"
	ErrCodeNetworkError    = "NETWORK_ERROR"
	ErrCodeAuthFailed      = "AUTHENTICATION_FAILED"
	ErrCodeLockedOut       = "LOCKED_OUT"
	ErrCodeInvalidURL      = "INVALID_URL"
	ErrCodeSSRFBlocked     = "SSRF_BLOCKED"
	ErrCodeGateNotFound    = "GATE_NOT_FOUND"
	ErrCodeSourceNotFound  = "SOURCE_NOT_FOUND"
	ErrCodeNotSpreadsheet  = "NOT_SPREADSHEET"
)

// NewMalformedInputError は入力データの形式違反エラーを生成する。
func NewMalformedInputError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeMalformedInput,
		Message:  fmt.Sprintf("入力データの形式が不正です: %s", reason),
		Category: "data",
		Action:   "ヘッダー行と1行以上のデータ行を含むCSVデータを指定してください。",
	}
}

// NewNoDataAvailableError はデータ未検出エラーを生成する。
func NewNoDataAvailableError() *APIError {
	return &APIError{
		Code:     ErrCodeNoDataAvailable,
		Message:  "表示可能なデータがありません。",
		Category: "data",
		Action:   "スプレッドシートにデータが含まれているか確認してください。",
	}
}

// NewInvalidArgumentError は引数の事前条件違反エラーを生成する。
func NewInvalidArgumentError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidArgument,
		Message:  fmt.Sprintf("無効な引数です: %s", reason),
		Category: "validation",
		Action:   "リクエスト内容を確認してください。",
	}
}

// NewNetworkError はフェッチ失敗エラーを生成する。
func NewNetworkError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeNetworkError,
		Message:  fmt.Sprintf("データの取得に失敗しました: %s", reason),
		Category: "data",
		Action:   "URLが正しいか確認し、しばらく待ってから再度お試しください。",
	}
}

// NewAuthFailedError は認証失敗エラーを生成する。
// 複数ルート構成のどのルートで失敗したかは意図的に含めない。
func NewAuthFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeAuthFailed,
		Message:  "パスワードが正しくありません。",
		Category: "auth",
		Action:   "パスワードを確認して再度お試しください。",
	}
}

// NewLockedOutError は試行回数超過によるロックアウトエラーを生成する。
func NewLockedOutError(retryAfterSeconds int) *APIError {
	return &APIError{
		Code:       ErrCodeLockedOut,
		Message:    "試行回数の上限に達しました。",
		Category:   "auth",
		Action:     fmt.Sprintf("%d秒後に再度お試しください。", retryAfterSeconds),
		RetryAfter: retryAfterSeconds,
	}
}

// NewInvalidURLError は無効なURLエラーを生成する。
func NewInvalidURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidURL,
		Message:  fmt.Sprintf("無効なURLです: %s", reason),
		Category: "validation",
		Action:   "正しいURL形式（http:// または https:// で始まるURL）を入力してください。",
	}
}

// NewSSRFBlockedError はSSRFブロックエラーを生成する。
func NewSSRFBlockedError() *APIError {
	return &APIError{
		Code:     ErrCodeSSRFBlocked,
		Message:  "セキュリティポリシーにより、指定されたURLへのアクセスがブロックされました。",
		Category: "validation",
		Action:   "公開されているスプレッドシートのURLを入力してください。ローカルネットワークやプライベートIPへのアクセスは許可されていません。",
	}
}

// NewGateNotFoundError はゲートが見つからない場合のエラーを生成する。
func NewGateNotFoundError(gateID string) *APIError {
	return &APIError{
		Code:     ErrCodeGateNotFound,
		Message:  fmt.Sprintf("指定されたゲートが見つかりません: %s", gateID),
		Category: "auth",
		Action:   "ゲートIDを確認してください。",
	}
}

// NewSourceNotFoundError はデータソースが見つからない場合のエラーを生成する。
func NewSourceNotFoundError(sourceID string) *APIError {
	return &APIError{
		Code:     ErrCodeSourceNotFound,
		Message:  fmt.Sprintf("指定されたデータソースが見つかりません: %s", sourceID),
		Category: "data",
		Action:   "データソースIDを確認してください。",
	}
}

// NewNotSpreadsheetError はスプレッドシート以外のレスポンスを受信した場合のエラーを生成する。
// 公開エクスポートエンドポイントがログインページ等のHTMLを返すケースで使用する。
func NewNotSpreadsheetError() *APIError {
	return &APIError{
		Code:     ErrCodeNotSpreadsheet,
		Message:  "CSVデータの代わりにHTMLページが返されました。",
		Category: "data",
		Action:   "スプレッドシートが「リンクを知っている全員に公開」設定になっているか確認してください。",
	}
}
