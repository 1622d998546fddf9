package sheet

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/hitoshi/sheetgate/internal/model"
)

// SSRFValidator はSSRF検証のインターフェース。
// security.SSRFGuardServiceを抽象化してテスタビリティを向上させる。
type SSRFValidator interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client
}

const (
	// defaultFetchTimeout はCSVエクスポート取得のデフォルトタイムアウト。
	defaultFetchTimeout = 15 * time.Second
	// defaultMaxBodySize はレスポンスボディの最大サイズ（10MB）。
	defaultMaxBodySize = 10 * 1024 * 1024
)

// Fetcher は公開CSVエクスポートエンドポイントからのデータ取得を提供する。
type Fetcher struct {
	ssrfGuard SSRFValidator
	logger    *slog.Logger
	timeout   time.Duration
	maxSize   int64

	// exportURLFn はテスト用にエクスポートURLの構築を差し替え可能にする。
	exportURLFn func(ref *Ref) string
}

// FetcherOption はFetcherの生成オプション。
type FetcherOption func(*Fetcher)

// WithFetchTimeout は取得タイムアウトを設定する。
func WithFetchTimeout(d time.Duration) FetcherOption {
	return func(f *Fetcher) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithMaxBodySize はレスポンスボディの最大サイズを設定する。
func WithMaxBodySize(n int64) FetcherOption {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxSize = n
		}
	}
}

// NewFetcher はFetcherの新しいインスタンスを生成する。
func NewFetcher(ssrfGuard SSRFValidator, logger *slog.Logger, opts ...FetcherOption) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	f := &Fetcher{
		ssrfGuard:   ssrfGuard,
		logger:      logger,
		timeout:     defaultFetchTimeout,
		maxSize:     defaultMaxBodySize,
		exportURLFn: func(ref *Ref) string { return ref.CSVExportURL() },
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FetchCSV はスプレッドシートの公開CSVエクスポートを取得する。
//
// エクスポートエンドポイントは非公開シートに対してHTMLのログインページを
// ステータス200で返すため、Content-Typeとボディの両方でHTML検出を行い、
// その場合はNotSpreadsheetエラーを返す。呼び出し元によるキャンセルは
// context.Canceledのまま返す（呼び出し元が無視できるように変換しない）。
func (f *Fetcher) FetchCSV(ctx context.Context, ref *Ref) ([]byte, error) {
	exportURL := f.exportURLFn(ref)

	if f.ssrfGuard != nil {
		if err := f.ssrfGuard.ValidateURL(exportURL); err != nil {
			return nil, model.NewSSRFBlockedError()
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, exportURL, nil)
	if err != nil {
		return nil, model.NewInvalidURLError(err.Error())
	}
	req.Header.Set("User-Agent", "Sheetgate/1.0 Chart Data Service")
	req.Header.Set("Accept", "text/csv, text/plain, */*")

	resp, err := f.getHTTPClient().Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, context.Canceled
		}
		f.logger.Warn("CSVエクスポートの取得に失敗しました",
			slog.String("spreadsheet_id", ref.SpreadsheetID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewNetworkError(err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		f.logger.Warn("CSVエクスポートがエラーステータスを返しました",
			slog.String("spreadsheet_id", ref.SpreadsheetID),
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, model.NewNetworkError(http.StatusText(resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize))
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, context.Canceled
		}
		return nil, model.NewNetworkError(err.Error())
	}

	if isHTMLResponse(resp.Header.Get("Content-Type"), body) {
		// 非公開シートではGoogleのログインページが200で返るため、
		// ページタイトルを記録して原因を切り分けられるようにする
		f.logger.Warn("CSVではなくHTMLページを受信しました",
			slog.String("spreadsheet_id", ref.SpreadsheetID),
			slog.String("page_title", htmlTitle(body)),
		)
		return nil, model.NewNotSpreadsheetError()
	}

	return body, nil
}

// getHTTPClient はSSRF防止付きHTTPクライアントを取得する。
func (f *Fetcher) getHTTPClient() *http.Client {
	if f.ssrfGuard != nil {
		return f.ssrfGuard.NewSafeClient(f.timeout, f.maxSize)
	}
	return &http.Client{Timeout: f.timeout}
}

// isHTMLResponse はレスポンスがCSVではなくHTMLページかどうかを判定する。
// Content-TypeのHTML宣言、またはボディ先頭のHTMLタグで判定する。
func isHTMLResponse(contentType string, body []byte) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(strings.Split(contentType, ";")[0])
	}
	if strings.Contains(strings.ToLower(mediaType), "html") {
		return true
	}

	// 先頭1KBの検査でHTMLドキュメント宣言を検出する
	checkSize := 1024
	if len(body) < checkSize {
		checkSize = len(body)
	}
	prefix := strings.ToLower(string(bytes.TrimSpace(body[:checkSize])))
	return strings.HasPrefix(prefix, "<!doctype html") || strings.HasPrefix(prefix, "<html")
}

// htmlTitle はHTMLボディからtitle要素のテキストを抽出する。
// 見つからない場合は空文字列を返す。
func htmlTitle(body []byte) string {
	tokenizer := html.NewTokenizer(bytes.NewReader(body))
	inTitle := false

	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return ""

		case html.StartTagToken:
			tn, _ := tokenizer.TagName()
			if string(tn) == "title" {
				inTitle = true
			}

		case html.TextToken:
			if inTitle {
				return strings.TrimSpace(string(tokenizer.Text()))
			}

		case html.EndTagToken:
			tn, _ := tokenizer.TagName()
			if string(tn) == "title" {
				return ""
			}
		}
	}
}
