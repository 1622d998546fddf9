package sheet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/hitoshi/sheetgate/internal/model"
)

// defaultAPIEndpoint はスプレッドシートvalues APIのエンドポイント。
const defaultAPIEndpoint = "https://sheets.googleapis.com/v4/spreadsheets"

// APIClient はAPIキーを使用した認証付きvalues API呼び出しを提供する。
// APIキーが設定されている場合、公開CSVエクスポートの代わりにこちらが
// 使用される（非公開シートにも到達できるため）。
type APIClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	endpoint   string // テスト用にエンドポイントを差し替え可能
	apiKey     string
}

// NewAPIClient はAPIClientの新しいインスタンスを生成する。
func NewAPIClient(httpClient *http.Client, logger *slog.Logger, apiKey string) *APIClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &APIClient{
		httpClient: httpClient,
		logger:     logger,
		endpoint:   defaultAPIEndpoint,
		apiKey:     apiKey,
	}
}

// valuesResponse はvalues APIのレスポンス形式。
// セル値は文字列・数値・真偽値が混在しうるためany型で受ける。
type valuesResponse struct {
	Range          string  `json:"range"`
	MajorDimension string  `json:"majorDimension"`
	Values         [][]any `json:"values"`
}

// apiErrorResponse はvalues APIのエラーレスポンス形式。
type apiErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// GetValues はスプレッドシートの全セル値を行列として取得する。
// 全セルは文字列に変換される（数値セルの指数表記を避けるためjson.Numberを
// 使用する）。空のシートは空スライスを返す。
func (c *APIClient) GetValues(ctx context.Context, spreadsheetID string) ([][]string, error) {
	if spreadsheetID == "" {
		return nil, model.NewInvalidArgumentError("スプレッドシートIDが空です")
	}

	reqURL := fmt.Sprintf("%s/%s/values/%s?key=%s",
		c.endpoint,
		url.PathEscape(spreadsheetID),
		url.PathEscape("A:ZZ"),
		url.QueryEscape(c.apiKey),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, model.NewInvalidURLError(err.Error())
	}
	req.Header.Set("User-Agent", "Sheetgate/1.0 Chart Data Service")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, context.Canceled
		}
		c.logger.Warn("values APIの呼び出しに失敗しました",
			slog.String("spreadsheet_id", spreadsheetID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewNetworkError(err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, defaultMaxBodySize))
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, context.Canceled
		}
		return nil, model.NewNetworkError(err.Error())
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr apiErrorResponse
		if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
			c.logger.Warn("values APIがエラーを返しました",
				slog.String("spreadsheet_id", spreadsheetID),
				slog.Int("http_status", resp.StatusCode),
				slog.String("api_status", apiErr.Error.Status),
			)
			return nil, model.NewNetworkError(apiErr.Error.Message)
		}
		return nil, model.NewNetworkError(fmt.Sprintf("values APIがステータス %d を返しました", resp.StatusCode))
	}

	var result valuesResponse
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	if err := decoder.Decode(&result); err != nil {
		return nil, model.NewMalformedInputError(fmt.Sprintf("values APIレスポンスのパースに失敗: %v", err))
	}

	rows := make([][]string, 0, len(result.Values))
	for _, row := range result.Values {
		cells := make([]string, 0, len(row))
		for _, cell := range row {
			cells = append(cells, stringifyCell(cell))
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

// stringifyCell はAPIレスポンスのセル値を文字列に変換する。
func stringifyCell(cell any) string {
	switch v := cell.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		if v {
			return "TRUE"
		}
		return "FALSE"
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
