// Package handler はHTTP APIのハンドラーとルーティングを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/hitoshi/sheetgate/internal/model"
)

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// writeJSONResponse はJSONレスポンスを書き込む。
func writeJSONResponse(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
// ロックアウトエラーの場合はRetry-Afterヘッダーを設定する。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	if apiErr.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(apiErr.RetryAfter))
	}
	writeJSONResponse(w, statusCode, toAPIErrorResponse(apiErr))
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, internalServerError())
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeInvalidURL, model.ErrCodeInvalidArgument:
		return http.StatusBadRequest
	case model.ErrCodeAuthFailed:
		return http.StatusUnauthorized
	case model.ErrCodeSSRFBlocked:
		return http.StatusForbidden
	case model.ErrCodeGateNotFound, model.ErrCodeSourceNotFound:
		return http.StatusNotFound
	case model.ErrCodeMalformedInput, model.ErrCodeNoDataAvailable, model.ErrCodeNotSpreadsheet:
		return http.StatusUnprocessableEntity
	case model.ErrCodeLockedOut:
		return http.StatusTooManyRequests
	case model.ErrCodeNetworkError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// toAPIErrorResponse はmodel.APIErrorからレスポンスボディに変換する。
func toAPIErrorResponse(apiErr *model.APIError) apiErrorResponse {
	return apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	}
}

// invalidRequestBodyError はリクエストボディの解析失敗エラーを生成する。
func invalidRequestBodyError() *model.APIError {
	return &model.APIError{
		Code:     "INVALID_REQUEST",
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// internalServerError は内部エラーを生成する。
func internalServerError() *model.APIError {
	return &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
