package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hitoshi/sheetgate/internal/middleware"
	"github.com/hitoshi/sheetgate/internal/model"
)

// ChartServiceInterface はチャートプレビューハンドラーが必要とするサービスインターフェース。
type ChartServiceInterface interface {
	// Ingest はURLからデータを取り込み、チャート用データビューを返す。
	// 同一sourceKeyの実行中の取り込みはキャンセルされる。
	Ingest(ctx context.Context, sourceKey, rawURL string, chartType model.ChartType) (*model.Projection, error)
}

// ChartHandler はデータソース登録なしのチャートプレビューを提供するHTTPハンドラー。
type ChartHandler struct {
	service ChartServiceInterface
}

// NewChartHandler はChartHandlerを生成する。
func NewChartHandler(service ChartServiceInterface) *ChartHandler {
	return &ChartHandler{service: service}
}

// previewRequest はチャートプレビューリクエストのボディ。
type previewRequest struct {
	URL       string `json:"url"`
	ChartType string `json:"chartType"`
}

// Preview はURLを直接指定したチャートプレビューを処理する。
// POST /api/charts/preview
//
// 取り込みキーはクライアントIPごとに固定されるため、同一クライアントからの
// 後発プレビューは先行の取り込みをキャンセルする。キャンセルされた取り込みの
// 結果は書き込まない。
func (h *ChartHandler) Preview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, invalidRequestBodyError())
		return
	}

	if req.URL == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidURLError("URLが空です"))
		return
	}

	chartType, err := model.ParseChartType(req.ChartType)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	sourceKey := "preview:" + middleware.ClientIP(r)
	projection, err := h.service.Ingest(r.Context(), sourceKey, req.URL, chartType)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, projection)
}
