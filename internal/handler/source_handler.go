package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/sheetgate/internal/model"
	"github.com/hitoshi/sheetgate/internal/source"
)

// SourceServiceInterface はデータソースハンドラーが必要とするサービスインターフェース。
type SourceServiceInterface interface {
	// RegisterSource は新しいデータソースを登録する。
	RegisterSource(ctx context.Context, input source.SourceInput) (*model.Source, error)
	// GetSource は指定IDのデータソースを返す。
	GetSource(ctx context.Context, sourceID string) (*model.Source, error)
	// GetData はデータソースのチャート用データビューを返す。
	GetData(ctx context.Context, sourceID string, forceRefresh bool) (*model.Projection, error)
	// ResumeRefresh は停止中データソースの自動リフレッシュを再開する。
	ResumeRefresh(ctx context.Context, sourceID string) (*model.Source, error)
	// DeleteSource はデータソースを削除する。
	DeleteSource(ctx context.Context, sourceID string) error
}

// SourceHandler はデータソース管理のHTTPハンドラー。
type SourceHandler struct {
	service SourceServiceInterface
}

// NewSourceHandler はSourceHandlerを生成する。
func NewSourceHandler(service SourceServiceInterface) *SourceHandler {
	return &SourceHandler{service: service}
}

// registerSourceRequest はデータソース登録リクエストのボディ。
type registerSourceRequest struct {
	URL                    string `json:"url"`
	ChartType              string `json:"chartType"`
	RefreshIntervalMinutes int    `json:"refreshIntervalMinutes"`
}

// sourceResponse はデータソース情報のAPIレスポンス。
type sourceResponse struct {
	ID                     string    `json:"id"`
	URL                    string    `json:"url"`
	SpreadsheetID          string    `json:"spreadsheetId"`
	SheetGID               string    `json:"sheetGid"`
	ChartType              string    `json:"chartType"`
	RefreshIntervalMinutes int       `json:"refreshIntervalMinutes"`
	RefreshStatus          string    `json:"refreshStatus"`
	ConsecutiveErrors      int       `json:"consecutiveErrors"`
	ErrorMessage           string    `json:"errorMessage,omitempty"`
	NextRefreshAt          time.Time `json:"nextRefreshAt"`
	CreatedAt              time.Time `json:"createdAt"`
}

// RegisterSource はデータソース登録を処理する。
// POST /api/sources
func (h *SourceHandler) RegisterSource(w http.ResponseWriter, r *http.Request) {
	var req registerSourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, invalidRequestBodyError())
		return
	}

	if req.URL == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidURLError("URLが空です"))
		return
	}

	src, err := h.service.RegisterSource(r.Context(), source.SourceInput{
		URL:                    req.URL,
		ChartType:              req.ChartType,
		RefreshIntervalMinutes: req.RefreshIntervalMinutes,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, toSourceResponse(src))
}

// GetSource はデータソース詳細を取得する。
// GET /api/sources/{id}
func (h *SourceHandler) GetSource(w http.ResponseWriter, r *http.Request) {
	src, err := h.service.GetSource(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, toSourceResponse(src))
}

// GetData はデータソースのチャート用データを取得する。
// GET /api/sources/{id}/data?refresh=true
//
// refresh=true を指定するとキャッシュを無視して再取り込みする。
// 後発リクエストに取って代わられた取り込みの結果は書き込まない。
func (h *SourceHandler) GetData(w http.ResponseWriter, r *http.Request) {
	forceRefresh := r.URL.Query().Get("refresh") == "true"

	projection, err := h.service.GetData(r.Context(), chi.URLParam(r, "id"), forceRefresh)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, projection)
}

// ResumeRefresh は停止中データソースのリフレッシュを再開する。
// POST /api/sources/{id}/resume
func (h *SourceHandler) ResumeRefresh(w http.ResponseWriter, r *http.Request) {
	src, err := h.service.ResumeRefresh(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, toSourceResponse(src))
}

// DeleteSource はデータソースを削除する。
// DELETE /api/sources/{id}
func (h *SourceHandler) DeleteSource(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteSource(r.Context(), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// toSourceResponse はmodel.SourceからAPIレスポンスに変換する。
func toSourceResponse(src *model.Source) sourceResponse {
	return sourceResponse{
		ID:                     src.ID,
		URL:                    src.URL,
		SpreadsheetID:          src.SpreadsheetID,
		SheetGID:               src.SheetGID,
		ChartType:              string(src.ChartType),
		RefreshIntervalMinutes: src.RefreshIntervalMinutes,
		RefreshStatus:          string(src.RefreshStatus),
		ConsecutiveErrors:      src.ConsecutiveErrors,
		ErrorMessage:           src.ErrorMessage,
		NextRefreshAt:          src.NextRefreshAt,
		CreatedAt:              src.CreatedAt,
	}
}
