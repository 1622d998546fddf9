package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/sheetgate/internal/model"
	"github.com/hitoshi/sheetgate/internal/source"
)

// --- モック定義 ---

// mockSourceService はSourceServiceInterfaceのモック実装。
type mockSourceService struct {
	registerSourceFn func(ctx context.Context, input source.SourceInput) (*model.Source, error)
	getSourceFn      func(ctx context.Context, sourceID string) (*model.Source, error)
	getDataFn        func(ctx context.Context, sourceID string, forceRefresh bool) (*model.Projection, error)
	resumeRefreshFn  func(ctx context.Context, sourceID string) (*model.Source, error)
	deleteSourceFn   func(ctx context.Context, sourceID string) error
}

func (m *mockSourceService) RegisterSource(ctx context.Context, input source.SourceInput) (*model.Source, error) {
	if m.registerSourceFn != nil {
		return m.registerSourceFn(ctx, input)
	}
	return nil, nil
}

func (m *mockSourceService) GetSource(ctx context.Context, sourceID string) (*model.Source, error) {
	if m.getSourceFn != nil {
		return m.getSourceFn(ctx, sourceID)
	}
	return nil, nil
}

func (m *mockSourceService) GetData(ctx context.Context, sourceID string, forceRefresh bool) (*model.Projection, error) {
	if m.getDataFn != nil {
		return m.getDataFn(ctx, sourceID, forceRefresh)
	}
	return nil, nil
}

func (m *mockSourceService) ResumeRefresh(ctx context.Context, sourceID string) (*model.Source, error) {
	if m.resumeRefreshFn != nil {
		return m.resumeRefreshFn(ctx, sourceID)
	}
	return nil, nil
}

func (m *mockSourceService) DeleteSource(ctx context.Context, sourceID string) error {
	if m.deleteSourceFn != nil {
		return m.deleteSourceFn(ctx, sourceID)
	}
	return nil
}

func testModelSource() *model.Source {
	return &model.Source{
		ID:                     "src-1",
		URL:                    "https://docs.google.com/spreadsheets/d/abc123/edit?gid=42",
		SpreadsheetID:          "abc123",
		SheetGID:               "42",
		ChartType:              model.ChartTypeLine,
		RefreshIntervalMinutes: 15,
		RefreshStatus:          model.RefreshStatusActive,
		NextRefreshAt:          time.Now().Add(15 * time.Minute),
		CreatedAt:              time.Now(),
	}
}

// --- POST /api/sources テスト ---

func TestSourceHandler_RegisterSource_Success(t *testing.T) {
	svc := &mockSourceService{
		registerSourceFn: func(ctx context.Context, input source.SourceInput) (*model.Source, error) {
			if input.URL != "https://docs.google.com/spreadsheets/d/abc123/edit?gid=42" {
				t.Errorf("URL = %q", input.URL)
			}
			if input.ChartType != "bar" {
				t.Errorf("ChartType = %q, want bar", input.ChartType)
			}
			src := testModelSource()
			src.ChartType = model.ChartTypeBar
			return src, nil
		},
	}
	h := NewSourceHandler(svc)

	body := `{"url": "https://docs.google.com/spreadsheets/d/abc123/edit?gid=42", "chartType": "bar"}`
	req := httptest.NewRequest(http.MethodPost, "/api/sources", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	h.RegisterSource(w, req)

	if w.Code != http.StatusCreated {
		t.Errorf("status = %d, want %d", w.Code, http.StatusCreated)
	}

	result := decodeJSONBody(t, w)
	if result["id"] != "src-1" {
		t.Errorf("id = %v, want src-1", result["id"])
	}
	if result["spreadsheetId"] != "abc123" {
		t.Errorf("spreadsheetId = %v, want abc123", result["spreadsheetId"])
	}
	if result["chartType"] != "bar" {
		t.Errorf("chartType = %v, want bar", result["chartType"])
	}
}

func TestSourceHandler_RegisterSource_EmptyURL(t *testing.T) {
	called := false
	svc := &mockSourceService{
		registerSourceFn: func(ctx context.Context, input source.SourceInput) (*model.Source, error) {
			called = true
			return nil, nil
		},
	}
	h := NewSourceHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/sources", bytes.NewBufferString(`{"url": ""}`))
	w := httptest.NewRecorder()

	h.RegisterSource(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if called {
		t.Error("service must not be called for an empty URL")
	}
}

func TestSourceHandler_RegisterSource_InvalidURL(t *testing.T) {
	svc := &mockSourceService{
		registerSourceFn: func(ctx context.Context, input source.SourceInput) (*model.Source, error) {
			return nil, model.NewInvalidURLError("スプレッドシートのURLではありません")
		},
	}
	h := NewSourceHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/sources", bytes.NewBufferString(`{"url": "https://example.com/x"}`))
	w := httptest.NewRecorder()

	h.RegisterSource(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	result := decodeJSONBody(t, w)
	if result["code"] != model.ErrCodeInvalidURL {
		t.Errorf("code = %v, want %s", result["code"], model.ErrCodeInvalidURL)
	}
}

// --- GET /api/sources/{id}/data テスト ---

func TestSourceHandler_GetData_Success(t *testing.T) {
	svc := &mockSourceService{
		getDataFn: func(ctx context.Context, sourceID string, forceRefresh bool) (*model.Projection, error) {
			if sourceID != "src-1" {
				t.Errorf("sourceID = %q, want src-1", sourceID)
			}
			if forceRefresh {
				t.Error("forceRefresh = true, want false")
			}
			return &model.Projection{
				Records: []model.ProjectedRecord{{"月": "1月", "売上": float64(1000)}},
				XKey:    "月",
				YKeys:   []string{"売上"},
				Kinds: map[string]model.ColumnKind{
					"月":  model.ColumnCategorical,
					"売上": model.ColumnNumeric,
				},
			}, nil
		},
	}
	h := NewSourceHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/sources/src-1/data", nil)
	req = withChiURLParam(req, "id", "src-1")
	w := httptest.NewRecorder()

	h.GetData(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}

	result := decodeJSONBody(t, w)
	if result["xKey"] != "月" {
		t.Errorf("xKey = %v, want 月", result["xKey"])
	}
	records, ok := result["records"].([]any)
	if !ok || len(records) != 1 {
		t.Errorf("records = %v, want 1 record", result["records"])
	}
}

func TestSourceHandler_GetData_ForceRefresh(t *testing.T) {
	var gotForce bool
	svc := &mockSourceService{
		getDataFn: func(ctx context.Context, sourceID string, forceRefresh bool) (*model.Projection, error) {
			gotForce = forceRefresh
			return &model.Projection{}, nil
		},
	}
	h := NewSourceHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/sources/src-1/data?refresh=true", nil)
	req = withChiURLParam(req, "id", "src-1")
	w := httptest.NewRecorder()

	h.GetData(w, req)

	if !gotForce {
		t.Error("refresh=true should force a refresh")
	}
}

func TestSourceHandler_GetData_NotFound(t *testing.T) {
	svc := &mockSourceService{
		getDataFn: func(ctx context.Context, sourceID string, forceRefresh bool) (*model.Projection, error) {
			return nil, model.NewSourceNotFoundError(sourceID)
		},
	}
	h := NewSourceHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/sources/missing/data", nil)
	req = withChiURLParam(req, "id", "missing")
	w := httptest.NewRecorder()

	h.GetData(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestSourceHandler_GetData_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"ネットワークエラー", model.NewNetworkError("タイムアウト"), http.StatusBadGateway},
		{"HTMLレスポンス", model.NewNotSpreadsheetError(), http.StatusUnprocessableEntity},
		{"データなし", model.NewNoDataAvailableError(), http.StatusUnprocessableEntity},
		{"SSRFブロック", model.NewSSRFBlockedError(), http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockSourceService{
				getDataFn: func(ctx context.Context, sourceID string, forceRefresh bool) (*model.Projection, error) {
					return nil, tt.err
				},
			}
			h := NewSourceHandler(svc)

			req := httptest.NewRequest(http.MethodGet, "/api/sources/src-1/data", nil)
			req = withChiURLParam(req, "id", "src-1")
			w := httptest.NewRecorder()

			h.GetData(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestSourceHandler_GetData_CancelledWritesNothing(t *testing.T) {
	svc := &mockSourceService{
		getDataFn: func(ctx context.Context, sourceID string, forceRefresh bool) (*model.Projection, error) {
			return nil, context.Canceled
		},
	}
	h := NewSourceHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/sources/src-1/data", nil)
	req = withChiURLParam(req, "id", "src-1")
	w := httptest.NewRecorder()

	h.GetData(w, req)

	if w.Body.Len() != 0 {
		t.Errorf("body = %q, want empty for a superseded fetch", w.Body.String())
	}
}

// --- POST /api/sources/{id}/resume テスト ---

func TestSourceHandler_ResumeRefresh(t *testing.T) {
	svc := &mockSourceService{
		resumeRefreshFn: func(ctx context.Context, sourceID string) (*model.Source, error) {
			src := testModelSource()
			src.RefreshStatus = model.RefreshStatusActive
			return src, nil
		},
	}
	h := NewSourceHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/sources/src-1/resume", nil)
	req = withChiURLParam(req, "id", "src-1")
	w := httptest.NewRecorder()

	h.ResumeRefresh(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	result := decodeJSONBody(t, w)
	if result["refreshStatus"] != "active" {
		t.Errorf("refreshStatus = %v, want active", result["refreshStatus"])
	}
}

// --- DELETE /api/sources/{id} テスト ---

func TestSourceHandler_DeleteSource(t *testing.T) {
	deleted := ""
	svc := &mockSourceService{
		deleteSourceFn: func(ctx context.Context, sourceID string) error {
			deleted = sourceID
			return nil
		},
	}
	h := NewSourceHandler(svc)

	req := httptest.NewRequest(http.MethodDelete, "/api/sources/src-1", nil)
	req = withChiURLParam(req, "id", "src-1")
	w := httptest.NewRecorder()

	h.DeleteSource(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if deleted != "src-1" {
		t.Errorf("deleted = %q, want src-1", deleted)
	}
}
