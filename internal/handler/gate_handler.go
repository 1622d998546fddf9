package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/sheetgate/internal/gate"
	"github.com/hitoshi/sheetgate/internal/metrics"
	"github.com/hitoshi/sheetgate/internal/model"
)

// GateServiceInterface はゲートハンドラーが必要とするサービスインターフェース。
type GateServiceInterface interface {
	// RegisterGate は新しいゲートを登録する。
	RegisterGate(ctx context.Context, input gate.GateInput) (*model.Gate, error)
	// Authenticate はゲートに対するパスワード送信を処理する。
	Authenticate(ctx context.Context, gateID, password, hashedPassword, next string) (*gate.AuthResult, error)
	// Logout はゲートのトークンを破棄する。
	Logout(ctx context.Context, gateID string) error
	// VerifySession はゲートの有効なトークンが存在するかを返す。
	VerifySession(ctx context.Context, gateID string) bool
}

// GateHandler はゲート認証のHTTPハンドラー。
type GateHandler struct {
	service GateServiceInterface
	metrics metrics.MetricsCollector
}

// NewGateHandler はGateHandlerを生成する。collectorはnilでもよい。
func NewGateHandler(service GateServiceInterface, collector metrics.MetricsCollector) *GateHandler {
	return &GateHandler{
		service: service,
		metrics: collector,
	}
}

// registerGateRequest はゲート登録リクエストのボディ。
type registerGateRequest struct {
	Name            string             `json:"name"`
	Routes          []gateRouteRequest `json:"routes"`
	TokenTTLSeconds int                `json:"tokenTtlSeconds"`
	MaxAttempts     int                `json:"maxAttempts"`
	LockoutSeconds  int                `json:"lockoutSeconds"`
}

// gateRouteRequest はゲートルート1件の定義。
type gateRouteRequest struct {
	Password    string `json:"password"`
	Destination string `json:"destination"`
}

// gateResponse はゲート情報のAPIレスポンス。
// パスワードハッシュは含めない。
type gateResponse struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	TokenTTLSeconds int       `json:"tokenTtlSeconds"`
	MaxAttempts     int       `json:"maxAttempts"`
	LockoutSeconds  int       `json:"lockoutSeconds"`
	CreatedAt       time.Time `json:"createdAt"`
}

// authRequest はパスワード送信リクエストのボディ。
// passwordとhashedPasswordはいずれか一方を指定する。
type authRequest struct {
	Password       string `json:"password"`
	HashedPassword string `json:"hashedPassword"`
	Next           string `json:"next"`
}

// authResponse はパスワード送信のレスポンス。
type authResponse struct {
	Success     bool              `json:"success"`
	Token       string            `json:"token,omitempty"`
	ExpiresAt   *time.Time        `json:"expiresAt,omitempty"`
	Destination string            `json:"destination,omitempty"`
	Error       *apiErrorResponse `json:"error,omitempty"`
}

// sessionResponse はセッション確認のレスポンス。
type sessionResponse struct {
	Authenticated bool `json:"authenticated"`
}

// RegisterGate はゲート登録を処理する。
// POST /api/gates
func (h *GateHandler) RegisterGate(w http.ResponseWriter, r *http.Request) {
	var req registerGateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, invalidRequestBodyError())
		return
	}

	input := gate.GateInput{
		Name:            req.Name,
		TokenTTL:        time.Duration(req.TokenTTLSeconds) * time.Second,
		MaxAttempts:     req.MaxAttempts,
		LockoutDuration: time.Duration(req.LockoutSeconds) * time.Second,
	}
	for _, route := range req.Routes {
		input.Routes = append(input.Routes, gate.RouteInput{
			Password:    route.Password,
			Destination: route.Destination,
		})
	}

	created, err := h.service.RegisterGate(r.Context(), input)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, toGateResponse(created))
}

// Authenticate はゲートへのパスワード送信を処理する。
// POST /api/gates/{gateID}/auth
//
// ロックアウト中は429とRetry-Afterヘッダーを返す。認証失敗のレスポンスには
// どのルートで失敗したかの情報を含めない。
func (h *GateHandler) Authenticate(w http.ResponseWriter, r *http.Request) {
	gateID := chi.URLParam(r, "gateID")

	var req authRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, invalidRequestBodyError())
		return
	}

	result, err := h.service.Authenticate(r.Context(), gateID, req.Password, req.HashedPassword, req.Next)
	if err != nil {
		h.recordAuthFailure(gateID, err)
		h.writeAuthError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordAuthSuccess(gateID)
	}

	writeJSONResponse(w, http.StatusOK, authResponse{
		Success:     true,
		Token:       result.Token,
		ExpiresAt:   &result.ExpiresAt,
		Destination: result.Destination,
	})
}

// Session はゲートの認可状態を返す。
// GET /api/gates/{gateID}/session
func (h *GateHandler) Session(w http.ResponseWriter, r *http.Request) {
	gateID := chi.URLParam(r, "gateID")

	writeJSONResponse(w, http.StatusOK, sessionResponse{
		Authenticated: h.service.VerifySession(r.Context(), gateID),
	})
}

// Logout はゲートのトークンを破棄する。
// POST /api/gates/{gateID}/logout
func (h *GateHandler) Logout(w http.ResponseWriter, r *http.Request) {
	gateID := chi.URLParam(r, "gateID")

	if err := h.service.Logout(r.Context(), gateID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// writeAuthError は認証エラーをauthResponse形式で書き込む。
func (h *GateHandler) writeAuthError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		handleServiceError(w, err)
		return
	}

	if apiErr.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(apiErr.RetryAfter))
	}
	resp := toAPIErrorResponse(apiErr)
	writeJSONResponse(w, mapAPIErrorToHTTPStatus(apiErr), authResponse{
		Success: false,
		Error:   &resp,
	})
}

// recordAuthFailure は認証失敗・ロックアウトのメトリクスを記録する。
func (h *GateHandler) recordAuthFailure(gateID string, err error) {
	if h.metrics == nil {
		return
	}
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		return
	}
	switch apiErr.Code {
	case model.ErrCodeAuthFailed:
		h.metrics.RecordAuthFailure(gateID)
	case model.ErrCodeLockedOut:
		h.metrics.RecordLockout(gateID)
	}
}

// toGateResponse はmodel.GateからAPIレスポンスに変換する。
func toGateResponse(g *model.Gate) gateResponse {
	return gateResponse{
		ID:              g.ID,
		Name:            g.Name,
		TokenTTLSeconds: int(g.TokenTTL / time.Second),
		MaxAttempts:     g.MaxAttempts,
		LockoutSeconds:  int(g.LockoutDuration / time.Second),
		CreatedAt:       g.CreatedAt,
	}
}
