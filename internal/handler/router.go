package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/sheetgate/internal/metrics"
	"github.com/hitoshi/sheetgate/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// ゲート認証
	GateService GateServiceInterface

	// データソース
	SourceService SourceServiceInterface

	// チャートプレビュー
	ChartService ChartServiceInterface

	// メトリクス。nilの場合は記録もエンドポイント公開も行わない。
	Metrics         metrics.MetricsCollector
	MetricsGatherer prometheus.Gatherer
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	CORS → SecurityHeaders → Recovery → Logging → Metrics → RateLimit(General)
//
// パスワード送信エンドポイントには送信専用レート制限を追加で適用する。
// /healthz と /metrics はレート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewRecoveryMiddleware())
	if deps.Logger != nil {
		r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	}
	r.Use(middleware.NewMetricsMiddleware(deps.Metrics))

	gateHandler := NewGateHandler(deps.GateService, deps.Metrics)
	sourceHandler := NewSourceHandler(deps.SourceService)
	chartHandler := NewChartHandler(deps.ChartService)

	// --- レート制限の外のルート ---

	r.Get("/healthz", healthz)
	if deps.MetricsGatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.MetricsGatherer))
	}

	// --- APIルート ---
	// ミドルウェアスタック: RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// ゲート認証
		r.Route("/api/gates", func(r chi.Router) {
			r.Post("/", gateHandler.RegisterGate)

			r.Route("/{gateID}", func(r chi.Router) {
				// POST /api/gates/{gateID}/auth - パスワード送信（送信専用レート制限を追加）
				r.With(deps.RateLimiter.AuthSubmissionMiddleware()).Post("/auth", gateHandler.Authenticate)

				r.Get("/session", gateHandler.Session)
				r.Post("/logout", gateHandler.Logout)
			})
		})

		// データソース管理
		r.Route("/api/sources", func(r chi.Router) {
			r.Post("/", sourceHandler.RegisterSource)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", sourceHandler.GetSource)
				r.Delete("/", sourceHandler.DeleteSource)
				r.Get("/data", sourceHandler.GetData)
				r.Post("/resume", sourceHandler.ResumeRefresh)
			})
		})

		// チャートプレビュー
		r.Post("/api/charts/preview", chartHandler.Preview)
	})

	return r
}

// healthz は死活監視用のエンドポイント。
func healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}
