package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/sheetgate/internal/config"
	"github.com/hitoshi/sheetgate/internal/database"
	"github.com/hitoshi/sheetgate/internal/gate"
	"github.com/hitoshi/sheetgate/internal/handler"
	"github.com/hitoshi/sheetgate/internal/logger"
	"github.com/hitoshi/sheetgate/internal/metrics"
	"github.com/hitoshi/sheetgate/internal/middleware"
	"github.com/hitoshi/sheetgate/internal/repository"
	"github.com/hitoshi/sheetgate/internal/security"
	"github.com/hitoshi/sheetgate/internal/sheet"
	"github.com/hitoshi/sheetgate/internal/source"
	"github.com/hitoshi/sheetgate/internal/worker/refresh"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// newSheetService は取り込みパイプライン一式をワイヤリングする。
// APIキーが設定されている場合はvalues API経由、未設定の場合は
// 公開CSVエクスポート経由でデータを取得する。
func newSheetService(cfg *config.Config) *sheet.Service {
	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewCellSanitizer()

	fetcher := sheet.NewFetcher(ssrfGuard, slog.Default(),
		sheet.WithFetchTimeout(cfg.FetchTimeout),
		sheet.WithMaxBodySize(cfg.FetchMaxSize),
	)

	var apiClient *sheet.APIClient
	if cfg.SheetsAPIKey != "" {
		apiClient = sheet.NewAPIClient(
			&http.Client{Timeout: cfg.FetchTimeout},
			slog.Default(),
			cfg.SheetsAPIKey,
		)
	}

	return sheet.NewService(fetcher, apiClient, sanitizer, slog.Default())
}

// newGateService はゲート認証サービス一式をワイヤリングする。
func newGateService(cfg *config.Config, gateRepo repository.GateRepository, store gate.TokenStore) (*gate.Service, error) {
	hasher := gate.NewHasher(gate.HasherConfig{RandomSalt: cfg.GateRandomSalt})

	keys, err := gate.NewEphemeralKeyProvider()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token encryption: %w", err)
	}
	tokens := gate.NewTokenManager(store, keys, slog.Default())

	keeper := gate.NewKeeper(cfg.GateMaxAttempts, cfg.GateLockoutDuration)

	return gate.NewService(gateRepo, hasher, tokens, keeper, gate.ServiceConfig{
		DefaultTokenTTL:        cfg.GateTokenTTL,
		DefaultMaxAttempts:     cfg.GateMaxAttempts,
		DefaultLockoutDuration: cfg.GateLockoutDuration,
	}), nil
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	gateRepo := repository.NewPostgresGateRepo(db)
	sourceRepo := repository.NewPostgresSourceRepo(db)

	// 3. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 4. 取り込みパイプラインの初期化
	sheetService := newSheetService(cfg)

	sourceService := source.NewService(sourceRepo, sheetService, collector, slog.Default(), source.ServiceConfig{
		CacheTTL: cfg.DataCacheTTL,
	})

	// 5. ゲート認証サービスの初期化
	var tokenStore gate.TokenStore
	if cfg.TokenStore == "postgres" {
		tokenStore = repository.NewPostgresTokenStore(db)
	} else {
		tokenStore = repository.NewMemoryTokenStore()
	}
	gateService, err := newGateService(cfg, gateRepo, tokenStore)
	if err != nil {
		return err
	}

	// 6. ルーターの構築
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	rateLimiterCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
	rateLimiterCfg.GeneralBurst = cfg.RateLimitGeneral
	rateLimiterCfg.AuthRate = rate.Limit(float64(cfg.RateLimitAuth) / 60.0)
	rateLimiterCfg.AuthBurst = cfg.RateLimitAuth
	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg)
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Logger:            slog.Default(),
		GateService:       gateService,
		SourceService:     sourceService,
		ChartService:      sheetService,
		Metrics:           collector,
		MetricsGatherer:   registry,
	})

	// 7. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、データソースのリフレッシュスケジューラを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	// 2. 取り込みパイプラインの初期化
	sourceRepo := repository.NewPostgresSourceRepo(db)
	sheetService := newSheetService(cfg)
	sourceService := source.NewService(sourceRepo, sheetService, nil, slog.Default(), source.ServiceConfig{
		CacheTTL: cfg.DataCacheTTL,
	})

	// 3. スケジューラの起動
	scheduler := refresh.NewScheduler(
		sourceRepo, sourceService, slog.Default(), cfg.FetchMaxConcurrent,
	)

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("refresh_interval", cfg.RefreshInterval),
		slog.Int("max_concurrent", cfg.FetchMaxConcurrent),
	)

	// リフレッシュスケジューラをメインgoroutineで実行（ブロッキング）
	scheduler.Start(ctx, cfg.RefreshInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /healthz エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/healthz", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
