package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Sheets API。未設定の場合は公開CSVエクスポートのみ使用する。
	SheetsAPIKey string

	// Fetch
	FetchTimeout       time.Duration
	FetchMaxSize       int64
	FetchMaxConcurrent int
	RefreshInterval    time.Duration

	// Gate
	GateTokenTTL        time.Duration
	GateMaxAttempts     int
	GateLockoutDuration time.Duration
	GateRandomSalt      bool

	// Token Store: "memory" または "postgres"
	TokenStore string

	// Cache
	DataCacheTTL time.Duration

	// Rate Limit
	RateLimitGeneral int
	RateLimitAuth    int

	// Server
	ServerPort string
	BaseURL    string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.SheetsAPIKey = os.Getenv("SHEETS_API_KEY")
	cfg.FetchTimeout = getEnvDuration("FETCH_TIMEOUT", 15*time.Second)
	cfg.FetchMaxSize = getEnvInt64("FETCH_MAX_SIZE", 10485760)
	cfg.FetchMaxConcurrent = getEnvInt("FETCH_MAX_CONCURRENT", 10)
	cfg.RefreshInterval = getEnvDuration("REFRESH_INTERVAL", 5*time.Minute)
	cfg.GateTokenTTL = getEnvDuration("GATE_TOKEN_TTL", 24*time.Hour)
	cfg.GateMaxAttempts = getEnvInt("GATE_MAX_ATTEMPTS", 5)
	cfg.GateLockoutDuration = getEnvDuration("GATE_LOCKOUT_DURATION", 5*time.Minute)
	cfg.GateRandomSalt = getEnvBool("GATE_RANDOM_SALT", false)
	cfg.TokenStore = getEnvString("TOKEN_STORE", "memory")
	cfg.DataCacheTTL = getEnvDuration("DATA_CACHE_TTL", 5*time.Minute)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitAuth = getEnvInt("RATE_LIMIT_AUTH", 10)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	if cfg.TokenStore != "memory" && cfg.TokenStore != "postgres" {
		return nil, fmt.Errorf("TOKEN_STORE must be either memory or postgres, got %q", cfg.TokenStore)
	}

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
