package config

import (
	"fmt"
	"strings"
	"time"

	env "github.com/caarlos0/env/v11"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL       string        `env:"DATABASE_URL,required,notEmpty"`
	DBMaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	DBConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"5m"`
	DBConnMaxIdleTime time.Duration `env:"DB_CONN_MAX_IDLE_TIME" envDefault:"1m"`

	// OAuth
	GoogleClientID     string `env:"GOOGLE_CLIENT_ID,required,notEmpty"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET,required,notEmpty"`
	GoogleRedirectURL  string `env:"GOOGLE_REDIRECT_URL,required,notEmpty"`

	// Session / Token
	SessionSecret string        `env:"SESSION_SECRET,required,notEmpty"`
	SessionMaxAge int           `env:"SESSION_MAX_AGE" envDefault:"86400"`
	TokenTTL      time.Duration `env:"TOKEN_TTL" envDefault:"1h"`

	// Invite
	InitialInviteQuota int      `env:"INITIAL_INVITE_QUOTA" envDefault:"5"`
	AdminEmails        []string `env:"ADMIN_EMAILS" envSeparator:","`

	// Enrichment
	EnrichInterval      time.Duration `env:"ENRICH_INTERVAL" envDefault:"30s"`
	EnrichMaxConcurrent int           `env:"ENRICH_MAX_CONCURRENT" envDefault:"5"`
	EnrichTimeout       time.Duration `env:"ENRICH_TIMEOUT" envDefault:"20s"`
	EnrichMaxAttempts   int           `env:"ENRICH_MAX_ATTEMPTS" envDefault:"3"`
	EnrichStaleAfter    time.Duration `env:"ENRICH_STALE_AFTER" envDefault:"10m"`
	EnrichFetchMaxSize  int64         `env:"ENRICH_FETCH_MAX_SIZE" envDefault:"1048576"`
	EnrichmentAPIURL    string        `env:"ENRICHMENT_API_URL"`
	EnrichmentAPIKey    string        `env:"ENRICHMENT_API_KEY"`

	// Rate Limit
	RateLimitGeneral int `env:"RATE_LIMIT_GENERAL" envDefault:"120"`
	RateLimitRedeem  int `env:"RATE_LIMIT_REDEEM" envDefault:"10"`

	// Cleanup
	SessionCleanupInterval time.Duration `env:"SESSION_CLEANUP_INTERVAL" envDefault:"24h"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Server
	ServerPort        string `env:"SERVER_PORT" envDefault:"8080"`
	WorkerMetricsPort string `env:"WORKER_METRICS_PORT" envDefault:"9091"`
	BaseURL           string `env:"BASE_URL,required,notEmpty"`

	// Cookie
	CookieSecure bool
	CookieDomain string `env:"COOKIE_DOMAIN"`

	// CORS
	CORSAllowedOrigin string `env:"CORS_ALLOWED_ORIGIN" envDefault:"http://localhost:3000"`
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	if cfg.InitialInviteQuota < 0 {
		return nil, fmt.Errorf("config.Load: INITIAL_INVITE_QUOTA must not be negative: %d", cfg.InitialInviteQuota)
	}

	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	for i, email := range cfg.AdminEmails {
		cfg.AdminEmails[i] = strings.ToLower(strings.TrimSpace(email))
	}

	return &cfg, nil
}

// IsAdmin はメールアドレスが管理者リストに含まれるかを判定する。
func (c *Config) IsAdmin(email string) bool {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return false
	}
	for _, admin := range c.AdminEmails {
		if admin == email {
			return true
		}
	}
	return false
}

// StatusConfig は status サブコマンドの設定。DBやOAuthの設定は不要。
type StatusConfig struct {
	// Token は POST /auth/token で取得したアクセストークン。
	Token        string        `env:"ADVISORHUB_TOKEN,required,notEmpty"`
	APIURL       string        `env:"ADVISORHUB_URL"`
	BaseURL      string        `env:"BASE_URL" envDefault:"http://localhost:8080"`
	PollInterval time.Duration `env:"POLL_INTERVAL" envDefault:"5s"`
}

// LoadStatus は環境変数からStatusConfigを読み込む。
// ADVISORHUB_URL が未設定の場合は BASE_URL をAPIの宛先にする。
func LoadStatus() (*StatusConfig, error) {
	cfg, err := env.ParseAs[StatusConfig]()
	if err != nil {
		return nil, fmt.Errorf("config.LoadStatus: %w", err)
	}
	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("config.LoadStatus: POLL_INTERVAL must be positive: %s", cfg.PollInterval)
	}
	if cfg.APIURL == "" {
		cfg.APIURL = cfg.BaseURL
	}
	return &cfg, nil
}
