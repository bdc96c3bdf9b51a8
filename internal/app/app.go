package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/advisorhub/internal/auth"
	"github.com/hitoshi/advisorhub/internal/config"
	"github.com/hitoshi/advisorhub/internal/database"
	"github.com/hitoshi/advisorhub/internal/enrichment"
	"github.com/hitoshi/advisorhub/internal/handler"
	"github.com/hitoshi/advisorhub/internal/invite"
	"github.com/hitoshi/advisorhub/internal/logger"
	"github.com/hitoshi/advisorhub/internal/metrics"
	"github.com/hitoshi/advisorhub/internal/middleware"
	"github.com/hitoshi/advisorhub/internal/model"
	"github.com/hitoshi/advisorhub/internal/persona"
	"github.com/hitoshi/advisorhub/internal/repository"
	"github.com/hitoshi/advisorhub/internal/security"
	"github.com/hitoshi/advisorhub/internal/user"
	"github.com/hitoshi/advisorhub/internal/worker/cleanup"
	"github.com/hitoshi/advisorhub/internal/worker/enrich"
)

// ErrEnrichmentFailed は status サブコマンドが failed 状態で終了したことを表す。
var ErrEnrichmentFailed = errors.New("enrichment finished with failed status")

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップし、環境変数からConfigを読み込む。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 設定読み込み前にログを使えるようにする
	logger.SetupDefault(w, os.Getenv("LOG_LEVEL"))

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// healthcheck と status はDBに触れないため、フル初期化をスキップする
	switch cmd {
	case CommandHealthcheck:
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	case CommandStatus:
		return runStatusCommand(ctx, w, args[1:])
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
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(ctx, cfg)
	}
}

// openDatabase はコネクションプールを設定してDBに接続し、疎通を確認する。
func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL, database.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// newRegistry はプロセス標準のコレクターを登録したレジストリを返す。
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// buildRouter はDB接続から全依存関係をワイヤリングしてAPIルーターを構築する。
// 返すRateLimiterはサーバー停止時にStopすること。
func buildRouter(db *sql.DB, cfg *config.Config, reg *prometheus.Registry) (http.Handler, *middleware.RateLimiter) {
	collector := metrics.NewCollector(reg)

	// リポジトリ
	userRepo := repository.NewPostgresUserRepo(db)
	identRepo := repository.NewPostgresIdentityRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	inviteRepo := repository.NewPostgresInviteRepo(db)
	personaRepo := repository.NewPostgresPersonaRepo(db)

	// セキュリティ
	urlGuard := security.NewURLGuard()
	sanitizer := security.NewTextSanitizer()

	// ドメインサービス
	oauthProvider := auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
	})
	tokenIssuer := auth.NewTokenIssuer(cfg.SessionSecret, cfg.TokenTTL)
	authService := auth.NewService(
		oauthProvider, userRepo, identRepo, sessionRepo, tokenIssuer,
		auth.ServiceConfig{
			SessionMaxAge:      cfg.SessionMaxAge,
			InitialInviteQuota: cfg.InitialInviteQuota,
		},
	)
	userService := user.NewService(userRepo, cfg.IsAdmin)
	inviteService := invite.NewService(inviteRepo, collector)
	personaService := persona.NewService(personaRepo, sanitizer, urlGuard)
	tracker := enrichment.NewTracker(personaRepo, collector)

	rateLimiter := middleware.NewRateLimiter(
		middleware.RateLimiterConfigPerMinute(cfg.RateLimitGeneral, cfg.RateLimitRedeem),
	)

	deps := &handler.RouterDeps{
		SessionFinder:     sessionRepo,
		TokenValidator:    tokenIssuer,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},

		HealthChecker:  db,
		MetricsHandler: metrics.Handler(reg),

		AuthService:    authService,
		ProfileService: userService,
		AuthConfig: handler.AuthHandlerConfig{
			BaseURL:       cfg.BaseURL,
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		InviteService:     inviteService,
		AuditTrailService: handler.NewAuditTrailAdapter(inviteService, userService),

		PersonaService:   personaService,
		EnrichmentStatus: tracker,

		UserService: userService,
	}

	return handler.NewRouter(deps), rateLimiter
}

// runServe はAPIサーバーモードで起動する。
// ctxがキャンセルされる（SIGINT/SIGTERM）とグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	router, rateLimiter := buildRouter(db, cfg, newRegistry())
	defer rateLimiter.Stop()

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return serveUntilDone(ctx, server, "API server")
}

// serveUntilDone はctxが終了するまでサーバーを動かし、終了後に停止させる。
func serveUntilDone(ctx context.Context, server *http.Server, name string) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info(name+" starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("%s listen failed: %w", name, err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down " + name + "...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("%s shutdown failed: %w", name, err)
	}

	slog.Info(name + " stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 強化スケジューラをメインgoroutineで、セッション掃除とメトリクス公開をバックグラウンドで動かす。
func runWorker(ctx context.Context, cfg *config.Config) error {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	reg := newRegistry()
	collector := metrics.NewCollector(reg)

	personaRepo := repository.NewPostgresPersonaRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)

	// ユーザー入力のURLはSSRF対策済みクライアント、分析APIは運用者が設定した宛先なので通常のクライアント
	siteClient := security.NewURLGuard().NewSafeClient(cfg.EnrichTimeout)
	apiClient := &http.Client{Timeout: cfg.EnrichTimeout}
	enricher := enrichment.NewEnricher(siteClient, apiClient, security.NewTextSanitizer(), enrichment.EnricherConfig{
		AnalysisURL: cfg.EnrichmentAPIURL,
		AnalysisKey: cfg.EnrichmentAPIKey,
		MaxBodySize: cfg.EnrichFetchMaxSize,
	}, slog.Default())

	scheduler := enrich.NewScheduler(personaRepo, enricher, collector, slog.Default(), enrich.Options{
		MaxConcurrency: cfg.EnrichMaxConcurrent,
		Timeout:        cfg.EnrichTimeout,
		StaleAfter:     cfg.EnrichStaleAfter,
		MaxAttempts:    cfg.EnrichMaxAttempts,
	})
	cleanupJob := cleanup.NewCleanupJob(sessionRepo, collector, slog.Default())

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           metrics.Handler(reg),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := serveUntilDone(ctx, metricsServer, "worker metrics server"); err != nil {
			slog.Error("worker metrics server failed", slog.String("error", err.Error()))
		}
	}()

	go cleanupJob.Start(ctx, cfg.SessionCleanupInterval)

	slog.Info("worker starting",
		slog.Duration("enrich_interval", cfg.EnrichInterval),
		slog.Int("max_concurrent", cfg.EnrichMaxConcurrent),
		slog.Bool("analysis_enabled", cfg.EnrichmentAPIURL != ""),
	)

	scheduler.Start(ctx, cfg.EnrichInterval)

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

	version, dirty, err := database.Version(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to read migration version: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("version", uint64(version)),
		slog.Bool("dirty", dirty),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	target := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(target)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// statusUsage は status サブコマンドの使い方。
const statusUsage = "usage: advisorhub status (reports the enrichment status of the ADVISORHUB_TOKEN owner; takes no arguments)"

// runStatusCommand は status サブコマンドの環境変数を解釈してポーリングする。
//
//	advisorhub status
//
// 対象はアクセストークンの持ち主のペルソナで、他ユーザーは指定できない。
// ADVISORHUB_TOKEN に POST /auth/token で得たアクセストークン、
// ADVISORHUB_URL（未設定時は BASE_URL）にAPIのベースURLを指定する。
func runStatusCommand(ctx context.Context, w io.Writer, args []string) error {
	logger.SetupDefault(os.Stderr, os.Getenv("LOG_LEVEL"))

	if len(args) != 0 {
		return errors.New(statusUsage)
	}

	cfg, err := config.LoadStatus()
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	client := enrichment.NewClient(cfg.APIURL, cfg.Token, nil)
	return runStatus(ctx, w, client, "", cfg.PollInterval)
}

// statusLine は status サブコマンドが1行ずつ出力するJSON。
type statusLine struct {
	Status       model.EnrichmentState  `json:"status"`
	PersonaID    *string                `json:"persona_id"`
	Level        *model.EnrichmentLevel `json:"level"`
	Completeness *int                   `json:"completeness"`
	UpdatedAt    *time.Time             `json:"updated_at"`
}

// runStatus は状態が変わるたびに1行出力し、ポーリング不要な状態に達したら終了する。
// failed で終わった場合は ErrEnrichmentFailed を返す。
func runStatus(ctx context.Context, w io.Writer, getter enrichment.StatusGetter, userID string, interval time.Duration) error {
	enc := json.NewEncoder(w)
	var writeErr error
	final, err := enrichment.Poll(ctx, getter, userID, interval, func(s *model.EnrichmentStatus) {
		if writeErr != nil {
			return
		}
		writeErr = enc.Encode(statusLine{
			Status:       s.Status,
			PersonaID:    s.PersonaID,
			Level:        s.Level,
			Completeness: s.Completeness,
			UpdatedAt:    s.UpdatedAt,
		})
	})
	if err != nil {
		return fmt.Errorf("status polling failed: %w", err)
	}
	if writeErr != nil {
		return fmt.Errorf("failed to write status: %w", writeErr)
	}
	if final.Status == model.EnrichmentFailed {
		return ErrEnrichmentFailed
	}
	return nil
}

// maskDatabaseURL はデータベースURLのパスワードとクエリを伏せる。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	u.RawQuery = ""
	return u.Redacted()
}
