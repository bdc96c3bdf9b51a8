package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/advisorhub/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionFinder     middleware.SessionFinder
	TokenValidator    middleware.TokenValidator
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRFConfig        middleware.CSRFConfig

	// 運用
	HealthChecker  HealthChecker
	MetricsHandler http.Handler

	// 認証
	AuthService    AuthServiceInterface
	ProfileService ProfileServiceInterface
	AuthConfig     AuthHandlerConfig

	// 招待台帳
	InviteService     InviteServiceInterface
	AuditTrailService AuditTrailServiceInterface

	// ペルソナ
	PersonaService   PersonaServiceInterface
	EnrichmentStatus EnrichmentStatusGetter

	// ユーザー
	UserService UserServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	CORS → SecurityHeaders → Recovery → Logging
//	  → (認証ルート) Session(Cookie/Bearer) → CSRF → RateLimit(General)
//
// OAuthフロー、ヘルスチェック、メトリクスは認証チェーンの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(slog.Default()))

	authHandler := NewAuthHandler(deps.AuthService, deps.ProfileService, deps.AuthConfig)
	inviteHandler := NewInviteHandler(deps.InviteService, deps.AuditTrailService)
	personaHandler := NewPersonaHandler(deps.PersonaService, deps.EnrichmentStatus)
	userHandler := NewUserHandler(deps.UserService, deps.AuthConfig)

	// --- 認証不要のルート ---

	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Route("/auth", func(r chi.Router) {
		r.Get("/google/login", authHandler.Login)
		r.Get("/google/callback", authHandler.Callback)
		r.Post("/logout", authHandler.Logout)
	})
	r.Get("/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig).ServeHTTP)

	// --- 認証が必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder, deps.TokenValidator))
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/auth/me", authHandler.Me)
		r.Post("/auth/token", authHandler.IssueToken)

		r.Route("/api/invites", func(r chi.Router) {
			r.Get("/", inviteHandler.ListInvites)
			r.Post("/", inviteHandler.CreateInvite)
			r.Get("/audit", inviteHandler.GetAuditTrail)
			// 総当たり対策として引き換えには専用のレート制限を追加
			r.With(deps.RateLimiter.RedeemMiddleware()).Post("/{code}/redeem", inviteHandler.RedeemInvite)
		})

		r.Route("/api/persona", func(r chi.Router) {
			r.Get("/", personaHandler.GetPersona)
			r.Put("/", personaHandler.SavePersona)
			r.Post("/enrich", personaHandler.RequestEnrichment)
			r.Get("/enrichment-status", personaHandler.GetEnrichmentStatus)
		})

		r.Route("/api/users", func(r chi.Router) {
			r.Delete("/me", userHandler.Withdraw)
		})
	})

	return r
}
