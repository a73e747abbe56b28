package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/sermonhub/internal/middleware"
	"github.com/hitoshi/sermonhub/internal/resolver"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
// SessionStore・Members・各サービスがnilの場合、対応する機能は設定欠如として応答する。
type RouterDeps struct {
	// ミドルウェア依存。RateLimiterは必須。
	Logger            *slog.Logger
	SessionStore      middleware.SessionGetter
	Members           *resolver.MembershipResolver
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Cookie            middleware.CookieConfig
	HealthChecker     HealthChecker
	MetricsHandler    http.Handler

	// 認証
	AuthService    AuthServiceInterface
	SessionClients SessionClientFactory
	AuthConfig     AuthHandlerConfig

	// 説教・送信・表示
	SermonService  SermonServiceInterface
	IntakeService  IntakeServiceInterface
	ContentService ContentServiceInterface

	// 管理コンソール
	AdminService AdminServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Logging → Recovery → SecurityHeaders → CORS → ClientID → Session → RateLimit(General) → CSRF
//
// 所属が必要なルートはさらに RequireIdentity → RequireMembership を通る。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.Cookie.Secure))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	csrfConfig := middleware.CSRFConfig{
		CookieSecure: deps.Cookie.Secure,
		CookieDomain: deps.Cookie.Domain,
	}

	authConfig := deps.AuthConfig
	authConfig.Cookie = deps.Cookie

	authHandler := NewAuthHandler(deps.AuthService, deps.SessionClients, deps.Members, authConfig)
	sermonHandler := NewSermonHandler(deps.SermonService)
	intakeHandler := NewIntakeHandler(deps.IntakeService)
	contentHandler := NewContentHandler(deps.ContentService)
	adminHandler := NewAdminHandler(deps.AdminService)

	// --- 運用エンドポイント（セッション不要） ---
	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.NewClientIDMiddleware(deps.Cookie))
		r.Use(middleware.NewSessionMiddleware(deps.SessionStore))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/api/csrf-token", middleware.NewCSRFTokenHandler(csrfConfig).ServeHTTP)

		// 認証状態の変化通知は長時間接続のためCSRF対象外（GETのみ）
		r.Get("/auth/events", authHandler.Events)

		r.Group(func(r chi.Router) {
			r.Use(middleware.NewCSRFMiddleware(csrfConfig))

			// 認証
			r.Route("/auth", func(r chi.Router) {
				r.Get("/state", authHandler.State)
				r.Post("/signin", authHandler.SignIn)
				r.Post("/signup", authHandler.SignUp)
				r.Post("/signout", authHandler.SignOut)
				r.Post("/refresh", authHandler.Refresh)
				r.Post("/password-reset", authHandler.RequestPasswordReset)
				r.Post("/password-reset/confirm", authHandler.ConfirmPasswordReset)
			})

			// --- 所属が必要なルート ---
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireIdentity)
				r.Use(middleware.NewRequireMembership(deps.Members))

				r.Get("/api/dashboard", sermonHandler.Dashboard)
				r.Get("/api/content", contentHandler.Embed)

				// POST /api/intake - 説教送信（送信専用レート制限を追加）
				r.With(deps.RateLimiter.IntakeMiddleware()).Post("/api/intake", intakeHandler.Submit)

				r.Route("/api/sermons", func(r chi.Router) {
					r.Get("/", sermonHandler.ListSermons)
					r.With(middleware.RequireEditor).Post("/", sermonHandler.CreateSermon)

					r.Route("/{id}", func(r chi.Router) {
						r.With(middleware.RequireEditor).Patch("/", sermonHandler.UpdateSermon)
						r.With(middleware.RequireEditor).Delete("/", sermonHandler.DeleteSermon)
						r.Get("/content", contentHandler.SermonContent)
					})
				})
			})

			// --- 管理コンソール ---
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireIdentity)
				r.Use(middleware.RequireAdmin)

				r.Route("/api/admin/churches", func(r chi.Router) {
					r.Get("/", adminHandler.ListChurches)
					r.Post("/", adminHandler.CreateChurch)

					r.Route("/{id}", func(r chi.Router) {
						r.Get("/", adminHandler.GetChurch)
						r.Patch("/", adminHandler.UpdateChurch)
						r.Delete("/", adminHandler.DeleteChurch)
						r.Post("/password-reset", adminHandler.SendPasswordReset)
					})
				})
			})
		})
	})

	return r
}
