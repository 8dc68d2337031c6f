package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/horo/internal/metrics"
	"github.com/hitoshi/horo/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionVerifier   middleware.SessionVerifier
	CORSAllowedOrigin string
	CSRFConfig        middleware.CSRFConfig
	Logger            *slog.Logger
	Metrics           metrics.MetricsCollector
	HealthChecker     HealthChecker

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// 鑑定
	FortuneService FortuneServiceInterface

	// 招待
	InviteService InviteServiceInterface
	InviteConfig  InviteHandlerConfig
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Logging → Metrics → Recovery → SecurityHeaders → CORS → CSRF
//
// セッションが必要なルートにはさらにSessionMiddlewareを適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	collector := deps.Metrics
	if collector == nil {
		collector = metrics.NopCollector{}
	}

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(metrics.NewHTTPMiddleware(collector))
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig, collector)
	fortuneHandler := NewFortuneHandler(deps.FortuneService, collector)
	inviteHandler := NewInviteHandler(deps.InviteService, deps.InviteConfig, collector)
	requireSession := middleware.NewSessionMiddleware(deps.SessionVerifier)

	// --- 認証不要のルート ---
	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	r.Method(http.MethodGet, "/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

	r.Route("/auth", func(r chi.Router) {
		r.Get("/login", authHandler.Login)
		r.Get("/callback", authHandler.Callback)
		r.Post("/logout", authHandler.Logout)
		r.Get("/me", authHandler.Me)
	})

	r.Route("/fortune", func(r chi.Router) {
		r.Post("/teaser", fortuneHandler.Teaser)
		r.With(requireSession).Post("/profile", fortuneHandler.SaveProfile)
	})

	r.Route("/invite", func(r chi.Router) {
		r.With(requireSession).Post("/", inviteHandler.Issue)
		r.Get("/{token}", inviteHandler.Resolve)
		r.With(requireSession).Post("/{token}/use", inviteHandler.Use)
	})

	return r
}
