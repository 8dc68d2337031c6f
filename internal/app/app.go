// Package app はサブコマンドごとの起動処理と依存関係の組み立てを行う。
package app

import (
	"context"
	"database/sql"
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

	"github.com/hitoshi/horo/internal/aitext"
	"github.com/hitoshi/horo/internal/astrology"
	"github.com/hitoshi/horo/internal/auth"
	"github.com/hitoshi/horo/internal/config"
	"github.com/hitoshi/horo/internal/database"
	"github.com/hitoshi/horo/internal/fortune"
	"github.com/hitoshi/horo/internal/handler"
	"github.com/hitoshi/horo/internal/invite"
	"github.com/hitoshi/horo/internal/logger"
	"github.com/hitoshi/horo/internal/metrics"
	"github.com/hitoshi/horo/internal/middleware"
	"github.com/hitoshi/horo/internal/repository"
	"github.com/hitoshi/horo/internal/security"
	"github.com/hitoshi/horo/internal/user"
	"github.com/hitoshi/horo/internal/worker/cleanup"
)

const (
	dbPingTimeout   = 5 * time.Second
	shutdownTimeout = 30 * time.Second

	// staticTeaserText はAPIキー未設定の開発環境で返す文章。
	staticTeaserText = "今日は小さな幸運が訪れる日。気になっていたことに一歩踏み出してみましょう。"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、設定に従って構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, logger.Options{Format: "json", Level: slog.LevelInfo})

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定された形式とレベルで再設定
	logger.SetupDefault(w, logger.Options{Format: cfg.LogFormat, Level: cfg.SlogLevel()})

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd, err := ParseCommand(args)
	if err != nil {
		return err
	}

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
		slog.String("env", cfg.Env),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(ctx, cfg)
	}
}

// openDB はDB接続を開き、疎通を確認する。
func openDB(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := database.Ping(ctx, db, dbPingTimeout); err != nil {
		db.Close()
		return nil, err
	}
	slog.Info("database connection established")
	return db, nil
}

// newRegistry はプロセス・ランタイムのメトリクスを含むレジストリを生成する。
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// outboundClient は外部APIに接続するHTTPクライアントを返す。
// 本番ではプライベートネットワークに到達できないクライアントを使う。
func outboundClient(cfg *config.Config, guard security.URLGuard, timeout time.Duration) *http.Client {
	if cfg.IsProduction() {
		return guard.NewSafeClient(timeout)
	}
	return &http.Client{Timeout: timeout}
}

// newOAuthProviders は設定されたIdPのプロバイダーを生成する。
func newOAuthProviders(cfg *config.Config, client *http.Client) []auth.OAuthProvider {
	return []auth.OAuthProvider{
		auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.OAuthCallbackURL,
			HTTPClient:   client,
		}),
		auth.NewXOAuthProvider(auth.XOAuthConfig{
			ClientID:     cfg.XClientID,
			ClientSecret: cfg.XClientSecret,
			RedirectURL:  cfg.OAuthCallbackURL,
			HTTPClient:   client,
		}),
	}
}

// newGenerator は文章生成の実装を選ぶ。
// APIキーが無い場合（本番以外）は固定文を返す実装を使う。
func newGenerator(cfg *config.Config, guard security.URLGuard, sanitizer security.TextSanitizer) aitext.Generator {
	if cfg.AnthropicAPIKey == "" {
		slog.Warn("ANTHROPIC_API_KEY is not set; using static teaser text")
		return aitext.StaticGenerator{Text: staticTeaserText}
	}
	return aitext.NewClient(aitext.Config{
		APIKey:            cfg.AnthropicAPIKey,
		Model:             cfg.AnthropicModel,
		BaseURL:           cfg.AnthropicBaseURL,
		RequestsPerMinute: cfg.AIRequestsPerMinute,
		HTTPClient:        outboundClient(cfg, guard, cfg.TeaserTimeout),
	}, sanitizer)
}

// newAPIHandler はAPIサーバーの全依存関係をワイヤリングしたhttp.Handlerを返す。
func newAPIHandler(cfg *config.Config, db *sql.DB, collector metrics.MetricsCollector) (http.Handler, error) {
	// 1. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	inviteRepo := repository.NewPostgresInviteRepo(db)
	profileRepo := repository.NewPostgresProfileRepo(db)

	// 2. セキュリティサービスの初期化
	guard := security.NewGuard()
	sanitizer := security.NewTextSanitizer()
	sealer, err := security.NewSealer(cfg.SessionSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to create sealer: %w", err)
	}

	// 3. ドメインサービスの初期化
	userService := user.NewService(userRepo, sanitizer, guard)
	sessionConfig := auth.SessionConfig{
		MaxAge: time.Duration(cfg.SessionMaxAge) * time.Second,
		Secure: cfg.CookieSecure,
		Domain: cfg.CookieDomain,
	}
	verifier := auth.NewSessionVerifier(sessionRepo, userService)
	authService := auth.NewService(
		auth.NewExchanger(
			newOAuthProviders(cfg, outboundClient(cfg, guard, cfg.ProviderTimeout)),
			auth.NewStateSigner(cfg.SessionSecret, auth.DefaultStateTTL),
			cfg.ProviderTimeout,
		),
		userService,
		auth.NewSessionIssuer(sessionRepo, sealer, sessionConfig),
		verifier,
	)

	fortuneService := fortune.NewService(
		astrology.NewBasicEngine(),
		newGenerator(cfg, guard, sanitizer),
		profileRepo,
		sanitizer,
		cfg.TeaserTimeout,
	)
	inviteService := invite.NewService(inviteRepo, cfg.InviteTTL, cfg.FrontendURL)

	// 4. ルーターの構築
	return handler.NewRouter(&handler.RouterDeps{
		SessionVerifier:   verifier,
		CORSAllowedOrigin: cfg.FrontendURL,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		Logger:        slog.Default(),
		Metrics:       collector,
		HealthChecker: db,

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			FrontendURL:  cfg.FrontendURL,
			CookieDomain: cfg.CookieDomain,
			CookieSecure: cfg.CookieSecure,
		},

		FortuneService: fortuneService,

		InviteService: inviteService,
		InviteConfig: handler.InviteHandlerConfig{
			GenericErrors: cfg.InviteGenericErrors,
		},
	}), nil
}

// serveUntilDone はctxが終了するまでサーバーを動かし、その後グレースフルシャットダウンする。
func serveUntilDone(ctx context.Context, servers ...*http.Server) error {
	errCh := make(chan error, len(servers))
	for _, srv := range servers {
		go func() {
			slog.Info("http server starting", slog.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("server %s: %w", srv.Addr, err)
			}
		}()
	}

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
		slog.Error("server listen error", slog.String("error", serveErr.Error()))
	}

	slog.Info("shutting down http servers...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	errs := []error{serveErr}
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("server %s shutdown failed: %w", srv.Addr, err))
		}
	}
	return errors.Join(errs...)
}

func newMetricsServer(cfg *config.Config, reg *prometheus.Registry) *http.Server {
	return &http.Server{
		Addr:              ":" + cfg.MetricsPort,
		Handler:           metrics.SetupMetricsRoute(reg),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーとメトリクスサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	reg := newRegistry()
	router, err := newAPIHandler(cfg, db, metrics.NewCollector(reg))
	if err != nil {
		return err
	}

	api := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.TeaserTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if err := serveUntilDone(ctx, api, newMetricsServer(cfg, reg)); err != nil {
		return err
	}
	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 期限切れセッションと招待の定期削除をスケジュール実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(ctx context.Context, cfg *config.Config) error {
	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	reg := newRegistry()
	job := cleanup.NewCleanupJob(db, slog.Default(), metrics.NewCollector(reg), cfg.CleanupRetention)
	scheduler, err := cleanup.NewScheduler(job, cfg.CleanupSchedule, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to create cleanup scheduler: %w", err)
	}

	slog.Info("worker starting",
		slog.String("cleanup_schedule", cfg.CleanupSchedule),
		slog.Duration("cleanup_retention", cfg.CleanupRetention),
	)

	metricsServer := newMetricsServer(cfg, reg)
	done := make(chan error, 1)
	go func() {
		done <- serveUntilDone(ctx, metricsServer)
	}()

	// スケジューラをメインgoroutineで実行（ブロッキング）
	scheduler.Start(ctx)

	if err := <-done; err != nil {
		return err
	}
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

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
