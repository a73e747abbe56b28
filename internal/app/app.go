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
	"golang.org/x/time/rate"

	"github.com/hitoshi/sermonhub/internal/admin"
	"github.com/hitoshi/sermonhub/internal/auth"
	"github.com/hitoshi/sermonhub/internal/config"
	"github.com/hitoshi/sermonhub/internal/database"
	"github.com/hitoshi/sermonhub/internal/handler"
	"github.com/hitoshi/sermonhub/internal/intake"
	"github.com/hitoshi/sermonhub/internal/logger"
	"github.com/hitoshi/sermonhub/internal/mail"
	"github.com/hitoshi/sermonhub/internal/metrics"
	"github.com/hitoshi/sermonhub/internal/middleware"
	"github.com/hitoshi/sermonhub/internal/repository"
	"github.com/hitoshi/sermonhub/internal/resolver"
	"github.com/hitoshi/sermonhub/internal/security"
	"github.com/hitoshi/sermonhub/internal/sermon"
	"github.com/hitoshi/sermonhub/internal/viewer"
	"github.com/hitoshi/sermonhub/internal/worker/cleanup"
)

// errDirectoryRequired はテナントディレクトリが必須のコマンドでDATABASE_URLが未設定の場合のエラー。
var errDirectoryRequired = errors.New("DATABASE_URL is required for this command")

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップし、環境変数（envFile指定時はそのファイルも）からConfigを読み込む。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer, envFile string) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 設定の読み込み
	var (
		cfg *config.Config
		err error
	)
	if envFile != "" {
		cfg, err = config.LoadFile(envFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 欠けている外部設定は起動を止めず、依存する機能だけが無効になる
	if missing := cfg.MissingExternal(); len(missing) > 0 {
		slog.Warn("external configuration missing; dependent features are disabled",
			slog.Any("settings", missing),
		)
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

	rest := args
	if len(args) > 0 && Command(args[0]) == cmd {
		rest = args[1:]
	}
	opts, err := ParseOptions(cmd, rest, w)
	if err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}

	cfg, err := Init(w, opts.EnvFile)
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
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandGrant:
		return runGrant(cfg, opts.Grant)
	default:
		return runServe(cfg)
	}
}

// Components はserveモードで組み立てた依存関係。
type Components struct {
	Deps     *handler.RouterDeps
	Registry *prometheus.Registry
}

// Close はバックグラウンドで動作するコンポーネントを停止する。
func (c *Components) Close() {
	if c.Deps != nil && c.Deps.RateLimiter != nil {
		c.Deps.RateLimiter.Stop()
	}
}

// BuildComponents は設定とテナントディレクトリ接続からルーターの依存関係を組み立てる。
// dbがnilの場合、ディレクトリに依存する機能はすべて設定欠如として応答する。
// Webhookの送信先がSSRFガードで拒否された場合はエラーを返す。
func BuildComponents(cfg *config.Config, db *sql.DB) (*Components, error) {
	// 1. メトリクス
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg)

	// 2. 説教送信（Webhook中継）
	intakeService, err := intake.NewService(intake.Config{
		WebhookURL: cfg.WebhookURL,
		Timeout:    cfg.WebhookTimeout,
		SSRFGuard:  cfg.WebhookSSRFGuard,
	}, security.NewSSRFGuard(), collector)
	if err != nil {
		return nil, fmt.Errorf("failed to configure intake: %w", err)
	}

	deps := &handler.RouterDeps{
		Logger:            slog.Default(),
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       middleware.NewRateLimiter(rateLimiterConfig(cfg)),
		Cookie: middleware.CookieConfig{
			Secure:        cfg.CookieSecure,
			Domain:        cfg.CookieDomain,
			SessionMaxAge: cfg.SessionMaxAge,
		},
		MetricsHandler: metrics.Handler(reg),
		IntakeService:  intakeService,
	}

	// 3. テナントディレクトリに依存するリポジトリとSession Store
	// インターフェース型の変数に保持し、未設定時は型付きnilではなくnilを渡す
	var (
		sermonRepo repository.SermonRepository
		reader     viewer.SermonReader
		churchRepo repository.ChurchRepository
		directory  resolver.Directory
		resetter   admin.PasswordResetter
	)
	if db != nil {
		sermons := repository.NewPostgresSermonRepo(db)
		sermonRepo, reader = sermons, sermons
		churchRepo = repository.NewPostgresChurchRepo(db)
		directory = repository.NewPostgresMembershipRepo(db)

		authService := newAuthService(cfg, db)
		resetter = authService

		deps.HealthChecker = db
		deps.SessionStore = authService
		deps.AuthService = authService
		deps.SessionClients = func(clientID, sessionID string) resolver.SessionStore {
			return authService.Client(clientID, sessionID)
		}
	}

	// 4. ドメインサービス
	deps.Members = resolver.NewMembershipResolver(directory, collector)
	deps.SermonService = handler.NewSermonServiceAdapter(sermon.NewService(sermonRepo))
	deps.ContentService = viewer.NewService(reader, security.NewContentSanitizer())
	deps.AdminService = handler.NewAdminServiceAdapter(admin.NewService(churchRepo, resetter))

	return &Components{Deps: deps, Registry: reg}, nil
}

// newAuthService はSession Storeを構築する。
// SESSION_SECRETまたはSMTP_HOSTが未設定の場合、パスワードリセットは設定欠如になる。
func newAuthService(cfg *config.Config, db *sql.DB) *auth.Service {
	var resetTokens *auth.ResetTokenService
	if cfg.SessionSecret != "" {
		resetTokens = auth.NewResetTokenService(cfg.SessionSecret, cfg.ResetTokenTTL)
	}
	mailer := mail.New(mail.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		User:     cfg.SMTPUser,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	})

	return auth.NewService(
		repository.NewPostgresIdentityRepo(db),
		repository.NewPostgresSessionRepo(db),
		auth.NewPasswordService(cfg.BcryptCost),
		resetTokens,
		mailer,
		auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge, BaseURL: cfg.BaseURL},
	)
}

// rateLimiterConfig はreq/min単位の設定値をreq/secのレート制限設定に変換する。
func rateLimiterConfig(cfg *config.Config) middleware.RateLimiterConfig {
	rl := middleware.DefaultRateLimiterConfig()
	if cfg.RateLimitGeneral > 0 {
		rl.GeneralRate = rate.Limit(cfg.RateLimitGeneralPerSecond())
		rl.GeneralBurst = cfg.RateLimitGeneral
	}
	if cfg.RateLimitIntake > 0 {
		rl.IntakeRate = rate.Limit(cfg.RateLimitIntakePerSecond())
		rl.IntakeBurst = cfg.RateLimitIntake
	}
	return rl
}

// writeTimeout はWebhookの応答待ちを含めたレスポンス書き込みの上限を返す。
// SSEの接続はハンドラー側で個別に解除する。
func writeTimeout(cfg *config.Config) time.Duration {
	d := cfg.WebhookTimeout + 10*time.Second
	if d < 15*time.Second {
		d = 15 * time.Second
	}
	return d
}

// openDirectory はテナントディレクトリへの接続を開く。
// 未設定の場合はnilを返す。疎通確認の失敗は警告に留め、リクエストごとの失敗として扱う。
func openDirectory(cfg *config.Config) (*sql.DB, error) {
	if !cfg.DirectoryConfigured() {
		return nil, nil
	}
	db, err := database.Open(cfg.DirectoryDSN())
	if err != nil {
		return nil, err
	}
	if err := database.Ping(context.Background(), db); err != nil {
		slog.Warn("tenant directory is unreachable",
			slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
			slog.String("error", err.Error()),
		)
	} else {
		slog.Info("database connection established")
	}
	return db, nil
}

// requireDirectory はディレクトリ必須のコマンド用に接続を開き、疎通を確認する。
func requireDirectory(cfg *config.Config) (*sql.DB, error) {
	if !cfg.DirectoryConfigured() {
		return nil, errDirectoryRequired
	}
	return database.Connect(context.Background(), cfg.DirectoryDSN())
}

// runServe はAPIサーバーモードで起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	db, err := openDirectory(cfg)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	if db != nil {
		defer db.Close()
	}

	components, err := BuildComponents(cfg, db)
	if err != nil {
		return err
	}
	defer components.Close()

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      handler.NewRouter(components.Deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeout(cfg),
		IdleTimeout:  60 * time.Second,
	}

	return serveUntilSignal(server, "API server")
}

// runWorker はワーカーモードで起動する。
// 期限切れセッションを定期的に削除し、/metricsを公開する。
func runWorker(cfg *config.Config) error {
	db, err := requireDirectory(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	reg := prometheus.NewRegistry()
	job := cleanup.NewCleanupJob(
		repository.NewPostgresSessionRepo(db),
		slog.Default(),
		metrics.NewCollector(reg),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      metrics.SetupMetricsRoute(reg),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	slog.Info("worker starting", slog.Duration("interval", job.Interval))
	go job.Start(ctx)

	err = serveUntilSignal(server, "worker metrics server")
	cancel()
	slog.Info("worker stopped gracefully")
	return err
}

// serveUntilSignal はHTTPサーバーを起動し、シグナル受信でシャットダウンする。
func serveUntilSignal(server *http.Server, name string) error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	listenErr := make(chan error, 1)
	go func() {
		slog.Info(name+" starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErr <- err
		}
	}()

	select {
	case err := <-listenErr:
		return fmt.Errorf("%s listen error: %w", name, err)
	case <-stop:
	}
	slog.Info("shutting down " + name + "...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("%s shutdown failed: %w", name, err)
	}

	slog.Info(name + " stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	if !cfg.DirectoryConfigured() {
		return errDirectoryRequired
	}
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DirectoryDSN())
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("schema_version", uint64(version)))
	return nil
}

// runGrant はidentityに教会の所属や管理者フラグを付与する。
func runGrant(cfg *config.Config, req admin.GrantRequest) error {
	db, err := requireDirectory(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	granter := admin.NewGranter(
		repository.NewPostgresIdentityRepo(db),
		repository.NewPostgresChurchRepo(db),
		repository.NewPostgresMembershipRepo(db),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, err := granter.Grant(ctx, req)
	if err != nil {
		return fmt.Errorf("grant failed: %w", err)
	}

	attrs := []any{
		slog.String("user_id", result.Identity.ID),
		slog.String("email", result.Identity.Email),
		slog.Bool("is_admin", result.Identity.Metadata.IsAdmin),
	}
	if result.Membership != nil {
		attrs = append(attrs,
			slog.String("church_id", result.Membership.ChurchID),
			slog.String("role", string(result.Membership.Role)),
		)
	}
	slog.Info("grant completed", attrs...)
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
