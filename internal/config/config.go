package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
//
// 外部設定（WebhookURL、DatabaseURL、DatabasePassword）は任意で、
// 欠如している場合は依存する機能のみが無効化される。
type Config struct {
	// Directory
	DatabaseURL      string
	DatabasePassword string

	// Webhook
	WebhookURL       string
	WebhookTimeout   time.Duration
	WebhookSSRFGuard bool

	// Session
	SessionSecret string
	SessionMaxAge int
	ResetTokenTTL time.Duration
	BcryptCost    int

	// Rate Limit（req/min）
	RateLimitGeneral int
	RateLimitIntake  int

	// Mail
	SMTPHost     string
	SMTPPort     string
	SMTPUser     string
	SMTPPassword string
	SMTPFrom     string

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envがあれば先に読み込む（既存の環境変数は上書きしない）。
// 値の形式が不正な場合のみエラーを返す。
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	return load()
}

// LoadFile は指定した.envファイルを読み込んでからConfigを構築する。
func LoadFile(path string) (*Config, error) {
	if err := godotenv.Load(path); err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return load()
}

func load() (*Config, error) {
	cfg := &Config{}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.DatabasePassword = os.Getenv("DATABASE_PASSWORD")

	cfg.WebhookURL = strings.TrimSpace(os.Getenv("WEBHOOK_URL"))
	if cfg.WebhookURL != "" {
		if err := validateWebhookURL(cfg.WebhookURL); err != nil {
			return nil, fmt.Errorf("invalid WEBHOOK_URL: %w", err)
		}
	}

	cfg.SessionSecret = os.Getenv("SESSION_SECRET")

	cfg.WebhookTimeout = getEnvDuration("WEBHOOK_TIMEOUT", 15*time.Second)
	cfg.WebhookSSRFGuard = getEnvBool("WEBHOOK_SSRF_GUARD", true)
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 86400)
	cfg.ResetTokenTTL = getEnvDuration("RESET_TOKEN_TTL", time.Hour)
	cfg.BcryptCost = getEnvInt("BCRYPT_COST", 12)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitIntake = getEnvInt("RATE_LIMIT_INTAKE", 10)
	cfg.SMTPHost = os.Getenv("SMTP_HOST")
	cfg.SMTPPort = getEnvString("SMTP_PORT", "587")
	cfg.SMTPUser = os.Getenv("SMTP_USER")
	cfg.SMTPPassword = os.Getenv("SMTP_PASSWORD")
	cfg.SMTPFrom = os.Getenv("SMTP_FROM")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.BaseURL = getEnvString("BASE_URL", "http://localhost:8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

// DirectoryConfigured はテナントディレクトリ（DB）の接続先が設定されているかを返す。
func (c *Config) DirectoryConfigured() bool {
	return c.DatabaseURL != ""
}

// DirectoryDSN はDATABASE_PASSWORDをユーザー情報に注入した接続URLを返す。
// パスワードが未設定、またはURLにユーザー名がない場合はDATABASE_URLをそのまま返す。
func (c *Config) DirectoryDSN() string {
	if c.DatabasePassword == "" || c.DatabaseURL == "" {
		return c.DatabaseURL
	}
	u, err := url.Parse(c.DatabaseURL)
	if err != nil || u.User == nil {
		return c.DatabaseURL
	}
	u.User = url.UserPassword(u.User.Username(), c.DatabasePassword)
	return u.String()
}

// MissingExternal は未設定の外部設定名を返す。起動時の警告ログ用。
func (c *Config) MissingExternal() []string {
	var missing []string
	if c.WebhookURL == "" {
		missing = append(missing, "WEBHOOK_URL")
	}
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.SessionSecret == "" {
		missing = append(missing, "SESSION_SECRET")
	}
	return missing
}

// RateLimitGeneralPerSecond はRATE_LIMIT_GENERAL（req/min）をreq/secに変換する。
func (c *Config) RateLimitGeneralPerSecond() float64 {
	return float64(c.RateLimitGeneral) / 60.0
}

// RateLimitIntakePerSecond はRATE_LIMIT_INTAKE（req/min）をreq/secに変換する。
func (c *Config) RateLimitIntakePerSecond() float64 {
	return float64(c.RateLimitIntake) / 60.0
}

func validateWebhookURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https: %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("host is empty")
	}
	return nil
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
