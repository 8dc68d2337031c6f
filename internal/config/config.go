// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持する。
// 起動時に1回読み込み、各コンポーネントに注入する。
type Config struct {
	Env string `env:"ENV" envDefault:"development" validate:"oneof=development staging production"`

	// Server
	ServerPort  string `env:"SERVER_PORT" envDefault:"8080" validate:"required"`
	MetricsPort string `env:"METRICS_PORT" envDefault:"9090"`
	BaseURL     string `env:"BASE_URL,required,notEmpty" validate:"required,url"`
	FrontendURL string `env:"FRONTEND_URL" envDefault:"http://localhost:3000" validate:"required,url"`

	// Database
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty" validate:"required"`

	// OAuth
	GoogleClientID     string        `env:"GOOGLE_CLIENT_ID,required,notEmpty" validate:"required"`
	GoogleClientSecret string        `env:"GOOGLE_CLIENT_SECRET,required,notEmpty" validate:"required"`
	XClientID          string        `env:"X_CLIENT_ID,required,notEmpty" validate:"required"`
	XClientSecret      string        `env:"X_CLIENT_SECRET,required,notEmpty" validate:"required"`
	OAuthCallbackURL   string        `env:"OAUTH_CALLBACK_URL" validate:"omitempty,url"`
	ProviderTimeout    time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"10s" validate:"gt=0"`

	// Session
	SessionSecret string `env:"SESSION_SECRET,required,notEmpty" validate:"required,min=32"`
	// SessionMaxAge はセッション有効期間（秒）。0の場合はIdPのトークン有効期間に従う。
	SessionMaxAge int `env:"SESSION_MAX_AGE" envDefault:"604800" validate:"min=0"`

	// Invite
	InviteTTL           time.Duration `env:"INVITE_TTL" envDefault:"168h" validate:"gt=0"`
	InviteGenericErrors bool          `env:"INVITE_GENERIC_ERRORS" envDefault:"false"`

	// AI text generation
	AnthropicAPIKey     string        `env:"ANTHROPIC_API_KEY" validate:"required_if=Env production"`
	AnthropicModel      string        `env:"ANTHROPIC_MODEL" envDefault:"claude-sonnet-4-5-20250929" validate:"required"`
	AnthropicBaseURL    string        `env:"ANTHROPIC_BASE_URL" envDefault:"https://api.anthropic.com" validate:"required,url"`
	AIRequestsPerMinute int           `env:"AI_REQUESTS_PER_MINUTE" envDefault:"30" validate:"min=1"`
	TeaserTimeout       time.Duration `env:"TEASER_TIMEOUT" envDefault:"20s" validate:"gt=0"`

	// Logging
	LogFormat string `env:"LOG_FORMAT" envDefault:"json" validate:"oneof=json text"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`

	// Worker
	CleanupSchedule  string        `env:"CLEANUP_SCHEDULE" envDefault:"@daily" validate:"required"`
	CleanupRetention time.Duration `env:"CLEANUP_RETENTION" envDefault:"720h" validate:"min=0"`

	// Cookie
	CookieDomain string `env:"COOKIE_DOMAIN"`
	CookieSecure bool
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envがあれば先に読み込むが、既存の環境変数は上書きしない。
// 必須環境変数が未設定、または値が不正な場合はエラーを返す。
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse env: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.FrontendURL = strings.TrimRight(cfg.FrontendURL, "/")
	if cfg.OAuthCallbackURL == "" {
		cfg.OAuthCallbackURL = cfg.BaseURL + "/auth/callback"
	}
	cfg.CookieSecure = cfg.IsProduction() || strings.HasPrefix(cfg.BaseURL, "https://")

	return cfg, nil
}

// IsProduction は本番環境かどうかを返す。
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// SlogLevel はLOG_LEVELをslog.Levelに変換する。
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
