// Package config loads server configuration from the environment, with an
// optional YAML overlay for alert thresholds.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"
)

// Config holds every setting the server reads. Secrets are presence-checked
// by the handlers that need them, not here.
type Config struct {
	Server struct {
		Addr            string        `env:"HTTP_ADDR,default=:8080"`
		ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT,default=10s"`
	}

	Logging struct {
		Level  string `env:"LOG_LEVEL,default=info"`
		Format string `env:"LOG_FORMAT,default=json"`
	}

	OpenAI struct {
		APIKey  string `env:"OPENAI_API_KEY"`
		BaseURL string `env:"OPENAI_BASE_URL,default=https://api.openai.com"`
		Model   string `env:"OPENAI_MODEL,default=gpt-4.1-mini"`
	}

	Resend struct {
		APIKey string `env:"RESEND_API_KEY"`
		From   string `env:"ALERT_FROM_EMAIL,default=TurnTable AI <alerts@example.com>"`
	}

	// AppBaseURL is the public URL of the app, used in email CTAs and for
	// the cron trigger to reach the poll endpoint.
	AppBaseURL string `env:"APP_BASE_URL,default=http://localhost:8080"`

	Google struct {
		ClientID     string `env:"GOOGLE_INTEGRATIONS_CLIENT_ID"`
		ClientSecret string `env:"GOOGLE_INTEGRATIONS_CLIENT_SECRET"`
		RedirectURI  string `env:"GOOGLE_INTEGRATIONS_REDIRECT"`
	}

	Stripe struct {
		SecretKey     string `env:"STRIPE_SECRET_KEY"`
		WebhookSecret string `env:"STRIPE_WEBHOOK_SECRET"`
	}

	Supabase struct {
		URL        string `env:"SUPABASE_URL"`
		AnonKey    string `env:"SUPABASE_ANON_KEY"`
		ServiceKey string `env:"SUPABASE_SERVICE_KEY"`
		JWTSecret  string `env:"SUPABASE_JWT_SECRET"`
	}

	CronSecret   string `env:"CRON_SECRET"`
	CronSchedule string `env:"CRON_POLL_SCHEDULE"`
	RateLimit    RateLimit
	RedisAddr    string `env:"REDIS_ADDR"`
	PostgresDSN  string `env:"POSTGRES_DSN"`
}

// RateLimit configures the fixed-window API limiter.
type RateLimit struct {
	Window time.Duration `env:"RATE_LIMIT_WINDOW,default=10s"`
	Limit  int           `env:"RATE_LIMIT_MAX,default=8"`
}

// Load decodes configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode env: %w", err)
	}
	return &cfg, nil
}

// AlertThresholds holds KPI limits that trigger best-effort alert emails
// after a sales analysis run. Zero values disable the corresponding check.
type AlertThresholds struct {
	MinGrossMarginPct float64 `yaml:"min_gross_margin_pct"`
	MaxLaborPct       float64 `yaml:"max_labor_pct"`
	MaxRefundsPct     float64 `yaml:"max_refunds_pct"`
}

// LoadAlertThresholds reads thresholds from a YAML file.
func LoadAlertThresholds(path string) (AlertThresholds, error) {
	var t AlertThresholds
	data, err := os.ReadFile(path)
	if err != nil {
		return t, fmt.Errorf("read alert thresholds: %w", err)
	}
	if err := yaml.Unmarshal(data, &t); err != nil {
		return t, fmt.Errorf("parse alert thresholds: %w", err)
	}
	return t, nil
}

// LoadAlertThresholdsOrDefault reads thresholds or returns defaults when the
// file is absent.
func LoadAlertThresholdsOrDefault(path string) AlertThresholds {
	t, err := LoadAlertThresholds(path)
	if err != nil {
		return AlertThresholds{MinGrossMarginPct: 50, MaxLaborPct: 35}
	}
	return t
}
