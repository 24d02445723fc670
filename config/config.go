/*
Package config loads runtime configuration from environment variables or
an app.env file.

PURPOSE:
  Central place for everything the server needs at startup: HTTP bind
  address, SQLite path, evidence directory, JWT secret, retry tuning and
  an optional tier-schedule override file.
*/
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Host string
	Port int
}

type DBConfig struct {
	Path string
}

type AuthConfig struct {
	AccessSecret string
}

type EvidenceConfig struct {
	Dir string
}

type RetryConfig struct {
	MaxAttempts int
	BackoffStep time.Duration
}

type BillingConfig struct {
	// SchedulePath optionally points at a JSON tier-schedule file.
	// Empty means the built-in default brackets.
	SchedulePath string
}

type Config struct {
	Environment string
	HTTP        HTTPConfig
	DB          DBConfig
	Auth        AuthConfig
	Evidence    EvidenceConfig
	Retry       RetryConfig
	Billing     BillingConfig
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("app")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("./deploy")
	v.AutomaticEnv()

	_ = v.ReadInConfig()

	cfg := &Config{
		Environment: v.GetString("APP_ENV"),
		HTTP: HTTPConfig{
			Host: v.GetString("HTTP_HOST"),
			Port: v.GetInt("HTTP_PORT"),
		},
		DB: DBConfig{
			Path: v.GetString("DB_PATH"),
		},
		Auth: AuthConfig{
			AccessSecret: v.GetString("JWT_ACCESS_SECRET"),
		},
		Evidence: EvidenceConfig{
			Dir: v.GetString("EVIDENCE_DIR"),
		},
		Retry: RetryConfig{
			MaxAttempts: v.GetInt("INVOICE_RETRY_MAX_ATTEMPTS"),
			BackoffStep: v.GetDuration("INVOICE_RETRY_BACKOFF_STEP"),
		},
		Billing: BillingConfig{
			SchedulePath: v.GetString("TIER_SCHEDULE_PATH"),
		},
	}

	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.HTTP.Host == "" {
		cfg.HTTP.Host = "0.0.0.0"
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 7080
	}
	if cfg.DB.Path == "" {
		cfg.DB.Path = "./data/billing.db"
	}
	if cfg.Evidence.Dir == "" {
		cfg.Evidence.Dir = "./data/evidence"
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = 3
	}
	if cfg.Retry.BackoffStep == 0 {
		cfg.Retry.BackoffStep = 50 * time.Millisecond
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	if cfg.Auth.AccessSecret == "" {
		return fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if cfg.Retry.MaxAttempts < 1 {
		return fmt.Errorf("INVOICE_RETRY_MAX_ATTEMPTS must be at least 1")
	}
	return nil
}
