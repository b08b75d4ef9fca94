package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/xxxsen/common/logger"
)

const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

type Config struct {
	Port            int              `json:"port"`
	AppEnv          string           `json:"app_env"`
	OTPEnv          string           `json:"otp_env"`
	AuthSecret      string           `json:"auth_secret"`
	SessionTTLHours int              `json:"session_ttl_hours"`
	DefaultPassword string           `json:"default_password"`
	RateLimitSecs   int              `json:"rate_limit_seconds"`
	CleanupCron     string           `json:"otp_cleanup_cron"`
	AllowedOrigins  []string         `json:"allowed_origins"`
	Database        DatabaseConfig   `json:"database"`
	SMS             SMSConfig        `json:"sms"`
	Properties      Properties       `json:"properties"`
	LogConfig       logger.LogConfig `json:"log_config"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	SSLMode  string `json:"sslmode"`
	MaxConns int    `json:"max_conns"`
}

type SMSConfig struct {
	GatewayURL string `json:"gateway_url"`
	APIKey     string `json:"api_key"`
	SenderID   string `json:"sender_id"`
	TimeoutSec int    `json:"timeout_seconds"`
}

type Properties struct {
	EnableDefaultPassword bool `json:"enable_default_password"`
}

// envOverrides lists the deployment variables that win over the JSON file.
type envOverrides struct {
	Port            int    `env:"PORT"`
	AppEnv          string `env:"APP_ENV"`
	OTPEnv          string `env:"OTP_ENV"`
	AuthSecret      string `env:"AUTH_SECRET"`
	SessionTTLHours int    `env:"SESSION_TTL_HOURS"`
	DefaultPassword string `env:"DEFAULT_PASSWORD"`
	DatabaseURL     string `env:"DATABASE_URL"`
	SMSGatewayURL   string `env:"SMS_GATEWAY_URL"`
	SMSAPIKey       string `env:"SMS_API_KEY"`
}

// Load reads the optional JSON file at path, then .env and the process
// environment, then applies defaults and checks required fields.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()
		if err := json.NewDecoder(file).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	}
	_ = godotenv.Load()
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	if err := finalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	var ov envOverrides
	if err := env.Parse(&ov); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	if ov.Port != 0 {
		cfg.Port = ov.Port
	}
	if ov.AppEnv != "" {
		cfg.AppEnv = ov.AppEnv
	}
	if ov.OTPEnv != "" {
		cfg.OTPEnv = ov.OTPEnv
	}
	if ov.AuthSecret != "" {
		cfg.AuthSecret = ov.AuthSecret
	}
	if ov.SessionTTLHours != 0 {
		cfg.SessionTTLHours = ov.SessionTTLHours
	}
	if ov.DefaultPassword != "" {
		cfg.DefaultPassword = ov.DefaultPassword
	}
	if ov.DatabaseURL != "" {
		cfg.Database.DSN = ov.DatabaseURL
	}
	if ov.SMSGatewayURL != "" {
		cfg.SMS.GatewayURL = ov.SMSGatewayURL
	}
	if ov.SMSAPIKey != "" {
		cfg.SMS.APIKey = ov.SMSAPIKey
	}
	return nil
}

func finalize(cfg *Config) error {
	var missing []string
	if cfg.Database.DSN == "" && cfg.Database.Host == "" {
		missing = append(missing, "database.dsn (DATABASE_URL)")
	}
	if cfg.AuthSecret == "" {
		missing = append(missing, "auth_secret (AUTH_SECRET)")
	}
	if cfg.Properties.EnableDefaultPassword && cfg.DefaultPassword == "" {
		missing = append(missing, "default_password (DEFAULT_PASSWORD)")
	}
	if cfg.DispatchSMS() && cfg.SMS.GatewayURL == "" {
		missing = append(missing, "sms.gateway_url (SMS_GATEWAY_URL)")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing config: %s", strings.Join(missing, ", "))
	}
	if cfg.Port == 0 {
		cfg.Port = 3000
	}
	if cfg.AppEnv == "" {
		cfg.AppEnv = EnvProduction
	}
	switch cfg.AppEnv {
	case EnvDevelopment, EnvStaging, EnvProduction:
	default:
		return fmt.Errorf("app_env must be one of development, staging, production")
	}
	if cfg.SessionTTLHours <= 0 {
		cfg.SessionTTLHours = 1
	}
	if cfg.SessionTTLHours > 24 {
		cfg.SessionTTLHours = 24
	}
	// negative disables throttling
	switch {
	case cfg.RateLimitSecs == 0:
		cfg.RateLimitSecs = 30
	case cfg.RateLimitSecs < 0:
		cfg.RateLimitSecs = 0
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.SMS.TimeoutSec == 0 {
		cfg.SMS.TimeoutSec = 10
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	return nil
}

// DevelopmentOTP reports whether OTPs should use the fixed development code.
func (c *Config) DevelopmentOTP() bool {
	return c.OTPEnv == EnvDevelopment
}

// DispatchSMS is false in development, where codes are only logged.
func (c *Config) DispatchSMS() bool {
	return c.AppEnv != EnvDevelopment
}
