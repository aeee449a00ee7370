package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string `mapstructure:"PORT"`
	Env         string `mapstructure:"ENV"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`

	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	AdminJWTSecret string `mapstructure:"ADMIN_JWT_SECRET"`

	RateLimitRPS   float64 `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `mapstructure:"RATE_LIMIT_BURST"`

	// Billing: flat consultation fee in minor currency units and the
	// platform's cut as a fraction of the gross.
	ConsultationFee int64   `mapstructure:"CONSULTATION_FEE"`
	PlatformFeePct  float64 `mapstructure:"PLATFORM_FEE_PCT"`

	// Anomaly heuristics. Defaults mirror the documented policy; deployments
	// may tune them.
	BusinessHourStart    int `mapstructure:"AUDIT_BUSINESS_HOUR_START"`
	BusinessHourEnd      int `mapstructure:"AUDIT_BUSINESS_HOUR_END"`
	MinAccessSeconds     int `mapstructure:"AUDIT_MIN_ACCESS_SECONDS"`
	OffHoursAlertCount   int `mapstructure:"AUDIT_OFF_HOURS_ALERT_COUNT"`
	HourlyAlertCount     int `mapstructure:"AUDIT_HOURLY_ALERT_COUNT"`

	// Webhook push for core events. Empty URL list disables push; the
	// persisted event log remains available for pull.
	WebhookURLs   []string `mapstructure:"WEBHOOK_URLS"`
	WebhookSecret string   `mapstructure:"WEBHOOK_SECRET"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("CONSULTATION_FEE", 500)
	v.SetDefault("PLATFORM_FEE_PCT", 0.20)
	v.SetDefault("AUDIT_BUSINESS_HOUR_START", 6)
	v.SetDefault("AUDIT_BUSINESS_HOUR_END", 22)
	v.SetDefault("AUDIT_MIN_ACCESS_SECONDS", 30)
	v.SetDefault("AUDIT_OFF_HOURS_ALERT_COUNT", 5)
	v.SetDefault("AUDIT_HOURLY_ALERT_COUNT", 10)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("ADMIN_JWT_SECRET")
	v.BindEnv("RATE_LIMIT_RPS")
	v.BindEnv("RATE_LIMIT_BURST")
	v.BindEnv("CONSULTATION_FEE")
	v.BindEnv("PLATFORM_FEE_PCT")
	v.BindEnv("AUDIT_BUSINESS_HOUR_START")
	v.BindEnv("AUDIT_BUSINESS_HOUR_END")
	v.BindEnv("AUDIT_MIN_ACCESS_SECONDS")
	v.BindEnv("AUDIT_OFF_HOURS_ALERT_COUNT")
	v.BindEnv("AUDIT_HOURLY_ALERT_COUNT")
	v.BindEnv("WEBHOOK_URLS")
	v.BindEnv("WEBHOOK_SECRET")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		if origins := v.GetString("CORS_ORIGINS"); origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}
	if cfg.WebhookURLs == nil {
		if urls := v.GetString("WEBHOOK_URLS"); urls != "" {
			cfg.WebhookURLs = strings.Split(urls, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	if c.IsProduction() && c.AdminJWTSecret == "" {
		return fmt.Errorf("ADMIN_JWT_SECRET is required in production")
	}
	if c.ConsultationFee <= 0 {
		return fmt.Errorf("CONSULTATION_FEE must be positive, got %d", c.ConsultationFee)
	}
	if c.PlatformFeePct < 0 || c.PlatformFeePct >= 1 {
		return fmt.Errorf("PLATFORM_FEE_PCT must be in [0,1), got %v", c.PlatformFeePct)
	}
	if c.BusinessHourStart < 0 || c.BusinessHourEnd > 24 || c.BusinessHourStart >= c.BusinessHourEnd {
		return fmt.Errorf("invalid business hours window [%d,%d)", c.BusinessHourStart, c.BusinessHourEnd)
	}
	if len(c.WebhookURLs) > 0 && c.WebhookSecret == "" {
		return fmt.Errorf("WEBHOOK_SECRET is required when WEBHOOK_URLS is set")
	}
	return nil
}
