package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string   `mapstructure:"PORT"`
	Env         string   `mapstructure:"ENV"`
	DatabaseURL string   `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32    `mapstructure:"DB_MIN_CONNS"`
	JWTSecret   string   `mapstructure:"JWT_SECRET"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	RateLimitRPS   float64 `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `mapstructure:"RATE_LIMIT_BURST"`
	BodyLimit      string  `mapstructure:"BODY_LIMIT"`
	BodyLimitBatch string  `mapstructure:"BODY_LIMIT_BATCH"`
	RequestTimeout int     `mapstructure:"REQUEST_TIMEOUT_SECONDS"`

	// Scrubbing knobs. Filing limits are payer-specific in reality; these set
	// the practice-wide default.
	ScrubTimelyFilingDays  int `mapstructure:"SCRUB_TIMELY_FILING_DAYS"`
	ScrubWarningWindowDays int `mapstructure:"SCRUB_WARNING_WINDOW_DAYS"`
	ScrubBatchWorkers      int `mapstructure:"SCRUB_BATCH_WORKERS"`
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
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("BODY_LIMIT_BATCH", "10M")
	v.SetDefault("REQUEST_TIMEOUT_SECONDS", 30)
	v.SetDefault("SCRUB_TIMELY_FILING_DAYS", 365)
	v.SetDefault("SCRUB_WARNING_WINDOW_DAYS", 30)
	v.SetDefault("SCRUB_BATCH_WORKERS", 4)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("JWT_SECRET")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("RATE_LIMIT_RPS")
	v.BindEnv("RATE_LIMIT_BURST")
	v.BindEnv("BODY_LIMIT")
	v.BindEnv("BODY_LIMIT_BATCH")
	v.BindEnv("REQUEST_TIMEOUT_SECONDS")
	v.BindEnv("SCRUB_TIMELY_FILING_DAYS")
	v.BindEnv("SCRUB_WARNING_WINDOW_DAYS")
	v.BindEnv("SCRUB_BATCH_WORKERS")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. Outside development
// a JWT secret is mandatory; the scrub windows must describe a real interval.
func (c *Config) Validate() error {
	if !c.IsDev() && len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 bytes when ENV=%q", c.Env)
	}
	if c.ScrubTimelyFilingDays <= 0 {
		return fmt.Errorf("SCRUB_TIMELY_FILING_DAYS must be positive, got %d", c.ScrubTimelyFilingDays)
	}
	if c.ScrubWarningWindowDays < 0 || c.ScrubWarningWindowDays >= c.ScrubTimelyFilingDays {
		return fmt.Errorf("SCRUB_WARNING_WINDOW_DAYS must be shorter than SCRUB_TIMELY_FILING_DAYS")
	}
	if c.ScrubBatchWorkers <= 0 {
		return fmt.Errorf("SCRUB_BATCH_WORKERS must be positive, got %d", c.ScrubBatchWorkers)
	}
	return nil
}
