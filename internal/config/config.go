package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string `mapstructure:"PORT"`
	Env         string `mapstructure:"ENV"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`
	RedisURL    string `mapstructure:"REDIS_URL"`

	DoctorAPIURL        string        `mapstructure:"DOCTOR_API_URL"`
	DoctorAPITimeout    time.Duration `mapstructure:"DOCTOR_API_TIMEOUT"`
	DoctorAPIMaxRetries int           `mapstructure:"DOCTOR_API_MAX_RETRIES"`
	DoctorCacheTTL      time.Duration `mapstructure:"DOCTOR_CACHE_TTL"`
	PhoneRegion         string        `mapstructure:"PHONE_REGION"`

	KafkaBrokers []string `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic   string   `mapstructure:"KAFKA_TOPIC"`
	SentryDSN    string   `mapstructure:"SENTRY_DSN"`

	OTelEndpoint   string  `mapstructure:"OTEL_ENDPOINT"`
	OTelInsecure   bool    `mapstructure:"OTEL_INSECURE"`
	OTelSampleRate float64 `mapstructure:"OTEL_SAMPLE_RATE"`

	LogLevel      string `mapstructure:"LOG_LEVEL"`
	LogFile       string `mapstructure:"LOG_FILE"`
	LogMaxSizeMB  int    `mapstructure:"LOG_MAX_SIZE_MB"`
	LogMaxBackups int    `mapstructure:"LOG_MAX_BACKUPS"`
	LogMaxAgeDays int    `mapstructure:"LOG_MAX_AGE_DAYS"`

	CORSOrigins    []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `mapstructure:"RATE_LIMIT_BURST"`
	BodyLimit      string        `mapstructure:"BODY_LIMIT"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
}

var keys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "REDIS_URL",
	"DOCTOR_API_URL", "DOCTOR_API_TIMEOUT", "DOCTOR_API_MAX_RETRIES", "DOCTOR_CACHE_TTL", "PHONE_REGION",
	"KAFKA_BROKERS", "KAFKA_TOPIC", "SENTRY_DSN",
	"OTEL_ENDPOINT", "OTEL_INSECURE", "OTEL_SAMPLE_RATE",
	"LOG_LEVEL", "LOG_FILE", "LOG_MAX_SIZE_MB", "LOG_MAX_BACKUPS", "LOG_MAX_AGE_DAYS",
	"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "BODY_LIMIT", "REQUEST_TIMEOUT",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("DOCTOR_API_URL", "https://cmd-doctor-api.azurewebsites.net")
	v.SetDefault("DOCTOR_API_TIMEOUT", "5s")
	v.SetDefault("DOCTOR_API_MAX_RETRIES", 2)
	v.SetDefault("DOCTOR_CACHE_TTL", "10m")
	v.SetDefault("PHONE_REGION", "US")
	v.SetDefault("KAFKA_TOPIC", "patient-lifecycle")
	v.SetDefault("OTEL_SAMPLE_RATE", 1.0)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_MAX_SIZE_MB", 100)
	v.SetDefault("LOG_MAX_BACKUPS", 5)
	v.SetDefault("LOG_MAX_AGE_DAYS", 30)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("BODY_LIMIT", "6M")
	v.SetDefault("REQUEST_TIMEOUT", "30s")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(v.GetString("CORS_ORIGINS"))
	cfg.KafkaBrokers = splitList(v.GetString("KAFKA_BROKERS"))

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func splitList(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) must not exceed DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.DoctorAPIURL == "" {
		return fmt.Errorf("DOCTOR_API_URL is required")
	}
	if c.DoctorAPIMaxRetries < 0 {
		return fmt.Errorf("DOCTOR_API_MAX_RETRIES must be >= 0, got %d", c.DoctorAPIMaxRetries)
	}
	if len(c.PhoneRegion) != 2 {
		return fmt.Errorf("PHONE_REGION must be a two-letter region code, got %q", c.PhoneRegion)
	}
	if c.OTelSampleRate < 0 || c.OTelSampleRate > 1 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0 and 1, got %v", c.OTelSampleRate)
	}
	if c.IsProduction() && c.SentryDSN == "" {
		return fmt.Errorf("SENTRY_DSN is required in production")
	}
	return nil
}
