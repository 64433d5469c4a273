package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Env           string
	HTTPAddr      string
	DatabaseURL   string
	RedisURL      string
	JWTSecret     string
	AdminLogin    string
	AdminPassHash string
	WebhookSecret string
	StoreCurrency string
	AutoMigrate   bool
	Reports       ReportsConfig
	Webhooks      WebhookConfig
	Reconcile     ReconcileConfig
	S3            S3Config
	Logging       LoggingConfig
}

type ReportsConfig struct {
	CacheTTL time.Duration
	PageSize int
}

type WebhookConfig struct {
	RatePerSecond float64
	Burst         int
}

type ReconcileConfig struct {
	Interval time.Duration
	Lookback time.Duration
}

type S3Config struct {
	Endpoint       string
	PublicEndpoint string
	Bucket         string
	AccessKey      string
	SecretKey      string
	Region         string
	UseSSL         bool
}

type LoggingConfig struct {
	Level  string
	Format string
	File   string
}

func Load() (*Config, error) {
	cfg := &Config{
		Env:           getenv("APP_ENV", "dev"),
		HTTPAddr:      getenv("HTTP_ADDR", ":8080"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisURL:      os.Getenv("REDIS_URL"),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		AdminLogin:    strings.TrimSpace(os.Getenv("ADMIN_LOGIN")),
		AdminPassHash: strings.TrimSpace(os.Getenv("ADMIN_PASSWORD_HASH")),
		WebhookSecret: os.Getenv("WEBHOOK_SECRET"),
		StoreCurrency: strings.ToUpper(getenv("STORE_CURRENCY", "USD")),
		AutoMigrate:   getenvBool("AUTO_MIGRATE", true),
		Reports: ReportsConfig{
			CacheTTL: getenvDuration("REPORTS_CACHE_TTL", 600*time.Second),
			PageSize: getenvInt("REPORTS_PAGE_SIZE", 50),
		},
		Webhooks: WebhookConfig{
			RatePerSecond: getenvFloat("WEBHOOK_RATE_RPS", 20),
			Burst:         getenvInt("WEBHOOK_RATE_BURST", 40),
		},
		Reconcile: ReconcileConfig{
			Interval: getenvDuration("RECONCILE_INTERVAL", 5*time.Minute),
			Lookback: getenvDuration("RECONCILE_LOOKBACK", 72*time.Hour),
		},
		S3: S3Config{
			Endpoint:       os.Getenv("S3_ENDPOINT"),
			PublicEndpoint: os.Getenv("S3_PUBLIC_ENDPOINT"),
			Bucket:         os.Getenv("S3_BUCKET"),
			AccessKey:      os.Getenv("S3_ACCESS_KEY"),
			SecretKey:      os.Getenv("S3_SECRET_KEY"),
			Region:         getenv("S3_REGION", "us-east-1"),
			UseSSL:         getenvBool("S3_USE_SSL", true),
		},
		Logging: LoggingConfig{
			Level:  getenv("LOG_LEVEL", "info"),
			Format: getenv("LOG_FORMAT", "text"),
			File:   os.Getenv("LOG_FILE"),
		},
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.Reports.PageSize <= 0 {
		return nil, fmt.Errorf("REPORTS_PAGE_SIZE must be positive")
	}

	return cfg, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return parsed
}

func getenvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return parsed
}

// getenvDuration accepts Go duration strings ("10m") or plain seconds ("600").
func getenvDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return parsed
}
