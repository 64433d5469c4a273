package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/boxoffice")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("STORE_CURRENCY", "eur")
	t.Setenv("REPORTS_CACHE_TTL", "120")
	t.Setenv("RECONCILE_INTERVAL", "90s")
	t.Setenv("WEBHOOK_RATE_RPS", "bogus")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.StoreCurrency != "EUR" {
		t.Fatalf("expected upper-cased currency, got %q", cfg.StoreCurrency)
	}
	if cfg.Reports.CacheTTL != 2*time.Minute {
		t.Fatalf("expected plain seconds ttl, got %v", cfg.Reports.CacheTTL)
	}
	if cfg.Reconcile.Interval != 90*time.Second {
		t.Fatalf("unexpected interval %v", cfg.Reconcile.Interval)
	}
	if cfg.Webhooks.RatePerSecond != 20 {
		t.Fatalf("expected default rate on bad input, got %v", cfg.Webhooks.RatePerSecond)
	}
	if cfg.Reports.PageSize != 50 || !cfg.AutoMigrate {
		t.Fatalf("unexpected defaults: %+v", cfg.Reports)
	}
}

func TestLoadRequiresDatabaseAndSecret(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "secret")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error without DATABASE_URL")
	}

	t.Setenv("DATABASE_URL", "postgres://localhost/boxoffice")
	t.Setenv("JWT_SECRET", "")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error without JWT_SECRET")
	}

	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("REPORTS_PAGE_SIZE", "-3")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for negative page size")
	}
}
