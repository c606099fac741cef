package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Market.Authority = "admin"
	cfg.Auth.JWTSecret = "0123456789abcdef"
	return cfg
}

func TestDefaults_NeedOnlyAuthorityAndSecret(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
	if cfg.Market.ClaimWindow.Duration != 720*time.Hour {
		t.Errorf("expected 720h claim window, got %s", cfg.Market.ClaimWindow)
	}
}

func TestValidate_CollectsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.LogLevel = "loud"
	cfg.Market.FeeBps = 10_000
	cfg.Ledger.Backend = "postgres"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{"log_level", "authority", "fee_bps", "jwt_secret", "database.url"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected error mentioning %q, got:\n%v", want, err)
		}
	}
}

func TestValidate_LockTTL(t *testing.T) {
	tests := []struct {
		name    string
		ttl     time.Duration
		locks   bool
		wantErr bool
	}{
		{"default lease", 10 * time.Second, true, false},
		{"sub-second lease", 200 * time.Millisecond, true, true},
		{"zero lease", 0, true, true},
		{"ignored without distributed locks", 0, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Redis.URL = "redis://localhost:6379/0"
			cfg.Redis.DistributedLocks = tt.locks
			cfg.Redis.LockTTL = duration{tt.ttl}
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("expected error=%v, got %v", tt.wantErr, err)
			}
			if err != nil && !strings.Contains(err.Error(), "lock_ttl") {
				t.Errorf("expected lock_ttl error, got %v", err)
			}
		})
	}
}

func TestLoad_TOMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "amm.toml")
	body := `
log_level = "debug"

[market]
authority = "operator"
fee_bps = 150
claim_window = "48h"

[limits]
max_per_market = 5000000
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("PORT", "9090")
	t.Setenv("AMM_MARKET_FEE_BPS", "300")
	t.Setenv("AMM_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != "debug" || cfg.Market.Authority != "operator" {
		t.Errorf("TOML values not applied: %+v", cfg)
	}
	if cfg.Market.ClaimWindow.Duration != 48*time.Hour {
		t.Errorf("expected 48h claim window, got %s", cfg.Market.ClaimWindow)
	}
	if cfg.Market.FeeBps != 300 {
		t.Errorf("env should override TOML fee_bps, got %d", cfg.Market.FeeBps)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("PORT should set server port, got %d", cfg.Server.Port)
	}
	if cfg.Limits.MaxPerMarket != 5_000_000 {
		t.Errorf("expected max_per_market=5000000, got %d", cfg.Limits.MaxPerMarket)
	}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[1] != "https://b.example" {
		t.Errorf("unexpected CORS origins: %v", cfg.Server.CORSOrigins)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestLoad_NoFile(t *testing.T) {
	t.Setenv("AMM_MARKET_AUTHORITY", "env-admin")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Market.Authority != "env-admin" {
		t.Errorf("expected env authority, got %q", cfg.Market.Authority)
	}
}
