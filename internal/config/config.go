// Package config loads the market engine configuration: built-in defaults,
// an optional TOML file, a .env file and AMM_* environment overrides, in
// that order.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration.
type Config struct {
	LogLevel  string          `toml:"log_level"`
	Server    ServerConfig    `toml:"server"`
	Market    MarketConfig    `toml:"market"`
	Limits    LimitsConfig    `toml:"limits"`
	Auth      AuthConfig      `toml:"auth"`
	Database  DatabaseConfig  `toml:"database"`
	Redis     RedisConfig     `toml:"redis"`
	Ledger    LedgerConfig    `toml:"ledger"`
	Scheduler SchedulerConfig `toml:"scheduler"`
	S3        S3Config        `toml:"s3"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port           int      `toml:"port"`
	CORSOrigins    []string `toml:"cors_origins"`
	RequestTimeout duration `toml:"request_timeout"`
}

// MarketConfig seeds the persisted market configuration on first boot.
type MarketConfig struct {
	Authority   string   `toml:"authority"`
	FeeBps      int      `toml:"fee_bps"`
	FeeAccount  string   `toml:"fee_account"`
	MinSeed     uint64   `toml:"min_seed"`
	ClaimWindow duration `toml:"claim_window"`
}

// LimitsConfig holds per-user exposure caps in base units. Zero disables.
type LimitsConfig struct {
	MaxPerMarket   uint64 `toml:"max_per_market"`
	MaxPerCategory uint64 `toml:"max_per_category"`
}

// AuthConfig holds bearer token parameters.
type AuthConfig struct {
	JWTSecret string   `toml:"jwt_secret"`
	TokenTTL  duration `toml:"token_ttl"`
}

// DatabaseConfig holds PostgreSQL connection parameters. An empty URL selects
// the in-memory store.
type DatabaseConfig struct {
	URL           string `toml:"url"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis parameters. An empty URL disables both the cache
// and distributed locks.
type RedisConfig struct {
	URL              string   `toml:"url"`
	CacheTTL         duration `toml:"cache_ttl"`
	DistributedLocks bool     `toml:"distributed_locks"`
	LockTTL          duration `toml:"lock_ttl"`
}

// LedgerConfig selects the custody ledger.
type LedgerConfig struct {
	Backend   string `toml:"backend"` // memory | postgres
	AllowMint bool   `toml:"allow_mint"`
}

// SchedulerConfig drives the deadline watcher.
type SchedulerConfig struct {
	Interval duration `toml:"interval"`
}

// S3Config configures the settlement archive. An empty bucket disables it.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	Prefix         string `toml:"prefix"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "720h").
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with the values used when nothing is
// configured.
func Defaults() Config {
	return Config{
		LogLevel: "info",
		Server: ServerConfig{
			Port:           8080,
			CORSOrigins:    []string{"*"},
			RequestTimeout: duration{30 * time.Second},
		},
		Market: MarketConfig{
			FeeBps:      200,
			FeeAccount:  "fees",
			MinSeed:     10_000_000,
			ClaimWindow: duration{720 * time.Hour},
		},
		Auth: AuthConfig{
			TokenTTL: duration{24 * time.Hour},
		},
		Database: DatabaseConfig{
			RunMigrations: true,
		},
		Redis: RedisConfig{
			CacheTTL: duration{30 * time.Second},
			LockTTL:  duration{10 * time.Second},
		},
		Ledger: LedgerConfig{
			Backend: "memory",
		},
		Scheduler: SchedulerConfig{
			Interval: duration{time.Minute},
		},
		S3: S3Config{
			Region: "us-east-1",
			Prefix: "settlements",
		},
	}
}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		add("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		add("server: port must be 1-65535, got %d", c.Server.Port)
	}

	if c.Market.Authority == "" {
		add("market: authority must be set")
	}
	if c.Market.FeeBps < 0 || c.Market.FeeBps >= 10_000 {
		add("market: fee_bps must be in [0, 10000), got %d", c.Market.FeeBps)
	}
	if c.Market.FeeAccount == "" {
		add("market: fee_account must be set")
	}
	if c.Market.MinSeed == 0 {
		add("market: min_seed must be positive")
	}
	if c.Market.ClaimWindow.Duration < 0 {
		add("market: claim_window must not be negative")
	}

	if len(c.Auth.JWTSecret) < 16 {
		add("auth: jwt_secret must be at least 16 bytes")
	}

	switch c.Ledger.Backend {
	case "memory":
	case "postgres":
		if c.Database.URL == "" {
			add("ledger: postgres backend requires database.url")
		}
	default:
		add("ledger: unknown backend %q (valid: memory, postgres)", c.Ledger.Backend)
	}

	if c.Redis.DistributedLocks && c.Redis.URL == "" {
		add("redis: distributed_locks requires redis.url")
	}
	if c.Redis.DistributedLocks && c.Redis.LockTTL.Duration < time.Second {
		add("redis: lock_ttl must be at least 1s, got %s", c.Redis.LockTTL)
	}
	if c.Scheduler.Interval.Duration <= 0 {
		add("scheduler: interval must be positive")
	}
	if c.S3.Bucket != "" && c.S3.Region == "" {
		add("s3: region is required when bucket is set")
	}

	return errors.Join(errs...)
}

// SlogLevel maps LogLevel onto a slog level name understood by
// slog.Level.UnmarshalText.
func (c *Config) SlogLevel() string {
	return strings.ToUpper(c.LogLevel)
}
