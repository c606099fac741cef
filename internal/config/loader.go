package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load merges an optional TOML file at path on top of the built-in defaults,
// loads .env if present, applies environment overrides, and returns the
// result. The returned Config has NOT been validated; the caller should
// invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known environment variables and overwrites the
// corresponding fields when a variable is set and non-empty. PORT,
// DATABASE_URL and REDIS_URL are honoured for platform compatibility; the
// AMM_* forms win when both are set.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.LogLevel, "AMM_LOG_LEVEL")

	// ── Server ──
	setInt(&cfg.Server.Port, "PORT")
	setInt(&cfg.Server.Port, "AMM_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "AMM_SERVER_CORS_ORIGINS")
	setDuration(&cfg.Server.RequestTimeout, "AMM_SERVER_REQUEST_TIMEOUT")

	// ── Market ──
	setStr(&cfg.Market.Authority, "AMM_MARKET_AUTHORITY")
	setInt(&cfg.Market.FeeBps, "AMM_MARKET_FEE_BPS")
	setStr(&cfg.Market.FeeAccount, "AMM_MARKET_FEE_ACCOUNT")
	setUint64(&cfg.Market.MinSeed, "AMM_MARKET_MIN_SEED")
	setDuration(&cfg.Market.ClaimWindow, "AMM_MARKET_CLAIM_WINDOW")

	// ── Limits ──
	setUint64(&cfg.Limits.MaxPerMarket, "AMM_LIMITS_MAX_PER_MARKET")
	setUint64(&cfg.Limits.MaxPerCategory, "AMM_LIMITS_MAX_PER_CATEGORY")

	// ── Auth ──
	setStr(&cfg.Auth.JWTSecret, "AMM_AUTH_JWT_SECRET")
	setDuration(&cfg.Auth.TokenTTL, "AMM_AUTH_TOKEN_TTL")

	// ── Database ──
	setStr(&cfg.Database.URL, "DATABASE_URL")
	setStr(&cfg.Database.URL, "AMM_DATABASE_URL")
	setBool(&cfg.Database.RunMigrations, "AMM_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.URL, "REDIS_URL")
	setStr(&cfg.Redis.URL, "AMM_REDIS_URL")
	setDuration(&cfg.Redis.CacheTTL, "AMM_REDIS_CACHE_TTL")
	setBool(&cfg.Redis.DistributedLocks, "AMM_REDIS_DISTRIBUTED_LOCKS")
	setDuration(&cfg.Redis.LockTTL, "AMM_REDIS_LOCK_TTL")

	// ── Ledger ──
	setStr(&cfg.Ledger.Backend, "AMM_LEDGER_BACKEND")
	setBool(&cfg.Ledger.AllowMint, "AMM_LEDGER_ALLOW_MINT")

	// ── Scheduler ──
	setDuration(&cfg.Scheduler.Interval, "AMM_SCHEDULER_INTERVAL")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "AMM_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "AMM_S3_REGION")
	setStr(&cfg.S3.Bucket, "AMM_S3_BUCKET")
	setStr(&cfg.S3.Prefix, "AMM_S3_PREFIX")
	setStr(&cfg.S3.AccessKey, "AMM_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "AMM_S3_SECRET_KEY")
	setBool(&cfg.S3.ForcePathStyle, "AMM_S3_FORCE_PATH_STYLE")
}

// Typed env-var helpers. Each only mutates the target when the environment
// variable is present, non-empty and parses.

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				cleaned = append(cleaned, p)
			}
		}
		*dst = cleaned
	}
}
