package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies SETTLER_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known SETTLER_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Signer ──
	setStr(&cfg.Signer.PrivateKey, "SETTLER_SIGNER_PRIVATE_KEY")
	setStr(&cfg.Signer.EncryptedKeyPath, "SETTLER_SIGNER_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Signer.KeyPassword, "SETTLER_SIGNER_KEY_PASSWORD")

	// ── Ledger ──
	setStringSlice(&cfg.Ledger.Endpoints, "SETTLER_LEDGER_ENDPOINTS")
	setStr(&cfg.Ledger.Contract, "SETTLER_LEDGER_CONTRACT")
	setDuration(&cfg.Ledger.Timeout, "SETTLER_LEDGER_TIMEOUT")

	// ── Oracle ──
	setStr(&cfg.Oracle.BinanceURL, "SETTLER_ORACLE_BINANCE_URL")
	setStr(&cfg.Oracle.CoinGeckoURL, "SETTLER_ORACLE_COINGECKO_URL")
	setStr(&cfg.Oracle.EtherscanURL, "SETTLER_ORACLE_ETHERSCAN_URL")
	setStr(&cfg.Oracle.EtherscanAPIKey, "SETTLER_ORACLE_ETHERSCAN_API_KEY")
	setDuration(&cfg.Oracle.Timeout, "SETTLER_ORACLE_TIMEOUT")
	setDuration(&cfg.Oracle.MaxStaleness, "SETTLER_ORACLE_MAX_STALENESS")
	setFloat64(&cfg.Oracle.RequestsPerSecond, "SETTLER_ORACLE_REQUESTS_PER_SECOND")

	// ── Engine ──
	setDuration(&cfg.Engine.Interval, "SETTLER_ENGINE_INTERVAL")
	setDuration(&cfg.Engine.Budget, "SETTLER_ENGINE_BUDGET")
	setDuration(&cfg.Engine.MarketDelay, "SETTLER_ENGINE_MARKET_DELAY")
	setDuration(&cfg.Engine.RateLimitCooldown, "SETTLER_ENGINE_RATE_LIMIT_COOLDOWN")
	setDuration(&cfg.Engine.LockTTL, "SETTLER_ENGINE_LOCK_TTL")
	setInt(&cfg.Engine.OracleRetries, "SETTLER_ENGINE_ORACLE_RETRIES")
	setDuration(&cfg.Engine.OracleBackoff, "SETTLER_ENGINE_ORACLE_BACKOFF")
	setInt(&cfg.Engine.FeeBps, "SETTLER_ENGINE_FEE_BPS")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "SETTLER_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "SETTLER_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "SETTLER_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "SETTLER_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "SETTLER_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "SETTLER_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "SETTLER_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "SETTLER_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "SETTLER_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "SETTLER_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "SETTLER_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "SETTLER_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "SETTLER_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "SETTLER_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "SETTLER_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "SETTLER_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "SETTLER_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "SETTLER_S3_REGION")
	setStr(&cfg.S3.Bucket, "SETTLER_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "SETTLER_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "SETTLER_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "SETTLER_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "SETTLER_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "SETTLER_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "SETTLER_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Archive.Interval, "SETTLER_ARCHIVE_INTERVAL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "SETTLER_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "SETTLER_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "SETTLER_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "SETTLER_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "SETTLER_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateLimitWindow, "SETTLER_SERVER_RATE_LIMIT_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "SETTLER_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "SETTLER_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "SETTLER_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "SETTLER_NOTIFY_EVENTS")

	// ── Review ──
	setStr(&cfg.Review.SearchURL, "SETTLER_REVIEW_SEARCH_URL")
	setInt(&cfg.Review.MaxResults, "SETTLER_REVIEW_MAX_RESULTS")
	setDuration(&cfg.Review.EnrichInterval, "SETTLER_REVIEW_ENRICH_INTERVAL")

	// ── Top-level ──
	setStr(&cfg.Mode, "SETTLER_MODE")
	setStr(&cfg.LogLevel, "SETTLER_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

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

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
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
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
