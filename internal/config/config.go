// Package config defines the top-level configuration for the settler and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by SETTLER_* environment variables.
type Config struct {
	Signer   SignerConfig   `toml:"signer"`
	Ledger   LedgerConfig   `toml:"ledger"`
	Oracle   OracleConfig   `toml:"oracle"`
	Engine   EngineConfig   `toml:"engine"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Archive  ArchiveConfig  `toml:"archive"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Review   ReviewConfig   `toml:"review"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// SignerConfig holds the resolver signing-key credentials.
type SignerConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// LedgerConfig holds the pool-contract gateway parameters.
type LedgerConfig struct {
	// Endpoints is the ordered gateway endpoint list; the first is primary.
	Endpoints []string `toml:"endpoints"`
	Contract  string   `toml:"contract"`
	Timeout   duration `toml:"timeout"`
}

// OracleConfig holds upstream quote-source parameters.
type OracleConfig struct {
	BinanceURL        string   `toml:"binance_url"`
	CoinGeckoURL      string   `toml:"coingecko_url"`
	EtherscanURL      string   `toml:"etherscan_url"`
	EtherscanAPIKey   string   `toml:"etherscan_api_key"`
	Timeout           duration `toml:"timeout"`
	MaxStaleness      duration `toml:"max_staleness"`
	RequestsPerSecond float64  `toml:"requests_per_second"`
}

// EngineConfig holds resolution-pass parameters.
type EngineConfig struct {
	Interval          duration `toml:"interval"`
	Budget            duration `toml:"budget"`
	MarketDelay       duration `toml:"market_delay"`
	RateLimitCooldown duration `toml:"rate_limit_cooldown"`
	LockTTL           duration `toml:"lock_ttl"`
	OracleRetries     int      `toml:"oracle_retries"`
	OracleBackoff     duration `toml:"oracle_backoff"`
	FeeBps            int      `toml:"fee_bps"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig holds audit-history archival parameters.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	RetentionDays int      `toml:"retention_days"`
	Interval      duration `toml:"interval"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled         bool     `toml:"enabled"`
	Port            int      `toml:"port"`
	CORSOrigins     []string `toml:"cors_origins"`
	APIKey          string   `toml:"api_key"`
	RateLimit       int      `toml:"rate_limit"`
	RateLimitWindow duration `toml:"rate_limit_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// ReviewConfig holds manual-review queue parameters.
type ReviewConfig struct {
	SearchURL      string   `toml:"search_url"`
	MaxResults     int      `toml:"max_results"`
	EnrichInterval duration `toml:"enrich_interval"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Ledger: LedgerConfig{
			Endpoints: []string{"http://localhost:8545"},
			Timeout:   duration{10 * time.Second},
		},
		Oracle: OracleConfig{
			BinanceURL:        "https://api.binance.com",
			CoinGeckoURL:      "https://api.coingecko.com",
			EtherscanURL:      "https://api.etherscan.io",
			Timeout:           duration{10 * time.Second},
			MaxStaleness:      duration{2 * time.Minute},
			RequestsPerSecond: 2,
		},
		Engine: EngineConfig{
			Interval:          duration{1 * time.Minute},
			Budget:            duration{5 * time.Minute},
			MarketDelay:       duration{400 * time.Millisecond},
			RateLimitCooldown: duration{5 * time.Second},
			LockTTL:           duration{10 * time.Minute},
			OracleRetries:     3,
			OracleBackoff:     duration{3 * time.Second},
			FeeBps:            100,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "settler",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "settler-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			RetentionDays: 90,
			Interval:      duration{24 * time.Hour},
		},
		Server: ServerConfig{
			Enabled:         true,
			Port:            8000,
			CORSOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:       0,
			RateLimitWindow: duration{1 * time.Second},
		},
		Notify: NotifyConfig{
			Events: []string{"resolve_failed", "unresolvable", "pass_failed"},
		},
		Review: ReviewConfig{
			MaxResults:     5,
			EnrichInterval: duration{15 * time.Minute},
		},
		Mode:     "daemon",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"once":   true,
	"daemon": true,
	"server": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: once, daemon, server)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Signer — a credential source must be specified for settling modes.
	needsSigner := c.Mode == "once" || c.Mode == "daemon"
	if needsSigner {
		if c.Signer.PrivateKey == "" && c.Signer.EncryptedKeyPath == "" {
			errs = append(errs, "signer: either private_key or encrypted_key_path must be set for mode "+c.Mode)
		}
		if c.Signer.EncryptedKeyPath != "" && c.Signer.KeyPassword == "" {
			errs = append(errs, "signer: key_password is required when encrypted_key_path is set")
		}
	}

	// Ledger
	if len(c.Ledger.Endpoints) == 0 {
		errs = append(errs, "ledger: at least one endpoint must be set")
	}
	if c.Ledger.Contract != "" && !common.IsHexAddress(c.Ledger.Contract) {
		errs = append(errs, fmt.Sprintf("ledger: contract %q is not a valid hex address", c.Ledger.Contract))
	}

	// Oracle
	if c.Oracle.BinanceURL == "" && c.Oracle.CoinGeckoURL == "" {
		errs = append(errs, "oracle: at least one of binance_url or coingecko_url must be set")
	}
	if c.Oracle.MaxStaleness.Duration <= 0 {
		errs = append(errs, "oracle: max_staleness must be > 0")
	}
	if c.Oracle.RequestsPerSecond <= 0 {
		errs = append(errs, "oracle: requests_per_second must be > 0")
	}

	// Engine
	if c.Engine.Interval.Duration <= 0 {
		errs = append(errs, "engine: interval must be > 0")
	}
	if c.Engine.Budget.Duration <= 0 {
		errs = append(errs, "engine: budget must be > 0")
	}
	if c.Engine.OracleRetries < 1 {
		errs = append(errs, "engine: oracle_retries must be >= 1")
	}
	if c.Engine.FeeBps < 0 || c.Engine.FeeBps >= 10_000 {
		errs = append(errs, fmt.Sprintf("engine: fee_bps must be 0-9999, got %d", c.Engine.FeeBps))
	}
	if c.Engine.LockTTL.Duration <= c.Engine.Budget.Duration {
		errs = append(errs, "engine: lock_ttl must exceed budget so a live pass cannot lose its lock")
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3 — only required when archival is enabled.
	if c.Archive.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when archive is enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archive is enabled")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
	}

	// Review
	if c.Review.MaxResults < 1 {
		errs = append(errs, "review: max_results must be >= 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
