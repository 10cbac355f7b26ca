package config

import (
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Signer.PrivateKey = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	return cfg
}

func TestDefaultsValidateWithSigner(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())
}

// The oracle clients append their API paths ("/api/v3/simple/price", "/api")
// to these URLs, so the defaults must be bare hosts.
func TestDefaultOracleURLsAreBareHosts(t *testing.T) {
	cfg := Defaults()
	for _, raw := range []string{cfg.Oracle.BinanceURL, cfg.Oracle.CoinGeckoURL, cfg.Oracle.EtherscanURL} {
		u, err := url.Parse(raw)
		require.NoError(t, err)
		assert.Empty(t, u.Path, "default oracle URL %q must not carry a path", raw)
	}
}

func TestValidateRejectsMissingSigner(t *testing.T) {
	cfg := Defaults()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "signer")
}

func TestValidateServerModeNeedsNoSigner(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "server"
	require.NoError(t, cfg.Validate())
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "bogus"
	cfg.Redis.Addr = ""
	cfg.Engine.OracleRetries = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
	assert.Contains(t, err.Error(), "redis: addr")
	assert.Contains(t, err.Error(), "oracle_retries")
}

func TestValidateLockTTLMustExceedBudget(t *testing.T) {
	cfg := validConfig()
	cfg.Engine.LockTTL = duration{cfg.Engine.Budget.Duration}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lock_ttl")
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
mode = "server"

[engine]
interval = "30s"
fee_bps = 250

[redis]
addr = "redis.internal:6380"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "server", cfg.Mode)
	assert.Equal(t, 30*time.Second, cfg.Engine.Interval.Duration)
	assert.Equal(t, 250, cfg.Engine.FeeBps)
	assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr)
	// Untouched values keep their defaults.
	assert.Equal(t, 5*time.Minute, cfg.Engine.Budget.Duration)
	assert.Equal(t, "settler", cfg.Postgres.Database)
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("mode = \"daemon\"\n"), 0o600))

	t.Setenv("SETTLER_MODE", "once")
	t.Setenv("SETTLER_REDIS_ADDR", "override:6379")
	t.Setenv("SETTLER_ENGINE_BUDGET", "90s")
	t.Setenv("SETTLER_LEDGER_ENDPOINTS", "http://a:8545, http://b:8545")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "once", cfg.Mode)
	assert.Equal(t, "override:6379", cfg.Redis.Addr)
	assert.Equal(t, 90*time.Second, cfg.Engine.Budget.Duration)
	assert.Equal(t, []string{"http://a:8545", "http://b:8545"}, cfg.Ledger.Endpoints)
}

func TestRedactedConfigMasksSecrets(t *testing.T) {
	cfg := validConfig()
	cfg.Postgres.Password = "hunter2"
	cfg.Server.APIKey = "sk-live"
	cfg.Notify.TelegramToken = "123:abc"

	red := RedactedConfig(&cfg)

	assert.Equal(t, "***", red.Signer.PrivateKey)
	assert.Equal(t, "***", red.Postgres.Password)
	assert.Equal(t, "***", red.Server.APIKey)
	assert.Equal(t, "***", red.Notify.TelegramToken)
	// Originals are untouched.
	assert.Equal(t, "hunter2", cfg.Postgres.Password)
	// Non-secrets pass through.
	assert.Equal(t, cfg.Redis.Addr, red.Redis.Addr)
}
