package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := writeConfig(t, `
mode = "settle"
log_level = "debug"

[postgres]
host = "db.internal"
database = "arena_prod"
user = "arena"

[pricefeed]
poll_interval = "500ms"

[server]
token_secret = "s3cret"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "settle", cfg.Mode)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "db.internal", cfg.Postgres.Host)
	assert.Equal(t, "arena_prod", cfg.Postgres.Database)
	assert.Equal(t, 500*time.Millisecond, cfg.PriceFeed.PollInterval.Duration)

	// Untouched sections keep their defaults.
	assert.Equal(t, 5432, cfg.Postgres.Port)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 8000, cfg.Server.Port)
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
[server]
token_secret = "from-file"
`)

	t.Setenv("ARENA_MODE", "serve")
	t.Setenv("ARENA_SERVER_TOKEN_SECRET", "from-env")
	t.Setenv("ARENA_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("ARENA_SETTLE_DEPOSIT_BUDGET", "90s")
	t.Setenv("ARENA_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "serve", cfg.Mode)
	assert.Equal(t, "from-env", cfg.Server.TokenSecret)
	assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr)
	assert.Equal(t, 90*time.Second, cfg.Settle.DepositBudget.Duration)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
}

func TestValidateAcceptsDefaultsWithSecret(t *testing.T) {
	cfg := Defaults()
	cfg.Server.TokenSecret = "s3cret"
	assert.NoError(t, cfg.Validate())
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "maintenance"
	cfg.LogLevel = "loud"
	cfg.Redis.Addr = ""
	cfg.PriceFeed.BaseURL = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorContains(t, err, "unknown mode")
	assert.ErrorContains(t, err, "unknown log_level")
	assert.ErrorContains(t, err, "redis: addr")
	assert.ErrorContains(t, err, "pricefeed: base_url")
}

func TestValidateRequiresTokenSecretForServingModes(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "serve"
	assert.ErrorContains(t, cfg.Validate(), "token_secret")

	cfg.Mode = "settle"
	assert.NoError(t, cfg.Validate())
}

func TestValidateChainCredentials(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "settle"
	cfg.Chain.Enabled = true

	assert.ErrorContains(t, cfg.Validate(), "private_key or encrypted_key_path")

	cfg.Chain.EncryptedKeyPath = "treasury.key.json"
	assert.ErrorContains(t, cfg.Validate(), "key_password")

	cfg.Chain.KeyPassword = "hunter2"
	assert.NoError(t, cfg.Validate())
}

func TestRedactedConfigMasksSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Password = "pg-pass"
	cfg.Redis.Password = "redis-pass"
	cfg.S3.SecretKey = "s3-secret"
	cfg.Chain.PrivateKey = "0xdeadbeef"
	cfg.Server.TokenSecret = "token-secret"
	cfg.Server.AdminKey = "admin-key"
	cfg.Notify.TelegramToken = "tg-token"

	red := RedactedConfig(&cfg)

	assert.Equal(t, "***", red.Postgres.Password)
	assert.Equal(t, "***", red.Redis.Password)
	assert.Equal(t, "***", red.S3.SecretKey)
	assert.Equal(t, "***", red.Chain.PrivateKey)
	assert.Equal(t, "***", red.Server.TokenSecret)
	assert.Equal(t, "***", red.Server.AdminKey)
	assert.Equal(t, "***", red.Notify.TelegramToken)

	// Original untouched.
	assert.Equal(t, "pg-pass", cfg.Postgres.Password)

	// Slices are copies.
	red.Server.CORSOrigins[0] = "mutated"
	assert.NotEqual(t, "mutated", cfg.Server.CORSOrigins[0])
}
