// Package config defines the top-level configuration for the arena backend
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by ARENA_* environment variables.
type Config struct {
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Chain     ChainConfig     `toml:"chain"`
	PriceFeed PriceFeedConfig `toml:"pricefeed"`
	Settle    SettleConfig    `toml:"settle"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
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

// S3Config holds S3-compatible object storage parameters for contest
// archival. When Enabled is false no archiver is wired and settled contests
// stay in PostgreSQL only.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ChainConfig holds the escrow chain connection and treasury signer. The
// treasury key funds payout transfers and escrow deposits; it can be given
// directly or as an encrypted key file plus password.
type ChainConfig struct {
	Enabled          bool   `toml:"enabled"`
	RPCURL           string `toml:"rpc_url"`
	ChainID          int64  `toml:"chain_id"`
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// PriceFeedConfig holds price sampling parameters.
type PriceFeedConfig struct {
	BaseURL      string   `toml:"base_url"`
	PollInterval duration `toml:"poll_interval"`
}

// SettleConfig holds the cadences of the lifecycle and settlement loops.
type SettleConfig struct {
	LifecycleInterval   duration `toml:"lifecycle_interval"`
	SettleInterval      duration `toml:"settle_interval"`
	DepositPollInterval duration `toml:"deposit_poll_interval"`
	DepositBudget       duration `toml:"deposit_budget"`
}

// ServerConfig holds HTTP server parameters. TokenSecret signs and verifies
// the bearer tokens carrying user identity; AdminKey guards the contest
// provisioning endpoint.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	RateLimit   int      `toml:"rate_limit"`
	RateWindow  duration `toml:"rate_window"`
	TokenSecret string   `toml:"token_secret"`
	AdminKey    string   `toml:"admin_key"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
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
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "arena",
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
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "arena-archive",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Chain: ChainConfig{
			Enabled: false,
			RPCURL:  "https://rpc.hyperliquid.xyz/evm",
			ChainID: 999,
		},
		PriceFeed: PriceFeedConfig{
			BaseURL:      "https://api.hyperliquid.xyz",
			PollInterval: duration{2 * time.Second},
		},
		Settle: SettleConfig{
			LifecycleInterval:   duration{5 * time.Second},
			SettleInterval:      duration{5 * time.Second},
			DepositPollInterval: duration{4 * time.Second},
			DepositBudget:       duration{time.Minute},
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   120,
			RateWindow:  duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"contest_paid", "error"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"serve":  true,
	"settle": true,
	"full":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, settle, full)", c.Mode))
	}

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Postgres: either a full DSN or host+database+user.
	if c.Postgres.DSN == "" {
		if c.Postgres.Host == "" || c.Postgres.Database == "" || c.Postgres.User == "" {
			errs = append(errs, "postgres: either dsn or host+database+user must be set")
		}
	}

	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must be set")
	}

	serves := c.Mode == "serve" || c.Mode == "full"
	if serves && c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: invalid port %d", c.Server.Port))
		}
		if c.Server.TokenSecret == "" {
			errs = append(errs, "server: token_secret must be set for mode "+c.Mode)
		}
	}

	// Chain: the treasury signer needs exactly one credential source.
	if c.Chain.Enabled {
		if c.Chain.RPCURL == "" {
			errs = append(errs, "chain: rpc_url must be set when chain is enabled")
		}
		if c.Chain.ChainID <= 0 {
			errs = append(errs, "chain: chain_id must be positive")
		}
		if c.Chain.PrivateKey == "" && c.Chain.EncryptedKeyPath == "" {
			errs = append(errs, "chain: either private_key or encrypted_key_path must be set")
		}
		if c.Chain.EncryptedKeyPath != "" && c.Chain.KeyPassword == "" {
			errs = append(errs, "chain: key_password must be set when encrypted_key_path is used")
		}
	}

	if c.S3.Enabled && c.S3.Bucket == "" {
		errs = append(errs, "s3: bucket must be set when s3 is enabled")
	}

	if c.PriceFeed.BaseURL == "" {
		errs = append(errs, "pricefeed: base_url must be set")
	}
	if c.PriceFeed.PollInterval.Duration <= 0 {
		errs = append(errs, "pricefeed: poll_interval must be positive")
	}

	if c.Settle.DepositBudget.Duration > 0 && c.Settle.DepositPollInterval.Duration > c.Settle.DepositBudget.Duration {
		errs = append(errs, "settle: deposit_poll_interval must not exceed deposit_budget")
	}

	// Telegram needs both halves.
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}
