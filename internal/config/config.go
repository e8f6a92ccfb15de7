// Package config defines the top-level configuration for the resolution
// engine and provides validation helpers.
package config

import (
	"fmt"
	"math/big"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by RESOLVED_* environment
// variables.
type Config struct {
	Chain      ChainConfig      `toml:"chain"`
	Resolution ResolutionConfig `toml:"resolution"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Server     ServerConfig     `toml:"server"`
	Watcher    WatcherConfig    `toml:"watcher"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// ChainConfig holds Ethereum endpoint and contract addresses.
type ChainConfig struct {
	RPCURL          string `toml:"rpc_url"`
	ChainID         int    `toml:"chain_id"`
	PrivateKey      string `toml:"private_key"`
	RegistryAddress string `toml:"registry_address"`
	TokenAddress    string `toml:"token_address"`
	VaultAddress    string `toml:"vault_address"`
}

// ResolutionConfig holds the default resolution parameters snapshotted into
// every topic at construction.
type ResolutionConfig struct {
	MinReportStake    string `toml:"min_report_stake"`
	BaseThreshold     string `toml:"base_threshold"`
	EscalationFactor  uint64 `toml:"escalation_factor"`
	VotingPeriod      uint64 `toml:"voting_period"`
	ArbitrationWindow uint64 `toml:"arbitration_window"`
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

// S3Config holds S3-compatible object storage parameters for the resolution
// archive.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`

	// RateLimit is requests per client per RateWindow; zero disables limiting.
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// WatcherConfig holds the deadline-watcher parameters.
type WatcherConfig struct {
	Enabled      bool     `toml:"enabled"`
	PollInterval duration `toml:"poll_interval"`
}

// NotifyConfig holds operator notification parameters. A sender is enabled
// when its credentials are set.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
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

// Defaults returns a Config populated with sane defaults; Load layers the
// TOML file and environment overrides on top.
func Defaults() Config {
	return Config{
		Chain: ChainConfig{
			RPCURL:  "http://localhost:8545",
			ChainID: 1,
		},
		Resolution: ResolutionConfig{
			MinReportStake:    "1000000000000000000",
			BaseThreshold:     "10000000000000000000",
			EscalationFactor:  2,
			VotingPeriod:      7200,
			ArbitrationWindow: 1800,
		},
		Postgres: PostgresConfig{
			Port:         5432,
			SSLMode:      "disable",
			PoolMaxConns: 10,
			PoolMinConns: 2,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
		},
		Server: ServerConfig{
			Enabled:    true,
			Port:       8080,
			RateWindow: duration{time.Minute},
		},
		Watcher: WatcherConfig{
			Enabled:      true,
			PollInterval: duration{30 * time.Second},
		},
		Mode:     "serve",
		LogLevel: "info",
	}
}

// Validate checks the configuration for mode-independent consistency errors.
func (c *Config) Validate() error {
	var problems []string

	switch c.Mode {
	case "serve", "watch", "full":
	default:
		problems = append(problems, fmt.Sprintf("unknown mode %q", c.Mode))
	}

	if c.Resolution.EscalationFactor < 2 {
		problems = append(problems, "resolution.escalation_factor must be >= 2")
	}
	if c.Resolution.VotingPeriod == 0 {
		problems = append(problems, "resolution.voting_period must be > 0")
	}
	if c.Resolution.ArbitrationWindow == 0 {
		problems = append(problems, "resolution.arbitration_window must be > 0")
	}
	if _, ok := new(big.Int).SetString(c.Resolution.MinReportStake, 10); !ok {
		problems = append(problems, "resolution.min_report_stake is not a decimal integer")
	}
	if v, ok := new(big.Int).SetString(c.Resolution.BaseThreshold, 10); !ok || v.Sign() <= 0 {
		problems = append(problems, "resolution.base_threshold must be a positive decimal integer")
	}

	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		problems = append(problems, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	if c.Watcher.Enabled && c.Watcher.PollInterval.Duration <= 0 {
		problems = append(problems, "watcher.poll_interval must be > 0")
	}

	if len(problems) > 0 {
		return fmt.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}
