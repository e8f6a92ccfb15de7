package config

import (
	"math/big"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/openquorum/resolved/internal/domain"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies RESOLVED_* environment variable overrides, and
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

// ResolutionParams converts the validated resolution section into the
// immutable snapshot captured by every topic at construction.
func (c *Config) ResolutionParams() domain.ResolutionParams {
	minStake, _ := new(big.Int).SetString(c.Resolution.MinReportStake, 10)
	threshold, _ := new(big.Int).SetString(c.Resolution.BaseThreshold, 10)
	return domain.ResolutionParams{
		MinReportStake:    minStake,
		BaseThreshold:     threshold,
		EscalationFactor:  c.Resolution.EscalationFactor,
		VotingPeriod:      c.Resolution.VotingPeriod,
		ArbitrationWindow: c.Resolution.ArbitrationWindow,
	}
}

// applyEnvOverrides reads well-known RESOLVED_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Chain.RPCURL, "RESOLVED_CHAIN_RPC_URL")
	setInt(&cfg.Chain.ChainID, "RESOLVED_CHAIN_ID")
	setStr(&cfg.Chain.PrivateKey, "RESOLVED_CHAIN_PRIVATE_KEY")
	setStr(&cfg.Chain.RegistryAddress, "RESOLVED_CHAIN_REGISTRY_ADDRESS")
	setStr(&cfg.Chain.TokenAddress, "RESOLVED_CHAIN_TOKEN_ADDRESS")
	setStr(&cfg.Chain.VaultAddress, "RESOLVED_CHAIN_VAULT_ADDRESS")

	setStr(&cfg.Resolution.MinReportStake, "RESOLVED_MIN_REPORT_STAKE")
	setStr(&cfg.Resolution.BaseThreshold, "RESOLVED_BASE_THRESHOLD")
	setUint(&cfg.Resolution.EscalationFactor, "RESOLVED_ESCALATION_FACTOR")
	setUint(&cfg.Resolution.VotingPeriod, "RESOLVED_VOTING_PERIOD")
	setUint(&cfg.Resolution.ArbitrationWindow, "RESOLVED_ARBITRATION_WINDOW")

	setStr(&cfg.Postgres.DSN, "RESOLVED_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "RESOLVED_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "RESOLVED_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "RESOLVED_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "RESOLVED_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "RESOLVED_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "RESOLVED_POSTGRES_SSLMODE")
	setBool(&cfg.Postgres.RunMigrations, "RESOLVED_POSTGRES_RUN_MIGRATIONS")

	setStr(&cfg.Redis.Addr, "RESOLVED_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "RESOLVED_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "RESOLVED_REDIS_DB")
	setBool(&cfg.Redis.TLSEnabled, "RESOLVED_REDIS_TLS_ENABLED")

	setBool(&cfg.S3.Enabled, "RESOLVED_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "RESOLVED_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "RESOLVED_S3_REGION")
	setStr(&cfg.S3.Bucket, "RESOLVED_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "RESOLVED_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "RESOLVED_S3_SECRET_KEY")

	setInt(&cfg.Server.Port, "RESOLVED_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "RESOLVED_SERVER_API_KEY")

	setStr(&cfg.Notify.TelegramToken, "RESOLVED_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "RESOLVED_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "RESOLVED_NOTIFY_DISCORD_WEBHOOK_URL")

	setStr(&cfg.Mode, "RESOLVED_MODE")
	setStr(&cfg.LogLevel, "RESOLVED_LOG_LEVEL")
}

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

func setUint(dst *uint64, key string) {
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
