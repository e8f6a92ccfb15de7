package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	s3blob "github.com/openquorum/resolved/internal/blob/s3"
	"github.com/openquorum/resolved/internal/cache/redis"
	"github.com/openquorum/resolved/internal/config"
	"github.com/openquorum/resolved/internal/domain"
	"github.com/openquorum/resolved/internal/notify"
	"github.com/openquorum/resolved/internal/payout"
	"github.com/openquorum/resolved/internal/platform/ethereum"
	"github.com/openquorum/resolved/internal/service"
	"github.com/openquorum/resolved/internal/store/postgres"
)

// Dependencies bundles every concrete dependency that the application modes
// need to operate. It is constructed by Wire and torn down by the returned
// cleanup function.
type Dependencies struct {
	// Stores
	TopicStore domain.TopicStore
	EventStore domain.EventStore

	// Caches and coordination
	TopicCache  domain.TopicCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Chain
	Clock domain.Clock
	Token domain.StakingToken

	// Health probes
	Postgres *postgres.Client
	Redis    *redis.Client

	// Service layer
	Resolution *service.ResolutionService
	Watcher    *service.DeadlineWatcher

	// Notifications
	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.Postgres = pgClient
	deps.TopicStore = postgres.NewTopicStore(pool)
	deps.EventStore = postgres.NewEventStore(pool)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.Redis = redisClient
	deps.TopicCache = redis.NewTopicCache(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)

	// --- Ethereum ---
	chainClient, err := ethereum.Dial(ctx, cfg.Chain.RPCURL, cfg.Chain.ChainID)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: ethereum: %w", err)
	}
	closers = append(closers, chainClient.Close)

	deps.Clock = ethereum.NewClock(chainClient)

	var dispenser domain.ValueDispenser
	if cfg.Chain.PrivateKey != "" {
		transactor, err := ethereum.NewTransactor(chainClient, cfg.Chain.PrivateKey)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: transactor: %w", err)
		}

		if cfg.Chain.TokenAddress != "" {
			token, err := ethereum.NewERC20(chainClient, transactor, common.HexToAddress(cfg.Chain.TokenAddress))
			if err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: staking token: %w", err)
			}
			deps.Token = token
		}

		if cfg.Chain.VaultAddress != "" {
			vault, err := ethereum.NewVault(transactor, common.HexToAddress(cfg.Chain.VaultAddress))
			if err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: vault: %w", err)
			}
			dispenser = vault
		}
	}

	// Resolution parameter snapshot: the on-chain registry wins when
	// configured, otherwise the static config values apply.
	params := cfg.ResolutionParams()
	if cfg.Chain.RegistryAddress != "" {
		registry, err := ethereum.NewRegistry(chainClient, common.HexToAddress(cfg.Chain.RegistryAddress))
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: registry: %w", err)
		}
		if p, err := registry.DefaultResolutionParams(ctx); err != nil {
			logger.WarnContext(ctx, "wire: registry params unavailable, using config defaults",
				slog.String("error", err.Error()),
			)
		} else {
			params = p
		}
	}

	// --- S3 archive (optional) ---
	var archiver service.Archiver
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         true,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), deps.EventStore)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Service layer ---
	deps.Resolution = service.NewResolutionService(service.Deps{
		Topics:   deps.TopicStore,
		Events:   deps.EventStore,
		Cache:    deps.TopicCache,
		Locks:    deps.LockManager,
		Bus:      deps.SignalBus,
		Clock:    deps.Clock,
		Token:    deps.Token,
		Payouts:  payout.NewEngine(dispenser, logger),
		Archiver: archiver,
		Notifier: deps.Notifier,
		Custody:  common.HexToAddress(cfg.Chain.VaultAddress),
		Defaults: params,
		Logger:   logger,
	})
	deps.Watcher = service.NewDeadlineWatcher(deps.Resolution, cfg.Watcher.PollInterval.Duration, logger)

	return deps, cleanup, nil
}
