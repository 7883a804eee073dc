package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/betfolio/arena/internal/blob/s3"
	"github.com/betfolio/arena/internal/cache/redis"
	"github.com/betfolio/arena/internal/chain/escrow"
	"github.com/betfolio/arena/internal/config"
	"github.com/betfolio/arena/internal/crypto"
	"github.com/betfolio/arena/internal/domain"
	"github.com/betfolio/arena/internal/notify"
	"github.com/betfolio/arena/internal/platform/hyperliquid"
	"github.com/betfolio/arena/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Stores
	ContestStore     domain.ContestStore
	RoundStore       domain.RoundStore
	MarketStore      domain.MarketStore
	BetStore         domain.BetStore
	LeaderboardStore domain.LeaderboardStore
	UserStore        domain.UserStore
	AuditStore       domain.AuditStore

	// Caches
	PriceCache       domain.PriceCache
	LeaderboardCache domain.LeaderboardCache
	RateLimiter      domain.RateLimiter
	LockManager      domain.LockManager
	SignalBus        domain.SignalBus

	// Chain
	Escrow domain.EscrowClient

	// Price feed
	Feed *hyperliquid.Client

	// Blob storage
	Archiver      domain.Archiver
	ArchiveReader domain.BlobReader

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
	contestStore := postgres.NewContestStore(pool)
	roundStore := postgres.NewRoundStore(pool)
	marketStore := postgres.NewMarketStore(pool)
	betStore := postgres.NewBetStore(pool)
	leaderboardStore := postgres.NewLeaderboardStore(pool)
	deps.ContestStore = contestStore
	deps.RoundStore = roundStore
	deps.MarketStore = marketStore
	deps.BetStore = betStore
	deps.LeaderboardStore = leaderboardStore
	deps.UserStore = postgres.NewUserStore(pool)
	deps.AuditStore = postgres.NewAuditStore(pool)

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

	deps.PriceCache = redis.NewPriceCache(redisClient)
	deps.LeaderboardCache = redis.NewLeaderboardCache(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)

	// --- Escrow chain client ---
	if cfg.Chain.Enabled {
		keyHex, err := crypto.LoadKey(crypto.KeyConfig{
			RawPrivateKey:    cfg.Chain.PrivateKey,
			EncryptedKeyPath: cfg.Chain.EncryptedKeyPath,
			KeyPassword:      cfg.Chain.KeyPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: treasury key: %w", err)
		}
		escrowClient, err := escrow.New(ctx, escrow.Config{
			RPCURL:        cfg.Chain.RPCURL,
			ChainID:       cfg.Chain.ChainID,
			PrivateKeyHex: keyHex,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: escrow: %w", err)
		}
		closers = append(closers, escrowClient.Close)
		deps.Escrow = escrowClient
	}

	// --- Price feed ---
	deps.Feed = hyperliquid.New(cfg.PriceFeed.BaseURL)

	// --- S3 archival ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.Archiver = s3blob.NewArchiver(
			s3blob.NewWriter(s3Client),
			contestStore,
			roundStore,
			marketStore,
			betStore,
			leaderboardStore,
			deps.AuditStore,
		)
		deps.ArchiveReader = s3blob.NewReader(s3Client)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
