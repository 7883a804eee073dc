package domain

import (
	"context"
	"time"
)

// PriceCache provides fast access to the latest sampled asset prices. Each
// poll writes a full snapshot; concurrent polls simply overwrite each other
// (last write wins), which is safe because every sample is self-consistent.
type PriceCache interface {
	SetPrice(ctx context.Context, asset string, price Ticks, ts time.Time) error
	GetPrice(ctx context.Context, asset string) (Ticks, time.Time, error)
	GetPrices(ctx context.Context, assets []string) (map[string]Ticks, error)
}

// LeaderboardCache holds published ranking snapshots for hot reads. Entries
// for a resolved round are immutable, so cached snapshots never go stale.
type LeaderboardCache interface {
	SetRound(ctx context.Context, roundID string, entries []LeaderboardEntry) error
	GetRound(ctx context.Context, roundID string) ([]LeaderboardEntry, error)
	Invalidate(ctx context.Context, roundID string) error
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// LockManager provides distributed locking. Settlement acquires a per-round
// lock so resolution never races late-arriving bets or a second settler.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams for settlement events.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
