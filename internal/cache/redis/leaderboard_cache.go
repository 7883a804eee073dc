package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/betfolio/arena/internal/domain"
	"github.com/redis/go-redis/v9"
)

// Entries for a resolved round never change once published, so a generous TTL
// is safe; it only bounds memory.
const leaderboardTTL = 15 * time.Minute

// LeaderboardCache implements domain.LeaderboardCache using Redis hashes with
// JSON-serialized entry slices.
//
// Key schema:
//
//	leaderboard:{roundID} - hash with field "data" containing JSON
type LeaderboardCache struct {
	rdb *redis.Client
}

// NewLeaderboardCache creates a LeaderboardCache backed by the given Client.
func NewLeaderboardCache(c *Client) *LeaderboardCache {
	return &LeaderboardCache{rdb: c.Underlying()}
}

func leaderboardKey(roundID string) string { return "leaderboard:" + roundID }

// SetRound stores a round's published entries.
func (lc *LeaderboardCache) SetRound(ctx context.Context, roundID string, entries []domain.LeaderboardEntry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("redis: marshal leaderboard %s: %w", roundID, err)
	}

	key := leaderboardKey(roundID)

	pipe := lc.rdb.TxPipeline()
	pipe.HSet(ctx, key, "data", data)
	pipe.Expire(ctx, key, leaderboardTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set leaderboard %s: %w", roundID, err)
	}
	return nil
}

// GetRound retrieves a round's entries from the cache.
// It returns domain.ErrNotFound when the key does not exist.
func (lc *LeaderboardCache) GetRound(ctx context.Context, roundID string) ([]domain.LeaderboardEntry, error) {
	data, err := lc.rdb.HGet(ctx, leaderboardKey(roundID), "data").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("redis: get leaderboard %s: %w", roundID, err)
	}

	var entries []domain.LeaderboardEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("redis: unmarshal leaderboard %s: %w", roundID, err)
	}
	return entries, nil
}

// Invalidate drops a round's cached entries. Used when payouts fill in after
// the owning contest reaches PAID.
func (lc *LeaderboardCache) Invalidate(ctx context.Context, roundID string) error {
	if err := lc.rdb.Del(ctx, leaderboardKey(roundID)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate leaderboard %s: %w", roundID, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.LeaderboardCache = (*LeaderboardCache)(nil)
