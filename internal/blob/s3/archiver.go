package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/betfolio/arena/internal/domain"
)

// ---------------------------------------------------------------------------
// Narrow store interfaces required by the archiver.
//
// The archiver only requires the query methods it actually calls, not the
// full domain store interfaces. The Postgres stores satisfy these implicitly.
// ---------------------------------------------------------------------------

// ContestArchiveStore provides read access to the contest being archived.
type ContestArchiveStore interface {
	GetByID(ctx context.Context, id string) (domain.Contest, error)
}

// RoundArchiveStore provides read access to a contest's rounds.
type RoundArchiveStore interface {
	ListByContest(ctx context.Context, contestID string) ([]domain.Round, error)
}

// MarketArchiveStore provides read access to a round's markets.
type MarketArchiveStore interface {
	ListByRound(ctx context.Context, roundID string) ([]domain.Market, error)
}

// BetArchiveStore provides read access to a round's bets.
type BetArchiveStore interface {
	ListByRound(ctx context.Context, roundID string) ([]domain.Bet, error)
}

// LeaderboardArchiveStore provides read access to published entries.
type LeaderboardArchiveStore interface {
	ListByRound(ctx context.Context, roundID string) ([]domain.LeaderboardEntry, error)
}

// contestSnapshot is the archived shape: the full settled state of one
// contest, self-contained so it can be read without the database.
type contestSnapshot struct {
	Contest domain.Contest  `json:"contest"`
	Rounds  []roundSnapshot `json:"rounds"`
}

type roundSnapshot struct {
	Round       domain.Round              `json:"round"`
	Markets     []domain.Market           `json:"markets"`
	Bets        []domain.Bet              `json:"bets"`
	Leaderboard []domain.LeaderboardEntry `json:"leaderboard"`
}

// ArchiveImpl implements domain.Archiver by snapshotting a fully paid
// contest, serializing it to JSON, and uploading the result to S3.
//
// Deletion of the archived records from the primary store is intentionally
// NOT performed here -- that is a separate, explicit step to be executed
// after the archive has been verified.
type ArchiveImpl struct {
	writer       domain.BlobWriter
	contests     ContestArchiveStore
	rounds       RoundArchiveStore
	markets      MarketArchiveStore
	bets         BetArchiveStore
	leaderboards LeaderboardArchiveStore
	audit        domain.AuditStore
}

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(
	writer domain.BlobWriter,
	contests ContestArchiveStore,
	rounds RoundArchiveStore,
	markets MarketArchiveStore,
	bets BetArchiveStore,
	leaderboards LeaderboardArchiveStore,
	audit domain.AuditStore,
) *ArchiveImpl {
	return &ArchiveImpl{
		writer:       writer,
		contests:     contests,
		rounds:       rounds,
		markets:      markets,
		bets:         bets,
		leaderboards: leaderboards,
		audit:        audit,
	}
}

// ArchiveContest snapshots the contest with all its rounds, markets, bets,
// and published leaderboards, uploads the JSON to
// archive/contests/{id}.json, and returns the blob path. Re-archiving the
// same contest overwrites the same key, so the operation is idempotent.
func (a *ArchiveImpl) ArchiveContest(ctx context.Context, contestID string) (string, error) {
	contest, err := a.contests.GetByID(ctx, contestID)
	if err != nil {
		return "", fmt.Errorf("s3blob: archive contest %s: %w", contestID, err)
	}

	rounds, err := a.rounds.ListByContest(ctx, contestID)
	if err != nil {
		return "", fmt.Errorf("s3blob: archive contest %s rounds: %w", contestID, err)
	}

	snapshot := contestSnapshot{Contest: contest}
	for _, round := range rounds {
		markets, err := a.markets.ListByRound(ctx, round.ID)
		if err != nil {
			return "", fmt.Errorf("s3blob: archive round %s markets: %w", round.ID, err)
		}
		bets, err := a.bets.ListByRound(ctx, round.ID)
		if err != nil {
			return "", fmt.Errorf("s3blob: archive round %s bets: %w", round.ID, err)
		}
		entries, err := a.leaderboards.ListByRound(ctx, round.ID)
		if err != nil {
			return "", fmt.Errorf("s3blob: archive round %s leaderboard: %w", round.ID, err)
		}
		snapshot.Rounds = append(snapshot.Rounds, roundSnapshot{
			Round:       round,
			Markets:     markets,
			Bets:        bets,
			Leaderboard: entries,
		})
	}

	buf, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return "", fmt.Errorf("s3blob: marshal contest %s snapshot: %w", contestID, err)
	}

	path := fmt.Sprintf("archive/contests/%s.json", contestID)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/json"); err != nil {
		return "", fmt.Errorf("s3blob: upload contest %s snapshot: %w", contestID, err)
	}

	if err := a.audit.Log(ctx, "contest.archived", map[string]any{
		"contest_id": contestID,
		"path":       path,
		"rounds":     len(snapshot.Rounds),
	}); err != nil {
		return "", fmt.Errorf("s3blob: audit contest %s archive: %w", contestID, err)
	}

	return path, nil
}

// Compile-time interface check.
var _ domain.Archiver = (*ArchiveImpl)(nil)
