package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/betfolio/arena/internal/domain"
)

// LeaderboardStore implements domain.LeaderboardStore using PostgreSQL.
type LeaderboardStore struct {
	pool *pgxpool.Pool
}

// NewLeaderboardStore creates a new LeaderboardStore backed by the given
// connection pool.
func NewLeaderboardStore(pool *pgxpool.Pool) *LeaderboardStore {
	return &LeaderboardStore{pool: pool}
}

const leaderboardCols = `e.bet_id, e.round_id, e.round_number, e.rank,
	e.total_points, e.payout_ticks, b.user_id, u.wallet_address, u.email`

// Publish inserts the round's entries inside one transaction. Publishing a
// round that already has entries returns ErrLeaderboardFrozen: ranks never
// change after first publication.
func (s *LeaderboardStore) Publish(ctx context.Context, roundID string, entries []domain.LeaderboardEntry) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin publish leaderboard: %w", err)
	}
	defer tx.Rollback(ctx)

	var existing int64
	err = tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM leaderboard_entries WHERE round_id = $1`, roundID).Scan(&existing)
	if err != nil {
		return fmt.Errorf("postgres: check leaderboard for round %s: %w", roundID, err)
	}
	if existing > 0 {
		return domain.ErrLeaderboardFrozen
	}

	const query = `
		INSERT INTO leaderboard_entries (
			bet_id, round_id, round_number, rank, total_points, published_at
		) VALUES ($1, $2, $3, $4, $5, NOW())`

	for _, e := range entries {
		if _, err := tx.Exec(ctx, query,
			e.BetID, roundID, e.RoundNumber, e.Rank, int64(e.TotalPoints),
		); err != nil {
			return fmt.Errorf("postgres: insert leaderboard entry for bet %s: %w", e.BetID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit publish leaderboard for round %s: %w", roundID, err)
	}
	return nil
}

// Published reports whether a leaderboard already exists for the round.
func (s *LeaderboardStore) Published(ctx context.Context, roundID string) (bool, error) {
	var count int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM leaderboard_entries WHERE round_id = $1`, roundID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("postgres: check published for round %s: %w", roundID, err)
	}
	return count > 0, nil
}

func scanLeaderboardEntry(row pgx.Row) (domain.LeaderboardEntry, error) {
	var e domain.LeaderboardEntry
	var payout *int64
	err := row.Scan(
		&e.BetID, &e.RoundID, &e.RoundNumber, &e.Rank,
		&e.TotalPoints, &payout,
		&e.User.ID, &e.User.WalletAddress, &e.User.Email,
	)
	if err != nil {
		return domain.LeaderboardEntry{}, err
	}
	if payout != nil {
		p := domain.Ticks(*payout)
		e.Payout = &p
	}
	return e, nil
}

const leaderboardFrom = ` FROM leaderboard_entries e
	JOIN bets b ON b.id = e.bet_id
	JOIN users u ON u.id = b.user_id`

// ListByRound returns the round's published entries, best rank first.
// Within a shared rank the order matches publication: earlier submission
// first, bet id as the final tie-break. Pool remainders land on the first
// entry of a tied group, so this order is load-bearing for payouts.
func (s *LeaderboardStore) ListByRound(ctx context.Context, roundID string) ([]domain.LeaderboardEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+leaderboardCols+leaderboardFrom+` WHERE e.round_id = $1 ORDER BY e.rank, b.submitted_at, e.bet_id`,
		roundID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list leaderboard for round %s: %w", roundID, err)
	}
	defer rows.Close()
	return collectLeaderboard(rows)
}

// ListByContest returns entries across all of a contest's rounds, ordered by
// round number then rank, with pagination.
func (s *LeaderboardStore) ListByContest(ctx context.Context, contestID string, opts domain.ListOpts) ([]domain.LeaderboardEntry, error) {
	query := `SELECT ` + leaderboardCols + leaderboardFrom + `
		JOIN rounds r ON r.id = e.round_id
		WHERE r.contest_id = $1
		ORDER BY e.round_number, e.rank, b.submitted_at, e.bet_id`
	args := []any{contestID}
	argIdx := 2

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list leaderboard for contest %s: %w", contestID, err)
	}
	defer rows.Close()
	return collectLeaderboard(rows)
}

// CountByContest returns the total entry count across a contest's rounds.
func (s *LeaderboardStore) CountByContest(ctx context.Context, contestID string) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM leaderboard_entries e
		 JOIN rounds r ON r.id = e.round_id
		 WHERE r.contest_id = $1`, contestID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count leaderboard for contest %s: %w", contestID, err)
	}
	return count, nil
}

func collectLeaderboard(rows pgx.Rows) ([]domain.LeaderboardEntry, error) {
	var entries []domain.LeaderboardEntry
	for rows.Next() {
		e, err := scanLeaderboardEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan leaderboard entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: leaderboard rows: %w", err)
	}
	return entries, nil
}

// SetPayouts fills the payout column for the given bet entries in one batch.
// Ranks and points are untouched.
func (s *LeaderboardStore) SetPayouts(ctx context.Context, payouts map[string]domain.Ticks) error {
	if len(payouts) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	const query = `UPDATE leaderboard_entries SET payout_ticks = $1 WHERE bet_id = $2`
	for betID, amount := range payouts {
		batch.Queue(query, int64(amount), betID)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range payouts {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: set leaderboard payout: %w", err)
		}
	}
	return nil
}
