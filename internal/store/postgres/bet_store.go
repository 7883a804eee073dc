package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/betfolio/arena/internal/domain"
)

// BetStore implements domain.BetStore using PostgreSQL.
type BetStore struct {
	pool *pgxpool.Pool
}

// NewBetStore creates a new BetStore backed by the given connection pool.
func NewBetStore(pool *pgxpool.Pool) *BetStore {
	return &BetStore{pool: pool}
}

const betCols = `id, user_id, wallet_address, round_id, total_entry_fee,
	deposit_tx_hash, deposit_status, submitted_at, total_points, rank`

// uniqueViolation is the PostgreSQL error code for a unique constraint hit.
const uniqueViolation = "23505"

// Create inserts the bet and all its picks in one transaction. A second bet
// by the same user on the same round returns ErrDuplicateBet.
func (s *BetStore) Create(ctx context.Context, bet domain.Bet) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin create bet: %w", err)
	}
	defer tx.Rollback(ctx)

	const betQuery = `
		INSERT INTO bets (
			id, user_id, wallet_address, round_id, total_entry_fee,
			deposit_tx_hash, deposit_status, submitted_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err = tx.Exec(ctx, betQuery,
		bet.ID, bet.UserID, bet.WalletAddress, bet.RoundID,
		int64(bet.TotalEntryFee), bet.DepositTxHash,
		string(bet.DepositStatus), bet.SubmittedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrDuplicateBet
		}
		return fmt.Errorf("postgres: insert bet %s: %w", bet.ID, err)
	}

	const pickQuery = `
		INSERT INTO picks (id, bet_id, market_id, choice, entry_odds)
		VALUES ($1, $2, $3, $4, $5)`

	for _, p := range bet.Picks {
		if _, err := tx.Exec(ctx, pickQuery,
			p.ID, bet.ID, p.MarketID, string(p.Choice), int64(p.EntryOdds),
		); err != nil {
			return fmt.Errorf("postgres: insert pick for market %s: %w", p.MarketID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit create bet %s: %w", bet.ID, err)
	}
	return nil
}

// HasBet reports whether the user already holds a bet for the round.
func (s *BetStore) HasBet(ctx context.Context, userID, roundID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM bets WHERE user_id = $1 AND round_id = $2)`,
		userID, roundID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: check bet for user %s round %s: %w", userID, roundID, err)
	}
	return exists, nil
}

// scanBet scans a single bet row into a domain.Bet, without picks or payouts.
func scanBet(row pgx.Row) (domain.Bet, error) {
	var b domain.Bet
	var depositStatus string
	var points *int64
	var rank *int
	err := row.Scan(
		&b.ID, &b.UserID, &b.WalletAddress, &b.RoundID, &b.TotalEntryFee,
		&b.DepositTxHash, &depositStatus, &b.SubmittedAt,
		&points, &rank,
	)
	if err != nil {
		return domain.Bet{}, err
	}
	b.DepositStatus = domain.DepositStatus(depositStatus)
	if points != nil && rank != nil {
		b.Score = &domain.Score{TotalPoints: domain.Ticks(*points), Rank: *rank}
	}
	return b, nil
}

// GetByID retrieves a bet with its picks and payouts.
func (s *BetStore) GetByID(ctx context.Context, id string) (domain.Bet, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+betCols+` FROM bets WHERE id = $1`, id)
	b, err := scanBet(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Bet{}, domain.ErrNotFound
		}
		return domain.Bet{}, fmt.Errorf("postgres: get bet %s: %w", id, err)
	}

	if err := s.loadPicks(ctx, []*domain.Bet{&b}); err != nil {
		return domain.Bet{}, err
	}
	if err := s.loadPayouts(ctx, &b); err != nil {
		return domain.Bet{}, err
	}
	return b, nil
}

// ListByUser returns the user's bets newest first, picks included.
func (s *BetStore) ListByUser(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Bet, error) {
	query := `SELECT ` + betCols + ` FROM bets WHERE user_id = $1 ORDER BY submitted_at DESC`
	args := []any{userID}
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
		return nil, fmt.Errorf("postgres: list bets for user %s: %w", userID, err)
	}
	defer rows.Close()

	bets, err := collectBets(rows)
	if err != nil {
		return nil, err
	}
	if err := s.loadPicksForAll(ctx, bets); err != nil {
		return nil, err
	}
	return bets, nil
}

// CountByUser returns the total number of the user's bets.
func (s *BetStore) CountByUser(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM bets WHERE user_id = $1`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count bets for user %s: %w", userID, err)
	}
	return count, nil
}

// ListByRound returns every bet placed on a round, picks included.
func (s *BetStore) ListByRound(ctx context.Context, roundID string) ([]domain.Bet, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+betCols+` FROM bets WHERE round_id = $1 ORDER BY submitted_at, id`, roundID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bets for round %s: %w", roundID, err)
	}
	defer rows.Close()

	bets, err := collectBets(rows)
	if err != nil {
		return nil, err
	}
	if err := s.loadPicksForAll(ctx, bets); err != nil {
		return nil, err
	}
	return bets, nil
}

// ListByDepositStatus returns bets in the given deposit status, oldest first.
// Picks are not loaded; the reconciliation sweep only needs the deposit
// columns.
func (s *BetStore) ListByDepositStatus(ctx context.Context, status domain.DepositStatus) ([]domain.Bet, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+betCols+` FROM bets WHERE deposit_status = $1 ORDER BY submitted_at, id`, status)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bets with deposit status %s: %w", status, err)
	}
	defer rows.Close()
	return collectBets(rows)
}

func collectBets(rows pgx.Rows) ([]domain.Bet, error) {
	var bets []domain.Bet
	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan bet: %w", err)
		}
		bets = append(bets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: bet rows: %w", err)
	}
	return bets, nil
}

func (s *BetStore) loadPicksForAll(ctx context.Context, bets []domain.Bet) error {
	ptrs := make([]*domain.Bet, len(bets))
	for i := range bets {
		ptrs[i] = &bets[i]
	}
	return s.loadPicks(ctx, ptrs)
}

// loadPicks fills the Picks slice of every given bet with a single query.
func (s *BetStore) loadPicks(ctx context.Context, bets []*domain.Bet) error {
	if len(bets) == 0 {
		return nil
	}
	byID := make(map[string]*domain.Bet, len(bets))
	ids := make([]string, 0, len(bets))
	for _, b := range bets {
		byID[b.ID] = b
		ids = append(ids, b.ID)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, bet_id, market_id, choice, entry_odds
		 FROM picks WHERE bet_id = ANY($1) ORDER BY market_id`, ids)
	if err != nil {
		return fmt.Errorf("postgres: load picks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p domain.Pick
		var choice string
		if err := rows.Scan(&p.ID, &p.BetID, &p.MarketID, &choice, &p.EntryOdds); err != nil {
			return fmt.Errorf("postgres: scan pick: %w", err)
		}
		p.Choice = domain.Outcome(choice)
		if b, ok := byID[p.BetID]; ok {
			b.Picks = append(b.Picks, p)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("postgres: pick rows: %w", err)
	}
	return nil
}

func (s *BetStore) loadPayouts(ctx context.Context, b *domain.Bet) error {
	rows, err := s.pool.Query(ctx,
		`SELECT amount_ticks, payout_tx_hash, status
		 FROM payouts WHERE bet_id = $1 ORDER BY id`, b.ID)
	if err != nil {
		return fmt.Errorf("postgres: load payouts for bet %s: %w", b.ID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var p domain.Payout
		var status string
		if err := rows.Scan(&p.Amount, &p.PayoutTxHash, &status); err != nil {
			return fmt.Errorf("postgres: scan payout: %w", err)
		}
		p.Status = domain.PayoutStatus(status)
		b.Payouts = append(b.Payouts, p)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("postgres: payout rows: %w", err)
	}
	return nil
}

// UpdateDepositStatus performs a compare-and-set deposit transition.
func (s *BetStore) UpdateDepositStatus(ctx context.Context, id string, from, to domain.DepositStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE bets SET deposit_status = $1 WHERE id = $2 AND deposit_status = $3`,
		string(to), id, string(from))
	if err != nil {
		return fmt.Errorf("postgres: update bet %s deposit status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInvalidTransition
	}
	return nil
}

// SetScore writes the computed points and rank for a settled bet.
func (s *BetStore) SetScore(ctx context.Context, betID string, score domain.Score) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE bets SET total_points = $1, rank = $2 WHERE id = $3`,
		int64(score.TotalPoints), score.Rank, betID)
	if err != nil {
		return fmt.Errorf("postgres: set score for bet %s: %w", betID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// AttachPayout records a payout transfer against a bet.
func (s *BetStore) AttachPayout(ctx context.Context, betID string, payout domain.Payout) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO payouts (bet_id, amount_ticks, payout_tx_hash, status)
		 VALUES ($1, $2, $3, $4)`,
		betID, int64(payout.Amount), payout.PayoutTxHash, string(payout.Status))
	if err != nil {
		return fmt.Errorf("postgres: attach payout to bet %s: %w", betID, err)
	}
	return nil
}
