package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/betfolio/arena/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

const marketCols = `id, round_id, asset, start_time, end_time, duration_seconds,
	start_price, end_price, yes_odds, no_odds, status, resolved_outcome,
	created_at, updated_at`

// CreateBatch inserts multiple markets in a single batch operation.
func (s *MarketStore) CreateBatch(ctx context.Context, markets []domain.Market) error {
	if len(markets) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO markets (
			id, round_id, asset, start_time, end_time, duration_seconds,
			start_price, yes_odds, no_odds, status, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, NOW(), NOW()
		)`

	for _, m := range markets {
		batch.Queue(query,
			m.ID, m.RoundID, m.Asset,
			m.StartTime, m.EndTime, m.DurationSeconds,
			int64(m.StartPrice), int64(m.YesOdds), int64(m.NoOdds),
			string(m.Status),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range markets {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: create market batch item %d: %w", i, err)
		}
	}
	return nil
}

// scanMarket scans a single market row into a domain.Market.
func scanMarket(row pgx.Row) (domain.Market, error) {
	var m domain.Market
	var status string
	var endPrice *int64
	var outcome *string
	err := row.Scan(
		&m.ID, &m.RoundID, &m.Asset,
		&m.StartTime, &m.EndTime, &m.DurationSeconds,
		&m.StartPrice, &endPrice,
		&m.YesOdds, &m.NoOdds,
		&status, &outcome,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return domain.Market{}, err
	}
	m.Status = domain.MarketStatus(status)
	if endPrice != nil {
		p := domain.Ticks(*endPrice)
		m.EndPrice = &p
	}
	if outcome != nil {
		o := domain.Outcome(*outcome)
		m.ResolvedOutcome = &o
	}
	return m, nil
}

// GetByID retrieves a market by its primary key.
func (s *MarketStore) GetByID(ctx context.Context, id string) (domain.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketCols+` FROM markets WHERE id = $1`, id)
	m, err := scanMarket(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", id, err)
	}
	return m, nil
}

// ListByRound returns the markets of a round ordered by asset.
func (s *MarketStore) ListByRound(ctx context.Context, roundID string) ([]domain.Market, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+marketCols+` FROM markets WHERE round_id = $1 ORDER BY asset`, roundID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets for round %s: %w", roundID, err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list markets rows: %w", err)
	}
	return markets, nil
}

// UpdateStatus performs a compare-and-set status transition.
func (s *MarketStore) UpdateStatus(ctx context.Context, id string, from, to domain.MarketStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE markets SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`,
		string(to), id, string(from))
	if err != nil {
		return fmt.Errorf("postgres: update market %s status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInvalidTransition
	}
	return nil
}

// Resolve writes the end price and outcome, only when the market is still
// unresolved. Re-resolving is a no-op so concurrent settlers stay idempotent.
func (s *MarketStore) Resolve(ctx context.Context, id string, endPrice domain.Ticks, outcome domain.Outcome) error {
	const query = `
		UPDATE markets SET
			end_price        = $1,
			resolved_outcome = $2,
			status           = 'resolved',
			updated_at       = NOW()
		WHERE id = $3 AND resolved_outcome IS NULL`

	_, err := s.pool.Exec(ctx, query, int64(endPrice), string(outcome), id)
	if err != nil {
		return fmt.Errorf("postgres: resolve market %s: %w", id, err)
	}
	return nil
}
