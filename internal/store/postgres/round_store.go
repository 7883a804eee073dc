package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/betfolio/arena/internal/domain"
)

// RoundStore implements domain.RoundStore using PostgreSQL.
type RoundStore struct {
	pool *pgxpool.Pool
}

// NewRoundStore creates a new RoundStore backed by the given connection pool.
func NewRoundStore(pool *pgxpool.Pool) *RoundStore {
	return &RoundStore{pool: pool}
}

const roundCols = `id, contest_id, round_number, start_time, end_time, status,
	participant_count, created_at, updated_at`

// CreateBatch inserts multiple rounds in a single batch operation. Markets
// nested on the rounds are not inserted here; use MarketStore.CreateBatch.
func (s *RoundStore) CreateBatch(ctx context.Context, rounds []domain.Round) error {
	if len(rounds) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO rounds (
			id, contest_id, round_number, start_time, end_time, status,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())`

	for _, r := range rounds {
		batch.Queue(query,
			r.ID, r.ContestID, r.RoundNumber,
			r.StartTime, r.EndTime, string(r.Status),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range rounds {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: create round batch item %d: %w", i, err)
		}
	}
	return nil
}

// scanRound scans a single round row into a domain.Round.
func scanRound(row pgx.Row) (domain.Round, error) {
	var r domain.Round
	var status string
	err := row.Scan(
		&r.ID, &r.ContestID, &r.RoundNumber,
		&r.StartTime, &r.EndTime, &status,
		&r.ParticipantCount, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return domain.Round{}, err
	}
	r.Status = domain.RoundStatus(status)
	return r, nil
}

// GetByID retrieves a round by its primary key.
func (s *RoundStore) GetByID(ctx context.Context, id string) (domain.Round, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+roundCols+` FROM rounds WHERE id = $1`, id)
	r, err := scanRound(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Round{}, domain.ErrNotFound
		}
		return domain.Round{}, fmt.Errorf("postgres: get round %s: %w", id, err)
	}
	return r, nil
}

// ListByContest returns the rounds of a contest ordered by round number.
func (s *RoundStore) ListByContest(ctx context.Context, contestID string) ([]domain.Round, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+roundCols+` FROM rounds WHERE contest_id = $1 ORDER BY round_number`,
		contestID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list rounds for contest %s: %w", contestID, err)
	}
	defer rows.Close()
	return collectRounds(rows)
}

// ListByStatus returns every round currently in the given status, earliest
// end time first so settlement picks up the most overdue round first.
func (s *RoundStore) ListByStatus(ctx context.Context, status domain.RoundStatus) ([]domain.Round, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+roundCols+` FROM rounds WHERE status = $1 ORDER BY end_time`,
		string(status))
	if err != nil {
		return nil, fmt.Errorf("postgres: list rounds by status %s: %w", status, err)
	}
	defer rows.Close()
	return collectRounds(rows)
}

func collectRounds(rows pgx.Rows) ([]domain.Round, error) {
	var rounds []domain.Round
	for rows.Next() {
		r, err := scanRound(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan round: %w", err)
		}
		rounds = append(rounds, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: round rows: %w", err)
	}
	return rounds, nil
}

// UpdateStatus performs a compare-and-set status transition.
func (s *RoundStore) UpdateStatus(ctx context.Context, id string, from, to domain.RoundStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE rounds SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`,
		string(to), id, string(from))
	if err != nil {
		return fmt.Errorf("postgres: update round %s status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInvalidTransition
	}
	return nil
}

// IncrementParticipants bumps the round's participant counter by one.
func (s *RoundStore) IncrementParticipants(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE rounds SET participant_count = participant_count + 1, updated_at = NOW() WHERE id = $1`,
		id)
	if err != nil {
		return fmt.Errorf("postgres: increment participants for round %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
