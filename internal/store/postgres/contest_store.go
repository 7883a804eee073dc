package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/betfolio/arena/internal/domain"
)

// ContestStore implements domain.ContestStore using PostgreSQL.
type ContestStore struct {
	pool *pgxpool.Pool
}

// NewContestStore creates a new ContestStore backed by the given connection pool.
func NewContestStore(pool *pgxpool.Pool) *ContestStore {
	return &ContestStore{pool: pool}
}

const contestCols = `c.id, c.category, c.name, c.description, c.entry_fee_ticks,
	c.round_duration_seconds, c.start_time, c.end_time, c.status,
	c.escrow_contract_addr, c.escrow_contest_id, c.created_at, c.updated_at,
	(SELECT COUNT(DISTINCT b.user_id) FROM bets b
		JOIN rounds r ON r.id = b.round_id
		WHERE r.contest_id = c.id AND b.deposit_status <> 'REFUNDED'),
	(SELECT COUNT(*) FROM rounds r WHERE r.contest_id = c.id)`

// Create inserts a new contest.
func (s *ContestStore) Create(ctx context.Context, c domain.Contest) error {
	const query = `
		INSERT INTO contests (
			id, category, name, description, entry_fee_ticks,
			round_duration_seconds, start_time, end_time, status,
			escrow_contract_addr, escrow_contest_id, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, $11, NOW(), NOW()
		)`

	_, err := s.pool.Exec(ctx, query,
		c.ID, string(c.Category), c.Name, c.Description, int64(c.EntryFee),
		c.RoundDurationSeconds, c.StartTime, c.EndTime, string(c.Status),
		c.EscrowContractAddr, c.EscrowContestID,
	)
	if err != nil {
		return fmt.Errorf("postgres: create contest %s: %w", c.ID, err)
	}
	return nil
}

// scanContest scans a single contest row into a domain.Contest.
func scanContest(row pgx.Row) (domain.Contest, error) {
	var c domain.Contest
	var category, status string
	err := row.Scan(
		&c.ID, &category, &c.Name, &c.Description, &c.EntryFee,
		&c.RoundDurationSeconds, &c.StartTime, &c.EndTime, &status,
		&c.EscrowContractAddr, &c.EscrowContestID, &c.CreatedAt, &c.UpdatedAt,
		&c.ParticipantCount, &c.RoundCount,
	)
	if err != nil {
		return domain.Contest{}, err
	}
	c.Category = domain.ContestCategory(category)
	c.Status = domain.ContestStatus(status)
	return c, nil
}

// GetByID retrieves a contest by its primary key.
func (s *ContestStore) GetByID(ctx context.Context, id string) (domain.Contest, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+contestCols+` FROM contests c WHERE c.id = $1`, id)
	c, err := scanContest(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Contest{}, domain.ErrNotFound
		}
		return domain.Contest{}, fmt.Errorf("postgres: get contest %s: %w", id, err)
	}
	return c, nil
}

// contestWhere builds the WHERE clause for a filter, returning the clause
// fragment, the bound args, and the next positional index.
func contestWhere(filter domain.ContestFilter) (string, []any, int) {
	clause := ""
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		clause += fmt.Sprintf(" AND c.status = $%d", argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.Category != "" {
		clause += fmt.Sprintf(" AND c.category = $%d", argIdx)
		args = append(args, string(filter.Category))
		argIdx++
	}
	return clause, args, argIdx
}

// List returns contests matching the filter with pagination, newest start
// time first.
func (s *ContestStore) List(ctx context.Context, filter domain.ContestFilter, opts domain.ListOpts) ([]domain.Contest, error) {
	clause, args, argIdx := contestWhere(filter)
	query := `SELECT ` + contestCols + ` FROM contests c WHERE true` + clause
	query += " ORDER BY c.start_time DESC"

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
		return nil, fmt.Errorf("postgres: list contests: %w", err)
	}
	defer rows.Close()

	var contests []domain.Contest
	for rows.Next() {
		c, err := scanContest(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan contest: %w", err)
		}
		contests = append(contests, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list contests rows: %w", err)
	}
	return contests, nil
}

// Count returns the number of contests matching the filter.
func (s *ContestStore) Count(ctx context.Context, filter domain.ContestFilter) (int64, error) {
	clause, args, _ := contestWhere(filter)
	var count int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM contests c WHERE true`+clause, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count contests: %w", err)
	}
	return count, nil
}

// UpdateStatus performs a compare-and-set status transition.
func (s *ContestStore) UpdateStatus(ctx context.Context, id string, from, to domain.ContestStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE contests SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`,
		string(to), id, string(from))
	if err != nil {
		return fmt.Errorf("postgres: update contest %s status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInvalidTransition
	}
	return nil
}

// ListByStatus returns every contest currently in the given status, oldest
// start time first.
func (s *ContestStore) ListByStatus(ctx context.Context, status domain.ContestStatus) ([]domain.Contest, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+contestCols+` FROM contests c WHERE c.status = $1 ORDER BY c.start_time`,
		string(status))
	if err != nil {
		return nil, fmt.Errorf("postgres: list contests by status %s: %w", status, err)
	}
	defer rows.Close()

	var contests []domain.Contest
	for rows.Next() {
		c, err := scanContest(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan contest: %w", err)
		}
		contests = append(contests, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list contests by status rows: %w", err)
	}
	return contests, nil
}
