package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// ContestFilter narrows contest list queries.
type ContestFilter struct {
	Status   ContestStatus
	Category ContestCategory
}

// ContestStore persists contests.
type ContestStore interface {
	Create(ctx context.Context, c Contest) error
	GetByID(ctx context.Context, id string) (Contest, error)
	List(ctx context.Context, filter ContestFilter, opts ListOpts) ([]Contest, error)
	Count(ctx context.Context, filter ContestFilter) (int64, error)
	// UpdateStatus performs a compare-and-set transition. It returns
	// ErrInvalidTransition when the stored status is not `from`, which keeps
	// the lifecycle monotonic even under concurrent advancers.
	UpdateStatus(ctx context.Context, id string, from, to ContestStatus) error
	ListByStatus(ctx context.Context, status ContestStatus) ([]Contest, error)
}

// RoundStore persists rounds.
type RoundStore interface {
	CreateBatch(ctx context.Context, rounds []Round) error
	GetByID(ctx context.Context, id string) (Round, error)
	ListByContest(ctx context.Context, contestID string) ([]Round, error)
	ListByStatus(ctx context.Context, status RoundStatus) ([]Round, error)
	UpdateStatus(ctx context.Context, id string, from, to RoundStatus) error
	IncrementParticipants(ctx context.Context, id string) error
}

// MarketStore persists markets.
type MarketStore interface {
	CreateBatch(ctx context.Context, markets []Market) error
	GetByID(ctx context.Context, id string) (Market, error)
	ListByRound(ctx context.Context, roundID string) ([]Market, error)
	UpdateStatus(ctx context.Context, id string, from, to MarketStatus) error
	// Resolve writes endPrice and resolvedOutcome atomically, only when the
	// market is still unresolved. Resolving an already-resolved market is a
	// no-op (returns nil) so duplicate resolution attempts stay idempotent.
	Resolve(ctx context.Context, id string, endPrice Ticks, outcome Outcome) error
}

// BetStore persists bets and their picks. Bets are append-only history.
type BetStore interface {
	// Create inserts the bet and all its picks in one transaction. It returns
	// ErrDuplicateBet when the user already holds a bet for the round.
	Create(ctx context.Context, bet Bet) error
	// HasBet reports whether the user already holds a bet for the round.
	// On-chain placements probe this before spending gas; Create's unique
	// constraint backstops the race.
	HasBet(ctx context.Context, userID, roundID string) (bool, error)
	GetByID(ctx context.Context, id string) (Bet, error)
	ListByUser(ctx context.Context, userID string, opts ListOpts) ([]Bet, error)
	CountByUser(ctx context.Context, userID string) (int64, error)
	ListByRound(ctx context.Context, roundID string) ([]Bet, error)
	// ListByDepositStatus returns bets whose deposit sits in the given
	// status, oldest first. The deposit reconciliation sweep drains it.
	ListByDepositStatus(ctx context.Context, status DepositStatus) ([]Bet, error)
	UpdateDepositStatus(ctx context.Context, id string, from, to DepositStatus) error
	SetScore(ctx context.Context, betID string, score Score) error
	AttachPayout(ctx context.Context, betID string, payout Payout) error
}

// LeaderboardStore persists published ranking snapshots.
type LeaderboardStore interface {
	// Publish inserts the entries for a round. Publishing a round that
	// already has entries returns ErrLeaderboardFrozen: ranks never change
	// after first publication.
	Publish(ctx context.Context, roundID string, entries []LeaderboardEntry) error
	Published(ctx context.Context, roundID string) (bool, error)
	ListByRound(ctx context.Context, roundID string) ([]LeaderboardEntry, error)
	ListByContest(ctx context.Context, contestID string, opts ListOpts) ([]LeaderboardEntry, error)
	CountByContest(ctx context.Context, contestID string) (int64, error)
	// SetPayouts fills the payout column for the given bet entries. Ranks and
	// points are untouched.
	SetPayouts(ctx context.Context, payouts map[string]Ticks) error
}

// User is an authenticated bettor known to the platform.
type User struct {
	ID            string    `json:"id"`
	WalletAddress string    `json:"walletAddress,omitempty"`
	Email         *string   `json:"email,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// UserStore persists user identities surfaced by the identity provider.
type UserStore interface {
	Upsert(ctx context.Context, u User) error
	GetByID(ctx context.Context, id string) (User, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log. Funding ambiguities, payout
// distributions, and manual reconciliations all leave a row here.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
