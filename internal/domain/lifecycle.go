package domain

// Lifecycle transition tables. Every status enum in the system is a closed
// set with a linear, non-regressing order; transitions outside these tables
// are rejected with ErrInvalidTransition by the stores and services.

var contestNext = map[ContestStatus]ContestStatus{
	ContestStatusUpcoming: ContestStatusActive,
	ContestStatusActive:   ContestStatusSettling,
	ContestStatusSettling: ContestStatusResolved,
	ContestStatusResolved: ContestStatusPaid,
}

var roundNext = map[RoundStatus]RoundStatus{
	RoundStatusUpcoming: RoundStatusOpen,
	RoundStatusOpen:     RoundStatusLocked,
	RoundStatusLocked:   RoundStatusResolved,
}

var marketNext = map[MarketStatus]MarketStatus{
	MarketStatusUpcoming: MarketStatusOpen,
	MarketStatusOpen:     MarketStatusLocked,
	MarketStatusLocked:   MarketStatusResolved,
}

// Next returns the successor status, or false when s is terminal.
func (s ContestStatus) Next() (ContestStatus, bool) {
	n, ok := contestNext[s]
	return n, ok
}

// CanTransition reports whether moving from s to target is a single legal
// forward step.
func (s ContestStatus) CanTransition(target ContestStatus) bool {
	n, ok := contestNext[s]
	return ok && n == target
}

// Terminal reports whether the contest can advance no further. PAID is always
// terminal; RESOLVED is effectively terminal for contests that never pay out.
func (s ContestStatus) Terminal() bool {
	return s == ContestStatusPaid
}

// AcceptsBets reports whether bet creation is permitted at this status.
func (s ContestStatus) AcceptsBets() bool {
	return s == ContestStatusActive
}

// CanScore reports whether scoring work may run at this status. Scoring
// before SETTLING is a programming error, not a recoverable condition.
func (s ContestStatus) CanScore() bool {
	return s == ContestStatusSettling || s == ContestStatusResolved || s == ContestStatusPaid
}

// PayoutsVisible reports whether leaderboard payout fields may be populated.
func (s ContestStatus) PayoutsVisible() bool {
	return s == ContestStatusPaid
}

// Next returns the successor status, or false when s is terminal.
func (s RoundStatus) Next() (RoundStatus, bool) {
	n, ok := roundNext[s]
	return n, ok
}

// CanTransition reports whether moving from s to target is a single legal
// forward step.
func (s RoundStatus) CanTransition(target RoundStatus) bool {
	n, ok := roundNext[s]
	return ok && n == target
}

// AcceptsBets reports whether bet creation is permitted while the round is at
// this status.
func (s RoundStatus) AcceptsBets() bool {
	return s == RoundStatusOpen
}

// CanScore reports whether scoring may run for a round at this status.
func (s RoundStatus) CanScore() bool {
	return s == RoundStatusLocked || s == RoundStatusResolved
}

// Next returns the successor status, or false when s is terminal.
func (s MarketStatus) Next() (MarketStatus, bool) {
	n, ok := marketNext[s]
	return n, ok
}

// CanTransition reports whether moving from s to target is a single legal
// forward step.
func (s MarketStatus) CanTransition(target MarketStatus) bool {
	n, ok := marketNext[s]
	return ok && n == target
}
