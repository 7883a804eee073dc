package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrRateLimited       = errors.New("rate limited")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrRoundNotOpen      = errors.New("round is not open for bets")
	ErrIncompletePicks   = errors.New("picks must cover every market in the round")
	ErrDuplicateBet      = errors.New("user already holds a bet for this round")
	ErrUnresolvedMarket  = errors.New("market has no resolved outcome")
	ErrAlreadyResolved   = errors.New("market already resolved")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrDepositTimeout    = errors.New("deposit confirmation timed out")
	ErrPriceUnavailable  = errors.New("price feed unavailable")
	ErrLockHeld          = errors.New("lock already held")
	ErrLeaderboardFrozen = errors.New("leaderboard already published")
)

// FundingAmbiguityError is the most severe funding failure: the on-chain
// escrow deposit succeeded but the backend failed to durably record the bet.
// It must never be auto-retried (retrying could double-charge the wallet);
// the transaction hash is surfaced for manual reconciliation.
type FundingAmbiguityError struct {
	TxHash  string
	Wallet  string
	RoundID string
	Err     error
}

func (e *FundingAmbiguityError) Error() string {
	return fmt.Sprintf("funding ambiguity: deposit tx %s confirmed on-chain but bet record failed: %v", e.TxHash, e.Err)
}

func (e *FundingAmbiguityError) Unwrap() error {
	return e.Err
}
