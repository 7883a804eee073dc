// Package settle implements the pure settlement core: market resolution,
// bet scoring, leaderboard construction, and payout distribution. Nothing in
// this package performs I/O or owns a timer; the service layer schedules
// these operations and persists their results.
package settle

import (
	"fmt"
	"time"

	"github.com/betfolio/arena/internal/domain"
)

// Resolution is the frozen outcome of a market.
type Resolution struct {
	EndPrice Ticks
	Outcome  domain.Outcome
}

// Ticks aliases the domain fixed-point type for brevity inside this package.
type Ticks = domain.Ticks

// ResolveMarket computes the final outcome for a market from the price
// sampled at its end time. The rule is strict: YES iff the end price is
// greater than the start price; an unchanged price resolves NO (the price
// did not rise).
//
// Resolution is idempotent: calling it for an already-resolved market with
// the same end price returns the stored resolution and no error, while a
// conflicting end price is rejected. Resolution is final.
func ResolveMarket(m domain.Market, priceAtEnd Ticks, now time.Time) (Resolution, error) {
	if now.Before(m.EndTime) {
		return Resolution{}, fmt.Errorf("settle: market %s ends at %s: %w",
			m.ID, m.EndTime.Format(time.RFC3339), domain.ErrInvalidTransition)
	}

	if m.Resolved() {
		if *m.EndPrice != priceAtEnd {
			return Resolution{}, fmt.Errorf("settle: market %s already resolved at %s, got conflicting price %s: %w",
				m.ID, m.EndPrice.String(), priceAtEnd.String(), domain.ErrAlreadyResolved)
		}
		return Resolution{EndPrice: *m.EndPrice, Outcome: *m.ResolvedOutcome}, nil
	}

	outcome := domain.OutcomeNo
	if priceAtEnd > m.StartPrice {
		outcome = domain.OutcomeYes
	}

	return Resolution{EndPrice: priceAtEnd, Outcome: outcome}, nil
}
