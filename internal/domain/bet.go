package domain

import "time"

// DepositStatus tracks the funding state of a bet's entry fee.
type DepositStatus string

const (
	DepositPending   DepositStatus = "PENDING"
	DepositConfirmed DepositStatus = "CONFIRMED"
	DepositRefunded  DepositStatus = "REFUNDED"
	// DepositTimeout means the confirmation watch gave up within its wall-clock
	// budget. It is resumable: a later watch may still move the deposit to
	// CONFIRMED or REFUNDED.
	DepositTimeout DepositStatus = "TIMEOUT"
)

// Terminal reports whether the deposit has reached a final state. Re-polling
// a terminal deposit is a no-op; TIMEOUT is explicitly not terminal.
func (s DepositStatus) Terminal() bool {
	return s == DepositConfirmed || s == DepositRefunded
}

// Pick is one user's YES/NO choice on one market. EntryOdds is stamped with
// the odds in effect at submission and is never recomputed afterwards: the
// payout multiplier for a correct call is the odds observed at entry.
type Pick struct {
	ID        string  `json:"id"`
	BetID     string  `json:"-"`
	MarketID  string  `json:"marketId"`
	Choice    Outcome `json:"choice"`
	EntryOdds Ticks   `json:"entryOdds"`
}

// Score is the computed result for a bet once its round resolves.
type Score struct {
	TotalPoints Ticks `json:"totalPoints"`
	Rank        int   `json:"rank"`
}

// PayoutStatus tracks an individual payout transfer.
type PayoutStatus string

const (
	PayoutPending PayoutStatus = "PENDING"
	PayoutSent    PayoutStatus = "SENT"
)

// Payout is a reward transfer attached to a bet once its contest is PAID.
type Payout struct {
	Amount       Ticks        `json:"amount"`
	PayoutTxHash *string      `json:"payoutTxHash"`
	Status       PayoutStatus `json:"status"`
}

// Bet is one user's full set of picks for one round, plus funding state. Bets
// are append-only history: they are never deleted, only transitioned. A bet's
// picks must cover every market in its round exactly once, and a user may
// hold at most one bet per round.
type Bet struct {
	ID            string        `json:"id"`
	UserID        string        `json:"userId"`
	WalletAddress string        `json:"walletAddress,omitempty"`
	RoundID       string        `json:"roundId"`
	TotalEntryFee Ticks         `json:"totalEntryFee"`
	DepositTxHash *string       `json:"depositTxHash"`
	DepositStatus DepositStatus `json:"depositStatus"`
	SubmittedAt   time.Time     `json:"submittedAt"`
	Picks         []Pick        `json:"picks"`
	Score         *Score        `json:"score,omitempty"`
	Payouts       []Payout      `json:"payouts,omitempty"`
}

// Void reports whether the bet is excluded from scoring and leaderboards.
// A refunded deposit voids the bet; the user may retry with a fresh one.
func (b Bet) Void() bool {
	return b.DepositStatus == DepositRefunded
}

// PickFor returns the pick placed on the given market, if any.
func (b Bet) PickFor(marketID string) (Pick, bool) {
	for _, p := range b.Picks {
		if p.MarketID == marketID {
			return p, true
		}
	}
	return Pick{}, false
}
