package domain

import "time"

// MarketStatus represents the lifecycle state of a single market.
type MarketStatus string

const (
	MarketStatusUpcoming MarketStatus = "upcoming"
	MarketStatusOpen     MarketStatus = "open"
	MarketStatusLocked   MarketStatus = "locked"
	MarketStatusResolved MarketStatus = "resolved"
)

// Outcome is the resolved direction of a market: YES means the asset's price
// finished above its start price.
type Outcome string

const (
	OutcomeYes Outcome = "YES"
	OutcomeNo  Outcome = "NO"
)

// Valid reports whether o is one of the two recognised outcomes.
func (o Outcome) Valid() bool {
	return o == OutcomeYes || o == OutcomeNo
}

// Market is one asset's up/down proposition within a round. EndPrice and
// ResolvedOutcome are set together, exactly once, at or after EndTime, and
// never change thereafter.
type Market struct {
	ID              string       `json:"id"`
	RoundID         string       `json:"roundId"`
	Asset           string       `json:"asset"`
	StartTime       time.Time    `json:"startTime"`
	EndTime         time.Time    `json:"endTime"`
	DurationSeconds int          `json:"durationSeconds"`
	StartPrice      Ticks        `json:"startPrice"`
	EndPrice        *Ticks       `json:"endPrice"`
	YesOdds         Ticks        `json:"yesOdds"`
	NoOdds          Ticks        `json:"noOdds"`
	Status          MarketStatus `json:"status"`
	ResolvedOutcome *Outcome     `json:"resolvedOutcome"`
	CreatedAt       time.Time    `json:"-"`
	UpdatedAt       time.Time    `json:"-"`
}

// Resolved reports whether the market has a final outcome.
func (m Market) Resolved() bool {
	return m.ResolvedOutcome != nil && m.EndPrice != nil
}

// OddsFor returns the odds locked for the given choice.
func (m Market) OddsFor(choice Outcome) Ticks {
	if choice == OutcomeYes {
		return m.YesOdds
	}
	return m.NoOdds
}
