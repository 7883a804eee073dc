package settle

import (
	"fmt"

	"github.com/betfolio/arena/internal/domain"
)

// ScoreBet converts a bet's picks and the round's resolved markets into a
// point total. A correct pick awards its entry odds (the payout multiplier
// locked at submission); a wrong pick awards zero. All arithmetic is in
// Ticks, so re-scoring identical inputs always reproduces the same total.
//
// Every market referenced by the bet's picks must be resolved; calling this
// earlier is a programming error and returns ErrUnresolvedMarket.
func ScoreBet(bet domain.Bet, resolved map[string]domain.Market) (Ticks, error) {
	var total Ticks
	for _, pick := range bet.Picks {
		m, ok := resolved[pick.MarketID]
		if !ok {
			return 0, fmt.Errorf("settle: bet %s pick references unknown market %s: %w",
				bet.ID, pick.MarketID, domain.ErrNotFound)
		}
		if !m.Resolved() {
			return 0, fmt.Errorf("settle: bet %s scored before market %s resolved: %w",
				bet.ID, m.ID, domain.ErrUnresolvedMarket)
		}
		if pick.Choice == *m.ResolvedOutcome {
			total += pick.EntryOdds
		}
	}
	return total, nil
}
