package settle

import "github.com/betfolio/arena/internal/domain"

// payoutBps is the pool split by finishing position, in basis points:
// 50% / 30% / 20% to the top three positions.
var payoutBps = []int64{5000, 3000, 2000}

// DistributePool splits a contest's prize pool across ranked leaderboard
// entries and returns the payout per bet id. Every ranked entry appears in
// the result (possibly with a zero amount), so PAID leaderboards always carry
// a non-negative payout on every row.
//
// Entries tied at a paid position share the combined allocation of the
// positions they span, divided equally with floor rounding; the tick
// remainder goes to the entry with the better tie-break order. With a single
// entry the whole pool is paid to rank 1. Total distributed never exceeds
// the pool.
func DistributePool(entries []domain.LeaderboardEntry, pool Ticks) map[string]Ticks {
	payouts := make(map[string]Ticks, len(entries))
	if len(entries) == 0 || pool <= 0 {
		for _, e := range entries {
			payouts[e.BetID] = 0
		}
		return payouts
	}

	if len(entries) == 1 {
		payouts[entries[0].BetID] = pool
		return payouts
	}

	for i := 0; i < len(entries); {
		// Collect the tied group sharing this rank.
		j := i + 1
		for j < len(entries) && entries[j].Rank == entries[i].Rank {
			j++
		}

		var groupBps int64
		for pos := i; pos < j && pos < len(payoutBps); pos++ {
			groupBps += payoutBps[pos]
		}

		group := entries[i:j]
		amount := pool.MulBps(groupBps)
		per := amount / Ticks(len(group))
		remainder := amount - per*Ticks(len(group))

		for k, e := range group {
			p := per
			if k == 0 {
				p += remainder
			}
			payouts[e.BetID] = p
		}
		i = j
	}

	return payouts
}
