package settle

import (
	"sort"

	"github.com/betfolio/arena/internal/domain"
)

// ScoredBet pairs a bet with its computed point total for ranking.
type ScoredBet struct {
	Bet         domain.Bet
	TotalPoints Ticks
	RoundNumber int
	User        domain.UserIdentity
}

// BuildLeaderboard ranks the given scored bets and returns ordered
// leaderboard entries. Refunded bets are excluded before ranking.
//
// Order is fully deterministic: points descending, then submission time
// ascending (earlier submission wins ties), then bet id ascending as the
// final fallback. Ranks use standard competition ranking: bets with equal
// points share a rank, and the next distinct score skips the tied positions
// (1, 2, 2, 4). Re-running on an unchanged bet set yields identical output.
//
// Zero entries yield an empty (non-nil) slice; a single entry gets rank 1.
func BuildLeaderboard(scored []ScoredBet) []domain.LeaderboardEntry {
	valid := make([]ScoredBet, 0, len(scored))
	for _, s := range scored {
		if s.Bet.Void() {
			continue
		}
		valid = append(valid, s)
	}

	sort.Slice(valid, func(i, j int) bool {
		a, b := valid[i], valid[j]
		if a.TotalPoints != b.TotalPoints {
			return a.TotalPoints > b.TotalPoints
		}
		if !a.Bet.SubmittedAt.Equal(b.Bet.SubmittedAt) {
			return a.Bet.SubmittedAt.Before(b.Bet.SubmittedAt)
		}
		return a.Bet.ID < b.Bet.ID
	})

	entries := make([]domain.LeaderboardEntry, 0, len(valid))
	for i, s := range valid {
		rank := i + 1
		// Standard competition ranking: share the rank of the first bet with
		// the same point total.
		if i > 0 && s.TotalPoints == valid[i-1].TotalPoints {
			rank = entries[i-1].Rank
		}
		entries = append(entries, domain.LeaderboardEntry{
			BetID:       s.Bet.ID,
			RoundID:     s.Bet.RoundID,
			RoundNumber: s.RoundNumber,
			Rank:        rank,
			TotalPoints: s.TotalPoints,
			User:        s.User,
		})
	}
	return entries
}
