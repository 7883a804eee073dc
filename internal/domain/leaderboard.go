package domain

// UserIdentity is the display identity attached to a leaderboard entry. The
// engine only ever sees the authenticated user id and wallet address; no
// credential material crosses this boundary.
type UserIdentity struct {
	ID            string  `json:"id,omitempty"`
	WalletAddress string  `json:"walletAddress,omitempty"`
	Email         *string `json:"email,omitempty"`
}

// LeaderboardEntry is a per-bet, per-round ranking snapshot. Ranks are
// append-only: once published for a resolved round they never change, which
// makes entries safe to cache. Payout is populated only once the owning
// contest reaches PAID.
type LeaderboardEntry struct {
	BetID       string       `json:"betId"`
	RoundID     string       `json:"roundId"`
	RoundNumber int          `json:"roundNumber"`
	Rank        int          `json:"rank"`
	TotalPoints Ticks        `json:"totalPoints"`
	Payout      *Ticks       `json:"payout"`
	User        UserIdentity `json:"user"`
}
