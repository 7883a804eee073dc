package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betfolio/arena/internal/domain"
)

type contestFixture struct {
	svc      *ContestService
	contests *memContestStore
	rounds   *memRoundStore
	markets  *memMarketStore
	boards   *memLeaderboardStore
	cache    *memLeaderboardCache
	prices   *memPriceCache
	bus      *memBus
}

func newContestFixture(t *testing.T) *contestFixture {
	t.Helper()
	f := &contestFixture{
		contests: newMemContestStore(),
		rounds:   newMemRoundStore(),
		markets:  newMemMarketStore(),
		boards:   newMemLeaderboardStore(),
		cache:    newMemLeaderboardCache(),
		prices:   newMemPriceCache(),
		bus:      newMemBus(),
	}
	f.svc = NewContestService(
		f.contests, f.rounds, f.markets, f.boards,
		f.cache, f.prices, f.bus, time.Second, testLogger(),
	)
	return f
}

func (f *contestFixture) warmPrices(t *testing.T, assets ...string) {
	t.Helper()
	for i, asset := range assets {
		price := domain.Ticks(int64(1000+i) * domain.TickScale)
		require.NoError(t, f.prices.SetPrice(context.Background(), asset, price, time.Now()))
	}
}

func baseSpec(start time.Time) ContestSpec {
	return ContestSpec{
		Category:      domain.CategoryFifteenMinutes,
		Name:          "HYPE Sprint",
		EntryFee:      2 * domain.TickScale,
		StartTime:     start,
		RoundCount:    3,
		RoundDuration: 15 * time.Minute,
		Assets:        []string{"BTC", "ETH"},
		YesOdds:       18000,
		NoOdds:        21000,
	}
}

func TestProvisionBuildsFullSchedule(t *testing.T) {
	f := newContestFixture(t)
	ctx := context.Background()
	f.warmPrices(t, "BTC", "ETH")

	start := time.Now().UTC().Add(time.Hour).Truncate(time.Second)
	contest, err := f.svc.Provision(ctx, baseSpec(start))
	require.NoError(t, err)

	assert.Equal(t, domain.ContestStatusUpcoming, contest.Status)
	assert.Equal(t, start, contest.StartTime)
	assert.Equal(t, start.Add(45*time.Minute), contest.EndTime)
	assert.Equal(t, 15*60, contest.RoundDurationSeconds)

	rounds, err := f.rounds.ListByContest(ctx, contest.ID)
	require.NoError(t, err)
	require.Len(t, rounds, 3)
	for i, r := range rounds {
		assert.Equal(t, i+1, r.RoundNumber)
		assert.Equal(t, start.Add(time.Duration(i)*15*time.Minute), r.StartTime)
		assert.Equal(t, r.StartTime.Add(15*time.Minute), r.EndTime)
		assert.Equal(t, domain.RoundStatusUpcoming, r.Status)

		markets, err := f.markets.ListByRound(ctx, r.ID)
		require.NoError(t, err)
		require.Len(t, markets, 2)
		for _, m := range markets {
			assert.Equal(t, r.StartTime, m.StartTime)
			assert.Equal(t, domain.MarketStatusUpcoming, m.Status)
			assert.NotZero(t, m.StartPrice)
			assert.Equal(t, domain.Ticks(18000), m.YesOdds)
		}
	}
}

func TestProvisionRequiresWarmPrices(t *testing.T) {
	f := newContestFixture(t)
	f.warmPrices(t, "BTC") // ETH missing

	_, err := f.svc.Provision(context.Background(), baseSpec(time.Now().UTC()))
	require.ErrorIs(t, err, domain.ErrPriceUnavailable)
}

func TestProvisionValidatesSpec(t *testing.T) {
	f := newContestFixture(t)
	f.warmPrices(t, "BTC", "ETH")
	now := time.Now().UTC()

	spec := baseSpec(now)
	spec.RoundCount = 0
	_, err := f.svc.Provision(context.Background(), spec)
	require.Error(t, err)

	spec = baseSpec(now)
	spec.Assets = nil
	_, err = f.svc.Provision(context.Background(), spec)
	require.Error(t, err)

	spec = baseSpec(now)
	spec.EntryFee = 0
	_, err = f.svc.Provision(context.Background(), spec)
	require.Error(t, err)
}

func TestAdvanceWalksLifecycle(t *testing.T) {
	f := newContestFixture(t)
	ctx := context.Background()
	f.warmPrices(t, "BTC", "ETH")

	start := time.Now().UTC()
	spec := baseSpec(start)
	spec.RoundCount = 2
	contest, err := f.svc.Provision(ctx, spec)
	require.NoError(t, err)

	rounds, err := f.rounds.ListByContest(ctx, contest.ID)
	require.NoError(t, err)

	// At the start boundary the contest activates and round 1 opens.
	require.NoError(t, f.svc.Advance(ctx, start))

	got, err := f.contests.GetByID(ctx, contest.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ContestStatusActive, got.Status)

	r1, err := f.rounds.GetByID(ctx, rounds[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoundStatusOpen, r1.Status)

	markets, err := f.markets.ListByRound(ctx, r1.ID)
	require.NoError(t, err)
	for _, m := range markets {
		assert.Equal(t, domain.MarketStatusOpen, m.Status)
	}

	r2, err := f.rounds.GetByID(ctx, rounds[1].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoundStatusUpcoming, r2.Status)

	// Past round 1's end: it locks, and round 2 opens.
	require.NoError(t, f.svc.Advance(ctx, start.Add(15*time.Minute)))

	r1, err = f.rounds.GetByID(ctx, rounds[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoundStatusLocked, r1.Status)

	markets, err = f.markets.ListByRound(ctx, r1.ID)
	require.NoError(t, err)
	for _, m := range markets {
		assert.Equal(t, domain.MarketStatusLocked, m.Status)
	}

	r2, err = f.rounds.GetByID(ctx, rounds[1].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoundStatusOpen, r2.Status)

	// Past the contest end: it moves to SETTLING and stops taking bets.
	require.NoError(t, f.svc.Advance(ctx, contest.EndTime))

	got, err = f.contests.GetByID(ctx, contest.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ContestStatusSettling, got.Status)
	assert.False(t, got.Status.AcceptsBets())
}

func TestRoundLeaderboardPrefersCache(t *testing.T) {
	f := newContestFixture(t)
	ctx := context.Background()

	cached := []domain.LeaderboardEntry{{BetID: "bet-1", RoundID: "round-1", Rank: 1}}
	require.NoError(t, f.cache.SetRound(ctx, "round-1", cached))
	require.NoError(t, f.boards.Publish(ctx, "round-1", []domain.LeaderboardEntry{
		{BetID: "bet-stale", RoundID: "round-1", Rank: 1},
	}))

	entries, err := f.svc.RoundLeaderboard(ctx, "round-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "bet-1", entries[0].BetID)
}

func TestRoundLeaderboardFallsBackToStore(t *testing.T) {
	f := newContestFixture(t)
	ctx := context.Background()

	require.NoError(t, f.boards.Publish(ctx, "round-1", []domain.LeaderboardEntry{
		{BetID: "bet-1", RoundID: "round-1", Rank: 1},
	}))

	entries, err := f.svc.RoundLeaderboard(ctx, "round-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "bet-1", entries[0].BetID)
}
