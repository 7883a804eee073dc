package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betfolio/arena/internal/domain"
)

type settlementFixture struct {
	svc      *SettlementService
	contests *memContestStore
	rounds   *memRoundStore
	markets  *memMarketStore
	bets     *memBetStore
	boards   *memLeaderboardStore
	users    *memUserStore
	cache    *memLeaderboardCache
	sampler  *fakeSampler
	locks    *memLockManager
	escrow   *fakeEscrow
	notifier *fakeNotifier
	bus      *memBus
	audit    *memAuditStore
	contest  domain.Contest
	round    domain.Round
	market   domain.Market
}

// newSettlementFixture seeds a SETTLING contest with one LOCKED round that
// ended in the past, a single BTC market, and three confirmed bets: alice and
// bob pick YES, carol picks NO. escrowAddr != "" makes the contest on-chain.
func newSettlementFixture(t *testing.T, escrowAddr string) *settlementFixture {
	t.Helper()
	ctx := context.Background()
	f := &settlementFixture{
		contests: newMemContestStore(),
		rounds:   newMemRoundStore(),
		markets:  newMemMarketStore(),
		bets:     newMemBetStore(),
		boards:   newMemLeaderboardStore(),
		users:    newMemUserStore(),
		cache:    newMemLeaderboardCache(),
		sampler:  &fakeSampler{prices: map[string]domain.Ticks{}},
		locks:    newMemLockManager(),
		escrow:   newFakeEscrow(),
		notifier: &fakeNotifier{},
		bus:      newMemBus(),
		audit:    &memAuditStore{},
	}

	now := time.Now().UTC()
	f.contest = domain.Contest{
		ID:                 "contest-1",
		Category:           domain.CategoryFifteenMinutes,
		Name:               "HYPE Sprint",
		EntryFee:           2 * domain.TickScale,
		StartTime:          now.Add(-time.Hour),
		EndTime:            now.Add(-time.Minute),
		Status:             domain.ContestStatusSettling,
		EscrowContractAddr: escrowAddr,
		EscrowContestID:    7,
	}
	require.NoError(t, f.contests.Create(ctx, f.contest))

	f.round = domain.Round{
		ID:          "round-1",
		ContestID:   f.contest.ID,
		RoundNumber: 1,
		StartTime:   now.Add(-16 * time.Minute),
		EndTime:     now.Add(-time.Minute),
		Status:      domain.RoundStatusLocked,
	}
	require.NoError(t, f.rounds.CreateBatch(ctx, []domain.Round{f.round}))

	f.market = domain.Market{
		ID: "mkt-btc", RoundID: f.round.ID, Asset: "BTC",
		StartTime: f.round.StartTime, EndTime: f.round.EndTime,
		StartPrice: 65000 * domain.TickScale,
		YesOdds:    18000, NoOdds: 21000,
		Status: domain.MarketStatusLocked,
	}
	require.NoError(t, f.markets.CreateBatch(ctx, []domain.Market{f.market}))

	// Price rose: YES resolves, alice and bob score, carol does not.
	f.sampler.prices["BTC"] = 65100 * domain.TickScale

	base := now.Add(-15 * time.Minute)
	for i, name := range []string{"alice", "bob", "carol"} {
		choice := domain.OutcomeYes
		odds := f.market.YesOdds
		if name == "carol" {
			choice = domain.OutcomeNo
			odds = f.market.NoOdds
		}
		wallet := "0x" + name
		require.NoError(t, f.users.Upsert(ctx, domain.User{ID: name, WalletAddress: wallet}))
		require.NoError(t, f.bets.Create(ctx, domain.Bet{
			ID:            "bet-" + name,
			UserID:        name,
			WalletAddress: wallet,
			RoundID:       f.round.ID,
			TotalEntryFee: f.contest.EntryFee,
			DepositStatus: domain.DepositConfirmed,
			SubmittedAt:   base.Add(time.Duration(i) * time.Second),
			Picks: []domain.Pick{{
				ID: "pick-" + name, BetID: "bet-" + name,
				MarketID: f.market.ID, Choice: choice, EntryOdds: odds,
			}},
		}))
	}

	f.svc = NewSettlementService(SettlementDeps{
		Contests: f.contests,
		Rounds:   f.rounds,
		Markets:  f.markets,
		Bets:     f.bets,
		Boards:   f.boards,
		Users:    f.users,
		Cache:    f.cache,
		Sampler:  f.sampler,
		Locks:    f.locks,
		Escrow:   f.escrow,
		Notifier: f.notifier,
		Bus:      f.bus,
		Audit:    f.audit,
	}, 10*time.Millisecond, testLogger())
	return f
}

func TestSettleRoundPipeline(t *testing.T) {
	f := newSettlementFixture(t, "")
	ctx := context.Background()

	require.NoError(t, f.svc.SettleRound(ctx, f.round.ID))

	market, err := f.markets.GetByID(ctx, f.market.ID)
	require.NoError(t, err)
	require.NotNil(t, market.ResolvedOutcome)
	assert.Equal(t, domain.OutcomeYes, *market.ResolvedOutcome)
	require.NotNil(t, market.EndPrice)
	assert.Equal(t, domain.Ticks(65100*domain.TickScale), *market.EndPrice)

	round, err := f.rounds.GetByID(ctx, f.round.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoundStatusResolved, round.Status)

	entries, err := f.boards.ListByRound(ctx, f.round.ID)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	// alice and bob tie on YES odds; alice submitted first. carol scored
	// zero and ranks after the skipped tied position.
	assert.Equal(t, "bet-alice", entries[0].BetID)
	assert.Equal(t, 1, entries[0].Rank)
	assert.Equal(t, f.market.YesOdds, entries[0].TotalPoints)
	assert.Equal(t, "bet-bob", entries[1].BetID)
	assert.Equal(t, 1, entries[1].Rank)
	assert.Equal(t, "bet-carol", entries[2].BetID)
	assert.Equal(t, 3, entries[2].Rank)
	assert.Equal(t, domain.Ticks(0), entries[2].TotalPoints)
	assert.Equal(t, "0xalice", entries[0].User.WalletAddress)

	bet, err := f.bets.GetByID(ctx, "bet-carol")
	require.NoError(t, err)
	require.NotNil(t, bet.Score)
	assert.Equal(t, 3, bet.Score.Rank)

	cached, err := f.cache.GetRound(ctx, f.round.ID)
	require.NoError(t, err)
	assert.Len(t, cached, 3)

	assert.NotEmpty(t, f.bus.messages["settlement"])
	assert.NotEmpty(t, f.bus.messages["leaderboard"])
}

func TestSettleRoundSkipsRefundedBets(t *testing.T) {
	f := newSettlementFixture(t, "")
	ctx := context.Background()
	require.NoError(t, f.bets.UpdateDepositStatus(ctx, "bet-bob", domain.DepositConfirmed, domain.DepositRefunded))

	require.NoError(t, f.svc.SettleRound(ctx, f.round.ID))

	entries, err := f.boards.ListByRound(ctx, f.round.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "bet-alice", entries[0].BetID)
	assert.Equal(t, "bet-carol", entries[1].BetID)
}

func TestSettleRoundIsIdempotent(t *testing.T) {
	f := newSettlementFixture(t, "")
	ctx := context.Background()

	require.NoError(t, f.svc.SettleRound(ctx, f.round.ID))
	first, err := f.boards.ListByRound(ctx, f.round.ID)
	require.NoError(t, err)

	require.NoError(t, f.svc.SettleRound(ctx, f.round.ID))
	second, err := f.boards.ListByRound(ctx, f.round.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSettleRoundYieldsToLockHolder(t *testing.T) {
	f := newSettlementFixture(t, "")
	ctx := context.Background()

	unlock, err := f.locks.Acquire(ctx, "settle:round:"+f.round.ID, time.Minute)
	require.NoError(t, err)
	defer unlock()

	require.NoError(t, f.svc.SettleRound(ctx, f.round.ID))

	market, err := f.markets.GetByID(ctx, f.market.ID)
	require.NoError(t, err)
	assert.Nil(t, market.ResolvedOutcome)
}

func TestSettleRoundIgnoresOpenRound(t *testing.T) {
	f := newSettlementFixture(t, "")
	ctx := context.Background()

	round := f.round
	round.ID = "round-open"
	round.Status = domain.RoundStatusOpen
	require.NoError(t, f.rounds.CreateBatch(ctx, []domain.Round{round}))

	require.NoError(t, f.svc.SettleRound(ctx, round.ID))

	published, err := f.boards.Published(ctx, round.ID)
	require.NoError(t, err)
	assert.False(t, published)
}

func TestPayContestDistributesPool(t *testing.T) {
	f := newSettlementFixture(t, "0xescrow")
	ctx := context.Background()

	require.NoError(t, f.svc.SettleRound(ctx, f.round.ID))
	require.NoError(t, f.contests.UpdateStatus(ctx, f.contest.ID, domain.ContestStatusSettling, domain.ContestStatusResolved))

	require.NoError(t, f.svc.PayContest(ctx, f.contest.ID))

	contest, err := f.contests.GetByID(ctx, f.contest.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ContestStatusPaid, contest.Status)

	// Pool is entry fee times entries: 3 x 2 HYPE. Ranks 1, 1, 3 split
	// 50/30 percent between the tied leaders and 20 percent to third.
	pool := domain.Ticks(3) * f.contest.EntryFee
	assert.Equal(t, pool.MulBps(4000), f.escrow.transfers["0xalice"])
	assert.Equal(t, pool.MulBps(4000), f.escrow.transfers["0xbob"])
	assert.Equal(t, pool.MulBps(2000), f.escrow.transfers["0xcarol"])

	bet, err := f.bets.GetByID(ctx, "bet-alice")
	require.NoError(t, err)
	require.Len(t, bet.Payouts, 1)
	assert.Equal(t, domain.PayoutSent, bet.Payouts[0].Status)
	require.NotNil(t, bet.Payouts[0].PayoutTxHash)

	entries, err := f.boards.ListByRound(ctx, f.round.ID)
	require.NoError(t, err)
	require.NotNil(t, entries[0].Payout)
	assert.Equal(t, pool.MulBps(4000), *entries[0].Payout)

	assert.Contains(t, f.audit.events(), "contest.paid")
	assert.Contains(t, f.notifier.events, "contest_paid")
}

func TestPayContestRecordsZeroPayouts(t *testing.T) {
	f := newSettlementFixture(t, "0xescrow")
	ctx := context.Background()

	// A fourth correct pick means three tied leaders span every paying
	// position, leaving the last rank with a zero amount.
	require.NoError(t, f.users.Upsert(ctx, domain.User{ID: "dave", WalletAddress: "0xdave"}))
	require.NoError(t, f.bets.Create(ctx, domain.Bet{
		ID:            "bet-dave",
		UserID:        "dave",
		WalletAddress: "0xdave",
		RoundID:       f.round.ID,
		TotalEntryFee: f.contest.EntryFee,
		DepositStatus: domain.DepositConfirmed,
		SubmittedAt:   time.Now().UTC().Add(-10 * time.Minute),
		Picks: []domain.Pick{{
			ID: "pick-dave", BetID: "bet-dave",
			MarketID: f.market.ID, Choice: domain.OutcomeYes, EntryOdds: f.market.YesOdds,
		}},
	}))

	require.NoError(t, f.svc.SettleRound(ctx, f.round.ID))
	require.NoError(t, f.contests.UpdateStatus(ctx, f.contest.ID, domain.ContestStatusSettling, domain.ContestStatusResolved))
	require.NoError(t, f.svc.PayContest(ctx, f.contest.ID))

	entries, err := f.boards.ListByRound(ctx, f.round.ID)
	require.NoError(t, err)
	require.Len(t, entries, 4)

	// The losing entry still gets its payout recorded, as zero, so a PAID
	// contest never leaves a leaderboard row unresolved.
	last := entries[3]
	assert.Equal(t, "bet-carol", last.BetID)
	assert.Equal(t, 4, last.Rank)
	require.NotNil(t, last.Payout)
	assert.Equal(t, domain.Ticks(0), *last.Payout)

	// No transfer went out for the zero amount.
	assert.Zero(t, f.escrow.transfers["0xcarol"])
	bet, err := f.bets.GetByID(ctx, "bet-carol")
	require.NoError(t, err)
	assert.Empty(t, bet.Payouts)
}

func TestPayContestRemainderFavorsEarlierSubmission(t *testing.T) {
	f := newSettlementFixture(t, "0xescrow")
	ctx := context.Background()
	now := time.Now().UTC()

	// An odd pool: 2 entries x 7 ticks, of which the tied leaders share
	// floor(14 x 80%) = 11 ticks.
	contest := domain.Contest{
		ID:                 "contest-2",
		Category:           domain.CategoryFifteenMinutes,
		Name:               "Odd Pool",
		EntryFee:           7,
		StartTime:          now.Add(-time.Hour),
		EndTime:            now.Add(-time.Minute),
		Status:             domain.ContestStatusResolved,
		EscrowContractAddr: "0xescrow",
		EscrowContestID:    8,
	}
	require.NoError(t, f.contests.Create(ctx, contest))
	round := domain.Round{
		ID: "round-2", ContestID: contest.ID, RoundNumber: 1,
		StartTime: now.Add(-16 * time.Minute), EndTime: now.Add(-time.Minute),
		Status: domain.RoundStatusResolved,
	}
	require.NoError(t, f.rounds.CreateBatch(ctx, []domain.Round{round}))

	// zed submitted before amy but sorts after her by bet id.
	for _, b := range []struct {
		id, user string
		at       time.Time
	}{
		{"bet-z", "zed", now.Add(-10 * time.Minute)},
		{"bet-a", "amy", now.Add(-9 * time.Minute)},
	} {
		require.NoError(t, f.users.Upsert(ctx, domain.User{ID: b.user, WalletAddress: "0x" + b.user}))
		require.NoError(t, f.bets.Create(ctx, domain.Bet{
			ID: b.id, UserID: b.user, WalletAddress: "0x" + b.user,
			RoundID: round.ID, TotalEntryFee: contest.EntryFee,
			DepositStatus: domain.DepositConfirmed, SubmittedAt: b.at,
		}))
	}

	// Published in ranking order: equal points, earlier submission first.
	require.NoError(t, f.boards.Publish(ctx, round.ID, []domain.LeaderboardEntry{
		{BetID: "bet-z", RoundID: round.ID, RoundNumber: 1, Rank: 1, TotalPoints: 10,
			User: domain.UserIdentity{ID: "zed", WalletAddress: "0xzed"}},
		{BetID: "bet-a", RoundID: round.ID, RoundNumber: 1, Rank: 1, TotalPoints: 10,
			User: domain.UserIdentity{ID: "amy", WalletAddress: "0xamy"}},
	}))

	require.NoError(t, f.svc.PayContest(ctx, contest.ID))

	// The odd tick lands on the earlier submission, not the smaller bet id.
	assert.Equal(t, domain.Ticks(6), f.escrow.transfers["0xzed"])
	assert.Equal(t, domain.Ticks(5), f.escrow.transfers["0xamy"])
}

func TestPayContestIsIdempotent(t *testing.T) {
	f := newSettlementFixture(t, "0xescrow")
	ctx := context.Background()

	require.NoError(t, f.svc.SettleRound(ctx, f.round.ID))
	require.NoError(t, f.contests.UpdateStatus(ctx, f.contest.ID, domain.ContestStatusSettling, domain.ContestStatusResolved))

	require.NoError(t, f.svc.PayContest(ctx, f.contest.ID))
	paidOnce := f.escrow.transfers["0xalice"]

	require.NoError(t, f.svc.PayContest(ctx, f.contest.ID))
	assert.Equal(t, paidOnce, f.escrow.transfers["0xalice"])

	bet, err := f.bets.GetByID(ctx, "bet-alice")
	require.NoError(t, err)
	assert.Len(t, bet.Payouts, 1)
}

func TestFinalizeContestsSweepsSettledContest(t *testing.T) {
	f := newSettlementFixture(t, "")
	ctx := context.Background()

	require.NoError(t, f.svc.SettleRound(ctx, f.round.ID))
	require.NoError(t, f.svc.finalizeContests(ctx))

	contest, err := f.contests.GetByID(ctx, f.contest.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ContestStatusPaid, contest.Status)
}
