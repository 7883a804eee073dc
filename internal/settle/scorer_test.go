package settle

import (
	"testing"

	"github.com/betfolio/arena/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resolvedMarket(id string, outcome domain.Outcome) domain.Market {
	end := domain.TicksFromFloat(101)
	return domain.Market{
		ID:              id,
		StartPrice:      domain.TicksFromFloat(100),
		EndPrice:        &end,
		ResolvedOutcome: &outcome,
		Status:          domain.MarketStatusResolved,
	}
}

func mustTicks(t *testing.T, s string) Ticks {
	t.Helper()
	v, err := domain.ParseTicks(s)
	require.NoError(t, err)
	return v
}

func TestScoreBet_SumsOddsOfCorrectPicks(t *testing.T) {
	resolved := map[string]domain.Market{
		"m1": resolvedMarket("m1", domain.OutcomeYes),
		"m2": resolvedMarket("m2", domain.OutcomeNo),
	}
	bet := domain.Bet{
		ID: "bet-1",
		Picks: []domain.Pick{
			{MarketID: "m1", Choice: domain.OutcomeYes, EntryOdds: mustTicks(t, "1.8500")},
			{MarketID: "m2", Choice: domain.OutcomeNo, EntryOdds: mustTicks(t, "2.1000")},
		},
	}

	total, err := ScoreBet(bet, resolved)
	require.NoError(t, err)
	assert.Equal(t, "3.9500", total.String())
}

func TestScoreBet_WrongPickAwardsZero(t *testing.T) {
	resolved := map[string]domain.Market{
		"m1": resolvedMarket("m1", domain.OutcomeYes),
		"m2": resolvedMarket("m2", domain.OutcomeNo),
	}
	bet := domain.Bet{
		ID: "bet-1",
		Picks: []domain.Pick{
			{MarketID: "m1", Choice: domain.OutcomeNo, EntryOdds: mustTicks(t, "1.8500")},
			{MarketID: "m2", Choice: domain.OutcomeNo, EntryOdds: mustTicks(t, "2.1000")},
		},
	}

	total, err := ScoreBet(bet, resolved)
	require.NoError(t, err)
	assert.Equal(t, "2.1000", total.String())
}

func TestScoreBet_AllWrongIsZero(t *testing.T) {
	resolved := map[string]domain.Market{
		"m1": resolvedMarket("m1", domain.OutcomeYes),
	}
	bet := domain.Bet{
		ID:    "bet-1",
		Picks: []domain.Pick{{MarketID: "m1", Choice: domain.OutcomeNo, EntryOdds: mustTicks(t, "9.9999")}},
	}

	total, err := ScoreBet(bet, resolved)
	require.NoError(t, err)
	assert.Equal(t, Ticks(0), total)
}

func TestScoreBet_Deterministic(t *testing.T) {
	resolved := map[string]domain.Market{
		"m1": resolvedMarket("m1", domain.OutcomeYes),
		"m2": resolvedMarket("m2", domain.OutcomeYes),
		"m3": resolvedMarket("m3", domain.OutcomeNo),
	}
	bet := domain.Bet{
		ID: "bet-1",
		Picks: []domain.Pick{
			{MarketID: "m1", Choice: domain.OutcomeYes, EntryOdds: mustTicks(t, "1.0001")},
			{MarketID: "m2", Choice: domain.OutcomeYes, EntryOdds: mustTicks(t, "1.0002")},
			{MarketID: "m3", Choice: domain.OutcomeYes, EntryOdds: mustTicks(t, "3.5000")},
		},
	}

	first, err := ScoreBet(bet, resolved)
	require.NoError(t, err)
	second, err := ScoreBet(bet, resolved)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, "2.0003", first.String())
}

func TestScoreBet_UnresolvedMarketIsError(t *testing.T) {
	unresolved := domain.Market{ID: "m1", Status: domain.MarketStatusLocked}
	bet := domain.Bet{
		ID:    "bet-1",
		Picks: []domain.Pick{{MarketID: "m1", Choice: domain.OutcomeYes, EntryOdds: mustTicks(t, "1.5000")}},
	}

	_, err := ScoreBet(bet, map[string]domain.Market{"m1": unresolved})
	assert.ErrorIs(t, err, domain.ErrUnresolvedMarket)
}

func TestScoreBet_UnknownMarketIsError(t *testing.T) {
	bet := domain.Bet{
		ID:    "bet-1",
		Picks: []domain.Pick{{MarketID: "missing", Choice: domain.OutcomeYes, EntryOdds: mustTicks(t, "1.5000")}},
	}

	_, err := ScoreBet(bet, map[string]domain.Market{})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
