// Package service contains the engine's application services: contest
// lifecycle, bet intake, deposit tracking, price sampling, and settlement.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/betfolio/arena/internal/domain"
)

// ContestService serves contest reads and advances contest and round
// lifecycle on wall-clock boundaries. Status is always re-read at call time;
// nothing is decided from a stale snapshot.
type ContestService struct {
	contests domain.ContestStore
	rounds   domain.RoundStore
	markets  domain.MarketStore
	boards   domain.LeaderboardStore
	cache    domain.LeaderboardCache
	prices   domain.PriceCache
	bus      domain.SignalBus
	tickDur  time.Duration
	logger   *slog.Logger
}

// NewContestService creates a ContestService. tickInterval is how often the
// lifecycle advancer re-checks wall-clock boundaries.
func NewContestService(
	contests domain.ContestStore,
	rounds domain.RoundStore,
	markets domain.MarketStore,
	boards domain.LeaderboardStore,
	cache domain.LeaderboardCache,
	prices domain.PriceCache,
	bus domain.SignalBus,
	tickInterval time.Duration,
	logger *slog.Logger,
) *ContestService {
	if tickInterval <= 0 {
		tickInterval = 5 * time.Second
	}
	return &ContestService{
		contests: contests,
		rounds:   rounds,
		markets:  markets,
		boards:   boards,
		cache:    cache,
		prices:   prices,
		bus:      bus,
		tickDur:  tickInterval,
		logger:   logger.With(slog.String("component", "contest_service")),
	}
}

// ContestSpec describes a contest to provision.
type ContestSpec struct {
	Category           domain.ContestCategory
	Name               string
	Description        string
	EntryFee           domain.Ticks
	StartTime          time.Time
	RoundCount         int
	RoundDuration      time.Duration
	Assets             []string
	YesOdds            domain.Ticks
	NoOdds             domain.Ticks
	EscrowContractAddr string
	EscrowContestID    int64
}

// Provision creates a contest with its full schedule of rounds and markets.
// Market start prices are stamped from the latest sampled prices, so the
// price feed must be warm before provisioning.
func (s *ContestService) Provision(ctx context.Context, spec ContestSpec) (domain.Contest, error) {
	if spec.RoundCount <= 0 {
		return domain.Contest{}, fmt.Errorf("contest_service: round count must be positive")
	}
	if len(spec.Assets) == 0 {
		return domain.Contest{}, fmt.Errorf("contest_service: at least one asset is required")
	}
	if spec.EntryFee <= 0 {
		return domain.Contest{}, fmt.Errorf("contest_service: entry fee must be positive")
	}

	startPrices, err := s.prices.GetPrices(ctx, spec.Assets)
	if err != nil {
		return domain.Contest{}, fmt.Errorf("contest_service: read start prices: %w", err)
	}
	for _, asset := range spec.Assets {
		if _, ok := startPrices[asset]; !ok {
			return domain.Contest{}, fmt.Errorf("contest_service: %w: no sampled price for %s", domain.ErrPriceUnavailable, asset)
		}
	}

	contest := domain.Contest{
		ID:                   uuid.New().String(),
		Category:             spec.Category,
		Name:                 spec.Name,
		Description:          spec.Description,
		EntryFee:             spec.EntryFee,
		RoundDurationSeconds: int(spec.RoundDuration / time.Second),
		StartTime:            spec.StartTime,
		EndTime:              spec.StartTime.Add(time.Duration(spec.RoundCount) * spec.RoundDuration),
		Status:               domain.ContestStatusUpcoming,
		EscrowContractAddr:   spec.EscrowContractAddr,
		EscrowContestID:      spec.EscrowContestID,
	}
	if err := s.contests.Create(ctx, contest); err != nil {
		return domain.Contest{}, fmt.Errorf("contest_service: create contest: %w", err)
	}

	rounds := make([]domain.Round, 0, spec.RoundCount)
	var markets []domain.Market
	for i := 0; i < spec.RoundCount; i++ {
		roundStart := spec.StartTime.Add(time.Duration(i) * spec.RoundDuration)
		round := domain.Round{
			ID:          uuid.New().String(),
			ContestID:   contest.ID,
			RoundNumber: i + 1,
			StartTime:   roundStart,
			EndTime:     roundStart.Add(spec.RoundDuration),
			Status:      domain.RoundStatusUpcoming,
		}
		rounds = append(rounds, round)

		for _, asset := range spec.Assets {
			markets = append(markets, domain.Market{
				ID:              uuid.New().String(),
				RoundID:         round.ID,
				Asset:           asset,
				StartTime:       round.StartTime,
				EndTime:         round.EndTime,
				DurationSeconds: int(spec.RoundDuration / time.Second),
				StartPrice:      startPrices[asset],
				YesOdds:         spec.YesOdds,
				NoOdds:          spec.NoOdds,
				Status:          domain.MarketStatusUpcoming,
			})
		}
	}

	if err := s.rounds.CreateBatch(ctx, rounds); err != nil {
		return domain.Contest{}, fmt.Errorf("contest_service: create rounds: %w", err)
	}
	if err := s.markets.CreateBatch(ctx, markets); err != nil {
		return domain.Contest{}, fmt.Errorf("contest_service: create markets: %w", err)
	}

	s.logger.InfoContext(ctx, "contest provisioned",
		slog.String("contest_id", contest.ID),
		slog.String("category", string(contest.Category)),
		slog.Int("rounds", len(rounds)),
		slog.Int("markets", len(markets)),
	)
	return contest, nil
}

// List returns a page of contests plus the total count for pagination meta.
func (s *ContestService) List(ctx context.Context, filter domain.ContestFilter, page, limit int) ([]domain.Contest, int64, error) {
	if limit <= 0 {
		limit = 20
	}
	if page <= 0 {
		page = 1
	}
	opts := domain.ListOpts{Limit: limit, Offset: (page - 1) * limit}

	contests, err := s.contests.List(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("contest_service: list: %w", err)
	}
	total, err := s.contests.Count(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("contest_service: count: %w", err)
	}
	return contests, total, nil
}

// Get returns one contest with its rounds and nested markets.
func (s *ContestService) Get(ctx context.Context, id string) (domain.ContestDetail, error) {
	contest, err := s.contests.GetByID(ctx, id)
	if err != nil {
		return domain.ContestDetail{}, fmt.Errorf("contest_service: get %s: %w", id, err)
	}

	rounds, err := s.rounds.ListByContest(ctx, id)
	if err != nil {
		return domain.ContestDetail{}, fmt.Errorf("contest_service: rounds of %s: %w", id, err)
	}
	for i := range rounds {
		markets, err := s.markets.ListByRound(ctx, rounds[i].ID)
		if err != nil {
			return domain.ContestDetail{}, fmt.Errorf("contest_service: markets of round %s: %w", rounds[i].ID, err)
		}
		rounds[i].Markets = markets
	}

	return domain.ContestDetail{Contest: contest, Rounds: rounds}, nil
}

// Leaderboard returns a page of published entries for a contest. Payout
// figures are only present once the contest is PAID.
func (s *ContestService) Leaderboard(ctx context.Context, contestID string, page, limit int) ([]domain.LeaderboardEntry, int64, error) {
	if limit <= 0 {
		limit = 50
	}
	if page <= 0 {
		page = 1
	}

	if _, err := s.contests.GetByID(ctx, contestID); err != nil {
		return nil, 0, fmt.Errorf("contest_service: leaderboard contest %s: %w", contestID, err)
	}

	opts := domain.ListOpts{Limit: limit, Offset: (page - 1) * limit}
	entries, err := s.boards.ListByContest(ctx, contestID, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("contest_service: leaderboard of %s: %w", contestID, err)
	}
	total, err := s.boards.CountByContest(ctx, contestID)
	if err != nil {
		return nil, 0, fmt.Errorf("contest_service: leaderboard count of %s: %w", contestID, err)
	}
	return entries, total, nil
}

// RoundLeaderboard returns one round's published entries, served from the
// cache when warm. Published entries are immutable, so cache hits are always
// consistent.
func (s *ContestService) RoundLeaderboard(ctx context.Context, roundID string) ([]domain.LeaderboardEntry, error) {
	if entries, err := s.cache.GetRound(ctx, roundID); err == nil {
		return entries, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		s.logger.WarnContext(ctx, "leaderboard cache read failed",
			slog.String("round_id", roundID),
			slog.String("error", err.Error()),
		)
	}

	entries, err := s.boards.ListByRound(ctx, roundID)
	if err != nil {
		return nil, fmt.Errorf("contest_service: leaderboard of round %s: %w", roundID, err)
	}
	if len(entries) > 0 {
		if err := s.cache.SetRound(ctx, roundID, entries); err != nil {
			s.logger.WarnContext(ctx, "leaderboard cache write failed",
				slog.String("round_id", roundID),
				slog.String("error", err.Error()),
			)
		}
	}
	return entries, nil
}

// Run advances lifecycle on wall-clock boundaries until ctx is cancelled.
// Call in a goroutine.
func (s *ContestService) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.tickDur)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.Advance(ctx, time.Now().UTC()); err != nil {
				s.logger.ErrorContext(ctx, "lifecycle advance failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Advance moves contests and rounds across any wall-clock boundary that has
// passed. Transitions use compare-and-set updates, so a concurrent advancer
// is harmless: one of the two writes wins and the other sees
// ErrInvalidTransition, which is swallowed here.
func (s *ContestService) Advance(ctx context.Context, now time.Time) error {
	if err := s.advanceContests(ctx, now); err != nil {
		return err
	}
	return s.advanceRounds(ctx, now)
}

func (s *ContestService) advanceContests(ctx context.Context, now time.Time) error {
	upcoming, err := s.contests.ListByStatus(ctx, domain.ContestStatusUpcoming)
	if err != nil {
		return fmt.Errorf("contest_service: list upcoming: %w", err)
	}
	for _, c := range upcoming {
		if now.Before(c.StartTime) {
			continue
		}
		if err := s.transitionContest(ctx, c.ID, domain.ContestStatusUpcoming, domain.ContestStatusActive); err != nil {
			return err
		}
	}

	active, err := s.contests.ListByStatus(ctx, domain.ContestStatusActive)
	if err != nil {
		return fmt.Errorf("contest_service: list active: %w", err)
	}
	for _, c := range active {
		if now.Before(c.EndTime) {
			continue
		}
		if err := s.transitionContest(ctx, c.ID, domain.ContestStatusActive, domain.ContestStatusSettling); err != nil {
			return err
		}
	}
	return nil
}

func (s *ContestService) advanceRounds(ctx context.Context, now time.Time) error {
	upcoming, err := s.rounds.ListByStatus(ctx, domain.RoundStatusUpcoming)
	if err != nil {
		return fmt.Errorf("contest_service: list upcoming rounds: %w", err)
	}
	for _, r := range upcoming {
		if now.Before(r.StartTime) {
			continue
		}
		// A round only opens once its contest is taking bets.
		contest, err := s.contests.GetByID(ctx, r.ContestID)
		if err != nil {
			return fmt.Errorf("contest_service: contest of round %s: %w", r.ID, err)
		}
		if contest.Status != domain.ContestStatusActive {
			continue
		}
		if err := s.transitionRound(ctx, r, domain.RoundStatusUpcoming, domain.RoundStatusOpen); err != nil {
			return err
		}
	}

	open, err := s.rounds.ListByStatus(ctx, domain.RoundStatusOpen)
	if err != nil {
		return fmt.Errorf("contest_service: list open rounds: %w", err)
	}
	for _, r := range open {
		if now.Before(r.EndTime) {
			continue
		}
		if err := s.transitionRound(ctx, r, domain.RoundStatusOpen, domain.RoundStatusLocked); err != nil {
			return err
		}
	}
	return nil
}

func (s *ContestService) transitionContest(ctx context.Context, id string, from, to domain.ContestStatus) error {
	err := s.contests.UpdateStatus(ctx, id, from, to)
	if errors.Is(err, domain.ErrInvalidTransition) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("contest_service: contest %s %s->%s: %w", id, from, to, err)
	}
	s.logger.InfoContext(ctx, "contest transitioned",
		slog.String("contest_id", id),
		slog.String("from", string(from)),
		slog.String("to", string(to)),
	)
	s.publishEvent(ctx, "contests", map[string]any{
		"event":      "contest_status",
		"contest_id": id,
		"status":     string(to),
	})
	return nil
}

func (s *ContestService) transitionRound(ctx context.Context, r domain.Round, from, to domain.RoundStatus) error {
	err := s.rounds.UpdateStatus(ctx, r.ID, from, to)
	if errors.Is(err, domain.ErrInvalidTransition) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("contest_service: round %s %s->%s: %w", r.ID, from, to, err)
	}

	// Markets track their round.
	marketFrom, marketTo := domain.MarketStatusUpcoming, domain.MarketStatusOpen
	if to == domain.RoundStatusLocked {
		marketFrom, marketTo = domain.MarketStatusOpen, domain.MarketStatusLocked
	}
	markets, err := s.markets.ListByRound(ctx, r.ID)
	if err != nil {
		return fmt.Errorf("contest_service: markets of round %s: %w", r.ID, err)
	}
	for _, m := range markets {
		if err := s.markets.UpdateStatus(ctx, m.ID, marketFrom, marketTo); err != nil && !errors.Is(err, domain.ErrInvalidTransition) {
			return fmt.Errorf("contest_service: market %s %s->%s: %w", m.ID, marketFrom, marketTo, err)
		}
	}

	s.logger.InfoContext(ctx, "round transitioned",
		slog.String("round_id", r.ID),
		slog.String("contest_id", r.ContestID),
		slog.String("from", string(from)),
		slog.String("to", string(to)),
	)
	s.publishEvent(ctx, "contests", map[string]any{
		"event":      "round_status",
		"round_id":   r.ID,
		"contest_id": r.ContestID,
		"status":     string(to),
	})
	return nil
}

func (s *ContestService) publishEvent(ctx context.Context, channel string, fields map[string]any) {
	if s.bus == nil {
		return
	}
	payload, _ := json.Marshal(fields)
	if err := s.bus.Publish(ctx, channel, payload); err != nil {
		s.logger.WarnContext(ctx, "event publish failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}
