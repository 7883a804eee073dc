package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/betfolio/arena/internal/domain"
	"github.com/betfolio/arena/internal/settle"
)

// settleLockTTL bounds how long one settler may hold a round. Generous,
// because resolution may wait on price feed retries.
const settleLockTTL = 2 * time.Minute

// PriceSampler fetches a fresh settlement price for one asset.
type PriceSampler interface {
	SampleAt(ctx context.Context, asset string) (domain.Ticks, error)
}

// PayoutNotifier announces settled contests to external channels.
type PayoutNotifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// SettlementService runs the settlement pipeline: resolve markets, score
// bets, publish leaderboards, distribute payouts, archive. All mutation for a
// round happens under a distributed lock, so a second settler or a
// late-arriving bet can never interleave with scoring.
type SettlementService struct {
	contests domain.ContestStore
	rounds   domain.RoundStore
	markets  domain.MarketStore
	bets     domain.BetStore
	boards   domain.LeaderboardStore
	users    domain.UserStore
	cache    domain.LeaderboardCache
	sampler  PriceSampler
	locks    domain.LockManager
	escrow   domain.EscrowClient
	archiver domain.Archiver
	notifier PayoutNotifier
	bus      domain.SignalBus
	audit    domain.AuditStore
	pollDur  time.Duration
	logger   *slog.Logger
}

// SettlementDeps bundles the service's dependencies. escrow, archiver, and
// notifier may be nil; the corresponding steps degrade gracefully.
type SettlementDeps struct {
	Contests domain.ContestStore
	Rounds   domain.RoundStore
	Markets  domain.MarketStore
	Bets     domain.BetStore
	Boards   domain.LeaderboardStore
	Users    domain.UserStore
	Cache    domain.LeaderboardCache
	Sampler  PriceSampler
	Locks    domain.LockManager
	Escrow   domain.EscrowClient
	Archiver domain.Archiver
	Notifier PayoutNotifier
	Bus      domain.SignalBus
	Audit    domain.AuditStore
}

// NewSettlementService creates a SettlementService. pollInterval is how often
// the loop looks for due work.
func NewSettlementService(deps SettlementDeps, pollInterval time.Duration, logger *slog.Logger) *SettlementService {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	return &SettlementService{
		contests: deps.Contests,
		rounds:   deps.Rounds,
		markets:  deps.Markets,
		bets:     deps.Bets,
		boards:   deps.Boards,
		users:    deps.Users,
		cache:    deps.Cache,
		sampler:  deps.Sampler,
		locks:    deps.Locks,
		escrow:   deps.Escrow,
		archiver: deps.Archiver,
		notifier: deps.Notifier,
		bus:      deps.Bus,
		audit:    deps.Audit,
		pollDur:  pollInterval,
		logger:   logger.With(slog.String("component", "settlement_service")),
	}
}

// Run looks for due settlement work until ctx is cancelled. Call in a
// goroutine.
func (s *SettlementService) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.pollDur)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.settleDueRounds(ctx); err != nil {
				s.logger.ErrorContext(ctx, "round settlement sweep failed", slog.String("error", err.Error()))
			}
			if err := s.finalizeContests(ctx); err != nil {
				s.logger.ErrorContext(ctx, "contest finalize sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}

func (s *SettlementService) settleDueRounds(ctx context.Context) error {
	locked, err := s.rounds.ListByStatus(ctx, domain.RoundStatusLocked)
	if err != nil {
		return fmt.Errorf("settlement: list locked rounds: %w", err)
	}
	now := time.Now().UTC()
	for _, round := range locked {
		if now.Before(round.EndTime) {
			continue
		}
		if err := s.SettleRound(ctx, round.ID); err != nil {
			s.logger.ErrorContext(ctx, "round settlement failed",
				slog.String("round_id", round.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// SettleRound resolves every market in the round, scores its bets, and
// publishes the leaderboard. The whole pipeline runs under a per-round lock
// and every step is idempotent, so a crash mid-way is retried safely on the
// next sweep.
func (s *SettlementService) SettleRound(ctx context.Context, roundID string) error {
	unlock, err := s.locks.Acquire(ctx, "settle:round:"+roundID, settleLockTTL)
	if errors.Is(err, domain.ErrLockHeld) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("settlement: lock round %s: %w", roundID, err)
	}
	defer unlock()

	// Re-read under the lock; another settler may have finished already.
	round, err := s.rounds.GetByID(ctx, roundID)
	if err != nil {
		return fmt.Errorf("settlement: round %s: %w", roundID, err)
	}
	if !round.Status.CanScore() {
		return nil
	}
	if round.Status == domain.RoundStatusResolved {
		return nil
	}

	resolved, err := s.resolveMarkets(ctx, round)
	if err != nil {
		return err
	}

	entries, err := s.scoreRound(ctx, round, resolved)
	if err != nil {
		return err
	}

	if err := s.publishLeaderboard(ctx, round, entries); err != nil {
		return err
	}

	if err := s.rounds.UpdateStatus(ctx, round.ID, round.Status, domain.RoundStatusResolved); err != nil && !errors.Is(err, domain.ErrInvalidTransition) {
		return fmt.Errorf("settlement: round %s -> RESOLVED: %w", round.ID, err)
	}

	s.logger.InfoContext(ctx, "round settled",
		slog.String("round_id", round.ID),
		slog.String("contest_id", round.ContestID),
		slog.Int("entries", len(entries)),
	)
	s.publishEvent(ctx, "settlement", map[string]any{
		"event":      "round_settled",
		"round_id":   round.ID,
		"contest_id": round.ContestID,
	})
	return nil
}

// resolveMarkets fixes the outcome of every market in the round from freshly
// sampled prices, and returns the resolved set keyed by market id.
func (s *SettlementService) resolveMarkets(ctx context.Context, round domain.Round) (map[string]domain.Market, error) {
	markets, err := s.markets.ListByRound(ctx, round.ID)
	if err != nil {
		return nil, fmt.Errorf("settlement: markets of round %s: %w", round.ID, err)
	}

	now := time.Now().UTC()
	resolved := make(map[string]domain.Market, len(markets))
	for _, m := range markets {
		if m.Resolved() {
			resolved[m.ID] = m
			continue
		}

		price, err := s.sampler.SampleAt(ctx, m.Asset)
		if err != nil {
			return nil, fmt.Errorf("settlement: price for %s: %w", m.Asset, err)
		}

		res, err := settle.ResolveMarket(m, price, now)
		if err != nil {
			return nil, fmt.Errorf("settlement: resolve market %s: %w", m.ID, err)
		}

		if err := s.markets.Resolve(ctx, m.ID, res.EndPrice, res.Outcome); err != nil {
			return nil, fmt.Errorf("settlement: persist market %s: %w", m.ID, err)
		}

		m.EndPrice = &res.EndPrice
		outcome := res.Outcome
		m.ResolvedOutcome = &outcome
		m.Status = domain.MarketStatusResolved
		resolved[m.ID] = m

		s.logger.InfoContext(ctx, "market resolved",
			slog.String("market_id", m.ID),
			slog.String("asset", m.Asset),
			slog.String("outcome", string(res.Outcome)),
			slog.String("end_price", res.EndPrice.String()),
		)
	}
	return resolved, nil
}

// scoreRound computes points for every bet, persists scores with final
// ranks, and returns the ordered leaderboard entries.
func (s *SettlementService) scoreRound(ctx context.Context, round domain.Round, resolved map[string]domain.Market) ([]domain.LeaderboardEntry, error) {
	bets, err := s.bets.ListByRound(ctx, round.ID)
	if err != nil {
		return nil, fmt.Errorf("settlement: bets of round %s: %w", round.ID, err)
	}

	scored := make([]settle.ScoredBet, 0, len(bets))
	for _, bet := range bets {
		if bet.Void() {
			continue
		}
		points, err := settle.ScoreBet(bet, resolved)
		if err != nil {
			return nil, fmt.Errorf("settlement: score bet %s: %w", bet.ID, err)
		}

		identity := domain.UserIdentity{ID: bet.UserID, WalletAddress: bet.WalletAddress}
		if user, err := s.users.GetByID(ctx, bet.UserID); err == nil {
			identity.WalletAddress = user.WalletAddress
			identity.Email = user.Email
		}

		scored = append(scored, settle.ScoredBet{
			Bet:         bet,
			TotalPoints: points,
			RoundNumber: round.RoundNumber,
			User:        identity,
		})
	}

	entries := settle.BuildLeaderboard(scored)
	for _, e := range entries {
		score := domain.Score{TotalPoints: e.TotalPoints, Rank: e.Rank}
		if err := s.bets.SetScore(ctx, e.BetID, score); err != nil {
			return nil, fmt.Errorf("settlement: persist score for bet %s: %w", e.BetID, err)
		}
	}
	return entries, nil
}

// publishLeaderboard freezes the round's ranking. A leaderboard already
// published by an earlier attempt is left untouched.
func (s *SettlementService) publishLeaderboard(ctx context.Context, round domain.Round, entries []domain.LeaderboardEntry) error {
	err := s.boards.Publish(ctx, round.ID, entries)
	if errors.Is(err, domain.ErrLeaderboardFrozen) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("settlement: publish leaderboard of round %s: %w", round.ID, err)
	}

	if err := s.cache.SetRound(ctx, round.ID, entries); err != nil {
		s.logger.WarnContext(ctx, "leaderboard cache write failed",
			slog.String("round_id", round.ID),
			slog.String("error", err.Error()),
		)
	}
	s.publishEvent(ctx, "leaderboard", map[string]any{
		"event":      "leaderboard_published",
		"round_id":   round.ID,
		"contest_id": round.ContestID,
		"entries":    len(entries),
	})
	return nil
}

// finalizeContests advances SETTLING contests whose rounds have all resolved,
// then pays out RESOLVED contests.
func (s *SettlementService) finalizeContests(ctx context.Context) error {
	settling, err := s.contests.ListByStatus(ctx, domain.ContestStatusSettling)
	if err != nil {
		return fmt.Errorf("settlement: list settling contests: %w", err)
	}
	for _, contest := range settling {
		done, err := s.allRoundsResolved(ctx, contest.ID)
		if err != nil {
			return err
		}
		if !done {
			continue
		}
		if err := s.contests.UpdateStatus(ctx, contest.ID, domain.ContestStatusSettling, domain.ContestStatusResolved); err != nil && !errors.Is(err, domain.ErrInvalidTransition) {
			return fmt.Errorf("settlement: contest %s -> RESOLVED: %w", contest.ID, err)
		}
		s.publishEvent(ctx, "settlement", map[string]any{
			"event":      "contest_resolved",
			"contest_id": contest.ID,
		})
	}

	resolvedContests, err := s.contests.ListByStatus(ctx, domain.ContestStatusResolved)
	if err != nil {
		return fmt.Errorf("settlement: list resolved contests: %w", err)
	}
	for _, contest := range resolvedContests {
		if err := s.PayContest(ctx, contest.ID); err != nil {
			s.logger.ErrorContext(ctx, "contest payout failed",
				slog.String("contest_id", contest.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

func (s *SettlementService) allRoundsResolved(ctx context.Context, contestID string) (bool, error) {
	rounds, err := s.rounds.ListByContest(ctx, contestID)
	if err != nil {
		return false, fmt.Errorf("settlement: rounds of contest %s: %w", contestID, err)
	}
	for _, r := range rounds {
		if r.Status != domain.RoundStatusResolved {
			return false, nil
		}
	}
	return len(rounds) > 0, nil
}

// PayContest distributes each round's pool to its leaderboard, marks the
// contest PAID, archives the snapshot, and notifies. Runs under a per-contest
// lock; payout records double as the idempotency guard.
func (s *SettlementService) PayContest(ctx context.Context, contestID string) error {
	unlock, err := s.locks.Acquire(ctx, "pay:contest:"+contestID, settleLockTTL)
	if errors.Is(err, domain.ErrLockHeld) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("settlement: lock contest %s: %w", contestID, err)
	}
	defer unlock()

	contest, err := s.contests.GetByID(ctx, contestID)
	if err != nil {
		return fmt.Errorf("settlement: contest %s: %w", contestID, err)
	}
	if contest.Status != domain.ContestStatusResolved {
		return nil
	}

	rounds, err := s.rounds.ListByContest(ctx, contestID)
	if err != nil {
		return fmt.Errorf("settlement: rounds of contest %s: %w", contestID, err)
	}

	totalPaid := domain.Ticks(0)
	for _, round := range rounds {
		paid, err := s.payRound(ctx, contest, round)
		if err != nil {
			return err
		}
		totalPaid += paid
	}

	if err := s.contests.UpdateStatus(ctx, contestID, domain.ContestStatusResolved, domain.ContestStatusPaid); err != nil && !errors.Is(err, domain.ErrInvalidTransition) {
		return fmt.Errorf("settlement: contest %s -> PAID: %w", contestID, err)
	}

	if err := s.audit.Log(ctx, "contest.paid", map[string]any{
		"contest_id":  contestID,
		"total_ticks": int64(totalPaid),
	}); err != nil {
		s.logger.ErrorContext(ctx, "payout audit write failed",
			slog.String("contest_id", contestID),
			slog.String("error", err.Error()),
		)
	}

	if s.archiver != nil {
		path, err := s.archiver.ArchiveContest(ctx, contestID)
		if err != nil {
			s.logger.ErrorContext(ctx, "contest archive failed",
				slog.String("contest_id", contestID),
				slog.String("error", err.Error()),
			)
		} else {
			s.logger.InfoContext(ctx, "contest archived",
				slog.String("contest_id", contestID),
				slog.String("path", path),
			)
		}
	}

	if s.notifier != nil {
		title := fmt.Sprintf("Contest %s paid out", contest.Name)
		msg := fmt.Sprintf("Contest %s (%s) settled: %s HYPE distributed across %d rounds.",
			contest.Name, contest.ID, totalPaid, len(rounds))
		if err := s.notifier.Notify(ctx, "contest_paid", title, msg); err != nil {
			s.logger.WarnContext(ctx, "payout notification failed",
				slog.String("contest_id", contestID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.publishEvent(ctx, "settlement", map[string]any{
		"event":       "contest_paid",
		"contest_id":  contestID,
		"total_ticks": int64(totalPaid),
	})
	return nil
}

// payRound splits the round's pool across its published leaderboard and
// records the transfers. Entries that already carry a payout are skipped.
func (s *SettlementService) payRound(ctx context.Context, contest domain.Contest, round domain.Round) (domain.Ticks, error) {
	entries, err := s.boards.ListByRound(ctx, round.ID)
	if err != nil {
		return 0, fmt.Errorf("settlement: leaderboard of round %s: %w", round.ID, err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	pool := domain.Ticks(int64(contest.EntryFee) * int64(len(entries)))
	amounts := settle.DistributePool(entries, pool)

	paid := domain.Ticks(0)
	payouts := make(map[string]domain.Ticks, len(amounts))
	for _, e := range entries {
		if e.Payout != nil {
			// Already paid by an earlier attempt.
			paid += *e.Payout
			continue
		}
		// Every entry gets a recorded amount, zero included, so a paid
		// round never leaves a payout column unset.
		amount := amounts[e.BetID]
		payouts[e.BetID] = amount
		if amount == 0 {
			continue
		}

		payout := domain.Payout{Amount: amount, Status: domain.PayoutPending}
		if s.escrow != nil && contest.OnChain() && e.User.WalletAddress != "" {
			txHash, err := s.escrow.Transfer(ctx, e.User.WalletAddress, amount)
			if err != nil {
				return paid, fmt.Errorf("settlement: transfer to %s: %w", e.User.WalletAddress, err)
			}
			payout.PayoutTxHash = &txHash
			payout.Status = domain.PayoutSent
		}

		if err := s.bets.AttachPayout(ctx, e.BetID, payout); err != nil {
			return paid, fmt.Errorf("settlement: record payout for bet %s: %w", e.BetID, err)
		}
		paid += amount
	}

	if len(payouts) > 0 {
		if err := s.boards.SetPayouts(ctx, payouts); err != nil {
			return paid, fmt.Errorf("settlement: leaderboard payouts of round %s: %w", round.ID, err)
		}
		if err := s.cache.Invalidate(ctx, round.ID); err != nil {
			s.logger.WarnContext(ctx, "leaderboard cache invalidate failed",
				slog.String("round_id", round.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	return paid, nil
}

func (s *SettlementService) publishEvent(ctx context.Context, channel string, fields map[string]any) {
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
