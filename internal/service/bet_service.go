package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/betfolio/arena/internal/domain"
)

// betRateLimit bounds bet submissions per wallet within betRateWindow.
const (
	betRateLimit  = 10
	betRateWindow = time.Minute
)

// BetService validates and records bets. Gating decisions are always made
// from freshly read contest and round status, never from what the caller saw
// when the form was rendered.
type BetService struct {
	bets     domain.BetStore
	rounds   domain.RoundStore
	markets  domain.MarketStore
	contests domain.ContestStore
	users    domain.UserStore
	limiter  domain.RateLimiter
	escrow   domain.EscrowClient
	audit    domain.AuditStore
	logger   *slog.Logger
}

// NewBetService creates a BetService. escrow may be nil when every contest is
// custodial.
func NewBetService(
	bets domain.BetStore,
	rounds domain.RoundStore,
	markets domain.MarketStore,
	contests domain.ContestStore,
	users domain.UserStore,
	limiter domain.RateLimiter,
	escrow domain.EscrowClient,
	audit domain.AuditStore,
	logger *slog.Logger,
) *BetService {
	return &BetService{
		bets:     bets,
		rounds:   rounds,
		markets:  markets,
		contests: contests,
		users:    users,
		limiter:  limiter,
		escrow:   escrow,
		audit:    audit,
		logger:   logger.With(slog.String("component", "bet_service")),
	}
}

// PickRequest is one market choice in a bet placement.
type PickRequest struct {
	MarketID string         `json:"marketId"`
	Choice   domain.Outcome `json:"choice"`
}

// PlaceRequest carries everything needed to place a bet.
type PlaceRequest struct {
	UserID        string
	WalletAddress string
	Email         string
	RoundID       string
	Picks         []PickRequest
	// DepositTxHash is set when the client already submitted the escrow
	// deposit itself; the tracker confirms it asynchronously.
	DepositTxHash string
}

// Place validates the request, stamps entry odds, funds the entry fee, and
// records the bet. For on-chain contests without a client-supplied deposit,
// the escrow call happens before the durable record: if the record then
// fails, the returned error is a *domain.FundingAmbiguityError and nothing is
// retried automatically.
func (s *BetService) Place(ctx context.Context, req PlaceRequest) (domain.Bet, error) {
	allowed, err := s.limiter.Allow(ctx, "bets:"+req.WalletAddress, betRateLimit, betRateWindow)
	if err != nil {
		return domain.Bet{}, fmt.Errorf("bet_service: rate limit check: %w", err)
	}
	if !allowed {
		return domain.Bet{}, domain.ErrRateLimited
	}

	round, err := s.rounds.GetByID(ctx, req.RoundID)
	if err != nil {
		return domain.Bet{}, fmt.Errorf("bet_service: round %s: %w", req.RoundID, err)
	}
	contest, err := s.contests.GetByID(ctx, round.ContestID)
	if err != nil {
		return domain.Bet{}, fmt.Errorf("bet_service: contest %s: %w", round.ContestID, err)
	}
	if !contest.Status.AcceptsBets() || !round.Status.AcceptsBets() {
		return domain.Bet{}, domain.ErrRoundNotOpen
	}

	markets, err := s.markets.ListByRound(ctx, round.ID)
	if err != nil {
		return domain.Bet{}, fmt.Errorf("bet_service: markets of round %s: %w", round.ID, err)
	}

	picks, err := buildPicks(req.Picks, markets)
	if err != nil {
		return domain.Bet{}, err
	}

	bet := domain.Bet{
		ID:            uuid.New().String(),
		UserID:        req.UserID,
		WalletAddress: req.WalletAddress,
		RoundID:       round.ID,
		TotalEntryFee: contest.EntryFee,
		DepositStatus: domain.DepositPending,
		SubmittedAt:   time.Now().UTC(),
		Picks:         picks,
	}
	for i := range bet.Picks {
		bet.Picks[i].BetID = bet.ID
	}

	// A duplicate bet must fail without charging the wallet, so probe before
	// any escrow call. The unique constraint still backstops a race.
	if exists, err := s.bets.HasBet(ctx, req.UserID, round.ID); err != nil {
		return domain.Bet{}, fmt.Errorf("bet_service: duplicate probe: %w", err)
	} else if exists {
		return domain.Bet{}, domain.ErrDuplicateBet
	}

	// Register the bettor before any money moves. bets.user_id references
	// users, so a first-time wallet must exist in users or Create fails
	// after the escrow charge already landed.
	user := domain.User{ID: req.UserID, WalletAddress: req.WalletAddress}
	if req.Email != "" {
		email := req.Email
		user.Email = &email
	}
	if err := s.users.Upsert(ctx, user); err != nil {
		return domain.Bet{}, fmt.Errorf("bet_service: register user %s: %w", req.UserID, err)
	}

	if req.DepositTxHash != "" {
		hash := req.DepositTxHash
		bet.DepositTxHash = &hash
	}

	onChainDeposit := contest.OnChain() && req.DepositTxHash == ""
	if onChainDeposit {
		txHash, err := s.escrowDeposit(ctx, contest, bet)
		if err != nil {
			return domain.Bet{}, err
		}
		bet.DepositTxHash = &txHash
	}

	if err := s.bets.Create(ctx, bet); err != nil {
		if onChainDeposit {
			ambiguity := &domain.FundingAmbiguityError{
				TxHash:  *bet.DepositTxHash,
				Wallet:  bet.WalletAddress,
				RoundID: bet.RoundID,
				Err:     err,
			}
			s.recordAmbiguity(ctx, ambiguity)
			return domain.Bet{}, ambiguity
		}
		return domain.Bet{}, fmt.Errorf("bet_service: record bet: %w", err)
	}

	if err := s.rounds.IncrementParticipants(ctx, round.ID); err != nil {
		s.logger.WarnContext(ctx, "participant count update failed",
			slog.String("round_id", round.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "bet placed",
		slog.String("bet_id", bet.ID),
		slog.String("round_id", round.ID),
		slog.String("user_id", bet.UserID),
		slog.Int("picks", len(bet.Picks)),
		slog.Bool("on_chain", contest.OnChain()),
	)
	return bet, nil
}

// buildPicks validates that the requested picks cover every market in the
// round exactly once and stamps the odds in effect right now.
func buildPicks(reqs []PickRequest, markets []domain.Market) ([]domain.Pick, error) {
	if len(reqs) != len(markets) {
		return nil, domain.ErrIncompletePicks
	}

	byMarket := make(map[string]domain.Market, len(markets))
	for _, m := range markets {
		byMarket[m.ID] = m
	}

	seen := make(map[string]bool, len(reqs))
	picks := make([]domain.Pick, 0, len(reqs))
	for _, r := range reqs {
		if !r.Choice.Valid() {
			return nil, fmt.Errorf("bet_service: invalid choice %q for market %s", r.Choice, r.MarketID)
		}
		m, ok := byMarket[r.MarketID]
		if !ok {
			return nil, fmt.Errorf("bet_service: %w: market %s is not in this round", domain.ErrIncompletePicks, r.MarketID)
		}
		if seen[r.MarketID] {
			return nil, fmt.Errorf("bet_service: %w: duplicate pick for market %s", domain.ErrIncompletePicks, r.MarketID)
		}
		seen[r.MarketID] = true

		picks = append(picks, domain.Pick{
			ID:        uuid.New().String(),
			MarketID:  m.ID,
			Choice:    r.Choice,
			EntryOdds: m.OddsFor(r.Choice),
		})
	}
	return picks, nil
}

func (s *BetService) escrowDeposit(ctx context.Context, contest domain.Contest, bet domain.Bet) (string, error) {
	if s.escrow == nil {
		return "", fmt.Errorf("bet_service: contest %s requires escrow but no chain client is configured", contest.ID)
	}
	txHash, err := s.escrow.Deposit(ctx, contest.EscrowContractAddr, contest.EscrowContestID, contest.EntryFee)
	if err != nil {
		// A non-empty hash with an error means the transaction was
		// broadcast but never confirmed. The wallet may have been charged,
		// so this is the same ambiguity as a failed record after deposit.
		if txHash != "" {
			ambiguity := &domain.FundingAmbiguityError{
				TxHash:  txHash,
				Wallet:  bet.WalletAddress,
				RoundID: bet.RoundID,
				Err:     err,
			}
			s.recordAmbiguity(ctx, ambiguity)
			return "", ambiguity
		}
		return "", fmt.Errorf("bet_service: escrow deposit: %w", err)
	}
	return txHash, nil
}

// recordAmbiguity leaves a durable trail for manual reconciliation. The audit
// row is best-effort on top of the returned error; a failure to write it is
// logged, never masked.
func (s *BetService) recordAmbiguity(ctx context.Context, e *domain.FundingAmbiguityError) {
	s.logger.ErrorContext(ctx, "funding ambiguity",
		slog.String("tx_hash", e.TxHash),
		slog.String("wallet", e.Wallet),
		slog.String("round_id", e.RoundID),
		slog.String("error", e.Err.Error()),
	)
	if err := s.audit.Log(ctx, "bet.funding_ambiguity", map[string]any{
		"tx_hash":  e.TxHash,
		"wallet":   e.Wallet,
		"round_id": e.RoundID,
		"cause":    e.Err.Error(),
	}); err != nil {
		s.logger.ErrorContext(ctx, "funding ambiguity audit write failed",
			slog.String("tx_hash", e.TxHash),
			slog.String("error", err.Error()),
		)
	}
}

// ListMine returns a page of the user's bets plus the total for pagination.
func (s *BetService) ListMine(ctx context.Context, userID string, page, limit int) ([]domain.Bet, int64, error) {
	if limit <= 0 {
		limit = 20
	}
	if page <= 0 {
		page = 1
	}
	opts := domain.ListOpts{Limit: limit, Offset: (page - 1) * limit}

	bets, err := s.bets.ListByUser(ctx, userID, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("bet_service: list bets of %s: %w", userID, err)
	}
	total, err := s.bets.CountByUser(ctx, userID)
	if err != nil {
		return nil, 0, fmt.Errorf("bet_service: count bets of %s: %w", userID, err)
	}
	return bets, total, nil
}

// Get returns one bet. Callers enforce ownership.
func (s *BetService) Get(ctx context.Context, betID string) (domain.Bet, error) {
	bet, err := s.bets.GetByID(ctx, betID)
	if err != nil {
		return domain.Bet{}, fmt.Errorf("bet_service: get %s: %w", betID, err)
	}
	return bet, nil
}
