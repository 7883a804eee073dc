package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/betfolio/arena/internal/domain"
)

// DepositTracker confirms pending escrow deposits by polling the chain.
type DepositTracker struct {
	bets    domain.BetStore
	escrow  domain.EscrowClient
	audit   domain.AuditStore
	pollDur time.Duration
	budget  time.Duration
	logger  *slog.Logger
}

// NewDepositTracker creates a DepositTracker. pollInterval is the re-check
// cadence; budget is the wall-clock limit for a single Watch call.
func NewDepositTracker(
	bets domain.BetStore,
	escrow domain.EscrowClient,
	audit domain.AuditStore,
	pollInterval, budget time.Duration,
	logger *slog.Logger,
) *DepositTracker {
	if pollInterval <= 0 {
		pollInterval = 4 * time.Second
	}
	if budget <= 0 {
		budget = time.Minute
	}
	return &DepositTracker{
		bets:    bets,
		escrow:  escrow,
		audit:   audit,
		pollDur: pollInterval,
		budget:  budget,
		logger:  logger.With(slog.String("component", "deposit_tracker")),
	}
}

// Run reconciles unsettled deposits on a fixed cadence until ctx is
// cancelled. Clients drive their own bets through Poll and Watch; the sweep
// covers bets whose client went away, so no deposit stays PENDING forever.
func (t *DepositTracker) Run(ctx context.Context) error {
	if t.escrow == nil {
		t.logger.InfoContext(ctx, "deposit reconciliation disabled, no chain client")
		<-ctx.Done()
		return ctx.Err()
	}
	ticker := time.NewTicker(t.pollDur)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			t.sweep(ctx)
		}
	}
}

// sweep checks every PENDING deposit once and re-checks TIMEOUT deposits,
// which are resumable. A PENDING deposit older than the watch budget that
// still has not confirmed is moved to TIMEOUT.
func (t *DepositTracker) sweep(ctx context.Context) {
	for _, status := range []domain.DepositStatus{domain.DepositPending, domain.DepositTimeout} {
		bets, err := t.bets.ListByDepositStatus(ctx, status)
		if err != nil {
			t.logger.ErrorContext(ctx, "deposit sweep list failed",
				slog.String("status", string(status)),
				slog.String("error", err.Error()),
			)
			continue
		}
		for _, bet := range bets {
			if bet.DepositTxHash == nil {
				// Custodial deposits are concluded by ops, not the chain.
				continue
			}
			concluded, err := t.Poll(ctx, bet.ID)
			if err != nil {
				t.logger.WarnContext(ctx, "deposit sweep poll failed",
					slog.String("bet_id", bet.ID),
					slog.String("error", err.Error()),
				)
				continue
			}
			if concluded.Terminal() {
				continue
			}
			if status == domain.DepositPending && time.Since(bet.SubmittedAt) > t.budget {
				if _, err := t.timeout(ctx, bet.ID); err != nil && !errors.Is(err, domain.ErrDepositTimeout) {
					t.logger.WarnContext(ctx, "deposit sweep timeout failed",
						slog.String("bet_id", bet.ID),
						slog.String("error", err.Error()),
					)
				}
			}
		}
	}
}

// Poll re-reads the bet and, when a deposit transaction is attached and not
// yet terminal, checks the chain once and applies the result. It returns the
// deposit status after the check. Polling a terminal deposit is a no-op.
func (t *DepositTracker) Poll(ctx context.Context, betID string) (domain.DepositStatus, error) {
	bet, err := t.bets.GetByID(ctx, betID)
	if err != nil {
		return "", fmt.Errorf("deposit_tracker: bet %s: %w", betID, err)
	}
	if bet.DepositStatus.Terminal() {
		return bet.DepositStatus, nil
	}
	if bet.DepositTxHash == nil {
		// Custodial deposit: confirmation arrives through the ops path, not
		// the chain. Nothing to poll.
		return bet.DepositStatus, nil
	}

	state, err := t.escrow.TxState(ctx, *bet.DepositTxHash)
	if err != nil {
		return bet.DepositStatus, fmt.Errorf("deposit_tracker: tx state for bet %s: %w", betID, err)
	}

	switch state {
	case domain.TxConfirmed:
		return t.conclude(ctx, bet, domain.DepositConfirmed)
	case domain.TxFailed:
		return t.conclude(ctx, bet, domain.DepositRefunded)
	default:
		return bet.DepositStatus, nil
	}
}

// Watch polls the deposit until it reaches a terminal state or the wall-clock
// budget runs out. On budget exhaustion the deposit moves to TIMEOUT and
// ErrDepositTimeout is returned; TIMEOUT is resumable, so a later Watch picks
// up where this one stopped.
func (t *DepositTracker) Watch(ctx context.Context, betID string) (domain.DepositStatus, error) {
	deadline := time.Now().Add(t.budget)
	ticker := time.NewTicker(t.pollDur)
	defer ticker.Stop()

	for {
		status, err := t.Poll(ctx, betID)
		if err != nil {
			t.logger.WarnContext(ctx, "deposit poll failed",
				slog.String("bet_id", betID),
				slog.String("error", err.Error()),
			)
		} else if status.Terminal() {
			return status, nil
		}

		if time.Now().After(deadline) {
			return t.timeout(ctx, betID)
		}

		select {
		case <-ctx.Done():
			return "", fmt.Errorf("deposit_tracker: watch bet %s: %w", betID, ctx.Err())
		case <-ticker.C:
		}
	}
}

// conclude applies a terminal deposit state with a compare-and-set from the
// bet's current status, so two concurrent watchers settle on one result.
func (t *DepositTracker) conclude(ctx context.Context, bet domain.Bet, to domain.DepositStatus) (domain.DepositStatus, error) {
	if err := t.bets.UpdateDepositStatus(ctx, bet.ID, bet.DepositStatus, to); err != nil {
		return bet.DepositStatus, fmt.Errorf("deposit_tracker: bet %s %s->%s: %w", bet.ID, bet.DepositStatus, to, err)
	}

	t.logger.InfoContext(ctx, "deposit concluded",
		slog.String("bet_id", bet.ID),
		slog.String("status", string(to)),
	)
	if to == domain.DepositRefunded {
		if err := t.audit.Log(ctx, "deposit.refunded", map[string]any{
			"bet_id":  bet.ID,
			"tx_hash": derefOr(bet.DepositTxHash, ""),
		}); err != nil {
			t.logger.ErrorContext(ctx, "refund audit write failed",
				slog.String("bet_id", bet.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	return to, nil
}

func (t *DepositTracker) timeout(ctx context.Context, betID string) (domain.DepositStatus, error) {
	bet, err := t.bets.GetByID(ctx, betID)
	if err != nil {
		return "", fmt.Errorf("deposit_tracker: bet %s: %w", betID, err)
	}
	if bet.DepositStatus.Terminal() {
		return bet.DepositStatus, nil
	}
	if bet.DepositStatus == domain.DepositPending {
		if err := t.bets.UpdateDepositStatus(ctx, betID, domain.DepositPending, domain.DepositTimeout); err != nil {
			return bet.DepositStatus, fmt.Errorf("deposit_tracker: bet %s timeout: %w", betID, err)
		}
	}
	t.logger.WarnContext(ctx, "deposit watch budget exhausted", slog.String("bet_id", betID))
	return domain.DepositTimeout, domain.ErrDepositTimeout
}

func derefOr(s *string, def string) string {
	if s == nil {
		return def
	}
	return *s
}
