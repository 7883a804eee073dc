package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/betfolio/arena/internal/domain"
	"github.com/betfolio/arena/internal/server/middleware"
	"github.com/betfolio/arena/internal/service"
)

// BetService defines the methods that the bet handler requires from the
// service layer.
type BetService interface {
	Place(ctx context.Context, req service.PlaceRequest) (domain.Bet, error)
	ListMine(ctx context.Context, userID string, page, limit int) ([]domain.Bet, int64, error)
	Get(ctx context.Context, betID string) (domain.Bet, error)
}

// DepositPoller re-checks a bet's escrow deposit against the chain.
type DepositPoller interface {
	Poll(ctx context.Context, betID string) (domain.DepositStatus, error)
}

// BetHandler serves bet placement and history endpoints. All routes require
// an authenticated user; identity comes from the verified bearer token, never
// from the request body.
type BetHandler struct {
	bets     BetService
	deposits DepositPoller
	logger   *slog.Logger
}

// NewBetHandler creates a BetHandler with the given services and logger.
func NewBetHandler(bets BetService, deposits DepositPoller, logger *slog.Logger) *BetHandler {
	return &BetHandler{
		bets:     bets,
		deposits: deposits,
		logger:   logger,
	}
}

// placeBetRequest is the JSON body for bet placement.
type placeBetRequest struct {
	RoundID       string                `json:"roundId"`
	Picks         []service.PickRequest `json:"picks"`
	DepositTxHash string                `json:"depositTxHash,omitempty"`
}

// PlaceBet places a bet for the authenticated user.
// POST /api/bets
func (h *BetHandler) PlaceBet(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var body placeBetRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if body.RoundID == "" {
		writeError(w, http.StatusBadRequest, "roundId is required")
		return
	}
	if len(body.Picks) == 0 {
		writeError(w, http.StatusBadRequest, "picks are required")
		return
	}

	bet, err := h.bets.Place(r.Context(), service.PlaceRequest{
		UserID:        claims.UserID,
		WalletAddress: claims.WalletAddress,
		Email:         claims.Email,
		RoundID:       body.RoundID,
		Picks:         body.Picks,
		DepositTxHash: body.DepositTxHash,
	})
	if err != nil {
		h.writePlaceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, bet)
}

// writePlaceError maps bet placement failures to HTTP statuses. A funding
// ambiguity is reported as 502 with the transaction hash so the client can
// show the user exactly what to reference in support.
func (h *BetHandler) writePlaceError(w http.ResponseWriter, r *http.Request, err error) {
	var ambiguity *domain.FundingAmbiguityError
	switch {
	case errors.As(err, &ambiguity):
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":  "deposit succeeded but the bet could not be recorded; contact support",
			"txHash": ambiguity.TxHash,
		})
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "too many bets, slow down")
	case errors.Is(err, domain.ErrRoundNotOpen):
		writeError(w, http.StatusConflict, "round is not open for bets")
	case errors.Is(err, domain.ErrDuplicateBet):
		writeError(w, http.StatusConflict, "you already placed a bet for this round")
	case errors.Is(err, domain.ErrIncompletePicks):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "round not found")
	default:
		h.logger.ErrorContext(r.Context(), "handler: place bet failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to place bet")
	}
}

// ListMyBets returns the authenticated user's bet history, newest first.
// GET /api/bets/me?page=1&limit=20
func (h *BetHandler) ListMyBets(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	page, limit := parsePage(r)

	bets, total, err := h.bets.ListMine(r.Context(), claims.UserID, page, limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list bets failed",
			slog.String("user_id", claims.UserID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list bets")
		return
	}

	if bets == nil {
		bets = []domain.Bet{}
	}
	writePage(w, bets, total, page, limit)
}

// GetBet returns one of the authenticated user's bets.
// GET /api/bets/{id}
func (h *BetHandler) GetBet(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing bet id")
		return
	}

	bet, err := h.bets.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "bet not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get bet failed",
			slog.String("bet_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get bet")
		return
	}
	// A bet is private to its owner.
	if bet.UserID != claims.UserID {
		writeError(w, http.StatusNotFound, "bet not found")
		return
	}

	writeJSON(w, http.StatusOK, bet)
}

// PollDeposit re-checks the bet's deposit against the chain and returns the
// current status.
// GET /api/bets/{id}/deposit
func (h *BetHandler) PollDeposit(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing bet id")
		return
	}

	bet, err := h.bets.Get(r.Context(), id)
	if err != nil || bet.UserID != claims.UserID {
		writeError(w, http.StatusNotFound, "bet not found")
		return
	}

	status, err := h.deposits.Poll(r.Context(), id)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: deposit poll failed",
			slog.String("bet_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, "deposit status unavailable")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"betId":         id,
		"depositStatus": string(status),
	})
}
