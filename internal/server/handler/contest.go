package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/betfolio/arena/internal/domain"
)

// ContestService defines the methods that the contest handler requires from
// the service layer. It is declared locally so the handler package does not
// depend on the concrete service implementation.
type ContestService interface {
	List(ctx context.Context, filter domain.ContestFilter, page, limit int) ([]domain.Contest, int64, error)
	Get(ctx context.Context, id string) (domain.ContestDetail, error)
	Leaderboard(ctx context.Context, contestID string, page, limit int) ([]domain.LeaderboardEntry, int64, error)
	RoundLeaderboard(ctx context.Context, roundID string) ([]domain.LeaderboardEntry, error)
}

// ContestHandler serves contest and leaderboard HTTP endpoints.
type ContestHandler struct {
	contests ContestService
	logger   *slog.Logger
}

// NewContestHandler creates a ContestHandler with the given service and logger.
func NewContestHandler(contests ContestService, logger *slog.Logger) *ContestHandler {
	return &ContestHandler{
		contests: contests,
		logger:   logger,
	}
}

// ListContests returns contests filtered by status and category.
// GET /api/contests?status=ACTIVE&category=FIFTEEN_MINUTES&page=1&limit=20
func (h *ContestHandler) ListContests(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.ContestFilter{
		Status:   domain.ContestStatus(strings.ToUpper(q.Get("status"))),
		Category: domain.ContestCategory(strings.ToUpper(q.Get("category"))),
	}
	page, limit := parsePage(r)

	contests, total, err := h.contests.List(r.Context(), filter, page, limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list contests failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list contests")
		return
	}

	if contests == nil {
		contests = []domain.Contest{}
	}
	writePage(w, contests, total, page, limit)
}

// GetContest returns a single contest with its rounds and markets.
// GET /api/contests/{id}
func (h *ContestHandler) GetContest(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing contest id")
		return
	}

	detail, err := h.contests.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "contest not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get contest failed",
			slog.String("contest_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get contest")
		return
	}

	writeJSON(w, http.StatusOK, detail)
}

// ContestLeaderboard returns the contest-wide leaderboard, paginated.
// GET /api/contests/{id}/leaderboard?page=1&limit=50
func (h *ContestHandler) ContestLeaderboard(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing contest id")
		return
	}
	page, limit := parsePage(r)

	entries, total, err := h.contests.Leaderboard(r.Context(), id, page, limit)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "contest not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: contest leaderboard failed",
			slog.String("contest_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to load leaderboard")
		return
	}

	if entries == nil {
		entries = []domain.LeaderboardEntry{}
	}
	writePage(w, entries, total, page, limit)
}

// RoundLeaderboard returns the frozen leaderboard of a resolved round.
// GET /api/rounds/{id}/leaderboard
func (h *ContestHandler) RoundLeaderboard(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing round id")
		return
	}

	entries, err := h.contests.RoundLeaderboard(r.Context(), id)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: round leaderboard failed",
			slog.String("round_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to load leaderboard")
		return
	}

	if entries == nil {
		entries = []domain.LeaderboardEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": entries})
}
