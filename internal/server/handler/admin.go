package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/betfolio/arena/internal/domain"
	"github.com/betfolio/arena/internal/service"
)

// ContestProvisioner provisions a contest with its full round and market
// schedule.
type ContestProvisioner interface {
	Provision(ctx context.Context, spec service.ContestSpec) (domain.Contest, error)
}

// AdminHandler serves operator-only endpoints. Routes using it must be
// registered behind the admin key middleware.
type AdminHandler struct {
	contests ContestProvisioner
	archive  domain.BlobReader
	logger   *slog.Logger
}

// NewAdminHandler creates an AdminHandler. archive may be nil when cold
// storage is disabled; the snapshot endpoint then returns 404.
func NewAdminHandler(contests ContestProvisioner, archive domain.BlobReader, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{contests: contests, archive: archive, logger: logger}
}

// provisionContestRequest is the JSON body for POST /api/admin/contests.
type provisionContestRequest struct {
	Category           string    `json:"category"`
	Name               string    `json:"name"`
	Description        string    `json:"description"`
	EntryFee           int64     `json:"entryFee"`
	StartTime          time.Time `json:"startTime"`
	RoundCount         int       `json:"roundCount"`
	RoundDuration      string    `json:"roundDuration"`
	Assets             []string  `json:"assets"`
	YesOdds            int64     `json:"yesOdds"`
	NoOdds             int64     `json:"noOdds"`
	EscrowContractAddr string    `json:"escrowContractAddr"`
	EscrowContestID    int64     `json:"escrowContestId"`
}

// ProvisionContest handles POST /api/admin/contests.
func (h *AdminHandler) ProvisionContest(w http.ResponseWriter, r *http.Request) {
	var req provisionContestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	dur, err := time.ParseDuration(req.RoundDuration)
	if err != nil || dur <= 0 {
		writeError(w, http.StatusBadRequest, "roundDuration must be a positive duration string, e.g. \"15m\"")
		return
	}

	assets := make([]string, 0, len(req.Assets))
	for _, a := range req.Assets {
		a = strings.ToUpper(strings.TrimSpace(a))
		if a != "" {
			assets = append(assets, a)
		}
	}

	spec := service.ContestSpec{
		Category:           domain.ContestCategory(strings.ToUpper(req.Category)),
		Name:               req.Name,
		Description:        req.Description,
		EntryFee:           domain.Ticks(req.EntryFee),
		StartTime:          req.StartTime,
		RoundCount:         req.RoundCount,
		RoundDuration:      dur,
		Assets:             assets,
		YesOdds:            domain.Ticks(req.YesOdds),
		NoOdds:             domain.Ticks(req.NoOdds),
		EscrowContractAddr: req.EscrowContractAddr,
		EscrowContestID:    req.EscrowContestID,
	}

	contest, err := h.contests.Provision(r.Context(), spec)
	if err != nil {
		if errors.Is(err, domain.ErrPriceUnavailable) {
			writeError(w, http.StatusServiceUnavailable, "price feed is not warm for the requested assets")
			return
		}
		h.logger.ErrorContext(r.Context(), "contest provisioning failed", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, contest)
}

// GetContestArchive handles GET /api/admin/contests/{id}/archive. It streams
// the cold-storage snapshot of a paid contest straight from object storage.
func (h *AdminHandler) GetContestArchive(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		writeError(w, http.StatusNotFound, "cold storage is not configured")
		return
	}

	id := pathParam(r, "id")
	body, err := h.archive.Get(r.Context(), "archive/contests/"+id+".json")
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no archive for this contest")
			return
		}
		h.logger.ErrorContext(r.Context(), "archive read failed",
			slog.String("contest_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, "archive storage unavailable")
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		h.logger.WarnContext(r.Context(), "archive stream interrupted",
			slog.String("contest_id", id),
			slog.String("error", err.Error()),
		)
	}
}
