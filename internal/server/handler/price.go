package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/betfolio/arena/internal/domain"
)

// PriceReader serves the latest sampled asset prices.
type PriceReader interface {
	GetPrices(ctx context.Context, assets []string) (map[string]domain.Ticks, error)
}

// PriceHandler serves the latest price snapshot over HTTP. Live updates flow
// over the WebSocket hub; this endpoint is for the initial render.
type PriceHandler struct {
	prices PriceReader
	logger *slog.Logger
}

// NewPriceHandler creates a PriceHandler with the given reader and logger.
func NewPriceHandler(prices PriceReader, logger *slog.Logger) *PriceHandler {
	return &PriceHandler{
		prices: prices,
		logger: logger,
	}
}

// GetPrices returns the latest sampled prices for the requested assets.
// Unsampled assets are omitted from the response.
// GET /api/prices?assets=BTC,ETH
func (h *PriceHandler) GetPrices(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("assets")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "assets query parameter required")
		return
	}

	var assets []string
	for _, a := range strings.Split(raw, ",") {
		if a = strings.ToUpper(strings.TrimSpace(a)); a != "" {
			assets = append(assets, a)
		}
	}
	if len(assets) == 0 {
		writeError(w, http.StatusBadRequest, "assets query parameter required")
		return
	}

	prices, err := h.prices.GetPrices(r.Context(), assets)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: get prices failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to read prices")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"prices": prices})
}
