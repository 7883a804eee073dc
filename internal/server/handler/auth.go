package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/betfolio/arena/internal/domain"
	"github.com/betfolio/arena/internal/server/middleware"
)

// AuthHandler serves the identity endpoint. Token minting lives with the
// identity provider; this server only verifies and reflects claims.
type AuthHandler struct {
	users  domain.UserStore
	logger *slog.Logger
}

// NewAuthHandler creates an AuthHandler with the given user store and logger.
func NewAuthHandler(users domain.UserStore, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		users:  users,
		logger: logger,
	}
}

// Me returns the authenticated identity and upserts the user record so
// leaderboards can show wallet and email for this user.
// GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	user := domain.User{
		ID:            claims.UserID,
		WalletAddress: claims.WalletAddress,
		CreatedAt:     time.Now().UTC(),
	}
	if claims.Email != "" {
		email := claims.Email
		user.Email = &email
	}
	if err := h.users.Upsert(r.Context(), user); err != nil {
		h.logger.WarnContext(r.Context(), "handler: user upsert failed",
			slog.String("user_id", claims.UserID),
			slog.String("error", err.Error()),
		)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"userId":        claims.UserID,
		"walletAddress": claims.WalletAddress,
		"email":         claims.Email,
	})
}
