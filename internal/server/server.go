package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/betfolio/arena/internal/domain"
	"github.com/betfolio/arena/internal/server/handler"
	"github.com/betfolio/arena/internal/server/middleware"
	"github.com/betfolio/arena/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	// RateLimit bounds requests per client IP within RateWindow. Zero
	// disables HTTP-level rate limiting.
	RateLimit  int
	RateWindow time.Duration
	// AdminKey guards the operator endpoints. Empty disables them.
	AdminKey string
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health   *handler.HealthHandler
	Contests *handler.ContestHandler
	Bets     *handler.BetHandler
	Prices   *handler.PriceHandler
	Auth     *handler.AuthHandler
	Admin    *handler.AdminHandler
}

// Server is the public HTTP + WebSocket API for the contest platform.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered on the ServeMux.
// Contest, leaderboard, and price reads are public; everything touching a
// user's own bets requires a verified bearer token.
func NewServer(
	cfg Config,
	handlers Handlers,
	wsHub *ws.Hub,
	verifier middleware.TokenVerifier,
	limiter domain.RateLimiter,
	logger *slog.Logger,
) *Server {
	mux := http.NewServeMux()
	authed := middleware.Auth(verifier)

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Public contest and leaderboard reads.
	mux.HandleFunc("GET /api/contests", handlers.Contests.ListContests)
	mux.HandleFunc("GET /api/contests/{id}", handlers.Contests.GetContest)
	mux.HandleFunc("GET /api/contests/{id}/leaderboard", handlers.Contests.ContestLeaderboard)
	mux.HandleFunc("GET /api/rounds/{id}/leaderboard", handlers.Contests.RoundLeaderboard)

	// Public price snapshot.
	mux.HandleFunc("GET /api/prices", handlers.Prices.GetPrices)

	// Authenticated bet endpoints.
	mux.Handle("POST /api/bets", authed(http.HandlerFunc(handlers.Bets.PlaceBet)))
	mux.Handle("GET /api/bets/me", authed(http.HandlerFunc(handlers.Bets.ListMyBets)))
	mux.Handle("GET /api/bets/{id}", authed(http.HandlerFunc(handlers.Bets.GetBet)))
	mux.Handle("GET /api/bets/{id}/deposit", authed(http.HandlerFunc(handlers.Bets.PollDeposit)))

	// Identity endpoint.
	mux.Handle("GET /api/auth/me", authed(http.HandlerFunc(handlers.Auth.Me)))

	// Operator endpoints, guarded by the admin key rather than user tokens.
	if handlers.Admin != nil {
		adminOnly := middleware.AdminKey(cfg.AdminKey)
		mux.Handle("POST /api/admin/contests", adminOnly(http.HandlerFunc(handlers.Admin.ProvisionContest)))
		mux.Handle("GET /api/admin/contests/{id}/archive", adminOnly(http.HandlerFunc(handlers.Admin.GetContestArchive)))
	}

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux
	if limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
