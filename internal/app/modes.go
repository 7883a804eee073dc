package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/betfolio/arena/internal/crypto"
	"github.com/betfolio/arena/internal/server"
	"github.com/betfolio/arena/internal/server/handler"
	"github.com/betfolio/arena/internal/server/ws"
	"github.com/betfolio/arena/internal/service"
)

// services bundles the domain services shared by the operating modes.
type services struct {
	Prices     *service.PriceService
	Contests   *service.ContestService
	Bets       *service.BetService
	Settlement *service.SettlementService
	Deposits   *service.DepositTracker
}

// buildServices constructs the domain services on top of the wired
// dependencies. Every mode uses the same service graph; modes differ only in
// which goroutines they start.
func (a *App) buildServices(deps *Dependencies) *services {
	prices := service.NewPriceService(
		deps.Feed,
		deps.PriceCache,
		deps.SignalBus,
		a.cfg.PriceFeed.PollInterval.Duration,
		a.logger,
	)

	contests := service.NewContestService(
		deps.ContestStore,
		deps.RoundStore,
		deps.MarketStore,
		deps.LeaderboardStore,
		deps.LeaderboardCache,
		deps.PriceCache,
		deps.SignalBus,
		a.cfg.Settle.LifecycleInterval.Duration,
		a.logger,
	)

	bets := service.NewBetService(
		deps.BetStore,
		deps.RoundStore,
		deps.MarketStore,
		deps.ContestStore,
		deps.UserStore,
		deps.RateLimiter,
		deps.Escrow,
		deps.AuditStore,
		a.logger,
	)

	settlement := service.NewSettlementService(service.SettlementDeps{
		Contests: deps.ContestStore,
		Rounds:   deps.RoundStore,
		Markets:  deps.MarketStore,
		Bets:     deps.BetStore,
		Boards:   deps.LeaderboardStore,
		Users:    deps.UserStore,
		Cache:    deps.LeaderboardCache,
		Sampler:  prices,
		Locks:    deps.LockManager,
		Escrow:   deps.Escrow,
		Archiver: deps.Archiver,
		Notifier: deps.Notifier,
		Bus:      deps.SignalBus,
		Audit:    deps.AuditStore,
	}, a.cfg.Settle.SettleInterval.Duration, a.logger)

	deposits := service.NewDepositTracker(
		deps.BetStore,
		deps.Escrow,
		deps.AuditStore,
		a.cfg.Settle.DepositPollInterval.Duration,
		a.cfg.Settle.DepositBudget.Duration,
		a.logger,
	)

	return &services{
		Prices:     prices,
		Contests:   contests,
		Bets:       bets,
		Settlement: settlement,
		Deposits:   deposits,
	}
}

// ServeMode runs the public HTTP and WebSocket API without the background
// lifecycle loops. It expects a separate settle-mode process to keep the
// price cache warm and settle rounds.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	svcs := a.buildServices(deps)
	g, ctx := errgroup.WithContext(ctx)
	if err := a.startAPI(ctx, g, deps, svcs); err != nil {
		return err
	}
	return g.Wait()
}

// SettleMode runs the background loops that drive contests forward: price
// sampling, lifecycle transitions, and round settlement with payouts. No HTTP
// API is exposed.
func (a *App) SettleMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting settle mode")

	svcs := a.buildServices(deps)
	g, ctx := errgroup.WithContext(ctx)
	a.startLoops(ctx, g, svcs)
	return g.Wait()
}

// FullMode runs the API and all background loops in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	svcs := a.buildServices(deps)
	g, ctx := errgroup.WithContext(ctx)
	a.startLoops(ctx, g, svcs)
	if err := a.startAPI(ctx, g, deps, svcs); err != nil {
		return err
	}
	return g.Wait()
}

// startLoops registers the background goroutines on g.
func (a *App) startLoops(ctx context.Context, g *errgroup.Group, svcs *services) {
	g.Go(func() error {
		return svcs.Prices.Run(ctx)
	})
	g.Go(func() error {
		return svcs.Contests.Run(ctx)
	})
	g.Go(func() error {
		return svcs.Settlement.Run(ctx)
	})
	g.Go(func() error {
		return svcs.Deposits.Run(ctx)
	})
}

// startAPI builds the HTTP handlers, WebSocket hub, and server, and registers
// their goroutines on g. The server is shut down gracefully when ctx is
// cancelled.
func (a *App) startAPI(ctx context.Context, g *errgroup.Group, deps *Dependencies, svcs *services) error {
	if !a.cfg.Server.Enabled {
		return fmt.Errorf("app: mode %q requires the server to be enabled", a.cfg.Mode)
	}

	verifier, err := crypto.NewTokenAuth(a.cfg.Server.TokenSecret)
	if err != nil {
		return fmt.Errorf("app: token auth: %w", err)
	}

	hub := ws.NewHub(deps.SignalBus, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	handlers := server.Handlers{
		Health:   handler.NewHealthHandler(a.logger),
		Contests: handler.NewContestHandler(svcs.Contests, a.logger),
		Bets:     handler.NewBetHandler(svcs.Bets, svcs.Deposits, a.logger),
		Prices:   handler.NewPriceHandler(svcs.Prices, a.logger),
		Auth:     handler.NewAuthHandler(deps.UserStore, a.logger),
		Admin:    handler.NewAdminHandler(svcs.Contests, deps.ArchiveReader, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
		AdminKey:    a.cfg.Server.AdminKey,
	}, handlers, hub, verifier, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return nil
}
