package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/betfolio/arena/internal/domain"
)

// PriceFeed returns the current mid price for every tracked asset.
type PriceFeed interface {
	AllMids(ctx context.Context) (map[string]domain.Ticks, error)
}

// PriceService samples the upstream feed into the price cache and serves
// point-in-time reads for settlement. Each sample is a full snapshot; the
// last write wins.
type PriceService struct {
	feed    PriceFeed
	cache   domain.PriceCache
	bus     domain.SignalBus
	pollDur time.Duration
	logger  *slog.Logger
}

// NewPriceService creates a PriceService. pollInterval is the sampling
// cadence.
func NewPriceService(
	feed PriceFeed,
	cache domain.PriceCache,
	bus domain.SignalBus,
	pollInterval time.Duration,
	logger *slog.Logger,
) *PriceService {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &PriceService{
		feed:    feed,
		cache:   cache,
		bus:     bus,
		pollDur: pollInterval,
		logger:  logger.With(slog.String("component", "price_service")),
	}
}

// Run samples the feed until ctx is cancelled. Transient feed errors are
// logged and retried on the next tick; they never stop the loop. Call in a
// goroutine.
func (s *PriceService) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.pollDur)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.Sample(ctx); err != nil {
				s.logger.WarnContext(ctx, "price sample failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Sample fetches the full mid-price snapshot and writes it to the cache.
func (s *PriceService) Sample(ctx context.Context) error {
	mids, err := s.feed.AllMids(ctx)
	if err != nil {
		return fmt.Errorf("price_service: fetch mids: %w", err)
	}

	now := time.Now().UTC()
	for asset, price := range mids {
		if err := s.cache.SetPrice(ctx, asset, price, now); err != nil {
			return fmt.Errorf("price_service: cache %s: %w", asset, err)
		}
	}

	if s.bus != nil {
		evt, _ := json.Marshal(map[string]any{
			"event":     "price_snapshot",
			"assets":    len(mids),
			"timestamp": now.Format(time.RFC3339Nano),
		})
		if err := s.bus.Publish(ctx, "prices", evt); err != nil {
			s.logger.WarnContext(ctx, "price snapshot publish failed", slog.String("error", err.Error()))
		}
	}
	return nil
}

// SampleAt fetches a fresh price for one asset with bounded retry. It never
// falls back to a default or stale value: settlement needs a real reading or
// an error the caller can act on.
func (s *PriceService) SampleAt(ctx context.Context, asset string) (domain.Ticks, error) {
	const attempts = 4
	backoff := 500 * time.Millisecond

	var lastErr error
	for i := 0; i < attempts; i++ {
		mids, err := s.feed.AllMids(ctx)
		if err == nil {
			if price, ok := mids[asset]; ok {
				return price, nil
			}
			lastErr = fmt.Errorf("%w: asset=%s", domain.ErrPriceUnavailable, asset)
		} else {
			lastErr = err
		}

		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return 0, fmt.Errorf("price_service: sample %s: %w", asset, ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return 0, fmt.Errorf("price_service: sample %s after %d attempts: %w", asset, attempts, lastErr)
}

// GetPrice returns the latest cached price and its timestamp.
func (s *PriceService) GetPrice(ctx context.Context, asset string) (domain.Ticks, time.Time, error) {
	price, ts, err := s.cache.GetPrice(ctx, asset)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("price_service: get price %s: %w", asset, err)
	}
	return price, ts, nil
}

// GetPrices returns the latest cached prices for multiple assets. Missing
// assets are omitted.
func (s *PriceService) GetPrices(ctx context.Context, assets []string) (map[string]domain.Ticks, error) {
	prices, err := s.cache.GetPrices(ctx, assets)
	if err != nil {
		return nil, fmt.Errorf("price_service: get prices: %w", err)
	}
	return prices, nil
}
