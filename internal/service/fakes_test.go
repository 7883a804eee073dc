package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/betfolio/arena/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// In-memory store fakes shared by the service tests. They implement only the
// semantics the services rely on: compare-and-set transitions, duplicate
// detection, append-only leaderboards.

type memContestStore struct {
	mu       sync.Mutex
	contests map[string]domain.Contest
}

func newMemContestStore() *memContestStore {
	return &memContestStore{contests: map[string]domain.Contest{}}
}

func (s *memContestStore) Create(_ context.Context, c domain.Contest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.contests[c.ID]; ok {
		return domain.ErrAlreadyExists
	}
	s.contests[c.ID] = c
	return nil
}

func (s *memContestStore) GetByID(_ context.Context, id string) (domain.Contest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contests[id]
	if !ok {
		return domain.Contest{}, domain.ErrNotFound
	}
	return c, nil
}

func (s *memContestStore) List(_ context.Context, filter domain.ContestFilter, opts domain.ListOpts) ([]domain.Contest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Contest
	for _, c := range s.contests {
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		if filter.Category != "" && c.Category != filter.Category {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	return paginate(out, opts), nil
}

func (s *memContestStore) Count(ctx context.Context, filter domain.ContestFilter) (int64, error) {
	all, _ := s.List(ctx, filter, domain.ListOpts{})
	return int64(len(all)), nil
}

func (s *memContestStore) UpdateStatus(_ context.Context, id string, from, to domain.ContestStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contests[id]
	if !ok || c.Status != from {
		return domain.ErrInvalidTransition
	}
	c.Status = to
	s.contests[id] = c
	return nil
}

func (s *memContestStore) ListByStatus(_ context.Context, status domain.ContestStatus) ([]domain.Contest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Contest
	for _, c := range s.contests {
		if c.Status == status {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

type memRoundStore struct {
	mu     sync.Mutex
	rounds map[string]domain.Round
}

func newMemRoundStore() *memRoundStore {
	return &memRoundStore{rounds: map[string]domain.Round{}}
}

func (s *memRoundStore) CreateBatch(_ context.Context, rounds []domain.Round) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rounds {
		r.Markets = nil
		s.rounds[r.ID] = r
	}
	return nil
}

func (s *memRoundStore) GetByID(_ context.Context, id string) (domain.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rounds[id]
	if !ok {
		return domain.Round{}, domain.ErrNotFound
	}
	return r, nil
}

func (s *memRoundStore) ListByContest(_ context.Context, contestID string) ([]domain.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Round
	for _, r := range s.rounds {
		if r.ContestID == contestID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoundNumber < out[j].RoundNumber })
	return out, nil
}

func (s *memRoundStore) ListByStatus(_ context.Context, status domain.RoundStatus) ([]domain.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Round
	for _, r := range s.rounds {
		if r.Status == status {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndTime.Before(out[j].EndTime) })
	return out, nil
}

func (s *memRoundStore) UpdateStatus(_ context.Context, id string, from, to domain.RoundStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rounds[id]
	if !ok || r.Status != from {
		return domain.ErrInvalidTransition
	}
	r.Status = to
	s.rounds[id] = r
	return nil
}

func (s *memRoundStore) IncrementParticipants(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rounds[id]
	if !ok {
		return domain.ErrNotFound
	}
	r.ParticipantCount++
	s.rounds[id] = r
	return nil
}

type memMarketStore struct {
	mu      sync.Mutex
	markets map[string]domain.Market
}

func newMemMarketStore() *memMarketStore {
	return &memMarketStore{markets: map[string]domain.Market{}}
}

func (s *memMarketStore) CreateBatch(_ context.Context, markets []domain.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range markets {
		s.markets[m.ID] = m
	}
	return nil
}

func (s *memMarketStore) GetByID(_ context.Context, id string) (domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

func (s *memMarketStore) ListByRound(_ context.Context, roundID string) ([]domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Market
	for _, m := range s.markets {
		if m.RoundID == roundID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Asset < out[j].Asset })
	return out, nil
}

func (s *memMarketStore) UpdateStatus(_ context.Context, id string, from, to domain.MarketStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[id]
	if !ok || m.Status != from {
		return domain.ErrInvalidTransition
	}
	m.Status = to
	s.markets[id] = m
	return nil
}

func (s *memMarketStore) Resolve(_ context.Context, id string, endPrice domain.Ticks, outcome domain.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[id]
	if !ok {
		return domain.ErrNotFound
	}
	if m.ResolvedOutcome != nil {
		return nil
	}
	m.EndPrice = &endPrice
	m.ResolvedOutcome = &outcome
	m.Status = domain.MarketStatusResolved
	s.markets[id] = m
	return nil
}

type memBetStore struct {
	mu   sync.Mutex
	bets map[string]domain.Bet
	// failCreate forces Create to fail; used to provoke funding ambiguity.
	failCreate error
}

func newMemBetStore() *memBetStore {
	return &memBetStore{bets: map[string]domain.Bet{}}
}

func (s *memBetStore) Create(_ context.Context, bet domain.Bet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCreate != nil {
		return s.failCreate
	}
	for _, b := range s.bets {
		if b.UserID == bet.UserID && b.RoundID == bet.RoundID {
			return domain.ErrDuplicateBet
		}
	}
	s.bets[bet.ID] = bet
	return nil
}

func (s *memBetStore) HasBet(_ context.Context, userID, roundID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.bets {
		if b.UserID == userID && b.RoundID == roundID {
			return true, nil
		}
	}
	return false, nil
}

func (s *memBetStore) GetByID(_ context.Context, id string) (domain.Bet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bets[id]
	if !ok {
		return domain.Bet{}, domain.ErrNotFound
	}
	return b, nil
}

func (s *memBetStore) ListByUser(_ context.Context, userID string, opts domain.ListOpts) ([]domain.Bet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Bet
	for _, b := range s.bets {
		if b.UserID == userID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.After(out[j].SubmittedAt) })
	return paginate(out, opts), nil
}

func (s *memBetStore) CountByUser(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, b := range s.bets {
		if b.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (s *memBetStore) ListByRound(_ context.Context, roundID string) ([]domain.Bet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Bet
	for _, b := range s.bets {
		if b.RoundID == roundID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].SubmittedAt.Before(out[j].SubmittedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *memBetStore) ListByDepositStatus(_ context.Context, status domain.DepositStatus) ([]domain.Bet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Bet
	for _, b := range s.bets {
		if b.DepositStatus == status {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].SubmittedAt.Before(out[j].SubmittedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *memBetStore) UpdateDepositStatus(_ context.Context, id string, from, to domain.DepositStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bets[id]
	if !ok || b.DepositStatus != from {
		return domain.ErrInvalidTransition
	}
	b.DepositStatus = to
	s.bets[id] = b
	return nil
}

func (s *memBetStore) SetScore(_ context.Context, betID string, score domain.Score) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bets[betID]
	if !ok {
		return domain.ErrNotFound
	}
	b.Score = &score
	s.bets[betID] = b
	return nil
}

func (s *memBetStore) AttachPayout(_ context.Context, betID string, payout domain.Payout) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bets[betID]
	if !ok {
		return domain.ErrNotFound
	}
	b.Payouts = append(b.Payouts, payout)
	s.bets[betID] = b
	return nil
}

type memLeaderboardStore struct {
	mu      sync.Mutex
	byRound map[string][]domain.LeaderboardEntry
}

func newMemLeaderboardStore() *memLeaderboardStore {
	return &memLeaderboardStore{byRound: map[string][]domain.LeaderboardEntry{}}
}

func (s *memLeaderboardStore) Publish(_ context.Context, roundID string, entries []domain.LeaderboardEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byRound[roundID]; ok {
		return domain.ErrLeaderboardFrozen
	}
	s.byRound[roundID] = append([]domain.LeaderboardEntry(nil), entries...)
	return nil
}

func (s *memLeaderboardStore) Published(_ context.Context, roundID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.byRound[roundID]
	return ok, nil
}

func (s *memLeaderboardStore) ListByRound(_ context.Context, roundID string) ([]domain.LeaderboardEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.LeaderboardEntry(nil), s.byRound[roundID]...), nil
}

func (s *memLeaderboardStore) ListByContest(_ context.Context, _ string, opts domain.ListOpts) ([]domain.LeaderboardEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.LeaderboardEntry
	for _, entries := range s.byRound {
		out = append(out, entries...)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RoundNumber != out[j].RoundNumber {
			return out[i].RoundNumber < out[j].RoundNumber
		}
		return out[i].Rank < out[j].Rank
	})
	return paginate(out, opts), nil
}

func (s *memLeaderboardStore) CountByContest(ctx context.Context, contestID string) (int64, error) {
	all, _ := s.ListByContest(ctx, contestID, domain.ListOpts{})
	return int64(len(all)), nil
}

func (s *memLeaderboardStore) SetPayouts(_ context.Context, payouts map[string]domain.Ticks) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for roundID, entries := range s.byRound {
		for i := range entries {
			if amount, ok := payouts[entries[i].BetID]; ok {
				a := amount
				entries[i].Payout = &a
			}
		}
		s.byRound[roundID] = entries
	}
	return nil
}

type memUserStore struct {
	mu    sync.Mutex
	users map[string]domain.User
}

func newMemUserStore() *memUserStore {
	return &memUserStore{users: map[string]domain.User{}}
}

func (s *memUserStore) Upsert(_ context.Context, u domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
	return nil
}

func (s *memUserStore) GetByID(_ context.Context, id string) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u, nil
}

type memAuditStore struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

func (s *memAuditStore) Log(_ context.Context, event string, detail map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, domain.AuditEntry{
		ID:        int64(len(s.entries) + 1),
		Event:     event,
		Detail:    detail,
		CreatedAt: time.Now(),
	})
	return nil
}

func (s *memAuditStore) List(_ context.Context, _ domain.ListOpts) ([]domain.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.AuditEntry(nil), s.entries...), nil
}

func (s *memAuditStore) events() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.Event)
	}
	return out
}

type allowAllLimiter struct{ denied bool }

func (l *allowAllLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	return !l.denied, nil
}

func (l *allowAllLimiter) Wait(context.Context, string) error { return nil }

type memLockManager struct {
	mu   sync.Mutex
	held map[string]bool
}

func newMemLockManager() *memLockManager {
	return &memLockManager{held: map[string]bool{}}
}

func (m *memLockManager) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[key] {
		return nil, domain.ErrLockHeld
	}
	m.held[key] = true
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.held, key)
	}, nil
}

type memPriceCache struct {
	mu     sync.Mutex
	prices map[string]domain.Ticks
	times  map[string]time.Time
}

func newMemPriceCache() *memPriceCache {
	return &memPriceCache{prices: map[string]domain.Ticks{}, times: map[string]time.Time{}}
}

func (c *memPriceCache) SetPrice(_ context.Context, asset string, price domain.Ticks, ts time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prices[asset] = price
	c.times[asset] = ts
	return nil
}

func (c *memPriceCache) GetPrice(_ context.Context, asset string) (domain.Ticks, time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.prices[asset]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	return p, c.times[asset], nil
}

func (c *memPriceCache) GetPrices(_ context.Context, assets []string) (map[string]domain.Ticks, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := map[string]domain.Ticks{}
	for _, a := range assets {
		if p, ok := c.prices[a]; ok {
			out[a] = p
		}
	}
	return out, nil
}

type memLeaderboardCache struct {
	mu      sync.Mutex
	byRound map[string][]domain.LeaderboardEntry
}

func newMemLeaderboardCache() *memLeaderboardCache {
	return &memLeaderboardCache{byRound: map[string][]domain.LeaderboardEntry{}}
}

func (c *memLeaderboardCache) SetRound(_ context.Context, roundID string, entries []domain.LeaderboardEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byRound[roundID] = append([]domain.LeaderboardEntry(nil), entries...)
	return nil
}

func (c *memLeaderboardCache) GetRound(_ context.Context, roundID string) ([]domain.LeaderboardEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries, ok := c.byRound[roundID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return entries, nil
}

func (c *memLeaderboardCache) Invalidate(_ context.Context, roundID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.byRound, roundID)
	return nil
}

type memBus struct {
	mu       sync.Mutex
	messages map[string][][]byte
}

func newMemBus() *memBus {
	return &memBus{messages: map[string][][]byte{}}
}

func (b *memBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages[channel] = append(b.messages[channel], payload)
	return nil
}

func (b *memBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}

func (b *memBus) StreamAppend(ctx context.Context, stream string, payload []byte) error {
	return b.Publish(ctx, stream, payload)
}

func (b *memBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

type fakeEscrow struct {
	mu           sync.Mutex
	depositTx    string
	states       map[string]domain.TxState
	transfers    map[string]domain.Ticks
	depositEr    error
	// depositErTx is returned alongside depositEr, mimicking a deposit that
	// was broadcast but never confirmed.
	depositErTx  string
	depositCalls int
}

func newFakeEscrow() *fakeEscrow {
	return &fakeEscrow{
		depositTx: "0xdeadbeef",
		states:    map[string]domain.TxState{},
		transfers: map[string]domain.Ticks{},
	}
}

func (e *fakeEscrow) Deposit(context.Context, string, int64, domain.Ticks) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.depositCalls++
	if e.depositEr != nil {
		return e.depositErTx, e.depositEr
	}
	return e.depositTx, nil
}

func (e *fakeEscrow) TxState(_ context.Context, txHash string) (domain.TxState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	state, ok := e.states[txHash]
	if !ok {
		return domain.TxPending, nil
	}
	return state, nil
}

func (e *fakeEscrow) Transfer(_ context.Context, toAddr string, amount domain.Ticks) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.transfers[toAddr] += amount
	return "0xpayout", nil
}

func (e *fakeEscrow) setTxState(txHash string, state domain.TxState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.states[txHash] = state
}

type fakeFeed struct {
	mu   sync.Mutex
	mids map[string]domain.Ticks
	err  error
	// failFirst makes the first n calls fail before the feed recovers.
	failFirst int
	calls     int
}

func (f *fakeFeed) AllMids(context.Context) (map[string]domain.Ticks, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failFirst {
		return nil, errors.New("upstream unavailable")
	}
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]domain.Ticks, len(f.mids))
	for k, v := range f.mids {
		out[k] = v
	}
	return out, nil
}

type fakeSampler struct {
	mu     sync.Mutex
	prices map[string]domain.Ticks
	err    error
}

func (f *fakeSampler) SampleAt(_ context.Context, asset string) (domain.Ticks, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	p, ok := f.prices[asset]
	if !ok {
		return 0, domain.ErrPriceUnavailable
	}
	return p, nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeNotifier) Notify(_ context.Context, event, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func paginate[T any](items []T, opts domain.ListOpts) []T {
	if opts.Offset > 0 {
		if opts.Offset >= len(items) {
			return nil
		}
		items = items[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(items) {
		items = items[:opts.Limit]
	}
	return items
}
