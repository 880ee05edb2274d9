package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bozweather/trader/internal/model"
)

// MemoryStore implements Store with in-memory maps and slices. Used for
// testing and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu sync.RWMutex

	forecasts     []model.Forecast
	predictions   []model.EnsemblePrediction
	settlements   map[string]model.Settlement // key city|targetDate
	pendingTrades map[string]model.PendingTrade
	tradeRecords  map[string]model.TradeRecord
	users         map[string]model.User
	logEntries    []model.LogEntry
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		settlements:   make(map[string]model.Settlement),
		pendingTrades: make(map[string]model.PendingTrade),
		tradeRecords:  make(map[string]model.TradeRecord),
		users:         make(map[string]model.User),
	}
}

func settlementKey(city, targetDate string) string { return city + "|" + targetDate }

// --- Forecasts ---

func (s *MemoryStore) SaveForecast(_ context.Context, f model.Forecast) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forecasts = append(s.forecasts, f)
	return nil
}

func (s *MemoryStore) ForecastsFor(_ context.Context, city, targetDate string) ([]model.Forecast, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Forecast
	for _, f := range s.forecasts {
		if f.City == city && f.TargetDate == targetDate {
			out = append(out, f)
		}
	}
	return out, nil
}

// --- Predictions ---

func (s *MemoryStore) SavePrediction(_ context.Context, p model.EnsemblePrediction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.predictions = append(s.predictions, p)
	return nil
}

func (s *MemoryStore) LatestPrediction(_ context.Context, city, targetDate string) (model.EnsemblePrediction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest model.EnsemblePrediction
	found := false
	for _, p := range s.predictions {
		if p.City != city || p.TargetDate != targetDate {
			continue
		}
		if !found || p.GeneratedAt.After(latest.GeneratedAt) {
			latest = p
			found = true
		}
	}
	if !found {
		return model.EnsemblePrediction{}, errNotFound("prediction", city+"/"+targetDate)
	}
	return latest, nil
}

// --- Settlements ---

func (s *MemoryStore) SaveSettlement(_ context.Context, st model.Settlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settlements[settlementKey(st.City, st.TargetDate)] = st
	return nil
}

func (s *MemoryStore) GetSettlement(_ context.Context, city, targetDate string) (model.Settlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.settlements[settlementKey(city, targetDate)]
	if !ok {
		return model.Settlement{}, errNotFound("settlement", city+"/"+targetDate)
	}
	return st, nil
}

func (s *MemoryStore) UnsettledTrades(_ context.Context, city, targetDate string) ([]model.TradeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.TradeRecord
	for _, t := range s.tradeRecords {
		if t.City == city && t.TargetDate == targetDate && t.Status == model.TradeStatusOpen {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// --- Pending trades ---

func (s *MemoryStore) SavePendingTrade(_ context.Context, p model.PendingTrade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingTrades[p.ID] = p
	return nil
}

func (s *MemoryStore) GetPendingTrade(_ context.Context, id string) (model.PendingTrade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pendingTrades[id]
	if !ok {
		return model.PendingTrade{}, errNotFound("pending trade", id)
	}
	return p, nil
}

func (s *MemoryStore) CASStatus(_ context.Context, id string, expected, next model.PendingStatus, actedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pendingTrades[id]
	if !ok {
		return false, errNotFound("pending trade", id)
	}
	if p.Status != expected {
		return false, nil
	}
	p.Status = next
	at := actedAt
	p.ActedAt = &at
	s.pendingTrades[id] = p
	return true, nil
}

func (s *MemoryStore) ListExpiring(_ context.Context, before time.Time) ([]model.PendingTrade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.PendingTrade
	for _, p := range s.pendingTrades {
		if p.Status == model.PendingStatusPending && p.ExpiresAt.Before(before) {
			out = append(out, p)
		}
	}
	return out, nil
}

// --- Trade records ---

func (s *MemoryStore) SaveTradeRecord(_ context.Context, t model.TradeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tradeRecords[t.ID] = t
	return nil
}

func (s *MemoryStore) UpdateTradeSettlement(_ context.Context, id string, status model.TradeStatus, settlementTempF float64, pnlCents model.Cents, narrative string, settledAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tradeRecords[id]
	if !ok {
		return errNotFound("trade record", id)
	}
	t.Status = status
	t.SettlementTempF = &settlementTempF
	pnl := pnlCents
	t.PnLCents = &pnl
	t.PostmortemNarrative = narrative
	at := settledAt
	t.SettledAt = &at
	s.tradeRecords[id] = t
	return nil
}

func (s *MemoryStore) TradesForUser(_ context.Context, userID string) ([]model.TradeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.TradeRecord
	for _, t := range s.tradeRecords {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) OpenTradesForUser(_ context.Context, userID string) ([]model.TradeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.TradeRecord
	for _, t := range s.tradeRecords {
		if t.UserID == userID && t.Status == model.TradeStatusOpen {
			out = append(out, t)
		}
	}
	return out, nil
}

// --- Risk state ---

// RiskStateFor rebuilds ConsecutiveLosses, DailyRealizedPnLCents,
// DailyExposureCents, and LastLossAt from the trade ledger. CooldownUntil is
// intentionally left nil: the cooldown duration is a risk.Config knob, not a
// storage concern, so the caller derives it from LastLossAt.
func (s *MemoryStore) RiskStateFor(_ context.Context, userID string, since time.Time) (model.RiskState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var trades []model.TradeRecord
	for _, t := range s.tradeRecords {
		if t.UserID == userID && t.CreatedAt.After(since) {
			trades = append(trades, t)
		}
	}
	sort.Slice(trades, func(i, j int) bool {
		ti, tj := settleOrder(trades[i]), settleOrder(trades[j])
		return ti.Before(tj)
	})

	state := model.RiskState{UserID: userID}
	for _, t := range trades {
		dayKey := t.CreatedAt.Format("2006-01-02")
		addCents(&state.DailyExposureCents, dayKey, model.Cents(t.Quantity)*t.EntryPriceCents)

		switch t.Status {
		case model.TradeStatusWon:
			state.ConsecutiveLosses = 0
			if t.PnLCents != nil && t.SettledAt != nil {
				addCents(&state.DailyRealizedPnLCents, t.SettledAt.Format("2006-01-02"), *t.PnLCents)
			}
		case model.TradeStatusLost:
			state.ConsecutiveLosses++
			if t.SettledAt != nil {
				at := *t.SettledAt
				state.LastLossAt = &at
			}
			if t.PnLCents != nil && t.SettledAt != nil {
				addCents(&state.DailyRealizedPnLCents, t.SettledAt.Format("2006-01-02"), *t.PnLCents)
			}
		}
	}
	return state, nil
}

func settleOrder(t model.TradeRecord) time.Time {
	if t.SettledAt != nil {
		return *t.SettledAt
	}
	return t.CreatedAt
}

func addCents(m *map[string]model.Cents, key string, delta model.Cents) {
	if *m == nil {
		*m = make(map[string]model.Cents)
	}
	(*m)[key] += delta
}

// --- Users ---

func (s *MemoryStore) CreateUser(_ context.Context, u model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[u.ID]; exists {
		return errConflict("user", u.ID)
	}
	s.users[u.ID] = u
	return nil
}

func (s *MemoryStore) GetUser(_ context.Context, id string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return model.User{}, errNotFound("user", id)
	}
	return u, nil
}

func (s *MemoryStore) ListUsers(_ context.Context) ([]model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// --- Log entries ---

func (s *MemoryStore) AppendLogEntry(_ context.Context, e model.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logEntries = append(s.logEntries, e)
	return nil
}

func (s *MemoryStore) RecentLogEntries(_ context.Context, limit int) ([]model.LogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.logEntries)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]model.LogEntry, limit)
	for i := 0; i < limit; i++ {
		out[i] = s.logEntries[n-1-i]
	}
	return out, nil
}
