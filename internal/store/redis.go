package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bozweather/trader/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary. CASStatus and anything
// touching the pending-trade state machine always hits the primary directly
// — caching a compare-and-swap would defeat its whole purpose.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{primary: primary, rdb: rdb, ttl: ttl}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) SaveForecast(ctx context.Context, f model.Forecast) error {
	if err := s.primary.SaveForecast(ctx, f); err != nil {
		return err
	}
	s.rdb.Del(ctx, forecastsKey(f.City, f.TargetDate))
	return nil
}

func (s *CachedStore) SavePrediction(ctx context.Context, p model.EnsemblePrediction) error {
	if err := s.primary.SavePrediction(ctx, p); err != nil {
		return err
	}
	s.rdb.Del(ctx, latestPredictionKey(p.City, p.TargetDate))
	return nil
}

func (s *CachedStore) SaveSettlement(ctx context.Context, st model.Settlement) error {
	if err := s.primary.SaveSettlement(ctx, st); err != nil {
		return err
	}
	s.rdb.Del(ctx, settlementRedisKey(st.City, st.TargetDate))
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) ForecastsFor(ctx context.Context, city, targetDate string) ([]model.Forecast, error) {
	key := forecastsKey(city, targetDate)
	if data, err := s.rdb.Get(ctx, key).Bytes(); err == nil {
		var out []model.Forecast
		if json.Unmarshal(data, &out) == nil {
			return out, nil
		}
	}

	out, err := s.primary.ForecastsFor(ctx, city, targetDate)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(out); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
	return out, nil
}

func (s *CachedStore) LatestPrediction(ctx context.Context, city, targetDate string) (model.EnsemblePrediction, error) {
	key := latestPredictionKey(city, targetDate)
	if data, err := s.rdb.Get(ctx, key).Bytes(); err == nil {
		var p model.EnsemblePrediction
		if json.Unmarshal(data, &p) == nil {
			return p, nil
		}
	}

	p, err := s.primary.LatestPrediction(ctx, city, targetDate)
	if err != nil {
		return model.EnsemblePrediction{}, err
	}
	if data, err := json.Marshal(p); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
	return p, nil
}

func (s *CachedStore) GetSettlement(ctx context.Context, city, targetDate string) (model.Settlement, error) {
	key := settlementRedisKey(city, targetDate)
	if data, err := s.rdb.Get(ctx, key).Bytes(); err == nil {
		var st model.Settlement
		if json.Unmarshal(data, &st) == nil {
			return st, nil
		}
	}

	st, err := s.primary.GetSettlement(ctx, city, targetDate)
	if err != nil {
		return model.Settlement{}, err
	}
	if data, err := json.Marshal(st); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
	return st, nil
}

// --- Passthrough: CAS and the pending-trade lifecycle never touch Redis ---

func (s *CachedStore) SavePendingTrade(ctx context.Context, p model.PendingTrade) error {
	return s.primary.SavePendingTrade(ctx, p)
}

func (s *CachedStore) GetPendingTrade(ctx context.Context, id string) (model.PendingTrade, error) {
	return s.primary.GetPendingTrade(ctx, id)
}

func (s *CachedStore) CASStatus(ctx context.Context, id string, expected, next model.PendingStatus, actedAt time.Time) (bool, error) {
	return s.primary.CASStatus(ctx, id, expected, next, actedAt)
}

func (s *CachedStore) ListExpiring(ctx context.Context, before time.Time) ([]model.PendingTrade, error) {
	return s.primary.ListExpiring(ctx, before)
}

func (s *CachedStore) SaveTradeRecord(ctx context.Context, t model.TradeRecord) error {
	return s.primary.SaveTradeRecord(ctx, t)
}

func (s *CachedStore) UpdateTradeSettlement(ctx context.Context, id string, status model.TradeStatus, settlementTempF float64, pnlCents model.Cents, narrative string, settledAt time.Time) error {
	return s.primary.UpdateTradeSettlement(ctx, id, status, settlementTempF, pnlCents, narrative, settledAt)
}

func (s *CachedStore) TradesForUser(ctx context.Context, userID string) ([]model.TradeRecord, error) {
	return s.primary.TradesForUser(ctx, userID)
}

func (s *CachedStore) OpenTradesForUser(ctx context.Context, userID string) ([]model.TradeRecord, error) {
	return s.primary.OpenTradesForUser(ctx, userID)
}

func (s *CachedStore) RiskStateFor(ctx context.Context, userID string, since time.Time) (model.RiskState, error) {
	return s.primary.RiskStateFor(ctx, userID, since)
}

func (s *CachedStore) UnsettledTrades(ctx context.Context, city, targetDate string) ([]model.TradeRecord, error) {
	return s.primary.UnsettledTrades(ctx, city, targetDate)
}

func (s *CachedStore) CreateUser(ctx context.Context, u model.User) error {
	return s.primary.CreateUser(ctx, u)
}

func (s *CachedStore) GetUser(ctx context.Context, id string) (model.User, error) {
	return s.primary.GetUser(ctx, id)
}

func (s *CachedStore) ListUsers(ctx context.Context) ([]model.User, error) {
	return s.primary.ListUsers(ctx)
}

func (s *CachedStore) AppendLogEntry(ctx context.Context, e model.LogEntry) error {
	return s.primary.AppendLogEntry(ctx, e)
}

func (s *CachedStore) RecentLogEntries(ctx context.Context, limit int) ([]model.LogEntry, error) {
	return s.primary.RecentLogEntries(ctx, limit)
}

// --- Cache key helpers ---

func forecastsKey(city, targetDate string) string        { return fmt.Sprintf("forecasts:%s:%s", city, targetDate) }
func latestPredictionKey(city, targetDate string) string { return fmt.Sprintf("prediction:%s:%s", city, targetDate) }
func settlementRedisKey(city, targetDate string) string  { return fmt.Sprintf("settlement:%s:%s", city, targetDate) }
