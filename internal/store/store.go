// Package store defines the persistence interface for the weather trading
// engine. Implementations include PostgreSQL (source of truth), Redis (read-
// through cache), and in-memory (for testing).
package store

import (
	"context"
	"time"

	"github.com/bozweather/trader/internal/model"
)

// Store is the full persistence interface the trading system requires: forecasts,
// predictions, settlements, pending trades, trade records, risk state, users,
// and the dashboard log feed. PostgreSQL is the source of truth; Redis
// provides a read-through cache layer over the hot read paths.
//
// Store satisfies, by method-set superset, the narrow Store interfaces each
// domain package declares for itself (weather.Store, settlement.Store,
// approval.Store), so a single *PostgresStore — optionally wrapped in a
// *CachedStore — can be handed to every package without an adapter.
type Store interface {
	// --- Forecasts (internal/weather) ---
	SaveForecast(ctx context.Context, f model.Forecast) error
	ForecastsFor(ctx context.Context, city, targetDate string) ([]model.Forecast, error)

	// --- Predictions (internal/prediction) ---
	SavePrediction(ctx context.Context, p model.EnsemblePrediction) error
	LatestPrediction(ctx context.Context, city, targetDate string) (model.EnsemblePrediction, error)

	// --- Settlements (internal/settlement) ---
	SaveSettlement(ctx context.Context, s model.Settlement) error
	GetSettlement(ctx context.Context, city, targetDate string) (model.Settlement, error)
	UnsettledTrades(ctx context.Context, city, targetDate string) ([]model.TradeRecord, error)

	// --- Pending trades (internal/approval) ---
	SavePendingTrade(ctx context.Context, p model.PendingTrade) error
	GetPendingTrade(ctx context.Context, id string) (model.PendingTrade, error)
	CASStatus(ctx context.Context, id string, expected, next model.PendingStatus, actedAt time.Time) (bool, error)
	ListExpiring(ctx context.Context, before time.Time) ([]model.PendingTrade, error)

	// --- Trade records (audit ledger) ---
	SaveTradeRecord(ctx context.Context, t model.TradeRecord) error
	UpdateTradeSettlement(ctx context.Context, id string, status model.TradeStatus, settlementTempF float64, pnlCents model.Cents, narrative string, settledAt time.Time) error
	TradesForUser(ctx context.Context, userID string) ([]model.TradeRecord, error)
	OpenTradesForUser(ctx context.Context, userID string) ([]model.TradeRecord, error)

	// --- Risk state (internal/risk) ---
	// RiskStateFor rebuilds a user's RiskState from the trade ledger since
	// the given time; RiskState is never itself a stored row.
	RiskStateFor(ctx context.Context, userID string, since time.Time) (model.RiskState, error)

	// --- Users ---
	CreateUser(ctx context.Context, u model.User) error
	GetUser(ctx context.Context, id string) (model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)

	// --- Structured log entries (internal/httpapi dashboard feed) ---
	AppendLogEntry(ctx context.Context, e model.LogEntry) error
	RecentLogEntries(ctx context.Context, limit int) ([]model.LogEntry, error)
}
