// Package risk implements the Risk Controller: a single,
// authoritative, ordered guard chain every order placement must pass
// through. There is no out-of-band path to the exchange.
package risk

import (
	"log/slog"
	"time"

	"github.com/bozweather/trader/internal/model"
)

// Reason identifies which guard denied a signal, using stable named deny
// reasons so counters and logs can key off it.
type Reason string

const (
	ReasonStaleData          Reason = "StaleData"
	ReasonMinEvNotMet        Reason = "MinEvNotMet"
	ReasonSizeCap            Reason = "SizeCap"
	ReasonExposureCap        Reason = "ExposureCap"
	ReasonDailyLossCap       Reason = "DailyLossCap"
	ReasonCooldown           Reason = "Cooldown"
	ReasonConsecutiveLossCap Reason = "ConsecutiveLossCap"
)

// Decision is the guard chain's verdict on one signal.
type Decision struct {
	Allow   bool
	Reason  Reason
	Context map[string]any
}

// Config holds the limits the guard chain enforces.
type Config struct {
	FreshnessCapMinutes   int
	MinEVThreshold        float64
	MaxTradeSizeCents     model.Cents
	MaxDailyExposureCents model.Cents
	DailyLossLimitCents   model.Cents
	CooldownPerLoss       time.Duration
	ConsecutiveLossLimit  int
}

// FreshnessChecker reports whether the newest forecast for a city is
// stale — kept as a narrow interface so risk does not depend on the
// weather package's full Ingestor.
type FreshnessChecker interface {
	IsStale(city, targetDate string, thresholdMinutes int) (bool, error)
}

// Controller evaluates the ordered guard chain against a signal and a
// user's current RiskState.
type Controller struct {
	Config    Config
	Freshness FreshnessChecker
}

// NewController builds a Controller with the given config and freshness
// checker.
func NewController(cfg Config, freshness FreshnessChecker) *Controller {
	return &Controller{Config: cfg, Freshness: freshness}
}

// Allow runs the seven ordered checks against signal and state; the
// first deny short-circuits the rest. today is the (city-local
// standard-time) date key used to index RiskState's daily maps.
func (c *Controller) Allow(signal model.TradeSignal, state model.RiskState, today string, now time.Time) Decision {
	ctx := map[string]any{
		"city":       signal.City,
		"side":       signal.Side,
		"bracket":    signal.BracketTicker,
		"ev":         signal.EV,
		"confidence": signal.Confidence,
	}

	if c.Freshness != nil {
		stale, err := c.Freshness.IsStale(signal.City, signal.TargetDate, c.Config.FreshnessCapMinutes)
		if err != nil {
			ctx["error"] = err.Error()
			return c.deny(ReasonStaleData, ctx)
		}
		if stale {
			return c.deny(ReasonStaleData, ctx)
		}
	}

	if signal.EV < c.Config.MinEVThreshold {
		ctx["min_ev_threshold"] = c.Config.MinEVThreshold
		return c.deny(ReasonMinEvNotMet, ctx)
	}

	cost := signal.CostCents()
	if cost > c.Config.MaxTradeSizeCents {
		ctx["cost_cents"] = cost
		ctx["max_trade_size_cents"] = c.Config.MaxTradeSizeCents
		return c.deny(ReasonSizeCap, ctx)
	}

	exposureToday := state.DailyExposureCents[today]
	if exposureToday+cost > c.Config.MaxDailyExposureCents {
		ctx["exposure_today_cents"] = exposureToday
		ctx["max_daily_exposure_cents"] = c.Config.MaxDailyExposureCents
		return c.deny(ReasonExposureCap, ctx)
	}

	realizedToday := state.DailyRealizedPnLCents[today]
	if realizedToday <= -c.Config.DailyLossLimitCents {
		ctx["realized_pnl_today_cents"] = realizedToday
		ctx["daily_loss_limit_cents"] = c.Config.DailyLossLimitCents
		return c.deny(ReasonDailyLossCap, ctx)
	}

	if state.CooldownUntil != nil && state.CooldownUntil.After(now) {
		ctx["cooldown_until"] = state.CooldownUntil
		return c.deny(ReasonCooldown, ctx)
	}

	if state.ConsecutiveLosses >= c.Config.ConsecutiveLossLimit {
		ctx["consecutive_losses"] = state.ConsecutiveLosses
		ctx["consecutive_loss_limit"] = c.Config.ConsecutiveLossLimit
		return c.deny(ReasonConsecutiveLossCap, ctx)
	}

	return Decision{Allow: true, Context: ctx}
}

func (c *Controller) deny(reason Reason, ctx map[string]any) Decision {
	slog.Info("risk guard denied signal", "reason", reason, "context", ctx)
	return Decision{Allow: false, Reason: reason, Context: ctx}
}

// ApplyWin updates state after a trade WON: consecutive losses reset,
// daily realized PnL increases.
func ApplyWin(state *model.RiskState, today string, pnlCents model.Cents) {
	state.ConsecutiveLosses = 0
	addDaily(&state.DailyRealizedPnLCents, today, pnlCents)
}

// ApplyLoss updates state after a trade LOST: consecutive losses
// increment, a cooldown is set, and daily realized PnL decreases
// (pnlCents is expected to be <= 0).
func ApplyLoss(state *model.RiskState, today string, pnlCents model.Cents, now time.Time, cooldown time.Duration) {
	state.ConsecutiveLosses++
	lossTime := now
	state.LastLossAt = &lossTime
	until := now.Add(cooldown)
	state.CooldownUntil = &until
	addDaily(&state.DailyRealizedPnLCents, today, pnlCents)
}

// ApplyCancelled is a no-op: a trade cancelled before fill produces no
// state change. Present for call-site symmetry with ApplyWin/ApplyLoss.
func ApplyCancelled(state *model.RiskState) {}

func addDaily(m *map[string]model.Cents, key string, delta model.Cents) {
	if *m == nil {
		*m = make(map[string]model.Cents)
	}
	(*m)[key] += delta
}

// RecordExposure adds cost to today's opened-exposure tally, called when
// an order is actually placed (not merely evaluated).
func RecordExposure(state *model.RiskState, today string, cost model.Cents) {
	addDaily(&state.DailyExposureCents, today, cost)
}
