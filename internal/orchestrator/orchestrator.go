// Package orchestrator implements the Trade Orchestrator: the
// per-user cycle that reads the latest prediction and market event for
// every configured city, runs the EV/sizing engine, passes each candidate
// signal through the risk guard chain, and either places the order directly
// (auto mode) or enqueues it for manual approval.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bozweather/trader/internal/approval"
	"github.com/bozweather/trader/internal/kalshi"
	"github.com/bozweather/trader/internal/metrics"
	"github.com/bozweather/trader/internal/model"
	"github.com/bozweather/trader/internal/risk"
	"github.com/bozweather/trader/internal/sizing"
	"github.com/bozweather/trader/internal/weather"
)

// CycleTimeout is the watchdog duration for a single orchestration cycle:
// any cycle running longer is cancelled and logged as CycleStalled.
const CycleTimeout = 10 * time.Minute

// PredictionSource retrieves the latest ensemble prediction for a city/date.
type PredictionSource interface {
	LatestPrediction(ctx context.Context, city, targetDate string) (model.EnsemblePrediction, error)
}

// FreshnessSource reports forecast staleness — satisfied by *weather.Ingestor.
type FreshnessSource interface {
	IsStale(ctx context.Context, city, targetDate string, thresholdMinutes int) (bool, error)
}

// ForecastSource retrieves forecasts for the audit snapshot frozen into a
// TradeRecord. Optional: a nil ForecastSource simply leaves the snapshot
// empty.
type ForecastSource interface {
	ForecastsFor(ctx context.Context, city, targetDate string) ([]model.Forecast, error)
}

// EventLister retrieves the current market event (with brackets and resting
// prices) for a city/date — satisfied by *kalshi.Client.
type EventLister interface {
	ListEventsFor(ctx context.Context, cityEventSeries, targetDate string) (model.MarketEvent, error)
}

// OrderPlacer places an order directly against the exchange — satisfied by
// *kalshi.Client.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, req kalshi.OrderRequest) (kalshi.OrderResponse, error)
}

// ApprovalEnqueuer hands a signal to the manual-approval queue — satisfied
// by *approval.Queue.
type ApprovalEnqueuer interface {
	Enqueue(ctx context.Context, userID string, signal model.TradeSignal, weatherSnapshot []model.Forecast, prediction model.EnsemblePrediction) (string, error)
}

// RiskLedger rebuilds a user's RiskState from the trade ledger and persists
// executed trades — satisfied by store.Store.
type RiskLedger interface {
	RiskStateFor(ctx context.Context, userID string, since time.Time) (model.RiskState, error)
	SaveTradeRecord(ctx context.Context, t model.TradeRecord) error
}

// Orchestrator drives one trade cycle at a time per user, reading whatever
// is currently durable from ingestion (A) and settlement (B) — it never
// waits on either.
type Orchestrator struct {
	Predictions PredictionSource
	Forecasts   ForecastSource // optional
	Exchange    EventLister
	Orders      OrderPlacer
	Approval    ApprovalEnqueuer
	Freshness   FreshnessSource
	Ledger      RiskLedger
	Cities      []weather.City

	FreshnessCapMinutes int
	RiskLookback        time.Duration // how far back RiskStateFor rebuilds from; default 7 days

	cycleLocks sync.Map // userID -> *sync.Mutex
}

// RunCycle runs one full cycle for a single user: every configured city,
// every active bracket, both sides. Cycles for the same user never overlap;
// cycles for different users run concurrently.
func (o *Orchestrator) RunCycle(ctx context.Context, user model.User, sizingCfg sizing.Config, riskCfg risk.Config) error {
	lock := o.lockFor(user.ID)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, CycleTimeout)
	defer cancel()

	err := o.runCycle(ctx, user, sizingCfg, riskCfg)
	metrics.OrchestrationCycleDuration.Observe(time.Since(start).Seconds())

	if ctx.Err() == context.DeadlineExceeded {
		metrics.OrchestrationCycleStalledTotal.Inc()
		slog.Warn("orchestrator: cycle stalled", "user_id", user.ID)
		return fmt.Errorf("orchestrator: cycle stalled for user %s: %w", user.ID, ctx.Err())
	}
	return err
}

func (o *Orchestrator) lockFor(userID string) *sync.Mutex {
	v, _ := o.cycleLocks.LoadOrStore(userID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

func (o *Orchestrator) runCycle(ctx context.Context, user model.User, sizingCfg sizing.Config, riskCfg risk.Config) error {
	lookback := o.RiskLookback
	if lookback <= 0 {
		lookback = 7 * 24 * time.Hour
	}
	riskState, err := o.Ledger.RiskStateFor(ctx, user.ID, time.Now().Add(-lookback))
	if err != nil {
		return fmt.Errorf("orchestrator: rebuild risk state for %s: %w", user.ID, err)
	}
	if riskState.LastLossAt != nil {
		until := riskState.LastLossAt.Add(riskCfg.CooldownPerLoss)
		if until.After(time.Now()) {
			riskState.CooldownUntil = &until
		}
	}

	controller := risk.NewController(riskCfg, freshnessAdapter{ctx: ctx, source: o.Freshness})

	for _, city := range o.Cities {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		o.runCity(ctx, user, city, sizingCfg, controller, &riskState)
	}
	return nil
}

func (o *Orchestrator) runCity(ctx context.Context, user model.User, city weather.City, sizingCfg sizing.Config, controller *risk.Controller, riskState *model.RiskState) {
	targetDate := weather.TargetDateFor(city, time.Now())

	prediction, err := o.Predictions.LatestPrediction(ctx, city.Code, targetDate)
	if err != nil {
		slog.Info("orchestrator: no prediction, skipping city", "city", city.Code, "target_date", targetDate, "error", err)
		return
	}

	event, err := o.Exchange.ListEventsFor(ctx, city.EventSeries, targetDate)
	if err != nil {
		slog.Info("orchestrator: no market event, skipping city", "city", city.Code, "target_date", targetDate, "error", err)
		return
	}

	candidates := buildCandidates(prediction, event)
	signals := sizing.Scan(candidates, sizingCfg)
	metrics.EVScanSignalsTotal.WithLabelValues("scanned").Add(float64(len(candidates)))
	metrics.EVScanSignalsTotal.WithLabelValues("signal").Add(float64(len(signals)))

	var snapshot []model.Forecast
	if o.Forecasts != nil {
		if fc, err := o.Forecasts.ForecastsFor(ctx, city.Code, targetDate); err != nil {
			slog.Warn("orchestrator: could not load forecast snapshot", "city", city.Code, "error", err)
		} else {
			snapshot = fc
		}
	}

	today := targetDate
	for _, signal := range signals {
		decision := controller.Allow(signal, *riskState, today, time.Now())
		if !decision.Allow {
			metrics.RiskDenialsTotal.WithLabelValues(string(decision.Reason)).Inc()
			continue
		}

		if user.Mode == model.TradingModeAuto {
			o.placeDirectly(ctx, user, signal, prediction, snapshot, today, riskState)
		} else {
			id, err := o.Approval.Enqueue(ctx, user.ID, signal, snapshot, prediction)
			if err != nil {
				slog.Error("orchestrator: enqueue pending trade failed", "user_id", user.ID, "error", err)
				continue
			}
			metrics.ApprovalQueueSize.Inc()
			slog.Info("orchestrator: enqueued pending trade", "pending_id", id, "city", signal.City, "bracket", signal.BracketTicker, "side", signal.Side)
		}
	}
}

func (o *Orchestrator) placeDirectly(ctx context.Context, user model.User, signal model.TradeSignal, prediction model.EnsemblePrediction, snapshot []model.Forecast, today string, riskState *model.RiskState) {
	clientID := uuid.New().String()
	resp, err := o.Orders.PlaceOrder(ctx, kalshi.OrderRequest{
		Ticker:     signal.BracketTicker,
		Side:       signal.Side,
		Quantity:   signal.SizedQuantity,
		PriceCents: signal.LimitPriceCents,
		ClientID:   clientID,
	})
	if err != nil {
		slog.Error("orchestrator: place_order failed", "user_id", user.ID, "bracket", signal.BracketTicker, "error", err)
		return
	}

	record := model.TradeRecord{
		ID:                 uuid.New().String(),
		UserID:             user.ID,
		ExchangeOrderID:    resp.OrderID,
		City:               signal.City,
		TargetDate:         signal.TargetDate,
		BracketTicker:      signal.BracketTicker,
		BracketLabel:       signal.BracketLabel,
		Side:               signal.Side,
		EntryPriceCents:    signal.LimitPriceCents,
		Quantity:           signal.SizedQuantity,
		ModelProbability:   signal.ModelProbability,
		MarketProbability:  signal.MarketProbability,
		EVAtEntry:          signal.EV,
		Confidence:         signal.Confidence,
		WeatherSnapshot:    snapshot,
		PredictionSnapshot: prediction,
		Status:             model.TradeStatusOpen,
		CreatedAt:          time.Now().UTC(),
	}
	if err := o.Ledger.SaveTradeRecord(ctx, record); err != nil {
		slog.Error("orchestrator: persisting trade record failed after order placement", "order_id", resp.OrderID, "error", err)
		return
	}

	risk.RecordExposure(riskState, today, signal.CostCents())
	metrics.TradesExecutedTotal.WithLabelValues(string(signal.Side), string(user.Mode)).Inc()
}

// buildCandidates produces both the YES and NO candidate for every active
// bracket whose label has a matching model probability. Brackets whose
// status is "closed" or "settled" are skipped.
func buildCandidates(prediction model.EnsemblePrediction, event model.MarketEvent) []sizing.Candidate {
	probByLabel := make(map[string]float64, len(prediction.BracketProbabilities))
	for _, bp := range prediction.BracketProbabilities {
		probByLabel[bp.Label] = bp.Probability
	}

	var candidates []sizing.Candidate
	for _, b := range event.Brackets {
		if b.Status == "closed" || b.Status == "settled" {
			continue
		}
		modelProbYes, ok := probByLabel[b.Label]
		if !ok {
			continue
		}
		candidates = append(candidates,
			sizing.Candidate{
				City: event.City, TargetDate: event.TargetDate,
				BracketTicker: b.Ticker, BracketLabel: b.Label,
				Side: model.SideYes, ModelProb: modelProbYes, AskPriceCents: b.YesAskCents,
				Confidence: prediction.Confidence,
			},
			sizing.Candidate{
				City: event.City, TargetDate: event.TargetDate,
				BracketTicker: b.Ticker, BracketLabel: b.Label,
				Side: model.SideNo, ModelProb: 1 - modelProbYes, AskPriceCents: b.NoAskCents,
				Confidence: prediction.Confidence,
			},
		)
	}
	return candidates
}

// freshnessAdapter binds a context.Context to a FreshnessSource so it
// satisfies risk.FreshnessChecker's context-free signature — the Risk
// Controller is a pure synchronous guard chain and deliberately does not
// take a context itself.
type freshnessAdapter struct {
	ctx    context.Context
	source FreshnessSource
}

func (f freshnessAdapter) IsStale(city, targetDate string, thresholdMinutes int) (bool, error) {
	if f.source == nil {
		return false, nil
	}
	return f.source.IsStale(f.ctx, city, targetDate, thresholdMinutes)
}

var _ approval.OrderPlacer = (*approvalOrderPlacerAdapter)(nil)

// approvalOrderPlacerAdapter adapts *kalshi.Client to approval.OrderPlacer,
// translating between the kalshi package's request/response types and
// approval's exchange-agnostic ones.
type approvalOrderPlacerAdapter struct {
	client OrderPlacer
}

// NewApprovalOrderPlacer wraps an exchange client so the approval queue can
// place orders without importing kalshi directly.
func NewApprovalOrderPlacer(client OrderPlacer) approval.OrderPlacer {
	return &approvalOrderPlacerAdapter{client: client}
}

func (a *approvalOrderPlacerAdapter) PlaceOrder(ctx context.Context, req approval.PlaceOrderRequest) (approval.PlaceOrderResult, error) {
	resp, err := a.client.PlaceOrder(ctx, kalshi.OrderRequest{
		Ticker:     req.Ticker,
		Side:       req.Side,
		Quantity:   req.Quantity,
		PriceCents: req.PriceCents,
		ClientID:   req.ClientID,
	})
	if err != nil {
		return approval.PlaceOrderResult{Accepted: false, Rejection: err.Error()}, nil
	}
	return approval.PlaceOrderResult{Accepted: true, OrderID: resp.OrderID}, nil
}
