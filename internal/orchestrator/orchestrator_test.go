package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/bozweather/trader/internal/kalshi"
	"github.com/bozweather/trader/internal/model"
	"github.com/bozweather/trader/internal/risk"
	"github.com/bozweather/trader/internal/sizing"
	"github.com/bozweather/trader/internal/weather"
)

func f(v float64) *float64 { return &v }

func testCity() weather.City {
	return weather.City{Code: "NYC", Name: "New York City", EventSeries: "KXHIGHNY"}
}

type fakePredictions struct {
	pred model.EnsemblePrediction
	err  error
}

func (p *fakePredictions) LatestPrediction(_ context.Context, city, targetDate string) (model.EnsemblePrediction, error) {
	return p.pred, p.err
}

type fakeEvents struct {
	event model.MarketEvent
	err   error
}

func (e *fakeEvents) ListEventsFor(_ context.Context, series, targetDate string) (model.MarketEvent, error) {
	return e.event, e.err
}

type fakeOrders struct {
	resp  kalshi.OrderResponse
	err   error
	calls int
}

func (o *fakeOrders) PlaceOrder(_ context.Context, req kalshi.OrderRequest) (kalshi.OrderResponse, error) {
	o.calls++
	return o.resp, o.err
}

type fakeApproval struct {
	calls              int
	lastWeatherSnap    []model.Forecast
	lastPredictionSnap model.EnsemblePrediction
}

func (a *fakeApproval) Enqueue(_ context.Context, userID string, signal model.TradeSignal, weatherSnapshot []model.Forecast, prediction model.EnsemblePrediction) (string, error) {
	a.calls++
	a.lastWeatherSnap = weatherSnapshot
	a.lastPredictionSnap = prediction
	return "pending-1", nil
}

type fakeFreshness struct{}

func (fakeFreshness) IsStale(_ context.Context, city, targetDate string, thresholdMinutes int) (bool, error) {
	return false, nil
}

type fakeLedger struct {
	state   model.RiskState
	records []model.TradeRecord
}

func (l *fakeLedger) RiskStateFor(_ context.Context, userID string, since time.Time) (model.RiskState, error) {
	return l.state, nil
}

func (l *fakeLedger) SaveTradeRecord(_ context.Context, t model.TradeRecord) error {
	l.records = append(l.records, t)
	return nil
}

func basePrediction() model.EnsemblePrediction {
	return model.EnsemblePrediction{
		City: "NYC", TargetDate: "2026-02-18", Confidence: model.ConfidenceHigh,
		BracketProbabilities: []model.BracketProbability{
			{Label: "70-72", Probability: 0.80},
		},
	}
}

func baseEvent() model.MarketEvent {
	return model.MarketEvent{
		EventID: "EVT1", City: "NYC", TargetDate: "2026-02-18",
		Brackets: []model.Bracket{
			{Ticker: "NYC-70-72", Label: "70-72", LowerBoundF: f(70), UpperBoundF: f(72), YesAskCents: 40, NoAskCents: 65},
		},
	}
}

func testSizingCfg() sizing.Config {
	return sizing.DefaultConfig(10000)
}

func testRiskCfg() risk.Config {
	return risk.Config{
		FreshnessCapMinutes: 120, MinEVThreshold: 0.05, MaxTradeSizeCents: 10000,
		MaxDailyExposureCents: 50000, DailyLossLimitCents: 20000,
		CooldownPerLoss: 30 * time.Minute, ConsecutiveLossLimit: 3,
	}
}

func TestOrchestrator_AutoMode_PlacesOrderAndPersistsRecord(t *testing.T) {
	orders := &fakeOrders{resp: kalshi.OrderResponse{OrderID: "ord-1"}}
	ledger := &fakeLedger{}
	o := &Orchestrator{
		Predictions: &fakePredictions{pred: basePrediction()},
		Exchange:    &fakeEvents{event: baseEvent()},
		Orders:      orders,
		Approval:    &fakeApproval{},
		Freshness:   fakeFreshness{},
		Ledger:      ledger,
		Cities:      []weather.City{testCity()},
	}

	user := model.User{ID: "u1", Mode: model.TradingModeAuto}
	if err := o.RunCycle(context.Background(), user, testSizingCfg(), testRiskCfg()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if orders.calls == 0 {
		t.Error("expected at least one order placed")
	}
	if len(ledger.records) == 0 {
		t.Error("expected at least one trade record persisted")
	}
}

func TestOrchestrator_ManualMode_Enqueues(t *testing.T) {
	approvalQ := &fakeApproval{}
	orders := &fakeOrders{}
	o := &Orchestrator{
		Predictions: &fakePredictions{pred: basePrediction()},
		Exchange:    &fakeEvents{event: baseEvent()},
		Orders:      orders,
		Approval:    approvalQ,
		Freshness:   fakeFreshness{},
		Ledger:      &fakeLedger{},
		Cities:      []weather.City{testCity()},
	}

	user := model.User{ID: "u2", Mode: model.TradingModeManual}
	if err := o.RunCycle(context.Background(), user, testSizingCfg(), testRiskCfg()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if approvalQ.calls == 0 {
		t.Error("expected signal to be enqueued for manual approval")
	}
	if orders.calls != 0 {
		t.Error("manual mode should never place an order directly")
	}
	if approvalQ.lastPredictionSnap.City != basePrediction().City {
		t.Errorf("expected the prediction snapshot to be frozen into the enqueue call, got %+v", approvalQ.lastPredictionSnap)
	}
}

func TestOrchestrator_RiskDenial_SkipsWithoutPlacingOrder(t *testing.T) {
	orders := &fakeOrders{}
	ledger := &fakeLedger{state: model.RiskState{ConsecutiveLosses: 3}}
	o := &Orchestrator{
		Predictions: &fakePredictions{pred: basePrediction()},
		Exchange:    &fakeEvents{event: baseEvent()},
		Orders:      orders,
		Approval:    &fakeApproval{},
		Freshness:   fakeFreshness{},
		Ledger:      ledger,
		Cities:      []weather.City{testCity()},
	}

	user := model.User{ID: "u3", Mode: model.TradingModeAuto}
	if err := o.RunCycle(context.Background(), user, testSizingCfg(), testRiskCfg()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if orders.calls != 0 {
		t.Error("expected consecutive-loss cap to deny the signal before any order was placed")
	}
}

func TestOrchestrator_MissingPrediction_SkipsCityWithoutError(t *testing.T) {
	o := &Orchestrator{
		Predictions: &fakePredictions{err: errNotFoundForTest{}},
		Exchange:    &fakeEvents{event: baseEvent()},
		Orders:      &fakeOrders{},
		Approval:    &fakeApproval{},
		Freshness:   fakeFreshness{},
		Ledger:      &fakeLedger{},
		Cities:      []weather.City{testCity()},
	}

	user := model.User{ID: "u4", Mode: model.TradingModeAuto}
	if err := o.RunCycle(context.Background(), user, testSizingCfg(), testRiskCfg()); err != nil {
		t.Fatalf("missing prediction should be logged and skipped, not returned as an error: %v", err)
	}
}

type errNotFoundForTest struct{}

func (errNotFoundForTest) Error() string { return "no prediction" }
