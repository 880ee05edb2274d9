package risk

import (
	"testing"
	"time"

	"github.com/bozweather/trader/internal/model"
)

type fakeFreshness struct {
	stale bool
	err   error
}

func (f *fakeFreshness) IsStale(city, targetDate string, thresholdMinutes int) (bool, error) {
	return f.stale, f.err
}

func testConfig() Config {
	return Config{
		FreshnessCapMinutes:   120,
		MinEVThreshold:        0.05,
		MaxTradeSizeCents:     10000,
		MaxDailyExposureCents: 50000,
		DailyLossLimitCents:   20000,
		CooldownPerLoss:       30 * time.Minute,
		ConsecutiveLossLimit:  3,
	}
}

func baseSignal() model.TradeSignal {
	return model.TradeSignal{City: "NYC", TargetDate: "2026-02-18", EV: 0.10, SizedQuantity: 10, LimitPriceCents: 50}
}

func TestAllow_DeniesOnStaleData(t *testing.T) {
	c := NewController(testConfig(), &fakeFreshness{stale: true})
	d := c.Allow(baseSignal(), model.RiskState{}, "2026-02-18", time.Now())
	if d.Allow || d.Reason != ReasonStaleData {
		t.Errorf("expected deny(StaleData), got %+v", d)
	}
}

func TestAllow_DeniesOnMinEvNotMet(t *testing.T) {
	c := NewController(testConfig(), &fakeFreshness{stale: false})
	signal := baseSignal()
	signal.EV = 0.01
	d := c.Allow(signal, model.RiskState{}, "2026-02-18", time.Now())
	if d.Allow || d.Reason != ReasonMinEvNotMet {
		t.Errorf("expected deny(MinEvNotMet), got %+v", d)
	}
}

func TestAllow_DeniesOnSizeCap(t *testing.T) {
	c := NewController(testConfig(), &fakeFreshness{stale: false})
	signal := baseSignal()
	signal.SizedQuantity = 1000 // cost = 1000*50 = 50000 > 10000 cap
	d := c.Allow(signal, model.RiskState{}, "2026-02-18", time.Now())
	if d.Allow || d.Reason != ReasonSizeCap {
		t.Errorf("expected deny(SizeCap), got %+v", d)
	}
}

func TestAllow_DeniesOnExposureCap(t *testing.T) {
	c := NewController(testConfig(), &fakeFreshness{stale: false})
	state := model.RiskState{DailyExposureCents: map[string]model.Cents{"2026-02-18": 49900}}
	d := c.Allow(baseSignal(), state, "2026-02-18", time.Now()) // cost=500, 49900+500 > 50000
	if d.Allow || d.Reason != ReasonExposureCap {
		t.Errorf("expected deny(ExposureCap), got %+v", d)
	}
}

func TestAllow_DeniesOnDailyLossCap(t *testing.T) {
	c := NewController(testConfig(), &fakeFreshness{stale: false})
	state := model.RiskState{DailyRealizedPnLCents: map[string]model.Cents{"2026-02-18": -20000}}
	d := c.Allow(baseSignal(), state, "2026-02-18", time.Now())
	if d.Allow || d.Reason != ReasonDailyLossCap {
		t.Errorf("expected deny(DailyLossCap), got %+v", d)
	}
}

func TestAllow_DeniesOnCooldown(t *testing.T) {
	c := NewController(testConfig(), &fakeFreshness{stale: false})
	future := time.Now().Add(10 * time.Minute)
	state := model.RiskState{CooldownUntil: &future}
	d := c.Allow(baseSignal(), state, "2026-02-18", time.Now())
	if d.Allow || d.Reason != ReasonCooldown {
		t.Errorf("expected deny(Cooldown), got %+v", d)
	}
}

func TestAllow_DeniesOnConsecutiveLossCap(t *testing.T) {
	c := NewController(testConfig(), &fakeFreshness{stale: false})
	state := model.RiskState{ConsecutiveLosses: 3}
	d := c.Allow(baseSignal(), state, "2026-02-18", time.Now())
	if d.Allow || d.Reason != ReasonConsecutiveLossCap {
		t.Errorf("expected deny(ConsecutiveLossCap), got %+v", d)
	}
}

func TestAllow_PermitsWhenAllChecksPass(t *testing.T) {
	c := NewController(testConfig(), &fakeFreshness{stale: false})
	d := c.Allow(baseSignal(), model.RiskState{}, "2026-02-18", time.Now())
	if !d.Allow {
		t.Errorf("expected allow, got deny(%v)", d.Reason)
	}
}

func TestAllow_FirstDenyShortCircuits(t *testing.T) {
	// stale AND over min-ev AND over size cap all true; only StaleData (first
	// in the ordered chain) should be reported.
	c := NewController(testConfig(), &fakeFreshness{stale: true})
	signal := baseSignal()
	signal.EV = 0.01
	signal.SizedQuantity = 1000
	d := c.Allow(signal, model.RiskState{}, "2026-02-18", time.Now())
	if d.Reason != ReasonStaleData {
		t.Errorf("expected first-in-chain StaleData to short-circuit, got %v", d.Reason)
	}
}

func TestApplyLoss_IncrementsConsecutiveLossesAndSetsCooldown(t *testing.T) {
	state := model.RiskState{}
	now := time.Now()
	ApplyLoss(&state, "2026-02-18", -500, now, 30*time.Minute)

	if state.ConsecutiveLosses != 1 {
		t.Errorf("expected 1 consecutive loss, got %d", state.ConsecutiveLosses)
	}
	if state.CooldownUntil == nil || !state.CooldownUntil.Equal(now.Add(30*time.Minute)) {
		t.Errorf("expected cooldown_until = now+30m, got %v", state.CooldownUntil)
	}
	if state.DailyRealizedPnLCents["2026-02-18"] != -500 {
		t.Errorf("expected daily pnl -500, got %d", state.DailyRealizedPnLCents["2026-02-18"])
	}
}

func TestApplyWin_ResetsConsecutiveLosses(t *testing.T) {
	state := model.RiskState{ConsecutiveLosses: 2}
	ApplyWin(&state, "2026-02-18", 750)

	if state.ConsecutiveLosses != 0 {
		t.Errorf("expected consecutive losses reset to 0, got %d", state.ConsecutiveLosses)
	}
	if state.DailyRealizedPnLCents["2026-02-18"] != 750 {
		t.Errorf("expected daily pnl 750, got %d", state.DailyRealizedPnLCents["2026-02-18"])
	}
}

func TestRecordExposure_AccumulatesAcrossCalls(t *testing.T) {
	state := model.RiskState{}
	RecordExposure(&state, "2026-02-18", 500)
	RecordExposure(&state, "2026-02-18", 300)

	if state.DailyExposureCents["2026-02-18"] != 800 {
		t.Errorf("expected accumulated exposure 800, got %d", state.DailyExposureCents["2026-02-18"])
	}
}
