// Package model defines the domain types shared across the weather trading
// engine: forecasts, ensemble predictions, exchange market snapshots, trade
// signals, pending trades, trade records, settlements, and risk state.
//
// Prices, balances, and P&L are integer cents — the exchange never accepts
// or reports a fractional cent, so there is no need for shopspring/decimal
// here (it is used instead where genuine fractional-dollar arithmetic
// happens, in internal/sizing). Forecast temperatures and probabilities are
// continuous quantities and use float64.
package model

import "time"

// Cents is an integer count of US cents. The exchange's wire format is
// integer cents in [1, 99] for prices; balances and P&L are also integer
// cents.
type Cents int64

// Side is a contract side.
type Side string

const (
	SideYes Side = "yes"
	SideNo  Side = "no"
)

// Confidence is the ensemble prediction's qualitative confidence bucket.
type Confidence string

const (
	ConfidenceHigh   Confidence = "HIGH"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceLow    Confidence = "LOW"
)

// PendingStatus is the lifecycle state of a PendingTrade.
type PendingStatus string

const (
	PendingStatusPending  PendingStatus = "PENDING"
	PendingStatusApproved PendingStatus = "APPROVED"
	PendingStatusRejected PendingStatus = "REJECTED"
	PendingStatusExpired  PendingStatus = "EXPIRED"
	PendingStatusExecuted PendingStatus = "EXECUTED"
)

// TradeStatus is the lifecycle state of a TradeRecord.
type TradeStatus string

const (
	TradeStatusOpen      TradeStatus = "OPEN"
	TradeStatusWon       TradeStatus = "WON"
	TradeStatusLost      TradeStatus = "LOST"
	TradeStatusCancelled TradeStatus = "CANCELLED"
)

// Season buckets months for the error-distribution fallback table.
type Season string

const (
	SeasonWinter Season = "winter"
	SeasonSpring Season = "spring"
	SeasonSummer Season = "summer"
	SeasonFall   Season = "fall"
)

// SeasonFromMonth maps a calendar month (1-12) to its Season.
func SeasonFromMonth(month int) Season {
	switch month {
	case 12, 1, 2:
		return SeasonWinter
	case 3, 4, 5:
		return SeasonSpring
	case 6, 7, 8:
		return SeasonSummer
	default:
		return SeasonFall
	}
}

// AuxiliaryVars holds the optional secondary variables a provider may
// report alongside the predicted high.
type AuxiliaryVars struct {
	Humidity *float64 `json:"humidity,omitempty"`
	Wind     *float64 `json:"wind,omitempty"`
	Clouds   *float64 `json:"clouds,omitempty"`
	DewPoint *float64 `json:"dew_point,omitempty"`
	Pressure *float64 `json:"pressure,omitempty"`
}

// Forecast is one provider's prediction for one city/day, immutable once
// written. Unique on (City, TargetDate, Source, ModelRunTS).
type Forecast struct {
	City           string        `json:"city" db:"city"`
	TargetDate     string        `json:"target_date" db:"target_date"` // YYYY-MM-DD, city-local standard time
	Source         string        `json:"source" db:"source"`
	ModelRunTS     time.Time     `json:"model_run_ts" db:"model_run_ts"`
	FetchedAt      time.Time     `json:"fetched_at" db:"fetched_at"`
	PredictedHighF float64       `json:"predicted_high_f" db:"predicted_high_f"`
	Auxiliary      AuxiliaryVars `json:"auxiliary_vars,omitempty" db:"-"`
	RawPayload     []byte        `json:"raw_payload,omitempty" db:"raw_payload"`
}

// Bracket is a semantic temperature bracket, independent of any single
// exchange's wire representation: exactly one bracket in a set has
// LowerBoundF == nil (bottom edge) and exactly one has UpperBoundF == nil
// (top edge).
type Bracket struct {
	Ticker         string    `json:"ticker"`
	LowerBoundF    *float64  `json:"lower_bound_f,omitempty"`
	UpperBoundF    *float64  `json:"upper_bound_f,omitempty"`
	Label          string    `json:"label"`
	Status         string    `json:"status"` // active, closed, settled
	YesBidCents    Cents     `json:"yes_bid_cents"`
	YesAskCents    Cents     `json:"yes_ask_cents"`
	NoBidCents     Cents     `json:"no_bid_cents"`
	NoAskCents     Cents     `json:"no_ask_cents"`
	LastPriceCents Cents     `json:"last_price_cents"`
	CloseTimeUTC   time.Time `json:"close_time_utc"`
}

// Contains reports whether a temperature falls within the bracket's bounds.
// Bounds are inclusive on the lower edge, exclusive on the upper edge,
// matching the exchange's published settlement convention.
func (b Bracket) Contains(tempF float64) bool {
	if b.LowerBoundF != nil && tempF < *b.LowerBoundF {
		return false
	}
	if b.UpperBoundF != nil && tempF >= *b.UpperBoundF {
		return false
	}
	return true
}

// MarketEvent is one exchange event (one city, one target date) with its
// brackets. Owned by the exchange adapter; snapshotted by value into
// predictions and trades for audit.
type MarketEvent struct {
	EventID    string    `json:"event_id"`
	City       string    `json:"city"`
	TargetDate string    `json:"target_date"`
	Brackets   []Bracket `json:"brackets"`
}

// BracketProbability pairs a bracket's semantic bounds with the model's
// probability mass for it.
type BracketProbability struct {
	LowerBoundF *float64 `json:"lower_bound_f,omitempty"`
	UpperBoundF *float64 `json:"upper_bound_f,omitempty"`
	Label       string   `json:"label"`
	Probability float64  `json:"probability"`
}

// EnsemblePrediction is an immutable snapshot of a single prediction-engine
// run for one (city, target_date).
type EnsemblePrediction struct {
	City                 string               `json:"city" db:"city"`
	TargetDate           string               `json:"target_date" db:"target_date"`
	EnsembleHighF        float64              `json:"ensemble_high_f" db:"ensemble_high_f"`
	ForecastSpreadF      float64              `json:"forecast_spread_f" db:"forecast_spread_f"`
	ErrorStdF            float64              `json:"error_std_f" db:"error_std_f"`
	Confidence           Confidence           `json:"confidence" db:"confidence"`
	SourceNames          []string             `json:"source_names" db:"-"`
	BracketProbabilities []BracketProbability `json:"bracket_probabilities" db:"-"`
	GeneratedAt          time.Time            `json:"generated_at" db:"generated_at"`
}

// TradeSignal is an ephemeral candidate trade produced by the EV engine.
// It lives for at most one orchestration cycle.
type TradeSignal struct {
	City              string     `json:"city"`
	TargetDate        string     `json:"target_date"`
	BracketTicker     string     `json:"bracket_ticker"`
	BracketLabel      string     `json:"bracket_label"`
	Side              Side       `json:"side"`
	ModelProbability  float64    `json:"model_probability"`
	MarketProbability float64    `json:"market_probability"`
	EV                float64    `json:"ev"`
	Confidence        Confidence `json:"confidence"`
	Reasoning         string     `json:"reasoning"`
	SizedQuantity     int64      `json:"sized_quantity"`
	LimitPriceCents   Cents      `json:"limit_price_cents"`
}

// CostCents is the notional cost to open this signal's position.
func (s TradeSignal) CostCents() Cents {
	return Cents(s.SizedQuantity) * s.LimitPriceCents
}

// PendingTrade is a trade awaiting manual approval, keyed by ID, with TTL
// semantics. Status transitions are monotone: PENDING -> {APPROVED ->
// EXECUTED, REJECTED, EXPIRED}. WeatherSnapshot/PredictionSnapshot freeze
// the same audit data the auto-execute path freezes at order time — here
// at enqueue time, since approval may happen much later — so Approve can
// carry them into the resulting TradeRecord unchanged.
type PendingTrade struct {
	ID                 string             `json:"id" db:"id"`
	UserID             string             `json:"user_id" db:"user_id"`
	Signal             TradeSignal        `json:"signal" db:"-"`
	WeatherSnapshot    []Forecast         `json:"weather_snapshot" db:"-"`
	PredictionSnapshot EnsemblePrediction `json:"prediction_snapshot" db:"-"`
	CreatedAt          time.Time          `json:"created_at" db:"created_at"`
	ExpiresAt          time.Time          `json:"expires_at" db:"expires_at"`
	Status             PendingStatus      `json:"status" db:"status"`
	ActedAt            *time.Time         `json:"acted_at,omitempty" db:"acted_at"`
}

// IsTerminal reports whether the pending trade has reached a terminal
// status and can no longer transition.
func (p PendingTrade) IsTerminal() bool {
	switch p.Status {
	case PendingStatusRejected, PendingStatusExpired, PendingStatusExecuted:
		return true
	default:
		return false
	}
}

// TradeRecord is a durable, audit-frozen record of an executed trade. The
// weather/prediction snapshots are frozen copies by value — they do not
// back-link to the live Forecast/EnsemblePrediction rows.
type TradeRecord struct {
	ID                  string             `json:"id" db:"id"`
	UserID              string             `json:"user_id" db:"user_id"`
	ExchangeOrderID     string             `json:"exchange_order_id,omitempty" db:"exchange_order_id"`
	City                string             `json:"city" db:"city"`
	TargetDate          string             `json:"target_date" db:"target_date"`
	BracketTicker       string             `json:"bracket_ticker" db:"bracket_ticker"`
	BracketLabel        string             `json:"bracket_label" db:"bracket_label"`
	Side                Side               `json:"side" db:"side"`
	EntryPriceCents     Cents              `json:"entry_price_cents" db:"entry_price_cents"`
	Quantity            int64              `json:"quantity" db:"quantity"`
	ModelProbability    float64            `json:"model_probability" db:"model_prob"`
	MarketProbability   float64            `json:"market_probability" db:"market_prob"`
	EVAtEntry           float64            `json:"ev_at_entry" db:"ev_at_entry"`
	Confidence          Confidence         `json:"confidence" db:"confidence"`
	WeatherSnapshot     []Forecast         `json:"weather_snapshot" db:"-"`
	PredictionSnapshot  EnsemblePrediction `json:"prediction_snapshot" db:"-"`
	Status              TradeStatus        `json:"status" db:"status"`
	SettlementTempF     *float64           `json:"settlement_temp_f,omitempty" db:"settlement_temp_f"`
	PnLCents            *Cents             `json:"pnl_cents,omitempty" db:"pnl_cents"`
	PostmortemNarrative string             `json:"postmortem_narrative,omitempty" db:"postmortem"`
	CreatedAt           time.Time          `json:"created_at" db:"created_at"`
	SettledAt           *time.Time         `json:"settled_at,omitempty" db:"settled_at"`
}

// Settlement is the authoritative daily outcome for a (city, target_date).
type Settlement struct {
	City        string    `json:"city" db:"city"`
	TargetDate  string    `json:"target_date" db:"target_date"`
	ActualHighF float64   `json:"actual_high_f" db:"actual_high_f"`
	Source      string    `json:"source" db:"source"`
	RawReport   []byte    `json:"raw_report,omitempty" db:"raw_report"`
	FetchedAt   time.Time `json:"fetched_at" db:"fetched_at"`
}

// SettlementPnL is exactly determined by (side, entry price, quantity,
// settlement temperature, bracket bounds). A held contract that settles
// pays out 100 cents/share; one that does not settle pays 0. Buying YES
// on a bracket that contains the settlement temperature wins; buying NO
// on that same bracket loses, and vice versa — entryPriceCents is always
// the price paid for the side actually held, so the payout-minus-cost
// arithmetic is identical for both sides once "won" is resolved.
func SettlementPnL(side Side, bracket Bracket, entryPriceCents Cents, quantity int64, settlementTempF float64) Cents {
	contains := bracket.Contains(settlementTempF)
	won := contains
	if side == SideNo {
		won = !contains
	}

	payout := Cents(0)
	if won {
		payout = 100
	}
	return Cents(quantity) * (payout - entryPriceCents)
}

// RiskState is the per-user, process-wide risk cache. It is rebuilt from
// the trade ledger at the start of every orchestration cycle — it is never
// a long-lived source of truth, only a same-cycle cache.
type RiskState struct {
	UserID                string
	ConsecutiveLosses     int
	LastLossAt            *time.Time
	DailyRealizedPnLCents map[string]Cents // date (YYYY-MM-DD, city-local standard time) -> pnl
	DailyExposureCents    map[string]Cents // date -> cumulative opened notional
	CooldownUntil         *time.Time
}

// TradingMode selects whether a user's signals place orders directly or
// wait in the approval queue.
type TradingMode string

const (
	TradingModeAuto   TradingMode = "auto"
	TradingModeManual TradingMode = "manual"
)

// User is an account the orchestrator runs trading cycles for, carrying its
// own per-user risk limits.
type User struct {
	ID                    string      `json:"id" db:"id"`
	Name                  string      `json:"name" db:"name"`
	Mode                  TradingMode `json:"mode" db:"mode"`
	MaxTradeSizeCents     Cents       `json:"max_trade_size_cents" db:"max_trade_size_cents"`
	DailyLossLimitCents   Cents       `json:"daily_loss_limit_cents" db:"daily_loss_limit_cents"`
	MaxDailyExposureCents Cents       `json:"max_daily_exposure_cents" db:"max_daily_exposure_cents"`
	MinEVThreshold        float64     `json:"min_ev_threshold" db:"min_ev_threshold"`
	ConsecutiveLossLimit  int         `json:"consecutive_loss_limit" db:"consecutive_loss_limit"`
	CreatedAt             time.Time   `json:"created_at" db:"created_at"`
}

// LogEntry is a structured event surfaced on the dashboard feed — one row
// per notable thing the engine does (forecast fetched, signal generated,
// risk denial, order placed, settlement observed).
type LogEntry struct {
	ID        string    `json:"id" db:"id"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
	Level     string    `json:"level" db:"level"` // info, warn, error
	Category  string    `json:"category" db:"category"`
	Message   string    `json:"message" db:"message"`
	City      string    `json:"city,omitempty" db:"city"`
	UserID    string    `json:"user_id,omitempty" db:"user_id"`
}
