// Package sizing implements the EV / Sizing Engine:
// gross/net expected-value scanning with fee drag, Kelly-fraction
// position sizing, and EV-desc/confidence/city tie-break ranking.
//
// Dollar-denominated intermediate math (Kelly fraction, EV, fee drag)
// uses shopspring/decimal for deterministic rounding; the final sized
// quantity and all exchange-facing prices are plain integer cents
// (model.Cents), matching the wire format.
package sizing

import (
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/bozweather/trader/internal/model"
)

// Config holds the tunable EV/sizing parameters.
type Config struct {
	TradeFeeRate      decimal.Decimal // default 0.01 (~1% of notional)
	SettlementFeeRate decimal.Decimal // default 0.10 (~10% of profit on a win)
	MinEVThreshold    float64         // default 0.05
	KellyCap          float64         // default 0.25
	MaxTradeSizeCents model.Cents
}

// DefaultConfig returns the EV/sizing engine's production defaults.
func DefaultConfig(maxTradeSizeCents model.Cents) Config {
	return Config{
		TradeFeeRate:      decimal.NewFromFloat(0.01),
		SettlementFeeRate: decimal.NewFromFloat(0.10),
		MinEVThreshold:    0.05,
		KellyCap:          0.25,
		MaxTradeSizeCents: maxTradeSizeCents,
	}
}

// Candidate is one (bracket, side) combination under consideration,
// before fees/Kelly sizing are applied.
type Candidate struct {
	City          string
	TargetDate    string
	BracketTicker string
	BracketLabel  string
	Side          model.Side
	ModelProb     float64
	AskPriceCents model.Cents // yes_ask_cents for YES, no_ask_cents for NO
	Confidence    model.Confidence
}

// marketProb derives the market-implied probability that the signal's
// side wins: for YES, market_prob = yes_ask_cents/100
// directly; for NO, market_prob = (100-no_ask_cents)/100 — the resting
// NO ask prices NO itself, so it must be inverted onto the same "this
// side wins" basis model_prob is expressed in.
func marketProb(side model.Side, askPriceCents model.Cents) float64 {
	if side == model.SideNo {
		return float64(100-askPriceCents) / 100
	}
	return float64(askPriceCents) / 100
}

// Scan computes gross/net EV for every candidate and emits a TradeSignal
// for each that clears minEVThreshold after fee drag, sized via Kelly
// fraction. Candidates with no resting ask (AskPriceCents <= 0) are
// rejected.
func Scan(candidates []Candidate, cfg Config) []model.TradeSignal {
	var signals []model.TradeSignal

	for _, c := range candidates {
		if c.AskPriceCents <= 0 || c.AskPriceCents >= 100 {
			continue // no resting ask, or not a valid cents price
		}

		marketP := marketProb(c.Side, c.AskPriceCents)
		grossEV := c.ModelProb - marketP

		feeDrag := feeDragFraction(c.ModelProb, c.AskPriceCents, cfg)
		netEV := grossEV - feeDrag

		if netEV < cfg.MinEVThreshold {
			continue
		}

		quantity, limitPrice := kellySize(c.ModelProb, c.AskPriceCents, cfg)
		if quantity <= 0 {
			continue
		}

		signals = append(signals, model.TradeSignal{
			City:              c.City,
			TargetDate:        c.TargetDate,
			BracketTicker:     c.BracketTicker,
			BracketLabel:      c.BracketLabel,
			Side:              c.Side,
			ModelProbability:  c.ModelProb,
			MarketProbability: marketP,
			EV:                netEV,
			Confidence:        c.Confidence,
			Reasoning:         reasoningFor(grossEV, feeDrag, netEV),
			SizedQuantity:     quantity,
			LimitPriceCents:   limitPrice,
		})
	}

	rankSignals(signals)
	return signals
}

// feeDragFraction converts the exchange's cents-denominated fee formula
// into a per-$1-notional fraction comparable to gross_ev: trade fee is
// ~1% of notional, settlement fee is ~10% of expected profit if the
// signal wins.
func feeDragFraction(modelProb float64, askPriceCents model.Cents, cfg Config) float64 {
	price := decimal.NewFromInt(int64(askPriceCents)).Div(decimal.NewFromInt(100))
	tradeFee := cfg.TradeFeeRate // already a fraction of notional

	expectedProfitIfWin := decimal.NewFromFloat(modelProb).Mul(decimal.NewFromInt(1).Sub(price))
	settlementFee := cfg.SettlementFeeRate.Mul(expectedProfitIfWin)

	total, _ := tradeFee.Add(settlementFee).Float64()
	return total
}

func reasoningFor(grossEV, feeDrag, netEV float64) string {
	return fmt.Sprintf("gross_ev=%.4f fee_drag=%.4f net_ev=%.4f", grossEV, feeDrag, netEV)
}

// kellySize computes f* = (b*p - q)/b, clamps to [0, KellyCap] and to
// MaxTradeSizeCents, and converts to a whole-contract quantity at the
// given ask price. Returns (0, 0) if the clamped size rounds down to
// zero contracts.
func kellySize(modelProb float64, askPriceCents model.Cents, cfg Config) (int64, model.Cents) {
	priceDollars := float64(askPriceCents) / 100
	if priceDollars <= 0 || priceDollars >= 1 {
		return 0, 0
	}

	p := modelProb
	q := 1 - p
	b := (1 - priceDollars) / priceDollars

	fStar := (b*p - q) / b
	if fStar <= 0 {
		return 0, 0
	}

	kellyCap := cfg.KellyCap
	if kellyCap <= 0 {
		kellyCap = 0.25
	}
	fStar = math.Min(fStar, kellyCap)

	maxSizeCents := cfg.MaxTradeSizeCents
	sizedDollars := fStar // fraction of a notional unit of $1; caller scales bankroll externally via MaxTradeSizeCents
	sizedCents := model.Cents(sizedDollars * float64(maxSizeCents))
	if sizedCents > maxSizeCents {
		sizedCents = maxSizeCents
	}

	quantity := int64(float64(sizedCents) / float64(askPriceCents))
	if quantity < 1 {
		if sizedCents > 0 {
			quantity = 1
		} else {
			return 0, 0
		}
	}
	return quantity, askPriceCents
}

// rankSignals sorts in place by ev_net descending, then confidence
// (HIGH > MEDIUM > LOW), then city alphabetically.
func rankSignals(signals []model.TradeSignal) {
	rank := map[model.Confidence]int{model.ConfidenceHigh: 0, model.ConfidenceMedium: 1, model.ConfidenceLow: 2}

	sort.SliceStable(signals, func(i, j int) bool {
		if signals[i].EV != signals[j].EV {
			return signals[i].EV > signals[j].EV
		}
		if rank[signals[i].Confidence] != rank[signals[j].Confidence] {
			return rank[signals[i].Confidence] < rank[signals[j].Confidence]
		}
		return signals[i].City < signals[j].City
	})
}
