package prediction

import (
	"fmt"
	"math"

	"github.com/bozweather/trader/internal/model"
)

// Settle resolves a still-open TradeRecord against the day's actual high,
// returning the trade's terminal status, its realized P&L, and its
// postmortem narrative. It reconstructs the bracket's bounds from the
// trade's own frozen PredictionSnapshot rather than a live exchange
// lookup, since a settled bracket is often no longer listed.
func Settle(trade model.TradeRecord, actualHighF float64) (model.TradeStatus, model.Cents, string) {
	bracket := model.Bracket{
		Ticker: trade.BracketTicker,
		Label:  trade.BracketLabel,
	}
	for _, bp := range trade.PredictionSnapshot.BracketProbabilities {
		if bp.Label == trade.BracketLabel {
			bracket.LowerBoundF = bp.LowerBoundF
			bracket.UpperBoundF = bp.UpperBoundF
			break
		}
	}

	pnl := model.SettlementPnL(trade.Side, bracket, trade.EntryPriceCents, trade.Quantity, actualHighF)
	status := model.TradeStatusLost
	if pnl > 0 {
		status = model.TradeStatusWon
	}

	trade.PnLCents = &pnl
	narrative := Postmortem(trade, actualHighF)
	return status, pnl, narrative
}

// Postmortem generates the deterministic narrative stored on a settled
// TradeRecord: the closest single source to the actual high, the entry
// terms, model-vs-market probability at entry, the realized outcome, and
// the ensemble miss.
func Postmortem(trade model.TradeRecord, actualHighF float64) string {
	closest := closestSource(trade.WeatherSnapshot, actualHighF)
	ensembleMiss := actualHighF - trade.PredictionSnapshot.EnsembleHighF

	outcome := "LOST"
	if trade.PnLCents != nil && *trade.PnLCents > 0 {
		outcome = "WON"
	}

	return fmt.Sprintf(
		"%s %s on %s (%s, %s) at %d¢ x%d. "+
			"Closest source: %s (%.1f°F vs actual %.1f°F). "+
			"Model probability %.1f%% vs market %.1f%% at entry. "+
			"Outcome: %s. Ensemble miss: %+.1f°F (ensemble %.1f°F vs actual %.1f°F).",
		trade.Side, trade.BracketLabel, trade.City, trade.TargetDate, trade.BracketTicker,
		trade.EntryPriceCents, trade.Quantity,
		closest.name, closest.tempF, actualHighF,
		trade.ModelProbability*100, trade.MarketProbability*100,
		outcome, ensembleMiss, trade.PredictionSnapshot.EnsembleHighF, actualHighF,
	)
}

type namedTemp struct {
	name  string
	tempF float64
}

func closestSource(snapshot []model.Forecast, actualHighF float64) namedTemp {
	if len(snapshot) == 0 {
		return namedTemp{name: "unknown", tempF: actualHighF}
	}

	best := snapshot[0]
	bestDiff := math.Abs(best.PredictedHighF - actualHighF)
	for _, f := range snapshot[1:] {
		diff := math.Abs(f.PredictedHighF - actualHighF)
		if diff < bestDiff {
			best = f
			bestDiff = diff
		}
	}
	return namedTemp{name: best.Source, tempF: best.PredictedHighF}
}
