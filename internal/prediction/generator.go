package prediction

import (
	"context"
	"log/slog"
	"time"

	"github.com/bozweather/trader/internal/metrics"
	"github.com/bozweather/trader/internal/model"
	"github.com/bozweather/trader/internal/weather"
)

// ForecastSource is the narrow forecast-reading surface the generator
// needs — satisfied by *weather.Ingestor.
type ForecastSource interface {
	NewestFor(ctx context.Context, city, targetDate string) (map[string]model.Forecast, error)
}

// EventLister is the narrow exchange-reading surface the generator needs
// to learn the current bracket set — satisfied by *kalshi.Client.
type EventLister interface {
	ListEventsFor(ctx context.Context, series, targetDate string) (model.MarketEvent, error)
}

// Store is the narrow persistence surface the generator needs.
type Store interface {
	SavePrediction(ctx context.Context, p model.EnsemblePrediction) error
}

// Generator ties the Forecast Ingestor's newest-per-source forecasts to
// the exchange's current bracket set and produces one EnsemblePrediction
// per (city, target_date), run on the forecast_fetch_every_30m and
// full_refresh_0600_local cadences.
type Generator struct {
	Forecasts ForecastSource
	Exchange  EventLister
	Store     Store
	Cities    []weather.City
}

// NewGenerator builds a Generator over the default city list.
func NewGenerator(forecasts ForecastSource, exchange EventLister, store Store) *Generator {
	return &Generator{Forecasts: forecasts, Exchange: exchange, Store: store, Cities: weather.DefaultCities}
}

// RunAll regenerates the prediction for every configured city, for
// today and D+1 in that city's standard-time frame. A city/date failure
// (no forecasts yet, no open event) is logged and skipped — it never
// aborts the rest of the run.
func (g *Generator) RunAll(ctx context.Context) {
	now := time.Now().UTC()
	for _, city := range g.Cities {
		targetDates := []string{
			weather.TargetDateFor(city, now),
			weather.TargetDateFor(city, now.Add(24*time.Hour)),
		}
		for _, targetDate := range targetDates {
			g.generateOne(ctx, city, targetDate)
		}
	}
}

func (g *Generator) generateOne(ctx context.Context, city weather.City, targetDate string) {
	newest, err := g.Forecasts.NewestFor(ctx, city.Code, targetDate)
	if err != nil || len(newest) == 0 {
		slog.Warn("prediction generation skipped: no forecasts yet", "city", city.Code, "target_date", targetDate)
		metrics.PredictionsGeneratedTotal.WithLabelValues(city.Code, "skipped").Inc()
		return
	}

	forecasts := make([]model.Forecast, 0, len(newest))
	for _, f := range newest {
		forecasts = append(forecasts, f)
	}

	ensemble, err := Ensemble(forecasts)
	if err != nil {
		slog.Warn("prediction generation skipped: ensemble failed", "city", city.Code, "target_date", targetDate, "error", err)
		metrics.PredictionsGeneratedTotal.WithLabelValues(city.Code, "skipped").Inc()
		return
	}

	event, err := g.Exchange.ListEventsFor(ctx, city.EventSeries, targetDate)
	if err != nil {
		slog.Warn("prediction generation skipped: no open exchange event", "city", city.Code, "target_date", targetDate, "error", err)
		metrics.PredictionsGeneratedTotal.WithLabelValues(city.Code, "skipped").Inc()
		return
	}

	targetMonth := 1
	if parsed, err := time.Parse("2006-01-02", targetDate); err == nil {
		targetMonth = int(parsed.Month())
	}

	// No historical (actual-predicted) error table exists yet; the sample
	// standard deviation path is unreachable until one is built, so every
	// run uses the conservative seasonal fallback (ErrorStdDevFor with an
	// empty observation set).
	errorStdF := ErrorStdDevFor(city.Code, targetMonth, nil)

	oldestFetch := forecasts[0].FetchedAt
	for _, f := range forecasts {
		if f.FetchedAt.Before(oldestFetch) {
			oldestFetch = f.FetchedAt
		}
	}
	dataAgeMinutes := time.Since(oldestFetch).Minutes()

	_, confidence := ConfidenceScore(ensemble.SpreadF, errorStdF, len(ensemble.Sources), dataAgeMinutes)
	bracketProbs := BracketProbabilities(event.Brackets, ensemble.EnsembleHighF, errorStdF)

	prediction := model.EnsemblePrediction{
		City:                  city.Code,
		TargetDate:            targetDate,
		EnsembleHighF:         ensemble.EnsembleHighF,
		ForecastSpreadF:       ensemble.SpreadF,
		ErrorStdF:             errorStdF,
		Confidence:            confidence,
		SourceNames:           ensemble.Sources,
		BracketProbabilities:  bracketProbs,
		GeneratedAt:           time.Now().UTC(),
	}

	if err := g.Store.SavePrediction(ctx, prediction); err != nil {
		slog.Error("prediction persist failed", "city", city.Code, "target_date", targetDate, "error", err)
		return
	}

	slog.Info("prediction generated",
		"city", city.Code, "target_date", targetDate,
		"ensemble_high_f", ensemble.EnsembleHighF, "confidence", confidence)
	metrics.PredictionsGeneratedTotal.WithLabelValues(city.Code, string(confidence)).Inc()
}
