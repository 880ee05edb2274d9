package prediction

import (
	"context"
	"testing"
	"time"

	"github.com/bozweather/trader/internal/model"
	"github.com/bozweather/trader/internal/weather"
)

type fakeForecastSource struct {
	byKey map[string]map[string]model.Forecast // city|date -> source -> forecast
}

func (f *fakeForecastSource) NewestFor(_ context.Context, city, targetDate string) (map[string]model.Forecast, error) {
	return f.byKey[city+"|"+targetDate], nil
}

type fakeEventLister struct {
	event model.MarketEvent
	err   error
}

func (f *fakeEventLister) ListEventsFor(_ context.Context, series, targetDate string) (model.MarketEvent, error) {
	return f.event, f.err
}

type fakePredictionStore struct {
	saved []model.EnsemblePrediction
}

func (f *fakePredictionStore) SavePrediction(_ context.Context, p model.EnsemblePrediction) error {
	f.saved = append(f.saved, p)
	return nil
}

func bf(v float64) *float64 { return &v }

func TestGenerator_GenerateOne_SavesPrediction(t *testing.T) {
	city := weather.City{Code: "NYC", Name: "New York City", EventSeries: "KXHIGHNY"}
	targetDate := "2026-02-18"

	forecasts := &fakeForecastSource{byKey: map[string]map[string]model.Forecast{
		"NYC|2026-02-18": {
			"nws":  {City: "NYC", TargetDate: targetDate, Source: "nws", PredictedHighF: 55, FetchedAt: time.Now()},
			"ecmwf": {City: "NYC", TargetDate: targetDate, Source: "ecmwf", PredictedHighF: 53, FetchedAt: time.Now()},
		},
	}}
	events := &fakeEventLister{event: model.MarketEvent{
		EventID: "EVT1", City: "NYC", TargetDate: targetDate,
		Brackets: []model.Bracket{
			{Ticker: "NYC-52-54", Label: "52-54", LowerBoundF: bf(52), UpperBoundF: bf(54)},
		},
	}}
	store := &fakePredictionStore{}

	g := &Generator{Forecasts: forecasts, Exchange: events, Store: store, Cities: []weather.City{city}}
	g.generateOne(context.Background(), city, targetDate)

	if len(store.saved) != 1 {
		t.Fatalf("expected 1 saved prediction, got %d", len(store.saved))
	}
	p := store.saved[0]
	if p.City != "NYC" || p.TargetDate != targetDate {
		t.Errorf("unexpected prediction identity: %+v", p)
	}
	if len(p.BracketProbabilities) != 1 {
		t.Errorf("expected 1 bracket probability, got %d", len(p.BracketProbabilities))
	}
}

func TestGenerator_GenerateOne_SkipsWithNoForecasts(t *testing.T) {
	city := weather.City{Code: "NYC", Name: "New York City", EventSeries: "KXHIGHNY"}
	store := &fakePredictionStore{}

	g := &Generator{
		Forecasts: &fakeForecastSource{byKey: map[string]map[string]model.Forecast{}},
		Exchange:  &fakeEventLister{},
		Store:     store,
	}
	g.generateOne(context.Background(), city, "2026-02-18")

	if len(store.saved) != 0 {
		t.Errorf("expected no prediction saved, got %d", len(store.saved))
	}
}
