package weather

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bozweather/trader/internal/model"
)

type fakeProvider struct {
	name      string
	forecast  model.Forecast
	err       error
	callCount int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Fetch(ctx context.Context, city City, targetDate string) (model.Forecast, error) {
	f.callCount++
	if f.err != nil {
		return model.Forecast{}, f.err
	}
	return f.forecast, nil
}

type fakeStore struct {
	saved     []model.Forecast
	saveErr   error
	byCityDay map[string][]model.Forecast
}

func newFakeStore() *fakeStore {
	return &fakeStore{byCityDay: make(map[string][]model.Forecast)}
}

func key(city, targetDate string) string { return city + "|" + targetDate }

func (s *fakeStore) SaveForecast(ctx context.Context, f model.Forecast) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = append(s.saved, f)
	k := key(f.City, f.TargetDate)
	s.byCityDay[k] = append(s.byCityDay[k], f)
	return nil
}

func (s *fakeStore) ForecastsFor(ctx context.Context, city, targetDate string) ([]model.Forecast, error) {
	return s.byCityDay[key(city, targetDate)], nil
}

func TestIngestor_FetchAll_PersistsEveryProviderCityDate(t *testing.T) {
	store := newFakeStore()
	p1 := &fakeProvider{name: "nws", forecast: model.Forecast{PredictedHighF: 55}}
	p2 := &fakeProvider{name: "open-meteo", forecast: model.Forecast{PredictedHighF: 57}}
	ing := &Ingestor{Providers: []Provider{p1, p2}, Cities: []City{DefaultCities[0]}, Store: store}

	ing.FetchAll(context.Background())

	// one city, two target dates (today, D+1), two providers = 4 rows.
	if len(store.saved) != 4 {
		t.Fatalf("expected 4 saved forecasts, got %d", len(store.saved))
	}
	if p1.callCount != 2 || p2.callCount != 2 {
		t.Errorf("expected each provider called twice, got p1=%d p2=%d", p1.callCount, p2.callCount)
	}
}

func TestIngestor_FetchAll_SkipsFailingProviderWithoutAbortingOthers(t *testing.T) {
	store := newFakeStore()
	failing := &fakeProvider{name: "nws", err: errors.New("boom")}
	working := &fakeProvider{name: "open-meteo", forecast: model.Forecast{PredictedHighF: 60}}
	ing := &Ingestor{Providers: []Provider{failing, working}, Cities: []City{DefaultCities[0]}, Store: store}

	ing.FetchAll(context.Background())

	for _, f := range store.saved {
		if f.Source == "nws" {
			t.Errorf("expected no rows from failing provider, found one")
		}
	}
	if len(store.saved) != 2 {
		t.Fatalf("expected 2 saved forecasts from working provider, got %d", len(store.saved))
	}
}

func TestIngestor_NewestFor_PicksMostRecentPerSource(t *testing.T) {
	store := newFakeStore()
	city, targetDate := "NYC", "2026-02-18"
	older := model.Forecast{City: city, TargetDate: targetDate, Source: "nws", FetchedAt: time.Now().Add(-time.Hour), PredictedHighF: 50}
	newer := model.Forecast{City: city, TargetDate: targetDate, Source: "nws", FetchedAt: time.Now(), PredictedHighF: 52}
	other := model.Forecast{City: city, TargetDate: targetDate, Source: "open-meteo", FetchedAt: time.Now(), PredictedHighF: 53}

	for _, f := range []model.Forecast{older, newer, other} {
		if err := store.SaveForecast(context.Background(), f); err != nil {
			t.Fatalf("save failed: %v", err)
		}
	}

	ing := &Ingestor{Store: store}
	newest, err := ing.NewestFor(context.Background(), city, targetDate)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(newest) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(newest))
	}
	if newest["nws"].PredictedHighF != 52 {
		t.Errorf("expected newest nws forecast 52F, got %v", newest["nws"].PredictedHighF)
	}
}

func TestIngestor_IsStale_NoForecastsIsStale(t *testing.T) {
	ing := &Ingestor{Store: newFakeStore()}
	stale, err := ing.IsStale(context.Background(), "NYC", "2026-02-18", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !stale {
		t.Error("expected stale=true when no forecasts exist")
	}
}

func TestIngestor_IsStale_FreshForecastIsNotStale(t *testing.T) {
	store := newFakeStore()
	f := model.Forecast{City: "NYC", TargetDate: "2026-02-18", Source: "nws", FetchedAt: time.Now()}
	if err := store.SaveForecast(context.Background(), f); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	ing := &Ingestor{Store: store}
	stale, err := ing.IsStale(context.Background(), "NYC", "2026-02-18", 120)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stale {
		t.Error("expected stale=false for a forecast fetched just now")
	}
}

func TestIngestor_IsStale_OldForecastIsStale(t *testing.T) {
	store := newFakeStore()
	f := model.Forecast{City: "NYC", TargetDate: "2026-02-18", Source: "nws", FetchedAt: time.Now().Add(-3 * time.Hour)}
	if err := store.SaveForecast(context.Background(), f); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	ing := &Ingestor{Store: store}
	stale, err := ing.IsStale(context.Background(), "NYC", "2026-02-18", 120)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !stale {
		t.Error("expected stale=true for a 3-hour-old forecast with a 120-minute threshold")
	}
}
