package settlement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bozweather/trader/internal/model"
	"github.com/bozweather/trader/internal/weather"
)

type fakeFetcher struct {
	calls     int
	failTimes int // number of leading calls that return ErrReportUnavailable
	permErr   error
	highF     float64
	source    string
}

func (f *fakeFetcher) FetchActualHigh(ctx context.Context, city weather.City, targetDate string) (float64, string, []byte, error) {
	f.calls++
	if f.permErr != nil {
		return 0, "", nil, f.permErr
	}
	if f.calls <= f.failTimes {
		return 0, "", nil, ErrReportUnavailable
	}
	return f.highF, f.source, []byte("raw"), nil
}

type fakeSettlementStore struct {
	saved []model.Settlement
}

func (s *fakeSettlementStore) SaveSettlement(ctx context.Context, st model.Settlement) error {
	s.saved = append(s.saved, st)
	return nil
}

type fakeObserver struct {
	observed []model.Settlement
}

func (o *fakeObserver) SettlementObserved(ctx context.Context, s model.Settlement) {
	o.observed = append(o.observed, s)
}

func TestIngestor_RunMorningClose_SucceedsFirstTry(t *testing.T) {
	fetcher := &fakeFetcher{highF: 54.5, source: "nws-climate"}
	store := &fakeSettlementStore{}
	obs := &fakeObserver{}
	in := &Ingestor{Fetcher: fetcher, Store: store, Observer: obs, Cities: []weather.City{weather.DefaultCities[0]}, InitialWait: time.Millisecond, MaxRetries: 3}

	in.RunMorningClose(context.Background(), "2026-02-17")

	if len(store.saved) != 1 {
		t.Fatalf("expected 1 saved settlement, got %d", len(store.saved))
	}
	if store.saved[0].ActualHighF != 54.5 {
		t.Errorf("expected actual high 54.5, got %v", store.saved[0].ActualHighF)
	}
	if len(obs.observed) != 1 {
		t.Fatalf("expected observer notified once, got %d", len(obs.observed))
	}
}

func TestIngestor_RunMorningClose_RetriesThenSucceeds(t *testing.T) {
	fetcher := &fakeFetcher{failTimes: 2, highF: 60, source: "nws-climate"}
	store := &fakeSettlementStore{}
	in := &Ingestor{Fetcher: fetcher, Store: store, Cities: []weather.City{weather.DefaultCities[0]}, InitialWait: time.Millisecond, MaxRetries: 5}

	in.RunMorningClose(context.Background(), "2026-02-17")

	if fetcher.calls != 3 {
		t.Errorf("expected 3 calls (2 failures + 1 success), got %d", fetcher.calls)
	}
	if len(store.saved) != 1 {
		t.Fatalf("expected eventual success to persist, got %d saves", len(store.saved))
	}
}

func TestIngestor_RunMorningClose_StalledAfterMaxRetries(t *testing.T) {
	fetcher := &fakeFetcher{failTimes: 100}
	store := &fakeSettlementStore{}
	in := &Ingestor{Fetcher: fetcher, Store: store, Cities: []weather.City{weather.DefaultCities[0]}, InitialWait: time.Millisecond, MaxRetries: 2}

	in.RunMorningClose(context.Background(), "2026-02-17")

	if len(store.saved) != 0 {
		t.Errorf("expected no settlement saved when report never arrives, got %d", len(store.saved))
	}
	if fetcher.calls != 3 { // initial + 2 retries
		t.Errorf("expected 3 calls (initial + MaxRetries), got %d", fetcher.calls)
	}
}

func TestIngestor_RunMorningClose_PermanentErrorStopsImmediately(t *testing.T) {
	fetcher := &fakeFetcher{permErr: errors.New("malformed response")}
	store := &fakeSettlementStore{}
	in := &Ingestor{Fetcher: fetcher, Store: store, Cities: []weather.City{weather.DefaultCities[0]}, InitialWait: time.Millisecond, MaxRetries: 5}

	in.RunMorningClose(context.Background(), "2026-02-17")

	if fetcher.calls != 1 {
		t.Errorf("expected non-retryable error to stop after 1 call, got %d", fetcher.calls)
	}
}

func TestIngestor_RunMorningClose_CitiesAreIndependent(t *testing.T) {
	// one city always fails, the other always succeeds; failure must not
	// block the other city's close.
	failing := &fakeFetcher{failTimes: 100}
	store := &fakeSettlementStore{}
	in := &Ingestor{
		Fetcher:     failing,
		Store:       store,
		Cities:      []weather.City{weather.DefaultCities[0], weather.DefaultCities[1]},
		InitialWait: time.Millisecond,
		MaxRetries:  1,
	}

	in.RunMorningClose(context.Background(), "2026-02-17")

	// both cities share the same always-failing fetcher here, so assert
	// it was invoked independently for each city (2 cities * 2 attempts).
	if failing.calls != 4 {
		t.Errorf("expected independent per-city retry loops (4 total calls), got %d", failing.calls)
	}
}
