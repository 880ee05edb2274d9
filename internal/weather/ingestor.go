package weather

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/bozweather/trader/internal/model"
)

// Store is the narrow persistence surface the ingestor needs. Kept
// separate from internal/store's full Store interface to avoid an import
// cycle — weather never needs to know about trades or settlements.
type Store interface {
	SaveForecast(ctx context.Context, f model.Forecast) error
	ForecastsFor(ctx context.Context, city, targetDate string) ([]model.Forecast, error)
}

// Ingestor drives every configured Provider across every configured City,
// implementing the fetch_all/newest_for/is_stale operations.
type Ingestor struct {
	Providers []Provider
	Cities    []City
	Store     Store
}

// NewIngestor builds an Ingestor over the default city list.
func NewIngestor(store Store, providers ...Provider) *Ingestor {
	return &Ingestor{Providers: providers, Cities: DefaultCities, Store: store}
}

// FetchAll fetches every (city, target_date) pair for today and D+1 from
// every provider and persists the results. A provider/city failure is
// logged and skipped — it never aborts the rest of the cycle.
func (in *Ingestor) FetchAll(ctx context.Context) {
	now := time.Now().UTC()
	for _, city := range in.Cities {
		targetDates := []string{
			TargetDateFor(city, now),
			TargetDateFor(city, now.Add(24*time.Hour)),
		}
		for _, targetDate := range targetDates {
			for _, provider := range in.Providers {
				in.fetchOne(ctx, provider, city, targetDate)
			}
		}
	}
}

func (in *Ingestor) fetchOne(ctx context.Context, provider Provider, city City, targetDate string) {
	forecast, err := fetchWithRetry(ctx, func() (model.Forecast, error) {
		return provider.Fetch(ctx, city, targetDate)
	})
	if err != nil {
		slog.Warn("forecast fetch failed, skipping",
			"provider", provider.Name(), "city", city.Code, "target_date", targetDate, "error", err)
		return
	}

	if err := in.Store.SaveForecast(ctx, forecast); err != nil {
		slog.Error("forecast persist failed",
			"provider", provider.Name(), "city", city.Code, "target_date", targetDate, "error", err)
		return
	}

	slog.Info("forecast ingested",
		"provider", provider.Name(), "city", city.Code, "target_date", targetDate,
		"predicted_high_f", forecast.PredictedHighF)
}

// NewestFor returns the most recent Forecast per source for (city,
// target_date), keyed by source name, sorted internally by fetched_at
// descending before the per-source newest is picked.
func (in *Ingestor) NewestFor(ctx context.Context, city, targetDate string) (map[string]model.Forecast, error) {
	forecasts, err := in.Store.ForecastsFor(ctx, city, targetDate)
	if err != nil {
		return nil, err
	}

	sort.Slice(forecasts, func(i, j int) bool {
		return forecasts[i].FetchedAt.After(forecasts[j].FetchedAt)
	})

	newest := make(map[string]model.Forecast)
	for _, f := range forecasts {
		if _, seen := newest[f.Source]; !seen {
			newest[f.Source] = f
		}
	}
	return newest, nil
}

// IsStale reports whether no forecast for (city, target_date) is newer
// than thresholdMinutes. A threshold of 0 uses DefaultFreshnessCap.
func (in *Ingestor) IsStale(ctx context.Context, city, targetDate string, thresholdMinutes int) (bool, error) {
	threshold := DefaultFreshnessCap
	if thresholdMinutes > 0 {
		threshold = time.Duration(thresholdMinutes) * time.Minute
	}

	newest, err := in.NewestFor(ctx, city, targetDate)
	if err != nil {
		return true, err
	}
	if len(newest) == 0 {
		return true, nil
	}

	cutoff := time.Now().UTC().Add(-threshold)
	for _, f := range newest {
		if f.FetchedAt.After(cutoff) {
			return false, nil
		}
	}
	return true, nil
}
