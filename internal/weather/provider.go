// Package weather implements the Forecast Ingestor: it
// fetches forecasts for every configured city from every configured
// provider on a recurring cadence, normalizes units to Fahrenheit, stamps
// freshness, and persists through a narrow store interface.
package weather

import (
	"context"
	"time"

	"github.com/bozweather/trader/internal/model"
)

// Provider is a single forecast source (governmental gridpoint API,
// multi-model ensemble API, ...). Implementations own their own HTTP
// client, rate limiter, and retry policy.
type Provider interface {
	// Name is the source identifier stored on every Forecast row, e.g.
	// "nws", "open-meteo".
	Name() string

	// Fetch retrieves the current forecast for one city/target-date.
	Fetch(ctx context.Context, city City, targetDate string) (model.Forecast, error)
}

// SourceWeight is the static ensemble weight assigned to a named source by
// the prediction engine. Reproduced here only as
// documentation; the authoritative table lives in internal/prediction.
const (
	WeightECMWF   = 0.30
	WeightNWS     = 0.35
	WeightGFS     = 0.20
	WeightMinor1  = 0.10
	WeightMinor2  = 0.05
	WeightUnknown = 0.05
)

// DefaultFreshnessCap is the default staleness threshold used by IsStale
// when the caller does not override it.
const DefaultFreshnessCap = 120 * time.Minute
