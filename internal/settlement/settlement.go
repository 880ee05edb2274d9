// Package settlement implements the Settlement Ingestor:
// once per morning per city, it fetches the authoritative daily climate
// report, parses the previous day's official high, persists a Settlement
// row, and notifies the orchestrator.
package settlement

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/bozweather/trader/internal/model"
	"github.com/bozweather/trader/internal/weather"
)

// ErrReportUnavailable marks a fetch failure eligible for doubling-backoff
// retry — the climate report simply isn't published yet.
var ErrReportUnavailable = errors.New("settlement: climate report unavailable")

// Observer receives a SettlementObserved notification once a city/date's
// official high has been recorded.
type Observer interface {
	SettlementObserved(ctx context.Context, s model.Settlement)
}

// Store is the narrow persistence surface the ingestor needs.
type Store interface {
	SaveSettlement(ctx context.Context, s model.Settlement) error
}

// ReportFetcher retrieves and parses the authoritative climate report for
// one city/date. Implementations wrap whatever climate-data API the
// deployment uses; the governmental climate-report endpoint is the
// default.
type ReportFetcher interface {
	FetchActualHigh(ctx context.Context, city weather.City, targetDate string) (highF float64, source string, raw []byte, err error)
}

// Ingestor drives ReportFetcher across every configured city on a daily
// cadence, retrying on ErrReportUnavailable with a doubling backoff up to
// MaxRetries, and surfacing a ClosureStalled warning when exhausted.
type Ingestor struct {
	Fetcher     ReportFetcher
	Store       Store
	Observer    Observer
	Cities      []weather.City
	InitialWait time.Duration // default 5 minutes
	MaxRetries  int           // default 6 (5m, 10m, 20m, 40m, 80m, 160m)
}

// NewIngestor builds an Ingestor with production-default retry parameters over
// the default city list.
func NewIngestor(fetcher ReportFetcher, store Store, observer Observer) *Ingestor {
	return &Ingestor{
		Fetcher:     fetcher,
		Store:       store,
		Observer:    observer,
		Cities:      weather.DefaultCities,
		InitialWait: 5 * time.Minute,
		MaxRetries:  6,
	}
}

// RunMorningClose fetches and persists the settlement for every city for
// targetDate (normally "yesterday" in each city's standard-time frame).
// Each city is independent: a ClosureStalled city never blocks another.
func (in *Ingestor) RunMorningClose(ctx context.Context, targetDate string) {
	for _, city := range in.Cities {
		in.closeOne(ctx, city, targetDate)
	}
}

func (in *Ingestor) closeOne(ctx context.Context, city weather.City, targetDate string) {
	wait := in.InitialWait
	if wait <= 0 {
		wait = 5 * time.Minute
	}
	maxRetries := in.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 6
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			wait *= 2
		}

		highF, source, raw, err := in.Fetcher.FetchActualHigh(ctx, city, targetDate)
		if err == nil {
			s := model.Settlement{
				City:        city.Code,
				TargetDate:  targetDate,
				ActualHighF: highF,
				Source:      source,
				RawReport:   raw,
				FetchedAt:   time.Now().UTC(),
			}
			if saveErr := in.Store.SaveSettlement(ctx, s); saveErr != nil {
				slog.Error("settlement persist failed", "city", city.Code, "target_date", targetDate, "error", saveErr)
				return
			}
			slog.Info("settlement closed", "city", city.Code, "target_date", targetDate, "actual_high_f", highF, "attempt", attempt)
			if in.Observer != nil {
				in.Observer.SettlementObserved(ctx, s)
			}
			return
		}

		lastErr = err
		if !errors.Is(err, ErrReportUnavailable) {
			slog.Error("settlement fetch failed permanently", "city", city.Code, "target_date", targetDate, "error", err)
			return
		}
		slog.Warn("settlement report not yet available, backing off",
			"city", city.Code, "target_date", targetDate, "attempt", attempt, "next_wait", wait)
	}

	slog.Warn("ClosureStalled: settlement report never arrived, trades remain OPEN",
		"city", city.Code, "target_date", targetDate, "last_error", lastErr)
}
