// Package prediction implements the Prediction Engine: a
// weighted ensemble of forecast sources, an error-distribution-calibrated
// bracket-probability model, an integer confidence score, and a
// deterministic postmortem narrative generator.
package prediction

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/stat"

	"github.com/bozweather/trader/internal/model"
)

// ErrEmptyInput is returned when Ensemble is called with no forecasts.
var ErrEmptyInput = errors.New("prediction: empty forecast input")

// sourceWeight is the static per-source ensemble weight table. Any source not listed here falls back to weightUnknown.
var sourceWeight = map[string]float64{
	"ecmwf":      0.30,
	"nws":        0.35,
	"gfs":        0.20,
	"open-meteo": 0.10,
	"accuweather": 0.05,
}

const weightUnknown = 0.05

func weightFor(source string) float64 {
	if w, ok := sourceWeight[source]; ok {
		return w
	}
	return weightUnknown
}

// EnsembleResult holds the weighted-mean ensemble temperature, the raw
// spread across contributing sources, and their names.
type EnsembleResult struct {
	EnsembleHighF float64
	SpreadF       float64
	Sources       []string
}

// Ensemble computes the weighted mean of forecasts using the static
// per-source weight table, the raw spread (max-min) across contributing
// temperatures, and the list of contributing source names. A single
// forecast is valid input — it receives full weight. Empty input errors.
func Ensemble(forecasts []model.Forecast) (EnsembleResult, error) {
	if len(forecasts) == 0 {
		return EnsembleResult{}, ErrEmptyInput
	}

	var weightedSum, weightTotal float64
	minTemp, maxTemp := forecasts[0].PredictedHighF, forecasts[0].PredictedHighF
	sources := make([]string, 0, len(forecasts))

	for _, f := range forecasts {
		w := weightFor(f.Source)
		weightedSum += w * f.PredictedHighF
		weightTotal += w
		sources = append(sources, f.Source)

		if f.PredictedHighF < minTemp {
			minTemp = f.PredictedHighF
		}
		if f.PredictedHighF > maxTemp {
			maxTemp = f.PredictedHighF
		}
	}

	if weightTotal <= 0 {
		return EnsembleResult{}, fmt.Errorf("prediction: total ensemble weight is zero for %d forecasts", len(forecasts))
	}

	return EnsembleResult{
		EnsembleHighF: weightedSum / weightTotal,
		SpreadF:       maxTemp - minTemp,
		Sources:       sources,
	}, nil
}

// SampleStdDev computes the ddof=1 sample standard deviation of a set of
// (actual-predicted) error observations, using gonum's StdDev (which
// already applies Bessel's correction).
func SampleStdDev(observations []float64) float64 {
	return stat.StdDev(observations, nil)
}
