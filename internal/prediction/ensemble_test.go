package prediction

import (
	"math"
	"testing"

	"github.com/bozweather/trader/internal/model"
)

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestEnsemble_EmptyInputErrors(t *testing.T) {
	_, err := Ensemble(nil)
	if err != ErrEmptyInput {
		t.Errorf("expected ErrEmptyInput, got %v", err)
	}
}

func TestEnsemble_SingleSourceGetsFullWeight(t *testing.T) {
	result, err := Ensemble([]model.Forecast{{Source: "nws", PredictedHighF: 55}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.EnsembleHighF != 55 {
		t.Errorf("expected ensemble high 55, got %v", result.EnsembleHighF)
	}
	if result.SpreadF != 0 {
		t.Errorf("expected zero spread for single source, got %v", result.SpreadF)
	}
}

func TestEnsemble_WeightedMean(t *testing.T) {
	forecasts := []model.Forecast{
		{Source: "ecmwf", PredictedHighF: 50}, // weight 0.30
		{Source: "nws", PredictedHighF: 60},   // weight 0.35
		{Source: "gfs", PredictedHighF: 55},   // weight 0.20
	}
	result, err := Ensemble(forecasts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := (0.30*50 + 0.35*60 + 0.20*55) / (0.30 + 0.35 + 0.20)
	if !almostEqual(result.EnsembleHighF, expected, 1e-9) {
		t.Errorf("expected ensemble high %.4f, got %.4f", expected, result.EnsembleHighF)
	}
	if result.SpreadF != 10 {
		t.Errorf("expected spread 10 (60-50), got %v", result.SpreadF)
	}
	if len(result.Sources) != 3 {
		t.Errorf("expected 3 contributing sources, got %d", len(result.Sources))
	}
}

func TestEnsemble_UnknownSourceGetsFallbackWeight(t *testing.T) {
	forecasts := []model.Forecast{{Source: "mystery-model", PredictedHighF: 70}}
	result, err := Ensemble(forecasts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.EnsembleHighF != 70 {
		t.Errorf("expected ensemble high 70 (single source always gets full effective weight), got %v", result.EnsembleHighF)
	}
}
