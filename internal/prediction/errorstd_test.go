package prediction

import (
	"testing"

	"github.com/bozweather/trader/internal/model"
)

func TestErrorStdDevFor_UsesFallbackBelowMinSampleSize(t *testing.T) {
	observations := []float64{1, -1, 2}
	got := ErrorStdDevFor("NYC", 1, observations) // January -> winter
	want := fallbackStdF["NYC"][model.SeasonWinter]
	if got != want {
		t.Errorf("expected fallback std %v, got %v", want, got)
	}
}

func TestErrorStdDevFor_UnknownCityUsesDefault(t *testing.T) {
	got := ErrorStdDevFor("ZZZ", 1, []float64{1, 2})
	if got != defaultFallbackStdF {
		t.Errorf("expected default fallback %v, got %v", defaultFallbackStdF, got)
	}
}

func TestErrorStdDevFor_UsesSampleStdDevAtThreshold(t *testing.T) {
	observations := make([]float64, MinSampleSize)
	for i := range observations {
		observations[i] = float64(i % 5) // non-degenerate spread
	}
	got := ErrorStdDevFor("NYC", 6, observations) // June -> summer, would otherwise give 3.5
	want := SampleStdDev(observations)
	if got != want {
		t.Errorf("expected sample std dev %v once threshold met, got %v", want, got)
	}
}
