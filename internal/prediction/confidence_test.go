package prediction

import (
	"testing"

	"github.com/bozweather/trader/internal/model"
)

func TestConfidenceScore_BestCaseIsHigh(t *testing.T) {
	score, conf := ConfidenceScore(0.5, 1.5, 5, 30)
	if score != 7 {
		t.Errorf("expected max score 7, got %d", score)
	}
	if conf != model.ConfidenceHigh {
		t.Errorf("expected HIGH confidence, got %v", conf)
	}
}

func TestConfidenceScore_WorstCaseIsLow(t *testing.T) {
	score, conf := ConfidenceScore(10, 10, 1, 200)
	if conf != model.ConfidenceLow {
		t.Errorf("expected LOW confidence for worst-case inputs, got %v (score %d)", conf, score)
	}
}

func TestConfidenceScore_StaleDataPenalized(t *testing.T) {
	freshScore, _ := ConfidenceScore(2, 2, 2, 30)
	staleScore, _ := ConfidenceScore(2, 2, 2, 200)
	if staleScore >= freshScore {
		t.Errorf("expected stale data (age>120min) to score lower than fresh data, fresh=%d stale=%d", freshScore, staleScore)
	}
}

// TestConfidenceScore_SingleSourceCannotReachHigh asserts spec §8's edge
// case: with only one forecast source, spread is always 0 (+3) and
// freshness contributes at most +1, for 4 points maximum before the
// error-std factor — so confidence can never be HIGH on a single source,
// regardless of how fresh the data is, for every (city, season) fallback
// std the ensemble might use.
func TestConfidenceScore_SingleSourceCannotReachHigh(t *testing.T) {
	const sourceCount = 1
	const spreadF = 0 // a single source's ensemble always has zero spread

	for city, bySeason := range fallbackStdF {
		for season, errorStdF := range bySeason {
			for _, dataAgeMinutes := range []float64{0, 30, 60} {
				score, conf := ConfidenceScore(spreadF, errorStdF, sourceCount, dataAgeMinutes)
				if conf == model.ConfidenceHigh {
					t.Errorf("%s/%v: single source reached HIGH (score %d) with fallback std %v at age %v",
						city, season, score, errorStdF, dataAgeMinutes)
				}
			}
		}
	}

	// The default (unknown-city) fallback must hold the same property.
	score, conf := ConfidenceScore(spreadF, defaultFallbackStdF, sourceCount, 30)
	if conf == model.ConfidenceHigh {
		t.Errorf("single source reached HIGH (score %d) with default fallback std %v", score, defaultFallbackStdF)
	}
}
