package prediction

import (
	"math"
	"testing"

	"github.com/bozweather/trader/internal/model"
)

func fp(v float64) *float64 { return &v }

func TestBracketProbabilities_SumsToOne(t *testing.T) {
	brackets := []model.Bracket{
		{Label: "below-50", UpperBoundF: fp(50)},
		{Label: "50-55", LowerBoundF: fp(50), UpperBoundF: fp(55)},
		{Label: "55-60", LowerBoundF: fp(55), UpperBoundF: fp(60)},
		{Label: "60-or-above", LowerBoundF: fp(60)},
	}

	probs := BracketProbabilities(brackets, 55, 3)

	total := 0.0
	for _, p := range probs {
		total += p.Probability
	}
	if math.Abs(total-1.0) > 1e-9 {
		t.Errorf("expected probabilities to sum to 1.0, got %v", total)
	}
}

func TestBracketProbabilities_EmptyInput(t *testing.T) {
	if got := BracketProbabilities(nil, 55, 3); got != nil {
		t.Errorf("expected nil for empty bracket input, got %v", got)
	}
}

func TestBracketProbabilities_CenteredBracketHasHighestMass(t *testing.T) {
	brackets := []model.Bracket{
		{Label: "below-50", UpperBoundF: fp(50)},
		{Label: "50-60", LowerBoundF: fp(50), UpperBoundF: fp(60)},
		{Label: "60-or-above", LowerBoundF: fp(60)},
	}
	probs := BracketProbabilities(brackets, 55, 2)

	middle := probs[1].Probability
	for i, p := range probs {
		if i == 1 {
			continue
		}
		if p.Probability >= middle {
			t.Errorf("expected middle bracket (centered on ensemble mean) to have the highest probability, got %v >= %v", p.Probability, middle)
		}
	}
}
