package prediction

import (
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/bozweather/trader/internal/model"
)

// BracketProbabilities computes the model probability mass for every
// bracket in the set, under Normal(ensembleHighF, errorStdF), clamping
// each raw value to [0,1] and renormalizing the whole vector to sum to
// exactly 1.0. Renormalization absorbs floating-point drift and any
// micro-gaps between adjacent bracket bounds.
func BracketProbabilities(brackets []model.Bracket, ensembleHighF, errorStdF float64) []model.BracketProbability {
	if len(brackets) == 0 {
		return nil
	}

	dist := distuv.Normal{Mu: ensembleHighF, Sigma: errorStdF}

	raw := make([]float64, len(brackets))
	for i, b := range brackets {
		raw[i] = clamp01(bracketMass(dist, b))
	}

	total := 0.0
	for _, p := range raw {
		total += p
	}

	out := make([]model.BracketProbability, len(brackets))
	for i, b := range brackets {
		p := raw[i]
		if total > 0 {
			p = raw[i] / total
		}
		out[i] = model.BracketProbability{
			LowerBoundF: b.LowerBoundF,
			UpperBoundF: b.UpperBoundF,
			Label:       b.Label,
			Probability: p,
		}
	}
	return out
}

// bracketMass computes the pre-clamp, pre-renormalization probability
// mass for one bracket under dist:
//
//	bottom-edge (none, u): Φ(u)
//	top-edge    (l, none): 1 - Φ(l)
//	middle      (l, u):    Φ(u) - Φ(l)
func bracketMass(dist distuv.Normal, b model.Bracket) float64 {
	switch {
	case b.LowerBoundF == nil && b.UpperBoundF != nil:
		return dist.CDF(*b.UpperBoundF)
	case b.LowerBoundF != nil && b.UpperBoundF == nil:
		return 1 - dist.CDF(*b.LowerBoundF)
	case b.LowerBoundF != nil && b.UpperBoundF != nil:
		return dist.CDF(*b.UpperBoundF) - dist.CDF(*b.LowerBoundF)
	default:
		return 0
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
