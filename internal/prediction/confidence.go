package prediction

import "github.com/bozweather/trader/internal/model"

// ConfidenceScore computes an integer confidence score (max 7) from
// forecast spread, error standard deviation, source count, and forecast
// age, and maps it to a Confidence bucket.
func ConfidenceScore(spreadF, errorStdF float64, sourceCount int, dataAgeMinutes float64) (score int, confidence model.Confidence) {
	switch {
	case spreadF <= 1:
		score += 3
	case spreadF <= 2:
		score += 2
	case spreadF <= 3:
		score += 1
	}

	switch {
	case errorStdF <= 2:
		score += 2
	case errorStdF <= 3:
		score += 1
	}

	if sourceCount >= 4 {
		score++
	}

	switch {
	case dataAgeMinutes <= 60:
		score++
	case dataAgeMinutes > 120:
		score--
	}

	switch {
	case score >= 5:
		confidence = model.ConfidenceHigh
	case score >= 3:
		confidence = model.ConfidenceMedium
	default:
		confidence = model.ConfidenceLow
	}
	return score, confidence
}
