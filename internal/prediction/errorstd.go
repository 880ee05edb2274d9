package prediction

import "github.com/bozweather/trader/internal/model"

// MinSampleSize is the minimum number of historical (actual-predicted)
// error observations required to trust the sample standard deviation
// over the hard-coded seasonal fallback.
const MinSampleSize = 30

// fallbackStdF is the hard-coded, intentionally conservative (city,
// season) error standard deviation table used when fewer than
// MinSampleSize historical observations exist. Wider distributions yield
// fewer trades when calibration data is thin — erring toward caution,
// never toward false confidence.
//
// Every entry is held above 3.0°F on purpose: ConfidenceScore gives a +1
// bonus for errorStdF <= 3, and a single-source prediction already gets
// spread +3 (spread=0) and can get freshness +1, for 4 points before the
// std factor is counted. If any fallback entry were <= 3 that combination
// would reach the HIGH threshold of 5 on a single source alone, which
// spec §8's edge cases rule out ("confidence cannot be HIGH because
// freshness and spread factors alone cannot reach 5"). This is why NYC's
// winter entry is 4.5 rather than the illustrative 3.0 used in spec §8's
// happy-path scenario text (that scenario runs a 3-source ensemble, where
// the distinction never bites) — the table's own conservatism constraint
// takes precedence over reproducing that illustrative number exactly.
var fallbackStdF = map[string]map[model.Season]float64{
	"NYC": {model.SeasonWinter: 4.5, model.SeasonSpring: 5.0, model.SeasonSummer: 3.5, model.SeasonFall: 4.0},
	"CHI": {model.SeasonWinter: 5.5, model.SeasonSpring: 5.5, model.SeasonSummer: 4.0, model.SeasonFall: 4.5},
	"MIA": {model.SeasonWinter: 3.5, model.SeasonSpring: 3.5, model.SeasonSummer: 3.5, model.SeasonFall: 3.5},
	"AUS": {model.SeasonWinter: 4.0, model.SeasonSpring: 4.5, model.SeasonSummer: 3.5, model.SeasonFall: 3.5},
}

// defaultFallbackStdF is used for a city not present in the table, kept
// conservative by construction (wider than every entry in the known table).
const defaultFallbackStdF = 6.0

// ErrorStdDevFor returns the error standard deviation to use for a
// (city, targetMonth) pair given a set of historical
// (actual_high - predicted_high) observations. If len(observations) is
// at least MinSampleSize, the sample standard deviation (ddof=1) is
// used; otherwise the hard-coded seasonal fallback applies.
func ErrorStdDevFor(city string, targetMonth int, observations []float64) float64 {
	if len(observations) >= MinSampleSize {
		return SampleStdDev(observations)
	}

	season := model.SeasonFromMonth(targetMonth)
	if bySeason, ok := fallbackStdF[city]; ok {
		if std, ok := bySeason[season]; ok {
			return std
		}
	}
	return defaultFallbackStdF
}
