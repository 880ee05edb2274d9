package weather

import "time"

// City describes one of the four exchange-listed cities: its governmental
// grid coordinates (cached once resolved) and its fixed standard-time UTC
// offset. The settlement day for a city is always its local *standard*
// time — daylight saving is never observed for target-date purposes.
type City struct {
	Code              string // e.g. "NYC"
	Name              string
	Latitude          float64
	Longitude         float64
	StandardUTCOffset time.Duration // e.g. -5*time.Hour for NYC (EST, year-round)
	EventSeries       string        // exchange series ticker for this city's daily-high event
}

// DefaultCities is the exchange's four daily-high-temperature cities.
var DefaultCities = []City{
	{Code: "NYC", Name: "New York City", Latitude: 40.7796, Longitude: -73.9662, StandardUTCOffset: -5 * time.Hour, EventSeries: "KXHIGHNY"},
	{Code: "CHI", Name: "Chicago", Latitude: 41.8781, Longitude: -87.6298, StandardUTCOffset: -6 * time.Hour, EventSeries: "KXHIGHCHI"},
	{Code: "MIA", Name: "Miami", Latitude: 25.7617, Longitude: -80.1918, StandardUTCOffset: -5 * time.Hour, EventSeries: "KXHIGHMIA"},
	{Code: "AUS", Name: "Austin", Latitude: 30.2672, Longitude: -97.7431, StandardUTCOffset: -6 * time.Hour, EventSeries: "KXHIGHAUS"},
}

// TargetDateFor returns the YYYY-MM-DD target-date string for a city given
// a wall-clock instant, expressed in the city's fixed standard-time frame.
func TargetDateFor(city City, at time.Time) string {
	local := at.UTC().Add(city.StandardUTCOffset)
	return local.Format("2006-01-02")
}
