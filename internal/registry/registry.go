// Package registry is the static mapping between Kalshi event-series
// prefixes and the weather stations that settle them.
//
// It is the single source of truth for station identifiers (ICAO, IATA,
// Synoptic push id), timezone, and coordinates. Adding a new city is one
// entry here plus the series prefix in config.yaml — every other component
// picks it up automatically. The registry is immutable at runtime.
package registry

import (
	"fmt"

	"weather-arb/pkg/types"
)

// stations maps event-series prefix → station metadata.
//
// The Synoptic push id is typically ICAO + "1M" (the 1-minute ASOS stream);
// KNYC is the exception — Central Park has no 1M feed variant.
var stations = map[string]types.Station{
	"KXHIGHCHI": {Series: "KXHIGHCHI", ICAO: "KMDW", IATA: "MDW", City: "Chicago",
		TZ: "America/Chicago", Lat: 41.786, Lon: -87.752, SynopticID: "KMDW1M"},
	"KXHIGHNY": {Series: "KXHIGHNY", ICAO: "KNYC", IATA: "NYC", City: "New York",
		TZ: "America/New_York", Lat: 40.779, Lon: -73.969, SynopticID: "KNYC"},
	"KXHIGHMIA": {Series: "KXHIGHMIA", ICAO: "KMIA", IATA: "MIA", City: "Miami",
		TZ: "America/New_York", Lat: 25.791, Lon: -80.316, SynopticID: "KMIA1M"},
	"KXHIGHDEN": {Series: "KXHIGHDEN", ICAO: "KDEN", IATA: "DEN", City: "Denver",
		TZ: "America/Denver", Lat: 39.847, Lon: -104.656, SynopticID: "KDEN1M"},
	"KXHIGHAUS": {Series: "KXHIGHAUS", ICAO: "KAUS", IATA: "AUS", City: "Austin",
		TZ: "America/Chicago", Lat: 30.183, Lon: -97.680, SynopticID: "KAUS1M"},
	"KXHIGHHOU": {Series: "KXHIGHHOU", ICAO: "KHOU", IATA: "HOU", City: "Houston",
		TZ: "America/Chicago", Lat: 29.638, Lon: -95.282, SynopticID: "KHOU1M"},
	"KXHIGHPHL": {Series: "KXHIGHPHL", ICAO: "KPHL", IATA: "PHL", City: "Philadelphia",
		TZ: "America/New_York", Lat: 39.873, Lon: -75.227, SynopticID: "KPHL1M"},
	"KXHIGHATL": {Series: "KXHIGHATL", ICAO: "KATL", IATA: "ATL", City: "Atlanta",
		TZ: "America/New_York", Lat: 33.630, Lon: -84.442, SynopticID: "KATL1M"},
	"KXHIGHBOS": {Series: "KXHIGHBOS", ICAO: "KBOS", IATA: "BOS", City: "Boston",
		TZ: "America/New_York", Lat: 42.361, Lon: -71.010, SynopticID: "KBOS1M"},
	"KXHIGHDCA": {Series: "KXHIGHDCA", ICAO: "KDCA", IATA: "DCA", City: "Washington DC",
		TZ: "America/New_York", Lat: 38.848, Lon: -77.034, SynopticID: "KDCA1M"},
	"KXHIGHDFW": {Series: "KXHIGHDFW", ICAO: "KDFW", IATA: "DFW", City: "Dallas-Fort Worth",
		TZ: "America/Chicago", Lat: 32.898, Lon: -97.019, SynopticID: "KDFW1M"},
	"KXHIGHLAS": {Series: "KXHIGHLAS", ICAO: "KLAS", IATA: "LAS", City: "Las Vegas",
		TZ: "America/Los_Angeles", Lat: 36.072, Lon: -115.163, SynopticID: "KLAS1M"},
	"KXHIGHLAX": {Series: "KXHIGHLAX", ICAO: "KLAX", IATA: "LAX", City: "Los Angeles",
		TZ: "America/Los_Angeles", Lat: 33.938, Lon: -118.389, SynopticID: "KLAX1M"},
	"KXHIGHMSP": {Series: "KXHIGHMSP", ICAO: "KMSP", IATA: "MSP", City: "Minneapolis",
		TZ: "America/Chicago", Lat: 44.883, Lon: -93.229, SynopticID: "KMSP1M"},
	"KXHIGHMSY": {Series: "KXHIGHMSY", ICAO: "KMSY", IATA: "MSY", City: "New Orleans",
		TZ: "America/Chicago", Lat: 29.993, Lon: -90.251, SynopticID: "KMSY1M"},
	"KXHIGHOKC": {Series: "KXHIGHOKC", ICAO: "KOKC", IATA: "OKC", City: "Oklahoma City",
		TZ: "America/Chicago", Lat: 35.389, Lon: -97.600, SynopticID: "KOKC1M"},
	"KXHIGHPHX": {Series: "KXHIGHPHX", ICAO: "KPHX", IATA: "PHX", City: "Phoenix",
		TZ: "America/Phoenix", Lat: 33.428, Lon: -112.004, SynopticID: "KPHX1M"},
	"KXHIGHSAT": {Series: "KXHIGHSAT", ICAO: "KSAT", IATA: "SAT", City: "San Antonio",
		TZ: "America/Chicago", Lat: 29.533, Lon: -98.464, SynopticID: "KSAT1M"},
	"KXHIGHSEA": {Series: "KXHIGHSEA", ICAO: "KSEA", IATA: "SEA", City: "Seattle",
		TZ: "America/Los_Angeles", Lat: 47.444, Lon: -122.314, SynopticID: "KSEA1M"},
	"KXHIGHSFO": {Series: "KXHIGHSFO", ICAO: "KSFO", IATA: "SFO", City: "San Francisco",
		TZ: "America/Los_Angeles", Lat: 37.620, Lon: -122.365, SynopticID: "KSFO1M"},
}

// ForSeries looks up a station by event-series prefix.
func ForSeries(series string) (types.Station, error) {
	st, ok := stations[series]
	if !ok {
		return types.Station{}, fmt.Errorf("no station registered for series %q", series)
	}
	return st, nil
}

// Has reports whether a series prefix is registered.
func Has(series string) bool {
	_, ok := stations[series]
	return ok
}

// SeriesForEventTicker returns the registered series prefix that the event
// ticker belongs to, or "" if none matches.
func SeriesForEventTicker(eventTicker string) string {
	for series := range stations {
		if len(eventTicker) > len(series) &&
			eventTicker[:len(series)] == series && eventTicker[len(series)] == '-' {
			return series
		}
	}
	return ""
}

// SynopticStations returns the deduplicated Synoptic push ids for the given
// series list, in input order. Used to build the weather-feed URL.
func SynopticStations(seriesList []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range seriesList {
		st, ok := stations[s]
		if !ok || st.SynopticID == "" {
			continue
		}
		if !seen[st.SynopticID] {
			seen[st.SynopticID] = true
			out = append(out, st.SynopticID)
		}
	}
	return out
}
