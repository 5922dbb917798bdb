// Package ticker parses Kalshi event tickers and derives the settlement
// facts the engine needs from them: the event's calendar date, the NWS
// observation window, and a contract's cap strike.
//
// Event tickers look like "KXHIGHCHI-26FEB21"; contract tickers append a
// suffix ("-T42", "-B39.5"). The NWS records climate data in Local Standard
// Time year-round, so the observation window is midnight-to-midnight LST
// converted to UTC — never DST.
package ticker

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// dateToken matches the YYMMMDD date segment of an event ticker.
var dateToken = regexp.MustCompile(`^(\d{2})([A-Z]{3})(\d{2})$`)

var months = map[string]time.Month{
	"JAN": time.January, "FEB": time.February, "MAR": time.March,
	"APR": time.April, "MAY": time.May, "JUN": time.June,
	"JUL": time.July, "AUG": time.August, "SEP": time.September,
	"OCT": time.October, "NOV": time.November, "DEC": time.December,
}

// Series returns the event-series prefix of a ticker (the first
// dash-separated token).
func Series(eventTicker string) string {
	if i := strings.IndexByte(eventTicker, '-'); i >= 0 {
		return eventTicker[:i]
	}
	return eventTicker
}

// EventDate scans a ticker's dash-separated tokens for a YYMMMDD date and
// returns the calendar date it encodes. Two-digit years map to 2000+YY;
// rollover past 2099 is not supported. ok is false when no token matches.
func EventDate(eventTicker string) (year int, month time.Month, day int, ok bool) {
	for _, part := range strings.Split(eventTicker, "-")[1:] {
		m := dateToken.FindStringSubmatch(part)
		if m == nil {
			continue
		}
		mon, known := months[m[2]]
		if !known {
			continue
		}
		yy, _ := strconv.Atoi(m[1])
		dd, _ := strconv.Atoi(m[3])
		return 2000 + yy, mon, dd, true
	}
	return 0, 0, 0, false
}

// LSTOffset returns the station's Local Standard Time offset from UTC for
// the given year. The offset is probed at noon on January 15 — a date with
// no DST in the northern hemisphere — or July 15 for southern-hemisphere
// stations (lat < 0).
func LSTOffset(year int, loc *time.Location, lat float64) time.Duration {
	probeMonth := time.January
	if lat < 0 {
		probeMonth = time.July
	}
	probe := time.Date(year, probeMonth, 15, 12, 0, 0, 0, loc)
	_, offsetSec := probe.Zone()
	return time.Duration(offsetSec) * time.Second
}

// ObservationWindow computes the UTC observation window [start, end) for an
// event ticker: midnight-to-midnight on the event's date in the station's
// Local Standard Time. When the ticker carries no parseable date the window
// falls back to today in the station's timezone; callers that care should
// check the date with EventDate first and warn.
func ObservationWindow(eventTicker, tzName string, lat float64) (start, end time.Time, err error) {
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}

	year, month, day, ok := EventDate(eventTicker)
	if !ok {
		now := time.Now().In(loc)
		year, month, day = now.Year(), now.Month(), now.Day()
	}

	offset := LSTOffset(year, loc, lat)
	start = time.Date(year, month, day, 0, 0, 0, 0, time.UTC).Add(-offset)
	end = start.Add(24 * time.Hour)
	return start, end, nil
}
