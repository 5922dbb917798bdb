package ticker

import (
	"regexp"
	"strconv"
)

// Subtitle grammars observed on temperature brackets. The API's cap_strike
// field wins when present; these regexes are the fallback.
var (
	reOrAbove = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)°?\s*or\s*above`)
	reRange   = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)°?\s*to\s*(\d+(?:\.\d+)?)°?`)
	reBelow   = regexp.MustCompile(`(?i)below\s*(\d+(?:\.\d+)?)°?`)
	reNumber  = regexp.MustCompile(`\d+(?:\.\d+)?`)
)

// CapStrike resolves a contract's cap strike: the API value when present,
// otherwise derived from the subtitle. "X° or above" gives X, "X° to Y°"
// gives Y, "below X°" gives X; failing those, the last numeric token in the
// subtitle. ok is false when nothing numeric can be found — such contracts
// are ignored.
func CapStrike(apiValue *float64, subtitle string) (float64, bool) {
	if apiValue != nil {
		return *apiValue, true
	}

	if m := reOrAbove.FindStringSubmatch(subtitle); m != nil {
		return mustFloat(m[1]), true
	}
	if m := reRange.FindStringSubmatch(subtitle); m != nil {
		return mustFloat(m[2]), true
	}
	if m := reBelow.FindStringSubmatch(subtitle); m != nil {
		return mustFloat(m[1]), true
	}
	if all := reNumber.FindAllString(subtitle, -1); len(all) > 0 {
		return mustFloat(all[len(all)-1]), true
	}
	return 0, false
}

func mustFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
