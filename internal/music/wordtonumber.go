package music

import "strings"

var units = []string{"zero", "one", "two", "three", "four", "five", "six", "seven", "eight", "nine"}
var tens = []string{"", "", "twenty", "thirty", "forty", "fifty", "sixty", "seventy", "eighty", "ninety"}
var teens = []string{"ten", "eleven", "twelve", "thirteen", "fourteen", "fifteen", "sixteen", "seventeen", "eighteen", "nineteen"}

var magnitudes = []struct {
	name       string
	multiplier float64
}{
	{"thousand", 1_000},
	{"million", 1_000_000},
	{"billion", 1_000_000_000},
	{"trillion", 1_000_000_000_000},
}

// parseNumericalWord converts a single word ("one".."nine", "ten".."nineteen",
// "twenty".."ninety") to its integer value, or 0 if unrecognized. Ported from
// parseNumericalWord in original_source/word_to_number.c.
func parseNumericalWord(token string) int {
	for i, u := range units {
		if token == u {
			return i
		}
	}
	for i, tn := range tens {
		if tn != "" && token == tn {
			return i * 10
		}
	}
	for i, tn := range teens {
		if token == tn {
			return 10 + i
		}
	}
	return 0
}

// WordToNumber converts an English spoken-number phrase (units, teens, tens,
// "hundred", "thousand".."trillion", and a fractional "point" part) to a
// float64, ported from wordToNumber in original_source/word_to_number.c.
func WordToNumber(phrase string) float64 {
	intPart := phrase
	if idx := strings.Index(phrase, "point"); idx != -1 {
		intPart = phrase[:idx]
	}

	var result, temp float64
	for _, token := range strings.Fields(intPart) {
		switch {
		case token == "point":
			// handled separately below
		case token == "hundred":
			temp *= 100
		default:
			found := false
			for _, m := range magnitudes {
				if token == m.name {
					result += temp * m.multiplier
					temp = 0
					found = true
					break
				}
			}
			if !found {
				temp += float64(parseNumericalWord(token))
			}
		}
	}
	result += temp

	if idx := strings.Index(phrase, "point"); idx != -1 {
		fracTokens := strings.Fields(phrase[idx+len("point"):])
		var frac float64
		digits := 0
		for _, token := range fracTokens {
			frac = frac*10 + float64(parseNumericalWord(token))
			digits++
		}
		for i := 0; i < digits; i++ {
			frac /= 10
		}
		result += frac
	}

	return result
}

// ParseVolume parses a spoken volume phrase and checks it against the
// accepted range [0.0, 2.0]; out-of-range values are rejected (ok=false)
// rather than clamped, per §4.5.
func ParseVolume(phrase string) (value float64, ok bool) {
	v := WordToNumber(phrase)
	if v < 0.0 || v > 2.0 {
		return 0, false
	}
	return v, true
}
