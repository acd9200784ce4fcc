package music

import (
	"math"
	"testing"
)

func TestWordToNumberBasics(t *testing.T) {
	cases := map[string]float64{
		"zero":                              0,
		"eighteen":                          18,
		"seven hundred fifty six":           756,
		"four thousand twenty five":         4025,
		"two hundred fifty thousand":        250000,
		"three point one four":              3.14,
		"three point one four one five nine": 3.14159,
	}

	for phrase, want := range cases {
		got := WordToNumber(phrase)
		if math.Abs(got-want) > 1e-9 {
			t.Errorf("WordToNumber(%q) = %v, want %v", phrase, got, want)
		}
	}
}

func TestParseVolumeBoundary(t *testing.T) {
	if v, ok := ParseVolume("two"); !ok || v != 2.0 {
		t.Fatalf("volume 'two' should be accepted as 2.0, got %v ok=%v", v, ok)
	}
	if _, ok := ParseVolume("two point zero one"); ok {
		t.Fatal("volume 2.01 should be rejected")
	}
}
