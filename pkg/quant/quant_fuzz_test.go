package quant

import (
	"testing"
)

// FuzzParseExchangeTime tests exchange timestamp parsing with fuzzing.
func FuzzParseExchangeTime(f *testing.F) {
	f.Add("2024-01-01T00:00:00.000Z")
	f.Add("2019-06-11T08:15:30.5Z")
	f.Add("")
	f.Add("9999-99-99T99:99:99.999Z")

	f.Fuzz(func(t *testing.T, s string) {
		// Should handle invalid input gracefully (return error, not panic)
		_, _ = ParseExchangeTime(s)
	})
}

// FuzzFromUnixSeconds tests envelope time conversion with fuzzing.
func FuzzFromUnixSeconds(f *testing.F) {
	f.Add(0.0)
	f.Add(1000.0)
	f.Add(1560240930.123456)
	f.Add(-1.5)

	f.Fuzz(func(t *testing.T, sec float64) {
		_ = FromUnixSeconds(sec)
	})
}
