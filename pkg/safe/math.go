// Package safe holds overflow-checked integer helpers for price-identifier
// decoding, tick scaling and pipeline counters.
package safe

import (
	"math"
)

// Sub returns a-b and false if the result would overflow int64.
func Sub(a, b int64) (int64, bool) {
	if (b > 0 && a < math.MinInt64+b) || (b < 0 && a > math.MaxInt64+b) {
		return 0, false
	}
	return a - b, true
}

// Mul returns a*b and false if the result would overflow int64.
func Mul(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	c := a * b
	if (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) || c/b != a {
		return 0, false
	}
	return c, true
}

// Backlog returns received-processed, clamped at zero.
// The two counters are read independently, so processed may briefly run ahead.
func Backlog(received, processed uint64) uint64 {
	if processed >= received {
		return 0
	}
	return received - processed
}
