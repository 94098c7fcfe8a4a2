package infra

import (
	"time"
)

// Backoff is an exponential retry policy: Base * 2^retry, capped at Max.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// DefaultBackoff is used for websocket dials: 1s doubling up to a minute.
var DefaultBackoff = Backoff{Base: time.Second, Max: 60 * time.Second}

// Delay returns the wait before retry number retry (0-based).
// Negative retries get Base.
func (b Backoff) Delay(retry int) time.Duration {
	if retry <= 0 {
		return b.Base
	}
	// shifting past 30 overflows long before any sane cap
	if retry > 30 {
		return b.Max
	}

	d := b.Base << uint(retry)
	if d <= 0 || d > b.Max {
		return b.Max
	}
	return d
}

// CalculateBackoff applies DefaultBackoff.
func CalculateBackoff(retryCount int) time.Duration {
	return DefaultBackoff.Delay(retryCount)
}
