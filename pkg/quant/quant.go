package quant

import (
	"fmt"
	"math"
	"sync/atomic"
	"time"
)

// TimeStamp represents Unix Microseconds.
type TimeStamp int64

// ExchangeTimeLayout matches BitMEX timestamps such as "2024-01-01T00:00:00.123Z".
// The fractional part is optional and may carry any number of digits.
const ExchangeTimeLayout = "2006-01-02T15:04:05.999999999Z"

const microsPerSecond = 1_000_000

// FromUnixSeconds converts float Unix seconds, the unit of the wire "t" field, to TimeStamp.
func FromUnixSeconds(sec float64) TimeStamp {
	return TimeStamp(math.Round(sec * microsPerSecond))
}

// FromTime converts a time.Time to TimeStamp.
func FromTime(t time.Time) TimeStamp {
	return TimeStamp(t.UnixMicro())
}

// Now returns the current wall clock as TimeStamp.
func Now() TimeStamp {
	return FromTime(time.Now())
}

// Seconds returns the timestamp as float Unix seconds, the unit audit records are stored in.
func (t TimeStamp) Seconds() float64 {
	return float64(t) / microsPerSecond
}

// Time converts back to a UTC time.Time.
func (t TimeStamp) Time() time.Time {
	return time.UnixMicro(int64(t)).UTC()
}

func (t TimeStamp) String() string {
	return t.Time().Format(time.RFC3339Nano)
}

// ParseExchangeTime parses an ISO-8601 exchange timestamp with a literal "Z" suffix.
func ParseExchangeTime(s string) (TimeStamp, error) {
	tm, err := time.Parse(ExchangeTimeLayout, s)
	if err != nil {
		return 0, fmt.Errorf("invalid exchange timestamp %q: %w", s, err)
	}
	return FromTime(tm), nil
}

// NextSeq generates the next sequence number atomically.
func NextSeq(ptr *uint64) uint64 {
	return atomic.AddUint64(ptr, 1)
}
